package accounts

// Reference names a collection whose rows point at a user through any of Fields.
type Reference struct {
	Collection string
	Fields     []string
}

// References is every dependent collection that can reference a user. A user is only
// deleted after each of these is purged, so new dependents must be registered here.
var References = []Reference{
	{Collection: "appointments", Fields: []string{"patient_id", "professional_id"}},
	{Collection: "clinical_notes", Fields: []string{"patient_id", "professional_id"}},
	{Collection: "patient_tasks", Fields: []string{"patient_id", "professional_id"}},
	{Collection: "intervention_plans", Fields: []string{"patient_id", "professional_id"}},
}

// BlobPrefix is the storage prefix owned by a user (profile photo, uploads).
func BlobPrefix(uid string) string {
	return "users/" + uid + "/"
}
