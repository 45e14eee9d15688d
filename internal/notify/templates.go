package notify

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

// Template names double as the metric label and the provider category for sends.
const (
	TemplatePatientConfirmed      = "patient_confirmed"
	TemplateProfessionalConfirmed = "professional_confirmed"
	TemplatePatientCancelled      = "patient_cancelled"
	TemplateProfessionalCancelled = "professional_cancelled"
)

const whenLayout = "Monday, January 2, 2006 at 3:04 PM (MST)"

// messageData parameterizes every template.
type messageData struct {
	ServiceName      string
	ProfessionalName string
	PatientName      string
	PatientEmail     string
	When             string
}

type emailTemplate struct {
	subject string
	html    *template.Template
	text    string
}

var templates = map[string]emailTemplate{
	TemplatePatientConfirmed: {
		subject: "Your appointment is confirmed: %s",
		html: template.Must(template.New(TemplatePatientConfirmed).Parse(`<!DOCTYPE html>
<html><body>
<h2>Appointment confirmed</h2>
<p>Hello{{if .PatientName}} {{.PatientName}}{{end}},</p>
<p>Your <strong>{{.ServiceName}}</strong> session with <strong>{{.ProfessionalName}}</strong> is booked for <strong>{{.When}}</strong>.</p>
<p>Cancellations made less than 24 hours in advance must be arranged directly with the clinic.</p>
</body></html>`)),
		text: "Your {{service}} session with {{professional}} is booked for {{when}}.",
	},
	TemplateProfessionalConfirmed: {
		subject: "New appointment: %s",
		html: template.Must(template.New(TemplateProfessionalConfirmed).Parse(`<!DOCTYPE html>
<html><body>
<h2>New appointment</h2>
<p>{{.ProfessionalName}}, a new <strong>{{.ServiceName}}</strong> session was booked for <strong>{{.When}}</strong>.</p>
<ul>
<li>Patient: {{.PatientName}}</li>
<li>Email: {{.PatientEmail}}</li>
</ul>
</body></html>`)),
		text: "New {{service}} session with {{patient}} <{{email}}> for {{when}}.",
	},
	TemplatePatientCancelled: {
		subject: "Your appointment was cancelled: %s",
		html: template.Must(template.New(TemplatePatientCancelled).Parse(`<!DOCTYPE html>
<html><body>
<h2>Appointment cancelled</h2>
<p>Hello{{if .PatientName}} {{.PatientName}}{{end}},</p>
<p>Your <strong>{{.ServiceName}}</strong> session with <strong>{{.ProfessionalName}}</strong> on <strong>{{.When}}</strong> was cancelled.</p>
</body></html>`)),
		text: "Your {{service}} session with {{professional}} on {{when}} was cancelled.",
	},
	TemplateProfessionalCancelled: {
		subject: "Appointment cancelled: %s",
		html: template.Must(template.New(TemplateProfessionalCancelled).Parse(`<!DOCTYPE html>
<html><body>
<h2>Appointment cancelled</h2>
<p>{{.ProfessionalName}}, the <strong>{{.ServiceName}}</strong> session on <strong>{{.When}}</strong> was cancelled.</p>
<ul>
<li>Patient: {{.PatientName}}</li>
<li>Email: {{.PatientEmail}}</li>
</ul>
</body></html>`)),
		text: "The {{service}} session with {{patient}} <{{email}}> on {{when}} was cancelled.",
	},
}

// render builds the message for a named template. The recipient is left to the caller.
func render(name string, data messageData) (EmailMessage, error) {
	tpl, ok := templates[name]
	if !ok {
		return EmailMessage{}, fmt.Errorf("notify: unknown template %q", name)
	}
	var buf bytes.Buffer
	if err := tpl.html.Execute(&buf, data); err != nil {
		return EmailMessage{}, fmt.Errorf("notify: render %s: %w", name, err)
	}
	text := strings.NewReplacer(
		"{{service}}", data.ServiceName,
		"{{professional}}", data.ProfessionalName,
		"{{patient}}", data.PatientName,
		"{{email}}", data.PatientEmail,
		"{{when}}", data.When,
	).Replace(tpl.text)

	return EmailMessage{
		Subject:  fmt.Sprintf(tpl.subject, data.ServiceName),
		Body:     text,
		HTML:     buf.String(),
		Category: name,
	}, nil
}

func formatWhen(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return t.In(loc).Format(whenLayout)
}
