package appointments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore mirrors the compare-and-set semantics of Repository.
type memStore struct {
	mu    sync.Mutex
	appts map[string]*Appointment
	notes []*ClinicalNote
	seq   int
}

func newMemStore(appts ...*Appointment) *memStore {
	s := &memStore{appts: map[string]*Appointment{}}
	for _, a := range appts {
		cp := *a
		s.appts[a.ID] = &cp
	}
	return s
}

func (s *memStore) Create(_ context.Context, a *Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.ID == "" {
		s.seq++
		a.ID = "appt-" + string(rune('0'+s.seq))
	}
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *memStore) Get(_ context.Context, id string) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *memStore) FindConfirmedByEmailNear(_ context.Context, email string, at time.Time, tol time.Duration) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		d := a.ScheduledAt.Sub(at)
		if d < 0 {
			d = -d
		}
		if a.PatientEmail == email && a.Status == StatusConfirmed && d <= tol {
			cp := *a
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (s *memStore) TransitionStatus(_ context.Context, id string, from, to Status) (*Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !CanTransition(from, to) {
		return nil, ErrInvalidTransition
	}
	a, ok := s.appts[id]
	if !ok || a.Status != from {
		return nil, ErrInvalidTransition
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (s *memStore) CompleteWithNote(ctx context.Context, id string, note *ClinicalNote) (*Appointment, error) {
	a, err := s.TransitionStatus(ctx, id, StatusConfirmed, StatusCompleted)
	if err != nil {
		return nil, err
	}
	if note != nil {
		note.AppointmentID = id
		s.mu.Lock()
		s.notes = append(s.notes, note)
		s.mu.Unlock()
	}
	return a, nil
}

func (s *memStore) ListForPatient(_ context.Context, patientID string, _ int) ([]Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Appointment
	for _, a := range s.appts {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

type recordingNotifier struct {
	confirmed []string
	cancelled []string
}

func (n *recordingNotifier) AppointmentConfirmed(_ context.Context, a *Appointment) {
	n.confirmed = append(n.confirmed, a.ID)
}

func (n *recordingNotifier) AppointmentCancelled(_ context.Context, a *Appointment) {
	n.cancelled = append(n.cancelled, a.ID)
}

var fixedNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func newTestService(store Store, n Notifier) *Service {
	return NewService(store, ServiceConfig{
		Notifier: n,
		Now:      func() time.Time { return fixedNow },
	})
}

func confirmedAt(id string, at time.Time) *Appointment {
	return &Appointment{
		ID:             id,
		PatientID:      "pat-1",
		PatientEmail:   "ana@example.com",
		ProfessionalID: "pro-1",
		ScheduledAt:    at,
		Status:         StatusConfirmed,
	}
}

func TestBook_CreatesConfirmedAndNotifies(t *testing.T) {
	store := newMemStore()
	n := &recordingNotifier{}
	svc := newTestService(store, n)

	appt, err := svc.Book(context.Background(), &Appointment{
		PatientID:    "pat-1",
		PatientEmail: " ana@example.com ",
		ScheduledAt:  fixedNow.Add(72 * time.Hour),
	}, SourceClient)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, appt.Status)
	assert.Equal(t, "ana@example.com", appt.PatientEmail)
	assert.Equal(t, []string{appt.ID}, n.confirmed)

	stored, err := store.Get(context.Background(), appt.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, stored.Status)
}

func TestBook_RejectsInvalid(t *testing.T) {
	svc := newTestService(newMemStore(), nil)

	_, err := svc.Book(context.Background(), &Appointment{ScheduledAt: fixedNow}, SourceClient)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Book(context.Background(), &Appointment{PatientID: "p"}, SourceClient)
	assert.ErrorIs(t, err, ErrInvalid)

	_, err = svc.Book(context.Background(), &Appointment{PatientID: "p", ScheduledAt: fixedNow, Status: StatusCompleted}, SourceClient)
	assert.ErrorIs(t, err, ErrInvalid)
}

func TestCancelByPatient_WindowBoundary(t *testing.T) {
	tests := []struct {
		name    string
		leadIn  time.Duration
		wantErr error
	}{
		{"exactly 24h", 24 * time.Hour, nil},
		{"23h59m", 23*time.Hour + 59*time.Minute, ErrCancellationWindow},
		{"one second short", 24*time.Hour - time.Second, ErrCancellationWindow},
		{"well ahead", 10 * 24 * time.Hour, nil},
		{"in the past", -time.Hour, ErrCancellationWindow},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(confirmedAt("a1", fixedNow.Add(tt.leadIn)))
			n := &recordingNotifier{}
			svc := newTestService(store, n)

			appt, err := svc.CancelByPatient(context.Background(), "a1", "pat-1")
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				stored, _ := store.Get(context.Background(), "a1")
				assert.Equal(t, StatusConfirmed, stored.Status)
				assert.Empty(t, n.cancelled)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusCancelled, appt.Status)
			assert.Equal(t, []string{"a1"}, n.cancelled)
		})
	}
}

func TestCancelByPatient_RejectsOtherPatient(t *testing.T) {
	store := newMemStore(confirmedAt("a1", fixedNow.Add(48*time.Hour)))
	svc := newTestService(store, nil)

	_, err := svc.CancelByPatient(context.Background(), "a1", "pat-2")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestTerminalAppointmentsCannotMove(t *testing.T) {
	for _, status := range []Status{StatusCompleted, StatusCancelled} {
		t.Run(string(status), func(t *testing.T) {
			a := confirmedAt("a1", fixedNow.Add(72*time.Hour))
			a.Status = status
			store := newMemStore(a)
			svc := newTestService(store, nil)

			_, err := svc.CancelByPatient(context.Background(), "a1", "pat-1")
			assert.ErrorIs(t, err, ErrInvalidTransition)

			_, err = svc.Complete(context.Background(), "a1", "pro-1", nil)
			assert.ErrorIs(t, err, ErrInvalidTransition)

			stored, _ := store.Get(context.Background(), "a1")
			assert.Equal(t, status, stored.Status)
		})
	}
}

func TestComplete_AttachesNote(t *testing.T) {
	store := newMemStore(confirmedAt("a1", fixedNow.Add(-time.Hour)))
	svc := newTestService(store, nil)

	appt, err := svc.Complete(context.Background(), "a1", "pro-1", &NoteInput{
		Mood:        " calm ",
		AreasWorked: []string{"fine motor"},
		Text:        "good session",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, appt.Status)
	require.Len(t, store.notes, 1)
	assert.Equal(t, "calm", store.notes[0].Mood)
	assert.Equal(t, "a1", store.notes[0].AppointmentID)
}

func TestComplete_TextOnlyNoteHasEmptyAreas(t *testing.T) {
	store := newMemStore(confirmedAt("a1", fixedNow.Add(-time.Hour)))
	svc := newTestService(store, nil)

	_, err := svc.Complete(context.Background(), "a1", "pro-1", &NoteInput{
		Text:        "good session",
		AreasWorked: []string{" ", "speech "},
	})
	require.NoError(t, err)
	require.Len(t, store.notes, 1)
	assert.Equal(t, []string{"speech"}, store.notes[0].AreasWorked)

	store = newMemStore(confirmedAt("a2", fixedNow.Add(-time.Hour)))
	svc = newTestService(store, nil)
	_, err = svc.Complete(context.Background(), "a2", "pro-1", &NoteInput{Participation: "active"})
	require.NoError(t, err)
	require.Len(t, store.notes, 1)
	assert.NotNil(t, store.notes[0].AreasWorked)
	assert.Empty(t, store.notes[0].AreasWorked)
}

func TestComplete_WithoutNote(t *testing.T) {
	store := newMemStore(confirmedAt("a1", fixedNow))
	svc := newTestService(store, nil)

	_, err := svc.Complete(context.Background(), "a1", "", &NoteInput{})
	require.NoError(t, err)
	assert.Empty(t, store.notes)
}

func TestComplete_RejectsOtherProfessional(t *testing.T) {
	store := newMemStore(confirmedAt("a1", fixedNow))
	svc := newTestService(store, nil)

	_, err := svc.Complete(context.Background(), "a1", "pro-2", nil)
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestCancelMatching_IsIdempotent(t *testing.T) {
	start := fixedNow.Add(2 * time.Hour)
	store := newMemStore(confirmedAt("a1", start))
	n := &recordingNotifier{}
	svc := newTestService(store, n)

	first, err := svc.CancelMatching(context.Background(), "ana@example.com", start.Add(30*time.Second))
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, StatusCancelled, first.Status)

	second, err := svc.CancelMatching(context.Background(), "ana@example.com", start)
	require.NoError(t, err)
	assert.Nil(t, second)
	assert.Equal(t, []string{"a1"}, n.cancelled)
}

func TestCancelMatching_IgnoresTimeGuard(t *testing.T) {
	start := fixedNow.Add(10 * time.Minute)
	store := newMemStore(confirmedAt("a1", start))
	svc := newTestService(store, nil)

	appt, err := svc.CancelMatching(context.Background(), "ana@example.com", start)
	require.NoError(t, err)
	require.NotNil(t, appt)
	assert.Equal(t, StatusCancelled, appt.Status)
}

func TestCancelMatching_OutsideToleranceIsNoop(t *testing.T) {
	start := fixedNow.Add(2 * time.Hour)
	store := newMemStore(confirmedAt("a1", start))
	svc := newTestService(store, nil)

	appt, err := svc.CancelMatching(context.Background(), "ana@example.com", start.Add(61*time.Second))
	require.NoError(t, err)
	assert.Nil(t, appt)

	stored, _ := store.Get(context.Background(), "a1")
	assert.Equal(t, StatusConfirmed, stored.Status)
}

type failingStore struct{ *memStore }

func (f *failingStore) FindConfirmedByEmailNear(context.Context, string, time.Time, time.Duration) (*Appointment, error) {
	return nil, errors.New("db down")
}

func TestCancelMatching_PropagatesStoreErrors(t *testing.T) {
	svc := newTestService(&failingStore{memStore: newMemStore()}, nil)
	_, err := svc.CancelMatching(context.Background(), "ana@example.com", fixedNow)
	assert.Error(t, err)
}

func TestCanPatientCancel(t *testing.T) {
	svc := newTestService(newMemStore(), nil)
	assert.True(t, svc.CanPatientCancel(confirmedAt("a", fixedNow.Add(24*time.Hour))))
	assert.False(t, svc.CanPatientCancel(confirmedAt("a", fixedNow.Add(23*time.Hour))))
}
