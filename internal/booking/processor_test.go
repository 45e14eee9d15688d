package booking

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-booking/internal/appointments"
	"github.com/wolfman30/clinic-booking/internal/notify"
)

type apptStore struct {
	mu    sync.Mutex
	appts map[string]*appointments.Appointment
	seq   int
}

func newApptStore() *apptStore {
	return &apptStore{appts: map[string]*appointments.Appointment{}}
}

func (s *apptStore) Create(_ context.Context, a *appointments.Appointment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	a.ID = fmt.Sprintf("appt-%d", s.seq)
	cp := *a
	s.appts[a.ID] = &cp
	return nil
}

func (s *apptStore) Get(_ context.Context, id string) (*appointments.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok {
		return nil, appointments.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *apptStore) FindConfirmedByEmailNear(_ context.Context, email string, at time.Time, tol time.Duration) (*appointments.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.appts {
		d := a.ScheduledAt.Sub(at)
		if d < 0 {
			d = -d
		}
		if a.PatientEmail == email && a.Status == appointments.StatusConfirmed && d <= tol {
			cp := *a
			return &cp, nil
		}
	}
	return nil, appointments.ErrNotFound
}

func (s *apptStore) TransitionStatus(_ context.Context, id string, from, to appointments.Status) (*appointments.Appointment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.appts[id]
	if !ok || a.Status != from || !appointments.CanTransition(from, to) {
		return nil, appointments.ErrInvalidTransition
	}
	a.Status = to
	cp := *a
	return &cp, nil
}

func (s *apptStore) CompleteWithNote(ctx context.Context, id string, _ *appointments.ClinicalNote) (*appointments.Appointment, error) {
	return s.TransitionStatus(ctx, id, appointments.StatusConfirmed, appointments.StatusCompleted)
}

func (s *apptStore) ListForPatient(context.Context, string, int) ([]appointments.Appointment, error) {
	return nil, nil
}

func (s *apptStore) statuses() map[string]appointments.Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]appointments.Status{}
	for id, a := range s.appts {
		out[id] = a.Status
	}
	return out
}

type countingSender struct {
	mu    sync.Mutex
	sends int
	fail  bool
}

func (s *countingSender) Send(context.Context, notify.EmailMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sends++
	if s.fail {
		return errors.New("smtp 554")
	}
	return nil
}

type memLedger struct {
	mu   sync.Mutex
	keys map[string]bool
}

func (l *memLedger) AlreadyProcessed(_ context.Context, provider, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.keys[provider+"/"+key], nil
}

func (l *memLedger) MarkProcessed(_ context.Context, provider, key, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.keys == nil {
		l.keys = map[string]bool{}
	}
	k := provider + "/" + key
	if l.keys[k] {
		return false, nil
	}
	l.keys[k] = true
	return true, nil
}

type busyGuard struct{}

func (busyGuard) Acquire(context.Context, string) (bool, func(), error) { return false, func() {}, nil }

// finishingGuard grants the lock only after a concurrent delivery of the same key has
// completed and written the ledger.
type finishingGuard struct {
	ledger *memLedger
}

func (g finishingGuard) Acquire(ctx context.Context, key string) (bool, func(), error) {
	_, _ = g.ledger.MarkProcessed(ctx, Provider, key, string(TriggerBookingCreated))
	return true, func() {}, nil
}

type harness struct {
	proc   *Processor
	store  *apptStore
	sender *countingSender
}

func newHarness(t *testing.T, cfg ProcessorConfig, failingEmail bool) *harness {
	t.Helper()
	dir := clinicDirectory()
	store := newApptStore()
	sender := &countingSender{fail: failingEmail}
	dispatcher := notify.NewDispatcher(notify.DispatcherConfig{Sender: sender, Contacts: dir})
	svc := appointments.NewService(store, appointments.ServiceConfig{Notifier: dispatcher})
	return &harness{
		proc:   NewProcessor(NewVerifier(testSecret), NewNormalizer(dir, nil, nil), svc, cfg),
		store:  store,
		sender: sender,
	}
}

func (h *harness) deliver(t *testing.T, body string) (Result, error) {
	t.Helper()
	return h.proc.Handle(context.Background(), []byte(body), SignHex(testSecret, []byte(body)))
}

const createdBody = `{"triggerEvent":"BOOKING_CREATED","payload":{"uid":"b-1","type":"avaliacao","startTime":"2026-04-01T13:00:00Z","attendees":[{"email":"ana@example.com","name":"Ana"}]}}`

func cancelledBody(uid, start string) string {
	return fmt.Sprintf(`{"triggerEvent":"BOOKING_CANCELLED","payload":{"uid":%q,"startTime":%q,"attendees":[{"email":"ana@example.com","name":"Ana"}]}}`, uid, start)
}

func TestProcessor_BookingCreated(t *testing.T) {
	h := newHarness(t, ProcessorConfig{}, false)

	res, err := h.deliver(t, createdBody)
	require.NoError(t, err)
	assert.Equal(t, StatusCreated, res.Status)

	appt, err := h.store.Get(context.Background(), res.AppointmentID)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusConfirmed, appt.Status)
	assert.Equal(t, "pat-1", appt.PatientID)
	assert.Equal(t, "pro-1", appt.ProfessionalID)
	assert.Equal(t, 2, h.sender.sends, "patient and professional emails attempted")
}

func TestProcessor_EmailFailureStillPersists(t *testing.T) {
	h := newHarness(t, ProcessorConfig{}, true)

	res, err := h.deliver(t, createdBody)
	require.NoError(t, err)
	assert.Equal(t, appointments.StatusConfirmed, h.store.statuses()[res.AppointmentID])

	res, err = h.deliver(t, cancelledBody("b-1", "2026-04-01T13:00:30Z"))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, res.Status)
	assert.Equal(t, appointments.StatusCancelled, h.store.statuses()[res.AppointmentID])
	assert.Equal(t, 4, h.sender.sends)
}

func TestProcessor_CancellationIsIdempotent(t *testing.T) {
	h := newHarness(t, ProcessorConfig{}, false)
	_, err := h.deliver(t, createdBody)
	require.NoError(t, err)

	first, err := h.deliver(t, cancelledBody("b-1", "2026-04-01T13:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, first.Status)

	second, err := h.deliver(t, cancelledBody("b-1", "2026-04-01T13:00:00Z"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, second.Status)
}

func TestProcessor_CancellationOutsideWindowIsNoop(t *testing.T) {
	h := newHarness(t, ProcessorConfig{}, false)
	created, err := h.deliver(t, createdBody)
	require.NoError(t, err)

	res, err := h.deliver(t, cancelledBody("b-1", "2026-04-01T13:01:01Z"))
	require.NoError(t, err)
	assert.Equal(t, StatusNoMatch, res.Status)
	assert.Equal(t, appointments.StatusConfirmed, h.store.statuses()[created.AppointmentID])
}

func TestProcessor_LedgerShortCircuitsReplays(t *testing.T) {
	ledger := &memLedger{}
	h := newHarness(t, ProcessorConfig{Ledger: ledger}, false)

	_, err := h.deliver(t, createdBody)
	require.NoError(t, err)
	res, err := h.deliver(t, createdBody)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, res.Status)
	assert.Len(t, h.store.statuses(), 1)
}

func TestProcessor_LedgerRecheckedAfterGuard(t *testing.T) {
	ledger := &memLedger{}
	h := newHarness(t, ProcessorConfig{Ledger: ledger, Guard: finishingGuard{ledger: ledger}}, false)

	res, err := h.deliver(t, createdBody)
	require.NoError(t, err)
	assert.Equal(t, StatusAlreadyProcessed, res.Status)
	assert.Empty(t, h.store.statuses(), "no second appointment for a delivery finished elsewhere")
	assert.Zero(t, h.sender.sends)
}

func TestProcessor_GuardBusy(t *testing.T) {
	h := newHarness(t, ProcessorConfig{Guard: busyGuard{}}, false)

	res, err := h.deliver(t, createdBody)
	require.NoError(t, err)
	assert.Equal(t, StatusInProgress, res.Status)
	assert.Empty(t, h.store.statuses())
}

func TestProcessor_Rejections(t *testing.T) {
	h := newHarness(t, ProcessorConfig{}, false)

	_, err := h.proc.Handle(context.Background(), []byte(createdBody), "deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	_, err = h.deliver(t, `{"triggerEvent":`)
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = h.deliver(t, `{"triggerEvent":"BOOKING_CREATED","payload":{"startTime":"2026-04-01T13:00:00Z","attendees":[]}}`)
	assert.ErrorIs(t, err, ErrMissingAttendeeEmail)

	_, err = h.deliver(t, `{"triggerEvent":"BOOKING_CANCELLED","payload":{"attendees":[{"email":"ana@example.com"}]}}`)
	assert.ErrorIs(t, err, ErrMissingStartTime)

	assert.Empty(t, h.store.statuses())
}

func TestProcessor_IgnoredTriggers(t *testing.T) {
	h := newHarness(t, ProcessorConfig{}, false)

	for _, trigger := range []string{"BOOKING_RESCHEDULED", "MEETING_ENDED"} {
		res, err := h.deliver(t, fmt.Sprintf(`{"triggerEvent":%q,"payload":{}}`, trigger))
		require.NoError(t, err)
		assert.Equal(t, StatusIgnored, res.Status, trigger)
	}
}

func TestDeliveryKey(t *testing.T) {
	evt := &Event{TriggerEvent: TriggerBookingCancelled, Payload: Payload{UID: "b-1"}}
	assert.Equal(t, "b-1:BOOKING_CANCELLED", DeliveryKey(evt, nil))

	evt.Payload.UID = ""
	a := DeliveryKey(evt, []byte("one"))
	b := DeliveryKey(evt, []byte("two"))
	assert.NotEqual(t, a, b)
	assert.Contains(t, a, "sha256:")
}
