package appointments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

type db interface {
	querier
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Repository persists appointments and their clinical notes.
type Repository struct {
	db  db
	now func() time.Time
}

// NewRepository creates a repository backed by a pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return NewRepositoryWithDB(pool)
}

// NewRepositoryWithDB allows injecting a mock database for tests.
func NewRepositoryWithDB(db db) *Repository {
	return &Repository{db: db, now: func() time.Time { return time.Now().UTC() }}
}

const appointmentColumns = `id, patient_id, patient_email, patient_name, professional_id, professional_name,
	service_slug, service_name, scheduled_at, status, notes, external_uid, created_at, updated_at`

// Create inserts a new appointment. ID and timestamps are assigned when empty.
func (r *Repository) Create(ctx context.Context, a *Appointment) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	now := r.now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	_, err := r.db.Exec(ctx, `
		INSERT INTO appointments (`+appointmentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`, a.ID, a.PatientID, a.PatientEmail, a.PatientName, a.ProfessionalID, a.ProfessionalName,
		a.ServiceSlug, a.ServiceName, a.ScheduledAt.UTC(), string(a.Status), a.Notes, a.ExternalUID, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		return fmt.Errorf("appointments: insert: %w", err)
	}
	return nil
}

// Get loads an appointment by id.
func (r *Repository) Get(ctx context.Context, id string) (*Appointment, error) {
	return scanAppointment(r.db.QueryRow(ctx, `SELECT `+appointmentColumns+` FROM appointments WHERE id = $1`, id))
}

// FindConfirmedByEmailNear returns the confirmed appointment for email whose scheduled
// instant lies within tolerance of at, preferring the closest one.
func (r *Repository) FindConfirmedByEmailNear(ctx context.Context, email string, at time.Time, tolerance time.Duration) (*Appointment, error) {
	at = at.UTC()
	return scanAppointment(r.db.QueryRow(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_email = $1
		  AND status = 'confirmed'
		  AND scheduled_at BETWEEN $2 AND $3
		ORDER BY ABS(EXTRACT(EPOCH FROM (scheduled_at - $4::timestamptz))) ASC
		LIMIT 1
	`, strings.TrimSpace(email), at.Add(-tolerance), at.Add(tolerance), at))
}

// ListForPatient returns a patient's appointments, newest first.
func (r *Repository) ListForPatient(ctx context.Context, patientID string, limit int) ([]Appointment, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT `+appointmentColumns+`
		FROM appointments
		WHERE patient_id = $1
		ORDER BY scheduled_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, fmt.Errorf("appointments: list for patient: %w", err)
	}
	defer rows.Close()

	var out []Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *appt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("appointments: list rows: %w", err)
	}
	return out, nil
}

// TransitionStatus moves an appointment from one status to another. The update only
// applies while the stored status still equals from, so a concurrent transition that
// already left from makes this call fail with ErrInvalidTransition.
func (r *Repository) TransitionStatus(ctx context.Context, id string, from, to Status) (*Appointment, error) {
	return transition(ctx, r.db, id, from, to, r.now())
}

// CompleteWithNote transitions a confirmed appointment to completed and, when note is
// non-nil, inserts it in the same transaction.
func (r *Repository) CompleteWithNote(ctx context.Context, id string, note *ClinicalNote) (*Appointment, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("appointments: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	now := r.now()
	appt, err := transition(ctx, tx, id, StatusConfirmed, StatusCompleted, now)
	if err != nil {
		return nil, err
	}

	if note != nil {
		if note.ID == "" {
			note.ID = uuid.NewString()
		}
		note.AppointmentID = appt.ID
		note.PatientID = appt.PatientID
		note.ProfessionalID = appt.ProfessionalID
		note.CreatedAt = now
		if note.AreasWorked == nil {
			note.AreasWorked = []string{}
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO clinical_notes (id, appointment_id, patient_id, professional_id, mood, participation, areas_worked, text, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, note.ID, note.AppointmentID, note.PatientID, note.ProfessionalID, note.Mood, note.Participation, note.AreasWorked, note.Text, note.CreatedAt); err != nil {
			return nil, fmt.Errorf("appointments: insert clinical note: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("appointments: commit completion: %w", err)
	}
	return appt, nil
}

func transition(ctx context.Context, q querier, id string, from, to Status, at time.Time) (*Appointment, error) {
	if !CanTransition(from, to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	appt, err := scanAppointment(q.QueryRow(ctx, `
		UPDATE appointments
		SET status = $3, updated_at = $4
		WHERE id = $1 AND status = $2
		RETURNING `+appointmentColumns,
		id, string(from), string(to), at))
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("%w: %s is no longer %s", ErrInvalidTransition, id, from)
	}
	return appt, err
}

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var status string
	err := row.Scan(&a.ID, &a.PatientID, &a.PatientEmail, &a.PatientName, &a.ProfessionalID, &a.ProfessionalName,
		&a.ServiceSlug, &a.ServiceName, &a.ScheduledAt, &status, &a.Notes, &a.ExternalUID, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("appointments: scan: %w", err)
	}
	a.Status = Status(status)
	return &a, nil
}
