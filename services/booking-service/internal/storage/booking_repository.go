package storage

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/zapagenda/zapagenda/libs/db"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/booking"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/model"
	"github.com/zapagenda/zapagenda/services/booking-service/internal/outbox"
)

const appointmentColumns = `id::text, owner_id, service_id::text, client_name, client_phone, client_email,
	start_time, end_time, status, notes, cancelled_at, created_at, updated_at`

// BookingRepository is the Postgres appointment store. Writes for one owner
// are serialized with a transaction-scoped advisory lock on the owner id;
// the appointments_no_overlap exclusion constraint backs it up.
type BookingRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewBookingRepository(pool *db.Pool, outboxRepo *outbox.Repository) *BookingRepository {
	return &BookingRepository{pool: pool, outbox: outboxRepo}
}

var _ booking.Store = (*BookingRepository)(nil)

func (r *BookingRepository) InOwnerTx(ctx context.Context, ownerID string, fn func(context.Context, booking.Tx) error) error {
	return r.pool.RunInTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, ownerID); err != nil {
			return fmt.Errorf("lock owner calendar: %w", err)
		}
		return fn(ctx, &ownerTx{tx: tx, outbox: r.outbox})
	})
}

func (r *BookingRepository) Get(ctx context.Context, ownerID, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND id = $2`, ownerID, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, mapError("get appointment", err)
	}
	return appt, nil
}

func (r *BookingRepository) List(ctx context.Context, ownerID string, f model.ListFilter) ([]model.Appointment, error) {
	query, args := listQuery(ownerID, f)
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list appointments: %w", err)
	}
	appts, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
	if err != nil {
		return nil, fmt.Errorf("scan appointments: %w", err)
	}
	return appts, nil
}

func (r *BookingRepository) Busy(ctx context.Context, ownerID string, start, end time.Time) ([]model.Appointment, error) {
	return overlapping(ctx, r.pool, ownerID, start, end, "")
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func overlapping(ctx context.Context, q querier, ownerID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	var exclude any
	if excludeID != "" {
		exclude = excludeID
	}
	rows, err := q.Query(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1
			AND status NOT IN ('CANCELLED', 'NO_SHOW')
			AND start_time < $3
			AND end_time > $2
			AND ($4::uuid IS NULL OR id <> $4::uuid)
		ORDER BY start_time ASC`, ownerID, start, end, exclude)
	if err != nil {
		return nil, fmt.Errorf("query overlapping: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (model.Appointment, error) {
		return scanAppointment(row)
	})
}

// listQuery builds the filtered listing. Filters become positional
// arguments; nothing from f is interpolated into the SQL text.
func listQuery(ownerID string, f model.ListFilter) (string, []any) {
	var (
		where = []string{"owner_id = $1"}
		args  = []any{ownerID}
	)
	add := func(clause string, v any) {
		args = append(args, v)
		where = append(where, strings.ReplaceAll(clause, "?", "$"+strconv.Itoa(len(args))))
	}
	if !f.From.IsZero() {
		add("start_time >= ?", f.From)
	}
	if !f.To.IsZero() {
		add("start_time < ?", f.To)
	}
	if f.Status != "" {
		add("status = ?", string(f.Status))
	}
	if f.ServiceID != "" {
		add("service_id::text = ?", f.ServiceID)
	}
	if name := strings.TrimSpace(f.ClientName); name != "" {
		add(`client_name ILIKE '%' || ? || '%' ESCAPE '\'`, escapeLike(name))
	}

	query := `SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY start_time ASC, id ASC`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
	}
	return query, args
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type ownerTx struct {
	tx     pgx.Tx
	outbox *outbox.Repository
}

func (t *ownerTx) Overlapping(ctx context.Context, ownerID string, start, end time.Time, excludeID string) ([]model.Appointment, error) {
	return overlapping(ctx, t.tx, ownerID, start, end, excludeID)
}

func (t *ownerTx) GetForUpdate(ctx context.Context, ownerID, id string) (model.Appointment, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+appointmentColumns+`
		FROM appointments
		WHERE owner_id = $1 AND id = $2
		FOR UPDATE`, ownerID, id)
	appt, err := scanAppointment(row)
	if err != nil {
		return model.Appointment{}, mapError("get appointment for update", err)
	}
	return appt, nil
}

func (t *ownerTx) Insert(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO appointments
			(id, owner_id, service_id, client_name, client_phone, client_email, start_time, end_time, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING created_at, updated_at
	`, a.ID, a.OwnerID, a.ServiceID, a.ClientName, a.ClientPhone, a.ClientEmail,
		a.StartTime, a.EndTime, string(a.Status), a.Notes).Scan(&a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, mapError("insert appointment", err)
	}
	return a, nil
}

func (t *ownerTx) Update(ctx context.Context, a model.Appointment) (model.Appointment, error) {
	err := t.tx.QueryRow(ctx, `
		UPDATE appointments
		SET service_id = $3,
			client_name = $4,
			client_phone = $5,
			client_email = $6,
			start_time = $7,
			end_time = $8,
			status = $9,
			notes = $10,
			cancelled_at = $11,
			updated_at = now()
		WHERE owner_id = $1 AND id = $2
		RETURNING updated_at
	`, a.OwnerID, a.ID, a.ServiceID, a.ClientName, a.ClientPhone, a.ClientEmail,
		a.StartTime, a.EndTime, string(a.Status), a.Notes, a.CancelledAt).Scan(&a.UpdatedAt)
	if err != nil {
		return model.Appointment{}, mapError("update appointment", err)
	}
	return a, nil
}

func (t *ownerTx) Enqueue(ctx context.Context, evt booking.Event) error {
	tz, err := t.ownerTimezone(ctx, evt.Appointment.OwnerID)
	if err != nil {
		return err
	}
	e, err := outbox.AppointmentEvent(evt.Type, evt.Appointment, tz, evt.OccurredAt)
	if err != nil {
		return err
	}
	return t.outbox.Insert(ctx, t.tx, e)
}

// ownerTimezone is empty for owners that never saved a profile.
func (t *ownerTx) ownerTimezone(ctx context.Context, ownerID string) (string, error) {
	var tz string
	err := t.tx.QueryRow(ctx, `SELECT timezone FROM business_profiles WHERE owner_id = $1`, ownerID).Scan(&tz)
	if db.IsNoRows(err) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("owner timezone: %w", err)
	}
	return tz, nil
}

func scanAppointment(row pgx.Row) (model.Appointment, error) {
	var (
		a      model.Appointment
		status string
	)
	err := row.Scan(
		&a.ID,
		&a.OwnerID,
		&a.ServiceID,
		&a.ClientName,
		&a.ClientPhone,
		&a.ClientEmail,
		&a.StartTime,
		&a.EndTime,
		&status,
		&a.Notes,
		&a.CancelledAt,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	a.Status = model.Status(status)
	a.StartTime = a.StartTime.UTC()
	a.EndTime = a.EndTime.UTC()
	return a, nil
}

// mapError translates driver errors into the model sentinels the engine
// understands.
func mapError(op string, err error) error {
	switch {
	case db.IsNoRows(err):
		return model.ErrNotFound
	case db.IsExclusionViolation(err):
		return fmt.Errorf("%s: %w", op, model.ErrOverlap)
	case db.IsUniqueViolation(err):
		return fmt.Errorf("%s: %w", op, model.ErrDuplicate)
	case db.IsInvalidText(err):
		// A malformed uuid can only name a row that does not exist.
		return model.ErrNotFound
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
