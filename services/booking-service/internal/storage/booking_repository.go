package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

type BookingRepository struct {
	pool *db.Pool
}

func NewBookingRepository(pool *db.Pool) *BookingRepository {
	return &BookingRepository{pool: pool}
}

const bookingColumns = `id::text, start_time, service_type, student_name, student_email,
	COALESCE(message, ''), student_timezone, meeting_link, preferred_language, created_at`

func (r *BookingRepository) Find(ctx context.Context, instant time.Time) (*model.Booking, error) {
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE start_time = $1
	`, model.NormalizeInstant(instant)))
	if err != nil {
		if IsNotFound(err) {
			return nil, nil
		}
		return nil, apperror.Infrastructure("find booking", err)
	}
	return b, nil
}

func (r *BookingRepository) Get(ctx context.Context, id string) (*model.Booking, error) {
	if !validID(id) {
		return nil, apperror.NotFound("booking not found")
	}
	b, err := scanBooking(r.pool.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
	`, id))
	if err != nil {
		if IsNotFound(err) {
			return nil, apperror.NotFound("booking not found")
		}
		return nil, apperror.Infrastructure("get booking", err)
	}
	return b, nil
}

// Create relies on UNIQUE(start_time): of two concurrent inserts for one
// instant exactly one commits, the other gets 23505.
func (r *BookingRepository) Create(ctx context.Context, b *model.Booking) error {
	var message *string
	if b.Message != "" {
		message = &b.Message
	}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO bookings
			(id, start_time, service_type, student_name, student_email, message,
			 student_timezone, meeting_link, preferred_language, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, b.ID, model.NormalizeInstant(b.StartTime), b.ServiceType, b.StudentName, b.StudentEmail, message,
		b.StudentTimezone, b.MeetingLink, b.PreferredLanguage, model.NormalizeInstant(b.CreatedAt))
	if err != nil {
		if IsConflict(err) {
			return apperror.Wrap(apperror.KindSlotConflict, "slot already booked", err)
		}
		return apperror.Infrastructure("insert booking", err)
	}
	return nil
}

func (r *BookingRepository) SetMeetingLink(ctx context.Context, id, link string) error {
	if !validID(id) {
		return apperror.NotFound("booking not found")
	}
	tag, err := r.pool.Exec(ctx, `UPDATE bookings SET meeting_link = $2 WHERE id = $1`, id, link)
	if err != nil {
		return apperror.Infrastructure("update meeting link", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("booking not found")
	}
	return nil
}

func (r *BookingRepository) Delete(ctx context.Context, id string) error {
	if !validID(id) {
		return apperror.NotFound("booking not found")
	}
	tag, err := r.pool.Exec(ctx, `DELETE FROM bookings WHERE id = $1`, id)
	if err != nil {
		return apperror.Infrastructure("delete booking", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NotFound("booking not found")
	}
	return nil
}

func (r *BookingRepository) List(ctx context.Context, rng *model.Range) ([]model.Booking, error) {
	var (
		rows pgx.Rows
		err  error
	)
	if rng == nil {
		rows, err = r.pool.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			ORDER BY start_time ASC
		`)
	} else {
		n := model.NormalizeRange(*rng)
		rows, err = r.pool.Query(ctx, `
			SELECT `+bookingColumns+`
			FROM bookings
			WHERE start_time >= $1 AND start_time <= $2
			ORDER BY start_time ASC
		`, n.Start, n.End)
	}
	if err != nil {
		return nil, apperror.Infrastructure("list bookings", err)
	}
	defer rows.Close()

	var out []model.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, apperror.Infrastructure("scan booking", err)
		}
		out = append(out, *b)
	}
	if rows.Err() != nil {
		return nil, apperror.Infrastructure("iterate bookings", rows.Err())
	}
	return out, nil
}

func scanBooking(row pgx.Row) (*model.Booking, error) {
	var b model.Booking
	if err := row.Scan(
		&b.ID,
		&b.StartTime,
		&b.ServiceType,
		&b.StudentName,
		&b.StudentEmail,
		&b.Message,
		&b.StudentTimezone,
		&b.MeetingLink,
		&b.PreferredLanguage,
		&b.CreatedAt,
	); err != nil {
		return nil, err
	}
	b.StartTime = b.StartTime.UTC()
	b.CreatedAt = b.CreatedAt.UTC()
	return &b, nil
}

// validID keeps malformed ids away from the uuid column, where they would
// fail with 22P02 instead of matching nothing.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

var (
	_ SlotEditor   = (*AvailabilityRepository)(nil)
	_ BookingStore = (*BookingRepository)(nil)
)
