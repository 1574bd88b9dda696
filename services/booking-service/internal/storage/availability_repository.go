package storage

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/md-rashed-zaman/lessonbook/libs/db"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

type AvailabilityRepository struct {
	pool *db.Pool
}

func NewAvailabilityRepository(pool *db.Pool) *AvailabilityRepository {
	return &AvailabilityRepository{pool: pool}
}

func (r *AvailabilityRepository) OpenSlots(ctx context.Context, rng model.Range) ([]time.Time, error) {
	rng = model.NormalizeRange(rng)
	rows, err := r.pool.Query(ctx, `
		SELECT start_time
		FROM availability_slots
		WHERE start_time >= $1 AND start_time <= $2
		ORDER BY start_time ASC
	`, rng.Start, rng.End)
	if err != nil {
		return nil, apperror.Infrastructure("query open slots", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var t time.Time
		if err := rows.Scan(&t); err != nil {
			return nil, apperror.Infrastructure("scan open slot", err)
		}
		out = append(out, t.UTC())
	}
	if rows.Err() != nil {
		return nil, apperror.Infrastructure("iterate open slots", rows.Err())
	}
	return out, nil
}

func (r *AvailabilityRepository) Open(ctx context.Context, instants []time.Time) (int, error) {
	instants = model.NormalizeInstants(instants)
	if len(instants) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		INSERT INTO availability_slots (start_time)
		SELECT unnest($1::timestamptz[])
		ON CONFLICT (start_time) DO NOTHING
	`, instants)
	if err != nil {
		return 0, apperror.Infrastructure("open slots", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *AvailabilityRepository) Close(ctx context.Context, instants []time.Time) (int, error) {
	instants = model.NormalizeInstants(instants)
	if len(instants) == 0 {
		return 0, nil
	}
	tag, err := r.pool.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE start_time = ANY($1::timestamptz[])
	`, instants)
	if err != nil {
		return 0, apperror.Infrastructure("close slots", err)
	}
	return int(tag.RowsAffected()), nil
}

// CloseUnbooked holds a SHARE lock on bookings for the transaction so no
// booking can commit between the check and the delete.
func (r *AvailabilityRepository) CloseUnbooked(ctx context.Context, instants []time.Time) (int, []time.Time, error) {
	instants = model.NormalizeInstants(instants)
	if len(instants) == 0 {
		return 0, []time.Time{}, nil
	}
	closed := 0
	booked := []time.Time{}
	err := pgx.BeginFunc(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE bookings IN SHARE MODE`); err != nil {
			return err
		}
		rows, err := tx.Query(ctx, `
			SELECT start_time FROM bookings
			WHERE start_time = ANY($1::timestamptz[])
			ORDER BY start_time ASC
		`, instants)
		if err != nil {
			return err
		}
		defer rows.Close()
		for rows.Next() {
			var t time.Time
			if err := rows.Scan(&t); err != nil {
				return err
			}
			booked = append(booked, t.UTC())
		}
		if err := rows.Err(); err != nil {
			return err
		}

		tag, err := tx.Exec(ctx, `
			DELETE FROM availability_slots a
			WHERE a.start_time = ANY($1::timestamptz[])
			  AND NOT EXISTS (SELECT 1 FROM bookings b WHERE b.start_time = a.start_time)
		`, instants)
		if err != nil {
			return err
		}
		closed = int(tag.RowsAffected())
		return nil
	})
	if err != nil {
		return 0, nil, apperror.Infrastructure("close unbooked slots", err)
	}
	return closed, booked, nil
}
