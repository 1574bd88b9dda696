package booking

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
)

// CancelWindow is the minimum notice a student must give to cancel.
const CancelWindow = time.Hour

// CanCancel reports whether a student may still cancel b at now.
func CanCancel(b model.Booking, now time.Time) bool {
	return b.StartTime.Sub(now) >= CancelWindow
}

// CancelByStudent deletes the booking if at least CancelWindow remains,
// then tells the teacher and confirms to the student.
func (s *Service) CancelByStudent(ctx context.Context, id string) (*model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CancelByStudent")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", id))

	b, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanCancel(*b, s.clock.Now()) {
		return nil, apperror.New(apperror.KindTooLate, "cancellations are only allowed up to 1 hour before the session")
	}
	return s.cancel(ctx, b, notify.ActorStudent)
}

// CancelByAdmin deletes the booking regardless of how close it is, then
// tells the student.
func (s *Service) CancelByAdmin(ctx context.Context, p auth.Principal, id string) (*model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.CancelByAdmin")
	defer span.End()
	span.SetAttributes(attribute.String("booking.id", id))

	if !p.IsAdmin() {
		return nil, apperror.New(apperror.KindUnauthorized, "admin access required")
	}
	b, err := s.Get(ctx, strings.TrimSpace(id))
	if err != nil {
		return nil, err
	}
	return s.cancel(ctx, b, notify.ActorTeacher)
}

func (s *Service) cancel(ctx context.Context, b *model.Booking, by notify.Actor) (*model.Booking, error) {
	if err := s.bookings.Delete(ctx, b.ID); err != nil {
		return nil, err
	}
	s.logger.Info("booking cancelled", "booking_id", b.ID, "start_time", b.StartTime, "by", string(by))
	if err := s.notifier.Cancelled(ctx, *b, by); err != nil {
		s.logger.Error("cancellation notification failed", "booking_id", b.ID, "err", err)
	}
	return b, nil
}
