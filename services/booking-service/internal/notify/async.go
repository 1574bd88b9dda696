package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

// Async hands each notice to a background goroutine and returns at once, so a
// slow sink never holds a booking request open. Drain waits for what is in
// flight; call it on shutdown.
type Async struct {
	next   Notifier
	logger *slog.Logger

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(next Notifier, logger *slog.Logger) *Async {
	return &Async{next: next, logger: logger}
}

func (a *Async) Booked(ctx context.Context, b model.Booking) error {
	a.dispatch(ctx, "booked", b.ID, func(ctx context.Context) error {
		return a.next.Booked(ctx, b)
	})
	return nil
}

func (a *Async) Cancelled(ctx context.Context, b model.Booking, by Actor) error {
	a.dispatch(ctx, "cancelled_by_"+string(by), b.ID, func(ctx context.Context) error {
		return a.next.Cancelled(ctx, b, by)
	})
	return nil
}

func (a *Async) dispatch(ctx context.Context, notice, bookingID string, fn func(context.Context) error) {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		a.logger.Warn("notification dropped after shutdown", "notice", notice, "booking_id", bookingID)
		return
	}
	a.wg.Add(1)
	a.mu.Unlock()

	detached := context.WithoutCancel(ctx)
	go func() {
		defer a.wg.Done()
		if err := fn(detached); err != nil {
			a.logger.Error("notification failed", "notice", notice, "booking_id", bookingID, "err", err)
		}
	}()
}

// Drain stops accepting notices and waits for in-flight ones until ctx ends.
func (a *Async) Drain(ctx context.Context) error {
	a.mu.Lock()
	a.closed = true
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
