package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/md-rashed-zaman/lessonbook/libs/auth"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage/memory"
)

func TestCanCancelBoundary(t *testing.T) {
	b := model.Booking{StartTime: time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)}
	if !CanCancel(b, b.StartTime.Add(-time.Hour)) {
		t.Fatal("expected cancel allowed at exactly one hour")
	}
	if CanCancel(b, b.StartTime.Add(-59*time.Minute)) {
		t.Fatal("expected cancel refused at 59 minutes")
	}
}

func TestCancelByStudent(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &recordingNotifier{}
	svc := newService(store, n, nil)

	b, err := svc.Book(ctx, request(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	got, err := svc.CancelByStudent(ctx, b.ID)
	if err != nil {
		t.Fatalf("CancelByStudent: %v", err)
	}
	if got.ID != b.ID {
		t.Fatalf("expected cancelled booking %s, got %s", b.ID, got.ID)
	}
	if found, _ := store.Find(ctx, b.StartTime); found != nil {
		t.Fatal("booking should be gone")
	}
	if len(n.cancelled) != 1 || n.cancelled[0] != notify.ActorStudent {
		t.Fatalf("expected one student cancellation notice, got %v", n.cancelled)
	}

	if _, err := svc.CancelByStudent(ctx, b.ID); !errors.Is(err, apperror.ErrNotFound) {
		t.Fatalf("expected not found on second cancel, got %v", err)
	}
	if _, err := svc.CancelByStudent(ctx, ""); !errors.Is(err, apperror.ErrInvalidInput) {
		t.Fatalf("expected invalid input for empty id, got %v", err)
	}
}

func TestCancelByAdminIgnoresWindow(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	n := &recordingNotifier{}
	svc := newService(store, n, nil)

	b, err := svc.Book(ctx, request(now.Add(30*time.Minute)))
	if err != nil {
		t.Fatalf("Book: %v", err)
	}
	if _, err := svc.CancelByAdmin(ctx, auth.Principal{}, b.ID); !errors.Is(err, apperror.ErrUnauthorized) {
		t.Fatalf("expected unauthorized without a principal, got %v", err)
	}
	admin := auth.Principal{Subject: "teacher", Role: auth.RoleAdmin}
	if _, err := svc.CancelByAdmin(ctx, admin, b.ID); err != nil {
		t.Fatalf("CancelByAdmin: %v", err)
	}
	if len(n.cancelled) != 1 || n.cancelled[0] != notify.ActorTeacher {
		t.Fatalf("expected one teacher cancellation notice, got %v", n.cancelled)
	}
}
