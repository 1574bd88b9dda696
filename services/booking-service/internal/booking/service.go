package booking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	otelx "github.com/md-rashed-zaman/lessonbook/libs/otel"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/apperror"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/meeting"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/notify"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/slotclock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/storage"
)

// Request is a student's booking submission.
type Request struct {
	ServiceType       string    `validate:"required,max=200"`
	StudentName       string    `validate:"required,max=200"`
	StudentEmail      string    `validate:"required,email,max=320"`
	Message           string    `validate:"max=4000"`
	StartTime         time.Time `validate:"required"`
	StudentTimezone   string    `validate:"max=64"`
	PreferredLanguage string    `validate:"max=16"`
}

type Config struct {
	// TeacherLocation defines the slot grid booked instants must sit on.
	TeacherLocation *time.Location
	// Supported reports whether a language tag has a message catalog.
	Supported       func(tag string) bool
	DefaultLanguage string
}

type Service struct {
	bookings storage.BookingStore
	meeting  meeting.Provider
	notifier notify.Notifier
	clock    clock.Clock
	logger   *slog.Logger
	cfg      Config
	validate *validator.Validate
	tracer   trace.Tracer
	newID    func() string
}

func NewService(bookings storage.BookingStore, provider meeting.Provider, notifier notify.Notifier, clk clock.Clock, logger *slog.Logger, cfg Config) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.TeacherLocation == nil {
		cfg.TeacherLocation = time.UTC
	}
	if cfg.DefaultLanguage == "" {
		cfg.DefaultLanguage = "en"
	}
	if cfg.Supported == nil {
		def := cfg.DefaultLanguage
		cfg.Supported = func(tag string) bool { return tag == def }
	}
	return &Service{
		bookings: bookings,
		meeting:  provider,
		notifier: notifier,
		clock:    clk,
		logger:   logger,
		cfg:      cfg,
		validate: validator.New(),
		tracer:   otelx.Tracer("booking-service/booking"),
		newID:    uuid.NewString,
	}
}

// Book validates req, claims the instant with a single atomic insert, and
// notifies both parties. Nothing is written when validation fails; after a
// successful claim no later failure undoes the booking. The meeting provider
// runs only for the request that won the claim.
func (s *Service) Book(ctx context.Context, req Request) (*model.Booking, error) {
	ctx, span := s.tracer.Start(ctx, "booking.Book")
	defer span.End()

	b, err := s.prepare(req)
	if err != nil {
		span.SetStatus(codes.Error, "invalid input")
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.start_time", b.StartTime.Format(time.RFC3339)))

	b.MeetingLink = meeting.Placeholder
	if err := s.bookings.Create(ctx, b); err != nil {
		span.RecordError(err)
		if errors.Is(err, apperror.ErrSlotConflict) {
			span.SetStatus(codes.Error, "slot conflict")
			return nil, err
		}
		span.SetStatus(codes.Error, "claim failed")
		var ae *apperror.Error
		if !errors.As(err, &ae) {
			err = apperror.Infrastructure("claim slot", err)
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("booking.id", b.ID))

	if link := s.meetingLink(ctx, b.ServiceType, b.StartTime); link != meeting.Placeholder {
		if err := s.bookings.SetMeetingLink(ctx, b.ID, link); err != nil {
			s.logger.Error("meeting link not saved, keeping placeholder", "booking_id", b.ID, "err", err)
		} else {
			b.MeetingLink = link
		}
	}
	s.logger.Info("booking created", "booking_id", b.ID, "start_time", b.StartTime, "service_type", b.ServiceType)

	if err := s.notifier.Booked(ctx, *b); err != nil {
		s.logger.Error("booking notification failed", "booking_id", b.ID, "err", err)
	}
	return b, nil
}

func (s *Service) prepare(req Request) (*model.Booking, error) {
	req.ServiceType = strings.TrimSpace(req.ServiceType)
	req.StudentName = strings.TrimSpace(req.StudentName)
	req.StudentEmail = strings.TrimSpace(req.StudentEmail)
	req.Message = strings.TrimSpace(req.Message)
	req.StudentTimezone = strings.TrimSpace(req.StudentTimezone)
	req.PreferredLanguage = strings.ToLower(strings.TrimSpace(req.PreferredLanguage))

	if err := s.validate.Struct(req); err != nil {
		return nil, validationError(err)
	}

	start := model.NormalizeInstant(req.StartTime)
	if !slotclock.OnGrid(start, s.cfg.TeacherLocation) {
		return nil, apperror.InvalidInput("start_time is not on the 30-minute slot grid")
	}

	if req.StudentTimezone == "" {
		req.StudentTimezone = "UTC"
	}
	if _, err := time.LoadLocation(req.StudentTimezone); err != nil {
		return nil, apperror.InvalidInput(fmt.Sprintf("unknown time zone %q", req.StudentTimezone))
	}

	if req.PreferredLanguage == "" {
		req.PreferredLanguage = s.cfg.DefaultLanguage
	}
	if !s.cfg.Supported(req.PreferredLanguage) {
		return nil, apperror.InvalidInput(fmt.Sprintf("unsupported language %q", req.PreferredLanguage))
	}

	return &model.Booking{
		ID:                s.newID(),
		StartTime:         start,
		ServiceType:       req.ServiceType,
		StudentName:       req.StudentName,
		StudentEmail:      req.StudentEmail,
		Message:           req.Message,
		StudentTimezone:   req.StudentTimezone,
		PreferredLanguage: req.PreferredLanguage,
		CreatedAt:         model.NormalizeInstant(s.clock.Now()),
	}, nil
}

// meetingLink never fails: a provider error degrades to the placeholder.
func (s *Service) meetingLink(ctx context.Context, serviceType string, instant time.Time) string {
	if s.meeting == nil {
		return meeting.Placeholder
	}
	link, err := s.meeting.Generate(ctx, serviceType, instant)
	if err != nil || strings.TrimSpace(link) == "" {
		s.logger.Warn("meeting link unavailable, using placeholder", "start_time", instant, "err", err)
		return meeting.Placeholder
	}
	return link
}

// Get returns a booking by id.
func (s *Service) Get(ctx context.Context, id string) (*model.Booking, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.InvalidInput("booking id is required")
	}
	return s.bookings.Get(ctx, id)
}

// List returns bookings ascending; a nil range lists all.
func (s *Service) List(ctx context.Context, r *model.Range) ([]model.Booking, error) {
	if r != nil && !r.Valid() {
		return nil, apperror.InvalidInput("start must not be after end")
	}
	return s.bookings.List(ctx, r)
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return apperror.InvalidInput("invalid booking request")
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		field := fieldName(fe.Field())
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, field+" is required")
		case "email":
			msgs = append(msgs, field+" must be a valid email address")
		case "max":
			msgs = append(msgs, field+" is too long")
		default:
			msgs = append(msgs, field+" is invalid")
		}
	}
	return apperror.InvalidInput(strings.Join(msgs, "; "))
}

var fieldNames = map[string]string{
	"ServiceType":       "service_type",
	"StudentName":       "student_name",
	"StudentEmail":      "student_email",
	"Message":           "message",
	"StartTime":         "start_time",
	"StudentTimezone":   "student_timezone",
	"PreferredLanguage": "preferred_language",
}

func fieldName(f string) string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return f
}
