package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"strings"
	"time"
	texttemplate "text/template"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/calendar"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/clock"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/email"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/i18n"
	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

var (
	htmlTemplate = template.Must(template.ParseFS(templateFS, "templates/message.html.tmpl"))
	textTemplate = texttemplate.Must(texttemplate.ParseFS(templateFS, "templates/message.txt.tmpl"))
)

const (
	colorConfirmed = template.CSS("#059669")
	colorCancelled = template.CSS("#dc2626")
	colorLink      = template.CSS("#2563eb")
)

type EmailConfig struct {
	TeacherEmail    string
	TeacherName     string
	TeacherLocation *time.Location
	// PublicBaseURL prefixes cancel, rebook and .ics links.
	PublicBaseURL string
}

// EmailNotifier sends the student's notices in their language and time
// zone, and the teacher's in English in the teacher's zone.
type EmailNotifier struct {
	sender  email.Sender
	catalog *i18n.Catalog
	cfg     EmailConfig
	clock   clock.Clock
}

func NewEmailNotifier(sender email.Sender, catalog *i18n.Catalog, cfg EmailConfig, clk clock.Clock) *EmailNotifier {
	if cfg.TeacherLocation == nil {
		cfg.TeacherLocation = time.UTC
	}
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	if clk == nil {
		clk = clock.System{}
	}
	return &EmailNotifier{sender: sender, catalog: catalog, cfg: cfg, clock: clk}
}

type row struct {
	Label string
	Value string
	Href  template.URL
}

type link struct {
	Label string
	Href  template.URL
}

type view struct {
	Dir         string
	Lang        string
	Color       template.CSS
	Heading     string
	Greeting    string
	Intro       string
	Rows        []row
	LinksTitle  string
	Links       []link
	ActionHint  string
	Action      *link
	ActionColor template.CSS
	Outro       string
	Signoff     string
	Platform    string
}

func (n *EmailNotifier) Booked(ctx context.Context, b model.Booking) error {
	var errs []error
	if err := n.send(ctx, n.studentConfirmation(b)); err != nil {
		errs = append(errs, fmt.Errorf("student confirmation: %w", err))
	}
	if n.cfg.TeacherEmail != "" {
		if err := n.send(ctx, n.teacherBooked(b)); err != nil {
			errs = append(errs, fmt.Errorf("teacher notice: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (n *EmailNotifier) Cancelled(ctx context.Context, b model.Booking, by Actor) error {
	var errs []error
	if by == ActorTeacher {
		if err := n.send(ctx, n.studentCancelledByTeacher(b)); err != nil {
			errs = append(errs, fmt.Errorf("student notice: %w", err))
		}
		return errors.Join(errs...)
	}
	if n.cfg.TeacherEmail != "" {
		if err := n.send(ctx, n.teacherCancelled(b)); err != nil {
			errs = append(errs, fmt.Errorf("teacher notice: %w", err))
		}
	}
	if err := n.send(ctx, n.studentCancelled(b)); err != nil {
		errs = append(errs, fmt.Errorf("student confirmation: %w", err))
	}
	return errors.Join(errs...)
}

type outgoing struct {
	to          string
	subject     string
	view        view
	attachments []email.Attachment
}

func (n *EmailNotifier) send(ctx context.Context, o outgoing) error {
	var html, text bytes.Buffer
	if err := htmlTemplate.Execute(&html, o.view); err != nil {
		return fmt.Errorf("render html: %w", err)
	}
	if err := textTemplate.Execute(&text, o.view); err != nil {
		return fmt.Errorf("render text: %w", err)
	}
	return n.sender.Send(ctx, email.Message{
		To:          o.to,
		Subject:     o.subject,
		HTML:        html.String(),
		Text:        text.String(),
		Attachments: o.attachments,
	})
}

func (n *EmailNotifier) studentConfirmation(b model.Booking) outgoing {
	loc := n.catalog.Locale(b.PreferredLanguage)
	tz := studentLocation(b)
	event := calendar.ForBooking(b, n.cfg.TeacherName, n.cfg.TeacherEmail)
	links := calendar.LinksFor(event, n.clock.Now(), n.icsURL(b))

	v := n.base(loc, colorConfirmed)
	v.Heading = loc.T("confirmation.heading")
	v.Greeting = loc.T("confirmation.greeting", "name", b.StudentName)
	v.Intro = loc.T("confirmation.intro")
	v.Rows = lessonRows(loc, b, tz)
	v.LinksTitle = loc.T("calendar.add")
	v.Links = []link{
		{Label: "Google Calendar", Href: template.URL(links.Google)},
		{Label: "Outlook", Href: template.URL(links.Outlook)},
		{Label: loc.T("calendar.ics"), Href: template.URL(links.ICS)},
	}
	if cancel := n.cancelURL(b); cancel != "" {
		v.ActionHint = loc.T("cancel.hint")
		v.Action = &link{Label: loc.T("cancel.link"), Href: template.URL(cancel)}
	}
	return outgoing{
		to:      b.StudentEmail,
		subject: loc.T("confirmation.subject", "service", b.ServiceType),
		view:    v,
		attachments: []email.Attachment{{
			Filename:    "lesson.ics",
			ContentType: "text/calendar; charset=utf-8; method=PUBLISH",
			Data:        []byte(calendar.ICS(event, n.clock.Now())),
		}},
	}
}

func (n *EmailNotifier) teacherBooked(b model.Booking) outgoing {
	loc := n.catalog.Locale(i18n.DefaultLocale)
	event := calendar.ForBooking(b, n.cfg.TeacherName, n.cfg.TeacherEmail)
	links := calendar.LinksFor(event, n.clock.Now(), n.icsURL(b))

	v := n.base(loc, colorConfirmed)
	v.Heading = loc.T("teacher.booked.heading")
	v.Intro = loc.T("teacher.booked.intro", "name", b.StudentName)
	v.Rows = append(studentRows(loc, b), lessonRows(loc, b, n.cfg.TeacherLocation)...)
	if b.Message != "" {
		v.Rows = append(v.Rows, row{Label: loc.T("label.message"), Value: b.Message})
	}
	v.LinksTitle = loc.T("calendar.add")
	v.Links = []link{
		{Label: "Google Calendar", Href: template.URL(links.Google)},
		{Label: "Outlook", Href: template.URL(links.Outlook)},
		{Label: loc.T("calendar.ics"), Href: template.URL(links.ICS)},
	}
	return outgoing{
		to:      n.cfg.TeacherEmail,
		subject: loc.T("teacher.booked.subject", "service", b.ServiceType, "name", b.StudentName),
		view:    v,
	}
}

func (n *EmailNotifier) teacherCancelled(b model.Booking) outgoing {
	loc := n.catalog.Locale(i18n.DefaultLocale)
	v := n.base(loc, colorCancelled)
	v.Heading = loc.T("teacher.cancelled.heading")
	v.Intro = loc.T("teacher.cancelled.intro", "name", b.StudentName)
	v.Rows = append(studentRows(loc, b), lessonRows(loc, b, n.cfg.TeacherLocation)[:3]...)
	return outgoing{
		to:      n.cfg.TeacherEmail,
		subject: loc.T("teacher.cancelled.subject", "service", b.ServiceType, "name", b.StudentName),
		view:    v,
	}
}

func (n *EmailNotifier) studentCancelled(b model.Booking) outgoing {
	loc := n.catalog.Locale(b.PreferredLanguage)
	v := n.base(loc, colorCancelled)
	v.Heading = loc.T("cancelled.heading")
	v.Greeting = loc.T("confirmation.greeting", "name", b.StudentName)
	v.Intro = loc.T("cancelled.intro")
	v.Rows = lessonRows(loc, b, studentLocation(b))[:3]
	v.Outro = loc.T("cancelled.outro")
	return outgoing{
		to:      b.StudentEmail,
		subject: loc.T("cancelled.subject", "service", b.ServiceType),
		view:    v,
	}
}

func (n *EmailNotifier) studentCancelledByTeacher(b model.Booking) outgoing {
	loc := n.catalog.Locale(b.PreferredLanguage)
	tz := studentLocation(b)
	v := n.base(loc, colorCancelled)
	v.Heading = loc.T("cancelled.heading")
	v.Greeting = loc.T("confirmation.greeting", "name", b.StudentName)
	v.Intro = loc.T("cancelled_by_teacher.intro")
	v.Rows = lessonRows(loc, b, tz)[:3]
	if n.cfg.PublicBaseURL != "" {
		v.Action = &link{Label: loc.T("cancelled_by_teacher.rebook"), Href: template.URL(n.cfg.PublicBaseURL + "/" + loc.Tag)}
		v.ActionColor = colorLink
	}
	v.Outro = loc.T("cancelled.outro")
	return outgoing{
		to:      b.StudentEmail,
		subject: loc.T("cancelled_by_teacher.subject", "date", loc.FormatDate(b.StartTime, tz)),
		view:    v,
	}
}

func (n *EmailNotifier) base(loc *i18n.Locale, color template.CSS) view {
	dir := "ltr"
	if loc.RTL() {
		dir = "rtl"
	}
	return view{
		Dir:         dir,
		Lang:        loc.Tag,
		Color:       color,
		ActionColor: colorCancelled,
		Signoff:     loc.T("signoff"),
		Platform:    loc.T("platform"),
	}
}

func (n *EmailNotifier) cancelURL(b model.Booking) string {
	if n.cfg.PublicBaseURL == "" {
		return ""
	}
	return CancelURL(n.cfg.PublicBaseURL, b)
}

func (n *EmailNotifier) icsURL(b model.Booking) string {
	if n.cfg.PublicBaseURL == "" {
		return ""
	}
	return ICSURL(n.cfg.PublicBaseURL, b.ID)
}

// CancelURL is the student-facing cancellation page for b.
func CancelURL(baseURL string, b model.Booking) string {
	lang := b.PreferredLanguage
	if lang == "" {
		lang = i18n.DefaultLocale
	}
	return strings.TrimRight(baseURL, "/") + "/" + lang + "/cancel/" + b.ID
}

// ICSURL is the hosted calendar file for booking id.
func ICSURL(baseURL, id string) string {
	return strings.TrimRight(baseURL, "/") + "/api/v1/bookings/" + id + "/calendar.ics"
}

// lessonRows are service, date, time and meeting link, in that order.
func lessonRows(loc *i18n.Locale, b model.Booking, tz *time.Location) []row {
	return []row{
		{Label: loc.T("label.service"), Value: b.ServiceType},
		{Label: loc.T("label.date"), Value: loc.FormatDate(b.StartTime, tz)},
		{Label: loc.T("label.time"), Value: loc.FormatTime(b.StartTime, tz) + " (" + tz.String() + ")"},
		{Label: loc.T("label.meeting"), Value: loc.T("meeting.join"), Href: template.URL(b.MeetingLink)},
	}
}

func studentRows(loc *i18n.Locale, b model.Booking) []row {
	return []row{
		{Label: loc.T("label.student"), Value: b.StudentName},
		{Label: loc.T("label.email"), Value: b.StudentEmail, Href: template.URL("mailto:" + b.StudentEmail)},
		{Label: loc.T("label.timezone"), Value: b.StudentTimezone},
	}
}

func studentLocation(b model.Booking) *time.Location {
	if loc, err := time.LoadLocation(b.StudentTimezone); err == nil && b.StudentTimezone != "" {
		return loc
	}
	return time.UTC
}
