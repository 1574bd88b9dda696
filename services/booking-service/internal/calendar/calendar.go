// Package calendar renders "add to calendar" links and iCalendar files for
// a booked lesson.
package calendar

import (
	"net/url"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"

	"github.com/md-rashed-zaman/lessonbook/services/booking-service/internal/model"
)

const (
	DefaultDuration = 30 * time.Minute
	productID       = "-//lessonbook//booking-service//EN"
	compactLayout   = "20060102T150405Z"
	outlookLayout   = "2006-01-02T15:04:05.000Z"
)

type Event struct {
	UID         string
	Title       string
	Description string
	Location    string
	Start       time.Time
	Duration    time.Duration

	OrganizerEmail string
	OrganizerName  string
	AttendeeEmail  string
	AttendeeName   string
}

// Links are the three ways a student can add the lesson to a calendar.
type Links struct {
	Google  string `json:"google"`
	Outlook string `json:"outlook"`
	ICS     string `json:"ics"`
}

func (e Event) end() time.Time {
	d := e.Duration
	if d <= 0 {
		d = DefaultDuration
	}
	return e.Start.Add(d)
}

func GoogleLink(e Event) string {
	q := url.Values{}
	q.Set("action", "TEMPLATE")
	q.Set("text", e.Title)
	q.Set("dates", e.Start.UTC().Format(compactLayout)+"/"+e.end().UTC().Format(compactLayout))
	q.Set("details", e.Description)
	q.Set("location", e.Location)
	return "https://calendar.google.com/calendar/render?" + q.Encode()
}

func OutlookLink(e Event) string {
	q := url.Values{}
	q.Set("path", "/calendar/action/compose")
	q.Set("rru", "addevent")
	q.Set("startdt", e.Start.UTC().Format(outlookLayout))
	q.Set("enddt", e.end().UTC().Format(outlookLayout))
	q.Set("subject", e.Title)
	q.Set("body", e.Description)
	q.Set("location", e.Location)
	return "https://outlook.live.com/calendar/0/deeplink/compose?" + q.Encode()
}

// ICS serializes e as a single-event VCALENDAR. stamp becomes DTSTAMP.
func ICS(e Event, stamp time.Time) string {
	cal := ical.NewCalendar()
	cal.SetProductId(productID)
	cal.SetMethod(ical.MethodPublish)

	ev := cal.AddEvent(e.UID)
	ev.SetDtStampTime(stamp.UTC())
	ev.SetStartAt(e.Start.UTC())
	ev.SetEndAt(e.end().UTC())
	ev.SetSummary(e.Title)
	if e.Description != "" {
		ev.SetDescription(e.Description)
	}
	if e.Location != "" {
		ev.SetLocation(e.Location)
		if strings.HasPrefix(e.Location, "http") {
			ev.SetURL(e.Location)
		}
	}
	if e.OrganizerEmail != "" {
		ev.SetOrganizer("mailto:"+e.OrganizerEmail, ical.WithCN(e.OrganizerName))
	}
	if e.AttendeeEmail != "" {
		ev.AddAttendee("mailto:"+e.AttendeeEmail, ical.WithCN(e.AttendeeName))
	}
	return cal.Serialize()
}

// ICSDataURI embeds the calendar file in a data: URL, usable as a plain
// link in email clients that strip attachments.
func ICSDataURI(e Event, stamp time.Time) string {
	return "data:text/calendar;charset=utf8," + url.PathEscape(ICS(e, stamp))
}

// LinksFor builds all three links. icsURL, when set, replaces the data URI
// with a hosted download.
func LinksFor(e Event, stamp time.Time, icsURL string) Links {
	l := Links{Google: GoogleLink(e), Outlook: OutlookLink(e), ICS: icsURL}
	if l.ICS == "" {
		l.ICS = ICSDataURI(e, stamp)
	}
	return l
}

// ForBooking describes b as a calendar event organized by the teacher.
func ForBooking(b model.Booking, teacherName, teacherEmail string) Event {
	title := b.ServiceType
	if teacherName != "" {
		title += " with " + teacherName
	}
	desc := "Meeting link: " + b.MeetingLink
	if b.Message != "" {
		desc += "\n\n" + b.Message
	}
	return Event{
		UID:            b.ID + "@lessonbook",
		Title:          title,
		Description:    desc,
		Location:       b.MeetingLink,
		Start:          b.StartTime,
		Duration:       model.SlotDuration,
		OrganizerEmail: teacherEmail,
		OrganizerName:  teacherName,
		AttendeeEmail:  b.StudentEmail,
		AttendeeName:   b.StudentName,
	}
}
