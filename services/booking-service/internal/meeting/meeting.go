// Package meeting produces the video-call link stored on a booking.
package meeting

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"
)

// Placeholder is stored when no link can be generated so the booking still
// stands and the teacher can fix the link by hand.
const Placeholder = "https://meet.google.com/YOUR-LINK-HERE"

var ErrNotConfigured = errors.New("meeting link not configured")

type Provider interface {
	Generate(ctx context.Context, serviceType string, instant time.Time) (string, error)
}

// Static hands out the teacher's fixed Google Meet room.
type Static struct {
	Link string
}

func (s Static) Generate(context.Context, string, time.Time) (string, error) {
	if strings.TrimSpace(s.Link) == "" {
		return "", ErrNotConfigured
	}
	return s.Link, nil
}

// Rooms derives one room per slot from a base URL, e.g. a Jitsi server.
type Rooms struct {
	BaseURL string
}

func (r Rooms) Generate(_ context.Context, serviceType string, instant time.Time) (string, error) {
	base := strings.TrimRight(strings.TrimSpace(r.BaseURL), "/")
	if base == "" {
		return "", ErrNotConfigured
	}
	name := "lesson-" + instant.UTC().Format("20060102-1504")
	if s := slug(serviceType); s != "" {
		name += "-" + s
	}
	return base + "/" + name, nil
}

// NewProvider selects a provider by name: "static" (default) or "room".
func NewProvider(kind, staticLink, roomBaseURL string) (Provider, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "static":
		return Static{Link: staticLink}, nil
	case "room", "rooms":
		return Rooms{BaseURL: roomBaseURL}, nil
	default:
		return nil, fmt.Errorf("unknown meeting provider %q", kind)
	}
}

func slug(s string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
		if b.Len() >= 32 {
			break
		}
	}
	return strings.Trim(b.String(), "-")
}
