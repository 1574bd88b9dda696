// Package i18n holds the student-facing message catalog (English and
// Arabic) and the locale-aware date formatting used in notifications.
package i18n

import (
	"embed"
	"fmt"
	"path"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"
)

//go:embed locales/*.yaml
var localeFS embed.FS

const DefaultLocale = "en"

type Locale struct {
	Tag        string            `yaml:"-"`
	Name       string            `yaml:"name"`
	Direction  string            `yaml:"direction"`
	Weekdays   []string          `yaml:"weekdays"`
	Months     []string          `yaml:"months"`
	AM         string            `yaml:"am"`
	PM         string            `yaml:"pm"`
	DateFormat string            `yaml:"date_format"`
	Messages   map[string]string `yaml:"messages"`
}

type Catalog struct {
	locales map[string]*Locale
	tags    []string
	matcher language.Matcher
}

// Load reads every embedded locale. The default locale must be present.
func Load() (*Catalog, error) {
	entries, err := localeFS.ReadDir("locales")
	if err != nil {
		return nil, fmt.Errorf("read locales: %w", err)
	}
	c := &Catalog{locales: map[string]*Locale{}}
	var supported []language.Tag
	// The default goes first so the matcher falls back to it.
	names := []string{DefaultLocale + ".yaml"}
	for _, e := range entries {
		if e.Name() != DefaultLocale+".yaml" {
			names = append(names, e.Name())
		}
	}
	for _, name := range names {
		raw, err := localeFS.ReadFile(path.Join("locales", name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		var loc Locale
		if err := yaml.Unmarshal(raw, &loc); err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		if len(loc.Weekdays) != 7 || len(loc.Months) != 12 {
			return nil, fmt.Errorf("locale %s: need 7 weekdays and 12 months", name)
		}
		loc.Tag = strings.TrimSuffix(name, ".yaml")
		tag, err := language.Parse(loc.Tag)
		if err != nil {
			return nil, fmt.Errorf("locale %s: %w", name, err)
		}
		c.locales[loc.Tag] = &loc
		c.tags = append(c.tags, loc.Tag)
		supported = append(supported, tag)
	}
	c.matcher = language.NewMatcher(supported)
	return c, nil
}

// Supported reports whether tag names a loaded locale exactly.
func (c *Catalog) Supported(tag string) bool {
	_, ok := c.locales[tag]
	return ok
}

func (c *Catalog) Tags() []string {
	return append([]string(nil), c.tags...)
}

// Match picks the best loaded locale for an Accept-Language header value.
func (c *Catalog) Match(acceptLanguage string) string {
	prefs, _, err := language.ParseAcceptLanguage(acceptLanguage)
	if err != nil || len(prefs) == 0 {
		return DefaultLocale
	}
	_, idx, conf := c.matcher.Match(prefs...)
	if conf == language.No {
		return DefaultLocale
	}
	return c.tags[idx]
}

// Locale returns the locale for tag, or the default.
func (c *Catalog) Locale(tag string) *Locale {
	if l, ok := c.locales[tag]; ok {
		return l
	}
	return c.locales[DefaultLocale]
}

func (l *Locale) RTL() bool { return l.Direction == "rtl" }

// T returns the message for key with {placeholders} replaced from args,
// given as name/value pairs. Unknown keys render as the key itself.
func (l *Locale) T(key string, args ...string) string {
	msg, ok := l.Messages[key]
	if !ok {
		return key
	}
	return fill(msg, args...)
}

// FormatDate renders the local calendar date of t in loc.
func (l *Locale) FormatDate(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	return fill(l.DateFormat,
		"weekday", l.Weekdays[lt.Weekday()],
		"month", l.Months[lt.Month()-1],
		"day", strconv.Itoa(lt.Day()),
		"year", strconv.Itoa(lt.Year()),
	)
}

// FormatTime renders the 12-hour wall clock time of t in loc.
func (l *Locale) FormatTime(t time.Time, loc *time.Location) string {
	lt := t.In(loc)
	marker := l.AM
	if lt.Hour() >= 12 {
		marker = l.PM
	}
	h := lt.Hour() % 12
	if h == 0 {
		h = 12
	}
	return fmt.Sprintf("%d:%02d %s", h, lt.Minute(), marker)
}

func fill(msg string, args ...string) string {
	if len(args) == 0 {
		return msg
	}
	pairs := make([]string, 0, len(args))
	for i := 0; i+1 < len(args); i += 2 {
		pairs = append(pairs, "{"+args[i]+"}", args[i+1])
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}
