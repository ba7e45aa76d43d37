package utils

import (
	"fmt"
	"time"
	_ "time/tzdata" // containers often ship without zoneinfo
)

const (
	DefaultTimezone = "Africa/Douala"
	DateLayout      = "2006-01-02"
)

// Calendar answers day questions in one fixed civil timezone,
// independent of the server's local zone.
type Calendar struct {
	loc *time.Location
}

func NewCalendar(timezone string) (*Calendar, error) {
	if timezone == "" {
		timezone = DefaultTimezone
	}
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	return &Calendar{loc: loc}, nil
}

// MustCalendar is NewCalendar for timezones known to exist.
func MustCalendar(timezone string) *Calendar {
	c, err := NewCalendar(timezone)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Calendar) Location() *time.Location {
	return c.loc
}

// DateString formats t as YYYY-MM-DD in the calendar's timezone.
func (c *Calendar) DateString(t time.Time) string {
	return t.In(c.loc).Format(DateLayout)
}

func (c *Calendar) IsMonday(t time.Time) bool {
	return t.In(c.loc).Weekday() == time.Monday
}

// ParseDate parses a YYYY-MM-DD string as midnight in the calendar's timezone.
func (c *Calendar) ParseDate(date string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, date, c.loc)
}
