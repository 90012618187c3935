package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// DateLayout is the only accepted wire and storage encoding of a Date.
const DateLayout = "2006-01-02"

var (
	ErrInvalidDate      = errors.New("date must be YYYY-MM-DD")
	ErrInvalidTimeOfDay = errors.New("time must be HH:MM or HH:MM:SS")
)

// Date is a calendar day without a time zone.  It is held as midnight
// UTC so that comparisons are plain time comparisons.
type Date struct{ t time.Time }

// NewDate builds a Date from its components.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t in t's own location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return NewDate(y, m, d)
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, ErrInvalidDate
	}
	return Date{t: t}, nil
}

func (d Date) IsZero() bool { return d.t.IsZero() }
func (d Date) Time() time.Time { return d.t }
func (d Date) Weekday() time.Weekday { return d.t.Weekday() }
func (d Date) Before(o Date) bool { return d.t.Before(o.t) }
func (d Date) After(o Date) bool { return d.t.After(o.t) }
func (d Date) Equal(o Date) bool { return d.t.Equal(o.t) }
func (d Date) AddDays(n int) Date { return Date{t: d.t.AddDate(0, 0, n)} }
func (d Date) String() string { return d.t.Format(DateLayout) }
func (d Date) At(tod TimeOfDay) time.Time { return d.t.Add(time.Duration(tod) * time.Second) }

func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidDate
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Scan implements sql.Scanner for DATE columns.
func (d *Date) Scan(src any) error {
	switch v := src.(type) {
	case time.Time:
		*d = DateOf(v)
		return nil
	case []byte:
		return d.scanString(string(v))
	case string:
		return d.scanString(v)
	case nil:
		*d = Date{}
		return nil
	}
	return fmt.Errorf("model: cannot scan %T into Date", src)
}

func (d *Date) scanString(s string) error {
	if len(s) > len(DateLayout) {
		s = s[:len(DateLayout)]
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Value implements driver.Valuer.
func (d Date) Value() (driver.Value, error) {
	if d.IsZero() {
		return nil, nil
	}
	return d.String(), nil
}

// TimeOfDay is a wall-clock time as seconds since midnight.
type TimeOfDay int

const endOfDay = TimeOfDay(24 * 60 * 60)

// ParseTimeOfDay accepts HH:MM or HH:MM:SS.  24:00 is accepted as the
// end of the day so that a window may close at midnight.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	s = strings.TrimSpace(s)
	if len(s) != 5 && len(s) != 8 {
		return 0, ErrInvalidTimeOfDay
	}
	pair := func(i int) (int, bool) {
		a, b := s[i], s[i+1]
		if a < '0' || a > '9' || b < '0' || b > '9' {
			return 0, false
		}
		return int(a-'0')*10 + int(b-'0'), true
	}
	h, okH := pair(0)
	m, okM := pair(3)
	sec, okS := 0, true
	if len(s) == 8 {
		if s[5] != ':' {
			return 0, ErrInvalidTimeOfDay
		}
		sec, okS = pair(6)
	}
	if !okH || !okM || !okS || s[2] != ':' || h > 24 || m > 59 || sec > 59 {
		return 0, ErrInvalidTimeOfDay
	}
	t := TimeOfDay(h*3600 + m*60 + sec)
	if t > endOfDay {
		return 0, ErrInvalidTimeOfDay
	}
	return t, nil
}

// MustTimeOfDay is ParseTimeOfDay for constants and tests.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

// TimeOfDayOf returns the wall-clock time of t.
func TimeOfDayOf(t time.Time) TimeOfDay {
	return TimeOfDay(t.Hour()*3600 + t.Minute()*60 + t.Second())
}

func (t TimeOfDay) String() string {
	h, m, s := int(t)/3600, int(t)%3600/60, int(t)%60
	if s == 0 {
		return fmt.Sprintf("%02d:%02d", h, m)
	}
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func (t TimeOfDay) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

func (t *TimeOfDay) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return ErrInvalidTimeOfDay
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Scan implements sql.Scanner for TIME columns, which the MySQL driver
// returns as text even with parseTime enabled.
func (t *TimeOfDay) Scan(src any) error {
	switch v := src.(type) {
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	case time.Time:
		*t = TimeOfDayOf(v)
		return nil
	}
	return fmt.Errorf("model: cannot scan %T into TimeOfDay", src)
}

func (t *TimeOfDay) scanString(s string) error {
	// TIME(6) carries a fractional part.
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	v, err := ParseTimeOfDay(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Value implements driver.Valuer using the HH:MM:SS form.
func (t TimeOfDay) Value() (driver.Value, error) {
	h, m, s := int(t)/3600, int(t)%3600/60, int(t)%60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s), nil
}

// TimeRange is a half-open wall-clock interval [Start, End) within one day.
type TimeRange struct {
	Start TimeOfDay `json:"start_time"`
	End   TimeOfDay `json:"end_time"`
}

// Valid reports whether Start < End.
func (r TimeRange) Valid() bool { return r.Start < r.End }

// Overlaps reports whether r and o share any instant.  Touching
// boundaries do not overlap.
func (r TimeRange) Overlaps(o TimeRange) bool { return r.Start < o.End && o.Start < r.End }

// Window is a half-open absolute interval [Start, End).
type Window struct {
	Start time.Time `json:"start_time"`
	End   time.Time `json:"end_time"`
}

// Valid reports whether Start is strictly before End.
func (w Window) Valid() bool { return w.Start.Before(w.End) }

// Overlaps reports whether w and o share any instant.
func (w Window) Overlaps(o Window) bool { return w.Start.Before(o.End) && o.Start.Before(w.End) }

// Contains reports whether t lies in [Start, End).
func (w Window) Contains(t time.Time) bool { return !t.Before(w.Start) && t.Before(w.End) }

// DayOfWeek is the canonical uppercase weekday name used by lab slots.
type DayOfWeek string

const (
	Monday    DayOfWeek = "MONDAY"
	Tuesday   DayOfWeek = "TUESDAY"
	Wednesday DayOfWeek = "WEDNESDAY"
	Thursday  DayOfWeek = "THURSDAY"
	Friday    DayOfWeek = "FRIDAY"
	Saturday  DayOfWeek = "SATURDAY"
	Sunday    DayOfWeek = "SUNDAY"
)

var weekdays = map[DayOfWeek]time.Weekday{
	Monday: time.Monday, Tuesday: time.Tuesday, Wednesday: time.Wednesday,
	Thursday: time.Thursday, Friday: time.Friday, Saturday: time.Saturday, Sunday: time.Sunday,
}

// ParseDayOfWeek normalises a weekday name.
func ParseDayOfWeek(s string) (DayOfWeek, bool) {
	d := DayOfWeek(strings.ToUpper(strings.TrimSpace(s)))
	_, ok := weekdays[d]
	return d, ok
}

// Weekday converts to the time package's representation.
func (d DayOfWeek) Weekday() time.Weekday { return weekdays[d] }

// Matches reports whether date falls on this weekday.
func (d DayOfWeek) Matches(date Date) bool {
	w, ok := weekdays[d]
	return ok && date.Weekday() == w
}
