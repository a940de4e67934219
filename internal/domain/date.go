package domain

import (
	"fmt"
	"time"
)

// DateFormat is the ISO-8601 layout used to store and print dates.
const DateFormat = "2006-01-02"

// Date is a calendar day with no time-of-day component.
type Date struct {
	y int
	m time.Month
	d int
}

// NewDate returns a normalized Date, so NewDate(2025, 1, 32) is February 1st.
func NewDate(year int, month time.Month, day int) Date {
	t := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	y, m, d := t.Date()
	return Date{y, m, d}
}

// DateOf returns the UTC calendar day of t. Trades, challenge periods and the
// server clock all count days in UTC.
func DateOf(t time.Time) Date {
	return NewDate(t.UTC().Date())
}

// ParseDate parses a YYYY-MM-DD string.
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(DateFormat, s)
	if err != nil {
		return Date{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return DateOf(t), nil
}

func (d Date) time() time.Time { return time.Date(d.y, d.m, d.d, 0, 0, 0, 0, time.UTC) }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time { return d.time() }

func (d Date) IsZero() bool { return d.y == 0 && d.m == 0 && d.d == 0 }

func (d Date) Year() int             { return d.y }
func (d Date) Month() time.Month     { return d.m }
func (d Date) Day() int              { return d.d }
func (d Date) Weekday() time.Weekday { return d.time().Weekday() }

// ISOWeek returns the ISO 8601 year and week number in which d occurs.
func (d Date) ISOWeek() (year, week int) { return d.time().ISOWeek() }

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date { return NewDate(d.y, d.m, d.d+n) }

func (d Date) Before(x Date) bool { return d.time().Before(x.time()) }
func (d Date) After(x Date) bool  { return d.time().After(x.time()) }
func (d Date) Equal(x Date) bool  { return d == x }

// DaysSince returns the number of calendar days from x to d.
func (d Date) DaysSince(x Date) int {
	return int(d.time().Sub(x.time()).Hours() / 24)
}

func (d Date) String() string { return d.time().Format(DateFormat) }

func (d Date) MarshalText() ([]byte, error) {
	if d.IsZero() {
		return []byte{}, nil
	}
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	v, err := ParseDate(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// StartOfISOWeek returns the Monday of the ISO week containing d.
func (d Date) StartOfISOWeek() Date {
	offset := (int(d.Weekday()) + 6) % 7 // Monday=0 ... Sunday=6
	return d.AddDays(-offset)
}

// Period is an inclusive range of calendar days.
type Period struct {
	Start Date `json:"start"`
	End   Date `json:"end"`
}

// DailyPeriod covers exactly one day.
func DailyPeriod(d Date) Period { return Period{Start: d, End: d} }

// WeeklyPeriod covers the ISO week (Monday to Sunday) containing d.
func WeeklyPeriod(d Date) Period {
	start := d.StartOfISOWeek()
	return Period{Start: start, End: start.AddDays(6)}
}

// Validate rejects empty or inverted ranges.
func (p Period) Validate() error {
	if p.Start.IsZero() || p.End.IsZero() {
		return fmt.Errorf("period has a zero bound: %w", ErrOutOfRange)
	}
	if p.End.Before(p.Start) {
		return fmt.Errorf("period ends %s before it starts %s: %w", p.End, p.Start, ErrOutOfRange)
	}
	return nil
}

// Contains reports whether d falls inside the period.
func (p Period) Contains(d Date) bool {
	return !d.Before(p.Start) && !d.After(p.End)
}

// Days returns the period length in days.
func (p Period) Days() int { return p.End.DaysSince(p.Start) + 1 }

// Closed reports whether the period is over as of day d.
func (p Period) Closed(d Date) bool { return d.After(p.End) }

func (p Period) String() string { return p.Start.String() + ".." + p.End.String() }
