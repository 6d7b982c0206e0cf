// Package report turns a verified time log into rounded work-session rows
// for payroll.
//
// Entries are paired two at a time (0 with 1, 2 with 3, ...). A pair is a
// session only when it is an "in" followed by an "out"; anything else is
// skipped, and a trailing unpaired entry is dropped. Both ends of a session
// are rounded to the nearest quarter hour, with minute 8 past a boundary
// rounding up.
package report

import (
	"fmt"
	"time"

	"github.com/gobwas/glob"

	"github.com/timeclock/timeclock/internal/timelog"
)

// Header is the column order of the report.
var Header = []string{
	"Date",
	"Day of Week",
	"Start Time",
	"End Time",
	"Rounded Start Time",
	"Rounded End Time",
	"Time Difference",
}

const clockLayout = "15:04:05"

// Session is a clock-in entry paired with the clock-out that follows it.
type Session struct {
	Start timelog.Entry
	End   timelog.Entry
}

// Row is one report line.
type Row struct {
	Date         string
	Weekday      string
	Start        string
	End          string
	RoundedStart string
	RoundedEnd   string

	// Difference is the net rounding drift of the session:
	// (roundedEnd - end) - (roundedStart - start).
	Difference time.Duration
}

// Record returns the row's fields in Header order.
func (r Row) Record() []string {
	return []string{
		r.Date,
		r.Weekday,
		r.Start,
		r.End,
		r.RoundedStart,
		r.RoundedEnd,
		FormatDuration(r.Difference),
	}
}

// Loader is satisfied by *timelog.Store.
type Loader interface {
	Load() ([]timelog.Entry, error)
}

// Generate loads the verified log and builds its report. A tampered log
// fails here; no rows are produced from it.
func Generate(l Loader) ([]Row, error) {
	entries, err := l.Load()
	if err != nil {
		return nil, fmt.Errorf("loading time log: %w", err)
	}
	return Build(entries)
}

// Sessions pairs adjacent entries and keeps the in/out pairs.
func Sessions(entries []timelog.Entry) []Session {
	var sessions []Session
	for i := 0; i+1 < len(entries); i += 2 {
		start, end := entries[i], entries[i+1]
		if start.Type != timelog.KindIn || end.Type != timelog.KindOut {
			continue
		}
		sessions = append(sessions, Session{Start: start, End: end})
	}
	return sessions
}

// Build produces one row per session, in session order.
func Build(entries []timelog.Entry) ([]Row, error) {
	sessions := Sessions(entries)
	rows := make([]Row, 0, len(sessions))

	for _, s := range sessions {
		start, err := s.Start.ParseTime()
		if err != nil {
			return nil, fmt.Errorf("parsing start time %q: %w", s.Start.Time, err)
		}
		end, err := s.End.ParseTime()
		if err != nil {
			return nil, fmt.Errorf("parsing end time %q: %w", s.End.Time, err)
		}

		roundedStart := RoundQuarter(start)
		roundedEnd := RoundQuarter(end)

		rows = append(rows, Row{
			Date:         start.Format("2006-01-02"),
			Weekday:      start.Weekday().String(),
			Start:        start.Format(clockLayout),
			End:          end.Format(clockLayout),
			RoundedStart: roundedStart.Format(clockLayout),
			RoundedEnd:   roundedEnd.Format(clockLayout),
			Difference:   roundedEnd.Sub(end) - roundedStart.Sub(start),
		})
	}
	return rows, nil
}

// RoundQuarter snaps t to the nearest 15-minute boundary by minute:
// minutes 0-7 past a boundary round down, 8-14 round up. Seconds are
// dropped. Rounding up from minute 53 or later rolls into the next hour.
func RoundQuarter(t time.Time) time.Time {
	m := t.Minute()
	rounded := m / 15 * 15
	if m%15 >= 8 {
		rounded += 15
	}
	// time.Date normalizes minute 60 to the next hour.
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), rounded, 0, 0, t.Location())
}

// FormatDuration renders d as [-]H:MM:SS.
func FormatDuration(d time.Duration) string {
	sign := ""
	if d < 0 {
		sign = "-"
		d = -d
	}
	d = d.Truncate(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%s%d:%02d:%02d", sign, h, m, s)
}

// Filter keeps the rows whose Date matches pattern, a glob such as
// "2024-01-*" or "2024-0[12]-*". An empty pattern keeps every row.
func Filter(rows []Row, pattern string) ([]Row, error) {
	if pattern == "" {
		return rows, nil
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid date pattern %q: %w", pattern, err)
	}

	var kept []Row
	for _, r := range rows {
		if g.Match(r.Date) {
			kept = append(kept, r)
		}
	}
	return kept, nil
}
