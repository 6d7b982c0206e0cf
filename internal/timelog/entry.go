package timelog

import (
	"errors"
	"fmt"
	"sort"
	"time"
)

// TimeLayout is the wall-clock format of Entry.Time, second precision.
const TimeLayout = "2006-01-02 15:04:05"

// Kind distinguishes clock-in from clock-out events.
type Kind string

const (
	KindIn  Kind = "in"
	KindOut Kind = "out"
)

// Entry is a single clock event. Hash chains it to the previous entry.
type Entry struct {
	Type Kind   `json:"type"`
	Time string `json:"time"`
	Hash string `json:"hash"`
}

// fields returns the hashed fields of the entry, keyed by their JSON name.
func (e Entry) fields() map[string]string {
	return map[string]string{
		"type": string(e.Type),
		"time": e.Time,
	}
}

// record is a stored entry exactly as read from the file. Every key other
// than "hash" is part of fields.
type record struct {
	fields map[string]string
	hash   string
}

// entry converts a verified record into an Entry. Records carrying keys
// other than "type", "time", and "hash" are rejected.
func (r record) entry() (Entry, error) {
	kind, hasType := r.fields["type"]
	ts, hasTime := r.fields["time"]
	if !hasType || !hasTime || len(r.fields) != 2 {
		keys := make([]string, 0, len(r.fields))
		for k := range r.fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return Entry{}, fmt.Errorf("%w: entry has fields %q, want type and time", ErrStoreUnreadable, keys)
	}
	return Entry{Type: Kind(kind), Time: ts, Hash: r.hash}, nil
}

// ParseTime parses Time in the local time zone.
func (e Entry) ParseTime() (time.Time, error) {
	return time.ParseInLocation(TimeLayout, e.Time, time.Local)
}

// Errors returned by the log. Match them with errors.Is.
var (
	// ErrTampered means a stored digest does not match its recomputed value.
	ErrTampered = errors.New("log file has been tampered with")

	// ErrStoreUnreadable means the file exists but is not a valid log document.
	ErrStoreUnreadable = errors.New("log file is unreadable")

	// ErrNotFound means an explicitly named log file does not exist.
	ErrNotFound = errors.New("log file does not exist")
)
