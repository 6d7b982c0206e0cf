package clock

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/timeclock/timeclock/internal/timelog"
)

func fixedClock(times ...string) func() time.Time {
	i := 0
	return func() time.Time {
		ts, err := time.ParseInLocation(timelog.TimeLayout, times[i], time.Local)
		if err != nil {
			panic(err)
		}
		if i < len(times)-1 {
			i++
		}
		return ts
	}
}

func newEngine(t *testing.T, times ...string) (*Engine, *timelog.Store) {
	t.Helper()
	store, err := timelog.Open(filepath.Join(t.TempDir(), "time_log.json"), timelog.Options{Now: fixedClock(times...)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	eng, err := Open(store)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	return eng, store
}

func TestEngine_InitialStateOut(t *testing.T) {
	eng, _ := newEngine(t, "2024-01-01 09:00:00")
	if eng.State() != StateOut {
		t.Errorf("expected initial state Out, got %s", eng.State())
	}
}

func TestEngine_ClockOutFirstFails(t *testing.T) {
	eng, store := newEngine(t, "2024-01-01 09:00:00")

	_, err := eng.ClockOut()
	if !errors.Is(err, ErrSequence) {
		t.Fatalf("expected ErrSequence, got %v", err)
	}
	if err.Error() != "must clock in before clocking out" {
		t.Errorf("unexpected message %q", err.Error())
	}

	// The rejected call never reached the log.
	if _, statErr := os.Stat(store.Path()); !os.IsNotExist(statErr) {
		t.Error("log file should not exist after a rejected call")
	}
}

func TestEngine_DoubleClockInFails(t *testing.T) {
	eng, _ := newEngine(t, "2024-01-01 09:00:00", "2024-01-01 09:05:00")

	if _, err := eng.ClockIn(); err != nil {
		t.Fatal(err)
	}
	_, err := eng.ClockIn()

	var seqErr *SequenceError
	if !errors.As(err, &seqErr) {
		t.Fatalf("expected *SequenceError, got %v", err)
	}
	if seqErr.State != StateIn || seqErr.Attempt != timelog.KindIn {
		t.Errorf("unexpected error fields: %+v", seqErr)
	}
	if err.Error() != "must clock out before clocking in again" {
		t.Errorf("unexpected message %q", err.Error())
	}
	if len(eng.Entries()) != 1 {
		t.Errorf("rejected call should not add entries, got %d", len(eng.Entries()))
	}
}

func TestEngine_InThenOutReturnsToOut(t *testing.T) {
	eng, store := newEngine(t, "2024-01-01 09:07:00", "2024-01-01 17:08:00")

	ts, err := eng.ClockIn()
	if err != nil {
		t.Fatal(err)
	}
	if ts != "2024-01-01 09:07:00" {
		t.Errorf("clock in time: got %q", ts)
	}
	if eng.State() != StateIn {
		t.Errorf("expected In after clock in, got %s", eng.State())
	}

	ts, err = eng.ClockOut()
	if err != nil {
		t.Fatal(err)
	}
	if ts != "2024-01-01 17:08:00" {
		t.Errorf("clock out time: got %q", ts)
	}
	if eng.State() != StateOut {
		t.Errorf("expected Out after clock out, got %s", eng.State())
	}

	if err := store.Verify(); err != nil {
		t.Errorf("engine-written log should verify: %v", err)
	}
}

func TestEngine_ResumesStateFromDisk(t *testing.T) {
	eng, store := newEngine(t, "2024-01-01 09:00:00")
	if _, err := eng.ClockIn(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(store)
	if err != nil {
		t.Fatal(err)
	}
	if reopened.State() != StateIn {
		t.Errorf("expected In after reopening, got %s", reopened.State())
	}
}

func TestEngine_OpenTamperedLogFails(t *testing.T) {
	eng, store := newEngine(t, "2024-01-01 09:00:00")
	if _, err := eng.ClockIn(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(store.Path())
	if err != nil {
		t.Fatal(err)
	}
	forged := strings.Replace(string(data), "09:00:00", "08:00:00", 1)
	if err := os.WriteFile(store.Path(), []byte(forged), 0o644); err != nil {
		t.Fatal(err)
	}

	if _, err := Open(store); !errors.Is(err, timelog.ErrTampered) {
		t.Errorf("expected ErrTampered, got %v", err)
	}
}

// failingLog rejects every append.
type failingLog struct{}

func (failingLog) Append([]timelog.Entry, timelog.Kind) ([]timelog.Entry, string, error) {
	return nil, "", errors.New("disk full")
}

func TestEngine_AppendFailureKeepsState(t *testing.T) {
	eng := New(failingLog{}, []timelog.Entry{})

	if _, err := eng.ClockIn(); err == nil {
		t.Fatal("expected append error")
	}
	if eng.State() != StateOut {
		t.Errorf("state should stay Out after a failed append, got %s", eng.State())
	}
	if len(eng.Entries()) != 0 {
		t.Errorf("entries should be unchanged, got %d", len(eng.Entries()))
	}
}
