package timelog

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// document is the on-disk envelope: {"log": [...]}, as written by Save.
type document struct {
	Log *[]Entry `json:"log"`
}

// rawDocument is the envelope as read back. Entries stay key/value maps so
// the digest covers every stored key, not only the ones Entry knows.
// Log is a pointer so a missing field can be told apart from an empty list.
type rawDocument struct {
	Log *[]map[string]json.RawMessage `json:"log"`
}

// Options configures a Store.
type Options struct {
	// Index enables the SQLite query index stored next to the log file.
	Index bool

	// Now overrides the wall clock. Defaults to time.Now.
	Now func() time.Time
}

// Store is the hash-chained log persisted in a single JSON file.
//
// The JSON file is the source of truth; every save rewrites the whole file
// with digests recomputed from the root, so the persisted chain always
// verifies after a successful write. The optional SQLite index is a
// projection rebuilt from the file.
//
// A Store assumes a single writer. Modifications made by anyone else
// between Load and Append are exactly what the chain check detects.
type Store struct {
	path     string
	now      func() time.Time
	useIndex bool
	index    *sqliteIndex
}

// Open returns a Store for the log at path. Nothing is read or created
// here: the file is read by Load, and the log directory and index are
// created by the first Save (or an explicit Reindex). A missing file is an
// empty log.
func Open(path string, opts Options) (*Store, error) {
	s := &Store{path: path, now: opts.Now, useIndex: opts.Index}
	if s.now == nil {
		s.now = time.Now
	}
	slog.Debug("time log opened", "path", path, "index", opts.Index)
	return s, nil
}

// ensureIndex opens the SQLite index on first use.
func (s *Store) ensureIndex() (*sqliteIndex, error) {
	if s.index != nil {
		return s.index, nil
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory for %s: %w", s.path, err)
	}
	idx, err := openIndex(indexPath(s.path))
	if err != nil {
		return nil, fmt.Errorf("opening log index: %w", err)
	}
	s.index = idx
	return idx, nil
}

// Path returns the location of the JSON log file.
func (s *Store) Path() string { return s.path }

// Close releases the SQLite index, if any.
func (s *Store) Close() error {
	if s.index != nil {
		return s.index.close()
	}
	return nil
}

// Load reads the persisted entries and verifies the hash chain.
//
// A missing file is an empty log, not an error. On the first digest
// mismatch Load fails with ErrTampered and returns no entries; it never
// reports which entry failed.
//
// A record whose chain verifies but which carries keys other than type,
// time, and hash cannot be represented as an Entry and fails with
// ErrStoreUnreadable, so a later Save never silently drops them.
func (s *Store) Load() ([]Entry, error) {
	records, err := readDocument(s.path)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return []Entry{}, nil
		}
		return nil, err
	}
	if !verifyChain(records) {
		return nil, ErrTampered
	}

	entries := make([]Entry, 0, len(records))
	for i, r := range records {
		e, err := r.entry()
		if err != nil {
			return nil, fmt.Errorf("%s: entry %d: %w", s.path, i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Verify checks the chain without returning the entries.
func (s *Store) Verify() error {
	_, err := s.Load()
	return err
}

// Append records a new event of the given kind at the current wall-clock
// time and persists the whole log. It returns the extended log and the new
// entry's timestamp.
//
// entries is never modified: if the write fails, the caller keeps its
// previous state.
func (s *Store) Append(entries []Entry, kind Kind) ([]Entry, string, error) {
	ts := s.now().Format(TimeLayout)

	next := make([]Entry, len(entries), len(entries)+1)
	copy(next, entries)
	next = append(next, Entry{Type: kind, Time: ts})

	if err := s.Save(next); err != nil {
		return entries, "", err
	}
	return next, ts, nil
}

// Save recomputes every digest in entries (in place) starting from an
// empty predecessor, then atomically overwrites the log file.
func (s *Store) Save(entries []Entry) error {
	rechain(entries)

	if entries == nil {
		entries = []Entry{}
	}
	data, err := json.MarshalIndent(document{Log: &entries}, "", "    ")
	if err != nil {
		return fmt.Errorf("marshaling log: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("creating log directory for %s: %w", s.path, err)
	}
	if err := writeAtomic(s.path, data); err != nil {
		return err
	}

	// The index is a projection; failing to refresh it must not fail the save.
	if s.useIndex {
		idx, err := s.ensureIndex()
		if err == nil {
			err = idx.rebuild(entries)
		}
		if err != nil {
			slog.Error("log index rebuild failed", "path", s.path, "error", err)
		}
	}
	return nil
}

// VerifyFile verifies an explicitly named log file. Unlike Load, a
// missing file is an error here (ErrNotFound). Only the chain is checked:
// extra keys that the chain covers are accepted.
func VerifyFile(path string) error {
	records, err := readDocument(path)
	if err != nil {
		return err
	}
	if !verifyChain(records) {
		return ErrTampered
	}
	return nil
}

// VerifyMessage turns a verification result into the pass/fail verdict and
// message shown to the user.
func VerifyMessage(err error) (bool, string) {
	switch {
	case err == nil:
		return true, "All logs are valid."
	case errors.Is(err, ErrTampered):
		return false, "Log file has been tampered with."
	default:
		return false, err.Error()
	}
}

// readDocument parses the log file into records without verifying them.
// Every value must be a JSON string.
func readDocument(path string) ([]record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("reading log %s: %w", path, err)
	}

	var doc rawDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrStoreUnreadable, path, err)
	}
	if doc.Log == nil {
		return nil, fmt.Errorf("%w: %s: missing \"log\" field", ErrStoreUnreadable, path)
	}

	records := make([]record, 0, len(*doc.Log))
	for i, raw := range *doc.Log {
		r := record{fields: make(map[string]string, len(raw))}
		for k, v := range raw {
			var str string
			if err := json.Unmarshal(v, &str); err != nil {
				return nil, fmt.Errorf("%w: %s: entry %d: field %q is not a string", ErrStoreUnreadable, path, i, k)
			}
			if k == "hash" {
				r.hash = str
			} else {
				r.fields[k] = str
			}
		}
		records = append(records, r)
	}
	return records, nil
}

// writeAtomic writes data to a temp file in the same directory and renames
// it over path, so readers never observe a half-written log.
func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file in %s: %w", dir, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName) // no-op after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing log %s: %w", path, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing log %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing log %s: %w", path, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replacing log %s: %w", path, err)
	}
	return nil
}

// indexPath places the index next to the log: time_log.json -> time_log.db.
func indexPath(logPath string) string {
	return strings.TrimSuffix(logPath, filepath.Ext(logPath)) + ".db"
}
