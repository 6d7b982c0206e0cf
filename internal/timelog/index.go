package timelog

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/glebarez/go-sqlite"
)

// QueryParams defines filters for querying the log.
// All fields are optional; empty/zero values mean "no filter".
type QueryParams struct {
	Kind  Kind   // Filter by entry type ("in" or "out").
	Since string // Timestamp prefix ("2024-01-02") or duration ("8h", "72h").
	Until string // Timestamp prefix, exclusive upper bound.
	Limit int    // Return only the most recent N matches.
}

// sqliteIndex provides filtered queries over the log using SQLite.
// The JSON file is the source of truth; the index is rebuilt from it after
// every save and whenever it is found out of step with the verified log.
type sqliteIndex struct {
	db *sql.DB
}

// openIndex opens (or creates) the SQLite index database.
func openIndex(path string) (*sqliteIndex, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening sqlite index %s: %w", path, err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS entries (
			seq  INTEGER PRIMARY KEY,
			type TEXT NOT NULL,
			time TEXT NOT NULL,
			hash TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_time ON entries(time);
		CREATE INDEX IF NOT EXISTS idx_type ON entries(type);
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating sqlite schema: %w", err)
	}

	return &sqliteIndex{db: db}, nil
}

// rebuild replaces the indexed entries with entries in one transaction.
func (idx *sqliteIndex) rebuild(entries []Entry) error {
	tx, err := idx.db.Begin()
	if err != nil {
		return fmt.Errorf("starting index transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM entries"); err != nil {
		return fmt.Errorf("clearing index: %w", err)
	}

	stmt, err := tx.Prepare("INSERT INTO entries (seq, type, time, hash) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("preparing index insert: %w", err)
	}
	defer stmt.Close()

	for i, e := range entries {
		if _, err := stmt.Exec(i, string(e.Type), e.Time, e.Hash); err != nil {
			return fmt.Errorf("indexing entry %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// inSync reports whether the index holds exactly len(entries) rows and its
// last row carries the same hash as the last entry. Because each hash
// covers the whole prefix, matching tails mean matching logs.
func (idx *sqliteIndex) inSync(entries []Entry) bool {
	var count int
	if err := idx.db.QueryRow("SELECT COUNT(*) FROM entries").Scan(&count); err != nil {
		return false
	}
	if count != len(entries) {
		return false
	}
	if count == 0 {
		return true
	}

	var hash string
	err := idx.db.QueryRow("SELECT hash FROM entries ORDER BY seq DESC LIMIT 1").Scan(&hash)
	return err == nil && hash == entries[len(entries)-1].Hash
}

// query retrieves entries matching params in chronological order.
func (idx *sqliteIndex) query(params QueryParams) ([]Entry, error) {
	query := "SELECT seq, type, time, hash FROM entries WHERE 1=1"
	var args []any

	if params.Kind != "" {
		query += " AND type = ?"
		args = append(args, string(params.Kind))
	}
	if params.Since != "" {
		query += " AND time >= ?"
		args = append(args, params.Since)
	}
	if params.Until != "" {
		query += " AND time < ?"
		args = append(args, params.Until)
	}

	query += " ORDER BY seq DESC"
	if params.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, params.Limit)
	}

	rows, err := idx.db.Query("SELECT type, time, hash FROM ("+query+") ORDER BY seq ASC", args...)
	if err != nil {
		return nil, fmt.Errorf("querying sqlite index: %w", err)
	}
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		var e Entry
		var kind string
		if err := rows.Scan(&kind, &e.Time, &e.Hash); err != nil {
			return nil, fmt.Errorf("scanning sqlite row: %w", err)
		}
		e.Type = Kind(kind)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// close closes the SQLite database connection.
func (idx *sqliteIndex) close() error {
	return idx.db.Close()
}

// Query returns the entries matching params, oldest first.
//
// The chain is always verified first, so a tampered log fails with
// ErrTampered instead of serving stale or forged rows. With an index the
// filtering runs in SQLite; otherwise it runs in memory.
func (s *Store) Query(params QueryParams) ([]Entry, error) {
	params = s.resolveSince(params)

	entries, err := s.Load()
	if err != nil {
		return nil, err
	}

	// An empty log needs no index, and creating one here would leave a
	// database behind for a log that does not exist yet.
	if !s.useIndex || len(entries) == 0 {
		return filterEntries(entries, params), nil
	}

	idx, err := s.ensureIndex()
	if err != nil {
		return nil, err
	}
	if !idx.inSync(entries) {
		if err := idx.rebuild(entries); err != nil {
			return nil, fmt.Errorf("refreshing log index: %w", err)
		}
	}
	return idx.query(params)
}

// Reindex rebuilds the SQLite index from the verified log.
// Returns the number of entries indexed.
func (s *Store) Reindex() (int, error) {
	if !s.useIndex {
		return 0, fmt.Errorf("log index is disabled")
	}
	entries, err := s.Load()
	if err != nil {
		return 0, err
	}
	idx, err := s.ensureIndex()
	if err != nil {
		return 0, err
	}
	if err := idx.rebuild(entries); err != nil {
		return 0, fmt.Errorf("rebuilding log index: %w", err)
	}
	return len(entries), nil
}

// resolveSince converts a duration in params.Since (e.g. "8h") into an
// absolute timestamp relative to the store's clock. Anything that does not
// parse as a duration, such as "2024" or "2024-01-02", is kept as a
// timestamp prefix.
func (s *Store) resolveSince(params QueryParams) QueryParams {
	if params.Since == "" || strings.ContainsAny(params.Since, "-: ") {
		return params
	}
	d, err := time.ParseDuration(params.Since)
	if err != nil {
		return params
	}
	params.Since = s.now().Add(-d).Format(TimeLayout)
	return params
}

// filterEntries applies params in memory. Used when the index is disabled.
func filterEntries(entries []Entry, params QueryParams) []Entry {
	filtered := []Entry{}
	for _, e := range entries {
		if params.Kind != "" && e.Type != params.Kind {
			continue
		}
		if params.Since != "" && e.Time < params.Since {
			continue
		}
		if params.Until != "" && e.Time >= params.Until {
			continue
		}
		filtered = append(filtered, e)
	}

	if params.Limit > 0 && len(filtered) > params.Limit {
		filtered = filtered[len(filtered)-params.Limit:]
	}
	return filtered
}
