package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/btouchard/elastic/internal/bus"
)

const (
	// Fixed width so stored timestamps compare lexically.
	timeFormat = "2006-01-02T15:04:05.000000000Z07:00"
	memoryPath = ":memory:"
)

// SQLiteStore implements Store using modernc.org/sqlite (pure Go, zero CGO).
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) a SQLite database and runs migrations.
// The database file is created with 0600 permissions and its parent directory with 0700.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	dsn := memoryPath
	if path != memoryPath {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0700); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}

		// Pre-create the file with restrictive permissions if it doesn't exist
		if _, err := os.Stat(path); os.IsNotExist(err) {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0600)
			if err != nil {
				return nil, fmt.Errorf("creating database file: %w", err)
			}
			_ = f.Close()
		}

		dsn = "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite handles one writer at a time
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at TEXT NOT NULL DEFAULT (datetime('now'))
	)`)
	if err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	var current int
	row := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&current); err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	for i := current; i < len(migrations); i++ {
		slog.Info("applying migration", "version", i+1)
		if _, err := s.db.Exec(migrations[i]); err != nil {
			return fmt.Errorf("migration %d: %w", i+1, err)
		}
		if _, err := s.db.Exec("INSERT INTO schema_version (version) VALUES (?)", i+1); err != nil {
			return fmt.Errorf("recording migration %d: %w", i+1, err)
		}
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// --- Retained values ---

// SaveValue replaces the retained value of v.Topic.
func (s *SQLiteStore) SaveValue(v bus.Value) error {
	updatedAt := v.Time
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`INSERT INTO retained_values (topic, value, seq, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(topic) DO UPDATE SET value = excluded.value, seq = excluded.seq, updated_at = excluded.updated_at`,
		v.Topic, v.Data, int64(v.Seq), formatTime(updatedAt))
	if err != nil {
		return fmt.Errorf("saving retained value: %w", err)
	}
	return nil
}

// LoadValues returns every retained value ordered by topic.
func (s *SQLiteStore) LoadValues() ([]bus.Value, error) {
	rows, err := s.db.Query("SELECT topic, value, seq, updated_at FROM retained_values ORDER BY topic")
	if err != nil {
		return nil, fmt.Errorf("loading retained values: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var values []bus.Value
	for rows.Next() {
		var v bus.Value
		var seq int64
		var updatedAt string
		if err := rows.Scan(&v.Topic, &v.Data, &seq, &updatedAt); err != nil {
			return nil, fmt.Errorf("scanning retained value: %w", err)
		}
		v.Seq = uint64(seq)
		v.Time = parseTime(updatedAt)
		values = append(values, v)
	}
	return values, rows.Err()
}

// DeleteTopic forgets the retained value of topic.
func (s *SQLiteStore) DeleteTopic(topic string) error {
	if _, err := s.db.Exec("DELETE FROM retained_values WHERE topic = ?", topic); err != nil {
		return fmt.Errorf("deleting retained value: %w", err)
	}
	return nil
}

// --- Maintenance ---

// Cleanup removes retained values not updated within maxAge and reports
// how many were removed. A non-positive maxAge keeps everything.
func (s *SQLiteStore) Cleanup(maxAge time.Duration) (int64, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	cutoff := formatTime(time.Now().UTC().Add(-maxAge))
	res, err := s.db.Exec("DELETE FROM retained_values WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("cleaning retained values: %w", err)
	}
	return res.RowsAffected()
}

// --- Helpers ---

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, _ := time.Parse(timeFormat, s)
	return t
}
