package store

import (
	"time"

	"github.com/btouchard/elastic/internal/bus"
)

// Store persists the retained value of persistent bus topics.
type Store interface {
	SaveValue(v bus.Value) error
	LoadValues() ([]bus.Value, error)
	DeleteTopic(topic string) error

	// Maintenance
	Cleanup(maxAge time.Duration) (int64, error)
	Close() error
}

var _ bus.Retainer = (Store)(nil)

// migrations are applied in order; the index+1 is the schema version.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS retained_values (
		topic      TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		seq        INTEGER NOT NULL DEFAULT 0,
		updated_at TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_retained_values_updated_at ON retained_values (updated_at)`,
}
