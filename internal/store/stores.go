package store

import "database/sql"

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	PostgresDSN string
	SQLitePath  string
}

// Stores is the top-level container for storage backends.
type Stores struct {
	Users UserStore
	DB    *sql.DB
}

// Close releases the underlying database handle.
func (s *Stores) Close() error {
	if s == nil || s.DB == nil {
		return nil
	}
	return s.DB.Close()
}
