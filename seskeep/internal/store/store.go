// Package store is the SQLite persistence layer for the session registry.
// It backs the interactive dev-loop mode where cached sessions survive
// separate full-suite invocations.
package store

import (
	"database/sql"

	"github.com/hazyhaar/seskeep/dbopen"
)

// Store is the session registry database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the registry database at path and applies the
// seskeep pragmas and schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
