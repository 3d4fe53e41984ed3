// Package journal is the SQLite history of locguard: locator changes,
// health reports and mining passes.
package journal

import (
	"database/sql"
	"fmt"

	"github.com/hazyhaar/locguard/dbopen"
)

// Store is the journal database handle.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the journal at path and applies the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	all := append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)
	db, err := dbopen.Open(path, all...)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	return &Store{DB: db}, nil
}

// New wraps an open database and applies the schema.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("journal: schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

func clampLimit(n int) int {
	if n <= 0 || n > 500 {
		return 50
	}
	return n
}
