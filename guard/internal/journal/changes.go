package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hazyhaar/locguard/dbopen"
	"github.com/hazyhaar/locguard/updater"
)

// ChangeRecord is one stored locator change.
type ChangeRecord struct {
	ID        int64  `json:"id"`
	PassID    string `json:"pass_id,omitempty"`
	Field     string `json:"field"`
	Section   string `json:"section"`
	Old       string `json:"old"`
	New       string `json:"new"`
	ChangedAt int64  `json:"changed_at"`
}

// AppendChanges implements updater.ChangeLog without a pass id.
func (s *Store) AppendChanges(ctx context.Context, changes []updater.Change, persist func() error) error {
	return s.appendChanges(ctx, "", changes, persist)
}

// ForPass returns a ChangeLog stamping every change with passID.
func (s *Store) ForPass(passID string) updater.ChangeLog {
	return passLog{s: s, passID: passID}
}

type passLog struct {
	s      *Store
	passID string
}

func (l passLog) AppendChanges(ctx context.Context, changes []updater.Change, persist func() error) error {
	return l.s.appendChanges(ctx, l.passID, changes, persist)
}

// appendChanges inserts the rows, then calls persist before committing: a
// failed persist rolls the rows back.
func (s *Store) appendChanges(ctx context.Context, passID string, changes []updater.Change, persist func() error) error {
	return dbopen.RunTx(ctx, s.DB, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO locator_changes (pass_id, field, section, old_value, new_value, changed_at)
			VALUES (?,?,?,?,?,?)`)
		if err != nil {
			return fmt.Errorf("journal: prepare: %w", err)
		}
		defer stmt.Close()
		for _, c := range changes {
			if _, err := stmt.ExecContext(ctx, passID, c.Field, c.Section, c.Old, c.New, c.At.UnixMilli()); err != nil {
				return fmt.Errorf("journal: insert change %s: %w", c.Field, err)
			}
		}
		if persist != nil {
			return persist()
		}
		return nil
	})
}

// ListChanges returns the most recent changes first. An empty field lists
// every field.
func (s *Store) ListChanges(ctx context.Context, field string, limit int) ([]*ChangeRecord, error) {
	query := `SELECT id, pass_id, field, section, old_value, new_value, changed_at FROM locator_changes`
	var args []any
	if field != "" {
		query += ` WHERE field = ?`
		args = append(args, field)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, clampLimit(limit))

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ChangeRecord
	for rows.Next() {
		c := &ChangeRecord{}
		if err := rows.Scan(&c.ID, &c.PassID, &c.Field, &c.Section, &c.Old, &c.New, &c.ChangedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}
