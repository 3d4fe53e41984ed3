package journal

import "context"

// Pass is one recorded mining pass.
type Pass struct {
	ID          string `json:"id"`
	Trigger     string `json:"trigger"` // manual | watch
	Status      string `json:"status"`
	RowSelector string `json:"row_selector,omitempty"`
	Mined       int    `json:"mined"`
	Valid       int    `json:"valid"`
	Attempted   int    `json:"attempted"`
	Changes     int    `json:"changes"`
	Revision    int    `json:"revision"`
	Error       string `json:"error,omitempty"`
	StartedAt   int64  `json:"started_at"`
	FinishedAt  int64  `json:"finished_at"`
}

// RecordPass stores p.
func (s *Store) RecordPass(ctx context.Context, p *Pass) error {
	_, err := s.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO mining_passes
			(id, triggered_by, status, row_selector, mined, valid, attempted, changes, revision, error, started_at, finished_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?)`,
		p.ID, p.Trigger, p.Status, p.RowSelector, p.Mined, p.Valid, p.Attempted,
		p.Changes, p.Revision, p.Error, p.StartedAt, p.FinishedAt,
	)
	return err
}

// ListPasses returns passes, newest first.
func (s *Store) ListPasses(ctx context.Context, limit int) ([]*Pass, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, triggered_by, status, row_selector, mined, valid, attempted, changes, revision, error, started_at, finished_at
		FROM mining_passes ORDER BY started_at DESC, id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Pass
	for rows.Next() {
		p := &Pass{}
		if err := rows.Scan(&p.ID, &p.Trigger, &p.Status, &p.RowSelector, &p.Mined, &p.Valid,
			&p.Attempted, &p.Changes, &p.Revision, &p.Error, &p.StartedAt, &p.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
