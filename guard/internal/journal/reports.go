package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hazyhaar/locguard/drift"
)

// ReportSummary is the listing projection of a stored report.
type ReportSummary struct {
	ID              string  `json:"id"`
	CreatedAt       int64   `json:"created_at"`
	Passed          int     `json:"passed"`
	Failed          int     `json:"failed"`
	Warnings        int     `json:"warnings"`
	SuccessRate     float64 `json:"success_rate"`
	MiningSuggested bool    `json:"mining_suggested"`
	Fatal           string  `json:"fatal,omitempty"`
}

// SaveReport stores rep. Saving the same id twice replaces it.
func (s *Store) SaveReport(ctx context.Context, rep *drift.HealthReport) error {
	body, err := json.Marshal(rep)
	if err != nil {
		return fmt.Errorf("journal: encode report: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
		INSERT OR REPLACE INTO health_reports
			(id, created_at, passed, failed, warnings, success_rate, mining_suggested, fatal, body)
		VALUES (?,?,?,?,?,?,?,?,?)`,
		rep.ID, rep.Timestamp.UnixMilli(), rep.Passed, rep.Failed, rep.Warnings,
		rep.SuccessRate, rep.MiningSuggested, rep.Fatal, string(body),
	)
	if err != nil {
		return fmt.Errorf("journal: save report: %w", err)
	}
	return nil
}

// LatestReport returns the most recent report, or nil when none exists.
func (s *Store) LatestReport(ctx context.Context) (*drift.HealthReport, error) {
	return s.scanReport(s.DB.QueryRowContext(ctx,
		`SELECT body FROM health_reports ORDER BY created_at DESC, id DESC LIMIT 1`))
}

// GetReport returns a report by id, or nil.
func (s *Store) GetReport(ctx context.Context, id string) (*drift.HealthReport, error) {
	return s.scanReport(s.DB.QueryRowContext(ctx, `SELECT body FROM health_reports WHERE id = ?`, id))
}

func (s *Store) scanReport(row *sql.Row) (*drift.HealthReport, error) {
	var body string
	err := row.Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rep := &drift.HealthReport{}
	if err := json.Unmarshal([]byte(body), rep); err != nil {
		return nil, fmt.Errorf("journal: decode report: %w", err)
	}
	return rep, nil
}

// ListReports returns report summaries, newest first.
func (s *Store) ListReports(ctx context.Context, limit int) ([]*ReportSummary, error) {
	rows, err := s.DB.QueryContext(ctx, `
		SELECT id, created_at, passed, failed, warnings, success_rate, mining_suggested, fatal
		FROM health_reports ORDER BY created_at DESC, id DESC LIMIT ?`, clampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*ReportSummary
	for rows.Next() {
		r := &ReportSummary{}
		if err := rows.Scan(&r.ID, &r.CreatedAt, &r.Passed, &r.Failed, &r.Warnings,
			&r.SuccessRate, &r.MiningSuggested, &r.Fatal); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
