package journal

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hazyhaar/locguard/dbopen"
	"github.com/hazyhaar/locguard/drift"
	"github.com/hazyhaar/locguard/updater"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := New(dbopen.OpenMemory(t))
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func changes(at time.Time) []updater.Change {
	return []updater.Change{
		{Field: "name", Section: updater.SectionFields, Old: ".old", New: ".zp_name", At: at},
		{Field: "rowClass", Section: updater.SectionRows, New: "tr.zp_rowContainer", At: at},
	}
}

func countChanges(t *testing.T, s *Store) int {
	t.Helper()
	var n int
	if err := s.DB.QueryRow(`SELECT COUNT(*) FROM locator_changes`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	return n
}

func TestAppendChanges_CommitsWithPersist(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	persisted := false

	err := s.ForPass("pass_1").AppendChanges(ctx, changes(time.Now()), func() error {
		persisted = true
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if !persisted {
		t.Error("persist not called")
	}

	got, err := s.ListChanges(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Field != "rowClass" || got[0].PassID != "pass_1" {
		t.Errorf("changes: %+v", got)
	}

	byField, _ := s.ListChanges(ctx, "name", 10)
	if len(byField) != 1 || byField[0].Old != ".old" {
		t.Errorf("by field: %+v", byField)
	}
}

func TestAppendChanges_PersistFailureRollsBack(t *testing.T) {
	s := openTest(t)
	boom := errors.New("rename failed")

	err := s.AppendChanges(context.Background(), changes(time.Now()), func() error { return boom })
	if !errors.Is(err, boom) {
		t.Fatalf("got %v, want persist error", err)
	}
	if n := countChanges(t, s); n != 0 {
		t.Errorf("rows after rollback: got %d, want 0", n)
	}
}

func TestReports(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()

	if rep, err := s.LatestReport(ctx); err != nil || rep != nil {
		t.Fatalf("empty journal: got %v, %v", rep, err)
	}

	base := time.Date(2026, 10, 14, 6, 0, 0, 0, time.UTC)
	for i, failed := range []int{0, 5} {
		rep := &drift.HealthReport{
			ID:              []string{"hr_a", "hr_b"}[i],
			Timestamp:       base.Add(time.Duration(i) * time.Hour),
			Categories:      []drift.Category{{Name: drift.CategoryTable, Probes: []drift.ProbeResult{{Name: "rows", Status: drift.Pass}}}},
			Passed:          1,
			Failed:          failed,
			MiningSuggested: failed > 3,
		}
		if err := s.SaveReport(ctx, rep); err != nil {
			t.Fatal(err)
		}
	}

	latest, err := s.LatestReport(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if latest.ID != "hr_b" || !latest.MiningSuggested || len(latest.Categories) != 1 {
		t.Errorf("latest: %+v", latest)
	}
	if !latest.Timestamp.Equal(base.Add(time.Hour)) {
		t.Errorf("timestamp: got %v", latest.Timestamp)
	}

	list, err := s.ListReports(ctx, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 2 || list[0].ID != "hr_b" || !list[0].MiningSuggested || list[1].MiningSuggested {
		t.Errorf("list: %+v", list)
	}

	if got, _ := s.GetReport(ctx, "hr_a"); got == nil || got.Failed != 0 {
		t.Errorf("get: %+v", got)
	}
}

func TestPasses(t *testing.T) {
	s := openTest(t)
	ctx := context.Background()
	for i, status := range []string{"applied", "rejected"} {
		p := &Pass{ID: []string{"pass_1", "pass_2"}[i], Trigger: "manual", Status: status, StartedAt: int64(100 + i), FinishedAt: int64(200 + i)}
		if err := s.RecordPass(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	got, err := s.ListPasses(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || got[0].Status != "rejected" {
		t.Errorf("passes: %+v", got)
	}
}
