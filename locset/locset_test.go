package locset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const artifact = `{
  "current": {
    "table": {"rowSelectors": ["tbody tr[role=row]", "tr.legacy_row"], "cellSelector": "td"},
    "fields": {"name": ".zp_name a", "jobTitle": [".zp_title", "td:nth-child(3) span"]},
    "login": {"emailInput": "input[name=email]"}
  },
  "fallback": {
    "table": {"rowSelectors": ["table tr"]},
    "fields": {"name": "td a"}
  }
}`

func TestDecode_StringOrList(t *testing.T) {
	s, err := Decode([]byte(artifact))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cur := s.Current()
	if cur.Version != Current {
		t.Errorf("version: got %q, want current", cur.Version)
	}
	if diff := cmp.Diff(Candidates{".zp_name a"}, cur.Fields["name"]); diff != "" {
		t.Errorf("name (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Candidates{".zp_title", "td:nth-child(3) span"}, cur.Fields["jobTitle"]); diff != "" {
		t.Errorf("jobTitle (-want +got):\n%s", diff)
	}
	if s.Fallback().Version != Fallback {
		t.Error("fallback variant not tagged")
	}
}

func TestDecode_EmptyRowSelectors(t *testing.T) {
	_, err := Decode([]byte(`{"current": {"table": {"rowSelectors": []}}, "fallback": {}}`))
	if !errors.Is(err, ErrNoRowSelectors) {
		t.Errorf("got %v, want ErrNoRowSelectors", err)
	}
}

func TestVariantIsCopy(t *testing.T) {
	s, _ := Decode([]byte(artifact))
	v := s.Current()
	v.Fields["name"][0] = "mutated"
	v.Table.RowSelectors[0] = "mutated"
	if s.Current().Fields["name"][0] != ".zp_name a" {
		t.Error("field mutation leaked into the Set")
	}
	if s.Current().Table.RowSelectors[0] != "tbody tr[role=row]" {
		t.Error("row selector mutation leaked into the Set")
	}
}

func TestCandidatesMerge(t *testing.T) {
	s, _ := Decode([]byte(artifact))
	want := Candidates{"tbody tr[role=row]", "tr.legacy_row", "table tr"}
	if diff := cmp.Diff(want, s.RowCandidates()); diff != "" {
		t.Errorf("rows (-want +got):\n%s", diff)
	}
	want = Candidates{".zp_name a", "td a"}
	if diff := cmp.Diff(want, s.FieldCandidates("name")); diff != "" {
		t.Errorf("name (-want +got):\n%s", diff)
	}
	if got := s.SectionKeys("login"); len(got) != 1 || got[0] != "emailInput" {
		t.Errorf("login keys: got %v", got)
	}
	if s.Cell() != "td" {
		t.Errorf("cell: got %q", s.Cell())
	}
}

func TestFirstMatch_FirstWins(t *testing.T) {
	counts := map[string]int{"A": 0, "B": 2, "C": 5}
	var evaluated []string
	m := func(_ context.Context, loc string) (int, bool, error) {
		evaluated = append(evaluated, loc)
		return counts[loc], counts[loc] > 0, nil
	}

	got, ok := FirstMatch(context.Background(), Candidates{"A", "B", "C"}, m)
	if !ok {
		t.Fatal("no match")
	}
	if got.Locator != "B" || got.Count != 2 || got.Index != 1 {
		t.Errorf("match: got %+v, want B/2/1", got)
	}
	if got.Tried != 2 {
		t.Errorf("tried: got %d, want 2", got.Tried)
	}
	if diff := cmp.Diff([]string{"A", "B"}, evaluated); diff != "" {
		t.Errorf("evaluated (-want +got):\n%s", diff)
	}
}

func TestFirstMatch_ErrorsDegrade(t *testing.T) {
	boom := errors.New("boom")
	m := func(_ context.Context, loc string) (int, bool, error) {
		if loc == "bad" {
			return 0, false, boom
		}
		return 1, true, nil
	}
	got, ok := FirstMatch(context.Background(), Candidates{"bad", "good"}, m)
	if !ok || got.Locator != "good" {
		t.Fatalf("got %+v/%v, want good", got, ok)
	}
	if _, ok := FirstMatch(context.Background(), Candidates{"bad"}, m); ok {
		t.Error("erroring candidate should not match")
	}
}

func TestSaveBackupRestore(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "locators.json")
	if err := os.WriteFile(path, []byte(artifact), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	backup := BackupPath(path)
	if backup != filepath.Join(dir, "locators.backup.json") {
		t.Errorf("backup path: got %s", backup)
	}
	if err := Backup(path, backup); err != nil {
		t.Fatalf("backup: %v", err)
	}

	cur := s.Current()
	cur.Fields["location"] = Candidates{".zp_location"}
	next, err := s.WithCurrent(cur)
	if err != nil {
		t.Fatalf("with current: %v", err)
	}
	at := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	written, err := Save(path, next, at)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if written.Revision() != 1 || !written.UpdatedAt().Equal(at) {
		t.Errorf("written: rev %d at %v", written.Revision(), written.UpdatedAt())
	}

	reloaded, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if reloaded.Current().Fields["location"].Primary() != ".zp_location" {
		t.Error("saved field missing after reload")
	}
	if reloaded.Revision() != 1 {
		t.Errorf("revision: got %d, want 1", reloaded.Revision())
	}

	raw, _ := os.ReadFile(backup)
	if string(raw) != artifact {
		t.Error("backup is not a byte copy of the pre-mutation artifact")
	}

	if err := Restore(backup, path); err != nil {
		t.Fatalf("restore: %v", err)
	}
	restored, _ := Load(path)
	if _, ok := restored.Current().Fields["location"]; ok {
		t.Error("restore did not bring back the pre-mutation state")
	}

	entries, _ := os.ReadDir(dir)
	for _, e := range entries {
		if filepath.Ext(e.Name()) == ".tmp" {
			t.Errorf("temp file left behind: %s", e.Name())
		}
	}
}

const extendedArtifact = `{
  "revision": 4,
  "site": "acme",
  "current": {
    "table": {"rowSelectors": ["tbody tr"], "cellSelector": "td", "stickyHeader": true},
    "fields": {"name": ".old_name", "jobTitle": [".zp_title"], "email": "td a.mail"},
    "detailPage": {"title": "h1.profile", "tabs": ["a.tab"]}
  },
  "fallback": {
    "table": {"rowSelectors": "table tr"},
    "fields": {"name": "td a"},
    "exportColumns": ["name", "email"]
  }
}`

// WHAT: a save after a one-field change keeps every key the artifact was
// read with and the shape of every entry that was not changed.
// WHY: the extractor reads keys this package does not model.
func TestSave_KeepsUnknownKeysAndShapes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locators.json")
	if err := os.WriteFile(path, []byte(extendedArtifact), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cur := s.Current()
	cur.Fields["name"] = Candidates{".zp_name a"}
	next, err := s.WithCurrent(cur)
	if err != nil {
		t.Fatalf("with current: %v", err)
	}
	if _, err := Save(path, next, time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("save: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("saved artifact is not JSON: %v", err)
	}
	if doc["site"] != "acme" {
		t.Errorf("site: got %v, want acme", doc["site"])
	}
	if doc["revision"] != float64(5) {
		t.Errorf("revision: got %v, want 5", doc["revision"])
	}
	current := doc["current"].(map[string]any)
	fallback := doc["fallback"].(map[string]any)

	wantDetail := map[string]any{"title": "h1.profile", "tabs": []any{"a.tab"}}
	if diff := cmp.Diff(wantDetail, current["detailPage"]); diff != "" {
		t.Errorf("current.detailPage (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]any{"name", "email"}, fallback["exportColumns"]); diff != "" {
		t.Errorf("fallback.exportColumns (-want +got):\n%s", diff)
	}

	table := current["table"].(map[string]any)
	if diff := cmp.Diff([]any{"tbody tr"}, table["rowSelectors"]); diff != "" {
		t.Errorf("current rowSelectors (-want +got):\n%s", diff)
	}
	if table["stickyHeader"] != true {
		t.Errorf("stickyHeader: got %v, want true", table["stickyHeader"])
	}
	if table["cellSelector"] != "td" {
		t.Errorf("cellSelector: got %v, want td", table["cellSelector"])
	}
	fbTable := fallback["table"].(map[string]any)
	if diff := cmp.Diff([]any{"table tr"}, fbTable["rowSelectors"]); diff != "" {
		t.Errorf("fallback rowSelectors (-want +got):\n%s", diff)
	}

	fields := current["fields"].(map[string]any)
	want := map[string]any{
		"name":     ".zp_name a",
		"jobTitle": []any{".zp_title"},
		"email":    "td a.mail",
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("current.fields (-want +got):\n%s", diff)
	}

	reloaded, err := Decode(data)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if got := reloaded.Current().Fields["name"].Primary(); got != ".zp_name a" {
		t.Errorf("name after reload: got %q", got)
	}
}

func TestSave_ChangedListEntryStaysList(t *testing.T) {
	path := filepath.Join(t.TempDir(), "locators.json")
	if err := os.WriteFile(path, []byte(extendedArtifact), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	cur := s.Current()
	cur.Fields["jobTitle"] = Candidates{".zp_jobTitle"}
	cur.Fields["phone"] = Candidates{".zp_phone"}
	next, _ := s.WithCurrent(cur)
	if _, err := Save(path, next, time.Now()); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, _ := os.ReadFile(path)
	var doc struct {
		Current struct {
			Fields map[string]json.RawMessage `json:"fields"`
		} `json:"current"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatal(err)
	}
	compact := func(raw json.RawMessage) string {
		var b bytes.Buffer
		if err := json.Compact(&b, raw); err != nil {
			t.Fatalf("compact %s: %v", raw, err)
		}
		return b.String()
	}
	if got := compact(doc.Current.Fields["jobTitle"]); got != `[".zp_jobTitle"]` {
		t.Errorf("jobTitle: got %s, want a one-element list", got)
	}
	if got := compact(doc.Current.Fields["phone"]); got != `".zp_phone"` {
		t.Errorf("phone: got %s, want a bare string", got)
	}
}
