package drift

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/hazyhaar/locguard/docquery"
	"github.com/hazyhaar/locguard/docquery/htmldoc"
	"github.com/hazyhaar/locguard/locset"
	"github.com/hazyhaar/locguard/mining"
)

const (
	loginURL = "https://app.test/login"
	appURL   = "https://app.test/people"
)

const loginPage = `<html><body><form>
<input name="email" type="email"><input name="password" type="password">
<button class="zp_login">Log in</button></form></body></html>`

func appPage(rows int, container bool) string {
	var b strings.Builder
	b.WriteString(`<html><body>`)
	if container {
		b.WriteString(`<div id="app">`)
	} else {
		b.WriteString(`<div id="splash">`)
	}
	b.WriteString(`<table><tbody>`)
	for r := 0; r < rows; r++ {
		b.WriteString(`<tr class="zp_rowContainer">`)
		for i := 0; i < 13; i++ {
			switch i {
			case 1:
				fmt.Fprintf(&b, `<td><a class="zp_nameLink"><span class="zp_nameText">Person %d</span></a></td>`, r)
			case 2:
				b.WriteString(`<td><span class="zp_jobTitle">Head of Growth and Partnerships, EMEA region</span></td>`)
			default:
				b.WriteString(`<td></td>`)
			}
		}
		b.WriteString(`</tr>`)
	}
	b.WriteString(`</tbody></table><nav><button class="zp_next">Next</button></nav></div></body></html>`)
	return b.String()
}

func monitorSet(t *testing.T) *locset.Set {
	t.Helper()
	s, err := locset.New(locset.Variant{
		Login: map[string]locset.Candidates{
			"emailInput":    {"input[name=email]"},
			"passwordInput": {"input[type=password]"},
		},
		PostLogin: map[string]locset.Candidates{
			ContainerKey:   {"#app"},
			"upgradeModal": {".zp_modal"},
		},
		Table: locset.Table{RowSelectors: locset.Candidates{"tr.zp_gone", "tr.zp_rowContainer"}},
		Fields: map[string]locset.Candidates{
			"name":     {".zp_nameLink .zp_nameText"},
			"jobTitle": {".zp_jobTitle"},
		},
		Pagination: map[string]locset.Candidates{"next": {".zp_next"}},
	}, locset.Variant{})
	if err != nil {
		t.Fatal(err)
	}
	return s
}

type fakeAuth struct {
	calls int
	err   error
}

func (a *fakeAuth) Login(context.Context, docquery.Document) error {
	a.calls++
	return a.err
}

func twoFields() []mining.FieldDescriptor {
	return []mining.FieldDescriptor{
		{Field: "name", Cell: 1, Strategy: mining.AnchorText},
		{Field: "jobTitle", Cell: 2, Strategy: mining.PlainText},
	}
}

func newMonitor(doc docquery.Document, set *locset.Set, cfg Config) *Monitor {
	cfg.LoginURL, cfg.AppURL = loginURL, appURL
	cfg.LongTimeout = time.Second
	if cfg.Fields == nil {
		cfg.Fields = twoFields()
	}
	return New(doc, set, cfg)
}

func TestRun_Stable(t *testing.T) {
	doc := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(12, true)))
	auth := &fakeAuth{}

	rep, err := newMonitor(doc, monitorSet(t), Config{Authenticator: auth, PreviewLen: 20}).Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if auth.calls != 1 {
		t.Errorf("authenticator calls: got %d, want 1", auth.calls)
	}
	var names []string
	for _, c := range rep.Categories {
		names = append(names, c.Name)
	}
	if got := strings.Join(names, ","); got != "login,post_login,table,fields,pagination" {
		t.Errorf("categories: got %s", got)
	}
	if rep.Failed != 0 || rep.Recommendation != RecommendStable || rep.MiningSuggested {
		t.Errorf("report: failed=%d rec=%q suggested=%v", rep.Failed, rep.Recommendation, rep.MiningSuggested)
	}
	// The absent modal is optional: a warning that still counts as passed.
	if rep.Warnings != 1 || rep.SuccessRate != 1 {
		t.Errorf("warnings=%d success=%v, want 1 and 1.0", rep.Warnings, rep.SuccessRate)
	}
	if !strings.HasPrefix(rep.ID, "hr_") {
		t.Errorf("id: got %q", rep.ID)
	}

	table, _ := rep.Category(CategoryTable)
	if p := table.Probes[0]; p.Count != 12 || p.Matched != "tr.zp_rowContainer" || p.Status != Pass {
		t.Errorf("rows probe: %+v", p)
	}
	fields, _ := rep.Category(CategoryFields)
	for _, p := range fields.Probes {
		if p.Name == "jobTitle" && p.Preview != "Head of Growth and P…" {
			t.Errorf("preview: got %q", p.Preview)
		}
		if p.Name == "name" && p.Preview != "Person 0" {
			t.Errorf("name preview: got %q", p.Preview)
		}
	}
}

func TestRun_LowRowCountWarns(t *testing.T) {
	doc := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(3, true)))
	rep, err := newMonitor(doc, monitorSet(t), Config{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	table, _ := rep.Category(CategoryTable)
	if p := table.Probes[0]; p.Status != Warn || p.Count != 3 {
		t.Errorf("rows probe: %+v, want warn with 3", p)
	}
	if rep.Failed != 0 {
		t.Errorf("failed: got %d, want 0", rep.Failed)
	}
}

func TestRun_CriticalContainer(t *testing.T) {
	doc := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(12, false)))
	rep, err := newMonitor(doc, monitorSet(t), Config{}).Run(context.Background())
	if !errors.Is(err, ErrCriticalPrecondition) {
		t.Fatalf("got %v, want ErrCriticalPrecondition", err)
	}
	if rep == nil || len(rep.Categories) != 2 {
		t.Fatalf("want best-effort report with login and post_login, got %+v", rep)
	}
	if rep.Fatal == "" || rep.Stable() {
		t.Error("fatal report must not be stable")
	}
}

func TestRun_MiningSuggested(t *testing.T) {
	doc := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(0, true)))
	rep, err := newMonitor(doc, monitorSet(t), Config{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// rows, cells, name, jobTitle.
	if rep.Failed != 4 || !rep.MiningSuggested {
		t.Errorf("failed=%d suggested=%v, want 4 and true", rep.Failed, rep.MiningSuggested)
	}
	if !strings.Contains(rep.Recommendation, "mining") {
		t.Errorf("recommendation: %q", rep.Recommendation)
	}
}

func TestRun_ThreeFailuresDoNotSuggest(t *testing.T) {
	doc := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(12, true)))
	fields := append(twoFields(),
		mining.FieldDescriptor{Field: "email", Cell: 4},
		mining.FieldDescriptor{Field: "location", Cell: 9},
		mining.FieldDescriptor{Field: "nicheTags", Cell: 12},
	)
	rep, err := newMonitor(doc, monitorSet(t), Config{Fields: fields}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if rep.Failed != 3 || rep.MiningSuggested {
		t.Errorf("failed=%d suggested=%v, want 3 and false", rep.Failed, rep.MiningSuggested)
	}
}

// slowDoc times out on one locator.
type slowDoc struct {
	*htmldoc.Document
	slow string
}

func (d slowDoc) Query(ctx context.Context, loc string) ([]docquery.Element, error) {
	if loc == d.slow {
		return nil, docquery.ErrTimeout
	}
	return d.Document.Query(ctx, loc)
}

func TestRun_ProbeTimeoutIsFailedProbe(t *testing.T) {
	base := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(12, true)))
	doc := slowDoc{Document: base, slow: ".zp_next"}

	rep, err := newMonitor(doc, monitorSet(t), Config{}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	pag, ok := rep.Category(CategoryPagination)
	if !ok || pag.Probes[0].Status != Fail {
		t.Fatalf("pagination: %+v", pag)
	}
	if rep.Failed != 1 {
		t.Errorf("failed: got %d, want 1", rep.Failed)
	}
}

type panicAuth struct{}

func (panicAuth) Login(context.Context, docquery.Document) error { panic("session exploded") }

func TestRun_PanicYieldsReport(t *testing.T) {
	doc := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(12, true)))
	rep, err := newMonitor(doc, monitorSet(t), Config{Authenticator: panicAuth{}}).Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "panicked") {
		t.Fatalf("got %v, want panic error", err)
	}
	if rep == nil || !strings.Contains(rep.Fatal, "session exploded") {
		t.Errorf("report: %+v", rep)
	}
}

func TestRun_ZeroThresholdsAreKept(t *testing.T) {
	base := htmldoc.New(htmldoc.WithPage(loginURL, loginPage), htmldoc.WithPage(appURL, appPage(3, true)))
	doc := slowDoc{Document: base, slow: ".zp_next"}

	rep, err := newMonitor(doc, monitorSet(t), Config{
		LowRowCount:        intPtr(0),
		SuggestMiningAfter: intPtr(0),
	}).Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	table, _ := rep.Category(CategoryTable)
	if p := table.Probes[0]; p.Status != Pass || p.Count != 3 {
		t.Errorf("rows probe: %+v, want pass with 3", p)
	}
	if rep.Failed != 1 || !rep.MiningSuggested {
		t.Errorf("failed=%d suggested=%v, want 1 and true", rep.Failed, rep.MiningSuggested)
	}
}

// WHAT: a run that aborts after probes already failed.
// WHY: the abort note must not hide the mining hint for those failures.
func TestSummarize_FatalKeepsFailureAdvice(t *testing.T) {
	rep := &HealthReport{
		Fatal: "container not found",
		Categories: []Category{{
			Name: CategoryPostLogin,
			Probes: []ProbeResult{
				{Name: "upgradeModal", Status: Fail},
				{Name: ContainerKey, Status: Fail},
			},
		}},
	}
	rep.summarize(3)
	for _, want := range []string{"2 probe(s) failed", "mining pass", "run aborted (container not found)"} {
		if !strings.Contains(rep.Recommendation, want) {
			t.Errorf("recommendation %q lacks %q", rep.Recommendation, want)
		}
	}

	clean := &HealthReport{Fatal: "login failed"}
	clean.summarize(3)
	if !strings.HasPrefix(clean.Recommendation, "run aborted (login failed)") {
		t.Errorf("recommendation: got %q", clean.Recommendation)
	}
}
