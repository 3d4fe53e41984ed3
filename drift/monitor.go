// Package drift detects divergence between the persisted locators and the
// live UI. A Monitor runs a fixed battery of probes (login, post-login,
// table, fields, pagination) and produces a HealthReport. It never repairs
// anything: miningSuggested is a signal for an external trigger.
package drift

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/hazyhaar/locguard/docquery"
	"github.com/hazyhaar/locguard/idgen"
	"github.com/hazyhaar/locguard/locset"
	"github.com/hazyhaar/locguard/mining"
)

// ErrCriticalPrecondition aborts a run, e.g. when the post-login container
// never appears. The report collected so far is still returned.
var ErrCriticalPrecondition = errors.New("drift: critical precondition failed")

// ContainerKey is the postLogin entry waited for as a critical precondition.
const ContainerKey = "container"

// Authenticator establishes the session between the login and post-login
// categories. The login flow itself lives outside locguard.
type Authenticator interface {
	Login(ctx context.Context, doc docquery.Document) error
}

// Config tunes a Monitor.
type Config struct {
	LoginURL string
	AppURL   string

	ShortTimeout time.Duration // optional probes
	LongTimeout  time.Duration // navigation and the container wait

	// LowRowCount: a row probe matching fewer rows passes with a warning.
	// nil means 5; 0 disables the warning.
	LowRowCount *int

	// SuggestMiningAfter: more failed probes than this set MiningSuggested.
	// nil means 3; 0 suggests mining on the first failure.
	SuggestMiningAfter *int

	MinCells   int
	PreviewLen int
	Fields     []mining.FieldDescriptor

	Authenticator Authenticator
	NewID         idgen.Generator
	Now           func() time.Time
	Logger        *slog.Logger
}

func (c *Config) defaults() {
	if c.ShortTimeout <= 0 {
		c.ShortTimeout = docquery.ShortTimeout
	}
	if c.LongTimeout <= 0 {
		c.LongTimeout = docquery.LongTimeout
	}
	if c.LowRowCount == nil {
		c.LowRowCount = intPtr(5)
	}
	if c.SuggestMiningAfter == nil {
		c.SuggestMiningAfter = intPtr(3)
	}
	if c.MinCells <= 0 {
		c.MinCells = 10
	}
	if c.PreviewLen <= 0 {
		c.PreviewLen = 80
	}
	if len(c.Fields) == 0 {
		c.Fields = mining.Fields
	}
	if c.NewID == nil {
		c.NewID = idgen.Prefixed("hr_", idgen.UUIDv7())
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

func intPtr(v int) *int { return &v }

// Monitor runs the probe battery against one document and LocatorSet.
type Monitor struct {
	doc    docquery.Document
	set    *locset.Set
	cfg    Config
	logger *slog.Logger
}

// New creates a Monitor.
func New(doc docquery.Document, set *locset.Set, cfg Config) *Monitor {
	cfg.defaults()
	return &Monitor{doc: doc, set: set, cfg: cfg, logger: cfg.Logger}
}

// run holds the state one battery shares between categories.
type run struct {
	*Monitor
	rows   mining.Rows
	rowsOK bool
}

// Run executes the battery in order. Probe failures and timeouts are data
// in the report. A critical precondition failure or a panic stops the run;
// the best-effort report is returned together with the error.
func (m *Monitor) Run(ctx context.Context) (rep *HealthReport, err error) {
	start := m.cfg.Now()
	rep = &HealthReport{ID: m.cfg.NewID(), Timestamp: start.UTC()}
	r := &run{Monitor: m}

	defer func() {
		if p := recover(); p != nil {
			m.logger.Error("drift: battery panicked", "panic", p, "categories", len(rep.Categories))
			err = fmt.Errorf("drift: battery panicked: %v", p)
		}
		if err != nil {
			rep.Fatal = err.Error()
		}
		rep.Duration = m.cfg.Now().Sub(start).Round(time.Millisecond).String()
		rep.summarize(*m.cfg.SuggestMiningAfter)
		m.logger.Info("drift: battery complete",
			"id", rep.ID, "passed", rep.Passed, "failed", rep.Failed, "warnings", rep.Warnings,
			"success_rate", rep.SuccessRate, "mining_suggested", rep.MiningSuggested, "fatal", rep.Fatal)
	}()

	steps := []struct {
		name string
		fn   func(context.Context) (Category, error)
	}{
		{CategoryLogin, r.login},
		{CategoryPostLogin, r.postLogin},
		{CategoryTable, r.table},
		{CategoryFields, r.fields},
		{CategoryPagination, r.pagination},
	}
	for _, s := range steps {
		cat, cerr := s.fn(ctx)
		cat.Name = s.name
		rep.Categories = append(rep.Categories, cat)
		if cerr != nil {
			return rep, cerr
		}
		if ctx.Err() != nil {
			return rep, fmt.Errorf("drift: %w", ctx.Err())
		}
	}
	return rep, nil
}

func (r *run) login(ctx context.Context) (Category, error) {
	var cat Category
	if r.cfg.LoginURL != "" {
		cat.Probes = append(cat.Probes, r.navigate(ctx, "navigate", r.cfg.LoginURL))
	}
	for _, key := range r.set.SectionKeys("login") {
		cat.Probes = append(cat.Probes, r.probeDoc(ctx, key, r.set.SectionCandidates("login", key)))
	}
	if r.cfg.Authenticator != nil {
		p := ProbeResult{Name: "authenticate", Status: Pass, Exists: true}
		if err := r.cfg.Authenticator.Login(ctx, r.doc); err != nil {
			p = ProbeResult{Name: "authenticate", Status: Fail, Error: err.Error()}
			r.logger.Warn("drift: authentication failed", "error", err)
		}
		cat.Probes = append(cat.Probes, p)
	}
	return cat, nil
}

func (r *run) postLogin(ctx context.Context) (Category, error) {
	var cat Category
	if r.cfg.AppURL != "" {
		cat.Probes = append(cat.Probes, r.navigate(ctx, "navigate", r.cfg.AppURL))
	}

	if cands := r.set.SectionCandidates("postLogin", ContainerKey); len(cands) > 0 {
		p := r.waitContainer(ctx, cands)
		cat.Probes = append(cat.Probes, p)
		if p.Status == Fail {
			r.logger.Error("drift: post-login container missing", "candidates", len(cands))
			return cat, fmt.Errorf("%w: post-login container never appeared", ErrCriticalPrecondition)
		}
	}

	for _, key := range r.set.SectionKeys("postLogin") {
		if key == ContainerKey {
			continue
		}
		p := r.probeDoc(ctx, key, r.set.SectionCandidates("postLogin", key))
		if p.Status == Fail && p.Error == "" {
			// Modals and banners come and go.
			p.Status = Warn
			p.Note = "optional element absent"
		}
		cat.Probes = append(cat.Probes, p)
	}
	return cat, nil
}

// waitContainer splits the long timeout across the container candidates.
func (r *run) waitContainer(ctx context.Context, cands locset.Candidates) ProbeResult {
	p := ProbeResult{Name: ContainerKey}
	per := r.cfg.LongTimeout / time.Duration(len(cands))
	match, ok := locset.FirstMatch(ctx, cands, func(ctx context.Context, loc string) (int, bool, error) {
		if err := r.doc.WaitFor(ctx, loc, per); err != nil {
			if docquery.IsTimeout(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		pctx, cancel := docquery.WithProbeTimeout(ctx, r.cfg.ShortTimeout)
		defer cancel()
		n, err := r.doc.Count(pctx, loc)
		return n, err == nil && n > 0, err
	})
	if !ok {
		p.Status = Fail
		p.Note = fmt.Sprintf("%d candidate(s) timed out", match.Tried)
		if match.LastErr != nil {
			p.Error = match.LastErr.Error()
		}
		return p
	}
	p.Exists, p.Count, p.Matched, p.Status = true, match.Count, match.Locator, Pass
	return p
}

func (r *run) table(ctx context.Context) (Category, error) {
	var cat Category
	rows, ok := mining.DetectRows(ctx, r.doc, r.set.RowCandidates(), r.set.Cell(), r.cfg.MinCells, r.cfg.ShortTimeout)
	rowProbe := ProbeResult{Name: "rows", Count: rows.Match.Count}
	switch {
	case !ok:
		rowProbe.Status = Fail
		rowProbe.Note = fmt.Sprintf("no candidate with %d cells (%d tried)", r.cfg.MinCells, rows.Match.Tried)
		if rows.Match.LastErr != nil {
			rowProbe.Error = rows.Match.LastErr.Error()
		}
	case rows.Match.Count < *r.cfg.LowRowCount:
		rowProbe.Exists, rowProbe.Matched, rowProbe.Status = true, rows.Match.Locator, Warn
		rowProbe.Note = fmt.Sprintf("only %d row(s)", rows.Match.Count)
	default:
		rowProbe.Exists, rowProbe.Matched, rowProbe.Status = true, rows.Match.Locator, Pass
	}
	cat.Probes = append(cat.Probes, rowProbe)

	cellProbe := ProbeResult{Name: "cells", Matched: r.set.Cell(), Status: Fail}
	if ok {
		r.rows, r.rowsOK = rows, true
		cellProbe.Exists, cellProbe.Count, cellProbe.Status = true, len(rows.Cells), Pass
	} else {
		cellProbe.Note = "no sample row"
	}
	cat.Probes = append(cat.Probes, cellProbe)
	return cat, nil
}

func (r *run) fields(ctx context.Context) (Category, error) {
	var cat Category
	for _, fd := range r.cfg.Fields {
		cands := r.set.FieldCandidates(fd.Field)
		switch {
		case !r.rowsOK:
			cat.Probes = append(cat.Probes, ProbeResult{Name: fd.Field, Status: Fail, Note: "no sample row"})
		case len(cands) == 0:
			cat.Probes = append(cat.Probes, ProbeResult{Name: fd.Field, Status: Fail, Note: "no locator configured"})
		default:
			cat.Probes = append(cat.Probes, r.probe(ctx, fd.Field, cands, r.rows.Row.Query))
		}
	}
	return cat, nil
}

func (r *run) pagination(ctx context.Context) (Category, error) {
	var cat Category
	for _, key := range r.set.SectionKeys("pagination") {
		cat.Probes = append(cat.Probes, r.probeDoc(ctx, key, r.set.SectionCandidates("pagination", key)))
	}
	return cat, nil
}

func (r *run) navigate(ctx context.Context, name, url string) ProbeResult {
	p := ProbeResult{Name: name, Matched: url, Status: Pass, Exists: true}
	if err := r.doc.Navigate(ctx, url, r.cfg.LongTimeout); err != nil {
		p.Status, p.Exists, p.Error = Fail, false, err.Error()
		r.logger.Warn("drift: navigation failed", "url", url, "error", err)
	}
	return p
}

func (r *run) probeDoc(ctx context.Context, name string, cands locset.Candidates) ProbeResult {
	return r.probe(ctx, name, cands, r.doc.Query)
}

// probe resolves cands first-match-wins within scope. A timeout counts as
// no match.
func (r *run) probe(ctx context.Context, name string, cands locset.Candidates, scope func(context.Context, string) ([]docquery.Element, error)) ProbeResult {
	p := ProbeResult{Name: name, Status: Fail}
	var first docquery.Element
	match, ok := locset.FirstMatch(ctx, cands, func(ctx context.Context, loc string) (int, bool, error) {
		pctx, cancel := docquery.WithProbeTimeout(ctx, r.cfg.ShortTimeout)
		defer cancel()
		els, err := scope(pctx, loc)
		if err != nil {
			if docquery.IsTimeout(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if len(els) == 0 {
			return 0, false, nil
		}
		first = els[0]
		return len(els), true, nil
	})
	if !ok {
		if len(cands) == 0 {
			p.Note = "no locator configured"
		}
		if match.LastErr != nil {
			p.Error = match.LastErr.Error()
		}
		return p
	}
	p.Exists, p.Count, p.Matched, p.Status = true, match.Count, match.Locator, Pass
	if match.Index > 0 {
		p.Note = fmt.Sprintf("matched candidate %d", match.Index+1)
	}

	pctx, cancel := docquery.WithProbeTimeout(ctx, r.cfg.ShortTimeout)
	defer cancel()
	if text, err := first.Text(pctx); err == nil {
		p.Preview = truncate(text, r.cfg.PreviewLen)
	}
	return p
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "…"
}
