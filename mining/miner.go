// Package mining discovers and validates locators for the semantic fields of
// a data row.
//
// A pass is Miner.Mine (row discovery, row class, per-field strategies)
// followed by Validator.Validate, whose verdict gates the updater. Locator
// generation itself is the pure function Generate over a serialised
// ancestry, so it is testable without a document.
package mining

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/hazyhaar/locguard/docquery"
	"github.com/hazyhaar/locguard/locset"
)

// ErrRowDetection is returned by Mine when no row selector candidate has a
// first match with at least MinCells cells. The result is empty.
var ErrRowDetection = errors.New("mining: row detection failed")

// ColumnCheck inspects the sample row's cells before the positional field
// mapping is trusted. A non-nil error aborts the pass.
type ColumnCheck func(ctx context.Context, cells []docquery.Element) error

// Config tunes a Miner.
type Config struct {
	ClassPrefix      string
	TestIDAttributes []string

	// MinCells is the cell count a row candidate's first match must reach.
	MinCells int

	// MinRowClassLen is the minimum length of a row class candidate.
	MinRowClassLen int

	// ProbeTimeout bounds every live query. Default docquery.ShortTimeout.
	ProbeTimeout time.Duration

	// MaxAncestors bounds the generator's upward walk. Default 3.
	MaxAncestors int

	// Fields is the column layout. Default Fields.
	Fields []FieldDescriptor

	// ColumnCheck is optional; nil trusts the layout.
	ColumnCheck ColumnCheck

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.ClassPrefix == "" {
		c.ClassPrefix = DefaultClassPrefix
	}
	if c.MinCells <= 0 {
		c.MinCells = 10
	}
	if c.MinRowClassLen <= 0 {
		c.MinRowClassLen = 8
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = docquery.ShortTimeout
	}
	if c.MaxAncestors <= 0 {
		c.MaxAncestors = 3
	}
	if len(c.Fields) == 0 {
		c.Fields = Fields
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Mined is one discovered locator.
type Mined struct {
	Field    string   `json:"field"`
	Locator  string   `json:"locator"`
	State    State    `json:"state"`
	Strategy Strategy `json:"strategy"`
}

// Result is the outcome of one mining pass.
type Result struct {
	RowSelector string `json:"rowSelector,omitempty"`
	RowCount    int    `json:"rowCount"`
	CellCount   int    `json:"cellCount"`

	// RowClass is the optional row-class candidate, "tag.class".
	RowClass string `json:"rowClass,omitempty"`

	Fields  map[string]Mined  `json:"fields"`
	Missing map[string]string `json:"missing,omitempty"`
}

func newResult() *Result {
	return &Result{Fields: make(map[string]Mined), Missing: make(map[string]string)}
}

// Mapping returns field -> locator, the validator's input. The row class is
// not a field and is never part of it.
func (r *Result) Mapping() map[string]string {
	out := make(map[string]string, len(r.Fields))
	for k, v := range r.Fields {
		out[k] = v.Locator
	}
	return out
}

// FieldNames returns the mined field ids, sorted.
func (r *Result) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for k := range r.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Empty reports whether nothing was mined.
func (r *Result) Empty() bool {
	return r == nil || (len(r.Fields) == 0 && r.RowClass == "")
}

// Miner mines one live document against one LocatorSet.
type Miner struct {
	doc    docquery.Document
	set    *locset.Set
	cfg    Config
	gen    GeneratorOptions
	logger *slog.Logger
}

// NewMiner creates a Miner.
func NewMiner(doc docquery.Document, set *locset.Set, cfg Config) *Miner {
	cfg.defaults()
	return &Miner{
		doc: doc,
		set: set,
		cfg: cfg,
		gen: GeneratorOptions{
			ClassPrefix:      cfg.ClassPrefix,
			TestIDAttributes: cfg.TestIDAttributes,
			MaxAncestors:     cfg.MaxAncestors,
		},
		logger: cfg.Logger,
	}
}

// Mine runs one pass. Row detection failure returns an empty Result and
// ErrRowDetection. Field-level failures are recorded in Result.Missing and
// never returned.
func (m *Miner) Mine(ctx context.Context) (*Result, error) {
	res := newResult()

	rows, ok := DetectRows(ctx, m.doc, m.set.RowCandidates(), m.set.Cell(), m.cfg.MinCells, m.cfg.ProbeTimeout)
	if !ok {
		m.logger.Warn("miner: row detection failed",
			"tried", rows.Match.Tried, "min_cells", m.cfg.MinCells, "last_error", rows.Match.LastErr)
		return res, fmt.Errorf("%w: %d candidates, none with %d cells", ErrRowDetection, rows.Match.Tried, m.cfg.MinCells)
	}
	res.RowSelector = rows.Match.Locator
	res.RowCount = rows.Match.Count
	res.CellCount = len(rows.Cells)
	m.logger.Debug("miner: rows detected",
		"selector", res.RowSelector, "rows", res.RowCount, "cells", res.CellCount)

	res.RowClass = m.rowClass(ctx, rows.Row)

	if m.cfg.ColumnCheck != nil {
		if err := m.cfg.ColumnCheck(ctx, rows.Cells); err != nil {
			return newResult(), fmt.Errorf("miner: column check: %w", err)
		}
	}

	for _, fd := range m.cfg.Fields {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("miner: %w", err)
		}
		mined, reason := m.mineField(ctx, fd, rows.Cells)
		if reason != "" {
			res.Missing[fd.Field] = reason
			m.logger.Debug("miner: field not mined", "field", fd.Field, "reason", reason)
			continue
		}
		res.Fields[fd.Field] = mined
		m.logger.Debug("miner: field mined", "field", fd.Field, "locator", mined.Locator, "state", mined.State)
	}

	m.logger.Info("miner: pass complete",
		"row_selector", res.RowSelector, "row_class", res.RowClass,
		"mined", len(res.Fields), "missing", len(res.Missing))
	return res, nil
}

func (m *Miner) mineField(ctx context.Context, fd FieldDescriptor, cells []docquery.Element) (mined Mined, reason string) {
	if fd.Cell < 0 || fd.Cell >= len(cells) {
		return Mined{}, ReasonNoCell
	}
	fn, ok := strategies[fd.Strategy]
	if !ok {
		return Mined{}, ReasonNoStrategy
	}
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("miner: strategy panicked", "field", fd.Field, "panic", r)
			mined, reason = Mined{}, fmt.Sprintf("strategy panic: %v", r)
		}
	}()
	mined, reason = fn(ctx, m, fd, cells[fd.Cell])
	if reason != "" {
		return Mined{}, reason
	}
	mined.Field = fd.Field
	mined.Strategy = fd.Strategy
	return mined, ""
}

// rowClass picks the longest prefixed class of at least MinRowClassLen
// characters on the row element.
func (m *Miner) rowClass(ctx context.Context, row docquery.Element) string {
	pctx, cancel := docquery.WithProbeTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	anc, err := row.Describe(pctx, 0)
	if err != nil || len(anc) == 0 {
		return ""
	}
	n := anc[0]
	best := ""
	for _, c := range n.Classes {
		if strings.HasPrefix(c, m.cfg.ClassPrefix) && len(c) >= m.cfg.MinRowClassLen && len(c) > len(best) && cssIdent.MatchString(c) {
			best = c
		}
	}
	if best == "" {
		return ""
	}
	return n.Tag + "." + best
}

func (m *Miner) query(ctx context.Context, el docquery.Element, loc string) ([]docquery.Element, error) {
	pctx, cancel := docquery.WithProbeTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return el.Query(pctx, loc)
}

func (m *Miner) text(ctx context.Context, el docquery.Element) (string, error) {
	pctx, cancel := docquery.WithProbeTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	return el.Text(pctx)
}

// describe returns the element's ancestry cut before the enclosing cell.
func (m *Miner) describe(ctx context.Context, el docquery.Element) docquery.Ancestry {
	pctx, cancel := docquery.WithProbeTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	anc, err := el.Describe(pctx, m.cfg.MaxAncestors)
	if err != nil {
		return nil
	}
	for i, n := range anc {
		if cellBoundary(n) {
			return anc[:i]
		}
	}
	return anc
}

// visible reports whether loc resolves live to a visible first match.
func (m *Miner) visible(ctx context.Context, loc string) bool {
	pctx, cancel := docquery.WithProbeTimeout(ctx, m.cfg.ProbeTimeout)
	defer cancel()
	count, vis, err := docquery.FirstVisible(pctx, m.doc, loc)
	return err == nil && count > 0 && vis
}

// Rows is the outcome of row discovery.
type Rows struct {
	Match locset.Match
	Row   docquery.Element
	Cells []docquery.Element
}

// DetectRows resolves the row candidates first-match-wins: the first
// candidate whose first match holds at least minCells cells is accepted.
func DetectRows(ctx context.Context, doc docquery.Document, cands locset.Candidates, cellSel string, minCells int, timeout time.Duration) (Rows, bool) {
	var rows Rows
	match, ok := locset.FirstMatch(ctx, cands, func(ctx context.Context, loc string) (int, bool, error) {
		pctx, cancel := docquery.WithProbeTimeout(ctx, timeout)
		defer cancel()
		els, err := doc.Query(pctx, loc)
		if err != nil {
			if docquery.IsTimeout(err) {
				return 0, false, nil
			}
			return 0, false, err
		}
		if len(els) == 0 {
			return 0, false, nil
		}
		cells, err := els[0].Query(pctx, cellSel)
		if err != nil {
			return len(els), false, err
		}
		if len(cells) < minCells {
			return len(els), false, nil
		}
		rows.Row, rows.Cells = els[0], cells
		return len(els), true, nil
	})
	rows.Match = match
	return rows, ok
}
