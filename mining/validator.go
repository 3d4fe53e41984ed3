package mining

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/hazyhaar/locguard/docquery"
)

// ErrValidationRejected is returned by Report.Err when the valid ratio is
// below the threshold.
var ErrValidationRejected = errors.New("mining: validation rejected")

// DefaultThreshold is the minimum valid/attempted ratio for acceptance.
const DefaultThreshold = 0.70

// ratioEpsilon absorbs float rounding at the inclusive boundary.
const ratioEpsilon = 1e-9

// ValidatorConfig tunes a Validator.
type ValidatorConfig struct {
	Threshold    float64
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

func (c *ValidatorConfig) defaults() {
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = docquery.ShortTimeout
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// FieldCheck is the live check of one mapped locator.
type FieldCheck struct {
	Locator string `json:"locator"`
	Valid   bool   `json:"valid"`
	Count   int    `json:"count"`
	Visible bool   `json:"visible"`
	Error   string `json:"error,omitempty"`
}

// Report is the validator's verdict.
type Report struct {
	Fields    map[string]FieldCheck `json:"fields"`
	Attempted int                   `json:"attempted"`
	Valid     int                   `json:"valid"`
	Ratio     float64               `json:"ratio"`
	Threshold float64               `json:"threshold"`
	Accepted  bool                  `json:"accepted"`
}

// Err returns nil for an accepted report and ErrValidationRejected otherwise.
func (r *Report) Err() error {
	if r != nil && r.Accepted {
		return nil
	}
	if r == nil {
		return ErrValidationRejected
	}
	return fmt.Errorf("%w: %d/%d valid (%.0f%% < %.0f%%)",
		ErrValidationRejected, r.Valid, r.Attempted, r.Ratio*100, r.Threshold*100)
}

// Accept reports whether valid/attempted reaches threshold, inclusively.
// Nothing attempted is never accepted.
func Accept(valid, attempted int, threshold float64) bool {
	if attempted <= 0 {
		return false
	}
	return float64(valid)/float64(attempted) >= threshold-ratioEpsilon
}

// Validator re-checks a field -> locator mapping against the live document.
type Validator struct {
	doc    docquery.Document
	cfg    ValidatorConfig
	logger *slog.Logger
}

// NewValidator creates a Validator.
func NewValidator(doc docquery.Document, cfg ValidatorConfig) *Validator {
	cfg.defaults()
	return &Validator{doc: doc, cfg: cfg, logger: cfg.Logger}
}

// Validate checks every entry of mapping. An entry is valid iff it matches
// at least once and its first match is visible. Rejection is reported in
// the returned Report, never as an error.
func (v *Validator) Validate(ctx context.Context, mapping map[string]string) *Report {
	rep := &Report{Fields: make(map[string]FieldCheck, len(mapping)), Threshold: v.cfg.Threshold}

	fields := make([]string, 0, len(mapping))
	for f := range mapping {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	for _, f := range fields {
		check := v.check(ctx, mapping[f])
		rep.Fields[f] = check
		rep.Attempted++
		if check.Valid {
			rep.Valid++
		}
	}
	if rep.Attempted > 0 {
		rep.Ratio = float64(rep.Valid) / float64(rep.Attempted)
	}
	rep.Accepted = Accept(rep.Valid, rep.Attempted, rep.Threshold)

	v.logger.Info("validator: mapping checked",
		"valid", rep.Valid, "attempted", rep.Attempted,
		"ratio", rep.Ratio, "accepted", rep.Accepted)
	return rep
}

func (v *Validator) check(ctx context.Context, loc string) FieldCheck {
	pctx, cancel := docquery.WithProbeTimeout(ctx, v.cfg.ProbeTimeout)
	defer cancel()
	fc := FieldCheck{Locator: loc}
	count, vis, err := docquery.FirstVisible(pctx, v.doc, loc)
	if err != nil {
		fc.Error = err.Error()
		return fc
	}
	fc.Count, fc.Visible = count, vis
	fc.Valid = count > 0 && vis
	return fc
}
