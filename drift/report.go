package drift

import (
	"fmt"
	"time"
)

// Status of one probe.
type Status string

const (
	Pass Status = "pass"
	Fail Status = "fail"
	Warn Status = "warn" // counted as passed
)

// Category names, in battery order.
const (
	CategoryLogin      = "login"
	CategoryPostLogin  = "post_login"
	CategoryTable      = "table"
	CategoryFields     = "fields"
	CategoryPagination = "pagination"
)

// RecommendStable is the recommendation of a report without failures.
const RecommendStable = "stable"

// ProbeResult is the outcome of one probe.
type ProbeResult struct {
	Name    string `json:"name"`
	Exists  bool   `json:"exists"`
	Count   int    `json:"count"`
	Matched string `json:"matched,omitempty"`
	Preview string `json:"preview,omitempty"`
	Status  Status `json:"status"`
	Note    string `json:"note,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Category groups the probes of one functional area.
type Category struct {
	Name           string        `json:"name"`
	Probes         []ProbeResult `json:"probes"`
	Recommendation string        `json:"recommendation"`
}

// Counts returns pass (warn included), fail and warn counts.
func (c Category) Counts() (passed, failed, warned int) {
	for _, p := range c.Probes {
		switch p.Status {
		case Pass:
			passed++
		case Warn:
			passed++
			warned++
		case Fail:
			failed++
		}
	}
	return passed, failed, warned
}

// HealthReport is the structured result of one battery run.
type HealthReport struct {
	ID              string     `json:"id"`
	Timestamp       time.Time  `json:"timestamp"`
	Duration        string     `json:"duration,omitempty"`
	Categories      []Category `json:"categories"`
	Passed          int        `json:"passed"`
	Failed          int        `json:"failed"`
	Warnings        int        `json:"warnings"`
	SuccessRate     float64    `json:"successRate"`
	Recommendation  string     `json:"recommendation"`
	MiningSuggested bool       `json:"miningSuggested"`

	// Fatal holds the error that aborted the run, if any.
	Fatal string `json:"fatal,omitempty"`
}

// Category returns the named category.
func (r *HealthReport) Category(name string) (Category, bool) {
	for _, c := range r.Categories {
		if c.Name == name {
			return c, true
		}
	}
	return Category{}, false
}

// Stable reports whether the run completed with no failed probe.
func (r *HealthReport) Stable() bool {
	return r.Fatal == "" && r.Failed == 0
}

// summarize fills the aggregate fields from Categories.
func (r *HealthReport) summarize(suggestAfter int) {
	r.Passed, r.Failed, r.Warnings = 0, 0, 0
	for i := range r.Categories {
		c := &r.Categories[i]
		p, f, w := c.Counts()
		r.Passed += p
		r.Failed += f
		r.Warnings += w
		c.Recommendation = recommend(f)
	}
	if total := r.Passed + r.Failed; total > 0 {
		r.SuccessRate = float64(r.Passed) / float64(total)
	}
	r.Recommendation = recommend(r.Failed)
	if r.Fatal != "" {
		aborted := "run aborted (" + r.Fatal + "): verify the session and page manually"
		if r.Failed == 0 {
			r.Recommendation = aborted
		} else {
			r.Recommendation += "; " + aborted
		}
	}
	r.MiningSuggested = r.Failed > suggestAfter
}

func recommend(failed int) string {
	if failed == 0 {
		return RecommendStable
	}
	return fmt.Sprintf("%d probe(s) failed: run a mining pass and verify the locators manually", failed)
}
