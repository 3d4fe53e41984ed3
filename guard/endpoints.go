package guard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/hazyhaar/locguard/drift"
	"github.com/hazyhaar/locguard/guard/internal/journal"
	"github.com/hazyhaar/locguard/kit"
)

// ErrNoJournal is returned by history endpoints when no journal is open.
var ErrNoJournal = errors.New("guard: no journal configured")

var errNoJournal = &kit.HTTPError{Status: http.StatusServiceUnavailable, Err: ErrNoJournal}

// Health summarises the artifact and the last battery run.
type Health struct {
	LocatorsPath string                 `json:"locatorsPath"`
	Revision     int                    `json:"revision"`
	UpdatedAt    time.Time              `json:"updatedAt"`
	Journal      bool                   `json:"journal"`
	Latest       *journal.ReportSummary `json:"latest,omitempty"`
	Error        string                 `json:"error,omitempty"`
}

type passRequest struct {
	Trigger string `json:"trigger,omitempty"`
}

type listRequest struct {
	Field string `json:"field,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

type reportRequest struct {
	ID string `json:"id,omitempty"`
}

// Health reports the artifact revision and the stored latest report.
func (g *Guard) Health(ctx context.Context) *Health {
	h := &Health{LocatorsPath: g.cfg.LocatorsPath, Journal: g.journal != nil}
	set, err := g.Locators()
	if err != nil {
		h.Error = err.Error()
	} else {
		h.Revision, h.UpdatedAt = set.Revision(), set.UpdatedAt()
	}
	if g.journal != nil {
		if list, err := g.journal.ListReports(ctx, 1); err == nil && len(list) > 0 {
			h.Latest = list[0]
		}
	}
	return h
}

func (g *Guard) healthEndpoint() kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		return g.Health(ctx), nil
	}
}

func (g *Guard) monitorEndpoint() kit.Endpoint {
	return func(ctx context.Context, _ any) (any, error) {
		rep, err := g.Monitor(ctx)
		if rep == nil {
			return nil, err
		}
		return rep, nil
	}
}

// A failed pass is still a successful call: its status and error are in the result.
func (g *Guard) passEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		trigger := TriggerManual
		if r, ok := req.(*passRequest); ok && r.Trigger != "" {
			trigger = r.Trigger
		}
		pr, _ := g.MiningPass(ctx, trigger)
		return pr, nil
	}
}

func (g *Guard) locatorsEndpoint() kit.Endpoint {
	return func(context.Context, any) (any, error) {
		return g.Locators()
	}
}

func (g *Guard) restoreEndpoint() kit.Endpoint {
	return func(context.Context, any) (any, error) {
		if err := g.RestoreBackup(); err != nil {
			return nil, err
		}
		return g.Locators()
	}
}

func (g *Guard) changesEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if g.journal == nil {
			return nil, errNoJournal
		}
		r, _ := req.(*listRequest)
		if r == nil {
			r = &listRequest{}
		}
		return g.journal.ListChanges(ctx, r.Field, r.Limit)
	}
}

func (g *Guard) reportsEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if g.journal == nil {
			return nil, errNoJournal
		}
		r, _ := req.(*listRequest)
		if r == nil {
			r = &listRequest{}
		}
		return g.journal.ListReports(ctx, r.Limit)
	}
}

func (g *Guard) passesEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		if g.journal == nil {
			return nil, errNoJournal
		}
		r, _ := req.(*listRequest)
		if r == nil {
			r = &listRequest{}
		}
		return g.journal.ListPasses(ctx, r.Limit)
	}
}

func (g *Guard) reportEndpoint() kit.Endpoint {
	return func(ctx context.Context, req any) (any, error) {
		var id string
		if r, ok := req.(*reportRequest); ok {
			id = r.ID
		}
		return g.report(ctx, id)
	}
}

// report returns the stored report id, or the latest when id is empty.
func (g *Guard) report(ctx context.Context, id string) (*drift.HealthReport, error) {
	if g.journal == nil {
		return nil, errNoJournal
	}
	var (
		rep *drift.HealthReport
		err error
	)
	if id == "" {
		rep, err = g.journal.LatestReport(ctx)
	} else {
		rep, err = g.journal.GetReport(ctx, id)
	}
	if err != nil {
		return nil, err
	}
	if rep == nil {
		if id == "" {
			return nil, kit.NotFound(errors.New("no health report yet"))
		}
		return nil, kit.NotFound(fmt.Errorf("report %s not found", id))
	}
	return rep, nil
}

func (g *Guard) logged(op string, e kit.Endpoint) kit.Endpoint {
	return kit.Logging(g.logger, op)(e)
}
