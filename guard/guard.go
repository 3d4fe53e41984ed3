// Package guard wires the locator resilience pipeline to a document, the
// persisted LocatorSet and the journal: mining passes (mine, validate,
// apply), drift monitoring and the watch loop that connects them.
package guard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/locguard/docquery"
	"github.com/hazyhaar/locguard/drift"
	"github.com/hazyhaar/locguard/guard/internal/journal"
	"github.com/hazyhaar/locguard/idgen"
	"github.com/hazyhaar/locguard/locset"
	"github.com/hazyhaar/locguard/mining"
	"github.com/hazyhaar/locguard/updater"
	"github.com/hazyhaar/locguard/watch"
)

// Journal is the history store.
type Journal = journal.Store

// OpenJournal opens the journal database at path.
func OpenJournal(path string) (*Journal, error) { return journal.Open(path) }

// PassStatus is the typed outcome of a mining pass.
type PassStatus string

const (
	PassApplied            PassStatus = "applied"
	PassNoChange           PassStatus = "no-change"
	PassRejected           PassStatus = "rejected"
	PassRowDetectionFailed PassStatus = "row-detection-failed"
	PassWriteFailed        PassStatus = "write-failed"
	PassFailed             PassStatus = "failed"
)

// Pass triggers.
const (
	TriggerManual = "manual"
	TriggerWatch  = "watch"
)

// PassResult describes one mining pass.
type PassResult struct {
	ID         string           `json:"id"`
	Trigger    string           `json:"trigger"`
	Status     PassStatus       `json:"status"`
	Mining     *mining.Result   `json:"mining,omitempty"`
	Validation *mining.Report   `json:"validation,omitempty"`
	Outcome    *updater.Outcome `json:"outcome,omitempty"`
	Error      string           `json:"error,omitempty"`
	StartedAt  time.Time        `json:"startedAt"`
	FinishedAt time.Time        `json:"finishedAt"`
}

// Options configures a Guard.
type Options struct {
	Config *Config
	Doc    docquery.Document

	// Journal is optional.
	Journal *Journal

	// Authenticator runs between the login and post-login probes.
	Authenticator drift.Authenticator

	// ColumnCheck is handed to the miner.
	ColumnCheck mining.ColumnCheck

	Now    func() time.Time
	Logger *slog.Logger
}

// Guard runs mining passes and monitor batteries against one document.
type Guard struct {
	cfg     *Config
	doc     docquery.Document
	journal *Journal
	auth    drift.Authenticator
	colChk  mining.ColumnCheck
	now     func() time.Time
	passID  idgen.Generator
	logger  *slog.Logger

	// mu serialises passes, battery runs and restores. They share one
	// document and the updater is the artifact's single writer.
	mu sync.Mutex
}

// New creates a Guard.
func New(opts Options) (*Guard, error) {
	if opts.Doc == nil {
		return nil, errors.New("guard: a document is required")
	}
	cfg := opts.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Guard{
		cfg:     cfg,
		doc:     opts.Doc,
		journal: opts.Journal,
		auth:    opts.Authenticator,
		colChk:  opts.ColumnCheck,
		now:     opts.Now,
		passID:  idgen.Prefixed("pass_", idgen.UUIDv7()),
		logger:  opts.Logger,
	}, nil
}

// Config returns the configuration in use.
func (g *Guard) Config() *Config { return g.cfg }

// Locators loads the persisted LocatorSet.
func (g *Guard) Locators() (*locset.Set, error) {
	return locset.Load(g.cfg.LocatorsPath)
}

// BackupPath returns the artifact's backup path.
func (g *Guard) BackupPath() string {
	if g.cfg.BackupPath != "" {
		return g.cfg.BackupPath
	}
	return locset.BackupPath(g.cfg.LocatorsPath)
}

// MiningPass mines, validates and applies. The returned PassResult is never
// nil; err is the pass-level failure (row detection, rejection, write) that
// Status classifies.
func (g *Guard) MiningPass(ctx context.Context, trigger string) (pr *PassResult, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if trigger == "" {
		trigger = TriggerManual
	}
	pr = &PassResult{ID: g.passID(), Trigger: trigger, StartedAt: g.now().UTC()}
	log := g.logger.With("pass", pr.ID, "trigger", trigger)

	defer func() {
		if p := recover(); p != nil {
			log.Error("guard: pass panicked", "panic", p)
			err = fmt.Errorf("guard: pass panicked: %v", p)
			pr.Status = PassFailed
		}
		if err != nil {
			pr.Error = err.Error()
		}
		pr.FinishedAt = g.now().UTC()
		g.recordPass(ctx, pr)
		log.Info("guard: pass finished", "status", pr.Status, "error", pr.Error)
	}()

	set, err := g.Locators()
	if err != nil {
		pr.Status = PassFailed
		return pr, err
	}

	res, err := mining.NewMiner(g.doc, set, mining.Config{
		ClassPrefix:      g.cfg.Mining.ClassPrefix,
		TestIDAttributes: g.cfg.Mining.TestIDAttributes,
		MinCells:         g.cfg.Mining.MinCells,
		MinRowClassLen:   g.cfg.Mining.MinRowClassLen,
		ProbeTimeout:     g.cfg.Mining.ProbeTimeout,
		ColumnCheck:      g.colChk,
		Logger:           g.logger,
	}).Mine(ctx)
	pr.Mining = res
	if err != nil {
		pr.Status = PassFailed
		if errors.Is(err, mining.ErrRowDetection) {
			pr.Status = PassRowDetectionFailed
		}
		return pr, err
	}

	rep := mining.NewValidator(g.doc, mining.ValidatorConfig{
		Threshold:    g.cfg.Validation.Threshold,
		ProbeTimeout: g.cfg.Mining.ProbeTimeout,
		Logger:       g.logger,
	}).Validate(ctx, res.Mapping())
	pr.Validation = rep
	if err := rep.Err(); err != nil {
		pr.Status = PassRejected
		return pr, err
	}

	ucfg := updater.Config{
		Path:         g.cfg.LocatorsPath,
		BackupPath:   g.cfg.BackupPath,
		Doc:          g.doc,
		ProbeTimeout: g.cfg.Mining.ProbeTimeout,
		Now:          g.now,
		Logger:       g.logger,
	}
	if g.journal != nil {
		ucfg.ChangeLog = g.journal.ForPass(pr.ID)
	}
	out, err := updater.New(ucfg).Apply(ctx, res, rep)
	pr.Outcome = out
	if err != nil {
		pr.Status = PassFailed
		if errors.Is(err, updater.ErrConfigWrite) {
			pr.Status = PassWriteFailed
		}
		return pr, err
	}
	pr.Status = PassNoChange
	if out.Written {
		pr.Status = PassApplied
	}
	return pr, nil
}

func (g *Guard) recordPass(ctx context.Context, pr *PassResult) {
	if g.journal == nil {
		return
	}
	p := &journal.Pass{
		ID:         pr.ID,
		Trigger:    pr.Trigger,
		Status:     string(pr.Status),
		Error:      pr.Error,
		StartedAt:  pr.StartedAt.UnixMilli(),
		FinishedAt: pr.FinishedAt.UnixMilli(),
	}
	if pr.Mining != nil {
		p.RowSelector = pr.Mining.RowSelector
		p.Mined = len(pr.Mining.Fields)
	}
	if pr.Validation != nil {
		p.Valid, p.Attempted = pr.Validation.Valid, pr.Validation.Attempted
	}
	if pr.Outcome != nil {
		p.Changes, p.Revision = len(pr.Outcome.Changes), pr.Outcome.Revision
	}
	// The pass context may already be cancelled; the record still belongs in the journal.
	if err := g.journal.RecordPass(context.WithoutCancel(ctx), p); err != nil {
		g.logger.Error("guard: record pass", "pass", pr.ID, "error", err)
	}
}

// Monitor runs the drift battery and stores the report. The report is
// returned, best-effort, even with a run-level error.
func (g *Guard) Monitor(ctx context.Context) (*drift.HealthReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, err := g.Locators()
	if err != nil {
		return nil, err
	}
	rep, err := drift.New(g.doc, set, drift.Config{
		LoginURL:           g.cfg.Target.LoginURL,
		AppURL:             g.cfg.Target.AppURL,
		ShortTimeout:       g.cfg.Monitor.ShortTimeout,
		LongTimeout:        g.cfg.Monitor.LongTimeout,
		LowRowCount:        g.cfg.Monitor.LowRowCount,
		SuggestMiningAfter: g.cfg.Monitor.SuggestMiningAfter,
		MinCells:           g.cfg.Mining.MinCells,
		PreviewLen:         g.cfg.Monitor.PreviewLen,
		Authenticator:      g.auth,
		Now:                g.now,
		Logger:             g.logger,
	}).Run(ctx)
	if g.journal != nil && rep != nil {
		if serr := g.journal.SaveReport(context.WithoutCancel(ctx), rep); serr != nil {
			g.logger.Error("guard: save report", "id", rep.ID, "error", serr)
		}
	}
	return rep, err
}

// Artifact polling used by Watch.
const (
	ArtifactPoll     = 2 * time.Second
	ArtifactDebounce = time.Second
)

// Watch runs the battery now and then every Monitor.Interval until ctx is
// done. With auto_repair on, a report suggesting mining starts a pass. An
// edit of the locator file, including one made by a pass, re-runs the
// battery.
func (g *Guard) Watch(ctx context.Context) error {
	interval := g.cfg.Monitor.Interval
	g.logger.Info("guard: watching", "interval", interval, "auto_repair", g.cfg.Monitor.AutoRepair)
	go g.watchArtifact(ctx, ArtifactPoll, ArtifactDebounce)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		g.watchOnce(ctx)
		select {
		case <-ctx.Done():
			g.logger.Info("guard: watch stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (g *Guard) watchArtifact(ctx context.Context, poll, debounce time.Duration) {
	w := watch.New(watch.FileVersion(g.cfg.LocatorsPath), watch.Options{
		Interval: poll,
		Debounce: debounce,
		Logger:   g.logger,
	})
	w.OnChange(ctx, func() error {
		rep, err := g.Monitor(ctx)
		if rep != nil {
			g.logger.Info("guard: locator file changed, battery re-run",
				"report", rep.ID, "failed", rep.Failed, "recommendation", rep.Recommendation)
		}
		return err
	})
}

func (g *Guard) watchOnce(ctx context.Context) {
	rep, err := g.Monitor(ctx)
	if err != nil {
		g.logger.Warn("guard: monitor run failed", "error", err)
	}
	if rep == nil || !rep.MiningSuggested {
		return
	}
	if !g.cfg.Monitor.AutoRepair {
		g.logger.Warn("guard: mining suggested, auto_repair is off", "report", rep.ID, "failed", rep.Failed)
		return
	}
	if _, err := g.MiningPass(ctx, TriggerWatch); err != nil {
		g.logger.Warn("guard: triggered pass failed", "report", rep.ID, "error", err)
	}
}

// RestoreBackup copies the backup over the artifact.
func (g *Guard) RestoreBackup() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := locset.Restore(g.BackupPath(), g.cfg.LocatorsPath); err != nil {
		return fmt.Errorf("guard: restore: %w", err)
	}
	g.logger.Info("guard: backup restored", "backup", g.BackupPath(), "path", g.cfg.LocatorsPath)
	return nil
}
