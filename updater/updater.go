// Package updater applies an accepted mining result to the persisted
// LocatorSet: backup, plan, single atomic write, change log and an advisory
// self-test.
package updater

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/locguard/docquery"
	"github.com/hazyhaar/locguard/locset"
	"github.com/hazyhaar/locguard/mining"
)

// ErrConfigWrite wraps every backup or persistence failure. The artifact is
// left as it was; the backup is the recovery path.
var ErrConfigWrite = errors.New("updater: config write failed")

// ChangeLog durably records changes. AppendChanges must call persist inside
// its transaction and roll back if persist fails.
type ChangeLog interface {
	AppendChanges(ctx context.Context, changes []Change, persist func() error) error
}

// Config configures an Updater.
type Config struct {
	// Path of the LocatorSet artifact.
	Path string

	// BackupPath defaults to locset.BackupPath(Path).
	BackupPath string

	// ChangeLog is optional. Without it changes are only logged.
	ChangeLog ChangeLog

	// Doc is used by the self-test. Nil skips it.
	Doc docquery.Document

	ProbeTimeout time.Duration
	Now          func() time.Time
	Logger       *slog.Logger
}

func (c *Config) defaults() {
	if c.BackupPath == "" && c.Path != "" {
		c.BackupPath = locset.BackupPath(c.Path)
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = docquery.ShortTimeout
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// SelfTest is the advisory post-write check. It never reverts a write.
type SelfTest struct {
	RowSelector  string `json:"rowSelector"`
	Rows         int    `json:"rows"`
	AutoSelector string `json:"autoSelector,omitempty"`
	AutoRows     int    `json:"autoRows"`
	CellSelector string `json:"cellSelector"`
	Cells        int    `json:"cells"`
	Error        string `json:"error,omitempty"`
}

// Outcome describes one Apply.
type Outcome struct {
	Changes    []Change  `json:"changes"`
	Written    bool      `json:"written"`
	Revision   int       `json:"revision"`
	BackupPath string    `json:"backupPath,omitempty"`
	SelfTest   *SelfTest `json:"selfTest,omitempty"`
}

// Updater is the single writer of one artifact. Callers serialise Apply.
type Updater struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Updater.
func New(cfg Config) *Updater {
	cfg.defaults()
	return &Updater{cfg: cfg, logger: cfg.Logger}
}

// Apply persists res when rep is accepted. A rejected report returns
// mining.ErrValidationRejected and touches nothing. A result that changes
// nothing returns an Outcome with no changes and no write.
func (u *Updater) Apply(ctx context.Context, res *mining.Result, rep *mining.Report) (*Outcome, error) {
	if err := rep.Err(); err != nil {
		return nil, err
	}
	set, err := locset.Load(u.cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}

	at := u.cfg.Now().UTC()
	next, changes, err := Plan(set, res, at)
	if err != nil {
		return nil, fmt.Errorf("%w: plan: %w", ErrConfigWrite, err)
	}
	out := &Outcome{Changes: changes, Revision: set.Revision()}
	if len(changes) == 0 {
		u.logger.Info("updater: no changes", "path", u.cfg.Path, "revision", set.Revision())
		return out, nil
	}

	if err := locset.Backup(u.cfg.Path, u.cfg.BackupPath); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}
	out.BackupPath = u.cfg.BackupPath

	var written *locset.Set
	persist := func() error {
		s, err := locset.Save(u.cfg.Path, next, at)
		if err != nil {
			return err
		}
		written = s
		return nil
	}
	if u.cfg.ChangeLog != nil {
		err = u.cfg.ChangeLog.AppendChanges(ctx, changes, persist)
	} else {
		err = persist()
	}
	if err != nil {
		if written != nil {
			// The artifact was renamed into place but the journal did not commit.
			if rerr := locset.Restore(u.cfg.BackupPath, u.cfg.Path); rerr != nil {
				u.logger.Error("updater: restore after failed commit", "error", rerr, "backup", u.cfg.BackupPath)
			}
		}
		u.logger.Error("updater: write failed", "path", u.cfg.Path, "error", err)
		return nil, fmt.Errorf("%w: %w", ErrConfigWrite, err)
	}

	out.Written = true
	out.Revision = written.Revision()
	for _, c := range changes {
		u.logger.Info("updater: locator changed",
			"field", c.Field, "section", c.Section, "old", c.Old, "new", c.New)
	}
	u.logger.Info("updater: artifact written",
		"path", u.cfg.Path, "revision", out.Revision, "changes", len(changes))

	if u.cfg.Doc != nil {
		out.SelfTest = u.selfTest(ctx, written)
	}
	return out, nil
}

func (u *Updater) selfTest(ctx context.Context, s *locset.Set) *SelfTest {
	cur := s.Current()
	st := &SelfTest{
		RowSelector:  cur.Table.RowSelectors.Primary(),
		AutoSelector: cur.Table.AutoRowSelector,
		CellSelector: s.Cell(),
	}
	count := func(loc string) int {
		pctx, cancel := docquery.WithProbeTimeout(ctx, u.cfg.ProbeTimeout)
		defer cancel()
		n, err := u.cfg.Doc.Count(pctx, loc)
		if err != nil && st.Error == "" {
			st.Error = err.Error()
		}
		return n
	}
	st.Rows = count(st.RowSelector)
	if st.AutoSelector != "" {
		st.AutoRows = count(st.AutoSelector)
	}
	st.Cells = count(st.CellSelector)

	lvl := slog.LevelInfo
	if st.Rows == 0 || st.Cells == 0 {
		lvl = slog.LevelWarn
	}
	u.logger.Log(ctx, lvl, "updater: self-test",
		"row_selector", st.RowSelector, "rows", st.Rows,
		"auto_selector", st.AutoSelector, "auto_rows", st.AutoRows,
		"cells", st.Cells)
	return st
}
