package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hazyhaar/locguard/docquery"
	"github.com/hazyhaar/locguard/docquery/htmldoc"
	"github.com/hazyhaar/locguard/docquery/roddoc"
	"github.com/hazyhaar/locguard/guard"
)

// env is what every command runs against.
type env struct {
	cfg     *guard.Config
	logger  *slog.Logger
	doc     docquery.Document
	guard   *guard.Guard
	closers []func() error
}

func (e *env) Close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](); err != nil {
			e.logger.Warn("locguard: close", "error", err)
		}
	}
}

func setup(ctx context.Context) (*env, error) {
	logger := newLogger()
	slog.SetDefault(logger)

	cfg, err := guard.LoadConfig(configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	e := &env{cfg: cfg, logger: logger}

	doc, err := e.openDocument(ctx)
	if err != nil {
		e.Close()
		return nil, err
	}
	e.doc = doc

	var j *guard.Journal
	if !noJournal {
		if j, err = guard.OpenJournal(cfg.JournalPath); err != nil {
			e.Close()
			return nil, err
		}
		e.closers = append(e.closers, j.Close)
	}

	e.guard, err = guard.New(guard.Options{
		Config:  cfg,
		Doc:     doc,
		Journal: j,
		Logger:  logger,
	})
	if err != nil {
		e.Close()
		return nil, err
	}
	return e, nil
}

// A snapshot holds one page: navigation targets are cleared so the
// battery probes it as loaded.
func (e *env) openDocument(ctx context.Context) (docquery.Document, error) {
	if htmlPath != "" {
		e.cfg.Target.LoginURL, e.cfg.Target.AppURL = "", ""
		e.logger.Info("locguard: using snapshot", "path", htmlPath)
		return htmldoc.Open(htmlPath, htmldoc.WithLogger(e.logger))
	}

	m := roddoc.NewManager(roddoc.Config{
		RemoteURL:   e.cfg.Browser.Remote,
		UserDataDir: e.cfg.Browser.UserDataDir,
		Headless:    *e.cfg.Browser.Headless,
		Stealth:     *e.cfg.Browser.Stealth,
		Logger:      e.logger,
	})
	if err := m.Start(ctx); err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}
	e.closers = append(e.closers, m.Close)

	doc, err := m.OpenPage(ctx)
	if err != nil {
		return nil, fmt.Errorf("browser: %w", err)
	}
	return doc, nil
}

// guardConfig loads the configuration for commands that need no document.
func guardConfig() (*guard.Config, error) {
	slog.SetDefault(newLogger())
	cfg, err := guard.LoadConfig(configPath, envFile)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
