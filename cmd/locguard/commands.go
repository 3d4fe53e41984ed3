package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/locguard/locset"
	"github.com/hazyhaar/locguard/report"
)

const version = "0.1.0"

var (
	reportFormat string
	serveWatch   bool
)

func init() {
	monitorCmd.Flags().StringVar(&reportFormat, "format", "text", "report format: text, html, md, json")
	serveCmd.Flags().BoolVar(&serveWatch, "watch", false, "run the watch loop alongside the server")
	rootCmd.AddCommand(mineCmd, monitorCmd, watchCmd, serveCmd, mcpCmd, validateCmd, restoreCmd)
}

var mineCmd = &cobra.Command{
	Use:   "mine",
	Short: "Mine fresh locators from the rendered table and apply the validated ones.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		// The miner reads the page as it is; a live browser has to be on the table first.
		if url := e.cfg.Target.AppURL; url != "" {
			if err := e.doc.Navigate(ctx, url, e.cfg.Monitor.LongTimeout); err != nil {
				return fmt.Errorf("navigate %s: %w", url, err)
			}
		}
		pr, err := e.guard.MiningPass(ctx, "cli")
		if perr := printJSON(pr); perr != nil {
			return perr
		}
		return err
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor [--format text|html|md|json]",
	Short: "Run the drift battery once and print the health report.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		rep, runErr := e.guard.Monitor(ctx)
		if rep == nil {
			return runErr
		}
		switch reportFormat {
		case "html":
			err = report.HTML(os.Stdout, rep)
		case "md", "markdown":
			var md string
			if md, err = report.Markdown(rep); err == nil {
				_, err = fmt.Fprint(os.Stdout, md)
			}
		case "json":
			err = printJSON(rep)
		default:
			err = report.Text(os.Stdout, rep)
		}
		return errors.Join(runErr, err)
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Run the battery on an interval; mine when it suggests so and auto_repair is on.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return e.guard.Watch(cmd.Context())
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve [--watch]",
	Short: "Serve the HTTP API with an MCP endpoint at /mcp.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		e, err := setup(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		srv := newMCPServer(e)
		r := e.guard.Router()
		r.Handle("/mcp", mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil))

		httpSrv := &http.Server{
			Addr:              e.cfg.HTTP.Addr,
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		}
		if serveWatch {
			go func() {
				if err := e.guard.Watch(ctx); err != nil {
					e.logger.Error("locguard: watch", "error", err)
				}
			}()
		}
		go func() {
			<-ctx.Done()
			shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			httpSrv.Shutdown(shutCtx)
		}()

		e.logger.Info("locguard: listening", "addr", httpSrv.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the locguard tools over MCP stdio.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		e, err := setup(cmd.Context())
		if err != nil {
			return err
		}
		defer e.Close()
		return newMCPServer(e).Run(cmd.Context(), &mcp.StdioTransport{})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration and decode the locator file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := guardConfig()
		if err != nil {
			return err
		}
		set, err := locset.Load(cfg.LocatorsPath)
		if err != nil {
			return err
		}
		cur := set.Current()
		fmt.Printf("%s: revision %d, %d row selector(s), %d field(s), %d action(s)\n",
			cfg.LocatorsPath, set.Revision(), len(set.RowCandidates()), len(cur.Fields), len(cur.Actions))
		return nil
	},
}

var restoreCmd = &cobra.Command{
	Use:   "restore",
	Short: "Copy the locator backup back over the locator file.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := guardConfig()
		if err != nil {
			return err
		}
		backup := cfg.BackupPath
		if backup == "" {
			backup = locset.BackupPath(cfg.LocatorsPath)
		}
		if err := locset.Restore(backup, cfg.LocatorsPath); err != nil {
			return err
		}
		fmt.Printf("restored %s from %s\n", cfg.LocatorsPath, backup)
		return nil
	},
}

func newMCPServer(e *env) *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "locguard", Version: version}, nil)
	e.guard.RegisterMCP(srv)
	return srv
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
