package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"yukemuri/internal/report"
	"yukemuri/internal/server"
	"yukemuri/internal/store"
	"yukemuri/internal/viz"
	"yukemuri/internal/watch"

	"github.com/spf13/cobra"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve artifacts and a JSON API over HTTP",
	Long: `Starts a local HTTP server. The out directory is browsable at /,
and a read-only JSON API lives under /api:
  /api/healthz   database health and table counts
  /api/onsens    tracked onsens
  /api/visits    visits (?onsen=ID&limit=N&since=RFC3339)
  /api/insights  latest analysis run with its insights

Ctrl-C shuts down gracefully.`,
	RunE: runServe,
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Regenerate artifacts whenever the data changes",
	Long: `Watches the database and the revisions directory. After each burst
of changes settles, the report, map and charts are rebuilt. Useful next
to "yu serve" in another terminal.`,
	RunE: runWatch,
}

func runServe(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	addr := serveAddr
	if addr == "" {
		addr = cfg.Serve.Addr
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	fmt.Printf("serving %s on http://%s (Ctrl-C to stop)\n", cfg.OutDir(dataDir), addr)
	return server.Run(ctx, s, server.Options{
		Addr:   addr,
		OutDir: cfg.OutDir(dataDir),
		Debug:  verbose,
	})
}

// regenerate rebuilds every artifact from the current database state.
func regenerate() {
	started := time.Now()
	s, err := store.Open(cfg.DBPath(dataDir))
	if err != nil {
		fmt.Printf("rebuild failed: %v\n", err)
		return
	}
	defer s.Close()

	outDir := cfg.OutDir(dataDir)

	d, err := buildReportData(s, cfg.Report.Title)
	if err != nil {
		fmt.Printf("rebuild failed: %v\n", err)
		return
	}
	if _, err := report.Write(d, outDir); err != nil {
		fmt.Printf("rebuild failed: %v\n", err)
		return
	}

	counts, means, err := visitStats(s)
	if err != nil {
		fmt.Printf("rebuild failed: %v\n", err)
		return
	}
	if len(d.Onsens) > 0 {
		if _, err := viz.WriteMapFile(outDir, cfg.Report.Title, d.Onsens, counts, means); err != nil {
			fmt.Printf("rebuild failed: %v\n", err)
			return
		}
	}
	if _, err := viz.WriteCharts(outDir, d.Visits); err != nil {
		fmt.Printf("rebuild failed: %v\n", err)
		return
	}
	fmt.Printf("rebuilt report, map and charts in %v\n", time.Since(started).Round(time.Millisecond))
}

func runWatch(cmd *cobra.Command, args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	paths := []string{cfg.DBPath(dataDir), cfg.RevisionsDir(dataDir)}
	fmt.Printf("watching %s and %s (Ctrl-C to stop)\n", paths[0], paths[1])

	regenerate()

	w := watch.New(paths, watch.DefaultDebounce, func([]string) { regenerate() })
	if err := w.Run(ctx); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address (default: configured serve.addr)")
	rootCmd.AddCommand(serveCmd, watchCmd)
}
