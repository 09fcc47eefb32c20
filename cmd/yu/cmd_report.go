package main

import (
	"errors"
	"fmt"
	"time"

	"yukemuri/internal/report"
	"yukemuri/internal/store"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"
)

var (
	reportOut    string
	reportRender bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Generate the markdown report",
	Long: `Builds a date-stamped markdown report from the tracked data: visit
overview, spending, top onsens, monthly histogram, the latest analysis
ranking and insights, and the current ruleset.

--render pretty-prints the report to the terminal instead of only
writing the file.`,
	RunE: runReport,
}

// buildReportData assembles everything the report needs from the store.
// Missing pieces (no analysis run yet, no revisions) are simply left nil.
func buildReportData(s *store.Store, title string) (*report.Data, error) {
	d := &report.Data{Title: title, Now: time.Now().UTC()}

	var err error
	if d.Onsens, err = s.ListOnsens(); err != nil {
		return nil, err
	}
	if d.Visits, err = s.ListVisits(store.VisitFilter{}); err != nil {
		return nil, err
	}
	if d.Rules, err = s.ListRules(true); err != nil {
		return nil, err
	}

	if latest, err := s.LatestRevision(); err == nil {
		d.Latest = latest
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	run, err := s.LatestRun()
	switch {
	case errors.Is(err, store.ErrNotFound):
		return d, nil
	case err != nil:
		return nil, err
	}
	d.Run = run
	if d.Models, err = s.ModelsForRun(run.ID); err != nil {
		return nil, err
	}
	if d.Insights, err = s.InsightsForRun(run.ID); err != nil {
		return nil, err
	}
	return d, nil
}

func runReport(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	d, err := buildReportData(s, cfg.Report.Title)
	if err != nil {
		return err
	}

	outDir := reportOut
	if outDir == "" {
		outDir = cfg.OutDir(dataDir)
	}
	path, err := report.Write(d, outDir)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)

	if reportRender {
		r, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(cfg.Report.WordWrap),
		)
		if err != nil {
			return err
		}
		out, err := r.Render(report.Build(d))
		if err != nil {
			return err
		}
		fmt.Print(out)
	}
	return nil
}

func init() {
	reportCmd.Flags().StringVar(&reportOut, "out", "", "Output directory (default: configured out dir)")
	reportCmd.Flags().BoolVar(&reportRender, "render", false, "Render the report to the terminal")
	rootCmd.AddCommand(reportCmd)
}
