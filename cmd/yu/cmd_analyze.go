package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"yukemuri/internal/dataset"
	"yukemuri/internal/domain"
	"yukemuri/internal/econometrics"
	"yukemuri/internal/insight"
	"yukemuri/internal/modelsearch"
	"yukemuri/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	analyzeDep       string
	analyzeLogDep    bool
	analyzeCriterion string
	analyzeRobust    string
	analyzeMaxVars   int
	analyzeMaxSpecs  int
	analyzeWorkers   int
	analyzeTop       int

	insightsRun string
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the regression model search over the visit history",
	Long: `Assembles the visit dataset, derives candidate regressors, fits every
specification up to --max-vars regressors, ranks them by the chosen
criterion (adjusted R2, AIC or BIC, penalized for failing diagnostics),
and mines insights from the top of the ranking. The run is persisted and
feeds "yu insights" and "yu report".

Example:
  yu analyze --dep rating --criterion adjr2 --robust hc3 --max-vars 3`,
	RunE: runAnalyze,
}

var insightsCmd = &cobra.Command{
	Use:   "insights",
	Short: "Show insights from a stored analysis run",
	Long:  `Lists the insights of the latest run, or of the run given by --run.`,
	RunE:  runInsights,
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	// Config supplies defaults; flags override.
	if analyzeDep == "" {
		analyzeDep = cfg.Analysis.Dependent
	}
	if analyzeCriterion == "" {
		analyzeCriterion = cfg.Analysis.Criterion
	}
	if analyzeRobust == "" {
		analyzeRobust = cfg.Analysis.Robust
	}
	if analyzeMaxVars == 0 {
		analyzeMaxVars = cfg.Analysis.MaxVars
	}
	if analyzeMaxSpecs == 0 {
		analyzeMaxSpecs = cfg.Analysis.MaxSpecs
	}
	if analyzeWorkers == 0 {
		analyzeWorkers = cfg.Analysis.Workers
	}
	if analyzeTop == 0 {
		analyzeTop = cfg.Analysis.TopN
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	tbl, err := dataset.Build(s)
	if err != nil {
		return err
	}
	if tbl.Len() < 10 {
		return fmt.Errorf("only %d visit(s) recorded; the model search needs at least 10", tbl.Len())
	}

	features, err := dataset.DefaultEngineer().Apply(tbl)
	if err != nil {
		return err
	}

	robust, err := econometrics.ParseRobust(analyzeRobust)
	if err != nil {
		return err
	}

	result, err := modelsearch.Run(ctx, tbl, modelsearch.Config{
		Dependent: analyzeDep,
		TryLogDep: analyzeLogDep,
		Criterion: analyzeCriterion,
		Robust:    robust,
		Optional:  features.Candidates(),
		MaxVars:   analyzeMaxVars,
		MaxSpecs:  analyzeMaxSpecs,
		Workers:   analyzeWorkers,
		VIFLimit:  cfg.Analysis.VIFLimit,
	})
	if err != nil {
		return err
	}
	if len(result.Models) == 0 {
		return fmt.Errorf("no specification could be fitted (%d skipped)", len(result.Skipped))
	}

	insights := insight.Discover(result.Run, result.Models, analyzeTop)
	rows, err := result.Rows()
	if err != nil {
		return err
	}
	if err := s.SaveRun(result.Run, rows, insights); err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"run":      result.Run,
			"models":   rows,
			"insights": insights,
		})
	}

	fmt.Printf("run %s: %d specs generated, %d fitted, %d skipped over %d rows%s\n\n",
		result.Run.ID, result.Run.SpecCount, result.Run.FitCount, result.Run.SkipCount,
		result.NRows, droppedSuffix(result.Dropped))

	printRanking(rows, analyzeTop)
	printInsights(insightPtrs(insights))
	return nil
}

func runInsights(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var run *domain.AnalysisRun
	if insightsRun != "" {
		run, err = s.GetRun(insightsRun)
	} else {
		run, err = s.LatestRun()
	}
	if err != nil {
		return fmt.Errorf("no analysis run found, run `yu analyze` first: %w", err)
	}

	insights, err := s.InsightsForRun(run.ID)
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{"run": run, "insights": insights})
	}

	fmt.Printf("run %s (%s, dependent %s, best %s)\n\n",
		run.ID, run.CreatedAt.Format("2006-01-02 15:04"), run.Dependent, run.BestSpec)
	printInsights(insights)
	return nil
}

// droppedSuffix annotates the run summary when listwise deletion removed rows.
func droppedSuffix(dropped int) string {
	if dropped == 0 {
		return ""
	}
	return fmt.Sprintf(" (%d dropped for missing values)", dropped)
}

func printRanking(rows []store.ModelRow, top int) {
	if top > 0 && len(rows) > top {
		rows = rows[:top]
	}
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Rank", "Spec", "Formula", "N", "AdjR2", "AIC", "Score"})
	for _, r := range rows {
		t.AppendRow(table.Row{
			r.Rank, r.SpecID, r.Formula, r.NObs,
			fmt.Sprintf("%.3f", r.AdjR2), fmt.Sprintf("%.1f", r.AIC), fmt.Sprintf("%.3f", r.Score),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	fmt.Println()
}

func printInsights(insights []*domain.Insight) {
	if len(insights) == 0 {
		fmt.Println("no insights mined")
		return
	}
	for _, in := range insights {
		fmt.Printf("[%s] %s\n", in.Severity, in.Title)
		fmt.Printf("    %s (support %.0f%%)\n", in.Detail, in.Support*100)
	}
}

func insightPtrs(insights []domain.Insight) []*domain.Insight {
	out := make([]*domain.Insight, len(insights))
	for i := range insights {
		out[i] = &insights[i]
	}
	return out
}

func init() {
	f := analyzeCmd.Flags()
	f.StringVar(&analyzeDep, "dep", "", "Dependent variable (default from config)")
	f.BoolVar(&analyzeLogDep, "log-dep", false, "Also try log1p of the dependent")
	f.StringVar(&analyzeCriterion, "criterion", "", "Ranking criterion: adjr2, aic or bic")
	f.StringVar(&analyzeRobust, "robust", "", "Robust covariance: none, hc0..hc3")
	f.IntVar(&analyzeMaxVars, "max-vars", 0, "Maximum optional regressors per spec")
	f.IntVar(&analyzeMaxSpecs, "max-specs", 0, "Cap on generated specifications")
	f.IntVar(&analyzeWorkers, "workers", 0, "Concurrent fits (0 = all cores)")
	f.IntVar(&analyzeTop, "top", 0, "Models shown and mined for insights")

	insightsCmd.Flags().StringVar(&insightsRun, "run", "", "Run ID (default: latest)")

	rootCmd.AddCommand(analyzeCmd, insightsCmd)
}
