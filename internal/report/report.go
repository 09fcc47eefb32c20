// Package report renders the markdown status report: visit overview,
// spending, top onsens, the latest analysis and the current ruleset. Output
// is byte-deterministic for a given dataset so reports diff cleanly.
package report

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"

	"github.com/shopspring/decimal"
)

// Data is everything a report draws from. Nil/empty sections are omitted
// from the output.
type Data struct {
	Title    string
	Now      time.Time
	Onsens   []*domain.Onsen
	Visits   []*domain.Visit
	Rules    []*domain.Rule
	Latest   *domain.Revision
	Run      *domain.AnalysisRun
	Models   []store.ModelRow
	Insights []*domain.Insight
}

// Build renders the markdown report.
func Build(d *Data) string {
	timer := logging.StartTimer(logging.SubReport, "Build")
	defer timer.Stop()

	var sb strings.Builder
	title := d.Title
	if title == "" {
		title = "Onsen Tracker Report"
	}
	fmt.Fprintf(&sb, "# %s\n\n", title)
	fmt.Fprintf(&sb, "Generated %s\n\n", d.Now.UTC().Format("2006-01-02"))

	writeOverview(&sb, d)
	writeSpending(&sb, d)
	writeTopOnsens(&sb, d)
	writeMonthly(&sb, d)
	writeAnalysis(&sb, d)
	writeInsights(&sb, d)
	writeRuleset(&sb, d)

	return sb.String()
}

// Write renders the report and writes it under outDir with a date-stamped
// name, returning the path.
func Write(d *Data, outDir string) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("report: create output directory: %w", err)
	}
	path := filepath.Join(outDir, fmt.Sprintf("report-%s.md", d.Now.UTC().Format("2006-01-02")))
	if err := os.WriteFile(path, []byte(Build(d)), 0o644); err != nil {
		return "", fmt.Errorf("report: write %s: %w", path, err)
	}
	return path, nil
}

func writeOverview(sb *strings.Builder, d *Data) {
	sb.WriteString("## Overview\n\n")
	if len(d.Visits) == 0 {
		sb.WriteString("No visits recorded yet.\n\n")
		return
	}

	unique := map[int64]bool{}
	var ratingSum float64
	rated := 0
	for _, v := range d.Visits {
		unique[v.OnsenID] = true
		if v.Rating > 0 {
			ratingSum += v.Rating
			rated++
		}
	}
	first, last := d.Visits[0].VisitedAt, d.Visits[0].VisitedAt
	for _, v := range d.Visits {
		if v.VisitedAt.Before(first) {
			first = v.VisitedAt
		}
		if v.VisitedAt.After(last) {
			last = v.VisitedAt
		}
	}

	fmt.Fprintf(sb, "- Visits: %d across %d onsens\n", len(d.Visits), len(unique))
	fmt.Fprintf(sb, "- Span: %s to %s\n", first.UTC().Format("2006-01-02"), last.UTC().Format("2006-01-02"))
	if rated > 0 {
		fmt.Fprintf(sb, "- Mean rating: %.2f over %d rated visits\n", ratingSum/float64(rated), rated)
	}
	if streak := weeklyStreak(d.Visits, d.Now); streak > 0 {
		fmt.Fprintf(sb, "- Current weekly streak: %d week(s) with at least one visit\n", streak)
	}
	sb.WriteString("\n")
}

// weeklyStreak counts consecutive ISO weeks ending at now's week with at
// least one visit.
func weeklyStreak(visits []*domain.Visit, now time.Time) int {
	weeks := map[[2]int]bool{}
	for _, v := range visits {
		y, w := v.VisitedAt.UTC().ISOWeek()
		weeks[[2]int{y, w}] = true
	}
	streak := 0
	cursor := now.UTC()
	for {
		y, w := cursor.ISOWeek()
		if !weeks[[2]int{y, w}] {
			break
		}
		streak++
		cursor = cursor.AddDate(0, 0, -7)
	}
	return streak
}

func writeSpending(sb *strings.Builder, d *Data) {
	if len(d.Visits) == 0 {
		return
	}
	total := decimal.Zero
	for _, v := range d.Visits {
		total = total.Add(v.Cost)
	}
	mean := total.DivRound(decimal.NewFromInt(int64(len(d.Visits))), 2)
	sb.WriteString("## Spending\n\n")
	fmt.Fprintf(sb, "- Total: %s\n", total.StringFixed(0))
	fmt.Fprintf(sb, "- Mean per visit: %s\n\n", mean.StringFixed(2))
}

func writeTopOnsens(sb *strings.Builder, d *Data) {
	if len(d.Visits) == 0 || len(d.Onsens) == 0 {
		return
	}
	type entry struct {
		name  string
		count int
		sum   float64
		rated int
	}
	byID := map[int64]*entry{}
	for _, o := range d.Onsens {
		byID[o.ID] = &entry{name: o.Name}
	}
	for _, v := range d.Visits {
		e := byID[v.OnsenID]
		if e == nil {
			continue
		}
		e.count++
		if v.Rating > 0 {
			e.sum += v.Rating
			e.rated++
		}
	}

	entries := make([]*entry, 0, len(byID))
	for _, e := range byID {
		if e.count > 0 {
			entries = append(entries, e)
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		mi, mj := meanOf(entries[i].sum, entries[i].rated), meanOf(entries[j].sum, entries[j].rated)
		if mi != mj {
			return mi > mj
		}
		if entries[i].count != entries[j].count {
			return entries[i].count > entries[j].count
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > 10 {
		entries = entries[:10]
	}

	sb.WriteString("## Top Onsens\n\n")
	sb.WriteString("| Onsen | Visits | Mean rating |\n")
	sb.WriteString("|---|---:|---:|\n")
	for _, e := range entries {
		rating := "-"
		if e.rated > 0 {
			rating = fmt.Sprintf("%.2f", e.sum/float64(e.rated))
		}
		fmt.Fprintf(sb, "| %s | %d | %s |\n", e.name, e.count, rating)
	}
	sb.WriteString("\n")
}

func meanOf(sum float64, n int) float64 {
	if n == 0 {
		return math.Inf(-1)
	}
	return sum / float64(n)
}

func writeMonthly(sb *strings.Builder, d *Data) {
	if len(d.Visits) == 0 {
		return
	}
	counts := map[string]int{}
	for _, v := range d.Visits {
		counts[v.VisitedAt.UTC().Format("2006-01")]++
	}
	months := make([]string, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	sort.Strings(months)

	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	sb.WriteString("## Visits per Month\n\n```\n")
	for _, m := range months {
		bar := strings.Repeat("#", counts[m]*40/maxInt(max, 1))
		fmt.Fprintf(sb, "%s %3d %s\n", m, counts[m], bar)
	}
	sb.WriteString("```\n\n")
}

func writeAnalysis(sb *strings.Builder, d *Data) {
	if d.Run == nil || len(d.Models) == 0 {
		return
	}
	sb.WriteString("## Latest Analysis\n\n")
	fmt.Fprintf(sb, "Run %s: dependent `%s`, criterion `%s`, robust `%s`, %d rows, %d/%d specifications fitted.\n\n",
		shortID(d.Run.ID), d.Run.Dependent, d.Run.Criterion, d.Run.Robust,
		d.Run.Rows, d.Run.FitCount, d.Run.SpecCount)

	sb.WriteString("| Rank | Specification | Adj. R² | AIC | BIC |\n")
	sb.WriteString("|---:|---|---:|---:|---:|\n")
	limit := len(d.Models)
	if limit > 10 {
		limit = 10
	}
	for _, m := range d.Models[:limit] {
		fmt.Fprintf(sb, "| %d | `%s` | %.3f | %.1f | %.1f |\n", m.Rank, m.Formula, m.AdjR2, m.AIC, m.BIC)
	}
	sb.WriteString("\n")

	writeBestModel(sb, d.Models[0])
}

// writeBestModel renders the coefficient table of the top-ranked model with
// significance stars.
func writeBestModel(sb *strings.Builder, best store.ModelRow) {
	var coefs map[string]struct {
		Coef   float64 `json:"coef"`
		StdErr float64 `json:"std_err"`
		T      float64 `json:"t"`
		P      float64 `json:"p"`
	}
	if err := json.Unmarshal(best.Coefficients, &coefs); err != nil {
		return
	}
	names := make([]string, 0, len(coefs))
	for n := range coefs {
		names = append(names, n)
	}
	sort.Strings(names)

	fmt.Fprintf(sb, "### Best model: `%s`\n\n", best.Formula)
	sb.WriteString("| Regressor | Coef. | Std. err. | t | p | |\n")
	sb.WriteString("|---|---:|---:|---:|---:|---|\n")
	for _, n := range names {
		c := coefs[n]
		fmt.Fprintf(sb, "| %s | %.4f | %.4f | %.2f | %.3f | %s |\n",
			n, c.Coef, c.StdErr, c.T, c.P, stars(c.P))
	}
	sb.WriteString("\nSignificance: `***` p<0.01, `**` p<0.05, `*` p<0.1\n\n")
}

func stars(p float64) string {
	switch {
	case p < 0.01:
		return "***"
	case p < 0.05:
		return "**"
	case p < 0.1:
		return "*"
	}
	return ""
}

func writeInsights(sb *strings.Builder, d *Data) {
	if len(d.Insights) == 0 {
		return
	}
	sb.WriteString("## Insights\n\n")
	for _, in := range d.Insights {
		fmt.Fprintf(sb, "- **[%s] %s** — %s\n", in.Severity, in.Title, in.Detail)
	}
	sb.WriteString("\n")
}

func writeRuleset(sb *strings.Builder, d *Data) {
	if len(d.Rules) == 0 {
		return
	}
	sb.WriteString("## Current Ruleset\n\n")
	for _, r := range d.Rules {
		if !r.Active {
			continue
		}
		title := r.Title
		if title != "" {
			title = " " + title + ":"
		}
		fmt.Fprintf(sb, "- **%s**%s %s\n", r.Code, title, r.Body)
	}
	if d.Latest != nil {
		fmt.Fprintf(sb, "\nLatest revision: %d (%d-W%02d, %s)\n",
			d.Latest.Version, d.Latest.ISOYear, d.Latest.ISOWeek, d.Latest.Status)
	}
	sb.WriteString("\n")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
