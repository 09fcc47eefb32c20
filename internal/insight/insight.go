// Package insight mines ranked regression results into short natural-language
// findings. All wording is deterministic template text; confidence comes from
// how consistently a pattern holds across the top-ranked specifications.
package insight

import (
	"fmt"
	"math"
	"sort"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/modelsearch"
)

const (
	alpha = 0.05
	// stableShare is the share of top specs a signed, significant regressor
	// must appear in to count as a robust association.
	stableShare = 0.6
)

// Discover mines the top-N ranked models of a run. The returned insights are
// ordered strongest first, then by title for determinism.
func Discover(run *domain.AnalysisRun, models []modelsearch.ScoredModel, topN int) []domain.Insight {
	timer := logging.StartTimer(logging.SubInsight, "Discover")
	defer timer.Stop()

	if len(models) == 0 {
		return nil
	}
	top := models
	if topN > 0 && len(top) > topN {
		top = top[:topN]
	}

	var out []domain.Insight
	out = append(out, associations(run, top)...)
	if in := fitSummary(run, top[0]); in != nil {
		out = append(out, *in)
	}
	out = append(out, diagnosticPrevalence(run, top)...)
	if in := leverage(run, top[0]); in != nil {
		out = append(out, *in)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Severity != out[j].Severity {
			return severityRank(out[i].Severity) > severityRank(out[j].Severity)
		}
		return out[i].Title < out[j].Title
	})
	for i := range out {
		out[i].RunID = run.ID
	}
	return out
}

func severityRank(s domain.InsightSeverity) int {
	switch s {
	case domain.SeverityStrong:
		return 2
	case domain.SeverityNotable:
		return 1
	}
	return 0
}

// regressorStats aggregates one regressor across the top specs.
type regressorStats struct {
	appears   int
	sigPos    int
	sigNeg    int
	coefSum   float64
	coefCount int
	maxVIF    float64
}

// associations finds regressors that are significant with a stable sign in
// enough of the top specs, and flags the ones whose sign flips.
func associations(run *domain.AnalysisRun, top []modelsearch.ScoredModel) []domain.Insight {
	stats := map[string]*regressorStats{}
	for _, sm := range top {
		for j, name := range sm.Model.Names {
			if name == "intercept" {
				continue
			}
			st := stats[name]
			if st == nil {
				st = &regressorStats{}
				stats[name] = st
			}
			st.appears++
			st.coefSum += sm.Model.Coef[j]
			st.coefCount++
			if v, ok := sm.Diag.VIF[name]; ok && v > st.maxVIF {
				st.maxVIF = v
			}
			if sm.Model.PValue[j] < alpha {
				if sm.Model.Coef[j] > 0 {
					st.sigPos++
				} else {
					st.sigNeg++
				}
			}
		}
	}

	names := make([]string, 0, len(stats))
	for name := range stats {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []domain.Insight
	for _, name := range names {
		st := stats[name]
		if st.appears == 0 {
			continue
		}
		posShare := float64(st.sigPos) / float64(st.appears)
		negShare := float64(st.sigNeg) / float64(st.appears)
		meanCoef := st.coefSum / float64(st.coefCount)

		switch {
		case posShare >= stableShare || negShare >= stableShare:
			direction, share := "higher", posShare
			if negShare > posShare {
				direction, share = "lower", negShare
			}
			severity := domain.SeverityNotable
			if share >= 0.8 {
				severity = domain.SeverityStrong
			}
			out = append(out, domain.Insight{
				Category: "association",
				Severity: severity,
				Title:    fmt.Sprintf("%s is consistently associated with %s %s", name, direction, run.Dependent),
				Detail: fmt.Sprintf(
					"%s is significant (p < %.2f) with a stable sign in %.0f%% of the top %d specifications; mean coefficient %.4f.",
					name, alpha, share*100, len(top), meanCoef),
				Support: share,
			})

		case st.sigPos > 0 && st.sigNeg > 0:
			detail := fmt.Sprintf(
				"%s comes out significantly positive in %d and significantly negative in %d of the top %d specifications. Treat its coefficient as unstable.",
				name, st.sigPos, st.sigNeg, len(top))
			if st.maxVIF > 10 {
				detail += fmt.Sprintf(" Its VIF reaches %.1f, so multicollinearity is the likely cause.", st.maxVIF)
			}
			out = append(out, domain.Insight{
				Category: "fragile-sign",
				Severity: domain.SeverityNotable,
				Title:    fmt.Sprintf("%s flips sign across specifications", name),
				Detail:   detail,
				Support:  float64(st.sigPos+st.sigNeg) / float64(st.appears),
			})
		}
	}
	return out
}

// fitSummary words the best model's explanatory power.
func fitSummary(run *domain.AnalysisRun, best modelsearch.ScoredModel) *domain.Insight {
	adj := best.Model.AdjR2
	var band string
	switch {
	case adj >= 0.7:
		band = "explains most of the variation"
	case adj >= 0.4:
		band = "explains a substantial share of the variation"
	case adj >= 0.15:
		band = "explains a modest share of the variation"
	default:
		band = "explains little of the variation"
	}
	return &domain.Insight{
		Category: "fit",
		Severity: domain.SeverityInfo,
		Title:    fmt.Sprintf("Best specification: %s", best.Spec.Formula()),
		Detail: fmt.Sprintf("The top-ranked model %s in %s (adjusted R² = %.3f over %d observations).",
			band, run.Dependent, adj, best.Model.NObs),
		Support: 1,
	}
}

// diagnosticPrevalence reports how widespread heteroskedasticity and
// non-normal residuals are across the top specs.
func diagnosticPrevalence(run *domain.AnalysisRun, top []modelsearch.ScoredModel) []domain.Insight {
	var hetero, nonNormal int
	for _, sm := range top {
		if sm.Diag.Heteroskedastic(alpha) {
			hetero++
		}
		if sm.Diag.NonNormal(alpha) {
			nonNormal++
		}
	}

	var out []domain.Insight
	n := len(top)
	if share := float64(hetero) / float64(n); share >= 0.5 {
		detail := fmt.Sprintf(
			"Heteroskedasticity tests reject in %d of the top %d specifications.", hetero, n)
		if run.Robust == "none" || run.Robust == "" {
			detail += " Re-run with HC3 robust standard errors before trusting the p-values."
		} else {
			detail += fmt.Sprintf(" Robust (%s) standard errors are already in use.", run.Robust)
		}
		out = append(out, domain.Insight{
			Category: "diagnostics",
			Severity: domain.SeverityNotable,
			Title:    "Heteroskedastic residuals are prevalent",
			Detail:   detail,
			Support:  share,
		})
	}
	if share := float64(nonNormal) / float64(n); share >= 0.5 {
		out = append(out, domain.Insight{
			Category: "diagnostics",
			Severity: domain.SeverityInfo,
			Title:    "Residuals deviate from normality",
			Detail: fmt.Sprintf(
				"Jarque-Bera rejects normality in %d of the top %d specifications. Inspect outlying visits before reading too much into the tails.",
				nonNormal, n),
			Support: share,
		})
	}
	return out
}

// leverage reports influential observations in the best model.
func leverage(run *domain.AnalysisRun, best modelsearch.ScoredModel) *domain.Insight {
	count := best.Diag.InfluentialCount
	if count == 0 {
		return nil
	}
	cutoff := 2 * float64(best.Model.NVars) / float64(best.Model.NObs)
	share := math.Min(float64(count)/float64(best.Model.NObs), 1)
	return &domain.Insight{
		Category: "leverage",
		Severity: domain.SeverityInfo,
		Title:    fmt.Sprintf("%d influential observation(s) in the best model", count),
		Detail: fmt.Sprintf(
			"%d of %d observations exceed the leverage cutoff 2k/n = %.3f. A single unusual visit may be steering the fit.",
			count, best.Model.NObs, cutoff),
		Support: share,
	}
}
