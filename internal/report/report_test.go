package report

import (
	"os"
	"strings"
	"testing"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/store"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleData() *Data {
	now := time.Date(2025, 11, 10, 9, 0, 0, 0, time.UTC)
	onsens := []*domain.Onsen{
		{ID: 1, Name: "Kusatsu Oyu", Region: "Gunma"},
		{ID: 2, Name: "Shibu Meguri", Region: "Nagano"},
	}
	visits := []*domain.Visit{
		{ID: "a", OnsenID: 1, VisitedAt: now.AddDate(0, 0, -14), Rating: 8, Cost: decimal.NewFromInt(600)},
		{ID: "b", OnsenID: 1, VisitedAt: now.AddDate(0, 0, -7), Rating: 9, Cost: decimal.NewFromInt(600)},
		{ID: "c", OnsenID: 2, VisitedAt: now.Add(-2 * time.Hour), Rating: 6, Cost: decimal.NewFromInt(300)},
	}
	return &Data{
		Title:  "Test Report",
		Now:    now,
		Onsens: onsens,
		Visits: visits,
		Rules: []*domain.Rule{
			{Code: "R1", Title: "Weekly visit", Body: "Visit weekly.", Active: true},
			{Code: "R2", Body: "Retired rule.", Active: false},
		},
		Latest: &domain.Revision{Version: 2, ISOYear: 2025, ISOWeek: 45, Status: domain.RevisionAccepted},
		Run: &domain.AnalysisRun{
			ID: "0123456789abcdef", Dependent: "rating", Criterion: "adjr2",
			Robust: "hc1", Rows: 3, FitCount: 2, SpecCount: 2,
		},
		Models: []store.ModelRow{
			{Rank: 1, Formula: "rating ~ crowd_level", AdjR2: 0.61, AIC: 40.1, BIC: 42.2,
				Coefficients: []byte(`{"intercept":{"coef":9.1,"std_err":0.4,"t":22.7,"p":0.0},"crowd_level":{"coef":-0.8,"std_err":0.2,"t":-4.0,"p":0.003}}`),
				Diagnostics:  []byte(`{}`)},
			{Rank: 2, Formula: "rating ~ cost", AdjR2: 0.20, AIC: 48.0, BIC: 50.1,
				Coefficients: []byte(`{}`), Diagnostics: []byte(`{}`)},
		},
		Insights: []*domain.Insight{
			{Severity: domain.SeverityStrong, Title: "Crowds hurt", Detail: "crowd_level is negative in all top specs."},
		},
	}
}

func TestBuildSections(t *testing.T) {
	out := Build(sampleData())

	assert.True(t, strings.HasPrefix(out, "# Test Report\n"))
	assert.Contains(t, out, "Generated 2025-11-10")
	assert.Contains(t, out, "- Visits: 3 across 2 onsens")
	assert.Contains(t, out, "- Mean rating: 7.67 over 3 rated visits")
	assert.Contains(t, out, "- Current weekly streak: 3 week(s)")
	assert.Contains(t, out, "- Total: 1500")
	assert.Contains(t, out, "- Mean per visit: 500.00")

	// Top onsens ordered by mean rating.
	top := out[strings.Index(out, "## Top Onsens"):]
	assert.Less(t, strings.Index(top, "Kusatsu Oyu"), strings.Index(top, "Shibu Meguri"))

	assert.Contains(t, out, "## Visits per Month")
	assert.Contains(t, out, "## Latest Analysis")
	assert.Contains(t, out, "Run 01234567:")
	assert.Contains(t, out, "| 1 | `rating ~ crowd_level` | 0.610 |")
	assert.Contains(t, out, "### Best model: `rating ~ crowd_level`")
	assert.Contains(t, out, "| crowd_level | -0.8000 | 0.2000 | -4.00 | 0.003 | *** |")
	assert.Contains(t, out, "[strong] Crowds hurt")
	assert.Contains(t, out, "## Current Ruleset")
	assert.Contains(t, out, "**R1** Weekly visit: Visit weekly.")
	assert.NotContains(t, out, "Retired rule.")
	assert.Contains(t, out, "Latest revision: 2 (2025-W45, accepted)")
}

func TestBuildDeterministic(t *testing.T) {
	a := Build(sampleData())
	b := Build(sampleData())
	assert.Equal(t, a, b)
}

func TestBuildEmpty(t *testing.T) {
	out := Build(&Data{Now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)})
	assert.Contains(t, out, "No visits recorded yet.")
	assert.NotContains(t, out, "## Latest Analysis")
	assert.NotContains(t, out, "## Insights")
	assert.NotContains(t, out, "## Current Ruleset")
}

func TestWrite(t *testing.T) {
	dir := t.TempDir()
	path, err := Write(sampleData(), dir)
	require.NoError(t, err)
	assert.Contains(t, path, "report-2025-11-10.md")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, Build(sampleData()), string(data))
}
