package viz

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yukemuri/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapFixtures() ([]*domain.Onsen, map[int64]int, map[int64]float64) {
	lat1, lon1 := 36.6227, 138.5963
	lat2, lon2 := 36.7375, 138.4158
	onsens := []*domain.Onsen{
		{ID: 1, Name: "Kusatsu Oyu", Region: "Gunma", SpringType: "acidic", Latitude: &lat1, Longitude: &lon1},
		{ID: 2, Name: "Shibu Meguri", Region: "Nagano", SpringType: "chloride", Latitude: &lat2, Longitude: &lon2},
		{ID: 3, Name: "Mystery Bath"},
	}
	return onsens, map[int64]int{1: 4, 2: 1}, map[int64]float64{1: 8.3}
}

func TestWriteMap(t *testing.T) {
	onsens, counts, ratings := mapFixtures()
	var buf bytes.Buffer
	require.NoError(t, WriteMap(&buf, "Onsen Map", onsens, counts, ratings))
	out := buf.String()

	assert.Contains(t, out, "leaflet")
	assert.Contains(t, out, "Kusatsu Oyu")
	assert.Contains(t, out, "mean rating 8.3")
	// The popup text lives in a JS string, where the template escapes "/".
	assert.Contains(t, out, `mean rating n\/a`)
	// Ungeocoded onsens land in the sidebar, not on the map.
	assert.Contains(t, out, "<li>Mystery Bath</li>")
	assert.Equal(t, 2, strings.Count(out, "L.marker("))

	// Deterministic output.
	var again bytes.Buffer
	require.NoError(t, WriteMap(&again, "Onsen Map", onsens, counts, ratings))
	assert.Equal(t, out, again.String())
}

func TestWriteMapFile(t *testing.T) {
	onsens, counts, ratings := mapFixtures()
	dir := t.TempDir()
	path, err := WriteMapFile(dir, "Onsen Map", onsens, counts, ratings)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "map.html"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "L.map(")
}

func chartVisits() []*domain.Visit {
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	var visits []*domain.Visit
	for i := 0; i < 8; i++ {
		bt := 39.0 + float64(i)
		visits = append(visits, &domain.Visit{
			ID:        string(rune('a' + i)),
			VisitedAt: base.AddDate(0, i/4, i),
			BathTempC: &bt,
			Rating:    6 + float64(i)*0.3,
		})
	}
	return visits
}

func TestWriteMonthlyChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteMonthlyChart(&buf, chartVisits()))
	out := buf.String()
	assert.Contains(t, out, "<svg")
	assert.Contains(t, out, "2025-05")
	assert.Contains(t, out, "2025-06")
	assert.Contains(t, out, "<rect")
}

func TestWriteScatterChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteScatterChart(&buf, chartVisits()))
	out := buf.String()
	assert.Contains(t, out, "<circle")
	// The fitted slope of the constructed data is positive.
	assert.Contains(t, out, "fit: rating =")
	assert.Contains(t, out, "+0.300")

	// Too little data degrades to a message, not an error.
	buf.Reset()
	require.NoError(t, WriteScatterChart(&buf, nil))
	assert.Contains(t, buf.String(), "Not enough visits")
}

func TestWriteCharts(t *testing.T) {
	dir := t.TempDir()
	paths, err := WriteCharts(dir, chartVisits())
	require.NoError(t, err)
	require.Len(t, paths, 2)
	for _, p := range paths {
		info, err := os.Stat(p)
		require.NoError(t, err)
		assert.Greater(t, info.Size(), int64(0))
	}
}
