package dataset

import (
	"testing"
	"time"

	"yukemuri/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRows() ([]*domain.Visit, []*domain.Onsen) {
	temp := 52.0
	ph := 2.1
	onsens := []*domain.Onsen{
		{ID: 1, Name: "Kusatsu Netsunoyu", Region: "Gunma", SpringType: "acidic",
			SourceTempC: &temp, PH: &ph, EntryFee: decimal.NewFromInt(600), HasRotenburo: true},
		{ID: 2, Name: "Shibu no Yu", Region: "Nagano", SpringType: "chloride",
			EntryFee: decimal.NewFromInt(300)},
	}

	base := time.Date(2025, 6, 7, 17, 0, 0, 0, time.UTC) // a Saturday
	mk := func(onsenID int64, day int, rating float64) *domain.Visit {
		bt := 42.0
		return &domain.Visit{
			ID: uuid.NewString(), OnsenID: onsenID,
			VisitedAt: base.AddDate(0, 0, day), DurationMin: 40, BathTempC: &bt,
			CrowdLevel: 2, Companions: 1, TravelMin: 30,
			Cost: decimal.NewFromInt(900), Rating: rating, MoodBefore: 4, MoodAfter: 7,
		}
	}
	visits := []*domain.Visit{
		mk(1, 0, 8),
		mk(2, 2, 6.5),
		mk(1, 9, 9), // revisit of onsen 1
	}
	return visits, onsens
}

func TestFromRows(t *testing.T) {
	visits, onsens := sampleRows()
	tb, err := FromRows(visits, onsens)
	require.NoError(t, err)
	require.Equal(t, 3, tb.Len())

	rating, err := tb.Floats("rating")
	require.NoError(t, err)
	assert.Equal(t, []float64{8, 6.5, 9}, rating)

	weekend, err := tb.Floats("weekend")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 0, 0}, weekend) // Sat, Mon, Mon

	fee, err := tb.Floats("entry_fee")
	require.NoError(t, err)
	assert.Equal(t, []float64{600, 300, 600}, fee)

	// Onsen 2 has no recorded pH; the joined cell is null.
	phCol := tb.Column("ph")
	require.NotNil(t, phCol)
	assert.Equal(t, []bool{false, true, false}, phCol.Null)

	spring := tb.Column("spring_type")
	require.NotNil(t, spring)
	assert.Equal(t, []string{"acidic", "chloride", "acidic"}, spring.Strings)

	mood, err := tb.Floats("mood_delta")
	require.NoError(t, err)
	assert.Equal(t, []float64{3, 3, 3}, mood)
}

func TestFromRowsUnknownOnsen(t *testing.T) {
	visits, onsens := sampleRows()
	visits[0].OnsenID = 99
	_, err := FromRows(visits, onsens)
	assert.Error(t, err)
}

func TestFeatureEngineerApply(t *testing.T) {
	visits, onsens := sampleRows()
	tb, err := FromRows(visits, onsens)
	require.NoError(t, err)

	fs, err := DefaultEngineer().Apply(tb)
	require.NoError(t, err)

	assert.Contains(t, fs.Derived, "log1p_cost")
	assert.Contains(t, fs.Derived, "z_duration_min")
	assert.Contains(t, fs.Derived, "sq_crowd_level")
	assert.Contains(t, fs.Derived, "weekend_x_crowd_level")
	assert.Contains(t, fs.Derived, "days_since_prev")
	assert.Contains(t, fs.Derived, "visit_index")
	assert.Contains(t, fs.Derived, "revisit")
	// June is the only month, so no month dummies were emitted.
	assert.NotContains(t, fs.Derived, "month_06")
	// Two spring types: the most common (acidic) is the reference.
	assert.Contains(t, fs.Derived, "spring_chloride")
	assert.NotContains(t, fs.Derived, "spring_acidic")

	logCost, err := tb.Floats("log1p_cost")
	require.NoError(t, err)
	assert.InDelta(t, 6.8035, logCost[0], 1e-3)

	revisit, err := tb.Floats("revisit")
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 1}, revisit)

	days := tb.Column("days_since_prev")
	require.NotNil(t, days)
	assert.True(t, days.Null[0], "first visit has no predecessor")
	assert.InDelta(t, 2, days.Floats[1], 1e-9)
	assert.InDelta(t, 7, days.Floats[2], 1e-9)

	idx, err := tb.Floats("visit_index")
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, idx)

	// Candidates combine base and derived without duplicates.
	seen := map[string]bool{}
	for _, name := range fs.Candidates() {
		assert.False(t, seen[name], "duplicate candidate %s", name)
		seen[name] = true
	}
}

func TestSimilar(t *testing.T) {
	temp1, temp2, temp3 := 50.0, 51.0, 80.0
	onsens := []*domain.Onsen{
		{ID: 1, Name: "A", EntryFee: decimal.NewFromInt(500), SourceTempC: &temp1, HasRotenburo: true},
		{ID: 2, Name: "B", EntryFee: decimal.NewFromInt(520), SourceTempC: &temp2, HasRotenburo: true},
		{ID: 3, Name: "C", EntryFee: decimal.NewFromInt(2000), SourceTempC: &temp3},
	}
	counts := map[int64]int{1: 4, 2: 3, 3: 1}
	ratings := map[int64]float64{1: 8.5, 2: 8.2, 3: 5.0}

	got, err := Similar(onsens, counts, ratings, "A", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "B", got[0].Onsen.Name)
	assert.Greater(t, got[0].Similarity, got[1].Similarity)

	_, err = Similar(onsens, counts, ratings, "Z", 2)
	assert.Error(t, err)
	_, err = Similar(onsens[:1], counts, ratings, "A", 2)
	assert.Error(t, err)
}
