package store

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"yukemuri/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testOnsen(name string) *domain.Onsen {
	lat, lon := 36.6340, 138.1880
	temp := 46.5
	return &domain.Onsen{
		Name:         name,
		Region:       "Nagano",
		Town:         "Yudanaka",
		Latitude:     &lat,
		Longitude:    &lon,
		SpringType:   "sulfur",
		SourceTempC:  &temp,
		EntryFee:     decimal.NewFromInt(500),
		HasRotenburo: true,
	}
}

func testVisit(onsenID int64, at time.Time) *domain.Visit {
	return &domain.Visit{
		OnsenID:     onsenID,
		VisitedAt:   at,
		DurationMin: 45,
		CrowdLevel:  2,
		Cost:        decimal.NewFromInt(800),
		Rating:      8.5,
		MoodBefore:  5,
		MoodAfter:   8,
	}
}

func TestOnsenCRUD(t *testing.T) {
	s := openTestStore(t)

	id, err := s.CreateOnsen(testOnsen("Kaede no Yu"))
	require.NoError(t, err)
	require.Greater(t, id, int64(0))

	got, err := s.GetOnsen(id)
	require.NoError(t, err)
	assert.Equal(t, "Kaede no Yu", got.Name)
	assert.Equal(t, "sulfur", got.SpringType)
	assert.True(t, got.EntryFee.Equal(decimal.NewFromInt(500)))
	require.NotNil(t, got.Latitude)
	assert.InDelta(t, 36.6340, *got.Latitude, 1e-9)

	byName, err := s.GetOnsenByName("Kaede no Yu")
	require.NoError(t, err)
	assert.Equal(t, id, byName.ID)

	got.Region = "Gunma"
	got.EntryFee = decimal.NewFromInt(650)
	require.NoError(t, s.UpdateOnsen(got))

	got, err = s.GetOnsen(id)
	require.NoError(t, err)
	assert.Equal(t, "Gunma", got.Region)
	assert.True(t, got.EntryFee.Equal(decimal.NewFromInt(650)))

	require.NoError(t, s.DeleteOnsen(id))
	_, err = s.GetOnsen(id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateOnsenDuplicateName(t *testing.T) {
	s := openTestStore(t)

	_, err := s.CreateOnsen(testOnsen("Takaragawa"))
	require.NoError(t, err)
	_, err = s.CreateOnsen(testOnsen("Takaragawa"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestCreateOnsenValidation(t *testing.T) {
	s := openTestStore(t)

	o := testOnsen("")
	_, err := s.CreateOnsen(o)
	assert.Error(t, err)

	o = testOnsen("Bad coords")
	bad := 200.0
	o.Longitude = &bad
	_, err = s.CreateOnsen(o)
	assert.Error(t, err)
}

func TestVisitCRUDAndFilter(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateOnsen(testOnsen("Shibu"))
	require.NoError(t, err)
	id2, err := s.CreateOnsen(testOnsen("Kusatsu"))
	require.NoError(t, err)

	base := time.Date(2025, 11, 1, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		target := id
		if i%2 == 1 {
			target = id2
		}
		require.NoError(t, s.CreateVisit(testVisit(target, base.AddDate(0, 0, i))))
	}

	all, err := s.ListVisits(VisitFilter{})
	require.NoError(t, err)
	require.Len(t, all, 5)
	// Oldest first.
	assert.True(t, all[0].VisitedAt.Before(all[4].VisitedAt))

	byOnsen, err := s.ListVisits(VisitFilter{OnsenID: id2})
	require.NoError(t, err)
	assert.Len(t, byOnsen, 2)

	ranged, err := s.ListVisits(VisitFilter{
		Since: base.AddDate(0, 0, 1),
		Until: base.AddDate(0, 0, 3),
	})
	require.NoError(t, err)
	assert.Len(t, ranged, 3)

	v := all[0]
	v.Rating = 9.5
	require.NoError(t, s.UpdateVisit(v))
	got, err := s.GetVisit(v.ID)
	require.NoError(t, err)
	assert.InDelta(t, 9.5, got.Rating, 1e-9)

	require.NoError(t, s.DeleteVisit(v.ID))
	_, err = s.GetVisit(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVisitRequiresOnsen(t *testing.T) {
	s := openTestStore(t)
	err := s.CreateVisit(testVisit(42, time.Now()))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteOnsenCascadesVisits(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateOnsen(testOnsen("Noboribetsu"))
	require.NoError(t, err)
	v := testVisit(id, time.Now().UTC())
	require.NoError(t, s.CreateVisit(v))

	require.NoError(t, s.DeleteOnsen(id))
	_, err = s.GetVisit(v.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestHasVisitIdempotentImport(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateOnsen(testOnsen("Beppu"))
	require.NoError(t, err)

	v := testVisit(id, time.Now().UTC())
	v.ID = uuid.NewString()
	require.NoError(t, s.CreateVisit(v))

	ok, err := s.HasVisit(v.ID)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.HasVisit(uuid.NewString())
	require.NoError(t, err)
	assert.False(t, ok)

	// Re-inserting the same UUID fails loudly; import skips via HasVisit.
	err = s.CreateVisit(v)
	assert.Error(t, err)
}

func TestRevisionLifecycle(t *testing.T) {
	s := openTestStore(t)

	rev := &domain.Revision{
		Version:   1,
		ISOYear:   2025,
		ISOWeek:   45,
		Status:    domain.RevisionDraft,
		Rationale: "initial ruleset",
		CreatedAt: time.Now().UTC(),
		Changes: []domain.RevisionChange{
			{Op: domain.ChangeAdd, RuleCode: "R1", Title: "Weekly visit", NewBody: "Visit at least one onsen per week."},
			{Op: domain.ChangeAdd, RuleCode: "R2", Title: "New waters", NewBody: "Every fourth visit must be a first-time onsen."},
		},
	}
	require.NoError(t, s.InsertRevision(rev))

	// Same ISO week is rejected by the unique constraint.
	dup := *rev
	dup.Version = 2
	require.Error(t, s.InsertRevision(&dup))

	require.NoError(t, s.AcceptRevision(1, "# doc v1", time.Now().UTC()))

	rules, err := s.ListRules(true)
	require.NoError(t, err)
	require.Len(t, rules, 2)
	assert.Equal(t, "R1", rules[0].Code)
	assert.Equal(t, 1, rules[0].CreatedRev)

	// Accepting twice fails.
	require.Error(t, s.AcceptRevision(1, "# doc v1", time.Now().UTC()))

	// Week 46 amends R1 and retires R2.
	rev2 := &domain.Revision{
		Version: 2, ISOYear: 2025, ISOWeek: 46,
		Status: domain.RevisionDraft, CreatedAt: time.Now().UTC(),
		Changes: []domain.RevisionChange{
			{Op: domain.ChangeAmend, RuleCode: "R1", OldBody: "Visit at least one onsen per week.", NewBody: "Visit at least two onsens per week."},
			{Op: domain.ChangeRetire, RuleCode: "R2"},
		},
	}
	require.NoError(t, s.InsertRevision(rev2))
	require.NoError(t, s.AcceptRevision(2, "# doc v2", time.Now().UTC()))

	r1, err := s.GetRule("R1")
	require.NoError(t, err)
	assert.Equal(t, "Visit at least two onsens per week.", r1.Body)

	r2, err := s.GetRule("R2")
	require.NoError(t, err)
	assert.False(t, r2.Active)
	assert.Equal(t, 2, r2.RetiredRev)

	active, err := s.ListRules(true)
	require.NoError(t, err)
	assert.Len(t, active, 1)

	latest, err := s.LatestRevision()
	require.NoError(t, err)
	assert.Equal(t, 2, latest.Version)
	assert.Equal(t, domain.RevisionAccepted, latest.Status)
	require.Len(t, latest.Changes, 2)

	byWeek, err := s.RevisionForWeek(2025, 45)
	require.NoError(t, err)
	assert.Equal(t, 1, byWeek.Version)
}

func TestAcceptRevisionRollsBackOnBadChange(t *testing.T) {
	s := openTestStore(t)

	rev := &domain.Revision{
		Version: 1, ISOYear: 2025, ISOWeek: 40,
		Status: domain.RevisionDraft, CreatedAt: time.Now().UTC(),
		Changes: []domain.RevisionChange{
			{Op: domain.ChangeAdd, RuleCode: "R1", NewBody: "ok"},
			{Op: domain.ChangeAmend, RuleCode: "R9", NewBody: "no such rule"},
		},
	}
	require.NoError(t, s.InsertRevision(rev))
	require.Error(t, s.AcceptRevision(1, "doc", time.Now().UTC()))

	// The transaction rolled back: R1 was not added and the draft stayed a draft.
	_, err := s.GetRule("R1")
	assert.ErrorIs(t, err, ErrNotFound)
	got, err := s.GetRevision(1)
	require.NoError(t, err)
	assert.Equal(t, domain.RevisionDraft, got.Status)
}

func TestDeleteDraftOnlyDrafts(t *testing.T) {
	s := openTestStore(t)
	rev := &domain.Revision{
		Version: 1, ISOYear: 2025, ISOWeek: 41,
		Status: domain.RevisionDraft, CreatedAt: time.Now().UTC(),
		Changes: []domain.RevisionChange{{Op: domain.ChangeAdd, RuleCode: "R1", NewBody: "x"}},
	}
	require.NoError(t, s.InsertRevision(rev))
	require.NoError(t, s.AcceptRevision(1, "doc", time.Now().UTC()))
	assert.ErrorIs(t, s.DeleteDraft(1), ErrNotFound)
}

func TestSaveAndReloadRun(t *testing.T) {
	s := openTestStore(t)

	coef, err := json.Marshal(map[string]float64{"intercept": 5.2, "log_cost": -0.31})
	require.NoError(t, err)

	run := &domain.AnalysisRun{
		ID:        uuid.NewString(),
		Dependent: "rating",
		Criterion: "adjr2",
		Robust:    "hc1",
		SpecCount: 12,
		FitCount:  11,
		SkipCount: 1,
		BestSpec:  "rating ~ log_cost + crowd_level",
		Rows:      58,
	}
	models := []ModelRow{
		{SpecID: "a1b2", Rank: 1, Formula: "rating ~ log_cost + crowd_level", NObs: 58, NVars: 3,
			R2: 0.42, AdjR2: 0.40, AIC: 101.5, BIC: 108.2, Score: 0.40,
			Coefficients: coef, Diagnostics: []byte(`{"dw":1.94}`)},
		{SpecID: "c3d4", Rank: 2, Formula: "rating ~ log_cost", NObs: 58, NVars: 2,
			R2: 0.35, AdjR2: 0.34, AIC: 105.0, BIC: 109.1, Score: 0.34,
			Coefficients: []byte(`{}`), Diagnostics: []byte(`{}`)},
	}
	insights := []domain.Insight{
		{Category: "association", Severity: domain.SeverityStrong,
			Title: "Cost is negatively associated with rating",
			Detail: "log_cost is significant in 9 of 11 specs.", Support: 0.82},
	}
	require.NoError(t, s.SaveRun(run, models, insights))

	latest, err := s.LatestRun()
	require.NoError(t, err)
	assert.Equal(t, run.ID, latest.ID)
	assert.Equal(t, 12, latest.SpecCount)

	gotModels, err := s.ModelsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, gotModels, 2)
	assert.Equal(t, "a1b2", gotModels[0].SpecID)
	assert.InDelta(t, 0.42, gotModels[0].R2, 1e-9)

	var decoded map[string]float64
	require.NoError(t, json.Unmarshal(gotModels[0].Coefficients, &decoded))
	assert.InDelta(t, -0.31, decoded["log_cost"], 1e-9)

	gotInsights, err := s.InsightsForRun(run.ID)
	require.NoError(t, err)
	require.Len(t, gotInsights, 1)
	assert.Equal(t, domain.SeverityStrong, gotInsights[0].Severity)
	assert.InDelta(t, 0.82, gotInsights[0].Support, 1e-9)

	runs, err := s.ListRuns(10)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestStats(t *testing.T) {
	s := openTestStore(t)
	id, err := s.CreateOnsen(testOnsen("Zao"))
	require.NoError(t, err)
	require.NoError(t, s.CreateVisit(testVisit(id, time.Now().UTC())))

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats["onsens"])
	assert.Equal(t, 1, stats["visits"])
	assert.Equal(t, 0, stats["insights"])
}

func TestBackup(t *testing.T) {
	s := openTestStore(t)
	_, err := s.CreateOnsen(testOnsen("Dogo"))
	require.NoError(t, err)

	dst := filepath.Join(t.TempDir(), "backup", "copy.db")
	require.NoError(t, s.Backup(dst))

	info, err := os.Stat(dst)
	require.NoError(t, err)
	assert.Greater(t, info.Size(), int64(0))

	// The copy opens as a valid database with the row intact.
	b, err := Open(dst)
	require.NoError(t, err)
	defer b.Close()
	got, err := b.GetOnsenByName("Dogo")
	require.NoError(t, err)
	assert.Equal(t, "Dogo", got.Name)

	// The source store must stay usable: Backup releases its connection.
	_, err = s.CreateOnsen(testOnsen("Arima"))
	require.NoError(t, err)
	dst2 := filepath.Join(t.TempDir(), "copy2.db")
	require.NoError(t, s.Backup(dst2))
}

func TestMigrationsIdempotent(t *testing.T) {
	s := openTestStore(t)
	// A second pass over an up-to-date schema is a no-op.
	require.NoError(t, RunMigrations(s.DB()))
	require.NoError(t, RunMigrations(s.DB()))
}
