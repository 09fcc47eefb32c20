package exchange

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/store"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seededStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	lat, lon := 36.62, 138.18
	id1, err := s.CreateOnsen(&domain.Onsen{
		Name: "Kusatsu Oyu", Region: "Gunma", SpringType: "acidic",
		Latitude: &lat, Longitude: &lon,
		EntryFee: decimal.NewFromInt(600), HasRotenburo: true,
	})
	require.NoError(t, err)
	id2, err := s.CreateOnsen(&domain.Onsen{
		Name: "Shibu Meguri", Region: "Nagano", SpringType: "chloride",
		EntryFee: decimal.NewFromInt(300),
	})
	require.NoError(t, err)

	sat := time.Date(2025, 6, 7, 17, 0, 0, 0, time.UTC)
	for i, target := range []int64{id1, id1, id2} {
		require.NoError(t, s.CreateVisit(&domain.Visit{
			ID: uuid.NewString(), OnsenID: target,
			VisitedAt: sat.AddDate(0, 0, i), DurationMin: 40,
			CrowdLevel: 2, Cost: decimal.NewFromInt(750 + int64(i)*50),
			Rating: 7 + float64(i), MoodBefore: 4, MoodAfter: 7,
		}))
	}
	return s
}

func TestCSVRoundTrip(t *testing.T) {
	src := seededStore(t)
	all, err := NewRowFilter("")
	require.NoError(t, err)

	var onsensCSV, visitsCSV bytes.Buffer
	n, err := ExportOnsensCSV(src, &onsensCSV, all)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	n, err = ExportVisitsCSV(src, &visitsCSV, all)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Import into a fresh database.
	dst, err := store.Open(filepath.Join(t.TempDir(), "dst.db"))
	require.NoError(t, err)
	defer dst.Close()

	rep, err := ImportOnsensCSV(dst, bytes.NewReader(onsensCSV.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Created)
	assert.Empty(t, rep.Errors)

	rep, err = ImportVisitsCSV(dst, bytes.NewReader(visitsCSV.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, rep.Created)
	assert.Empty(t, rep.Errors)

	// Values survived, including decimal money and coordinates.
	o, err := dst.GetOnsenByName("Kusatsu Oyu")
	require.NoError(t, err)
	assert.True(t, o.EntryFee.Equal(decimal.NewFromInt(600)))
	require.NotNil(t, o.Latitude)
	assert.InDelta(t, 36.62, *o.Latitude, 1e-9)

	visits, err := dst.ListVisits(store.VisitFilter{})
	require.NoError(t, err)
	require.Len(t, visits, 3)
	assert.True(t, visits[0].Cost.Equal(decimal.NewFromInt(750)))

	// Re-importing the same visits is idempotent.
	rep, err = ImportVisitsCSV(dst, bytes.NewReader(visitsCSV.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Created)
	assert.Equal(t, 3, rep.Skipped)
}

func TestCSVImportFailSoft(t *testing.T) {
	s := seededStore(t)
	csvData := strings.Join(visitHeader, ",") + "\n" +
		uuid.NewString() + ",Kusatsu Oyu,not-a-time,40,,2,,0,0,500,8,4,7,\n" +
		uuid.NewString() + ",Kusatsu Oyu,2025-07-01T10:00:00Z,40,,2,,0,0,500,8,4,7,\n"
	rep, err := ImportVisitsCSV(s, strings.NewReader(csvData))
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Created)
	require.Len(t, rep.Errors, 1)
	assert.Equal(t, 2, rep.Errors[0].Line)
	assert.Contains(t, rep.Errors[0].Err.Error(), "visited_at")
}

func TestCSVImportBadHeader(t *testing.T) {
	s := seededStore(t)
	_, err := ImportVisitsCSV(s, strings.NewReader("a,b,c\n"))
	assert.Error(t, err)
}

func TestJSONRoundTripAndRemap(t *testing.T) {
	src := seededStore(t)
	all, err := NewRowFilter("")
	require.NoError(t, err)

	var buf bytes.Buffer
	doc, err := ExportJSON(src, &buf, all)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, doc.SchemaVersion)
	assert.Len(t, doc.Onsens, 2)
	assert.Len(t, doc.Visits, 3)

	// The destination already has one of the onsens under a different ID, so
	// visit references must be remapped by name.
	dst, err := store.Open(filepath.Join(t.TempDir(), "dst.db"))
	require.NoError(t, err)
	defer dst.Close()
	_, err = dst.CreateOnsen(&domain.Onsen{Name: "Placeholder", EntryFee: decimal.Zero})
	require.NoError(t, err)

	rep, err := ImportJSON(dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Empty(t, rep.Errors)
	assert.Equal(t, 2+3, rep.Created) // 2 onsens + 3 visits

	visits, err := dst.ListVisits(store.VisitFilter{})
	require.NoError(t, err)
	require.Len(t, visits, 3)
	for _, v := range visits {
		o, err := dst.GetOnsen(v.OnsenID)
		require.NoError(t, err)
		assert.NotEqual(t, "Placeholder", o.Name)
	}

	// Second import: onsens update, visits skip.
	rep, err = ImportJSON(dst, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, rep.Updated)
	assert.Equal(t, 3, rep.Skipped)
	assert.Equal(t, 0, rep.Created)
}

func TestJSONSchemaVersionMismatch(t *testing.T) {
	s := seededStore(t)
	_, err := ImportJSON(s, strings.NewReader(`{"schema_version": 99}`))
	assert.Error(t, err)
}

func TestRowFilterOnExports(t *testing.T) {
	s := seededStore(t)

	highRated, err := NewRowFilter("rating >= 8 && region == 'Gunma'")
	require.NoError(t, err)
	var buf bytes.Buffer
	n, err := ExportVisitsCSV(s, &buf, highRated)
	require.NoError(t, err)
	assert.Equal(t, 1, n) // only the second Kusatsu visit (rating 8)

	weekend, err := NewRowFilter("weekend")
	require.NoError(t, err)
	buf.Reset()
	n, err = ExportVisitsCSV(s, &buf, weekend)
	require.NoError(t, err)
	assert.Equal(t, 2, n) // Saturday and Sunday visits

	rotenburo, err := NewRowFilter("rotenburo && entry_fee > 500")
	require.NoError(t, err)
	buf.Reset()
	n, err = ExportOnsensCSV(s, &buf, rotenburo)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = NewRowFilter("rating >=")
	assert.Error(t, err)

	bad, err := NewRowFilter("no_such_param > 1")
	require.NoError(t, err)
	buf.Reset()
	_, err = ExportVisitsCSV(s, &buf, bad)
	assert.Error(t, err)
}

func TestReportString(t *testing.T) {
	r := &Report{Created: 2, Updated: 1, Skipped: 3}
	r.AddError(7, assert.AnError)
	assert.Equal(t, "created 2, updated 1, skipped 3, errors 1", r.String())
}
