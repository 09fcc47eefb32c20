package dataset

import (
	"fmt"
	"sort"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"
)

// Build assembles the visit-level analysis table: one row per visit, joined
// with the attributes of the onsen it happened at, ordered by visit time.
// Optional fields that were never recorded come through as nulls.
func Build(s *store.Store) (*Table, error) {
	timer := logging.StartTimer(logging.SubDataset, "Build")
	defer timer.Stop()

	visits, err := s.ListVisits(store.VisitFilter{})
	if err != nil {
		return nil, fmt.Errorf("dataset: load visits: %w", err)
	}
	onsens, err := s.ListOnsens()
	if err != nil {
		return nil, fmt.Errorf("dataset: load onsens: %w", err)
	}
	return FromRows(visits, onsens)
}

// FromRows builds the table from already-loaded rows. Split out so tests and
// the exchange filter can assemble tables without a database.
func FromRows(visits []*domain.Visit, onsens []*domain.Onsen) (*Table, error) {
	byID := make(map[int64]*domain.Onsen, len(onsens))
	for _, o := range onsens {
		byID[o.ID] = o
	}

	// ListVisits already orders by time; sort defensively for FromRows
	// callers that assembled their own slice.
	sorted := append([]*domain.Visit(nil), visits...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].VisitedAt.Equal(sorted[j].VisitedAt) {
			return sorted[i].VisitedAt.Before(sorted[j].VisitedAt)
		}
		return sorted[i].ID < sorted[j].ID
	})

	n := len(sorted)
	t := NewTable(n)

	var (
		rating     = make([]float64, n)
		cost       = make([]float64, n)
		duration   = make([]float64, n)
		travel     = make([]float64, n)
		crowd      = make([]float64, n)
		crowdNull  = make([]bool, n)
		moodBefore = make([]float64, n)
		moodNullB  = make([]bool, n)
		moodAfter  = make([]float64, n)
		moodNullA  = make([]bool, n)
		moodDelta  = make([]float64, n)
		moodNullD  = make([]bool, n)
		bathTemp   = make([]float64, n)
		bathNull   = make([]bool, n)
		companions = make([]float64, n)
		weekend    = make([]float64, n)
		month      = make([]float64, n)
		ratingNull = make([]bool, n)

		entryFee   = make([]float64, n)
		sourceTemp = make([]float64, n)
		srcNull    = make([]bool, n)
		ph         = make([]float64, n)
		phNull     = make([]bool, n)
		rotenburo  = make([]float64, n)
		sauna      = make([]float64, n)
		springType = make([]string, n)
		region     = make([]string, n)
		onsenName  = make([]string, n)
		visitedAt  = make([]float64, n)
	)

	for i, v := range sorted {
		o, ok := byID[v.OnsenID]
		if !ok {
			return nil, fmt.Errorf("dataset: visit %s references unknown onsen %d", v.ID, v.OnsenID)
		}

		rating[i] = v.Rating
		ratingNull[i] = v.Rating == 0
		cost[i], _ = v.Cost.Float64()
		duration[i] = float64(v.DurationMin)
		travel[i] = float64(v.TravelMin)
		crowd[i] = float64(v.CrowdLevel)
		crowdNull[i] = v.CrowdLevel == 0
		moodBefore[i] = float64(v.MoodBefore)
		moodNullB[i] = v.MoodBefore == 0
		moodAfter[i] = float64(v.MoodAfter)
		moodNullA[i] = v.MoodAfter == 0
		moodDelta[i] = float64(v.MoodAfter - v.MoodBefore)
		moodNullD[i] = moodNullB[i] || moodNullA[i]
		if v.BathTempC != nil {
			bathTemp[i] = *v.BathTempC
		} else {
			bathNull[i] = true
		}
		companions[i] = float64(v.Companions)
		if v.IsWeekend() {
			weekend[i] = 1
		}
		month[i] = float64(v.VisitedAt.Month())
		visitedAt[i] = float64(v.VisitedAt.Unix())

		entryFee[i], _ = o.EntryFee.Float64()
		if o.SourceTempC != nil {
			sourceTemp[i] = *o.SourceTempC
		} else {
			srcNull[i] = true
		}
		if o.PH != nil {
			ph[i] = *o.PH
		} else {
			phNull[i] = true
		}
		if o.HasRotenburo {
			rotenburo[i] = 1
		}
		if o.HasSauna {
			sauna[i] = 1
		}
		springType[i] = o.SpringType
		region[i] = o.Region
		onsenName[i] = o.Name
	}

	for _, add := range []error{
		t.AddFloat("rating", rating, ratingNull),
		t.AddFloat("cost", cost, nil),
		t.AddFloat("duration_min", duration, nil),
		t.AddFloat("travel_min", travel, nil),
		t.AddFloat("crowd_level", crowd, crowdNull),
		t.AddFloat("mood_before", moodBefore, moodNullB),
		t.AddFloat("mood_after", moodAfter, moodNullA),
		t.AddFloat("mood_delta", moodDelta, moodNullD),
		t.AddFloat("bath_temp_c", bathTemp, bathNull),
		t.AddFloat("companions", companions, nil),
		t.AddFloat("weekend", weekend, nil),
		t.AddFloat("month", month, nil),
		t.AddFloat("visited_at", visitedAt, nil),
		t.AddFloat("entry_fee", entryFee, nil),
		t.AddFloat("source_temp_c", sourceTemp, srcNull),
		t.AddFloat("ph", ph, phNull),
		t.AddFloat("has_rotenburo", rotenburo, nil),
		t.AddFloat("has_sauna", sauna, nil),
		t.AddString("spring_type", springType, nil),
		t.AddString("region", region, nil),
		t.AddString("onsen_name", onsenName, nil),
	} {
		if add != nil {
			return nil, add
		}
	}
	return t, nil
}
