package exchange

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"

	"github.com/shopspring/decimal"
)

var onsenHeader = []string{
	"name", "region", "town", "latitude", "longitude", "spring_type",
	"source_temp_c", "ph", "entry_fee", "has_rotenburo", "has_sauna", "notes",
}

var visitHeader = []string{
	"id", "onsen", "visited_at", "duration_min", "bath_temp_c", "crowd_level",
	"weather", "companions", "travel_min", "cost", "rating", "mood_before",
	"mood_after", "notes",
}

// ExportOnsensCSV writes the onsens matching the filter as CSV.
func ExportOnsensCSV(s *store.Store, w io.Writer, filter *RowFilter) (int, error) {
	onsens, err := s.ListOnsens()
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(onsenHeader); err != nil {
		return 0, err
	}
	count := 0
	for _, o := range onsens {
		match, err := filter.MatchOnsen(o)
		if err != nil {
			return count, err
		}
		if !match {
			continue
		}
		record := []string{
			o.Name, o.Region, o.Town,
			optFloatString(o.Latitude), optFloatString(o.Longitude),
			o.SpringType, optFloatString(o.SourceTempC), optFloatString(o.PH),
			o.EntryFee.String(), boolString(o.HasRotenburo), boolString(o.HasSauna),
			o.Notes,
		}
		if err := cw.Write(record); err != nil {
			return count, err
		}
		count++
	}
	cw.Flush()
	return count, cw.Error()
}

// ExportVisitsCSV writes the visits matching the filter as CSV. Visits
// reference their onsen by name so exports merge across databases.
func ExportVisitsCSV(s *store.Store, w io.Writer, filter *RowFilter) (int, error) {
	visits, err := s.ListVisits(store.VisitFilter{})
	if err != nil {
		return 0, err
	}
	names, err := onsenNameIndex(s)
	if err != nil {
		return 0, err
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(visitHeader); err != nil {
		return 0, err
	}
	count := 0
	for _, v := range visits {
		o := names[v.OnsenID]
		match, err := filter.MatchVisit(v, o)
		if err != nil {
			return count, err
		}
		if !match {
			continue
		}
		onsenName := ""
		if o != nil {
			onsenName = o.Name
		}
		record := []string{
			v.ID, onsenName, v.VisitedAt.UTC().Format(time.RFC3339),
			strconv.Itoa(v.DurationMin), optFloatString(v.BathTempC),
			strconv.Itoa(v.CrowdLevel), v.Weather, strconv.Itoa(v.Companions),
			strconv.Itoa(v.TravelMin), v.Cost.String(),
			strconv.FormatFloat(v.Rating, 'f', -1, 64),
			strconv.Itoa(v.MoodBefore), strconv.Itoa(v.MoodAfter), v.Notes,
		}
		if err := cw.Write(record); err != nil {
			return count, err
		}
		count++
	}
	cw.Flush()
	return count, cw.Error()
}

// ImportOnsensCSV reads onsens from CSV, creating new ones and updating
// existing ones by name. Bad rows are collected, not fatal.
func ImportOnsensCSV(s *store.Store, r io.Reader) (*Report, error) {
	timer := logging.StartTimer(logging.SubExchange, "ImportOnsensCSV")
	defer timer.Stop()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(onsenHeader)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("exchange: read header: %w", err)
	}
	if err := checkHeader(header, onsenHeader); err != nil {
		return nil, err
	}

	report := &Report{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.AddError(line, err)
			continue
		}
		o, err := onsenFromRecord(record)
		if err != nil {
			report.AddError(line, err)
			continue
		}
		if err := upsertOnsen(s, o, report); err != nil {
			report.AddError(line, err)
		}
	}
	return report, nil
}

// ImportVisitsCSV reads visits from CSV. Visits are keyed by UUID and
// skipped when already present; unknown onsens are created on the fly with
// just a name.
func ImportVisitsCSV(s *store.Store, r io.Reader) (*Report, error) {
	timer := logging.StartTimer(logging.SubExchange, "ImportVisitsCSV")
	defer timer.Stop()

	cr := csv.NewReader(r)
	cr.FieldsPerRecord = len(visitHeader)
	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("exchange: read header: %w", err)
	}
	if err := checkHeader(header, visitHeader); err != nil {
		return nil, err
	}

	report := &Report{}
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			report.AddError(line, err)
			continue
		}
		v, onsenName, err := visitFromRecord(record)
		if err != nil {
			report.AddError(line, err)
			continue
		}
		if err := importVisit(s, v, onsenName, report); err != nil {
			report.AddError(line, err)
		}
	}
	return report, nil
}

func onsenFromRecord(record []string) (*domain.Onsen, error) {
	fee, err := decimal.NewFromString(orZero(record[8]))
	if err != nil {
		return nil, fmt.Errorf("entry_fee %q: %w", record[8], err)
	}
	lat, err := optFloatParse(record[3])
	if err != nil {
		return nil, fmt.Errorf("latitude: %w", err)
	}
	lon, err := optFloatParse(record[4])
	if err != nil {
		return nil, fmt.Errorf("longitude: %w", err)
	}
	temp, err := optFloatParse(record[6])
	if err != nil {
		return nil, fmt.Errorf("source_temp_c: %w", err)
	}
	ph, err := optFloatParse(record[7])
	if err != nil {
		return nil, fmt.Errorf("ph: %w", err)
	}
	return &domain.Onsen{
		Name: record[0], Region: record[1], Town: record[2],
		Latitude: lat, Longitude: lon, SpringType: record[5],
		SourceTempC: temp, PH: ph, EntryFee: fee,
		HasRotenburo: record[9] == "true", HasSauna: record[10] == "true",
		Notes: record[11],
	}, nil
}

func visitFromRecord(record []string) (*domain.Visit, string, error) {
	visitedAt, err := time.Parse(time.RFC3339, record[2])
	if err != nil {
		return nil, "", fmt.Errorf("visited_at %q: %w", record[2], err)
	}
	cost, err := decimal.NewFromString(orZero(record[9]))
	if err != nil {
		return nil, "", fmt.Errorf("cost %q: %w", record[9], err)
	}
	bathTemp, err := optFloatParse(record[4])
	if err != nil {
		return nil, "", fmt.Errorf("bath_temp_c: %w", err)
	}
	rating, err := strconv.ParseFloat(orZero(record[10]), 64)
	if err != nil {
		return nil, "", fmt.Errorf("rating %q: %w", record[10], err)
	}

	ints := make([]int, 5)
	for i, idx := range []int{3, 5, 7, 8, 11} {
		ints[i], err = strconv.Atoi(orZero(record[idx]))
		if err != nil {
			return nil, "", fmt.Errorf("%s %q: %w", visitHeader[idx], record[idx], err)
		}
	}
	moodAfter, err := strconv.Atoi(orZero(record[12]))
	if err != nil {
		return nil, "", fmt.Errorf("mood_after %q: %w", record[12], err)
	}

	return &domain.Visit{
		ID: record[0], VisitedAt: visitedAt, DurationMin: ints[0],
		BathTempC: bathTemp, CrowdLevel: ints[1], Weather: record[6],
		Companions: ints[2], TravelMin: ints[3], Cost: cost, Rating: rating,
		MoodBefore: ints[4], MoodAfter: moodAfter, Notes: record[13],
	}, record[1], nil
}

func checkHeader(got, want []string) error {
	if len(got) != len(want) {
		return fmt.Errorf("exchange: header has %d fields, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			return fmt.Errorf("exchange: header field %d is %q, want %q", i, got[i], want[i])
		}
	}
	return nil
}

func optFloatString(p *float64) string {
	if p == nil {
		return ""
	}
	return strconv.FormatFloat(*p, 'f', -1, 64)
}

func optFloatParse(s string) (*float64, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}

func orZero(s string) string {
	if s == "" {
		return "0"
	}
	return s
}
