package exchange

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"
)

// SchemaVersion identifies the JSON document layout.
const SchemaVersion = 1

// Document is the single-file JSON export format.
type Document struct {
	SchemaVersion int             `json:"schema_version"`
	ExportedAt    time.Time       `json:"exported_at"`
	Onsens        []*domain.Onsen `json:"onsens"`
	Visits        []*domain.Visit `json:"visits"`
}

// Report summarizes an import: what was created, updated or skipped, and the
// per-row errors that were swallowed along the way.
type Report struct {
	Created int
	Updated int
	Skipped int
	Errors  []RowError
}

// RowError is one failed row.
type RowError struct {
	Line int // 0 when the source has no line numbers (JSON)
	Err  error
}

// AddError records a failed row.
func (r *Report) AddError(line int, err error) {
	r.Errors = append(r.Errors, RowError{Line: line, Err: err})
}

// String renders a one-line summary.
func (r *Report) String() string {
	return fmt.Sprintf("created %d, updated %d, skipped %d, errors %d",
		r.Created, r.Updated, r.Skipped, len(r.Errors))
}

// ExportJSON writes one document holding the onsens and visits that match
// the filter.
func ExportJSON(s *store.Store, w io.Writer, filter *RowFilter) (*Document, error) {
	timer := logging.StartTimer(logging.SubExchange, "ExportJSON")
	defer timer.Stop()

	onsens, err := s.ListOnsens()
	if err != nil {
		return nil, err
	}
	visits, err := s.ListVisits(store.VisitFilter{})
	if err != nil {
		return nil, err
	}
	names, err := onsenNameIndex(s)
	if err != nil {
		return nil, err
	}

	doc := &Document{SchemaVersion: SchemaVersion, ExportedAt: time.Now().UTC()}
	for _, o := range onsens {
		match, err := filter.MatchOnsen(o)
		if err != nil {
			return nil, err
		}
		if match {
			doc.Onsens = append(doc.Onsens, o)
		}
	}
	for _, v := range visits {
		match, err := filter.MatchVisit(v, names[v.OnsenID])
		if err != nil {
			return nil, err
		}
		if match {
			doc.Visits = append(doc.Visits, v)
		}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("exchange: encode document: %w", err)
	}
	return doc, nil
}

// ImportJSON reads a document and merges it: onsens match by name (created
// when missing, updated otherwise), visits dedupe on UUID. Visit onsen IDs
// are remapped through the onsen list of the document, so documents from
// other machines import cleanly.
func ImportJSON(s *store.Store, r io.Reader) (*Report, error) {
	timer := logging.StartTimer(logging.SubExchange, "ImportJSON")
	defer timer.Stop()

	var doc Document
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("exchange: decode document: %w", err)
	}
	if doc.SchemaVersion != SchemaVersion {
		return nil, fmt.Errorf("exchange: schema version %d not supported (want %d)",
			doc.SchemaVersion, SchemaVersion)
	}

	report := &Report{}

	// Old ID → name, for remapping visit references.
	nameByOldID := make(map[int64]string, len(doc.Onsens))
	for _, o := range doc.Onsens {
		nameByOldID[o.ID] = o.Name
		if err := upsertOnsen(s, o, report); err != nil {
			report.AddError(0, err)
		}
	}

	for _, v := range doc.Visits {
		name, ok := nameByOldID[v.OnsenID]
		if !ok {
			report.AddError(0, fmt.Errorf("visit %s references onsen %d absent from the document", v.ID, v.OnsenID))
			continue
		}
		if err := importVisit(s, v, name, report); err != nil {
			report.AddError(0, err)
		}
	}
	return report, nil
}

// upsertOnsen creates or updates by name. The incoming ID is ignored.
func upsertOnsen(s *store.Store, o *domain.Onsen, report *Report) error {
	existing, err := s.GetOnsenByName(o.Name)
	switch {
	case errors.Is(err, store.ErrNotFound):
		o.ID = 0
		if _, err := s.CreateOnsen(o); err != nil {
			return err
		}
		report.Created++
		return nil
	case err != nil:
		return err
	default:
		o.ID = existing.ID
		o.CreatedAt = existing.CreatedAt
		if err := s.UpdateOnsen(o); err != nil {
			return err
		}
		report.Updated++
		return nil
	}
}

// importVisit inserts a visit resolving the onsen by name; duplicate UUIDs
// are counted as skipped (idempotent re-import).
func importVisit(s *store.Store, v *domain.Visit, onsenName string, report *Report) error {
	if v.ID != "" {
		exists, err := s.HasVisit(v.ID)
		if err != nil {
			return err
		}
		if exists {
			report.Skipped++
			return nil
		}
	}

	onsen, err := s.GetOnsenByName(onsenName)
	if errors.Is(err, store.ErrNotFound) {
		created := &domain.Onsen{Name: onsenName}
		if _, err := s.CreateOnsen(created); err != nil {
			return fmt.Errorf("create onsen %q for visit: %w", onsenName, err)
		}
		report.Created++
		onsen = created
	} else if err != nil {
		return err
	}

	v.OnsenID = onsen.ID
	if err := s.CreateVisit(v); err != nil {
		return err
	}
	report.Created++
	return nil
}

// onsenNameIndex loads all onsens keyed by ID.
func onsenNameIndex(s *store.Store) (map[int64]*domain.Onsen, error) {
	onsens, err := s.ListOnsens()
	if err != nil {
		return nil, err
	}
	out := make(map[int64]*domain.Onsen, len(onsens))
	for _, o := range onsens {
		out[o.ID] = o
	}
	return out, nil
}
