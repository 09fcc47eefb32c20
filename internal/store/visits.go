package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"yukemuri/internal/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const visitColumns = `id, onsen_id, visited_at, duration_min, bath_temp_c, crowd_level,
	weather, companions, travel_min, cost, rating, mood_before, mood_after, notes, created_at`

// VisitFilter narrows ListVisits. Zero values mean "no constraint".
type VisitFilter struct {
	OnsenID int64
	Since   time.Time
	Until   time.Time
	Limit   int
}

// CreateVisit inserts a visit. A missing ID is assigned a fresh UUID.
// The referenced onsen must exist.
func (s *Store) CreateVisit(v *domain.Visit) error {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if err := v.Validate(); err != nil {
		return err
	}
	if _, err := s.GetOnsen(v.OnsenID); err != nil {
		return fmt.Errorf("visit references onsen %d: %w", v.OnsenID, err)
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.Exec(`
		INSERT INTO visits (id, onsen_id, visited_at, duration_min, bath_temp_c, crowd_level,
			weather, companions, travel_min, cost, rating, mood_before, mood_after, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		v.ID, v.OnsenID, fmtTime(v.VisitedAt), v.DurationMin, nullableFloat(v.BathTempC),
		v.CrowdLevel, v.Weather, v.Companions, v.TravelMin, v.Cost.String(), v.Rating,
		v.MoodBefore, v.MoodAfter, v.Notes, fmtTime(v.CreatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") || strings.Contains(err.Error(), "PRIMARY") {
			return fmt.Errorf("visit %s already exists", v.ID)
		}
		return fmt.Errorf("insert visit: %w", err)
	}
	return nil
}

// HasVisit reports whether a visit with the given UUID exists. Import uses
// this for idempotent merges.
func (s *Store) HasVisit(id string) (bool, error) {
	var one int
	err := s.db.QueryRow("SELECT 1 FROM visits WHERE id = ?", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetVisit loads one visit by UUID.
func (s *Store) GetVisit(id string) (*domain.Visit, error) {
	row := s.db.QueryRow("SELECT "+visitColumns+" FROM visits WHERE id = ?", id)
	return scanVisit(row)
}

// ListVisits returns visits matching the filter, oldest first.
func (s *Store) ListVisits(f VisitFilter) ([]*domain.Visit, error) {
	query := "SELECT " + visitColumns + " FROM visits"
	var (
		conds []string
		args  []any
	)
	if f.OnsenID > 0 {
		conds = append(conds, "onsen_id = ?")
		args = append(args, f.OnsenID)
	}
	if !f.Since.IsZero() {
		conds = append(conds, "visited_at >= ?")
		args = append(args, fmtTime(f.Since))
	}
	if !f.Until.IsZero() {
		conds = append(conds, "visited_at <= ?")
		args = append(args, fmtTime(f.Until))
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY visited_at, id"
	if f.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", f.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list visits: %w", err)
	}
	defer rows.Close()

	var out []*domain.Visit
	for rows.Next() {
		v, err := scanVisit(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateVisit rewrites all mutable fields of an existing visit.
func (s *Store) UpdateVisit(v *domain.Visit) error {
	if err := v.Validate(); err != nil {
		return err
	}
	res, err := s.db.Exec(`
		UPDATE visits SET onsen_id=?, visited_at=?, duration_min=?, bath_temp_c=?, crowd_level=?,
			weather=?, companions=?, travel_min=?, cost=?, rating=?, mood_before=?, mood_after=?, notes=?
		WHERE id=?`,
		v.OnsenID, fmtTime(v.VisitedAt), v.DurationMin, nullableFloat(v.BathTempC), v.CrowdLevel,
		v.Weather, v.Companions, v.TravelMin, v.Cost.String(), v.Rating,
		v.MoodBefore, v.MoodAfter, v.Notes, v.ID,
	)
	if err != nil {
		return fmt.Errorf("update visit: %w", err)
	}
	return requireRow(res)
}

// DeleteVisit removes a visit by UUID.
func (s *Store) DeleteVisit(id string) error {
	res, err := s.db.Exec("DELETE FROM visits WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete visit: %w", err)
	}
	return requireRow(res)
}

func scanVisit(row scanner) (*domain.Visit, error) {
	var (
		v          domain.Visit
		bathTemp   sql.NullFloat64
		cost       string
		visitedAt  string
		createdAt  string
	)
	err := row.Scan(&v.ID, &v.OnsenID, &visitedAt, &v.DurationMin, &bathTemp, &v.CrowdLevel,
		&v.Weather, &v.Companions, &v.TravelMin, &cost, &v.Rating,
		&v.MoodBefore, &v.MoodAfter, &v.Notes, &createdAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan visit: %w", err)
	}

	v.BathTempC = floatPtr(bathTemp)
	if v.Cost, err = decimal.NewFromString(cost); err != nil {
		return nil, fmt.Errorf("visit %s cost %q: %w", v.ID, cost, err)
	}
	if v.VisitedAt, err = parseTime(visitedAt); err != nil {
		return nil, fmt.Errorf("visit %s visited_at: %w", v.ID, err)
	}
	if v.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("visit %s created_at: %w", v.ID, err)
	}
	return &v, nil
}
