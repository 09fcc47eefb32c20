package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"yukemuri/internal/domain"

	"github.com/shopspring/decimal"
)

const onsenColumns = `id, name, region, town, latitude, longitude, spring_type,
	source_temp_c, ph, entry_fee, has_rotenburo, has_sauna, notes, created_at, updated_at`

// CreateOnsen inserts a new onsen and returns its assigned ID.
func (s *Store) CreateOnsen(o *domain.Onsen) (int64, error) {
	if err := o.Validate(); err != nil {
		return 0, err
	}
	now := time.Now().UTC()
	o.CreatedAt, o.UpdatedAt = now, now

	res, err := s.db.Exec(`
		INSERT INTO onsens (name, region, town, latitude, longitude, spring_type,
			source_temp_c, ph, entry_fee, has_rotenburo, has_sauna, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		o.Name, o.Region, o.Town, nullableFloat(o.Latitude), nullableFloat(o.Longitude),
		o.SpringType, nullableFloat(o.SourceTempC), nullableFloat(o.PH),
		o.EntryFee.String(), boolInt(o.HasRotenburo), boolInt(o.HasSauna), o.Notes,
		fmtTime(now), fmtTime(now),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return 0, fmt.Errorf("onsen %q already exists", o.Name)
		}
		return 0, fmt.Errorf("insert onsen: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert onsen id: %w", err)
	}
	o.ID = id
	return id, nil
}

// GetOnsen loads one onsen by ID.
func (s *Store) GetOnsen(id int64) (*domain.Onsen, error) {
	row := s.db.QueryRow("SELECT "+onsenColumns+" FROM onsens WHERE id = ?", id)
	return scanOnsen(row)
}

// GetOnsenByName loads one onsen by its unique name.
func (s *Store) GetOnsenByName(name string) (*domain.Onsen, error) {
	row := s.db.QueryRow("SELECT "+onsenColumns+" FROM onsens WHERE name = ?", name)
	return scanOnsen(row)
}

// ListOnsens returns all onsens ordered by name.
func (s *Store) ListOnsens() ([]*domain.Onsen, error) {
	rows, err := s.db.Query("SELECT " + onsenColumns + " FROM onsens ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("list onsens: %w", err)
	}
	defer rows.Close()

	var out []*domain.Onsen
	for rows.Next() {
		o, err := scanOnsen(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// UpdateOnsen rewrites all mutable fields of an existing onsen.
func (s *Store) UpdateOnsen(o *domain.Onsen) error {
	if err := o.Validate(); err != nil {
		return err
	}
	o.UpdatedAt = time.Now().UTC()
	res, err := s.db.Exec(`
		UPDATE onsens SET name=?, region=?, town=?, latitude=?, longitude=?, spring_type=?,
			source_temp_c=?, ph=?, entry_fee=?, has_rotenburo=?, has_sauna=?, notes=?, updated_at=?
		WHERE id=?`,
		o.Name, o.Region, o.Town, nullableFloat(o.Latitude), nullableFloat(o.Longitude),
		o.SpringType, nullableFloat(o.SourceTempC), nullableFloat(o.PH),
		o.EntryFee.String(), boolInt(o.HasRotenburo), boolInt(o.HasSauna), o.Notes,
		fmtTime(o.UpdatedAt), o.ID,
	)
	if err != nil {
		return fmt.Errorf("update onsen: %w", err)
	}
	return requireRow(res)
}

// DeleteOnsen removes an onsen; its visits cascade away with it.
func (s *Store) DeleteOnsen(id int64) error {
	res, err := s.db.Exec("DELETE FROM onsens WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete onsen: %w", err)
	}
	return requireRow(res)
}

// VisitCounts returns onsen ID → number of recorded visits.
func (s *Store) VisitCounts() (map[int64]int, error) {
	rows, err := s.db.Query("SELECT onsen_id, COUNT(*) FROM visits GROUP BY onsen_id")
	if err != nil {
		return nil, fmt.Errorf("visit counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var id int64
		var n int
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanOnsen(row scanner) (*domain.Onsen, error) {
	var (
		o            domain.Onsen
		lat, lon     sql.NullFloat64
		temp, ph     sql.NullFloat64
		fee          string
		roten, sauna int
		created, updated string
	)
	err := row.Scan(&o.ID, &o.Name, &o.Region, &o.Town, &lat, &lon, &o.SpringType,
		&temp, &ph, &fee, &roten, &sauna, &o.Notes, &created, &updated)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan onsen: %w", err)
	}

	o.Latitude = floatPtr(lat)
	o.Longitude = floatPtr(lon)
	o.SourceTempC = floatPtr(temp)
	o.PH = floatPtr(ph)
	o.HasRotenburo = roten != 0
	o.HasSauna = sauna != 0
	if o.EntryFee, err = decimal.NewFromString(fee); err != nil {
		return nil, fmt.Errorf("onsen %d entry fee %q: %w", o.ID, fee, err)
	}
	if o.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("onsen %d created_at: %w", o.ID, err)
	}
	if o.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, fmt.Errorf("onsen %d updated_at: %w", o.ID, err)
	}
	return &o, nil
}

func nullableFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(n sql.NullFloat64) *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Float64
	return &v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
