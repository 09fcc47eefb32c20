package store

import (
	"database/sql"
	"fmt"
	"time"

	"yukemuri/internal/domain"
)

// ListRules returns the ruleset ordered by code. With activeOnly, retired
// rules are excluded.
func (s *Store) ListRules(activeOnly bool) ([]*domain.Rule, error) {
	query := "SELECT id, code, title, body, active, created_rev, retired_rev FROM rules"
	if activeOnly {
		query += " WHERE active = 1"
	}
	query += " ORDER BY code"

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list rules: %w", err)
	}
	defer rows.Close()

	var out []*domain.Rule
	for rows.Next() {
		var (
			r      domain.Rule
			active int
		)
		if err := rows.Scan(&r.ID, &r.Code, &r.Title, &r.Body, &active, &r.CreatedRev, &r.RetiredRev); err != nil {
			return nil, fmt.Errorf("scan rule: %w", err)
		}
		r.Active = active != 0
		out = append(out, &r)
	}
	return out, rows.Err()
}

// GetRule loads one rule by code.
func (s *Store) GetRule(code string) (*domain.Rule, error) {
	var (
		r      domain.Rule
		active int
	)
	err := s.db.QueryRow(
		"SELECT id, code, title, body, active, created_rev, retired_rev FROM rules WHERE code = ?",
		code,
	).Scan(&r.ID, &r.Code, &r.Title, &r.Body, &active, &r.CreatedRev, &r.RetiredRev)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get rule %s: %w", code, err)
	}
	r.Active = active != 0
	return &r, nil
}

// InsertRevision stores a draft revision together with its change rows.
func (s *Store) InsertRevision(rev *domain.Revision) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin revision insert: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO revisions (version, iso_year, iso_week, status, rationale, document, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rev.Version, rev.ISOYear, rev.ISOWeek, string(rev.Status), rev.Rationale,
		rev.Document, fmtTime(rev.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert revision %d: %w", rev.Version, err)
	}

	for _, c := range rev.Changes {
		_, err = tx.Exec(`
			INSERT INTO revision_changes (version, op, rule_code, title, old_body, new_body)
			VALUES (?, ?, ?, ?, ?, ?)`,
			rev.Version, string(c.Op), c.RuleCode, c.Title, c.OldBody, c.NewBody,
		)
		if err != nil {
			return fmt.Errorf("insert revision change %s %s: %w", c.Op, c.RuleCode, err)
		}
	}
	return tx.Commit()
}

// GetRevision loads one revision with its changes.
func (s *Store) GetRevision(version int) (*domain.Revision, error) {
	rev, err := s.scanRevisionRow(s.db.QueryRow(`
		SELECT version, iso_year, iso_week, status, rationale, document, created_at, accepted_at
		FROM revisions WHERE version = ?`, version))
	if err != nil {
		return nil, err
	}
	if rev.Changes, err = s.revisionChanges(version); err != nil {
		return nil, err
	}
	return rev, nil
}

// LatestRevision returns the highest-versioned revision, or ErrNotFound.
func (s *Store) LatestRevision() (*domain.Revision, error) {
	var version int
	err := s.db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM revisions").Scan(&version)
	if err != nil {
		return nil, fmt.Errorf("latest revision: %w", err)
	}
	if version == 0 {
		return nil, ErrNotFound
	}
	return s.GetRevision(version)
}

// ListRevisions returns all revisions, newest first, changes included.
func (s *Store) ListRevisions() ([]*domain.Revision, error) {
	rows, err := s.db.Query(`
		SELECT version, iso_year, iso_week, status, rationale, document, created_at, accepted_at
		FROM revisions ORDER BY version DESC`)
	if err != nil {
		return nil, fmt.Errorf("list revisions: %w", err)
	}
	defer rows.Close()

	var out []*domain.Revision
	for rows.Next() {
		rev, err := s.scanRevisionRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, rev := range out {
		if rev.Changes, err = s.revisionChanges(rev.Version); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// RevisionForWeek returns the revision covering the given ISO week, or
// ErrNotFound.
func (s *Store) RevisionForWeek(isoYear, isoWeek int) (*domain.Revision, error) {
	var version int
	err := s.db.QueryRow(
		"SELECT version FROM revisions WHERE iso_year = ? AND iso_week = ?", isoYear, isoWeek,
	).Scan(&version)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("revision for week %d-W%02d: %w", isoYear, isoWeek, err)
	}
	return s.GetRevision(version)
}

// DeleteDraft removes a draft revision and its changes. Accepted revisions
// are immutable history and cannot be deleted.
func (s *Store) DeleteDraft(version int) error {
	res, err := s.db.Exec(
		"DELETE FROM revisions WHERE version = ? AND status = ?", version, string(domain.RevisionDraft),
	)
	if err != nil {
		return fmt.Errorf("delete draft %d: %w", version, err)
	}
	return requireRow(res)
}

// AcceptRevision marks a draft accepted and applies its changes to the rules
// table in one transaction. The caller passes the final canonical document.
func (s *Store) AcceptRevision(version int, document string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rev, err := s.GetRevision(version)
	if err != nil {
		return err
	}
	if rev.Status != domain.RevisionDraft {
		return fmt.Errorf("revision %d is %s, only drafts can be accepted", version, rev.Status)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin revision accept: %w", err)
	}
	defer tx.Rollback()

	for _, c := range rev.Changes {
		if err := applyChange(tx, version, c); err != nil {
			return fmt.Errorf("revision %d: %w", version, err)
		}
	}

	_, err = tx.Exec(
		"UPDATE revisions SET status = ?, document = ?, accepted_at = ? WHERE version = ?",
		string(domain.RevisionAccepted), document, fmtTime(at), version,
	)
	if err != nil {
		return fmt.Errorf("stamp revision %d: %w", version, err)
	}
	return tx.Commit()
}

// applyChange mutates the rules table for one amendment.
func applyChange(tx *sql.Tx, version int, c domain.RevisionChange) error {
	switch c.Op {
	case domain.ChangeAdd:
		var active int
		err := tx.QueryRow("SELECT active FROM rules WHERE code = ?", c.RuleCode).Scan(&active)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.Exec(
				"INSERT INTO rules (code, title, body, active, created_rev) VALUES (?, ?, ?, 1, ?)",
				c.RuleCode, c.Title, c.NewBody, version,
			)
			return err
		case err != nil:
			return err
		case active != 0:
			return fmt.Errorf("add %s: rule already active", c.RuleCode)
		default:
			// Re-adding a retired rule reactivates it with the new body.
			_, err = tx.Exec(
				"UPDATE rules SET title = ?, body = ?, active = 1, retired_rev = 0 WHERE code = ?",
				c.Title, c.NewBody, c.RuleCode,
			)
			return err
		}

	case domain.ChangeAmend:
		res, err := tx.Exec(
			"UPDATE rules SET body = ?, title = CASE WHEN ? != '' THEN ? ELSE title END WHERE code = ? AND active = 1",
			c.NewBody, c.Title, c.Title, c.RuleCode,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("amend %s: no active rule with that code", c.RuleCode)
		}
		return nil

	case domain.ChangeRetire:
		res, err := tx.Exec(
			"UPDATE rules SET active = 0, retired_rev = ? WHERE code = ? AND active = 1",
			version, c.RuleCode,
		)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		if n == 0 {
			return fmt.Errorf("retire %s: no active rule with that code", c.RuleCode)
		}
		return nil

	default:
		return fmt.Errorf("unknown change op %q", c.Op)
	}
}

func (s *Store) scanRevisionRow(row scanner) (*domain.Revision, error) {
	var (
		rev      domain.Revision
		status   string
		created  string
		accepted sql.NullString
	)
	err := row.Scan(&rev.Version, &rev.ISOYear, &rev.ISOWeek, &status, &rev.Rationale,
		&rev.Document, &created, &accepted)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan revision: %w", err)
	}
	rev.Status = domain.RevisionStatus(status)
	if rev.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("revision %d created_at: %w", rev.Version, err)
	}
	if accepted.Valid {
		t, err := parseTime(accepted.String)
		if err != nil {
			return nil, fmt.Errorf("revision %d accepted_at: %w", rev.Version, err)
		}
		rev.AcceptedAt = &t
	}
	return &rev, nil
}

func (s *Store) revisionChanges(version int) ([]domain.RevisionChange, error) {
	rows, err := s.db.Query(
		"SELECT op, rule_code, title, old_body, new_body FROM revision_changes WHERE version = ? ORDER BY id",
		version,
	)
	if err != nil {
		return nil, fmt.Errorf("revision %d changes: %w", version, err)
	}
	defer rows.Close()

	var out []domain.RevisionChange
	for rows.Next() {
		var (
			c  domain.RevisionChange
			op string
		)
		if err := rows.Scan(&op, &c.RuleCode, &c.Title, &c.OldBody, &c.NewBody); err != nil {
			return nil, fmt.Errorf("scan revision change: %w", err)
		}
		c.Op = domain.ChangeOp(op)
		out = append(out, c)
	}
	return out, rows.Err()
}
