package store

import (
	"database/sql"
	"fmt"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
)

// ModelRow is one persisted model result. Coefficients and diagnostics are
// stored as JSON blobs produced by the model search; the store does not
// interpret them.
type ModelRow struct {
	RunID        string
	SpecID       string
	Rank         int
	Formula      string
	NObs         int
	NVars        int
	R2           float64
	AdjR2        float64
	AIC          float64
	BIC          float64
	Score        float64
	Coefficients []byte
	Diagnostics  []byte
}

// SaveRun persists an analysis run with its ranked model rows and mined
// insights in one transaction.
func (s *Store) SaveRun(run *domain.AnalysisRun, models []ModelRow, insights []domain.Insight) error {
	timer := logging.StartTimer(logging.SubStore, "SaveRun")
	defer timer.Stop()

	s.mu.Lock()
	defer s.mu.Unlock()

	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin run save: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO analysis_runs (id, created_at, dependent, criterion, robust,
			spec_count, fit_count, skip_count, best_spec, row_count, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, fmtTime(run.CreatedAt), run.Dependent, run.Criterion, run.Robust,
		run.SpecCount, run.FitCount, run.SkipCount, run.BestSpec, run.Rows, run.Notes,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}

	for _, m := range models {
		_, err = tx.Exec(`
			INSERT INTO model_results (run_id, spec_id, rank, formula, nobs, nvars,
				r2, adj_r2, aic, bic, score, coefficients, diagnostics)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			run.ID, m.SpecID, m.Rank, m.Formula, m.NObs, m.NVars,
			m.R2, m.AdjR2, m.AIC, m.BIC, m.Score, string(m.Coefficients), string(m.Diagnostics),
		)
		if err != nil {
			return fmt.Errorf("insert model %s/%s: %w", run.ID, m.SpecID, err)
		}
	}

	for _, in := range insights {
		created := in.CreatedAt
		if created.IsZero() {
			created = run.CreatedAt
		}
		_, err = tx.Exec(`
			INSERT INTO insights (run_id, category, severity, title, detail, support, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			run.ID, in.Category, string(in.Severity), in.Title, in.Detail, in.Support, fmtTime(created),
		)
		if err != nil {
			return fmt.Errorf("insert insight %q: %w", in.Title, err)
		}
	}
	return tx.Commit()
}

// GetRun loads one analysis run by ID.
func (s *Store) GetRun(id string) (*domain.AnalysisRun, error) {
	return scanRun(s.db.QueryRow(runQuery+" WHERE id = ?", id))
}

// LatestRun returns the most recent analysis run, or ErrNotFound.
func (s *Store) LatestRun() (*domain.AnalysisRun, error) {
	return scanRun(s.db.QueryRow(runQuery + " ORDER BY created_at DESC, id LIMIT 1"))
}

// ListRuns returns analysis runs, newest first.
func (s *Store) ListRuns(limit int) ([]*domain.AnalysisRun, error) {
	query := runQuery + " ORDER BY created_at DESC, id"
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []*domain.AnalysisRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// ModelsForRun returns the persisted model rows of a run in rank order.
func (s *Store) ModelsForRun(runID string) ([]ModelRow, error) {
	rows, err := s.db.Query(`
		SELECT run_id, spec_id, rank, formula, nobs, nvars, r2, adj_r2, aic, bic, score,
			coefficients, diagnostics
		FROM model_results WHERE run_id = ? ORDER BY rank`, runID)
	if err != nil {
		return nil, fmt.Errorf("models for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []ModelRow
	for rows.Next() {
		var (
			m          ModelRow
			coef, diag string
		)
		err := rows.Scan(&m.RunID, &m.SpecID, &m.Rank, &m.Formula, &m.NObs, &m.NVars,
			&m.R2, &m.AdjR2, &m.AIC, &m.BIC, &m.Score, &coef, &diag)
		if err != nil {
			return nil, fmt.Errorf("scan model row: %w", err)
		}
		m.Coefficients = []byte(coef)
		m.Diagnostics = []byte(diag)
		out = append(out, m)
	}
	return out, rows.Err()
}

// InsightsForRun returns the mined insights of a run in insertion order.
func (s *Store) InsightsForRun(runID string) ([]*domain.Insight, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, category, severity, title, detail, support, created_at
		FROM insights WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("insights for run %s: %w", runID, err)
	}
	defer rows.Close()

	var out []*domain.Insight
	for rows.Next() {
		var (
			in       domain.Insight
			severity string
			created  string
		)
		if err := rows.Scan(&in.ID, &in.RunID, &in.Category, &severity, &in.Title,
			&in.Detail, &in.Support, &created); err != nil {
			return nil, fmt.Errorf("scan insight: %w", err)
		}
		in.Severity = domain.InsightSeverity(severity)
		if in.CreatedAt, err = parseTime(created); err != nil {
			return nil, fmt.Errorf("insight %d created_at: %w", in.ID, err)
		}
		out = append(out, &in)
	}
	return out, rows.Err()
}

const runQuery = `SELECT id, created_at, dependent, criterion, robust, spec_count,
	fit_count, skip_count, best_spec, row_count, notes FROM analysis_runs`

func scanRun(row scanner) (*domain.AnalysisRun, error) {
	var (
		run     domain.AnalysisRun
		created string
	)
	err := row.Scan(&run.ID, &created, &run.Dependent, &run.Criterion, &run.Robust,
		&run.SpecCount, &run.FitCount, &run.SkipCount, &run.BestSpec, &run.Rows, &run.Notes)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan run: %w", err)
	}
	if run.CreatedAt, err = parseTime(created); err != nil {
		return nil, fmt.Errorf("run %s created_at: %w", run.ID, err)
	}
	return &run, nil
}
