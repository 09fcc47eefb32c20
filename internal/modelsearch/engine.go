package modelsearch

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"runtime"
	"sort"
	"sync"
	"time"

	"yukemuri/internal/dataset"
	"yukemuri/internal/domain"
	"yukemuri/internal/econometrics"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Ranking penalty constants. A violation costs penaltyR2 on the adjusted-R²
// scale or penaltyIC on the AIC/BIC scale (roughly "two units of evidence").
const (
	penaltyR2 = 0.02
	penaltyIC = 2.0

	alphaDiag = 0.05
	minDF     = 10
)

// Config controls one engine run.
type Config struct {
	Dependent string
	TryLogDep bool
	Criterion string // adjr2 | aic | bic
	Robust    econometrics.RobustType
	Required  []string
	Optional  []string
	MaxVars   int
	MaxSpecs  int
	Workers   int
	VIFLimit  float64
}

// ScoredModel is one fitted and ranked specification.
type ScoredModel struct {
	Spec  Spec
	Model *econometrics.Model
	Diag  *econometrics.Diagnostics
	Score float64
	Rank  int
}

// Skipped records a specification that could not be fitted.
type Skipped struct {
	Spec   Spec
	Reason string
}

// Result is the outcome of a full search.
type Result struct {
	Run     *domain.AnalysisRun
	Models  []ScoredModel
	Skipped []Skipped
	NRows   int
	Dropped int
}

// Run generates candidate specifications over the table, fits them
// concurrently and returns a deterministic ranking. Cancelling the context
// aborts outstanding fits.
func Run(ctx context.Context, table *dataset.Table, cfg Config) (*Result, error) {
	timer := logging.StartTimer(logging.SubAnalyze, "Run")
	defer timer.Stop()
	log := logging.L(logging.SubAnalyze)

	if table.Column(cfg.Dependent) == nil {
		return nil, fmt.Errorf("modelsearch: dependent %q is not a column", cfg.Dependent)
	}
	specs, err := Generate(GeneratorConfig{
		Dependent: cfg.Dependent,
		TryLogDep: cfg.TryLogDep,
		Required:  cfg.Required,
		Optional:  cfg.Optional,
		MaxVars:   cfg.MaxVars,
		MaxSpecs:  cfg.MaxSpecs,
	})
	if err != nil {
		return nil, err
	}

	// Listwise deletion over everything any spec might touch, so every fit
	// sees the same rows and criteria stay comparable.
	needed := map[string]bool{cfg.Dependent: true}
	for _, s := range specs {
		for _, r := range s.Regressors {
			needed[r] = true
		}
	}
	cols := make([]string, 0, len(needed))
	for c := range needed {
		cols = append(cols, c)
	}
	sort.Strings(cols)
	clean, dropped, err := table.DropNulls(cols...)
	if err != nil {
		return nil, err
	}
	if dropped > 0 {
		log.Debugf("listwise deletion dropped %d of %d rows", dropped, table.Len())
	}
	if clean.Len() == 0 {
		return nil, fmt.Errorf("modelsearch: no complete rows after listwise deletion")
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	var (
		mu      sync.Mutex
		models  []ScoredModel
		skipped []Skipped
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for _, spec := range specs {
		spec := spec
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			sm, reason := fitSpec(clean, spec, cfg)
			mu.Lock()
			defer mu.Unlock()
			if sm != nil {
				models = append(models, *sm)
			} else {
				skipped = append(skipped, Skipped{Spec: spec, Reason: reason})
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	rank(models)
	sort.Slice(skipped, func(i, j int) bool { return skipped[i].Spec.ID < skipped[j].Spec.ID })

	run := &domain.AnalysisRun{
		ID:        uuid.NewString(),
		CreatedAt: time.Now().UTC(),
		Dependent: cfg.Dependent,
		Criterion: cfg.Criterion,
		Robust:    string(cfg.Robust),
		SpecCount: len(specs),
		FitCount:  len(models),
		SkipCount: len(skipped),
		Rows:      clean.Len(),
	}
	if dropped > 0 {
		run.Notes = fmt.Sprintf("%d of %d rows dropped for missing values", dropped, table.Len())
	}
	if len(models) > 0 {
		run.BestSpec = models[0].Spec.Formula()
	}
	log.Debugf("search fitted %d/%d specs over %d rows", len(models), len(specs), clean.Len())

	return &Result{Run: run, Models: models, Skipped: skipped, NRows: clean.Len(), Dropped: dropped}, nil
}

// fitSpec fits one specification. A nil model with a reason means skipped.
func fitSpec(table *dataset.Table, spec Spec, cfg Config) (*ScoredModel, string) {
	y, err := table.Floats(spec.Dependent)
	if err != nil {
		return nil, err.Error()
	}
	if spec.LogDep {
		logged := make([]float64, len(y))
		for i, v := range y {
			if v < 0 {
				return nil, "negative dependent value under log transform"
			}
			logged[i] = math.Log1p(v)
		}
		y = logged
	}

	X, names, err := table.Matrix(spec.Regressors)
	if err != nil {
		return nil, err.Error()
	}
	m, err := econometrics.Fit(y, X, names, econometrics.Options{Robust: cfg.Robust})
	if err != nil {
		return nil, err.Error()
	}
	diag := econometrics.Diagnose(m, X)

	return &ScoredModel{
		Spec:  spec,
		Model: m,
		Diag:  diag,
		Score: score(m, diag, cfg),
	}, ""
}

// score converts the ranking criterion to higher-is-better and applies the
// diagnostic penalties.
func score(m *econometrics.Model, d *econometrics.Diagnostics, cfg Config) float64 {
	var base, penalty float64
	switch cfg.Criterion {
	case "aic":
		base, penalty = -m.AIC, penaltyIC
	case "bic":
		base, penalty = -m.BIC, penaltyIC
	default: // adjr2
		base, penalty = m.AdjR2, penaltyR2
	}

	violations := 0
	if d.Heteroskedastic(alphaDiag) && cfg.Robust == econometrics.RobustNone {
		violations++
	}
	if d.NonNormal(alphaDiag) {
		violations++
	}
	vifLimit := cfg.VIFLimit
	if vifLimit <= 0 {
		vifLimit = 10
	}
	if d.MaxVIF > vifLimit {
		violations++
	}
	if m.NObs-m.NVars < minDF {
		violations++
	}
	return base - float64(violations)*penalty
}

// rank orders models by score descending with the spec ID as tie-break, and
// stamps 1-based ranks.
func rank(models []ScoredModel) {
	sort.Slice(models, func(i, j int) bool {
		if models[i].Score != models[j].Score {
			return models[i].Score > models[j].Score
		}
		return models[i].Spec.ID < models[j].Spec.ID
	})
	for i := range models {
		models[i].Rank = i + 1
	}
}

// coefficientJSON is the persisted per-regressor estimate.
type coefficientJSON struct {
	Coef   float64 `json:"coef"`
	StdErr float64 `json:"std_err"`
	T      float64 `json:"t"`
	P      float64 `json:"p"`
}

// Rows converts ranked models into store rows for persistence.
func (r *Result) Rows() ([]store.ModelRow, error) {
	out := make([]store.ModelRow, 0, len(r.Models))
	for _, sm := range r.Models {
		coefs := make(map[string]coefficientJSON, len(sm.Model.Names))
		for j, name := range sm.Model.Names {
			coefs[name] = coefficientJSON{
				Coef:   sm.Model.Coef[j],
				StdErr: sm.Model.StdErr[j],
				T:      finite(sm.Model.TStats[j]),
				P:      sm.Model.PValue[j],
			}
		}
		coefJSON, err := json.Marshal(coefs)
		if err != nil {
			return nil, fmt.Errorf("modelsearch: marshal coefficients: %w", err)
		}
		diagJSON, err := json.Marshal(sanitizeDiag(sm.Diag))
		if err != nil {
			return nil, fmt.Errorf("modelsearch: marshal diagnostics: %w", err)
		}
		out = append(out, store.ModelRow{
			SpecID:       sm.Spec.ID,
			Rank:         sm.Rank,
			Formula:      sm.Spec.Formula(),
			NObs:         sm.Model.NObs,
			NVars:        sm.Model.NVars,
			R2:           sm.Model.R2,
			AdjR2:        sm.Model.AdjR2,
			AIC:          sm.Model.AIC,
			BIC:          sm.Model.BIC,
			Score:        sm.Score,
			Coefficients: coefJSON,
			Diagnostics:  diagJSON,
		})
	}
	return out, nil
}

// sanitizeDiag clamps non-finite values so the JSON encoder accepts them.
func sanitizeDiag(d *econometrics.Diagnostics) *econometrics.Diagnostics {
	out := *d
	out.VIF = make(map[string]float64, len(d.VIF))
	for k, v := range d.VIF {
		out.VIF[k] = finite(v)
	}
	out.MaxVIF = finite(d.MaxVIF)
	out.CondIndex = finite(d.CondIndex)
	out.DurbinWatson = finite(d.DurbinWatson)
	return &out
}

const maxFinite = 1e300

func finite(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return 0
	case math.IsInf(v, 1):
		return maxFinite
	case math.IsInf(v, -1):
		return -maxFinite
	}
	return v
}
