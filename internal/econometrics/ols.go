// Package econometrics implements the OLS estimation and diagnostic engine
// used by the model search. Everything is deterministic: the same inputs
// produce bit-identical outputs, there is no sampling anywhere.
package econometrics

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// ErrSingularDesign is returned when the design matrix is rank deficient
// (perfectly collinear regressors, constant columns next to the intercept).
var ErrSingularDesign = errors.New("econometrics: singular design matrix")

// ErrInsufficientData is returned when there are not enough observations to
// identify the coefficients (n <= k).
var ErrInsufficientData = errors.New("econometrics: insufficient observations")

// RobustType selects the covariance estimator for the reported standard
// errors.
type RobustType string

const (
	RobustNone RobustType = "none"
	RobustHC0  RobustType = "hc0"
	RobustHC1  RobustType = "hc1"
	RobustHC2  RobustType = "hc2"
	RobustHC3  RobustType = "hc3"
)

// ParseRobust maps a config/flag string to a RobustType.
func ParseRobust(s string) (RobustType, error) {
	switch RobustType(s) {
	case RobustNone, RobustHC0, RobustHC1, RobustHC2, RobustHC3:
		return RobustType(s), nil
	case "":
		return RobustNone, nil
	}
	return "", fmt.Errorf("unknown robust covariance %q", s)
}

// Options controls a single fit.
type Options struct {
	Robust RobustType
}

// Model holds a fitted OLS regression. Slices are indexed like Names; the
// intercept, when present, is whatever the caller put in column 0.
type Model struct {
	Names  []string
	Coef   []float64
	StdErr []float64
	TStats []float64
	PValue []float64

	NObs  int
	NVars int

	R2     float64
	AdjR2  float64
	FStat  float64
	FPVal  float64
	Sigma2 float64
	LogLik float64
	AIC    float64
	BIC    float64

	Residuals []float64
	Fitted    []float64
	Leverage  []float64

	Robust RobustType

	// xtxInv is kept for the diagnostic pass (VIF refits reuse the design).
	xtxInv *mat.SymDense
}

// Fit estimates y = X b + e by ordinary least squares. X must already carry
// the intercept column if one is wanted; names must match X's columns.
func Fit(y []float64, X *mat.Dense, names []string, opts Options) (*Model, error) {
	n, k := X.Dims()
	if len(y) != n {
		return nil, fmt.Errorf("econometrics: y has %d rows, X has %d", len(y), n)
	}
	if len(names) != k {
		return nil, fmt.Errorf("econometrics: %d names for %d columns", len(names), k)
	}
	if n <= k {
		return nil, fmt.Errorf("%w: n=%d, k=%d", ErrInsufficientData, n, k)
	}

	// Normal equations through a Cholesky factorization of X'X. The
	// factorization failing is our singularity signal.
	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return nil, ErrSingularDesign
	}

	yVec := mat.NewVecDense(n, y)
	var xty mat.VecDense
	xty.MulVec(X.T(), yVec)

	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return nil, ErrSingularDesign
	}

	var xtxInv mat.SymDense
	if err := chol.InverseTo(&xtxInv); err != nil {
		return nil, ErrSingularDesign
	}

	m := &Model{
		Names:  append([]string(nil), names...),
		Coef:   make([]float64, k),
		StdErr: make([]float64, k),
		TStats: make([]float64, k),
		PValue: make([]float64, k),
		NObs:   n,
		NVars:  k,
		Robust: opts.Robust,
		xtxInv: &xtxInv,
	}
	for j := 0; j < k; j++ {
		m.Coef[j] = beta.AtVec(j)
	}

	// Residuals, fitted values, leverage.
	m.Fitted = make([]float64, n)
	m.Residuals = make([]float64, n)
	m.Leverage = make([]float64, n)
	ssr := 0.0
	for i := 0; i < n; i++ {
		row := mat.Row(nil, i, X)
		fit := 0.0
		for j := 0; j < k; j++ {
			fit += row[j] * m.Coef[j]
		}
		m.Fitted[i] = fit
		m.Residuals[i] = y[i] - fit
		ssr += m.Residuals[i] * m.Residuals[i]

		// h_i = x_i' (X'X)^-1 x_i
		h := 0.0
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				h += row[a] * xtxInv.At(a, b) * row[b]
			}
		}
		m.Leverage[i] = h
	}

	ybar := mean(y)
	sst := 0.0
	for i := 0; i < n; i++ {
		d := y[i] - ybar
		sst += d * d
	}

	df := float64(n - k)
	m.Sigma2 = ssr / df

	switch {
	case sst == 0:
		// A constant dependent variable carries no variance to explain.
		m.R2, m.AdjR2 = 0, 0
	case ssr == 0:
		m.R2, m.AdjR2 = 1, 1
	default:
		m.R2 = 1 - ssr/sst
		m.AdjR2 = 1 - (1-m.R2)*float64(n-1)/df
	}

	// Covariance and per-coefficient inference.
	cov := covariance(X, &xtxInv, m.Residuals, m.Leverage, m.Sigma2, opts.Robust)
	tDist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	for j := 0; j < k; j++ {
		v := cov.At(j, j)
		if v < 0 {
			v = 0
		}
		m.StdErr[j] = math.Sqrt(v)
		switch {
		case m.StdErr[j] > 0:
			m.TStats[j] = m.Coef[j] / m.StdErr[j]
			m.PValue[j] = 2 * tDist.Survival(math.Abs(m.TStats[j]))
		case m.Coef[j] != 0:
			m.TStats[j] = math.Inf(sign(m.Coef[j]))
			m.PValue[j] = 0
		default:
			m.TStats[j] = 0
			m.PValue[j] = 1
		}
	}

	// Overall F test against the intercept-only model.
	if k > 1 && sst > 0 {
		if ssr == 0 {
			m.FStat = math.Inf(1)
			m.FPVal = 0
		} else {
			m.FStat = ((sst - ssr) / float64(k-1)) / (ssr / df)
			fDist := distuv.F{D1: float64(k - 1), D2: df}
			m.FPVal = fDist.Survival(m.FStat)
		}
	} else {
		m.FStat = math.NaN()
		m.FPVal = math.NaN()
	}

	// Gaussian log-likelihood; SSR is floored so a perfect fit does not push
	// AIC/BIC to -Inf and poison the ranking arithmetic downstream.
	ssrLik := math.Max(ssr, 1e-12)
	nf := float64(n)
	m.LogLik = -nf / 2 * (math.Log(2*math.Pi) + math.Log(ssrLik/nf) + 1)
	m.AIC = 2*float64(k) - 2*m.LogLik
	m.BIC = float64(k)*math.Log(nf) - 2*m.LogLik

	return m, nil
}

// covariance builds the requested coefficient covariance matrix.
func covariance(X *mat.Dense, xtxInv *mat.SymDense, resid, leverage []float64, sigma2 float64, robust RobustType) *mat.Dense {
	n, k := X.Dims()
	out := mat.NewDense(k, k, nil)

	if robust == RobustNone || robust == "" {
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				out.Set(a, b, sigma2*xtxInv.At(a, b))
			}
		}
		return out
	}

	// Sandwich: (X'X)^-1 X' diag(w_i) X (X'X)^-1 with weights per HC flavor.
	weights := make([]float64, n)
	for i := 0; i < n; i++ {
		e2 := resid[i] * resid[i]
		switch robust {
		case RobustHC0:
			weights[i] = e2
		case RobustHC1:
			weights[i] = e2 * float64(n) / float64(n-k)
		case RobustHC2:
			weights[i] = e2 / math.Max(1-leverage[i], 1e-12)
		case RobustHC3:
			d := math.Max(1-leverage[i], 1e-12)
			weights[i] = e2 / (d * d)
		}
	}

	meat := mat.NewDense(k, k, nil)
	for i := 0; i < n; i++ {
		row := mat.Row(nil, i, X)
		for a := 0; a < k; a++ {
			for b := 0; b < k; b++ {
				meat.Set(a, b, meat.At(a, b)+weights[i]*row[a]*row[b])
			}
		}
	}

	var tmp, sandwich mat.Dense
	tmp.Mul(xtxInv, meat)
	sandwich.Mul(&tmp, xtxInv)
	out.Copy(&sandwich)
	return out
}

// Coefficient returns the index of a named regressor, or -1.
func (m *Model) Coefficient(name string) int {
	for j, n := range m.Names {
		if n == name {
			return j
		}
	}
	return -1
}

// Significant reports whether the named regressor has p < alpha.
func (m *Model) Significant(name string, alpha float64) bool {
	j := m.Coefficient(name)
	return j >= 0 && m.PValue[j] < alpha
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}
