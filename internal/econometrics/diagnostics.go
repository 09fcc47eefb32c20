package econometrics

import (
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TestResult is one diagnostic test outcome. OK is false when the test could
// not be computed (usually a singular auxiliary regression).
type TestResult struct {
	Stat   float64 `json:"stat"`
	PValue float64 `json:"p_value"`
	DF     int     `json:"df"`
	OK     bool    `json:"ok"`
}

// Diagnostics bundles the post-estimation checks run on every fitted model.
type Diagnostics struct {
	BreuschPagan TestResult `json:"breusch_pagan"`
	White        TestResult `json:"white"`
	JarqueBera   TestResult `json:"jarque_bera"`

	DurbinWatson float64 `json:"durbin_watson"`
	DWVerdict    string  `json:"dw_verdict"`

	VIF       map[string]float64 `json:"vif"`
	MaxVIF    float64            `json:"max_vif"`
	CondIndex float64            `json:"condition_number"`

	// InfluentialCount is the number of observations with leverage above the
	// conventional 2k/n cutoff.
	InfluentialCount int `json:"influential_count"`
}

// Heteroskedastic reports whether either heteroskedasticity test rejects at
// the given level.
func (d *Diagnostics) Heteroskedastic(alpha float64) bool {
	return (d.BreuschPagan.OK && d.BreuschPagan.PValue < alpha) ||
		(d.White.OK && d.White.PValue < alpha)
}

// NonNormal reports whether Jarque-Bera rejects residual normality.
func (d *Diagnostics) NonNormal(alpha float64) bool {
	return d.JarqueBera.OK && d.JarqueBera.PValue < alpha
}

// Diagnose runs the diagnostic battery for a fitted model. X must be the
// design matrix the model was fitted on, intercept in column 0.
func Diagnose(m *Model, X *mat.Dense) *Diagnostics {
	n, k := X.Dims()
	d := &Diagnostics{VIF: make(map[string]float64)}

	d.BreuschPagan = breuschPagan(m.Residuals, X)
	d.White = whiteTest(m.Residuals, X)
	d.JarqueBera = jarqueBera(m.Residuals)
	d.DurbinWatson, d.DWVerdict = durbinWatson(m.Residuals)

	// VIF per non-intercept regressor: regress it on the rest of the design.
	for j := 1; j < k; j++ {
		target := mat.Col(nil, j, X)
		rest := dropColumn(X, j)
		r2, err := auxR2(target, rest)
		switch {
		case err != nil:
			d.VIF[m.Names[j]] = math.Inf(1)
		case r2 >= 1:
			d.VIF[m.Names[j]] = math.Inf(1)
		default:
			d.VIF[m.Names[j]] = 1 / (1 - r2)
		}
		if d.VIF[m.Names[j]] > d.MaxVIF {
			d.MaxVIF = d.VIF[m.Names[j]]
		}
	}

	d.CondIndex = conditionNumber(X)

	cutoff := 2 * float64(k) / float64(n)
	for _, h := range m.Leverage {
		if h > cutoff {
			d.InfluentialCount++
		}
	}
	return d
}

// breuschPagan is the Koenker studentized LM variant: n * R² from regressing
// squared residuals on the original design, χ²(k-1).
func breuschPagan(resid []float64, X *mat.Dense) TestResult {
	n, k := X.Dims()
	if k < 2 {
		return TestResult{}
	}
	e2 := make([]float64, n)
	for i, e := range resid {
		e2[i] = e * e
	}
	r2, err := auxR2(e2, X)
	if err != nil {
		return TestResult{}
	}
	stat := float64(n) * r2
	df := k - 1
	chi := distuv.ChiSquared{K: float64(df)}
	return TestResult{Stat: stat, PValue: chi.Survival(stat), DF: df, OK: true}
}

// whiteTest regresses squared residuals on levels, squares and cross
// products of the non-intercept regressors.
func whiteTest(resid []float64, X *mat.Dense) TestResult {
	n, k := X.Dims()
	if k < 2 {
		return TestResult{}
	}

	// Assemble the auxiliary design: intercept, x_j, x_j², x_a*x_b.
	var cols [][]float64
	ones := make([]float64, n)
	for i := range ones {
		ones[i] = 1
	}
	cols = append(cols, ones)
	for j := 1; j < k; j++ {
		cols = append(cols, mat.Col(nil, j, X))
	}
	for j := 1; j < k; j++ {
		xj := mat.Col(nil, j, X)
		sq := make([]float64, n)
		for i := range sq {
			sq[i] = xj[i] * xj[i]
		}
		cols = append(cols, sq)
	}
	for a := 1; a < k; a++ {
		xa := mat.Col(nil, a, X)
		for b := a + 1; b < k; b++ {
			xb := mat.Col(nil, b, X)
			cross := make([]float64, n)
			for i := range cross {
				cross[i] = xa[i] * xb[i]
			}
			cols = append(cols, cross)
		}
	}

	p := len(cols)
	if n <= p {
		// Too few observations for the expanded design; the test is skipped
		// rather than forced through a rank-deficient fit.
		return TestResult{}
	}
	aux := mat.NewDense(n, p, nil)
	for j, c := range cols {
		aux.SetCol(j, c)
	}

	e2 := make([]float64, n)
	for i, e := range resid {
		e2[i] = e * e
	}
	r2, err := auxR2(e2, aux)
	if err != nil {
		return TestResult{}
	}
	stat := float64(n) * r2
	df := p - 1
	chi := distuv.ChiSquared{K: float64(df)}
	return TestResult{Stat: stat, PValue: chi.Survival(stat), DF: df, OK: true}
}

// jarqueBera tests residual normality from moment-based skewness and
// kurtosis, χ²(2).
func jarqueBera(resid []float64) TestResult {
	n := float64(len(resid))
	if n < 4 {
		return TestResult{}
	}
	mu := mean(resid)
	var m2, m3, m4 float64
	for _, e := range resid {
		d := e - mu
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n
	if m2 == 0 {
		return TestResult{}
	}
	skew := m3 / math.Pow(m2, 1.5)
	kurt := m4 / (m2 * m2)
	stat := n / 6 * (skew*skew + (kurt-3)*(kurt-3)/4)
	chi := distuv.ChiSquared{K: 2}
	return TestResult{Stat: stat, PValue: chi.Survival(stat), DF: 2, OK: true}
}

// durbinWatson computes the DW statistic with a coarse band interpretation.
// Observations must be in time order, which the dataset builder guarantees.
func durbinWatson(resid []float64) (float64, string) {
	if len(resid) < 2 {
		return math.NaN(), "insufficient data"
	}
	var num, den float64
	for i, e := range resid {
		den += e * e
		if i > 0 {
			d := e - resid[i-1]
			num += d * d
		}
	}
	if den == 0 {
		return math.NaN(), "degenerate residuals"
	}
	dw := num / den
	switch {
	case dw < 1.5:
		return dw, "positive autocorrelation suspected"
	case dw > 2.5:
		return dw, "negative autocorrelation suspected"
	default:
		return dw, "no autocorrelation detected"
	}
}

// conditionNumber is the ratio of extreme singular values of the
// column-normalized design.
func conditionNumber(X *mat.Dense) float64 {
	n, k := X.Dims()
	scaled := mat.NewDense(n, k, nil)
	for j := 0; j < k; j++ {
		col := mat.Col(nil, j, X)
		norm := 0.0
		for _, v := range col {
			norm += v * v
		}
		norm = math.Sqrt(norm)
		if norm == 0 {
			norm = 1
		}
		for i := range col {
			col[i] /= norm
		}
		scaled.SetCol(j, col)
	}

	var svd mat.SVD
	if ok := svd.Factorize(scaled, mat.SVDNone); !ok {
		return math.Inf(1)
	}
	values := svd.Values(nil)
	min := values[len(values)-1]
	if min <= 0 {
		return math.Inf(1)
	}
	return values[0] / min
}

// auxR2 fits an auxiliary OLS and returns its R². Used by the diagnostic
// tests, which only need goodness of fit.
func auxR2(y []float64, X *mat.Dense) (float64, error) {
	n, k := X.Dims()
	if n <= k {
		return 0, ErrInsufficientData
	}
	var xtx mat.SymDense
	xtx.SymOuterK(1, X.T())
	var chol mat.Cholesky
	if ok := chol.Factorize(&xtx); !ok {
		return 0, ErrSingularDesign
	}
	var xty mat.VecDense
	xty.MulVec(X.T(), mat.NewVecDense(n, y))
	var beta mat.VecDense
	if err := chol.SolveVecTo(&beta, &xty); err != nil {
		return 0, ErrSingularDesign
	}

	ybar := mean(y)
	var ssr, sst float64
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < k; j++ {
			fit += X.At(i, j) * beta.AtVec(j)
		}
		e := y[i] - fit
		ssr += e * e
		d := y[i] - ybar
		sst += d * d
	}
	if sst == 0 {
		return 0, nil
	}
	r2 := 1 - ssr/sst
	if r2 < 0 {
		r2 = 0
	}
	return r2, nil
}

// dropColumn returns X without column j, keeping order.
func dropColumn(X *mat.Dense, j int) *mat.Dense {
	n, k := X.Dims()
	out := mat.NewDense(n, k-1, nil)
	col := 0
	for c := 0; c < k; c++ {
		if c == j {
			continue
		}
		out.SetCol(col, mat.Col(nil, c, X))
		col++
	}
	return out
}
