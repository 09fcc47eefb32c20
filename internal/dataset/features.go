package dataset

import (
	"fmt"
	"math"
	"sort"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
)

// FeatureSet names the columns available to the model search after feature
// engineering, split into base (recorded) and derived regressors.
type FeatureSet struct {
	Base    []string
	Derived []string
}

// Candidates returns all regressor names in stable order.
func (fs *FeatureSet) Candidates() []string {
	out := append([]string(nil), fs.Base...)
	out = append(out, fs.Derived...)
	return out
}

// FeatureEngineer derives candidate regressors on top of the assembled
// visit table. Mutates the table in place and reports what it added.
type FeatureEngineer struct {
	// ZScore lists base columns that also get a standardized variant.
	ZScore []string
	// Squared lists base columns that also get a squared variant.
	Squared []string
	// Interactions are column pairs multiplied into a joint regressor.
	Interactions [][2]string
}

// DefaultEngineer mirrors the transforms the analysis historically used.
func DefaultEngineer() *FeatureEngineer {
	return &FeatureEngineer{
		ZScore:  []string{"duration_min", "bath_temp_c", "entry_fee"},
		Squared: []string{"crowd_level"},
		Interactions: [][2]string{
			{"weekend", "crowd_level"},
			{"has_rotenburo", "bath_temp_c"},
		},
	}
}

// Apply derives features and returns the resulting candidate set.
func (fe *FeatureEngineer) Apply(t *Table) (*FeatureSet, error) {
	log := logging.L(logging.SubDataset)
	fs := &FeatureSet{
		Base: []string{
			"cost", "duration_min", "travel_min", "crowd_level",
			"bath_temp_c", "companions", "weekend",
			"entry_fee", "source_temp_c", "ph", "has_rotenburo", "has_sauna",
		},
	}

	// Skewed positive amounts get a log1p variant.
	for _, name := range []string{"cost", "travel_min"} {
		derived, err := fe.log1p(t, name)
		if err != nil {
			return nil, err
		}
		fs.Derived = append(fs.Derived, derived)
	}

	for _, name := range fe.ZScore {
		derived, err := fe.zscore(t, name)
		if err != nil {
			return nil, err
		}
		fs.Derived = append(fs.Derived, derived)
	}

	for _, name := range fe.Squared {
		derived, err := fe.squared(t, name)
		if err != nil {
			return nil, err
		}
		fs.Derived = append(fs.Derived, derived)
	}

	for _, pair := range fe.Interactions {
		derived, err := fe.interaction(t, pair[0], pair[1])
		if err != nil {
			return nil, err
		}
		fs.Derived = append(fs.Derived, derived)
	}

	monthDummies, err := fe.monthDummies(t)
	if err != nil {
		return nil, err
	}
	fs.Derived = append(fs.Derived, monthDummies...)

	springDummies, err := fe.springDummies(t)
	if err != nil {
		return nil, err
	}
	fs.Derived = append(fs.Derived, springDummies...)

	history, err := fe.historyFeatures(t)
	if err != nil {
		return nil, err
	}
	fs.Derived = append(fs.Derived, history...)

	log.Debugf("feature engineering added %d derived columns", len(fs.Derived))
	return fs, nil
}

func (fe *FeatureEngineer) log1p(t *Table, name string) (string, error) {
	c := t.Column(name)
	if c == nil || c.Kind != Float {
		return "", fmt.Errorf("dataset: cannot log-transform %s", name)
	}
	out := make([]float64, t.Len())
	nulls := make([]bool, t.Len())
	for i, v := range c.Floats {
		nulls[i] = c.Null[i] || v < 0
		if !nulls[i] {
			out[i] = math.Log1p(v)
		}
	}
	derived := "log1p_" + name
	return derived, t.AddFloat(derived, out, nulls)
}

func (fe *FeatureEngineer) zscore(t *Table, name string) (string, error) {
	c := t.Column(name)
	if c == nil || c.Kind != Float {
		return "", fmt.Errorf("dataset: cannot standardize %s", name)
	}
	var sum, count float64
	for i, v := range c.Floats {
		if !c.Null[i] {
			sum += v
			count++
		}
	}
	mu := 0.0
	if count > 0 {
		mu = sum / count
	}
	var ss float64
	for i, v := range c.Floats {
		if !c.Null[i] {
			ss += (v - mu) * (v - mu)
		}
	}
	sd := 0.0
	if count > 1 {
		sd = math.Sqrt(ss / (count - 1))
	}

	out := make([]float64, t.Len())
	nulls := make([]bool, t.Len())
	for i, v := range c.Floats {
		nulls[i] = c.Null[i] || sd == 0
		if !nulls[i] {
			out[i] = (v - mu) / sd
		}
	}
	derived := "z_" + name
	return derived, t.AddFloat(derived, out, nulls)
}

func (fe *FeatureEngineer) squared(t *Table, name string) (string, error) {
	c := t.Column(name)
	if c == nil || c.Kind != Float {
		return "", fmt.Errorf("dataset: cannot square %s", name)
	}
	out := make([]float64, t.Len())
	for i, v := range c.Floats {
		out[i] = v * v
	}
	derived := "sq_" + name
	return derived, t.AddFloat(derived, out, append([]bool(nil), c.Null...))
}

func (fe *FeatureEngineer) interaction(t *Table, a, b string) (string, error) {
	ca, cb := t.Column(a), t.Column(b)
	if ca == nil || cb == nil || ca.Kind != Float || cb.Kind != Float {
		return "", fmt.Errorf("dataset: cannot interact %s and %s", a, b)
	}
	out := make([]float64, t.Len())
	nulls := make([]bool, t.Len())
	for i := range out {
		nulls[i] = ca.Null[i] || cb.Null[i]
		if !nulls[i] {
			out[i] = ca.Floats[i] * cb.Floats[i]
		}
	}
	derived := a + "_x_" + b
	return derived, t.AddFloat(derived, out, nulls)
}

// monthDummies one-hot encodes months that actually occur, dropping the
// first as the reference category.
func (fe *FeatureEngineer) monthDummies(t *Table) ([]string, error) {
	c := t.Column("month")
	if c == nil {
		return nil, fmt.Errorf("dataset: month column missing")
	}
	seen := map[int]bool{}
	for i, v := range c.Floats {
		if !c.Null[i] {
			seen[int(v)] = true
		}
	}
	months := make([]int, 0, len(seen))
	for m := range seen {
		months = append(months, m)
	}
	sort.Ints(months)
	if len(months) < 2 {
		return nil, nil
	}

	var out []string
	for _, m := range months[1:] { // months[0] is the reference
		dummy := make([]float64, t.Len())
		for i, v := range c.Floats {
			if !c.Null[i] && int(v) == m {
				dummy[i] = 1
			}
		}
		name := fmt.Sprintf("month_%02d", m)
		if err := t.AddFloat(name, dummy, nil); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// springDummies one-hot encodes the known spring types that occur, with the
// most common one as the reference category.
func (fe *FeatureEngineer) springDummies(t *Table) ([]string, error) {
	c := t.Column("spring_type")
	if c == nil {
		return nil, fmt.Errorf("dataset: spring_type column missing")
	}
	counts := map[string]int{}
	for i, v := range c.Strings {
		if !c.Null[i] && knownSpringType(v) {
			counts[v]++
		}
	}
	if len(counts) < 2 {
		return nil, nil
	}

	types := make([]string, 0, len(counts))
	for st := range counts {
		types = append(types, st)
	}
	sort.Slice(types, func(i, j int) bool {
		if counts[types[i]] != counts[types[j]] {
			return counts[types[i]] > counts[types[j]]
		}
		return types[i] < types[j]
	})

	var out []string
	for _, st := range types[1:] { // types[0] is the reference
		dummy := make([]float64, t.Len())
		for i, v := range c.Strings {
			if !c.Null[i] && v == st {
				dummy[i] = 1
			}
		}
		name := "spring_" + st
		if err := t.AddFloat(name, dummy, nil); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, nil
}

// historyFeatures derives days-since-previous-visit, a cumulative visit
// index and a same-onsen revisit flag. Relies on the builder's time order.
func (fe *FeatureEngineer) historyFeatures(t *Table) ([]string, error) {
	at := t.Column("visited_at")
	name := t.Column("onsen_name")
	if at == nil || name == nil {
		return nil, fmt.Errorf("dataset: visited_at/onsen_name columns missing")
	}

	n := t.Len()
	days := make([]float64, n)
	daysNull := make([]bool, n)
	index := make([]float64, n)
	revisit := make([]float64, n)
	seen := map[string]bool{}

	for i := 0; i < n; i++ {
		index[i] = float64(i + 1)
		if i == 0 {
			daysNull[i] = true
		} else {
			days[i] = (at.Floats[i] - at.Floats[i-1]) / 86400
		}
		if seen[name.Strings[i]] {
			revisit[i] = 1
		}
		seen[name.Strings[i]] = true
	}

	cols := []struct {
		name   string
		values []float64
		nulls  []bool
	}{
		{"days_since_prev", days, daysNull},
		{"visit_index", index, nil},
		{"revisit", revisit, nil},
	}
	out := make([]string, 0, len(cols))
	for _, c := range cols {
		if err := t.AddFloat(c.name, c.values, c.nulls); err != nil {
			return nil, err
		}
		out = append(out, c.name)
	}
	return out, nil
}

func knownSpringType(s string) bool {
	for _, st := range domain.SpringTypes {
		if s == st {
			return true
		}
	}
	return false
}
