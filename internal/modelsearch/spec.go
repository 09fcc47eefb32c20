// Package modelsearch generates candidate regression specifications, fits
// them concurrently and ranks the results.
package modelsearch

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

// Spec is one candidate specification: a dependent variable (optionally
// log-transformed) regressed on an intercept plus the listed regressors.
type Spec struct {
	ID         string
	Dependent  string
	LogDep     bool
	Regressors []string
}

// Formula renders the spec in R-ish notation; it doubles as the stable input
// to the spec ID.
func (s *Spec) Formula() string {
	dep := s.Dependent
	if s.LogDep {
		dep = "log1p(" + dep + ")"
	}
	if len(s.Regressors) == 0 {
		return dep + " ~ 1"
	}
	return dep + " ~ " + strings.Join(s.Regressors, " + ")
}

func specID(formula string) string {
	sum := sha256.Sum256([]byte(formula))
	return hex.EncodeToString(sum[:])[:10]
}

// GeneratorConfig bounds specification generation.
type GeneratorConfig struct {
	Dependent string
	// TryLogDep doubles the candidate set with a log1p-transformed dependent.
	TryLogDep bool
	// Required regressors appear in every spec.
	Required []string
	// Optional regressors are combined up to MaxVars per spec.
	Optional []string
	MaxVars  int
	MaxSpecs int
}

// Generate enumerates candidate specs in deterministic order: combination
// sizes ascending, lexicographic within a size, level dependent before log.
// The MaxSpecs cap truncates the enumeration, never reorders it.
func Generate(cfg GeneratorConfig) ([]Spec, error) {
	if cfg.Dependent == "" {
		return nil, fmt.Errorf("modelsearch: no dependent variable")
	}
	if cfg.MaxVars < 0 {
		return nil, fmt.Errorf("modelsearch: negative max vars")
	}

	optional := append([]string(nil), cfg.Optional...)
	sort.Strings(optional)

	// Optional regressors that duplicate required ones would produce a
	// guaranteed-singular design.
	required := map[string]bool{}
	for _, r := range cfg.Required {
		required[r] = true
	}
	filtered := optional[:0]
	for _, o := range optional {
		if !required[o] && o != cfg.Dependent {
			filtered = append(filtered, o)
		}
	}
	optional = filtered

	maxVars := cfg.MaxVars
	if maxVars > len(optional) {
		maxVars = len(optional)
	}

	var specs []Spec
	emit := func(combo []string) bool {
		regressors := append(append([]string(nil), cfg.Required...), combo...)
		for _, logDep := range depVariants(cfg.TryLogDep) {
			if cfg.MaxSpecs > 0 && len(specs) >= cfg.MaxSpecs {
				return false
			}
			s := Spec{
				Dependent:  cfg.Dependent,
				LogDep:     logDep,
				Regressors: regressors,
			}
			s.ID = specID(s.Formula())
			specs = append(specs, s)
		}
		return true
	}

	for size := 0; size <= maxVars; size++ {
		if size == 0 && len(cfg.Required) == 0 {
			// Intercept-only carries no information for ranking regressors.
			continue
		}
		if !combinations(optional, size, emit) {
			break
		}
	}
	if len(specs) == 0 {
		return nil, fmt.Errorf("modelsearch: no candidate specifications (no regressors?)")
	}
	return specs, nil
}

func depVariants(tryLog bool) []bool {
	if tryLog {
		return []bool{false, true}
	}
	return []bool{false}
}

// combinations visits all size-k subsets of items in lexicographic order.
// The callback returning false stops the enumeration.
func combinations(items []string, k int, visit func([]string) bool) bool {
	if k == 0 {
		return visit(nil)
	}
	idx := make([]int, k)
	for i := range idx {
		idx[i] = i
	}
	if k > len(items) {
		return true
	}
	for {
		combo := make([]string, k)
		for i, j := range idx {
			combo[i] = items[j]
		}
		if !visit(combo) {
			return false
		}
		// Advance the index vector.
		i := k - 1
		for i >= 0 && idx[i] == len(items)-k+i {
			i--
		}
		if i < 0 {
			return true
		}
		idx[i]++
		for j := i + 1; j < k; j++ {
			idx[j] = idx[j-1] + 1
		}
	}
}
