// Package exchange implements CSV and JSON import/export for onsens and
// visits, with govaluate row filters on exports.
package exchange

import (
	"fmt"

	"yukemuri/internal/domain"

	"github.com/Knetic/govaluate"
)

// RowFilter evaluates a boolean expression against visit rows joined with
// their onsen. An empty expression matches everything.
type RowFilter struct {
	expr *govaluate.EvaluableExpression
}

// NewRowFilter compiles a filter expression, e.g.
// "rating >= 8 && region == 'Gunma' && weekend".
func NewRowFilter(expression string) (*RowFilter, error) {
	if expression == "" {
		return &RowFilter{}, nil
	}
	expr, err := govaluate.NewEvaluableExpression(expression)
	if err != nil {
		return nil, fmt.Errorf("exchange: bad filter %q: %w", expression, err)
	}
	return &RowFilter{expr: expr}, nil
}

// MatchVisit evaluates the filter on a visit and its onsen.
func (f *RowFilter) MatchVisit(v *domain.Visit, o *domain.Onsen) (bool, error) {
	if f.expr == nil {
		return true, nil
	}
	return f.eval(visitParams(v, o))
}

// MatchOnsen evaluates the filter on an onsen alone.
func (f *RowFilter) MatchOnsen(o *domain.Onsen) (bool, error) {
	if f.expr == nil {
		return true, nil
	}
	return f.eval(onsenParams(o))
}

func (f *RowFilter) eval(params map[string]any) (bool, error) {
	result, err := f.expr.Evaluate(params)
	if err != nil {
		return false, fmt.Errorf("exchange: filter: %w", err)
	}
	b, ok := result.(bool)
	if !ok {
		return false, fmt.Errorf("exchange: filter result is %T, want boolean", result)
	}
	return b, nil
}

func visitParams(v *domain.Visit, o *domain.Onsen) map[string]any {
	cost, _ := v.Cost.Float64()
	params := map[string]any{
		"rating":      v.Rating,
		"cost":        cost,
		"duration":    float64(v.DurationMin),
		"travel":      float64(v.TravelMin),
		"crowd":       float64(v.CrowdLevel),
		"companions":  float64(v.Companions),
		"mood_before": float64(v.MoodBefore),
		"mood_after":  float64(v.MoodAfter),
		"weather":     v.Weather,
		"weekend":     v.IsWeekend(),
		"weekday":     v.VisitedAt.Weekday().String(),
		"month":       float64(v.VisitedAt.Month()),
		"year":        float64(v.VisitedAt.Year()),
	}
	if v.BathTempC != nil {
		params["bath_temp"] = *v.BathTempC
	} else {
		params["bath_temp"] = float64(0)
	}
	if o != nil {
		for k, val := range onsenParams(o) {
			params[k] = val
		}
	}
	return params
}

func onsenParams(o *domain.Onsen) map[string]any {
	fee, _ := o.EntryFee.Float64()
	params := map[string]any{
		"onsen":     o.Name,
		"name":      o.Name,
		"region":    o.Region,
		"town":      o.Town,
		"spring":    o.SpringType,
		"entry_fee": fee,
		"rotenburo": o.HasRotenburo,
		"sauna":     o.HasSauna,
	}
	if o.SourceTempC != nil {
		params["source_temp"] = *o.SourceTempC
	} else {
		params["source_temp"] = float64(0)
	}
	if o.PH != nil {
		params["ph"] = *o.PH
	} else {
		params["ph"] = float64(0)
	}
	return params
}
