package dataset

import (
	"fmt"
	"math"
	"sort"

	"yukemuri/internal/domain"

	"gonum.org/v1/gonum/floats"
)

// SimilarOnsen is one neighbor in attribute space.
type SimilarOnsen struct {
	Onsen      *domain.Onsen
	Similarity float64
}

// Similar ranks onsens by cosine similarity of standardized attribute
// vectors against the named target. Attributes: entry fee, source
// temperature, pH, rotenburo/sauna flags, visit count and mean rating.
// Onsens missing an attribute take the column mean (neutral after
// standardization).
func Similar(onsens []*domain.Onsen, visitCounts map[int64]int, meanRatings map[int64]float64, target string, topN int) ([]SimilarOnsen, error) {
	if len(onsens) < 2 {
		return nil, fmt.Errorf("dataset: need at least two onsens to compare")
	}

	targetIdx := -1
	for i, o := range onsens {
		if o.Name == target {
			targetIdx = i
			break
		}
	}
	if targetIdx < 0 {
		return nil, fmt.Errorf("dataset: unknown onsen %q", target)
	}

	// Column-wise raw matrix with NaN for missing, then impute means and
	// standardize so no attribute dominates by scale.
	const dims = 7
	raw := make([][]float64, len(onsens))
	for i, o := range onsens {
		v := make([]float64, dims)
		v[0], _ = o.EntryFee.Float64()
		v[1] = optFloat(o.SourceTempC)
		v[2] = optFloat(o.PH)
		v[3] = boolFloat(o.HasRotenburo)
		v[4] = boolFloat(o.HasSauna)
		v[5] = float64(visitCounts[o.ID])
		if r, ok := meanRatings[o.ID]; ok {
			v[6] = r
		} else {
			v[6] = math.NaN()
		}
		raw[i] = v
	}

	for j := 0; j < dims; j++ {
		var sum, count float64
		for i := range raw {
			if !math.IsNaN(raw[i][j]) {
				sum += raw[i][j]
				count++
			}
		}
		mu := 0.0
		if count > 0 {
			mu = sum / count
		}
		var ss float64
		for i := range raw {
			if math.IsNaN(raw[i][j]) {
				raw[i][j] = mu
			}
			ss += (raw[i][j] - mu) * (raw[i][j] - mu)
		}
		sd := math.Sqrt(ss / float64(len(raw)))
		for i := range raw {
			if sd > 0 {
				raw[i][j] = (raw[i][j] - mu) / sd
			} else {
				raw[i][j] = 0
			}
		}
	}

	tv := raw[targetIdx]
	out := make([]SimilarOnsen, 0, len(onsens)-1)
	for i, o := range onsens {
		if i == targetIdx {
			continue
		}
		out = append(out, SimilarOnsen{Onsen: o, Similarity: cosine(tv, raw[i])})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Onsen.Name < out[j].Onsen.Name
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}

func cosine(a, b []float64) float64 {
	na := floats.Norm(a, 2)
	nb := floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}

func optFloat(p *float64) float64 {
	if p == nil {
		return math.NaN()
	}
	return *p
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
