// Package geo provides the small amount of spherical geometry the tracker
// needs: distances between onsens, map extents and nearest-neighbor lookup.
package geo

import (
	"fmt"
	"math"
	"sort"

	"yukemuri/internal/domain"
)

// earthRadiusKm is the mean Earth radius.
const earthRadiusKm = 6371.0088

// Haversine returns the great-circle distance in kilometers.
func Haversine(lat1, lon1, lat2, lon2 float64) float64 {
	rad := math.Pi / 180
	dLat := (lat2 - lat1) * rad
	dLon := (lon2 - lon1) * rad
	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1*rad)*math.Cos(lat2*rad)*math.Sin(dLon/2)*math.Sin(dLon/2)
	return 2 * earthRadiusKm * math.Asin(math.Min(1, math.Sqrt(a)))
}

// Extent is a bounding box over geocoded onsens.
type Extent struct {
	MinLat, MaxLat float64
	MinLon, MaxLon float64
}

// Center returns the box midpoint.
func (e Extent) Center() (lat, lon float64) {
	return (e.MinLat + e.MaxLat) / 2, (e.MinLon + e.MaxLon) / 2
}

// ExtentOf computes the bounding box of all geocoded onsens. The boolean is
// false when none have coordinates.
func ExtentOf(onsens []*domain.Onsen) (Extent, bool) {
	found := false
	var e Extent
	for _, o := range onsens {
		if !o.HasCoordinates() {
			continue
		}
		lat, lon := *o.Latitude, *o.Longitude
		if !found {
			e = Extent{MinLat: lat, MaxLat: lat, MinLon: lon, MaxLon: lon}
			found = true
			continue
		}
		e.MinLat = math.Min(e.MinLat, lat)
		e.MaxLat = math.Max(e.MaxLat, lat)
		e.MinLon = math.Min(e.MinLon, lon)
		e.MaxLon = math.Max(e.MaxLon, lon)
	}
	return e, found
}

// Neighbor is an onsen with its distance from a reference point.
type Neighbor struct {
	Onsen      *domain.Onsen
	DistanceKm float64
}

// Nearest returns the geocoded onsens closest to the named one, nearest
// first. Onsens without coordinates are ignored.
func Nearest(onsens []*domain.Onsen, target string, topN int) ([]Neighbor, error) {
	var ref *domain.Onsen
	for _, o := range onsens {
		if o.Name == target {
			ref = o
			break
		}
	}
	if ref == nil {
		return nil, fmt.Errorf("geo: unknown onsen %q", target)
	}
	if !ref.HasCoordinates() {
		return nil, fmt.Errorf("geo: onsen %q has no coordinates", target)
	}

	var out []Neighbor
	for _, o := range onsens {
		if o.ID == ref.ID || !o.HasCoordinates() {
			continue
		}
		out = append(out, Neighbor{
			Onsen:      o,
			DistanceKm: Haversine(*ref.Latitude, *ref.Longitude, *o.Latitude, *o.Longitude),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DistanceKm != out[j].DistanceKm {
			return out[i].DistanceKm < out[j].DistanceKm
		}
		return out[i].Onsen.Name < out[j].Onsen.Name
	})
	if topN > 0 && len(out) > topN {
		out = out[:topN]
	}
	return out, nil
}
