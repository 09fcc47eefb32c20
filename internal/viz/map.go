// Package viz emits self-contained HTML artifacts: a Leaflet map of the
// tracked onsens and SVG charts over the visit history. Everything renders
// offline except the Leaflet CDN assets the map page references.
package viz

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"

	"yukemuri/internal/domain"
	"yukemuri/internal/geo"
	"yukemuri/internal/logging"
)

// MapMarker is one geocoded onsen on the map.
type MapMarker struct {
	Name       string
	Lat, Lon   float64
	Region     string
	SpringType string
	Visits     int
	MeanRating string
}

// mapData feeds the Leaflet template.
type mapData struct {
	Title     string
	CenterLat float64
	CenterLon float64
	Zoom      int
	Markers   []MapMarker
	Unmapped  []string
}

var mapTemplate = template.Must(template.New("map").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<link rel="stylesheet" href="https://unpkg.com/leaflet@1.9.4/dist/leaflet.css">
<script src="https://unpkg.com/leaflet@1.9.4/dist/leaflet.js"></script>
<style>
  body { margin: 0; font-family: sans-serif; }
  #map { position: absolute; top: 0; bottom: 0; left: 0; right: 220px; }
  #side { position: absolute; top: 0; bottom: 0; right: 0; width: 220px; overflow-y: auto; padding: 8px; box-sizing: border-box; background: #fafafa; }
</style>
</head>
<body>
<div id="map"></div>
<div id="side">
<h3>{{.Title}}</h3>
{{if .Unmapped}}<h4>No coordinates</h4>
<ul>{{range .Unmapped}}<li>{{.}}</li>{{end}}</ul>{{end}}
</div>
<script>
var map = L.map('map').setView([{{.CenterLat}}, {{.CenterLon}}], {{.Zoom}});
L.tileLayer('https://tile.openstreetmap.org/{z}/{x}/{y}.png', {
  attribution: '&copy; OpenStreetMap contributors'
}).addTo(map);
{{range .Markers}}
L.marker([{{.Lat}}, {{.Lon}}]).addTo(map)
  .bindPopup("<b>{{.Name}}</b><br>{{.Region}} / {{.SpringType}}<br>{{.Visits}} visit(s), mean rating {{.MeanRating}}");
{{end}}
</script>
</body>
</html>
`))

// WriteMap renders the onsen map to w. Onsens without coordinates are listed
// in the sidebar instead of dropped silently.
func WriteMap(w io.Writer, title string, onsens []*domain.Onsen, visitCounts map[int64]int, meanRatings map[int64]float64) error {
	timer := logging.StartTimer(logging.SubGeo, "WriteMap")
	defer timer.Stop()

	data := mapData{Title: title, CenterLat: 36.2, CenterLon: 138.25, Zoom: 5}

	if extent, ok := geo.ExtentOf(onsens); ok {
		data.CenterLat, data.CenterLon = extent.Center()
		data.Zoom = zoomFor(extent)
	}

	for _, o := range onsens {
		if !o.HasCoordinates() {
			data.Unmapped = append(data.Unmapped, o.Name)
			continue
		}
		rating := "n/a"
		if r, ok := meanRatings[o.ID]; ok {
			rating = fmt.Sprintf("%.1f", r)
		}
		data.Markers = append(data.Markers, MapMarker{
			Name: o.Name, Lat: *o.Latitude, Lon: *o.Longitude,
			Region: o.Region, SpringType: o.SpringType,
			Visits: visitCounts[o.ID], MeanRating: rating,
		})
	}
	sort.Slice(data.Markers, func(i, j int) bool { return data.Markers[i].Name < data.Markers[j].Name })
	sort.Strings(data.Unmapped)

	return mapTemplate.Execute(w, data)
}

// WriteMapFile renders the map under outDir and returns the path.
func WriteMapFile(outDir, title string, onsens []*domain.Onsen, visitCounts map[int64]int, meanRatings map[int64]float64) (string, error) {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", fmt.Errorf("viz: create output directory: %w", err)
	}
	path := filepath.Join(outDir, "map.html")
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("viz: create %s: %w", path, err)
	}
	defer f.Close()
	if err := WriteMap(f, title, onsens, visitCounts, meanRatings); err != nil {
		return "", err
	}
	return path, nil
}

// zoomFor picks a Leaflet zoom level that roughly covers the extent.
func zoomFor(e geo.Extent) int {
	span := e.MaxLat - e.MinLat
	if s := e.MaxLon - e.MinLon; s > span {
		span = s
	}
	switch {
	case span > 8:
		return 5
	case span > 3:
		return 7
	case span > 1:
		return 9
	case span > 0.2:
		return 11
	default:
		return 13
	}
}
