package viz

import (
	"fmt"
	"html/template"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"

	"gonum.org/v1/gonum/stat"
)

const (
	chartWidth  = 720
	chartHeight = 400
	margin      = 50
)

var chartPage = template.Must(template.New("chart").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Title}}</title>
<style>body { font-family: sans-serif; margin: 16px; }</style>
</head>
<body>
<h2>{{.Title}}</h2>
{{.SVG}}
</body>
</html>
`))

type chartData struct {
	Title string
	SVG   template.HTML
}

// WriteMonthlyChart renders a bar chart of visits per month.
func WriteMonthlyChart(w io.Writer, visits []*domain.Visit) error {
	timer := logging.StartTimer(logging.SubGeo, "WriteMonthlyChart")
	defer timer.Stop()

	counts := map[string]int{}
	for _, v := range visits {
		counts[v.VisitedAt.UTC().Format("2006-01")]++
	}
	months := make([]string, 0, len(counts))
	for m := range counts {
		months = append(months, m)
	}
	sort.Strings(months)

	max := 1
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	var svg strings.Builder
	openSVG(&svg)
	plotW := chartWidth - 2*margin
	plotH := chartHeight - 2*margin
	barW := 0
	if len(months) > 0 {
		barW = plotW / len(months)
	}
	for i, m := range months {
		h := counts[m] * plotH / max
		x := margin + i*barW
		y := chartHeight - margin - h
		fmt.Fprintf(&svg, `<rect x="%d" y="%d" width="%d" height="%d" fill="#4e79a7"/>`, x+2, y, barW-4, h)
		svg.WriteString("\n")
		fmt.Fprintf(&svg, `<text x="%d" y="%d" font-size="10" text-anchor="middle">%s</text>`,
			x+barW/2, chartHeight-margin+14, m)
		svg.WriteString("\n")
		fmt.Fprintf(&svg, `<text x="%d" y="%d" font-size="10" text-anchor="middle">%d</text>`,
			x+barW/2, y-4, counts[m])
		svg.WriteString("\n")
	}
	axes(&svg)
	svg.WriteString("</svg>")

	return chartPage.Execute(w, chartData{
		Title: "Visits per month",
		SVG:   template.HTML(svg.String()),
	})
}

// WriteScatterChart renders rating against bath temperature with a fitted
// least-squares line. Visits lacking either value are skipped.
func WriteScatterChart(w io.Writer, visits []*domain.Visit) error {
	timer := logging.StartTimer(logging.SubGeo, "WriteScatterChart")
	defer timer.Stop()

	var xs, ys []float64
	for _, v := range visits {
		if v.BathTempC == nil || v.Rating == 0 {
			continue
		}
		xs = append(xs, *v.BathTempC)
		ys = append(ys, v.Rating)
	}

	var svg strings.Builder
	openSVG(&svg)

	if len(xs) >= 2 {
		minX, maxX := minMax(xs)
		if maxX == minX {
			maxX = minX + 1
		}
		// Rating axis is fixed to the domain scale.
		minY, maxY := 0.0, 10.0

		sx := func(x float64) float64 {
			return margin + (x-minX)/(maxX-minX)*float64(chartWidth-2*margin)
		}
		sy := func(y float64) float64 {
			return float64(chartHeight-margin) - (y-minY)/(maxY-minY)*float64(chartHeight-2*margin)
		}

		for i := range xs {
			fmt.Fprintf(&svg, `<circle cx="%.1f" cy="%.1f" r="4" fill="#e15759" fill-opacity="0.7"/>`,
				sx(xs[i]), sy(ys[i]))
			svg.WriteString("\n")
		}

		alpha, beta := stat.LinearRegression(xs, ys, nil, false)
		fmt.Fprintf(&svg, `<line x1="%.1f" y1="%.1f" x2="%.1f" y2="%.1f" stroke="#333" stroke-dasharray="4 3"/>`,
			sx(minX), sy(alpha+beta*minX), sx(maxX), sy(alpha+beta*maxX))
		svg.WriteString("\n")
		fmt.Fprintf(&svg, `<text x="%d" y="%d" font-size="11">fit: rating = %.2f %+.3f x temp</text>`,
			margin, margin-8, alpha, beta)
		svg.WriteString("\n")
	} else {
		fmt.Fprintf(&svg, `<text x="%d" y="%d" font-size="13">Not enough visits with bath temperature and rating.</text>`,
			margin, chartHeight/2)
		svg.WriteString("\n")
	}
	axes(&svg)
	svg.WriteString("</svg>")

	return chartPage.Execute(w, chartData{
		Title: "Rating vs bath temperature",
		SVG:   template.HTML(svg.String()),
	})
}

// WriteCharts renders both charts under outDir/charts and returns the paths.
func WriteCharts(outDir string, visits []*domain.Visit) ([]string, error) {
	dir := filepath.Join(outDir, "charts")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("viz: create charts directory: %w", err)
	}

	var paths []string
	for _, c := range []struct {
		name   string
		render func(io.Writer, []*domain.Visit) error
	}{
		{"visits-per-month.html", WriteMonthlyChart},
		{"rating-vs-temp.html", WriteScatterChart},
	} {
		path := filepath.Join(dir, c.name)
		f, err := os.Create(path)
		if err != nil {
			return paths, fmt.Errorf("viz: create %s: %w", path, err)
		}
		if err := c.render(f, visits); err != nil {
			f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func openSVG(sb *strings.Builder) {
	fmt.Fprintf(sb, `<svg xmlns="http://www.w3.org/2000/svg" width="%d" height="%d" viewBox="0 0 %d %d">`,
		chartWidth, chartHeight, chartWidth, chartHeight)
	sb.WriteString("\n")
}

func axes(sb *strings.Builder) {
	fmt.Fprintf(sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#888"/>`,
		margin, chartHeight-margin, chartWidth-margin, chartHeight-margin)
	sb.WriteString("\n")
	fmt.Fprintf(sb, `<line x1="%d" y1="%d" x2="%d" y2="%d" stroke="#888"/>`,
		margin, margin, margin, chartHeight-margin)
	sb.WriteString("\n")
}

func minMax(xs []float64) (float64, float64) {
	min, max := xs[0], xs[0]
	for _, x := range xs {
		if x < min {
			min = x
		}
		if x > max {
			max = x
		}
	}
	return min, max
}
