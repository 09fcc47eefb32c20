package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"yukemuri/internal/dataset"
	"yukemuri/internal/geo"
	"yukemuri/internal/snapshot"
	"yukemuri/internal/store"
	"yukemuri/internal/viz"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	mapOut   string
	mapPNG   bool
	chartOut string
	chartPNG bool
	similarN int
)

var mapCmd = &cobra.Command{
	Use:   "map",
	Short: "Generate the onsen map",
	Long: `Writes map.html, a Leaflet map of every geocoded onsen with visit
counts and mean ratings in the popups. --png additionally captures a
screenshot through a headless browser, when one is installed.`,
	RunE: runMap,
}

var chartCmd = &cobra.Command{
	Use:   "chart",
	Short: "Generate visit charts",
	Long: `Writes SVG charts under <out>/charts: visits per month and rating
against bath temperature with a fitted regression line.`,
	RunE: runChart,
}

var similarCmd = &cobra.Command{
	Use:   "similar <onsen>",
	Short: "Find onsens similar to the given one",
	Long: `Ranks other onsens by cosine similarity of standardized attributes
(entry fee, source temperature, pH, rotenburo/sauna, visit count, mean
rating). Distance is shown when both sides have coordinates.`,
	Args: cobra.ExactArgs(1),
	RunE: runSimilar,
}

// visitStats aggregates per-onsen visit counts and mean ratings.
func visitStats(s *store.Store) (map[int64]int, map[int64]float64, error) {
	counts, err := s.VisitCounts()
	if err != nil {
		return nil, nil, err
	}
	visits, err := s.ListVisits(store.VisitFilter{})
	if err != nil {
		return nil, nil, err
	}
	sums := map[int64]float64{}
	rated := map[int64]int{}
	for _, v := range visits {
		if v.Rating > 0 {
			sums[v.OnsenID] += v.Rating
			rated[v.OnsenID]++
		}
	}
	means := make(map[int64]float64, len(sums))
	for id, sum := range sums {
		means[id] = sum / float64(rated[id])
	}
	return counts, means, nil
}

func artifactDir(out string) string {
	if out != "" {
		return out
	}
	return cfg.OutDir(dataDir)
}

// capturePNG renders an HTML artifact to PNG next to it. Failure is a
// warning, not an error: the HTML artifact already exists.
func capturePNG(htmlPath string) {
	pngPath := htmlPath[:len(htmlPath)-len(filepath.Ext(htmlPath))] + ".png"
	ctx, cancel := context.WithTimeout(context.Background(), snapshot.DefaultTimeout)
	defer cancel()
	if err := snapshot.Capture(ctx, htmlPath, pngPath); err != nil {
		fmt.Fprintf(os.Stderr, "warning: %v\n", err)
		return
	}
	fmt.Printf("wrote %s\n", pngPath)
}

func runMap(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	onsens, err := s.ListOnsens()
	if err != nil {
		return err
	}
	if len(onsens) == 0 {
		return fmt.Errorf("no onsens to map; add some first")
	}
	counts, means, err := visitStats(s)
	if err != nil {
		return err
	}

	path, err := viz.WriteMapFile(artifactDir(mapOut), cfg.Report.Title, onsens, counts, means)
	if err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", path)

	if mapPNG {
		capturePNG(path)
	}
	return nil
}

func runChart(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	visits, err := s.ListVisits(store.VisitFilter{})
	if err != nil {
		return err
	}

	paths, err := viz.WriteCharts(artifactDir(chartOut), visits)
	if err != nil {
		return err
	}
	for _, p := range paths {
		fmt.Printf("wrote %s\n", p)
		if chartPNG {
			capturePNG(p)
		}
	}
	return nil
}

func runSimilar(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	onsens, err := s.ListOnsens()
	if err != nil {
		return err
	}
	counts, means, err := visitStats(s)
	if err != nil {
		return err
	}

	neighbors, err := dataset.Similar(onsens, counts, means, args[0], similarN)
	if err != nil {
		return err
	}

	// Distances are best effort; not every onsen is geocoded.
	distances := map[int64]float64{}
	if geoNeighbors, err := geo.Nearest(onsens, args[0], 0); err == nil {
		for _, n := range geoNeighbors {
			distances[n.Onsen.ID] = n.DistanceKm
		}
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Onsen", "Region", "Spring", "Similarity", "Distance"})
	for _, n := range neighbors {
		dist := ""
		if d, ok := distances[n.Onsen.ID]; ok {
			dist = fmt.Sprintf("%.0f km", d)
		}
		t.AppendRow(table.Row{
			n.Onsen.Name, n.Onsen.Region, n.Onsen.SpringType,
			fmt.Sprintf("%.3f", n.Similarity), dist,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func init() {
	mapCmd.Flags().StringVar(&mapOut, "out", "", "Output directory (default: configured out dir)")
	mapCmd.Flags().BoolVar(&mapPNG, "png", false, "Also capture a PNG via headless browser")
	chartCmd.Flags().StringVar(&chartOut, "out", "", "Output directory (default: configured out dir)")
	chartCmd.Flags().BoolVar(&chartPNG, "png", false, "Also capture a PNG via headless browser")
	similarCmd.Flags().IntVar(&similarN, "n", 5, "Number of neighbors to show")

	rootCmd.AddCommand(mapCmd, chartCmd, similarCmd)
}
