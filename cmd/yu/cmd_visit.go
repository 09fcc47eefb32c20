package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"yukemuri/cmd/yu/wizard"
	"yukemuri/internal/domain"
	"yukemuri/internal/exchange"
	"yukemuri/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

var (
	visitOnsen      string
	visitWhen       string
	visitDuration   int
	visitRating     float64
	visitCost       string
	visitBathTemp   float64
	visitCrowd      int
	visitTravel     int
	visitCompanions int
	visitMoodBefore int
	visitMoodAfter  int
	visitWeather    string
	visitNotes      string

	visitSince string
	visitUntil string
	visitWhere string
	visitLimit int
)

var visitCmd = &cobra.Command{
	Use:   "visit",
	Short: "Record and browse bathing sessions",
}

var visitAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Record a visit",
	Long: `Records a bathing session. With no flags an interactive form walks
through every field; with --onsen the visit is taken entirely from flags.

Examples:
  yu visit add
  yu visit add --onsen "Takaragawa Onsen" --duration 60 --rating 8.5 --cost 2000`,
	RunE: runVisitAdd,
}

var visitListCmd = &cobra.Command{
	Use:   "list",
	Short: "List visits",
	Long: `Lists visits oldest first. --since/--until take YYYY-MM-DD dates,
--onsen restricts to one facility, and --where filters rows:
  yu visit list --where 'rating >= 8 && weekend'`,
	RunE: runVisitList,
}

var visitShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one visit",
	Args:  cobra.ExactArgs(1),
	RunE:  runVisitShow,
}

var visitDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a visit",
	Args:  cobra.ExactArgs(1),
	RunE:  runVisitDelete,
}

func runVisitAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if visitOnsen == "" {
		return runVisitWizard(s)
	}

	o, err := s.GetOnsenByName(visitOnsen)
	if err != nil {
		return fmt.Errorf("onsen %q: %w (add it first with `yu onsen add`)", visitOnsen, err)
	}

	v := &domain.Visit{
		OnsenID:     o.ID,
		VisitedAt:   time.Now().UTC(),
		DurationMin: visitDuration,
		CrowdLevel:  visitCrowd,
		Weather:     visitWeather,
		Companions:  visitCompanions,
		TravelMin:   visitTravel,
		Rating:      visitRating,
		MoodBefore:  visitMoodBefore,
		MoodAfter:   visitMoodAfter,
		Notes:       visitNotes,
	}
	if visitWhen != "" {
		t, err := parseWhen(visitWhen)
		if err != nil {
			return err
		}
		v.VisitedAt = t
	}
	if visitCost != "" {
		c, err := decimal.NewFromString(visitCost)
		if err != nil {
			return fmt.Errorf("invalid cost %q: %w", visitCost, err)
		}
		v.Cost = c
	}
	if cmd.Flags().Changed("bath-temp") {
		v.BathTempC = &visitBathTemp
	}

	if err := s.CreateVisit(v); err != nil {
		return err
	}
	fmt.Printf("recorded visit %s to %q\n", v.ID, o.Name)
	return nil
}

// runVisitWizard collects the visit through the interactive form.
func runVisitWizard(s *store.Store) error {
	onsens, err := s.ListOnsens()
	if err != nil {
		return err
	}
	names := make([]string, len(onsens))
	for i, o := range onsens {
		names[i] = o.Name
	}

	m, err := wizard.Run(names)
	if err != nil {
		return err
	}
	if !m.Accepted {
		fmt.Println("aborted, nothing saved")
		return nil
	}

	v, onsenName := m.Result()
	o, err := s.GetOnsenByName(onsenName)
	if err != nil {
		// Unknown name: register a bare onsen so the visit is not lost.
		id, cerr := s.CreateOnsen(&domain.Onsen{Name: onsenName})
		if cerr != nil {
			return fmt.Errorf("onsen %q: %w", onsenName, cerr)
		}
		fmt.Printf("added new onsen #%d %q\n", id, onsenName)
		v.OnsenID = id
	} else {
		v.OnsenID = o.ID
	}

	if err := s.CreateVisit(&v); err != nil {
		return err
	}
	fmt.Printf("recorded visit %s to %q\n", v.ID, onsenName)
	return nil
}

func runVisitList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	var f store.VisitFilter
	if visitOnsen != "" {
		o, err := s.GetOnsenByName(visitOnsen)
		if err != nil {
			return err
		}
		f.OnsenID = o.ID
	}
	if visitSince != "" {
		t, err := parseWhen(visitSince)
		if err != nil {
			return err
		}
		f.Since = t
	}
	if visitUntil != "" {
		t, err := parseWhen(visitUntil)
		if err != nil {
			return err
		}
		f.Until = t
	}
	f.Limit = visitLimit

	visits, err := s.ListVisits(f)
	if err != nil {
		return err
	}

	onsens, err := s.ListOnsens()
	if err != nil {
		return err
	}
	byID := make(map[int64]*domain.Onsen, len(onsens))
	for _, o := range onsens {
		byID[o.ID] = o
	}

	if visitWhere != "" {
		filter, err := exchange.NewRowFilter(visitWhere)
		if err != nil {
			return err
		}
		kept := visits[:0]
		for _, v := range visits {
			ok, err := filter.MatchVisit(v, byID[v.OnsenID])
			if err != nil {
				return err
			}
			if ok {
				kept = append(kept, v)
			}
		}
		visits = kept
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(visits)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"When", "Onsen", "Dur", "Rating", "Cost", "Crowd", "ID"})
	for _, v := range visits {
		name := fmt.Sprintf("#%d", v.OnsenID)
		if o := byID[v.OnsenID]; o != nil {
			name = o.Name
		}
		crowd := ""
		if v.CrowdLevel > 0 {
			crowd = fmt.Sprintf("%d/5", v.CrowdLevel)
		}
		t.AppendRow(table.Row{
			v.VisitedAt.Format("2006-01-02"), name, v.DurationMin,
			fmt.Sprintf("%.1f", v.Rating), v.Cost.String(), crowd, shortID(v.ID),
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	fmt.Printf("%d visit(s)\n", len(visits))
	return nil
}

func runVisitShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := findVisit(s, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(v)
	}

	o, _ := s.GetOnsen(v.OnsenID)
	name := fmt.Sprintf("onsen #%d", v.OnsenID)
	if o != nil {
		name = o.Name
	}
	fmt.Printf("visit %s\n", v.ID)
	fmt.Printf("  onsen:     %s\n", name)
	fmt.Printf("  when:      %s\n", v.VisitedAt.Format("2006-01-02 15:04"))
	fmt.Printf("  duration:  %d min\n", v.DurationMin)
	fmt.Printf("  rating:    %.1f\n", v.Rating)
	fmt.Printf("  cost:      %s\n", v.Cost.String())
	if v.BathTempC != nil {
		fmt.Printf("  bath temp: %.1f C\n", *v.BathTempC)
	}
	if v.CrowdLevel > 0 {
		fmt.Printf("  crowd:     %d/5\n", v.CrowdLevel)
	}
	if v.TravelMin > 0 {
		fmt.Printf("  travel:    %d min\n", v.TravelMin)
	}
	if v.Companions > 0 {
		fmt.Printf("  company:   %d\n", v.Companions)
	}
	if v.MoodBefore > 0 || v.MoodAfter > 0 {
		fmt.Printf("  mood:      %d -> %d\n", v.MoodBefore, v.MoodAfter)
	}
	if v.Weather != "" {
		fmt.Printf("  weather:   %s\n", v.Weather)
	}
	if v.Notes != "" {
		fmt.Printf("  notes:     %s\n", v.Notes)
	}
	return nil
}

func runVisitDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	v, err := findVisit(s, args[0])
	if err != nil {
		return err
	}
	if err := s.DeleteVisit(v.ID); err != nil {
		return err
	}
	fmt.Printf("deleted visit %s\n", v.ID)
	return nil
}

// findVisit accepts a full UUID or an unambiguous prefix.
func findVisit(s *store.Store, id string) (*domain.Visit, error) {
	if v, err := s.GetVisit(id); err == nil {
		return v, nil
	}
	visits, err := s.ListVisits(store.VisitFilter{})
	if err != nil {
		return nil, err
	}
	var match *domain.Visit
	for _, v := range visits {
		if len(id) >= 4 && len(v.ID) >= len(id) && v.ID[:len(id)] == id {
			if match != nil {
				return nil, fmt.Errorf("visit id prefix %q is ambiguous", id)
			}
			match = v
		}
	}
	if match == nil {
		return nil, fmt.Errorf("no visit with id %q", id)
	}
	return match, nil
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func parseWhen(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, "2006-01-02 15:04", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse %q as a date", s)
}

func init() {
	f := visitAddCmd.Flags()
	f.StringVar(&visitOnsen, "onsen", "", "Onsen name (omit for the interactive form)")
	f.StringVar(&visitWhen, "when", "", "Visit time (YYYY-MM-DD [HH:MM]), default now")
	f.IntVar(&visitDuration, "duration", 0, "Duration in minutes")
	f.Float64Var(&visitRating, "rating", 0, "Rating 1-10, halves allowed")
	f.StringVar(&visitCost, "cost", "", "Total cost")
	f.Float64Var(&visitBathTemp, "bath-temp", 0, "Bath temperature in C")
	f.IntVar(&visitCrowd, "crowd", 0, "Crowd level 1-5")
	f.IntVar(&visitTravel, "travel", 0, "Travel time in minutes")
	f.IntVar(&visitCompanions, "companions", 0, "Number of companions")
	f.IntVar(&visitMoodBefore, "mood-before", 0, "Mood before, 1-10")
	f.IntVar(&visitMoodAfter, "mood-after", 0, "Mood after, 1-10")
	f.StringVar(&visitWeather, "weather", "", "Weather during the visit")
	f.StringVar(&visitNotes, "notes", "", "Free-form notes")

	lf := visitListCmd.Flags()
	lf.StringVar(&visitOnsen, "onsen", "", "Restrict to one onsen by name")
	lf.StringVar(&visitSince, "since", "", "Earliest visit date")
	lf.StringVar(&visitUntil, "until", "", "Latest visit date")
	lf.StringVar(&visitWhere, "where", "", "Filter expression, e.g. 'rating >= 8'")
	lf.IntVar(&visitLimit, "limit", 0, "Maximum rows (0 = all)")

	visitCmd.AddCommand(visitAddCmd, visitListCmd, visitShowCmd, visitDeleteCmd)
	rootCmd.AddCommand(visitCmd)
}
