package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"yukemuri/internal/domain"
	"yukemuri/internal/exchange"
	"yukemuri/internal/store"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
)

// Onsen flag values, shared by add and update.
var (
	onsenName       string
	onsenRegion     string
	onsenTown       string
	onsenLat        float64
	onsenLon        float64
	onsenSpring     string
	onsenSourceTemp float64
	onsenPH         float64
	onsenFee        string
	onsenRotenburo  bool
	onsenSauna      bool
	onsenNotes      string
	onsenWhere      string
)

var onsenCmd = &cobra.Command{
	Use:   "onsen",
	Short: "Manage tracked onsens",
}

var onsenAddCmd = &cobra.Command{
	Use:   "add",
	Short: "Add an onsen",
	Long: `Registers a hot spring facility.

Example:
  yu onsen add --name "Takaragawa Onsen" --region Gunma --spring sulfate \
    --lat 36.8561 --lon 139.0583 --fee 2000 --rotenburo`,
	RunE: runOnsenAdd,
}

var onsenListCmd = &cobra.Command{
	Use:   "list",
	Short: "List onsens",
	Long: `Lists tracked onsens as a table (or JSON with --json).

The --where expression filters rows, e.g.:
  yu onsen list --where 'region == "Gunma" && rotenburo'
  yu onsen list --where 'entry_fee <= 1000'`,
	RunE: runOnsenList,
}

var onsenShowCmd = &cobra.Command{
	Use:   "show <id|name>",
	Short: "Show one onsen",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnsenShow,
}

var onsenUpdateCmd = &cobra.Command{
	Use:   "update <id|name>",
	Short: "Update fields of an onsen",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnsenUpdate,
}

var onsenDeleteCmd = &cobra.Command{
	Use:   "delete <id|name>",
	Short: "Delete an onsen and its visits",
	Args:  cobra.ExactArgs(1),
	RunE:  runOnsenDelete,
}

// resolveOnsen accepts either a numeric ID or an exact name.
func resolveOnsen(s *store.Store, arg string) (*domain.Onsen, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil {
		return s.GetOnsen(id)
	}
	return s.GetOnsenByName(arg)
}

func runOnsenAdd(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	o := &domain.Onsen{
		Name:         onsenName,
		Region:       onsenRegion,
		Town:         onsenTown,
		SpringType:   onsenSpring,
		HasRotenburo: onsenRotenburo,
		HasSauna:     onsenSauna,
		Notes:        onsenNotes,
	}
	if onsenFee != "" {
		fee, err := decimal.NewFromString(onsenFee)
		if err != nil {
			return fmt.Errorf("invalid entry fee %q: %w", onsenFee, err)
		}
		o.EntryFee = fee
	}
	if cmd.Flags().Changed("lat") {
		o.Latitude = &onsenLat
	}
	if cmd.Flags().Changed("lon") {
		o.Longitude = &onsenLon
	}
	if cmd.Flags().Changed("source-temp") {
		o.SourceTempC = &onsenSourceTemp
	}
	if cmd.Flags().Changed("ph") {
		o.PH = &onsenPH
	}

	id, err := s.CreateOnsen(o)
	if err != nil {
		return err
	}
	fmt.Printf("added onsen #%d %q\n", id, o.Name)
	return nil
}

func runOnsenList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	onsens, err := s.ListOnsens()
	if err != nil {
		return err
	}
	counts, err := s.VisitCounts()
	if err != nil {
		return err
	}

	if onsenWhere != "" {
		filter, err := exchange.NewRowFilter(onsenWhere)
		if err != nil {
			return err
		}
		kept := onsens[:0]
		for _, o := range onsens {
			ok, err := filter.MatchOnsen(o)
			if err != nil {
				return err
			}
			if ok {
				kept = append(kept, o)
			}
		}
		onsens = kept
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(onsens)
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"ID", "Name", "Region", "Spring", "Fee", "Roten", "Sauna", "Visits"})
	for _, o := range onsens {
		roten, sauna := "", ""
		if o.HasRotenburo {
			roten = "yes"
		}
		if o.HasSauna {
			sauna = "yes"
		}
		t.AppendRow(table.Row{o.ID, o.Name, o.Region, o.SpringType, o.EntryFee.String(), roten, sauna, counts[o.ID]})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runOnsenShow(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	o, err := resolveOnsen(s, args[0])
	if err != nil {
		return err
	}
	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(o)
	}

	fmt.Printf("#%d %s\n", o.ID, o.Name)
	fmt.Printf("  region:      %s", o.Region)
	if o.Town != "" {
		fmt.Printf(" / %s", o.Town)
	}
	fmt.Println()
	if o.HasCoordinates() {
		fmt.Printf("  location:    %.4f, %.4f\n", *o.Latitude, *o.Longitude)
	}
	if o.SpringType != "" {
		fmt.Printf("  spring:      %s\n", o.SpringType)
	}
	if o.SourceTempC != nil {
		fmt.Printf("  source temp: %.1f C\n", *o.SourceTempC)
	}
	if o.PH != nil {
		fmt.Printf("  ph:          %.1f\n", *o.PH)
	}
	fmt.Printf("  entry fee:   %s\n", o.EntryFee.String())
	fmt.Printf("  rotenburo:   %v, sauna: %v\n", o.HasRotenburo, o.HasSauna)
	if o.Notes != "" {
		fmt.Printf("  notes:       %s\n", o.Notes)
	}
	return nil
}

func runOnsenUpdate(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	o, err := resolveOnsen(s, args[0])
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("name") {
		o.Name = onsenName
	}
	if flags.Changed("region") {
		o.Region = onsenRegion
	}
	if flags.Changed("town") {
		o.Town = onsenTown
	}
	if flags.Changed("spring") {
		o.SpringType = onsenSpring
	}
	if flags.Changed("lat") {
		o.Latitude = &onsenLat
	}
	if flags.Changed("lon") {
		o.Longitude = &onsenLon
	}
	if flags.Changed("source-temp") {
		o.SourceTempC = &onsenSourceTemp
	}
	if flags.Changed("ph") {
		o.PH = &onsenPH
	}
	if flags.Changed("fee") {
		fee, err := decimal.NewFromString(onsenFee)
		if err != nil {
			return fmt.Errorf("invalid entry fee %q: %w", onsenFee, err)
		}
		o.EntryFee = fee
	}
	if flags.Changed("rotenburo") {
		o.HasRotenburo = onsenRotenburo
	}
	if flags.Changed("sauna") {
		o.HasSauna = onsenSauna
	}
	if flags.Changed("notes") {
		o.Notes = onsenNotes
	}

	if err := s.UpdateOnsen(o); err != nil {
		return err
	}
	fmt.Printf("updated onsen #%d %q\n", o.ID, o.Name)
	return nil
}

func runOnsenDelete(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	o, err := resolveOnsen(s, args[0])
	if err != nil {
		return err
	}
	if err := s.DeleteOnsen(o.ID); err != nil {
		return err
	}
	fmt.Printf("deleted onsen #%d %q and its visits\n", o.ID, o.Name)
	return nil
}

func addOnsenFieldFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.StringVar(&onsenName, "name", "", "Onsen name")
	f.StringVar(&onsenRegion, "region", "", "Region or prefecture")
	f.StringVar(&onsenTown, "town", "", "Town")
	f.Float64Var(&onsenLat, "lat", 0, "Latitude")
	f.Float64Var(&onsenLon, "lon", 0, "Longitude")
	f.StringVar(&onsenSpring, "spring", "", "Spring type (simple, sulfur, chloride, ...)")
	f.Float64Var(&onsenSourceTemp, "source-temp", 0, "Source temperature in C")
	f.Float64Var(&onsenPH, "ph", 0, "Water pH")
	f.StringVar(&onsenFee, "fee", "", "Entry fee")
	f.BoolVar(&onsenRotenburo, "rotenburo", false, "Has an outdoor bath")
	f.BoolVar(&onsenSauna, "sauna", false, "Has a sauna")
	f.StringVar(&onsenNotes, "notes", "", "Free-form notes")
}

func init() {
	addOnsenFieldFlags(onsenAddCmd)
	onsenAddCmd.MarkFlagRequired("name")
	addOnsenFieldFlags(onsenUpdateCmd)
	onsenListCmd.Flags().StringVar(&onsenWhere, "where", "", "Filter expression, e.g. 'region == \"Gunma\"'")

	onsenCmd.AddCommand(onsenAddCmd, onsenListCmd, onsenShowCmd, onsenUpdateCmd, onsenDeleteCmd)
	rootCmd.AddCommand(onsenCmd)
}
