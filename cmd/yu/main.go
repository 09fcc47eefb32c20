// Command yu is the onsen visit tracker: a SQLite-backed log of hot spring
// visits with import/export, a weekly rule revision workflow, generated
// reports, maps and charts, and an OLS model search over the visit history.
package main

import (
	"fmt"
	"os"

	"yukemuri/internal/config"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	dataDir    string
	verbose    bool
	jsonOutput bool

	// Loaded in PersistentPreRunE, available to every command.
	cfg *config.Config
)

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "yu",
	Short: "yukemuri - personal onsen visit tracker",
	Long: `yukemuri tracks hot spring visits in a local SQLite database.

It records onsens and bathing sessions, keeps a personal challenge ruleset
under weekly versioned revisions, and analyzes the visit history with an
automated regression model search to surface what actually drives a good
soak.

Data lives under ~/.yukemuri (override with --data or YUKEMURI_DATA).
Start with:
  yu init
  yu onsen add --name "Takaragawa" --region Gunma
  yu visit add`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if dataDir == "" {
			dataDir, err = config.DefaultDataDir()
			if err != nil {
				return err
			}
		}
		cfg, err = config.Load(dataDir)
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		_, err = logging.Initialize(logging.Options{
			Debug: verbose || cfg.Logging.Debug,
			Dir:   dataDir,
		})
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDir, "data", "", "Data directory (default: ~/.yukemuri or $YUKEMURI_DATA)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Emit machine-readable JSON where supported")
}

// openStore opens the configured database. Callers must Close it.
func openStore() (*store.Store, error) {
	return store.Open(cfg.DBPath(dataDir))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
