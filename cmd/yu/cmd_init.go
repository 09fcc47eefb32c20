package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"yukemuri/internal/config"
	"yukemuri/internal/domain"
	"yukemuri/internal/revision"

	"github.com/spf13/cobra"
)

// initCmd sets up the data directory for first use.
var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the data directory, database and starting ruleset",
	Long: `Creates the data directory layout, writes a default config.yaml,
opens the database (creating the schema) and installs revision 1 of the
challenge ruleset.

Safe to re-run: existing config and rules are left alone.`,
	RunE: runInit,
}

// seedRules is revision 1 of the challenge ruleset.
var seedRules = []domain.RevisionChange{
	{Op: domain.ChangeAdd, RuleCode: "R1", Title: "Log every soak",
		NewBody: "Every onsen visit is logged the same day, with at least duration and a rating."},
	{Op: domain.ChangeAdd, RuleCode: "R2", Title: "One new onsen per month",
		NewBody: "At least one visit per calendar month goes to an onsen not visited before."},
	{Op: domain.ChangeAdd, RuleCode: "R3", Title: "No phone in the bath",
		NewBody: "Phones stay in the locker. Mood scores are estimated afterwards, honestly."},
}

func runInit(cmd *cobra.Command, args []string) error {
	for _, sub := range []string{"", "out", "revisions", "logs"} {
		if err := os.MkdirAll(filepath.Join(dataDir, sub), 0o755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	cfgPath := filepath.Join(dataDir, config.FileName)
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		if err := config.DefaultConfig().Save(dataDir); err != nil {
			return err
		}
		fmt.Printf("wrote %s\n", cfgPath)
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()
	fmt.Printf("database ready at %s\n", s.Path())

	rules, err := s.ListRules(false)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		mgr := revision.NewManager(s, cfg.RevisionsDir(dataDir))
		now := time.Now().UTC()
		rev, err := mgr.Propose(seedRules, "Initial ruleset.", now, false)
		if err != nil {
			return fmt.Errorf("failed to seed ruleset: %w", err)
		}
		if _, err := mgr.Accept(rev.Version, now); err != nil {
			return fmt.Errorf("failed to accept initial ruleset: %w", err)
		}
		fmt.Printf("installed ruleset revision %d (%d rules)\n", rev.Version, len(seedRules))
	}

	fmt.Println("yukemuri is ready. Try: yu onsen add --name \"...\" --region \"...\"")
	return nil
}

func init() {
	rootCmd.AddCommand(initCmd)
}
