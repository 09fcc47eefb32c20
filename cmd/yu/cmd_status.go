package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show data directory and database status",
	RunE:  runStatus,
}

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Database maintenance",
}

var dbBackupCmd = &cobra.Command{
	Use:   "backup [file]",
	Short: "Back up the database",
	Long: `Copies the database to the given file, or to
<data>/backups/yukemuri-<date>.db when no file is given.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runDBBackup,
}

var dbVacuumCmd = &cobra.Command{
	Use:   "vacuum",
	Short: "Compact the database",
	RunE:  runDBVacuum,
}

func runStatus(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	stats, err := s.Stats()
	if err != nil {
		return err
	}

	if jsonOutput {
		return json.NewEncoder(os.Stdout).Encode(map[string]any{
			"data_dir": dataDir,
			"database": s.Path(),
			"out_dir":  cfg.OutDir(dataDir),
			"counts":   stats,
		})
	}

	fmt.Printf("data dir:  %s\n", dataDir)
	fmt.Printf("database:  %s\n", s.Path())
	fmt.Printf("out dir:   %s\n", cfg.OutDir(dataDir))
	fmt.Printf("revisions: %s\n", cfg.RevisionsDir(dataDir))
	fmt.Println()
	for _, name := range []string{"onsens", "visits", "rules", "revisions", "analysis_runs", "insights"} {
		fmt.Printf("  %-14s %d\n", name, stats[name])
	}
	return nil
}

func runDBBackup(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	dst := ""
	if len(args) == 1 {
		dst = args[0]
	} else {
		dir := filepath.Join(dataDir, "backups")
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
		dst = filepath.Join(dir, fmt.Sprintf("yukemuri-%s.db", time.Now().UTC().Format("2006-01-02")))
	}

	if err := s.Backup(dst); err != nil {
		return err
	}
	fmt.Printf("backed up to %s\n", dst)
	return nil
}

func runDBVacuum(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	if err := s.Vacuum(); err != nil {
		return err
	}
	fmt.Println("database compacted")
	return nil
}

func init() {
	dbCmd.AddCommand(dbBackupCmd, dbVacuumCmd)
	rootCmd.AddCommand(statusCmd, dbCmd)
}
