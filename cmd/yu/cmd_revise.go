package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/revision"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

var (
	reviseAdds         []string
	reviseAmends       []string
	reviseRetires      []string
	reviseRationale    string
	reviseReplaceDraft bool
)

var reviseCmd = &cobra.Command{
	Use:   "revise",
	Short: "Manage weekly revisions of the challenge ruleset",
	Long: `The ruleset changes through versioned revisions, at most one per ISO
week. A revision is proposed as a draft, reviewed as a markdown document,
and accepted to take effect.`,
}

var reviseProposeCmd = &cobra.Command{
	Use:   "propose",
	Short: "Draft a new revision",
	Long: `Drafts a revision from --add/--amend/--retire amendments. Fields are
separated by | characters:

  yu revise propose --rationale "Winter adjustments" \
    --add "R4 | Rotenburo season | December to March prefer outdoor baths." \
    --amend "R2 | At least one new onsen every two months." \
    --retire R3

An --amend with three fields also replaces the rule title. One revision
per ISO week; --replace-draft discards this week's draft first.`,
	RunE: runRevisePropose,
}

var reviseAcceptCmd = &cobra.Command{
	Use:   "accept <version>",
	Short: "Accept a draft revision",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviseAccept,
}

var reviseListCmd = &cobra.Command{
	Use:   "list",
	Short: "List revisions",
	RunE:  runReviseList,
}

var reviseShowCmd = &cobra.Command{
	Use:   "show <version>",
	Short: "Print a revision document",
	Args:  cobra.ExactArgs(1),
	RunE:  runReviseShow,
}

var reviseDiffCmd = &cobra.Command{
	Use:   "diff <version-a> <version-b>",
	Short: "Diff two revision documents",
	Args:  cobra.ExactArgs(2),
	RunE:  runReviseDiff,
}

func parseChanges() ([]domain.RevisionChange, error) {
	var changes []domain.RevisionChange

	for _, spec := range reviseAdds {
		parts := splitFields(spec)
		if len(parts) != 3 {
			return nil, fmt.Errorf("--add wants 'CODE | Title | body', got %q", spec)
		}
		changes = append(changes, domain.RevisionChange{
			Op: domain.ChangeAdd, RuleCode: parts[0], Title: parts[1], NewBody: parts[2],
		})
	}
	for _, spec := range reviseAmends {
		parts := splitFields(spec)
		switch len(parts) {
		case 2:
			changes = append(changes, domain.RevisionChange{
				Op: domain.ChangeAmend, RuleCode: parts[0], NewBody: parts[1],
			})
		case 3:
			changes = append(changes, domain.RevisionChange{
				Op: domain.ChangeAmend, RuleCode: parts[0], Title: parts[1], NewBody: parts[2],
			})
		default:
			return nil, fmt.Errorf("--amend wants 'CODE | body' or 'CODE | Title | body', got %q", spec)
		}
	}
	for _, code := range reviseRetires {
		changes = append(changes, domain.RevisionChange{
			Op: domain.ChangeRetire, RuleCode: strings.TrimSpace(code),
		})
	}
	return changes, nil
}

func splitFields(s string) []string {
	parts := strings.Split(s, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func runRevisePropose(cmd *cobra.Command, args []string) error {
	changes, err := parseChanges()
	if err != nil {
		return err
	}
	if len(changes) == 0 {
		return fmt.Errorf("nothing to propose; use --add, --amend or --retire")
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	mgr := revision.NewManager(s, cfg.RevisionsDir(dataDir))
	rev, err := mgr.Propose(changes, reviseRationale, time.Now().UTC(), reviseReplaceDraft)
	if err != nil {
		return err
	}

	fmt.Printf("drafted revision %d (week %d-W%02d, %d change(s))\n",
		rev.Version, rev.ISOYear, rev.ISOWeek, len(rev.Changes))
	fmt.Printf("review: yu revise show %d\n", rev.Version)
	fmt.Printf("accept: yu revise accept %d\n", rev.Version)
	return nil
}

func runReviseAccept(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	mgr := revision.NewManager(s, cfg.RevisionsDir(dataDir))
	rev, err := mgr.Accept(version, time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("accepted revision %d, document at %s\n", rev.Version, mgr.DocumentPath(rev.Version))
	return nil
}

func runReviseList(cmd *cobra.Command, args []string) error {
	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	revs, err := s.ListRevisions()
	if err != nil {
		return err
	}
	if len(revs) == 0 {
		fmt.Println("no revisions yet")
		return nil
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Version", "Week", "Status", "Changes", "Rationale"})
	for _, r := range revs {
		t.AppendRow(table.Row{
			r.Version, fmt.Sprintf("%d-W%02d", r.ISOYear, r.ISOWeek),
			string(r.Status), len(r.Changes), r.Rationale,
		})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
	return nil
}

func runReviseShow(cmd *cobra.Command, args []string) error {
	version, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	rev, err := s.GetRevision(version)
	if err != nil {
		return err
	}
	fmt.Print(rev.Document)
	return nil
}

func runReviseDiff(cmd *cobra.Command, args []string) error {
	a, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[0])
	}
	b, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid version %q", args[1])
	}

	s, err := openStore()
	if err != nil {
		return err
	}
	defer s.Close()

	mgr := revision.NewManager(s, cfg.RevisionsDir(dataDir))
	diff, err := mgr.Diff(a, b)
	if err != nil {
		return err
	}
	if diff == "" {
		fmt.Printf("revisions %d and %d are identical\n", a, b)
		return nil
	}
	fmt.Print(diff)
	return nil
}

func init() {
	f := reviseProposeCmd.Flags()
	f.StringArrayVar(&reviseAdds, "add", nil, "Add a rule: 'CODE | Title | body'")
	f.StringArrayVar(&reviseAmends, "amend", nil, "Amend a rule: 'CODE | body' or 'CODE | Title | body'")
	f.StringArrayVar(&reviseRetires, "retire", nil, "Retire a rule by code")
	f.StringVar(&reviseRationale, "rationale", "", "Why this revision exists")
	f.BoolVar(&reviseReplaceDraft, "replace-draft", false, "Discard this week's existing draft first")

	reviseCmd.AddCommand(reviseProposeCmd, reviseAcceptCmd, reviseListCmd, reviseShowCmd, reviseDiffCmd)
	rootCmd.AddCommand(reviseCmd)
}
