// Package revision implements the weekly rule-revision workflow: proposing a
// draft for the current ISO week, accepting it into the ruleset, and
// rendering the canonical markdown document per revision.
package revision

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/logging"
	"yukemuri/internal/store"
)

// ErrWeekTaken is returned when the ISO week already has a revision and the
// caller did not ask to replace the draft.
var ErrWeekTaken = errors.New("revision: week already has a revision")

// Manager drives the revision workflow over the store and the revisions
// document directory.
type Manager struct {
	store *store.Store
	dir   string
}

// NewManager creates a revision manager writing documents under dir.
func NewManager(s *store.Store, dir string) *Manager {
	return &Manager{store: s, dir: dir}
}

// Propose creates a draft revision for the ISO week of `at`. One revision
// per week: a second proposal fails with ErrWeekTaken unless replaceDraft is
// set and the existing one is still a draft.
func (m *Manager) Propose(changes []domain.RevisionChange, rationale string, at time.Time, replaceDraft bool) (*domain.Revision, error) {
	log := logging.L(logging.SubRevision)

	if len(changes) == 0 {
		return nil, fmt.Errorf("revision: a revision needs at least one change")
	}

	rules, err := m.store.ListRules(false)
	if err != nil {
		return nil, err
	}
	validated, err := validateChanges(changes, rules)
	if err != nil {
		return nil, err
	}

	// Version numbers stay monotonic, so the next version is fixed before
	// a replaced draft disappears from the revision table.
	version := 1
	if latest, err := m.store.LatestRevision(); err == nil {
		version = latest.Version + 1
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	isoYear, isoWeek := at.UTC().ISOWeek()
	if existing, err := m.store.RevisionForWeek(isoYear, isoWeek); err == nil {
		if existing.Status != domain.RevisionDraft || !replaceDraft {
			return nil, fmt.Errorf("%w: %d-W%02d has revision %d (%s)",
				ErrWeekTaken, isoYear, isoWeek, existing.Version, existing.Status)
		}
		if err := m.store.DeleteDraft(existing.Version); err != nil {
			return nil, fmt.Errorf("revision: replace draft %d: %w", existing.Version, err)
		}
		log.Debugf("replaced draft revision %d for %d-W%02d", existing.Version, isoYear, isoWeek)
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	rev := &domain.Revision{
		Version:   version,
		ISOYear:   isoYear,
		ISOWeek:   isoWeek,
		Status:    domain.RevisionDraft,
		Rationale: rationale,
		Changes:   validated,
		CreatedAt: at.UTC(),
	}
	rev.Document = RenderDocument(rev, applyToRules(rules, validated, version))

	if err := m.store.InsertRevision(rev); err != nil {
		return nil, err
	}
	log.Debugf("proposed revision %d for %d-W%02d with %d change(s)", version, isoYear, isoWeek, len(validated))
	return rev, nil
}

// Accept applies a draft revision to the ruleset, stamps it accepted and
// writes the canonical markdown document to the revisions directory.
func (m *Manager) Accept(version int, at time.Time) (*domain.Revision, error) {
	rev, err := m.store.GetRevision(version)
	if err != nil {
		return nil, err
	}
	rules, err := m.store.ListRules(false)
	if err != nil {
		return nil, err
	}

	accepted := at.UTC()
	rev.Status = domain.RevisionAccepted
	rev.AcceptedAt = &accepted
	document := RenderDocument(rev, applyToRules(rules, rev.Changes, version))

	if err := m.store.AcceptRevision(version, document, accepted); err != nil {
		return nil, err
	}
	rev.Document = document

	if err := m.writeDocument(rev); err != nil {
		return nil, err
	}
	return rev, nil
}

// Diff renders a unified diff between two revision documents.
func (m *Manager) Diff(a, b int) (string, error) {
	ra, err := m.store.GetRevision(a)
	if err != nil {
		return "", fmt.Errorf("revision %d: %w", a, err)
	}
	rb, err := m.store.GetRevision(b)
	if err != nil {
		return "", fmt.Errorf("revision %d: %w", b, err)
	}
	hunks := DiffDocuments(ra.Document, rb.Document)
	if len(hunks) == 0 {
		return "", nil
	}
	header := fmt.Sprintf("--- rev-%03d\n+++ rev-%03d\n", a, b)
	return header + RenderUnified(hunks), nil
}

// DocumentPath returns where an accepted revision's markdown lives.
func (m *Manager) DocumentPath(version int) string {
	return filepath.Join(m.dir, fmt.Sprintf("rev-%03d.md", version))
}

func (m *Manager) writeDocument(rev *domain.Revision) error {
	if err := os.MkdirAll(m.dir, 0o755); err != nil {
		return fmt.Errorf("revision: create documents directory: %w", err)
	}
	path := m.DocumentPath(rev.Version)
	if err := os.WriteFile(path, []byte(rev.Document), 0o644); err != nil {
		return fmt.Errorf("revision: write %s: %w", path, err)
	}
	return nil
}

// validateChanges checks each change against the current ruleset and fills
// OldBody from the live rule so the document shows what was amended.
func validateChanges(changes []domain.RevisionChange, rules []*domain.Rule) ([]domain.RevisionChange, error) {
	byCode := make(map[string]*domain.Rule, len(rules))
	for _, r := range rules {
		byCode[r.Code] = r
	}

	out := make([]domain.RevisionChange, 0, len(changes))
	seen := map[string]bool{}
	for _, c := range changes {
		if c.RuleCode == "" {
			return nil, fmt.Errorf("revision: change without a rule code")
		}
		if seen[c.RuleCode] {
			return nil, fmt.Errorf("revision: rule %s appears in more than one change", c.RuleCode)
		}
		seen[c.RuleCode] = true

		rule := byCode[c.RuleCode]
		switch c.Op {
		case domain.ChangeAdd:
			if c.NewBody == "" {
				return nil, fmt.Errorf("revision: add %s needs a body", c.RuleCode)
			}
			if rule != nil && rule.Active {
				return nil, fmt.Errorf("revision: add %s: rule is already active", c.RuleCode)
			}
		case domain.ChangeAmend:
			if c.NewBody == "" {
				return nil, fmt.Errorf("revision: amend %s needs a body", c.RuleCode)
			}
			if rule == nil || !rule.Active {
				return nil, fmt.Errorf("revision: amend %s: no active rule with that code", c.RuleCode)
			}
			c.OldBody = rule.Body
		case domain.ChangeRetire:
			if rule == nil || !rule.Active {
				return nil, fmt.Errorf("revision: retire %s: no active rule with that code", c.RuleCode)
			}
			c.OldBody = rule.Body
		default:
			return nil, fmt.Errorf("revision: unknown op %q", c.Op)
		}
		out = append(out, c)
	}
	return out, nil
}

// applyToRules simulates the changes on a copy of the ruleset, yielding the
// snapshot the canonical document shows.
func applyToRules(rules []*domain.Rule, changes []domain.RevisionChange, version int) []*domain.Rule {
	byCode := make(map[string]*domain.Rule, len(rules))
	out := make([]*domain.Rule, 0, len(rules))
	for _, r := range rules {
		cp := *r
		byCode[cp.Code] = &cp
		out = append(out, &cp)
	}
	for _, c := range changes {
		switch c.Op {
		case domain.ChangeAdd:
			if existing := byCode[c.RuleCode]; existing != nil {
				existing.Title = c.Title
				existing.Body = c.NewBody
				existing.Active = true
				existing.RetiredRev = 0
			} else {
				nr := &domain.Rule{Code: c.RuleCode, Title: c.Title, Body: c.NewBody, Active: true, CreatedRev: version}
				byCode[c.RuleCode] = nr
				out = append(out, nr)
			}
		case domain.ChangeAmend:
			if existing := byCode[c.RuleCode]; existing != nil {
				if c.Title != "" {
					existing.Title = c.Title
				}
				existing.Body = c.NewBody
			}
		case domain.ChangeRetire:
			if existing := byCode[c.RuleCode]; existing != nil {
				existing.Active = false
				existing.RetiredRev = version
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// RenderDocument produces the canonical markdown for a revision: header,
// change list, then the full ruleset snapshot. The layout is fixed so two
// renders of the same revision are byte-identical.
func RenderDocument(rev *domain.Revision, snapshot []*domain.Rule) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "# Rule Revision %d\n\n", rev.Version)
	fmt.Fprintf(&sb, "- Week: %d-W%02d\n", rev.ISOYear, rev.ISOWeek)
	fmt.Fprintf(&sb, "- Status: %s\n", rev.Status)
	if rev.Rationale != "" {
		fmt.Fprintf(&sb, "- Rationale: %s\n", rev.Rationale)
	}
	sb.WriteString("\n## Changes\n\n")
	for _, c := range rev.Changes {
		switch c.Op {
		case domain.ChangeAdd:
			fmt.Fprintf(&sb, "- **add %s** — %s\n", c.RuleCode, c.NewBody)
		case domain.ChangeAmend:
			fmt.Fprintf(&sb, "- **amend %s** — %s (was: %s)\n", c.RuleCode, c.NewBody, c.OldBody)
		case domain.ChangeRetire:
			fmt.Fprintf(&sb, "- **retire %s** — %s\n", c.RuleCode, c.OldBody)
		}
	}

	sb.WriteString("\n## Ruleset\n\n")
	for _, r := range snapshot {
		if !r.Active {
			continue
		}
		title := r.Title
		if title != "" {
			title = " " + title + ":"
		}
		fmt.Fprintf(&sb, "- **%s**%s %s\n", r.Code, title, r.Body)
	}
	retired := 0
	for _, r := range snapshot {
		if !r.Active {
			retired++
		}
	}
	if retired > 0 {
		sb.WriteString("\n### Retired\n\n")
		for _, r := range snapshot {
			if r.Active {
				continue
			}
			fmt.Fprintf(&sb, "- **%s** (retired in revision %d): %s\n", r.Code, r.RetiredRev, r.Body)
		}
	}
	return sb.String()
}
