package revision

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"yukemuri/internal/domain"
	"yukemuri/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newManager(t *testing.T) (*Manager, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return NewManager(s, filepath.Join(dir, "revisions")), s
}

var week1 = time.Date(2025, 11, 3, 12, 0, 0, 0, time.UTC) // 2025-W45
var week2 = week1.AddDate(0, 0, 7)

func addRules(t *testing.T, m *Manager) *domain.Revision {
	t.Helper()
	rev, err := m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeAdd, RuleCode: "R1", Title: "Weekly visit", NewBody: "Visit at least one onsen per week."},
		{Op: domain.ChangeAdd, RuleCode: "R2", Title: "New waters", NewBody: "Every fourth visit must be a first-time onsen."},
	}, "bootstrap the challenge", week1, false)
	require.NoError(t, err)
	accepted, err := m.Accept(rev.Version, week1.Add(time.Hour))
	require.NoError(t, err)
	return accepted
}

func TestProposeAndAccept(t *testing.T) {
	m, s := newManager(t)
	rev := addRules(t, m)

	assert.Equal(t, 1, rev.Version)
	assert.Equal(t, 2025, rev.ISOYear)
	assert.Equal(t, 45, rev.ISOWeek)
	assert.Equal(t, domain.RevisionAccepted, rev.Status)
	require.NotNil(t, rev.AcceptedAt)

	rules, err := s.ListRules(true)
	require.NoError(t, err)
	assert.Len(t, rules, 2)

	// The canonical document landed on disk.
	doc := rev.Document
	assert.Contains(t, doc, "# Rule Revision 1")
	assert.Contains(t, doc, "Week: 2025-W45")
	assert.Contains(t, doc, "**add R1**")
	assert.Contains(t, doc, "Visit at least one onsen per week.")

	data, err := readFile(m.DocumentPath(1))
	require.NoError(t, err)
	assert.Equal(t, doc, data)
}

func TestProposeWeekConflict(t *testing.T) {
	m, _ := newManager(t)
	addRules(t, m)

	// Accepted revision blocks the week entirely.
	_, err := m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeRetire, RuleCode: "R2"},
	}, "", week1, false)
	assert.ErrorIs(t, err, ErrWeekTaken)
	_, err = m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeRetire, RuleCode: "R2"},
	}, "", week1, true)
	assert.ErrorIs(t, err, ErrWeekTaken, "replace-draft must not replace an accepted revision")

	// A new draft in week 2 is fine; a second one needs replaceDraft.
	draft, err := m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeRetire, RuleCode: "R2"},
	}, "too ambitious", week2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, draft.Version)

	_, err = m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeAmend, RuleCode: "R2", NewBody: "Every sixth visit must be a first-time onsen."},
	}, "soften instead", week2, false)
	assert.ErrorIs(t, err, ErrWeekTaken)

	replaced, err := m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeAmend, RuleCode: "R2", NewBody: "Every sixth visit must be a first-time onsen."},
	}, "soften instead", week2, true)
	require.NoError(t, err)
	assert.Equal(t, 3, replaced.Version, "version keeps counting after a replaced draft")
}

func TestProposeValidation(t *testing.T) {
	m, _ := newManager(t)
	addRules(t, m)

	cases := []struct {
		name    string
		changes []domain.RevisionChange
	}{
		{"empty", nil},
		{"amend missing rule", []domain.RevisionChange{{Op: domain.ChangeAmend, RuleCode: "R9", NewBody: "x"}}},
		{"retire missing rule", []domain.RevisionChange{{Op: domain.ChangeRetire, RuleCode: "R9"}}},
		{"add active rule", []domain.RevisionChange{{Op: domain.ChangeAdd, RuleCode: "R1", NewBody: "x"}}},
		{"add without body", []domain.RevisionChange{{Op: domain.ChangeAdd, RuleCode: "R3"}}},
		{"duplicate code", []domain.RevisionChange{
			{Op: domain.ChangeAmend, RuleCode: "R1", NewBody: "a"},
			{Op: domain.ChangeRetire, RuleCode: "R1"},
		}},
		{"bad op", []domain.RevisionChange{{Op: "replace", RuleCode: "R1", NewBody: "x"}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := m.Propose(tc.changes, "", week2, false)
			assert.Error(t, err)
		})
	}
}

func TestAmendFillsOldBodyAndSnapshot(t *testing.T) {
	m, _ := newManager(t)
	addRules(t, m)

	draft, err := m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeAmend, RuleCode: "R1", NewBody: "Visit at least two onsens per week."},
		{Op: domain.ChangeRetire, RuleCode: "R2"},
	}, "ramping up", week2, false)
	require.NoError(t, err)
	assert.Equal(t, "Visit at least one onsen per week.", draft.Changes[0].OldBody)

	accepted, err := m.Accept(draft.Version, week2.Add(time.Hour))
	require.NoError(t, err)
	assert.Contains(t, accepted.Document, "Visit at least two onsens per week.")
	assert.Contains(t, accepted.Document, "### Retired")
	assert.Contains(t, accepted.Document, "**R2** (retired in revision 2)")
	// The active ruleset section no longer lists R2's body as active.
	rulesetPart := accepted.Document[strings.Index(accepted.Document, "## Ruleset"):]
	activePart := rulesetPart[:strings.Index(rulesetPart, "### Retired")]
	assert.NotContains(t, activePart, "R2")
}

func TestRenderDocumentDeterministic(t *testing.T) {
	rev := &domain.Revision{
		Version: 3, ISOYear: 2025, ISOWeek: 47, Status: domain.RevisionDraft,
		Rationale: "test",
		Changes: []domain.RevisionChange{
			{Op: domain.ChangeAdd, RuleCode: "R5", Title: "Soak", NewBody: "Stay in for 20 minutes."},
		},
	}
	snapshot := []*domain.Rule{
		{Code: "R1", Title: "Weekly visit", Body: "Visit weekly.", Active: true},
		{Code: "R5", Title: "Soak", Body: "Stay in for 20 minutes.", Active: true, CreatedRev: 3},
	}
	a := RenderDocument(rev, snapshot)
	b := RenderDocument(rev, snapshot)
	assert.Equal(t, a, b)
}

func TestDiff(t *testing.T) {
	m, _ := newManager(t)
	addRules(t, m)
	draft, err := m.Propose([]domain.RevisionChange{
		{Op: domain.ChangeAmend, RuleCode: "R1", NewBody: "Visit at least two onsens per week."},
	}, "", week2, false)
	require.NoError(t, err)
	_, err = m.Accept(draft.Version, week2.Add(time.Hour))
	require.NoError(t, err)

	out, err := m.Diff(1, 2)
	require.NoError(t, err)
	assert.Contains(t, out, "--- rev-001")
	assert.Contains(t, out, "+++ rev-002")
	assert.Contains(t, out, "-# Rule Revision 1")
	assert.Contains(t, out, "+# Rule Revision 2")
	assert.Contains(t, out, "@@ ")

	_, err = m.Diff(1, 9)
	assert.Error(t, err)
}

func TestDiffDocumentsAndWordDiff(t *testing.T) {
	old := "line one\nline two\nline three\nline four\nline five\nline six\nline seven\n"
	new := "line one\nline two\nline TWO-AND-A-HALF\nline three\nline four\nline five\nline six\nline seven\n"

	hunks := DiffDocuments(old, new)
	require.Len(t, hunks, 1)
	assert.Equal(t, 1, hunks[0].OldStart)

	unified := RenderUnified(hunks)
	assert.Contains(t, unified, "+line TWO-AND-A-HALF")
	assert.NotContains(t, unified, "line seven", "far context is trimmed")

	// Identical inputs produce no hunks.
	assert.Empty(t, DiffDocuments(old, old))

	o, n := WordDiff("soak for 20 minutes", "soak for 30 minutes")
	assert.Contains(t, o, "[-2")
	assert.Contains(t, n, "{+3")
}

func TestDiffKeepsLineBoundaries(t *testing.T) {
	// Documents whose changed lines share long common prefixes tempt the
	// char-level differ into splitting mid-line; every emitted line must
	// still be a whole line of one of the inputs.
	old := "# Rule Revision 1\n\nWeek: 2025-W45\nRationale: bootstrap\n\n## Ruleset\n\nVisit weekly.\n"
	new := "# Rule Revision 2\n\nWeek: 2025-W46\nRationale: soften\n\n## Ruleset\n\nVisit monthly.\n"

	sourceLines := map[string]bool{}
	for _, doc := range []string{old, new} {
		for _, l := range strings.Split(strings.TrimSuffix(doc, "\n"), "\n") {
			sourceLines[l] = true
		}
	}

	for _, h := range DiffDocuments(old, new) {
		for _, l := range h.Lines {
			assert.True(t, sourceLines[l.Content], "diff line %q is not a line of either document", l.Content)
		}
	}

	unified := RenderUnified(DiffDocuments(old, new))
	assert.Contains(t, unified, "-# Rule Revision 1")
	assert.Contains(t, unified, "+# Rule Revision 2")
	assert.Contains(t, unified, "-Rationale: bootstrap")
	assert.Contains(t, unified, "+Rationale: soften")
}

func readFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	return string(data), err
}
