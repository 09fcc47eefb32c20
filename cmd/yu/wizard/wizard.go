// Package wizard implements the interactive visit entry form for `yu visit add`.
// One textinput per field, Enter advances, Esc aborts, and a final confirm
// screen shows the assembled visit before anything touches the database.
package wizard

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"yukemuri/internal/domain"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4db6ac"))
	labelStyle  = lipgloss.NewStyle().Bold(true)
	hintStyle   = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	summaryTick = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A")).Render("✔")
)

// field is one form entry with its own parser. parse validates the raw input
// and writes it into the visit under construction.
type field struct {
	label    string
	hint     string
	optional bool
	parse    func(raw string, v *domain.Visit) error
}

// Model is the bubbletea model for the visit form.
type Model struct {
	fields  []field
	inputs  []textinput.Model
	step    int
	confirm bool
	errMsg  string

	visit     domain.Visit
	onsenName string

	// Done reports how the form ended.
	Accepted bool
	Aborted  bool
}

// New builds the form. onsenNames is used only for the hint text; the caller
// resolves the name after the form completes.
func New(onsenNames []string) *Model {
	m := &Model{}
	m.fields = []field{
		{
			label: "Onsen",
			hint:  hintOnsen(onsenNames),
			parse: func(raw string, v *domain.Visit) error {
				if strings.TrimSpace(raw) == "" {
					return fmt.Errorf("an onsen name is required")
				}
				m.onsenName = strings.TrimSpace(raw)
				return nil
			},
		},
		{
			label:    "Visited at",
			hint:     "YYYY-MM-DD or YYYY-MM-DD HH:MM, empty = now",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				if raw == "" {
					v.VisitedAt = time.Now().UTC()
					return nil
				}
				for _, layout := range []string{"2006-01-02 15:04", "2006-01-02"} {
					if t, err := time.Parse(layout, raw); err == nil {
						v.VisitedAt = t.UTC()
						return nil
					}
				}
				return fmt.Errorf("cannot parse %q as a date", raw)
			},
		},
		{
			label: "Duration (minutes)",
			parse: func(raw string, v *domain.Visit) error {
				n, err := strconv.Atoi(raw)
				if err != nil || n <= 0 {
					return fmt.Errorf("duration must be a positive number of minutes")
				}
				v.DurationMin = n
				return nil
			},
		},
		{
			label: "Rating (1-10, halves ok)",
			parse: func(raw string, v *domain.Visit) error {
				r, err := strconv.ParseFloat(raw, 64)
				if err != nil || r < domain.RatingMin || r > domain.RatingMax {
					return fmt.Errorf("rating must be between %v and %v", domain.RatingMin, domain.RatingMax)
				}
				v.Rating = r
				return nil
			},
		},
		{
			label:    "Cost",
			hint:     "total spent, empty = 0",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				if raw == "" {
					return nil
				}
				d, err := decimal.NewFromString(raw)
				if err != nil || d.IsNegative() {
					return fmt.Errorf("cost must be a non-negative amount")
				}
				v.Cost = d
				return nil
			},
		},
		{
			label:    "Bath temperature (C)",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				if raw == "" {
					return nil
				}
				t, err := strconv.ParseFloat(raw, 64)
				if err != nil || t < 0 || t > 60 {
					return fmt.Errorf("bath temperature must be between 0 and 60")
				}
				v.BathTempC = &t
				return nil
			},
		},
		{
			label:    "Crowd level (1-5)",
			optional: true,
			parse:    intField(func(v *domain.Visit, n int) { v.CrowdLevel = n }, domain.CrowdMin, domain.CrowdMax),
		},
		{
			label:    "Travel time (minutes)",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				if raw == "" {
					return nil
				}
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					return fmt.Errorf("travel time must be a non-negative number of minutes")
				}
				v.TravelMin = n
				return nil
			},
		},
		{
			label:    "Companions",
			hint:     "people bathing with you, empty = 0",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				if raw == "" {
					return nil
				}
				n, err := strconv.Atoi(raw)
				if err != nil || n < 0 {
					return fmt.Errorf("companions must be a non-negative number")
				}
				v.Companions = n
				return nil
			},
		},
		{
			label:    "Mood before (1-10)",
			optional: true,
			parse:    intField(func(v *domain.Visit, n int) { v.MoodBefore = n }, domain.MoodMin, domain.MoodMax),
		},
		{
			label:    "Mood after (1-10)",
			optional: true,
			parse:    intField(func(v *domain.Visit, n int) { v.MoodAfter = n }, domain.MoodMin, domain.MoodMax),
		},
		{
			label:    "Weather",
			hint:     "sunny, cloudy, rain, snow, ...",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				v.Weather = strings.TrimSpace(raw)
				return nil
			},
		},
		{
			label:    "Notes",
			optional: true,
			parse: func(raw string, v *domain.Visit) error {
				v.Notes = strings.TrimSpace(raw)
				return nil
			},
		},
	}

	m.inputs = make([]textinput.Model, len(m.fields))
	for i := range m.fields {
		in := textinput.New()
		in.Prompt = "> "
		in.CharLimit = 200
		m.inputs[i] = in
	}
	m.inputs[0].Focus()
	return m
}

func intField(set func(*domain.Visit, int), min, max int) func(string, *domain.Visit) error {
	return func(raw string, v *domain.Visit) error {
		if raw == "" {
			return nil
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < min || n > max {
			return fmt.Errorf("value must be between %d and %d", min, max)
		}
		set(v, n)
		return nil
	}
}

func hintOnsen(names []string) string {
	switch {
	case len(names) == 0:
		return "no onsens registered yet; the name will be created"
	case len(names) <= 4:
		return "known: " + strings.Join(names, ", ")
	default:
		return fmt.Sprintf("known: %s, ... (%d total)", strings.Join(names[:4], ", "), len(names))
	}
}

// Init implements tea.Model.
func (m *Model) Init() tea.Cmd { return textinput.Blink }

// Update implements tea.Model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m.updateInput(msg)
	}

	switch key.Type {
	case tea.KeyEsc, tea.KeyCtrlC:
		m.Aborted = true
		return m, tea.Quit

	case tea.KeyEnter:
		if m.confirm {
			m.Accepted = true
			return m, tea.Quit
		}
		f := m.fields[m.step]
		raw := strings.TrimSpace(m.inputs[m.step].Value())
		if err := f.parse(raw, &m.visit); err != nil {
			m.errMsg = err.Error()
			return m, nil
		}
		m.errMsg = ""
		m.step++
		if m.step == len(m.fields) {
			m.confirm = true
			return m, nil
		}
		m.inputs[m.step-1].Blur()
		m.inputs[m.step].Focus()
		return m, textinput.Blink
	}

	if m.confirm {
		// Any other key on the confirm screen does nothing; y is a
		// shortcut for Enter, n for Esc.
		switch key.String() {
		case "y":
			m.Accepted = true
			return m, tea.Quit
		case "n":
			m.Aborted = true
			return m, tea.Quit
		}
		return m, nil
	}
	return m.updateInput(msg)
}

func (m *Model) updateInput(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.confirm || m.step >= len(m.inputs) {
		return m, nil
	}
	var cmd tea.Cmd
	m.inputs[m.step], cmd = m.inputs[m.step].Update(msg)
	return m, cmd
}

// View implements tea.Model.
func (m *Model) View() string {
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("New visit"))
	sb.WriteString("\n\n")

	if m.confirm {
		sb.WriteString(m.summary())
		sb.WriteString("\n")
		sb.WriteString(hintStyle.Render("Enter/y to save, Esc/n to abort"))
		sb.WriteString("\n")
		return sb.String()
	}

	for i := 0; i < m.step; i++ {
		val := strings.TrimSpace(m.inputs[i].Value())
		if val == "" {
			val = hintStyle.Render("(empty)")
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", summaryTick, m.fields[i].label, val)
	}

	f := m.fields[m.step]
	sb.WriteString("\n")
	sb.WriteString(labelStyle.Render(f.label))
	if f.optional {
		sb.WriteString(hintStyle.Render(" (optional)"))
	}
	sb.WriteString("\n")
	if f.hint != "" {
		sb.WriteString(hintStyle.Render(f.hint))
		sb.WriteString("\n")
	}
	sb.WriteString(m.inputs[m.step].View())
	sb.WriteString("\n")
	if m.errMsg != "" {
		sb.WriteString(errorStyle.Render(m.errMsg))
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(hintStyle.Render("Enter to continue, Esc to abort"))
	sb.WriteString("\n")
	return sb.String()
}

func (m *Model) summary() string {
	v := m.visit
	var sb strings.Builder
	fmt.Fprintf(&sb, "  onsen:     %s\n", m.onsenName)
	fmt.Fprintf(&sb, "  when:      %s\n", v.VisitedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&sb, "  duration:  %d min\n", v.DurationMin)
	fmt.Fprintf(&sb, "  rating:    %.1f\n", v.Rating)
	if !v.Cost.IsZero() {
		fmt.Fprintf(&sb, "  cost:      %s\n", v.Cost.String())
	}
	if v.BathTempC != nil {
		fmt.Fprintf(&sb, "  bath temp: %.1f C\n", *v.BathTempC)
	}
	if v.CrowdLevel > 0 {
		fmt.Fprintf(&sb, "  crowd:     %d/5\n", v.CrowdLevel)
	}
	if v.TravelMin > 0 {
		fmt.Fprintf(&sb, "  travel:    %d min\n", v.TravelMin)
	}
	if v.Companions > 0 {
		fmt.Fprintf(&sb, "  company:   %d\n", v.Companions)
	}
	if v.MoodBefore > 0 || v.MoodAfter > 0 {
		fmt.Fprintf(&sb, "  mood:      %d -> %d\n", v.MoodBefore, v.MoodAfter)
	}
	if v.Weather != "" {
		fmt.Fprintf(&sb, "  weather:   %s\n", v.Weather)
	}
	if v.Notes != "" {
		fmt.Fprintf(&sb, "  notes:     %s\n", v.Notes)
	}
	return sb.String()
}

// Result returns the completed visit and the onsen name the user typed.
// Only meaningful when Accepted is true.
func (m *Model) Result() (domain.Visit, string) {
	return m.visit, m.onsenName
}

// Run drives the form to completion on the current terminal.
func Run(onsenNames []string) (*Model, error) {
	m := New(onsenNames)
	final, err := tea.NewProgram(m).Run()
	if err != nil {
		return nil, fmt.Errorf("wizard: %w", err)
	}
	fm, ok := final.(*Model)
	if !ok {
		return nil, fmt.Errorf("wizard: unexpected final model %T", final)
	}
	return fm, nil
}
