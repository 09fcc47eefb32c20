package wizard

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func typeText(m tea.Model, s string) tea.Model {
	for _, r := range s {
		m, _ = m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
	}
	return m
}

func pressEnter(m tea.Model) tea.Model {
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	return m
}

func TestWizardHappyPath(t *testing.T) {
	var m tea.Model = New([]string{"Kusatsu Oyu"})

	m = pressEnter(typeText(m, "Kusatsu Oyu")) // onsen
	m = pressEnter(m)                          // visited at, default now
	m = pressEnter(typeText(m, "45"))          // duration
	m = pressEnter(typeText(m, "8.5"))         // rating
	m = pressEnter(typeText(m, "600"))         // cost
	m = pressEnter(typeText(m, "42"))          // bath temp
	m = pressEnter(typeText(m, "3"))           // crowd
	m = pressEnter(m)                          // travel, empty
	m = pressEnter(m)                          // companions, empty
	m = pressEnter(typeText(m, "5"))           // mood before
	m = pressEnter(typeText(m, "8"))           // mood after
	m = pressEnter(typeText(m, "snow"))        // weather
	m = pressEnter(m)                          // notes, empty

	w := m.(*Model)
	require.True(t, w.confirm, "should reach the confirm screen")
	assert.Contains(t, w.View(), "Kusatsu Oyu")

	m = pressEnter(m)
	w = m.(*Model)
	assert.True(t, w.Accepted)
	assert.False(t, w.Aborted)

	v, name := w.Result()
	assert.Equal(t, "Kusatsu Oyu", name)
	assert.Equal(t, 45, v.DurationMin)
	assert.Equal(t, 8.5, v.Rating)
	assert.Equal(t, "600", v.Cost.String())
	require.NotNil(t, v.BathTempC)
	assert.Equal(t, 42.0, *v.BathTempC)
	assert.Equal(t, 3, v.CrowdLevel)
	assert.Equal(t, 5, v.MoodBefore)
	assert.Equal(t, 8, v.MoodAfter)
	assert.Equal(t, "snow", v.Weather)
	assert.False(t, v.VisitedAt.IsZero())
}

func TestWizardValidation(t *testing.T) {
	var m tea.Model = New(nil)

	// Empty onsen name is rejected and the form stays on step 0.
	m = pressEnter(m)
	w := m.(*Model)
	assert.Equal(t, 0, w.step)
	assert.NotEmpty(t, w.errMsg)
	assert.Contains(t, w.View(), w.errMsg)

	m = pressEnter(typeText(m, "Somewhere"))
	m = pressEnter(m) // date default

	// Bad duration is rejected.
	m = pressEnter(typeText(m, "zero"))
	w = m.(*Model)
	assert.Equal(t, 2, w.step)
	assert.NotEmpty(t, w.errMsg)
}

func TestWizardEscAborts(t *testing.T) {
	var m tea.Model = New(nil)
	m = typeText(m, "Some")
	m, _ = m.Update(tea.KeyMsg{Type: tea.KeyEsc})

	w := m.(*Model)
	assert.True(t, w.Aborted)
	assert.False(t, w.Accepted)
}

func TestWizardConfirmDecline(t *testing.T) {
	var m tea.Model = New(nil)
	m = pressEnter(typeText(m, "Somewhere"))
	m = pressEnter(m)                 // date
	m = pressEnter(typeText(m, "30")) // duration
	m = pressEnter(typeText(m, "7"))  // rating
	for i := 0; i < 9; i++ {          // remaining optional fields
		m = pressEnter(m)
	}

	w := m.(*Model)
	require.True(t, w.confirm)

	m = typeText(m, "n")
	w = m.(*Model)
	assert.True(t, w.Aborted)
}
