package console

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wfunc/door-lock/internal/hmi"
)

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeysReachQueue(t *testing.T) {
	keys := hmi.NewKeyQueue(8)
	var m tea.Model = NewModel("door", keys)

	for _, msg := range []tea.KeyMsg{runes("4"), runes("x"), runes("+"), {Type: tea.KeyEnter}} {
		var cmd tea.Cmd
		m, cmd = m.Update(msg)
		assert.Nil(t, cmd)
	}

	ctx := context.Background()
	for _, want := range []hmi.Key{'4', hmi.KeyOpen, hmi.KeyEnter} {
		got, err := keys.ReadKey(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestQuitKeys(t *testing.T) {
	m := NewModel("door", hmi.NewKeyQueue(1))
	for _, msg := range []tea.KeyMsg{runes("q"), {Type: tea.KeyCtrlC}, {Type: tea.KeyEsc}} {
		_, cmd := m.Update(msg)
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
	}
}

func TestViewShowsScreen(t *testing.T) {
	var m tea.Model = NewModel("Door Lock", hmi.NewKeyQueue(1))
	m, _ = m.Update(screenMsg{top: "    Welcome", bottom: "this line is far too long"})
	m, _ = m.Update(statusMsg{text: "door open"})

	view := m.View()
	assert.Contains(t, view, "Door Lock")
	assert.Contains(t, view, "Welcome")
	assert.Contains(t, view, "this line is far")
	assert.NotContains(t, view, "too long")
	assert.Contains(t, view, "door open")
}

func TestFit(t *testing.T) {
	assert.Equal(t, strings.Repeat(" ", LCDWidth), fit(""))
	assert.Equal(t, "ab"+strings.Repeat(" ", LCDWidth-2), fit("ab"))
	assert.Equal(t, "0123456789abcdef", fit("0123456789abcdefXYZ"))
}
