package main

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/philtim/figured/app"
	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
	"github.com/philtim/figured/store"
)

var winter = time.Date(2025, time.January, 15, 12, 0, 0, 0, time.UTC)

func newTestModel(t *testing.T) model {
	t.Helper()
	now := func() time.Time { return winter }
	svc := app.New(app.Options{
		Store:  store.NewFileStore(filepath.Join(t.TempDir(), "state.yaml")),
		Logger: slog.New(slog.NewJSONHandler(io.Discard, nil)),
		Now:    now,
	})
	_, err := svc.Load(context.Background())
	require.NoError(t, err)

	m := newModel(context.Background(), svc, time.Second, nil)
	m.now = now
	return m
}

func update(t *testing.T, m model, msgs ...tea.Msg) model {
	t.Helper()
	for _, msg := range msgs {
		next, _ := m.Update(msg)
		m = next.(model)
	}
	return m
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestNewModel_opensHomePicker(t *testing.T) {
	m := newTestModel(t)

	assert.Equal(t, viewHome, m.state)
	assert.NotEmpty(t, m.homeResults)
}

func TestModel_setHome(t *testing.T) {
	m := newTestModel(t)

	m = update(t, m, key("Tokyo"), key("enter"))

	assert.Equal(t, viewMain, m.state)
	require.Len(t, m.rows, 1)
	assert.True(t, m.rows[0].Card.IsHome)
	assert.Equal(t, "Home timezone set to Tokyo.", m.notice.Message)
	assert.True(t, m.svc.HomeSet())
}

func TestModel_addCity(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, key("esc"))
	require.Equal(t, viewMain, m.state)

	m = update(t, m, key("a"))
	require.Equal(t, viewAdd, m.state)
	assert.Empty(t, m.searchInput.Value(), "the key opening the view is not typed")

	m = update(t, m, key("Toronto"))
	require.NotEmpty(t, m.searchResults)
	assert.Equal(t, "Toronto", m.searchResults[0].City)

	m = update(t, m, key("enter"))

	assert.Equal(t, viewMain, m.state)
	require.Len(t, m.rows, 1)
	assert.Equal(t, "Toronto", m.rows[0].Card.Title())
	assert.Equal(t, app.LevelSuccess, m.notice.Level)
}

func TestModel_removeCard(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, key("esc"), key("a"), key("Tokyo"), key("enter"))
	require.Len(t, m.rows, 1)

	m = update(t, m, key("r"), key("enter"))
	require.Equal(t, viewConfirm, m.state)
	assert.Equal(t, "Remove 'Tokyo'? (y/n)", m.confirmMsg)

	m = update(t, m, key("y"))

	assert.Equal(t, viewMain, m.state)
	assert.Empty(t, m.rows)
	assert.Equal(t, "Removed Tokyo.", m.notice.Message)
}

func TestModel_removeCancelled(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, key("esc"), key("a"), key("Tokyo"), key("enter"))

	m = update(t, m, key("r"), key("enter"), key("n"))

	assert.Equal(t, viewMain, m.state)
	assert.Len(t, m.rows, 1)
}

func TestModel_removeHomeRejected(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, key("Tokyo"), key("enter"))

	m = update(t, m, key("r"), key("enter"))

	assert.Equal(t, viewMain, m.state)
	assert.Len(t, m.rows, 1)
	assert.Equal(t, app.LevelError, m.notice.Level)
	assert.Contains(t, m.notice.Message, "Cannot remove your home timezone")
}

func TestModel_tickIsReadOnly(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, key("esc"), key("a"), key("New York"), key("enter"))
	before := m.svc.Cards()

	summer := time.Date(2025, time.July, 15, 12, 0, 0, 0, time.UTC)
	next, cmd := m.Update(tickMsg(summer))
	m = next.(model)

	assert.NotNil(t, cmd)
	require.Len(t, m.rows, 1)
	assert.Equal(t, "EDT", m.rows[0].Display.Abbrev)
	assert.Equal(t, before, m.svc.Cards())
}

func TestModel_noticeExpires(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, key("Tokyo"), key("enter"))
	require.False(t, m.notice.IsZero())

	m = update(t, m, tickMsg(winter.Add(time.Second)))
	assert.False(t, m.notice.IsZero())

	m = update(t, m, tickMsg(winter.Add(noticeTTL)))
	assert.True(t, m.notice.IsZero())
}

func TestModel_geonamesDone(t *testing.T) {
	m := newTestModel(t)
	m.geonamesLoading = true

	m = update(t, m, geonamesDoneMsg{err: io.ErrUnexpectedEOF})

	assert.False(t, m.geonamesLoading)
	assert.Equal(t, app.LevelWarning, m.notice.Level)
}

func TestModel_ctrlCQuits(t *testing.T) {
	m := newTestModel(t)

	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.NotNil(t, cmd)
	assert.True(t, next.(model).quitting)
	assert.Equal(t, "Goodbye!\n", next.(model).View())
}

func TestModel_viewRendersCards(t *testing.T) {
	m := newTestModel(t)
	m = update(t, m, tea.WindowSizeMsg{Width: 160, Height: 40}, key("Tokyo"), key("enter"))

	view := m.View()

	assert.Contains(t, view, "★ TOKYO")
	assert.Contains(t, view, "9:00")
	assert.Contains(t, view, "UTC+09:00")
	assert.Contains(t, view, "a: Add | r: Remove | h: Home | q: Quit")
}

func TestFormatRelative(t *testing.T) {
	tests := []struct {
		minutes int
		want    string
	}{
		{0, "same time"},
		{180, "+3h"},
		{-300, "-5h"},
		{330, "+5:30"},
		{-570, "-9:30"},
		{345, "+5:45"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, formatRelative(tt.minutes))
		})
	}
}

func TestCalculateColumns(t *testing.T) {
	short := []cards.Row{{Card: cards.Card{Locations: []cards.Member{{City: "Oslo"}}}}}
	long := []cards.Row{{Card: cards.Card{Locations: []cards.Member{
		{City: "Bogota"}, {City: "Lima"}, {City: "New York"}, {City: "Toronto"}, {City: "Panama"},
	}}}}

	assert.Equal(t, 4, calculateColumns(short, 140))
	assert.Equal(t, 2, calculateColumns(short, 80))
	assert.Equal(t, 1, calculateColumns(short, 40))
	assert.Equal(t, 1, calculateColumns(long, 80))
}

func TestCardHeading(t *testing.T) {
	card := cards.Card{
		Key:            clock.GroupKey{OffsetMinutes: 60},
		Locations:      []cards.Member{{City: "Berlin"}, {City: "Paris"}},
		IsHome:         true,
		IsSystemMarker: true,
	}

	assert.Equal(t, "★ BERLIN · PARIS ⌂", cardHeading(card))
	assert.True(t, strings.HasPrefix(cardHeading(cards.Card{Locations: []cards.Member{{City: "Lima"}}}), "LIMA"))
}
