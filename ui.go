package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/philtim/figured/app"
	"github.com/philtim/figured/cards"
	"github.com/philtim/figured/clock"
)

// viewState represents the current view state
type viewState int

const (
	viewMain viewState = iota
	viewAdd
	viewRemove
	viewConfirm
	viewHome
)

// noticeTTL is how long success and info notices stay in the command bar.
const noticeTTL = 4 * time.Second

// tickMsg asks for a redraw with fresh times. It never changes the cards.
type tickMsg time.Time

// spinnerTickMsg is sent to update the spinner animation
type spinnerTickMsg time.Time

// geonamesDoneMsg is sent when the GeoNames download finished
type geonamesDoneMsg struct{ err error }

// model represents the application state
type model struct {
	// Core data
	ctx          context.Context
	svc          *app.Service
	now          func() time.Time
	tickInterval time.Duration
	rows         []cards.Row

	// View state
	state    viewState
	viewport viewport.Model
	ready    bool
	width    int
	height   int
	quitting bool

	// Notice shown in the command bar
	notice      app.Notice
	noticeSince time.Time

	// Spinner state, while GeoNames downloads
	spinnerFrame    int
	geonamesLoading bool
	geonamesDone    <-chan error

	// Add mode state
	searchInput        textinput.Model
	searchResults      []cards.Location
	selectedResult     int
	justEnteredAddMode bool // Flag to prevent initial key from appearing in input

	// Remove mode state
	removeCursor int

	// Confirm mode state
	confirmMsg    string
	confirmAction func() (app.Notice, error)

	// Home picker state
	homeInput    textinput.Model
	homeResults  []cards.Location
	homeSelected int
}

func newSearchInput(placeholder string) textinput.Model {
	ti := textinput.New()
	ti.Placeholder = placeholder
	ti.CharLimit = 50
	ti.Width = 50
	return ti
}

// newModel builds the UI around a loaded service. It opens the home picker
// when no home timezone has been chosen yet.
func newModel(ctx context.Context, svc *app.Service, tickInterval time.Duration, geonamesDone <-chan error) model {
	m := model{
		ctx:             ctx,
		svc:             svc,
		now:             time.Now,
		tickInterval:    tickInterval,
		state:           viewMain,
		searchInput:     newSearchInput("Search city..."),
		homeInput:       newSearchInput("Filter cities..."),
		geonamesDone:    geonamesDone,
		geonamesLoading: geonamesDone != nil,
	}
	m.refresh()
	if !svc.HomeSet() {
		m.openHomePicker()
	}
	return m
}

// Init initializes the model
func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{tickCmd(m.tickInterval)}
	if m.geonamesLoading {
		cmds = append(cmds, spinnerTickCmd(), waitGeoNamesCmd(m.geonamesDone))
	}
	if m.state == viewHome {
		cmds = append(cmds, textinput.Blink)
	}
	return tea.Batch(cmds...)
}

// Update handles messages and updates the model
func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		cmd = m.handleKeyPress(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		if !m.ready {
			// Reserve space for command bar (1 newline + 1 bar line)
			m.viewport = viewport.New(msg.Width, msg.Height-2)
			m.viewport.YPosition = 0
			m.ready = true
		} else {
			m.viewport.Width = msg.Width
			m.viewport.Height = msg.Height - 2
		}

	case tickMsg:
		m.rows = m.svc.Rows(time.Time(msg))
		m.expireNotice(time.Time(msg))
		cmds = append(cmds, tickCmd(m.tickInterval))

	case spinnerTickMsg:
		m.spinnerFrame = (m.spinnerFrame + 1) % len(spinnerFrames)
		if m.geonamesLoading {
			cmds = append(cmds, spinnerTickCmd())
		}

	case geonamesDoneMsg:
		m.geonamesLoading = false
		if msg.err != nil {
			m.setNotice(app.Notice{Level: app.LevelWarning, Message: "Could not download GeoNames cities. Using the built-in list."})
		}
		m.refreshSearch()
	}

	// Update sub-components based on state
	switch m.state {
	case viewAdd:
		// Only update searchInput if we didn't just enter add mode
		// (prevents the 'a' key from appearing in the input field)
		if m.justEnteredAddMode {
			m.justEnteredAddMode = false
			break
		}
		if _, isKey := msg.(tea.KeyMsg); isKey {
			m.searchInput, cmd = m.searchInput.Update(msg)
			cmds = append(cmds, cmd)
			m.refreshSearch()
		}

	case viewHome:
		if _, isKey := msg.(tea.KeyMsg); isKey {
			m.homeInput, cmd = m.homeInput.Update(msg)
			cmds = append(cmds, cmd)
			m.refreshHomeChoices()
		}
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

// refresh re-derives the rows after a mutation
func (m *model) refresh() {
	m.rows = m.svc.Rows(m.now())
}

func (m *model) setNotice(n app.Notice) {
	m.notice = n
	m.noticeSince = m.now()
}

// expireNotice clears success and info notices after noticeTTL. Warnings
// and errors stay until the next key press.
func (m *model) expireNotice(at time.Time) {
	switch m.notice.Level {
	case app.LevelSuccess, app.LevelInfo:
		if at.Sub(m.noticeSince) >= noticeTTL {
			m.notice = app.Notice{}
		}
	}
}

func (m *model) refreshSearch() {
	m.searchResults = m.svc.Search(m.searchInput.Value())
	if m.selectedResult >= len(m.searchResults) {
		m.selectedResult = 0
	}
}

func (m *model) refreshHomeChoices() {
	q := strings.TrimSpace(m.homeInput.Value())
	if len(q) < 2 {
		m.homeResults = m.svc.HomeChoices()
	} else {
		m.homeResults = m.svc.Search(q)
	}
	if m.homeSelected >= len(m.homeResults) {
		m.homeSelected = 0
	}
}

func (m *model) openHomePicker() {
	m.state = viewHome
	m.homeInput.Reset()
	m.homeSelected = 0
	m.homeInput.Focus()
	m.refreshHomeChoices()
}

// handleKeyPress handles keyboard input based on current view state
func (m *model) handleKeyPress(msg tea.KeyMsg) tea.Cmd {
	if msg.String() == "ctrl+c" {
		m.quitting = true
		return tea.Quit
	}

	switch m.state {
	case viewMain:
		return m.handleMainKeys(msg)
	case viewAdd:
		return m.handleAddKeys(msg)
	case viewRemove:
		return m.handleRemoveKeys(msg)
	case viewConfirm:
		return m.handleConfirmKeys(msg)
	case viewHome:
		return m.handleHomeKeys(msg)
	}
	return nil
}

// handleMainKeys handles keys in main view
func (m *model) handleMainKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "q":
		m.quitting = true
		return tea.Quit

	case "a":
		if !m.svc.Reference().IsReady() {
			m.setNotice(app.Notice{Level: app.LevelError, Message: "Could not load city data. Some features may not work."})
			return nil
		}
		m.state = viewAdd
		m.searchInput.Reset()
		m.searchResults = []cards.Location{}
		m.selectedResult = 0
		m.justEnteredAddMode = true
		m.searchInput.Focus()
		return textinput.Blink

	case "r", "d":
		if len(m.rows) == 0 {
			return nil
		}
		m.state = viewRemove
		m.removeCursor = 0

	case "h":
		m.openHomePicker()
		return textinput.Blink

	case "esc":
		m.notice = app.Notice{}
	}

	return nil
}

// handleAddKeys handles keys in add view
func (m *model) handleAddKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.state = viewMain
		return nil

	case "up":
		if m.selectedResult > 0 {
			m.selectedResult--
		}

	case "down":
		if m.selectedResult < len(m.searchResults)-1 {
			m.selectedResult++
		}

	case "enter":
		if len(m.searchResults) > 0 && m.selectedResult < len(m.searchResults) {
			loc := m.searchResults[m.selectedResult]
			n, _ := m.svc.AddLocation(m.ctx, loc)
			m.setNotice(n)
			m.refresh()
			m.state = viewMain
		}
	}

	return nil
}

// handleRemoveKeys handles keys in remove view
func (m *model) handleRemoveKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.state = viewMain
		return nil

	case "up":
		if m.removeCursor > 0 {
			m.removeCursor--
		}

	case "down":
		if m.removeCursor < len(m.rows)-1 {
			m.removeCursor++
		}

	case "enter":
		if m.removeCursor >= len(m.rows) {
			return nil
		}
		card := m.rows[m.removeCursor].Card
		if card.IsHome {
			// Rejected without asking; the service explains why.
			n, _ := m.svc.RemoveCard(m.ctx, card.Key)
			m.setNotice(n)
			m.state = viewMain
			return nil
		}

		m.state = viewConfirm
		m.confirmMsg = fmt.Sprintf("Remove '%s'? (y/n)", card.Title())
		m.confirmAction = func() (app.Notice, error) {
			return m.svc.RemoveCard(m.ctx, card.Key)
		}
	}

	return nil
}

// handleConfirmKeys handles keys in confirm view
func (m *model) handleConfirmKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "y":
		n, _ := m.confirmAction()
		m.setNotice(n)
		m.refresh()
		m.state = viewMain
		return nil

	case "n", "esc":
		m.state = viewMain
		return nil
	}

	return nil
}

// handleHomeKeys handles keys in the home picker
func (m *model) handleHomeKeys(msg tea.KeyMsg) tea.Cmd {
	switch msg.String() {
	case "esc":
		m.state = viewMain
		return nil

	case "up":
		if m.homeSelected > 0 {
			m.homeSelected--
		}

	case "down":
		if m.homeSelected < len(m.homeResults)-1 {
			m.homeSelected++
		}

	case "enter":
		if m.homeSelected < len(m.homeResults) {
			n, _ := m.svc.SetHomeLocation(m.ctx, m.homeResults[m.homeSelected])
			m.setNotice(n)
			m.refresh()
			m.state = viewMain
		}
	}

	return nil
}

// View renders the UI
func (m model) View() string {
	if m.quitting {
		return "Goodbye!\n"
	}

	if !m.ready {
		return "Initializing..."
	}

	switch m.state {
	case viewMain:
		return m.renderMain()
	case viewAdd:
		return m.renderAdd()
	case viewRemove:
		return m.renderRemove()
	case viewConfirm:
		return m.renderConfirm()
	case viewHome:
		return m.renderHome()
	}

	return ""
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")).
			Padding(1, 0)
	hintStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
)

// renderMain renders the cards
func (m model) renderMain() string {
	content := renderCards(m.rows, m.width)
	m.viewport.SetContent(content)

	return fmt.Sprintf("%s\n%s", m.viewport.View(), m.renderCommandBar())
}

// renderPicker renders a search box with a scrolling list of cities
func renderPicker(b *strings.Builder, input textinput.Model, results []cards.Location, selected int, empty string) {
	b.WriteString(input.View())
	b.WriteString("\n\n")

	if len(results) == 0 {
		b.WriteString(hintStyle.Render(empty))
		b.WriteString("\n")
		return
	}

	maxVisible := 10
	start := 0
	if selected >= maxVisible {
		start = selected - maxVisible + 1
	}
	end := start + maxVisible
	if end > len(results) {
		end = len(results)
	}

	for i := start; i < end; i++ {
		loc := results[i]
		line := fmt.Sprintf("  %s (%s)", loc.Label(), loc.IANA)
		if i == selected {
			line = selectedStyle.Render("> " + line)
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
}

// renderAdd renders the add city view
func (m model) renderAdd() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Add City"))
	b.WriteString("\n\n")

	b.WriteString("Search city (min 2 characters):\n")
	empty := "No cities found"
	if len(strings.TrimSpace(m.searchInput.Value())) < 2 {
		empty = "Type at least 2 characters to search..."
	}
	renderPicker(&b, m.searchInput, m.searchResults, m.selectedResult, empty)

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("↑/↓: Navigate | Enter: Add | ESC: Cancel"))

	return b.String()
}

// renderHome renders the home timezone picker
func (m model) renderHome() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Set Home Timezone"))
	b.WriteString("\n\n")
	if !m.svc.HomeSet() {
		b.WriteString("Pick the city you live in. Other cards are shown relative to it.\n\n")
	}

	renderPicker(&b, m.homeInput, m.homeResults, m.homeSelected, "No cities found")

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("↑/↓: Navigate | Enter: Set home | ESC: Later"))

	return b.String()
}

// renderRemove renders the card list to remove from
func (m model) renderRemove() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Remove Timezone"))
	b.WriteString("\n\n")

	for i, row := range m.rows {
		label := row.Card.Title()
		if row.Card.IsHome {
			label += " (home)"
		}
		line := fmt.Sprintf("  %s  %s", row.Display.UTCOffset, label)

		if i == m.removeCursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}

		b.WriteString(line)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(hintStyle.Render("↑/↓: Navigate | Enter: Remove | ESC: Cancel"))

	return b.String()
}

// renderConfirm renders the confirmation dialog
func (m model) renderConfirm() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("Confirm"))
	b.WriteString("\n\n")

	b.WriteString(m.confirmMsg)
	b.WriteString("\n\n")
	b.WriteString(hintStyle.Render("y: Yes | n/ESC: No"))

	return b.String()
}

var noticeColors = map[app.Level]lipgloss.Color{
	app.LevelInfo:    lipgloss.Color("75"),
	app.LevelSuccess: lipgloss.Color("78"),
	app.LevelWarning: lipgloss.Color("214"),
	app.LevelError:   lipgloss.Color("196"),
}

// renderCommandBar renders the command bar at the bottom
func (m model) renderCommandBar() string {
	barStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Background(lipgloss.Color("235")).
		Padding(0, 1)

	commands := "a: Add | r: Remove | h: Home | q: Quit"
	leftContent := barStyle.Render(commands)

	// Right side: notice, then download and save status
	var status string
	switch {
	case !m.notice.IsZero():
		status = barStyle.Foreground(noticeColors[m.notice.Level]).Render(m.notice.Message)
	case m.geonamesLoading:
		status = barStyle.Render(fmt.Sprintf("%s Loading GeoNames...", spinnerFrames[m.spinnerFrame]))
	case m.svc.Unsaved():
		status = barStyle.Foreground(noticeColors[app.LevelWarning]).Render("Unsaved changes")
	default:
		status = barStyle.Render(fmt.Sprintf("%d/%d timezones", len(m.rows), cards.MaxCards))
	}

	leftWidth := lipgloss.Width(leftContent)
	rightWidth := lipgloss.Width(status)
	spacingWidth := m.width - leftWidth - rightWidth
	if spacingWidth < 0 {
		spacingWidth = 0
	}
	spacing := strings.Repeat(" ", spacingWidth)

	return lipgloss.NewStyle().Background(lipgloss.Color("235")).Render(leftContent + spacing + status)
}

// spinnerFrames are the characters used for the loading animation
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// tickCmd returns a command that sends a tick message every interval
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// spinnerTickCmd returns a command that sends a spinner tick message
func spinnerTickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg {
		return spinnerTickMsg(t)
	})
}

// waitGeoNamesCmd waits for the background GeoNames load to finish
func waitGeoNamesCmd(done <-chan error) tea.Cmd {
	return func() tea.Msg {
		return geonamesDoneMsg{err: <-done}
	}
}

// bucketColors tint each card by the local time of day
var bucketColors = map[clock.Bucket]lipgloss.Color{
	clock.BucketDay:     lipgloss.Color("220"),
	clock.BucketEvening: lipgloss.Color("208"),
	clock.BucketNight:   lipgloss.Color("62"),
}

// renderCards renders all cards in a grid layout
func renderCards(rows []cards.Row, width int) string {
	if len(rows) == 0 {
		helpStyle := lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Align(lipgloss.Center).
			Padding(2, 4)
		return helpStyle.Render("Press 'a' to add a new city")
	}

	cols := calculateColumns(rows, width)

	// Each card has: border (2) + padding (4) + margins (1 left + 1 right)
	cardOverhead := 8
	cardWidth := width/cols - cardOverhead
	if cardWidth < 20 {
		cardWidth = 20 // Minimum width for readability
	}

	var rendered []string
	for _, row := range rows {
		rendered = append(rendered, renderCard(row, cardWidth))
	}

	var lines []string
	for start := 0; start < len(rendered); start += cols {
		end := start + cols
		if end > len(rendered) {
			end = len(rendered)
		}
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, rendered[start:end]...))
	}

	return strings.Join(lines, "\n")
}

// cardHeading is the upper-cased city list with home and device markers
func cardHeading(card cards.Card) string {
	heading := strings.ToUpper(card.Title())
	if card.IsHome {
		heading = "★ " + heading
	}
	if card.IsSystemMarker {
		heading += " ⌂"
	}
	return heading
}

// renderCard renders a single card
func renderCard(row cards.Row, width int) string {
	accent := bucketColors[row.Display.Bucket]

	headingStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(lipgloss.Color("86")).
		Align(lipgloss.Center).
		Width(width).
		PaddingTop(1).
		PaddingBottom(1)

	timeStyle := lipgloss.NewStyle().
		Bold(true).
		Foreground(accent).
		Align(lipgloss.Center).
		Width(width).
		MarginBottom(1)

	dateStyle := lipgloss.NewStyle().
		Foreground(lipgloss.Color("241")).
		Align(lipgloss.Center).
		Width(width)

	zoneStyle := dateStyle.PaddingBottom(1)

	cardStyle := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(accent).
		Padding(0, 2).
		Margin(1, 1, 0, 1) // Top, Right, Bottom, Left margins

	d := row.Display
	timeStr := strings.TrimSpace(d.Time + " " + d.Meridiem)

	zone := d.Abbrev
	if d.DST {
		zone += " · DST"
	}
	if row.HasRelative && !row.Card.IsHome {
		zone += " · " + formatRelative(row.RelativeMinutes)
	}
	if d.Err != "" {
		zone = d.Err
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		headingStyle.Render(cardHeading(row.Card)),
		timeStyle.Render(timeStr),
		dateStyle.Render(d.Date+" - "+d.UTCOffset),
		zoneStyle.Render(zone),
	)

	return cardStyle.Render(content)
}

// formatRelative renders an offset from home such as "+5:30" or "-3h"
func formatRelative(minutes int) string {
	if minutes == 0 {
		return "same time"
	}
	sign := "+"
	if minutes < 0 {
		sign = "-"
		minutes = -minutes
	}
	if minutes%60 == 0 {
		return fmt.Sprintf("%s%dh", sign, minutes/60)
	}
	return fmt.Sprintf("%s%d:%02d", sign, minutes/60, minutes%60)
}

// calculateColumns determines the number of columns based on terminal width and heading lengths
func calculateColumns(rows []cards.Row, width int) int {
	maxHeadingLen := 0
	for _, row := range rows {
		if n := lipgloss.Width(cardHeading(row.Card)); n > maxHeadingLen {
			maxHeadingLen = n
		}
	}

	// The date line is typically ~27 chars: "Wed, Jan 15 - UTC+05:30"
	minContentWidth := maxHeadingLen
	if minContentWidth < 27 {
		minContentWidth = 27
	}

	// border (2), padding left/right (4), margins left/right (2)
	minCardWidth := minContentWidth + 8

	if width >= minCardWidth*4 {
		return 4
	}
	if width >= minCardWidth*2 {
		return 2
	}
	return 1
}
