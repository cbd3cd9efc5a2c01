package tui

import (
	"fmt"
	"math"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/ui"
)

// SearchAction is what the user chose in the search browser.
type SearchAction int

const (
	// SearchActionNone means the user quit.
	SearchActionNone SearchAction = iota
	// SearchActionInstall means the user asked to install the selected skill.
	SearchActionInstall
)

// SearchListResult is the outcome of the interaction.
type SearchListResult struct {
	Action   SearchAction
	Selected model.CatalogSkill
}

type searchListKeyMap struct {
	Up      key.Binding
	Down    key.Binding
	Open    key.Binding
	Install key.Binding
	Back    key.Binding
	Quit    key.Binding
}

func defaultSearchListKeyMap() searchListKeyMap {
	return searchListKeyMap{
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		Open: key.NewBinding(
			key.WithKeys("enter", "right"),
			key.WithHelp("enter", "details"),
		),
		Install: key.NewBinding(
			key.WithKeys("i", "I"),
			key.WithHelp("i", "install"),
		),
		Back: key.NewBinding(
			key.WithKeys("left", "esc", "backspace"),
			key.WithHelp("←/esc", "back to results"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "Q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type searchListPhase int

const (
	searchListPhaseList searchListPhase = iota
	searchListPhaseDetail
)

type searchColumnWidths struct {
	name        int
	description int
	stars       int
	rating      int
	id          int
}

func defaultSearchColumnWidths() searchColumnWidths {
	return searchColumnWidths{
		name:        25,
		description: 60,
		stars:       8,
		rating:      16,
		id:          10,
	}
}

// SearchListModel is the BubbleTea model for browsing search results. Enter
// opens a skill's details; from there "i" installs it and ← returns to the
// list at the same row.
type SearchListModel struct {
	table        table.Model
	query        string
	results      []model.CatalogSkill
	pageURL      func(id string) string
	keys         searchListKeyMap
	phase        searchListPhase
	result       SearchListResult
	width        int
	quitting     bool
	columnWidths searchColumnWidths
}

// NewSearchListModel builds the model. pageURL maps a catalog id to the
// skill's web page and may be nil.
func NewSearchListModel(query string, results []model.CatalogSkill, pageURL func(id string) string) SearchListModel {
	m := SearchListModel{
		query:        query,
		results:      results,
		pageURL:      pageURL,
		keys:         defaultSearchListKeyMap(),
		columnWidths: defaultSearchColumnWidths(),
	}
	m.table = table.New(
		table.WithColumns(m.columns()),
		table.WithRows(m.rows()),
		table.WithFocused(true),
		table.WithHeight(min(max(len(results), 1), 15)),
	)
	m.table.SetStyles(tableStyles())
	return m
}

func (m SearchListModel) columns() []table.Column {
	w := m.columnWidths
	return []table.Column{
		{Title: "Name", Width: w.name},
		{Title: "Description", Width: w.description},
		{Title: "Stars", Width: w.stars},
		{Title: "Rating", Width: w.rating},
		{Title: "ID", Width: w.id},
	}
}

func (m SearchListModel) rows() []table.Row {
	w := m.columnWidths
	rows := make([]table.Row, len(m.results))
	for i, s := range m.results {
		stars := "-"
		if s.GitHubStars > 0 {
			stars = fmt.Sprintf("%d", s.GitHubStars)
		}
		rows[i] = table.Row{
			ui.Truncate(s.Name, w.name),
			ui.Truncate(s.Description, w.description),
			stars,
			ratingCell(s.AverageRating, s.RatingCount),
			ui.Truncate(s.ID, 8),
		}
	}
	return rows
}

// ratingCell is ui.Rating without color, which the table cannot measure.
func ratingCell(avg float64, count int) string {
	if count <= 0 {
		return "-"
	}
	filled := int(math.Round(math.Max(0, math.Min(avg, 5))))
	return strings.Repeat("★", filled) + strings.Repeat("☆", 5-filled) + fmt.Sprintf(" %.1f", avg)
}

// Init implements tea.Model.
func (m SearchListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m SearchListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(min(max(msg.Height-10, 5), max(len(m.results), 1)))
		m.applyColumnWidths(msg.Width)
		return m, nil

	case tea.KeyMsg:
		if m.phase == searchListPhaseDetail {
			return m.updateDetail(msg)
		}

		switch {
		case key.Matches(msg, m.keys.Quit), msg.String() == "esc":
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Up):
			m.move(-1)
			return m, nil

		case key.Matches(msg, m.keys.Down):
			m.move(1)
			return m, nil

		case key.Matches(msg, m.keys.Open):
			if _, ok := m.selected(); ok {
				m.phase = searchListPhaseDetail
			}
			return m, nil
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m SearchListModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Install):
		selected, ok := m.selected()
		if !ok {
			return m, nil
		}
		m.result = SearchListResult{Action: SearchActionInstall, Selected: selected}
		m.quitting = true
		return m, tea.Quit

	case key.Matches(msg, m.keys.Back):
		m.phase = searchListPhaseList

	case key.Matches(msg, m.keys.Quit):
		m.quitting = true
		return m, tea.Quit
	}
	return m, nil
}

// move shifts the cursor by delta, wrapping at both ends.
func (m *SearchListModel) move(delta int) {
	n := len(m.results)
	if n == 0 {
		return
	}
	m.table.SetCursor(((m.table.Cursor()+delta)%n + n) % n)
}

func (m SearchListModel) selected() (model.CatalogSkill, bool) {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.results) {
		return m.results[cursor], true
	}
	return model.CatalogSkill{}, false
}

// View implements tea.Model.
func (m SearchListModel) View() string {
	if m.quitting {
		return ""
	}
	if m.phase == searchListPhaseDetail {
		if s, ok := m.selected(); ok {
			return m.renderDetail(s)
		}
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render(fmt.Sprintf("Search results for %q", m.query)))
	b.WriteString("\n\n")
	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(Styles.Status.Render(fmt.Sprintf("%d %s", len(m.results), ui.Plural(len(m.results), "result"))))
	b.WriteString("\n")

	if s, ok := m.selected(); ok && s.Description != "" {
		width := max(m.width-2, 40)
		b.WriteString(Styles.Detail.Render(formatDetail("", s.Description, width)))
		b.WriteString("\n")
	}

	b.WriteString(Styles.Help.Render(strings.Join([]string{
		"↑/↓ navigate",
		"enter details",
		"q quit",
	}, " • ")))
	return b.String()
}

func (m SearchListModel) renderDetail(s model.CatalogSkill) string {
	width := max(m.width-2, 40)

	var b strings.Builder
	b.WriteString(Styles.Title.Render(s.Name))
	b.WriteString("\n\n")

	var fields []string
	field := func(label, value string) {
		if value != "" {
			fields = append(fields, formatDetail(fmt.Sprintf("%-11s", label), value, width))
		}
	}
	field("ID:", s.ID)
	field("Version:", s.Version)
	field("Rating:", fmt.Sprintf("%s (%d %s)", ratingCell(s.AverageRating, s.RatingCount), s.RatingCount, ui.Plural(s.RatingCount, "vote")))
	field("Comments:", fmt.Sprintf("%d", s.CommentCount))
	field("Tutorials:", fmt.Sprintf("%d", s.TutorialCount))
	if s.GitHubStars > 0 {
		field("Stars:", fmt.Sprintf("%d", s.GitHubStars))
	}
	if s.FileSizeMB > 0 {
		field("Size:", ui.FileSize(s.FileSizeMB))
	}
	if tags := s.TagNames(); len(tags) > 0 {
		field("Tags:", "#"+strings.Join(tags, ", #"))
	}
	field("Source:", s.SourceURL)
	b.WriteString(Styles.Detail.Render(strings.Join(fields, "\n")))
	b.WriteString("\n")

	if s.Description != "" {
		b.WriteString("\n")
		b.WriteString(Styles.Detail.Render(wrapText(s.Description, width)))
		b.WriteString("\n")
	}

	if tree := ui.Tree(s.DirectoryStructure); tree != "" {
		b.WriteString("\n")
		b.WriteString(Styles.Filter.Render("Structure:"))
		b.WriteString("\n")
		b.WriteString(tree)
	}

	b.WriteString("\n")
	for _, line := range installHints(s) {
		b.WriteString(Styles.Help.Render(line))
		b.WriteString("\n")
	}
	if m.pageURL != nil && s.ID != "" {
		b.WriteString(Styles.Help.Render("Details: " + m.pageURL(s.ID)))
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(Styles.Help.Render(strings.Join([]string{
		"i install",
		"←/esc back to results",
		"q quit",
	}, " • ")))
	return b.String()
}

// installHints are the commands that install s.
func installHints(s model.CatalogSkill) []string {
	if s.ID == "" {
		return []string{"Install: skill install " + s.Name}
	}
	return []string{
		"Install: skill install " + s.ID,
		"     or: skill install " + s.Name,
	}
}

func (m *SearchListModel) applyColumnWidths(totalWidth int) {
	w := defaultSearchColumnWidths()
	if totalWidth > 0 {
		const separatorWidth = 10
		fixed := w.name + w.stars + w.rating + w.id + separatorWidth
		w.description = max(totalWidth-fixed, 20)
	}
	m.columnWidths = w
	m.table.SetColumns(m.columns())
	m.table.SetRows(m.rows())
}

// Result returns the outcome of the interaction.
func (m SearchListModel) Result() SearchListResult {
	return m.result
}

// RunSearchList shows results and returns what the user picked.
func RunSearchList(query string, results []model.CatalogSkill, pageURL func(id string) string) (SearchListResult, error) {
	if len(results) == 0 {
		return SearchListResult{}, nil
	}

	final, err := Run(NewSearchListModel(query, results, pageURL))
	if err != nil {
		return SearchListResult{}, err
	}
	if m, ok := final.(SearchListModel); ok {
		return m.Result(), nil
	}
	return SearchListResult{}, nil
}
