package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/klauern/skillmaster/internal/model"
	"github.com/klauern/skillmaster/internal/ui"
	"github.com/klauern/skillmaster/internal/util"
)

// InstalledAction is what the user chose in the installed list.
type InstalledAction int

const (
	// InstalledActionNone means the user quit.
	InstalledActionNone InstalledAction = iota
	// InstalledActionView means the user wants the selected skill's details.
	InstalledActionView
	// InstalledActionUninstall means the user asked to remove the selected skill.
	InstalledActionUninstall
)

// InstalledItem is one row of the installed list.
type InstalledItem struct {
	Record model.SkillRecord
	// Missing marks a record whose directory no longer exists.
	Missing bool
}

// InstalledListResult is the outcome of the interaction.
type InstalledListResult struct {
	Action   InstalledAction
	Selected InstalledItem
}

type installedListKeyMap struct {
	View      key.Binding
	Uninstall key.Binding
	Filter    key.Binding
	ClearFlt  key.Binding
	NextScope key.Binding
	PrevScope key.Binding
	Help      key.Binding
	Quit      key.Binding
}

func defaultInstalledListKeyMap() installedListKeyMap {
	return installedListKeyMap{
		View: key.NewBinding(
			key.WithKeys("enter", "v"),
			key.WithHelp("enter/v", "view details"),
		),
		Uninstall: key.NewBinding(
			key.WithKeys("x", "delete"),
			key.WithHelp("x", "uninstall"),
		),
		Filter: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "filter"),
		),
		ClearFlt: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "clear filter"),
		),
		NextScope: key.NewBinding(
			key.WithKeys("tab", "l"),
			key.WithHelp("tab/l", "next scope"),
		),
		PrevScope: key.NewBinding(
			key.WithKeys("shift+tab", "h"),
			key.WithHelp("S-tab/h", "prev scope"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
	}
}

type installedColumnWidths struct {
	name    int
	scope   int
	version int
	status  int
	path    int
}

func defaultInstalledColumnWidths() installedColumnWidths {
	return installedColumnWidths{
		name:    24,
		scope:   8,
		version: 10,
		status:  8,
		path:    50,
	}
}

// InstalledListModel is the BubbleTea model for browsing installed skills.
type InstalledListModel struct {
	table        table.Model
	items        []InstalledItem
	filtered     []InstalledItem
	keys         installedListKeyMap
	result       InstalledListResult
	filter       string
	filtering    bool
	scopes       []model.Scope
	scopeIndex   int // -1 shows every scope
	showHelp     bool
	width        int
	quitting     bool
	columnWidths installedColumnWidths
}

// NewInstalledListModel builds the model. items keep the order given.
func NewInstalledListModel(items []InstalledItem) InstalledListModel {
	present := make(map[model.Scope]bool)
	var scopes []model.Scope
	for _, it := range items {
		s := it.Record.Scope
		if s.IsValid() && !present[s] {
			present[s] = true
			scopes = append(scopes, s)
		}
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Order() < scopes[j].Order() })

	m := InstalledListModel{
		items:        items,
		filtered:     items,
		keys:         defaultInstalledListKeyMap(),
		scopes:       scopes,
		scopeIndex:   -1,
		columnWidths: defaultInstalledColumnWidths(),
	}
	m.table = table.New(
		table.WithColumns(m.columns()),
		table.WithRows(m.rows(items)),
		table.WithFocused(true),
		table.WithHeight(15),
	)
	m.table.SetStyles(tableStyles())
	return m
}

func (m InstalledListModel) columns() []table.Column {
	w := m.columnWidths
	return []table.Column{
		{Title: "Name", Width: w.name},
		{Title: "Scope", Width: w.scope},
		{Title: "Version", Width: w.version},
		{Title: "Status", Width: w.status},
		{Title: "Path", Width: w.path},
	}
}

func (m InstalledListModel) rows(items []InstalledItem) []table.Row {
	w := m.columnWidths
	rows := make([]table.Row, len(items))
	for i, it := range items {
		status := "ok"
		if it.Missing {
			status = "missing"
		}
		version := it.Record.SourceVersion
		if version == "" {
			version = "-"
		}
		rows[i] = table.Row{
			ui.Truncate(it.Record.Name, w.name),
			ui.Truncate(it.Record.Scope.String(), w.scope),
			ui.Truncate(version, w.version),
			status,
			ui.Truncate(util.ShortenHome(it.Record.InstalledPath), w.path),
		}
	}
	return rows
}

// Init implements tea.Model.
func (m InstalledListModel) Init() tea.Cmd {
	return nil
}

// Update implements tea.Model.
func (m InstalledListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(max(msg.Height-12, 5))
		m.applyColumnWidths(msg.Width)

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg), nil
		}

		switch {
		case key.Matches(msg, m.keys.Quit):
			m.quitting = true
			return m, tea.Quit

		case key.Matches(msg, m.keys.Help):
			m.showHelp = !m.showHelp
			return m, nil

		case key.Matches(msg, m.keys.Filter):
			m.filtering = true
			return m, nil

		case key.Matches(msg, m.keys.ClearFlt):
			m.filter = ""
			m.applyFilter()
			return m, nil

		case key.Matches(msg, m.keys.NextScope):
			if len(m.scopes) > 0 {
				m.scopeIndex++
				if m.scopeIndex >= len(m.scopes) {
					m.scopeIndex = -1
				}
				m.applyFilter()
			}
			return m, nil

		case key.Matches(msg, m.keys.PrevScope):
			if len(m.scopes) > 0 {
				m.scopeIndex--
				if m.scopeIndex < -1 {
					m.scopeIndex = len(m.scopes) - 1
				}
				m.applyFilter()
			}
			return m, nil

		case key.Matches(msg, m.keys.View):
			return m.choose(InstalledActionView)

		case key.Matches(msg, m.keys.Uninstall):
			return m.choose(InstalledActionUninstall)
		}
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m InstalledListModel) updateFilter(msg tea.KeyMsg) InstalledListModel {
	switch msg.String() {
	case "enter":
		m.filtering = false
	case "esc":
		m.filter = ""
		m.filtering = false
		m.applyFilter()
	case "backspace":
		if len(m.filter) > 0 {
			m.filter = m.filter[:len(m.filter)-1]
			m.applyFilter()
		}
	default:
		if len(msg.String()) == 1 {
			m.filter += msg.String()
			m.applyFilter()
		}
	}
	return m
}

func (m InstalledListModel) choose(action InstalledAction) (tea.Model, tea.Cmd) {
	selected, ok := m.selected()
	if !ok {
		return m, nil
	}
	m.result = InstalledListResult{Action: action, Selected: selected}
	m.quitting = true
	return m, tea.Quit
}

func (m *InstalledListModel) applyFilter() {
	filtered := m.items

	if m.scopeIndex >= 0 && m.scopeIndex < len(m.scopes) {
		scope := m.scopes[m.scopeIndex]
		var byScope []InstalledItem
		for _, it := range filtered {
			if it.Record.Scope == scope {
				byScope = append(byScope, it)
			}
		}
		filtered = byScope
	}

	if m.filter != "" {
		needle := strings.ToLower(m.filter)
		var byText []InstalledItem
		for _, it := range filtered {
			if strings.Contains(strings.ToLower(it.Record.Name), needle) ||
				strings.Contains(strings.ToLower(it.Record.InstalledPath), needle) ||
				strings.Contains(strings.ToLower(it.Record.SourceVersion), needle) {
				byText = append(byText, it)
			}
		}
		filtered = byText
	}

	m.filtered = filtered
	m.table.SetRows(m.rows(filtered))
}

func (m InstalledListModel) selected() (InstalledItem, bool) {
	cursor := m.table.Cursor()
	if cursor >= 0 && cursor < len(m.filtered) {
		return m.filtered[cursor], true
	}
	return InstalledItem{}, false
}

// View implements tea.Model.
func (m InstalledListModel) View() string {
	if m.quitting {
		return ""
	}

	var b strings.Builder
	b.WriteString(Styles.Title.Render("Installed skills"))
	b.WriteString("\n\n")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	if m.filter != "" || m.filtering {
		val := Styles.FilterInput.Render(m.filter)
		if m.filtering {
			val += "█"
		}
		b.WriteString(Styles.Filter.Render("Filter: ") + val + "\n\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")
	b.WriteString(Styles.Status.Render(m.renderStatus()))
	b.WriteString("\n")

	if it, ok := m.selected(); ok {
		width := max(m.width-2, 40)
		detail := formatDetail("Path: ", it.Record.InstalledPath, width)
		if it.Missing {
			detail += "\n" + Styles.Missing.Render("Directory is missing; uninstall to drop the registry entry.")
		}
		b.WriteString(Styles.Detail.Render(detail))
		b.WriteString("\n")
	}

	if m.showHelp {
		b.WriteString("\n")
		b.WriteString(Styles.Help.Render(installedFullHelp))
	} else {
		b.WriteString(Styles.Help.Render(strings.Join([]string{
			"↑/↓ navigate",
			"tab scope",
			"enter view",
			"x uninstall",
			"/ filter",
			"? help",
			"q quit",
		}, " • ")))
	}
	return b.String()
}

const installedFullHelp = `Navigation:
  ↑/k      Move up
  ↓/j      Move down

Scopes:
  Tab/l       Next scope
  Shift-Tab/h Previous scope

Actions:
  Enter/v  View skill details
  x/Del    Uninstall skill

Text Filter:
  /        Filter by name, version, or path
  Esc      Clear filter

General:
  ?        Toggle full help
  q        Quit`

func (m InstalledListModel) renderTabs() string {
	tabs := make([]string, 0, len(m.scopes)+1)
	if m.scopeIndex == -1 {
		tabs = append(tabs, Styles.TabActive.Render("[All]"))
	} else {
		tabs = append(tabs, Styles.Tab.Render(" All "))
	}

	title := cases.Title(language.English)
	for i, s := range m.scopes {
		name := title.String(s.String())
		if i == m.scopeIndex {
			tabs = append(tabs, Styles.TabActive.Render("["+name+"]"))
		} else {
			tabs = append(tabs, Styles.Tab.Render(" "+name+" "))
		}
	}
	row := strings.Join(tabs, "")
	if m.scopeIndex >= 0 && m.scopeIndex < len(m.scopes) {
		row += "\n" + Styles.Help.Render(m.scopes[m.scopeIndex].Description())
	}
	return row
}

func (m InstalledListModel) renderStatus() string {
	counts := make(map[model.Scope]int)
	missing := 0
	for _, it := range m.items {
		counts[it.Record.Scope]++
		if it.Missing {
			missing++
		}
	}

	parts := make([]string, 0, len(m.scopes))
	for _, s := range m.scopes {
		parts = append(parts, fmt.Sprintf("%s: %d", s, counts[s]))
	}

	status := fmt.Sprintf("Showing %d of %d skills", len(m.filtered), len(m.items))
	if len(parts) > 0 {
		status += " | " + strings.Join(parts, ", ")
	}
	if missing > 0 {
		status += fmt.Sprintf(" | %d missing", missing)
	}
	return status
}

func (m *InstalledListModel) applyColumnWidths(totalWidth int) {
	w := defaultInstalledColumnWidths()
	if totalWidth > 0 {
		const separatorWidth = 10
		w.path = max(totalWidth-(w.name+w.scope+w.version+w.status+separatorWidth), 30)
	}
	m.columnWidths = w
	m.table.SetColumns(m.columns())
	m.table.SetRows(m.rows(m.filtered))
}

// Result returns the outcome of the interaction.
func (m InstalledListModel) Result() InstalledListResult {
	return m.result
}

// RunInstalledList shows items and returns what the user picked.
func RunInstalledList(items []InstalledItem) (InstalledListResult, error) {
	if len(items) == 0 {
		return InstalledListResult{}, nil
	}

	final, err := Run(NewInstalledListModel(items))
	if err != nil {
		return InstalledListResult{}, err
	}
	if m, ok := final.(InstalledListModel); ok {
		return m.Result(), nil
	}
	return InstalledListResult{}, nil
}
