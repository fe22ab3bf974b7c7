// Package tui is the terminal front end: pointers are defined per compliance
// year, checked against the reference index and the index can be searched.
package tui

import (
	"context"
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"

	"compliance/internal/domain"
	"compliance/internal/pointer"
)

type page int

const (
	pageLanding page = iota
	pageYear
	pageList
	pageForm
	pageAnalysis
	pageSearch
)

type pointersLoadedMsg struct {
	pointers  []*domain.Pointer
	documents map[string][]*domain.SupportingDocument
	err       error
}

type deletedMsg struct {
	name string
	err  error
}

type keysLoadedMsg struct {
	keys []domain.IndexKey
	err  error
}

// Model is the Bubble Tea model for the TUI application.
type Model struct {
	ctx     context.Context
	backend Backend
	page    page
	width   int
	height  int
	status  string
	err     error

	yearCursor int
	year       int

	pointers      []*domain.Pointer
	documents     map[string][]*domain.SupportingDocument
	cursor        int
	confirmDelete bool

	form     *pointerForm
	analysis analysisModel
	search   searchModel
}

// New creates a new TUI model instance.
func New(ctx context.Context, backend Backend) Model {
	return Model{
		ctx:       ctx,
		backend:   backend,
		documents: map[string][]*domain.SupportingDocument{},
		search:    newSearchModel(),
	}
}

func (m Model) Init() tea.Cmd { return nil }

// Update handles key and window events and updates the view state.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.search.resize(msg.Width, msg.Height)
		if m.page == pageAnalysis {
			m.analysis.resize(msg.Width, msg.Height)
		}
		return m, nil
	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC || msg.Type == tea.KeyCtrlD {
			return m, tea.Quit
		}
	case pointersLoadedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.pointers, m.documents = msg.pointers, msg.documents
			if m.cursor >= len(m.pointers) {
				m.cursor = max(0, len(m.pointers)-1)
			}
		}
		return m, nil
	case savedMsg:
		m.form = nil
		m.page = pageList
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("Pointer %q saved.", msg.pointer.Name)
		}
		return m, m.loadPointers()
	case deletedMsg:
		m.err = msg.err
		if msg.err == nil {
			m.status = fmt.Sprintf("Pointer %q deleted.", msg.name)
		}
		return m, m.loadPointers()
	case keysLoadedMsg:
		if msg.err != nil {
			m.search.status = "Error: " + msg.err.Error()
			return m, nil
		}
		m.search.keys = msg.keys
		m.search.keyIdx = 0
		for i, k := range msg.keys {
			if k.Year == m.year {
				m.search.keyIdx = i
				break
			}
		}
		return m, nil
	}

	switch m.page {
	case pageLanding:
		return m.updateLanding(msg)
	case pageYear:
		return m.updateYear(msg)
	case pageList:
		return m.updateList(msg)
	case pageForm:
		return m.updateForm(msg)
	case pageAnalysis:
		return m.updateAnalysis(msg)
	case pageSearch:
		return m.updateSearch(msg)
	}
	return m, nil
}

func (m Model) updateLanding(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "enter":
		m.page = pageYear
	case "s":
		return m.openSearch()
	case "q", "esc":
		return m, tea.Quit
	}
	return m, nil
}

func (m Model) updateYear(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	years := m.backend.Years()
	switch key.String() {
	case "up", "k":
		if m.yearCursor > 0 {
			m.yearCursor--
		}
	case "down", "j":
		if m.yearCursor < len(years)-1 {
			m.yearCursor++
		}
	case "enter":
		if len(years) == 0 {
			return m, nil
		}
		m.year = years[m.yearCursor]
		m.page = pageList
		m.cursor = 0
		m.status = ""
		return m, m.loadPointers()
	case "esc":
		m.page = pageLanding
	}
	return m, nil
}

func (m Model) updateList(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	if m.confirmDelete {
		m.confirmDelete = false
		p := m.selected()
		if key.String() != "y" || p == nil {
			m.status = "Delete cancelled."
			return m, nil
		}
		return m, m.deletePointer(p)
	}
	switch key.String() {
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.pointers)-1 {
			m.cursor++
		}
	case "a":
		return m.openForm(nil)
	case "e":
		if p := m.selected(); p != nil {
			return m.openForm(p)
		}
	case "c", "enter":
		if p := m.selected(); p != nil {
			m.analysis = newAnalysisModel(p, m.documents[p.ID], m.width, m.height)
			m.page = pageAnalysis
		}
	case "d":
		if p := m.selected(); p != nil {
			m.confirmDelete = true
			m.status = fmt.Sprintf("Delete %q and its documents? (y/n)", p.Name)
		}
	case "s":
		return m.openSearch()
	case "esc":
		m.page = pageYear
		m.status = ""
	}
	return m, nil
}

func (m Model) updateForm(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.form = nil
		m.page = pageList
		m.err = nil
		return m, nil
	}
	model, cmd := m.form.form.Update(msg)
	if f, ok := model.(*huh.Form); ok {
		m.form.form = f
	}
	switch m.form.form.State {
	case huh.StateCompleted:
		if m.form.submitted {
			return m, nil
		}
		m.form.submitted = true
		m.status = "Saving..."
		return m, m.form.save(m.ctx, m.backend)
	case huh.StateAborted:
		m.form = nil
		m.page = pageList
		return m, nil
	}
	return m, cmd
}

func (m Model) updateAnalysis(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "enter", "r":
			var cmd tea.Cmd
			m.analysis, cmd = m.analysis.start(m.ctx, m.backend)
			return m, cmd
		case "esc":
			if m.analysis.running {
				return m, nil
			}
			m.page = pageList
			return m, m.loadPointers()
		}
	}
	var cmd tea.Cmd
	m.analysis, cmd = m.analysis.update(msg)
	return m, cmd
}

func (m Model) updateSearch(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok && key.String() == "esc" {
		m.search.input.Blur()
		if m.year != 0 {
			m.page = pageList
		} else {
			m.page = pageLanding
		}
		return m, nil
	}
	var cmd tea.Cmd
	m.search, cmd = m.search.update(m.ctx, m.backend, msg)
	return m, cmd
}

func (m Model) openForm(p *domain.Pointer) (tea.Model, tea.Cmd) {
	var docs []*domain.SupportingDocument
	if p != nil {
		docs = m.documents[p.ID]
	}
	m.form = newPointerForm(p, docs, m.year, m.backend.Years(), m.backend.Languages())
	m.page = pageForm
	m.err = nil
	return m, m.form.form.Init()
}

func (m Model) openSearch() (tea.Model, tea.Cmd) {
	m.page = pageSearch
	cmd := m.search.input.Focus()
	backend := m.backend
	return m, tea.Batch(cmd, func() tea.Msg {
		keys, err := backend.IndexKeys()
		return keysLoadedMsg{keys: keys, err: err}
	})
}

func (m Model) selected() *domain.Pointer {
	if m.cursor < 0 || m.cursor >= len(m.pointers) {
		return nil
	}
	return m.pointers[m.cursor]
}

func (m Model) loadPointers() tea.Cmd {
	ctx, backend, year := m.ctx, m.backend, m.year
	return func() tea.Msg {
		list, err := backend.ListPointers(ctx, year)
		if err != nil {
			return pointersLoadedMsg{err: err}
		}
		docs := make(map[string][]*domain.SupportingDocument, len(list))
		for _, p := range list {
			if docs[p.ID], err = backend.Documents(ctx, p.ID); err != nil {
				return pointersLoadedMsg{err: err}
			}
		}
		return pointersLoadedMsg{pointers: list, documents: docs}
	}
}

func (m Model) deletePointer(p *domain.Pointer) tea.Cmd {
	ctx, backend := m.ctx, m.backend
	id, name := p.ID, p.Name
	return func() tea.Msg {
		return deletedMsg{name: name, err: backend.DeletePointer(ctx, id)}
	}
}

// View renders the current page.
func (m Model) View() string {
	var body string
	switch m.page {
	case pageLanding:
		body = m.viewLanding()
	case pageYear:
		body = m.viewYear()
	case pageList:
		body = m.viewList()
	case pageForm:
		body = titleStyle.Render(m.form.title()) + "\n\n" + m.form.form.View()
	case pageAnalysis:
		body = m.analysis.view()
	case pageSearch:
		return m.search.view()
	}
	if m.err != nil {
		body += "\n" + errorStyle.Render("Error: "+m.err.Error())
	} else if m.status != "" {
		body += "\n" + statusStyle.Render(m.status)
	}
	return body
}

func (m Model) viewLanding() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Compliance Validation Tool") + "\n\n")
	b.WriteString("Define compliance pointers, attach supporting documents and check them\n")
	b.WriteString("against the reference regulations for the selected year.\n\n")
	b.WriteString(selectedStyle.Render("▸ Start compliance process") + "\n\n")
	b.WriteString(mutedStyle.Render("enter: start • s: search reference index • q: quit"))
	return b.String()
}

func (m Model) viewYear() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Select Compliance Year") + "\n\n")
	for i, y := range m.backend.Years() {
		line := fmt.Sprintf("  %d", y)
		if i == m.yearCursor {
			line = selectedStyle.Render(fmt.Sprintf("▸ %d", y))
		}
		b.WriteString(line + "\n")
	}
	b.WriteString("\n" + mutedStyle.Render("↑/↓: choose • enter: continue • esc: back"))
	return b.String()
}

func (m Model) viewList() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Saved Pointers (%d)", m.year)) + "\n\n")
	if len(m.pointers) == 0 {
		b.WriteString(mutedStyle.Render("No pointers saved for this year yet. Press a to add one.") + "\n")
	}
	for i, p := range m.pointers {
		style := cardStyle
		if i == m.cursor {
			style = activeCard
		}
		b.WriteString(style.Render(m.renderPointer(p)) + "\n")
	}
	b.WriteString(mutedStyle.Render("a: add • e: edit • c: check • d: delete • s: search • esc: back"))
	return b.String()
}

func (m Model) renderPointer(p *domain.Pointer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s  %s\n", selectedStyle.Render(p.Name), statusBadge(p.ComplianceStatus))
	fmt.Fprintf(&b, "Year: %d  Language: %s\n", p.Year, p.Language)
	writeLines(&b, "Objective", p.Objective)
	writeLines(&b, "Compliance Requirements", p.ComplianceRequirements)
	writeLines(&b, "Supporting Document Points", p.SupportingDocumentPoints)
	docs := m.documents[p.ID]
	names := make([]string, 0, len(docs))
	for _, d := range docs {
		names = append(names, d.Name)
	}
	if len(names) > 0 {
		fmt.Fprintf(&b, "Documents: %s", strings.Join(names, ", "))
	} else {
		b.WriteString(mutedStyle.Render("No documents"))
	}
	return b.String()
}

func writeLines(b *strings.Builder, title string, text string) {
	lines := pointer.FormatLines(text)
	if len(lines) == 0 {
		return
	}
	b.WriteString(mutedStyle.Render(title+":") + "\n")
	for i, line := range lines {
		fmt.Fprintf(b, "  %d. %s\n", i+1, line)
	}
}
