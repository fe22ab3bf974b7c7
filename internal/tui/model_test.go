package tui

import (
	"context"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"compliance/internal/compliance"
	"compliance/internal/domain"
	"compliance/internal/pointer"
)

type fakeBackend struct {
	pointers []*domain.Pointer
	docs     map[string][]*domain.SupportingDocument
	deleted  []string
	saved    []*pointer.Draft
	saveErr  error
	checked  []string
	searched []string
	keys     []domain.IndexKey
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		pointers: []*domain.Pointer{
			{ID: "p1", Name: "Data Retention", Objective: "Keep records", Year: 2024, Language: domain.LanguageEnglish, ComplianceStatus: domain.StatusNotChecked},
			{ID: "p2", Name: "Access Control", Year: 2024, Language: domain.LanguageArabic, ComplianceStatus: domain.StatusNotCompliant},
		},
		docs: map[string][]*domain.SupportingDocument{
			"p1": {{ID: "d1", PointerID: "p1", Name: "policy.pdf"}},
		},
		keys: []domain.IndexKey{{Year: 2023, Language: domain.LanguageEnglish}, {Year: 2024, Language: domain.LanguageEnglish}},
	}
}

func (f *fakeBackend) Years() []int        { return []int{2023, 2024} }
func (f *fakeBackend) Languages() []string { return []string{"English", "Arabic"} }

func (f *fakeBackend) ListPointers(_ context.Context, year int) ([]*domain.Pointer, error) {
	var out []*domain.Pointer
	for _, p := range f.pointers {
		if p.Year == year {
			out = append(out, p)
		}
	}
	return out, nil
}

func (f *fakeBackend) Documents(_ context.Context, id string) ([]*domain.SupportingDocument, error) {
	return f.docs[id], nil
}

func (f *fakeBackend) SavePointer(_ context.Context, d *pointer.Draft, _ []pointer.Upload) (*domain.Pointer, error) {
	if f.saveErr != nil {
		return nil, f.saveErr
	}
	f.saved = append(f.saved, d)
	return &domain.Pointer{ID: "new", Name: d.Name, Year: d.Year}, nil
}

func (f *fakeBackend) DeletePointer(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	kept := f.pointers[:0]
	for _, p := range f.pointers {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	f.pointers = kept
	return nil
}

func (f *fakeBackend) DeleteDocument(_ context.Context, id string) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) Check(_ context.Context, id string) (*compliance.Report, error) {
	f.checked = append(f.checked, id)
	if id == "p2" {
		return nil, errors.New("vector store missing")
	}
	return &compliance.Report{PointerID: id, Status: domain.StatusPartiallyCompliant, Reasons: "- Review missing", Elapsed: 3 * time.Second}, nil
}

func (f *fakeBackend) IndexKeys() ([]domain.IndexKey, error) { return f.keys, nil }

func (f *fakeBackend) Search(_ context.Context, _ domain.IndexKey, q string) ([]domain.SearchResult, error) {
	f.searched = append(f.searched, q)
	return []domain.SearchResult{{Chunk: domain.Chunk{Text: "Records are kept. Logs are reviewed."}, Score: 0.2}}, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// send applies msg and feeds plain command results back into the model.
func send(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, cmd := m.Update(msg)
	m = next.(Model)
	if cmd == nil {
		return m
	}
	switch out := cmd().(type) {
	case pointersLoadedMsg, savedMsg, deletedMsg, checkDoneMsg, searchDoneMsg, keysLoadedMsg:
		return send(t, m, out)
	case tea.BatchMsg:
		for _, c := range out {
			if c == nil {
				continue
			}
			switch inner := c().(type) {
			case pointersLoadedMsg, checkDoneMsg, searchDoneMsg, keysLoadedMsg:
				m = send(t, m, inner)
			}
		}
	}
	return m
}

// press applies msg without running the returned command.
func press(m Model, msg tea.Msg) Model {
	next, _ := m.Update(msg)
	return next.(Model)
}

func listModel(t *testing.T, backend *fakeBackend) Model {
	t.Helper()
	m := New(context.Background(), backend)
	m = send(t, m, tea.WindowSizeMsg{Width: 100, Height: 40})
	m = send(t, m, key("enter"))
	require.Equal(t, pageYear, m.page)
	m = send(t, m, key("down"))
	m = send(t, m, key("enter"))
	require.Equal(t, pageList, m.page)
	return m
}

func TestNavigateToPointerList(t *testing.T) {
	backend := newFakeBackend()
	m := listModel(t, backend)
	assert.Equal(t, 2024, m.year)
	require.Len(t, m.pointers, 2)
	assert.Len(t, m.documents["p1"], 1)

	view := m.View()
	assert.Contains(t, view, "Saved Pointers (2024)")
	assert.Contains(t, view, "Data Retention")
	assert.Contains(t, view, "policy.pdf")
	assert.Contains(t, view, "Not Compliant")

	m = send(t, m, key("esc"))
	assert.Equal(t, pageYear, m.page)
}

func TestDeletePointerNeedsConfirmation(t *testing.T) {
	backend := newFakeBackend()
	m := listModel(t, backend)

	m = send(t, m, key("d"))
	assert.True(t, m.confirmDelete)
	m = send(t, m, key("n"))
	assert.Empty(t, backend.deleted)
	assert.Equal(t, "Delete cancelled.", m.status)

	m = send(t, m, key("d"))
	m = send(t, m, key("y"))
	assert.Equal(t, []string{"p1"}, backend.deleted)
	assert.Len(t, m.pointers, 1)
	assert.Contains(t, m.status, "deleted")
}

func TestAnalysisRunsCheck(t *testing.T) {
	backend := newFakeBackend()
	m := listModel(t, backend)

	m = send(t, m, key("c"))
	require.Equal(t, pageAnalysis, m.page)
	m = send(t, m, key("enter"))
	assert.Equal(t, []string{"p1"}, backend.checked)
	assert.False(t, m.analysis.running)
	require.NotNil(t, m.analysis.report)
	assert.Equal(t, domain.StatusPartiallyCompliant, m.analysis.pointer.ComplianceStatus)
	assert.Contains(t, m.analysis.markdown(), "## Compliance Status: Partially Compliant")
	assert.Contains(t, m.analysis.markdown(), "_Analysis completed in 3.00 seconds")

	m = send(t, m, key("esc"))
	assert.Equal(t, pageList, m.page)
}

func TestAnalysisShowsError(t *testing.T) {
	backend := newFakeBackend()
	m := listModel(t, backend)
	m = send(t, m, key("down"))
	m = send(t, m, key("c"))
	m = send(t, m, key("enter"))
	assert.Error(t, m.analysis.err)
	assert.Contains(t, m.analysis.markdown(), "vector store missing")
}

func TestOpenForms(t *testing.T) {
	backend := newFakeBackend()
	m := listModel(t, backend)

	m = press(m, key("a"))
	require.Equal(t, pageForm, m.page)
	assert.False(t, m.form.editing())
	assert.Equal(t, 2024, m.form.draft.Year)
	assert.Equal(t, "English", m.form.draft.Language)
	assert.Contains(t, m.View(), "Create New Pointer")

	m = press(m, key("esc"))
	assert.Equal(t, pageList, m.page)
	assert.Nil(t, m.form)

	m = press(m, key("e"))
	require.Equal(t, pageForm, m.page)
	assert.True(t, m.form.editing())
	assert.Equal(t, "Data Retention", m.form.draft.Name)
	assert.Len(t, m.form.existing, 1)
	assert.Contains(t, m.View(), "Edit Pointer")
}

func TestFormSave(t *testing.T) {
	backend := newFakeBackend()
	f := newPointerForm(backend.pointers[0], backend.docs["p1"], 2024, backend.Years(), backend.Languages())
	f.remove = []string{"d1"}
	msg := f.save(context.Background(), backend)().(savedMsg)
	require.NoError(t, msg.err)
	assert.Equal(t, []string{"d1"}, backend.deleted)
	require.Len(t, backend.saved, 1)
	assert.Equal(t, "p1", backend.saved[0].ID)

	f.paths = "/does/not/exist.pdf"
	msg = f.save(context.Background(), backend)().(savedMsg)
	assert.Error(t, msg.err)
}

func TestFormSaveFailureKeepsDocuments(t *testing.T) {
	backend := newFakeBackend()
	backend.saveErr = pointer.ErrInvalid
	f := newPointerForm(backend.pointers[0], backend.docs["p1"], 2024, backend.Years(), backend.Languages())
	f.remove = []string{"d1"}

	msg := f.save(context.Background(), backend)().(savedMsg)
	assert.ErrorIs(t, msg.err, pointer.ErrInvalid)
	assert.Empty(t, backend.deleted)
}

func TestSearchPage(t *testing.T) {
	backend := newFakeBackend()
	m := listModel(t, backend)

	m = send(t, m, key("s"))
	require.Equal(t, pageSearch, m.page)
	require.Len(t, m.search.keys, 2)
	assert.Equal(t, 1, m.search.keyIdx)

	m.search.input.SetValue("records")
	m = send(t, m, key("enter"))
	assert.Equal(t, []string{"records"}, backend.searched)
	require.Len(t, m.search.results, 1)
	assert.Contains(t, m.search.renderCurrentResult(), "Result 1/1")

	m = send(t, m, key("tab"))
	assert.Equal(t, 0, m.search.keyIdx)
	assert.Nil(t, m.search.results)

	m = send(t, m, key("esc"))
	assert.Equal(t, pageList, m.page)
}

func TestSplitPaths(t *testing.T) {
	assert.Equal(t, []string{"a.pdf", "b dir/c.png"}, splitPaths(" a.pdf \n\n b dir/c.png\n"))
	assert.Nil(t, splitPaths("  "))
}

func TestHighlightBestSentence(t *testing.T) {
	text := "Access is logged. Records are retained for five years. Backups run nightly."
	out := highlightBestSentence(text, "retained records")
	assert.Contains(t, out, "Records are retained for five years.")
	assert.True(t, strings.HasPrefix(out, "Access is logged."))

	assert.Equal(t, "", highlightBestSentence("", "q"))
	assert.Equal(t, "One. Two.", highlightBestSentence("One. Two.", ""))
	assert.Equal(t, []string{"Article 3.2 applies.", "Then more"}, splitSentences("Article 3.2 applies. Then more"))
}

func TestTokenOverlapScore(t *testing.T) {
	q := toTokenSet("Records retained")
	assert.Equal(t, 2, tokenOverlapScore(q, "records are RETAINED, records"))
	assert.Equal(t, 0, tokenOverlapScore(q, "nothing here"))
	assert.Len(t, toTokenSet("السجلات تحفظ السجلات"), 2)
}
