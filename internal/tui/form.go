package tui

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/pkg/errors"

	"compliance/internal/domain"
	"compliance/internal/pointer"
)

type savedMsg struct {
	pointer *domain.Pointer
	err     error
}

// pointerForm edits a pointer draft. Field values are bound by address, so
// the struct is always held by pointer.
type pointerForm struct {
	form     *huh.Form
	draft    pointer.Draft
	paths    string
	remove   []string
	existing []*domain.SupportingDocument

	submitted bool
}

func newPointerForm(existing *domain.Pointer, docs []*domain.SupportingDocument, year int, years []int, languages []string) *pointerForm {
	f := &pointerForm{existing: docs}
	if existing != nil {
		f.draft = *pointer.DraftFrom(existing)
	} else {
		f.draft.Year = year
		if len(languages) > 0 {
			f.draft.Language = languages[0]
		}
	}

	yearOpts := make([]huh.Option[int], 0, len(years))
	for _, y := range years {
		yearOpts = append(yearOpts, huh.NewOption(strconv.Itoa(y), y))
	}

	fields := []huh.Field{
		huh.NewInput().Title("Pointer Name").Value(&f.draft.Name).Validate(func(s string) error {
			if strings.TrimSpace(s) == "" {
				return errors.New("name is required")
			}
			return nil
		}),
		huh.NewText().Title("Objective").Value(&f.draft.Objective),
		huh.NewText().Title("Compliance Requirements").Description("One requirement per line.").Value(&f.draft.ComplianceRequirements),
		huh.NewText().Title("Supporting Document Points").Description("One point per line.").Value(&f.draft.SupportingDocumentPoints),
		huh.NewSelect[string]().Title("Language").Options(huh.NewOptions(languages...)...).Value(&f.draft.Language),
		huh.NewSelect[int]().Title("Compliance Year").Options(yearOpts...).Value(&f.draft.Year),
	}
	if len(docs) > 0 {
		docOpts := make([]huh.Option[string], 0, len(docs))
		for _, d := range docs {
			docOpts = append(docOpts, huh.NewOption(d.Name, d.ID))
		}
		fields = append(fields, huh.NewMultiSelect[string]().Title("Remove Documents").Options(docOpts...).Value(&f.remove))
	}
	fields = append(fields, huh.NewText().
		Title("Upload Documents").
		Description("File paths, one per line ("+strings.Join(pointer.AllowedExtensions, ", ")+").").
		Value(&f.paths).
		Validate(func(s string) error {
			for _, p := range splitPaths(s) {
				if !pointer.AllowedUpload(p) {
					return errors.Wrap(pointer.ErrUnsupportedUpload, filepath.Base(p))
				}
			}
			return nil
		}))

	f.form = huh.NewForm(huh.NewGroup(fields...)).WithShowHelp(true)
	return f
}

func (f *pointerForm) editing() bool { return f.draft.ID != "" }

func (f *pointerForm) title() string {
	if f.editing() {
		return "Edit Pointer"
	}
	return "Create New Pointer"
}

// save reads the uploads, saves the draft and only then removes the
// documents marked for removal.
func (f *pointerForm) save(ctx context.Context, backend Backend) tea.Cmd {
	draft := f.draft
	remove := append([]string(nil), f.remove...)
	paths := splitPaths(f.paths)
	return func() tea.Msg {
		uploads, err := readUploads(paths)
		if err != nil {
			return savedMsg{err: err}
		}
		p, err := backend.SavePointer(ctx, &draft, uploads)
		if err != nil {
			return savedMsg{err: err}
		}
		for _, id := range remove {
			if err := backend.DeleteDocument(ctx, id); err != nil {
				return savedMsg{pointer: p, err: err}
			}
		}
		return savedMsg{pointer: p}
	}
}

func splitPaths(s string) []string {
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func readUploads(paths []string) ([]pointer.Upload, error) {
	uploads := make([]pointer.Upload, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, errors.Wrapf(err, "read %s", p)
		}
		uploads = append(uploads, pointer.Upload{Name: filepath.Base(p), Data: data})
	}
	return uploads, nil
}
