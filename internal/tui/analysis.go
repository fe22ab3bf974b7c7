package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"

	"compliance/internal/compliance"
	"compliance/internal/domain"
	"compliance/internal/pointer"
)

type checkDoneMsg struct {
	report *compliance.Report
	err    error
}

// analysisModel runs a compliance check for one pointer and shows the verdict.
type analysisModel struct {
	pointer   *domain.Pointer
	documents []*domain.SupportingDocument
	spinner   spinner.Model
	viewport  viewport.Model
	renderer  *glamour.TermRenderer
	running   bool
	report    *compliance.Report
	err       error
}

func newAnalysisModel(p *domain.Pointer, docs []*domain.SupportingDocument, width, height int) analysisModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = highlightStyle
	a := analysisModel{pointer: p, documents: docs, spinner: sp, viewport: viewport.New(0, 0)}
	a.resize(width, height)
	return a
}

func (a *analysisModel) resize(width, height int) {
	a.viewport.Width = max(20, width)
	a.viewport.Height = max(3, height-3)
	wrap := max(40, width-4)
	a.renderer, _ = glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(wrap),
	)
	a.viewport.SetContent(a.content())
}

func (a analysisModel) start(ctx context.Context, backend Backend) (analysisModel, tea.Cmd) {
	if a.running {
		return a, nil
	}
	a.running = true
	a.err = nil
	a.viewport.SetContent(a.content())
	id := a.pointer.ID
	return a, tea.Batch(a.spinner.Tick, func() tea.Msg {
		report, err := backend.Check(ctx, id)
		return checkDoneMsg{report: report, err: err}
	})
}

func (a analysisModel) update(msg tea.Msg) (analysisModel, tea.Cmd) {
	switch msg := msg.(type) {
	case checkDoneMsg:
		a.running = false
		a.report, a.err = msg.report, msg.err
		if msg.report != nil {
			a.pointer.ComplianceStatus = msg.report.Status
		}
		a.viewport.SetContent(a.content())
		return a, nil
	case spinner.TickMsg:
		if !a.running {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd
	}
	var cmd tea.Cmd
	a.viewport, cmd = a.viewport.Update(msg)
	return a, cmd
}

func (a analysisModel) view() string {
	header := titleStyle.Render("Compliance Analysis") + "  " + statusBadge(a.pointer.ComplianceStatus)
	footer := mutedStyle.Render("enter: run check • esc: back")
	if a.running {
		footer = a.spinner.View() + " Running compliance analysis..."
	}
	return header + "\n" + a.viewport.View() + "\n" + footer
}

func (a analysisModel) content() string {
	md := a.markdown()
	if a.renderer == nil {
		return md
	}
	out, err := a.renderer.Render(md)
	if err != nil {
		return md
	}
	return out
}

func (a analysisModel) markdown() string {
	var b strings.Builder
	p := a.pointer
	fmt.Fprintf(&b, "# %s\n\n", p.Name)
	fmt.Fprintf(&b, "**Year:** %d  \n**Language:** %s  \n**Status:** %s\n\n", p.Year, p.Language, p.ComplianceStatus)
	writeSection(&b, "Objective", p.Objective)
	writeSection(&b, "Compliance Requirements", p.ComplianceRequirements)
	writeSection(&b, "Supporting Document Points", p.SupportingDocumentPoints)
	if len(a.documents) > 0 {
		b.WriteString("## Documents\n\n")
		for _, d := range a.documents {
			fmt.Fprintf(&b, "- %s\n", d.Name)
		}
		b.WriteString("\n")
	}

	switch {
	case a.err != nil:
		fmt.Fprintf(&b, "## Error\n\n%s\n", a.err)
	case a.report != nil:
		r := a.report
		fmt.Fprintf(&b, "## Compliance Status: %s\n\n", r.Status)
		if r.Reasons != "" {
			fmt.Fprintf(&b, "### Reasons\n\n%s\n\n", r.Reasons)
		}
		if r.Extraction != nil && len(r.Extraction.Failures) > 0 {
			b.WriteString("### Unreadable Documents\n\n")
			for _, f := range r.Extraction.Failures {
				if f.Page == 0 {
					fmt.Fprintf(&b, "- %s: %s\n", f.Document, f.Err)
					continue
				}
				fmt.Fprintf(&b, "- %s page %d: %s\n", f.Document, f.Page, f.Err)
			}
			b.WriteString("\n")
		}
		if r.Summary != "" {
			fmt.Fprintf(&b, "### Evidence Summary\n\n%s\n\n", r.Summary)
		}
		fmt.Fprintf(&b, "_Analysis completed in %.2f seconds (%d of %d reference chunks used)._\n",
			r.Elapsed.Seconds(), len(r.Chunks), r.Retrieved)
	}
	return b.String()
}

func writeSection(b *strings.Builder, title, text string) {
	lines := pointer.FormatLines(text)
	if len(lines) == 0 {
		return
	}
	fmt.Fprintf(b, "## %s\n\n", title)
	for i, line := range lines {
		fmt.Fprintf(b, "%d. %s\n", i+1, line)
	}
	b.WriteString("\n")
}
