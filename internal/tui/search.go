package tui

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"compliance/internal/domain"
)

type searchDoneMsg struct {
	query   string
	results []domain.SearchResult
	err     error
}

// searchModel queries a reference index and pages through the matches.
type searchModel struct {
	input     textinput.Model
	viewport  viewport.Model
	keys      []domain.IndexKey
	keyIdx    int
	results   []domain.SearchResult
	cursor    int
	lastQuery string
	status    string
}

func newSearchModel() searchModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Placeholder = "Type query and press Enter"
	ti.CharLimit = 0
	return searchModel{input: ti, viewport: viewport.New(0, 0), status: "Type to search."}
}

func (s searchModel) key() (domain.IndexKey, bool) {
	if len(s.keys) == 0 {
		return domain.IndexKey{}, false
	}
	return s.keys[s.keyIdx], true
}

func (s *searchModel) resize(width, height int) {
	_, rh := resultBoxStyle.GetFrameSize()
	_, qh := queryBoxStyle.GetFrameSize()
	// header, index line, status and a spacer
	reserved := 4 + qh
	s.viewport.Width = max(20, width)
	s.viewport.Height = max(3, height-reserved-rh)
	s.viewport.SetContent(s.renderCurrentResult())
}

func (s searchModel) update(ctx context.Context, backend Backend, msg tea.Msg) (searchModel, tea.Cmd) {
	switch msg := msg.(type) {
	case searchDoneMsg:
		if msg.err != nil {
			s.status = "Error: " + msg.err.Error()
			s.results = nil
		} else {
			s.status = fmt.Sprintf("Results for %q", msg.query)
			s.results = msg.results
			s.cursor = 0
			s.lastQuery = msg.query
		}
		s.viewport.SetContent(s.renderCurrentResult())
		return s, nil
	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			q := strings.TrimSpace(s.input.Value())
			key, ok := s.key()
			if q == "" {
				return s, nil
			}
			if !ok {
				s.status = "No reference index has been built yet."
				return s, nil
			}
			s.status = "Searching..."
			return s, func() tea.Msg {
				res, err := backend.Search(ctx, key, q)
				return searchDoneMsg{query: q, results: res, err: err}
			}
		case "tab":
			if len(s.keys) > 0 {
				s.keyIdx = (s.keyIdx + 1) % len(s.keys)
				s.results = nil
				s.viewport.SetContent(s.renderCurrentResult())
			}
			return s, nil
		case "down":
			if len(s.results) > 0 {
				s.cursor = (s.cursor + 1) % len(s.results)
				s.viewport.SetContent(s.renderCurrentResult())
				return s, nil
			}
		case "up":
			if len(s.results) > 0 {
				s.cursor = (s.cursor - 1 + len(s.results)) % len(s.results)
				s.viewport.SetContent(s.renderCurrentResult())
				return s, nil
			}
		}
	}
	var cmd tea.Cmd
	s.input, cmd = s.input.Update(msg)
	return s, cmd
}

func (s searchModel) view() string {
	header := titleStyle.Render("Reference Search")
	index := "no index built"
	if key, ok := s.key(); ok {
		index = fmt.Sprintf("index %s (tab to switch)", key)
	}
	results := resultBoxStyle.Render(s.viewport.View())
	input := queryBoxStyle.Render(s.input.View())
	return header + "\n" + mutedStyle.Render(index) + "\n" + results + "\n" + input + "\n" + statusStyle.Render(s.status)
}

func (s searchModel) renderCurrentResult() string {
	if len(s.results) == 0 {
		return "No results yet."
	}
	r := s.results[s.cursor]
	title := fmt.Sprintf("Result %d/%d  score=%.3f", s.cursor+1, len(s.results), r.Score)
	if r.Chunk.Source != "" {
		title += "  " + mutedStyle.Render(r.Chunk.Source)
	}
	body := highlightBestSentence(r.Chunk.Text, s.lastQuery)
	return title + "\n\n" + body
}

var (
	unicodeWordRe = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
	sentenceEndRe = regexp.MustCompile(`[.!?؟]+(?:\s+|$)`)
)

func splitSentences(text string) []string {
	var out []string
	last := 0
	for _, loc := range sentenceEndRe.FindAllStringIndex(text, -1) {
		if s := strings.TrimSpace(text[last:loc[1]]); s != "" {
			out = append(out, s)
		}
		last = loc[1]
	}
	if tail := strings.TrimSpace(text[last:]); tail != "" {
		out = append(out, tail)
	}
	return out
}

func highlightBestSentence(text, query string) string {
	if strings.TrimSpace(text) == "" {
		return text
	}
	sentences := splitSentences(text)
	qTokens := toTokenSet(query)
	if len(qTokens) == 0 {
		return strings.Join(sentences, " ")
	}
	bestIdx := 0
	bestScore := -1
	for i, s := range sentences {
		score := tokenOverlapScore(qTokens, s)
		if score > bestScore {
			bestScore = score
			bestIdx = i
		}
	}
	for i := range sentences {
		sent := strings.TrimSpace(sentences[i])
		if i == bestIdx {
			sentences[i] = highlightStyle.Render(sent)
		} else {
			sentences[i] = sent
		}
	}
	return strings.Join(sentences, " ")
}

func toTokenSet(s string) map[string]struct{} {
	tokens := unicodeWordRe.FindAllString(strings.ToLower(s), -1)
	m := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		m[t] = struct{}{}
	}
	return m
}

func tokenOverlapScore(queryTokens map[string]struct{}, sentence string) int {
	score := 0
	tokens := unicodeWordRe.FindAllString(strings.ToLower(sentence), -1)
	seen := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		if _, ok := queryTokens[t]; ok {
			score++
		}
	}
	return score
}
