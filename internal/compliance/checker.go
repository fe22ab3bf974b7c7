// Package compliance runs the compliance check of a pointer: its documents are
// transcribed, matched against the reference index for the pointer's year and
// language, and judged by a language model.
package compliance

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/tmc/langchaingo/prompts"
	"go.uber.org/zap"

	"compliance/internal/domain"
	"compliance/internal/extract"
	"compliance/internal/index"
	"compliance/internal/metrics"
	"compliance/internal/retrieval"
	"compliance/internal/store"
)

var (
	ErrNoDocuments  = errors.New("no documents found for this compliance pointer")
	ErrEmptyVerdict = errors.New("judge returned an empty response")
	ErrNoEvidence   = errors.New("no readable text in the supporting documents and no requirements to search with")
)

const noSupportingPoints = "No supporting points provided."

type TextExtractor interface {
	Extract(ctx context.Context, docs []*domain.SupportingDocument) (*extract.Extraction, error)
}

type IndexOpener interface {
	Open(ctx context.Context, key domain.IndexKey) (*index.Index, error)
}

type Retriever interface {
	Retrieve(ctx context.Context, idx *index.Index, query string) ([]domain.SearchResult, error)
}

// Judge answers an evaluation prompt.
type Judge interface {
	Evaluate(ctx context.Context, prompt string) (string, error)
}

type Options struct {
	MinWords            int
	MinAlphaRatio       float64
	SummaryMaxSentences int
}

// Report is the outcome of one compliance check.
type Report struct {
	PointerID  string                `json:"pointer_id"`
	ResultID   string                `json:"result_id"`
	Status     domain.Status         `json:"compliance_status"`
	Reasons    string                `json:"reasons"`
	Retrieved  int                   `json:"retrieved"`
	Chunks     []domain.SearchResult `json:"chunks"`
	Extraction *extract.Extraction   `json:"extraction"`
	Summary    string                `json:"summary"`
	Elapsed    time.Duration         `json:"elapsed"`
}

type Checker struct {
	store      store.Store
	extractor  TextExtractor
	indexes    IndexOpener
	retriever  Retriever
	judge      Judge
	summarizer domain.Summarizer
	template   prompts.PromptTemplate
	opts       Options
	logger     *zap.Logger
	now        func() time.Time
}

func NewChecker(st store.Store, extractor TextExtractor, indexes IndexOpener, retriever Retriever, judge Judge, summarizer domain.Summarizer, opts Options, logger *zap.Logger) *Checker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{
		store:      st,
		extractor:  extractor,
		indexes:    indexes,
		retriever:  retriever,
		judge:      judge,
		summarizer: summarizer,
		template:   evaluationTemplate(),
		opts:       opts,
		logger:     logger,
		now:        time.Now,
	}
}

// Check evaluates the pointer with id, stores the result and updates the
// pointer's status.
func (c *Checker) Check(ctx context.Context, pointerID string) (*Report, error) {
	start := c.now()
	log := c.logger.With(zap.String("pointer", pointerID))

	pointer, err := c.store.GetPointer(ctx, pointerID)
	if err != nil {
		return nil, c.fail("load", errors.Wrap(err, "load pointer"))
	}
	docs, err := c.store.ListDocuments(ctx, pointerID)
	if err != nil {
		return nil, c.fail("load", errors.Wrap(err, "load documents"))
	}
	if len(docs) == 0 {
		return nil, c.fail("load", ErrNoDocuments)
	}
	log.Info("compliance check started", zap.Int("documents", len(docs)), zap.Stringer("index", pointer.IndexKey()))

	extraction, err := c.extractor.Extract(ctx, docs)
	if err != nil {
		return nil, c.fail("extract", err)
	}

	query := extraction.Text
	if strings.TrimSpace(query) == "" {
		query = strings.TrimSpace(pointer.ComplianceRequirements + "\n" + pointer.SupportingDocumentPoints)
		if query == "" {
			return nil, c.fail("extract", ErrNoEvidence)
		}
		log.Warn("no text extracted from supporting documents, searching with the requirements",
			zap.Int("failures", len(extraction.Failures)))
	}

	idx, err := c.indexes.Open(ctx, pointer.IndexKey())
	if err != nil {
		return nil, c.fail("index", errors.Wrapf(err, "vector store for %s", pointer.IndexKey()))
	}
	retrieved, err := c.retriever.Retrieve(ctx, idx, query)
	if err != nil {
		return nil, c.fail("retrieve", err)
	}
	relevant := retrieval.FilterRelevant(retrieved, c.opts.MinWords, c.opts.MinAlphaRatio)
	metrics.RetrievedChunks.WithLabelValues("kept").Add(float64(len(relevant)))
	metrics.RetrievedChunks.WithLabelValues("dropped").Add(float64(len(retrieved) - len(relevant)))
	log.Debug("retrieved reference chunks", zap.Int("retrieved", len(retrieved)), zap.Int("kept", len(relevant)))

	prompt, err := c.Prompt(pointer, relevant)
	if err != nil {
		return nil, c.fail("prompt", err)
	}
	response, err := c.judge.Evaluate(ctx, prompt)
	if err != nil {
		return nil, c.fail("judge", err)
	}
	status, reasons := ParseVerdict(response)
	if status == "" {
		return nil, c.fail("judge", ErrEmptyVerdict)
	}

	resultID, err := c.store.CreateResult(ctx, pointerID, status, reasons)
	if err != nil {
		return nil, c.fail("persist", errors.Wrap(err, "save compliance result"))
	}
	if _, err := c.store.UpdatePointer(ctx, &store.UpdatePointer{ID: pointerID, ComplianceStatus: &status}); err != nil {
		return nil, c.fail("persist", errors.Wrap(err, "update pointer status"))
	}

	summary := ""
	if c.summarizer != nil && strings.TrimSpace(extraction.Text) != "" {
		if summary, err = c.summarizer.Summarize(extraction.Text, c.opts.SummaryMaxSentences); err != nil {
			log.Warn("evidence summary failed", zap.Error(err))
		}
	}

	elapsed := c.now().Sub(start)
	metrics.ChecksTotal.WithLabelValues(string(status)).Inc()
	metrics.CheckDuration.Observe(elapsed.Seconds())
	log.Info("compliance check completed", zap.String("status", string(status)), zap.Duration("elapsed", elapsed))

	return &Report{
		PointerID:  pointerID,
		ResultID:   resultID,
		Status:     status,
		Reasons:    reasons,
		Retrieved:  len(retrieved),
		Chunks:     relevant,
		Extraction: extraction,
		Summary:    summary,
		Elapsed:    elapsed,
	}, nil
}

// Prompt renders the evaluation prompt for pointer and the relevant chunks.
func (c *Checker) Prompt(pointer *domain.Pointer, chunks []domain.SearchResult) (string, error) {
	points := pointer.SupportingDocumentPoints
	if strings.TrimSpace(points) == "" {
		points = noSupportingPoints
	}
	out, err := c.template.Format(map[string]any{
		"compliance_requirements":    pointer.ComplianceRequirements,
		"supporting_document_points": points,
		"formatted_chunks":           retrieval.FormatContext(chunks),
	})
	if err != nil {
		return "", errors.Wrap(err, "render evaluation prompt")
	}
	return out, nil
}

func (c *Checker) fail(stage string, err error) error {
	metrics.CheckErrors.WithLabelValues(stage).Inc()
	return err
}

// ParseVerdict splits a judge response into the status on its first line and
// the reasons on the remaining lines.
func ParseVerdict(response string) (domain.Status, string) {
	response = strings.TrimSpace(response)
	first, rest, _ := strings.Cut(response, "\n")
	raw := first
	if i := strings.LastIndex(first, ":"); i >= 0 {
		raw = first[i+1:]
	}
	raw = strings.Trim(strings.TrimSpace(raw), "*[]_ ")
	return domain.CanonicalStatus(raw), strings.TrimSpace(rest)
}
