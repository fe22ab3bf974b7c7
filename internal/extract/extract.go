package extract

import (
	"bytes"
	"context"
	"image"
	"path/filepath"
	"strings"
	"sync"

	"github.com/disintegration/imaging"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"compliance/internal/domain"
	"compliance/internal/metrics"
)

var ErrUnsupportedFormat = errors.New("unsupported file format")

// Rasterizer renders every page of a PDF.
type Rasterizer interface {
	Rasterize(data []byte, dpi float64) ([]image.Image, error)
}

// PageReader transcribes the text on one PNG page image. Pages are numbered from 1.
type PageReader interface {
	ReadPage(ctx context.Context, png []byte, page int) (string, error)
}

// Failure records a document or page that could not be converted.
// Page is zero for document-level failures.
type Failure struct {
	Document string `json:"document"`
	Page     int    `json:"page,omitempty"`
	Err      string `json:"error"`
}

// DocumentText is the text extracted from one supporting document.
type DocumentText struct {
	Name  string `json:"name"`
	Pages int    `json:"pages"`
	Text  string `json:"text"`
}

type Extraction struct {
	Text      string         `json:"text"`
	Pages     int            `json:"pages"`
	Documents []DocumentText `json:"documents"`
	Failures  []Failure      `json:"failures,omitempty"`
}

type Options struct {
	DPI               float64
	MaxImageSide      int
	Concurrency       int
	RequestsPerSecond float64
}

type Extractor struct {
	rasterizer Rasterizer
	reader     PageReader
	opts       Options
	limiter    *rate.Limiter
	logger     *zap.Logger
}

func NewExtractor(rasterizer Rasterizer, reader PageReader, opts Options, logger *zap.Logger) *Extractor {
	if opts.DPI <= 0 {
		opts.DPI = 300
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 1
	}
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{
		rasterizer: rasterizer,
		reader:     reader,
		opts:       opts,
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

type page struct {
	doc  int
	num  int
	png  []byte
	text string
	ok   bool
}

// Extract converts documents to text. Documents and pages that fail are
// reported in Failures and skipped; only context cancellation aborts.
func (e *Extractor) Extract(ctx context.Context, docs []*domain.SupportingDocument) (*Extraction, error) {
	out := &Extraction{}
	var (
		pages  []*page
		usable = make([]bool, len(docs))
	)
	for i, d := range docs {
		images, err := e.pageImages(d)
		if err != nil {
			e.logger.Warn("cannot process document", zap.String("document", d.Name), zap.Error(err))
			out.Failures = append(out.Failures, Failure{Document: d.Name, Err: err.Error()})
			continue
		}
		usable[i] = true
		for n, png := range images {
			pages = append(pages, &page{doc: i, num: n + 1, png: png})
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Concurrency)
	for _, p := range pages {
		g.Go(func() error {
			if err := e.limiter.Wait(gctx); err != nil {
				return err
			}
			text, err := e.reader.ReadPage(gctx, p.png, p.num)
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				metrics.OCRPages.WithLabelValues("failed").Inc()
				name := docs[p.doc].Name
				e.logger.Warn("page extraction failed", zap.String("document", name), zap.Int("page", p.num), zap.Error(err))
				mu.Lock()
				out.Failures = append(out.Failures, Failure{Document: name, Page: p.num, Err: err.Error()})
				mu.Unlock()
				return nil
			}
			metrics.OCRPages.WithLabelValues("ok").Inc()
			p.text = strings.TrimSpace(text)
			p.ok = true
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, errors.Wrap(err, "extract text")
	}

	texts := make([][]string, len(docs))
	for _, p := range pages {
		if p.ok {
			texts[p.doc] = append(texts[p.doc], p.text)
		}
	}
	var combined strings.Builder
	for i, d := range docs {
		if !usable[i] {
			continue
		}
		text := strings.Join(texts[i], "\n")
		combined.WriteString("\n")
		combined.WriteString(text)
		out.Documents = append(out.Documents, DocumentText{Name: d.Name, Pages: len(texts[i]), Text: text})
		out.Pages += len(texts[i])
	}
	out.Text = combined.String()
	return out, nil
}

func (e *Extractor) pageImages(d *domain.SupportingDocument) ([][]byte, error) {
	var images []image.Image
	switch strings.ToLower(filepath.Ext(d.Name)) {
	case ".pdf":
		if e.rasterizer == nil {
			return nil, errors.Wrap(ErrUnsupportedFormat, "pdf rendering unavailable")
		}
		pages, err := e.rasterizer.Rasterize(d.Data, e.opts.DPI)
		if err != nil {
			return nil, errors.Wrap(err, "render pdf")
		}
		images = pages
	case ".png", ".jpg", ".jpeg":
		img, err := imaging.Decode(bytes.NewReader(d.Data), imaging.AutoOrientation(true))
		if err != nil {
			return nil, errors.Wrap(err, "decode image")
		}
		images = []image.Image{img}
	default:
		return nil, errors.Wrapf(ErrUnsupportedFormat, "%s", d.Name)
	}
	out := make([][]byte, len(images))
	for i, img := range images {
		png, err := EncodePNG(img, e.opts.MaxImageSide)
		if err != nil {
			return nil, err
		}
		out[i] = png
	}
	return out, nil
}

// EncodePNG downscales img so neither side exceeds maxSide (when positive)
// and encodes it as PNG.
func EncodePNG(img image.Image, maxSide int) ([]byte, error) {
	b := img.Bounds()
	if maxSide > 0 && (b.Dx() > maxSide || b.Dy() > maxSide) {
		img = imaging.Fit(img, maxSide, maxSide, imaging.Lanczos)
	}
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, errors.Wrap(err, "encode png")
	}
	return buf.Bytes(), nil
}
