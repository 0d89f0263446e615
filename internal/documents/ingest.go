package documents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"genai-demos/internal/llm"
)

// pageConcurrency bounds the extraction calls in flight for one upload.
const pageConcurrency = 4

// Extractor transcribes an embedded image into markdown. *llm.Gateway
// satisfies it.
type Extractor interface {
	ExtractFromImage(ctx context.Context, imageURL string, opts llm.Options) llm.Result
}

// ExtractionError carries the gateway diagnostic of a failed extraction.
type ExtractionError struct {
	Page    int
	Message string
}

func (e *ExtractionError) Error() string {
	if e.Page > 0 {
		return fmt.Sprintf("page %d: %s", e.Page, e.Message)
	}
	return e.Message
}

// Ingested describes a document written to the library.
type Ingested struct {
	File     string `json:"file"`
	Markdown string `json:"markdown"`
}

// Ingestor turns uploads into markdown documents in a Library.
type Ingestor struct {
	library   *Library
	extractor Extractor
	log       *slog.Logger
}

func NewIngestor(library *Library, extractor Extractor, log *slog.Logger) *Ingestor {
	return &Ingestor{library: library, extractor: extractor, log: log}
}

// IngestImage extracts a single image and saves it as name.
func (i *Ingestor) IngestImage(ctx context.Context, name string, image []byte, opts llm.Options) (Ingested, error) {
	return i.IngestPages(ctx, name, [][]byte{image}, opts)
}

// IngestPages extracts pre-rasterized page images and saves the
// concatenated markdown in page order. Nothing is saved if any page fails.
func (i *Ingestor) IngestPages(ctx context.Context, name string, pages [][]byte, opts llm.Options) (Ingested, error) {
	if len(pages) == 0 {
		return Ingested{}, fmt.Errorf("%w: no pages to extract", ErrInvalidInput)
	}
	urls := make([]string, len(pages))
	for n, page := range pages {
		url, err := DataURL(page)
		if err != nil {
			return Ingested{}, fmt.Errorf("page %d: %w", n+1, err)
		}
		urls[n] = url
	}

	results := make([]string, len(pages))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(pageConcurrency)
	for n, url := range urls {
		g.Go(func() error {
			res := i.extractor.ExtractFromImage(gctx, url, opts)
			if !res.Success {
				return &ExtractionError{Page: n + 1, Message: res.Content}
			}
			results[n] = res.Content
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		i.log.Warn("extraction failed", "name", name, "pages", len(pages), "err", err)
		return Ingested{}, err
	}

	markdown := strings.Join(results, "\n\n")
	file, err := i.library.Save(name, markdown)
	if err != nil {
		return Ingested{}, err
	}
	i.log.Info("document ingested", "file", file, "pages", len(pages))
	return Ingested{File: file, Markdown: markdown}, nil
}

// IngestPDFText saves the text layer of a PDF without calling a model.
func (i *Ingestor) IngestPDFText(name string, data []byte) (Ingested, error) {
	text, err := PDFText(data)
	if err != nil {
		return Ingested{}, err
	}
	if strings.TrimSpace(text) == "" {
		return Ingested{}, fmt.Errorf("%w: pdf has no text layer", ErrUnsupportedType)
	}
	return i.IngestText(name, text)
}

// IngestText saves text as-is.
func (i *Ingestor) IngestText(name, text string) (Ingested, error) {
	if strings.TrimSpace(text) == "" {
		return Ingested{}, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	file, err := i.library.Save(name, text)
	if err != nil {
		return Ingested{}, err
	}
	i.log.Info("document saved", "file", file)
	return Ingested{File: file, Markdown: text}, nil
}
