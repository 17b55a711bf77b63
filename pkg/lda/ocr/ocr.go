// Package ocr converts scanned PDF pages to raster images and runs text
// recognition over them with a bounded worker pool.
package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// Defaults chosen for quality and for the recognition engine's appetite:
// 300 DPI is the usual quality/speed trade-off, and recognition is heavy
// enough that a small pool saturates most machines.
const (
	DefaultDPI     = 300
	DefaultWorkers = 2
)

// PageResult is the recognition outcome for one page. Confidence is the
// arithmetic mean of fragment confidences on the engine's 0-100 scale,
// 0 when the page yielded no detections. FragmentCount is the number of
// text fragments the engine reported.
type PageResult struct {
	Text          string
	Confidence    float64
	FragmentCount int
}

// Recognizer turns one encoded page image into text. Implementations must
// be safe for concurrent use; the pool calls Recognize from several
// goroutines.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte, pageNum int) (PageResult, error)
}

// Rasterizer renders pages of an open document to encoded images. It is
// used from a single goroutine; implementations need not be concurrency
// safe.
type Rasterizer interface {
	PageCount() int
	// RenderPage renders the 1-indexed page at the given DPI as PNG bytes.
	RenderPage(page, dpi int) ([]byte, error)
	Close() error
}

// Processor runs the rasterize → recognize pipeline over a PDF.
type Processor struct {
	DPI       int
	Workers   int
	Languages []string

	// Recognizer defaults to the Tesseract engine; tests substitute fakes.
	Recognizer Recognizer
	// Open defaults to the MuPDF-backed rasterizer.
	Open func(path string) (Rasterizer, error)

	logger *slog.Logger
}

// NewProcessor returns a Processor with production defaults.
func NewProcessor(languages []string, dpi, workers int, logger *slog.Logger) *Processor {
	if dpi <= 0 {
		dpi = DefaultDPI
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		DPI:        dpi,
		Workers:    workers,
		Languages:  languages,
		Recognizer: &TesseractRecognizer{Languages: languages},
		Open:       openFitz,
		logger:     logger,
	}
}

// Process runs recognition over every page of the PDF.
func (p *Processor) Process(ctx context.Context, path string) (map[int]PageResult, error) {
	return p.ProcessRange(ctx, path, 0, 0)
}

// ProcessPage runs recognition over a single page, for diagnostics. It
// shares the batch code path.
func (p *Processor) ProcessPage(ctx context.Context, path string, page int) (PageResult, error) {
	results, err := p.ProcessRange(ctx, path, page, page)
	if err != nil {
		return PageResult{}, err
	}
	return results[page], nil
}

// ProcessRange runs recognition over pages [first, last] (1-indexed,
// inclusive). Zero or out-of-range bounds are clamped to the document.
// A page whose rendering or recognition fails degrades to empty text and
// zero confidence; it never fails the batch.
func (p *Processor) ProcessRange(ctx context.Context, path string, first, last int) (map[int]PageResult, error) {
	doc, err := p.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s for rasterization: %w", path, err)
	}
	defer doc.Close()

	count := doc.PageCount()
	if count == 0 {
		p.logger.Warn("document has no pages", "path", path)
		return map[int]PageResult{}, nil
	}
	if first < 1 {
		first = 1
	}
	if last < first || last > count {
		last = count
	}
	if first > count {
		return map[int]PageResult{}, nil
	}
	total := last - first + 1

	p.logger.Info("running OCR", "path", path, "pages", total, "dpi", p.DPI, "workers", p.Workers)

	type job struct {
		page  int
		image []byte
	}
	type outcome struct {
		page   int
		result PageResult
	}

	jobs := make(chan job, total)
	outcomes := make(chan outcome, total)

	workers := p.Workers
	if workers > total {
		workers = total
	}
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := range jobs {
				outcomes <- outcome{page: j.page, result: p.recognizePage(ctx, j.image, j.page)}
			}
		}()
	}

	// Rasterization stays on this goroutine: the document handle is not
	// shared with the workers.
	for page := first; page <= last; page++ {
		image, err := doc.RenderPage(page, p.DPI)
		if err != nil {
			p.logger.Error("page rasterization failed", "path", path, "page", page, "error", err)
			outcomes <- outcome{page: page, result: PageResult{}}
			continue
		}
		jobs <- job{page: page, image: image}
	}
	close(jobs)
	wg.Wait()

	results := make(map[int]PageResult, total)
	for i := 0; i < total; i++ {
		o := <-outcomes
		results[o.page] = o.result
	}

	p.logger.Info("OCR completed", "path", path, "pages", len(results))
	return results, nil
}

func (p *Processor) recognizePage(ctx context.Context, image []byte, page int) PageResult {
	res, err := p.Recognizer.Recognize(ctx, image, page)
	if err != nil {
		p.logger.Error("page recognition failed", "page", page, "error", err)
		return PageResult{}
	}
	return res
}

// MeanConfidence is the aggregate document confidence: the mean over pages
// that yielded detections, 0 when none did.
func MeanConfidence(results map[int]PageResult) float64 {
	var sum float64
	var n int
	for _, r := range results {
		if r.Confidence > 0 {
			sum += r.Confidence
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
