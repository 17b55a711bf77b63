// Package extract decides whether a PDF carries a usable text layer and
// produces per-page text either directly or through the OCR subsystem.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/osmkhan/lda-scraper/pkg/lda/ocr"
)

// Extraction methods recorded in metadata.
const (
	MethodDirect = "direct"
	MethodOCR    = "ocr"
)

// Detection heuristic: sample the first few pages; a single page with more
// than charThreshold extractable characters marks the document searchable.
// False negatives cost an unnecessary OCR pass, false positives extract
// garbled text; callers can override with ForceOCR.
const (
	DefaultSamplePages = 3
	charThreshold      = 50
)

// Metadata describes an extraction outcome plus whatever document
// properties the PDF exposes.
type Metadata struct {
	PageCount int
	FileSize  int64
	IsScanned bool
	Method    string

	// OCRConfidence is the mean page confidence on the engine's 0-100
	// scale. Only set on the OCR path; 0 when no page yielded detections.
	OCRConfidence float64

	Title        string
	Author       string
	Subject      string
	Creator      string
	Producer     string
	CreationDate string
	ModDate      string
}

// PageReader yields per-page text from a PDF text layer.
type PageReader interface {
	PageCount() int
	// PageText returns the text of the 1-indexed page.
	PageText(page int) (string, error)
	Close() error
}

// OCRRunner is the slice of the OCR subsystem the engine needs.
type OCRRunner interface {
	Process(ctx context.Context, path string) (map[int]ocr.PageResult, error)
}

// Engine routes a PDF through detection and one of the two extraction
// paths.
type Engine struct {
	// SamplePages bounds how many leading pages detection inspects.
	SamplePages int

	OCR OCRRunner

	// Reader openers; tests substitute synthetic ones.
	OpenPrimary    func(path string) (PageReader, error)
	OpenFallback   func(path string) (PageReader, error)
	ReadProperties func(path string) (map[string]string, error)

	logger *slog.Logger
}

// NewEngine returns an Engine with production readers.
func NewEngine(ocrRunner OCRRunner, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		SamplePages:    DefaultSamplePages,
		OCR:            ocrRunner,
		OpenPrimary:    openPDFReader,
		OpenFallback:   openFitzReader,
		ReadProperties: readProperties,
		logger:         logger,
	}
}

// Options tune one Process call.
type Options struct {
	// ForceOCR skips detection and routes straight to OCR.
	ForceOCR bool
}

// Process extracts per-page text and metadata from the PDF at path. Pages
// are 1-indexed. The metadata always carries method, scanned flag, page
// count and file size; the OCR path additionally carries the aggregate
// confidence.
func (e *Engine) Process(ctx context.Context, path string, opts Options) (map[int]string, Metadata, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("stat %s: %w", path, err)
	}
	meta := Metadata{FileSize: info.Size()}

	meta.PageCount, err = e.pageCount(path)
	if err != nil {
		return nil, Metadata{}, err
	}

	e.readPropertiesInto(path, &meta)

	scanned := true
	if !opts.ForceOCR {
		scanned, err = e.DetectScanned(path)
		if err != nil {
			return nil, Metadata{}, err
		}
	}

	if scanned || opts.ForceOCR {
		e.logger.Info("document is scanned or OCR forced", "path", path)
		meta.IsScanned = true
		meta.Method = MethodOCR

		results, err := e.OCR.Process(ctx, path)
		if err != nil {
			return nil, Metadata{}, fmt.Errorf("ocr %s: %w", path, err)
		}

		pages := make(map[int]string, len(results))
		for page, r := range results {
			pages[page] = r.Text
		}
		meta.OCRConfidence = ocr.MeanConfidence(results)
		e.logger.Info("OCR extraction done", "path", path, "pages", len(pages), "confidence", meta.OCRConfidence)
		return pages, meta, nil
	}

	e.logger.Info("document is searchable, extracting text layer", "path", path)
	meta.Method = MethodDirect

	pages, err := e.ExtractSearchable(path)
	if err != nil {
		return nil, Metadata{}, err
	}
	return pages, meta, nil
}

// DetectScanned samples the first SamplePages pages of the text layer. Any
// sampled page with more than charThreshold characters classifies the
// document as searchable.
func (e *Engine) DetectScanned(path string) (bool, error) {
	reader, err := e.openAny(path)
	if err != nil {
		return false, err
	}
	defer reader.Close()

	sample := e.SamplePages
	if sample <= 0 {
		sample = DefaultSamplePages
	}
	if count := reader.PageCount(); sample > count {
		sample = count
	}

	for page := 1; page <= sample; page++ {
		text, err := reader.PageText(page)
		if err != nil {
			// an unreadable page tells us nothing about the rest
			continue
		}
		// runes, not bytes: Urdu text reaches 50 bytes in under 20 characters
		if utf8.RuneCountInString(strings.TrimSpace(text)) > charThreshold {
			return false, nil
		}
	}
	return true, nil
}

// ExtractSearchable reads every page through the primary text-layer
// reader, falling back to the secondary reader when the primary cannot
// cope with the file.
func (e *Engine) ExtractSearchable(path string) (map[int]string, error) {
	pages, err := e.extractWith(e.OpenPrimary, path)
	if err == nil {
		return pages, nil
	}
	e.logger.Warn("primary reader failed, using fallback", "path", path, "error", err)

	pages, ferr := e.extractWith(e.OpenFallback, path)
	if ferr != nil {
		return nil, fmt.Errorf("extract %s: primary: %v, fallback: %w", path, err, ferr)
	}
	return pages, nil
}

func (e *Engine) extractWith(open func(string) (PageReader, error), path string) (map[int]string, error) {
	reader, err := open(path)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	pages := make(map[int]string, reader.PageCount())
	for page := 1; page <= reader.PageCount(); page++ {
		text, err := reader.PageText(page)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		pages[page] = strings.TrimSpace(text)
	}
	return pages, nil
}

func (e *Engine) pageCount(path string) (int, error) {
	reader, err := e.openAny(path)
	if err != nil {
		return 0, err
	}
	defer reader.Close()
	return reader.PageCount(), nil
}

func (e *Engine) openAny(path string) (PageReader, error) {
	reader, err := e.OpenPrimary(path)
	if err == nil {
		return reader, nil
	}
	reader, ferr := e.OpenFallback(path)
	if ferr != nil {
		return nil, fmt.Errorf("open %s: primary: %v, fallback: %w", path, err, ferr)
	}
	return reader, nil
}

func (e *Engine) readPropertiesInto(path string, meta *Metadata) {
	props, err := e.ReadProperties(path)
	if err != nil {
		e.logger.Warn("could not read document properties", "path", path, "error", err)
		return
	}
	meta.Title = props["title"]
	meta.Author = props["author"]
	meta.Subject = props["subject"]
	meta.Creator = props["creator"]
	meta.Producer = props["producer"]
	meta.CreationDate = props["creationDate"]
	meta.ModDate = props["modDate"]
}

// TotalChars sums extracted text length across pages.
func TotalChars(pages map[int]string) int {
	var total int
	for _, text := range pages {
		total += len(text)
	}
	return total
}
