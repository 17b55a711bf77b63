package extract

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/osmkhan/lda-scraper/pkg/lda/ocr"
)

type fakeReader struct {
	pages   []string
	pageErr map[int]error
	closed  bool
}

func (f *fakeReader) PageCount() int { return len(f.pages) }

func (f *fakeReader) PageText(page int) (string, error) {
	if err := f.pageErr[page]; err != nil {
		return "", err
	}
	return f.pages[page-1], nil
}

func (f *fakeReader) Close() error {
	f.closed = true
	return nil
}

type fakeOCR struct {
	results map[int]ocr.PageResult
	err     error
	called  bool
}

func (f *fakeOCR) Process(ctx context.Context, path string) (map[int]ocr.PageResult, error) {
	f.called = true
	return f.results, f.err
}

func testEngine(t *testing.T, reader PageReader, runner OCRRunner) *Engine {
	t.Helper()
	e := NewEngine(runner, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	e.OpenPrimary = func(string) (PageReader, error) { return reader, nil }
	e.OpenFallback = func(string) (PageReader, error) {
		return nil, errors.New("fallback not wired in this test")
	}
	e.ReadProperties = func(string) (map[string]string, error) {
		return map[string]string{}, nil
	}
	return e
}

func tempPDF(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "doc.pdf")
	if err := os.WriteFile(path, []byte("%PDF-1.4 stub"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDetectScannedThreshold(t *testing.T) {
	tests := []struct {
		name    string
		pages   []string
		scanned bool
	}{
		{"all short pages", []string{"stamp", "", "seal"}, true},
		{"exactly at threshold", []string{strings.Repeat("a", 50)}, true},
		{"one char over threshold", []string{strings.Repeat("a", 51)}, false},
		{"text beyond sample window", []string{"", "", "", strings.Repeat("a", 500)}, true},
		{"text on third page", []string{"", "", strings.Repeat("a", 500)}, false},
		{"whitespace does not count", []string{strings.Repeat(" \n\t", 100)}, true},
		// threshold counts runes: 30 Urdu letters are 60 bytes but still scanned
		{"short urdu page", []string{strings.Repeat("ل", 30)}, true},
		{"urdu page over threshold", []string{strings.Repeat("ل", 51)}, false},
		{"empty document", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := testEngine(t, &fakeReader{pages: tt.pages}, &fakeOCR{})
			scanned, err := e.DetectScanned("doc.pdf")
			if err != nil {
				t.Fatal(err)
			}
			if scanned != tt.scanned {
				t.Errorf("scanned = %v, want %v", scanned, tt.scanned)
			}
		})
	}
}

func TestDetectScannedSkipsUnreadablePages(t *testing.T) {
	reader := &fakeReader{
		pages:   []string{"", "", strings.Repeat("a", 200)},
		pageErr: map[int]error{2: errors.New("bad content stream")},
	}
	e := testEngine(t, reader, &fakeOCR{})

	scanned, err := e.DetectScanned("doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if scanned {
		t.Error("readable third page should classify the document searchable")
	}
}

func TestProcessDirectPath(t *testing.T) {
	runner := &fakeOCR{}
	reader := &fakeReader{pages: []string{strings.Repeat("a", 100), "  second page  "}}
	e := testEngine(t, reader, runner)

	pages, meta, err := e.Process(context.Background(), tempPDF(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if runner.called {
		t.Error("OCR must not run for a searchable document")
	}
	if meta.Method != MethodDirect || meta.IsScanned {
		t.Errorf("meta = %+v, want direct/unscanned", meta)
	}
	if meta.PageCount != 2 {
		t.Errorf("PageCount = %d, want 2", meta.PageCount)
	}
	if meta.FileSize == 0 {
		t.Error("FileSize not recorded")
	}
	if pages[2] != "second page" {
		t.Errorf("page 2 = %q, want trimmed text", pages[2])
	}
}

func TestProcessOCRPath(t *testing.T) {
	runner := &fakeOCR{results: map[int]ocr.PageResult{
		1: {Text: "RESOLUTION NO 42", Confidence: 91},
		2: {Text: "", Confidence: 0},
		3: {Text: "approved", Confidence: 83},
	}}
	reader := &fakeReader{pages: []string{"", "", ""}}
	e := testEngine(t, reader, runner)

	pages, meta, err := e.Process(context.Background(), tempPDF(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if !runner.called {
		t.Fatal("OCR did not run for a scanned document")
	}
	if meta.Method != MethodOCR || !meta.IsScanned {
		t.Errorf("meta = %+v, want ocr/scanned", meta)
	}
	if meta.OCRConfidence != 87 {
		t.Errorf("OCRConfidence = %v, want mean over confident pages 87", meta.OCRConfidence)
	}
	if pages[1] != "RESOLUTION NO 42" || pages[2] != "" {
		t.Errorf("pages = %v", pages)
	}
}

func TestProcessForceOCR(t *testing.T) {
	runner := &fakeOCR{results: map[int]ocr.PageResult{1: {Text: "forced", Confidence: 70}}}
	reader := &fakeReader{pages: []string{strings.Repeat("searchable text ", 20)}}
	e := testEngine(t, reader, runner)

	_, meta, err := e.Process(context.Background(), tempPDF(t), Options{ForceOCR: true})
	if err != nil {
		t.Fatal(err)
	}
	if !runner.called {
		t.Fatal("ForceOCR must route to OCR even with a text layer")
	}
	if meta.Method != MethodOCR || !meta.IsScanned {
		t.Errorf("meta = %+v, want ocr/scanned", meta)
	}
}

func TestProcessOCRFailure(t *testing.T) {
	runner := &fakeOCR{err: errors.New("tesseract not installed")}
	e := testEngine(t, &fakeReader{pages: []string{""}}, runner)

	_, _, err := e.Process(context.Background(), tempPDF(t), Options{})
	if err == nil {
		t.Fatal("expected OCR failure to propagate")
	}
}

func TestProcessMissingFile(t *testing.T) {
	e := testEngine(t, &fakeReader{}, &fakeOCR{})
	_, _, err := e.Process(context.Background(), filepath.Join(t.TempDir(), "missing.pdf"), Options{})
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestExtractSearchableFallback(t *testing.T) {
	e := NewEngine(&fakeOCR{}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	e.OpenPrimary = func(string) (PageReader, error) {
		return nil, errors.New("malformed xref table")
	}
	fallback := &fakeReader{pages: []string{"recovered text"}}
	e.OpenFallback = func(string) (PageReader, error) { return fallback, nil }

	pages, err := e.ExtractSearchable("doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if pages[1] != "recovered text" {
		t.Errorf("pages = %v", pages)
	}
	if !fallback.closed {
		t.Error("fallback reader not closed")
	}
}

func TestExtractSearchablePageErrorFallsBack(t *testing.T) {
	e := NewEngine(&fakeOCR{}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	primary := &fakeReader{
		pages:   []string{"ok", "broken"},
		pageErr: map[int]error{2: errors.New("bad stream")},
	}
	e.OpenPrimary = func(string) (PageReader, error) { return primary, nil }
	fallback := &fakeReader{pages: []string{"page one", "page two"}}
	e.OpenFallback = func(string) (PageReader, error) { return fallback, nil }

	pages, err := e.ExtractSearchable("doc.pdf")
	if err != nil {
		t.Fatal(err)
	}
	if pages[2] != "page two" {
		t.Errorf("pages = %v, want fallback result", pages)
	}
}

func TestExtractSearchableBothFail(t *testing.T) {
	e := NewEngine(&fakeOCR{}, slog.New(slog.NewTextHandler(os.Stderr, nil)))
	e.OpenPrimary = func(string) (PageReader, error) { return nil, errors.New("primary down") }
	e.OpenFallback = func(string) (PageReader, error) { return nil, errors.New("fallback down") }

	if _, err := e.ExtractSearchable("doc.pdf"); err == nil {
		t.Fatal("expected error when both readers fail")
	}
}

func TestProcessReadsProperties(t *testing.T) {
	e := testEngine(t, &fakeReader{pages: []string{strings.Repeat("a", 100)}}, &fakeOCR{})
	e.ReadProperties = func(string) (map[string]string, error) {
		return map[string]string{
			"title":  "Regulation of Wireless Equipment 2021",
			"author": "Lahore Development Authority",
		}, nil
	}

	_, meta, err := e.Process(context.Background(), tempPDF(t), Options{})
	if err != nil {
		t.Fatal(err)
	}
	if meta.Title != "Regulation of Wireless Equipment 2021" || meta.Author != "Lahore Development Authority" {
		t.Errorf("meta = %+v", meta)
	}
}

func TestProcessPropertiesFailureNonFatal(t *testing.T) {
	e := testEngine(t, &fakeReader{pages: []string{strings.Repeat("a", 100)}}, &fakeOCR{})
	e.ReadProperties = func(string) (map[string]string, error) {
		return nil, errors.New("no info dict")
	}

	if _, _, err := e.Process(context.Background(), tempPDF(t), Options{}); err != nil {
		t.Fatalf("property failure must not abort extraction: %v", err)
	}
}

func TestTotalChars(t *testing.T) {
	if n := TotalChars(map[int]string{1: "abc", 2: "", 3: "de"}); n != 5 {
		t.Errorf("TotalChars = %d, want 5", n)
	}
	if n := TotalChars(nil); n != 0 {
		t.Errorf("TotalChars(nil) = %d, want 0", n)
	}
}
