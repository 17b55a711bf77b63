package extract

import (
	"fmt"
	"os"

	"github.com/gen2brain/go-fitz"
	"github.com/ledongthuc/pdf"
)

// pdfReader reads the text layer through ledongthuc/pdf (pure Go, no
// CGO). Some real-world PDFs trip it up; those go through the fallback.
type pdfReader struct {
	f *os.File
	r *pdf.Reader
}

func openPDFReader(path string) (PageReader, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &pdfReader{f: f, r: r}, nil
}

func (p *pdfReader) PageCount() int { return p.r.NumPage() }

func (p *pdfReader) PageText(page int) (text string, err error) {
	// the parser panics on malformed content streams
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("page %d: %v", page, r)
		}
	}()

	pg := p.r.Page(page)
	if pg.V.IsNull() {
		return "", nil
	}
	return pg.GetPlainText(nil)
}

func (p *pdfReader) Close() error { return p.f.Close() }

// fitzReader reads the text layer through MuPDF, which copes with files
// the pure-Go parser rejects.
type fitzReader struct {
	doc *fitz.Document
}

func openFitzReader(path string) (PageReader, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &fitzReader{doc: doc}, nil
}

func (f *fitzReader) PageCount() int { return f.doc.NumPage() }

func (f *fitzReader) PageText(page int) (string, error) {
	return f.doc.Text(page - 1)
}

func (f *fitzReader) Close() error { return f.doc.Close() }

// readProperties returns the PDF document information dictionary.
func readProperties(path string) (map[string]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.Metadata(), nil
}
