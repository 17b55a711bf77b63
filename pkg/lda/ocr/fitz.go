package ocr

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// fitzRasterizer renders PDF pages through MuPDF.
type fitzRasterizer struct {
	doc *fitz.Document
}

func openFitz(path string) (Rasterizer, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, err
	}
	return &fitzRasterizer{doc: doc}, nil
}

func (f *fitzRasterizer) PageCount() int {
	return f.doc.NumPage()
}

func (f *fitzRasterizer) RenderPage(page, dpi int) ([]byte, error) {
	img, err := f.doc.ImageDPI(page-1, float64(dpi))
	if err != nil {
		return nil, fmt.Errorf("render page %d: %w", page, err)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page %d: %w", page, err)
	}
	return buf.Bytes(), nil
}

func (f *fitzRasterizer) Close() error {
	return f.doc.Close()
}
