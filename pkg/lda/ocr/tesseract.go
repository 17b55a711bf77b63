package ocr

import (
	"context"
	"fmt"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// TesseractRecognizer runs gosseract over page images. A fresh client is
// created per call, so the recognizer is safe to share across the pool's
// workers.
type TesseractRecognizer struct {
	Languages []string
}

// Recognize extracts line fragments with per-fragment confidence from one
// page image. Fragments are concatenated in the order the engine reports
// them, which is detection order rather than reading order; reordering
// would change the text the search index sees, so it is left as is.
func (r *TesseractRecognizer) Recognize(ctx context.Context, image []byte, pageNum int) (PageResult, error) {
	if err := ctx.Err(); err != nil {
		return PageResult{}, err
	}

	client := gosseract.NewClient()
	defer client.Close()

	if len(r.Languages) > 0 {
		if err := client.SetLanguage(r.Languages...); err != nil {
			return PageResult{}, fmt.Errorf("set languages: %w", err)
		}
	}
	if err := client.SetImageFromBytes(image); err != nil {
		return PageResult{}, fmt.Errorf("set image for page %d: %w", pageNum, err)
	}

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil {
		return PageResult{}, fmt.Errorf("recognize page %d: %w", pageNum, err)
	}

	lines := make([]string, 0, len(boxes))
	var confSum float64
	for _, box := range boxes {
		text := strings.TrimSpace(box.Word)
		if text == "" {
			continue
		}
		lines = append(lines, text)
		confSum += box.Confidence
	}

	result := PageResult{
		Text:          strings.TrimSpace(strings.Join(lines, "\n")),
		FragmentCount: len(lines),
	}
	if len(lines) > 0 {
		result.Confidence = confSum / float64(len(lines))
	}
	return result, nil
}

// CheckInstallation verifies that the Tesseract runtime and its language
// data are reachable. It is meant to run before a batch so a missing
// installation fails fast with remediation guidance instead of failing
// every page.
func CheckInstallation(languages []string) error {
	client := gosseract.NewClient()
	defer client.Close()

	version := client.Version()
	if version == "" {
		return fmt.Errorf("tesseract runtime not found: install the tesseract-ocr package and its development headers")
	}

	available, err := client.GetAvailableLanguages()
	if err != nil {
		return fmt.Errorf("tesseract %s found but language data unreadable: %w", version, err)
	}
	have := make(map[string]bool, len(available))
	for _, lang := range available {
		have[lang] = true
	}
	for _, lang := range languages {
		if !have[lang] {
			return fmt.Errorf("tesseract language %q not installed: install the tesseract-ocr-%s data package", lang, lang)
		}
	}
	return nil
}
