package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// readPDF extracts page text from a PDF. Pages with no extractable text
// are skipped; a PDF whose every page is image-only yields empty text,
// which the caller records as an anomaly rather than a document.
func readPDF(path string) (*Document, error) {
	f, reader, err := pdf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening pdf: %w", err)
	}
	defer f.Close()

	total := reader.NumPage()
	var pages []string
	for i := 1; i <= total; i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("extracting pdf page %d: %w", i, err)
		}
		if trimmed := strings.TrimSpace(text); trimmed != "" {
			pages = append(pages, trimmed)
		}
	}

	return &Document{
		Text:  strings.Join(pages, "\n\n"),
		Title: stemOf(path),
		Meta: map[string]string{
			"parser": "pdf",
			"pages":  strconv.Itoa(total),
		},
	}, nil
}
