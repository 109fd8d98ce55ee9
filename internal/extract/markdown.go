package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// readMarkdown reads a markdown file verbatim. The title is taken from the
// first heading line, falling back to the file name.
func readMarkdown(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading markdown file: %w", err)
	}
	text := string(data)

	title := stemOf(path)
	for _, line := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(line)
		if strings.HasPrefix(stripped, "#") {
			if h := strings.TrimSpace(strings.TrimLeft(stripped, "#")); h != "" {
				title = h
			}
			break
		}
	}

	return &Document{
		Text:  text,
		Title: title,
		Meta:  map[string]string{"parser": "markdown"},
	}, nil
}

// readText reads a plain-text file verbatim, titled by its file name.
func readText(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading text file: %w", err)
	}
	return &Document{
		Text:  string(data),
		Title: stemOf(path),
		Meta:  map[string]string{"parser": "text"},
	}, nil
}

// stemOf returns the file name without its extension.
func stemOf(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
