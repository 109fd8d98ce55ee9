// Package extract turns supported file formats into plain text for
// chunking and indexing. Extraction failures are per-item anomalies:
// callers record them against the source file and keep going.
package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/s1ren-78/beiduoduo/internal/chunk"
)

// Document is the result of extracting one file.
type Document struct {
	Text  string
	Title string
	Meta  map[string]string
}

// Extractor parses one file format into plain text.
type Extractor func(path string) (*Document, error)

var extractors = map[string]Extractor{
	".md":       readMarkdown,
	".markdown": readMarkdown,
	".txt":      readText,
	".pdf":      readPDF,
}

// Supported reports whether files with the given extension can be
// extracted. The extension must include the leading dot.
func Supported(ext string) bool {
	_, ok := extractors[strings.ToLower(ext)]
	return ok
}

// For returns the extractor for a path's extension, or nil if the
// extension is not supported.
func For(path string) Extractor {
	return extractors[strings.ToLower(filepath.Ext(path))]
}

// HashText returns the SHA-256 hex digest of the normalized text. This is
// the content hash used for change detection: metadata-only churn (mtime
// updates, re-saves with identical content) hashes identically.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(chunk.Normalize(text)))
	return hex.EncodeToString(sum[:])
}

// HashReader returns the SHA-256 hex digest of raw bytes from r. Used for
// source-file records of unsupported files, where no normalized text exists.
func HashReader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", fmt.Errorf("hashing content: %w", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
