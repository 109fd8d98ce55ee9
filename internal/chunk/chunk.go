package chunk

import "strings"

// Config controls chunk sizing. Sizes are in runes, not bytes, so CJK
// documents split at the same granularity as Latin ones.
type Config struct {
	MaxChars int
	Overlap  int
}

// DefaultConfig matches the retrieval window the query surface is tuned for.
func DefaultConfig() Config {
	return Config{MaxChars: 1200, Overlap: 120}
}

// Chunk is one contiguous slice of a document's text. Offsets are rune
// offsets into the cleaned text.
type Chunk struct {
	Index       int
	Section     string
	Content     string
	StartOffset int
	EndOffset   int
}

// minBreakAdvance is how far past the cursor a newline must fall before it
// is preferred over a hard cut, so newline-dense text still makes progress.
const minBreakAdvance = 200

// Split divides text into retrieval-sized chunks. The split is
// deterministic: identical text always yields identical boundaries, which
// makes re-chunking after an unchanged-content sync a no-op.
func Split(text string, cfg Config) []Chunk {
	cleaned := Normalize(text)
	if strings.TrimSpace(cleaned) == "" {
		return nil
	}

	runes := []rune(cleaned)
	total := len(runes)

	var chunks []Chunk
	cursor := 0
	index := 0

	for cursor < total {
		end := cursor + cfg.MaxChars
		if end > total {
			end = total
		}
		if end < total {
			if nl := lastNewline(runes, cursor, end); nl > cursor+minBreakAdvance {
				end = nl
			}
		}

		snippet := strings.TrimSpace(string(runes[cursor:end]))
		if snippet != "" {
			chunks = append(chunks, Chunk{
				Index:       index,
				Content:     snippet,
				StartOffset: cursor,
				EndOffset:   end,
			})
			index++
		}

		if end >= total {
			break
		}

		next := end - cfg.Overlap
		if next <= cursor {
			next = cursor + 1
		}
		cursor = next
	}

	return chunks
}

// Normalize strips trailing whitespace from every line. Content hashes are
// computed over normalized text, so hash comparison and chunking always see
// identical input.
func Normalize(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	return strings.Join(lines, "\n")
}

// lastNewline returns the rune index of the last '\n' in runes[start:end),
// or -1 if there is none.
func lastNewline(runes []rune, start, end int) int {
	for i := end - 1; i >= start; i-- {
		if runes[i] == '\n' {
			return i
		}
	}
	return -1
}
