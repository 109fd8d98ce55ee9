package extract

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSupported(t *testing.T) {
	tests := []struct {
		ext  string
		want bool
	}{
		{".md", true},
		{".markdown", true},
		{".txt", true},
		{".pdf", true},
		{".MD", true},
		{".docx", false},
		{".xlsx", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := Supported(tt.ext); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.ext, got, tt.want)
		}
	}
}

func TestReadMarkdown(t *testing.T) {
	t.Run("title from first heading", func(t *testing.T) {
		path := writeFile(t, "notes.md", "## Quarterly Review\n\nSome body text.\n")

		doc, err := For(path)(path)
		if err != nil {
			t.Fatalf("extract error: %v", err)
		}
		if doc.Title != "Quarterly Review" {
			t.Errorf("title = %q, want %q", doc.Title, "Quarterly Review")
		}
		if !strings.Contains(doc.Text, "Some body text.") {
			t.Errorf("text missing body: %q", doc.Text)
		}
		if doc.Meta["parser"] != "markdown" {
			t.Errorf("parser meta = %q", doc.Meta["parser"])
		}
	})

	t.Run("falls back to file stem without heading", func(t *testing.T) {
		path := writeFile(t, "meeting-notes.md", "no headings here\n")

		doc, err := For(path)(path)
		if err != nil {
			t.Fatalf("extract error: %v", err)
		}
		if doc.Title != "meeting-notes" {
			t.Errorf("title = %q, want %q", doc.Title, "meeting-notes")
		}
	})
}

func TestReadText(t *testing.T) {
	path := writeFile(t, "plan.txt", "step one\nstep two\n")

	doc, err := For(path)(path)
	if err != nil {
		t.Fatalf("extract error: %v", err)
	}
	if doc.Title != "plan" {
		t.Errorf("title = %q, want %q", doc.Title, "plan")
	}
	if doc.Text != "step one\nstep two\n" {
		t.Errorf("text = %q", doc.Text)
	}
}

func TestHashText(t *testing.T) {
	t.Run("identical text hashes identically", func(t *testing.T) {
		if HashText("alpha\nbeta") != HashText("alpha\nbeta") {
			t.Error("identical text produced different hashes")
		}
	})

	t.Run("trailing whitespace does not change the hash", func(t *testing.T) {
		if HashText("alpha  \nbeta\t") != HashText("alpha\nbeta") {
			t.Error("trailing whitespace changed the hash")
		}
	})

	t.Run("different content hashes differently", func(t *testing.T) {
		if HashText("alpha") == HashText("beta") {
			t.Error("different text produced the same hash")
		}
	})
}

func TestHashReader(t *testing.T) {
	got, err := HashReader(strings.NewReader("payload"))
	if err != nil {
		t.Fatalf("HashReader() error = %v", err)
	}
	if len(got) != 64 {
		t.Errorf("hash length = %d, want 64 hex chars", len(got))
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing %s: %v", name, err)
	}
	return path
}
