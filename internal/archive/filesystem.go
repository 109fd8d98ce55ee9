package archive

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/s1ren-78/beiduoduo/internal/mirror"
)

// FileSystemArchive is a filesystem-based implementation of the Archive
// interface. It stores payloads and events in a directory structure:
//
//	<root>/
//	  payloads/
//	    <hash>                       (raw payloads, named by SHA-256)
//	  events/
//	    <domain>/
//	      <YYYY-MM-DD>/events.jsonl  (append-only fetch trail)
type FileSystemArchive struct {
	root        string
	payloadDir  string
	eventDir    string
	encryptor   mirror.Encryptor
}

// NewFileSystemArchive creates a new filesystem archive rooted at the
// given path. If enc is non-nil, payloads are encrypted at rest.
func NewFileSystemArchive(root string, enc mirror.Encryptor) (*FileSystemArchive, error) {
	payloadDir := filepath.Join(root, "payloads")
	eventDir := filepath.Join(root, "events")

	if err := os.MkdirAll(payloadDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create payload directory: %w", err)
	}
	if err := os.MkdirAll(eventDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create event directory: %w", err)
	}

	return &FileSystemArchive{
		root:       root,
		payloadDir: payloadDir,
		eventDir:   eventDir,
		encryptor:  enc,
	}, nil
}

// PutPayload stores a payload under its content hash.
// Idempotent: storing the same hash multiple times is safe.
func (a *FileSystemArchive) PutPayload(hash string, r io.Reader, size int64) error {
	destPath := filepath.Join(a.payloadDir, hash)

	if _, err := os.Stat(destPath); err == nil {
		// Consume the reader so callers see consistent behavior
		written, err := io.Copy(io.Discard, r)
		if err != nil {
			return fmt.Errorf("failed to read payload: %w", err)
		}
		if size >= 0 && written != size {
			return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, written)
		}
		return nil
	}

	if a.encryptor != nil {
		return a.writeEncrypted(destPath, r)
	}
	return a.writeFile(destPath, r, size)
}

// GetPayload retrieves a payload by content hash and writes it to w.
// Encrypted payloads require reading through a DecryptionContext; this
// method returns the bytes as stored.
func (a *FileSystemArchive) GetPayload(hash string, w io.Writer) error {
	srcPath := filepath.Join(a.payloadDir, hash)
	f, err := os.Open(srcPath)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("payload not found: %s", hash)
		}
		return fmt.Errorf("failed to open payload: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("failed to read payload: %w", err)
	}
	return nil
}

// AppendEvent appends one event to the current day's JSONL file for the
// given domain. Events are never rewritten.
func (a *FileSystemArchive) AppendEvent(domain string, e *mirror.ArchiveEvent) error {
	day := e.FetchedAt.UTC().Format("2006-01-02")
	dir := filepath.Join(a.eventDir, domain, day)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create event directory: %w", err)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}

	f, err := os.OpenFile(filepath.Join(dir, "events.jsonl"), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open event file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// ValidateSetup verifies that the archive directories are accessible.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root not accessible: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root is not a directory: %s", a.root)
	}

	for _, dir := range []string{a.payloadDir, a.eventDir} {
		info, err := os.Stat(dir)
		if err != nil {
			return fmt.Errorf("archive directory not accessible: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("archive path is not a directory: %s", dir)
		}
	}
	return nil
}

// writeFile writes data from r to the specified path using atomic write
// (temp file + rename).
func (a *FileSystemArchive) writeFile(destPath string, r io.Reader, expectedSize int64) error {
	dir := filepath.Dir(destPath)
	tmpFile, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if expectedSize >= 0 && written != expectedSize {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", expectedSize, written)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	success = true
	return nil
}

// writeEncrypted routes the payload through the encryptor before the
// atomic write. The stored size differs from the plaintext size, so no
// size check applies.
func (a *FileSystemArchive) writeEncrypted(destPath string, r io.Reader) error {
	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(a.encryptor.Encrypt(r, pw))
	}()
	return a.writeFile(destPath, pr, -1)
}

// Compile-time check that FileSystemArchive implements the Archive interface
var _ mirror.Archive = (*FileSystemArchive)(nil)
