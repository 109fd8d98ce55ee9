// Package source implements the change-listing adapters the sync engine
// consumes: a local filesystem walker and a remote document platform
// pager. Both yield the same ChangeRecord stream so the engine never
// cares which side a change came from.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/s1ren-78/beiduoduo/internal/extract"
	"github.com/s1ren-78/beiduoduo/internal/mirror"
	"github.com/s1ren-78/beiduoduo/internal/model"
)

// localCheckpointKey is the scope checkpoint for local syncs. The local
// adapter has no cursor: resumability comes from per-file state on the
// source-file rows, so the checkpoint only carries the watermark.
const localCheckpointKey = "local:files"

// LocalAdapter walks a directory tree and yields files whose size,
// modification time, or content differ from the last-seen state stored
// in the source-file records.
type LocalAdapter struct {
	root   string
	store  mirror.Store
	ignore *IgnoreMatcher
	logger mirror.Logger
}

var _ mirror.Adapter = (*LocalAdapter)(nil)

// NewLocalAdapter creates an adapter rooted at the given directory.
func NewLocalAdapter(root string, store mirror.Store, ignorePatterns []string, logger mirror.Logger) *LocalAdapter {
	return &LocalAdapter{
		root:   root,
		store:  store,
		ignore: NewIgnoreMatcher(ignorePatterns),
		logger: logger,
	}
}

func (a *LocalAdapter) SourceType() string    { return model.SourceLocal }
func (a *LocalAdapter) CheckpointKey() string { return localCheckpointKey }

// ListChanges walks the tree and yields one record per changed file,
// plus delete records for previously-observed files that are gone.
// Incremental runs skip files whose size and mtime match the stored
// state; full runs yield everything (the engine's hash gate still makes
// unchanged content a no-op).
func (a *LocalAdapter) ListChanges(ctx context.Context, req mirror.ListRequest, fn func(mirror.ChangeRecord) error) (string, error) {
	known, err := a.knownFiles()
	if err != nil {
		return "", err
	}

	seen := make(map[string]bool, len(known))

	err = filepath.WalkDir(a.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if d.IsDir() {
			name := d.Name()
			if path != a.root && (strings.HasPrefix(name, ".") || name == "_index") {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		rel, err := filepath.Rel(a.root, path)
		if err != nil {
			return fmt.Errorf("computing relative path: %w", err)
		}
		if a.ignore.Match(rel) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}

		sourceID := "local:" + filepath.ToSlash(rel)
		seen[sourceID] = true

		if !req.Full {
			if prev, ok := known[sourceID]; ok && !prev.Removed &&
				prev.FileSize == info.Size() &&
				prev.FileMtime.Valid && prev.FileMtime.Time.Equal(info.ModTime()) {
				return nil // unchanged per stored state
			}
		}

		return fn(a.recordFor(path, rel, sourceID, info))
	})
	if err != nil {
		return "", fmt.Errorf("walking %s: %w", a.root, err)
	}

	// Files observed before but missing now were removed at the source.
	for sourceID, prev := range known {
		if seen[sourceID] || prev.Removed {
			continue
		}
		rec := mirror.ChangeRecord{
			SourceType: prev.SourceType,
			SourceID:   sourceID,
			Kind:       mirror.ChangeDelete,
			Path:       prev.FilePath,
			Name:       prev.FileName,
			Ext:        prev.FileExt,
		}
		if err := fn(rec); err != nil {
			return "", err
		}
	}

	return "", nil
}

// knownFiles loads the last-seen state for every file this adapter has
// observed, including ones recorded as unsupported.
func (a *LocalAdapter) knownFiles() (map[string]*model.SourceFile, error) {
	known := make(map[string]*model.SourceFile)
	for _, sourceType := range []string{model.SourceLocal, model.SourceUnsupported} {
		files, err := a.store.ListSourceFiles(sourceType)
		if err != nil {
			return nil, fmt.Errorf("loading %s source files: %w", sourceType, err)
		}
		for _, f := range files {
			if strings.HasPrefix(f.SourceID, "local:") {
				known[f.SourceID] = f
			}
		}
	}
	return known, nil
}

// recordFor builds the change record for one on-disk file.
func (a *LocalAdapter) recordFor(path, rel, sourceID string, info fs.FileInfo) mirror.ChangeRecord {
	ext := strings.ToLower(filepath.Ext(path))
	rec := mirror.ChangeRecord{
		SourceType: model.SourceLocal,
		SourceID:   sourceID,
		Path:       path,
		Name:       filepath.Base(path),
		Ext:        ext,
		Category:   categoryOf(rel),
		Size:       info.Size(),
		ModTime:    info.ModTime(),
	}

	if !extract.Supported(ext) {
		rec.Kind = mirror.ChangeUnsupported
		rec.UnsupportedReason = "extension_not_supported"
		rec.ContentHash = a.rawHash(path)
		return rec
	}

	rec.Kind = mirror.ChangeUpsert
	rec.Fetch = func(ctx context.Context) (*mirror.Content, error) {
		extractor := extract.For(path)
		if extractor == nil {
			return nil, fmt.Errorf("no extractor for %s", ext)
		}
		doc, err := extractor(path)
		if err != nil {
			return nil, err
		}
		return &mirror.Content{Text: doc.Text, Title: doc.Title, Meta: doc.Meta}, nil
	}
	return rec
}

// rawHash hashes a file's raw bytes. Used for unsupported files where no
// normalized text exists; a hash failure degrades to an empty hash
// rather than failing the walk.
func (a *LocalAdapter) rawHash(path string) string {
	f, err := os.Open(path)
	if err != nil {
		a.logger.Warn("hashing unsupported file", "path", path, "error", err)
		return ""
	}
	defer f.Close()

	hash, err := extract.HashReader(f)
	if err != nil {
		a.logger.Warn("hashing unsupported file", "path", path, "error", err)
		return ""
	}
	return hash
}

// categoryOf derives a document category from the first path element
// under the root; top-level files get "root".
func categoryOf(rel string) string {
	parts := strings.Split(filepath.ToSlash(rel), "/")
	if len(parts) <= 1 {
		return "root"
	}
	return parts[0]
}
