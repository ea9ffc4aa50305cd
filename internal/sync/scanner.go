package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Scanner walks a local library root and produces the local tree view
// consumed by the reconciler.
type Scanner struct {
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{logger: logger}
}

// Scan walks root and returns a map keyed by "/"-prefixed POSIX-style
// relative path. Keys are NFC-normalized so macOS NFD filenames compare
// equal to server-side NFC paths. Hidden entries (a leading dot in any
// segment) are skipped. Symlinks are followed for their mtime but treated
// as files, never recursed into. A missing root yields an empty map; the
// orchestrator creates the root before scanning.
func (s *Scanner) Scan(ctx context.Context, root string) (map[string]LocalEntry, error) {
	out := make(map[string]LocalEntry)

	if _, err := os.Stat(root); errors.Is(err, os.ErrNotExist) {
		s.logger.Debug("scan root missing", slog.String("root", root))
		return out, nil
	}

	if err := s.walkDir(ctx, root, "", out); err != nil {
		return nil, err
	}

	s.logger.Debug("local scan complete",
		slog.String("root", root),
		slog.Int("entries", len(out)),
	)

	return out, nil
}

// walkDir performs a depth-first traversal. relPath is the original
// filesystem path of the directory being listed; map keys use the
// NFC-normalized form.
func (s *Scanner) walkDir(ctx context.Context, root, relPath string, out map[string]LocalEntry) error {
	full := filepath.Join(root, filepath.FromSlash(relPath))

	entries, err := os.ReadDir(full)
	if err != nil {
		return fmt.Errorf("sync: reading directory %s: %w", full, err)
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return err
		}

		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		entryRel := joinRelPath(relPath, name)
		key := "/" + norm.NFC.String(entryRel)

		info, isDir, ok := s.statEntry(root, entryRel, entry)
		if !ok {
			continue
		}

		out[key] = LocalEntry{
			Mtime: info.ModTime().Unix(),
			IsDir: isDir,
		}

		if isDir {
			if err := s.walkDir(ctx, root, entryRel, out); err != nil {
				return err
			}
		}
	}

	return nil
}

// statEntry resolves an entry's FileInfo. Symlinks are followed for the
// mtime but reported as files regardless of target type, so a linked
// directory is never recursed into. Returns ok=false for broken symlinks
// and stat failures, which are logged and skipped.
func (s *Scanner) statEntry(root, entryRel string, entry os.DirEntry) (os.FileInfo, bool, bool) {
	if entry.Type()&os.ModeSymlink != 0 {
		info, err := os.Stat(filepath.Join(root, filepath.FromSlash(entryRel)))
		if err != nil {
			s.logger.Warn("broken symlink, skipping",
				slog.String("path", entryRel),
				slog.String("error", err.Error()),
			)

			return nil, false, false
		}

		return info, false, true
	}

	info, err := entry.Info()
	if err != nil {
		s.logger.Warn("cannot stat entry, skipping",
			slog.String("path", entryRel),
			slog.String("error", err.Error()),
		)

		return nil, false, false
	}

	return info, entry.IsDir(), true
}

// joinRelPath builds a relative path from a parent and child component.
// If parent is empty (root level), returns just the child.
func joinRelPath(parent, child string) string {
	if parent == "" {
		return child
	}

	return parent + "/" + child
}
