// Package export copies finished songs to a destination store: a local
// directory or an S3-compatible bucket.
package export

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

// ErrExists is returned when the destination already holds different content.
var ErrExists = errors.New("export: destination exists")

// FileStore is a minimal file-oriented store. Paths are forward-slash
// separated and relative to the store root. Implementations must be safe for
// concurrent use.
type FileStore interface {
	// Read opens the named file. A missing file yields an error wrapping
	// os.ErrNotExist.
	Read(ctx context.Context, path string) (io.ReadCloser, error)

	// Write truncates or creates the named file. Close flushes it.
	Write(ctx context.Context, path string) (io.WriteCloser, error)

	// Delete removes the named file; a missing file is not an error.
	Delete(ctx context.Context, path string) error

	Exists(ctx context.Context, path string) (bool, error)
}

// Sink uploads finished files into a FileStore.
type Sink struct {
	Store FileStore

	// Overwrite replaces existing objects instead of checking them first.
	Overwrite bool
}

// Upload copies the local file at localPath to dest in the store. When dest is
// empty the file's base name is used. Unless Overwrite is set, an existing
// dest with identical bytes is left alone and one with different bytes fails
// with ErrExists. A failed upload deletes any partial object it left behind.
func (s *Sink) Upload(ctx context.Context, localPath, dest string) error {
	if dest == "" {
		dest = filepath.Base(localPath)
	}
	start := time.Now()

	f, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}
	defer f.Close()

	if !s.Overwrite {
		exists, err := s.Store.Exists(ctx, dest)
		if err != nil {
			return fmt.Errorf("export: stat %s: %w", dest, err)
		}
		if exists {
			same, err := s.sameContent(ctx, f, dest)
			if err != nil {
				return err
			}
			if !same {
				return fmt.Errorf("export: %s: %w", dest, ErrExists)
			}
			slog.Info("already exported", "file", localPath, "dest", dest)
			return nil
		}
	}

	w, err := s.Store.Write(ctx, dest)
	if err != nil {
		return fmt.Errorf("export: open %s: %w", dest, err)
	}
	n, err := io.Copy(w, f)
	if cerr := w.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		if derr := s.Store.Delete(ctx, dest); derr != nil {
			slog.Warn("export cleanup failed", "dest", dest, "err", derr)
		}
		return fmt.Errorf("export: upload %s: %w", dest, err)
	}

	slog.Info("exported", "file", localPath, "dest", dest, "bytes", n, "took", time.Since(start).Round(time.Millisecond))
	return nil
}

// sameContent compares f with the stored dest and rewinds f.
func (s *Sink) sameContent(ctx context.Context, f *os.File, dest string) (bool, error) {
	local := sha1.New()
	if _, err := io.Copy(local, f); err != nil {
		return false, fmt.Errorf("export: hash %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, fmt.Errorf("export: %w", err)
	}

	r, err := s.Store.Read(ctx, dest)
	if err != nil {
		return false, fmt.Errorf("export: read %s: %w", dest, err)
	}
	defer r.Close()
	remote := sha1.New()
	if _, err := io.Copy(remote, r); err != nil {
		return false, fmt.Errorf("export: read %s: %w", dest, err)
	}
	return bytes.Equal(local.Sum(nil), remote.Sum(nil)), nil
}
