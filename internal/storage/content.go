package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
)

// DefaultMaxParseMiB is the size above which reads need explicit confirmation.
const DefaultMaxParseMiB = 10

// SizeWarning is returned instead of content when a file exceeds the parse limit.
type SizeWarning struct {
	Path    string
	SizeMiB int
}

func (w *SizeWarning) Error() string {
	return fmt.Sprintf("Warning: File size is %d MB. Processing such a large file may consume more memory.\nCaution: Do you still wish to parse the selected instance?", w.SizeMiB)
}

// ReadOptions controls ReadContent.
type ReadOptions struct {
	// IgnoreSizeCheck reads the file even when it exceeds MaxParseMiB.
	IgnoreSizeCheck bool
	// IncludeArchived falls back to ArchiveDir when the live file is absent.
	IncludeArchived bool
	// MaxParseMiB defaults to DefaultMaxParseMiB.
	MaxParseMiB int
}

// ReadContent returns the full text of an instance file.
// Archived zstd files are decompressed transparently.
func (s *Store) ReadContent(instance string, opts ReadOptions) (string, error) {
	if err := validInstance(instance); err != nil {
		return "", err
	}

	path, compressed, err := s.locate(instance, opts.IncludeArchived)
	if err != nil {
		return "", err
	}

	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}

	limit := opts.MaxParseMiB
	if limit <= 0 {
		limit = DefaultMaxParseMiB
	}
	if !opts.IgnoreSizeCheck && info.Size() > int64(limit)*mib {
		return "", &SizeWarning{Path: path, SizeMiB: int(math.Round(float64(info.Size()) / mib))}
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	defer f.Close()

	var r io.Reader = f
	if compressed {
		dec, err := zstd.NewReader(f)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
		defer dec.Close()
		r = dec
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnreadable, err)
	}
	return string(data), nil
}

type candidate struct {
	path       string
	compressed bool
}

// locate finds the file backing instance.
func (s *Store) locate(instance string, includeArchived bool) (path string, compressed bool, err error) {
	candidates := []candidate{{path: s.Path(instance)}}
	if includeArchived {
		archive := filepath.Join(s.dir, ArchiveDir, instance+Ext)
		candidates = append(candidates,
			candidate{path: archive},
			candidate{path: archive + zstdExt, compressed: true},
		)
	}

	for _, c := range candidates {
		_, err := os.Stat(c.path)
		if err == nil {
			return c.path, c.compressed, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return "", false, fmt.Errorf("%w: %v", ErrUnreadable, err)
		}
	}
	return "", false, fmt.Errorf("%w: %s", ErrInstanceNotFound, instance)
}
