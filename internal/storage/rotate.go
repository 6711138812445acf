package storage

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/klauspost/compress/zstd"
)

const (
	zstdExt            = ".zst"
	archiveStampLayout = "2006-01-02_15-04-05"
)

// RotationFailure is a file that needed rotation but could not be moved.
type RotationFailure struct {
	Path      string
	Oversized bool
	Err       error
}

// RotationReport lists the outcome of Rotate.
type RotationReport struct {
	Archived []string
	Failures []RotationFailure
}

// Rotate moves every live instance file whose age is at least maxAgeDays or
// whose size is at least maxSizeMiB into ArchiveDir, adding a timestamp to its
// name. Failures are logged and reported; they never abort the scan.
func (s *Store) Rotate(maxAgeDays, maxSizeMiB int) RotationReport {
	var report RotationReport

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.log.Error(err, "Rotation skipped: failed to read log dir", "dir", s.dir)
		}
		return report
	}

	now := s.now()
	maxAge := time.Duration(maxAgeDays) * 24 * time.Hour
	maxSize := int64(maxSizeMiB) * mib

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), Ext) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}

		oversized := info.Size() >= maxSize
		if now.Sub(info.ModTime()) < maxAge && !oversized {
			continue
		}

		path := filepath.Join(s.dir, entry.Name())
		dest, err := s.archive(path, now)
		if err != nil {
			s.log.Info("Failed to rotate log file; rotate large files manually so the viewer stays responsive",
				"path", path, "oversized", oversized, "error", err.Error())
			report.Failures = append(report.Failures, RotationFailure{Path: path, Oversized: oversized, Err: err})
			continue
		}
		s.log.V(1).Info("Log file archived", "from", path, "to", dest)
		report.Archived = append(report.Archived, dest)
	}
	return report
}

func (s *Store) archive(path string, now time.Time) (string, error) {
	archiveDir := filepath.Join(s.dir, ArchiveDir)
	if err := os.MkdirAll(archiveDir, 0755); err != nil {
		return "", err
	}

	lock := s.lockFor(path)
	lock.Lock()
	defer lock.Unlock()

	base := strings.TrimSuffix(filepath.Base(path), Ext) + "_" + now.Format(archiveStampLayout)
	suffix := Ext
	if s.compressArchives {
		suffix += zstdExt
	}
	dest := uniquePath(archiveDir, base, suffix)

	if !s.compressArchives {
		return dest, os.Rename(path, dest)
	}
	if err := compressFile(path, dest); err != nil {
		return "", err
	}
	if err := os.Remove(path); err != nil {
		os.Remove(dest)
		return "", err
	}
	return dest, nil
}

func uniquePath(dir, base, suffix string) string {
	dest := filepath.Join(dir, base+suffix)
	for i := 1; ; i++ {
		if _, err := os.Stat(dest); errors.Is(err, fs.ErrNotExist) {
			return dest
		}
		dest = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, i, suffix))
	}
}

func compressFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp := dest + ".tmp"
	out, err := os.Create(tmp)
	if err != nil {
		return err
	}

	enc, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if _, err := io.Copy(enc, in); err != nil {
		enc.Close()
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := enc.Close(); err != nil {
		out.Close()
		os.Remove(tmp)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	return os.Rename(tmp, dest)
}
