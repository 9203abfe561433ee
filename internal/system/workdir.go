package system

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v3/disk"

	"github.com/ivlev/vconcat/internal/errs"
)

// WorkDir is the scratch directory holding rendered frames, extracted source
// frames and the concatenated audio of one run.
type WorkDir struct {
	Path string

	owned     bool
	artifacts []string
}

// CreateWorkDir reuses persistent when it is set (creating it if needed) and
// otherwise makes a fresh temporary directory that the run owns.
func CreateWorkDir(persistent, prefix string) (*WorkDir, error) {
	if persistent != "" {
		if err := os.MkdirAll(persistent, 0755); err != nil {
			return nil, errs.New(errs.ErrFilesystem, "create "+persistent, err)
		}
		abs, err := filepath.Abs(persistent)
		if err != nil {
			abs = persistent
		}
		return &WorkDir{Path: abs}, nil
	}

	dir, err := os.MkdirTemp("", prefix)
	if err != nil {
		return nil, errs.New(errs.ErrFilesystem, "create temp dir", err)
	}
	return &WorkDir{Path: dir, owned: true}, nil
}

// Owned reports whether the directory was created by the run itself.
func (w *WorkDir) Owned() bool { return w.owned }

func (w *WorkDir) Join(elem ...string) string {
	return filepath.Join(append([]string{w.Path}, elem...)...)
}

// Track registers a glob (relative to the directory) of files the run
// produces, so Purge can remove them from a directory it does not own.
func (w *WorkDir) Track(pattern string) {
	w.artifacts = append(w.artifacts, pattern)
}

// Remove deletes an owned directory with everything in it. It is a no-op for
// caller-supplied directories.
func (w *WorkDir) Remove() error {
	if !w.owned {
		return nil
	}
	if err := os.RemoveAll(w.Path); err != nil {
		return errs.New(errs.ErrFilesystem, "remove "+w.Path, err)
	}
	return nil
}

// Purge removes tracked artifacts but keeps the directory itself.
func (w *WorkDir) Purge() error {
	var failed []error
	for _, pattern := range w.artifacts {
		matches, err := filepath.Glob(filepath.Join(w.Path, pattern))
		if err != nil {
			failed = append(failed, err)
			continue
		}
		for _, m := range matches {
			if err := os.RemoveAll(m); err != nil {
				failed = append(failed, err)
			}
		}
	}
	if len(failed) > 0 {
		return errs.New(errs.ErrFilesystem, "purge "+w.Path, errors.Join(failed...))
	}
	return nil
}

// EnsureSpace fails when the filesystem holding the directory has less than
// need bytes free.
func (w *WorkDir) EnsureSpace(need uint64) error {
	usage, err := disk.Usage(w.Path)
	if err != nil {
		// Некоторые ФС (tmpfs в контейнерах) не отдают статистику, не блокируем запуск
		return nil
	}
	if usage.Free < need {
		return errs.Newf(errs.ErrFilesystem, "disk space",
			"%s needs %s for frames, only %s free", w.Path, FormatBytes(need), FormatBytes(usage.Free))
	}
	return nil
}

func FormatBytes(n uint64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := uint64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
