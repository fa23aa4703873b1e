// Package fileutil publishes pipeline artifacts atomically with
// tmp+rename semantics.
package fileutil

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sganis/dutopia/pkg/logging"
)

// Exists returns true if the file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// IsNonEmpty returns true if the file exists and has non-zero size.
func IsNonEmpty(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Size() > 0
}

// WriteTmpThenMove writes an artifact through a temporary file in the
// same directory and renames it into place. A consumer therefore only
// ever sees a complete artifact at outPath, never a partial one from
// an interrupted writer. The write callback receives the temporary
// path and must write the complete file.
func WriteTmpThenMove(outPath string, write func(tmpPath string) error) error {
	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	tmpPath := outPath + ".tmp"

	if err := write(tmpPath); err != nil {
		os.Remove(tmpPath)
		return err
	}
	if err := syncFile(tmpPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := os.Rename(tmpPath, outPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

func syncFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	err = f.Sync()
	f.Close()
	return err
}

// CleanupTmpFiles removes .tmp leftovers in dir whose base name
// matches pattern, typically shards from a crashed scan. The match is
// restricted to dir itself, never subdirectories. Unremovable entries
// are skipped.
func CleanupTmpFiles(dir, pattern string) error {
	log := logging.L()

	matches, err := filepath.Glob(filepath.Join(dir, pattern))
	if err != nil {
		return fmt.Errorf("bad cleanup pattern %q: %w", pattern, err)
	}
	var removed int
	for _, path := range matches {
		if !strings.HasSuffix(path, ".tmp") {
			continue
		}
		if info, err := os.Stat(path); err != nil || info.IsDir() {
			continue
		}
		if err := os.Remove(path); err == nil {
			removed++
		}
	}
	if removed > 0 {
		log.Debug().Int("files_removed", removed).Str("dir", dir).Msg("cleaned up tmp files")
	}
	return nil
}
