package fs

import (
	"fmt"
	"os"
	"path/filepath"
)

// TempFilePrefix marks in-progress atomic writes; the watcher and the reader
// skip files carrying it.
const TempFilePrefix = "speaknote-tmp-"

// writeFileAtomic writes data through a temp file in the target's directory
// and renames it into place, so readers only ever see complete note files.
func writeFileAtomic(filename string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), TempFilePrefix+"*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	name := tmp.Name()
	defer os.Remove(name)

	write := func() error {
		if err := tmp.Chmod(perm); err != nil {
			return fmt.Errorf("failed to chmod temp file: %w", err)
		}
		if _, err := tmp.Write(data); err != nil {
			return fmt.Errorf("failed to write temp file: %w", err)
		}
		if err := tmp.Sync(); err != nil {
			return fmt.Errorf("failed to sync temp file: %w", err)
		}
		return nil
	}
	if err := write(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Rename(name, filename); err != nil {
		return fmt.Errorf("failed to rename temp file to %s: %w", filename, err)
	}
	return nil
}
