package render

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/zero-day-ai/adchecklist/auditerr"
)

// WriteFile atomically replaces path with data. The data is written to a
// temporary file in the same directory and renamed over path, so readers
// never observe a partial document. Missing parent directories are created.
func WriteFile(path string, data []byte) error {
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return auditerr.Output("render.WriteFile", err).
			WithContext(map[string]any{"path": path})
	}
	return nil
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := io.Copy(tmp, bytes.NewReader(data)); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
