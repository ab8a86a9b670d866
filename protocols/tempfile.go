package protocols

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	tempFilePrefix = "editorfs-"
	tempFileSuffix = ".tmp"

	// TempFilePattern matches the files created by remote load and save calls.
	TempFilePattern = tempFilePrefix + "*" + tempFileSuffix
)

// openTempFile creates a uniquely named file under cacheDir. The returned
// cleanup closes and removes it and must run on every exit path.
func openTempFile(cacheDir string, logger *zap.Logger) (*os.File, func(), error) {
	if cacheDir == "" {
		cacheDir = os.TempDir()
	}
	if err := os.MkdirAll(cacheDir, 0o700); err != nil {
		return nil, nil, fmt.Errorf("create cache dir: %w", err)
	}

	name := filepath.Join(cacheDir, tempFilePrefix+uuid.NewString()+tempFileSuffix)
	f, err := os.OpenFile(name, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return nil, nil, fmt.Errorf("create temp file: %w", err)
	}

	cleanup := func() {
		f.Close()
		if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove temp file", zap.String("path", name), zap.Error(err))
		}
	}
	return f, cleanup, nil
}

// rewind prepares a temp file that was just written for reading.
func rewind(f *os.File) error {
	_, err := f.Seek(0, io.SeekStart)
	return err
}
