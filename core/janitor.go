package core

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/gobwas/glob"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"editorfs/metrics"
	"editorfs/protocols"
)

// Janitor removes temp files left in the cache dir by interrupted remote
// load and save calls.
type Janitor struct {
	Dir    string
	MaxAge time.Duration
	Cron   *cron.Cron

	pattern glob.Glob
	logger  *zap.Logger
	now     func() time.Time
}

func NewJanitor(dir string, maxAge time.Duration, logger *zap.Logger) *Janitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Janitor{
		Dir:     dir,
		MaxAge:  maxAge,
		Cron:    cron.New(),
		pattern: glob.MustCompile(protocols.TempFilePattern),
		logger:  logger.Named("janitor"),
		now:     time.Now,
	}
}

// Sweep removes matching files older than MaxAge and returns how many were
// removed. A missing cache dir is not an error.
func (j *Janitor) Sweep() (int, error) {
	entries, err := os.ReadDir(j.Dir)
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	cutoff := j.now().Add(-j.MaxAge)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !j.pattern.Match(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}

		p := filepath.Join(j.Dir, entry.Name())
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			j.logger.Warn("failed to remove stale temp file", zap.String("path", p), zap.Error(err))
			continue
		}
		j.logger.Debug("removed stale temp file", zap.String("path", p), zap.Time("modified", info.ModTime()))
		removed++
	}

	metrics.RecordTempFilesRemoved(removed)
	return removed, nil
}

func (j *Janitor) run() {
	n, err := j.Sweep()
	if err != nil {
		j.logger.Error("sweep failed", zap.String("dir", j.Dir), zap.Error(err))
		return
	}
	if n > 0 {
		j.logger.Info("sweep finished", zap.String("dir", j.Dir), zap.Int("removed", n))
	}
}

// Start schedules sweeps with a cron spec and runs one immediately in the
// background.
func (j *Janitor) Start(spec string) error {
	if _, err := j.Cron.AddFunc(spec, j.run); err != nil {
		return err
	}
	j.logger.Info("scheduled sweep", zap.String("cron", spec), zap.Duration("max_age", j.MaxAge))

	go j.run()
	j.Cron.Start()
	return nil
}

// Stop halts the schedule. The returned context is done once a running sweep
// has finished.
func (j *Janitor) Stop() context.Context {
	return j.Cron.Stop()
}
