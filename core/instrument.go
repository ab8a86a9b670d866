package core

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"editorfs/metrics"
	"editorfs/model"
	"editorfs/protocols"
)

// instrumented records a metric and a debug line for every call of the
// wrapped backend.
type instrumented struct {
	next    protocols.Filesystem
	backend string
	logger  *zap.Logger
}

// Instrument decorates fsys with operation metrics. Archive progress streams
// are tapped so that every entry is counted as it is delivered and the
// operation is observed when the task ends.
func Instrument(fsys protocols.Filesystem, logger *zap.Logger) protocols.Filesystem {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &instrumented{
		next:    fsys,
		backend: backendLabel(fsys),
		logger:  logger.Named("ops").With(zap.String("fs", fsys.UUID())),
	}
}

func backendLabel(fsys protocols.Filesystem) string {
	switch fsys.(type) {
	case *protocols.LocalFilesystem:
		return "local"
	case *protocols.FTPSFilesystem:
		return "ftp"
	case *protocols.SFTPFilesystem:
		return "sftp"
	}
	return "other"
}

func (i *instrumented) observe(op string, start time.Time, err error) {
	status := metrics.StatusSuccess
	switch {
	case err == nil:
	case errors.Is(err, protocols.ErrUnsupportedOperation):
		status = metrics.StatusUnsupported
	case errors.Is(err, context.Canceled):
		status = metrics.StatusCanceled
	default:
		status = metrics.StatusError
	}
	elapsed := time.Since(start)
	metrics.RecordOperation(i.backend, op, status, elapsed)
	i.logger.Debug(op, zap.String("status", status), zap.Duration("elapsed", elapsed), zap.Error(err))
}

// tap counts every entry of an archive task and observes the operation once
// the task has finished, so its duration covers the whole run.
func (i *instrumented) tap(op string, start time.Time, p *protocols.Progress) *protocols.Progress {
	return p.Tap(
		func(model.FileModel) { metrics.RecordArchiveEntry(op) },
		func(err error) { i.observe(op, start, err) },
	)
}

func (i *instrumented) UUID() string { return i.next.UUID() }

func (i *instrumented) Capabilities() protocols.Capabilities { return i.next.Capabilities() }

func (i *instrumented) Ping(ctx context.Context) error {
	start := time.Now()
	err := i.next.Ping(ctx)
	i.observe("ping", start, err)
	return err
}

func (i *instrumented) ListFiles(ctx context.Context, parent model.FileModel) ([]model.FileModel, error) {
	start := time.Now()
	files, err := i.next.ListFiles(ctx, parent)
	i.observe("list", start, err)
	return files, err
}

func (i *instrumented) CreateFile(ctx context.Context, file model.FileModel) error {
	start := time.Now()
	err := i.next.CreateFile(ctx, file)
	i.observe("create", start, err)
	return err
}

func (i *instrumented) RenameFile(ctx context.Context, source model.FileModel, newName string) (model.FileModel, error) {
	start := time.Now()
	renamed, err := i.next.RenameFile(ctx, source, newName)
	i.observe("rename", start, err)
	return renamed, err
}

func (i *instrumented) DeleteFile(ctx context.Context, file model.FileModel) error {
	start := time.Now()
	err := i.next.DeleteFile(ctx, file)
	i.observe("delete", start, err)
	return err
}

func (i *instrumented) CopyFile(ctx context.Context, source, destDir model.FileModel) (model.FileModel, error) {
	start := time.Now()
	copied, err := i.next.CopyFile(ctx, source, destDir)
	i.observe("copy", start, err)
	return copied, err
}

func (i *instrumented) CompressFiles(ctx context.Context, sources []model.FileModel, dest model.FileModel) (*protocols.Progress, error) {
	start := time.Now()
	p, err := i.next.CompressFiles(ctx, sources, dest)
	if err != nil {
		i.observe("compress", start, err)
		return nil, err
	}
	return i.tap("compress", start, p), nil
}

func (i *instrumented) ExtractFiles(ctx context.Context, source, destDir model.FileModel) (*protocols.Progress, error) {
	start := time.Now()
	p, err := i.next.ExtractFiles(ctx, source, destDir)
	if err != nil {
		i.observe("extract", start, err)
		return nil, err
	}
	return i.tap("extract", start, p), nil
}

func (i *instrumented) LoadFile(ctx context.Context, file model.FileModel, params model.FileParams) (string, error) {
	start := time.Now()
	text, err := i.next.LoadFile(ctx, file, params)
	i.observe("load", start, err)
	return text, err
}

func (i *instrumented) SaveFile(ctx context.Context, file model.FileModel, text string, params model.FileParams) error {
	start := time.Now()
	err := i.next.SaveFile(ctx, file, text, params)
	i.observe("save", start, err)
	return err
}
