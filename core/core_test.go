package core

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"editorfs/config"
	"editorfs/model"
	"editorfs/protocols"
)

// counterValue reads a counter from the default registry; absent series read as zero.
func counterValue(t *testing.T, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			if len(m.GetLabel()) != len(labels) {
				continue
			}
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

// histogramValue returns the sample count and sum of a histogram series.
func histogramValue(t *testing.T, name string, labels map[string]string) (uint64, float64) {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	next:
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if labels[lp.GetName()] != lp.GetValue() {
					continue next
				}
			}
			return m.GetHistogram().GetSampleCount(), m.GetHistogram().GetSampleSum()
		}
	}
	return 0, 0
}

func testConfig(t *testing.T) *config.Config {
	cfg := config.Default()
	cfg.CacheDir = t.TempDir()
	cfg.Servers = []model.ServerConfig{
		{UUID: "ftp-1", Scheme: model.SchemeFTPS, Address: "192.0.2.1", Username: "u"},
		{UUID: "sftp-1", Scheme: model.SchemeSFTP, Address: "192.0.2.1", Username: "u"},
	}
	return cfg
}

func TestFactoryResolve(t *testing.T) {
	f := NewFactory(testConfig(t), zap.NewNop())

	local, err := f.Resolve(model.LocalFilesystemUUID)
	require.NoError(t, err)
	assert.Same(t, f.Local(), local)
	assert.True(t, local.Capabilities().Compress)

	ftpFS, err := f.Resolve("ftp-1")
	require.NoError(t, err)
	assert.Equal(t, "ftp-1", ftpFS.UUID())
	assert.Equal(t, protocols.Capabilities{}, ftpFS.Capabilities())

	sftpFS, err := f.Resolve("sftp-1")
	require.NoError(t, err)
	assert.Equal(t, "sftp-1", sftpFS.UUID())

	_, err = f.Resolve("ghost")
	assert.Error(t, err)

	_, err = f.Open(model.ServerConfig{UUID: "x", Scheme: "gopher"})
	assert.Error(t, err)
}

func TestFactoryRemoteWithoutCredentials(t *testing.T) {
	f := NewFactory(testConfig(t), zap.NewNop())
	fsys, err := f.Resolve("sftp-1")
	require.NoError(t, err)

	err = fsys.Ping(context.Background())
	var required *protocols.AuthRequiredError
	assert.ErrorAs(t, err, &required)
}

func TestInstrumentRecords(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys := Instrument(protocols.NewLocalFilesystem(zap.NewNop()), zap.NewNop())

	counter := func(op, status string) float64 {
		return counterValue(t, "editorfs_operations_total", map[string]string{"backend": "local", "op": op, "status": status})
	}

	before := counter("create", "success")
	require.NoError(t, fsys.CreateFile(ctx, model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "a.txt")), false)))
	assert.Equal(t, before+1, counter("create", "success"))

	before = counter("list", "error")
	_, err := fsys.ListFiles(ctx, model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "none")), true))
	assert.Error(t, err)
	assert.Equal(t, before+1, counter("list", "error"))

	entriesBefore := counterValue(t, "editorfs_archive_entries_total", map[string]string{"op": "compress"})
	p, err := fsys.CompressFiles(ctx,
		[]model.FileModel{model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "a.txt")), false)},
		model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "a.zip")), false))
	require.NoError(t, err)
	for range p.C() {
	}
	require.NoError(t, p.Wait())
	assert.Equal(t, entriesBefore+1, counterValue(t, "editorfs_archive_entries_total", map[string]string{"op": "compress"}))
	assert.FileExists(t, filepath.Join(dir, "a.zip"))
}

func TestInstrumentArchiveDuration(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	fsys := Instrument(protocols.NewLocalFilesystem(zap.NewNop()), zap.NewNop())
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("alpha"), 0o644))

	counter := func(op, status string) float64 {
		return counterValue(t, "editorfs_operations_total", map[string]string{"backend": "local", "op": op, "status": status})
	}
	duration := map[string]string{"backend": "local", "op": "compress"}

	before := counter("compress", "success")
	countBefore, sumBefore := histogramValue(t, "editorfs_operation_duration_seconds", duration)

	p, err := fsys.CompressFiles(ctx,
		[]model.FileModel{model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "a.txt")), false)},
		model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "a.zip")), false))
	require.NoError(t, err)
	assert.Equal(t, before, counter("compress", "success"), "not observed while the task runs")

	// The task cannot finish before its only entry is read.
	time.Sleep(100 * time.Millisecond)
	for range p.C() {
	}
	require.NoError(t, p.Wait())

	assert.Equal(t, before+1, counter("compress", "success"))
	count, sum := histogramValue(t, "editorfs_operation_duration_seconds", duration)
	assert.Equal(t, countBefore+1, count)
	assert.GreaterOrEqual(t, sum-sumBefore, 0.1)

	t.Run("cancelled extract", func(t *testing.T) {
		for i := 0; i < 5; i++ {
			require.NoError(t, os.MkdirAll(filepath.Join(dir, "many"), 0o755))
			require.NoError(t, os.WriteFile(filepath.Join(dir, "many", fmt.Sprintf("f%d.txt", i)), []byte("x"), 0o644))
		}
		archive := model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "many.zip")), false)
		p, err := fsys.CompressFiles(ctx, []model.FileModel{model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "many")), true)}, archive)
		require.NoError(t, err)
		require.NoError(t, p.Wait())

		before := counter("extract", "canceled")
		p, err = fsys.ExtractFiles(ctx, archive, model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "out")), true))
		require.NoError(t, err)
		<-p.C()
		p.Cancel()
		require.NoError(t, p.Wait())
		assert.True(t, p.Canceled())
		assert.Equal(t, before+1, counter("extract", "canceled"))
	})

	t.Run("rejected before starting", func(t *testing.T) {
		before := counter("extract", "error")
		_, err := fsys.ExtractFiles(ctx,
			model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "a.txt")), false),
			model.NewLocalFile(filepath.ToSlash(filepath.Join(dir, "out")), true))
		assert.Error(t, err)
		assert.Equal(t, before+1, counter("extract", "error"))
	})
}

func TestInstrumentUnsupported(t *testing.T) {
	server := model.ServerConfig{UUID: "s", Scheme: model.SchemeSFTP, Address: "192.0.2.1"}
	fsys := Instrument(protocols.NewSFTPFilesystem(server, protocols.SFTPOptions{Logger: zap.NewNop()}), nil)

	before := counterValue(t, "editorfs_operations_total", map[string]string{"backend": "sftp", "op": "copy", "status": "unsupported"})
	root := server.RootModel()
	_, err := fsys.CopyFile(context.Background(), root, root)
	assert.ErrorIs(t, err, protocols.ErrUnsupportedOperation)
	assert.Equal(t, before+1, counterValue(t, "editorfs_operations_total", map[string]string{"backend": "sftp", "op": "copy", "status": "unsupported"}))
}

func TestJanitorSweep(t *testing.T) {
	dir := t.TempDir()
	now := time.Now()

	stale := filepath.Join(dir, "editorfs-old.tmp")
	fresh := filepath.Join(dir, "editorfs-new.tmp")
	foreign := filepath.Join(dir, "notes-old.tmp")
	for _, p := range []string{stale, fresh, foreign} {
		require.NoError(t, os.WriteFile(p, []byte("x"), 0o600))
	}
	old := now.Add(-48 * time.Hour)
	require.NoError(t, os.Chtimes(stale, old, old))
	require.NoError(t, os.Chtimes(foreign, old, old))

	j := NewJanitor(dir, 24*time.Hour, zap.NewNop())
	j.now = func() time.Time { return now }

	n, err := j.Sweep()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.NoFileExists(t, stale)
	assert.FileExists(t, fresh)
	assert.FileExists(t, foreign)

	missing := NewJanitor(filepath.Join(dir, "absent"), time.Hour, nil)
	n, err = missing.Sweep()
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestJanitorStart(t *testing.T) {
	j := NewJanitor(t.TempDir(), time.Hour, zap.NewNop())
	assert.Error(t, j.Start("not a cron spec"))

	require.NoError(t, j.Start("@every 1h"))
	<-j.Stop().Done()
}
