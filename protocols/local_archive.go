package protocols

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zip"
	"go.uber.org/zap"

	"editorfs/model"
)

// zipExtensions are the archive formats the local backend reads and writes.
var zipExtensions = []string{".zip", ".jar"}

const zipFlagEncrypted = 0x1

var (
	// Multi-volume archives start with a spanning marker instead of a local header.
	spanSignature       = []byte("PK\x07\x08")
	spanSignatureLegacy = []byte("PK00")
)

func isZipArchive(p string) bool {
	ext := strings.ToLower(filepath.Ext(p))
	for _, e := range zipExtensions {
		if ext == e {
			return true
		}
	}
	return false
}

func (l *LocalFilesystem) CompressFiles(ctx context.Context, sources []model.FileModel, dest model.FileModel) (*Progress, error) {
	archive := localPath(dest)
	if !isZipArchive(archive) {
		return nil, &ArchiveError{Path: archive, Err: ErrUnsupportedArchive}
	}
	if _, err := os.Lstat(archive); err == nil {
		return nil, &FileAlreadyExistsError{Path: archive}
	}
	for _, src := range sources {
		if _, err := statLocal(localPath(src)); err != nil {
			return nil, err
		}
	}

	dir := filepath.Dir(archive)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	// Entries are written to a hidden sibling that only becomes the archive
	// once every source has been added.
	partial := filepath.Join(dir, "."+filepath.Base(archive)+"-"+uuid.NewString()+".part")
	out, err := os.OpenFile(partial, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}

	logger := l.logger.With(zap.String("archive", archive))
	return startProgress(ctx, func(ctx context.Context, emit emitFunc) error {
		err := writeArchive(ctx, out, partial, sources, emit)
		if err == nil {
			if _, statErr := os.Lstat(archive); statErr == nil {
				err = &FileAlreadyExistsError{Path: archive}
			} else {
				err = os.Rename(partial, archive)
			}
		}
		if err != nil {
			os.Remove(partial)
			logger.Debug("compress stopped", zap.Error(err))
			return err
		}
		logger.Info("archive created", zap.Int("sources", len(sources)))
		return nil
	}), nil
}

func writeArchive(ctx context.Context, out *os.File, skip string, sources []model.FileModel, emit emitFunc) error {
	zw := zip.NewWriter(out)
	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		p := localPath(src)
		if err := addToArchive(ctx, zw, p, skip); err != nil {
			zw.Close()
			out.Close()
			return err
		}
		info, err := os.Lstat(p)
		if err != nil {
			zw.Close()
			out.Close()
			return err
		}
		if !emit(localFileModel(p, info)) {
			zw.Close()
			out.Close()
			return ctx.Err()
		}
	}
	if err := zw.Close(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

// addToArchive stores root and, for directories, everything below it under
// names relative to root's parent.
func addToArchive(ctx context.Context, zw *zip.Writer, root, skip string) error {
	base := filepath.Dir(root)
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p == skip {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			return nil
		}

		rel, err := filepath.Rel(base, p)
		if err != nil {
			return err
		}
		header, err := zip.FileInfoHeader(info)
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			header.Name += "/"
			header.Method = zip.Store
			_, err = zw.CreateHeader(header)
			return err
		}
		header.Method = zip.Deflate

		w, err := zw.CreateHeader(header)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(w, ctxReader{ctx: ctx, r: f})
		return err
	})
}

// validateArchive opens source after checking, in order, that it is a
// supported format, not split into volumes, readable and not encrypted.
func validateArchive(source string) (*zip.ReadCloser, error) {
	if !isZipArchive(source) {
		return nil, &ArchiveError{Path: source, Err: ErrUnsupportedArchive}
	}

	split, err := isSplitArchive(source)
	if err != nil {
		return nil, err
	}
	if split {
		return nil, &ArchiveError{Path: source, Err: ErrSplitArchive}
	}

	rc, err := zip.OpenReader(source)
	if err != nil {
		return nil, &ArchiveError{Path: source, Err: fmt.Errorf("%w: %v", ErrInvalidArchive, err)}
	}

	for _, f := range rc.File {
		if f.Flags&zipFlagEncrypted != 0 {
			rc.Close()
			return nil, &ArchiveError{Path: source, Err: ErrEncryptedArchive}
		}
	}
	for _, f := range rc.File {
		if !filepath.IsLocal(filepath.FromSlash(strings.TrimSuffix(f.Name, "/"))) {
			rc.Close()
			return nil, &ArchiveError{Path: source, Err: fmt.Errorf("%w: unsafe entry %q", ErrInvalidArchive, f.Name)}
		}
	}
	return rc, nil
}

func isSplitArchive(source string) (bool, error) {
	volume := strings.TrimSuffix(source, filepath.Ext(source)) + ".z01"
	if _, err := os.Stat(volume); err == nil {
		return true, nil
	}

	f, err := os.Open(source)
	if err != nil {
		return false, err
	}
	defer f.Close()

	head := make([]byte, 4)
	if _, err := io.ReadFull(f, head); err != nil {
		// Too short to be a zip; let the reader report it as invalid.
		return false, nil
	}
	return bytes.Equal(head, spanSignature) || bytes.Equal(head, spanSignatureLegacy), nil
}

func (l *LocalFilesystem) ExtractFiles(ctx context.Context, source, destDir model.FileModel) (*Progress, error) {
	src := localPath(source)
	dest := localPath(destDir)

	if _, err := statLocal(src); err != nil {
		return nil, err
	}
	rc, err := validateArchive(src)
	if err != nil {
		return nil, err
	}
	if info, err := os.Stat(dest); err == nil && !info.IsDir() {
		rc.Close()
		return nil, &DirectoryExpectedError{Path: dest}
	}

	logger := l.logger.With(zap.String("archive", src), zap.String("dest", dest))
	return startProgress(ctx, func(ctx context.Context, emit emitFunc) error {
		defer rc.Close()

		j := &extractJournal{created: make(map[string]bool)}
		err := extractEntries(ctx, rc.File, dest, j, emit)
		if err != nil {
			j.rollback()
			logger.Debug("extract stopped",
				zap.Int("rolled_back", len(j.order)),
				zap.Int("restored", len(j.backups)),
				zap.Error(err))
			return err
		}
		j.commit()
		logger.Info("archive extracted", zap.Int("entries", len(rc.File)))
		return nil
	}), nil
}

// extractJournal tracks what one extraction changed in the destination:
// paths it created and pre-existing files it moved aside before replacing.
type extractJournal struct {
	order   []string
	created map[string]bool
	backups []extractBackup
}

type extractBackup struct {
	target string
	saved  string
}

func (j *extractJournal) add(paths ...string) {
	for _, p := range paths {
		if !j.created[p] {
			j.created[p] = true
			j.order = append(j.order, p)
		}
	}
}

// rollback removes created paths innermost first, then puts every displaced
// file back where it was.
func (j *extractJournal) rollback() {
	for i := len(j.order) - 1; i >= 0; i-- {
		os.RemoveAll(j.order[i])
	}
	for i := len(j.backups) - 1; i >= 0; i-- {
		b := j.backups[i]
		os.Rename(b.saved, b.target)
	}
}

func (j *extractJournal) commit() {
	for _, b := range j.backups {
		os.Remove(b.saved)
	}
}

// displace moves an existing entry at target aside so the extracted file can
// be created fresh. Renaming moves a symlink itself, never what it points to.
func (j *extractJournal) displace(target string) error {
	info, err := os.Lstat(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	if j.created[target] {
		return os.Remove(target)
	}
	if info.IsDir() {
		return &FileAlreadyExistsError{Path: target}
	}
	saved := filepath.Join(filepath.Dir(target), "."+filepath.Base(target)+"-"+uuid.NewString()+".orig")
	if err := os.Rename(target, saved); err != nil {
		return err
	}
	j.backups = append(j.backups, extractBackup{target: target, saved: saved})
	return nil
}

func extractEntries(ctx context.Context, files []*zip.File, dest string, j *extractJournal, emit emitFunc) error {
	created, err := mkdirAllTracked(dest)
	j.add(created...)
	if err != nil {
		return err
	}

	for _, zf := range files {
		if err := ctx.Err(); err != nil {
			return err
		}
		target := filepath.Join(dest, filepath.FromSlash(zf.Name))
		if err := checkNoSymlinks(dest, target); err != nil {
			return err
		}

		if zf.FileInfo().IsDir() {
			created, err := mkdirAllTracked(target)
			j.add(created...)
			if err != nil {
				return err
			}
		} else {
			created, err := mkdirAllTracked(filepath.Dir(target))
			j.add(created...)
			if err != nil {
				return err
			}
			if err := j.displace(target); err != nil {
				return err
			}
			err = extractFile(ctx, zf, target)
			if err == nil || !errors.Is(err, fs.ErrExist) {
				j.add(target)
			}
			if err != nil {
				return err
			}
		}

		info, err := os.Lstat(target)
		if err != nil {
			return err
		}
		if !emit(localFileModel(target, info)) {
			return ctx.Err()
		}
	}
	return nil
}

// checkNoSymlinks rejects a target whose existing components below dest
// include a symlink, since writing through it could land outside dest.
func checkNoSymlinks(dest, target string) error {
	rel, err := filepath.Rel(dest, filepath.Dir(target))
	if err != nil {
		return err
	}
	if rel == "." {
		return nil
	}
	p := dest
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		p = filepath.Join(p, part)
		info, err := os.Lstat(p)
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		if err != nil {
			return err
		}
		if info.Mode()&fs.ModeSymlink != 0 {
			return &ArchiveError{Path: target, Err: fmt.Errorf("%w: entry passes through symlink %s", ErrInvalidArchive, p)}
		}
	}
	return nil
}

func extractFile(ctx context.Context, zf *zip.File, target string) error {
	in, err := zf.Open()
	if err != nil {
		return &ArchiveError{Path: zf.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArchive, err)}
	}
	defer in.Close()

	perm := zf.Mode().Perm()
	if perm == 0 {
		perm = 0o644
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, perm)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		if errors.Is(err, zip.ErrChecksum) || errors.Is(err, zip.ErrFormat) {
			return &ArchiveError{Path: zf.Name, Err: fmt.Errorf("%w: %v", ErrInvalidArchive, err)}
		}
		return err
	}
	return out.Close()
}

// mkdirAllTracked creates dir and returns the directories that did not exist
// before, outermost first.
func mkdirAllTracked(dir string) ([]string, error) {
	var missing []string
	for p := dir; ; p = filepath.Dir(p) {
		if _, err := os.Lstat(p); err == nil {
			break
		}
		missing = append([]string{p}, missing...)
		if parent := filepath.Dir(p); parent == p {
			break
		}
	}
	if len(missing) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return missing, nil
}
