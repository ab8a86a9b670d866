package protocols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"editorfs/charset"
	"editorfs/logging"
	"editorfs/model"
)

// LocalFilesystem serves the host filesystem. It holds no connection state.
type LocalFilesystem struct {
	logger *zap.Logger
}

func NewLocalFilesystem(logger *zap.Logger) *LocalFilesystem {
	return &LocalFilesystem{logger: logging.Named(logger, "local")}
}

func (l *LocalFilesystem) UUID() string { return model.LocalFilesystemUUID }

func (l *LocalFilesystem) Capabilities() Capabilities {
	return Capabilities{Copy: true, Compress: true, Extract: true}
}

func (l *LocalFilesystem) Ping(ctx context.Context) error {
	return nil
}

func localPath(f model.FileModel) string {
	return filepath.FromSlash(f.Path())
}

// localFileModel maps a stat result. Only the owner bits are filled since the
// host gives the application no group/other distinction.
func localFileModel(p string, info os.FileInfo) model.FileModel {
	var access model.Access
	access[model.UserAccess] = model.AccessFromMode(info.Mode())[model.UserAccess]

	return model.FileModel{
		FileURI:        model.LocalScheme + filepath.ToSlash(p),
		FilesystemUUID: model.LocalFilesystemUUID,
		Size:           info.Size(),
		LastModified:   info.ModTime().UnixMilli(),
		IsDirectory:    info.IsDir(),
		Permission:     access.Permission(),
	}
}

func statLocal(p string) (os.FileInfo, error) {
	info, err := os.Stat(p)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &FileNotFoundError{Path: p}
	}
	return info, err
}

func (l *LocalFilesystem) ListFiles(ctx context.Context, parent model.FileModel) ([]model.FileModel, error) {
	dir := localPath(parent)
	info, err := statLocal(dir)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, &DirectoryExpectedError{Path: dir}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]model.FileModel, 0, len(entries))
	for _, entry := range entries {
		if !IsValidFileName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			l.logger.Debug("skipping entry", zap.String("name", entry.Name()), zap.Error(err))
			continue
		}
		files = append(files, localFileModel(filepath.Join(dir, entry.Name()), info))
	}
	return files, nil
}

func (l *LocalFilesystem) CreateFile(ctx context.Context, file model.FileModel) error {
	p := localPath(file)
	if _, err := os.Lstat(p); err == nil {
		return &FileAlreadyExistsError{Path: p}
	}

	if file.IsDirectory {
		return os.MkdirAll(p, 0o755)
	}

	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return &FileAlreadyExistsError{Path: p}
		}
		return err
	}
	return f.Close()
}

func (l *LocalFilesystem) RenameFile(ctx context.Context, source model.FileModel, newName string) (model.FileModel, error) {
	src := localPath(source)
	if !IsValidFileName(newName) {
		return model.FileModel{}, &RenameFileError{Path: src, Err: fmt.Errorf("invalid file name %q", newName)}
	}
	srcInfo, err := os.Lstat(src)
	if errors.Is(err, fs.ErrNotExist) {
		return model.FileModel{}, &FileNotFoundError{Path: src}
	}
	if err != nil {
		return model.FileModel{}, &RenameFileError{Path: src, Err: err}
	}

	dst := filepath.Join(filepath.Dir(src), newName)
	if dst == src {
		return model.FileModel{}, &FileAlreadyExistsError{Path: dst}
	}

	if dstInfo, err := os.Lstat(dst); err == nil {
		// On a case-insensitive volume a case-only rename resolves to the source itself.
		if !strings.EqualFold(src, dst) || !os.SameFile(srcInfo, dstInfo) {
			return model.FileModel{}, &FileAlreadyExistsError{Path: dst}
		}
	}

	if strings.EqualFold(src, dst) {
		err = renameViaTemp(src, dst)
	} else {
		err = os.Rename(src, dst)
	}
	if err != nil {
		return model.FileModel{}, &RenameFileError{Path: src, Err: err}
	}

	info, err := os.Lstat(dst)
	if err != nil {
		return model.FileModel{}, &RenameFileError{Path: dst, Err: err}
	}
	return localFileModel(dst, info), nil
}

// renameViaTemp performs a case-only rename in two steps so that
// case-insensitive volumes pick up the new spelling.
func renameViaTemp(src, dst string) error {
	tmp := filepath.Join(filepath.Dir(src), "."+filepath.Base(dst)+"-"+uuid.NewString())
	if err := os.Rename(src, tmp); err != nil {
		return err
	}
	if err := os.Rename(tmp, dst); err != nil {
		if rbErr := os.Rename(tmp, src); rbErr != nil {
			return fmt.Errorf("%w (rollback: %v)", err, rbErr)
		}
		return err
	}
	return nil
}

// DeleteFile removes file and its contents. Deleting a missing file succeeds.
func (l *LocalFilesystem) DeleteFile(ctx context.Context, file model.FileModel) error {
	return os.RemoveAll(localPath(file))
}

func (l *LocalFilesystem) CopyFile(ctx context.Context, source, destDir model.FileModel) (model.FileModel, error) {
	src := localPath(source)
	dir := localPath(destDir)

	srcInfo, err := statLocal(src)
	if err != nil {
		return model.FileModel{}, err
	}
	dirInfo, err := statLocal(dir)
	if err != nil {
		return model.FileModel{}, err
	}
	if !dirInfo.IsDir() {
		return model.FileModel{}, &DirectoryExpectedError{Path: dir}
	}
	if srcInfo.IsDir() && isWithin(src, dir) {
		return model.FileModel{}, &PathError{Op: "copy", Path: dir, Err: ErrSelfCopy}
	}

	target := filepath.Join(dir, filepath.Base(src))
	if _, err := os.Lstat(target); err == nil {
		return model.FileModel{}, &FileAlreadyExistsError{Path: target}
	}

	if err := copyTree(ctx, src, target); err != nil {
		os.RemoveAll(target)
		return model.FileModel{}, err
	}

	info, err := os.Lstat(target)
	if err != nil {
		return model.FileModel{}, err
	}
	return localFileModel(target, info), nil
}

// isWithin reports whether p is root or lies below it once symlinks in
// both paths are resolved.
func isWithin(root, p string) bool {
	realRoot, err1 := resolvePath(root)
	realP, err2 := resolvePath(p)
	if err1 != nil || err2 != nil {
		return false
	}
	rel, err := filepath.Rel(realRoot, realP)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func resolvePath(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", err
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		return real, nil
	}
	return abs, nil
}

func copyTree(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Lstat(src)
	if err != nil {
		return err
	}

	switch {
	case info.Mode()&os.ModeSymlink != 0:
		link, err := os.Readlink(src)
		if err != nil {
			return err
		}
		return os.Symlink(link, dst)

	case info.IsDir():
		if err := os.MkdirAll(dst, info.Mode().Perm()); err != nil {
			return fmt.Errorf("failed to create destination directory: %w", err)
		}
		entries, err := os.ReadDir(src)
		if err != nil {
			return fmt.Errorf("failed to read source directory: %w", err)
		}
		for _, entry := range entries {
			if err := copyTree(ctx, filepath.Join(src, entry.Name()), filepath.Join(dst, entry.Name())); err != nil {
				return err
			}
		}
		return nil
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open source file: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create destination file: %w", err)
	}
	if _, err := io.Copy(out, ctxReader{ctx: ctx, r: in}); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy file contents: %w", err)
	}
	return out.Close()
}

func (l *LocalFilesystem) LoadFile(ctx context.Context, file model.FileModel, params model.FileParams) (string, error) {
	f, err := os.Open(localPath(file))
	if errors.Is(err, fs.ErrNotExist) {
		return "", &FileNotFoundError{Path: localPath(file)}
	}
	if err != nil {
		return "", err
	}
	defer f.Close()

	return charset.Load(f, params)
}

func (l *LocalFilesystem) SaveFile(ctx context.Context, file model.FileModel, text string, params model.FileParams) error {
	p := localPath(file)
	data, err := charset.Prepare(text, params)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, data, 0o644)
}
