package model

import (
	"path"
	"strings"
)

const (
	// LocalScheme prefixes every FileURI served by the local filesystem.
	LocalScheme = "file://"
	// LocalFilesystemUUID identifies the local filesystem in FileModel.FilesystemUUID.
	LocalFilesystemUUID = "local"
)

// FileModel is a point-in-time snapshot of one file or directory. It is not a
// live handle: operations re-resolve the entry by its path.
type FileModel struct {
	FileURI        string
	FilesystemUUID string
	Size           int64
	LastModified   int64 // epoch millis
	IsDirectory    bool
	Permission     Permission
}

// NewLocalFile builds a FileModel for a local path without touching the disk.
func NewLocalFile(p string, isDir bool) FileModel {
	return FileModel{
		FileURI:        LocalScheme + p,
		FilesystemUUID: LocalFilesystemUUID,
		IsDirectory:    isDir,
	}
}

// Scheme returns the URI scheme without the "://" separator.
func (f FileModel) Scheme() string {
	if i := strings.Index(f.FileURI, "://"); i >= 0 {
		return f.FileURI[:i]
	}
	return ""
}

// Path returns the FileURI with its scheme prefix removed.
func (f FileModel) Path() string {
	if i := strings.Index(f.FileURI, "://"); i >= 0 {
		return f.FileURI[i+3:]
	}
	return f.FileURI
}

func (f FileModel) Name() string {
	p := strings.TrimRight(f.Path(), "/")
	if p == "" {
		return "/"
	}
	return path.Base(p)
}

// Ext returns the lower-cased extension including the leading dot.
func (f FileModel) Ext() string {
	return strings.ToLower(path.Ext(f.Name()))
}

func (f FileModel) Type() FileType {
	if f.IsDirectory {
		return TypeDefault
	}
	return TypeOf(f.Name())
}

// Child returns a model for name inside f, sharing its scheme and filesystem.
func (f FileModel) Child(name string, isDir bool) FileModel {
	return FileModel{
		FileURI:        f.Scheme() + "://" + path.Join(f.Path(), name),
		FilesystemUUID: f.FilesystemUUID,
		IsDirectory:    isDir,
	}
}

// Parent returns a directory model for the parent of f.
func (f FileModel) Parent() FileModel {
	dir := "/"
	if p := strings.TrimRight(f.Path(), "/"); p != "" {
		dir = path.Dir(p)
	}
	return FileModel{
		FileURI:        f.Scheme() + "://" + dir,
		FilesystemUUID: f.FilesystemUUID,
		IsDirectory:    true,
	}
}
