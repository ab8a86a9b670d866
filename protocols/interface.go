// Package protocols implements the filesystem backends: the local disk, the
// FTP family (plain, implicit and explicit TLS) and SFTP.
//
// Known gap: FTP entries report no permission bits. jlaffaye/ftp parses the
// LIST and MLSD replies into ftp.Entry, which keeps no UNIX mode and no MLSD
// perm or UNIX.mode facts, so ftpFileModel has nothing to translate.
package protocols

import (
	"context"

	"editorfs/model"
)

// Capabilities reports which optional operations a backend implements.
// Calling an operation reported false fails with ErrUnsupportedOperation.
type Capabilities struct {
	Copy     bool
	Compress bool
	Extract  bool
}

// Filesystem is the contract shared by the local, FTP family and SFTP
// backends. Remote backends open a connection at the start of every call and
// close it before returning, so an instance must not be used by two
// goroutines at once.
type Filesystem interface {
	// UUID identifies the backend in FileModel.FilesystemUUID.
	UUID() string
	Capabilities() Capabilities

	// Ping verifies reachability and credentials.
	Ping(ctx context.Context) error
	// ListFiles returns the direct children of parent in backend order.
	ListFiles(ctx context.Context, parent model.FileModel) ([]model.FileModel, error)
	// CreateFile creates an empty file or directory, including missing parents.
	CreateFile(ctx context.Context, file model.FileModel) error
	RenameFile(ctx context.Context, source model.FileModel, newName string) (model.FileModel, error)
	// DeleteFile removes file recursively.
	DeleteFile(ctx context.Context, file model.FileModel) error
	CopyFile(ctx context.Context, source, destDir model.FileModel) (model.FileModel, error)
	CompressFiles(ctx context.Context, sources []model.FileModel, dest model.FileModel) (*Progress, error)
	ExtractFiles(ctx context.Context, source, destDir model.FileModel) (*Progress, error)
	LoadFile(ctx context.Context, file model.FileModel, params model.FileParams) (string, error)
	SaveFile(ctx context.Context, file model.FileModel, text string, params model.FileParams) error
}
