package protocols

import (
	"errors"
	"fmt"
	"io/fs"

	"editorfs/model"
)

var (
	ErrUnsupportedOperation = errors.New("operation not supported")
	ErrSelfCopy             = errors.New("cannot copy a directory into itself")

	ErrEncryptedArchive   = errors.New("archive is encrypted")
	ErrSplitArchive       = errors.New("archive is split into volumes")
	ErrInvalidArchive     = errors.New("archive is invalid")
	ErrUnsupportedArchive = errors.New("archive format is not supported")
)

// ConnectionError means the control channel or session never came up.
type ConnectionError struct {
	Addr string
	Err  error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connect %s: %v", e.Addr, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// AuthRequiredError means a credential was missing before any network attempt.
type AuthRequiredError struct {
	Method model.AuthMethod
}

func (e *AuthRequiredError) Error() string {
	return fmt.Sprintf("authentication required: %s", e.Method)
}

// AuthenticationError means the server was reached but rejected the credentials.
type AuthenticationError struct {
	Method model.AuthMethod
	Err    error
}

func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Method, e.Err)
}

func (e *AuthenticationError) Unwrap() error { return e.Err }

type FileNotFoundError struct {
	Path string
}

func (e *FileNotFoundError) Error() string {
	return fmt.Sprintf("file not found: %s", e.Path)
}

func (e *FileNotFoundError) Is(target error) bool { return target == fs.ErrNotExist }

type FileAlreadyExistsError struct {
	Path string
}

func (e *FileAlreadyExistsError) Error() string {
	return fmt.Sprintf("file already exists: %s", e.Path)
}

func (e *FileAlreadyExistsError) Is(target error) bool { return target == fs.ErrExist }

type DirectoryExpectedError struct {
	Path string
}

func (e *DirectoryExpectedError) Error() string {
	return fmt.Sprintf("not a directory: %s", e.Path)
}

// RenameFileError covers every rename failure other than an existing target.
type RenameFileError struct {
	Path string
	Err  error
}

func (e *RenameFileError) Error() string {
	return fmt.Sprintf("rename %s: %v", e.Path, e.Err)
}

func (e *RenameFileError) Unwrap() error { return e.Err }

// ArchiveError carries one of the archive sentinels together with the path.
type ArchiveError struct {
	Path string
	Err  error
}

func (e *ArchiveError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *ArchiveError) Unwrap() error { return e.Err }

func unsupported(op string) error {
	return fmt.Errorf("%s: %w", op, ErrUnsupportedOperation)
}

// PathError records an error and the operation and path that caused it.
type PathError struct {
	Op   string
	Path string
	Err  error
}

func (e *PathError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *PathError) Unwrap() error { return e.Err }
