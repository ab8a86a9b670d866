package protocols

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"editorfs/charset"
	"editorfs/logging"
	"editorfs/model"
)

// DefaultSFTPConnectTimeout bounds the TCP connect and SSH handshake.
const DefaultSFTPConnectTimeout = 30 * time.Second

type SFTPOptions struct {
	CacheDir string
	// KeysDir holds private keys named by ServerConfig.KeyID.
	KeysDir        string
	ConnectTimeout time.Duration
	Logger         *zap.Logger
}

// SFTPFilesystem serves an SSH server through an SFTP channel. Every call
// opens the session and channel and closes both before returning.
type SFTPFilesystem struct {
	server  model.ServerConfig
	opts    SFTPOptions
	logger  *zap.Logger
	client  *sftp.Client
	sshConn *ssh.Client
}

func NewSFTPFilesystem(server model.ServerConfig, opts SFTPOptions) *SFTPFilesystem {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultSFTPConnectTimeout
	}
	return &SFTPFilesystem{
		server: server,
		opts:   opts,
		logger: logging.Named(opts.Logger, "sftp").With(zap.String("server", server.UUID)),
	}
}

func (s *SFTPFilesystem) UUID() string { return s.server.UUID }

func (s *SFTPFilesystem) Capabilities() Capabilities { return Capabilities{} }

// authMethods resolves credentials without touching the network.
func (s *SFTPFilesystem) authMethods() ([]ssh.AuthMethod, error) {
	switch s.server.AuthMethod {
	case model.AuthKey:
		if s.server.Passphrase == nil {
			return nil, &AuthRequiredError{Method: model.AuthKey}
		}
		signer, err := s.loadKey(*s.server.Passphrase)
		if err != nil {
			return nil, err
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil

	case model.AuthPassword, "":
		if s.server.Password == nil {
			return nil, &AuthRequiredError{Method: model.AuthPassword}
		}
		return []ssh.AuthMethod{ssh.Password(*s.server.Password)}, nil
	}
	return nil, unsupported(fmt.Sprintf("sftp %s authentication", s.server.AuthMethod))
}

func (s *SFTPFilesystem) keyPath() (string, error) {
	if s.server.KeyID == nil || *s.server.KeyID == "" {
		return "", &FileNotFoundError{Path: s.opts.KeysDir}
	}
	id := *s.server.KeyID
	if id != filepath.Base(id) || !IsValidFileName(id) {
		return "", &FileNotFoundError{Path: filepath.Join(s.opts.KeysDir, id)}
	}
	return filepath.Join(s.opts.KeysDir, id), nil
}

func (s *SFTPFilesystem) loadKey(passphrase string) (ssh.Signer, error) {
	keyFile, err := s.keyPath()
	if err != nil {
		return nil, err
	}
	pem, err := os.ReadFile(keyFile)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, &FileNotFoundError{Path: keyFile}
	}
	if err != nil {
		return nil, err
	}

	signer, err := ssh.ParsePrivateKey(pem)
	var missing *ssh.PassphraseMissingError
	if errors.As(err, &missing) {
		signer, err = ssh.ParsePrivateKeyWithPassphrase(pem, []byte(passphrase))
		if err != nil {
			return nil, &AuthRequiredError{Method: model.AuthKey}
		}
		return signer, nil
	}
	if err != nil {
		return nil, fmt.Errorf("parse key %s: %w", keyFile, err)
	}
	return signer, nil
}

func (s *SFTPFilesystem) connect(ctx context.Context) error {
	auth, err := s.authMethods()
	if err != nil {
		return err
	}

	config := &ssh.ClientConfig{
		User:            s.server.Username,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         s.opts.ConnectTimeout,
	}

	addr := s.server.Addr()
	dialer := net.Dialer{Timeout: s.opts.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}
	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	} else {
		conn.SetDeadline(time.Now().Add(s.opts.ConnectTimeout))
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		if strings.Contains(err.Error(), "unable to authenticate") {
			return &AuthenticationError{Method: s.server.AuthMethod, Err: err}
		}
		return &ConnectionError{Addr: addr, Err: err}
	}
	conn.SetDeadline(time.Time{})
	sshConn := ssh.NewClient(c, chans, reqs)

	client, err := sftp.NewClient(sshConn)
	if err != nil {
		sshConn.Close()
		return &ConnectionError{Addr: addr, Err: fmt.Errorf("failed to create sftp client: %w", err)}
	}

	s.sshConn = sshConn
	s.client = client
	s.logger.Debug("connected", zap.String("addr", addr))
	return nil
}

func (s *SFTPFilesystem) disconnect() {
	var errs *multierror.Error
	if s.client != nil {
		if err := s.client.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		s.client = nil
	}
	if s.sshConn != nil {
		if err := s.sshConn.Close(); err != nil {
			errs = multierror.Append(errs, err)
		}
		s.sshConn = nil
	}
	if err := errs.ErrorOrNil(); err != nil {
		s.logger.Debug("disconnect failed", zap.Error(err))
	}
}

// withClient runs fn on a fresh session that is closed on every exit path.
func (s *SFTPFilesystem) withClient(ctx context.Context, fn func(c *sftp.Client) error) error {
	if err := s.connect(ctx); err != nil {
		return err
	}
	defer s.disconnect()
	return fn(s.client)
}

func sftpStat(c *sftp.Client, p string) (os.FileInfo, error) {
	info, err := c.Stat(p)
	return info, sftpNotFound(p, err)
}

// sftpLstat does not follow a symlink at p.
func sftpLstat(c *sftp.Client, p string) (os.FileInfo, error) {
	info, err := c.Lstat(p)
	return info, sftpNotFound(p, err)
}

func sftpNotFound(p string, err error) error {
	if errors.Is(err, fs.ErrNotExist) {
		return &FileNotFoundError{Path: p}
	}
	return err
}

func (s *SFTPFilesystem) Ping(ctx context.Context) error {
	return s.withClient(ctx, func(c *sftp.Client) error {
		_, err := c.Getwd()
		return err
	})
}

func (s *SFTPFilesystem) ListFiles(ctx context.Context, parent model.FileModel) ([]model.FileModel, error) {
	var files []model.FileModel
	err := s.withClient(ctx, func(c *sftp.Client) error {
		info, err := sftpStat(c, parent.Path())
		if err != nil {
			return err
		}
		if !info.IsDir() {
			return &DirectoryExpectedError{Path: parent.Path()}
		}

		entries, err := c.ReadDir(parent.Path())
		if err != nil {
			return err
		}
		files = make([]model.FileModel, 0, len(entries))
		for _, entry := range entries {
			if !IsValidFileName(entry.Name()) {
				continue
			}
			files = append(files, sftpFileModel(entry, parent))
		}
		return nil
	})
	return files, err
}

func (s *SFTPFilesystem) CreateFile(ctx context.Context, file model.FileModel) error {
	p := file.Path()
	return s.withClient(ctx, func(c *sftp.Client) error {
		if _, err := c.Lstat(p); err == nil {
			return &FileAlreadyExistsError{Path: p}
		}
		if file.IsDirectory {
			return c.MkdirAll(p)
		}
		if err := c.MkdirAll(path.Dir(p)); err != nil {
			return err
		}
		f, err := c.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY)
		if err != nil {
			return err
		}
		return f.Close()
	})
}

func (s *SFTPFilesystem) RenameFile(ctx context.Context, source model.FileModel, newName string) (model.FileModel, error) {
	src := source.Path()
	if !IsValidFileName(newName) {
		return model.FileModel{}, &RenameFileError{Path: src, Err: fmt.Errorf("invalid file name %q", newName)}
	}
	dst := path.Join(path.Dir(src), newName)
	if dst == src {
		return model.FileModel{}, &FileAlreadyExistsError{Path: dst}
	}

	var renamed model.FileModel
	err := s.withClient(ctx, func(c *sftp.Client) error {
		if _, err := sftpLstat(c, src); err != nil {
			return err
		}
		if _, err := c.Lstat(dst); err == nil {
			return &FileAlreadyExistsError{Path: dst}
		}
		if err := c.Rename(src, dst); err != nil {
			return &RenameFileError{Path: src, Err: err}
		}
		info, err := c.Lstat(dst)
		if err != nil {
			return &RenameFileError{Path: dst, Err: err}
		}
		renamed = sftpFileModel(info, source.Parent())
		return nil
	})
	return renamed, err
}

func (s *SFTPFilesystem) DeleteFile(ctx context.Context, file model.FileModel) error {
	p := file.Path()
	return s.withClient(ctx, func(c *sftp.Client) error {
		info, err := sftpLstat(c, p)
		if err != nil {
			return err
		}
		if info.IsDir() {
			return sftpRemoveAll(c, p)
		}
		// Symlinks are removed themselves, never their targets.
		return c.Remove(p)
	})
}

// sftpRemoveAll recursively removes a directory and its contents. Listing
// entries are not followed, so a symlinked directory below dir is unlinked.
func sftpRemoveAll(c *sftp.Client, dir string) error {
	entries, err := c.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		entryPath := path.Join(dir, entry.Name())
		if entry.IsDir() {
			if err := sftpRemoveAll(c, entryPath); err != nil {
				return err
			}
		} else if err := c.Remove(entryPath); err != nil {
			return err
		}
	}
	return c.RemoveDirectory(dir)
}

func (s *SFTPFilesystem) CopyFile(ctx context.Context, source, destDir model.FileModel) (model.FileModel, error) {
	return model.FileModel{}, unsupported("sftp copy")
}

func (s *SFTPFilesystem) CompressFiles(ctx context.Context, sources []model.FileModel, dest model.FileModel) (*Progress, error) {
	return nil, unsupported("sftp compress")
}

func (s *SFTPFilesystem) ExtractFiles(ctx context.Context, source, destDir model.FileModel) (*Progress, error) {
	return nil, unsupported("sftp extract")
}

func (s *SFTPFilesystem) LoadFile(ctx context.Context, file model.FileModel, params model.FileParams) (string, error) {
	var text string
	err := s.withClient(ctx, func(c *sftp.Client) error {
		tmp, cleanup, err := openTempFile(s.opts.CacheDir, s.logger)
		if err != nil {
			return err
		}
		defer cleanup()

		remote, err := c.Open(file.Path())
		if errors.Is(err, fs.ErrNotExist) {
			return &FileNotFoundError{Path: file.Path()}
		}
		if err != nil {
			return err
		}
		_, err = io.Copy(tmp, remote)
		if closeErr := remote.Close(); err == nil {
			err = closeErr
		}
		if err != nil {
			return err
		}
		if err := rewind(tmp); err != nil {
			return err
		}

		text, err = charset.Load(tmp, params)
		return err
	})
	return text, err
}

func (s *SFTPFilesystem) SaveFile(ctx context.Context, file model.FileModel, text string, params model.FileParams) error {
	return s.withClient(ctx, func(c *sftp.Client) error {
		tmp, cleanup, err := openTempFile(s.opts.CacheDir, s.logger)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := charset.Save(tmp, text, params); err != nil {
			return err
		}
		if err := rewind(tmp); err != nil {
			return err
		}

		remote, err := c.Create(file.Path())
		if err != nil {
			return err
		}
		_, err = io.Copy(remote, tmp)
		if closeErr := remote.Close(); err == nil {
			err = closeErr
		}
		return err
	})
}
