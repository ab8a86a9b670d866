package protocols

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"path"
	"time"

	"github.com/jlaffaye/ftp"
	"go.uber.org/zap"

	"editorfs/charset"
	"editorfs/logging"
	"editorfs/model"
)

// DefaultFTPConnectTimeout bounds the control channel connect.
const DefaultFTPConnectTimeout = 10 * time.Second

type FTPOptions struct {
	CacheDir       string
	ConnectTimeout time.Duration
	// TLSConfig is used for ftps (implicit) and ftpes (explicit). When nil a
	// verifying config for the server address is used.
	TLSConfig *tls.Config
	Logger    *zap.Logger
}

// FTPSFilesystem serves an FTP, FTPS or FTPES server. Every call connects,
// logs in, runs and quits.
type FTPSFilesystem struct {
	server model.ServerConfig
	opts   FTPOptions
	logger *zap.Logger
	dial   ftpDialer
	conn   ftpClient
}

// ftpClient is the part of *ftp.ServerConn the backend drives.
type ftpClient interface {
	Login(user, password string) error
	Quit() error
	NoOp() error
	ChangeDir(path string) error
	List(path string) ([]*ftp.Entry, error)
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Retr(path string) (io.ReadCloser, error)
	Rename(from, to string) error
	Delete(path string) error
	RemoveDirRecur(path string) error
}

type ftpDialer func(addr string, options ...ftp.DialOption) (ftpClient, error)

type ftpServerConn struct {
	*ftp.ServerConn
}

func (c ftpServerConn) Retr(path string) (io.ReadCloser, error) {
	resp, err := c.ServerConn.Retr(path)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func dialFTP(addr string, options ...ftp.DialOption) (ftpClient, error) {
	c, err := ftp.Dial(addr, options...)
	if err != nil {
		return nil, err
	}
	return ftpServerConn{c}, nil
}

func NewFTPSFilesystem(server model.ServerConfig, opts FTPOptions) *FTPSFilesystem {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = DefaultFTPConnectTimeout
	}
	return &FTPSFilesystem{
		server: server,
		opts:   opts,
		logger: logging.Named(opts.Logger, "ftp").With(zap.String("server", server.UUID)),
		dial:   dialFTP,
	}
}

func (f *FTPSFilesystem) UUID() string { return f.server.UUID }

func (f *FTPSFilesystem) Capabilities() Capabilities { return Capabilities{} }

func (f *FTPSFilesystem) dialOptions(ctx context.Context) []ftp.DialOption {
	opts := []ftp.DialOption{
		ftp.DialWithTimeout(f.opts.ConnectTimeout),
		ftp.DialWithContext(ctx),
	}

	tlsConfig := f.opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: f.server.Address}
	}
	switch f.server.Scheme {
	case model.SchemeFTPS:
		opts = append(opts, ftp.DialWithTLS(tlsConfig))
	case model.SchemeFTPES:
		opts = append(opts, ftp.DialWithExplicitTLS(tlsConfig))
	}
	return opts
}

func (f *FTPSFilesystem) connect(ctx context.Context) error {
	if f.server.AuthMethod != "" && f.server.AuthMethod != model.AuthPassword {
		return unsupported(fmt.Sprintf("ftp %s authentication", f.server.AuthMethod))
	}
	if f.server.Password == nil {
		return &AuthRequiredError{Method: model.AuthPassword}
	}

	addr := f.server.Addr()
	c, err := f.dial(addr, f.dialOptions(ctx)...)
	if err != nil {
		return &ConnectionError{Addr: addr, Err: err}
	}
	if err := c.Login(f.server.Username, *f.server.Password); err != nil {
		c.Quit()
		return &AuthenticationError{Method: model.AuthPassword, Err: err}
	}

	f.conn = c
	f.logger.Debug("connected", zap.String("addr", addr))
	return nil
}

func (f *FTPSFilesystem) disconnect() {
	if f.conn == nil {
		return
	}
	if err := f.conn.Quit(); err != nil {
		f.logger.Debug("quit failed", zap.Error(err))
	}
	f.conn = nil
}

// withConn runs fn on a fresh connection that is closed on every exit path.
func (f *FTPSFilesystem) withConn(ctx context.Context, fn func(c ftpClient) error) error {
	if err := f.connect(ctx); err != nil {
		return err
	}
	defer f.disconnect()
	return fn(f.conn)
}

func isFTPNotFound(err error) bool {
	var tpErr *textproto.Error
	return errors.As(err, &tpErr) && tpErr.Code == ftp.StatusFileUnavailable
}

// stat finds p by listing its parent, the one lookup every server supports.
func ftpStat(c ftpClient, p string) (*ftp.Entry, error) {
	entries, err := c.List(path.Dir(p))
	if err != nil {
		if isFTPNotFound(err) {
			return nil, &FileNotFoundError{Path: p}
		}
		return nil, err
	}
	name := path.Base(p)
	for _, entry := range entries {
		if entry.Name == name {
			return entry, nil
		}
	}
	return nil, &FileNotFoundError{Path: p}
}

func ftpExists(c ftpClient, p string) (bool, error) {
	_, err := ftpStat(c, p)
	var nf *FileNotFoundError
	if errors.As(err, &nf) {
		return false, nil
	}
	return err == nil, err
}

// ftpMkdirAll creates every missing component of p from the root down.
func ftpMkdirAll(c ftpClient, p string) error {
	var dirs []string
	for curr := p; curr != "." && curr != "/" && curr != ""; curr = path.Dir(curr) {
		dirs = append(dirs, curr)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		c.MakeDir(dirs[i]) // fails when it already exists
	}
	if len(dirs) == 0 {
		return nil
	}
	if err := c.ChangeDir(p); err != nil {
		return fmt.Errorf("mkdir %s: %w", p, err)
	}
	return nil
}

func (f *FTPSFilesystem) Ping(ctx context.Context) error {
	return f.withConn(ctx, func(c ftpClient) error {
		return c.NoOp()
	})
}

func (f *FTPSFilesystem) ListFiles(ctx context.Context, parent model.FileModel) ([]model.FileModel, error) {
	var files []model.FileModel
	err := f.withConn(ctx, func(c ftpClient) error {
		if err := c.ChangeDir(parent.Path()); err != nil {
			return &FileNotFoundError{Path: parent.Path()}
		}
		entries, err := c.List("")
		if err != nil {
			return err
		}
		files = make([]model.FileModel, 0, len(entries))
		for _, entry := range entries {
			if !IsValidFileName(entry.Name) {
				continue
			}
			files = append(files, ftpFileModel(entry, parent))
		}
		return nil
	})
	return files, err
}

func (f *FTPSFilesystem) CreateFile(ctx context.Context, file model.FileModel) error {
	p := file.Path()
	return f.withConn(ctx, func(c ftpClient) error {
		exists, err := ftpExists(c, p)
		if err != nil {
			return err
		}
		if exists {
			return &FileAlreadyExistsError{Path: p}
		}
		if file.IsDirectory {
			return ftpMkdirAll(c, p)
		}
		if err := ftpMkdirAll(c, path.Dir(p)); err != nil {
			return err
		}
		return c.Stor(p, bytes.NewReader(nil))
	})
}

func (f *FTPSFilesystem) RenameFile(ctx context.Context, source model.FileModel, newName string) (model.FileModel, error) {
	src := source.Path()
	if !IsValidFileName(newName) {
		return model.FileModel{}, &RenameFileError{Path: src, Err: fmt.Errorf("invalid file name %q", newName)}
	}
	dst := path.Join(path.Dir(src), newName)
	if dst == src {
		return model.FileModel{}, &FileAlreadyExistsError{Path: dst}
	}

	renamed := source.Parent().Child(newName, source.IsDirectory)
	err := f.withConn(ctx, func(c ftpClient) error {
		entry, err := ftpStat(c, src)
		if err != nil {
			return err
		}
		exists, err := ftpExists(c, dst)
		if err != nil {
			return err
		}
		if exists {
			return &FileAlreadyExistsError{Path: dst}
		}
		if err := c.Rename(src, dst); err != nil {
			return &RenameFileError{Path: src, Err: err}
		}
		renamed = ftpFileModel(&ftp.Entry{Name: newName, Type: entry.Type, Size: entry.Size, Time: entry.Time}, source.Parent())
		return nil
	})
	return renamed, err
}

func (f *FTPSFilesystem) DeleteFile(ctx context.Context, file model.FileModel) error {
	p := file.Path()
	return f.withConn(ctx, func(c ftpClient) error {
		var err error
		if file.IsDirectory {
			err = c.RemoveDirRecur(p)
		} else {
			err = c.Delete(p)
		}
		if isFTPNotFound(err) {
			return &FileNotFoundError{Path: p}
		}
		return err
	})
}

func (f *FTPSFilesystem) CopyFile(ctx context.Context, source, destDir model.FileModel) (model.FileModel, error) {
	return model.FileModel{}, unsupported("ftp copy")
}

func (f *FTPSFilesystem) CompressFiles(ctx context.Context, sources []model.FileModel, dest model.FileModel) (*Progress, error) {
	return nil, unsupported("ftp compress")
}

func (f *FTPSFilesystem) ExtractFiles(ctx context.Context, source, destDir model.FileModel) (*Progress, error) {
	return nil, unsupported("ftp extract")
}

// LoadFile downloads into a temp file under the cache dir and decodes it from there.
func (f *FTPSFilesystem) LoadFile(ctx context.Context, file model.FileModel, params model.FileParams) (string, error) {
	var text string
	err := f.withConn(ctx, func(c ftpClient) error {
		tmp, cleanup, err := openTempFile(f.opts.CacheDir, f.logger)
		if err != nil {
			return err
		}
		defer cleanup()

		resp, err := c.Retr(file.Path())
		if err != nil {
			if isFTPNotFound(err) {
				return &FileNotFoundError{Path: file.Path()}
			}
			return err
		}
		_, err = io.Copy(tmp, resp)
		if closeErr := resp.Close(); err == nil {
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

// SaveFile encodes into a temp file under the cache dir and uploads it.
func (f *FTPSFilesystem) SaveFile(ctx context.Context, file model.FileModel, text string, params model.FileParams) error {
	return f.withConn(ctx, func(c ftpClient) error {
		tmp, cleanup, err := openTempFile(f.opts.CacheDir, f.logger)
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
		return c.Stor(file.Path(), tmp)
	})
}
