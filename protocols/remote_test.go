package protocols

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"editorfs/model"
)

func strPtr(s string) *string { return &s }

// unreachable points at a reserved TEST-NET address so any accidental dial fails.
func unreachable(scheme model.Scheme) model.ServerConfig {
	return model.ServerConfig{
		UUID:     "srv-1",
		Scheme:   scheme,
		Address:  "192.0.2.1",
		Port:     2121,
		Username: "alice",
	}
}

func TestRemoteCapabilities(t *testing.T) {
	ftpFS := NewFTPSFilesystem(unreachable(model.SchemeFTP), FTPOptions{Logger: zap.NewNop()})
	sftpFS := NewSFTPFilesystem(unreachable(model.SchemeSFTP), SFTPOptions{Logger: zap.NewNop()})

	for _, fsys := range []Filesystem{ftpFS, sftpFS} {
		assert.Equal(t, Capabilities{}, fsys.Capabilities())
		assert.Equal(t, "srv-1", fsys.UUID())

		ctx := context.Background()
		root := model.FileModel{FileURI: "x:///dir", IsDirectory: true}

		_, err := fsys.CopyFile(ctx, root, root)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
		_, err = fsys.CompressFiles(ctx, []model.FileModel{root}, root)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
		_, err = fsys.ExtractFiles(ctx, root, root)
		assert.ErrorIs(t, err, ErrUnsupportedOperation)
	}

	assert.Equal(t, Capabilities{Copy: true, Compress: true, Extract: true}, newLocal().Capabilities())
}

func TestFTPAuthBeforeConnect(t *testing.T) {
	ctx := context.Background()
	server := unreachable(model.SchemeFTPES)
	f := NewFTPSFilesystem(server, FTPOptions{Logger: zap.NewNop(), ConnectTimeout: time.Second})

	_, err := f.ListFiles(ctx, server.RootModel())
	var required *AuthRequiredError
	require.ErrorAs(t, err, &required)
	assert.Equal(t, model.AuthPassword, required.Method)

	server.AuthMethod = model.AuthKey
	server.Password = strPtr("secret")
	f = NewFTPSFilesystem(server, FTPOptions{Logger: zap.NewNop()})
	assert.ErrorIs(t, f.Ping(ctx), ErrUnsupportedOperation)
	assert.Equal(t, DefaultFTPConnectTimeout, f.opts.ConnectTimeout)
}

func TestFTPDialOptions(t *testing.T) {
	ctx := context.Background()
	for scheme, want := range map[model.Scheme]int{
		model.SchemeFTP:   2,
		model.SchemeFTPS:  3,
		model.SchemeFTPES: 3,
	} {
		f := NewFTPSFilesystem(unreachable(scheme), FTPOptions{})
		assert.Len(t, f.dialOptions(ctx), want, scheme)
	}
}

func TestFTPFileModel(t *testing.T) {
	parent := model.FileModel{FileURI: "ftp:///pub", FilesystemUUID: "srv-1", IsDirectory: true}
	modified := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	m := ftpFileModel(&ftp.Entry{Name: "readme.md", Type: ftp.EntryTypeFile, Size: 42, Time: modified}, parent)
	assert.Equal(t, "ftp:///pub/readme.md", m.FileURI)
	assert.Equal(t, "srv-1", m.FilesystemUUID)
	assert.EqualValues(t, 42, m.Size)
	assert.Equal(t, modified.UnixMilli(), m.LastModified)
	assert.False(t, m.IsDirectory)
	assert.Equal(t, model.EmptyPermission, m.Permission)

	d := ftpFileModel(&ftp.Entry{Name: "incoming", Type: ftp.EntryTypeFolder}, parent)
	assert.True(t, d.IsDirectory)
}

func writeEncryptedKey(t *testing.T, dir, name, passphrase string) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	block, err := ssh.MarshalPrivateKeyWithPassphrase(priv, "", []byte(passphrase))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), pem.EncodeToMemory(block), 0o600))
}

func TestSFTPAuthMethods(t *testing.T) {
	keysDir := t.TempDir()
	writeEncryptedKey(t, keysDir, "deploy", "open sesame")

	newSFTP := func(mutate func(*model.ServerConfig)) *SFTPFilesystem {
		server := unreachable(model.SchemeSFTP)
		mutate(&server)
		return NewSFTPFilesystem(server, SFTPOptions{KeysDir: keysDir, Logger: zap.NewNop()})
	}

	t.Run("password missing", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) {})
		_, err := s.ListFiles(context.Background(), model.FileModel{FileURI: "sftp:///"})
		var required *AuthRequiredError
		require.ErrorAs(t, err, &required)
		assert.Equal(t, model.AuthPassword, required.Method)
	})

	t.Run("password present", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) { c.Password = strPtr("pw") })
		methods, err := s.authMethods()
		require.NoError(t, err)
		assert.Len(t, methods, 1)
	})

	t.Run("passphrase missing", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) {
			c.AuthMethod = model.AuthKey
			c.KeyID = strPtr("deploy")
		})
		_, err := s.authMethods()
		var required *AuthRequiredError
		require.ErrorAs(t, err, &required)
		assert.Equal(t, model.AuthKey, required.Method)
	})

	t.Run("key file missing", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) {
			c.AuthMethod = model.AuthKey
			c.KeyID = strPtr("absent")
			c.Passphrase = strPtr("x")
		})
		err := s.Ping(context.Background())
		var nf *FileNotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("key id escapes keys dir", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) {
			c.AuthMethod = model.AuthKey
			c.KeyID = strPtr("../deploy")
			c.Passphrase = strPtr("open sesame")
		})
		_, err := s.authMethods()
		var nf *FileNotFoundError
		assert.ErrorAs(t, err, &nf)
	})

	t.Run("wrong passphrase", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) {
			c.AuthMethod = model.AuthKey
			c.KeyID = strPtr("deploy")
			c.Passphrase = strPtr("wrong")
		})
		_, err := s.authMethods()
		var required *AuthRequiredError
		assert.ErrorAs(t, err, &required)
	})

	t.Run("decrypts key", func(t *testing.T) {
		s := newSFTP(func(c *model.ServerConfig) {
			c.AuthMethod = model.AuthKey
			c.KeyID = strPtr("deploy")
			c.Passphrase = strPtr("open sesame")
		})
		methods, err := s.authMethods()
		require.NoError(t, err)
		assert.Len(t, methods, 1)
	})
}

type fakeInfo struct {
	name string
	size int64
	mode os.FileMode
	mod  time.Time
}

func (f fakeInfo) Name() string       { return f.name }
func (f fakeInfo) Size() int64        { return f.size }
func (f fakeInfo) Mode() os.FileMode  { return f.mode }
func (f fakeInfo) ModTime() time.Time { return f.mod }
func (f fakeInfo) IsDir() bool        { return f.mode.IsDir() }
func (f fakeInfo) Sys() any           { return nil }

func TestSFTPFileModel(t *testing.T) {
	parent := model.FileModel{FileURI: "sftp:///home/alice", FilesystemUUID: "srv-1", IsDirectory: true}

	m := sftpFileModel(fakeInfo{name: "run.sh", size: 7, mode: 0o754}, parent)
	assert.Equal(t, "sftp:///home/alice/run.sh", m.FileURI)
	assert.Equal(t, "rwxr-xr--", m.Permission.String())
	assert.False(t, m.IsDirectory)

	d := sftpFileModel(fakeInfo{name: "src", mode: os.ModeDir | 0o700}, parent)
	assert.True(t, d.IsDirectory)
	assert.Equal(t, "rwx------", d.Permission.String())
}
