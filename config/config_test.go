package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"editorfs/model"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "editorfs.toml")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestLoadConfig(t *testing.T) {
	p := writeConfig(t, `
cache_dir = "/var/cache/editorfs"
sftp_connect_timeout = "5s"
tls_insecure_skip_verify = true

[log]
level = "debug"
format = "json"

[janitor]
cron = "*/15 * * * *"
max_age = "2h"

[[servers]]
uuid = "build-box"
scheme = "SFTP"
address = "build.example.com"
auth_method = "key"
username = "deploy"
key_id = "id_ed25519"
passphrase = ""

[[servers]]
uuid = "mirror"
scheme = "ftpes"
address = "mirror.example.com"
port = 2121
username = "anonymous"
password = "guest"
`)

	cfg, err := LoadConfig(p)
	require.NoError(t, err)

	assert.Equal(t, "/var/cache/editorfs", cfg.CacheDir)
	assert.NotEmpty(t, cfg.KeysDir)
	assert.Equal(t, DefaultFTPConnectTimeout, cfg.FTPConnectTimeout.Duration)
	assert.Equal(t, 5*time.Second, cfg.SFTPConnectTimeout.Duration)
	assert.True(t, cfg.TLSInsecureSkipVerify)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "*/15 * * * *", cfg.Janitor.Cron)
	assert.Equal(t, 2*time.Hour, cfg.Janitor.MaxAge.Duration)

	require.Len(t, cfg.Servers, 2)
	box, err := cfg.Server("build-box")
	require.NoError(t, err)
	assert.Equal(t, model.SchemeSFTP, box.Scheme)
	assert.Equal(t, model.AuthKey, box.AuthMethod)
	require.NotNil(t, box.KeyID)
	assert.Equal(t, "id_ed25519", *box.KeyID)
	require.NotNil(t, box.Passphrase)
	assert.Nil(t, box.Password)

	mirror, err := cfg.Server("mirror")
	require.NoError(t, err)
	assert.Equal(t, model.AuthPassword, mirror.AuthMethod)
	assert.Equal(t, "mirror.example.com:2121", mirror.Addr())

	_, err = cfg.Server("nope")
	assert.Error(t, err)
}

func TestLoadConfigErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
	assert.True(t, os.IsNotExist(err))

	_, err = LoadConfig(writeConfig(t, `ftp_connect_timeout = "soon"`))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Servers = []model.ServerConfig{
		{UUID: "a", Scheme: "ftp", Address: "h"},
		{UUID: "a", Scheme: "ftp", Address: "h"},
		{UUID: "local", Scheme: "sftp", Address: "h"},
		{UUID: "b", Scheme: "gopher", Address: "h"},
		{UUID: "c", Scheme: "sftp", AuthMethod: "token", Address: ""},
		{UUID: "", Scheme: "ftp", Address: "h", Port: 70000},
	}

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.Contains(t, msg, `duplicate uuid "a"`)
	assert.Contains(t, msg, `uuid "local" is reserved`)
	assert.Contains(t, msg, `unknown scheme: "gopher"`)
	assert.Contains(t, msg, `unknown auth method: "token"`)
	assert.Contains(t, msg, "servers[4]: address is required")
	assert.Contains(t, msg, "servers[5]: uuid is required")
	assert.Contains(t, msg, "port 70000 out of range")

	assert.Equal(t, model.AuthPassword, cfg.Servers[0].AuthMethod)
}

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.NotEmpty(t, cfg.CacheDir)
	assert.Equal(t, DefaultSFTPConnectTimeout, cfg.SFTPConnectTimeout.Duration)
	assert.Equal(t, DefaultJanitorCron, cfg.Janitor.Cron)
	assert.Equal(t, DefaultJanitorMaxAge, cfg.Janitor.MaxAge.Duration)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.NoError(t, cfg.Validate())
}
