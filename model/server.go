package model

import (
	"fmt"
	"net"
	"path"
	"strconv"
	"strings"
)

type Scheme string

const (
	SchemeFTP   Scheme = "ftp"
	SchemeFTPS  Scheme = "ftps"  // implicit TLS
	SchemeFTPES Scheme = "ftpes" // explicit TLS (AUTH TLS)
	SchemeSFTP  Scheme = "sftp"
)

func ParseScheme(s string) (Scheme, error) {
	switch Scheme(strings.ToLower(s)) {
	case SchemeFTP:
		return SchemeFTP, nil
	case SchemeFTPS:
		return SchemeFTPS, nil
	case SchemeFTPES:
		return SchemeFTPES, nil
	case SchemeSFTP:
		return SchemeSFTP, nil
	}
	return "", fmt.Errorf("unknown scheme: %q", s)
}

// DefaultPort returns the well-known port for the scheme.
func (s Scheme) DefaultPort() int {
	switch s {
	case SchemeFTPS:
		return 990
	case SchemeSFTP:
		return 22
	default:
		return 21
	}
}

type AuthMethod string

const (
	AuthPassword AuthMethod = "PASSWORD"
	AuthKey      AuthMethod = "KEY"
)

func ParseAuthMethod(s string) (AuthMethod, error) {
	switch AuthMethod(strings.ToUpper(s)) {
	case AuthPassword, "":
		return AuthPassword, nil
	case AuthKey:
		return AuthKey, nil
	}
	return "", fmt.Errorf("unknown auth method: %q", s)
}

// ServerConfig holds the connection and auth parameters of one remote
// filesystem. Records are owned by an external persistence layer.
type ServerConfig struct {
	UUID       string     `toml:"uuid"`
	Scheme     Scheme     `toml:"scheme"`
	Address    string     `toml:"address"`
	Port       int        `toml:"port"`
	InitialDir string     `toml:"initial_dir"`
	AuthMethod AuthMethod `toml:"auth_method"`
	Username   string     `toml:"username"`
	Password   *string    `toml:"password,omitempty"`
	KeyID      *string    `toml:"key_id,omitempty"`
	Passphrase *string    `toml:"passphrase,omitempty"`
}

// Addr returns host:port, falling back to the scheme's default port.
func (c ServerConfig) Addr() string {
	port := c.Port
	if port == 0 {
		port = c.Scheme.DefaultPort()
	}
	return net.JoinHostPort(c.Address, strconv.Itoa(port))
}

// URI returns the FileURI of p on this server.
func (c ServerConfig) URI(p string) string {
	return string(c.Scheme) + "://" + path.Join("/", p)
}

// RootModel returns the directory model of InitialDir.
func (c ServerConfig) RootModel() FileModel {
	return FileModel{
		FileURI:        c.URI(c.InitialDir),
		FilesystemUUID: c.UUID,
		IsDirectory:    true,
	}
}

// String hides credentials.
func (c ServerConfig) String() string {
	return fmt.Sprintf("%s://%s@%s (%s)", c.Scheme, c.Username, c.Addr(), c.UUID)
}
