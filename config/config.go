package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/pelletier/go-toml/v2"

	"editorfs/logging"
	"editorfs/model"
)

const (
	DefaultFTPConnectTimeout  = 10 * time.Second
	DefaultSFTPConnectTimeout = 30 * time.Second
	DefaultJanitorCron        = "@hourly"
	DefaultJanitorMaxAge      = 24 * time.Hour
)

type Config struct {
	CacheDir              string               `toml:"cache_dir"`
	KeysDir               string               `toml:"keys_dir"`
	FTPConnectTimeout     Duration             `toml:"ftp_connect_timeout"`
	SFTPConnectTimeout    Duration             `toml:"sftp_connect_timeout"`
	TLSInsecureSkipVerify bool                 `toml:"tls_insecure_skip_verify"`
	Log                   logging.Config       `toml:"log"`
	Janitor               Janitor              `toml:"janitor"`
	Servers               []model.ServerConfig `toml:"servers"`
}

// Janitor schedules removal of stale temp files from CacheDir.
type Janitor struct {
	Cron   string   `toml:"cron"`
	MaxAge Duration `toml:"max_age"`
}

// Duration reads TOML strings such as "30s" or "1h30m".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a config with no servers and every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

func (c *Config) ApplyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = defaultDir(os.UserCacheDir, "editorfs")
	}
	if c.KeysDir == "" {
		c.KeysDir = defaultDir(os.UserConfigDir, filepath.Join("editorfs", "keys"))
	}
	if c.FTPConnectTimeout.Duration <= 0 {
		c.FTPConnectTimeout.Duration = DefaultFTPConnectTimeout
	}
	if c.SFTPConnectTimeout.Duration <= 0 {
		c.SFTPConnectTimeout.Duration = DefaultSFTPConnectTimeout
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if c.Log.OutputPath == "" {
		c.Log.OutputPath = "stderr"
	}
	if c.Janitor.Cron == "" {
		c.Janitor.Cron = DefaultJanitorCron
	}
	if c.Janitor.MaxAge.Duration <= 0 {
		c.Janitor.MaxAge.Duration = DefaultJanitorMaxAge
	}
}

func defaultDir(base func() (string, error), sub string) string {
	dir, err := base()
	if err != nil {
		dir = os.TempDir()
	}
	return filepath.Join(dir, sub)
}

// Validate checks every server record and normalizes its scheme and auth
// method spelling. All problems are reported together.
func (c *Config) Validate() error {
	var result *multierror.Error
	seen := make(map[string]bool, len(c.Servers))

	for i := range c.Servers {
		s := &c.Servers[i]
		label := fmt.Sprintf("servers[%d]", i)

		switch {
		case strings.TrimSpace(s.UUID) == "":
			result = multierror.Append(result, fmt.Errorf("%s: uuid is required", label))
		case s.UUID == model.LocalFilesystemUUID:
			result = multierror.Append(result, fmt.Errorf("%s: uuid %q is reserved", label, s.UUID))
		case seen[s.UUID]:
			result = multierror.Append(result, fmt.Errorf("%s: duplicate uuid %q", label, s.UUID))
		}
		seen[s.UUID] = true

		scheme, err := model.ParseScheme(string(s.Scheme))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", label, err))
		} else {
			s.Scheme = scheme
		}

		auth, err := model.ParseAuthMethod(string(s.AuthMethod))
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("%s: %w", label, err))
		} else {
			s.AuthMethod = auth
		}

		if s.Address == "" {
			result = multierror.Append(result, fmt.Errorf("%s: address is required", label))
		}
		if s.Port < 0 || s.Port > 65535 {
			result = multierror.Append(result, fmt.Errorf("%s: port %d out of range", label, s.Port))
		}
	}
	return result.ErrorOrNil()
}

// Server returns the record with the given uuid.
func (c *Config) Server(uuid string) (model.ServerConfig, error) {
	for _, s := range c.Servers {
		if s.UUID == uuid {
			return s, nil
		}
	}
	return model.ServerConfig{}, fmt.Errorf("unknown server %q", uuid)
}
