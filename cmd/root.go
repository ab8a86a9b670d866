package cmd

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"path"
	"path/filepath"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"editorfs/config"
	"editorfs/core"
	"editorfs/logging"
	"editorfs/metrics"
	"editorfs/model"
	"editorfs/protocols"
)

const (
	envConfig     = "EDITORFS_CONFIG"
	envPassword   = "EDITORFS_PASSWORD"
	envPassphrase = "EDITORFS_PASSPHRASE"

	defaultConfigPath = "editorfs.toml"
)

type app struct {
	configPath  string
	serverID    string
	logLevel    string
	dumpMetrics bool

	cfg     *config.Config
	factory *core.Factory
}

// NewRootCmd builds the command tree with fresh flag state.
func NewRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "editorfs",
		Short: "Browse and edit files on local disks, FTP and SFTP servers",
		Long: `editorfs runs file manager operations against the local filesystem or a
configured FTP, FTPS, FTPES or SFTP server. Servers are declared in a TOML
config; credentials missing from it are read from EDITORFS_PASSWORD and
EDITORFS_PASSPHRASE.`,
		SilenceUsage:       true,
		SilenceErrors:      true,
		PersistentPreRunE:  a.load,
		PersistentPostRunE: a.finish,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&a.configPath, "config", "", "path to the TOML config (default $"+envConfig+" or "+defaultConfigPath+")")
	pf.StringVarP(&a.serverID, "server", "s", model.LocalFilesystemUUID, "uuid of the server to operate on")
	pf.StringVar(&a.logLevel, "log-level", "", "override the configured log level")
	pf.BoolVar(&a.dumpMetrics, "metrics", false, "print collected metrics to stderr on exit")

	root.AddCommand(
		a.lsCmd(),
		a.catCmd(),
		a.putCmd(),
		a.touchCmd(),
		a.mkdirCmd(),
		a.mvCmd(),
		a.rmCmd(),
		a.cpCmd(),
		a.zipCmd(),
		a.unzipCmd(),
		a.pingCmd(),
		a.serversCmd(),
		a.janitorCmd(),
	)
	return root
}

func Execute() error {
	return NewRootCmd().Execute()
}

func (a *app) load(cmd *cobra.Command, _ []string) error {
	envErr := godotenv.Load()

	p := a.configPath
	if p == "" {
		p = os.Getenv(envConfig)
	}
	explicit := p != ""
	if !explicit {
		p = defaultConfigPath
	}

	cfg, err := config.LoadConfig(p)
	switch {
	case err == nil:
	case !explicit && errors.Is(err, fs.ErrNotExist):
		cfg = config.Default()
	default:
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := logging.Init(cfg.Log); err != nil {
		return fmt.Errorf("failed to init logging: %w", err)
	}
	if a.logLevel != "" {
		if err := logging.SetLevel(a.logLevel); err != nil {
			return err
		}
	}
	if envErr != nil {
		logging.L().Debug("no .env file found, using environment variables")
	}
	logging.L().Debug("config loaded", zap.String("path", p), zap.Int("servers", len(cfg.Servers)))

	a.cfg = cfg
	a.factory = core.NewFactory(cfg, logging.L())
	return nil
}

func (a *app) finish(cmd *cobra.Command, _ []string) error {
	_ = logging.Sync()
	if a.dumpMetrics {
		return metrics.WriteText(cmd.ErrOrStderr())
	}
	return nil
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

// target is the selected backend plus the rules for turning CLI paths into
// models on it.
type target struct {
	fs     protocols.Filesystem
	server *model.ServerConfig
}

func (a *app) open() (*target, error) {
	if a.serverID == "" || a.serverID == model.LocalFilesystemUUID {
		return &target{fs: a.factory.Local()}, nil
	}

	server, err := a.cfg.Server(a.serverID)
	if err != nil {
		return nil, err
	}
	if v, ok := os.LookupEnv(envPassword); ok && server.Password == nil {
		server.Password = &v
	}
	if v, ok := os.LookupEnv(envPassphrase); ok && server.Passphrase == nil {
		server.Passphrase = &v
	}

	fsys, err := a.factory.Open(server)
	if err != nil {
		return nil, err
	}
	return &target{fs: fsys, server: &server}, nil
}

// file resolves p against the working directory locally or InitialDir remotely.
func (t *target) file(p string, isDir bool) (model.FileModel, error) {
	if t.server == nil {
		abs, err := filepath.Abs(p)
		if err != nil {
			return model.FileModel{}, err
		}
		return model.NewLocalFile(filepath.ToSlash(abs), isDir), nil
	}
	if !path.IsAbs(p) {
		p = path.Join("/", t.server.InitialDir, p)
	}
	return model.FileModel{
		FileURI:        t.server.URI(p),
		FilesystemUUID: t.server.UUID,
		IsDirectory:    isDir,
	}, nil
}

// stat finds p in its parent's listing, the only lookup every backend offers.
func (t *target) stat(ctx context.Context, p string) (model.FileModel, error) {
	file, err := t.file(p, false)
	if err != nil {
		return file, err
	}
	if file.Path() == "/" {
		file.IsDirectory = true
		return file, nil
	}
	entries, err := t.fs.ListFiles(ctx, file.Parent())
	if err != nil {
		return file, err
	}
	for _, entry := range entries {
		if entry.Name() == file.Name() {
			return entry, nil
		}
	}
	return file, &protocols.FileNotFoundError{Path: file.Path()}
}
