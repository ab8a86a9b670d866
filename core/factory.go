package core

import (
	"crypto/tls"
	"fmt"

	"go.uber.org/zap"

	"editorfs/config"
	"editorfs/logging"
	"editorfs/model"
	"editorfs/protocols"
)

// Factory builds instrumented backends from server records. The local
// backend is shared since it holds no state.
type Factory struct {
	cfg    *config.Config
	logger *zap.Logger
	local  protocols.Filesystem
}

func NewFactory(cfg *config.Config, logger *zap.Logger) *Factory {
	if logger == nil {
		logger = logging.L()
	}
	return &Factory{
		cfg:    cfg,
		logger: logger,
		local:  Instrument(protocols.NewLocalFilesystem(logger), logger),
	}
}

func (f *Factory) Local() protocols.Filesystem {
	return f.local
}

// Open returns a new backend for server. Remote backends connect lazily on
// every call, so Open itself never touches the network.
func (f *Factory) Open(server model.ServerConfig) (protocols.Filesystem, error) {
	var fsys protocols.Filesystem
	switch server.Scheme {
	case model.SchemeFTP, model.SchemeFTPS, model.SchemeFTPES:
		fsys = protocols.NewFTPSFilesystem(server, protocols.FTPOptions{
			CacheDir:       f.cfg.CacheDir,
			ConnectTimeout: f.cfg.FTPConnectTimeout.Duration,
			TLSConfig:      f.tlsConfig(server),
			Logger:         f.logger,
		})
	case model.SchemeSFTP:
		fsys = protocols.NewSFTPFilesystem(server, protocols.SFTPOptions{
			CacheDir:       f.cfg.CacheDir,
			KeysDir:        f.cfg.KeysDir,
			ConnectTimeout: f.cfg.SFTPConnectTimeout.Duration,
			Logger:         f.logger,
		})
	default:
		return nil, fmt.Errorf("unknown fs type: %s", server.Scheme)
	}
	return Instrument(fsys, f.logger), nil
}

// Resolve returns the backend owning filesystemUUID: the local backend or a
// configured server.
func (f *Factory) Resolve(filesystemUUID string) (protocols.Filesystem, error) {
	if filesystemUUID == "" || filesystemUUID == model.LocalFilesystemUUID {
		return f.local, nil
	}
	server, err := f.cfg.Server(filesystemUUID)
	if err != nil {
		return nil, err
	}
	return f.Open(server)
}

func (f *Factory) tlsConfig(server model.ServerConfig) *tls.Config {
	return &tls.Config{
		ServerName:         server.Address,
		InsecureSkipVerify: f.cfg.TLSInsecureSkipVerify,
	}
}
