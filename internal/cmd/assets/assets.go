// Package assets parses asset service flags and composes the HTTP entrypoint.
package assets

import (
	"context"
	"flag"
	"fmt"
	"time"

	entrypoint "github.com/louisbranch/bridgeassets/internal/platform/cmd"
	server "github.com/louisbranch/bridgeassets/internal/services/assets/app"
)

// Config holds asset command configuration.
type Config struct {
	HTTPAddr       string        `env:"HTTP_ADDR"        envDefault:":8092"`
	DBPath         string        `env:"DB_PATH"          envDefault:"data/assets.db"`
	BlobDir        string        `env:"BLOB_DIR"         envDefault:"data/blobs"`
	AuthSecret     string        `env:"AUTH_SECRET"`
	AuthIssuer     string        `env:"AUTH_ISSUER"`
	CodecWorkers   int           `env:"CODEC_WORKERS"    envDefault:"4"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"16777216"`
	NotifyTimeout  time.Duration `env:"NOTIFY_TIMEOUT"   envDefault:"3s"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}

	fs.StringVar(&cfg.HTTPAddr, "http-addr", cfg.HTTPAddr, "assets HTTP listen address")
	fs.StringVar(&cfg.DBPath, "db-path", cfg.DBPath, "asset registry SQLite path")
	fs.StringVar(&cfg.BlobDir, "blob-dir", cfg.BlobDir, "directory holding asset files")
	fs.StringVar(&cfg.AuthIssuer, "auth-issuer", cfg.AuthIssuer, "expected bearer token issuer")
	fs.IntVar(&cfg.CodecWorkers, "codec-workers", cfg.CodecWorkers, "concurrent image transforms")
	fs.Int64Var(&cfg.MaxUploadBytes, "max-upload-bytes", cfg.MaxUploadBytes, "largest accepted upload body")
	fs.DurationVar(&cfg.NotifyTimeout, "notify-timeout", cfg.NotifyTimeout, "bridge update publish timeout")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Run builds the asset app and serves HTTP until ctx ends.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceAssets, func(context.Context) error {
		if err := server.Run(ctx, server.Config{
			HTTPAddr:       cfg.HTTPAddr,
			DBPath:         cfg.DBPath,
			BlobDir:        cfg.BlobDir,
			AuthSecret:     cfg.AuthSecret,
			AuthIssuer:     cfg.AuthIssuer,
			CodecWorkers:   cfg.CodecWorkers,
			MaxUploadBytes: cfg.MaxUploadBytes,
			NotifyTimeout:  cfg.NotifyTimeout,
		}); err != nil {
			return fmt.Errorf("serve assets: %w", err)
		}
		return nil
	})
}
