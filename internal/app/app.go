// Package app wires configuration, storage, the blob store, and the login
// rate limiter into the shared core used by cmd/instalog-server.
package app

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fieldops/instalog/internal/common"
	"github.com/fieldops/instalog/internal/interfaces"
	"github.com/fieldops/instalog/internal/ratelimit"
	"github.com/fieldops/instalog/internal/storage/blobfs"
	"github.com/fieldops/instalog/internal/storage/sqlite"
)

// App holds all initialized components.
type App struct {
	Config      *common.Config
	Logger      *common.Logger
	Storage     interfaces.StorageManager
	Blobs       interfaces.BlobStore
	RateLimiter interfaces.RateLimiter
	StartupTime time.Time
}

// NewApp initializes configuration, logging, and the backing stores.
// configPath may be empty, in which case INSTALOG_CONFIG and the default
// location are tried.
func NewApp(configPath string) (*App, error) {
	if configPath == "" {
		configPath = os.Getenv("INSTALOG_CONFIG")
	}
	if configPath == "" {
		configPath = "config/instalog.toml"
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logger := common.NewLogger(config.Logging.Level)

	storage, err := sqlite.Open(logger, config.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// The bucket binding is optional; photo routes fail with a
	// configuration error until it is set.
	var blobs interfaces.BlobStore
	if config.Bucket.Path != "" {
		blobs, err = blobfs.NewStore(logger, config.Bucket.Path)
		if err != nil {
			storage.Close()
			return nil, fmt.Errorf("failed to initialize blob store: %w", err)
		}
	} else {
		logger.Warn().Msg("Bucket path not configured - photo uploads disabled")
	}

	limiter := ratelimit.New(logger, config.RateLimit.RedisAddr)

	if !config.Auth.HmacConfigured() {
		logger.Warn().Msg("API_TOKEN/API_SECRET not configured - machine routes run unauthenticated")
	}

	return &App{
		Config:      config,
		Logger:      logger,
		Storage:     storage,
		Blobs:       blobs,
		RateLimiter: limiter,
		StartupTime: time.Now(),
	}, nil
}

// Close releases the backing stores.
func (a *App) Close() {
	if c, ok := a.RateLimiter.(io.Closer); ok {
		if err := c.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close rate limiter")
		}
	}
	if a.Storage != nil {
		if err := a.Storage.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close storage")
		}
	}
}
