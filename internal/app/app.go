// Package app wires configuration, storage, and services into one
// application core shared by the server entrypoint and the API tests.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/geoscout/geoscout/internal/auth"
	"github.com/geoscout/geoscout/internal/common"
	"github.com/geoscout/geoscout/internal/interfaces"
	"github.com/geoscout/geoscout/internal/services/finds"
	"github.com/geoscout/geoscout/internal/services/identity"
	"github.com/geoscout/geoscout/internal/storage"
)

// App holds all initialized services and storage.
type App struct {
	Config          *common.Config
	Logger          *common.Logger
	Storage         interfaces.StorageManager
	Codec           *auth.Codec
	Limiter         *auth.RateLimiter
	IdentityService *identity.Service
	FindsService    *finds.Service
	StartupTime     time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes storage and services from configuration.
// configPath may be empty, in which case the default resolution logic is used.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("GEOSCOUT_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "geoscout.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/geoscout.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// Resolve relative storage paths to the binary directory
	if config.Storage.Identity.Path != "" && !filepath.IsAbs(config.Storage.Identity.Path) {
		config.Storage.Identity.Path = filepath.Join(binDir, config.Storage.Identity.Path)
	}
	if config.Storage.Cache.Path != "" && !filepath.IsAbs(config.Storage.Cache.Path) {
		config.Storage.Cache.Path = filepath.Join(binDir, config.Storage.Cache.Path)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	storageManager, err := storage.NewManager(logger, config)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	return NewAppWithComponents(config, logger, storageManager), nil
}

// NewAppWithComponents builds the app from pre-constructed components.
// Tests use it to inject a silent logger and temp-dir storage.
func NewAppWithComponents(config *common.Config, logger *common.Logger, storageManager interfaces.StorageManager) *App {
	policies := auth.NewPolicies(
		config.Auth.Domain,
		config.Auth.GetAppTokenAge(),
		config.Auth.GetQRTokenAge(),
		config.Auth.GetBackupTokenAge(),
	)
	codec := auth.NewCodec([]byte(config.Auth.JWTSecret), policies)
	pairings := auth.NewPairingCache(config.Auth.GetPairingTTL())
	limiter := auth.NewRateLimiter(config.Limits.GetInterval())

	identityService := identity.NewService(logger, storageManager.IdentityStore(), codec, pairings, limiter, &config.Limits)
	findsService := finds.NewService(logger, storageManager.IdentityStore(), storageManager.CacheStore())

	return &App{
		Config:          config,
		Logger:          logger,
		Storage:         storageManager,
		Codec:           codec,
		Limiter:         limiter,
		IdentityService: identityService,
		FindsService:    findsService,
		StartupTime:     time.Now(),
	}
}

// Close releases storage resources.
func (a *App) Close() error {
	if a.Storage != nil {
		return a.Storage.Close()
	}
	return nil
}
