package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"ytdl-web/internal/config"
	"ytdl-web/internal/download"
	"ytdl-web/internal/jobstore"
	"ytdl-web/internal/logging"
)

// app holds what every command needs: configuration, a logger and the job
// store selected by STORE_BACKEND.
type app struct {
	cfg    *config.Config
	logger zerolog.Logger
	store  jobstore.Store
	redis  *redis.Client
}

type appOptions struct {
	logOut   io.Writer
	logLevel zerolog.Level
	// skipStore leaves the store unset, for commands that only read files.
	skipStore bool
}

func openApp(opts appOptions) (*app, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	logger := logging.New(cfg.AppEnv, opts.logOut)
	if opts.logLevel > logger.GetLevel() {
		logger = logger.Level(opts.logLevel)
	}

	a := &app{cfg: cfg, logger: logger}
	if opts.skipStore {
		return a, nil
	}
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := jobstore.NewRedisClient(cfg.Redis())
		if err != nil {
			return nil, err
		}
		a.redis = client
		a.store = jobstore.NewRedis(client, cfg.RedisKeyPrefix)
	default:
		a.store = jobstore.NewMemory()
	}
	return a, nil
}

func (a *app) newService() (*download.Service, error) {
	return download.NewService(download.Options{
		Worker:      a.cfg.Worker(),
		Layout:      a.cfg.Layout(),
		Store:       a.store,
		Logger:      a.logger,
		Debug:       a.cfg.Debug,
		CookiesFile: a.cfg.CookiesFile,
		JobTimeout:  a.cfg.JobTimeout,
		MaxJobs:     a.cfg.MaxJobs,
	})
}

// ping checks the configured store backend; the memory store is always up.
func (a *app) ping(ctx context.Context) error {
	if a.cfg.StoreBackend != config.StoreRedis {
		return nil
	}
	if a.redis != nil {
		return a.redis.Ping(ctx).Err()
	}
	client, err := jobstore.NewRedisClient(a.cfg.Redis())
	if err != nil {
		return err
	}
	return client.Close()
}

func (a *app) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
