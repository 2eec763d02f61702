package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"ytdl-web/internal/jobstore"
	"ytdl-web/internal/runstore"
	"ytdl-web/internal/worker"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"

	DefaultWorkerCommand = "python"
	DefaultModuleName    = "youtube_dl"
)

// Config is the process configuration, loaded from the environment.
type Config struct {
	AppEnv string
	Port   string

	TempFolder    string
	// UploadsDir is bootstrapped for the upload layer, which this service does not serve.
	UploadsDir    string
	DownloadsDir  string
	OutputDir     string
	WorkerCommand string
	ModuleName    string
	ModulePath    string
	CookiesFile   string
	Debug         bool

	JobTimeout time.Duration
	MaxJobs    int

	StoreBackend   string
	RedisAddress   string
	RedisPassword  string
	RedisDB        int
	RedisKeyPrefix string

	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
}

// Load reads the environment. Call godotenv.Load first to honor a .env file.
func Load() (*Config, error) {
	temp := getEnv("TEMP_FOLDER", "tmp")
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "production"),
		Port:             getEnv("PORT", "5000"),
		TempFolder:       temp,
		UploadsDir:       filepath.Join(temp, "uploads"),
		DownloadsDir:     filepath.Join(temp, "downloads"),
		OutputDir:        filepath.Join(temp, "output"),
		WorkerCommand:    getEnv("WORKER_COMMAND", DefaultWorkerCommand),
		ModuleName:       lookupEnv("MODULE_NAME", DefaultModuleName),
		ModulePath:       getEnv("MODULE_PATH", "."),
		CookiesFile:      os.Getenv("DEFAULT_COOKIES_FILE"),
		Debug:            getEnvBool("DEBUG", false),
		JobTimeout:       time.Second * time.Duration(getEnvInt("JOB_TIMEOUT_SECONDS", 0)),
		MaxJobs:          getEnvInt("MAX_JOBS", 0),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", StoreMemory)),
		RedisAddress:     getEnv("REDIS_ADDRESS", "localhost:6379"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		RedisKeyPrefix:   getEnv("REDIS_KEY_PREFIX", "ytdl:progress:"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 60)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
	}

	switch cfg.StoreBackend {
	case StoreMemory, StoreRedis:
	default:
		return nil, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", StoreMemory, StoreRedis, cfg.StoreBackend)
	}
	if cfg.JobTimeout < 0 {
		cfg.JobTimeout = 0
	}
	if cfg.MaxJobs < 0 {
		cfg.MaxJobs = 0
	}

	return cfg, nil
}

func (c *Config) Layout() runstore.Layout {
	return runstore.Layout{DownloadsDir: c.DownloadsDir, OutputDir: c.OutputDir}
}

// Worker returns the invocation for the download worker, run from
// MODULE_PATH.
func (c *Config) Worker() worker.Invocation {
	return worker.Invocation{
		Command: c.WorkerCommand,
		Module:  c.ModuleName,
		Dir:     c.ModulePath,
	}
}

func (c *Config) Redis() jobstore.RedisConfig {
	return jobstore.RedisConfig{
		Address:   c.RedisAddress,
		Password:  c.RedisPassword,
		DB:        c.RedisDB,
		KeyPrefix: c.RedisKeyPrefix,
	}
}

// EnsureDirs creates the temp folder and its uploads, downloads and output
// subfolders.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.TempFolder, c.UploadsDir, c.DownloadsDir, c.OutputDir} {
		if err := runstore.Mkdir(dir); err != nil {
			return err
		}
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

// lookupEnv keeps an explicitly empty value.
func lookupEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return fallback
}
