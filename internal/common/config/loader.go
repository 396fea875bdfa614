package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultMaxArchiveBytes = 50 * 1024 * 1024

var (
	activeMu sync.Mutex
	active   *viper.Viper
)

func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")

	// STORAGE_BUCKET overrides storage.bucket, and so on
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	env := os.Getenv("APP_ENVIRONMENT")
	if env == "" {
		env = "development"
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading base config: %w", err)
		}
	}

	v.SetConfigName(fmt.Sprintf("config.%s", env))
	_ = v.MergeInConfig() // environment overlay is optional

	cfg, err := finish(v)
	if err != nil {
		return nil, err
	}
	setActive(v)
	return cfg, nil
}

func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	cfg, err := finish(v)
	if err != nil {
		return nil, err
	}
	setActive(v)
	return cfg, nil
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)
	overrideEmptyConfig(&cfg)

	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func setActive(v *viper.Viper) {
	activeMu.Lock()
	active = v
	activeMu.Unlock()
}

// Watch re-reads the loaded config file on change and hands the result to onChange.
// Invalid edits are reported through onError and otherwise ignored.
func Watch(onChange func(*Config), onError func(error)) bool {
	activeMu.Lock()
	v := active
	activeMu.Unlock()

	if v == nil || v.ConfigFileUsed() == "" {
		return false
	}

	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		cfg, err := finish(v)
		if err != nil {
			if onError != nil {
				onError(err)
			}
			return
		}
		onChange(cfg)
	})
	v.WatchConfig()
	return true
}

func loadEnvFile() {
	possiblePaths := []string{
		".env",
		"../.env",
		"../../.env", // tests in test/e2e/
		"../../../.env",
	}

	if rootDir := findProjectRoot(); rootDir != "" {
		possiblePaths = append(possiblePaths, filepath.Join(rootDir, ".env"))
	}

	for _, path := range possiblePaths {
		if _, err := os.Stat(path); err == nil {
			if err := godotenv.Load(path); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		strVal, ok := v.Get(key).(string)
		if !ok {
			continue
		}
		if strings.Contains(strVal, "${") || (strings.HasPrefix(strVal, "$") && len(strVal) > 1) {
			expanded := os.ExpandEnv(strVal)
			if expanded != strVal && expanded != "" {
				v.Set(key, expanded)
			}
		}
	}
}

func overrideEmptyConfig(cfg *Config) {
	if cfg.Auth.JWT.Secret == "" {
		if val := os.Getenv("JWT_SECRET"); val != "" {
			cfg.Auth.JWT.Secret = val
		}
	}

	if cfg.Storage.Minio.AccessKey == "" {
		if val := os.Getenv("MINIO_ACCESS_KEY"); val != "" {
			cfg.Storage.Minio.AccessKey = val
		}
	}
	if cfg.Storage.Minio.SecretKey == "" {
		if val := os.Getenv("MINIO_SECRET_KEY"); val != "" {
			cfg.Storage.Minio.SecretKey = val
		}
	}

	if cfg.Database.Postgres.User == "" {
		if val := os.Getenv("DB_USER"); val != "" {
			cfg.Database.Postgres.User = val
		}
	}
	if cfg.Database.Postgres.Password == "" {
		if val := os.Getenv("DB_PASSWORD"); val != "" {
			cfg.Database.Postgres.Password = val
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.App.Name == "" {
		cfg.App.Name = "template-ingest"
	}

	if cfg.Server.Address == "" {
		cfg.Server.Address = ":8080"
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30000
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 120000
	}
	if len(cfg.Server.AllowedOrigins) == 0 {
		cfg.Server.AllowedOrigins = []string{"*"}
	}

	if cfg.Camunda.MaxJobsActive == 0 {
		cfg.Camunda.MaxJobsActive = 10
	}
	if cfg.Camunda.Timeout == 0 {
		cfg.Camunda.Timeout = 30000
	}
	if cfg.Camunda.RequestTimeout == 0 {
		cfg.Camunda.RequestTimeout = 30000
	}

	if cfg.Database.Postgres.Port == 0 {
		cfg.Database.Postgres.Port = 5432
	}
	if cfg.Database.Postgres.MaxConnections == 0 {
		cfg.Database.Postgres.MaxConnections = 25
	}
	if cfg.Database.Postgres.MaxIdle == 0 {
		cfg.Database.Postgres.MaxIdle = 5
	}
	if cfg.Database.Postgres.SSLMode == "" {
		cfg.Database.Postgres.SSLMode = "disable"
	}
	if cfg.Database.Elasticsearch.URL == "" && len(cfg.Database.Elasticsearch.Addresses) > 0 {
		cfg.Database.Elasticsearch.URL = cfg.Database.Elasticsearch.Addresses[0]
	}

	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendS3
	}
	if cfg.Storage.Bucket == "" {
		cfg.Storage.Bucket = "templates"
	}
	if cfg.Storage.Local.Root == "" {
		cfg.Storage.Local.Root = "./data/storage"
	}

	if cfg.Ingest.MaxArchiveBytes == 0 {
		cfg.Ingest.MaxArchiveBytes = defaultMaxArchiveBytes
	}
	if cfg.Ingest.SourceURLPrefix == "" && cfg.Storage.PublicBaseURL != "" {
		cfg.Ingest.SourceURLPrefix = cfg.Storage.PublicPrefix()
	}
	if cfg.Ingest.MaxPreviewImages == 0 {
		cfg.Ingest.MaxPreviewImages = 3
	}
	if cfg.Ingest.DownloadTimeout == 0 {
		cfg.Ingest.DownloadTimeout = 60000
	}
	if cfg.Ingest.AdminRole == "" {
		cfg.Ingest.AdminRole = "admin"
	}
	if cfg.Ingest.RoleCacheTTL == 0 {
		cfg.Ingest.RoleCacheTTL = 60000
	}
	if cfg.Ingest.RunStatusTTL == 0 {
		cfg.Ingest.RunStatusTTL = 86400000
	}
	if cfg.Ingest.CatalogIndex == "" {
		cfg.Ingest.CatalogIndex = "templates"
	}

	if cfg.Auth.Mode == "" {
		cfg.Auth.Mode = AuthModeJWT
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}

	for key, worker := range cfg.Workers {
		if worker.MaxJobsActive == 0 {
			worker.MaxJobsActive = 5
		}
		if worker.Timeout == 0 {
			worker.Timeout = 120000
		}
		if worker.MaxRetries == 0 {
			worker.MaxRetries = 3
		}
		cfg.Workers[key] = worker
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Database.Postgres.Host == "" {
		return fmt.Errorf("database.postgres.host is required")
	}
	if cfg.Database.Postgres.Database == "" {
		return fmt.Errorf("database.postgres.database is required")
	}
	if cfg.Database.Postgres.User == "" {
		return fmt.Errorf("database.postgres.user is required")
	}

	if cfg.Database.Redis.Address == "" {
		return fmt.Errorf("database.redis.address is required")
	}

	switch cfg.Storage.Backend {
	case StorageBackendS3:
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required")
		}
	case StorageBackendMinio:
		if cfg.Storage.Minio.Endpoint == "" {
			return fmt.Errorf("storage.minio.endpoint is required")
		}
	case StorageBackendLocal:
	default:
		return fmt.Errorf("storage.backend must be one of s3, minio, local (got %q)", cfg.Storage.Backend)
	}
	if cfg.Storage.PublicBaseURL == "" {
		return fmt.Errorf("storage.public_base_url is required")
	}

	switch cfg.Auth.Mode {
	case AuthModeJWT:
		if cfg.Auth.JWT.Secret == "" {
			return fmt.Errorf("auth.jwt.secret is required when auth.mode is jwt")
		}
	case AuthModeKeycloak:
		if cfg.Auth.Keycloak.URL == "" || cfg.Auth.Keycloak.Realm == "" {
			return fmt.Errorf("auth.keycloak.url and auth.keycloak.realm are required when auth.mode is keycloak")
		}
	default:
		return fmt.Errorf("auth.mode must be jwt or keycloak (got %q)", cfg.Auth.Mode)
	}

	if cfg.Ingest.MaxArchiveBytes <= 0 {
		return fmt.Errorf("ingest.max_archive_bytes must be positive")
	}
	if cfg.Ingest.MaxPreviewImages < 0 {
		return fmt.Errorf("ingest.max_preview_images must not be negative")
	}

	return nil
}

func GetDuration(milliseconds int) time.Duration {
	return time.Duration(milliseconds) * time.Millisecond
}

func GetWorkerConfig(cfg *Config, workerName string) WorkerConfig {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker
	}

	return WorkerConfig{
		Enabled:       true,
		MaxJobsActive: 5,
		Timeout:       120000,
		MaxRetries:    3,
	}
}

func IsWorkerEnabled(cfg *Config, workerName string) bool {
	if worker, exists := cfg.Workers[workerName]; exists {
		return worker.Enabled
	}
	return true
}
