package config

import (
	"fmt"
	"strings"
)

type Config struct {
	App          AppConfig               `mapstructure:"app"`
	Server       ServerConfig            `mapstructure:"server"`
	Camunda      CamundaConfig           `mapstructure:"camunda"`
	Database     DatabaseConfig          `mapstructure:"database"`
	Storage      StorageConfig           `mapstructure:"storage"`
	Ingest       IngestConfig            `mapstructure:"ingest"`
	Workers      map[string]WorkerConfig `mapstructure:"workers"`
	Auth         AuthConfig              `mapstructure:"auth"`
	Integrations IntegrationConfig       `mapstructure:"integrations"`
	Logging      LoggingConfig           `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Version     string `mapstructure:"version"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Address        string   `mapstructure:"address"`
	ReadTimeout    int      `mapstructure:"read_timeout"`  // milliseconds
	WriteTimeout   int      `mapstructure:"write_timeout"` // milliseconds
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type CamundaConfig struct {
	BrokerAddress  string `mapstructure:"broker_address"`
	MaxJobsActive  int    `mapstructure:"max_jobs_active"`
	Timeout        int    `mapstructure:"timeout"`         // milliseconds
	RequestTimeout int    `mapstructure:"request_timeout"` // milliseconds
}

// Enabled reports whether a Zeebe gateway is configured.
func (c CamundaConfig) Enabled() bool {
	return c.BrokerAddress != ""
}

type DatabaseConfig struct {
	Postgres      PostgresConfig      `mapstructure:"postgres"`
	Elasticsearch ElasticsearchConfig `mapstructure:"elasticsearch"`
	Redis         RedisConfig         `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
	SSLMode        string `mapstructure:"sslmode"`
}

func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

type ElasticsearchConfig struct {
	Addresses []string `mapstructure:"addresses"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
	URL       string   `mapstructure:"url"` // Single URL for backwards compatibility
}

func (e ElasticsearchConfig) GetURL() string {
	if e.URL != "" {
		return e.URL
	}
	if len(e.Addresses) > 0 {
		return e.Addresses[0]
	}
	return ""
}

// Enabled reports whether catalog indexing has somewhere to go.
func (e ElasticsearchConfig) Enabled() bool {
	return e.GetURL() != ""
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

const (
	StorageBackendS3    = "s3"
	StorageBackendMinio = "minio"
	StorageBackendLocal = "local"
)

type StorageConfig struct {
	Backend       string `mapstructure:"backend"`
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`

	S3 struct {
		Region       string `mapstructure:"region"`
		Endpoint     string `mapstructure:"endpoint"`
		UsePathStyle bool   `mapstructure:"use_path_style"`
	} `mapstructure:"s3"`

	Minio struct {
		Endpoint  string `mapstructure:"endpoint"`
		AccessKey string `mapstructure:"access_key"`
		SecretKey string `mapstructure:"secret_key"`
		UseSSL    bool   `mapstructure:"use_ssl"`
	} `mapstructure:"minio"`

	Local struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"local"`
}

// PublicPrefix is the URL prefix every public object URL starts with.
func (s StorageConfig) PublicPrefix() string {
	return strings.TrimSuffix(s.PublicBaseURL, "/") + "/storage/v1/object/public/" + s.Bucket + "/"
}

type IngestConfig struct {
	MaxArchiveBytes  int64  `mapstructure:"max_archive_bytes"`
	SourceURLPrefix  string `mapstructure:"source_url_prefix"`
	MaxPreviewImages int    `mapstructure:"max_preview_images"`
	DownloadTimeout  int    `mapstructure:"download_timeout"` // milliseconds
	AdminRole        string `mapstructure:"admin_role"`
	RoleCacheTTL     int    `mapstructure:"role_cache_ttl"` // milliseconds
	RunStatusTTL     int    `mapstructure:"run_status_ttl"` // milliseconds
	CatalogIndex     string `mapstructure:"catalog_index"`
	InjectEditor     bool   `mapstructure:"inject_editor"`
}

type WorkerConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxJobsActive int  `mapstructure:"max_jobs_active"`
	Timeout       int  `mapstructure:"timeout"`     // milliseconds
	MaxRetries    int  `mapstructure:"max_retries"` // For error handling
}

const (
	AuthModeJWT      = "jwt"
	AuthModeKeycloak = "keycloak"
)

type AuthConfig struct {
	Mode string `mapstructure:"mode"`

	JWT struct {
		Secret string `mapstructure:"secret"`
	} `mapstructure:"jwt"`

	Keycloak struct {
		URL          string `mapstructure:"url"`
		Realm        string `mapstructure:"realm"`
		ClientID     string `mapstructure:"client_id"`
		ClientSecret string `mapstructure:"client_secret"`
	} `mapstructure:"keycloak"`
}

type IntegrationConfig struct {
	AWS struct {
		Region string `mapstructure:"region"`
		SES    struct {
			Enabled         bool     `mapstructure:"enabled"`
			FromEmail       string   `mapstructure:"from_email"`
			AdminRecipients []string `mapstructure:"admin_recipients"`
		} `mapstructure:"ses"`
		SNS struct {
			Enabled  bool   `mapstructure:"enabled"`
			TopicARN string `mapstructure:"topic_arn"`
		} `mapstructure:"sns"`
	} `mapstructure:"aws"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}
