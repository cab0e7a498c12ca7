package config

import (
	"database/sql"
	"errors"
	"fmt"
	_ "github.com/lib/pq"
	"github.com/spf13/viper"
	"manuscript-ingest/constant"
	"strings"
	"time"
)

type Config struct {
	App           App           `yaml:"app"`
	Server        Server        `yaml:"server"`
	Database      Database      `yaml:"database"`
	Storage       Storage       `yaml:"storage"`
	Queue         *RabbitMQ     `yaml:"rabbitmq"`
	Transcription Transcription `yaml:"transcription"`
	Upload        Upload        `yaml:"upload"`
}

type App struct {
	Environment string `yaml:"environment"`
	Host        string `yaml:"host"`
	Protocol    string `yaml:"protocol"`
}

type Server struct {
	HttpPort       string        `yaml:"http_port"`
	Workers        int           `yaml:"workers"`
	RateLimit      float64       `yaml:"rate_limit"`
	RateBurst      int           `yaml:"rate_burst"`
	StaleAfter     time.Duration `yaml:"stale_after"`
	ShutdownPeriod time.Duration `yaml:"shutdown_period"`
}

type Database struct {
	DSN string `yaml:"dsn"`
}

type Storage struct {
	Driver    constant.StorageDriver `yaml:"driver"`
	Bucket    string                 `yaml:"bucket"`
	Endpoint  string                 `yaml:"endpoint"`
	Region    string                 `yaml:"region"`
	AccessKey string                 `yaml:"access_key"`
	SecretKey string                 `yaml:"secret_key"`
	Secure    bool                   `yaml:"secure"`
	PathStyle bool                   `yaml:"path_style"`
}

type RabbitMQ struct {
	Enabled      bool   `json:"enabled"`
	Host         string `json:"host"`
	Port         int    `json:"port"`
	User         string `json:"user"`
	Pass         string `json:"pass"`
	ExchangeName string `json:"exchange_name"`
	Kind         string `json:"kind"`
}

type Transcription struct {
	URL      string        `yaml:"url"`
	APIKey   string        `yaml:"api_key"`
	Model    string        `yaml:"model"`
	Language string        `yaml:"language"`
	Timeout  time.Duration `yaml:"timeout"`
}

type Upload struct {
	MaxSizeBytes int64 `yaml:"max_size_bytes"`
}

const DefaultMaxUploadBytes int64 = 25 * 1024 * 1024

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.environment", constant.EnvironmentDevelop.String())
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.workers", 2)
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.stale_after", 15*time.Minute)
	v.SetDefault("server.shutdown_period", 15*time.Second)
	v.SetDefault("storage.driver", string(constant.StorageDriverMinIO))
	v.SetDefault("storage.bucket", "podcast-files")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("rabbitmq.enabled", false)
	v.SetDefault("rabbitmq.port", 5672)
	v.SetDefault("rabbitmq.kind", "topic")
	v.SetDefault("rabbitmq.exchange_name", "transcription_exchange")
	v.SetDefault("transcription.url", "https://api.openai.com/v1/audio/transcriptions")
	v.SetDefault("transcription.model", "whisper-1")
	v.SetDefault("transcription.language", "it")
	v.SetDefault("transcription.timeout", 5*time.Minute)
	v.SetDefault("upload.max_size_bytes", DefaultMaxUploadBytes)
}

// Load reads config.yaml from path when present. Every key can be overridden
// from the environment, e.g. TRANSCRIPTION_API_KEY or STORAGE_DRIVER.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	cfg := &Config{
		App: App{
			Environment: v.GetString("app.environment"),
			Host:        v.GetString("app.host"),
			Protocol:    v.GetString("app.protocol"),
		},
		Server: Server{
			HttpPort:       v.GetString("server.port"),
			Workers:        v.GetInt("server.workers"),
			RateLimit:      v.GetFloat64("server.rate_limit"),
			RateBurst:      v.GetInt("server.rate_burst"),
			StaleAfter:     v.GetDuration("server.stale_after"),
			ShutdownPeriod: v.GetDuration("server.shutdown_period"),
		},
		Database: Database{
			DSN: v.GetString("database.dsn"),
		},
		Storage: Storage{
			Driver:    constant.StorageDriver(strings.ToLower(v.GetString("storage.driver"))),
			Bucket:    v.GetString("storage.bucket"),
			Endpoint:  v.GetString("storage.endpoint"),
			Region:    v.GetString("storage.region"),
			AccessKey: v.GetString("storage.access_key"),
			SecretKey: v.GetString("storage.secret_key"),
			Secure:    v.GetBool("storage.secure"),
			PathStyle: v.GetBool("storage.path_style"),
		},
		Queue: &RabbitMQ{
			Enabled:      v.GetBool("rabbitmq.enabled"),
			Host:         v.GetString("rabbitmq.host"),
			Port:         v.GetInt("rabbitmq.port"),
			User:         v.GetString("rabbitmq.user"),
			Pass:         v.GetString("rabbitmq.pass"),
			ExchangeName: v.GetString("rabbitmq.exchange_name"),
			Kind:         v.GetString("rabbitmq.kind"),
		},
		Transcription: Transcription{
			URL:      v.GetString("transcription.url"),
			APIKey:   v.GetString("transcription.api_key"),
			Model:    v.GetString("transcription.model"),
			Language: v.GetString("transcription.language"),
			Timeout:  v.GetDuration("transcription.timeout"),
		},
		Upload: Upload{
			MaxSizeBytes: v.GetInt64("upload.max_size_bytes"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks settings that would otherwise only fail at request time.
// A missing transcription API key is allowed here and reported per request.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case constant.StorageDriverMinIO, constant.StorageDriverS3:
	default:
		return fmt.Errorf("unsupported storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Bucket == "" {
		return errors.New("storage.bucket is required")
	}
	if c.Upload.MaxSizeBytes <= 0 {
		return fmt.Errorf("upload.max_size_bytes must be positive, got %d", c.Upload.MaxSizeBytes)
	}
	if c.Transcription.Timeout <= 0 {
		return fmt.Errorf("transcription.timeout must be positive, got %s", c.Transcription.Timeout)
	}
	// A run younger than stale_after must be able to finish, or recovery
	// would fail it while the gateway call is still live.
	if c.Server.StaleAfter <= c.Transcription.Timeout {
		return fmt.Errorf("server.stale_after (%s) must exceed transcription.timeout (%s)", c.Server.StaleAfter, c.Transcription.Timeout)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.App.Environment == constant.EnvironmentProduction.String()
}

func (c *Config) OpenDB() (*sql.DB, error) {
	if c.Database.DSN == "" {
		return nil, errors.New("database.dsn is required")
	}
	return sql.Open("postgres", c.Database.DSN)
}
