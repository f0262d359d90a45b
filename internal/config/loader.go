package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rpattn/eligibility/internal/db"

	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. ELIGIBILITY_DATABASE_HOST.
const EnvPrefix = "ELIGIBILITY"

// Config is the full runtime configuration of the service.
type Config struct {
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Matching MatchingConfig `mapstructure:"matching"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Log      LogConfig      `mapstructure:"log"`
}

type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"dbname"`
	SSLMode          string        `mapstructure:"sslmode"`
	MaxConns         int32         `mapstructure:"max_conns"`
	MinConns         int32         `mapstructure:"min_conns"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	ConnectTimeout   time.Duration `mapstructure:"connect_timeout"`
}

type ServerConfig struct {
	Addr           string   `mapstructure:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	MaxUploadBytes int64    `mapstructure:"max_upload_bytes"`
}

type PipelineConfig struct {
	Workers        int           `mapstructure:"workers"`
	BatchSize      int           `mapstructure:"batch_size"`
	JobTimeout     time.Duration `mapstructure:"job_timeout"`
	StorageTimeout time.Duration `mapstructure:"storage_timeout"`
}

type MatchingConfig struct {
	MinScore float64 `mapstructure:"min_score"`
}

type CacheConfig struct {
	StatusSize int `mapstructure:"status_size"`
}

type LogConfig struct {
	JSON  bool `mapstructure:"json"`
	Debug bool `mapstructure:"debug"`
}

// DB converts the database section into the connection settings used by internal/db.
func (c DatabaseConfig) DB() db.Config {
	return db.Config{
		Host:             c.Host,
		Port:             c.Port,
		User:             c.User,
		Password:         c.Password,
		DBName:           c.DBName,
		SSLMode:          c.SSLMode,
		MaxConns:         c.MaxConns,
		MinConns:         c.MinConns,
		StatementTimeout: c.StatementTimeout,
		ConnectTimeout:   c.ConnectTimeout,
	}
}

// SetDefaults registers every known key so environment overrides resolve during Unmarshal.
func SetDefaults(v *viper.Viper) {
	dbDefaults := db.DefaultConfig()
	v.SetDefault("database.host", dbDefaults.Host)
	v.SetDefault("database.port", dbDefaults.Port)
	v.SetDefault("database.user", dbDefaults.User)
	v.SetDefault("database.password", dbDefaults.Password)
	v.SetDefault("database.dbname", dbDefaults.DBName)
	v.SetDefault("database.sslmode", dbDefaults.SSLMode)
	v.SetDefault("database.max_conns", dbDefaults.MaxConns)
	v.SetDefault("database.min_conns", dbDefaults.MinConns)
	v.SetDefault("database.statement_timeout", dbDefaults.StatementTimeout)
	v.SetDefault("database.connect_timeout", dbDefaults.ConnectTimeout)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_upload_bytes", int64(50<<20))

	v.SetDefault("pipeline.workers", 8)
	v.SetDefault("pipeline.batch_size", 500)
	v.SetDefault("pipeline.job_timeout", 30*time.Minute)
	v.SetDefault("pipeline.storage_timeout", 15*time.Second)

	v.SetDefault("matching.min_score", 0.0)
	v.SetDefault("cache.status_size", 1024)

	v.SetDefault("log.json", false)
	v.SetDefault("log.debug", false)
}

// Load reads configuration from defaults, an optional yaml file and the environment.
// configFile may name a file directly or a directory holding config.yaml.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	switch {
	case configFile == "":
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	case filepath.Ext(configFile) == "":
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configFile)
	default:
		v.SetConfigFile(configFile)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		// An explicit file that is missing is an error; the implicit lookup is optional.
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Pipeline.Workers <= 0 {
		return errors.New("pipeline.workers must be positive")
	}
	if c.Pipeline.BatchSize <= 0 {
		return errors.New("pipeline.batch_size must be positive")
	}
	if c.Matching.MinScore < 0 || c.Matching.MinScore > 100 {
		return errors.New("matching.min_score must be between 0 and 100")
	}
	if c.Server.MaxUploadBytes <= 0 {
		return errors.New("server.max_upload_bytes must be positive")
	}
	return nil
}
