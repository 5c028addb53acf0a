package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	BackendPostgREST = "postgrest"
	BackendPostgres  = "postgres"
)

type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Auth     AuthConfig     `mapstructure:"auth" yaml:"auth"`
	Log      LogConfig      `mapstructure:"log" yaml:"log"`
	Store    StoreConfig    `mapstructure:"store" yaml:"store"`

	Port string `mapstructure:"port" yaml:"port"`
}

type CatalogConfig struct {
	Backend  string `mapstructure:"backend" yaml:"backend"`
	BaseURL  string `mapstructure:"base_url" yaml:"base_url"`
	AnonKey  string `mapstructure:"anon_key" yaml:"anon_key"`
	DSN      string `mapstructure:"dsn" yaml:"dsn"`
	CacheDir string `mapstructure:"cache_dir" yaml:"cache_dir"`
}

type DownloadConfig struct {
	LibraryDir     string        `mapstructure:"library_dir" yaml:"library_dir"`
	UserAgent      string        `mapstructure:"user_agent" yaml:"user_agent"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout" yaml:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`
	ChunkSize      int           `mapstructure:"chunk_size" yaml:"chunk_size"`
}

type AuthConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
	AnonKey string `mapstructure:"anon_key" yaml:"anon_key"`
	Secret  string `mapstructure:"secret" yaml:"secret"`
}

type LogConfig struct {
	Path          string `mapstructure:"path" yaml:"path"`
	Level         string `mapstructure:"level" yaml:"level"`
	IncludeStdout bool   `mapstructure:"include_stdout" yaml:"include_stdout"`
}

type StoreConfig struct {
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

func Load(path string) (*Config, error) {

	if path == "" {
		path = "config.yaml"
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		// Containers mount the config under /config
		if path == "config.yaml" {
			if _, errEx := os.Stat("/config/config.yaml"); errEx == nil {
				path = "/config/config.yaml"
			} else if _, errEx := os.Stat("config.yaml.example"); errEx == nil {
				return nil, fmt.Errorf("configuration file 'config.yaml' not found\n\n" +
					"To fix this, run:\n" +
					"  cp config.yaml.example config.yaml\n" +
					"Then edit it with your catalog URL and anon key.")
			} else {
				return nil, fmt.Errorf("config file not found: %s", path)
			}
		} else {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// OPTOLIB_CATALOG_ANON_KEY etc.
	v.SetEnvPrefix("OPTOLIB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("catalog.backend", BackendPostgREST)
	// Empty defaults register the keys so AutomaticEnv can fill them
	v.SetDefault("catalog.base_url", "")
	v.SetDefault("catalog.anon_key", "")
	v.SetDefault("catalog.dsn", "")
	v.SetDefault("auth.base_url", "")
	v.SetDefault("auth.anon_key", "")
	v.SetDefault("auth.secret", "")
	v.SetDefault("catalog.cache_dir", "./data/catalog")
	v.SetDefault("download.library_dir", "./data/library")
	v.SetDefault("download.user_agent", "optolib/1.0")
	v.SetDefault("download.connect_timeout", 30*time.Second)
	v.SetDefault("download.read_timeout", 30*time.Second)
	v.SetDefault("download.chunk_size", 8*1024)
	v.SetDefault("store.sqlite_path", "./data/optolib.db")
	v.SetDefault("log.path", "optolib.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.include_stdout", true)
}

func (c *Config) validate() error {
	switch c.Catalog.Backend {
	case BackendPostgREST:
		if c.Catalog.BaseURL == "" {
			return errors.New("catalog: base_url is required for the postgrest backend")
		}
		if _, err := url.ParseRequestURI(c.Catalog.BaseURL); err != nil {
			return fmt.Errorf("catalog: invalid base_url: %w", err)
		}
		if c.Catalog.AnonKey == "" {
			fmt.Println("Warning: catalog.anon_key is empty, requests will be anonymous")
		}
	case BackendPostgres:
		if c.Catalog.DSN == "" {
			return errors.New("catalog: dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("catalog: unknown backend %q", c.Catalog.Backend)
	}

	if c.Auth.BaseURL == "" {
		// Supabase serves auth from the same project URL
		c.Auth.BaseURL = c.Catalog.BaseURL
	}
	if c.Auth.AnonKey == "" {
		c.Auth.AnonKey = c.Catalog.AnonKey
	}

	if c.Download.LibraryDir == "" {
		c.Download.LibraryDir = "./data/library"
	}

	if c.Download.ChunkSize <= 0 {
		c.Download.ChunkSize = 8 * 1024
	}

	if c.Download.ConnectTimeout <= 0 {
		c.Download.ConnectTimeout = 30 * time.Second
	}

	if c.Download.ReadTimeout <= 0 {
		c.Download.ReadTimeout = 30 * time.Second
	}

	return nil
}
