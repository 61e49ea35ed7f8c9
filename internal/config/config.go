package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"wikidump/internal/logging"
)

type Config struct {
	Index    IndexConfig    `mapstructure:"index" yaml:"index"`
	Download DownloadConfig `mapstructure:"download" yaml:"download"`
	Catalog  CatalogConfig  `mapstructure:"catalog" yaml:"catalog"`
	Log      logging.Config `mapstructure:"log" yaml:"log"`
}

type IndexConfig struct {
	// IndexURL is the global backup index listing every site.
	IndexURL string `mapstructure:"index_url" yaml:"index_url"`

	// BaseURL is the mirror root that per-site listings, status files
	// and dump files hang off of.
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

type DownloadConfig struct {
	// DataDir receives downloaded dumps, laid out as site/date/filename.
	DataDir string `mapstructure:"data_dir" yaml:"data_dir"`

	// IdleTimeout aborts a download when no bytes arrive for this long.
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// ProgressInterval is how often download progress is logged.
	ProgressInterval time.Duration `mapstructure:"progress_interval" yaml:"progress_interval"`

	// ChecksumPreference orders digest algorithms from most to least
	// preferred when the index advertises several.
	ChecksumPreference []string `mapstructure:"checksum_preference" yaml:"checksum_preference"`
}

type CatalogConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

func Load(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("index.index_url", "https://dumps.wikimedia.org/backup-index.html")
	v.SetDefault("index.base_url", "https://dumps.wikimedia.org")
	v.SetDefault("download.data_dir", "./dumps")
	v.SetDefault("download.idle_timeout", "30s")
	v.SetDefault("download.progress_interval", "10s")
	v.SetDefault("download.checksum_preference", []string{"sha256", "sha1", "md5"})
	v.SetDefault("catalog.path", "./dumps/catalog.db")
	v.SetDefault("log.level", "info")

	if path != "" {
		if _, err := os.Stat(path); err != nil {
			return nil, fmt.Errorf("config file not found: %s", path)
		}
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	}

	// Support environment variables
	v.SetEnvPrefix("WIKIDUMP")
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

func (c *Config) validate() error {
	if c.Index.IndexURL == "" {
		return fmt.Errorf("index.index_url is required")
	}
	if c.Index.BaseURL == "" {
		return fmt.Errorf("index.base_url is required")
	}
	if c.Download.DataDir == "" {
		c.Download.DataDir = "./dumps"
	}
	if c.Download.IdleTimeout <= 0 {
		c.Download.IdleTimeout = 30 * time.Second
	}
	if c.Download.ProgressInterval <= 0 {
		c.Download.ProgressInterval = 10 * time.Second
	}
	if len(c.Download.ChecksumPreference) == 0 {
		c.Download.ChecksumPreference = []string{"sha256", "sha1", "md5"}
	}
	return nil
}
