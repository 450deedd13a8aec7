package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"

	"github.com/rebbit-player/rebbit/internal/platform"
)

type Config struct {
	Debug bool `mapstructure:"debug"`

	Storage struct {
		DatabasePath  string `mapstructure:"database_path"`
		CoverCacheDir string `mapstructure:"cover_cache_dir"`
		EnableWAL     bool   `mapstructure:"enable_wal"`
	} `mapstructure:"storage"`

	Library struct {
		MusicDir   string   `mapstructure:"music_dir"`
		Extensions []string `mapstructure:"extensions"`
	} `mapstructure:"library"`

	Audio struct {
		SampleRate    int     `mapstructure:"sample_rate"`
		BufferSize    int     `mapstructure:"buffer_size"`
		DefaultVolume float64 `mapstructure:"default_volume"`
	} `mapstructure:"audio"`

	Fetch struct {
		MaxConcurrent     int `mapstructure:"max_concurrent"`
		SearchLimit       int `mapstructure:"search_limit"`
		RequestsPerSecond int `mapstructure:"requests_per_second"`
		BurstSize         int `mapstructure:"burst_size"`
	} `mapstructure:"fetch"`

	Update struct {
		Enabled   bool   `mapstructure:"enabled"`
		ReadmeURL string `mapstructure:"readme_url"`
		Timeout   int    `mapstructure:"timeout"`
	} `mapstructure:"update"`
}

func Load(configPath string) (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	if configPath != "" {
		viper.SetConfigFile(configPath)
	} else {
		configDir, err := platform.GetConfigDir()
		if err != nil {
			return nil, err
		}
		viper.AddConfigPath(configDir)
		viper.AddConfigPath(".")
	}

	viper.SetEnvPrefix("REBBIT")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("debug", false)

	dataDir, _ := platform.GetDataDir()
	cacheDir, _ := platform.GetCacheDir()
	musicDir, _ := platform.GetMusicDir()

	viper.SetDefault("storage.database_path", filepath.Join(dataDir, "rebbit.db"))
	viper.SetDefault("storage.cover_cache_dir", filepath.Join(cacheDir, "covers"))
	viper.SetDefault("storage.enable_wal", true)

	viper.SetDefault("library.music_dir", musicDir)
	viper.SetDefault("library.extensions", []string{".mp3"})

	viper.SetDefault("audio.sample_rate", 44100)
	viper.SetDefault("audio.buffer_size", getDefaultBufferSize())
	viper.SetDefault("audio.default_volume", 0.7)

	viper.SetDefault("fetch.max_concurrent", 3)
	viper.SetDefault("fetch.search_limit", 5)
	viper.SetDefault("fetch.requests_per_second", 2)
	viper.SetDefault("fetch.burst_size", 2)

	viper.SetDefault("update.enabled", true)
	viper.SetDefault("update.readme_url", "https://raw.githubusercontent.com/rebbit-player/rebbit/main/README.md")
	viper.SetDefault("update.timeout", 15)
}

func getDefaultBufferSize() int {
	switch runtime.GOOS {
	case "linux":
		return 16384
	default:
		return 8192
	}
}

func ensureDirectories(cfg *Config) error {
	dirs := []string{
		filepath.Dir(cfg.Storage.DatabasePath),
		cfg.Storage.CoverCacheDir,
		cfg.Library.MusicDir,
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	return nil
}

func (c *Config) Save() error {
	configDir, err := platform.GetConfigDir()
	if err != nil {
		return err
	}

	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	configFile := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configFile)
}
