package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

//go:embed config.yml
var embeddedConfig []byte

type Config struct {
	Mode     string `mapstructure:"mode"`
	Dotenv   string `mapstructure:"dotenv"`
	Handlers struct {
		Prometheus struct {
			Port string `mapstructure:"port"`
		} `mapstructure:"prometheus"`
	} `mapstructure:"handlers"`
	Repositories struct {
		Postgres struct {
			Host              string `mapstructure:"host"`
			Password          string `mapstructure:"password"`
			Port              string `mapstructure:"port"`
			Username          string `mapstructure:"username"`
			DB                string `mapstructure:"db"`
			SSLMODE           string `mapstructure:"SSLMODE"`
			MAXCONWAITINGTIME int    `mapstructure:"MAXCONWAITINGTIME"`
		} `mapstructure:"postgres"`
	}
	Server struct {
		HTTPPort string        `mapstructure:"HTTPPort"`
		Timeout  time.Duration `mapstructure:"HTTPTimeout"`
	} `mapstructure:"server"`
	Geocoding struct {
		RegionCode     string        `mapstructure:"regionCode"`
		BiasRadiusM    float64       `mapstructure:"biasRadiusM"`
		Timeout        time.Duration `mapstructure:"timeout"`
		CacheTTL       time.Duration `mapstructure:"cacheTTL"`
		CacheCleanup   time.Duration `mapstructure:"cacheCleanup"`
		WeatherDays    int           `mapstructure:"weatherDays"`
		FallbackTZ     string        `mapstructure:"fallbackTimezone"`
		ResolveWorkers int           `mapstructure:"resolveWorkers"`
	} `mapstructure:"geocoding"`
	Embedding struct {
		Model     string `mapstructure:"model"`
		Dimension int    `mapstructure:"dimension"`
	} `mapstructure:"embedding"`
	Pipeline struct {
		BaseLocation    string  `mapstructure:"baseLocation"`
		BiasLat         float64 `mapstructure:"biasLat"`
		BiasLon         float64 `mapstructure:"biasLon"`
		SearchLimit     int     `mapstructure:"searchLimit"`
		NumberOfResults int     `mapstructure:"numberOfResults"`
	} `mapstructure:"pipeline"`
}

func InitConfig() (Config, error) {
	var config Config
	v := viper.New()

	// Add file-based config paths
	v.AddConfigPath(".")
	v.AddConfigPath("config")
	v.AddConfigPath("/app/config")

	v.SetConfigName("config")
	v.SetConfigType("yml")

	// Try to load file-based config
	err := v.ReadInConfig()
	if err != nil {
		fmt.Printf("Warning: Failed to find file-based config: %s. Falling back to embedded config.\n", err)
		if err = v.ReadConfig(bytes.NewReader(embeddedConfig)); err != nil {
			return Config{}, fmt.Errorf("failed to read embedded config: %s", err)
		}
	}

	// Unmarshal the config into the Config struct
	if err = v.Unmarshal(&config); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %s", err)
	}
	return config, nil
}
