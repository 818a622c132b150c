package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const configName = "weathermap.json"

type Config struct {
	LogLevel string         `mapstructure:"logLevel"`
	Server   ServerConfig   `mapstructure:"server"`
	Maps     MapsConfig     `mapstructure:"maps"`
	Weather  WeatherConfig  `mapstructure:"weather"`
	Geocoder GeocoderConfig `mapstructure:"geocoder"`
	Telegram TelegramConfig `mapstructure:"telegram"`
	History  HistoryConfig  `mapstructure:"history"`
	Session  SessionConfig  `mapstructure:"session"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
}

// MapsConfig describes the browser map surface.
type MapsConfig struct {
	APIKey     string  `mapstructure:"apiKey"`
	CenterLat  float64 `mapstructure:"centerLat"`
	CenterLng  float64 `mapstructure:"centerLng"`
	Zoom       int     `mapstructure:"zoom"`
	SearchZoom int     `mapstructure:"searchZoom"`
}

type WeatherConfig struct {
	APIKey        string        `mapstructure:"apiKey"`
	BaseURL       string        `mapstructure:"baseUrl"`
	Units         string        `mapstructure:"units"`
	Timeout       time.Duration `mapstructure:"timeout"`
	FailurePolicy string        `mapstructure:"failurePolicy"`
}

type GeocoderConfig struct {
	BaseURL         string        `mapstructure:"baseUrl"`
	UserAgent       string        `mapstructure:"userAgent"`
	Language        string        `mapstructure:"language"`
	SuggestionLimit int           `mapstructure:"suggestionLimit"`
	Timeout         time.Duration `mapstructure:"timeout"`
}

type TelegramConfig struct {
	Token string `mapstructure:"token"`
}

type SessionConfig struct {
	IdleTimeout   time.Duration `mapstructure:"idleTimeout"`
	SweepInterval time.Duration `mapstructure:"sweepInterval"`
}

type HistoryConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// envBindings maps keys to the plain variable names used in deployments and .env files.
var envBindings = map[string]string{
	"maps.apiKey":    "MAPS_API_KEY",
	"weather.apiKey": "WEATHER_API_KEY",
	"telegram.token": "TG_BOT_TOKEN",
	"server.port":    "PORT",
	"logLevel":       "LOG_LEVEL",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logLevel", "info")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdownTimeout", "10s")

	v.SetDefault("maps.apiKey", "")
	v.SetDefault("maps.centerLat", 39.7392)
	v.SetDefault("maps.centerLng", -104.9903)
	v.SetDefault("maps.zoom", 5)
	v.SetDefault("maps.searchZoom", 14)

	v.SetDefault("weather.apiKey", "")
	v.SetDefault("weather.baseUrl", "https://api.openweathermap.org")
	v.SetDefault("weather.units", "imperial")
	v.SetDefault("weather.timeout", "10s")
	v.SetDefault("weather.failurePolicy", "report")

	v.SetDefault("geocoder.baseUrl", "https://nominatim.openstreetmap.org")
	v.SetDefault("geocoder.userAgent", "weather-map/1.0")
	v.SetDefault("geocoder.language", "en")
	v.SetDefault("geocoder.suggestionLimit", 5)
	v.SetDefault("geocoder.timeout", "10s")

	v.SetDefault("telegram.token", "")

	v.SetDefault("history.enabled", false)
	v.SetDefault("history.path", "weathermap.db")

	v.SetDefault("session.idleTimeout", "30m")
	v.SetDefault("session.sweepInterval", "1m")
}

// Load builds the configuration from defaults, an optional weathermap.json in
// configDir and the environment, in increasing order of precedence. Every key
// can also be set as WEATHERMAP_<SECTION>_<KEY>.
func Load(configDir string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("weathermap")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range envBindings {
		if err := v.BindEnv(key, "WEATHERMAP_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("binding %s: %w", env, err)
		}
	}

	if configDir != "" {
		v.SetConfigName(configName)
		v.SetConfigType("json")
		v.AddConfigPath(configDir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return cfg, nil
}

//LoadDotEnv loads variables from the given .env files (".env" when none) without overriding the environment.
func LoadDotEnv(files ...string) error {
	return godotenv.Load(files...)
}

//MissingCredentials lists the credential variables that are unset.
func (c *Config) MissingCredentials() []string {
	var missing []string
	if c.Maps.APIKey == "" {
		missing = append(missing, envBindings["maps.apiKey"])
	}
	if c.Weather.APIKey == "" {
		missing = append(missing, envBindings["weather.apiKey"])
	}
	if c.Telegram.Token == "" {
		missing = append(missing, envBindings["telegram.token"])
	}
	return missing
}
