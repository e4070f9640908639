// Package cfg loads service settings from an optional YAML file, an optional
// .env file and the process environment. Environment variables always win
// over values read from the file.
package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"eta-service/internal/common"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Settings struct {
	Port            int           `validate:"min=1,max=65535"`
	ModelPath       string        `validate:"required"`
	DataPath        string
	PythonPath      string
	PredictTimeout  time.Duration
	CacheTTL        time.Duration `validate:"gte=0"`
	CacheSize       int           `validate:"gte=0,lte=1000000"`
	RateLimitRPS    float64       `validate:"gte=0,lte=100000"`
	RateLimitBurst  int           `validate:"gte=1"`
	LogLevel        string        `validate:"loglevel"`
	LogFormat       string        `validate:"oneof=json console"`
	CORSOrigins     []string      `validate:"min=1,dive,required"`
	TrustedProxies  []string      `validate:"dive,ip|cidr"`
	ShutdownTimeout time.Duration
}

type ConfigFile struct {
	Server struct {
		Port            int      `yaml:"port"`
		CORSOrigins     []string `yaml:"corsOrigins"`
		TrustedProxies  []string `yaml:"trustedProxies"`
		ShutdownTimeout string   `yaml:"shutdownTimeout"`
		RateLimitRPS    float64  `yaml:"rateLimitRPS"`
		RateLimitBurst  int      `yaml:"rateLimitBurst"`
	} `yaml:"server"`

	Model struct {
		Path           string `yaml:"path"`
		PythonPath     string `yaml:"pythonPath"`
		PredictTimeout string `yaml:"predictTimeout"`
		CacheTTL       string `yaml:"cacheTTL"`
		CacheSize      int    `yaml:"cacheSize"`
	} `yaml:"model"`

	Storage struct {
		DataPath string `yaml:"dataPath"`
	} `yaml:"storage"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`
}

// Load reads settings. A .env file in the working directory is applied to
// the environment first (existing variables are not overwritten), then
// CONFIG_FILE selects YAML mode, otherwise everything comes from the
// environment.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return Settings{}, fmt.Errorf("failed to load .env file: %w", err)
	}

	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		return loadFromYAML(configPath)
	}

	return loadFromEnv()
}

func loadFromYAML(path string) (Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Settings{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return Settings{}, fmt.Errorf("failed to parse config file: %w", err)
	}

	predictTimeout, err := parseDurationOr(config.Model.PredictTimeout, common.DefaultPredictTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("model.predictTimeout: %w", err)
	}
	cacheTTL, err := parseDurationOr(config.Model.CacheTTL, common.DefaultCacheTTL)
	if err != nil {
		return Settings{}, fmt.Errorf("model.cacheTTL: %w", err)
	}
	shutdownTimeout, err := parseDurationOr(config.Server.ShutdownTimeout, common.DefaultShutdownTimeout)
	if err != nil {
		return Settings{}, fmt.Errorf("server.shutdownTimeout: %w", err)
	}

	corsOrigins := config.Server.CORSOrigins
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}

	settings := Settings{
		Port:            getIntFromEnvOrConfig(common.EnvPort, config.Server.Port, common.DefaultPort),
		ModelPath:       getEnvOrDefault(common.EnvModelPath, stringOr(config.Model.Path, common.DefaultModelPath)),
		DataPath:        getEnvOrDefault(common.EnvDataPath, config.Storage.DataPath),
		PythonPath:      getEnvOrDefault(common.EnvPythonPath, config.Model.PythonPath),
		PredictTimeout:  getDurationOrDefault(common.EnvPredictTimeout, predictTimeout),
		CacheTTL:        getDurationOrDefault(common.EnvCacheTTL, cacheTTL),
		CacheSize:       getIntFromEnvOrConfig(common.EnvCacheSize, config.Model.CacheSize, common.DefaultCacheSize),
		RateLimitRPS:    getFloatOrDefault(common.EnvRateLimitRPS, config.Server.RateLimitRPS),
		RateLimitBurst:  getIntFromEnvOrConfig(common.EnvRateLimitBurst, config.Server.RateLimitBurst, common.DefaultRateLimitBurst),
		LogLevel:        strings.ToLower(getEnvOrDefault(common.EnvLogLevel, stringOr(config.Logging.Level, common.DefaultLogLevel))),
		LogFormat:       strings.ToLower(getEnvOrDefault(common.EnvLogFormat, stringOr(config.Logging.Format, common.DefaultLogFormat))),
		CORSOrigins:     splitOrDefault(os.Getenv(common.EnvCORSOrigins), corsOrigins),
		TrustedProxies:  splitOrDefault(os.Getenv(common.EnvTrustedProxies), config.Server.TrustedProxies),
		ShutdownTimeout: getDurationOrDefault(common.EnvShutdownTimeout, shutdownTimeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

func loadFromEnv() (Settings, error) {
	settings := Settings{
		Port:            getIntOrDefault(common.EnvPort, common.DefaultPort),
		ModelPath:       getEnvOrDefault(common.EnvModelPath, common.DefaultModelPath),
		DataPath:        os.Getenv(common.EnvDataPath), // optional
		PythonPath:      os.Getenv(common.EnvPythonPath),
		PredictTimeout:  getDurationOrDefault(common.EnvPredictTimeout, common.DefaultPredictTimeout),
		CacheTTL:        getDurationOrDefault(common.EnvCacheTTL, common.DefaultCacheTTL),
		CacheSize:       getIntOrDefault(common.EnvCacheSize, common.DefaultCacheSize),
		RateLimitRPS:    getFloatOrDefault(common.EnvRateLimitRPS, 0),
		RateLimitBurst:  getIntOrDefault(common.EnvRateLimitBurst, common.DefaultRateLimitBurst),
		LogLevel:        strings.ToLower(getEnvOrDefault(common.EnvLogLevel, common.DefaultLogLevel)),
		LogFormat:       strings.ToLower(getEnvOrDefault(common.EnvLogFormat, common.DefaultLogFormat)),
		CORSOrigins:     splitOrDefault(os.Getenv(common.EnvCORSOrigins), []string{"*"}),
		TrustedProxies:  splitOrDefault(os.Getenv(common.EnvTrustedProxies), nil),
		ShutdownTimeout: getDurationOrDefault(common.EnvShutdownTimeout, common.DefaultShutdownTimeout),
	}

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}

	return settings, nil
}

// CacheEnabled reports whether model outputs should be cached.
func (s *Settings) CacheEnabled() bool {
	return s.CacheTTL > 0 && s.CacheSize > 0
}

// RecorderEnabled reports whether served predictions are persisted.
func (s *Settings) RecorderEnabled() bool {
	return s.DataPath != ""
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatOrDefault(key string, defaultValue float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getIntFromEnvOrConfig(key string, configValue, defaultValue int) int {
	if configValue != 0 {
		defaultValue = configValue
	}
	return getIntOrDefault(key, defaultValue)
}

func splitOrDefault(v string, def []string) []string {
	if v == "" {
		return def
	}
	parts := strings.Split(v, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func parseDurationOr(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	return time.ParseDuration(v)
}
