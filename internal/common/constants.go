package common

import "time"

// Environment variable keys
const (
	EnvConfigFile      = "CONFIG_FILE"
	EnvPort            = "ML_SERVICE_PORT"
	EnvModelPath       = "MODEL_PATH"
	EnvDataPath        = "DATA_PATH"
	EnvPythonPath      = "PYTHON_PATH"
	EnvPredictTimeout  = "PREDICT_TIMEOUT"
	EnvCacheTTL        = "CACHE_TTL"
	EnvCacheSize       = "CACHE_SIZE"
	EnvRateLimitRPS    = "RATE_LIMIT_RPS"
	EnvRateLimitBurst  = "RATE_LIMIT_BURST"
	EnvLogLevel        = "LOG_LEVEL"
	EnvLogFormat       = "LOG_FORMAT"
	EnvCORSOrigins     = "CORS_ORIGINS"
	EnvTrustedProxies  = "TRUSTED_PROXIES"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
	EnvServiceURL      = "ML_SERVICE_URL"
)

// Configuration defaults
const (
	DefaultPort            = 5001
	DefaultModelPath       = "models" // directory; the newest eta_model*.json is served
	DefaultPredictTimeout  = 5 * time.Second
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheSize       = 10000
	DefaultRateLimitBurst  = 20
	DefaultLogLevel        = "info"
	DefaultLogFormat       = "json"
	DefaultShutdownTimeout = 10 * time.Second
	DefaultServiceURL      = "http://localhost:5001"
	DefaultClientTimeout   = 5 * time.Second
)

// Validation constants
const (
	MinPort              = 1
	MaxPort              = 65535
	MinPredictTimeout    = 100 * time.Millisecond
	MaxPredictTimeout    = time.Minute
	MaxShutdownTimeout   = 5 * time.Minute
	MaxRateLimitRPS      = 100000
	MaxCacheSize         = 1000000
	DefaultDatabaseFile  = "eta-predictions.db"
	RoadDistanceFactor   = 1.3 // road distance is roughly 30% longer than straight line
	EarthRadiusKilometer = 6371.0
)
