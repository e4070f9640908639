package cfg

import (
	"strings"
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	return &Settings{
		Port:            5001,
		ModelPath:       "models",
		PredictTimeout:  5 * time.Second,
		CacheTTL:        time.Minute,
		CacheSize:       100,
		RateLimitBurst:  20,
		LogLevel:        "info",
		LogFormat:       "json",
		CORSOrigins:     []string{"*"},
		ShutdownTimeout: 10 * time.Second,
	}
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	if err := validateSettings(createValidSettings()); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *Settings)
		wantMsg string
	}{
		{"zero port", func(s *Settings) { s.Port = 0 }, "Port"},
		{"empty model path", func(s *Settings) { s.ModelPath = "" }, "ModelPath"},
		{"negative cache size", func(s *Settings) { s.CacheSize = -1 }, "CacheSize"},
		{"negative rate limit", func(s *Settings) { s.RateLimitRPS = -1 }, "RateLimitRPS"},
		{"zero burst", func(s *Settings) { s.RateLimitBurst = 0 }, "RateLimitBurst"},
		{"empty log level", func(s *Settings) { s.LogLevel = "" }, "LogLevel"},
		{"bad log format", func(s *Settings) { s.LogFormat = "text" }, "LogFormat"},
		{"no cors origins", func(s *Settings) { s.CORSOrigins = nil }, "CORSOrigins"},
		{"empty cors origin", func(s *Settings) { s.CORSOrigins = []string{""} }, "CORSOrigins"},
		{"predict timeout too long", func(s *Settings) { s.PredictTimeout = 2 * time.Minute }, "predict timeout"},
		{"zero shutdown timeout", func(s *Settings) { s.ShutdownTimeout = 0 }, "shutdown timeout"},
		{"bad trusted proxy", func(s *Settings) { s.TrustedProxies = []string{"10.0.0.0/33"} }, "TrustedProxies"},
		{"negative cache ttl", func(s *Settings) { s.CacheTTL = -time.Second }, "CacheTTL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)

			err := validateSettings(settings)
			if err == nil {
				t.Fatal("expected validation error, got nil")
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("expected error mentioning %q, got %v", tt.wantMsg, err)
			}
		})
	}
}
