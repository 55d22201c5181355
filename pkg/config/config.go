// Package config loads engine configuration from defaults, an optional YAML
// file, and CLADE_-prefixed environment variables, in that order of
// precedence.
package config

import (
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type Config struct {
	Log        LogConfig        `koanf:"log"`
	LLM        LLMConfig        `koanf:"llm"`
	Resilience ResilienceConfig `koanf:"resilience"`
	Evolution  EvolutionConfig  `koanf:"evolution"`
	Telemetry  TelemetryConfig  `koanf:"telemetry"`
	Archive    ArchiveConfig    `koanf:"archive"`
	Server     ServerConfig     `koanf:"server"`
}

type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json, text
}

type LLMConfig struct {
	Provider string `koanf:"provider"` // gemini, ollama, mock
	Model    string `koanf:"model"`
	BaseURL  string `koanf:"base_url"`
	// APIKeys is a comma-separated credential pool.
	APIKeys string `koanf:"api_keys"`
}

// Keys returns the credential pool as a slice, empty entries dropped.
func (c LLMConfig) Keys() []string {
	var keys []string
	for _, k := range strings.Split(c.APIKeys, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

type ResilienceConfig struct {
	MaxAttempts        int           `koanf:"max_attempts"`
	CallTimeout        time.Duration `koanf:"call_timeout"`
	QuarantineCooldown time.Duration `koanf:"quarantine_cooldown"`
}

type EvolutionConfig struct {
	ConvergenceThreshold float64 `koanf:"convergence_threshold"`
	EnableSpawning       bool    `koanf:"enable_spawning"`
	SpawnRole            string  `koanf:"spawn_role"`
	MaxIterations        int     `koanf:"max_iterations"`
	MaxAgents            int     `koanf:"max_agents"`
}

type TelemetryConfig struct {
	Exporter     string `koanf:"exporter"` // stdout, otlp
	OTLPEndpoint string `koanf:"otlp_endpoint"`
	OTLPInsecure bool   `koanf:"otlp_insecure"`
}

type ArchiveConfig struct {
	Driver string `koanf:"driver"` // memory, sqlite
	Path   string `koanf:"path"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration. path may be empty to skip the file layer.
// Environment keys use double underscore as the section separator:
// CLADE_LLM__API_KEYS maps to llm.api_keys.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	// Defaults
	k.Set("log.level", "info")
	k.Set("log.format", "text")

	k.Set("llm.provider", "gemini")
	k.Set("llm.model", "gemini-3-flash-preview")
	k.Set("llm.base_url", "")
	k.Set("llm.api_keys", "")

	k.Set("resilience.max_attempts", 3)
	k.Set("resilience.call_timeout", "2m")
	k.Set("resilience.quarantine_cooldown", "1m")

	k.Set("evolution.convergence_threshold", 0.85)
	k.Set("evolution.enable_spawning", true)
	k.Set("evolution.spawn_role", "ideator")
	k.Set("evolution.max_iterations", 10)
	k.Set("evolution.max_agents", 12)

	k.Set("telemetry.exporter", "stdout")
	k.Set("telemetry.otlp_endpoint", "")
	k.Set("telemetry.otlp_insecure", false)

	k.Set("archive.driver", "memory")
	k.Set("archive.path", "clade.db")

	k.Set("server.addr", ":8080")
	k.Set("server.shutdown_timeout", "10s")

	// 1. Load from file
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, err
		}
	}

	// 2. Load from ENV (CLADE_LLM__API_KEYS -> llm.api_keys)
	if err := k.Load(env.Provider("CLADE_", ".", func(s string) string {
		return strings.Replace(strings.ToLower(
			strings.TrimPrefix(s, "CLADE_")), "__", ".", -1)
	}), nil); err != nil {
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
