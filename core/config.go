package core

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration values for the server.
type Config struct {
	// Telemetry
	HistoryCapacity int           `yaml:"history_capacity"`
	BackendOverride string        `yaml:"backend_override"` // auto, nvml, jetson, none
	DeviceIndex     int           `yaml:"device_index"`
	PollInterval    time.Duration `yaml:"poll_interval"`

	// Inference
	VLMModel               string        `yaml:"vlm_model"`
	VLMAPIBase             string        `yaml:"vlm_api_base"`
	VLMAPIKey              string        `yaml:"vlm_api_key"`
	VLMPrompt              string        `yaml:"vlm_prompt"`
	SamplingIntervalFrames int           `yaml:"sampling_interval_frames"`
	InferenceTimeout       time.Duration `yaml:"inference_timeout"`

	// Server
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Persistence (empty path disables the snapshot store)
	SnapshotDBPath string `yaml:"snapshot_db_path"`

	// Operational
	DevMode bool   `yaml:"dev_mode"`
	LogFile string `yaml:"log_file"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() Config {
	return Config{
		HistoryCapacity:        60,
		BackendOverride:        "auto",
		DeviceIndex:            0,
		PollInterval:           time.Second,
		VLMAPIBase:             "http://localhost:8000/v1",
		VLMAPIKey:              "EMPTY",
		VLMPrompt:              "Describe what you see in this image in one sentence.",
		SamplingIntervalFrames: 30,
		InferenceTimeout:       60 * time.Second,
		Host:                   "0.0.0.0",
		Port:                   8080,
		LogFile:                "livevlm.log",
	}
}

// ConfigFileEnv names the environment variable pointing at an optional YAML
// configuration file. Environment variables override file values.
const ConfigFileEnv = "LIVEVLM_CONFIG"

// LoadConfig builds the effective configuration: defaults, then the optional
// YAML file, then environment variables.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()

	if path := os.Getenv(ConfigFileEnv); path != "" {
		if err := applyConfigFile(&cfg, path); err != nil {
			return cfg, err
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyConfigFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("core: read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("core: parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.HistoryCapacity = ParseIntEnv("HISTORY_CAPACITY", cfg.HistoryCapacity)
	cfg.BackendOverride = GetEnvOrDefault("BACKEND_OVERRIDE", cfg.BackendOverride)
	cfg.DeviceIndex = ParseIntEnv("DEVICE_INDEX", cfg.DeviceIndex)
	cfg.PollInterval = ParseDurationEnv("POLL_INTERVAL", cfg.PollInterval)

	cfg.VLMModel = GetEnvOrDefault("VLM_MODEL", cfg.VLMModel)
	cfg.VLMAPIBase = GetEnvOrDefault("VLM_API_BASE", cfg.VLMAPIBase)
	cfg.VLMAPIKey = GetEnvOrDefault("VLM_API_KEY", cfg.VLMAPIKey)
	cfg.VLMPrompt = GetEnvOrDefault("VLM_PROMPT", cfg.VLMPrompt)
	cfg.SamplingIntervalFrames = ParseIntEnv("SAMPLING_INTERVAL_FRAMES", cfg.SamplingIntervalFrames)
	cfg.InferenceTimeout = ParseDurationEnv("INFERENCE_TIMEOUT", cfg.InferenceTimeout)

	cfg.Host = GetEnvOrDefault("HOST", cfg.Host)
	cfg.Port = ParseIntEnv("PORT", cfg.Port)

	cfg.SnapshotDBPath = GetEnvOrDefault("SNAPSHOT_DB_PATH", cfg.SnapshotDBPath)

	cfg.DevMode = ParseBoolEnv("DEV_MODE", cfg.DevMode)
	cfg.LogFile = GetEnvOrDefault("LOG_FILE", cfg.LogFile)
}

// Validate rejects configurations that cannot produce a working server.
func (c Config) Validate() error {
	if c.HistoryCapacity < 1 {
		return fmt.Errorf("core: history_capacity must be >= 1, got %d", c.HistoryCapacity)
	}
	if c.SamplingIntervalFrames < 1 {
		return fmt.Errorf("core: sampling_interval_frames must be >= 1, got %d", c.SamplingIntervalFrames)
	}
	if c.DeviceIndex < 0 {
		return fmt.Errorf("core: device_index must be >= 0, got %d", c.DeviceIndex)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("core: port out of range: %d", c.Port)
	}
	switch c.BackendOverride {
	case "", "auto", "nvml", "jetson", "none":
	default:
		return fmt.Errorf("core: unknown backend_override %q", c.BackendOverride)
	}
	return nil
}
