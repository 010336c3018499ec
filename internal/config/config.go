// Package config loads AEGIS's YAML configuration with environment
// overrides, plus an fsnotify-driven hot-reload watcher for the
// orchestrator.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// OrchestratorConfig configures the central orchestrator process.
type OrchestratorConfig struct {
	Fleet                string        `yaml:"fleet"`
	ListenAddr           string        `yaml:"listen_addr"`
	MetricsAddr          string        `yaml:"metrics_addr"`
	LogLevel             string        `yaml:"log_level"`
	StalenessBound       time.Duration `yaml:"staleness_bound"`
	StalenessSweepPeriod time.Duration `yaml:"staleness_sweep_period"`
}

// AgentConfig configures one vehicle agent process.
type AgentConfig struct {
	VehicleID   string  `yaml:"vehicle_id"`
	Fleet       string  `yaml:"fleet"`
	FrequencyHz float64 `yaml:"frequency_hz"`
	LogLevel    string  `yaml:"log_level"`
	OriginLat   float64 `yaml:"origin_lat"`
	OriginLon   float64 `yaml:"origin_lon"`
}

// DefaultOrchestratorConfig returns the baseline configuration before any
// file or environment override is applied.
func DefaultOrchestratorConfig() OrchestratorConfig {
	return OrchestratorConfig{
		Fleet:                "city1",
		ListenAddr:           ":8080",
		MetricsAddr:          ":9090",
		LogLevel:             "info",
		StalenessBound:       5 * time.Minute,
		StalenessSweepPeriod: time.Minute,
	}
}

// DefaultAgentConfig returns the baseline agent configuration.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		Fleet:       "city1",
		FrequencyHz: 1.0,
		LogLevel:    "info",
	}
}

// LoadOrchestratorConfig reads path if it exists, applies it over the
// default, then applies AEGIS_ORCHESTRATOR_* environment overrides.
// A missing path is not an error — the defaults (plus env) apply.
func LoadOrchestratorConfig(path string, getenv func(string) string) (OrchestratorConfig, error) {
	cfg := DefaultOrchestratorConfig()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if v := getenv("AEGIS_ORCHESTRATOR_FLEET"); v != "" {
		cfg.Fleet = v
	}
	if v := getenv("AEGIS_ORCHESTRATOR_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := getenv("AEGIS_ORCHESTRATOR_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := getenv("AEGIS_ORCHESTRATOR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv("AEGIS_ORCHESTRATOR_STALENESS_BOUND"); v != "" {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return cfg, fmt.Errorf("invalid AEGIS_ORCHESTRATOR_STALENESS_BOUND %q: %w", v, err)
		}
		cfg.StalenessBound = d
	}

	return cfg, nil
}

// LoadAgentConfig reads path if it exists, applies it over the default,
// then applies AEGIS_AGENT_* environment overrides.
func LoadAgentConfig(path string, getenv func(string) string) (AgentConfig, error) {
	cfg := DefaultAgentConfig()

	if path != "" {
		if data, err := os.ReadFile(path); err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config file %s: %w", path, err)
			}
		} else if !os.IsNotExist(err) {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}

	if v := getenv("AEGIS_AGENT_VEHICLE_ID"); v != "" {
		cfg.VehicleID = v
	}
	if v := getenv("AEGIS_AGENT_FLEET"); v != "" {
		cfg.Fleet = v
	}
	if v := getenv("AEGIS_AGENT_FREQUENCY_HZ"); v != "" {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return cfg, fmt.Errorf("invalid AEGIS_AGENT_FREQUENCY_HZ %q: %w", v, err)
		}
		cfg.FrequencyHz = f
	}
	if v := getenv("AEGIS_AGENT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}

	if cfg.FrequencyHz < 0.1 || cfg.FrequencyHz > 10.0 {
		return cfg, fmt.Errorf("frequency_hz %.3f out of declared range [0.1, 10.0]", cfg.FrequencyHz)
	}

	return cfg, nil
}
