package main

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

type serviceConfig struct {
	Name         string
	LogLevel     string
	DebugAddr    string
	MaxLineBytes int
}

func defaultServiceConfig() serviceConfig {
	return serviceConfig{
		Name: "oraclectl",
	}
}

type fileConfig struct {
	Name         string `toml:"name"`
	LogLevel     string `toml:"log_level"`
	DebugAddr    string `toml:"debug_addr"`
	MaxLineBytes int    `toml:"max_line_bytes"`
}

func loadServiceConfig(path string) (serviceConfig, error) {
	cfg := defaultServiceConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return serviceConfig{}, fmt.Errorf("load oracle config: %w", err)
	}

	if meta.IsDefined("name") {
		name := strings.TrimSpace(raw.Name)
		if name != "" {
			cfg.Name = name
		}
	}

	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}

	if meta.IsDefined("debug_addr") {
		cfg.DebugAddr = strings.TrimSpace(raw.DebugAddr)
	}

	if meta.IsDefined("max_line_bytes") {
		if raw.MaxLineBytes < 0 {
			return serviceConfig{}, fmt.Errorf("parse max_line_bytes: must be non-negative, got %d", raw.MaxLineBytes)
		}
		cfg.MaxLineBytes = raw.MaxLineBytes
	}

	return cfg, nil
}
