/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package config reads process-level configuration from the environment:
// where to bind the HTTP/SSE API, how to reach the database, and the
// audio device / metrics settings that apply before the database's own
// settings table is loaded.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// DatabaseBackend selects the gorm driver used to open the store.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment
// variables. Everything that can change at runtime (decode stream
// budget, ring buffer sizing, working sample rate, volume, the shared
// API secret) lives in the settings table instead; see internal/engine.
type Config struct {
	Environment string
	HTTPBind    string
	HTTPPort    int
	DBBackend   DatabaseBackend
	DBDSN       string
	MetricsBind string
	AudioDevice string // portaudio output device name, "" selects the system default
	NATSURL     string // sibling-process event bridge; falls back to log-only if unreachable
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment: getEnv("PLAYBACKCORE_ENV", "development"),
		HTTPBind:    getEnv("PLAYBACKCORE_HTTP_BIND", "0.0.0.0"),
		HTTPPort:    getEnvInt("PLAYBACKCORE_HTTP_PORT", 8080),
		DBBackend:   DatabaseBackend(getEnv("PLAYBACKCORE_DB_BACKEND", string(DatabaseSQLite))),
		DBDSN:       getEnv("PLAYBACKCORE_DB_DSN", ""),
		MetricsBind: getEnv("PLAYBACKCORE_METRICS_BIND", "127.0.0.1:9000"),
		AudioDevice: getEnv("PLAYBACKCORE_AUDIO_DEVICE", ""),
		NATSURL:     getEnv("PLAYBACKCORE_NATS_URL", "nats://127.0.0.1:4222"),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("PLAYBACKCORE_DB_DSN must be provided")
	}

	return cfg, nil
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
