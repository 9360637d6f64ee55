// Package config loads and validates process configuration from the
// environment, optionally seeded from a local .env file.
package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds validated environment configuration for the server.
type Config struct {
	// Port the HTTP/WebSocket listener binds to.
	Port int
	// DataDir is the directory per-room whiteboard snapshots are
	// written to, one <roomId>.json file per room.
	DataDir string
	// DebugLogs enables the filesystem log sink behind POST /log.
	DebugLogs bool
	// Development switches the logger to a human-readable encoder.
	Development bool
}

const (
	defaultPort    = 8080
	defaultDataDir = "./data/rooms"
)

// Load reads configuration from the environment. A .env file in the
// working directory is loaded first, if present; its absence is not
// an error. Returns a descriptive error for malformed (non-numeric
// PORT) values, never panics.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:    defaultPort,
		DataDir: defaultDataDir,
	}

	if raw := os.Getenv("PORT"); raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil || port < 1 || port > 65535 {
			return nil, fmt.Errorf("config: PORT must be a valid port number between 1 and 65535 (got %q)", raw)
		}
		cfg.Port = port
	}

	if dir := os.Getenv("DATA_DIR"); dir != "" {
		cfg.DataDir = dir
	}

	cfg.DebugLogs = os.Getenv("REALTIME_DEBUG_LOGS") == "true"
	cfg.Development = os.Getenv("GO_ENV") == "development"

	return cfg, nil
}
