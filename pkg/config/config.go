// Package config holds the tuning knobs of the state sync layer.
// Defaults can be overridden from the environment.
package config

import (
	"os"
	"strconv"
	"time"
)

// SyncConfig controls delta history, compression and delivery behaviour.
type SyncConfig struct {
	CompressionThreshold int           // Serialized payloads above this many bytes are compressed
	HistorySize          int           // Max deltas retained per room
	HistoryMaxAge        time.Duration // Deltas older than this are pruned
	MaxReplayDeltas      int           // Reconciliation replays at most this many deltas, else full sync
	SendTimeout          time.Duration // Per-channel send bound
	BatchDelay           time.Duration // Debounce window for scheduled broadcasts
	DebounceActions      bool          // Client action broadcasts wait BatchDelay and coalesce
	PruneInterval        time.Duration // How often room histories are pruned
	ResyncRate           float64       // Client resync requests allowed per second per player
	ResyncBurst          int
	SaveInterval         time.Duration // How often dirty room snapshots are flushed to the store
}

// DefaultSync returns the default sync configuration.
func DefaultSync() SyncConfig {
	return SyncConfig{
		CompressionThreshold: 500,
		HistorySize:          50,
		HistoryMaxAge:        300 * time.Second,
		MaxReplayDeltas:      10,
		SendTimeout:          2 * time.Second,
		BatchDelay:           50 * time.Millisecond,
		DebounceActions:      true,
		PruneInterval:        30 * time.Second,
		ResyncRate:           1,
		ResyncBurst:          3,
		SaveInterval:         5 * time.Second,
	}
}

// SyncFromEnv returns the sync configuration with environment variable overrides.
func SyncFromEnv() SyncConfig {
	cfg := DefaultSync()

	if v := getEnvInt("HOKM_COMPRESSION_THRESHOLD", 0); v > 0 {
		cfg.CompressionThreshold = v
	}
	if v := getEnvInt("HOKM_HISTORY_SIZE", 0); v > 0 {
		cfg.HistorySize = v
	}
	if v := getEnvDuration("HOKM_HISTORY_MAX_AGE", 0); v > 0 {
		cfg.HistoryMaxAge = v
	}
	if v := getEnvInt("HOKM_MAX_REPLAY_DELTAS", 0); v > 0 {
		cfg.MaxReplayDeltas = v
	}
	if v := getEnvDuration("HOKM_SEND_TIMEOUT", 0); v > 0 {
		cfg.SendTimeout = v
	}
	if v := getEnvDuration("HOKM_BATCH_DELAY", 0); v > 0 {
		cfg.BatchDelay = v
	}
	cfg.DebounceActions = getEnvBool("HOKM_DEBOUNCE_ACTIONS", cfg.DebounceActions)
	if v := getEnvDuration("HOKM_PRUNE_INTERVAL", 0); v > 0 {
		cfg.PruneInterval = v
	}
	if v := getEnvFloat("HOKM_RESYNC_RATE", 0); v > 0 {
		cfg.ResyncRate = v
	}
	if v := getEnvInt("HOKM_RESYNC_BURST", 0); v > 0 {
		cfg.ResyncBurst = v
	}
	if v := getEnvDuration("HOKM_SAVE_INTERVAL", 0); v > 0 {
		cfg.SaveInterval = v
	}

	return cfg
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
