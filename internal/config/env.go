package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// envString reads key from the environment, logging its source for
// observability, and falls back to defaultValue when unset or empty.
func envString(key, defaultValue string) string {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logger.Debug().Str("key", key).Str("source", "default").Msg("using default value")
		return defaultValue
	}
	logger.Debug().Str("key", key).Str("source", "environment").Msg("using environment variable")
	return v
}

func envInt64(key string, defaultValue int64) int64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid integer env var, using default")
		return defaultValue
	}
	return parsed
}

func envFloat(key string, defaultValue float64) float64 {
	logger := log.WithComponent("config")
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(v, 64)
	if err != nil {
		logger.Warn().Str("key", key).Str("value", v).Msg("invalid float env var, using default")
		return defaultValue
	}
	return parsed
}

func envPeers(key string, defaultValue []PeerAddr) []PeerAddr {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return defaultValue
	}
	var peers []PeerAddr
	for _, entry := range strings.Split(v, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.SplitN(entry, "@", 2)
		if len(parts) != 2 {
			continue
		}
		peers = append(peers, PeerAddr{NodeID: parts[0], Address: parts[1]})
	}
	if peers == nil {
		return defaultValue
	}
	return peers
}

// applyEnvOverrides applies the ENV > file > defaults precedence named in
// SPEC_FULL.md's ambient stack: cfg already holds file-or-default values;
// any of these environment variables, if set, wins.
func applyEnvOverrides(cfg Config) Config {
	cfg.BindAddr = envString("VMS_BIND_ADDR", cfg.BindAddr)
	cfg.NodeID = envString("VMS_NODE_ID", cfg.NodeID)
	cfg.Peers = envPeers("VMS_PEER_ADDRS", cfg.Peers)

	cfg.ElectionTimeoutMS = envInt64("VMS_ELECTION_TIMEOUT_MS", cfg.ElectionTimeoutMS)
	cfg.ElectionJitterMS = envInt64("VMS_ELECTION_JITTER_MS", cfg.ElectionJitterMS)
	cfg.HeartbeatIntervalMS = envInt64("VMS_HEARTBEAT_INTERVAL_MS", cfg.HeartbeatIntervalMS)

	cfg.DefaultTTLSecs = envInt64("VMS_DEFAULT_TTL_SECS", cfg.DefaultTTLSecs)
	cfg.MinTTLSecs = envInt64("VMS_MIN_TTL_SECS", cfg.MinTTLSecs)
	cfg.MaxTTLSecs = envInt64("VMS_MAX_TTL_SECS", cfg.MaxTTLSecs)
	cfg.MaxOwnedResources = int(envInt64("VMS_MAX_OWNED_RESOURCES", int64(cfg.MaxOwnedResources)))

	cfg.DatabaseURL = envString("VMS_DATABASE_URL", cfg.DatabaseURL)
	cfg.RedisAddr = envString("VMS_REDIS_ADDR", cfg.RedisAddr)
	cfg.OTLPEndpoint = envString("VMS_OTLP_ENDPOINT", cfg.OTLPEndpoint)
	cfg.LogLevel = envString("VMS_LOG_LEVEL", cfg.LogLevel)

	cfg.RateLimitRPS = int(envInt64("VMS_RATE_LIMIT_RPS", int64(cfg.RateLimitRPS)))
	cfg.AdmissionRPS = envFloat("VMS_ADMISSION_RPS", cfg.AdmissionRPS)
	cfg.AdmissionBurst = int(envInt64("VMS_ADMISSION_BURST", int64(cfg.AdmissionBurst)))
	cfg.ForwardTimeoutMS = envInt64("VMS_FORWARD_TIMEOUT_MS", cfg.ForwardTimeoutMS)

	cfg.HardStatePath = envString("VMS_HARD_STATE_PATH", cfg.HardStatePath)
	cfg.LeaseSnapshotDir = envString("VMS_LEASE_SNAPSHOT_DIR", cfg.LeaseSnapshotDir)

	return cfg
}
