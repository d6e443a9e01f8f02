// Package config loads coordinator/worker configuration from a YAML file
// with environment-variable overrides, following this codebase's
// env-over-file-over-default precedence, and supports hot reload of the
// file-backed portions via fsnotify (SPEC_FULL.md's ambient stack).
package config

import "time"

// PeerAddr is one cluster peer entry ("node_id@host:port" on the wire).
type PeerAddr struct {
	NodeID  string `yaml:"node_id"`
	Address string `yaml:"address"`
}

// Config is the full set of settings a coordinator or worker process
// needs at startup (spec.md §6/§9 plus the ambient additions below).
type Config struct {
	BindAddr string     `yaml:"bind_addr"`
	NodeID   string     `yaml:"node_id"`
	Peers    []PeerAddr `yaml:"peer_addrs"`

	ElectionTimeoutMS   int64 `yaml:"election_timeout_ms"`
	ElectionJitterMS    int64 `yaml:"election_jitter_ms"`
	HeartbeatIntervalMS int64 `yaml:"heartbeat_interval_ms"`

	DefaultTTLSecs     int64 `yaml:"default_ttl_secs"`
	MinTTLSecs         int64 `yaml:"min_ttl_secs"`
	MaxTTLSecs         int64 `yaml:"max_ttl_secs"`
	MaxOwnedResources  int   `yaml:"max_owned_resources"`

	DatabaseURL  string `yaml:"database_url"`
	RedisAddr    string `yaml:"redis_addr"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	LogLevel     string `yaml:"log_level"`

	RateLimitRPS      int     `yaml:"rate_limit_rps"`
	AdmissionRPS      float64 `yaml:"admission_rps"`
	AdmissionBurst    int     `yaml:"admission_burst"`
	ForwardTimeoutMS  int64   `yaml:"forward_timeout_ms"`

	// HardStatePath, when set, persists {current_term, voted_for} across
	// restarts (internal/cluster.HardStateStore).
	HardStatePath string `yaml:"hard_state_path"`
	// LeaseSnapshotDir, when set, enables the advisory Badger warm-restart
	// snapshot (internal/lease.Snapshotter).
	LeaseSnapshotDir string `yaml:"lease_snapshot_dir"`
}

func (c Config) ElectionTimeout() time.Duration   { return time.Duration(c.ElectionTimeoutMS) * time.Millisecond }
func (c Config) ElectionJitter() time.Duration    { return time.Duration(c.ElectionJitterMS) * time.Millisecond }
func (c Config) HeartbeatInterval() time.Duration { return time.Duration(c.HeartbeatIntervalMS) * time.Millisecond }
func (c Config) DefaultTTL() time.Duration        { return time.Duration(c.DefaultTTLSecs) * time.Second }
func (c Config) MinTTL() time.Duration            { return time.Duration(c.MinTTLSecs) * time.Second }
func (c Config) MaxTTL() time.Duration            { return time.Duration(c.MaxTTLSecs) * time.Second }
func (c Config) ForwardTimeout() time.Duration    { return time.Duration(c.ForwardTimeoutMS) * time.Millisecond }

// Default returns the reference configuration (spec.md §9 timing values).
func Default() Config {
	return Config{
		BindAddr:            ":8080",
		NodeID:              "node-1",
		ElectionTimeoutMS:   5000,
		ElectionJitterMS:    500,
		HeartbeatIntervalMS: 1500,
		DefaultTTLSecs:      30,
		MinTTLSecs:          5,
		MaxTTLSecs:          3600,
		MaxOwnedResources:   0,
		LogLevel:            "info",
		RateLimitRPS:        200,
		AdmissionRPS:        100,
		AdmissionBurst:      50,
		ForwardTimeoutMS:    5000,
	}
}
