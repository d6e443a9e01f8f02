package config

import "errors"

var (
	ErrMissingNodeID  = errors.New("config: node_id is required")
	ErrInvalidTTLRange = errors.New("config: min_ttl_secs must be <= default_ttl_secs <= max_ttl_secs")
)

// Validate checks invariants Load cannot enforce by type alone.
func Validate(cfg Config) error {
	if cfg.NodeID == "" {
		return ErrMissingNodeID
	}
	if cfg.MinTTLSecs > cfg.DefaultTTLSecs || cfg.DefaultTTLSecs > cfg.MaxTTLSecs {
		return ErrInvalidTTLRange
	}
	return nil
}
