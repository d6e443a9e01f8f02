package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	l := NewLoader("")
	cfg, err := l.Load()
	require.NoError(t, err)
	assert.Equal(t, "node-1", cfg.NodeID)
	assert.Equal(t, int64(30), cfg.DefaultTTLSecs)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: coordinator-a\nbind_addr: \":9090\"\n"), 0o644))

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "coordinator-a", cfg.NodeID)
	assert.Equal(t, ":9090", cfg.BindAddr)
	// Unset fields still fall back to defaults.
	assert.Equal(t, int64(30), cfg.DefaultTTLSecs)
}

func TestEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("node_id: coordinator-a\n"), 0o644))

	t.Setenv("VMS_NODE_ID", "coordinator-env")
	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	assert.Equal(t, "coordinator-env", cfg.NodeID)
}

func TestValidateRejectsBadTTLRange(t *testing.T) {
	cfg := Default()
	cfg.MinTTLSecs = 100
	cfg.MaxTTLSecs = 10
	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrInvalidTTLRange)
}

func TestValidateRejectsMissingNodeID(t *testing.T) {
	cfg := Default()
	cfg.NodeID = ""
	err := Validate(cfg)
	assert.ErrorIs(t, err, ErrMissingNodeID)
}

func TestParseEnvPeers(t *testing.T) {
	t.Setenv("VMS_PEER_ADDRS", "node-2@10.0.0.2:8080,node-3@10.0.0.3:8080")
	peers := envPeers("VMS_PEER_ADDRS", nil)
	require.Len(t, peers, 2)
	assert.Equal(t, "node-2", peers[0].NodeID)
	assert.Equal(t, "10.0.0.2:8080", peers[0].Address)
}
