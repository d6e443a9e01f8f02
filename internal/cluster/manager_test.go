package cluster

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inMemoryTransport wires a fixed set of Managers together without any
// network hop, for deterministic election tests.
type inMemoryTransport struct {
	mu       sync.RWMutex
	managers map[string]*Manager
}

func newInMemoryTransport() *inMemoryTransport {
	return &inMemoryTransport{managers: make(map[string]*Manager)}
}

func (t *inMemoryTransport) register(id string, m *Manager) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.managers[id] = m
}

func (t *inMemoryTransport) SendVote(_ context.Context, peer Peer, req VoteRequest) (VoteResponse, error) {
	t.mu.RLock()
	m, ok := t.managers[peer.ID]
	t.mu.RUnlock()
	if !ok {
		return VoteResponse{}, assert.AnError
	}
	return m.HandleVoteRequest(req), nil
}

func (t *inMemoryTransport) SendHeartbeat(_ context.Context, peer Peer, req HeartbeatRequest) (HeartbeatResponse, error) {
	t.mu.RLock()
	m, ok := t.managers[peer.ID]
	t.mu.RUnlock()
	if !ok {
		return HeartbeatResponse{}, assert.AnError
	}
	return m.HandleHeartbeat(req), nil
}

func fastTestConfig() Config {
	return Config{
		ElectionTimeoutBase:   200 * time.Millisecond,
		ElectionTimeoutJitter: 50 * time.Millisecond,
		HeartbeatInterval:     60 * time.Millisecond,
		VoteRPCTimeout:        200 * time.Millisecond,
		HeartbeatRPCTimeout:   200 * time.Millisecond,
		StartupJitterMax:      20 * time.Millisecond,
	}
}

// TestSingleNodeSelfElects covers S1: a single node with an empty peer
// list self-elects within a few seconds.
func TestSingleNodeSelfElects(t *testing.T) {
	transport := newInMemoryTransport()
	m := New("node-1", nil, fastTestConfig(), transport, nil)
	transport.register("node-1", m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go m.Run(ctx)

	require.Eventually(t, func() bool {
		leader, _ := m.IsLeader()
		return leader
	}, 3*time.Second, 10*time.Millisecond)

	status := m.Status()
	assert.Equal(t, RoleLeader, status.Role)
	assert.Equal(t, "node-1", status.LeaderID)
	assert.GreaterOrEqual(t, status.Term, uint64(1))
}

// TestThreeNodeElection covers S5: three mutually-peered nodes converge
// on exactly one leader and agree on leader_id and term.
func TestThreeNodeElection(t *testing.T) {
	transport := newInMemoryTransport()
	ids := []string{"n1", "n2", "n3"}
	peersFor := func(self string) []Peer {
		var peers []Peer
		for _, id := range ids {
			if id != self {
				peers = append(peers, Peer{ID: id, Address: id})
			}
		}
		return peers
	}

	managers := make(map[string]*Manager)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	for _, id := range ids {
		m := New(id, peersFor(id), fastTestConfig(), transport, nil)
		transport.register(id, m)
		managers[id] = m
	}
	for _, m := range managers {
		go m.Run(ctx)
	}

	require.Eventually(t, func() bool {
		leaders := 0
		for _, m := range managers {
			if leader, _ := m.IsLeader(); leader {
				leaders++
			}
		}
		return leaders == 1
	}, 4*time.Second, 20*time.Millisecond)

	// All nodes must agree on leader_id and term (P5).
	var leaderID string
	var term uint64
	for id, m := range managers {
		if leader, leaderTerm := m.IsLeader(); leader {
			leaderID, term = id, leaderTerm
		}
	}
	for _, m := range managers {
		assert.Eventually(t, func() bool {
			s := m.Status()
			return s.LeaderID == leaderID && s.Term == term
		}, 2*time.Second, 20*time.Millisecond)
	}
	assert.NotEmpty(t, leaderID)
}

// TestHigherTermRevertsLeaderToFollower covers I7: observing a higher
// term in an incoming RPC reverts a node to Follower and adopts the term.
func TestHigherTermRevertsLeaderToFollower(t *testing.T) {
	transport := newInMemoryTransport()
	m := New("node-1", []Peer{{ID: "node-2", Address: "node-2"}}, fastTestConfig(), transport, nil)
	transport.register("node-1", m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.mu.Lock()
	m.role = RoleLeader
	m.leaderID = "node-1"
	m.term = 1
	m.mu.Unlock()

	resp := m.HandleHeartbeat(HeartbeatRequest{LeaderID: "node-2", Term: 5})
	assert.Equal(t, uint64(5), resp.Term)

	st := m.Status()
	assert.Equal(t, RoleFollower, st.Role)
	assert.Equal(t, uint64(5), st.Term)
	assert.Equal(t, "node-2", st.LeaderID)

	_ = ctx
}

// TestVoteGrantedOnlyForHigherTerm covers spec.md §4.2 step 3.
func TestVoteGrantedOnlyForHigherTerm(t *testing.T) {
	transport := newInMemoryTransport()
	m := New("node-1", nil, fastTestConfig(), transport, nil)
	transport.register("node-1", m)

	m.mu.Lock()
	m.term = 3
	m.mu.Unlock()

	resp := m.HandleVoteRequest(VoteRequest{CandidateID: "node-2", Term: 3})
	assert.False(t, resp.VoteGranted)

	resp = m.HandleVoteRequest(VoteRequest{CandidateID: "node-2", Term: 4})
	assert.True(t, resp.VoteGranted)
	assert.Equal(t, uint64(4), resp.Term)
}

// TestTermMonotonicity covers P6: observed term values never decrease.
func TestTermMonotonicity(t *testing.T) {
	transport := newInMemoryTransport()
	m := New("node-1", nil, fastTestConfig(), transport, nil)
	transport.register("node-1", m)

	var lastTerm uint64
	for _, term := range []uint64{1, 4, 4, 9, 2} {
		m.HandleHeartbeat(HeartbeatRequest{LeaderID: "someone", Term: term})
		st := m.Status()
		assert.GreaterOrEqual(t, st.Term, lastTerm)
		lastTerm = st.Term
	}
}

// TestHardStatePersistedAcrossRestart verifies a node does not re-grant a
// vote it already cast in the same term after a simulated restart.
func TestHardStatePersistedAcrossRestart(t *testing.T) {
	dir := t.TempDir()
	persist := NewHardStateStore(dir + "/hardstate.json")

	transport := newInMemoryTransport()
	m1 := New("node-1", nil, fastTestConfig(), transport, persist)
	transport.register("node-1", m1)
	resp := m1.HandleVoteRequest(VoteRequest{CandidateID: "node-2", Term: 7})
	require.True(t, resp.VoteGranted)

	// Simulate restart: a fresh Manager loads the same persisted file.
	m2 := New("node-1", nil, fastTestConfig(), transport, persist)
	st := m2.Status()
	assert.Equal(t, uint64(7), st.Term)

	resp = m2.HandleVoteRequest(VoteRequest{CandidateID: "node-3", Term: 7})
	assert.False(t, resp.VoteGranted)
}
