package cluster

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/quadrant-vms/core-sub001/internal/log"
)

// Persister durably records {current_term, voted_for} across restarts.
// HardStateStore is the real implementation; NoopHardStateStore is used
// when no persistence path is configured.
type Persister interface {
	Load() (HardState, error)
	Save(HardState) error
}

// Config bounds the timing of election and heartbeat per spec.md §6/§9.
type Config struct {
	// ElectionTimeoutBase is the base follower→candidate timeout; actual
	// timeout adds a uniform [0, ElectionTimeoutJitter) jitter on every
	// follower→candidate transition (spec.md §9).
	ElectionTimeoutBase   time.Duration
	ElectionTimeoutJitter time.Duration
	// HeartbeatInterval is how often a Leader pings every peer. spec.md
	// §4.2 recommends election_timeout / 3 to / 5.
	HeartbeatInterval time.Duration
	// VoteRPCTimeout bounds a single outbound vote RPC;
	// HeartbeatRPCTimeout bounds a single outbound heartbeat RPC.
	VoteRPCTimeout      time.Duration
	HeartbeatRPCTimeout time.Duration
	// StartupJitterMax bounds the random delay a freshly-started node
	// waits before its first election attempt (spec.md §4.2).
	StartupJitterMax time.Duration
}

// DefaultConfig returns the reference timing values from spec.md §9.
func DefaultConfig() Config {
	return Config{
		ElectionTimeoutBase:   5 * time.Second,
		ElectionTimeoutJitter: 500 * time.Millisecond,
		HeartbeatInterval:     1500 * time.Millisecond,
		VoteRPCTimeout:        3 * time.Second,
		HeartbeatRPCTimeout:   2 * time.Second,
		StartupJitterMax:      300 * time.Millisecond,
	}
}

// Manager is the per-node cluster state machine (C2). One Manager exists
// per node; NodeID never changes for the process lifetime.
type Manager struct {
	mu sync.Mutex

	nodeID string
	cfg    Config

	role          Role
	term          uint64
	votedFor      string
	leaderID      string
	lastHeartbeat time.Time
	votesReceived int

	peers map[string]Peer
	// peerHealth mirrors spec.md's NodeState.peers map; updated whenever a
	// heartbeat round completes.
	peerHealth map[string]PeerStatus

	transport Transport
	persist   Persister
	clock     func() time.Time
	rng       *rand.Rand

	electionTimer    *time.Timer
	electionDeadline time.Time

	onLeaderElected func(term uint64)
}

// New constructs a Manager for nodeID with the given fixed peer set. An
// empty peers map is the degenerate single-node cluster (spec.md §4.2):
// the node self-elects immediately since a majority of 1 is 1.
func New(nodeID string, peers []Peer, cfg Config, transport Transport, persist Persister) *Manager {
	if persist == nil {
		persist = NoopHardStateStore{}
	}
	peerMap := make(map[string]Peer, len(peers))
	peerHealth := make(map[string]PeerStatus, len(peers))
	for _, p := range peers {
		peerMap[p.ID] = p
		peerHealth[p.ID] = PeerStatus{ID: p.ID, Address: p.Address}
	}

	hs, _ := persist.Load()

	m := &Manager{
		nodeID:     nodeID,
		cfg:        cfg,
		role:       RoleFollower,
		term:       hs.CurrentTerm,
		votedFor:   hs.VotedFor,
		peers:      peerMap,
		peerHealth: peerHealth,
		transport:  transport,
		persist:    persist,
		clock:      time.Now,
		rng:        rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(nodeID)))),
	}
	return m
}

// OnLeaderElected registers a callback invoked (outside any lock) every
// time this node becomes Leader for a new term. cmd/coordinator uses it to
// log leadership changes; the coordinator's handlers check IsLeader on
// every request instead.
func (m *Manager) OnLeaderElected(fn func(term uint64)) {
	m.mu.Lock()
	m.onLeaderElected = fn
	m.mu.Unlock()
}

// Status returns a point-in-time snapshot for GET /cluster/status.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	peers := make([]PeerStatus, 0, len(m.peerHealth))
	for _, p := range m.peerHealth {
		peers = append(peers, p)
	}
	return Status{
		NodeID:   m.nodeID,
		Role:     m.role,
		LeaderID: m.leaderID,
		Term:     m.term,
		Peers:    peers,
	}
}

// IsLeader reports whether this node currently believes itself to be
// leader, and if so, the term it is leading.
func (m *Manager) IsLeader() (bool, uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.role == RoleLeader, m.term
}

// LeaderAddress returns the address to forward mutations to, and whether
// a leader is currently known (spec.md §4.3 routing discipline).
func (m *Manager) LeaderAddress() (Peer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.leaderID == "" {
		return Peer{}, false
	}
	if m.leaderID == m.nodeID {
		return Peer{ID: m.nodeID}, true
	}
	p, ok := m.peers[m.leaderID]
	return p, ok
}

// Run starts the election monitor and, while leading, the heartbeat
// sender. It blocks until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) {
	logger := log.WithComponent("cluster").With().Str("node_id", m.nodeID).Logger()
	logger.Info().Msg("cluster manager starting")

	startupDelay := time.Duration(0)
	if m.cfg.StartupJitterMax > 0 {
		startupDelay = time.Duration(m.rng.Int63n(int64(m.cfg.StartupJitterMax) + 1))
	}

	select {
	case <-time.After(startupDelay):
	case <-ctx.Done():
		return
	}

	m.mu.Lock()
	if len(m.peers) == 0 {
		// Degenerate single-node cluster: self-elect immediately.
		m.becomeLeaderLocked()
	} else {
		m.resetElectionDeadlineLocked()
	}
	m.mu.Unlock()

	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	var heartbeatStop chan struct{}

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.mu.Lock()
			role := m.role
			deadlinePassed := role != RoleLeader && m.clock().After(m.electionDeadline)
			m.mu.Unlock()

			if deadlinePassed {
				m.startElection(ctx)
			}

			m.mu.Lock()
			nowLeader := m.role == RoleLeader
			m.mu.Unlock()

			if nowLeader && heartbeatStop == nil {
				heartbeatStop = make(chan struct{})
				go m.runHeartbeatSender(ctx, heartbeatStop)
			} else if !nowLeader && heartbeatStop != nil {
				close(heartbeatStop)
				heartbeatStop = nil
			}
		}
	}
}

func (m *Manager) resetElectionDeadlineLocked() {
	jitter := time.Duration(0)
	if m.cfg.ElectionTimeoutJitter > 0 {
		jitter = time.Duration(m.rng.Int63n(int64(m.cfg.ElectionTimeoutJitter)))
	}
	m.electionDeadline = m.clock().Add(m.cfg.ElectionTimeoutBase + jitter)
	m.lastHeartbeat = m.clock()
}

// startElection runs one candidacy attempt: Follower → Candidate, fan out
// VoteRequests, tally, become Leader or revert to Follower (spec.md §4.2
// steps 1-5).
func (m *Manager) startElection(ctx context.Context) {
	m.mu.Lock()
	if m.role == RoleLeader {
		m.mu.Unlock()
		return
	}
	m.term++
	m.role = RoleCandidate
	m.votedFor = m.nodeID
	m.votesReceived = 1
	m.leaderID = ""
	term := m.term
	peers := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	_ = m.persist.Save(HardState{CurrentTerm: term, VotedFor: m.votedFor})
	m.resetElectionDeadlineLocked()
	m.mu.Unlock()

	logger := log.WithComponent("cluster").With().Str("node_id", m.nodeID).Uint64("term", term).Logger()
	logger.Info().Msg("became candidate")

	votes := 1 // self-vote
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			rpcCtx, cancel := context.WithTimeout(gctx, m.cfg.VoteRPCTimeout)
			defer cancel()
			resp, err := m.transport.SendVote(rpcCtx, p, VoteRequest{CandidateID: m.nodeID, Term: term})
			if err != nil {
				// Fire-and-forget per spec.md §4.2: a failed RPC is
				// equivalent to a denied vote.
				return nil
			}
			m.observeTerm(resp.Term)
			if resp.VoteGranted {
				mu.Lock()
				votes++
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	majority := (len(peers)+1)/2 + 1
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.role != RoleCandidate || m.term != term {
		// Someone else's heartbeat or higher term already moved us on.
		return
	}
	m.votesReceived = votes
	if votes >= majority {
		m.becomeLeaderLocked()
	} else {
		m.role = RoleFollower
		m.resetElectionDeadlineLocked()
	}
}

// becomeLeaderLocked transitions Candidate → Leader. Caller must hold m.mu.
func (m *Manager) becomeLeaderLocked() {
	m.role = RoleLeader
	m.leaderID = m.nodeID
	if len(m.peers) == 0 && m.term == 0 {
		m.term = 1
		_ = m.persist.Save(HardState{CurrentTerm: m.term, VotedFor: m.nodeID})
	}
	term := m.term
	cb := m.onLeaderElected
	logger := log.WithComponent("cluster").With().Str("node_id", m.nodeID).Uint64("term", term).Logger()
	logger.Info().Msg("elected leader")
	electionCount.Inc()
	if cb != nil {
		go cb(term)
	}
}

func (m *Manager) runHeartbeatSender(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			m.sendHeartbeats(ctx)
		}
	}
}

func (m *Manager) sendHeartbeats(ctx context.Context) {
	m.mu.Lock()
	if m.role != RoleLeader {
		m.mu.Unlock()
		return
	}
	term := m.term
	peers := make([]Peer, 0, len(m.peers))
	for _, p := range m.peers {
		peers = append(peers, p)
	}
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range peers {
		p := p
		g.Go(func() error {
			rpcCtx, cancel := context.WithTimeout(gctx, m.cfg.HeartbeatRPCTimeout)
			defer cancel()
			resp, err := m.transport.SendHeartbeat(rpcCtx, p, HeartbeatRequest{LeaderID: m.nodeID, Term: term})
			now := m.clock()
			m.mu.Lock()
			if err != nil {
				if st, ok := m.peerHealth[p.ID]; ok {
					st.Healthy = false
					m.peerHealth[p.ID] = st
				}
				m.mu.Unlock()
				return nil
			}
			m.observeTermLocked(resp.Term)
			m.peerHealth[p.ID] = PeerStatus{ID: p.ID, Address: p.Address, LastHeartbeat: now, Healthy: true}
			m.mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
}

// HandleVoteRequest implements the peer side of the election protocol
// (spec.md §4.2 step 3): grant iff req.Term > self.term.
func (m *Manager) HandleVoteRequest(req VoteRequest) VoteResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Term <= m.term {
		return VoteResponse{VoteGranted: false, Term: m.term}
	}

	m.term = req.Term
	m.role = RoleFollower
	m.votedFor = req.CandidateID
	m.leaderID = ""
	_ = m.persist.Save(HardState{CurrentTerm: m.term, VotedFor: m.votedFor})
	m.resetElectionDeadlineLocked()
	return VoteResponse{VoteGranted: true, Term: m.term}
}

// HandleHeartbeat implements the follower side of the heartbeat protocol
// (spec.md §4.2 heartbeat protocol paragraph).
func (m *Manager) HandleHeartbeat(req HeartbeatRequest) HeartbeatResponse {
	m.mu.Lock()
	defer m.mu.Unlock()

	if req.Term < m.term {
		return HeartbeatResponse{Term: m.term}
	}

	if req.Term > m.term {
		m.term = req.Term
		_ = m.persist.Save(HardState{CurrentTerm: m.term, VotedFor: m.votedFor})
	}
	m.role = RoleFollower
	m.leaderID = req.LeaderID
	m.resetElectionDeadlineLocked()
	return HeartbeatResponse{Term: m.term}
}

// observeTerm reverts this node to Follower if it observes a higher term
// in any RPC response (I7 / spec.md's "higher term wins" causal rule).
func (m *Manager) observeTerm(term uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observeTermLocked(term)
}

func (m *Manager) observeTermLocked(term uint64) {
	if term > m.term {
		m.term = term
		m.role = RoleFollower
		m.leaderID = ""
		_ = m.persist.Save(HardState{CurrentTerm: m.term, VotedFor: m.votedFor})
		m.resetElectionDeadlineLocked()
	}
}
