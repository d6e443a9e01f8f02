package cluster

import (
	"encoding/json"
	"errors"
	"os"

	"github.com/google/renameio/v2"
)

// HardState is the durable subset of a node's cluster state: the term it
// last observed and who it voted for in that term. Losing this across a
// restart would let a node re-grant a vote it already cast, weakening P5
// (single leader per term) — see SPEC_FULL.md's Cluster Manager
// supplement.
type HardState struct {
	CurrentTerm uint64 `json:"current_term"`
	VotedFor    string `json:"voted_for"`
}

// HardStateStore persists HardState to a single file via atomic
// rename-on-write, mirroring the teacher's write_unix.go pattern for
// durable config/playlist writes.
type HardStateStore struct {
	path string
}

// NewHardStateStore returns a store rooted at path. path may not yet
// exist; Load returns a zero-value HardState in that case.
func NewHardStateStore(path string) *HardStateStore {
	return &HardStateStore{path: path}
}

// Load reads the persisted hard state, or a zero value if path is absent.
func (s *HardStateStore) Load() (HardState, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return HardState{}, nil
		}
		return HardState{}, err
	}
	var hs HardState
	if err := json.Unmarshal(data, &hs); err != nil {
		return HardState{}, err
	}
	return hs, nil
}

// Save atomically persists hs, replacing any prior contents of path.
func (s *HardStateStore) Save(hs HardState) error {
	payload, err := json.Marshal(hs)
	if err != nil {
		return err
	}
	pendingFile, err := renameio.NewPendingFile(s.path)
	if err != nil {
		return err
	}
	defer pendingFile.Cleanup() //nolint:errcheck

	if _, err := pendingFile.Write(payload); err != nil {
		return err
	}
	return pendingFile.CloseAtomicallyReplace()
}

// NoopHardStateStore satisfies the same Load/Save surface without ever
// touching disk, for tests and single-process fakes.
type NoopHardStateStore struct{}

func (NoopHardStateStore) Load() (HardState, error)  { return HardState{}, nil }
func (NoopHardStateStore) Save(HardState) error      { return nil }
