package simulator

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// SimulationStats accumulates over one run.
type SimulationStats struct {
	Completed     int `json:"completed"`
	Failed        int `json:"failed"`
	Skipped       int `json:"skipped"`
	TotalAttempts int `json:"total_attempts"`
	OrdersPlaced  int `json:"orders_placed"`
}

// SimulationState is the restartable snapshot of a run. It is saved after
// every slot that reaches a terminal state, so a killed run resumes from
// CurrentSlotIndex.
type SimulationState struct {
	SimulationID     string          `json:"simulation_id"`
	Slots            []ActionSlot    `json:"slots"`
	CurrentSlotIndex int             `json:"current_slot_index"`
	Stats            SimulationStats `json:"stats"`
	StartedAt        time.Time       `json:"started_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	CompletedAt      *time.Time      `json:"completed_at,omitempty"`
}

// StateStore persists simulation snapshots as one JSON file per run.
type StateStore struct {
	dir string
}

func NewStateStore(dir string) (*StateStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating state dir: %w", err)
	}
	return &StateStore{dir: dir}, nil
}

func (s *StateStore) path(simulationID string) string {
	return filepath.Join(s.dir, simulationID+".json")
}

// Save writes the snapshot atomically: temp file then rename, so a crash
// mid-write never corrupts the resumable state.
func (s *StateStore) Save(state *SimulationState) error {
	state.UpdatedAt = time.Now()

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return err
	}

	tmp := s.path(state.SimulationID) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(state.SimulationID))
}

// Load reads a snapshot by simulation id. A missing file returns nil state
// and no error so callers can distinguish fresh runs from load failures.
func (s *StateStore) Load(simulationID string) (*SimulationState, error) {
	data, err := os.ReadFile(s.path(simulationID))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var state SimulationState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt state file %s: %w", s.path(simulationID), err)
	}
	return &state, nil
}

// List returns the simulation ids with saved state, newest first.
func (s *StateStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}

	type stamped struct {
		id  string
		mod time.Time
	}
	var found []stamped
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		found = append(found, stamped{id: name[:len(name)-len(".json")], mod: info.ModTime()})
	}
	sort.Slice(found, func(i, j int) bool { return found[i].mod.After(found[j].mod) })

	ids := make([]string, 0, len(found))
	for _, f := range found {
		ids = append(ids, f.id)
	}
	return ids, nil
}
