package status

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:generate mockgen -destination=mocks/mock_state_persistence.go -package=mocks -source=persistence.go StatePersistence

const (
	// StateFileName is the name of the per-connection control state file
	StateFileName = "state.yaml"
)

// StatePersistence stores the durable control state of connection state machines
//
//nolint:revive // This name is fine
type StatePersistence interface {
	// SaveState saves the control state of a connection
	SaveState(ctx context.Context, connectionID string, state *ControlState) error

	// LoadState loads the control state of a connection.
	// Returns an Idle state if nothing was stored yet.
	LoadState(ctx context.Context, connectionID string) (*ControlState, error)

	// DeleteState removes the stored control state of a connection
	DeleteState(ctx context.Context, connectionID string) error
}

// fileStatePersistence implements StatePersistence using the local filesystem
type fileStatePersistence struct {
	basePath string
}

// NewFileStatePersistence creates a file-based control state persistence.
// Each connection gets its own directory under basePath.
func NewFileStatePersistence(basePath string) StatePersistence {
	return &fileStatePersistence{
		basePath: basePath,
	}
}

// SaveState writes the control state as YAML, atomically via a temp file and rename
func (f *fileStatePersistence) SaveState(_ context.Context, connectionID string, state *ControlState) error {
	dir := filepath.Join(f.basePath, connectionID)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create state directory for connection '%s': %w", connectionID, err)
	}

	filePath := filepath.Join(dir, StateFileName)

	data, err := yaml.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal state for connection '%s': %w", connectionID, err)
	}

	tempPath := filePath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0600); err != nil {
		return fmt.Errorf("failed to write temporary state file for connection '%s': %w", connectionID, err)
	}

	if err := os.Rename(tempPath, filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to rename state file for connection '%s': %w", connectionID, err)
	}

	return nil
}

// LoadState reads the control state of a connection
func (f *fileStatePersistence) LoadState(_ context.Context, connectionID string) (*ControlState, error) {
	filePath := filepath.Join(f.basePath, connectionID, StateFileName)

	// #nosec G304 -- filePath is built from the configured base path and a connection id
	data, err := os.ReadFile(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return &ControlState{Phase: PhaseIdle}, nil
		}
		return nil, fmt.Errorf("failed to read state file for connection '%s': %w", connectionID, err)
	}

	var state ControlState
	if err := yaml.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("failed to unmarshal state for connection '%s': %w", connectionID, err)
	}
	if state.Phase == "" {
		state.Phase = PhaseIdle
	}

	return &state, nil
}

// DeleteState removes the directory holding the connection's state
func (f *fileStatePersistence) DeleteState(_ context.Context, connectionID string) error {
	if err := os.RemoveAll(filepath.Join(f.basePath, connectionID)); err != nil {
		return fmt.Errorf("failed to delete state for connection '%s': %w", connectionID, err)
	}
	return nil
}

// memoryStatePersistence keeps control state in process memory
type memoryStatePersistence struct {
	mu     sync.RWMutex
	states map[string]*ControlState
}

// NewMemoryStatePersistence creates an in-memory control state persistence.
// State does not survive a process restart.
func NewMemoryStatePersistence() StatePersistence {
	return &memoryStatePersistence{
		states: make(map[string]*ControlState),
	}
}

func (m *memoryStatePersistence) SaveState(_ context.Context, connectionID string, state *ControlState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[connectionID] = state.Clone()
	return nil
}

func (m *memoryStatePersistence) LoadState(_ context.Context, connectionID string) (*ControlState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if state, ok := m.states[connectionID]; ok {
		return state.Clone(), nil
	}
	return &ControlState{Phase: PhaseIdle}, nil
}

func (m *memoryStatePersistence) DeleteState(_ context.Context, connectionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, connectionID)
	return nil
}
