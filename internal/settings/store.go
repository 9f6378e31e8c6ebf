package settings

import (
	"context"
	"errors"
	"sync"

	"github.com/DoyleJ11/glitch-battleship/internal/engine"
)

var ErrInvalidPhase = errors.New("glitch phase must be between 1 and 5")

// Store persists the process-wide glitch override.
type Store interface {
	// GlitchOverride reports the stored phase and whether one is set.
	GlitchOverride(ctx context.Context) (engine.Phase, bool, error)
	SetGlitchOverride(ctx context.Context, phase engine.Phase) error
	ClearGlitchOverride(ctx context.Context) error
	Close() error
}

// MemoryStore keeps the override in process. Used when no database is configured.
type MemoryStore struct {
	mu    sync.RWMutex
	phase engine.Phase
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (m *MemoryStore) GlitchOverride(context.Context) (engine.Phase, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.phase, m.phase.Valid(), nil
}

func (m *MemoryStore) SetGlitchOverride(_ context.Context, phase engine.Phase) error {
	if !phase.Valid() {
		return ErrInvalidPhase
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = phase
	return nil
}

func (m *MemoryStore) ClearGlitchOverride(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.phase = 0
	return nil
}

func (m *MemoryStore) Close() error { return nil }
