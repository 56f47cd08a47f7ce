package params

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"cdpproxy/core/state"
)

// ParamsKeyPauses stores the module pause configuration.
const ParamsKeyPauses = "system/pauses"

// StoreState captures the subset of state manager capabilities required by the
// parameter helpers.
type StoreState interface {
	ParamStoreSet(name string, value []byte) error
	ParamStoreGet(name string) ([]byte, bool, error)
}

// Pauses maps module names to their pause flag.
type Pauses map[string]bool

// Store provides typed accessors for protocol parameters.
type Store struct {
	state StoreState
}

// NewStore constructs a parameter store wrapper using the supplied state
// backend.
func NewStore(state StoreState) *Store {
	return &Store{state: state}
}

// NewStateStore backs the store with the journaled state manager so pause
// changes roll back with the transaction that made them.
func NewStateStore(m *state.Manager) *Store {
	return NewStore(managerState{m: m})
}

func (s *Store) withState() (StoreState, error) {
	if s == nil || s.state == nil {
		return nil, fmt.Errorf("params: state not configured")
	}
	return s.state, nil
}

// SetPauses persists the supplied pause configuration under the canonical
// parameter store key. Values are marshalled as JSON.
func (s *Store) SetPauses(pauses Pauses) error {
	state, err := s.withState()
	if err != nil {
		return err
	}
	encoded, err := json.Marshal(pauses)
	if err != nil {
		return fmt.Errorf("params: encode pauses: %w", err)
	}
	return state.ParamStoreSet(ParamsKeyPauses, encoded)
}

// Pauses loads the persisted pause configuration. When unset, an empty
// configuration is returned.
func (s *Store) Pauses() (Pauses, error) {
	state, err := s.withState()
	if err != nil {
		return Pauses{}, err
	}
	raw, ok, err := state.ParamStoreGet(ParamsKeyPauses)
	if err != nil {
		return Pauses{}, err
	}
	if !ok || len(bytes.TrimSpace(raw)) == 0 {
		return Pauses{}, nil
	}
	pauses := Pauses{}
	if err := json.Unmarshal(raw, &pauses); err != nil {
		return Pauses{}, fmt.Errorf("params: decode pauses: %w", err)
	}
	return pauses, nil
}

// IsPaused implements common.PauseView. Read failures count as not paused so
// that a corrupt entry cannot wedge every module.
func (s *Store) IsPaused(module string) bool {
	pauses, err := s.Pauses()
	if err != nil {
		return false
	}
	return pauses[module]
}

// SetPaused toggles one module.
func (s *Store) SetPaused(module string, paused bool) error {
	pauses, err := s.Pauses()
	if err != nil {
		return err
	}
	if paused {
		pauses[module] = true
	} else {
		delete(pauses, module)
	}
	return s.SetPauses(pauses)
}

// PausedModules lists every paused module in name order.
func (s *Store) PausedModules() ([]string, error) {
	pauses, err := s.Pauses()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(pauses))
	for module, paused := range pauses {
		if paused {
			out = append(out, module)
		}
	}
	sort.Strings(out)
	return out, nil
}

type managerState struct {
	m *state.Manager
}

func paramKey(name string) []byte {
	return state.Key("params", []byte(name))
}

func (s managerState) ParamStoreSet(name string, value []byte) error {
	s.m.PutRaw(paramKey(name), value)
	return nil
}

func (s managerState) ParamStoreGet(name string) ([]byte, bool, error) {
	raw, err := s.m.GetRaw(paramKey(name))
	if err != nil {
		return nil, false, err
	}
	return raw, raw != nil, nil
}
