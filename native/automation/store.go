package automation

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
)

// Store persists automation and management configs, the manager allow-list
// and the per-module operation trackers.
type Store struct {
	st *state.Manager
}

func NewStore(st *state.Manager) *Store {
	return &Store{st: st}
}

func vaultKey(prefix string, vaultID uint64) []byte {
	return state.Key(prefix, common.BigToHash(new(big.Int).SetUint64(vaultID)).Bytes())
}

// Automation returns the automation config of vaultID, zero valued if unset.
func (s *Store) Automation(vaultID uint64) (AutomatedVault, error) {
	var cfg AutomatedVault
	if _, err := s.st.KVGet(vaultKey("automation/auto", vaultID), &cfg); err != nil {
		return AutomatedVault{}, err
	}
	cfg.ensureDefaults()
	return cfg, nil
}

func (s *Store) PutAutomation(vaultID uint64, cfg AutomatedVault) error {
	cfg.ensureDefaults()
	return s.st.KVPut(vaultKey("automation/auto", vaultID), cfg)
}

// Management returns the management config of vaultID, zero valued if unset.
func (s *Store) Management(vaultID uint64) (ManagedVault, error) {
	var cfg ManagedVault
	if _, err := s.st.KVGet(vaultKey("automation/managed", vaultID), &cfg); err != nil {
		return ManagedVault{}, err
	}
	cfg.ensureDefaults()
	return cfg, nil
}

func (s *Store) PutManagement(vaultID uint64, cfg ManagedVault) error {
	cfg.ensureDefaults()
	return s.st.KVPut(vaultKey("automation/managed", vaultID), cfg)
}

// OperationTracker returns the unix time of the last successful operation
// of module on vaultID, zero if none.
func (s *Store) OperationTracker(module string, vaultID uint64) (uint64, error) {
	var last uint64
	if _, err := s.st.KVGet(vaultKey("automation/tracker/"+module, vaultID), &last); err != nil {
		return 0, err
	}
	return last, nil
}

func (s *Store) SetOperationTracker(module string, vaultID, at uint64) error {
	return s.st.KVPut(vaultKey("automation/tracker/"+module, vaultID), at)
}

func managerKey(manager common.Address) []byte {
	return state.Key("automation/manager", manager.Bytes())
}

// IsManager reports whether manager is on the allow-list.
func (s *Store) IsManager(manager common.Address) bool {
	raw, err := s.st.GetRaw(managerKey(manager))
	return err == nil && len(raw) > 0
}

func (s *Store) SetManager(manager common.Address, listed bool) {
	if listed {
		s.st.PutRaw(managerKey(manager), []byte{1})
		return
	}
	s.st.Delete(managerKey(manager))
}
