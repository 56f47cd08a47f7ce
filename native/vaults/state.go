package vaults

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/state"
)

type engineState interface {
	GetVault(id uint64) (*Vault, error)
	PutVault(vault *Vault) error
	GetVaultID(asset, owner common.Address) (uint64, error)
	PutVaultID(asset, owner common.Address, id uint64) error
	NextVaultID() (uint64, error)
	GetCollateralConfig(asset common.Address) (*CollateralConfig, error)
	PutCollateralConfig(asset common.Address, cfg *CollateralConfig) error
}

// StateStore persists vaults in the journaled state manager.
type StateStore struct {
	m *state.Manager
}

// NewStateStore wraps m.
func NewStateStore(m *state.Manager) *StateStore {
	return &StateStore{m: m}
}

var vaultCountKey = state.Key("vaults/count")

func vaultKey(id uint64) []byte {
	return state.Key("vaults/vault", common.BigToHash(new(big.Int).SetUint64(id)).Bytes())
}

func vaultIndexKey(asset, owner common.Address) []byte {
	return state.Key("vaults/index", asset.Bytes(), owner.Bytes())
}

func configKey(asset common.Address) []byte {
	return state.Key("vaults/config", asset.Bytes())
}

func (s *StateStore) GetVault(id uint64) (*Vault, error) {
	vault := new(Vault)
	ok, err := s.m.KVGet(vaultKey(id), vault)
	if err != nil || !ok {
		return nil, err
	}
	return vault, nil
}

func (s *StateStore) PutVault(vault *Vault) error {
	return s.m.KVPut(vaultKey(vault.ID), vault)
}

func (s *StateStore) GetVaultID(asset, owner common.Address) (uint64, error) {
	var id uint64
	if _, err := s.m.KVGet(vaultIndexKey(asset, owner), &id); err != nil {
		return 0, err
	}
	return id, nil
}

func (s *StateStore) PutVaultID(asset, owner common.Address, id uint64) error {
	return s.m.KVPut(vaultIndexKey(asset, owner), id)
}

// NextVaultID hands out ids starting at 1 so that zero means "no vault".
func (s *StateStore) NextVaultID() (uint64, error) {
	var count uint64
	if _, err := s.m.KVGet(vaultCountKey, &count); err != nil {
		return 0, err
	}
	count++
	if err := s.m.KVPut(vaultCountKey, count); err != nil {
		return 0, err
	}
	return count, nil
}

func (s *StateStore) GetCollateralConfig(asset common.Address) (*CollateralConfig, error) {
	cfg := new(CollateralConfig)
	ok, err := s.m.KVGet(configKey(asset), cfg)
	if err != nil || !ok {
		return nil, err
	}
	return cfg, nil
}

func (s *StateStore) PutCollateralConfig(asset common.Address, cfg *CollateralConfig) error {
	return s.m.KVPut(configKey(asset), cfg)
}
