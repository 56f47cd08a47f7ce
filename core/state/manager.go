package state

import (
	"errors"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"

	"cdpproxy/storage"
)

var errInvalidSnapshot = errors.New("state: invalid snapshot id")

// Manager is a journaled key/value overlay on top of a storage.Database.
// Writes stay in memory until Commit and can be rolled back to any snapshot
// taken since the last commit.
type Manager struct {
	db      storage.Database
	dirty   map[string]entry
	journal []journalEntry
}

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    entry
	existed bool
}

// NewManager creates a state manager reading through to db.
func NewManager(db storage.Database) *Manager {
	return &Manager{db: db, dirty: make(map[string]entry)}
}

// Key derives the hashed storage key for a namespaced entry.
func Key(prefix string, parts ...[]byte) []byte {
	size := len(prefix)
	for _, part := range parts {
		size += 1 + len(part)
	}
	buf := make([]byte, 0, size)
	buf = append(buf, prefix...)
	for _, part := range parts {
		buf = append(buf, ':')
		buf = append(buf, part...)
	}
	return ethcrypto.Keccak256(buf)
}

func (m *Manager) record(key string) {
	prev, existed := m.dirty[key]
	m.journal = append(m.journal, journalEntry{key: key, prev: prev, existed: existed})
}

// GetRaw returns the raw bytes stored under key, or nil when absent.
func (m *Manager) GetRaw(key []byte) ([]byte, error) {
	if e, ok := m.dirty[string(key)]; ok {
		if e.deleted {
			return nil, nil
		}
		return e.value, nil
	}
	if m.db == nil {
		return nil, nil
	}
	value, err := m.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// PutRaw writes raw bytes under key.
func (m *Manager) PutRaw(key, value []byte) {
	m.record(string(key))
	m.dirty[string(key)] = entry{value: append([]byte(nil), value...)}
}

// Delete removes key.
func (m *Manager) Delete(key []byte) {
	m.record(string(key))
	m.dirty[string(key)] = entry{deleted: true}
}

// KVPut stores the provided value under the supplied key using RLP encoding.
func (m *Manager) KVPut(key []byte, value interface{}) error {
	if len(key) == 0 {
		return fmt.Errorf("kv: key must not be empty")
	}
	encoded, err := rlp.EncodeToBytes(value)
	if err != nil {
		return err
	}
	m.PutRaw(key, encoded)
	return nil
}

// KVGet decodes the value stored under key into out. The boolean reports
// whether the key existed.
func (m *Manager) KVGet(key []byte, out interface{}) (bool, error) {
	if len(key) == 0 {
		return false, fmt.Errorf("kv: key must not be empty")
	}
	data, err := m.GetRaw(key)
	if err != nil {
		return false, err
	}
	if len(data) == 0 {
		return false, nil
	}
	if out == nil {
		return true, nil
	}
	if err := rlp.DecodeBytes(data, out); err != nil {
		return false, err
	}
	return true, nil
}

// Snapshot returns an identifier that RevertToSnapshot can roll back to.
func (m *Manager) Snapshot() int {
	return len(m.journal)
}

// RevertToSnapshot undoes every write made after the snapshot was taken.
func (m *Manager) RevertToSnapshot(id int) error {
	if id < 0 || id > len(m.journal) {
		return errInvalidSnapshot
	}
	for i := len(m.journal) - 1; i >= id; i-- {
		j := m.journal[i]
		if j.existed {
			m.dirty[j.key] = j.prev
		} else {
			delete(m.dirty, j.key)
		}
	}
	m.journal = m.journal[:id]
	return nil
}

// Commit flushes pending writes to the database in one batch and resets the
// journal. Snapshots taken before Commit become invalid.
func (m *Manager) Commit() error {
	if len(m.dirty) == 0 {
		m.journal = m.journal[:0]
		return nil
	}
	if m.db != nil {
		batch := new(storage.Batch)
		for key, e := range m.dirty {
			if e.deleted {
				batch.Delete([]byte(key))
				continue
			}
			batch.Put([]byte(key), e.value)
		}
		if err := m.db.Write(batch); err != nil {
			return fmt.Errorf("state: commit: %w", err)
		}
	}
	m.dirty = make(map[string]entry)
	m.journal = m.journal[:0]
	return nil
}

// Discard drops every uncommitted write.
func (m *Manager) Discard() {
	m.dirty = make(map[string]entry)
	m.journal = m.journal[:0]
}
