// Package indexer keeps a queryable copy of committed events in a SQL
// database and exports it for offline analysis.
package indexer

import (
	"context"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
	"lukechampine.com/blake3"

	"cdpproxy/core/types"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	defaultQueryLimit = 100
	maxQueryLimit     = 1000
)

var ErrUnsupportedDriver = errors.New("indexer: unsupported database driver")

// Open connects to the index database. SQLite is the default driver.
func Open(driver, dsn string) (*gorm.DB, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, errors.New("indexer: database dsn required")
	}
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "", DriverSQLite:
		dialector = sqlite.Open(dsn)
	case DriverPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	return db, nil
}

// Indexer stores events handed to it by the node.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger

	mu       sync.Mutex
	sequence uint64
	position int
}

// New migrates db and returns an indexer writing to it.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("indexer: migrate: %w", err)
	}
	return &Indexer{db: db, logger: log.With(slog.String("component", "indexer"))}, nil
}

// Listener adapts the indexer to the node's event subscription. Failures are
// logged; the transaction that emitted the event has already committed.
func (ix *Indexer) Listener() func(*types.Event) {
	return func(ev *types.Event) {
		if err := ix.Record(context.Background(), ev); err != nil {
			ix.logger.Warn("index event", slog.String("type", ev.Type), slog.Uint64("sequence", ev.Height), slog.String("error", err.Error()))
		}
	}
}

// Record stores ev. Recording the same event of the same transaction twice
// is a no-op.
func (ix *Indexer) Record(ctx context.Context, ev *types.Event) error {
	if ev == nil {
		return nil
	}
	ix.mu.Lock()
	if ev.Height != ix.sequence {
		ix.sequence = ev.Height
		ix.position = 0
	}
	position := ix.position
	ix.position++
	ix.mu.Unlock()

	attrs, err := json.Marshal(ev.Attributes)
	if err != nil {
		return err
	}
	rec := EventRecord{
		ID:          uuid.New(),
		Sequence:    ev.Height,
		Position:    position,
		Type:        ev.Type,
		VaultID:     ev.Attr("vaultId"),
		Account:     accountOf(ev),
		Attributes:  string(attrs),
		Fingerprint: Fingerprint(ev, position),
		EmittedAt:   ev.Time.UTC(),
	}
	return ix.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoNothing: true,
	}).Create(&rec).Error
}

func accountOf(ev *types.Event) string {
	for _, key := range []string{"account", "owner"} {
		if v := ev.Attr(key); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}

// Fingerprint identifies an event by its transaction, its position in it and
// its content.
func Fingerprint(ev *types.Event, position int) string {
	h := blake3.New(32, nil)
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], ev.Height)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(position))
	h.Write(buf[:])
	h.Write([]byte(ev.Type))
	keys := make([]string, 0, len(ev.Attributes))
	for k := range ev.Attributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		h.Write([]byte{0})
		h.Write([]byte(k))
		h.Write([]byte{'='})
		h.Write([]byte(ev.Attributes[k]))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Filter narrows a query. Zero fields match everything.
type Filter struct {
	Type         string
	VaultID      string
	Account      string
	FromSequence uint64
	Limit        int
}

func (f Filter) limit() int {
	switch {
	case f.Limit <= 0:
		return defaultQueryLimit
	case f.Limit > maxQueryLimit:
		return maxQueryLimit
	default:
		return f.Limit
	}
}

// Query returns matching events in commit order.
func (ix *Indexer) Query(ctx context.Context, f Filter) ([]EventRecord, error) {
	q := ix.db.WithContext(ctx).Model(&EventRecord{})
	if f.Type != "" {
		q = q.Where("type = ?", f.Type)
	}
	if f.VaultID != "" {
		q = q.Where("vault_id = ?", f.VaultID)
	}
	if f.Account != "" {
		q = q.Where("account = ?", strings.ToLower(f.Account))
	}
	if f.FromSequence > 0 {
		q = q.Where("sequence >= ?", f.FromSequence)
	}
	var out []EventRecord
	err := q.Order("sequence asc").Order("position asc").Limit(f.limit()).Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}

// Event converts a stored record back to its event form.
func (r EventRecord) Event() (*types.Event, error) {
	attrs := map[string]string{}
	if r.Attributes != "" {
		if err := json.Unmarshal([]byte(r.Attributes), &attrs); err != nil {
			return nil, err
		}
	}
	return &types.Event{Type: r.Type, Attributes: attrs, Height: r.Sequence, Time: r.EmittedAt}, nil
}
