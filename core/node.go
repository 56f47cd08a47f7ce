package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"cdpproxy/core/events"
	"cdpproxy/core/genesis"
	"cdpproxy/core/state"
	"cdpproxy/core/types"
	"cdpproxy/core/vm"
	"cdpproxy/native/bank"
	"cdpproxy/observability"
	"cdpproxy/storage"
)

var (
	ErrNoTarget   = errors.New("core: transaction target must be set")
	ErrNilGenesis = errors.New("core: genesis spec required")
	ErrNodeClosed = errors.New("core: node is closed")
)

const (
	defaultTxGas uint64 = 10_000_000
	tracerName          = "cdpproxy/core"
)

var (
	genesisMarker = state.Key("core/genesis")
	sequenceKey   = state.Key("core/sequence")
)

// Listener receives every committed event, stamped with the sequence of the
// transaction that emitted it.
type Listener func(*types.Event)

// Tx is one externally submitted call. Value is native coin moved from From
// to To before the call runs.
type Tx struct {
	From  common.Address
	To    common.Address
	Value *big.Int
	Gas   uint64
	Data  []byte
}

// Receipt reports the outcome of a committed transaction.
type Receipt struct {
	Sequence uint64
	Output   []byte
	Events   []*types.Event
}

// Node owns the database, the journaled state and the native world, and
// runs submitted transactions one at a time.
type Node struct {
	mu     sync.Mutex
	db     storage.Database
	state  *state.Manager
	env    *vm.Env
	world  *World
	sink   *eventSink
	logger *slog.Logger
	tracer trace.Tracer
	closed bool
}

// Option customises a node.
type Option func(*Node)

// WithLogger routes node logs to logger.
func WithLogger(logger *slog.Logger) Option {
	return func(n *Node) {
		if logger != nil {
			n.logger = logger
		}
	}
}

// WithListener subscribes fn to committed events.
func WithListener(fn Listener) Option {
	return func(n *Node) {
		if fn != nil {
			n.sink.listeners = append(n.sink.listeners, fn)
		}
	}
}

// WithClock overrides the wall clock used as the block timestamp.
func WithClock(now func() time.Time) Option {
	return func(n *Node) {
		n.env.SetNowFunc(now)
	}
}

// NewNode opens the world stored in db. An empty database is initialised from
// spec, which is otherwise only used for its fixed wiring.
func NewNode(db storage.Database, spec *genesis.Spec, opts ...Option) (*Node, error) {
	if spec == nil {
		return nil, ErrNilGenesis
	}
	cfg, err := WorldConfigFromSpec(spec)
	if err != nil {
		return nil, err
	}
	st := state.NewManager(db)
	n := &Node{
		db:     db,
		state:  st,
		sink:   &eventSink{},
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	n.env = vm.NewEnv(st, n.sink)
	for _, opt := range opts {
		opt(n)
	}
	n.logger = n.logger.With(slog.String("component", "node"))

	world, err := NewWorld(n.env, cfg)
	if err != nil {
		return nil, err
	}
	n.world = world

	initialised, err := st.KVGet(genesisMarker, nil)
	if err != nil {
		return nil, err
	}
	if !initialised {
		err := n.env.Transact(func() error {
			if err := world.ApplyGenesis(spec); err != nil {
				return err
			}
			return st.KVPut(genesisMarker, uint64(spec.GenesisTimestamp().Unix()))
		})
		if err != nil {
			return nil, fmt.Errorf("apply genesis: %w", err)
		}
		n.logger.Info("genesis applied", slog.Time("genesisTime", spec.GenesisTimestamp()))
	}
	return n, nil
}

// World exposes the native modules for read-only queries.
func (n *Node) World() *World { return n.world }

// Env returns the execution environment.
func (n *Node) Env() *vm.Env { return n.env }

// Sequence returns the number of committed transactions.
func (n *Node) Sequence() (uint64, error) {
	var seq uint64
	if _, err := n.state.KVGet(sequenceKey, &seq); err != nil {
		return 0, err
	}
	return seq, nil
}

// View runs fn under the node lock without committing anything it writes.
func (n *Node) View(fn func(w *World) error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return ErrNodeClosed
	}
	return n.env.Simulate(func() error { return fn(n.world) })
}

// Submit runs tx atomically. Either every effect of the call commits and
// its events are delivered, or nothing changes.
func (n *Node) Submit(ctx context.Context, tx Tx) (*Receipt, error) {
	if tx.To == (common.Address{}) {
		return nil, ErrNoTarget
	}
	_, span := n.tracer.Start(ctx, "core.Submit", trace.WithAttributes(
		attribute.String("tx.from", tx.From.Hex()),
		attribute.String("tx.to", tx.To.Hex()),
		attribute.String("tx.selector", vm.SelectorFromData(tx.Data).Hex()),
	))
	defer span.End()

	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return nil, ErrNodeClosed
	}

	start := time.Now()
	gas := tx.Gas
	if gas == 0 {
		gas = defaultTxGas
	}
	receipt := &Receipt{}
	n.sink.capture = receipt
	n.sink.now = n.env.Now()
	defer func() { n.sink.capture = nil }()

	err := n.env.Transact(func() error {
		if tx.Value != nil && tx.Value.Sign() > 0 {
			if err := n.world.Bank.Transfer(bank.NativeAsset, tx.From, tx.To, tx.Value); err != nil {
				return err
			}
		}
		out, err := n.env.Call(vm.Message{Caller: tx.From, To: tx.To, Value: tx.Value, Gas: gas}, tx.Data)
		if err != nil {
			return err
		}
		receipt.Output = out
		seq, err := n.Sequence()
		if err != nil {
			return err
		}
		receipt.Sequence = seq + 1
		return n.state.KVPut(sequenceKey, receipt.Sequence)
	})
	target := n.targetName(tx.To)
	observability.Transactions().Observe(target, err, time.Since(start))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		n.logger.Warn("transaction reverted",
			slog.String("target", target),
			slog.String("selector", vm.SelectorFromData(tx.Data).Hex()),
			slog.String("error", err.Error()))
		return nil, err
	}
	span.SetAttributes(attribute.Int64("tx.sequence", int64(receipt.Sequence)), attribute.Int("tx.events", len(receipt.Events)))
	n.logger.Debug("transaction committed",
		slog.String("target", target),
		slog.Uint64("sequence", receipt.Sequence),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

func (n *Node) targetName(addr common.Address) string {
	kind := n.env.CodeKind(addr)
	if kind == "" {
		return "unknown"
	}
	return string(kind)
}

// Close releases the database.
func (n *Node) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return
	}
	n.closed = true
	n.db.Close()
}

// eventSink receives committed events, stamps them onto the receipt being
// built and hands them to the listeners.
type eventSink struct {
	capture   *Receipt
	now       time.Time
	listeners []Listener
}

func (s *eventSink) Emit(ev events.Event) {
	rendered := events.ToTypes(ev)
	if rendered == nil {
		return
	}
	rendered.Time = s.now
	observability.Events().RecordEvent(rendered.Type)
	if rb, ok := ev.(events.Rebalanced); ok {
		mode := "automated"
		if rb.Managed {
			mode = "managed"
		}
		observability.Events().RecordRebalance(mode, rb.Fee)
	}
	if s.capture != nil {
		rendered.Height = s.capture.Sequence
		s.capture.Events = append(s.capture.Events, rendered)
	}
	for _, fn := range s.listeners {
		fn(rendered)
	}
}
