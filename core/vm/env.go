package vm

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"cdpproxy/core/events"
	"cdpproxy/core/state"
)

var (
	ErrNoCode        = errors.New("vm: address has no code")
	ErrCodeExists    = errors.New("vm: address already has code")
	ErrUnknownKind   = errors.New("vm: code kind not bound")
	ErrNotDelegate   = errors.New("vm: code does not support delegated execution")
	ErrNotCallable   = errors.New("vm: code does not accept calls")
	ErrUnknownMethod = errors.New("vm: unknown selector")
)

// Kind names a contract implementation bound at boot.
type Kind string

// Delegate is code that runs in the context of the calling account.
type Delegate interface {
	Delegate(msg Message, input []byte) ([]byte, error)
}

// Callable is code reachable through a regular call.
type Callable interface {
	Call(msg Message, input []byte) ([]byte, error)
}

type codeRecord struct {
	Kind      string
	Destroyed bool
}

// Env is the execution environment shared by every module: journaled state,
// the address to code registry, the clock and the event buffer.
type Env struct {
	state   *state.Manager
	impls   map[Kind]interface{}
	nowFn   func() time.Time
	emitter events.Emitter
	pending []events.Event
}

// NewEnv wires an environment to st. Events are delivered to emitter once a
// transaction commits.
func NewEnv(st *state.Manager, emitter events.Emitter) *Env {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Env{
		state:   st,
		impls:   make(map[Kind]interface{}),
		nowFn:   time.Now,
		emitter: emitter,
	}
}

// State exposes the journaled state.
func (e *Env) State() *state.Manager { return e.state }

// SetNowFunc overrides the clock. Intended for tests.
func (e *Env) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Now returns the current block time.
func (e *Env) Now() time.Time { return e.nowFn().UTC() }

// SetEmitter replaces the downstream emitter.
func (e *Env) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

// Bind associates a kind with its implementation.
func (e *Env) Bind(kind Kind, impl interface{}) {
	e.impls[kind] = impl
}

func codeKey(addr common.Address) []byte {
	return state.Key("vm/code", addr.Bytes())
}

func (e *Env) code(addr common.Address) (codeRecord, error) {
	var rec codeRecord
	if _, err := e.state.KVGet(codeKey(addr), &rec); err != nil {
		return codeRecord{}, err
	}
	return rec, nil
}

// Install places code of the given kind at addr.
func (e *Env) Install(addr common.Address, kind Kind) error {
	if _, ok := e.impls[kind]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
	rec, err := e.code(addr)
	if err != nil {
		return err
	}
	if rec.Kind != "" || rec.Destroyed {
		return fmt.Errorf("%w: %s", ErrCodeExists, addr.Hex())
	}
	return e.state.KVPut(codeKey(addr), codeRecord{Kind: string(kind)})
}

// Destroy removes the code at addr and leaves a tombstone so the address can
// never be reused.
func (e *Env) Destroy(addr common.Address) error {
	rec, err := e.code(addr)
	if err != nil {
		return err
	}
	if rec.Kind == "" {
		return fmt.Errorf("%w: %s", ErrNoCode, addr.Hex())
	}
	return e.state.KVPut(codeKey(addr), codeRecord{Destroyed: true})
}

// HasCode reports whether addr currently holds code.
func (e *Env) HasCode(addr common.Address) bool {
	rec, err := e.code(addr)
	return err == nil && rec.Kind != ""
}

// Destroyed reports whether addr held code that has since been destroyed.
func (e *Env) Destroyed(addr common.Address) bool {
	rec, err := e.code(addr)
	return err == nil && rec.Destroyed
}

// CodeKind returns the kind installed at addr, or the empty kind.
func (e *Env) CodeKind(addr common.Address) Kind {
	rec, err := e.code(addr)
	if err != nil {
		return ""
	}
	return Kind(rec.Kind)
}

// Resolve returns the implementation bound to the code at addr.
func (e *Env) Resolve(addr common.Address) (interface{}, bool) {
	kind := e.CodeKind(addr)
	if kind == "" {
		return nil, false
	}
	impl, ok := e.impls[kind]
	return impl, ok
}

// DelegateCall runs the code at target in the context of msg.Context.
func (e *Env) DelegateCall(msg Message, target common.Address, input []byte) ([]byte, error) {
	impl, ok := e.Resolve(target)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, target.Hex())
	}
	delegate, ok := impl.(Delegate)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotDelegate, target.Hex())
	}
	msg.To = target
	return delegate.Delegate(msg, input)
}

// Call invokes the code at msg.To as a regular call.
func (e *Env) Call(msg Message, input []byte) ([]byte, error) {
	impl, ok := e.Resolve(msg.To)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoCode, msg.To.Hex())
	}
	callable, ok := impl.(Callable)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotCallable, msg.To.Hex())
	}
	msg.Context = msg.To
	return callable.Call(msg, input)
}

// Emit buffers ev until the enclosing transaction commits.
func (e *Env) Emit(ev events.Event) {
	if ev == nil {
		return
	}
	e.pending = append(e.pending, ev)
}

// Apply runs fn atomically: if it fails, every state write and event made
// inside fn is discarded. Calls nest.
func (e *Env) Apply(fn func() error) error {
	snap := e.state.Snapshot()
	mark := len(e.pending)
	if err := fn(); err != nil {
		if revertErr := e.state.RevertToSnapshot(snap); revertErr != nil {
			return errors.Join(err, revertErr)
		}
		e.pending = e.pending[:mark]
		return err
	}
	return nil
}

// Simulate runs fn and then drops every state write and event it made,
// whether or not it failed.
func (e *Env) Simulate(fn func() error) error {
	snap := e.state.Snapshot()
	mark := len(e.pending)
	err := fn()
	e.pending = e.pending[:mark]
	if revertErr := e.state.RevertToSnapshot(snap); revertErr != nil {
		return errors.Join(err, revertErr)
	}
	return err
}

// Transact applies fn, commits the state and delivers the buffered events.
func (e *Env) Transact(fn func() error) error {
	if err := e.Apply(fn); err != nil {
		return err
	}
	if err := e.state.Commit(); err != nil {
		e.state.Discard()
		e.pending = e.pending[:0]
		return err
	}
	ready := e.pending
	e.pending = nil
	for _, ev := range ready {
		e.emitter.Emit(ev)
	}
	return nil
}
