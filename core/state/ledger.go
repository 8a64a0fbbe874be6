package state

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultswap/core/events"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/storage"
)

var (
	ErrInvocationClosed   = errors.New("state: invocation already finished")
	ErrBalanceNotBalanced = errors.New("state: native balance not conserved")
)

var (
	accountPrefix = []byte("acct:")
	txPrefix      = []byte("tx:")
	genesisKey    = []byte("meta:genesis")
)

func accountKey(addr crypto.Address) []byte {
	key := make([]byte, len(accountPrefix)+crypto.AddressLength)
	copy(key, accountPrefix)
	copy(key[len(accountPrefix):], addr[:])
	return key
}

// Ledger is the account store. Reads go straight to storage; all writes go
// through an Invocation so they land atomically or not at all. Only one
// invocation is open at a time.
type Ledger struct {
	db      storage.Database
	rent    Rent
	emitter events.Emitter
	writeMu sync.Mutex
}

// NewLedger wraps db using the default rent schedule.
func NewLedger(db storage.Database) *Ledger {
	return &Ledger{db: db, rent: DefaultRent(), emitter: events.NoopEmitter{}}
}

// SetRent overrides the rent schedule.
func (l *Ledger) SetRent(r Rent) { l.rent = r }

// Rent returns the active rent schedule.
func (l *Ledger) Rent() Rent { return l.rent }

// SetEmitter configures where committed events are delivered. Passing nil
// resets the emitter to a no-op implementation.
func (l *Ledger) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		l.emitter = events.NoopEmitter{}
		return
	}
	l.emitter = emitter
}

// Account returns the committed state of addr. Missing accounts come back
// empty, never nil.
func (l *Ledger) Account(addr crypto.Address) (*types.Account, error) {
	data, err := l.db.Get(accountKey(addr))
	if errors.Is(err, storage.ErrNotFound) {
		return &types.Account{}, nil
	}
	if err != nil {
		return nil, err
	}
	acc := new(types.Account)
	if err := rlp.DecodeBytes(data, acc); err != nil {
		return nil, fmt.Errorf("decode account %s: %w", addr, err)
	}
	return acc, nil
}

// HasTransaction reports whether a transaction with hash has been committed.
func (l *Ledger) HasTransaction(hash []byte) (bool, error) {
	_, err := l.db.Get(append(append([]byte(nil), txPrefix...), hash...))
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Initialized reports whether genesis state has been written.
func (l *Ledger) Initialized() (bool, error) {
	_, err := l.db.Get(genesisKey)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// Begin opens an invocation. It blocks until any other open invocation has
// been committed or discarded.
func (l *Ledger) Begin() *Invocation {
	l.writeMu.Lock()
	return &Invocation{
		ledger:   l,
		original: make(map[crypto.Address]*types.Account),
		writes:   make(map[crypto.Address]*types.Account),
	}
}

// Genesis applies fn without the balance conservation check. It is meant for
// seeding initial state only.
func (l *Ledger) Genesis(fn func(inv *Invocation) error) error {
	inv := l.Begin()
	defer inv.Discard()
	inv.unchecked = true
	if err := fn(inv); err != nil {
		return err
	}
	return inv.Commit()
}

// Invocation buffers account writes and events for one atomic unit of work.
// Reads observe the invocation's own writes.
type Invocation struct {
	ledger    *Ledger
	original  map[crypto.Address]*types.Account
	writes    map[crypto.Address]*types.Account
	order     []crypto.Address
	events    []*types.Event
	txs       [][]byte
	unchecked bool
	done      bool
}

// Account returns a copy of the current view of addr.
func (inv *Invocation) Account(addr crypto.Address) (*types.Account, error) {
	if inv.done {
		return nil, ErrInvocationClosed
	}
	if acc, ok := inv.writes[addr]; ok {
		return acc.Clone(), nil
	}
	acc, err := inv.ledger.Account(addr)
	if err != nil {
		return nil, err
	}
	if _, ok := inv.original[addr]; !ok {
		inv.original[addr] = acc.Clone()
	}
	return acc.Clone(), nil
}

// SetAccount stages a new value for addr.
func (inv *Invocation) SetAccount(addr crypto.Address, acc *types.Account) error {
	if inv.done {
		return ErrInvocationClosed
	}
	if _, ok := inv.original[addr]; !ok {
		prev, err := inv.ledger.Account(addr)
		if err != nil {
			return err
		}
		inv.original[addr] = prev
	}
	if _, ok := inv.writes[addr]; !ok {
		inv.order = append(inv.order, addr)
	}
	inv.writes[addr] = acc.Clone()
	return nil
}

// Emit stages an event; it is delivered only if the invocation commits.
func (inv *Invocation) Emit(evt *types.Event) {
	if inv.done || evt == nil {
		return
	}
	inv.events = append(inv.events, evt)
}

// Events returns the staged events.
func (inv *Invocation) Events() []*types.Event {
	return append([]*types.Event(nil), inv.events...)
}

// RecordTransaction marks hash as processed once the invocation commits.
func (inv *Invocation) RecordTransaction(hash []byte) {
	if inv.done {
		return
	}
	inv.txs = append(inv.txs, append([]byte(nil), hash...))
}

// Rent exposes the ledger's rent schedule.
func (inv *Invocation) Rent() Rent { return inv.ledger.rent }

func (inv *Invocation) checkConservation() error {
	before := new(big.Int)
	after := new(big.Int)
	for _, addr := range inv.order {
		before.Add(before, new(big.Int).SetUint64(inv.original[addr].Balance))
		after.Add(after, new(big.Int).SetUint64(inv.writes[addr].Balance))
	}
	if before.Cmp(after) != 0 {
		return fmt.Errorf("%w: before %s, after %s", ErrBalanceNotBalanced, before, after)
	}
	return nil
}

// Commit writes every staged account in one storage batch, then delivers the
// staged events. Empty accounts are deleted. On error nothing is written.
func (inv *Invocation) Commit() error {
	if inv.done {
		return ErrInvocationClosed
	}
	defer inv.finish()
	if !inv.unchecked {
		if err := inv.checkConservation(); err != nil {
			return err
		}
	}
	batch := storage.NewBatch()
	for _, addr := range inv.order {
		acc := inv.writes[addr]
		if acc.IsEmpty() {
			batch.Delete(accountKey(addr))
			continue
		}
		encoded, err := rlp.EncodeToBytes(acc)
		if err != nil {
			return fmt.Errorf("encode account %s: %w", addr, err)
		}
		batch.Put(accountKey(addr), encoded)
	}
	for _, hash := range inv.txs {
		batch.Put(append(append([]byte(nil), txPrefix...), hash...), []byte{1})
	}
	if inv.unchecked {
		batch.Put(genesisKey, []byte{1})
	}
	if err := inv.ledger.db.Write(batch); err != nil {
		return err
	}
	for _, evt := range inv.events {
		inv.ledger.emitter.Emit(events.Typed{Evt: evt})
	}
	return nil
}

// Discard drops every staged write and event. Safe to call after Commit.
func (inv *Invocation) Discard() {
	if inv.done {
		return
	}
	inv.finish()
}

func (inv *Invocation) finish() {
	inv.done = true
	inv.writes = nil
	inv.events = nil
	inv.txs = nil
	inv.ledger.writeMu.Unlock()
}
