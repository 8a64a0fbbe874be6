package escrow

import (
	"errors"
	"reflect"
	"testing"

	"vaultswap/core/events"
	"vaultswap/core/runtime"
	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/token"
	"vaultswap/storage"
)

const (
	walletFunding = 1_000_000_000
	makerX        = 5_000_000
	takerY        = 5_000_000
)

// world is a ledger seeded with two mints and two funded parties: the maker
// holds X and an empty Y holding, the taker holds Y and an empty X holding.
type world struct {
	t        testing.TB
	ledger   *state.Ledger
	engine   *Engine
	recorder *events.Recorder

	authority crypto.Address
	mintX     crypto.Address
	mintY     crypto.Address
	maker     crypto.Address
	taker     crypto.Address
	makerX    crypto.Address
	makerY    crypto.Address
	takerX    crypto.Address
	takerY    crypto.Address
}

func randomAddress(t testing.TB) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.Address()
}

func newWorld(t testing.TB) *world {
	t.Helper()
	db := storage.NewMemDB()
	w := &world{
		t:         t,
		ledger:    state.NewLedger(db),
		engine:    NewEngine(),
		recorder:  events.NewRecorder(0),
		authority: randomAddress(t),
		mintX:     randomAddress(t),
		mintY:     randomAddress(t),
		maker:     randomAddress(t),
		taker:     randomAddress(t),
	}
	w.ledger.SetEmitter(w.recorder)
	err := w.ledger.Genesis(func(inv *state.Invocation) error {
		for _, addr := range []crypto.Address{w.maker, w.taker, w.authority} {
			if err := inv.SetAccount(addr, &types.Account{Balance: walletFunding}); err != nil {
				return err
			}
		}
		for _, mint := range []crypto.Address{w.mintX, w.mintY} {
			if err := token.GenesisMint(inv, mint, 6, w.authority); err != nil {
				return err
			}
		}
		var err error
		if w.makerX, err = token.GenesisHolding(inv, w.maker, w.mintX, makerX); err != nil {
			return err
		}
		if w.makerY, err = token.GenesisHolding(inv, w.maker, w.mintY, 0); err != nil {
			return err
		}
		if w.takerX, err = token.GenesisHolding(inv, w.taker, w.mintX, 0); err != nil {
			return err
		}
		w.takerY, err = token.GenesisHolding(inv, w.taker, w.mintY, takerY)
		return err
	})
	if err != nil {
		t.Fatalf("genesis: %v", err)
	}
	return w
}

// run executes one instruction the way the executor does: a single
// invocation that commits only when the program succeeds.
func (w *world) run(ins types.Instruction, signers ...crypto.Address) error {
	return w.runProgram(w.engine, ins, signers...)
}

func (w *world) runProgram(p runtime.Program, ins types.Instruction, signers ...crypto.Address) error {
	verified := make(map[crypto.Address]bool, len(signers))
	for _, s := range signers {
		verified[s] = true
	}
	inv := w.ledger.Begin()
	defer inv.Discard()
	ctx := runtime.NewContext(inv, ins.Program, ins.Accounts, verified)
	if err := p.Process(ctx, ins.Data); err != nil {
		return err
	}
	return inv.Commit()
}

// donate mints amount of X straight into addr on the authority's signature,
// the way any outsider holding units could send them there.
func (w *world) donate(addr crypto.Address, amount uint64) {
	w.t.Helper()
	ins, err := token.MintToInstruction(w.mintX, addr, w.authority, amount)
	if err != nil {
		w.t.Fatalf("mint-to instruction: %v", err)
	}
	if err := w.runProgram(token.Program{}, ins, w.authority); err != nil {
		w.t.Fatalf("donate %d to %s: %v", amount, addr, err)
	}
}

func (w *world) make(seed, amountA, amountB uint64) error {
	w.t.Helper()
	ins, err := MakeInstruction(w.maker, MakeData{MintA: w.mintX, MintB: w.mintY, AmountA: amountA, AmountB: amountB, Seed: seed})
	if err != nil {
		w.t.Fatalf("make instruction: %v", err)
	}
	return w.run(ins, w.maker)
}

func (w *world) mustMake(seed, amountA, amountB uint64) {
	w.t.Helper()
	if err := w.make(seed, amountA, amountB); err != nil {
		w.t.Fatalf("make seed %d: %v", seed, err)
	}
}

func (w *world) takeInstruction(seed uint64) types.Instruction {
	w.t.Helper()
	rec, _, err := GetRecord(w.ledger, w.maker, seed)
	if err != nil {
		// Build against a phantom record so the engine sees the request.
		rec = &Record{Maker: w.maker, MintA: w.mintX, MintB: w.mintY, AmountB: 1, Seed: seed}
	}
	ins, err := TakeInstruction(w.taker, rec)
	if err != nil {
		w.t.Fatalf("take instruction: %v", err)
	}
	return ins
}

func (w *world) take(seed uint64) error {
	w.t.Helper()
	return w.run(w.takeInstruction(seed), w.taker)
}

func (w *world) refund(seed uint64) error {
	w.t.Helper()
	ins, err := RefundInstruction(w.maker, w.mintX, seed)
	if err != nil {
		w.t.Fatalf("refund instruction: %v", err)
	}
	return w.run(ins, w.maker)
}

func (w *world) derive(seed uint64) Addresses {
	w.t.Helper()
	addrs, err := DeriveAddresses(w.maker, seed)
	if err != nil {
		w.t.Fatalf("derive seed %d: %v", seed, err)
	}
	return addrs
}

func (w *world) amount(addr crypto.Address) uint64 {
	w.t.Helper()
	h, err := token.ReadHolding(w.ledger, addr)
	if err != nil {
		w.t.Fatalf("read holding %s: %v", addr, err)
	}
	return h.Amount
}

func (w *world) native(addr crypto.Address) uint64 {
	w.t.Helper()
	acc, err := w.ledger.Account(addr)
	if err != nil {
		w.t.Fatalf("read account %s: %v", addr, err)
	}
	return acc.Balance
}

func (w *world) exists(addr crypto.Address) bool {
	w.t.Helper()
	acc, err := w.ledger.Account(addr)
	if err != nil {
		w.t.Fatalf("read account %s: %v", addr, err)
	}
	return !acc.IsEmpty()
}

// snapshot captures every balance the fixture can touch.
func (w *world) snapshot(seeds ...uint64) map[crypto.Address]types.Account {
	w.t.Helper()
	addrs := []crypto.Address{w.maker, w.taker, w.makerX, w.makerY, w.takerX, w.takerY, w.mintX, w.mintY}
	for _, seed := range seeds {
		derived := w.derive(seed)
		addrs = append(addrs, derived.Record, derived.Vault)
	}
	out := make(map[crypto.Address]types.Account, len(addrs))
	for _, addr := range addrs {
		acc, err := w.ledger.Account(addr)
		if err != nil {
			w.t.Fatalf("read account %s: %v", addr, err)
		}
		out[addr] = *acc.Clone()
	}
	return out
}

// unchanged fails the test when any account differs from before.
func (w *world) unchanged(before map[crypto.Address]types.Account, seeds ...uint64) {
	w.t.Helper()
	after := w.snapshot(seeds...)
	for addr, acc := range before {
		if got := after[addr]; !reflect.DeepEqual(got, acc) {
			w.t.Fatalf("account %s changed by a failed operation:\nbefore %+v\nafter  %+v", addr, acc, got)
		}
	}
}

// expectFailure checks the typed code and the wrapped cause of err.
func expectFailure(t testing.TB, err error, code Code, target error) {
	t.Helper()
	if err == nil {
		t.Fatalf("expected %s failure, got success", code)
	}
	if got := CodeOf(err); got != code {
		t.Fatalf("expected code %s, got %s (%v)", code, got, err)
	}
	if target != nil && !errors.Is(err, target) {
		t.Fatalf("expected %v in chain, got %v", target, err)
	}
}
