package runtime

import (
	"errors"
	"testing"

	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/storage"
)

var (
	programA = crypto.ProgramAddress("runtime-test-a")
	programB = crypto.ProgramAddress("runtime-test-b")
)

func newInvocation(t *testing.T, seed map[crypto.Address]*types.Account) *state.Invocation {
	t.Helper()
	db := storage.NewMemDB()
	t.Cleanup(db.Close)
	ledger := state.NewLedger(db)
	if err := ledger.Genesis(func(inv *state.Invocation) error {
		for addr, acc := range seed {
			if err := inv.SetAccount(addr, acc); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		t.Fatalf("genesis: %v", err)
	}
	inv := ledger.Begin()
	t.Cleanup(inv.Discard)
	return inv
}

func mustKey(t *testing.T) *crypto.PrivateKey {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func TestLoadRequiresListing(t *testing.T) {
	listed := mustKey(t).Address()
	other := mustKey(t).Address()
	inv := newInvocation(t, nil)
	ctx := NewContext(inv, programA, []types.AccountMeta{types.ReadOnly(listed)}, nil)

	if _, err := ctx.Load(listed); err != nil {
		t.Fatalf("load listed: %v", err)
	}
	if _, err := ctx.Load(other); !errors.Is(err, ErrAccountNotListed) {
		t.Fatalf("expected ErrAccountNotListed, got %v", err)
	}
	if err := ctx.Store(listed, &types.Account{Balance: 1}); !errors.Is(err, ErrAccountNotWritable) {
		t.Fatalf("expected ErrAccountNotWritable, got %v", err)
	}
}

func TestSignerRequiresVerificationAndFlag(t *testing.T) {
	signed := mustKey(t).Address()
	unflagged := mustKey(t).Address()
	unverified := mustKey(t).Address()
	inv := newInvocation(t, nil)
	metas := []types.AccountMeta{
		types.SignerMeta(signed),
		types.Writable(unflagged),
		types.SignerMeta(unverified),
	}
	verified := map[crypto.Address]bool{signed: true, unflagged: true}
	ctx := NewContext(inv, programA, metas, verified)

	if err := ctx.Authorize(Signer(signed)); err != nil {
		t.Fatalf("authorize signer: %v", err)
	}
	for _, addr := range []crypto.Address{unflagged, unverified} {
		if err := ctx.Authorize(Signer(addr)); !errors.Is(err, ErrMissingSignature) {
			t.Fatalf("expected ErrMissingSignature for %s, got %v", addr, err)
		}
	}
}

func TestOwnershipRules(t *testing.T) {
	owned := mustKey(t).Address()
	foreign := mustKey(t).Address()
	inv := newInvocation(t, map[crypto.Address]*types.Account{
		owned:   {Balance: 50, Owner: programA, Data: []byte{1}},
		foreign: {Balance: 50, Owner: programB, Data: []byte{2}},
	})
	ctx := NewContext(inv, programA, []types.AccountMeta{types.Writable(owned), types.Writable(foreign)}, nil)

	if err := ctx.Store(owned, &types.Account{Balance: 40, Owner: programA, Data: []byte{9}}); err != nil {
		t.Fatalf("owner debit and write: %v", err)
	}
	if err := ctx.Store(foreign, &types.Account{Balance: 60, Owner: programB, Data: []byte{2}}); err != nil {
		t.Fatalf("external credit: %v", err)
	}
	if err := ctx.Store(foreign, &types.Account{Balance: 10, Owner: programB, Data: []byte{2}}); !errors.Is(err, ErrExternalDebit) {
		t.Fatalf("expected ErrExternalDebit, got %v", err)
	}
	if err := ctx.Store(foreign, &types.Account{Balance: 60, Owner: programB, Data: []byte{3}}); !errors.Is(err, ErrExternalDataChange) {
		t.Fatalf("expected ErrExternalDataChange, got %v", err)
	}
	if err := ctx.Store(foreign, &types.Account{Balance: 60, Owner: programA, Data: []byte{2}}); !errors.Is(err, ErrExternalDataChange) {
		t.Fatalf("expected ErrExternalDataChange on reassign, got %v", err)
	}
	if err := ctx.Store(owned, &types.Account{Balance: 40, Owner: programB, Data: []byte{9}}); !errors.Is(err, ErrIllegalAssign) {
		t.Fatalf("expected ErrIllegalAssign, got %v", err)
	}
	if err := ctx.Store(owned, &types.Account{Balance: 40, Owner: programB, Data: make([]byte, 4)}); err != nil {
		t.Fatalf("reassign zeroed account: %v", err)
	}
}

func TestDerivedAuthorityChecksCaller(t *testing.T) {
	maker := mustKey(t).Address()
	addr, seeds, err := crypto.FindSeeds(programA, "vault", maker.Bytes())
	if err != nil {
		t.Fatalf("find seeds: %v", err)
	}
	inv := newInvocation(t, nil)
	top := NewContext(inv, programA, []types.AccountMeta{types.Writable(addr)}, nil)

	if err := top.Authorize(Derived(addr, seeds)); !errors.Is(err, ErrNoCaller) {
		t.Fatalf("expected ErrNoCaller at top level, got %v", err)
	}

	callee := top.Invoke(programB)
	if caller, ok := callee.Caller(); !ok || caller != programA {
		t.Fatalf("unexpected caller %s", caller)
	}
	if err := callee.Authorize(Derived(addr, seeds)); err != nil {
		t.Fatalf("authorize derived: %v", err)
	}

	// The same seeds presented through a different program derive elsewhere.
	impostor := NewContext(inv, programB, []types.AccountMeta{types.Writable(addr)}, nil).Invoke(programA)
	if err := impostor.Authorize(Derived(addr, seeds)); !errors.Is(err, ErrSeedsMismatch) {
		t.Fatalf("expected ErrSeedsMismatch, got %v", err)
	}

	wrong := seeds
	wrong.Components = [][]byte{mustKey(t).Address().Bytes()}
	if err := callee.Authorize(Derived(addr, wrong)); !errors.Is(err, ErrSeedsMismatch) {
		t.Fatalf("expected ErrSeedsMismatch for altered seeds, got %v", err)
	}
}

func TestMetaIndexBounds(t *testing.T) {
	inv := newInvocation(t, nil)
	ctx := NewContext(inv, programA, []types.AccountMeta{types.ReadOnly(mustKey(t).Address())}, nil)
	if _, err := ctx.Meta(0); err != nil {
		t.Fatalf("meta 0: %v", err)
	}
	if _, err := ctx.Meta(1); !errors.Is(err, ErrNotEnoughAccounts) {
		t.Fatalf("expected ErrNotEnoughAccounts, got %v", err)
	}
}
