package genesis

import (
	"fmt"
	"testing"

	"vaultswap/config"
	"vaultswap/core/state"
	"vaultswap/crypto"
	"vaultswap/native/token"
	"vaultswap/storage"
)

func mustKey(t *testing.T) crypto.Address {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.Address()
}

func TestApplySeedsEmptyLedger(t *testing.T) {
	alice, bob := mustKey(t), mustKey(t)
	spec, err := config.ParseGenesis([]byte(fmt.Sprintf(`
accounts:
  - address: %[1]s
    balance: 1000000
  - address: %[2]s
    balance: 500
mints:
  - symbol: usdx
    decimals: 6
    authority: %[1]s
holdings:
  - owner: %[1]s
    mint: USDX
    amount: 700
  - owner: %[2]s
    mint: usdx
    amount: 300
`, alice, bob)))
	if err != nil {
		t.Fatalf("parse genesis: %v", err)
	}

	ledger := state.NewLedger(storage.NewMemDB())
	applied, err := Apply(ledger, spec)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !applied {
		t.Fatalf("expected genesis to apply to an empty ledger")
	}

	acc, err := ledger.Account(alice)
	if err != nil {
		t.Fatalf("read alice: %v", err)
	}
	if acc.Balance != 1000000 {
		t.Fatalf("alice balance %d", acc.Balance)
	}

	mintAddr := config.MintAddressForSymbol("USDX")
	mint, err := token.ReadMint(ledger, mintAddr)
	if err != nil {
		t.Fatalf("read mint: %v", err)
	}
	if mint.Supply != 1000 || mint.Authority != alice {
		t.Fatalf("unexpected mint %+v", mint)
	}

	holdingAddr, err := token.HoldingAddress(bob, mintAddr)
	if err != nil {
		t.Fatalf("holding address: %v", err)
	}
	holding, err := token.ReadHolding(ledger, holdingAddr)
	if err != nil {
		t.Fatalf("read holding: %v", err)
	}
	if holding.Amount != 300 || holding.Owner != bob {
		t.Fatalf("unexpected holding %+v", holding)
	}

	applied, err = Apply(ledger, spec)
	if err != nil {
		t.Fatalf("reapply: %v", err)
	}
	if applied {
		t.Fatalf("genesis applied twice")
	}
	if mint, err = token.ReadMint(ledger, mintAddr); err != nil {
		t.Fatalf("read mint: %v", err)
	}
	if mint.Supply != 1000 {
		t.Fatalf("supply changed by reapply: %d", mint.Supply)
	}
}

func TestApplyRejectsNil(t *testing.T) {
	if _, err := Apply(state.NewLedger(storage.NewMemDB()), nil); err == nil {
		t.Fatalf("expected nil genesis to fail")
	}
}
