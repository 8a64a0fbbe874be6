package genesis

import (
	"bytes"
	"fmt"
	"sort"

	"vaultswap/config"
	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/token"
)

// Apply writes spec into an empty ledger. It reports false without touching
// anything when the ledger already holds genesis state. Entries are applied
// in a fixed order so two nodes given the same file build identical state.
func Apply(ledger *state.Ledger, spec *config.Genesis) (bool, error) {
	if spec == nil {
		return false, fmt.Errorf("genesis spec must not be nil")
	}
	initialized, err := ledger.Initialized()
	if err != nil {
		return false, err
	}
	if initialized {
		return false, nil
	}
	if err := spec.Validate(); err != nil {
		return false, err
	}

	err = ledger.Genesis(func(inv *state.Invocation) error {
		// 1) Wallets
		accounts := append([]config.GenesisAccount(nil), spec.Accounts...)
		sort.Slice(accounts, func(i, j int) bool { return accounts[i].Address < accounts[j].Address })
		for _, acc := range accounts {
			addr, err := crypto.ParseAddress(acc.Address)
			if err != nil {
				return err
			}
			if err := inv.SetAccount(addr, &types.Account{Balance: acc.Balance}); err != nil {
				return fmt.Errorf("account %s: %w", addr, err)
			}
		}

		// 2) Mints (by symbol)
		mints := append([]config.GenesisMint(nil), spec.Mints...)
		sort.Slice(mints, func(i, j int) bool {
			return config.NormalizeSymbol(mints[i].Symbol) < config.NormalizeSymbol(mints[j].Symbol)
		})
		for _, m := range mints {
			addr, err := m.ResolvedAddress()
			if err != nil {
				return err
			}
			authority, err := crypto.ParseAddress(m.Authority)
			if err != nil {
				return err
			}
			if err := token.GenesisMint(inv, addr, m.Decimals, authority); err != nil {
				return fmt.Errorf("mint %s: %w", m.Symbol, err)
			}
		}

		// 3) Holdings (owner, then mint)
		type holding struct {
			owner, mint crypto.Address
			amount      uint64
		}
		holdings := make([]holding, 0, len(spec.Holdings))
		for _, h := range spec.Holdings {
			owner, err := crypto.ParseAddress(h.Owner)
			if err != nil {
				return err
			}
			mint, err := spec.MintAddress(h.Mint)
			if err != nil {
				return err
			}
			holdings = append(holdings, holding{owner: owner, mint: mint, amount: h.Amount})
		}
		sort.SliceStable(holdings, func(i, j int) bool {
			if c := bytes.Compare(holdings[i].owner[:], holdings[j].owner[:]); c != 0 {
				return c < 0
			}
			return bytes.Compare(holdings[i].mint[:], holdings[j].mint[:]) < 0
		})
		for _, h := range holdings {
			if _, err := token.GenesisHolding(inv, h.owner, h.mint, h.amount); err != nil {
				return fmt.Errorf("holding %s/%s: %w", h.owner, h.mint, err)
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return true, nil
}
