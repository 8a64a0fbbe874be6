package token

import (
	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
)

// GenesisMint writes an initialised mint directly into inv. The rent deposit
// is created out of thin air, so inv must come from Ledger.Genesis.
func GenesisMint(inv *state.Invocation, addr crypto.Address, decimals uint8, authority crypto.Address) error {
	data, err := encodeMint(&Mint{Decimals: decimals, Authority: authority, Initialized: true})
	if err != nil {
		return err
	}
	return inv.SetAccount(addr, &types.Account{
		Balance: inv.Rent().MinimumBalance(MintSize),
		Owner:   ProgramID,
		Data:    data,
	})
}

// GenesisHolding creates owner's canonical holding of mint with amount and
// adds amount to the mint supply. It returns the holding address.
func GenesisHolding(inv *state.Invocation, owner, mint crypto.Address, amount uint64) (crypto.Address, error) {
	addr, err := HoldingAddress(owner, mint)
	if err != nil {
		return crypto.Address{}, err
	}
	mintAcc, err := inv.Account(mint)
	if err != nil {
		return crypto.Address{}, err
	}
	m, err := DecodeMint(mintAcc)
	if err != nil {
		return crypto.Address{}, err
	}
	existing, err := inv.Account(addr)
	if err != nil {
		return crypto.Address{}, err
	}
	holding := &Holding{Mint: mint, Owner: owner, State: StateInitialized}
	balance := inv.Rent().MinimumBalance(HoldingSize)
	if !existing.IsEmpty() {
		if holding, err = DecodeHolding(existing); err != nil {
			return crypto.Address{}, err
		}
		balance = existing.Balance
	}
	if m.Supply+amount < m.Supply {
		return crypto.Address{}, ErrOverflow
	}
	m.Supply += amount
	holding.Amount += amount
	mintData, err := encodeMint(m)
	if err != nil {
		return crypto.Address{}, err
	}
	mintAcc.Data = mintData
	if err := inv.SetAccount(mint, mintAcc); err != nil {
		return crypto.Address{}, err
	}
	data, err := encodeHolding(holding)
	if err != nil {
		return crypto.Address{}, err
	}
	if err := inv.SetAccount(addr, &types.Account{Balance: balance, Owner: ProgramID, Data: data}); err != nil {
		return crypto.Address{}, err
	}
	return addr, nil
}
