package types

import "vaultswap/crypto"

// Account is the unit of ledger state. Balance is held in whole units of the
// base currency; Owner is the program allowed to mutate Data and debit
// Balance; Data is program-defined.
type Account struct {
	Balance uint64         `json:"balance"`
	Owner   crypto.Address `json:"owner"`
	Data    []byte         `json:"data"`
}

// Clone returns a deep copy so callers can mutate the result freely.
func (a *Account) Clone() *Account {
	if a == nil {
		return &Account{}
	}
	clone := *a
	clone.Data = append([]byte(nil), a.Data...)
	return &clone
}

// IsEmpty reports whether the account holds nothing at all. Empty accounts
// are not persisted, so an empty account and a missing one are the same.
func (a *Account) IsEmpty() bool {
	return a == nil || (a.Balance == 0 && len(a.Data) == 0 && a.Owner.IsZero())
}

// AccountMeta names an account referenced by an instruction together with
// the access the instruction requests for it.
type AccountMeta struct {
	Address  crypto.Address `json:"address"`
	Signer   bool           `json:"signer"`
	Writable bool           `json:"writable"`
}

// ReadOnly references an account without write access.
func ReadOnly(addr crypto.Address) AccountMeta { return AccountMeta{Address: addr} }

// Writable references an account that may be modified.
func Writable(addr crypto.Address) AccountMeta { return AccountMeta{Address: addr, Writable: true} }

// SignerMeta references a signing, writable account.
func SignerMeta(addr crypto.Address) AccountMeta {
	return AccountMeta{Address: addr, Signer: true, Writable: true}
}
