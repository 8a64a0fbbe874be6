package escrow

import (
	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
)

const (
	// RecordSize is the data size allocated for a record account.
	RecordSize = 160

	kindRecord byte = 1
)

// Record describes one open offer: the maker deposited AmountA of MintA into
// the vault and asks AmountB of MintB in return. It never changes after Make.
type Record struct {
	Maker      crypto.Address `json:"maker"`
	MintA      crypto.Address `json:"mintA"`
	MintB      crypto.Address `json:"mintB"`
	AmountA    uint64         `json:"amountA"`
	AmountB    uint64         `json:"amountB"`
	Seed       uint64         `json:"seed"`
	VaultBump  uint8          `json:"vaultBump"`
	RecordBump uint8          `json:"recordBump"`
}

func encodeRecord(r *Record) ([]byte, error) {
	return state.EncodeLayout(kindRecord, r, RecordSize)
}

// DecodeRecord parses a record account. Accounts not owned by the escrow
// program are rejected; an empty account means there is no record.
func DecodeRecord(acc *types.Account) (*Record, error) {
	if acc == nil || acc.IsEmpty() {
		return nil, ErrRecordNotFound
	}
	if acc.Owner != ProgramID {
		return nil, ErrInvalidOwner
	}
	rec := new(Record)
	if err := state.DecodeLayout(acc.Data, kindRecord, rec); err != nil {
		return nil, ErrInvalidAccount
	}
	return rec, nil
}

// AccountReader is the read side GetRecord needs.
type AccountReader interface {
	Account(addr crypto.Address) (*types.Account, error)
}

// GetRecord loads the live record for (maker, seed).
func GetRecord(r AccountReader, maker crypto.Address, seed uint64) (*Record, crypto.Address, error) {
	addr, _, err := DeriveRecord(maker, seed)
	if err != nil {
		return nil, crypto.Address{}, err
	}
	acc, err := r.Account(addr)
	if err != nil {
		return nil, addr, err
	}
	rec, err := DecodeRecord(acc)
	if err != nil {
		return nil, addr, err
	}
	return rec, addr, nil
}
