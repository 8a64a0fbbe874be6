package token

import (
	"fmt"

	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
)

// ProgramID is the identity of the typed-asset program.
var ProgramID = crypto.ProgramAddress("token")

const (
	// MintSize is the data size allocated for a mint account.
	MintSize = 82
	// HoldingSize is the data size allocated for a holding account.
	HoldingSize = 165

	kindMint    byte = 1
	kindHolding byte = 2

	holdingTag = "holding"
)

// HoldingState tracks whether a holding account may move funds.
type HoldingState uint8

const (
	StateUninitialized HoldingState = iota
	StateInitialized
	StateFrozen
)

func (s HoldingState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateInitialized:
		return "initialized"
	case StateFrozen:
		return "frozen"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Mint describes one asset type.
type Mint struct {
	Decimals    uint8          `json:"decimals"`
	Supply      uint64         `json:"supply"`
	Authority   crypto.Address `json:"authority"`
	Initialized bool           `json:"initialized"`
}

// Holding is a balance of one asset type controlled by Owner. Owner may be a
// keyed address or a derived one; only Owner may move the balance out.
type Holding struct {
	Mint   crypto.Address `json:"mint"`
	Owner  crypto.Address `json:"owner"`
	Amount uint64         `json:"amount"`
	State  HoldingState   `json:"state"`
}

// DecodeMint parses a mint from account state, requiring token ownership.
func DecodeMint(acc *types.Account) (*Mint, error) {
	if acc == nil || acc.Owner != ProgramID {
		return nil, ErrNotTokenAccount
	}
	mint := new(Mint)
	if err := state.DecodeLayout(acc.Data, kindMint, mint); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidMint, err)
	}
	if !mint.Initialized {
		return nil, ErrInvalidMint
	}
	return mint, nil
}

// DecodeHolding parses a holding from account state, requiring token
// ownership.
func DecodeHolding(acc *types.Account) (*Holding, error) {
	if acc == nil || acc.Owner != ProgramID {
		return nil, ErrNotTokenAccount
	}
	holding := new(Holding)
	if err := state.DecodeLayout(acc.Data, kindHolding, holding); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHolding, err)
	}
	if holding.State == StateUninitialized {
		return nil, ErrInvalidHolding
	}
	return holding, nil
}

func encodeMint(m *Mint) ([]byte, error) { return state.EncodeLayout(kindMint, m, MintSize) }

func encodeHolding(h *Holding) ([]byte, error) {
	return state.EncodeLayout(kindHolding, h, HoldingSize)
}

// HoldingAddress returns the canonical holding account of owner for mint.
func HoldingAddress(owner, mint crypto.Address) (crypto.Address, error) {
	addr, _, err := holdingSeeds(owner, mint)
	return addr, err
}

func holdingSeeds(owner, mint crypto.Address) (crypto.Address, crypto.Seeds, error) {
	return crypto.FindSeeds(ProgramID, holdingTag, owner.Bytes(), mint.Bytes())
}

// AccountReader is the read side the query helpers need.
type AccountReader interface {
	Account(addr crypto.Address) (*types.Account, error)
}

// ReadMint loads and decodes the mint at addr.
func ReadMint(r AccountReader, addr crypto.Address) (*Mint, error) {
	acc, err := r.Account(addr)
	if err != nil {
		return nil, err
	}
	return DecodeMint(acc)
}

// ReadHolding loads and decodes the holding at addr.
func ReadHolding(r AccountReader, addr crypto.Address) (*Holding, error) {
	acc, err := r.Account(addr)
	if err != nil {
		return nil, err
	}
	return DecodeHolding(acc)
}
