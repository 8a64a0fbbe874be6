package escrow

import (
	"vaultswap/core/runtime"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/system"
	"vaultswap/native/token"
)

const (
	instructionMake byte = iota + 1
	instructionTake
	instructionRefund
)

// MakeData opens an offer of AmountA of MintA for AmountB of MintB.
type MakeData struct {
	MintA   crypto.Address
	MintB   crypto.Address
	AmountA uint64
	AmountB uint64
	Seed    uint64
}

// TakeData accepts the offer at (maker, Seed). Amount must equal the
// record's AmountB.
type TakeData struct {
	Seed   uint64
	Amount uint64
}

// RefundData withdraws the maker's offer at Seed.
type RefundData struct {
	Seed uint64
}

// MakeInstruction builds a Make for maker, deriving the record and vault
// addresses and the maker's holding of MintA.
func MakeInstruction(maker crypto.Address, args MakeData) (types.Instruction, error) {
	addrs, err := DeriveAddresses(maker, args.Seed)
	if err != nil {
		return types.Instruction{}, err
	}
	holdingA, err := token.HoldingAddress(maker, args.MintA)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := runtime.EncodeInstruction(instructionMake, args)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		Program: ProgramID,
		Accounts: []types.AccountMeta{
			types.SignerMeta(maker),
			types.ReadOnly(args.MintA),
			types.ReadOnly(args.MintB),
			types.Writable(holdingA),
			types.Writable(addrs.Record),
			types.Writable(addrs.Vault),
			types.ReadOnly(system.ProgramID),
			types.ReadOnly(token.ProgramID),
		},
		Data: data,
	}, nil
}

// TakeInstruction builds a Take of the record at (maker, seed). The mints
// and the asked amount come from rec, as read from the ledger. The maker's
// MintA holding is listed last so a surplus in the vault can be returned.
func TakeInstruction(taker crypto.Address, rec *Record) (types.Instruction, error) {
	addrs, err := DeriveAddresses(rec.Maker, rec.Seed)
	if err != nil {
		return types.Instruction{}, err
	}
	takerA, err := token.HoldingAddress(taker, rec.MintA)
	if err != nil {
		return types.Instruction{}, err
	}
	takerB, err := token.HoldingAddress(taker, rec.MintB)
	if err != nil {
		return types.Instruction{}, err
	}
	makerB, err := token.HoldingAddress(rec.Maker, rec.MintB)
	if err != nil {
		return types.Instruction{}, err
	}
	makerA, err := token.HoldingAddress(rec.Maker, rec.MintA)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := runtime.EncodeInstruction(instructionTake, TakeData{Seed: rec.Seed, Amount: rec.AmountB})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		Program: ProgramID,
		Accounts: []types.AccountMeta{
			types.SignerMeta(taker),
			types.Writable(rec.Maker),
			types.ReadOnly(rec.MintA),
			types.ReadOnly(rec.MintB),
			types.Writable(takerA),
			types.Writable(takerB),
			types.Writable(makerB),
			types.Writable(addrs.Record),
			types.Writable(addrs.Vault),
			types.ReadOnly(token.ProgramID),
			types.Writable(makerA),
		},
		Data: data,
	}, nil
}

// RefundInstruction builds a Refund of the maker's record at seed.
func RefundInstruction(maker, mintA crypto.Address, seed uint64) (types.Instruction, error) {
	addrs, err := DeriveAddresses(maker, seed)
	if err != nil {
		return types.Instruction{}, err
	}
	holdingA, err := token.HoldingAddress(maker, mintA)
	if err != nil {
		return types.Instruction{}, err
	}
	data, err := runtime.EncodeInstruction(instructionRefund, RefundData{Seed: seed})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		Program: ProgramID,
		Accounts: []types.AccountMeta{
			types.SignerMeta(maker),
			types.ReadOnly(mintA),
			types.Writable(holdingA),
			types.Writable(addrs.Record),
			types.Writable(addrs.Vault),
			types.ReadOnly(token.ProgramID),
		},
		Data: data,
	}, nil
}
