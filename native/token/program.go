package token

import (
	"fmt"

	"vaultswap/core/runtime"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/system"
)

const (
	instructionInitializeMint byte = iota + 1
	instructionInitializeAccount
	instructionCreateHolding
	instructionMintTo
	instructionTransfer
	instructionCloseAccount
	instructionFreeze
	instructionThaw
)

// InitializeMintData is the payload of InitializeMint.
type InitializeMintData struct {
	Decimals  uint8
	Authority crypto.Address
}

// AmountData carries the amount for MintTo and Transfer.
type AmountData struct {
	Amount uint64
}

type emptyData struct{}

// Program dispatches token instructions.
type Program struct{}

func (Program) ID() crypto.Address { return ProgramID }
func (Program) Name() string       { return "token" }

// Process handles a top-level token instruction. Account orders:
//
//	InitializeMint:    mint(w)
//	InitializeAccount: account(w) mint owner
//	CreateHolding:     payer(s,w) account(w) owner mint system
//	MintTo:            mint(w) destination(w) authority(s)
//	Transfer:          source(w) destination(w) authority(s)
//	CloseAccount:      account(w) destination(w) authority(s)
//	Freeze, Thaw:      account(w) mint authority(s)
func (Program) Process(ctx *runtime.Context, data []byte) error {
	tag, payload, err := runtime.SplitInstruction(data)
	if err != nil {
		return err
	}
	accounts := func(n int) ([]crypto.Address, error) {
		out := make([]crypto.Address, n)
		for i := range out {
			meta, err := ctx.Meta(i)
			if err != nil {
				return nil, err
			}
			out[i] = meta.Address
		}
		return out, nil
	}
	switch tag {
	case instructionInitializeMint:
		var args InitializeMintData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return err
		}
		acc, err := accounts(1)
		if err != nil {
			return err
		}
		return InitializeMint(ctx, acc[0], args.Decimals, args.Authority)
	case instructionInitializeAccount:
		acc, err := accounts(3)
		if err != nil {
			return err
		}
		return InitializeAccount(ctx, acc[0], acc[1], acc[2])
	case instructionCreateHolding:
		acc, err := accounts(4)
		if err != nil {
			return err
		}
		return CreateHolding(ctx, runtime.Signer(acc[0]), acc[1], acc[2], acc[3])
	case instructionMintTo, instructionTransfer:
		var args AmountData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return err
		}
		acc, err := accounts(3)
		if err != nil {
			return err
		}
		if tag == instructionMintTo {
			return MintTo(ctx, acc[0], acc[1], args.Amount, runtime.Signer(acc[2]))
		}
		return Transfer(ctx, acc[0], acc[1], args.Amount, runtime.Signer(acc[2]))
	case instructionCloseAccount:
		acc, err := accounts(3)
		if err != nil {
			return err
		}
		return CloseAccount(ctx, acc[0], acc[1], runtime.Signer(acc[2]))
	case instructionFreeze, instructionThaw:
		acc, err := accounts(3)
		if err != nil {
			return err
		}
		if tag == instructionFreeze {
			return Freeze(ctx, acc[0], acc[1], runtime.Signer(acc[2]))
		}
		return Thaw(ctx, acc[0], acc[1], runtime.Signer(acc[2]))
	default:
		return fmt.Errorf("%w: %d", ErrUnknownInstruction, tag)
	}
}

func instruction(tag byte, payload interface{}, metas ...types.AccountMeta) (types.Instruction, error) {
	if payload == nil {
		payload = emptyData{}
	}
	data, err := runtime.EncodeInstruction(tag, payload)
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{Program: ProgramID, Accounts: metas, Data: data}, nil
}

// InitializeMintInstruction initialises an allocated mint account.
func InitializeMintInstruction(mint crypto.Address, decimals uint8, authority crypto.Address) (types.Instruction, error) {
	return instruction(instructionInitializeMint, InitializeMintData{Decimals: decimals, Authority: authority}, types.Writable(mint))
}

// InitializeAccountInstruction initialises an allocated holding account.
func InitializeAccountInstruction(account, mint, owner crypto.Address) (types.Instruction, error) {
	return instruction(instructionInitializeAccount, nil, types.Writable(account), types.ReadOnly(mint), types.ReadOnly(owner))
}

// CreateHoldingInstruction creates owner's canonical holding for mint.
func CreateHoldingInstruction(payer, owner, mint crypto.Address) (types.Instruction, error) {
	account, err := HoldingAddress(owner, mint)
	if err != nil {
		return types.Instruction{}, err
	}
	return instruction(instructionCreateHolding, nil,
		types.SignerMeta(payer),
		types.Writable(account),
		types.ReadOnly(owner),
		types.ReadOnly(mint),
		types.ReadOnly(system.ProgramID),
	)
}

// MintToInstruction issues amount of mint into destination.
func MintToInstruction(mint, destination, authority crypto.Address, amount uint64) (types.Instruction, error) {
	return instruction(instructionMintTo, AmountData{Amount: amount},
		types.Writable(mint), types.Writable(destination), types.AccountMeta{Address: authority, Signer: true})
}

// TransferInstruction moves amount from source to destination.
func TransferInstruction(source, destination, authority crypto.Address, amount uint64) (types.Instruction, error) {
	return instruction(instructionTransfer, AmountData{Amount: amount},
		types.Writable(source), types.Writable(destination), types.AccountMeta{Address: authority, Signer: true})
}

// CloseAccountInstruction closes an empty holding.
func CloseAccountInstruction(account, destination, authority crypto.Address) (types.Instruction, error) {
	return instruction(instructionCloseAccount, nil,
		types.Writable(account), types.Writable(destination), types.AccountMeta{Address: authority, Signer: true})
}

// FreezeInstruction freezes a holding.
func FreezeInstruction(account, mint, authority crypto.Address) (types.Instruction, error) {
	return instruction(instructionFreeze, nil,
		types.Writable(account), types.ReadOnly(mint), types.AccountMeta{Address: authority, Signer: true})
}

// ThawInstruction thaws a frozen holding.
func ThawInstruction(account, mint, authority crypto.Address) (types.Instruction, error) {
	return instruction(instructionThaw, nil,
		types.Writable(account), types.ReadOnly(mint), types.AccountMeta{Address: authority, Signer: true})
}
