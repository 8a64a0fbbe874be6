package system

import (
	"errors"
	"fmt"

	"vaultswap/core/runtime"
	"vaultswap/core/types"
	"vaultswap/crypto"
)

// ProgramID is the identity of the system program. It owns every account
// that has not been assigned to another program, so the zero address is used.
var ProgramID = crypto.Address{}

var (
	ErrInsufficientFunds  = errors.New("system: insufficient funds")
	ErrAccountInUse       = errors.New("system: account already in use")
	ErrNotSystemOwned     = errors.New("system: account not owned by system program")
	ErrBelowRentMinimum   = errors.New("system: balance below rent minimum for space")
	ErrZeroAmount         = errors.New("system: amount must be positive")
	ErrUnknownInstruction = errors.New("system: unknown instruction")
	ErrSpaceTooLarge      = errors.New("system: requested space too large")
)

// MaxSpace bounds the data size of a single account.
const MaxSpace = 10 * 1024

const (
	instructionTransfer byte = iota + 1
	instructionCreateAccount
)

// TransferData is the payload of the Transfer instruction.
type TransferData struct {
	Amount uint64
}

// CreateAccountData is the payload of the CreateAccount instruction.
type CreateAccountData struct {
	Lamports uint64
	Space    uint64
	Owner    crypto.Address
}

// Program dispatches system instructions.
type Program struct{}

func (Program) ID() crypto.Address { return ProgramID }
func (Program) Name() string       { return "system" }

// Process handles a top-level system instruction.
func (Program) Process(ctx *runtime.Context, data []byte) error {
	tag, payload, err := runtime.SplitInstruction(data)
	if err != nil {
		return err
	}
	switch tag {
	case instructionTransfer:
		var args TransferData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return err
		}
		from, err := ctx.Meta(0)
		if err != nil {
			return err
		}
		to, err := ctx.Meta(1)
		if err != nil {
			return err
		}
		return Transfer(ctx, runtime.Signer(from.Address), to.Address, args.Amount)
	case instructionCreateAccount:
		var args CreateAccountData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return err
		}
		payer, err := ctx.Meta(0)
		if err != nil {
			return err
		}
		created, err := ctx.Meta(1)
		if err != nil {
			return err
		}
		return CreateAccount(ctx, runtime.Signer(payer.Address), runtime.Signer(created.Address), args.Owner, args.Space, args.Lamports)
	default:
		return fmt.Errorf("%w: %d", ErrUnknownInstruction, tag)
	}
}

// callee returns ctx as seen by the system program, invoking it when the
// caller is a different program.
func callee(ctx *runtime.Context) *runtime.Context {
	if ctx.Program() == ProgramID {
		return ctx
	}
	return ctx.Invoke(ProgramID)
}

// Transfer moves native balance out of a system-owned account.
func Transfer(ctx *runtime.Context, from runtime.Authority, to crypto.Address, amount uint64) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	sys := callee(ctx)
	if err := sys.Authorize(from); err != nil {
		return err
	}
	src, err := sys.Load(from.Address)
	if err != nil {
		return err
	}
	if src.Owner != ProgramID || len(src.Data) != 0 {
		return fmt.Errorf("%w: %s", ErrNotSystemOwned, from.Address)
	}
	if src.Balance < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Balance, amount)
	}
	src.Balance -= amount
	if err := sys.Store(from.Address, src); err != nil {
		return err
	}
	dst, err := sys.Load(to)
	if err != nil {
		return err
	}
	dst.Balance += amount
	return sys.Store(to, dst)
}

// CreateAccount funds a fresh account with lamports from payer, allocates
// space zero bytes and assigns it to owner. Both payer and the new account
// must authorise; a derived new account authorises with its seeds.
func CreateAccount(ctx *runtime.Context, payer, created runtime.Authority, owner crypto.Address, space, lamports uint64) error {
	if space > MaxSpace {
		return fmt.Errorf("%w: %d", ErrSpaceTooLarge, space)
	}
	sys := callee(ctx)
	if err := sys.Authorize(payer); err != nil {
		return err
	}
	if err := sys.Authorize(created); err != nil {
		return err
	}
	if minimum := sys.Rent().MinimumBalance(space); lamports < minimum {
		return fmt.Errorf("%w: have %d, need %d", ErrBelowRentMinimum, lamports, minimum)
	}
	acc, err := sys.Load(created.Address)
	if err != nil {
		return err
	}
	if !acc.IsEmpty() {
		return fmt.Errorf("%w: %s", ErrAccountInUse, created.Address)
	}
	if err := Transfer(sys, payer, created.Address, lamports); err != nil {
		return err
	}
	acc, err = sys.Load(created.Address)
	if err != nil {
		return err
	}
	acc.Data = make([]byte, space)
	acc.Owner = owner
	return sys.Store(created.Address, acc)
}

// CloseAccount drains an account owned by the calling program into
// destination and clears it. It runs in the owner's own context.
func CloseAccount(ctx *runtime.Context, account, destination crypto.Address) error {
	if account == destination {
		return fmt.Errorf("%w: cannot close into itself", ErrAccountInUse)
	}
	acc, err := ctx.Load(account)
	if err != nil {
		return err
	}
	dst, err := ctx.Load(destination)
	if err != nil {
		return err
	}
	amount := acc.Balance
	if err := ctx.Store(account, &types.Account{}); err != nil {
		return err
	}
	dst.Balance += amount
	return ctx.Store(destination, dst)
}

// TransferInstruction builds a signed native transfer.
func TransferInstruction(from, to crypto.Address, amount uint64) (types.Instruction, error) {
	data, err := runtime.EncodeInstruction(instructionTransfer, TransferData{Amount: amount})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		Program:  ProgramID,
		Accounts: []types.AccountMeta{types.SignerMeta(from), types.Writable(to)},
		Data:     data,
	}, nil
}

// CreateAccountInstruction builds an account creation where both payer and
// the new keyed account sign.
func CreateAccountInstruction(payer, created, owner crypto.Address, space, lamports uint64) (types.Instruction, error) {
	data, err := runtime.EncodeInstruction(instructionCreateAccount, CreateAccountData{Lamports: lamports, Space: space, Owner: owner})
	if err != nil {
		return types.Instruction{}, err
	}
	return types.Instruction{
		Program:  ProgramID,
		Accounts: []types.AccountMeta{types.SignerMeta(payer), types.SignerMeta(created)},
		Data:     data,
	}, nil
}
