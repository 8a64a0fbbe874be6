package token

import (
	"errors"
	"fmt"
	"math/bits"

	"vaultswap/core/runtime"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/system"
)

var (
	ErrNotTokenAccount     = errors.New("token: account not owned by token program")
	ErrInvalidMint         = errors.New("token: invalid mint")
	ErrInvalidHolding      = errors.New("token: invalid holding account")
	ErrAlreadyInitialized  = errors.New("token: account already initialised")
	ErrInsufficientFunds   = errors.New("token: insufficient funds")
	ErrMintMismatch        = errors.New("token: mint mismatch")
	ErrAccountFrozen       = errors.New("token: account frozen")
	ErrOwnerMismatch       = errors.New("token: authority does not own account")
	ErrMintAuthority       = errors.New("token: not the mint authority")
	ErrNonZeroBalance      = errors.New("token: account still holds tokens")
	ErrNotRentExempt       = errors.New("token: account below rent minimum")
	ErrOverflow            = errors.New("token: amount overflow")
	ErrZeroAmount          = errors.New("token: amount must be positive")
	ErrSelfTransfer        = errors.New("token: source and destination are the same account")
	ErrUnknownInstruction  = errors.New("token: unknown instruction")
	ErrHoldingAddress      = errors.New("token: holding address does not match owner and mint")
	ErrInvalidFreezeTarget = errors.New("token: account not in a state that allows this change")
)

func callee(ctx *runtime.Context) *runtime.Context {
	if ctx.Program() == ProgramID {
		return ctx
	}
	return ctx.Invoke(ProgramID)
}

func loadMint(ctx *runtime.Context, addr crypto.Address) (*types.Account, *Mint, error) {
	acc, err := ctx.Load(addr)
	if err != nil {
		return nil, nil, err
	}
	mint, err := DecodeMint(acc)
	if err != nil {
		return nil, nil, fmt.Errorf("mint %s: %w", addr, err)
	}
	return acc, mint, nil
}

func loadHolding(ctx *runtime.Context, addr crypto.Address) (*types.Account, *Holding, error) {
	acc, err := ctx.Load(addr)
	if err != nil {
		return nil, nil, err
	}
	holding, err := DecodeHolding(acc)
	if err != nil {
		return nil, nil, fmt.Errorf("holding %s: %w", addr, err)
	}
	return acc, holding, nil
}

func storeMint(ctx *runtime.Context, addr crypto.Address, acc *types.Account, mint *Mint) error {
	data, err := encodeMint(mint)
	if err != nil {
		return err
	}
	acc.Data = data
	return ctx.Store(addr, acc)
}

func storeHolding(ctx *runtime.Context, addr crypto.Address, acc *types.Account, holding *Holding) error {
	data, err := encodeHolding(holding)
	if err != nil {
		return err
	}
	acc.Data = data
	return ctx.Store(addr, acc)
}

// requireFresh checks that addr is allocated to the token program, not yet
// initialised and funded to the rent minimum for its size.
func requireFresh(ctx *runtime.Context, addr crypto.Address, size int) (*types.Account, error) {
	acc, err := ctx.Load(addr)
	if err != nil {
		return nil, err
	}
	if acc.Owner != ProgramID {
		return nil, fmt.Errorf("%w: %s", ErrNotTokenAccount, addr)
	}
	if len(acc.Data) != size {
		return nil, fmt.Errorf("token: account %s has %d bytes, want %d", addr, len(acc.Data), size)
	}
	if acc.Data[0] != 0 {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyInitialized, addr)
	}
	if minimum := ctx.Rent().MinimumBalance(uint64(size)); acc.Balance < minimum {
		return nil, fmt.Errorf("%w: %s", ErrNotRentExempt, addr)
	}
	return acc, nil
}

// InitializeMint turns an allocated account into a mint controlled by
// authority.
func InitializeMint(ctx *runtime.Context, mint crypto.Address, decimals uint8, authority crypto.Address) error {
	tok := callee(ctx)
	acc, err := requireFresh(tok, mint, MintSize)
	if err != nil {
		return err
	}
	return storeMint(tok, mint, acc, &Mint{Decimals: decimals, Authority: authority, Initialized: true})
}

// InitializeAccount turns an allocated account into an empty holding of mint
// owned by owner.
func InitializeAccount(ctx *runtime.Context, account, mint, owner crypto.Address) error {
	tok := callee(ctx)
	acc, err := requireFresh(tok, account, HoldingSize)
	if err != nil {
		return err
	}
	if _, _, err := loadMint(tok, mint); err != nil {
		return err
	}
	return storeHolding(tok, account, acc, &Holding{Mint: mint, Owner: owner, State: StateInitialized})
}

// CreateHolding allocates and initialises the canonical holding of owner
// for mint, paid for by payer.
func CreateHolding(ctx *runtime.Context, payer runtime.Authority, account, owner, mint crypto.Address) error {
	tok := callee(ctx)
	expected, seeds, err := holdingSeeds(owner, mint)
	if err != nil {
		return err
	}
	if expected != account {
		return fmt.Errorf("%w: got %s, want %s", ErrHoldingAddress, account, expected)
	}
	rent := tok.Rent().MinimumBalance(HoldingSize)
	if err := system.CreateAccount(tok, payer, runtime.Derived(account, seeds), ProgramID, HoldingSize, rent); err != nil {
		return err
	}
	return InitializeAccount(tok, account, mint, owner)
}

// MintTo issues new supply into a holding. authority must be the mint
// authority.
func MintTo(ctx *runtime.Context, mint, destination crypto.Address, amount uint64, authority runtime.Authority) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	tok := callee(ctx)
	mintAcc, m, err := loadMint(tok, mint)
	if err != nil {
		return err
	}
	if m.Authority != authority.Address {
		return ErrMintAuthority
	}
	if err := tok.Authorize(authority); err != nil {
		return err
	}
	dstAcc, dst, err := loadHolding(tok, destination)
	if err != nil {
		return err
	}
	if dst.Mint != mint {
		return ErrMintMismatch
	}
	if dst.State == StateFrozen {
		return ErrAccountFrozen
	}
	supply, carry := bits.Add64(m.Supply, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	m.Supply = supply
	dst.Amount += amount
	if err := storeMint(tok, mint, mintAcc, m); err != nil {
		return err
	}
	return storeHolding(tok, destination, dstAcc, dst)
}

// Transfer moves amount between two holdings of the same mint. authority
// must own the source: a keyed owner signs, a derived owner presents its
// seeds through the calling program.
func Transfer(ctx *runtime.Context, from, to crypto.Address, amount uint64, authority runtime.Authority) error {
	if amount == 0 {
		return ErrZeroAmount
	}
	if from == to {
		return ErrSelfTransfer
	}
	tok := callee(ctx)
	srcAcc, src, err := loadHolding(tok, from)
	if err != nil {
		return err
	}
	dstAcc, dst, err := loadHolding(tok, to)
	if err != nil {
		return err
	}
	if src.Mint != dst.Mint {
		return fmt.Errorf("%w: %s vs %s", ErrMintMismatch, src.Mint, dst.Mint)
	}
	if src.State == StateFrozen || dst.State == StateFrozen {
		return ErrAccountFrozen
	}
	if src.Owner != authority.Address {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, from)
	}
	if err := tok.Authorize(authority); err != nil {
		return err
	}
	if src.Amount < amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientFunds, src.Amount, amount)
	}
	total, carry := bits.Add64(dst.Amount, amount, 0)
	if carry != 0 {
		return ErrOverflow
	}
	src.Amount -= amount
	dst.Amount = total
	if err := storeHolding(tok, from, srcAcc, src); err != nil {
		return err
	}
	return storeHolding(tok, to, dstAcc, dst)
}

// CloseAccount releases an empty holding and sends its retained native
// balance to destination.
func CloseAccount(ctx *runtime.Context, account, destination crypto.Address, authority runtime.Authority) error {
	tok := callee(ctx)
	_, holding, err := loadHolding(tok, account)
	if err != nil {
		return err
	}
	if holding.Owner != authority.Address {
		return fmt.Errorf("%w: %s", ErrOwnerMismatch, account)
	}
	if err := tok.Authorize(authority); err != nil {
		return err
	}
	if holding.Amount != 0 {
		return fmt.Errorf("%w: %d", ErrNonZeroBalance, holding.Amount)
	}
	return system.CloseAccount(tok, account, destination)
}

// Freeze stops a holding from sending or receiving.
func Freeze(ctx *runtime.Context, account, mint crypto.Address, authority runtime.Authority) error {
	return setFrozen(ctx, account, mint, authority, true)
}

// Thaw reverses Freeze.
func Thaw(ctx *runtime.Context, account, mint crypto.Address, authority runtime.Authority) error {
	return setFrozen(ctx, account, mint, authority, false)
}

func setFrozen(ctx *runtime.Context, account, mint crypto.Address, authority runtime.Authority, frozen bool) error {
	tok := callee(ctx)
	_, m, err := loadMint(tok, mint)
	if err != nil {
		return err
	}
	if m.Authority != authority.Address {
		return ErrMintAuthority
	}
	if err := tok.Authorize(authority); err != nil {
		return err
	}
	acc, holding, err := loadHolding(tok, account)
	if err != nil {
		return err
	}
	if holding.Mint != mint {
		return ErrMintMismatch
	}
	want, next := StateInitialized, StateFrozen
	if !frozen {
		want, next = StateFrozen, StateInitialized
	}
	if holding.State != want {
		return fmt.Errorf("%w: %s", ErrInvalidFreezeTarget, holding.State)
	}
	holding.State = next
	return storeHolding(tok, account, acc, holding)
}
