package runtime

import (
	"errors"
	"fmt"

	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
)

var (
	ErrNotEnoughAccounts  = errors.New("runtime: not enough account references")
	ErrAccountNotListed   = errors.New("runtime: account not referenced by instruction")
	ErrAccountNotWritable = errors.New("runtime: account not writable")
	ErrMissingSignature   = errors.New("runtime: missing required signature")
	ErrSeedsMismatch      = errors.New("runtime: seeds do not derive claimed address")
	ErrNoCaller           = errors.New("runtime: derived authority requires a calling program")
	ErrExternalDebit      = errors.New("runtime: only the owning program may debit an account")
	ErrExternalDataChange = errors.New("runtime: only the owning program may modify account data")
	ErrIllegalAssign      = errors.New("runtime: owner may only be reassigned with zeroed data")
)

// Authority is the party claimed to approve an operation: either a
// transaction signer, or a derived address backed by its seeds.
type Authority struct {
	Address crypto.Address
	Seeds   *crypto.Seeds
}

// Signer claims approval by a transaction signature.
func Signer(addr crypto.Address) Authority { return Authority{Address: addr} }

// Derived claims approval by seeds that derive addr under the calling program.
func Derived(addr crypto.Address, seeds crypto.Seeds) Authority {
	return Authority{Address: addr, Seeds: &seeds}
}

// IsDerived reports whether the authority is backed by seeds.
func (a Authority) IsDerived() bool { return a.Seeds != nil }

// Context is what a program sees while processing one instruction: the
// accounts it was given, which of them signed, and the invocation all of its
// reads and writes go through.
type Context struct {
	inv       *state.Invocation
	program   crypto.Address
	caller    crypto.Address
	hasCaller bool
	metas     []types.AccountMeta
	index     map[crypto.Address]types.AccountMeta
	signers   map[crypto.Address]bool
}

// NewContext builds the context for a top-level instruction. verified is the
// set of addresses whose transaction signatures checked out; an account only
// counts as a signer here if the instruction also marks it as one.
func NewContext(inv *state.Invocation, program crypto.Address, metas []types.AccountMeta, verified map[crypto.Address]bool) *Context {
	ctx := &Context{
		inv:     inv,
		program: program,
		metas:   append([]types.AccountMeta(nil), metas...),
		index:   make(map[crypto.Address]types.AccountMeta, len(metas)),
		signers: make(map[crypto.Address]bool),
	}
	for _, meta := range metas {
		merged := ctx.index[meta.Address]
		merged.Address = meta.Address
		merged.Writable = merged.Writable || meta.Writable
		if meta.Signer && verified[meta.Address] {
			merged.Signer = true
			ctx.signers[meta.Address] = true
		}
		ctx.index[meta.Address] = merged
	}
	return ctx
}

// Program is the identity of the program currently executing.
func (c *Context) Program() crypto.Address { return c.program }

// Caller returns the program that invoked this one, if any.
func (c *Context) Caller() (crypto.Address, bool) { return c.caller, c.hasCaller }

// Accounts returns the ordered account references of the instruction.
func (c *Context) Accounts() []types.AccountMeta {
	return append([]types.AccountMeta(nil), c.metas...)
}

// Meta returns the i-th account reference.
func (c *Context) Meta(i int) (types.AccountMeta, error) {
	if i < 0 || i >= len(c.metas) {
		return types.AccountMeta{}, fmt.Errorf("%w: want index %d, have %d", ErrNotEnoughAccounts, i, len(c.metas))
	}
	return c.index[c.metas[i].Address], nil
}

// IsSigner reports whether addr signed the transaction and is marked as a
// signer on this instruction.
func (c *Context) IsSigner(addr crypto.Address) bool { return c.signers[addr] }

// IsWritable reports whether addr was referenced writable.
func (c *Context) IsWritable(addr crypto.Address) bool { return c.index[addr].Writable }

// IsListed reports whether addr is referenced by the instruction.
func (c *Context) IsListed(addr crypto.Address) bool {
	_, ok := c.index[addr]
	return ok
}

// Load reads a referenced account. The result is a copy.
func (c *Context) Load(addr crypto.Address) (*types.Account, error) {
	if !c.IsListed(addr) {
		return nil, fmt.Errorf("%w: %s", ErrAccountNotListed, addr)
	}
	return c.inv.Account(addr)
}

// Store writes a referenced account. Only the owning program may debit the
// balance, change the data or reassign the owner; anyone may credit.
func (c *Context) Store(addr crypto.Address, acc *types.Account) error {
	if !c.IsListed(addr) {
		return fmt.Errorf("%w: %s", ErrAccountNotListed, addr)
	}
	if !c.IsWritable(addr) {
		return fmt.Errorf("%w: %s", ErrAccountNotWritable, addr)
	}
	prev, err := c.inv.Account(addr)
	if err != nil {
		return err
	}
	if prev.Owner != c.program {
		if acc.Balance < prev.Balance {
			return fmt.Errorf("%w: %s", ErrExternalDebit, addr)
		}
		if acc.Owner != prev.Owner || string(acc.Data) != string(prev.Data) {
			return fmt.Errorf("%w: %s", ErrExternalDataChange, addr)
		}
	} else if acc.Owner != prev.Owner && !zeroed(acc.Data) {
		return fmt.Errorf("%w: %s", ErrIllegalAssign, addr)
	}
	return c.inv.SetAccount(addr, acc)
}

func zeroed(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// Emit stages an event on the enclosing invocation.
func (c *Context) Emit(evt *types.Event) { c.inv.Emit(evt) }

// Rent returns the ledger's rent schedule.
func (c *Context) Rent() state.Rent { return c.inv.Rent() }

// Authorize checks that auth approves the current operation. A signer
// authority must have signed; a derived authority must present seeds that
// derive its address under the calling program.
func (c *Context) Authorize(auth Authority) error {
	if !auth.IsDerived() {
		if !c.IsSigner(auth.Address) {
			return fmt.Errorf("%w: %s", ErrMissingSignature, auth.Address)
		}
		return nil
	}
	if !c.hasCaller {
		return ErrNoCaller
	}
	derived, err := auth.Seeds.Address(c.caller)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrSeedsMismatch, err)
	}
	if derived != auth.Address {
		return fmt.Errorf("%w: %s", ErrSeedsMismatch, auth.Address)
	}
	return nil
}

// Invoke returns the context for a call from the current program into
// callee. The callee sees the same accounts and signers; derived authorities
// it is handed are checked against the current program.
func (c *Context) Invoke(callee crypto.Address) *Context {
	return &Context{
		inv:       c.inv,
		program:   callee,
		caller:    c.program,
		hasCaller: true,
		metas:     c.metas,
		index:     c.index,
		signers:   c.signers,
	}
}
