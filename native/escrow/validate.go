package escrow

import (
	"errors"
	"fmt"

	"vaultswap/core/runtime"
	"vaultswap/crypto"
	"vaultswap/native/system"
	"vaultswap/native/token"
)

// Every account an operation touches is vetted here before anything is
// written. Operations receive their account set only from the load*
// functions below, which build it exclusively through validate.

type check struct {
	role string
	run  func() error
}

func validate(op string, checks ...check) error {
	for _, c := range checks {
		if err := c.run(); err != nil {
			return fail(op, c.role, err)
		}
	}
	return nil
}

// resolve maps the instruction's account references onto roles by position.
func resolve(ctx *runtime.Context, op string, roles ...string) ([]crypto.Address, error) {
	out := make([]crypto.Address, len(roles))
	for i, role := range roles {
		meta, err := ctx.Meta(i)
		if err != nil {
			return nil, fail(op, role, ErrNotEnoughAccounts)
		}
		out[i] = meta.Address
	}
	return out, nil
}

func isSigner(ctx *runtime.Context, role string, addr crypto.Address) check {
	return check{role, func() error {
		if !ctx.IsSigner(addr) {
			return ErrMissingSignature
		}
		return nil
	}}
}

func isWritable(ctx *runtime.Context, role string, addr crypto.Address) check {
	return check{role, func() error {
		if !ctx.IsWritable(addr) {
			return runtime.ErrAccountNotWritable
		}
		return nil
	}}
}

func isProgram(role string, addr, want crypto.Address) check {
	return check{role, func() error {
		if addr != want {
			return fmt.Errorf("%w: got %s, want %s", ErrProgramMismatch, addr, want)
		}
		return nil
	}}
}

// isWallet requires a plain system-owned account with no data.
func isWallet(ctx *runtime.Context, role string, addr crypto.Address) check {
	return check{role, func() error {
		acc, err := ctx.Load(addr)
		if err != nil {
			return err
		}
		if acc.Owner != system.ProgramID || len(acc.Data) != 0 {
			return ErrInvalidOwner
		}
		return nil
	}}
}

func isMint(ctx *runtime.Context, role string, addr, want crypto.Address) check {
	return check{role, func() error {
		if addr != want {
			return fmt.Errorf("%w: got %s, want %s", ErrMintMismatch, addr, want)
		}
		acc, err := ctx.Load(addr)
		if err != nil {
			return err
		}
		if _, err := token.DecodeMint(acc); err != nil {
			return tokenAccountError(err)
		}
		return nil
	}}
}

// derivedAs requires addr to equal the recomputed derivation.
func derivedAs(role string, addr, want crypto.Address) check {
	return check{role, func() error {
		if addr != want {
			return fmt.Errorf("%w: got %s, want %s", ErrAddressMismatch, addr, want)
		}
		return nil
	}}
}

// isUnused requires a derived account that has never been funded or
// allocated.
func isUnused(ctx *runtime.Context, role string, addr crypto.Address, inUse error) check {
	return check{role, func() error {
		acc, err := ctx.Load(addr)
		if err != nil {
			return err
		}
		if !acc.IsEmpty() {
			return inUse
		}
		return nil
	}}
}

// isHolding decodes a holding of mint. When owner is non-nil the holding must
// be controlled by it.
func isHolding(ctx *runtime.Context, role string, addr, mint crypto.Address, owner *crypto.Address, out **token.Holding) check {
	return check{role, func() error {
		acc, err := ctx.Load(addr)
		if err != nil {
			return err
		}
		holding, err := token.DecodeHolding(acc)
		if err != nil {
			return tokenAccountError(err)
		}
		if holding.Mint != mint {
			return fmt.Errorf("%w: holding of %s, want %s", ErrMintMismatch, holding.Mint, mint)
		}
		if owner != nil && holding.Owner != *owner {
			return fmt.Errorf("%w: controlled by %s, want %s", ErrInvalidOwner, holding.Owner, *owner)
		}
		if out != nil {
			*out = holding
		}
		return nil
	}}
}

func isRecord(ctx *runtime.Context, role string, addr crypto.Address, out **Record) check {
	return check{role, func() error {
		acc, err := ctx.Load(addr)
		if err != nil {
			return err
		}
		rec, err := DecodeRecord(acc)
		if err != nil {
			return err
		}
		*out = rec
		return nil
	}}
}

// lazy defers building a check until the earlier checks have run and
// populated the values it depends on.
func lazy(role string, build func() check) check {
	return check{role, func() error { return build().run() }}
}

func satisfies(role string, cond func() error) check {
	return check{role, cond}
}

func tokenAccountError(err error) error {
	switch {
	case errors.Is(err, token.ErrNotTokenAccount):
		return fmt.Errorf("%w: %v", ErrInvalidOwner, err)
	default:
		return fmt.Errorf("%w: %v", ErrInvalidAccount, err)
	}
}

type makeAccounts struct {
	maker, mintA, mintB, makerHoldingA crypto.Address
	record, vault                      crypto.Address
	recordSeeds, vaultSeeds            crypto.Seeds
}

func loadMakeAccounts(ctx *runtime.Context, args *MakeData) (*makeAccounts, error) {
	const op = "make"
	addrs, err := resolve(ctx, op, "maker", "mint_a", "mint_b", "maker_holding_a", "record", "vault", "system_program", "token_program")
	if err != nil {
		return nil, err
	}
	a := &makeAccounts{
		maker: addrs[0], mintA: addrs[1], mintB: addrs[2], makerHoldingA: addrs[3],
		record: addrs[4], vault: addrs[5],
	}
	var expectedRecord, expectedVault crypto.Address
	err = validate(op,
		satisfies("amount", func() error {
			if args.AmountA == 0 || args.AmountB == 0 {
				return ErrInvalidAmount
			}
			if args.MintA == args.MintB {
				return ErrSameMint
			}
			return nil
		}),
		isSigner(ctx, "maker", a.maker),
		isWritable(ctx, "maker", a.maker),
		isWallet(ctx, "maker", a.maker),
		isProgram("system_program", addrs[6], system.ProgramID),
		isProgram("token_program", addrs[7], token.ProgramID),
		isMint(ctx, "mint_a", a.mintA, args.MintA),
		isMint(ctx, "mint_b", a.mintB, args.MintB),
		isWritable(ctx, "maker_holding_a", a.makerHoldingA),
		isHolding(ctx, "maker_holding_a", a.makerHoldingA, a.mintA, &a.maker, nil),
		satisfies("record", func() error {
			expectedRecord, a.recordSeeds, err = DeriveRecord(a.maker, args.Seed)
			return err
		}),
		lazy("record", func() check { return derivedAs("record", a.record, expectedRecord) }),
		isWritable(ctx, "record", a.record),
		isUnused(ctx, "record", a.record, ErrRecordExists),
		satisfies("vault", func() error {
			expectedVault, a.vaultSeeds, err = DeriveVault(a.maker, args.Seed)
			return err
		}),
		lazy("vault", func() check { return derivedAs("vault", a.vault, expectedVault) }),
		isWritable(ctx, "vault", a.vault),
		isUnused(ctx, "vault", a.vault, ErrVaultNotEmpty),
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// settleAccounts is the validated set shared by Take and Refund: the record,
// its vault and the seeds that authorise the vault.
type settleAccounts struct {
	maker         crypto.Address
	mintA, mintB  crypto.Address
	record, vault crypto.Address
	rec           *Record
	vaultSeeds    crypto.Seeds
	// vaultAmount is the vault's balance at validation time. It can exceed
	// rec.AmountA when a third party has sent units of MintA to the vault.
	vaultAmount uint64
}

// surplus is what the vault holds beyond the deposit.
func (s *settleAccounts) surplus() uint64 { return s.vaultAmount - s.rec.AmountA }

// settleChecks recomputes both derived addresses, loads the record and
// confirms the vault is the custody account it describes and still holds
// the deposit.
func settleChecks(ctx *runtime.Context, s *settleAccounts, seed uint64) []check {
	var expectedRecord, expectedVault crypto.Address
	var vault *token.Holding
	var err error
	return []check{
		satisfies("record", func() error {
			expectedRecord, _, err = DeriveRecord(s.maker, seed)
			return err
		}),
		lazy("record", func() check { return derivedAs("record", s.record, expectedRecord) }),
		isWritable(ctx, "record", s.record),
		isRecord(ctx, "record", s.record, &s.rec),
		satisfies("record", func() error {
			if s.rec.Maker != s.maker {
				return ErrWrongCaller
			}
			if s.rec.Seed != seed {
				return ErrInvalidAccount
			}
			return nil
		}),
		satisfies("mint_a", func() error {
			if s.mintA != s.rec.MintA {
				return fmt.Errorf("%w: got %s, want %s", ErrMintMismatch, s.mintA, s.rec.MintA)
			}
			return nil
		}),
		satisfies("vault", func() error {
			expectedVault, s.vaultSeeds, err = DeriveVault(s.maker, seed)
			if err != nil {
				return err
			}
			if s.vaultSeeds.Bump != s.rec.VaultBump {
				return ErrInvalidAccount
			}
			return nil
		}),
		lazy("vault", func() check { return derivedAs("vault", s.vault, expectedVault) }),
		isWritable(ctx, "vault", s.vault),
		lazy("vault", func() check { return isHolding(ctx, "vault", s.vault, s.rec.MintA, &s.vault, &vault) }),
		satisfies("vault", func() error {
			if vault.Amount < s.rec.AmountA {
				return fmt.Errorf("%w: holds %d, want %d", ErrVaultBalance, vault.Amount, s.rec.AmountA)
			}
			s.vaultAmount = vault.Amount
			return nil
		}),
	}
}

type takeAccounts struct {
	settleAccounts
	taker                                      crypto.Address
	takerHoldingA, takerHoldingB, makerHoldingB crypto.Address
	makerHoldingA                              crypto.Address
}

func loadTakeAccounts(ctx *runtime.Context, args *TakeData) (*takeAccounts, error) {
	const op = "take"
	addrs, err := resolve(ctx, op, "taker", "maker", "mint_a", "mint_b", "taker_holding_a", "taker_holding_b", "maker_holding_b", "record", "vault", "token_program", "maker_holding_a")
	if err != nil {
		return nil, err
	}
	a := &takeAccounts{
		settleAccounts: settleAccounts{
			maker: addrs[1], mintA: addrs[2], mintB: addrs[3], record: addrs[7], vault: addrs[8],
		},
		taker:         addrs[0],
		takerHoldingA: addrs[4],
		takerHoldingB: addrs[5],
		makerHoldingB: addrs[6],
		makerHoldingA: addrs[10],
	}
	checks := []check{
		isSigner(ctx, "taker", a.taker),
		isWritable(ctx, "taker", a.taker),
		isWritable(ctx, "maker", a.maker),
		isProgram("token_program", addrs[9], token.ProgramID),
	}
	checks = append(checks, settleChecks(ctx, &a.settleAccounts, args.Seed)...)
	checks = append(checks,
		satisfies("mint_b", func() error {
			if a.mintB != a.rec.MintB {
				return fmt.Errorf("%w: got %s, want %s", ErrMintMismatch, a.mintB, a.rec.MintB)
			}
			return nil
		}),
		satisfies("amount", func() error {
			if args.Amount == 0 {
				return ErrInvalidAmount
			}
			if args.Amount != a.rec.AmountB {
				return fmt.Errorf("%w: offered %d, asked %d", ErrAmountMismatch, args.Amount, a.rec.AmountB)
			}
			return nil
		}),
		isWritable(ctx, "taker_holding_a", a.takerHoldingA),
		lazy("taker_holding_a", func() check {
			return isHolding(ctx, "taker_holding_a", a.takerHoldingA, a.rec.MintA, nil, nil)
		}),
		isWritable(ctx, "taker_holding_b", a.takerHoldingB),
		lazy("taker_holding_b", func() check {
			return isHolding(ctx, "taker_holding_b", a.takerHoldingB, a.rec.MintB, &a.taker, nil)
		}),
		isWritable(ctx, "maker_holding_b", a.makerHoldingB),
		lazy("maker_holding_b", func() check {
			return isHolding(ctx, "maker_holding_b", a.makerHoldingB, a.rec.MintB, &a.maker, nil)
		}),
		// The maker's X holding is only needed to return a surplus.
		satisfies("maker_holding_a", func() error {
			if a.surplus() == 0 {
				return nil
			}
			if !ctx.IsWritable(a.makerHoldingA) {
				return runtime.ErrAccountNotWritable
			}
			return isHolding(ctx, "maker_holding_a", a.makerHoldingA, a.rec.MintA, &a.maker, nil).run()
		}),
	)
	if err := validate(op, checks...); err != nil {
		return nil, err
	}
	return a, nil
}

type refundAccounts struct {
	settleAccounts
	makerHoldingA crypto.Address
}

func loadRefundAccounts(ctx *runtime.Context, args *RefundData) (*refundAccounts, error) {
	const op = "refund"
	addrs, err := resolve(ctx, op, "maker", "mint_a", "maker_holding_a", "record", "vault", "token_program")
	if err != nil {
		return nil, err
	}
	a := &refundAccounts{
		settleAccounts: settleAccounts{
			maker: addrs[0], mintA: addrs[1], record: addrs[3], vault: addrs[4],
		},
		makerHoldingA: addrs[2],
	}
	checks := []check{
		isSigner(ctx, "maker", a.maker),
		isWritable(ctx, "maker", a.maker),
		isProgram("token_program", addrs[5], token.ProgramID),
	}
	checks = append(checks, settleChecks(ctx, &a.settleAccounts, args.Seed)...)
	checks = append(checks,
		isWritable(ctx, "maker_holding_a", a.makerHoldingA),
		lazy("maker_holding_a", func() check {
			return isHolding(ctx, "maker_holding_a", a.makerHoldingA, a.rec.MintA, &a.maker, nil)
		}),
	)
	if err := validate(op, checks...); err != nil {
		return nil, err
	}
	a.mintB = a.rec.MintB
	return a, nil
}
