package escrow

import (
	"fmt"
	"time"

	"vaultswap/core/runtime"
	"vaultswap/crypto"
	"vaultswap/native/common"
	"vaultswap/native/system"
	"vaultswap/native/token"
	"vaultswap/observability/metrics"
)

// ModuleName is the pause-switch key for the escrow engine.
const ModuleName = "escrow"

// Engine runs the escrow lifecycle: Make opens an offer by moving the
// maker's deposit into a derived vault, Take settles it in two legs and
// Refund returns the deposit. Each operation validates every account it is
// given before its first write and relies on the surrounding invocation for
// all-or-nothing semantics.
type Engine struct {
	pauses  common.PauseView
	metrics *metrics.EscrowMetrics
	nowFn   func() time.Time
}

// NewEngine creates an engine reporting to the process-wide metrics registry.
func NewEngine() *Engine {
	return &Engine{metrics: metrics.Escrow(), nowFn: time.Now}
}

// SetPauses wires the module pause switch.
func (e *Engine) SetPauses(p common.PauseView) { e.pauses = p }

// SetNowFunc overrides the clock used for latency metrics.
func (e *Engine) SetNowFunc(now func() time.Time) {
	if now == nil {
		e.nowFn = time.Now
		return
	}
	e.nowFn = now
}

func (e *Engine) now() time.Time {
	if e == nil || e.nowFn == nil {
		return time.Now()
	}
	return e.nowFn()
}

func (e *Engine) guard(op string) error {
	if err := common.Guard(e.pauses, ModuleName); err != nil {
		return fail(op, "", err)
	}
	return nil
}

// Make creates the vault and the record for (maker, seed) and funds the
// vault with AmountA of MintA from the maker's holding.
func (e *Engine) Make(ctx *runtime.Context, args MakeData) error {
	const op = "make"
	if err := e.guard(op); err != nil {
		return err
	}
	a, err := loadMakeAccounts(ctx, &args)
	if err != nil {
		return err
	}
	rent := ctx.Rent()
	maker := runtime.Signer(a.maker)
	vaultAuthority := runtime.Derived(a.vault, a.vaultSeeds)

	if err := system.CreateAccount(ctx, maker, vaultAuthority, token.ProgramID, token.HoldingSize, rent.MinimumBalance(token.HoldingSize)); err != nil {
		return transferFailed(op, "create vault", err)
	}
	if err := token.InitializeAccount(ctx, a.vault, a.mintA, a.vault); err != nil {
		return transferFailed(op, "initialise vault", err)
	}
	if err := token.Transfer(ctx, a.makerHoldingA, a.vault, args.AmountA, maker); err != nil {
		return transferFailed(op, "deposit", err)
	}

	rec := &Record{
		Maker:      a.maker,
		MintA:      a.mintA,
		MintB:      a.mintB,
		AmountA:    args.AmountA,
		AmountB:    args.AmountB,
		Seed:       args.Seed,
		VaultBump:  a.vaultSeeds.Bump,
		RecordBump: a.recordSeeds.Bump,
	}
	if err := system.CreateAccount(ctx, maker, runtime.Derived(a.record, a.recordSeeds), ProgramID, RecordSize, rent.MinimumBalance(RecordSize)); err != nil {
		return transferFailed(op, "create record", err)
	}
	if err := e.writeRecord(ctx, a.record, rec); err != nil {
		return fail(op, "record", err)
	}
	ctx.Emit(NewMadeEvent(rec, a.record, a.vault))
	return nil
}

func (e *Engine) writeRecord(ctx *runtime.Context, addr crypto.Address, rec *Record) error {
	acc, err := ctx.Load(addr)
	if err != nil {
		return err
	}
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	acc.Data = data
	return ctx.Store(addr, acc)
}

// Take settles the offer: the taker pays AmountB of MintB to the maker and
// the vault pays AmountA of MintA to the taker under its derived authority.
// Anything else the vault holds goes back to the maker. The vault and the
// record are then closed and their rent returned to the maker.
func (e *Engine) Take(ctx *runtime.Context, args TakeData) error {
	const op = "take"
	if err := e.guard(op); err != nil {
		return err
	}
	a, err := loadTakeAccounts(ctx, &args)
	if err != nil {
		return err
	}
	vaultAuthority := runtime.Derived(a.vault, a.vaultSeeds)

	if err := token.Transfer(ctx, a.takerHoldingB, a.makerHoldingB, a.rec.AmountB, runtime.Signer(a.taker)); err != nil {
		return transferFailed(op, "pay maker", err)
	}
	if err := token.Transfer(ctx, a.vault, a.takerHoldingA, a.rec.AmountA, vaultAuthority); err != nil {
		return transferFailed(op, "release vault", err)
	}
	if surplus := a.surplus(); surplus > 0 {
		if err := token.Transfer(ctx, a.vault, a.makerHoldingA, surplus, vaultAuthority); err != nil {
			return transferFailed(op, "return surplus", err)
		}
	}
	if err := e.closeEscrow(ctx, op, &a.settleAccounts, vaultAuthority); err != nil {
		return err
	}
	ctx.Emit(NewTakenEvent(a.rec, a.record, a.vault, a.taker))
	e.metrics.AddSettled(op, a.rec.AmountA)
	return nil
}

// Refund returns the vault's whole balance to the maker and closes the
// offer. The maker's signature authorises the call; the vault transfer
// itself is authorised by the vault's derivation seeds.
func (e *Engine) Refund(ctx *runtime.Context, args RefundData) error {
	const op = "refund"
	if err := e.guard(op); err != nil {
		return err
	}
	a, err := loadRefundAccounts(ctx, &args)
	if err != nil {
		return err
	}
	vaultAuthority := runtime.Derived(a.vault, a.vaultSeeds)

	if err := token.Transfer(ctx, a.vault, a.makerHoldingA, a.vaultAmount, vaultAuthority); err != nil {
		return transferFailed(op, "return deposit", err)
	}
	if err := e.closeEscrow(ctx, op, &a.settleAccounts, vaultAuthority); err != nil {
		return err
	}
	ctx.Emit(NewRefundedEvent(a.rec, a.record, a.vault))
	e.metrics.AddSettled(op, a.rec.AmountA)
	return nil
}

func (e *Engine) closeEscrow(ctx *runtime.Context, op string, a *settleAccounts, vaultAuthority runtime.Authority) error {
	if err := token.CloseAccount(ctx, a.vault, a.maker, vaultAuthority); err != nil {
		return transferFailed(op, "close vault", err)
	}
	if err := system.CloseAccount(ctx, a.record, a.maker); err != nil {
		return transferFailed(op, "close record", err)
	}
	return nil
}

// ID implements runtime.Program.
func (e *Engine) ID() crypto.Address { return ProgramID }

// Name implements runtime.Program.
func (e *Engine) Name() string { return ModuleName }

// Process decodes an escrow instruction and runs the matching operation.
func (e *Engine) Process(ctx *runtime.Context, data []byte) (err error) {
	op := "unknown"
	start := e.now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = string(CodeOf(err))
		}
		e.metrics.Observe(op, outcome, e.now().Sub(start))
	}()

	tag, payload, err := runtime.SplitInstruction(data)
	if err != nil {
		return fail(op, "", fmt.Errorf("%w: %v", ErrInvalidData, err))
	}
	switch tag {
	case instructionMake:
		op = "make"
		var args MakeData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return fail(op, "", fmt.Errorf("%w: %v", ErrInvalidData, err))
		}
		return e.Make(ctx, args)
	case instructionTake:
		op = "take"
		var args TakeData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return fail(op, "", fmt.Errorf("%w: %v", ErrInvalidData, err))
		}
		return e.Take(ctx, args)
	case instructionRefund:
		op = "refund"
		var args RefundData
		if err := runtime.DecodePayload(payload, &args); err != nil {
			return fail(op, "", fmt.Errorf("%w: %v", ErrInvalidData, err))
		}
		return e.Refund(ctx, args)
	default:
		return fail(op, "", fmt.Errorf("%w: tag %d", ErrInvalidData, tag))
	}
}
