package core

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"vaultswap/core/runtime"
	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/common"
	"vaultswap/observability"
)

var (
	ErrInvalidTransaction   = errors.New("executor: invalid transaction")
	ErrUnknownProgram       = errors.New("executor: unknown program")
	ErrDuplicateTransaction = errors.New("executor: transaction already processed")
	ErrDuplicateProgram     = errors.New("executor: program already registered")
)

const (
	modeExecute  = "execute"
	modeSimulate = "simulate"

	// CodeRejected marks transactions refused before any instruction ran.
	CodeRejected = "rejected"
	// CodeProgramFailure is used when a program error carries no code.
	CodeProgramFailure = "program_error"
	// CodePaused marks instructions refused by the module pause switch.
	CodePaused = "paused"
)

// Executor runs signed transactions against a ledger. Every transaction is
// one invocation: either all of its instructions take effect or none do.
type Executor struct {
	ledger   *state.Ledger
	programs map[crypto.Address]runtime.Program
	pauses   common.PauseView
	quota    *common.QuotaTracker
	logger   *slog.Logger
	tracer   trace.Tracer
	metrics  *observability.ExecutorMetrics
	nowFn    func() time.Time
}

// NewExecutor registers programs with ledger. Registering two programs
// under one ID panics.
func NewExecutor(ledger *state.Ledger, programs ...runtime.Program) *Executor {
	e := &Executor{
		ledger:   ledger,
		programs: make(map[crypto.Address]runtime.Program, len(programs)),
		logger:   slog.Default(),
		tracer:   otel.Tracer("vaultswap/executor"),
		metrics:  observability.Executor(),
		nowFn:    time.Now,
	}
	for _, p := range programs {
		if err := e.Register(p); err != nil {
			panic(err)
		}
	}
	return e
}

// Register adds p to the dispatch table.
func (e *Executor) Register(p runtime.Program) error {
	if _, ok := e.programs[p.ID()]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateProgram, p.Name())
	}
	e.programs[p.ID()] = p
	return nil
}

// SetPauses wires the module pause switch consulted before each dispatch.
func (e *Executor) SetPauses(p common.PauseView) { e.pauses = p }

// SetQuota limits how many transactions and instructions each signer may
// submit per window. A nil tracker disables the limit.
func (e *Executor) SetQuota(q *common.QuotaTracker) { e.quota = q }

// SetLogger overrides the default logger.
func (e *Executor) SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}
	e.logger = l
}

// SetNowFunc overrides the clock used for latency metrics.
func (e *Executor) SetNowFunc(now func() time.Time) {
	if now == nil {
		now = time.Now
	}
	e.nowFn = now
}

// Ledger exposes the underlying account store for reads.
func (e *Executor) Ledger() *state.Ledger { return e.ledger }

// Account returns the committed state of addr.
func (e *Executor) Account(addr crypto.Address) (*types.Account, error) {
	return e.ledger.Account(addr)
}

// Execute verifies and applies tx. A transaction that fails validation
// returns a nil receipt. A transaction whose program fails returns a failed
// receipt together with the program's error; its state changes are
// discarded.
func (e *Executor) Execute(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return e.apply(ctx, tx, modeExecute)
}

// Simulate runs tx exactly like Execute and then discards the result. It
// does not consume quota or mark the transaction as processed.
func (e *Executor) Simulate(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	return e.apply(ctx, tx, modeSimulate)
}

func (e *Executor) apply(ctx context.Context, tx *types.Transaction, mode string) (receipt *types.Receipt, err error) {
	_, span := e.tracer.Start(ctx, "executor."+mode)
	defer span.End()
	start := e.nowFn()
	outcome := "ok"
	defer func() {
		e.metrics.Observe(mode, outcome, e.nowFn().Sub(start))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			return
		}
		span.SetStatus(codes.Ok, "applied")
	}()

	hash, programs, verified, err := e.admit(tx)
	if err != nil {
		outcome = CodeRejected
		e.logger.Warn("transaction rejected",
			slog.String("mode", mode),
			slog.String("code", CodeRejected),
			slog.Any("error", err))
		return nil, err
	}
	txHash := hex.EncodeToString(hash)
	span.SetAttributes(
		attribute.String("tx.hash", txHash),
		attribute.Int("tx.instructions", len(tx.Instructions)),
	)

	// The replay check runs under the ledger's write lock so two copies of
	// one transaction cannot both commit. Quota is charged only once the
	// transaction is known to be new.
	inv := e.ledger.Begin()
	defer inv.Discard()
	if mode == modeExecute {
		err = e.checkReplay(hash)
		if err == nil {
			err = e.charge(tx)
		}
		if err != nil {
			outcome = CodeRejected
			e.logger.Warn("transaction rejected", slog.String("txHash", txHash), slog.String("code", CodeRejected), slog.Any("error", err))
			return nil, err
		}
	}
	receipt = &types.Receipt{TxHash: txHash}
	for i, ins := range tx.Instructions {
		program := programs[i]
		e.metrics.RecordInstruction(program.Name())
		runErr := common.Guard(e.pauses, program.Name())
		if runErr == nil {
			runErr = program.Process(runtime.NewContext(inv, ins.Program, ins.Accounts, verified), ins.Data)
		}
		if runErr != nil {
			code := codeOf(runErr)
			outcome = code
			receipt.Code = code
			receipt.Error = fmt.Sprintf("instruction %d (%s): %v", i, program.Name(), runErr)
			e.logger.Warn("transaction failed",
				slog.String("mode", mode),
				slog.String("txHash", txHash),
				slog.Int("instruction", i),
				slog.String("program", program.Name()),
				slog.String("code", code),
				slog.Any("error", runErr))
			return receipt, fmt.Errorf("instruction %d (%s): %w", i, program.Name(), runErr)
		}
	}

	receipt.Success = true
	receipt.Events = inv.Events()
	if mode == modeSimulate {
		return receipt, nil
	}
	inv.RecordTransaction(hash)
	if err := inv.Commit(); err != nil {
		outcome = CodeProgramFailure
		receipt.Success = false
		receipt.Events = nil
		receipt.Code = CodeProgramFailure
		receipt.Error = err.Error()
		e.logger.Error("commit failed", slog.String("txHash", txHash), slog.Any("error", err))
		return receipt, err
	}
	e.logger.Info("transaction applied",
		slog.String("txHash", txHash),
		slog.Int("instructions", len(tx.Instructions)),
		slog.Int("events", len(receipt.Events)))
	return receipt, nil
}

func (e *Executor) checkReplay(hash []byte) error {
	seen, err := e.ledger.HasTransaction(hash)
	if err != nil {
		return err
	}
	if seen {
		return fmt.Errorf("%w: %s", ErrDuplicateTransaction, hex.EncodeToString(hash))
	}
	return nil
}

// charge bills one request and the instruction count to every signer.
func (e *Executor) charge(tx *types.Transaction) error {
	for _, signer := range tx.Signers() {
		if err := e.quota.Charge(signer.String(), 1, uint64(len(tx.Instructions))); err != nil {
			return fmt.Errorf("signer %s: %w", signer, err)
		}
	}
	return nil
}

// admit performs the checks that need no ledger access: signatures and
// program lookup.
func (e *Executor) admit(tx *types.Transaction) ([]byte, []runtime.Program, map[crypto.Address]bool, error) {
	if tx == nil {
		return nil, nil, nil, fmt.Errorf("%w: nil transaction", ErrInvalidTransaction)
	}
	verified, err := tx.VerifySignatures()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	programs := make([]runtime.Program, len(tx.Instructions))
	for i, ins := range tx.Instructions {
		p, ok := e.programs[ins.Program]
		if !ok {
			return nil, nil, nil, fmt.Errorf("%w: instruction %d targets %s", ErrUnknownProgram, i, ins.Program)
		}
		programs[i] = p
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, nil, nil, fmt.Errorf("%w: %v", ErrInvalidTransaction, err)
	}
	return hash, programs, verified, nil
}

func codeOf(err error) string {
	var coded interface{ ErrorCode() string }
	if errors.As(err, &coded) {
		return coded.ErrorCode()
	}
	if errors.Is(err, common.ErrModulePaused) {
		return CodePaused
	}
	return CodeProgramFailure
}
