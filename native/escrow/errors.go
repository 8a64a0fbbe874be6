package escrow

import (
	"errors"
	"fmt"

	"vaultswap/core/runtime"
	"vaultswap/native/common"
)

// Code classifies an escrow failure.
type Code string

const (
	CodeAuthorization      Code = "authorization"
	CodeOwnership          Code = "ownership"
	CodeAddressMismatch    Code = "address_mismatch"
	CodeStatePrecondition  Code = "state_precondition"
	CodeTransferFailed     Code = "transfer_failed"
	CodeInvalidInstruction Code = "invalid_instruction"
	CodeInternal           Code = "internal"
)

var (
	ErrNotEnoughAccounts = errors.New("escrow: not enough account keys")
	ErrInvalidData       = errors.New("escrow: invalid instruction data")
	ErrInvalidAmount     = errors.New("escrow: amount must be positive")
	ErrSameMint          = errors.New("escrow: both sides use the same mint")
	ErrMissingSignature  = errors.New("escrow: missing required signature")
	ErrWrongCaller       = errors.New("escrow: caller is not the maker")
	ErrInvalidOwner      = errors.New("escrow: invalid account owner")
	ErrAddressMismatch   = errors.New("escrow: address does not match derivation")
	ErrProgramMismatch   = errors.New("escrow: unexpected program id")
	ErrRecordExists      = errors.New("escrow: record already exists")
	ErrVaultNotEmpty     = errors.New("escrow: vault is not empty")
	ErrRecordNotFound    = errors.New("escrow: record not found")
	ErrMintMismatch      = errors.New("escrow: mint does not match record")
	ErrAmountMismatch    = errors.New("escrow: amount does not match record")
	ErrVaultBalance      = errors.New("escrow: vault does not hold the deposited amount")
	ErrInvalidAccount    = errors.New("escrow: invalid account data")
)

var sentinelCodes = []struct {
	err  error
	code Code
}{
	{ErrNotEnoughAccounts, CodeInvalidInstruction},
	{ErrInvalidData, CodeInvalidInstruction},
	{ErrInvalidAmount, CodeInvalidInstruction},
	{ErrSameMint, CodeInvalidInstruction},
	{ErrMissingSignature, CodeAuthorization},
	{ErrWrongCaller, CodeAuthorization},
	{ErrInvalidOwner, CodeOwnership},
	{ErrAddressMismatch, CodeAddressMismatch},
	{ErrProgramMismatch, CodeAddressMismatch},
	{ErrRecordExists, CodeStatePrecondition},
	{ErrVaultNotEmpty, CodeStatePrecondition},
	{ErrRecordNotFound, CodeStatePrecondition},
	{ErrMintMismatch, CodeStatePrecondition},
	{ErrAmountMismatch, CodeStatePrecondition},
	{ErrVaultBalance, CodeStatePrecondition},
	{ErrInvalidAccount, CodeStatePrecondition},
	{common.ErrModulePaused, CodeStatePrecondition},
	{runtime.ErrNotEnoughAccounts, CodeInvalidInstruction},
	{runtime.ErrMissingSignature, CodeAuthorization},
	{runtime.ErrSeedsMismatch, CodeAddressMismatch},
	{runtime.ErrAccountNotWritable, CodeInvalidInstruction},
}

// Error is the typed failure returned by every escrow operation. Op is the
// operation name and Account the role of the offending account, if any.
type Error struct {
	Code    Code
	Op      string
	Account string
	Err     error
}

func (e *Error) Error() string {
	if e.Account != "" {
		return fmt.Sprintf("escrow %s: %s: %v", e.Op, e.Account, e.Err)
	}
	return fmt.Sprintf("escrow %s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// ErrorCode reports Code as a plain string for receipts.
func (e *Error) ErrorCode() string { return string(e.Code) }

// CodeOf returns the failure code carried by err.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var typed *Error
	if errors.As(err, &typed) {
		return typed.Code
	}
	return classify(err)
}

func classify(err error) Code {
	for _, entry := range sentinelCodes {
		if errors.Is(err, entry.err) {
			return entry.code
		}
	}
	return CodeInternal
}

func fail(op, account string, err error) *Error {
	return &Error{Code: classify(err), Op: op, Account: account, Err: err}
}

// transferFailed wraps an error returned by a system or token call.
func transferFailed(op, step string, err error) *Error {
	return &Error{Code: CodeTransferFailed, Op: op, Account: step, Err: err}
}
