package rpc

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"vaultswap/core"
	"vaultswap/core/types"
	"vaultswap/native/common"
)

// decodeTransactionParam accepts either the hex RLP wire form or the JSON
// object form of a signed transaction.
func decodeTransactionParam(raw json.RawMessage) (*types.Transaction, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var encoded string
		if err := json.Unmarshal(trimmed, &encoded); err != nil {
			return nil, err
		}
		encoded = strings.TrimPrefix(strings.TrimPrefix(strings.TrimSpace(encoded), "0x"), "0X")
		wire, err := hex.DecodeString(encoded)
		if err != nil {
			return nil, fmt.Errorf("invalid hex: %w", err)
		}
		return types.DecodeTransaction(wire)
	}
	tx := new(types.Transaction)
	if err := json.Unmarshal(trimmed, tx); err != nil {
		return nil, err
	}
	return tx, nil
}

func (s *Server) transactionParam(w http.ResponseWriter, req *RPCRequest) (*types.Transaction, bool) {
	if len(req.Params) != 1 {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "transaction parameter required", nil)
		return nil, false
	}
	tx, err := decodeTransactionParam(req.Params[0])
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid transaction format", err.Error())
		return nil, false
	}
	return tx, true
}

// rejectionStatus maps executor admission errors onto HTTP and JSON-RPC codes.
func rejectionStatus(err error) (int, int) {
	switch {
	case errors.Is(err, core.ErrDuplicateTransaction):
		return http.StatusConflict, codeDuplicateTx
	case errors.Is(err, common.ErrQuotaRequestsExceeded),
		errors.Is(err, common.ErrQuotaInstructionsExceeded),
		errors.Is(err, common.ErrQuotaCounterOverflow):
		return http.StatusTooManyRequests, codeRateLimited
	case errors.Is(err, core.ErrInvalidTransaction), errors.Is(err, core.ErrUnknownProgram):
		return http.StatusBadRequest, codeInvalidParams
	default:
		return http.StatusInternalServerError, codeServerError
	}
}

func (s *Server) handleSendTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	tx, ok := s.transactionParam(w, req)
	if !ok {
		return
	}
	receipt, err := s.exec.Execute(r.Context(), tx)
	if receipt == nil && err != nil {
		status, code := rejectionStatus(err)
		writeError(w, status, req.ID, code, "transaction rejected", err.Error())
		return
	}
	if err != nil {
		status, code := failureStatus(receipt.Code)
		writeError(w, status, req.ID, code, receipt.Error, receipt)
		return
	}
	writeResult(w, req.ID, receipt)
}

// handleSimulateTransaction reports the would-be receipt. Program failures
// are part of the result, not an RPC error.
func (s *Server) handleSimulateTransaction(w http.ResponseWriter, r *http.Request, req *RPCRequest) {
	tx, ok := s.transactionParam(w, req)
	if !ok {
		return
	}
	receipt, err := s.exec.Simulate(r.Context(), tx)
	if receipt == nil && err != nil {
		status, code := rejectionStatus(err)
		writeError(w, status, req.ID, code, "transaction rejected", err.Error())
		return
	}
	writeResult(w, req.ID, receipt)
}
