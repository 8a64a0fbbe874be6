package rpc

import (
	"errors"
	"net/http"

	"vaultswap/core"
	"vaultswap/crypto"
	"vaultswap/native/escrow"
	"vaultswap/native/token"
)

const (
	codeEscrowInvalidParams = -32021
	codeEscrowNotFound      = -32022
	codeEscrowForbidden     = -32023
	codeEscrowConflict      = -32024
	codeEscrowInternal      = -32025
)

// failureStatus maps a receipt failure code onto HTTP and JSON-RPC codes.
func failureStatus(code string) (int, int) {
	switch escrow.Code(code) {
	case escrow.CodeAuthorization, escrow.CodeOwnership:
		return http.StatusForbidden, codeEscrowForbidden
	case escrow.CodeAddressMismatch, escrow.CodeInvalidInstruction:
		return http.StatusBadRequest, codeEscrowInvalidParams
	case escrow.CodeStatePrecondition, escrow.CodeTransferFailed:
		return http.StatusConflict, codeEscrowConflict
	}
	if code == core.CodePaused {
		return http.StatusServiceUnavailable, codeEscrowConflict
	}
	return http.StatusUnprocessableEntity, codeEscrowInternal
}

type EscrowParam struct {
	Maker string `json:"maker"`
	Seed  uint64 `json:"seed"`
}

type DerivedResult struct {
	Record     string `json:"record"`
	RecordBump uint8  `json:"recordBump"`
	Vault      string `json:"vault"`
	VaultBump  uint8  `json:"vaultBump"`
}

type RecordResult struct {
	Address     string `json:"address"`
	Vault       string `json:"vault"`
	Maker       string `json:"maker"`
	MintA       string `json:"mintA"`
	MintB       string `json:"mintB"`
	AmountA     uint64 `json:"amountA"`
	AmountB     uint64 `json:"amountB"`
	Seed        uint64 `json:"seed"`
	VaultAmount uint64 `json:"vaultAmount"`
	VaultBump   uint8  `json:"vaultBump"`
	RecordBump  uint8  `json:"recordBump"`
}

func (s *Server) escrowParam(w http.ResponseWriter, req *RPCRequest) (crypto.Address, uint64, bool) {
	var p EscrowParam
	if err := singleParam(req, &p); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return crypto.Address{}, 0, false
	}
	maker, err := crypto.ParseAddress(p.Maker)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeEscrowInvalidParams, "invalid_params", err.Error())
		return crypto.Address{}, 0, false
	}
	return maker, p.Seed, true
}

func (s *Server) handleEscrowDeriveAddresses(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	maker, seed, ok := s.escrowParam(w, req)
	if !ok {
		return
	}
	addrs, err := escrow.DeriveAddresses(maker, seed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, "derivation failed", err.Error())
		return
	}
	writeResult(w, req.ID, DerivedResult{
		Record:     addrs.Record.String(),
		RecordBump: addrs.RecordBump,
		Vault:      addrs.Vault.String(),
		VaultBump:  addrs.VaultBump,
	})
}

func (s *Server) handleEscrowGetRecord(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	maker, seed, ok := s.escrowParam(w, req)
	if !ok {
		return
	}
	ledger := s.exec.Ledger()
	rec, addr, err := escrow.GetRecord(ledger, maker, seed)
	if err != nil {
		if errors.Is(err, escrow.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, req.ID, codeEscrowNotFound, "escrow not found", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, "failed to load escrow", err.Error())
		return
	}
	vault, _, err := escrow.DeriveVault(maker, seed)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeEscrowInternal, "derivation failed", err.Error())
		return
	}
	result := RecordResult{
		Address:    addr.String(),
		Vault:      vault.String(),
		Maker:      rec.Maker.String(),
		MintA:      rec.MintA.String(),
		MintB:      rec.MintB.String(),
		AmountA:    rec.AmountA,
		AmountB:    rec.AmountB,
		Seed:       rec.Seed,
		VaultBump:  rec.VaultBump,
		RecordBump: rec.RecordBump,
	}
	if holding, err := token.ReadHolding(ledger, vault); err == nil {
		result.VaultAmount = holding.Amount
	}
	writeResult(w, req.ID, result)
}
