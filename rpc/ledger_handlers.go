package rpc

import (
	"encoding/hex"
	"errors"
	"net/http"

	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/token"
)

type AddressParam struct {
	Address string `json:"address"`
}

type AccountResult struct {
	Address string `json:"address"`
	Balance uint64 `json:"balance"`
	Owner   string `json:"owner"`
	Data    string `json:"data"`
	Exists  bool   `json:"exists"`
}

type HoldingResult struct {
	Address string `json:"address"`
	Mint    string `json:"mint"`
	Owner   string `json:"owner"`
	Amount  uint64 `json:"amount"`
	State   string `json:"state"`
}

type MintResult struct {
	Address   string `json:"address"`
	Decimals  uint8  `json:"decimals"`
	Supply    uint64 `json:"supply"`
	Authority string `json:"authority"`
}

// HoldingParam names a holding directly or by (owner, mint).
type HoldingParam struct {
	Address string `json:"address,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Mint    string `json:"mint,omitempty"`
}

func accountResult(addr crypto.Address, acc *types.Account) AccountResult {
	return AccountResult{
		Address: addr.String(),
		Balance: acc.Balance,
		Owner:   acc.Owner.String(),
		Data:    "0x" + hex.EncodeToString(acc.Data),
		Exists:  !acc.IsEmpty(),
	}
}

func (s *Server) addressParam(w http.ResponseWriter, req *RPCRequest) (crypto.Address, bool) {
	var p AddressParam
	if err := singleParam(req, &p); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return crypto.Address{}, false
	}
	addr, err := crypto.ParseAddress(p.Address)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return crypto.Address{}, false
	}
	return addr, true
}

func (s *Server) handleGetAccount(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	acc, err := s.exec.Account(addr)
	if err != nil {
		writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load account", err.Error())
		return
	}
	writeResult(w, req.ID, accountResult(addr, acc))
}

func (s *Server) handleGetHolding(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	var p HoldingParam
	if err := singleParam(req, &p); err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	addr, err := resolveHolding(p)
	if err != nil {
		writeError(w, http.StatusBadRequest, req.ID, codeInvalidParams, "invalid_params", err.Error())
		return
	}
	h, err := token.ReadHolding(s.exec.Ledger(), addr)
	if err != nil {
		writeTokenError(w, req, "holding", err)
		return
	}
	writeResult(w, req.ID, HoldingResult{
		Address: addr.String(),
		Mint:    h.Mint.String(),
		Owner:   h.Owner.String(),
		Amount:  h.Amount,
		State:   h.State.String(),
	})
}

func resolveHolding(p HoldingParam) (crypto.Address, error) {
	if p.Address != "" {
		return crypto.ParseAddress(p.Address)
	}
	if p.Owner == "" || p.Mint == "" {
		return crypto.Address{}, errors.New("address or owner and mint required")
	}
	owner, err := crypto.ParseAddress(p.Owner)
	if err != nil {
		return crypto.Address{}, err
	}
	mint, err := crypto.ParseAddress(p.Mint)
	if err != nil {
		return crypto.Address{}, err
	}
	return token.HoldingAddress(owner, mint)
}

func (s *Server) handleGetMint(w http.ResponseWriter, _ *http.Request, req *RPCRequest) {
	addr, ok := s.addressParam(w, req)
	if !ok {
		return
	}
	m, err := token.ReadMint(s.exec.Ledger(), addr)
	if err != nil {
		writeTokenError(w, req, "mint", err)
		return
	}
	writeResult(w, req.ID, MintResult{
		Address:   addr.String(),
		Decimals:  m.Decimals,
		Supply:    m.Supply,
		Authority: m.Authority.String(),
	})
}

func writeTokenError(w http.ResponseWriter, req *RPCRequest, what string, err error) {
	if errors.Is(err, token.ErrNotTokenAccount) || errors.Is(err, token.ErrInvalidMint) || errors.Is(err, token.ErrInvalidHolding) {
		writeError(w, http.StatusNotFound, req.ID, codeNotFound, what+" not found", err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, req.ID, codeServerError, "failed to load "+what, err.Error())
}
