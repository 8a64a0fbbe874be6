package rpc

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"vaultswap/core/types"
	"vaultswap/crypto"
)

// Client is a JSON-RPC client for a vaultswap node.
type Client struct {
	Endpoint string
	Token    string
	HTTP     *http.Client

	nextID atomic.Int64
}

func NewClient(endpoint, token string) *Client {
	return &Client{
		Endpoint: strings.TrimSpace(endpoint),
		Token:    strings.TrimSpace(token),
		HTTP:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Call invokes method with a single positional parameter and decodes the
// result into out. Node-side failures come back as *RPCError.
func (c *Client) Call(ctx context.Context, method string, param, out interface{}) error {
	payload := map[string]interface{}{
		"jsonrpc": jsonRPCVersion,
		"id":      c.nextID.Add(1),
		"method":  method,
		"params":  []interface{}{param},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.Token)
	}
	resp, err := c.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("POST %s: %w", c.Endpoint, err)
	}
	defer resp.Body.Close()

	var rpcResp RPCResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("failed to decode RPC response (HTTP %d): %w", resp.StatusCode, err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if out == nil || len(rpcResp.Result) == 0 {
		return nil
	}
	return json.Unmarshal(rpcResp.Result, out)
}

func encodeTx(tx *types.Transaction) (string, error) {
	wire, err := tx.Encode()
	if err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(wire), nil
}

// SendTransaction submits a signed transaction and returns its receipt.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	encoded, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	receipt := new(types.Receipt)
	if err := c.Call(ctx, "vs_sendTransaction", encoded, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

// SimulateTransaction dry-runs a signed transaction.
func (c *Client) SimulateTransaction(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	encoded, err := encodeTx(tx)
	if err != nil {
		return nil, err
	}
	receipt := new(types.Receipt)
	if err := c.Call(ctx, "vs_simulateTransaction", encoded, receipt); err != nil {
		return nil, err
	}
	return receipt, nil
}

func (c *Client) GetAccount(ctx context.Context, addr crypto.Address) (*AccountResult, error) {
	out := new(AccountResult)
	return out, c.Call(ctx, "vs_getAccount", AddressParam{Address: addr.String()}, out)
}

func (c *Client) GetHolding(ctx context.Context, owner, mint crypto.Address) (*HoldingResult, error) {
	out := new(HoldingResult)
	return out, c.Call(ctx, "vs_getHolding", HoldingParam{Owner: owner.String(), Mint: mint.String()}, out)
}

func (c *Client) GetMint(ctx context.Context, addr crypto.Address) (*MintResult, error) {
	out := new(MintResult)
	return out, c.Call(ctx, "vs_getMint", AddressParam{Address: addr.String()}, out)
}

func (c *Client) GetRecord(ctx context.Context, maker crypto.Address, seed uint64) (*RecordResult, error) {
	out := new(RecordResult)
	return out, c.Call(ctx, "escrow_getRecord", EscrowParam{Maker: maker.String(), Seed: seed}, out)
}

func (c *Client) DeriveAddresses(ctx context.Context, maker crypto.Address, seed uint64) (*DerivedResult, error) {
	out := new(DerivedResult)
	return out, c.Call(ctx, "escrow_deriveAddresses", EscrowParam{Maker: maker.String(), Seed: seed}, out)
}
