package main

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"vaultswap/config"
	"vaultswap/core"
	"vaultswap/core/state"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/escrow"
	"vaultswap/native/system"
	"vaultswap/native/token"
	"vaultswap/rpc"
	"vaultswap/storage"
)

const testPass = "correct horse"

type cliEnv struct {
	maker, taker       *crypto.PrivateKey
	makerKey, takerKey string
	usdc, eurc         crypto.Address
}

// startNode serves a funded ledger over httptest and points the CLI at it.
func startNode(t *testing.T) *cliEnv {
	t.Helper()
	env := &cliEnv{
		usdc: config.MintAddressForSymbol("USDC"),
		eurc: config.MintAddressForSymbol("EURC"),
	}
	var err error
	env.maker, err = crypto.GeneratePrivateKey()
	require.NoError(t, err)
	env.taker, err = crypto.GeneratePrivateKey()
	require.NoError(t, err)
	dir := t.TempDir()
	env.makerKey = filepath.Join(dir, "maker.json")
	env.takerKey = filepath.Join(dir, "taker.json")
	require.NoError(t, crypto.SaveToKeystoreWith(env.makerKey, env.maker, testPass, crypto.LightScrypt))
	require.NoError(t, crypto.SaveToKeystoreWith(env.takerKey, env.taker, testPass, crypto.LightScrypt))

	ledger := state.NewLedger(storage.NewMemDB())
	require.NoError(t, ledger.Genesis(func(inv *state.Invocation) error {
		for _, key := range []*crypto.PrivateKey{env.maker, env.taker} {
			if err := inv.SetAccount(key.Address(), &types.Account{Balance: 1_000_000_000}); err != nil {
				return err
			}
		}
		for _, mint := range []crypto.Address{env.usdc, env.eurc} {
			if err := token.GenesisMint(inv, mint, 6, env.maker.Address()); err != nil {
				return err
			}
		}
		holdings := []struct {
			owner  crypto.Address
			mint   crypto.Address
			amount uint64
		}{
			{env.maker.Address(), env.usdc, 1000},
			{env.maker.Address(), env.eurc, 0},
			{env.taker.Address(), env.usdc, 0},
			{env.taker.Address(), env.eurc, 500},
		}
		for _, h := range holdings {
			if _, err := token.GenesisHolding(inv, h.owner, h.mint, h.amount); err != nil {
				return err
			}
		}
		return nil
	}))

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	exec := core.NewExecutor(ledger, system.Program{}, token.Program{}, escrow.NewEngine())
	exec.SetLogger(quiet)
	srv := httptest.NewServer(rpc.NewServer(exec, rpc.ServerConfig{AuthToken: "node-token"}, quiet).Handler())
	t.Cleanup(srv.Close)

	prevEndpoint, prevToken, prevPass, prevNonce := rpcEndpoint, rpcAuthToken, keystorePassphrase, txNonce
	t.Cleanup(func() {
		rpcEndpoint, rpcAuthToken, keystorePassphrase, txNonce = prevEndpoint, prevToken, prevPass, prevNonce
	})
	rpcEndpoint = srv.URL
	rpcAuthToken = "node-token"
	keystorePassphrase = func() (string, error) { return testPass, nil }
	var nonce uint64
	txNonce = func() uint64 { nonce++; return nonce }
	return env
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestEscrowMakeTakeFlow(t *testing.T) {
	env := startNode(t)
	maker := env.maker.Address().String()

	code, out, errOut := runCLI(t, "escrow", "make", "--key", env.makerKey,
		"--mint-a", "usdc", "--mint-b", "EURC", "--amount-a", "400", "--amount-b", "250", "--seed", "7")
	require.Equal(t, 0, code, errOut)
	var receipt types.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &receipt))
	require.True(t, receipt.Success)

	code, out, errOut = runCLI(t, "escrow", "get", "--maker", maker, "--seed", "7")
	require.Equal(t, 0, code, errOut)
	var rec rpc.RecordResult
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	require.EqualValues(t, 400, rec.VaultAmount)

	code, out, errOut = runCLI(t, "escrow", "derive", "--maker", maker, "--seed", "7")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, rec.Vault)

	code, _, errOut = runCLI(t, "escrow", "take", "--key", env.takerKey, "--maker", maker, "--seed", "7")
	require.Equal(t, 0, code, errOut)

	code, out, errOut = runCLI(t, "holding", "--owner", env.taker.Address().String(), "--mint", "USDC")
	require.Equal(t, 0, code, errOut)
	var holding rpc.HoldingResult
	require.NoError(t, json.Unmarshal([]byte(out), &holding))
	require.EqualValues(t, 400, holding.Amount)

	code, _, errOut = runCLI(t, "escrow", "get", "--maker", maker, "--seed", "7")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "escrow not found")
}

func TestEscrowRefundAndTransfer(t *testing.T) {
	env := startNode(t)

	code, _, errOut := runCLI(t, "escrow", "make", "--key", env.makerKey,
		"--mint-a", env.usdc.String(), "--mint-b", env.eurc.String(), "--amount-a", "100", "--amount-b", "1", "--seed", "1")
	require.Equal(t, 0, code, errOut)
	code, _, errOut = runCLI(t, "escrow", "refund", "--key", env.makerKey, "--seed", "1")
	require.Equal(t, 0, code, errOut)

	code, _, errOut = runCLI(t, "transfer", "--key", env.makerKey, "--mint", "USDC",
		"--to", env.taker.Address().String(), "--amount", "30")
	require.Equal(t, 0, code, errOut)

	code, out, errOut := runCLI(t, "holding", "--owner", env.maker.Address().String(), "--mint", "USDC")
	require.Equal(t, 0, code, errOut)
	var holding rpc.HoldingResult
	require.NoError(t, json.Unmarshal([]byte(out), &holding))
	require.EqualValues(t, 970, holding.Amount)
}

func TestSendWithoutTokenIsRefused(t *testing.T) {
	env := startNode(t)
	rpcAuthToken = ""
	code, _, errOut := runCLI(t, "escrow", "make", "--key", env.makerKey,
		"--mint-a", "USDC", "--mint-b", "EURC", "--amount-a", "1", "--amount-b", "1", "--seed", "2")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "missing Authorization header")

	// Simulation is open to anyone.
	code, _, errOut = runCLI(t, "escrow", "make", "--simulate", "--key", env.makerKey,
		"--mint-a", "USDC", "--mint-b", "EURC", "--amount-a", "1", "--amount-b", "1", "--seed", "2")
	require.Equal(t, 0, code, errOut)
}

func TestFailedEscrowReportsCode(t *testing.T) {
	env := startNode(t)
	code, _, errOut := runCLI(t, "escrow", "make", "--key", env.makerKey,
		"--mint-a", "USDC", "--mint-b", "EURC", "--amount-a", "5000", "--amount-b", "1", "--seed", "3")
	require.Equal(t, 1, code)
	require.Contains(t, errOut, "transfer_failed")
}

func TestBalanceAndMintQueries(t *testing.T) {
	env := startNode(t)
	code, out, errOut := runCLI(t, "balance", env.maker.Address().String())
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, `"balance": 1000000000`)

	code, out, errOut = runCLI(t, "mint", "EURC")
	require.Equal(t, 0, code, errOut)
	require.Contains(t, out, `"supply": 500`)
}

func TestArgumentValidation(t *testing.T) {
	cases := []struct {
		name string
		args []string
		want string
	}{
		{"no command", nil, "Usage: vaultswap-cli"},
		{"unknown command", []string{"nope"}, "Unknown command: nope"},
		{"escrow usage", []string{"escrow"}, "Subcommands:"},
		{"unknown escrow", []string{"escrow", "swap"}, "Unknown escrow subcommand"},
		{"missing seed", []string{"escrow", "get", "--maker", crypto.ProgramAddress("x").String()}, "--seed is required"},
		{"bad amount", []string{"escrow", "make", "--mint-a", "A", "--mint-b", "B", "--amount-a", "0", "--amount-b", "1", "--seed", "1"}, "--amount-a must be a positive integer"},
		{"bad mint address", []string{"mint", "vs1notanaddress"}, "Error:"},
		{"balance usage", []string{"balance"}, "usage: vaultswap-cli balance"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			code, _, errOut := runCLI(t, tc.args...)
			require.Equal(t, 1, code)
			require.True(t, strings.Contains(errOut, tc.want), "stderr: %s", errOut)
		})
	}
}

func TestApplyGlobalFlags(t *testing.T) {
	prev := rpcEndpoint
	t.Cleanup(func() { rpcEndpoint = prev })

	rest, err := applyGlobalFlags([]string{"--rpc", "http://node:1", "balance", "x"})
	require.NoError(t, err)
	require.Equal(t, []string{"balance", "x"}, rest)
	require.Equal(t, "http://node:1", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"mint", "--rpc=http://node:2"})
	require.NoError(t, err)
	require.Equal(t, "http://node:2", rpcEndpoint)

	_, err = applyGlobalFlags([]string{"--rpc"})
	require.Error(t, err)
}
