package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultswap/config"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/native/escrow"
	"vaultswap/native/token"
	"vaultswap/observability/logging"
	"vaultswap/storage"
)

func TestResolveGenesisPathPrecedence(t *testing.T) {
	env := func(key string) (string, bool) {
		if key != genesisPathEnv {
			t.Fatalf("unexpected lookup key: %s", key)
		}
		return "env-path", true
	}
	empty := func(string) (string, bool) { return "", false }

	if got := resolveGenesisPath("cli-path", "cfg-path", env); got != "cli-path" {
		t.Fatalf("flag should win, got %q", got)
	}
	if got := resolveGenesisPath("", "cfg-path", env); got != "env-path" {
		t.Fatalf("environment should beat config, got %q", got)
	}
	if got := resolveGenesisPath("  ", "cfg-path", empty); got != "cfg-path" {
		t.Fatalf("config should be the fallback, got %q", got)
	}
}

func TestOpenDatabaseBackends(t *testing.T) {
	for _, backend := range []string{config.BackendMemory, config.BackendBolt, config.BackendLevelDB} {
		cfg := config.Default()
		cfg.Backend = backend
		cfg.DataDir = t.TempDir()
		db, err := openDatabase(cfg)
		if err != nil {
			t.Fatalf("%s: open: %v", backend, err)
		}
		if err := db.Put([]byte("k"), []byte("v")); err != nil {
			t.Fatalf("%s: put: %v", backend, err)
		}
		got, err := db.Get([]byte("k"))
		if err != nil {
			t.Fatalf("%s: get: %v", backend, err)
		}
		if !bytes.Equal(got, []byte("v")) {
			t.Fatalf("%s: got %q", backend, got)
		}
		db.Close()
	}

	cfg := config.Default()
	cfg.Backend = "rocksdb"
	if _, err := openDatabase(cfg); err == nil {
		t.Fatalf("expected unknown backend to fail")
	}
}

const testGenesis = `
accounts:
  - address: %s
    balance: 1000000000
mints:
  - symbol: USDC
    decimals: 6
    authority: %[1]s
  - symbol: EURC
    decimals: 6
    authority: %[1]s
holdings:
  - owner: %[1]s
    mint: USDC
    amount: 1000
`

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNodeAppliesGenesisAndExecutes(t *testing.T) {
	maker, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte(fmt.Sprintf(testGenesis, maker.Address().String())), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}

	cfg := config.Default()
	cfg.Backend = config.BackendMemory
	n, err := newNode(cfg, storage.NewMemDB(), quietLogger())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	if err := n.applyGenesis(path); err != nil {
		t.Fatalf("apply genesis: %v", err)
	}
	// A restart with the same file is a no-op.
	if err := n.applyGenesis(path); err != nil {
		t.Fatalf("reapply genesis: %v", err)
	}

	usdc := config.MintAddressForSymbol("usdc")
	eurc := config.MintAddressForSymbol("EURC")
	ins, err := escrow.MakeInstruction(maker.Address(), escrow.MakeData{
		MintA: usdc, MintB: eurc, AmountA: 400, AmountB: 100, Seed: 1,
	})
	if err != nil {
		t.Fatalf("make instruction: %v", err)
	}
	tx := &types.Transaction{Nonce: 1, Instructions: []types.Instruction{ins}}
	if err := tx.Sign(maker); err != nil {
		t.Fatalf("sign: %v", err)
	}
	receipt, err := n.exec.Execute(context.Background(), tx)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !receipt.Success {
		t.Fatalf("expected success, got %+v", receipt)
	}

	holding, err := token.HoldingAddress(maker.Address(), usdc)
	if err != nil {
		t.Fatalf("holding address: %v", err)
	}
	h, err := token.ReadHolding(n.ledger, holding)
	if err != nil {
		t.Fatalf("read holding: %v", err)
	}
	if h.Amount != 600 {
		t.Fatalf("expected 600 USDC left, got %d", h.Amount)
	}
}

func TestNodeHonoursConfiguredPauses(t *testing.T) {
	cfg := config.Default()
	cfg.PausedModules = []string{"escrow"}
	n, err := newNode(cfg, storage.NewMemDB(), quietLogger())
	if err != nil {
		t.Fatalf("new node: %v", err)
	}

	maker, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	ins, err := escrow.RefundInstruction(maker.Address(), crypto.ProgramAddress("mint/X"), 1)
	if err != nil {
		t.Fatalf("refund instruction: %v", err)
	}
	tx := &types.Transaction{Nonce: 1, Instructions: []types.Instruction{ins}}
	if err := tx.Sign(maker); err != nil {
		t.Fatalf("sign: %v", err)
	}
	receipt, err := n.exec.Execute(context.Background(), tx)
	if err == nil {
		t.Fatalf("expected paused module to fail")
	}
	if receipt == nil || receipt.Code != "paused" {
		t.Fatalf("expected paused receipt, got %+v", receipt)
	}
}

func TestLogStartupMasksCredentials(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))
	cfg := config.Default()
	cfg.RPC.AuthToken = "rpc-bearer-secret"
	cfg.Telemetry.Headers = "x-api-key=otel-secret"

	logStartup(logger, cfg)

	out := buf.String()
	for _, secret := range []string{"rpc-bearer-secret", "otel-secret"} {
		if strings.Contains(out, secret) {
			t.Fatalf("startup log leaked %q: %s", secret, out)
		}
	}
	if !strings.Contains(out, logging.RedactedValue) {
		t.Fatalf("expected redaction placeholder in %s", out)
	}
	if !strings.Contains(out, cfg.RPC.Address) {
		t.Fatalf("expected rpc address in %s", out)
	}
}
