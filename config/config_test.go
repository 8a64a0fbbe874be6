package config

import (
	"math"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"vaultswap/crypto"
)

func TestLoadCreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Backend != BackendLevelDB || cfg.RPC.Address != ":8545" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("default config not persisted: %v", err)
	}

	again, err := Load(path)
	if err != nil {
		t.Fatalf("reload: %v", err)
	}
	if again.Rent != cfg.Rent || again.MetricsAddress != cfg.MetricsAddress {
		t.Fatalf("reloaded config differs: %+v vs %+v", again, cfg)
	}
}

func TestLoadParsesSettings(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	contents := `NetworkName = "testnet"
DataDir = "./data"
Backend = "bolt"
GenesisFile = "genesis.yaml"
MetricsAddress = "127.0.0.1:9200"
PausedModules = ["escrow"]

[Rent]
LamportsPerByte = 10
AccountOverhead = 64

[Quota]
MaxRequestsPerWindow = 30
WindowSeconds = 60

[RPC]
Address = "127.0.0.1:9000"
AuthToken = "file-token"
RateLimitPerMinute = 120
Burst = 10
MaxBodyBytes = 4096

[Logging]
Level = "debug"
Format = "text"

[Telemetry]
Endpoint = "collector:4318"
Traces = true
SampleRatio = 0.5
`
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvRPCToken, "env-token")
	t.Setenv(EnvEnvironment, "staging")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NetworkName != "testnet" || cfg.Backend != BackendBolt {
		t.Fatalf("unexpected network/backend: %q %q", cfg.NetworkName, cfg.Backend)
	}
	if want := filepath.Join(dir, "genesis.yaml"); cfg.GenesisFile != want {
		t.Fatalf("genesis file %q, want %q", cfg.GenesisFile, want)
	}
	if !reflect.DeepEqual(cfg.PausedModules, []string{"escrow"}) {
		t.Fatalf("paused modules %v", cfg.PausedModules)
	}
	if cfg.Rent.LamportsPerByte != 10 || cfg.Rent.AccountOverhead != 64 {
		t.Fatalf("unexpected rent %+v", cfg.Rent)
	}
	if cfg.Quota.MaxRequestsPerWindow != 30 {
		t.Fatalf("quota requests %d", cfg.Quota.MaxRequestsPerWindow)
	}
	if cfg.RPC.Address != "127.0.0.1:9000" || cfg.RPC.RateLimitPerMinute != 120 || cfg.RPC.MaxBodyBytes != 4096 {
		t.Fatalf("unexpected rpc settings %+v", cfg.RPC)
	}
	if cfg.RPC.AuthToken != "env-token" {
		t.Fatalf("environment token should override the file, got %q", cfg.RPC.AuthToken)
	}
	if cfg.Logging.Environment != "staging" {
		t.Fatalf("environment %q", cfg.Logging.Environment)
	}
	if !cfg.Telemetry.Traces || math.Abs(cfg.Telemetry.SampleRatio-0.5) > 1e-9 {
		t.Fatalf("unexpected telemetry %+v", cfg.Telemetry)
	}
	// Unset keys keep their defaults.
	if cfg.RPC.ReadTimeoutSeconds != 15 {
		t.Fatalf("read timeout %d, want default 15", cfg.RPC.ReadTimeoutSeconds)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte("Bogus = 1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := Load(path); err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("expected unknown key error, got %v", err)
	}
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"unknown backend":     func(c *Config) { c.Backend = "postgres" },
		"missing data dir":    func(c *Config) { c.DataDir = "" },
		"missing rpc address": func(c *Config) { c.RPC.Address = " " },
		"negative rate":       func(c *Config) { c.RPC.RateLimitPerMinute = -1 },
		"rate without burst":  func(c *Config) { c.RPC.Burst = 0 },
		"zero body limit":     func(c *Config) { c.RPC.MaxBodyBytes = 0 },
		"zero rent":           func(c *Config) { c.Rent.LamportsPerByte = 0 },
		"bad sample ratio":    func(c *Config) { c.Telemetry.SampleRatio = 1.5 },
		"export w/o endpoint": func(c *Config) { c.Telemetry.Traces = true },
		"blank paused module": func(c *Config) { c.PausedModules = []string{""} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := Default()
			mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}

	mem := Default()
	mem.Backend = BackendMemory
	mem.DataDir = ""
	if err := Validate(mem); err != nil {
		t.Fatalf("memory backend needs no data dir: %v", err)
	}
}

func newAddress(t *testing.T) string {
	t.Helper()
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key.Address().String()
}

func TestParseGenesis(t *testing.T) {
	alice := newAddress(t)
	explicit := newAddress(t)
	doc := strings.NewReplacer("ALICE", alice, "EXPLICIT", explicit).Replace(`
accounts:
  - address: ALICE
    balance: 100
mints:
  - symbol: gold
    decimals: 2
    authority: ALICE
  - symbol: silver
    address: EXPLICIT
    decimals: 0
    authority: ALICE
holdings:
  - owner: ALICE
    mint: GOLD
    amount: 5
  - owner: ALICE
    mint: EXPLICIT
    amount: 7
`)
	g, err := ParseGenesis([]byte(doc))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(g.Mints) != 2 {
		t.Fatalf("expected 2 mints, got %d", len(g.Mints))
	}

	gold, err := g.MintAddress("gold")
	if err != nil {
		t.Fatalf("resolve gold: %v", err)
	}
	if gold != MintAddressForSymbol("GOLD") {
		t.Fatalf("gold resolved to %s", gold)
	}
	silver, err := g.MintAddress(explicit)
	if err != nil {
		t.Fatalf("resolve explicit mint: %v", err)
	}
	if silver != crypto.MustParseAddress(explicit) {
		t.Fatalf("explicit mint resolved to %s", silver)
	}
}

func TestParseGenesisRejects(t *testing.T) {
	alice := newAddress(t)
	cases := map[string]string{
		"unknown field":     "wallets: []\n",
		"bad address":       "accounts:\n  - address: nope\n    balance: 1\n",
		"duplicate account": "accounts:\n  - address: ALICE\n  - address: ALICE\n",
		"duplicate symbol":  "mints:\n  - {symbol: a, authority: ALICE}\n  - {symbol: A, authority: ALICE}\n",
		"undeclared mint":   "holdings:\n  - {owner: ALICE, mint: ZZZ, amount: 1}\n",
		"supply overflow": "mints:\n  - {symbol: a, authority: ALICE}\nholdings:\n" +
			"  - {owner: ALICE, mint: a, amount: 18446744073709551615}\n  - {owner: ALICE, mint: a, amount: 1}\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := ParseGenesis([]byte(strings.ReplaceAll(doc, "ALICE", alice))); err == nil {
				t.Fatalf("expected parse error")
			}
		})
	}
}

func TestParseGenesisEmptyDocument(t *testing.T) {
	g, err := ParseGenesis(nil)
	if err != nil {
		t.Fatalf("parse empty: %v", err)
	}
	if len(g.Accounts) != 0 {
		t.Fatalf("expected no accounts, got %d", len(g.Accounts))
	}
}

func TestLoadGenesisFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "genesis.yaml")
	if err := os.WriteFile(path, []byte("accounts: []\n"), 0o644); err != nil {
		t.Fatalf("write genesis: %v", err)
	}
	if _, err := LoadGenesis(path); err != nil {
		t.Fatalf("load genesis: %v", err)
	}
	if _, err := LoadGenesis(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected missing file to fail")
	}
}

func TestNormalizeSymbolFoldsCompatibilityForms(t *testing.T) {
	if got := NormalizeSymbol("  ｕｓｄｃ "); got != "USDC" {
		t.Fatalf("expected USDC, got %q", got)
	}
	if MintAddressForSymbol("ｕｓｄｃ") != MintAddressForSymbol("usdc") {
		t.Fatalf("full-width symbol resolved to a different mint")
	}
}
