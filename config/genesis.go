package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/bits"
	"os"
	"strings"

	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"vaultswap/crypto"
)

// Genesis lists the initial state of a fresh ledger.
type Genesis struct {
	Accounts []GenesisAccount `yaml:"accounts"`
	Mints    []GenesisMint    `yaml:"mints"`
	Holdings []GenesisHolding `yaml:"holdings"`
}

// GenesisAccount funds a wallet with native balance.
type GenesisAccount struct {
	Address string `yaml:"address"`
	Balance uint64 `yaml:"balance"`
}

// GenesisMint declares a typed asset. Without an explicit address the mint
// lives at a fixed address derived from its symbol.
type GenesisMint struct {
	Symbol    string `yaml:"symbol"`
	Address   string `yaml:"address,omitempty"`
	Decimals  uint8  `yaml:"decimals"`
	Authority string `yaml:"authority"`
}

// GenesisHolding credits owner's canonical holding of Mint, which may name a
// declared mint by symbol or by address.
type GenesisHolding struct {
	Owner  string `yaml:"owner"`
	Mint   string `yaml:"mint"`
	Amount uint64 `yaml:"amount"`
}

// NormalizeSymbol folds compatibility forms (full-width letters, ligatures)
// before upper-casing so visually equal symbols name the same mint.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(norm.NFKC.String(strings.TrimSpace(symbol)))
}

// MintAddressForSymbol is the address a mint declared without one gets.
func MintAddressForSymbol(symbol string) crypto.Address {
	return crypto.ProgramAddress("mint/" + NormalizeSymbol(symbol))
}

// ResolvedAddress returns the mint's account address.
func (m GenesisMint) ResolvedAddress() (crypto.Address, error) {
	if strings.TrimSpace(m.Address) == "" {
		return MintAddressForSymbol(m.Symbol), nil
	}
	return crypto.ParseAddress(m.Address)
}

// LoadGenesis reads and validates a YAML genesis file.
func LoadGenesis(path string) (*Genesis, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	g, err := ParseGenesis(data)
	if err != nil {
		return nil, fmt.Errorf("genesis %s: %w", path, err)
	}
	return g, nil
}

// ParseGenesis decodes YAML (or JSON) genesis content. Unknown keys are
// rejected.
func ParseGenesis(data []byte) (*Genesis, error) {
	g := new(Genesis)
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(g); err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return g, nil
}

// MintAddress resolves ref as a declared symbol first and as an address
// otherwise.
func (g *Genesis) MintAddress(ref string) (crypto.Address, error) {
	for _, m := range g.Mints {
		if NormalizeSymbol(m.Symbol) == NormalizeSymbol(ref) {
			return m.ResolvedAddress()
		}
	}
	addr, err := crypto.ParseAddress(ref)
	if err != nil {
		return crypto.Address{}, fmt.Errorf("unknown mint %q", ref)
	}
	for _, m := range g.Mints {
		if resolved, err := m.ResolvedAddress(); err == nil && resolved == addr {
			return addr, nil
		}
	}
	return crypto.Address{}, fmt.Errorf("mint %s is not declared", addr)
}

// Validate checks addresses, uniqueness and supply bounds.
func (g *Genesis) Validate() error {
	seenAccounts := make(map[crypto.Address]bool)
	for i, acc := range g.Accounts {
		addr, err := crypto.ParseAddress(acc.Address)
		if err != nil {
			return fmt.Errorf("accounts[%d]: %w", i, err)
		}
		if seenAccounts[addr] {
			return fmt.Errorf("accounts[%d]: duplicate address %s", i, addr)
		}
		seenAccounts[addr] = true
	}

	symbols := make(map[string]bool)
	mints := make(map[crypto.Address]bool)
	for i, m := range g.Mints {
		symbol := NormalizeSymbol(m.Symbol)
		if symbol == "" {
			return fmt.Errorf("mints[%d]: symbol required", i)
		}
		if symbols[symbol] {
			return fmt.Errorf("mints[%d]: duplicate symbol %s", i, symbol)
		}
		symbols[symbol] = true
		addr, err := m.ResolvedAddress()
		if err != nil {
			return fmt.Errorf("mints[%d] address: %w", i, err)
		}
		if mints[addr] || seenAccounts[addr] {
			return fmt.Errorf("mints[%d]: address %s already in use", i, addr)
		}
		mints[addr] = true
		if _, err := crypto.ParseAddress(m.Authority); err != nil {
			return fmt.Errorf("mints[%d] authority: %w", i, err)
		}
	}

	supply := make(map[crypto.Address]uint64)
	for i, h := range g.Holdings {
		if _, err := crypto.ParseAddress(h.Owner); err != nil {
			return fmt.Errorf("holdings[%d] owner: %w", i, err)
		}
		mint, err := g.MintAddress(h.Mint)
		if err != nil {
			return fmt.Errorf("holdings[%d]: %w", i, err)
		}
		total, carry := bits.Add64(supply[mint], h.Amount, 0)
		if carry != 0 {
			return fmt.Errorf("holdings[%d]: supply of %s overflows", i, h.Mint)
		}
		supply[mint] = total
	}
	return nil
}
