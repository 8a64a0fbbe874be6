package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"vaultswap/crypto"
	"vaultswap/native/escrow"
	"vaultswap/rpc"
)

func escrowUsage() string {
	return strings.Join([]string{
		"Usage: vaultswap-cli escrow <subcommand> [flags]",
		"Subcommands:",
		"  make   --key <file> --mint-a <m> --mint-b <m> --amount-a <n> --amount-b <n> --seed <n>",
		"  take   --key <file> --maker <addr> --seed <n>",
		"  refund --key <file> --seed <n>",
		"  get    --maker <addr> --seed <n>",
		"  derive --maker <addr> --seed <n>",
	}, "\n")
}

func runEscrowCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
	switch args[0] {
	case "make":
		return runEscrowMake(args[1:], stdout, stderr)
	case "take":
		return runEscrowTake(args[1:], stdout, stderr)
	case "refund":
		return runEscrowRefund(args[1:], stdout, stderr)
	case "get":
		return runEscrowGet(args[1:], stdout, stderr)
	case "derive":
		return runEscrowDerive(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "Unknown escrow subcommand: %s\n", args[0])
		fmt.Fprintln(stderr, escrowUsage())
		return 1
	}
}

func parseSeed(raw string) (uint64, error) {
	if strings.TrimSpace(raw) == "" {
		return 0, fmt.Errorf("--seed is required")
	}
	seed, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("--seed must be an unsigned integer")
	}
	return seed, nil
}

func parseAmount(flagName, raw string) (uint64, error) {
	v, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 64)
	if err != nil || v == 0 {
		return 0, fmt.Errorf("--%s must be a positive integer", flagName)
	}
	return v, nil
}

func runEscrowMake(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow make", stderr)
	var keyPath, mintA, mintB, amountA, amountB, seedStr string
	var simulate bool
	fs.StringVar(&keyPath, "key", "wallet.json", "maker keystore")
	fs.StringVar(&mintA, "mint-a", "", "mint deposited by the maker (address or symbol)")
	fs.StringVar(&mintB, "mint-b", "", "mint asked in return (address or symbol)")
	fs.StringVar(&amountA, "amount-a", "", "amount deposited")
	fs.StringVar(&amountB, "amount-b", "", "amount asked")
	fs.StringVar(&seedStr, "seed", "", "offer seed, unique per maker")
	fs.BoolVar(&simulate, "simulate", false, "dry-run without committing")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if fs.NArg() > 0 {
		return printError(stderr, "unexpected positional arguments")
	}
	data := escrow.MakeData{}
	var err error
	if data.MintA, err = parseMint(mintA); err != nil {
		return printError(stderr, "--mint-a: "+err.Error())
	}
	if data.MintB, err = parseMint(mintB); err != nil {
		return printError(stderr, "--mint-b: "+err.Error())
	}
	if data.AmountA, err = parseAmount("amount-a", amountA); err != nil {
		return printError(stderr, err.Error())
	}
	if data.AmountB, err = parseAmount("amount-b", amountB); err != nil {
		return printError(stderr, err.Error())
	}
	if data.Seed, err = parseSeed(seedStr); err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ins, err := escrow.MakeInstruction(key.Address(), data)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(stdout, stderr, key, simulate, ins)
}

// fetchRecord reads the open offer so take and refund can name its mints.
func fetchRecord(maker crypto.Address, seed uint64) (*escrow.Record, error) {
	ctx, cancel := callContext()
	defer cancel()
	res, err := newClient().GetRecord(ctx, maker, seed)
	if err != nil {
		return nil, err
	}
	return recordFromResult(res)
}

func recordFromResult(res *rpc.RecordResult) (*escrow.Record, error) {
	rec := &escrow.Record{
		AmountA:    res.AmountA,
		AmountB:    res.AmountB,
		Seed:       res.Seed,
		VaultBump:  res.VaultBump,
		RecordBump: res.RecordBump,
	}
	var err error
	if rec.Maker, err = crypto.ParseAddress(res.Maker); err != nil {
		return nil, fmt.Errorf("record maker: %w", err)
	}
	if rec.MintA, err = crypto.ParseAddress(res.MintA); err != nil {
		return nil, fmt.Errorf("record mintA: %w", err)
	}
	if rec.MintB, err = crypto.ParseAddress(res.MintB); err != nil {
		return nil, fmt.Errorf("record mintB: %w", err)
	}
	return rec, nil
}

func runEscrowTake(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow take", stderr)
	keyPath := fs.String("key", "wallet.json", "taker keystore")
	makerStr := fs.String("maker", "", "maker address")
	seedStr := fs.String("seed", "", "offer seed")
	simulate := fs.Bool("simulate", false, "dry-run without committing")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	maker, err := crypto.ParseAddress(*makerStr)
	if err != nil {
		return printError(stderr, "--maker: "+err.Error())
	}
	seed, err := parseSeed(*seedStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	rec, err := fetchRecord(maker, seed)
	if err != nil {
		return printRPCError(stderr, err)
	}
	ins, err := escrow.TakeInstruction(key.Address(), rec)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(stdout, stderr, key, *simulate, ins)
}

func runEscrowRefund(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("escrow refund", stderr)
	keyPath := fs.String("key", "wallet.json", "maker keystore")
	seedStr := fs.String("seed", "", "offer seed")
	simulate := fs.Bool("simulate", false, "dry-run without committing")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	seed, err := parseSeed(*seedStr)
	if err != nil {
		return printError(stderr, err.Error())
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	rec, err := fetchRecord(key.Address(), seed)
	if err != nil {
		return printRPCError(stderr, err)
	}
	ins, err := escrow.RefundInstruction(key.Address(), rec.MintA, seed)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(stdout, stderr, key, *simulate, ins)
}

func makerSeedFlags(name string, args []string, stderr io.Writer) (crypto.Address, uint64, bool) {
	fs := newFlagSet(name, stderr)
	makerStr := fs.String("maker", "", "maker address")
	seedStr := fs.String("seed", "", "offer seed")
	if err := fs.Parse(args); err != nil {
		return crypto.Address{}, 0, false
	}
	maker, err := crypto.ParseAddress(*makerStr)
	if err != nil {
		printError(stderr, "--maker: "+err.Error())
		return crypto.Address{}, 0, false
	}
	seed, err := parseSeed(*seedStr)
	if err != nil {
		printError(stderr, err.Error())
		return crypto.Address{}, 0, false
	}
	return maker, seed, true
}

func runEscrowGet(args []string, stdout, stderr io.Writer) int {
	maker, seed, ok := makerSeedFlags("escrow get", args, stderr)
	if !ok {
		return 1
	}
	ctx, cancel := callContext()
	defer cancel()
	res, err := newClient().GetRecord(ctx, maker, seed)
	if err != nil {
		return printRPCError(stderr, err)
	}
	if err := printJSON(stdout, res); err != nil {
		return printError(stderr, err.Error())
	}
	return 0
}

// runEscrowDerive computes the addresses locally; no node is contacted.
func runEscrowDerive(args []string, stdout, stderr io.Writer) int {
	maker, seed, ok := makerSeedFlags("escrow derive", args, stderr)
	if !ok {
		return 1
	}
	addrs, err := escrow.DeriveAddresses(maker, seed)
	if err != nil {
		return printError(stderr, err.Error())
	}
	out := rpc.DerivedResult{
		Record:     addrs.Record.String(),
		RecordBump: addrs.RecordBump,
		Vault:      addrs.Vault.String(),
		VaultBump:  addrs.VaultBump,
	}
	if err := printJSON(stdout, out); err != nil {
		return printError(stderr, err.Error())
	}
	return 0
}
