package main

import (
	"io"
	"strconv"

	"vaultswap/crypto"
	"vaultswap/native/token"
)

func runBalanceCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printError(stderr, "usage: vaultswap-cli balance <address>")
	}
	addr, err := crypto.ParseAddress(args[0])
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := callContext()
	defer cancel()
	acc, err := newClient().GetAccount(ctx, addr)
	if err != nil {
		return printRPCError(stderr, err)
	}
	if err := printJSON(stdout, acc); err != nil {
		return printError(stderr, err.Error())
	}
	return 0
}

func runHoldingCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("holding", stderr)
	ownerStr := fs.String("owner", "", "owner address")
	mintStr := fs.String("mint", "", "mint address or symbol")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	owner, err := crypto.ParseAddress(*ownerStr)
	if err != nil {
		return printError(stderr, "--owner: "+err.Error())
	}
	mint, err := parseMint(*mintStr)
	if err != nil {
		return printError(stderr, "--mint: "+err.Error())
	}
	ctx, cancel := callContext()
	defer cancel()
	holding, err := newClient().GetHolding(ctx, owner, mint)
	if err != nil {
		return printRPCError(stderr, err)
	}
	if err := printJSON(stdout, holding); err != nil {
		return printError(stderr, err.Error())
	}
	return 0
}

func runMintCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) != 1 {
		return printError(stderr, "usage: vaultswap-cli mint <address|symbol>")
	}
	mint, err := parseMint(args[0])
	if err != nil {
		return printError(stderr, err.Error())
	}
	ctx, cancel := callContext()
	defer cancel()
	out, err := newClient().GetMint(ctx, mint)
	if err != nil {
		return printRPCError(stderr, err)
	}
	if err := printJSON(stdout, out); err != nil {
		return printError(stderr, err.Error())
	}
	return 0
}

// runTransferCommand moves tokens from the signer's canonical holding of a
// mint to the recipient's.
func runTransferCommand(args []string, stdout, stderr io.Writer) int {
	fs := newFlagSet("transfer", stderr)
	keyPath := fs.String("key", "wallet.json", "keystore of the sender")
	mintStr := fs.String("mint", "", "mint address or symbol")
	toStr := fs.String("to", "", "recipient owner address")
	amountStr := fs.String("amount", "", "amount in base units")
	simulate := fs.Bool("simulate", false, "dry-run without committing")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	mint, err := parseMint(*mintStr)
	if err != nil {
		return printError(stderr, "--mint: "+err.Error())
	}
	to, err := crypto.ParseAddress(*toStr)
	if err != nil {
		return printError(stderr, "--to: "+err.Error())
	}
	amount, err := strconv.ParseUint(*amountStr, 10, 64)
	if err != nil || amount == 0 {
		return printError(stderr, "--amount must be a positive integer")
	}
	key, err := loadKey(*keyPath)
	if err != nil {
		return printError(stderr, err.Error())
	}
	from, err := token.HoldingAddress(key.Address(), mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	dest, err := token.HoldingAddress(to, mint)
	if err != nil {
		return printError(stderr, err.Error())
	}
	ins, err := token.TransferInstruction(from, dest, key.Address(), amount)
	if err != nil {
		return printError(stderr, err.Error())
	}
	return submit(stdout, stderr, key, *simulate, ins)
}
