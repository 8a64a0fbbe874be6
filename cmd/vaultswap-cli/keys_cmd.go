package main

import (
	"flag"
	"fmt"
	"io"

	"vaultswap/crypto"
)

func runKeysCommand(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "Usage: vaultswap-cli keys <generate|show> [flags]")
		return 1
	}
	switch args[0] {
	case "generate":
		fs := newFlagSet("keys generate", stderr)
		out := fs.String("out", "wallet.json", "keystore file to create")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		pass, err := keystorePassphrase()
		if err != nil {
			return printError(stderr, err.Error())
		}
		key, err := crypto.GeneratePrivateKey()
		if err != nil {
			return printError(stderr, err.Error())
		}
		if err := crypto.SaveToKeystore(*out, key, pass); err != nil {
			return printError(stderr, fmt.Sprintf("write keystore: %v", err))
		}
		fmt.Fprintf(stdout, "%s\n", key.Address())
		return 0
	case "show":
		fs := newFlagSet("keys show", stderr)
		path := fs.String("key", "wallet.json", "keystore file")
		if err := fs.Parse(args[1:]); err != nil {
			return 1
		}
		key, err := loadKey(*path)
		if err != nil {
			return printError(stderr, err.Error())
		}
		fmt.Fprintf(stdout, "%s\n", key.Address())
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown keys subcommand: %s\n", args[0])
		return 1
	}
}

func newFlagSet(name string, stderr io.Writer) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)
	return fs
}
