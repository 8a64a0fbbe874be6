package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"vaultswap/cmd/internal/passphrase"
	"vaultswap/config"
	"vaultswap/core/types"
	"vaultswap/crypto"
	"vaultswap/rpc"
)

const keystorePassEnv = "VAULTSWAP_KEYSTORE_PASS"

var (
	rpcEndpoint  = defaultRPCEndpoint() // overridden by --rpc
	rpcAuthToken = os.Getenv(config.EnvRPCToken)

	keystorePassphrase = passphrase.NewSource(keystorePassEnv, "").Get
	txNonce            = func() uint64 { return uint64(time.Now().UnixNano()) }
	callTimeout        = 30 * time.Second
)

func main() {
	args, err := applyGlobalFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	os.Exit(run(args, os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		printUsage(stderr)
		return 1
	}
	switch args[0] {
	case "keys":
		return runKeysCommand(args[1:], stdout, stderr)
	case "balance":
		return runBalanceCommand(args[1:], stdout, stderr)
	case "holding":
		return runHoldingCommand(args[1:], stdout, stderr)
	case "mint":
		return runMintCommand(args[1:], stdout, stderr)
	case "transfer":
		return runTransferCommand(args[1:], stdout, stderr)
	case "escrow":
		return runEscrowCommand(args[1:], stdout, stderr)
	case "help", "-h", "--help":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", args[0])
		printUsage(stderr)
		return 1
	}
}

func defaultRPCEndpoint() string {
	if v := strings.TrimSpace(os.Getenv("VAULTSWAP_RPC_URL")); v != "" {
		return v
	}
	return "http://127.0.0.1:8545"
}

func applyGlobalFlags(args []string) ([]string, error) {
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--rpc" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value for --rpc")
			}
			rpcEndpoint = args[i+1]
			i++
			continue
		}
		if strings.HasPrefix(arg, "--rpc=") {
			rpcEndpoint = strings.TrimPrefix(arg, "--rpc=")
			continue
		}
		out = append(out, arg)
	}
	return out, nil
}

func newClient() *rpc.Client {
	return rpc.NewClient(rpcEndpoint, rpcAuthToken)
}

func callContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), callTimeout)
}

func loadKey(path string) (*crypto.PrivateKey, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("--key is required")
	}
	pass, err := keystorePassphrase()
	if err != nil {
		return nil, err
	}
	return crypto.LoadFromKeystore(path, pass)
}

// parseMint accepts a bech32 mint address or a genesis symbol.
func parseMint(raw string) (crypto.Address, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return crypto.Address{}, errors.New("mint is required")
	}
	if addr, err := crypto.ParseAddress(trimmed); err == nil {
		return addr, nil
	} else if lower := strings.ToLower(trimmed); strings.HasPrefix(lower, crypto.AddressPrefix+"1") || strings.HasPrefix(lower, "0x") {
		return crypto.Address{}, err
	}
	return config.MintAddressForSymbol(trimmed), nil
}

// submit signs ins with key and sends it, or dry-runs it when simulate is set.
func submit(stdout, stderr io.Writer, key *crypto.PrivateKey, simulate bool, ins ...types.Instruction) int {
	tx := &types.Transaction{Nonce: txNonce(), Instructions: ins}
	if err := tx.Sign(key); err != nil {
		return printError(stderr, fmt.Sprintf("sign transaction: %v", err))
	}
	ctx, cancel := callContext()
	defer cancel()
	var (
		receipt *types.Receipt
		err     error
	)
	if simulate {
		receipt, err = newClient().SimulateTransaction(ctx, tx)
	} else {
		receipt, err = newClient().SendTransaction(ctx, tx)
	}
	if err != nil {
		return printRPCError(stderr, err)
	}
	if err := printJSON(stdout, receipt); err != nil {
		return printError(stderr, err.Error())
	}
	if !receipt.Success {
		return 1
	}
	return 0
}

func printJSON(w io.Writer, v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}

func printError(stderr io.Writer, msg string) int {
	fmt.Fprintf(stderr, "Error: %s\n", msg)
	return 1
}

func printRPCError(stderr io.Writer, err error) int {
	var rpcErr *rpc.RPCError
	if !errors.As(err, &rpcErr) {
		return printError(stderr, err.Error())
	}
	fmt.Fprintf(stderr, "Error: %s (code %d)\n", rpcErr.Message, rpcErr.Code)
	if rpcErr.Data != nil {
		if detail, mErr := json.Marshal(rpcErr.Data); mErr == nil {
			fmt.Fprintf(stderr, "Details: %s\n", detail)
		}
	}
	return 1
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "Usage: vaultswap-cli [--rpc URL] <command> [arguments]")
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Signing commands read the keystore passphrase from %s or prompt for it.\n", keystorePassEnv)
	fmt.Fprintf(w, "vs_sendTransaction requires the node token in %s.\n", config.EnvRPCToken)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  keys generate --out <file>         - Create a new keystore")
	fmt.Fprintln(w, "  keys show --key <file>             - Print the keystore address")
	fmt.Fprintln(w, "  balance <address>                  - Show native balance and owner")
	fmt.Fprintln(w, "  holding --owner <addr> --mint <m>  - Show a token holding")
	fmt.Fprintln(w, "  mint <address|symbol>              - Show a mint")
	fmt.Fprintln(w, "  transfer                           - Move tokens between holdings")
	fmt.Fprintln(w, "  escrow                             - Make, take and refund escrow offers")
}
