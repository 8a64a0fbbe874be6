package types

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultswap/crypto"
)

var (
	ErrNoInstructions    = errors.New("transaction: no instructions")
	ErrSignatureCount    = errors.New("transaction: signature count mismatch")
	ErrSignerNotRequired = errors.New("transaction: key is not a required signer")
)

// Instruction invokes one program with an ordered account list and opaque
// program-specific data.
type Instruction struct {
	Program  crypto.Address `json:"program"`
	Accounts []AccountMeta  `json:"accounts"`
	Data     []byte         `json:"data"`
}

// Transaction groups instructions that execute as one atomic unit.
type Transaction struct {
	Nonce        uint64        `json:"nonce"`
	Instructions []Instruction `json:"instructions"`
	Signatures   [][]byte      `json:"signatures"`
}

type txPayload struct {
	Nonce        uint64
	Instructions []Instruction
}

// Hash is the keccak256 digest of the RLP encoded unsigned payload.
func (tx *Transaction) Hash() ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(txPayload{Nonce: tx.Nonce, Instructions: tx.Instructions})
	if err != nil {
		return nil, err
	}
	return crypto.Keccak256(encoded), nil
}

// Signers lists the distinct signing accounts in first-appearance order.
// Signatures[i] belongs to Signers()[i].
func (tx *Transaction) Signers() []crypto.Address {
	seen := make(map[crypto.Address]struct{})
	var out []crypto.Address
	for _, ins := range tx.Instructions {
		for _, meta := range ins.Accounts {
			if !meta.Signer {
				continue
			}
			if _, ok := seen[meta.Address]; ok {
				continue
			}
			seen[meta.Address] = struct{}{}
			out = append(out, meta.Address)
		}
	}
	return out
}

// Sign attaches key's signature in the slot reserved for its address.
func (tx *Transaction) Sign(key *crypto.PrivateKey) error {
	if key == nil {
		return errors.New("transaction: nil key")
	}
	signers := tx.Signers()
	if len(tx.Signatures) != len(signers) {
		tx.Signatures = make([][]byte, len(signers))
	}
	addr := key.Address()
	for i, signer := range signers {
		if signer != addr {
			continue
		}
		hash, err := tx.Hash()
		if err != nil {
			return err
		}
		sig, err := key.Sign(hash)
		if err != nil {
			return err
		}
		tx.Signatures[i] = sig
		return nil
	}
	return fmt.Errorf("%w: %s", ErrSignerNotRequired, addr)
}

// VerifySignatures recovers every signature and returns the verified signer
// set. Any missing or mismatched signature fails the whole transaction.
func (tx *Transaction) VerifySignatures() (map[crypto.Address]bool, error) {
	if len(tx.Instructions) == 0 {
		return nil, ErrNoInstructions
	}
	signers := tx.Signers()
	if len(tx.Signatures) != len(signers) {
		return nil, fmt.Errorf("%w: want %d, got %d", ErrSignatureCount, len(signers), len(tx.Signatures))
	}
	hash, err := tx.Hash()
	if err != nil {
		return nil, err
	}
	verified := make(map[crypto.Address]bool, len(signers))
	for i, signer := range signers {
		got, err := crypto.RecoverAddress(hash, tx.Signatures[i])
		if err != nil {
			return nil, fmt.Errorf("signature %d: %w", i, err)
		}
		if got != signer {
			return nil, fmt.Errorf("signature %d: %w: signed by %s, expected %s", i, crypto.ErrInvalidSignature, got, signer)
		}
		verified[signer] = true
	}
	return verified, nil
}

// Encode returns the RLP wire form of the signed transaction.
func (tx *Transaction) Encode() ([]byte, error) {
	return rlp.EncodeToBytes(tx)
}

// DecodeTransaction parses the RLP wire form.
func DecodeTransaction(data []byte) (*Transaction, error) {
	tx := new(Transaction)
	if err := rlp.DecodeBytes(data, tx); err != nil {
		return nil, fmt.Errorf("decode transaction: %w", err)
	}
	return tx, nil
}
