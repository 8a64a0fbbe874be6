package runtime

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"

	"vaultswap/crypto"
)

var ErrEmptyInstruction = errors.New("runtime: empty instruction data")

// Program is a native program the executor can dispatch instructions to.
type Program interface {
	ID() crypto.Address
	Name() string
	Process(ctx *Context, data []byte) error
}

// EncodeInstruction prefixes the RLP encoding of payload with tag.
func EncodeInstruction(tag byte, payload interface{}) ([]byte, error) {
	encoded, err := rlp.EncodeToBytes(payload)
	if err != nil {
		return nil, err
	}
	return append([]byte{tag}, encoded...), nil
}

// SplitInstruction returns the tag and the RLP payload of instruction data.
func SplitInstruction(data []byte) (byte, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrEmptyInstruction
	}
	return data[0], data[1:], nil
}

// DecodePayload decodes an instruction payload into v.
func DecodePayload(payload []byte, v interface{}) error {
	if err := rlp.DecodeBytes(payload, v); err != nil {
		return fmt.Errorf("decode instruction payload: %w", err)
	}
	return nil
}
