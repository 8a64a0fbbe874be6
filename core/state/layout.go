package state

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/rlp"
)

// Account data written by programs starts with a one byte kind tag followed
// by an RLP payload, zero padded to the allocated size. Kind zero means the
// account was allocated but never initialised.

var (
	ErrUninitialized = errors.New("state: account data not initialised")
	ErrKindMismatch  = errors.New("state: account data has unexpected kind")
	ErrLayoutTooBig  = errors.New("state: encoded layout exceeds allocated space")
)

// EncodeLayout serialises v under kind into a buffer of exactly space bytes.
func EncodeLayout(kind byte, v interface{}, space int) ([]byte, error) {
	payload, err := rlp.EncodeToBytes(v)
	if err != nil {
		return nil, err
	}
	if 1+len(payload) > space {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrLayoutTooBig, 1+len(payload), space)
	}
	out := make([]byte, space)
	out[0] = kind
	copy(out[1:], payload)
	return out, nil
}

// LayoutKind returns the kind tag of account data, zero when unallocated or
// uninitialised.
func LayoutKind(data []byte) byte {
	if len(data) == 0 {
		return 0
	}
	return data[0]
}

// DecodeLayout parses data written by EncodeLayout, rejecting other kinds.
func DecodeLayout(data []byte, kind byte, v interface{}) error {
	got := LayoutKind(data)
	if got == 0 {
		return ErrUninitialized
	}
	if got != kind {
		return fmt.Errorf("%w: want %d, got %d", ErrKindMismatch, kind, got)
	}
	// The stream stops after the first value so trailing padding is ignored.
	stream := rlp.NewStream(bytes.NewReader(data[1:]), uint64(len(data)-1))
	return stream.Decode(v)
}
