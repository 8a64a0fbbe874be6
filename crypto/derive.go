package crypto

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/crypto"
)

const (
	// MaxSeeds bounds the number of seed components, bump included.
	MaxSeeds = 16
	// MaxSeedLength bounds the byte length of a single seed component.
	MaxSeedLength = 32

	derivedAddressMarker = "VaultswapDerivedAddress"
)

var (
	ErrMaxSeedsExceeded = errors.New("crypto: too many seeds")
	ErrSeedTooLong      = errors.New("crypto: seed exceeds maximum length")
	ErrOnCurve          = errors.New("crypto: derived address lies on the curve")
	ErrNoViableBump     = errors.New("crypto: no viable bump found")
)

// IsOnCurve reports whether the address is the x-coordinate of a secp256k1
// point, i.e. whether a private key could exist for it.
func IsOnCurve(addr Address) bool {
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	copy(compressed[1:], addr[:])
	_, err := crypto.DecompressPubkey(compressed)
	return err == nil
}

func checkSeeds(seeds [][]byte) error {
	if len(seeds) > MaxSeeds {
		return ErrMaxSeedsExceeded
	}
	for i, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return fmt.Errorf("%w: seed %d has %d bytes", ErrSeedTooLong, i, len(seed))
		}
	}
	return nil
}

// CreateDerivedAddress hashes the seeds together with the owning program and
// returns the result only if it has no corresponding private key.
func CreateDerivedAddress(seeds [][]byte, program Address) (Address, error) {
	if err := checkSeeds(seeds); err != nil {
		return Address{}, err
	}
	parts := make([][]byte, 0, len(seeds)+2)
	parts = append(parts, seeds...)
	parts = append(parts, program[:], []byte(derivedAddressMarker))
	var addr Address
	copy(addr[:], crypto.Keccak256(parts...))
	if IsOnCurve(addr) {
		return Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindDerivedAddress searches bumps from 255 downwards and returns the first
// off-curve address together with its canonical bump.
func FindDerivedAddress(seeds [][]byte, program Address) (Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return Address{}, 0, ErrMaxSeedsExceeded
	}
	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	for bump := 255; bump >= 0; bump-- {
		withBump[len(seeds)] = []byte{byte(bump)}
		addr, err := CreateDerivedAddress(withBump, program)
		switch {
		case err == nil:
			return addr, uint8(bump), nil
		case errors.Is(err, ErrOnCurve):
			continue
		default:
			return Address{}, 0, err
		}
	}
	return Address{}, 0, ErrNoViableBump
}

// Seeds is the capability that stands in for a signature when a derived
// address acts as an authority: whoever can present the exact components
// that hash to the address, under the owning program, may act for it.
type Seeds struct {
	Tag        string
	Components [][]byte
	Bump       uint8
}

// NewSeeds assembles a capability from a namespace tag, components and bump.
func NewSeeds(tag string, bump uint8, components ...[]byte) Seeds {
	cloned := make([][]byte, len(components))
	for i, c := range components {
		cloned[i] = append([]byte(nil), c...)
	}
	return Seeds{Tag: tag, Components: cloned, Bump: bump}
}

// Bytes flattens the capability into the seed list used for hashing.
func (s Seeds) Bytes() [][]byte {
	out := make([][]byte, 0, len(s.Components)+2)
	out = append(out, []byte(s.Tag))
	out = append(out, s.Components...)
	out = append(out, []byte{s.Bump})
	return out
}

// Address recomputes the derived address for the given program.
func (s Seeds) Address(program Address) (Address, error) {
	return CreateDerivedAddress(s.Bytes(), program)
}

// FindSeeds derives the canonical address for tag and components and returns
// the matching capability.
func FindSeeds(program Address, tag string, components ...[]byte) (Address, Seeds, error) {
	base := make([][]byte, 0, len(components)+1)
	base = append(base, []byte(tag))
	base = append(base, components...)
	addr, bump, err := FindDerivedAddress(base, program)
	if err != nil {
		return Address{}, Seeds{}, err
	}
	return addr, NewSeeds(tag, bump, components...), nil
}
