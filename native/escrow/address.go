package escrow

import (
	"encoding/binary"

	"vaultswap/crypto"
)

// ProgramID is the escrow engine's own identity. Records are owned by it and
// vault/record addresses are derived under it.
var ProgramID = crypto.ProgramAddress("escrow")

const (
	vaultTag  = "vault"
	recordTag = "escrow"
)

// SeedBytes is the derivation component for an escrow seed.
func SeedBytes(seed uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, seed)
	return out
}

// DeriveVault returns the custody address for (maker, seed) with the seeds
// that authorise it.
func DeriveVault(maker crypto.Address, seed uint64) (crypto.Address, crypto.Seeds, error) {
	return crypto.FindSeeds(ProgramID, vaultTag, maker.Bytes(), SeedBytes(seed))
}

// DeriveRecord returns the record address for (maker, seed).
func DeriveRecord(maker crypto.Address, seed uint64) (crypto.Address, crypto.Seeds, error) {
	return crypto.FindSeeds(ProgramID, recordTag, maker.Bytes(), SeedBytes(seed))
}

// Addresses is the pair of derived accounts backing one escrow.
type Addresses struct {
	Record     crypto.Address `json:"record"`
	RecordBump uint8          `json:"recordBump"`
	Vault      crypto.Address `json:"vault"`
	VaultBump  uint8          `json:"vaultBump"`
}

// DeriveAddresses computes both derived accounts for (maker, seed).
func DeriveAddresses(maker crypto.Address, seed uint64) (Addresses, error) {
	record, recordSeeds, err := DeriveRecord(maker, seed)
	if err != nil {
		return Addresses{}, err
	}
	vault, vaultSeeds, err := DeriveVault(maker, seed)
	if err != nil {
		return Addresses{}, err
	}
	return Addresses{
		Record:     record,
		RecordBump: recordSeeds.Bump,
		Vault:      vault,
		VaultBump:  vaultSeeds.Bump,
	}, nil
}
