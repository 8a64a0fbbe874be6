package crypto

import (
	"bytes"
	"encoding/binary"
	"errors"
	"testing"

	"pgregory.net/rapid"
)

var testProgram = ProgramAddress("escrow")

func seedBytes(seed uint64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, seed)
	return buf
}

func TestFindDerivedAddressIsDeterministicAndOffCurve(t *testing.T) {
	maker := bytes.Repeat([]byte{0x42}, AddressLength)
	seeds := [][]byte{[]byte("vault"), maker, seedBytes(7)}

	first, bump, err := FindDerivedAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	second, bump2, err := FindDerivedAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("derive again: %v", err)
	}
	if first != second || bump != bump2 {
		t.Fatalf("derivation not deterministic: %s/%d vs %s/%d", first, bump, second, bump2)
	}
	if IsOnCurve(first) {
		t.Fatalf("derived address %s is on curve", first)
	}

	recreated, err := CreateDerivedAddress(append(seeds, []byte{bump}), testProgram)
	if err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if recreated != first {
		t.Fatalf("recreated %s, want %s", recreated, first)
	}
}

func TestFindDerivedAddressReturnsCanonicalBump(t *testing.T) {
	seeds := [][]byte{[]byte("escrow"), bytes.Repeat([]byte{0x01}, AddressLength), seedBytes(1)}
	_, bump, err := FindDerivedAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	for higher := int(bump) + 1; higher <= 255; higher++ {
		if _, err := CreateDerivedAddress(append(seeds, []byte{byte(higher)}), testProgram); !errors.Is(err, ErrOnCurve) {
			t.Fatalf("bump %d above canonical %d must be on curve, got %v", higher, bump, err)
		}
	}
}

func TestDerivedAddressDependsOnProgram(t *testing.T) {
	seeds := [][]byte{[]byte("vault"), seedBytes(9)}
	a, _, err := FindDerivedAddress(seeds, testProgram)
	if err != nil {
		t.Fatalf("derive under escrow: %v", err)
	}
	b, _, err := FindDerivedAddress(seeds, ProgramAddress("token"))
	if err != nil {
		t.Fatalf("derive under token: %v", err)
	}
	if a == b {
		t.Fatalf("different programs derived the same address %s", a)
	}
}

func TestCreateDerivedAddressRejectsBadSeeds(t *testing.T) {
	if _, err := CreateDerivedAddress([][]byte{bytes.Repeat([]byte{1}, MaxSeedLength+1)}, testProgram); !errors.Is(err, ErrSeedTooLong) {
		t.Fatalf("expected ErrSeedTooLong, got %v", err)
	}

	tooMany := make([][]byte, MaxSeeds+1)
	for i := range tooMany {
		tooMany[i] = []byte{byte(i)}
	}
	if _, err := CreateDerivedAddress(tooMany, testProgram); !errors.Is(err, ErrMaxSeedsExceeded) {
		t.Fatalf("expected ErrMaxSeedsExceeded, got %v", err)
	}
	// The bump takes the last slot.
	if _, _, err := FindDerivedAddress(tooMany[:MaxSeeds], testProgram); !errors.Is(err, ErrMaxSeedsExceeded) {
		t.Fatalf("expected ErrMaxSeedsExceeded with no room for the bump, got %v", err)
	}
}

func TestKeyedAddressesAreOnCurve(t *testing.T) {
	for i := 0; i < 8; i++ {
		key, err := GeneratePrivateKey()
		if err != nil {
			t.Fatalf("generate key: %v", err)
		}
		if !IsOnCurve(key.Address()) {
			t.Fatalf("keyed address %s is off curve", key.Address())
		}
	}
}

func TestSeedsCapabilityRecomputesAddress(t *testing.T) {
	maker := bytes.Repeat([]byte{0x07}, AddressLength)
	addr, seeds, err := FindSeeds(testProgram, "vault", maker, seedBytes(3))
	if err != nil {
		t.Fatalf("find seeds: %v", err)
	}
	got, err := seeds.Address(testProgram)
	if err != nil {
		t.Fatalf("recompute: %v", err)
	}
	if got != addr {
		t.Fatalf("recomputed %s, want %s", got, addr)
	}

	forged := seeds
	forged.Components = [][]byte{maker, seedBytes(4)}
	other, err := forged.Address(testProgram)
	if err == nil && other == addr {
		t.Fatalf("forged seeds reproduced %s", addr)
	}
	if err != nil && !errors.Is(err, ErrOnCurve) {
		t.Fatalf("unexpected error for forged seeds: %v", err)
	}
}

func TestDerivedAddressesDistinctAcrossMakerSeedPairs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		makerA := rapid.SliceOfN(rapid.Byte(), AddressLength, AddressLength).Draw(t, "makerA")
		makerB := rapid.SliceOfN(rapid.Byte(), AddressLength, AddressLength).Draw(t, "makerB")
		seedA := rapid.Uint64().Draw(t, "seedA")
		seedB := rapid.Uint64().Draw(t, "seedB")
		if bytes.Equal(makerA, makerB) && seedA == seedB {
			t.Skip("identical pair")
		}
		vaultA, _, err := FindDerivedAddress([][]byte{[]byte("vault"), makerA, seedBytes(seedA)}, testProgram)
		if err != nil {
			t.Fatalf("derive vault A: %v", err)
		}
		vaultB, _, err := FindDerivedAddress([][]byte{[]byte("vault"), makerB, seedBytes(seedB)}, testProgram)
		if err != nil {
			t.Fatalf("derive vault B: %v", err)
		}
		recordA, _, err := FindDerivedAddress([][]byte{[]byte("escrow"), makerA, seedBytes(seedA)}, testProgram)
		if err != nil {
			t.Fatalf("derive record A: %v", err)
		}
		if vaultA == vaultB {
			t.Fatalf("vault collision for distinct pairs")
		}
		if vaultA == recordA {
			t.Fatalf("vault and record share an address")
		}
	})
}
