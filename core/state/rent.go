package state

// Rent is the minimum-retention schedule: an account must hold at least
// MinimumBalance(space) base units to be created with space bytes of data.
type Rent struct {
	LamportsPerByte uint64 `toml:"LamportsPerByte" yaml:"lamports_per_byte"`
	AccountOverhead uint64 `toml:"AccountOverhead" yaml:"account_overhead"`
}

// DefaultRent mirrors the two-year exemption threshold of 3480 units per
// byte-year over a 128 byte account header.
func DefaultRent() Rent {
	return Rent{LamportsPerByte: 6960, AccountOverhead: 128}
}

// MinimumBalance returns the retention balance for an account of space bytes.
func (r Rent) MinimumBalance(space uint64) uint64 {
	return (r.AccountOverhead + space) * r.LamportsPerByte
}
