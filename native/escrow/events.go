package escrow

import (
	"strconv"

	"vaultswap/core/types"
	"vaultswap/crypto"
)

const (
	EventTypeEscrowMade     = "escrow.made"
	EventTypeEscrowTaken    = "escrow.taken"
	EventTypeEscrowRefunded = "escrow.refunded"
)

// NewMadeEvent returns the canonical payload for a newly opened offer.
func NewMadeEvent(rec *Record, record, vault crypto.Address) *types.Event {
	return newEscrowEvent(EventTypeEscrowMade, rec, record, vault)
}

// NewTakenEvent returns the canonical payload for a settled offer.
func NewTakenEvent(rec *Record, record, vault, taker crypto.Address) *types.Event {
	evt := newEscrowEvent(EventTypeEscrowTaken, rec, record, vault)
	evt.Attributes["taker"] = taker.String()
	return evt
}

// NewRefundedEvent returns the canonical payload for a withdrawn offer.
func NewRefundedEvent(rec *Record, record, vault crypto.Address) *types.Event {
	return newEscrowEvent(EventTypeEscrowRefunded, rec, record, vault)
}

func newEscrowEvent(eventType string, rec *Record, record, vault crypto.Address) *types.Event {
	return &types.Event{
		Type: eventType,
		Attributes: map[string]string{
			"maker":   rec.Maker.String(),
			"seed":    strconv.FormatUint(rec.Seed, 10),
			"mintA":   rec.MintA.String(),
			"mintB":   rec.MintB.String(),
			"amountA": strconv.FormatUint(rec.AmountA, 10),
			"amountB": strconv.FormatUint(rec.AmountB, 10),
			"record":  record.String(),
			"vault":   vault.String(),
		},
	}
}
