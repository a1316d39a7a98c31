package auction

import (
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// ID identifies an auction. Ids are assigned monotonically and never reused.
type ID uint64

// Height is one discrete time step. The engine never advances it itself; the
// chain driver feeds strictly increasing heights into BeginStep/EndStep.
type Height uint64

// CoreInfo is the slot payload being auctioned: the scheduled slot time and
// two cargo measures. The engine treats it as opaque ordered numbers.
type CoreInfo struct {
	Timestamp     uint64 `json:"timestamp"`
	NumContainers uint64 `json:"num_containers"`
	NumTEU        uint64 `json:"num_teu"`
}

// Bid is a bidder/amount pair.
type Bid struct {
	Bidder string          `json:"bidder"`
	Amount decimal.Decimal `json:"amount"`
}

// Record is the durable state of one auction.
type Record struct {
	ID      ID       `json:"id"`
	Creator string   `json:"creator"`
	Origin  string   `json:"origin"`
	Info    CoreInfo `json:"info"`
	// LeadingBid is nil until a bid is accepted and improves strictly in
	// amount thereafter.
	LeadingBid *Bid `json:"leading_bid,omitempty"`
	// DisplayAmount caches the realized escrow delta of the leading bid,
	// clamped into uint64 for presentation.
	DisplayAmount *uint64 `json:"display_amount,omitempty"`
	Start         Height  `json:"start"`
	End           *Height `json:"end,omitempty"`
}

func (r *Record) clone() *Record {
	c := *r
	if r.LeadingBid != nil {
		b := *r.LeadingBid
		c.LeadingBid = &b
	}
	if r.DisplayAmount != nil {
		d := *r.DisplayAmount
		c.DisplayAmount = &d
	}
	if r.End != nil {
		e := *r.End
		c.End = &e
	}
	return &c
}

// QueuedBid is a bid submitted before the auction's start, held until the
// start height is reached. One slot exists per height: a later queued bid
// for the same start height replaces the earlier one.
type QueuedBid struct {
	Bid       Bid `json:"bid"`
	AuctionID ID  `json:"auction_id"`
}

// InfoPatch holds optional replacements for CoreInfo fields.
type InfoPatch struct {
	Timestamp     *uint64
	NumContainers *uint64
	NumTEU        *uint64
}

// UpdatePatch is the set of changes an update may apply.
type UpdatePatch struct {
	Info  InfoPatch
	Start *Height
	End   *Height
}

// UpdateOutcome carries the pre- and post-update snapshots for auditing.
type UpdateOutcome struct {
	Old Record `json:"old"`
	New Record `json:"new"`
}

// DisplayBid is the presentation-safe projection of a leading bid.
type DisplayBid struct {
	Bidder string `json:"bidder"`
	Amount uint64 `json:"amount"`
}

// DisplayRecord is the presentation projection of a Record: the raw bid
// amount is replaced by the clamped display cache and liveness is resolved
// against the current height.
type DisplayRecord struct {
	ID            ID          `json:"id"`
	SlotOwner     string      `json:"slot_owner"`
	SlotOrigin    string      `json:"slot_origin"`
	SlotTime      uint64      `json:"slot_time"`
	NumContainers uint64      `json:"num_containers"`
	NumTEU        uint64      `json:"num_teu"`
	IsLive        bool        `json:"is_live"`
	HighestBid    *DisplayBid `json:"highest_bid,omitempty"`
	End           *Height     `json:"end,omitempty"`
}

// Seed is one bootstrap auction tuple, applied at initialization through the
// same creation routine as runtime auctions.
type Seed struct {
	Creator string
	Origin  string
	Info    CoreInfo
	Start   Height
	End     *Height
}

var maxUint64 = new(big.Int).SetUint64(math.MaxUint64)

// clampAmount truncates amount into uint64, saturating at the maximum
// representable value instead of erroring. Lossy but always displayable.
func clampAmount(amount decimal.Decimal) uint64 {
	i := amount.BigInt()
	if i.Sign() < 0 {
		return 0
	}
	if i.Cmp(maxUint64) > 0 {
		return math.MaxUint64
	}
	return i.Uint64()
}
