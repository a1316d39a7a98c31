package event

import (
	"encoding/json"
	"time"
)

// Type identifies an event kind.
type Type string

const (
	AuctionCreated    Type = "auction.created"
	AuctionUpdated    Type = "auction.updated"
	AuctionDeleted    Type = "auction.deleted"
	BidQueued         Type = "auction.bid_queued"
	BidAccepted       Type = "auction.bid_accepted"
	QueuedBidPlaced   Type = "auction.queued_bid_placed"
	AuctionEndDecided Type = "auction.end_decided"
	AuctionEndOpen    Type = "auction.end_undecided"

	FundsLocked      Type = "funds.locked"
	FundsUnlocked    Type = "funds.unlocked"
	FundsTransferred Type = "funds.transferred"
)

// Event represents a single domain event.
type Event struct {
	ID          string          `json:"id" db:"id"`
	AggregateID string          `json:"aggregate_id" db:"aggregate_id"`
	Type        Type            `json:"type" db:"type"`
	Data        json.RawMessage `json:"data" db:"data"`
	Version     int             `json:"version" db:"version"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// AuctionCreatedData is the payload for AuctionCreated events.
type AuctionCreatedData struct {
	Creator       string  `json:"creator"`
	Origin        string  `json:"origin"`
	Start         uint64  `json:"start"`
	End           *uint64 `json:"end,omitempty"`
	SlotTimestamp uint64  `json:"slot_timestamp"`
	NumContainers uint64  `json:"num_containers"`
	NumTEU        uint64  `json:"num_teu"`
}

// AuctionUpdatedData carries the pre- and post-update snapshots.
type AuctionUpdatedData struct {
	Old json.RawMessage `json:"old"`
	New json.RawMessage `json:"new"`
}

// BidData is the payload for bid signals.
type BidData struct {
	Bidder string `json:"bidder"`
	Amount string `json:"amount"`
}

// AuctionEndedData is the payload for settlement signals.
type AuctionEndedData struct {
	Winner string `json:"winner,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// FundsData is the payload for escrow signals.
type FundsData struct {
	Account string `json:"account"`
	To      string `json:"to,omitempty"`
	Amount  string `json:"amount"`
	Height  uint64 `json:"height"`
}
