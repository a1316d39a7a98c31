package auction

import (
	"context"
	"log/slog"

	"github.com/mkdior/blocklab/internal/escrow"
)

// Decision is the outcome of the acceptance hook. SetEnd false leaves the
// auction's end untouched; SetEnd true replaces it with NewEnd, where a nil
// NewEnd clears the end height entirely.
type Decision struct {
	Accept bool
	SetEnd bool
	NewEnd *Height
}

// Policy is the pluggable strategy deciding bid acceptance, end-height
// extension and settlement. Callers supply an implementation at engine
// construction; the engine owns escrow movement, the policy owns payouts.
type Policy interface {
	// OnNewBid is invoked for every price-valid bid before any state or
	// escrow changes.
	OnNewBid(now Height, id ID, newBid Bid, lastBid *Bid) Decision
	// OnAuctionEnded is invoked exactly once per settled auction, after the
	// record has been removed. winner is nil when no bid was ever placed.
	OnAuctionEnded(id ID, creator, origin string, winner *Bid)
}

// RecordReader is the read surface a policy may consult.
type RecordReader interface {
	Get(id ID) *Record
}

// SlotPolicy is the standard policy: every price-valid bid is accepted, bids
// landing within Window of the end extend the auction by Extension
// (anti-snipe), and settlement pays the winning escrow to the slot creator.
type SlotPolicy struct {
	records   RecordReader
	esc       *escrow.Adapter
	logger    *slog.Logger
	window    Height
	extension Height
}

// NewSlotPolicy returns a SlotPolicy. A zero window disables anti-snipe
// extension.
func NewSlotPolicy(records RecordReader, esc *escrow.Adapter, logger *slog.Logger, window, extension Height) *SlotPolicy {
	return &SlotPolicy{
		records:   records,
		esc:       esc,
		logger:    logger,
		window:    window,
		extension: extension,
	}
}

// OnNewBid accepts the bid and extends the end height when the bid lands
// inside the anti-snipe window.
func (p *SlotPolicy) OnNewBid(now Height, id ID, newBid Bid, lastBid *Bid) Decision {
	dec := Decision{Accept: true}
	if p.window == 0 {
		return dec
	}
	rec := p.records.Get(id)
	if rec == nil || rec.End == nil || *rec.End < now {
		return dec
	}
	if *rec.End-now <= p.window {
		extended := now + p.extension
		if extended > *rec.End {
			dec.SetEnd = true
			dec.NewEnd = &extended
		}
	}
	return dec
}

// OnAuctionEnded settles the auction: the winning hold is transferred to the
// slot creator. A transfer overdraft is an accounting corruption and is
// escalated through the log rather than retried.
func (p *SlotPolicy) OnAuctionEnded(id ID, creator, origin string, winner *Bid) {
	ctx := context.Background()
	if winner == nil {
		p.logger.InfoContext(ctx, "auction ended without bids",
			slog.Uint64("auction_id", uint64(id)),
			slog.String("origin", origin),
		)
		return
	}

	if err := p.esc.Transfer(ctx, winner.Bidder, creator, winner.Amount); err != nil {
		p.logger.ErrorContext(ctx, "settlement transfer failed",
			slog.Uint64("auction_id", uint64(id)),
			slog.String("winner", winner.Bidder),
			slog.String("creator", creator),
			slog.String("amount", winner.Amount.String()),
			slog.Any("error", err),
		)
		return
	}

	p.logger.InfoContext(ctx, "auction settled",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("winner", winner.Bidder),
		slog.String("amount", winner.Amount.String()),
	)
}
