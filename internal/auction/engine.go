package auction

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/mkdior/blocklab/internal/escrow"
	"github.com/mkdior/blocklab/internal/event"
	"github.com/mkdior/blocklab/internal/funds"
)

// Engine is the single writer over the auction ledger. Every public
// operation runs to completion under one lock, matching the one-transition-
// at-a-time execution model of the chain it was extracted from.
type Engine struct {
	mu     sync.Mutex
	ledger *Ledger
	bank   funds.Ledger
	esc    *escrow.Adapter
	policy Policy

	events event.Store
	logger *slog.Logger
	tracer trace.Tracer

	height atomic.Uint64
}

// NewEngine creates an Engine over the given funds ledger. The default
// policy accepts every price-valid bid and settles by paying the winning
// escrow to the creator; replace it with SetPolicy before stepping begins.
func NewEngine(bank funds.Ledger, events event.Store, logger *slog.Logger, tp trace.TracerProvider) *Engine {
	e := &Engine{
		ledger: NewLedger(),
		bank:   bank,
		events: events,
		logger: logger,
		tracer: tp.Tracer("github.com/mkdior/blocklab/internal/auction"),
	}
	e.esc = escrow.NewAdapter(bank, events, logger, func() uint64 { return e.height.Load() })
	e.policy = NewSlotPolicy(e.ledger, e.esc, logger, 0, 0)
	return e
}

// SetPolicy replaces the acceptance/settlement policy. Must be called before
// the chain driver starts.
func (e *Engine) SetPolicy(p Policy) { e.policy = p }

// Escrow returns the engine's escrow adapter for policy wiring.
func (e *Engine) Escrow() *escrow.Adapter { return e.esc }

// Records returns the raw ledger. It is not synchronized: only policy hooks,
// which run inside engine operations, may read through it.
func (e *Engine) Records() *Ledger { return e.ledger }

// Now returns the current height as last fed by the chain driver.
func (e *Engine) Now() Height { return Height(e.height.Load()) }

// Create validates and stores a new auction, assigning the next id.
func (e *Engine) Create(ctx context.Context, creator, origin string, info CoreInfo, start Height, end *Height) (ID, Record, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Create",
		trace.WithAttributes(
			attribute.String("creator", creator),
			attribute.String("origin", origin),
		),
	)
	defer span.End()

	if creator == origin {
		return 0, Record{}, ErrSelfDealing
	}
	if end != nil && *end <= start {
		return 0, Record{}, ErrInvalidSchedule
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := &Record{
		Creator: creator,
		Origin:  origin,
		Info:    info,
		Start:   start,
	}
	if end != nil {
		h := *end
		rec.End = &h
	}
	id := e.ledger.allocate(rec)
	if rec.End != nil {
		e.ledger.indexEnd(*rec.End, id)
	}

	var endCopy *uint64
	if rec.End != nil {
		v := uint64(*rec.End)
		endCopy = &v
	}
	e.emit(ctx, event.AuctionCreated, id, event.AuctionCreatedData{
		Creator:       creator,
		Origin:        origin,
		Start:         uint64(start),
		End:           endCopy,
		SlotTimestamp: info.Timestamp,
		NumContainers: info.NumContainers,
		NumTEU:        info.NumTEU,
	})

	e.logger.InfoContext(ctx, "auction created",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("creator", creator),
		slog.Uint64("start", uint64(start)),
	)
	return id, *rec.clone(), nil
}

// ApplySeeds bootstraps auctions through the same creation routine as
// runtime calls, so seeded and created state are indistinguishable.
func (e *Engine) ApplySeeds(ctx context.Context, seeds []Seed) error {
	for i, s := range seeds {
		if _, _, err := e.Create(ctx, s.Creator, s.Origin, s.Info, s.Start, s.End); err != nil {
			return fmt.Errorf("seed auction %d: %w", i, err)
		}
	}
	return nil
}

// SubmitBid runs the bid pipeline for a caller-submitted bid. Before the
// auction starts the bid is escrowed and queued; once live it must strictly
// outbid the leading bid and pass the acceptance policy. Validation failures
// leave ledger and balances untouched.
func (e *Engine) SubmitBid(ctx context.Context, id ID, bidder string, amount decimal.Decimal) error {
	ctx, span := e.tracer.Start(ctx, "Engine.SubmitBid",
		trace.WithAttributes(
			attribute.Int64("auction_id", int64(id)),
			attribute.String("bidder", bidder),
			attribute.String("amount", amount.String()),
		),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.ledger.get(id)
	if rec == nil {
		return ErrAuctionNotExist
	}
	now := e.Now()

	if now < rec.Start {
		return e.queueBid(ctx, rec, Bid{Bidder: bidder, Amount: amount})
	}

	if err := e.placeBid(ctx, rec, Bid{Bidder: bidder, Amount: amount}, now, true); err != nil {
		return err
	}

	e.emit(ctx, event.BidAccepted, id, event.BidData{Bidder: bidder, Amount: amount.String()})
	e.logger.InfoContext(ctx, "bid accepted",
		slog.Uint64("auction_id", uint64(id)),
		slog.String("bidder", bidder),
		slog.String("amount", amount.String()),
	)
	return nil
}

// queueBid escrows the bid immediately and parks it at the auction's start
// height. Escrow is taken at submission time so cancellation games cost
// real collateral. A prior occupant of the slot is overwritten and its
// escrow stays held; the collision is a documented limitation of the
// height-keyed slot.
func (e *Engine) queueBid(ctx context.Context, rec *Record, bid Bid) error {
	if err := e.esc.Reserve(ctx, bid.Bidder, bid.Amount); err != nil {
		return err
	}

	replaced := e.ledger.putQueued(rec.Start, QueuedBid{Bid: bid, AuctionID: rec.ID})
	if replaced != nil {
		e.logger.WarnContext(ctx, "queued bid replaced, displaced escrow remains held",
			slog.Uint64("start", uint64(rec.Start)),
			slog.String("displaced_bidder", replaced.Bid.Bidder),
			slog.String("displaced_amount", replaced.Bid.Amount.String()),
		)
	}

	e.emit(ctx, event.BidQueued, rec.ID, event.BidData{Bidder: bid.Bidder, Amount: bid.Amount.String()})
	e.logger.InfoContext(ctx, "bid queued",
		slog.Uint64("auction_id", uint64(rec.ID)),
		slog.String("bidder", bid.Bidder),
		slog.Uint64("start", uint64(rec.Start)),
	)
	return nil
}

// placeBid is the live path of the pipeline: price validation, policy
// acceptance, refund of the previous leading bid, end-height replacement and
// leading-bid installation. reserveFunds controls whether the candidate's
// escrow is taken here (caller bids) or was already taken at queue time.
func (e *Engine) placeBid(ctx context.Context, rec *Record, bid Bid, now Height, reserveFunds bool) error {
	if rec.LeadingBid != nil {
		if bid.Amount.LessThanOrEqual(rec.LeadingBid.Amount) {
			return ErrInvalidBidPrice
		}
	} else if !bid.Amount.IsPositive() {
		return ErrInvalidBidPrice
	}

	var last *Bid
	if rec.LeadingBid != nil {
		b := *rec.LeadingBid
		last = &b
	}
	dec := e.policy.OnNewBid(now, rec.ID, bid, last)
	if !dec.Accept {
		return ErrBidNotAccepted
	}

	// Nothing has been mutated up to this point; from here on the pipeline
	// is expected to run to completion.
	if last != nil {
		if err := e.esc.Unreserve(ctx, last.Bidder, last.Amount); err != nil {
			return err
		}
	}

	if dec.SetEnd {
		if rec.End != nil {
			e.ledger.unindexEnd(*rec.End, rec.ID)
		}
		rec.End = dec.NewEnd
		if rec.End != nil {
			e.ledger.indexEnd(*rec.End, rec.ID)
		}
	}

	display := clampAmount(bid.Amount)
	if reserveFunds {
		preHeld := e.bank.ReservedBalance(bid.Bidder)
		if err := e.esc.Reserve(ctx, bid.Bidder, bid.Amount); err != nil {
			// The previous bidder has already been refunded. Leave the
			// record explicitly unbid rather than pointing at escrow that
			// no longer exists.
			rec.LeadingBid = nil
			rec.DisplayAmount = nil
			e.logger.ErrorContext(ctx, "escrow reservation failed after refund, auction left without leading bid",
				slog.Uint64("auction_id", uint64(rec.ID)),
				slog.String("bidder", bid.Bidder),
				slog.Any("error", err),
			)
			return err
		}
		display = clampAmount(e.bank.ReservedBalance(bid.Bidder).Sub(preHeld))
	}

	rec.LeadingBid = &Bid{Bidder: bid.Bidder, Amount: bid.Amount}
	rec.DisplayAmount = &display
	return nil
}

// BeginStep is the pre-step scheduler hook: the queued bid parked at now, if
// any, is placed through the live path. Its escrow was taken at queue time,
// so no new reservation happens here. A rejected placement drops the bid
// with an anomaly log and keeps the escrow held.
func (e *Engine) BeginStep(ctx context.Context, now Height) {
	ctx, span := e.tracer.Start(ctx, "Engine.BeginStep",
		trace.WithAttributes(attribute.Int64("height", int64(now))),
	)
	defer span.End()

	e.height.Store(uint64(now))

	e.mu.Lock()
	defer e.mu.Unlock()

	qb, ok := e.ledger.takeQueued(now)
	if !ok {
		return
	}

	rec := e.ledger.get(qb.AuctionID)
	if rec == nil {
		e.logger.WarnContext(ctx, "queued bid dropped, auction no longer exists",
			slog.Uint64("auction_id", uint64(qb.AuctionID)),
			slog.String("bidder", qb.Bid.Bidder),
		)
		return
	}

	if err := e.placeBid(ctx, rec, qb.Bid, now, false); err != nil {
		e.logger.WarnContext(ctx, "queued bid dropped, placement rejected",
			slog.Uint64("auction_id", uint64(qb.AuctionID)),
			slog.String("bidder", qb.Bid.Bidder),
			slog.Any("error", err),
		)
		return
	}

	e.emit(ctx, event.QueuedBidPlaced, qb.AuctionID, event.BidData{
		Bidder: qb.Bid.Bidder,
		Amount: qb.Bid.Amount.String(),
	})
	e.logger.InfoContext(ctx, "queued bid placed",
		slog.Uint64("auction_id", uint64(qb.AuctionID)),
		slog.String("bidder", qb.Bid.Bidder),
	)
}

// EndStep is the post-step scheduler hook: every auction ending at now is
// removed and handed to the policy's settlement hook exactly once.
func (e *Engine) EndStep(ctx context.Context, now Height) {
	ctx, span := e.tracer.Start(ctx, "Engine.EndStep",
		trace.WithAttributes(attribute.Int64("height", int64(now))),
	)
	defer span.End()

	e.height.Store(uint64(now))

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, id := range e.ledger.takeEndingAt(now) {
		rec := e.ledger.remove(id)
		if rec == nil {
			continue
		}

		if rec.LeadingBid != nil {
			e.emit(ctx, event.AuctionEndDecided, id, event.AuctionEndedData{
				Winner: rec.LeadingBid.Bidder,
				Amount: rec.LeadingBid.Amount.String(),
			})
		} else {
			e.emit(ctx, event.AuctionEndOpen, id, event.AuctionEndedData{})
		}

		e.policy.OnAuctionEnded(id, rec.Creator, rec.Origin, rec.LeadingBid)
		e.logger.InfoContext(ctx, "auction ended",
			slog.Uint64("auction_id", uint64(id)),
			slog.Bool("decided", rec.LeadingBid != nil),
		)
	}
}

// Update applies a patch to an auction that has not been bid upon. Schedule
// changes revalidate the start/end invariants; any failure leaves the record
// untouched. Returns the pre- and post-update snapshots.
func (e *Engine) Update(ctx context.Context, id ID, origin string, patch UpdatePatch) (UpdateOutcome, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Update",
		trace.WithAttributes(attribute.Int64("auction_id", int64(id))),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.ledger.get(id)
	if rec == nil {
		return UpdateOutcome{}, ErrAuctionNotExist
	}
	if rec.Creator != origin {
		return UpdateOutcome{}, ErrPermission
	}
	if rec.LeadingBid != nil {
		return UpdateOutcome{}, ErrCannotUpdateActiveAuction
	}

	now := e.Now()
	if patch.Start != nil {
		// Postponing requires both the current and the proposed start to
		// still be in the future.
		if rec.Start <= now || *patch.Start <= now {
			return UpdateOutcome{}, ErrAuctionAlreadyLive
		}
	}
	if patch.End != nil {
		start := rec.Start
		if patch.Start != nil {
			start = *patch.Start
		}
		if *patch.End <= start {
			return UpdateOutcome{}, ErrInvalidSchedule
		}
	}

	old := *rec.clone()

	if patch.End != nil {
		if rec.End != nil {
			e.ledger.unindexEnd(*rec.End, id)
		}
		h := *patch.End
		rec.End = &h
		e.ledger.indexEnd(h, id)
	}
	if patch.Info.Timestamp != nil {
		rec.Info.Timestamp = *patch.Info.Timestamp
	}
	if patch.Info.NumContainers != nil {
		rec.Info.NumContainers = *patch.Info.NumContainers
	}
	if patch.Info.NumTEU != nil {
		rec.Info.NumTEU = *patch.Info.NumTEU
	}
	if patch.Start != nil {
		rec.Start = *patch.Start
	}

	outcome := UpdateOutcome{Old: old, New: *rec.clone()}

	oldJSON, _ := json.Marshal(outcome.Old)
	newJSON, _ := json.Marshal(outcome.New)
	e.emit(ctx, event.AuctionUpdated, id, event.AuctionUpdatedData{Old: oldJSON, New: newJSON})

	e.logger.InfoContext(ctx, "auction updated", slog.Uint64("auction_id", uint64(id)))
	return outcome, nil
}

// Remove deletes an unsettled auction and its end-index entry, returning the
// removed record. Escrow held against a leading bid is NOT released here;
// the funds stay locked. Preserved source behavior, not an intended policy.
func (e *Engine) Remove(ctx context.Context, id ID, origin string) (*Record, error) {
	ctx, span := e.tracer.Start(ctx, "Engine.Remove",
		trace.WithAttributes(attribute.Int64("auction_id", int64(id))),
	)
	defer span.End()

	e.mu.Lock()
	defer e.mu.Unlock()

	rec := e.ledger.get(id)
	if rec == nil {
		return nil, ErrAuctionNotExist
	}
	if rec.Creator != origin {
		return nil, ErrPermission
	}

	removed := e.ledger.remove(id)
	if removed != nil && removed.LeadingBid != nil {
		e.logger.WarnContext(ctx, "auction removed with a leading bid, escrow remains held",
			slog.Uint64("auction_id", uint64(id)),
			slog.String("bidder", removed.LeadingBid.Bidder),
			slog.String("amount", removed.LeadingBid.Amount.String()),
		)
	}

	e.emit(ctx, event.AuctionDeleted, id, struct{}{})
	e.logger.InfoContext(ctx, "auction deleted", slog.Uint64("auction_id", uint64(id)))
	return removed.clone(), nil
}

// Exists reports whether id is stored.
func (e *Engine) Exists(id ID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Exists(id)
}

// Get returns a copy of the record for id, or nil.
func (e *Engine) Get(id ID) *Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.Get(id)
}

// ListAll returns every stored record; nil when none are stored.
func (e *Engine) ListAll() []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ListAll()
}

// ListByStatus filters records by liveness at the current height.
func (e *Engine) ListByStatus(active bool) []Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.ListByStatus(active, e.Now())
}

// DisplayGet returns the presentation projection for id, or nil.
func (e *Engine) DisplayGet(id ID) *DisplayRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.DisplayGet(id, e.Now())
}

// DisplayListAll returns presentation projections of every record.
func (e *Engine) DisplayListAll() []DisplayRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.DisplayListAll(e.Now())
}

// DisplayListByStatus filters projections by liveness at the current height.
func (e *Engine) DisplayListByStatus(active bool) []DisplayRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ledger.DisplayListByStatus(active, e.Now())
}

func (e *Engine) emit(ctx context.Context, t event.Type, id ID, data any) {
	payload, _ := json.Marshal(data)
	if err := e.events.Append(ctx, event.Event{
		AggregateID: fmt.Sprintf("auction-%d", id),
		Type:        t,
		Data:        payload,
	}); err != nil {
		e.logger.ErrorContext(ctx, "failed to persist auction event",
			slog.String("type", string(t)),
			slog.Uint64("auction_id", uint64(id)),
			slog.Any("error", err),
		)
	}
}
