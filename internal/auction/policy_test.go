package auction_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkdior/blocklab/internal/auction"
	"github.com/mkdior/blocklab/internal/escrow"
	"github.com/mkdior/blocklab/internal/event"
	"github.com/mkdior/blocklab/internal/funds"
)

type fakeRecords map[auction.ID]*auction.Record

func (f fakeRecords) Get(id auction.ID) *auction.Record { return f[id] }

func TestSlotPolicy_OnNewBid(t *testing.T) {
	end := func(h auction.Height) *auction.Height { return &h }
	bid := auction.Bid{Bidder: "carrier-c", Amount: decimal.NewFromInt(50)}

	tests := []struct {
		name      string
		window    auction.Height
		extension auction.Height
		record    *auction.Record
		now       auction.Height
		wantEnd   *auction.Height
	}{
		{
			name:   "zero window never extends",
			window: 0, extension: 0,
			record: &auction.Record{ID: 1, End: end(10)},
			now:    9,
		},
		{
			name:   "bid outside window",
			window: 3, extension: 5,
			record: &auction.Record{ID: 1, End: end(20)},
			now:    10,
		},
		{
			name:   "bid inside window extends",
			window: 3, extension: 5,
			record:  &auction.Record{ID: 1, End: end(10)},
			now:     8,
			wantEnd: end(13),
		},
		{
			name:   "bid at the end height extends",
			window: 3, extension: 5,
			record:  &auction.Record{ID: 1, End: end(10)},
			now:     10,
			wantEnd: end(15),
		},
		{
			name:   "extension shorter than remaining time is dropped",
			window: 10, extension: 2,
			record: &auction.Record{ID: 1, End: end(10)},
			now:    5,
		},
		{
			name:   "open-ended auction",
			window: 3, extension: 5,
			record: &auction.Record{ID: 1},
			now:    8,
		},
		{
			name:   "unknown record",
			window: 3, extension: 5,
			now:    8,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records := fakeRecords{}
			if tt.record != nil {
				records[tt.record.ID] = tt.record
			}
			p := auction.NewSlotPolicy(records, nil, slog.Default(), tt.window, tt.extension)

			decision := p.OnNewBid(tt.now, 1, bid, nil)
			if !decision.Accept {
				t.Fatal("OnNewBid() rejected a price-valid bid")
			}
			if (tt.wantEnd != nil) != decision.SetEnd {
				t.Fatalf("SetEnd = %v, want %v", decision.SetEnd, tt.wantEnd != nil)
			}
			if tt.wantEnd != nil && (decision.NewEnd == nil || *decision.NewEnd != *tt.wantEnd) {
				t.Errorf("NewEnd = %v, want %d", decision.NewEnd, *tt.wantEnd)
			}
		})
	}
}

func TestSlotPolicy_OnAuctionEnded(t *testing.T) {
	bank := funds.NewMemoryLedgerWithBalances(map[string]decimal.Decimal{
		"carrier-c": decimal.NewFromInt(100),
	})
	esc := escrow.NewAdapter(bank, event.Nop{}, slog.Default(), func() uint64 { return 0 })
	if err := esc.Reserve(context.Background(), "carrier-c", decimal.NewFromInt(60)); err != nil {
		t.Fatalf("Reserve() error = %v", err)
	}

	p := auction.NewSlotPolicy(fakeRecords{}, esc, slog.Default(), 0, 0)
	p.OnAuctionEnded(1, "berth-op", "liner-a", &auction.Bid{Bidder: "carrier-c", Amount: decimal.NewFromInt(60)})

	if got := bank.FreeBalance("berth-op"); !got.Equal(decimal.NewFromInt(60)) {
		t.Errorf("creator free = %s, want 60", got)
	}
	if got := bank.ReservedBalance("carrier-c"); !got.IsZero() {
		t.Errorf("winner reserved = %s, want 0", got)
	}
}

func TestSlotPolicy_OnAuctionEnded_NoWinner(t *testing.T) {
	bank := funds.NewMemoryLedgerWithBalances(map[string]decimal.Decimal{
		"carrier-c": decimal.NewFromInt(100),
	})
	esc := escrow.NewAdapter(bank, event.Nop{}, slog.Default(), func() uint64 { return 0 })

	p := auction.NewSlotPolicy(fakeRecords{}, esc, slog.Default(), 0, 0)
	p.OnAuctionEnded(1, "berth-op", "liner-a", nil)

	if got := bank.FreeBalance("berth-op"); !got.IsZero() {
		t.Errorf("creator free = %s, want 0 (nothing to settle)", got)
	}
}
