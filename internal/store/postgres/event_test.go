package postgres_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/mkdior/blocklab/internal/event"
	"github.com/mkdior/blocklab/internal/store/postgres"
)

func TestEventStore_AppendAndLoad(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	aggID := "auction-1"
	events := []event.Event{
		{AggregateID: aggID, Type: event.AuctionCreated, Data: json.RawMessage(`{"creator":"berth-op","start":10}`), Version: 1},
		{AggregateID: aggID, Type: event.BidAccepted, Data: json.RawMessage(`{"bidder":"carrier-c","amount":"50"}`), Version: 2},
	}

	if err := es.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	loaded, err := es.Load(ctx, aggID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("Load returned %d events, want 2", len(loaded))
	}

	// Should be ordered by version.
	if loaded[0].Version != 1 || loaded[1].Version != 2 {
		t.Errorf("versions = [%d, %d], want [1, 2]", loaded[0].Version, loaded[1].Version)
	}
	if loaded[0].Type != event.AuctionCreated {
		t.Errorf("event[0].Type = %q, want %q", loaded[0].Type, event.AuctionCreated)
	}
}

func TestEventStore_LoadByType(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	events := []event.Event{
		{AggregateID: "auction-1", Type: event.AuctionCreated, Data: json.RawMessage(`{}`), Version: 1},
		{AggregateID: "auction-1", Type: event.BidAccepted, Data: json.RawMessage(`{}`), Version: 2},
		{AggregateID: "auction-2", Type: event.AuctionCreated, Data: json.RawMessage(`{}`), Version: 1},
	}

	if err := es.Append(ctx, events...); err != nil {
		t.Fatalf("Append: %v", err)
	}

	created, err := es.LoadByType(ctx, event.AuctionCreated)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(created) != 2 {
		t.Fatalf("LoadByType(AuctionCreated) returned %d, want 2", len(created))
	}

	bids, err := es.LoadByType(ctx, event.BidAccepted)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(bids) != 1 {
		t.Fatalf("LoadByType(BidAccepted) returned %d, want 1", len(bids))
	}
}

func TestEventStore_AppendAtomicity(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	// The second event carries malformed JSON the JSONB column rejects; the
	// whole batch must roll back.
	events := []event.Event{
		{AggregateID: "auction-9", Type: event.AuctionCreated, Data: json.RawMessage(`{}`), Version: 1},
		{AggregateID: "auction-9", Type: event.BidAccepted, Data: json.RawMessage(`{invalid`), Version: 2},
	}

	if err := es.Append(ctx, events...); err == nil {
		t.Fatal("expected error for malformed event data")
	}

	loaded, err := es.Load(ctx, "auction-9")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("partial batch persisted: %d events, want 0", len(loaded))
	}
}

func TestEventStore_LoadEmpty(t *testing.T) {
	db := newTestDB(t)
	es := postgres.NewEventStore(db)
	ctx := context.Background()

	loaded, err := es.Load(ctx, "nonexistent")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty slice, got %d events", len(loaded))
	}
}
