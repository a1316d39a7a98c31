package auction

import "sort"

// Ledger owns the durable auction state: the record arena, the end-height
// index and the queued-bid slots. It is mutated only by the Engine, one state
// transition at a time; all iteration is in ID order so replays are
// deterministic.
type Ledger struct {
	auctions map[ID]*Record
	nextID   ID
	endIndex map[Height]map[ID]struct{}
	queued   map[Height]QueuedBid
}

// NewLedger returns an empty Ledger.
func NewLedger() *Ledger {
	return &Ledger{
		auctions: make(map[ID]*Record),
		endIndex: make(map[Height]map[ID]struct{}),
		queued:   make(map[Height]QueuedBid),
	}
}

// Exists reports whether an auction with id is stored.
func (l *Ledger) Exists(id ID) bool {
	_, ok := l.auctions[id]
	return ok
}

// Get returns a copy of the record for id, or nil.
func (l *Ledger) Get(id ID) *Record {
	r, ok := l.auctions[id]
	if !ok {
		return nil
	}
	return r.clone()
}

// ListAll returns copies of every stored record in ID order. A nil slice
// means no auctions are stored.
func (l *Ledger) ListAll() []Record {
	return l.collect(func(*Record) bool { return true })
}

// ListByStatus returns records whose liveness matches active at now.
// An auction is active once now has reached its start height.
func (l *Ledger) ListByStatus(active bool, now Height) []Record {
	return l.collect(func(r *Record) bool { return (now >= r.Start) == active })
}

// DisplayGet returns the presentation projection of one record, or nil.
func (l *Ledger) DisplayGet(id ID, now Height) *DisplayRecord {
	r, ok := l.auctions[id]
	if !ok {
		return nil
	}
	d := displayOf(r, now)
	return &d
}

// DisplayListAll returns projections of every record in ID order.
func (l *Ledger) DisplayListAll(now Height) []DisplayRecord {
	return l.project(func(*Record) bool { return true }, now)
}

// DisplayListByStatus returns projections filtered by liveness at now.
func (l *Ledger) DisplayListByStatus(active bool, now Height) []DisplayRecord {
	return l.project(func(r *Record) bool { return (now >= r.Start) == active }, now)
}

func (l *Ledger) collect(keep func(*Record) bool) []Record {
	var out []Record
	for _, id := range l.sortedIDs() {
		if r := l.auctions[id]; keep(r) {
			out = append(out, *r.clone())
		}
	}
	return out
}

func (l *Ledger) project(keep func(*Record) bool, now Height) []DisplayRecord {
	var out []DisplayRecord
	for _, id := range l.sortedIDs() {
		if r := l.auctions[id]; keep(r) {
			out = append(out, displayOf(r, now))
		}
	}
	return out
}

func (l *Ledger) sortedIDs() []ID {
	ids := make([]ID, 0, len(l.auctions))
	for id := range l.auctions {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func displayOf(r *Record, now Height) DisplayRecord {
	d := DisplayRecord{
		ID:            r.ID,
		SlotOwner:     r.Creator,
		SlotOrigin:    r.Origin,
		SlotTime:      r.Info.Timestamp,
		NumContainers: r.Info.NumContainers,
		NumTEU:        r.Info.NumTEU,
		IsLive:        now >= r.Start,
	}
	if r.End != nil {
		e := *r.End
		d.End = &e
	}
	if r.LeadingBid != nil {
		var amount uint64
		if r.DisplayAmount != nil {
			amount = *r.DisplayAmount
		}
		d.HighestBid = &DisplayBid{Bidder: r.LeadingBid.Bidder, Amount: amount}
	}
	return d
}

// get returns the arena record itself. Engine-internal.
func (l *Ledger) get(id ID) *Record {
	return l.auctions[id]
}

// allocate stores rec under the next free ID and returns it.
func (l *Ledger) allocate(rec *Record) ID {
	id := l.nextID
	l.nextID++
	rec.ID = id
	l.auctions[id] = rec
	return id
}

// remove deletes the record and its end-index entry, returning the removed
// record or nil.
func (l *Ledger) remove(id ID) *Record {
	r, ok := l.auctions[id]
	if !ok {
		return nil
	}
	delete(l.auctions, id)
	if r.End != nil {
		l.unindexEnd(*r.End, id)
	}
	return r
}

func (l *Ledger) indexEnd(h Height, id ID) {
	set, ok := l.endIndex[h]
	if !ok {
		set = make(map[ID]struct{})
		l.endIndex[h] = set
	}
	set[id] = struct{}{}
}

func (l *Ledger) unindexEnd(h Height, id ID) {
	if set, ok := l.endIndex[h]; ok {
		delete(set, id)
		if len(set) == 0 {
			delete(l.endIndex, h)
		}
	}
}

// takeEndingAt drains the end-index entries for h in ID order.
func (l *Ledger) takeEndingAt(h Height) []ID {
	set, ok := l.endIndex[h]
	if !ok {
		return nil
	}
	delete(l.endIndex, h)
	ids := make([]ID, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// putQueued stores qb at h, returning the replaced occupant if any. The
// replaced bidder's escrow stays held; see the queued-bid slot limitation.
func (l *Ledger) putQueued(h Height, qb QueuedBid) *QueuedBid {
	var replaced *QueuedBid
	if prev, ok := l.queued[h]; ok {
		replaced = &prev
	}
	l.queued[h] = qb
	return replaced
}

// takeQueued removes and returns the queued bid at h.
func (l *Ledger) takeQueued(h Height) (QueuedBid, bool) {
	qb, ok := l.queued[h]
	if ok {
		delete(l.queued, h)
	}
	return qb, ok
}

// QueuedAt returns the queued bid waiting at h, if any. Read-only.
func (l *Ledger) QueuedAt(h Height) (QueuedBid, bool) {
	qb, ok := l.queued[h]
	return qb, ok
}
