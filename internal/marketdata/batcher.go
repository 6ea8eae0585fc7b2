package marketdata

import (
	"context"
	"sort"

	"bondpipe/internal/schema"
)

// DefaultDepth is the number of levels per side in a full snapshot.
const DefaultDepth = 10

// Sink receives the snapshots assembled by a Batcher.
type Sink interface {
	OnMessage(ctx context.Context, book schema.OrderBook) error
}

// Batcher buffers raw resting orders per instrument and emits one OrderBook
// snapshot each time an instrument accumulates 2*depth rows.
type Batcher struct {
	threshold int
	sink      Sink
	pending   map[string]*schema.OrderBook
}

// NewBatcher creates a batcher for the given depth. depth <= 0 uses DefaultDepth.
func NewBatcher(depth int, sink Sink) *Batcher {
	if depth <= 0 {
		depth = DefaultDepth
	}
	return &Batcher{
		threshold: 2 * depth,
		sink:      sink,
		pending:   make(map[string]*schema.OrderBook),
	}
}

// Add buffers one resting order and emits the instrument's snapshot when full.
func (b *Batcher) Add(ctx context.Context, inst schema.Instrument, order schema.RestingOrder) error {
	book, ok := b.pending[inst.ID]
	if !ok {
		book = &schema.OrderBook{Instrument: inst}
		b.pending[inst.ID] = book
	}
	switch order.Side {
	case schema.PricingSideBid:
		book.Bids = append(book.Bids, order)
	case schema.PricingSideOffer:
		book.Offers = append(book.Offers, order)
	}

	if len(book.Bids)+len(book.Offers) < b.threshold {
		return nil
	}
	delete(b.pending, inst.ID)
	return b.sink.OnMessage(ctx, *book)
}

// Flush emits every partial buffer that has both sides, in instrument id order,
// and discards the rest.
func (b *Batcher) Flush(ctx context.Context) error {
	ids := make([]string, 0, len(b.pending))
	for id := range b.pending {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		book := b.pending[id]
		delete(b.pending, id)
		if len(book.Bids) == 0 || len(book.Offers) == 0 {
			continue
		}
		if err := b.sink.OnMessage(ctx, *book); err != nil {
			return err
		}
	}
	return nil
}
