package marketdata

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/schema"
	"bondpipe/internal/store"
	"bondpipe/pkg/exception"
)

func px(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func bid(p string, q int64) schema.RestingOrder {
	return schema.RestingOrder{Price: px(p), Quantity: q, Side: schema.PricingSideBid}
}

func offer(p string, q int64) schema.RestingOrder {
	return schema.RestingOrder{Price: px(p), Quantity: q, Side: schema.PricingSideOffer}
}

func TestBestBidOffer(t *testing.T) {
	book := schema.OrderBook{
		Bids:   []schema.RestingOrder{bid("100.0", 5), bid("100.5", 3)},
		Offers: []schema.RestingOrder{offer("101.0", 2), offer("100.75", 4)},
	}
	bo, err := BestBidOffer(book)
	require.NoError(t, err)
	assert.True(t, bo.Bid.Price.Equal(px("100.5")))
	assert.Equal(t, int64(3), bo.Bid.Quantity)
	assert.True(t, bo.Offer.Price.Equal(px("100.75")))
	assert.Equal(t, int64(4), bo.Offer.Quantity)
	assert.True(t, bo.Spread().Equal(px("0.25")))
}

func TestBestBidOfferFirstOccurrenceWinsTies(t *testing.T) {
	book := schema.OrderBook{
		Bids:   []schema.RestingOrder{bid("100", 1), bid("100", 2)},
		Offers: []schema.RestingOrder{offer("101", 7), offer("101", 8)},
	}
	bo, err := BestBidOffer(book)
	require.NoError(t, err)
	assert.Equal(t, int64(1), bo.Bid.Quantity)
	assert.Equal(t, int64(7), bo.Offer.Quantity)
}

func TestBestBidOfferEmptySide(t *testing.T) {
	_, err := BestBidOffer(schema.OrderBook{Bids: []schema.RestingOrder{bid("100", 1)}})
	require.ErrorIs(t, err, exception.ErrEmptyBook)
}

func TestAggregateDepth(t *testing.T) {
	book := schema.OrderBook{
		Bids:   []schema.RestingOrder{bid("100.0", 5), bid("99.5", 1), bid("100.00", 3)},
		Offers: []schema.RestingOrder{offer("101", 2), offer("100.75", 4), offer("101.0", 6)},
	}
	agg := AggregateDepth(book)

	depth := func(rows []schema.RestingOrder) map[string]int64 {
		out := make(map[string]int64)
		for _, r := range rows {
			out[r.Price.String()] += r.Quantity
		}
		return out
	}
	assert.Equal(t, map[string]int64{"100": 8, "99.5": 1}, depth(agg.Bids))
	assert.Equal(t, map[string]int64{"101": 8, "100.75": 4}, depth(agg.Offers))
	require.Len(t, agg.Bids, 2)
	assert.True(t, agg.Bids[0].Price.Equal(px("100")))
	assert.True(t, agg.Offers[0].Price.Equal(px("100.75")))
}

type recordingSink struct {
	books []schema.OrderBook
}

func (r *recordingSink) OnMessage(_ context.Context, b schema.OrderBook) error {
	r.books = append(r.books, b)
	return nil
}

func TestBatcherEmitsAtThreshold(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(2, sink)
	ctx := context.Background()
	a := schema.Instrument{ID: "A"}
	c := schema.Instrument{ID: "C"}

	require.NoError(t, b.Add(ctx, a, bid("99", 1)))
	require.NoError(t, b.Add(ctx, c, bid("98", 1)))
	require.NoError(t, b.Add(ctx, a, offer("100", 1)))
	require.NoError(t, b.Add(ctx, a, bid("99", 2)))
	assert.Empty(t, sink.books)

	require.NoError(t, b.Add(ctx, a, offer("100", 2)))
	require.Len(t, sink.books, 1)
	assert.Equal(t, "A", sink.books[0].Instrument.ID)
	assert.Len(t, sink.books[0].Bids, 2)
	assert.Len(t, sink.books[0].Offers, 2)

	// A starts a fresh buffer; C stays one-sided and is discarded
	require.NoError(t, b.Add(ctx, a, bid("99", 3)))
	require.NoError(t, b.Add(ctx, a, offer("100", 3)))
	require.NoError(t, b.Flush(ctx))
	require.Len(t, sink.books, 2)
	assert.Equal(t, "A", sink.books[1].Instrument.ID)
	assert.Len(t, sink.books[1].Bids, 1)
	assert.Len(t, sink.books[1].Offers, 1)
}

func TestBatcherFlushSkipsOneSidedBuffers(t *testing.T) {
	sink := &recordingSink{}
	b := NewBatcher(0, sink)
	ctx := context.Background()

	require.NoError(t, b.Add(ctx, schema.Instrument{ID: "B"}, bid("99", 1)))
	require.NoError(t, b.Add(ctx, schema.Instrument{ID: "B"}, offer("100", 1)))
	require.NoError(t, b.Add(ctx, schema.Instrument{ID: "A"}, bid("99", 1)))
	require.NoError(t, b.Flush(ctx))

	require.Len(t, sink.books, 1)
	assert.Equal(t, "B", sink.books[0].Instrument.ID)

	require.NoError(t, b.Flush(ctx))
	assert.Len(t, sink.books, 1)
}

func TestServiceNotifiesAndQueries(t *testing.T) {
	svc := NewService(nil)
	var notified int
	svc.AddListener(store.ListenerFunc[schema.OrderBook](func(context.Context, schema.OrderBook) error {
		notified++
		return nil
	}))

	book := schema.OrderBook{
		Instrument: schema.Instrument{ID: "A"},
		Bids:       []schema.RestingOrder{bid("100.0", 5), bid("100.0", 3)},
		Offers:     []schema.RestingOrder{offer("100.5", 1)},
	}
	require.NoError(t, svc.OnMessage(context.Background(), book))
	assert.Equal(t, 1, notified)

	bo, err := svc.BestBidOffer("A")
	require.NoError(t, err)
	assert.True(t, bo.Bid.Price.Equal(px("100")))

	agg, err := svc.AggregateDepth("A")
	require.NoError(t, err)
	require.Len(t, agg.Bids, 1)
	assert.Equal(t, int64(8), agg.Bids[0].Quantity)

	_, err = svc.BestBidOffer("missing")
	require.ErrorIs(t, err, store.ErrNotFound)
}
