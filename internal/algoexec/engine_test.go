package algoexec

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
	"bondpipe/pkg/exception"
)

func book(bid, offer string) schema.OrderBook {
	return schema.OrderBook{
		Instrument: schema.Instrument{ID: "91282CJL6"},
		Bids: []schema.RestingOrder{
			{Price: decimal.RequireFromString(bid), Quantity: 10_000_000, Side: schema.PricingSideBid},
			{Price: decimal.RequireFromString(bid).Sub(decimal.RequireFromString("0.0078125")), Quantity: 20_000_000, Side: schema.PricingSideBid},
		},
		Offers: []schema.RestingOrder{
			{Price: decimal.RequireFromString(offer), Quantity: 30_000_000, Side: schema.PricingSideOffer},
		},
	}
}

func sequenced() Config {
	return Config{SpreadLimit: DefaultSpreadLimit, IDs: obs.NewSequence("ORD", 0)}
}

func TestExecutionAlternatesStartingWithOffer(t *testing.T) {
	e := NewEngine(sequenced(), nil)
	var published []schema.AlgoExecution
	e.AddListener(store.ListenerFunc[schema.AlgoExecution](func(_ context.Context, a schema.AlgoExecution) error {
		published = append(published, a)
		return nil
	}))
	ctx := context.Background()

	first, ok, err := e.Execute(ctx, book("99.99609375", "100.00390625"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.PricingSideOffer, first.Order.Side)
	assert.True(t, first.Order.Price.Equal(decimal.RequireFromString("100.00390625")))
	assert.Equal(t, int64(30_000_000), first.Order.VisibleQty)
	assert.Equal(t, "ORD1", first.Order.OrderID)

	second, ok, err := e.Execute(ctx, book("99.99609375", "100.00390625"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.PricingSideBid, second.Order.Side)
	assert.True(t, second.Order.Price.Equal(decimal.RequireFromString("99.99609375")))
	assert.Equal(t, int64(10_000_000), second.Order.VisibleQty)

	assert.Equal(t, uint64(2), e.Count())
	require.Len(t, published, 2)

	o := published[0].Order
	assert.Equal(t, schema.OrderTypeMarket, o.Type)
	assert.Zero(t, o.HiddenQty)
	assert.Equal(t, DefaultParentOrderID, o.ParentOrderID)
	assert.False(t, o.IsChild)

	latest, err := e.Get("91282CJL6")
	require.NoError(t, err)
	assert.Equal(t, "ORD2", latest.Order.OrderID)
}

func TestWideSpreadSkipsWithoutStateChange(t *testing.T) {
	e := NewEngine(sequenced(), nil)
	var calls int
	e.AddListener(store.ListenerFunc[schema.AlgoExecution](func(context.Context, schema.AlgoExecution) error {
		calls++
		return nil
	}))

	// 1/64 wide
	_, ok, err := e.Execute(context.Background(), book("99.9921875", "100.0078125"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, e.Count())
	assert.Zero(t, calls)

	_, err = e.Get("91282CJL6")
	require.ErrorIs(t, err, store.ErrNotFound)

	// exactly at the limit executes, and it is still the first decision
	algo, ok, err := e.Execute(context.Background(), book("100", "100.0078125"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, schema.PricingSideOffer, algo.Order.Side)
	assert.Equal(t, uint64(1), e.Count())
}

func TestZeroSpreadLimitExecutesOnlyLockedBooks(t *testing.T) {
	cfg := sequenced()
	cfg.SpreadLimit = decimal.Zero
	e := NewEngine(cfg, nil)

	// 1/256 wide
	_, ok, err := e.Execute(context.Background(), book("99.99609375", "100"))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, e.Count())

	_, ok, err = e.Execute(context.Background(), book("100", "100"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, uint64(1), e.Count())
}

func TestEmptyBookIsRejected(t *testing.T) {
	e := NewEngine(Config{}, nil)
	err := e.OnAdd(context.Background(), schema.OrderBook{})
	require.ErrorIs(t, err, exception.ErrEmptyBook)
	assert.Zero(t, e.Count())
}

func TestRandomIDs(t *testing.T) {
	a := RandomIDs{}.Next()
	b := RandomIDs{}.Next()
	assert.Len(t, a, 12)
	assert.NotEqual(t, a, b)
}
