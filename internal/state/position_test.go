package state

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

func trade(inst schema.Instrument, book string, qty int64, side schema.TradeSide) schema.Trade {
	return schema.Trade{Instrument: inst, TradeID: book, Book: book, Quantity: qty, Side: side}
}

func TestPositionAccumulation(t *testing.T) {
	agg := NewPositionAggregator(nil)
	var notified []schema.Position
	agg.AddListener(store.ListenerFunc[schema.Position](func(_ context.Context, p schema.Position) error {
		notified = append(notified, p)
		return nil
	}))
	ctx := context.Background()
	inst := schema.Instrument{ID: "91282CJL6"}

	_, err := agg.AddTrade(ctx, trade(inst, "TRSY1", 1_000_000, schema.TradeSideBuy))
	require.NoError(t, err)
	p, err := agg.AddTrade(ctx, trade(inst, "TRSY1", 400_000, schema.TradeSideSell))
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), p.Quantity("TRSY1"))
	assert.Equal(t, int64(600_000), p.Aggregate())

	p, err = agg.AddTrade(ctx, trade(inst, "TRSY2", 200_000, schema.TradeSideBuy))
	require.NoError(t, err)
	assert.Equal(t, int64(600_000), p.Quantity("TRSY1"))
	assert.Equal(t, int64(200_000), p.Quantity("TRSY2"))

	total, err := agg.Aggregate(inst.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(800_000), total)

	require.Len(t, notified, 3)
	assert.Equal(t, int64(1_000_000), notified[0].Aggregate())
	assert.Equal(t, int64(800_000), notified[2].Aggregate())
}

func TestPositionsAreIndependentPerInstrument(t *testing.T) {
	agg := NewPositionAggregator(nil)
	ctx := context.Background()
	a := schema.Instrument{ID: "A"}
	b := schema.Instrument{ID: "B"}

	require.NoError(t, agg.OnAdd(ctx, trade(a, "TRSY1", 10, schema.TradeSideBuy)))
	require.NoError(t, agg.OnAdd(ctx, trade(b, "TRSY1", 3, schema.TradeSideSell)))

	pa, err := agg.Position("A")
	require.NoError(t, err)
	pb, err := agg.Position("B")
	require.NoError(t, err)
	assert.Equal(t, int64(10), pa.Aggregate())
	assert.Equal(t, int64(-3), pb.Aggregate())
	assert.Equal(t, 2, agg.Count())

	_, err = agg.Position("C")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestNotifiedPositionIsNotMutatedLater(t *testing.T) {
	agg := NewPositionAggregator(nil)
	var first schema.Position
	agg.AddListener(store.ListenerFunc[schema.Position](func(_ context.Context, p schema.Position) error {
		if first.Books == nil {
			first = p
		}
		return nil
	}))
	ctx := context.Background()
	inst := schema.Instrument{ID: "A"}
	require.NoError(t, agg.OnAdd(ctx, trade(inst, "TRSY1", 10, schema.TradeSideBuy)))
	require.NoError(t, agg.OnAdd(ctx, trade(inst, "TRSY1", 10, schema.TradeSideBuy)))

	assert.Equal(t, int64(10), first.Quantity("TRSY1"))
}

func TestSnapshotRoundTripAndRecover(t *testing.T) {
	reg := schema.DefaultRegistry()
	inst, err := reg.Instrument("91282CHX2")
	require.NoError(t, err)

	agg := NewPositionAggregator(nil)
	ctx := context.Background()
	require.NoError(t, agg.OnAdd(ctx, trade(inst, "TRSY1", 500, schema.TradeSideBuy)))
	require.NoError(t, agg.OnAdd(ctx, trade(inst, "TRSY3", 200, schema.TradeSideSell)))

	path := filepath.Join(t.TempDir(), "snap", "positions.json")
	snap := agg.Snapshot()
	require.NoError(t, WriteSnapshot(path, snap))

	loaded, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snap, loaded)

	recovered, err := RecoverPositions(RecoverConfig{SnapshotPath: path}, reg, nil)
	require.NoError(t, err)
	p, err := recovered.Position("91282CHX2")
	require.NoError(t, err)
	assert.Equal(t, int64(500), p.Quantity("TRSY1"))
	assert.Equal(t, int64(-200), p.Quantity("TRSY3"))
	assert.Equal(t, []schema.Position{p}, recovered.Positions())

	// recovered positions keep accumulating
	p, err = recovered.AddTrade(ctx, trade(inst, "TRSY1", 100, schema.TradeSideBuy))
	require.NoError(t, err)
	assert.Equal(t, int64(400), p.Aggregate())
}

func TestRecoverMissingSnapshot(t *testing.T) {
	reg := schema.DefaultRegistry()
	path := filepath.Join(t.TempDir(), "missing.json")

	_, err := RecoverPositions(RecoverConfig{SnapshotPath: path}, reg, nil)
	require.Error(t, err)

	agg, err := RecoverPositions(RecoverConfig{SnapshotPath: path, AllowMissing: true}, reg, nil)
	require.NoError(t, err)
	assert.Zero(t, agg.Count())
}

func TestPositionsAreSortedCopies(t *testing.T) {
	agg := NewPositionAggregator(nil)
	ctx := context.Background()
	require.NoError(t, agg.OnAdd(ctx, trade(schema.Instrument{ID: "B"}, "TRSY1", 5, schema.TradeSideBuy)))
	require.NoError(t, agg.OnAdd(ctx, trade(schema.Instrument{ID: "A"}, "TRSY2", 7, schema.TradeSideSell)))

	positions := agg.Positions()
	require.Len(t, positions, 2)
	assert.Equal(t, "A", positions[0].Instrument.ID)
	assert.Equal(t, "B", positions[1].Instrument.ID)

	positions[0].Add("TRSY2", 100)
	total, err := agg.Aggregate("A")
	require.NoError(t, err)
	assert.Equal(t, int64(-7), total)
}
