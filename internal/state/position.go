package state

import (
	"context"
	"errors"
	"sort"
	"sync"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const stageName = "position"

// PositionAggregator accumulates signed trade quantities per book per instrument.
type PositionAggregator struct {
	mu      sync.Mutex
	store   *store.Store[string, schema.Position]
	metrics *obs.Metrics
}

// NewPositionAggregator creates an empty aggregator.
func NewPositionAggregator(metrics *obs.Metrics) *PositionAggregator {
	return &PositionAggregator{
		store:   store.New(stageName, schema.Position.Key),
		metrics: metrics,
	}
}

// OnAdd applies a booked trade.
func (a *PositionAggregator) OnAdd(ctx context.Context, trade schema.Trade) error {
	_, err := a.AddTrade(ctx, trade)
	return err
}

// AddTrade builds a fresh position holding the trade's signed quantity in its
// book, folds in every book already on file for the instrument, stores the
// result and notifies all listeners with it.
func (a *PositionAggregator) AddTrade(ctx context.Context, trade schema.Trade) (schema.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	next := schema.NewPosition(trade.Instrument)
	next.Add(trade.Book, trade.SignedQuantity())

	current, err := a.store.Get(trade.Instrument.ID)
	switch {
	case err == nil:
		for book, qty := range current.Books {
			next.Add(book, qty)
		}
	case !errors.Is(err, store.ErrNotFound):
		return schema.Position{}, err
	}

	a.metrics.IncPublished(stageName)
	if err := a.store.OnMessage(ctx, next); err != nil {
		a.metrics.IncListenerError(stageName)
		return next.Clone(), err
	}
	return next.Clone(), nil
}

// Position returns a copy of the current position of an instrument.
func (a *PositionAggregator) Position(id string) (schema.Position, error) {
	p, err := a.store.Get(id)
	if err != nil {
		return schema.Position{}, err
	}
	return p.Clone(), nil
}

// Aggregate returns the position of an instrument summed across books.
func (a *PositionAggregator) Aggregate(id string) (int64, error) {
	p, err := a.store.Get(id)
	if err != nil {
		return 0, err
	}
	return p.Aggregate(), nil
}

// Positions returns a copy of every tracked position, sorted by instrument id.
func (a *PositionAggregator) Positions() []schema.Position {
	ids := a.store.Keys()
	sort.Strings(ids)
	out := make([]schema.Position, 0, len(ids))
	for _, id := range ids {
		if p, err := a.store.Get(id); err == nil {
			out = append(out, p.Clone())
		}
	}
	return out
}

// Count returns the number of tracked instruments.
func (a *PositionAggregator) Count() int {
	return a.store.Len()
}

func (a *PositionAggregator) AddListener(l store.Listener[schema.Position]) {
	a.store.AddListener(l)
}

func (a *PositionAggregator) Listeners() []store.Listener[schema.Position] {
	return a.store.Listeners()
}
