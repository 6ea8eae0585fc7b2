package algostream

import (
	"context"
	"sync"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const (
	stageName = "algostreaming"

	baseVisibleQty int64 = 1_000_000
)

// Engine turns every quote into a two-way stream. Visible size alternates
// 1mm/2mm on the publish counter parity and hidden size is twice the visible.
type Engine struct {
	store   *store.Store[string, schema.AlgoStream]
	metrics *obs.Metrics

	mu    sync.Mutex
	count uint64
}

// NewEngine creates an engine with a zero publish counter.
func NewEngine(metrics *obs.Metrics) *Engine {
	return &Engine{
		store:   store.New(stageName, schema.AlgoStream.Key),
		metrics: metrics,
	}
}

// OnAdd handles a quote from the pricing service.
func (e *Engine) OnAdd(ctx context.Context, q schema.Quote) error {
	_, err := e.Stream(ctx, q)
	return err
}

// Stream builds, stores and publishes the stream for q.
func (e *Engine) Stream(ctx context.Context, q schema.Quote) (schema.AlgoStream, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	visible := (int64(e.count%2) + 1) * baseVisibleQty
	hidden := 2 * visible

	algo := schema.AlgoStream{Stream: schema.PriceStream{
		Instrument: q.Instrument,
		Bid: schema.PriceStreamOrder{
			Price:      q.Bid(),
			VisibleQty: visible,
			HiddenQty:  hidden,
			Side:       schema.PricingSideBid,
		},
		Offer: schema.PriceStreamOrder{
			Price:      q.Offer(),
			VisibleQty: visible,
			HiddenQty:  hidden,
			Side:       schema.PricingSideOffer,
		},
	}}

	e.metrics.IncPublished(stageName)
	err := e.store.OnMessage(ctx, algo)
	e.count++
	if err != nil {
		e.metrics.IncListenerError(stageName)
	}
	return algo, err
}

// Count returns the number of streams published so far.
func (e *Engine) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Get returns the latest stream for an instrument.
func (e *Engine) Get(id string) (schema.AlgoStream, error) {
	return e.store.Get(id)
}

func (e *Engine) AddListener(l store.Listener[schema.AlgoStream]) {
	e.store.AddListener(l)
}

func (e *Engine) Listeners() []store.Listener[schema.AlgoStream] {
	return e.store.Listeners()
}
