package booking

import (
	"context"
	"sync"

	"github.com/yanun0323/errors"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
	"bondpipe/pkg/exception"
)

const stageName = "tradebooking"

// DefaultBooks is the round-robin rotation for execution-derived trades.
var DefaultBooks = []string{"TRSY1", "TRSY2", "TRSY3"}

// Config controls execution-derived booking.
type Config struct {
	Books []string
	// NotifyOnce suppresses the explicit book broadcast that follows the
	// upsert notification of an execution-derived trade.
	NotifyOnce bool
}

// Engine books trades from the trade feed and from executions.
type Engine struct {
	books      []string
	notifyOnce bool
	store      *store.Store[string, schema.Trade]
	metrics    *obs.Metrics

	mu    sync.Mutex
	count uint64
}

// NewEngine creates a booking engine. An empty rotation uses DefaultBooks.
func NewEngine(cfg Config, metrics *obs.Metrics) *Engine {
	books := cfg.Books
	if len(books) == 0 {
		books = DefaultBooks
	}
	rotation := make([]string, len(books))
	copy(rotation, books)
	return &Engine{
		books:      rotation,
		notifyOnce: cfg.NotifyOnce,
		store:      store.New(stageName, schema.Trade.Key),
		metrics:    metrics,
	}
}

// OnMessage stores an externally sourced trade and notifies all listeners.
func (e *Engine) OnMessage(ctx context.Context, trade schema.Trade) error {
	if trade.Quantity <= 0 {
		return errors.Wrapf(exception.ErrInvalidQuantity, "trade %s: quantity %d", trade.TradeID, trade.Quantity)
	}
	if !trade.Side.IsAvailable() {
		return errors.Wrapf(exception.ErrUnknownSide, "trade %s", trade.TradeID)
	}
	e.metrics.IncPublished(stageName)
	return e.observe(e.store.OnMessage(ctx, trade))
}

// BookTrade notifies every listener with trade without storing it again.
func (e *Engine) BookTrade(ctx context.Context, trade schema.Trade) error {
	e.metrics.IncPublished(stageName)
	return e.observe(e.store.Publish(ctx, trade))
}

func (e *Engine) observe(err error) error {
	if err != nil {
		e.metrics.IncListenerError(stageName)
	}
	return err
}

// OnAdd books an execution order from the execution service.
func (e *Engine) OnAdd(ctx context.Context, order schema.ExecutionOrder) error {
	_, err := e.BookExecution(ctx, order)
	return err
}

// BookExecution converts order into a trade on the opposite side. The booking
// counter advances before the book is picked, so the first execution lands in
// the second book of the rotation.
func (e *Engine) BookExecution(ctx context.Context, order schema.ExecutionOrder) (schema.Trade, error) {
	var side schema.TradeSide
	switch order.Side {
	case schema.PricingSideBid:
		side = schema.TradeSideSell
	case schema.PricingSideOffer:
		side = schema.TradeSideBuy
	default:
		return schema.Trade{}, errors.Wrapf(exception.ErrUnknownSide, "order %s", order.OrderID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.count++
	trade := schema.Trade{
		Instrument: order.Instrument,
		TradeID:    order.OrderID,
		Price:      order.Price,
		Book:       e.books[e.count%uint64(len(e.books))],
		Quantity:   order.VisibleQty + order.HiddenQty,
		Side:       side,
	}

	if err := e.OnMessage(ctx, trade); err != nil {
		return trade, err
	}
	if e.notifyOnce {
		return trade, nil
	}
	return trade, e.BookTrade(ctx, trade)
}

// Count returns the number of execution-derived bookings.
func (e *Engine) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Get returns a trade by id.
func (e *Engine) Get(tradeID string) (schema.Trade, error) {
	return e.store.Get(tradeID)
}

func (e *Engine) AddListener(l store.Listener[schema.Trade]) {
	e.store.AddListener(l)
}

func (e *Engine) Listeners() []store.Listener[schema.Trade] {
	return e.store.Listeners()
}
