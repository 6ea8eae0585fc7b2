package algoexec

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"bondpipe/internal/marketdata"
	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const (
	stageName = "algoexecution"

	DefaultParentOrderID = "PARENT_ORDER_ID"
	orderIDLength        = 12
)

// DefaultSpreadLimit is 1/128.
var DefaultSpreadLimit = decimal.NewFromInt(1).Div(decimal.NewFromInt(128))

// IDGenerator produces order ids.
type IDGenerator interface {
	Next() string
}

// RandomIDs issues 12 character upper-case ids derived from random UUIDs.
type RandomIDs struct{}

func (RandomIDs) Next() string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return id[:orderIDLength]
}

// Config controls the execution gate. SpreadLimit is used as given: zero
// executes only on locked books.
type Config struct {
	SpreadLimit   decimal.Decimal
	ParentOrderID string
	IDs           IDGenerator
}

func (c Config) withDefaults() Config {
	if c.ParentOrderID == "" {
		c.ParentOrderID = DefaultParentOrderID
	}
	if c.IDs == nil {
		c.IDs = RandomIDs{}
	}
	return c
}

// Engine crosses the market whenever the top of book is at most SpreadLimit
// wide. Decisions alternate sides: the even decisions (starting with the
// first) lift the offer, the odd decisions hit the bid.
type Engine struct {
	cfg     Config
	store   *store.Store[string, schema.AlgoExecution]
	metrics *obs.Metrics

	mu    sync.Mutex
	count uint64
}

// NewEngine creates an engine with a zero execution counter.
func NewEngine(cfg Config, metrics *obs.Metrics) *Engine {
	return &Engine{
		cfg:     cfg.withDefaults(),
		store:   store.New(stageName, schema.AlgoExecution.Key),
		metrics: metrics,
	}
}

// OnAdd handles an order book snapshot from the market data service.
func (e *Engine) OnAdd(ctx context.Context, book schema.OrderBook) error {
	_, _, err := e.Execute(ctx, book)
	return err
}

// Execute runs the decision for one snapshot. It reports false, and leaves the
// counter untouched, when the spread is wider than the limit.
func (e *Engine) Execute(ctx context.Context, book schema.OrderBook) (schema.AlgoExecution, bool, error) {
	bo, err := marketdata.BestBidOffer(book)
	if err != nil {
		return schema.AlgoExecution{}, false, err
	}
	if bo.Spread().GreaterThan(e.cfg.SpreadLimit) {
		return schema.AlgoExecution{}, false, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	take := bo.Offer
	side := schema.PricingSideOffer
	if e.count%2 == 1 {
		take = bo.Bid
		side = schema.PricingSideBid
	}
	e.count++

	algo := schema.AlgoExecution{Order: schema.ExecutionOrder{
		Instrument:    book.Instrument,
		Side:          side,
		OrderID:       e.cfg.IDs.Next(),
		Type:          schema.OrderTypeMarket,
		Price:         take.Price,
		VisibleQty:    take.Quantity,
		HiddenQty:     0,
		ParentOrderID: e.cfg.ParentOrderID,
		IsChild:       false,
	}}

	e.metrics.IncPublished(stageName)
	if err := e.store.OnMessage(ctx, algo); err != nil {
		e.metrics.IncListenerError(stageName)
		return algo, true, err
	}
	return algo, true, nil
}

// Count returns the number of executions decided so far.
func (e *Engine) Count() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.count
}

// Get returns the latest execution for an instrument.
func (e *Engine) Get(id string) (schema.AlgoExecution, error) {
	return e.store.Get(id)
}

func (e *Engine) AddListener(l store.Listener[schema.AlgoExecution]) {
	e.store.AddListener(l)
}

func (e *Engine) Listeners() []store.Listener[schema.AlgoExecution] {
	return e.store.Listeners()
}
