package risk

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/logs"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const stageName = "risk"

// Config defines PV01 limits. A zero MaxAbsPV01 disables the check.
type Config struct {
	MaxAbsPV01 decimal.Decimal
}

// Engine turns positions into PV01 figures.
type Engine struct {
	cfg     Config
	reg     *schema.Registry
	store   *store.Store[string, schema.PV01]
	metrics *obs.Metrics
}

// NewEngine creates a risk engine reading sensitivities from reg.
func NewEngine(cfg Config, reg *schema.Registry, metrics *obs.Metrics) *Engine {
	return &Engine{
		cfg:     cfg,
		reg:     reg,
		store:   store.New(stageName, schema.PV01.Key),
		metrics: metrics,
	}
}

// OnAdd handles a position from the position aggregator.
func (e *Engine) OnAdd(ctx context.Context, position schema.Position) error {
	_, err := e.AddPosition(ctx, position)
	return err
}

// AddPosition stores the instrument's PV01 sensitivity together with the
// aggregate position and notifies all listeners.
func (e *Engine) AddPosition(ctx context.Context, position schema.Position) (schema.PV01, error) {
	figure, err := e.figure(position)
	if err != nil {
		return schema.PV01{}, err
	}

	e.metrics.IncPublished(stageName)
	if err := e.store.OnMessage(ctx, figure); err != nil {
		e.metrics.IncListenerError(stageName)
		return figure, err
	}
	return figure, nil
}

// Seed stores the figures of positions carried over from an earlier run.
// Listeners are not notified.
func (e *Engine) Seed(positions ...schema.Position) error {
	for _, position := range positions {
		figure, err := e.figure(position)
		if err != nil {
			return err
		}
		e.store.Upsert(figure)
	}
	return nil
}

func (e *Engine) figure(position schema.Position) (schema.PV01, error) {
	id := position.Instrument.ID
	pv01, err := e.reg.PV01(id)
	if err != nil {
		return schema.PV01{}, err
	}

	figure := schema.PV01{
		Subject:  id,
		PV01:     pv01,
		Quantity: position.Aggregate(),
	}
	if e.Breached(figure) {
		e.metrics.IncRiskBreach(id)
		logs.Errorf("pv01 limit breached, instrument: %s, value: %s, limit: %s", id, figure.Value(), e.cfg.MaxAbsPV01)
	}
	return figure, nil
}

// Breached reports whether |PV01 x quantity| exceeds the configured limit.
func (e *Engine) Breached(figure schema.PV01) bool {
	if !e.cfg.MaxAbsPV01.IsPositive() {
		return false
	}
	return figure.Value().Abs().GreaterThan(e.cfg.MaxAbsPV01)
}

// BucketedRisk sums PV01 x quantity over the members of sector. It reads the
// stored figures only and notifies nobody. Members without a figure yet
// contribute zero; members missing from reference data are an error.
func (e *Engine) BucketedRisk(sector schema.Sector) (schema.PV01, error) {
	total := decimal.Zero
	for _, member := range sector.Instruments {
		if _, err := e.reg.Instrument(member.ID); err != nil {
			return schema.PV01{}, err
		}
		figure, err := e.store.Get(member.ID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				continue
			}
			return schema.PV01{}, err
		}
		total = total.Add(figure.Value())
	}
	return schema.PV01{Subject: sector.Name, PV01: total, Quantity: 1}, nil
}

// Get returns the PV01 figure of an instrument.
func (e *Engine) Get(id string) (schema.PV01, error) {
	return e.store.Get(id)
}

func (e *Engine) AddListener(l store.Listener[schema.PV01]) {
	e.store.AddListener(l)
}

func (e *Engine) Listeners() []store.Listener[schema.PV01] {
	return e.store.Listeners()
}
