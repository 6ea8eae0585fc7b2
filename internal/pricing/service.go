package pricing

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
	"bondpipe/pkg/exception"
)

const stageName = "pricing"

var two = decimal.NewFromInt(2)

// NewQuote derives mid and spread from a bid and an offer.
func NewQuote(inst schema.Instrument, bid, offer decimal.Decimal) (schema.Quote, error) {
	spread := offer.Sub(bid)
	if spread.IsNegative() {
		return schema.Quote{}, errors.Wrapf(exception.ErrNegativeSpread, "instrument %s: bid %s offer %s", inst.ID, bid, offer)
	}
	return schema.Quote{
		Instrument: inst,
		Mid:        bid.Add(offer).Div(two),
		Spread:     spread,
	}, nil
}

// Service keeps the latest quote per instrument and notifies every listener
// on each update.
type Service struct {
	*store.Store[string, schema.Quote]
	metrics *obs.Metrics
}

// NewService creates an empty pricing service.
func NewService(metrics *obs.Metrics) *Service {
	return &Service{
		Store:   store.New(stageName, schema.Quote.Key),
		metrics: metrics,
	}
}

// OnMessage stores q and notifies all listeners.
func (s *Service) OnMessage(ctx context.Context, q schema.Quote) error {
	s.metrics.IncPublished(stageName)
	if err := s.Store.OnMessage(ctx, q); err != nil {
		s.metrics.IncListenerError(stageName)
		return err
	}
	return nil
}
