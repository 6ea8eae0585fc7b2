package marketdata

import (
	"context"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const stageName = "marketdata"

// Service keeps the latest order book per instrument and notifies every
// listener on each snapshot.
type Service struct {
	*store.Store[string, schema.OrderBook]
	metrics *obs.Metrics
}

// NewService creates an empty market data service.
func NewService(metrics *obs.Metrics) *Service {
	return &Service{
		Store:   store.New(stageName, schema.OrderBook.Key),
		metrics: metrics,
	}
}

// OnMessage stores book and notifies all listeners.
func (s *Service) OnMessage(ctx context.Context, book schema.OrderBook) error {
	s.metrics.IncPublished(stageName)
	if err := s.Store.OnMessage(ctx, book); err != nil {
		s.metrics.IncListenerError(stageName)
		return err
	}
	return nil
}

// BestBidOffer returns the best bid and offer of the stored book.
func (s *Service) BestBidOffer(id string) (schema.BidOffer, error) {
	book, err := s.Get(id)
	if err != nil {
		return schema.BidOffer{}, err
	}
	return BestBidOffer(book)
}

// AggregateDepth returns the stored book consolidated by price level.
func (s *Service) AggregateDepth(id string) (schema.OrderBook, error) {
	book, err := s.Get(id)
	if err != nil {
		return schema.OrderBook{}, err
	}
	return AggregateDepth(book), nil
}
