package streaming

import (
	"context"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const stageName = "streaming"

// Service republishes two-way streams produced by the algo streaming engine.
type Service struct {
	store   *store.Store[string, schema.PriceStream]
	metrics *obs.Metrics
}

// NewService creates an empty streaming service.
func NewService(metrics *obs.Metrics) *Service {
	return &Service{
		store:   store.New(stageName, schema.PriceStream.Key),
		metrics: metrics,
	}
}

// OnAdd unwraps an algo stream and publishes its price stream.
func (s *Service) OnAdd(ctx context.Context, algo schema.AlgoStream) error {
	s.store.Upsert(algo.Stream)
	return s.PublishPrice(ctx, algo.Stream)
}

// PublishPrice notifies every listener with stream.
func (s *Service) PublishPrice(ctx context.Context, stream schema.PriceStream) error {
	s.metrics.IncPublished(stageName)
	if err := s.store.Publish(ctx, stream); err != nil {
		s.metrics.IncListenerError(stageName)
		return err
	}
	return nil
}

// Get returns the latest stream for an instrument.
func (s *Service) Get(id string) (schema.PriceStream, error) {
	return s.store.Get(id)
}

func (s *Service) AddListener(l store.Listener[schema.PriceStream]) {
	s.store.AddListener(l)
}

func (s *Service) Listeners() []store.Listener[schema.PriceStream] {
	return s.store.Listeners()
}
