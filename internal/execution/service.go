package execution

import (
	"context"

	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
)

const stageName = "execution"

// Service republishes execution orders decided by the algo engine to trade
// booking and the executions archive.
type Service struct {
	store   *store.Store[string, schema.ExecutionOrder]
	metrics *obs.Metrics
}

// NewService creates an empty execution service.
func NewService(metrics *obs.Metrics) *Service {
	return &Service{
		store:   store.New(stageName, schema.ExecutionOrder.Key),
		metrics: metrics,
	}
}

// OnAdd unwraps an algo execution and executes its order.
func (s *Service) OnAdd(ctx context.Context, algo schema.AlgoExecution) error {
	s.store.Upsert(algo.Order)
	return s.ExecuteOrder(ctx, algo.Order)
}

// ExecuteOrder notifies every listener with order.
func (s *Service) ExecuteOrder(ctx context.Context, order schema.ExecutionOrder) error {
	s.metrics.IncPublished(stageName)
	if err := s.store.Publish(ctx, order); err != nil {
		s.metrics.IncListenerError(stageName)
		return err
	}
	return nil
}

// Get returns the latest order executed for an instrument.
func (s *Service) Get(id string) (schema.ExecutionOrder, error) {
	return s.store.Get(id)
}

func (s *Service) AddListener(l store.Listener[schema.ExecutionOrder]) {
	s.store.AddListener(l)
}

func (s *Service) Listeners() []store.Listener[schema.ExecutionOrder] {
	return s.store.Listeners()
}
