package inquiry

import (
	"context"
	"errors"
	"sync"

	"github.com/shopspring/decimal"
	pkgerrors "github.com/yanun0323/errors"

	"bondpipe/internal/codec"
	"bondpipe/internal/obs"
	"bondpipe/internal/schema"
	"bondpipe/internal/store"
	"bondpipe/pkg/exception"
)

const stageName = "inquiry"

// Quoter is the quoting desk an inquiry in RECEIVED is forwarded to. It
// returns the inquiry in QUOTED and must not call back into the Service.
type Quoter interface {
	Quote(ctx context.Context, inq schema.Inquiry) (schema.Inquiry, error)
}

// QuoterFunc adapts a function to a Quoter.
type QuoterFunc func(ctx context.Context, inq schema.Inquiry) (schema.Inquiry, error)

func (f QuoterFunc) Quote(ctx context.Context, inq schema.Inquiry) (schema.Inquiry, error) {
	return f(ctx, inq)
}

// EchoQuoter quotes every inquiry at the price it arrived with.
type EchoQuoter struct{}

func (EchoQuoter) Quote(_ context.Context, inq schema.Inquiry) (schema.Inquiry, error) {
	inq.State = schema.InquiryStateQuoted
	return inq, nil
}

// Service runs the customer inquiry state machine.
//
//	RECEIVED -> (quoter) -> QUOTED -> DONE (notify)
//
// DONE, REJECTED and CUSTOMER_REJECTED are terminal. Terminal inquiries
// arriving from the feed are stored without notification.
type Service struct {
	quoter  Quoter
	store   *store.Store[string, schema.Inquiry]
	metrics *obs.Metrics

	mu sync.Mutex
}

// NewService creates an inquiry service. A nil quoter uses EchoQuoter.
func NewService(quoter Quoter, metrics *obs.Metrics) *Service {
	if quoter == nil {
		quoter = EchoQuoter{}
	}
	return &Service{
		quoter:  quoter,
		store:   store.New(stageName, schema.Inquiry.Key),
		metrics: metrics,
	}
}

// OnMessage applies an inquiry received from the feed.
func (s *Service) OnMessage(ctx context.Context, inq schema.Inquiry) error {
	if inq.ID == "" {
		return ErrEmptyInquiryID
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkStored(inq); err != nil {
		return err
	}

	switch inq.State {
	case schema.InquiryStateReceived:
		s.store.Upsert(inq)
		quoted, err := s.quoter.Quote(ctx, inq)
		if err != nil {
			return pkgerrors.Wrapf(err, "quote inquiry %s", inq.ID)
		}
		if quoted.ID != inq.ID || quoted.State != schema.InquiryStateQuoted {
			return pkgerrors.Wrapf(ErrInvalidTransition, "quoter returned %s in %s", quoted.ID, quoted.State)
		}
		s.store.Upsert(quoted)
		return s.complete(ctx, quoted)
	case schema.InquiryStateQuoted:
		return s.complete(ctx, inq)
	default:
		s.store.Upsert(inq)
		return nil
	}
}

// complete moves a quoted inquiry to DONE, stores it and notifies listeners.
func (s *Service) complete(ctx context.Context, inq schema.Inquiry) error {
	inq.State = schema.InquiryStateDone
	s.metrics.IncPublished(stageName)
	if err := s.store.OnMessage(ctx, inq); err != nil {
		s.metrics.IncListenerError(stageName)
		return err
	}
	return nil
}

func (s *Service) checkStored(inq schema.Inquiry) error {
	stored, err := s.store.Get(inq.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if !inq.State.IsAvailable() {
				return pkgerrors.Wrapf(ErrInvalidTransition, "inquiry %s: state %s", inq.ID, inq.State)
			}
			return nil
		}
		return err
	}
	if err := checkTransition(stored.State, inq.State); err != nil {
		return pkgerrors.Wrapf(err, "inquiry %s: %s -> %s", inq.ID, stored.State, inq.State)
	}
	return nil
}

// SendQuote sets the price of a live inquiry and notifies listeners. The
// price must be non-negative and on the 1/256 grid.
func (s *Service) SendQuote(ctx context.Context, id string, price decimal.Decimal) error {
	if price.IsNegative() || !codec.OnGrid(price) {
		return pkgerrors.Wrapf(exception.ErrInvalidArgument, "quote %s for inquiry %s", price, id)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	inq, err := s.live(id)
	if err != nil {
		return err
	}
	inq.Price = price
	s.metrics.IncPublished(stageName)
	if err := s.store.OnMessage(ctx, inq); err != nil {
		s.metrics.IncListenerError(stageName)
		return err
	}
	return nil
}

// Reject cancels a live inquiry. Listeners are not notified.
func (s *Service) Reject(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	inq, err := s.live(id)
	if err != nil {
		return err
	}
	inq.State = schema.InquiryStateRejected
	s.store.Upsert(inq)
	return nil
}

func (s *Service) live(id string) (schema.Inquiry, error) {
	inq, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return schema.Inquiry{}, pkgerrors.Wrapf(ErrUnknownInquiry, "inquiry %s", id)
		}
		return schema.Inquiry{}, err
	}
	if inq.State.IsTerminal() {
		return schema.Inquiry{}, pkgerrors.Wrapf(ErrInvalidTransition, "inquiry %s is %s", id, inq.State)
	}
	return inq, nil
}

// Get returns an inquiry by id.
func (s *Service) Get(id string) (schema.Inquiry, error) {
	return s.store.Get(id)
}

// Len returns the number of known inquiries.
func (s *Service) Len() int {
	return s.store.Len()
}

func (s *Service) AddListener(l store.Listener[schema.Inquiry]) {
	s.store.AddListener(l)
}

func (s *Service) Listeners() []store.Listener[schema.Inquiry] {
	return s.store.Listeners()
}
