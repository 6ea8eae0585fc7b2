package inquiry

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bondpipe/internal/schema"
	"bondpipe/internal/store"
	"bondpipe/pkg/exception"
)

func newInquiry(id string, state schema.InquiryState) schema.Inquiry {
	return schema.Inquiry{
		ID:         id,
		Instrument: schema.Instrument{ID: "91282CJL6"},
		Side:       schema.TradeSideBuy,
		Quantity:   1_000_000,
		Price:      decimal.NewFromInt(100),
		State:      state,
	}
}

func recorder(s *Service) *[]schema.Inquiry {
	var got []schema.Inquiry
	s.AddListener(store.ListenerFunc[schema.Inquiry](func(_ context.Context, inq schema.Inquiry) error {
		got = append(got, inq)
		return nil
	}))
	return &got
}

func TestReceivedIsQuotedThenDone(t *testing.T) {
	var quotedSeen schema.InquiryState
	svc := NewService(QuoterFunc(func(ctx context.Context, inq schema.Inquiry) (schema.Inquiry, error) {
		quoted, err := EchoQuoter{}.Quote(ctx, inq)
		quotedSeen = quoted.State
		return quoted, err
	}), nil)
	got := recorder(svc)

	require.NoError(t, svc.OnMessage(context.Background(), newInquiry("INQ1", schema.InquiryStateReceived)))

	assert.Equal(t, schema.InquiryStateQuoted, quotedSeen)
	require.Len(t, *got, 1)
	assert.Equal(t, schema.InquiryStateDone, (*got)[0].State)

	stored, err := svc.Get("INQ1")
	require.NoError(t, err)
	assert.Equal(t, schema.InquiryStateDone, stored.State)
}

func TestQuotedFromFeedCompletes(t *testing.T) {
	svc := NewService(nil, nil)
	got := recorder(svc)

	require.NoError(t, svc.OnMessage(context.Background(), newInquiry("INQ2", schema.InquiryStateQuoted)))
	require.Len(t, *got, 1)
	assert.Equal(t, schema.InquiryStateDone, (*got)[0].State)
}

func TestTerminalStatesAreStoredSilently(t *testing.T) {
	svc := NewService(nil, nil)
	got := recorder(svc)
	ctx := context.Background()

	for _, st := range []schema.InquiryState{schema.InquiryStateDone, schema.InquiryStateRejected, schema.InquiryStateCustomerRejected} {
		inq := newInquiry("T"+st.String(), st)
		require.NoError(t, svc.OnMessage(ctx, inq))
		stored, err := svc.Get(inq.ID)
		require.NoError(t, err)
		assert.Equal(t, st, stored.State)
	}
	assert.Empty(t, *got)
}

func TestTerminalInquiryDoesNotReenter(t *testing.T) {
	svc := NewService(nil, nil)
	got := recorder(svc)
	ctx := context.Background()

	require.NoError(t, svc.OnMessage(ctx, newInquiry("INQ3", schema.InquiryStateReceived)))
	err := svc.OnMessage(ctx, newInquiry("INQ3", schema.InquiryStateReceived))
	require.ErrorIs(t, err, ErrInvalidTransition)
	err = svc.OnMessage(ctx, newInquiry("INQ3", schema.InquiryStateQuoted))
	require.ErrorIs(t, err, ErrInvalidTransition)
	assert.Len(t, *got, 1)
}

func TestRejectAndSendQuote(t *testing.T) {
	svc := NewService(nil, nil)
	got := recorder(svc)
	ctx := context.Background()

	// a quoter that never answers leaves the inquiry in RECEIVED
	failing := NewService(QuoterFunc(func(context.Context, schema.Inquiry) (schema.Inquiry, error) {
		return schema.Inquiry{}, errors.New("desk offline")
	}), nil)
	require.Error(t, failing.OnMessage(ctx, newInquiry("INQ4", schema.InquiryStateReceived)))
	stored, err := failing.Get("INQ4")
	require.NoError(t, err)
	assert.Equal(t, schema.InquiryStateReceived, stored.State)

	failingGot := recorder(failing)
	require.NoError(t, failing.SendQuote(ctx, "INQ4", decimal.RequireFromString("99.5")))
	require.Len(t, *failingGot, 1)
	assert.True(t, (*failingGot)[0].Price.Equal(decimal.RequireFromString("99.5")))
	assert.Equal(t, schema.InquiryStateReceived, (*failingGot)[0].State)

	require.NoError(t, failing.Reject("INQ4"))
	stored, err = failing.Get("INQ4")
	require.NoError(t, err)
	assert.Equal(t, schema.InquiryStateRejected, stored.State)
	assert.Len(t, *failingGot, 1)

	require.ErrorIs(t, failing.Reject("INQ4"), ErrInvalidTransition)
	require.ErrorIs(t, svc.Reject("missing"), ErrUnknownInquiry)
	require.ErrorIs(t, svc.SendQuote(ctx, "missing", decimal.Zero), ErrUnknownInquiry)
	assert.Empty(t, *got)
}

func TestSendQuoteRejectsOffGridPrices(t *testing.T) {
	svc := NewService(QuoterFunc(func(context.Context, schema.Inquiry) (schema.Inquiry, error) {
		return schema.Inquiry{}, errors.New("desk offline")
	}), nil)
	ctx := context.Background()
	require.Error(t, svc.OnMessage(ctx, newInquiry("INQ5", schema.InquiryStateReceived)))
	got := recorder(svc)

	require.ErrorIs(t, svc.SendQuote(ctx, "INQ5", decimal.RequireFromString("99.001")), exception.ErrInvalidArgument)
	require.ErrorIs(t, svc.SendQuote(ctx, "INQ5", decimal.RequireFromString("-99.5")), exception.ErrInvalidArgument)
	assert.Empty(t, *got)

	require.NoError(t, svc.SendQuote(ctx, "INQ5", decimal.RequireFromString("99.00390625")))
	require.Len(t, *got, 1)
}

func TestQuoterMustReturnQuoted(t *testing.T) {
	svc := NewService(QuoterFunc(func(_ context.Context, inq schema.Inquiry) (schema.Inquiry, error) {
		return inq, nil
	}), nil)
	err := svc.OnMessage(context.Background(), newInquiry("INQ5", schema.InquiryStateReceived))
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCheckTransition(t *testing.T) {
	require.NoError(t, checkTransition(schema.InquiryStateReceived, schema.InquiryStateQuoted))
	require.NoError(t, checkTransition(schema.InquiryStateReceived, schema.InquiryStateRejected))
	require.NoError(t, checkTransition(schema.InquiryStateQuoted, schema.InquiryStateDone))
	require.ErrorIs(t, checkTransition(schema.InquiryStateQuoted, schema.InquiryStateReceived), ErrInvalidTransition)
	require.ErrorIs(t, checkTransition(schema.InquiryStateDone, schema.InquiryStateQuoted), ErrInvalidTransition)
	require.ErrorIs(t, checkTransition(schema.InquiryStateReceived, schema.InquiryState(0)), ErrInvalidTransition)
}

func TestEmptyID(t *testing.T) {
	svc := NewService(nil, nil)
	require.ErrorIs(t, svc.OnMessage(context.Background(), newInquiry("", schema.InquiryStateReceived)), ErrEmptyInquiryID)
	assert.Zero(t, svc.Len())
}
