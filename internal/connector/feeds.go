package connector

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"bondpipe/internal/codec"
	"bondpipe/internal/pricing"
	"bondpipe/internal/schema"
	"bondpipe/pkg/exception"
)

// Feed names used in logs and metrics.
const (
	FeedPrices     = "prices"
	FeedMarketData = "marketdata"
	FeedTrades     = "trades"
	FeedInquiries  = "inquiries"
)

// Feed parses one comma separated line into a record.
type Feed[T any] struct {
	Name   string
	Fields int
	Parse  func(fields []string) (T, error)
}

// MarketDataRow is one resting order from the market data feed.
type MarketDataRow struct {
	Instrument schema.Instrument
	Order      schema.RestingOrder
}

// PriceFeed parses `instrumentId,bid,offer`.
func PriceFeed(reg *schema.Registry) Feed[schema.Quote] {
	return Feed[schema.Quote]{
		Name:   FeedPrices,
		Fields: 3,
		Parse: func(f []string) (schema.Quote, error) {
			inst, err := reg.Instrument(f[0])
			if err != nil {
				return schema.Quote{}, err
			}
			bid, err := price(f[1])
			if err != nil {
				return schema.Quote{}, err
			}
			offer, err := price(f[2])
			if err != nil {
				return schema.Quote{}, err
			}
			return pricing.NewQuote(inst, bid, offer)
		},
	}
}

// MarketDataFeed parses `instrumentId,price,quantity,BID|OFFER`.
func MarketDataFeed(reg *schema.Registry) Feed[MarketDataRow] {
	return Feed[MarketDataRow]{
		Name:   FeedMarketData,
		Fields: 4,
		Parse: func(f []string) (MarketDataRow, error) {
			inst, err := reg.Instrument(f[0])
			if err != nil {
				return MarketDataRow{}, err
			}
			p, err := price(f[1])
			if err != nil {
				return MarketDataRow{}, err
			}
			qty, err := quantity(f[2])
			if err != nil {
				return MarketDataRow{}, err
			}
			side, ok := schema.ParsePricingSide(f[3])
			if !ok {
				return MarketDataRow{}, errors.Wrapf(exception.ErrMalformedRecord, "side %q", f[3])
			}
			return MarketDataRow{
				Instrument: inst,
				Order:      schema.RestingOrder{Price: p, Quantity: qty, Side: side},
			}, nil
		},
	}
}

// TradeFeed parses `instrumentId,tradeId,price,book,quantity,BUY|SELL`.
func TradeFeed(reg *schema.Registry) Feed[schema.Trade] {
	return Feed[schema.Trade]{
		Name:   FeedTrades,
		Fields: 6,
		Parse: func(f []string) (schema.Trade, error) {
			inst, err := reg.Instrument(f[0])
			if err != nil {
				return schema.Trade{}, err
			}
			if f[1] == "" || f[3] == "" {
				return schema.Trade{}, errors.Wrap(exception.ErrMalformedRecord, "empty trade id or book")
			}
			p, err := price(f[2])
			if err != nil {
				return schema.Trade{}, err
			}
			qty, err := quantity(f[4])
			if err != nil {
				return schema.Trade{}, err
			}
			side, ok := schema.ParseTradeSide(f[5])
			if !ok {
				return schema.Trade{}, errors.Wrapf(exception.ErrMalformedRecord, "side %q", f[5])
			}
			return schema.Trade{
				Instrument: inst,
				TradeID:    f[1],
				Price:      p,
				Book:       f[3],
				Quantity:   qty,
				Side:       side,
			}, nil
		},
	}
}

// InquiryFeed parses `inquiryId,instrumentId,BUY|SELL,quantity,price,STATE`.
func InquiryFeed(reg *schema.Registry) Feed[schema.Inquiry] {
	return Feed[schema.Inquiry]{
		Name:   FeedInquiries,
		Fields: 6,
		Parse: func(f []string) (schema.Inquiry, error) {
			if f[0] == "" {
				return schema.Inquiry{}, errors.Wrap(exception.ErrMalformedRecord, "empty inquiry id")
			}
			inst, err := reg.Instrument(f[1])
			if err != nil {
				return schema.Inquiry{}, err
			}
			side, ok := schema.ParseTradeSide(f[2])
			if !ok {
				return schema.Inquiry{}, errors.Wrapf(exception.ErrMalformedRecord, "side %q", f[2])
			}
			qty, err := quantity(f[3])
			if err != nil {
				return schema.Inquiry{}, err
			}
			p, err := price(f[4])
			if err != nil {
				return schema.Inquiry{}, err
			}
			state, ok := schema.ParseInquiryState(f[5])
			if !ok {
				return schema.Inquiry{}, errors.Wrapf(exception.ErrMalformedRecord, "state %q", f[5])
			}
			return schema.Inquiry{
				ID:         f[0],
				Instrument: inst,
				Side:       side,
				Quantity:   qty,
				Price:      p,
				State:      state,
			}, nil
		},
	}
}

// ParseLine splits line and parses it with feed.
func (f Feed[T]) ParseLine(line string) (T, error) {
	var zero T
	fields := strings.Split(strings.TrimRight(line, "\r\n"), ",")
	for i := range fields {
		fields[i] = strings.TrimSpace(fields[i])
	}
	// archive style lines carry a trailing comma
	if len(fields) == f.Fields+1 && fields[f.Fields] == "" {
		fields = fields[:f.Fields]
	}
	if len(fields) != f.Fields {
		return zero, errors.Wrapf(exception.ErrMalformedRecord, "%s: want %d fields, got %d", f.Name, f.Fields, len(fields))
	}
	return f.Parse(fields)
}

func price(s string) (decimal.Decimal, error) {
	p, err := codec.ParsePrice(s)
	if err != nil {
		return p, errors.Wrapf(exception.ErrMalformedRecord, "price %q: %v", s, err)
	}
	if p.IsNegative() {
		return decimal.Zero, errors.Wrapf(exception.ErrMalformedRecord, "negative price %q", s)
	}
	return p, nil
}

func quantity(s string) (int64, error) {
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil || n < 0 {
		return 0, errors.Wrapf(exception.ErrMalformedRecord, "quantity %q", s)
	}
	return n, nil
}
