package marketdata

import (
	"github.com/shopspring/decimal"
	"github.com/tidwall/btree"
	"github.com/yanun0323/errors"

	"bondpipe/internal/schema"
	"bondpipe/pkg/exception"
)

// BestBidOffer returns the highest bid and the lowest offer of book.
// On equal prices the first order in the stack wins.
func BestBidOffer(book schema.OrderBook) (schema.BidOffer, error) {
	if len(book.Bids) == 0 || len(book.Offers) == 0 {
		return schema.BidOffer{}, errors.Wrapf(exception.ErrEmptyBook, "instrument %s: bids=%d offers=%d",
			book.Instrument.ID, len(book.Bids), len(book.Offers))
	}

	bid := book.Bids[0]
	for _, o := range book.Bids[1:] {
		if o.Price.GreaterThan(bid.Price) {
			bid = o
		}
	}

	offer := book.Offers[0]
	for _, o := range book.Offers[1:] {
		if o.Price.LessThan(offer.Price) {
			offer = o
		}
	}

	return schema.BidOffer{Bid: bid, Offer: offer}, nil
}

type level struct {
	price decimal.Decimal
	qty   int64
}

func levelLess(a, b level) bool {
	return a.price.LessThan(b.price)
}

// AggregateDepth consolidates resting orders into one row per distinct price.
// Bids come out best first (descending) and offers best first (ascending).
func AggregateDepth(book schema.OrderBook) schema.OrderBook {
	return schema.OrderBook{
		Instrument: book.Instrument,
		Bids:       consolidate(book.Bids, schema.PricingSideBid, true),
		Offers:     consolidate(book.Offers, schema.PricingSideOffer, false),
	}
}

func consolidate(orders []schema.RestingOrder, side schema.PricingSide, descending bool) []schema.RestingOrder {
	if len(orders) == 0 {
		return nil
	}

	levels := btree.NewBTreeG[level](levelLess)
	for _, o := range orders {
		key := level{price: o.Price}
		if cur, ok := levels.Get(key); ok {
			cur.qty += o.Quantity
			levels.Set(cur)
			continue
		}
		levels.Set(level{price: o.Price, qty: o.Quantity})
	}

	out := make([]schema.RestingOrder, 0, levels.Len())
	collect := func(l level) bool {
		out = append(out, schema.RestingOrder{Price: l.price, Quantity: l.qty, Side: side})
		return true
	}
	if descending {
		levels.Reverse(collect)
	} else {
		levels.Scan(collect)
	}
	return out
}
