package schema

import (
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"bondpipe/internal/codec"
)

var two = decimal.NewFromInt(2)

// Instrument is a tradable treasury from the reference data table.
type Instrument struct {
	ID       string
	Ticker   string
	Tenor    int
	Coupon   decimal.Decimal
	Maturity time.Time
	PV01     decimal.Decimal
}

// Quote is the internal two-sided valuation of an instrument.
type Quote struct {
	Instrument Instrument
	Mid        decimal.Decimal
	Spread     decimal.Decimal
}

func (q Quote) Key() string { return q.Instrument.ID }

// Bid returns mid - spread/2.
func (q Quote) Bid() decimal.Decimal {
	return q.Mid.Sub(q.Spread.Div(two))
}

// Offer returns mid + spread/2.
func (q Quote) Offer() decimal.Decimal {
	return q.Mid.Add(q.Spread.Div(two))
}

func (q Quote) Fields() []string {
	return []string{q.Instrument.ID, codec.FormatPrice(q.Mid), codec.FormatPrice(q.Spread)}
}

// RestingOrder is one resting quantity at a price on one side of a book.
type RestingOrder struct {
	Price    decimal.Decimal
	Quantity int64
	Side     PricingSide
}

// BidOffer is the best bid and best offer of a book.
type BidOffer struct {
	Bid   RestingOrder
	Offer RestingOrder
}

// Spread returns offer price minus bid price.
func (b BidOffer) Spread() decimal.Decimal {
	return b.Offer.Price.Sub(b.Bid.Price)
}

// OrderBook is a snapshot of resting liquidity for one instrument.
type OrderBook struct {
	Instrument Instrument
	Bids       []RestingOrder
	Offers     []RestingOrder
}

func (b OrderBook) Key() string { return b.Instrument.ID }

// ExecutionOrder is an order routed for execution.
type ExecutionOrder struct {
	Instrument    Instrument
	Side          PricingSide
	OrderID       string
	Type          OrderType
	Price         decimal.Decimal
	VisibleQty    int64
	HiddenQty     int64
	ParentOrderID string
	IsChild       bool
}

func (o ExecutionOrder) Key() string { return o.Instrument.ID }

func (o ExecutionOrder) Fields() []string {
	child := "NO"
	if o.IsChild {
		child = "YES"
	}
	return []string{
		o.Instrument.ID,
		o.Side.String(),
		o.OrderID,
		o.Type.String(),
		codec.FormatPrice(o.Price),
		strconv.FormatInt(o.VisibleQty, 10),
		strconv.FormatInt(o.HiddenQty, 10),
		o.ParentOrderID,
		child,
	}
}

// AlgoExecution wraps the execution order decided by the algo engine.
type AlgoExecution struct {
	Order ExecutionOrder
}

func (a AlgoExecution) Key() string { return a.Order.Instrument.ID }

// Trade is a booked fill.
type Trade struct {
	Instrument Instrument
	TradeID    string
	Price      decimal.Decimal
	Book       string
	Quantity   int64
	Side       TradeSide
}

func (t Trade) Key() string { return t.TradeID }

// SignedQuantity is +Quantity for BUY and -Quantity for SELL.
func (t Trade) SignedQuantity() int64 {
	switch t.Side {
	case TradeSideBuy:
		return t.Quantity
	case TradeSideSell:
		return -t.Quantity
	default:
		return 0
	}
}

func (t Trade) Fields() []string {
	return []string{
		t.Instrument.ID,
		t.TradeID,
		codec.FormatPrice(t.Price),
		t.Book,
		strconv.FormatInt(t.Quantity, 10),
		t.Side.String(),
	}
}

// Position is the running holding of one instrument across books.
type Position struct {
	Instrument Instrument
	Books      map[string]int64
}

// NewPosition returns an empty position.
func NewPosition(inst Instrument) Position {
	return Position{Instrument: inst, Books: make(map[string]int64)}
}

func (p Position) Key() string { return p.Instrument.ID }

// Add applies a signed quantity to a book.
func (p *Position) Add(book string, qty int64) {
	if p.Books == nil {
		p.Books = make(map[string]int64)
	}
	p.Books[book] += qty
}

// Quantity returns the position held in book.
func (p Position) Quantity(book string) int64 {
	return p.Books[book]
}

// Aggregate returns the sum of all per-book quantities.
func (p Position) Aggregate() int64 {
	var sum int64
	for _, q := range p.Books {
		sum += q
	}
	return sum
}

// BookNames returns the books in lexical order.
func (p Position) BookNames() []string {
	names := make([]string, 0, len(p.Books))
	for name := range p.Books {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Clone returns a deep copy so the books map is not shared.
func (p Position) Clone() Position {
	out := Position{Instrument: p.Instrument, Books: make(map[string]int64, len(p.Books))}
	for k, v := range p.Books {
		out.Books[k] = v
	}
	return out
}

func (p Position) Fields() []string {
	fields := make([]string, 0, 1+2*len(p.Books))
	fields = append(fields, p.Instrument.ID)
	for _, book := range p.BookNames() {
		fields = append(fields, book, strconv.FormatInt(p.Books[book], 10))
	}
	return fields
}

// PV01 is the risk figure of an instrument or a bucketed sector.
type PV01 struct {
	Subject  string
	PV01     decimal.Decimal
	Quantity int64
}

func (r PV01) Key() string { return r.Subject }

// Value returns PV01 multiplied by quantity.
func (r PV01) Value() decimal.Decimal {
	return r.PV01.Mul(decimal.NewFromInt(r.Quantity))
}

func (r PV01) Fields() []string {
	return []string{r.Subject, r.PV01.String(), strconv.FormatInt(r.Quantity, 10)}
}

// Sector is a named group of instruments rolled up for risk.
type Sector struct {
	Name        string
	Instruments []Instrument
}

// PriceStreamOrder is one side of a two-way stream.
type PriceStreamOrder struct {
	Price      decimal.Decimal
	VisibleQty int64
	HiddenQty  int64
	Side       PricingSide
}

func (o PriceStreamOrder) Fields() []string {
	return []string{
		codec.FormatPrice(o.Price),
		strconv.FormatInt(o.VisibleQty, 10),
		strconv.FormatInt(o.HiddenQty, 10),
		o.Side.String(),
	}
}

// PriceStream is a two-way market for one instrument.
type PriceStream struct {
	Instrument Instrument
	Bid        PriceStreamOrder
	Offer      PriceStreamOrder
}

func (s PriceStream) Key() string { return s.Instrument.ID }

func (s PriceStream) Fields() []string {
	fields := []string{s.Instrument.ID}
	fields = append(fields, s.Bid.Fields()...)
	return append(fields, s.Offer.Fields()...)
}

// AlgoStream wraps the stream produced by the algo streaming engine.
type AlgoStream struct {
	Stream PriceStream
}

func (a AlgoStream) Key() string { return a.Stream.Instrument.ID }

// Inquiry is a customer price request.
type Inquiry struct {
	ID         string
	Instrument Instrument
	Side       TradeSide
	Quantity   int64
	Price      decimal.Decimal
	State      InquiryState
}

func (i Inquiry) Key() string { return i.ID }

func (i Inquiry) Fields() []string {
	return []string{
		i.ID,
		i.Instrument.ID,
		i.Side.String(),
		strconv.FormatInt(i.Quantity, 10),
		codec.FormatPrice(i.Price),
		i.State.String(),
	}
}
