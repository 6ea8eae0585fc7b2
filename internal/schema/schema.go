package schema

// PricingSide is the side of a resting or streamed order.
type PricingSide uint8

const (
	_pricing_side_beg PricingSide = iota
	PricingSideBid
	PricingSideOffer
	_pricing_side_end
)

func (s PricingSide) IsAvailable() bool {
	return s > _pricing_side_beg && s < _pricing_side_end
}

func (s PricingSide) String() string {
	switch s {
	case PricingSideBid:
		return "BID"
	case PricingSideOffer:
		return "OFFER"
	default:
		return "UNKNOWN"
	}
}

// ParsePricingSide accepts BID or OFFER.
func ParsePricingSide(s string) (PricingSide, bool) {
	switch s {
	case "BID":
		return PricingSideBid, true
	case "OFFER":
		return PricingSideOffer, true
	default:
		return _pricing_side_beg, false
	}
}

// TradeSide is the direction of a booked trade or a customer inquiry.
type TradeSide uint8

const (
	_trade_side_beg TradeSide = iota
	TradeSideBuy
	TradeSideSell
	_trade_side_end
)

func (s TradeSide) IsAvailable() bool {
	return s > _trade_side_beg && s < _trade_side_end
}

func (s TradeSide) String() string {
	switch s {
	case TradeSideBuy:
		return "BUY"
	case TradeSideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// ParseTradeSide accepts BUY or SELL.
func ParseTradeSide(s string) (TradeSide, bool) {
	switch s {
	case "BUY":
		return TradeSideBuy, true
	case "SELL":
		return TradeSideSell, true
	default:
		return _trade_side_beg, false
	}
}

// OrderType FOK, IOC, MARKET, LIMIT, STOP
type OrderType uint8

const (
	_order_type_beg OrderType = iota
	OrderTypeFOK
	OrderTypeIOC
	OrderTypeMarket
	OrderTypeLimit
	OrderTypeStop
	_order_type_end
)

func (t OrderType) IsAvailable() bool {
	return t > _order_type_beg && t < _order_type_end
}

func (t OrderType) String() string {
	switch t {
	case OrderTypeFOK:
		return "FOK"
	case OrderTypeIOC:
		return "IOC"
	case OrderTypeMarket:
		return "MARKET"
	case OrderTypeLimit:
		return "LIMIT"
	case OrderTypeStop:
		return "STOP"
	default:
		return "UNKNOWN"
	}
}

// InquiryState tracks the lifecycle of a customer inquiry.
type InquiryState uint8

const (
	_inquiry_state_beg InquiryState = iota
	InquiryStateReceived
	InquiryStateQuoted
	InquiryStateDone
	InquiryStateRejected
	InquiryStateCustomerRejected
	_inquiry_state_end
)

func (s InquiryState) IsAvailable() bool {
	return s > _inquiry_state_beg && s < _inquiry_state_end
}

// IsTerminal reports whether no further transition may leave s.
func (s InquiryState) IsTerminal() bool {
	switch s {
	case InquiryStateDone, InquiryStateRejected, InquiryStateCustomerRejected:
		return true
	default:
		return false
	}
}

func (s InquiryState) String() string {
	switch s {
	case InquiryStateReceived:
		return "RECEIVED"
	case InquiryStateQuoted:
		return "QUOTED"
	case InquiryStateDone:
		return "DONE"
	case InquiryStateRejected:
		return "REJECTED"
	case InquiryStateCustomerRejected:
		return "CUSTOMER_REJECTED"
	default:
		return "UNKNOWN"
	}
}

// ParseInquiryState accepts the upper-case state names used on the inquiry feed.
func ParseInquiryState(s string) (InquiryState, bool) {
	for st := _inquiry_state_beg + 1; st < _inquiry_state_end; st++ {
		if st.String() == s {
			return st, true
		}
	}
	return _inquiry_state_beg, false
}
