package codec

import (
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"
)

// Fractional bond prices are quoted as "<handle>-<32nds><eighths>", e.g. "99-16+"
// is 99 + 16/32 + 1/64 and "100-047" is 100 + 4/32 + 7/256.

var (
	ErrInvalidPrice = errors.New("invalid fractional price")

	twoFiftySix = decimal.NewFromInt(256)
)

// Tick is the smallest representable price increment, 1/256.
var Tick = decimal.NewFromInt(1).Div(twoFiftySix)

// ParsePrice decodes a fractional bond price. A leading '-' negates it, so
// every FormatPrice output parses back.
func ParsePrice(s string) (decimal.Decimal, error) {
	body := strings.TrimSpace(s)
	neg := strings.HasPrefix(body, "-")
	if neg {
		body = body[1:]
	}
	handle, frac, ok := strings.Cut(body, "-")
	if !ok || handle == "" || len(frac) != 3 {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "parse %q", s)
	}

	whole, err := strconv.ParseInt(handle, 10, 64)
	if err != nil || whole < 0 {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "parse handle %q", s)
	}

	xy, err := strconv.Atoi(frac[:2])
	if err != nil || xy < 0 || xy > 31 {
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "parse 32nds %q", s)
	}

	var z int
	switch c := frac[2]; {
	case c == '+':
		z = 4
	case c >= '0' && c <= '7':
		z = int(c - '0')
	default:
		return decimal.Zero, errors.Wrapf(ErrInvalidPrice, "parse eighths %q", s)
	}

	ticks := whole*256 + int64(xy)*8 + int64(z)
	if neg {
		ticks = -ticks
	}
	return decimal.NewFromInt(ticks).Div(twoFiftySix), nil
}

// FormatPrice encodes p in fractional notation. Values between grid points are
// truncated to the 1/256 tick towards zero.
func FormatPrice(p decimal.Decimal) string {
	if p.IsNegative() {
		return "-" + FormatPrice(p.Neg())
	}

	ticks := p.Mul(twoFiftySix).Floor().IntPart()
	whole := ticks / 256
	rem := ticks % 256
	xy := rem / 8
	z := rem % 8

	var b strings.Builder
	b.WriteString(strconv.FormatInt(whole, 10))
	b.WriteByte('-')
	if xy < 10 {
		b.WriteByte('0')
	}
	b.WriteString(strconv.FormatInt(xy, 10))
	if z == 4 {
		b.WriteByte('+')
	} else {
		b.WriteString(strconv.FormatInt(z, 10))
	}
	return b.String()
}

// OnGrid reports whether p is an exact multiple of Tick.
func OnGrid(p decimal.Decimal) bool {
	return p.Mul(twoFiftySix).IsInteger()
}

// Ticks converts a count of 256ths into a price.
func Ticks(n int64) decimal.Decimal {
	return decimal.NewFromInt(n).Div(twoFiftySix)
}
