package datagen

import (
	"bufio"
	"io"
	"math"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"bondpipe/internal/codec"
	"bondpipe/internal/schema"
)

// Fixed feed file names.
const (
	PricesFile     = "prices.txt"
	MarketDataFile = "marketdata.txt"
	TradesFile     = "trades.txt"
	InquiriesFile  = "inquiries.txt"
)

const (
	ticksPerPoint = 256
	levels        = 5
	idAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var volumes = [levels]int64{10_000_000, 20_000_000, 30_000_000, 40_000_000, 50_000_000}

// Sizes is the number of records generated per instrument.
type Sizes struct {
	Prices     int
	MarketData int
	Trades     int
	Inquiries  int
}

// DefaultSizes generates 10,000 prices and market data rows and 10 trades and
// inquiries per instrument.
func DefaultSizes() Sizes {
	return Sizes{Prices: 10_000, MarketData: 10_000, Trades: 10, Inquiries: 10}
}

// Generator creates synthetic feeds for every instrument of a registry.
// All prices are on the 1/256 grid.
type Generator struct {
	instruments []schema.Instrument
	rnd         *rand.Rand
	books       []string
}

// NewGenerator creates a generator seeded with seed.
func NewGenerator(reg *schema.Registry, seed int64) (*Generator, error) {
	if reg == nil || reg.Len() == 0 {
		return nil, errors.New("registry has no instruments")
	}
	return &Generator{
		instruments: reg.Instruments(),
		rnd:         rand.New(rand.NewPCG(uint64(seed), uint64(seed)^0x9e3779b97f4a7c15)),
		books:       []string{"TRSY1", "TRSY2", "TRSY3"},
	}, nil
}

// WritePrices writes n two-sided prices per instrument. Mids follow a sine
// wave around 100 with amplitude 1-2/256; spreads are 1/128 to 1/64.
func (g *Generator) WritePrices(w io.Writer, n int) error {
	bw := bufio.NewWriter(w)
	amplitude := 1.0 - 2.0/ticksPerPoint
	for _, inst := range g.instruments {
		for i := 0; i < n; i++ {
			mid := 100.0 + amplitude*math.Sin(float64(i)/ticksPerPoint*math.Pi/amplitude)
			midTicks := int64(math.Round(mid * ticksPerPoint))
			spread := 2 + g.rnd.Int64N(3)
			bid := midTicks - spread/2
			offer := bid + spread
			writeLine(bw, inst.ID, price(bid), price(offer))
		}
	}
	return bw.Flush()
}

// WriteMarketData writes n rows per instrument as books of five bid and five
// offer levels. The centre walks one tick at a time between 99+1/256 and
// 101-1/256; the top of book spread cycles through 2 to 5 ticks.
func (g *Generator) WriteMarketData(w io.Writer, n int) error {
	bw := bufio.NewWriter(w)
	low := int64(99*ticksPerPoint + 1)
	high := int64(101*ticksPerPoint - 1)
	for _, inst := range g.instruments {
		centre, up := low, true
		for i := 0; i < n/(2*levels); i++ {
			spread := int64(2 + i%4)
			topBid := centre - spread/2
			topOffer := topBid + spread
			for j := int64(0); j < levels; j++ {
				vol := strconv.FormatInt(volumes[j], 10)
				writeLine(bw, inst.ID, price(topBid-j), vol, schema.PricingSideBid.String())
				writeLine(bw, inst.ID, price(topOffer+j), vol, schema.PricingSideOffer.String())
			}
			switch centre {
			case high:
				up = false
			case low:
				up = true
			}
			if up {
				centre++
			} else {
				centre--
			}
		}
	}
	return bw.Flush()
}

// WriteTrades writes n trades per instrument alternating SELL and BUY with
// prices between 99 and 101 and books picked at random.
func (g *Generator) WriteTrades(w io.Writer, n int) error {
	bw := bufio.NewWriter(w)
	for _, inst := range g.instruments {
		for i := 0; i < n; i++ {
			p := price(99*ticksPerPoint + g.rnd.Int64N(2*ticksPerPoint))
			book := g.books[g.rnd.IntN(len(g.books))]
			writeLine(bw, inst.ID, g.id(12), p, book, strconv.FormatInt(volumes[i%levels], 10), side(i).String())
		}
	}
	return bw.Flush()
}

// WriteInquiries writes n inquiries per instrument in RECEIVED state.
func (g *Generator) WriteInquiries(w io.Writer, n int) error {
	bw := bufio.NewWriter(w)
	for _, inst := range g.instruments {
		for i := 0; i < n; i++ {
			p := price(99*ticksPerPoint + g.rnd.Int64N(2*ticksPerPoint))
			writeLine(bw, "INQ"+g.id(9), inst.ID, side(i).String(), strconv.FormatInt(volumes[i%levels], 10), p,
				schema.InquiryStateReceived.String())
		}
	}
	return bw.Flush()
}

// GenerateAll writes the four feed files into dir.
func (g *Generator) GenerateAll(dir string, sizes Sizes) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	jobs := []struct {
		file string
		n    int
		fn   func(io.Writer, int) error
	}{
		{PricesFile, sizes.Prices, g.WritePrices},
		{TradesFile, sizes.Trades, g.WriteTrades},
		{MarketDataFile, sizes.MarketData, g.WriteMarketData},
		{InquiriesFile, sizes.Inquiries, g.WriteInquiries},
	}
	for _, job := range jobs {
		path := filepath.Join(dir, job.file)
		if err := writeFile(path, job.n, job.fn); err != nil {
			return errors.Wrapf(err, "generate %s", path)
		}
		logs.Infof("generated %s, per instrument: %d, instruments: %d", path, job.n, len(g.instruments))
	}
	return nil
}

func writeFile(path string, n int, fn func(io.Writer, int) error) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := fn(f, n); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func (g *Generator) id(n int) string {
	var sb strings.Builder
	sb.Grow(n)
	for i := 0; i < n; i++ {
		sb.WriteByte(idAlphabet[g.rnd.IntN(len(idAlphabet))])
	}
	return sb.String()
}

func side(i int) schema.TradeSide {
	if i%2 == 1 {
		return schema.TradeSideBuy
	}
	return schema.TradeSideSell
}

func price(ticks int64) string {
	return codec.FormatPrice(codec.Ticks(ticks))
}

func writeLine(w *bufio.Writer, fields ...string) {
	w.WriteString(strings.Join(fields, ","))
	w.WriteByte('\n')
}
