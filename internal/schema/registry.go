package schema

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/yanun0323/errors"

	"bondpipe/pkg/exception"
)

// Registry is the read-only reference data table. It is built once by
// NewRegistry and never mutated afterwards, so it may be shared freely.
type Registry struct {
	instruments []Instrument
	byID        map[string]int
	byTenor     map[int]int
}

// NewRegistry validates and indexes the given instruments.
func NewRegistry(instruments ...Instrument) (*Registry, error) {
	r := &Registry{
		instruments: make([]Instrument, 0, len(instruments)),
		byID:        make(map[string]int, len(instruments)),
		byTenor:     make(map[int]int, len(instruments)),
	}
	for _, inst := range instruments {
		if inst.ID == "" {
			return nil, errors.Wrap(exception.ErrInvalidArgument, "instrument id is empty")
		}
		if inst.Tenor <= 0 {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "instrument %s: tenor must be > 0", inst.ID)
		}
		if inst.PV01.IsNegative() {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "instrument %s: pv01 must be >= 0", inst.ID)
		}
		if _, ok := r.byID[inst.ID]; ok {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "instrument already exists: %s", inst.ID)
		}
		if _, ok := r.byTenor[inst.Tenor]; ok {
			return nil, errors.Wrapf(exception.ErrInvalidArgument, "tenor already exists: %d", inst.Tenor)
		}
		if inst.Ticker == "" {
			inst.Ticker = Ticker(inst.Tenor)
		}
		r.byID[inst.ID] = len(r.instruments)
		r.byTenor[inst.Tenor] = len(r.instruments)
		r.instruments = append(r.instruments, inst)
	}
	return r, nil
}

// Instrument returns the instrument by CUSIP.
func (r *Registry) Instrument(id string) (Instrument, error) {
	idx, ok := r.byID[id]
	if !ok {
		return Instrument{}, errors.Wrapf(exception.ErrUnknownInstrument, "id %q", id)
	}
	return r.instruments[idx], nil
}

// ByTenor returns the instrument with the given tenor in years.
func (r *Registry) ByTenor(tenor int) (Instrument, error) {
	idx, ok := r.byTenor[tenor]
	if !ok {
		return Instrument{}, errors.Wrapf(exception.ErrUnknownTenor, "tenor %d", tenor)
	}
	return r.instruments[idx], nil
}

// PV01 returns the PV01 sensitivity of an instrument.
func (r *Registry) PV01(id string) (decimal.Decimal, error) {
	inst, err := r.Instrument(id)
	if err != nil {
		return decimal.Zero, err
	}
	return inst.PV01, nil
}

// Len returns the number of instruments.
func (r *Registry) Len() int {
	return len(r.instruments)
}

// Instruments returns a copy of the table in registration order.
func (r *Registry) Instruments() []Instrument {
	out := make([]Instrument, len(r.instruments))
	copy(out, r.instruments)
	return out
}

// Ticker builds the "US<tenor>Y" ticker.
func Ticker(tenor int) string {
	return fmt.Sprintf("US%dY", tenor)
}

// DefaultInstruments is the on-the-run US treasury curve used by the simulation.
func DefaultInstruments() []Instrument {
	mk := func(id string, tenor int, coupon, pv01 string, y int, m time.Month, d int) Instrument {
		return Instrument{
			ID:       id,
			Ticker:   Ticker(tenor),
			Tenor:    tenor,
			Coupon:   decimal.RequireFromString(coupon),
			Maturity: time.Date(y, m, d, 0, 0, 0, 0, time.UTC),
			PV01:     decimal.RequireFromString(pv01),
		}
	}
	return []Instrument{
		mk("91282CJL6", 2, "0.04875", "0.01967211", 2025, time.November, 30),
		mk("91282CHY0", 3, "0.04625", "0.028849852", 2026, time.September, 15),
		mk("91282CHX2", 5, "0.04375", "0.048555605", 2028, time.August, 31),
		mk("91282CJM4", 7, "0.04375", "0.068303332", 2030, time.November, 30),
		mk("91282CJJ1", 10, "0.045", "0.08071955", 2033, time.November, 15),
		mk("912810TM0", 20, "0.04", "0.118325668", 2042, time.November, 30),
		mk("912810TL2", 30, "0.04", "0.185319634", 2052, time.November, 15),
	}
}

// DefaultRegistry builds a registry from DefaultInstruments.
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultInstruments()...)
	if err != nil {
		panic(err)
	}
	return r
}
