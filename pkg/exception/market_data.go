package exception

import "github.com/yanun0323/errors"

var (
	ErrUnknownInstrument = errors.New("reference data: unknown instrument")
	ErrUnknownTenor      = errors.New("reference data: unknown tenor")
	ErrEmptyBook         = errors.New("market data: empty book side")
	ErrNegativeSpread    = errors.New("pricing: negative spread")
)
