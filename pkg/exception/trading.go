package exception

import "github.com/yanun0323/errors"

var (
	ErrInvalidQuantity = errors.New("trading: invalid quantity")
	ErrUnknownSide     = errors.New("trading: unknown side")
)
