package token

import "errors"

var (
	ErrUnknownToken          = errors.New("unknown token")
	ErrZeroAddress           = errors.New("zero address")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrTokenExists           = errors.New("token already deployed")
)
