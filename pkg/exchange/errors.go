package exchange

import "errors"

// Every failed operation returns one of these sentinels (wrapped with
// context); the call performs no partial mutation.
var (
	// ErrInsufficientBalance: an internal custodial balance is too low
	// for the requested debit.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrTransferFailed: the upstream token ledger rejected the pull or
	// push (allowance or external balance too low).
	ErrTransferFailed = errors.New("token transfer failed")

	// ErrNotFound: unknown order id.
	ErrNotFound = errors.New("order not found")

	// ErrUnauthorized: caller may not mutate the target order.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrAlreadyFinalized: the order is cancelled or filled, both terminal.
	ErrAlreadyFinalized = errors.New("order already finalized")

	// ErrInvalidAmount: negative amount, or zero where a real movement of
	// value is required (deposit/withdraw).
	ErrInvalidAmount = errors.New("invalid amount")
)
