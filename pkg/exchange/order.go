package exchange

import "github.com/ethereum/go-ethereum/common"

// OrderStatus is the lifecycle state of an order
type OrderStatus int8

const (
	OrderOpen OrderStatus = iota
	OrderCancelled
	OrderFilled
)

func (s OrderStatus) String() string {
	switch s {
	case OrderOpen:
		return "open"
	case OrderCancelled:
		return "cancelled"
	case OrderFilled:
		return "filled"
	default:
		return "unknown"
	}
}

// Order is a standing offer: give AmountGive of TokenGive in exchange for
// AmountGet of TokenGet. Immutable after creation except the two lifecycle
// flags, which are mutually exclusive and terminal. Orders are never
// deleted from the table.
type Order struct {
	ID   int64          `json:"id"`   // 1-based, monotonically assigned, never reused
	User common.Address `json:"user"` // creator

	TokenGet   common.Address `json:"tokenGet"`
	AmountGet  int64          `json:"amountGet"`
	TokenGive  common.Address `json:"tokenGive"`
	AmountGive int64          `json:"amountGive"`

	Timestamp int64 `json:"timestamp"` // creation time, unix seconds

	Cancelled bool `json:"cancelled"`
	Filled    bool `json:"filled"`
}

func (o *Order) Status() OrderStatus {
	switch {
	case o.Cancelled:
		return OrderCancelled
	case o.Filled:
		return OrderFilled
	default:
		return OrderOpen
	}
}

// Finalized reports whether the order reached a terminal state.
func (o *Order) Finalized() bool {
	return o.Cancelled || o.Filled
}
