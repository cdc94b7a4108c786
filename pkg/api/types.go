package api

// Request and response types for the REST endpoints. Addresses are
// 0x-prefixed hex, amounts int64 smallest units.

type TokenInfo struct {
	Address     string `json:"address"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	Decimals    uint8  `json:"decimals"`
	TotalSupply int64  `json:"totalSupply"`
}

type BalanceResponse struct {
	Token   string `json:"token"`
	User    string `json:"user"`
	Balance int64  `json:"balance"`
}

// MoveRequest is the body of POST /deposits and POST /withdrawals.
type MoveRequest struct {
	User   string `json:"user"`
	Token  string `json:"token"`
	Amount int64  `json:"amount"`
}

// OrderRequest is the body of POST /orders.
type OrderRequest struct {
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  int64  `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive int64  `json:"amountGive"`
}

// CallerRequest is the body of cancel and fill: the acting account.
type CallerRequest struct {
	User string `json:"user"`
}

type OrderInfo struct {
	ID         int64  `json:"id"`
	User       string `json:"user"`
	TokenGet   string `json:"tokenGet"`
	AmountGet  int64  `json:"amountGet"`
	TokenGive  string `json:"tokenGive"`
	AmountGive int64  `json:"amountGive"`
	Timestamp  int64  `json:"timestamp"`
	Status     string `json:"status"`
}

type ExchangeInfo struct {
	Address    string `json:"address"`
	FeeAccount string `json:"feeAccount"`
	FeePercent int64  `json:"feePercent"`
	OrderCount int64  `json:"orderCount"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
