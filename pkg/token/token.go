package token

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

// Token is one fungible asset class tracked by the ledger.
// All amounts are int64 in the token's smallest indivisible unit
// (Decimals only affects display, never arithmetic).
type Token struct {
	Address     common.Address
	Name        string
	Symbol      string
	Decimals    uint8
	TotalSupply int64

	balances   map[common.Address]int64
	allowances map[common.Address]map[common.Address]int64 // owner → spender → amount
}

func newToken(addr common.Address, name, symbol string, supply int64, deployer common.Address) *Token {
	t := &Token{
		Address:     addr,
		Name:        name,
		Symbol:      symbol,
		Decimals:    18,
		TotalSupply: supply,
		balances:    make(map[common.Address]int64),
		allowances:  make(map[common.Address]map[common.Address]int64),
	}
	// Entire supply is minted to the deployer.
	t.balances[deployer] = supply
	return t
}

func (t *Token) balanceOf(account common.Address) int64 {
	return t.balances[account]
}

func (t *Token) allowance(owner, spender common.Address) int64 {
	return t.allowances[owner][spender]
}

func (t *Token) approve(owner, spender common.Address, amount int64) error {
	if spender == (common.Address{}) {
		return fmt.Errorf("approve spender %s: %w", spender.Hex(), ErrZeroAddress)
	}
	if amount < 0 {
		return fmt.Errorf("approve amount %d: %w", amount, ErrInvalidAmount)
	}
	if t.allowances[owner] == nil {
		t.allowances[owner] = make(map[common.Address]int64)
	}
	t.allowances[owner][spender] = amount
	return nil
}

// transfer moves value between two accounts. No side effects on failure.
func (t *Token) transfer(from, to common.Address, amount int64) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transfer to %s: %w", to.Hex(), ErrZeroAddress)
	}
	if amount < 0 {
		return fmt.Errorf("transfer amount %d: %w", amount, ErrInvalidAmount)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("transfer %d %s from %s (balance %d): %w",
			amount, t.Symbol, from.Hex(), t.balances[from], ErrInsufficientFunds)
	}
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}

// transferFrom is the delegated path: spender moves value out of owner's
// balance against a prior approval. Allowance is decremented before the
// move, both checks pass or nothing changes.
func (t *Token) transferFrom(spender, from, to common.Address, amount int64) error {
	if to == (common.Address{}) {
		return fmt.Errorf("transferFrom to %s: %w", to.Hex(), ErrZeroAddress)
	}
	if amount < 0 {
		return fmt.Errorf("transferFrom amount %d: %w", amount, ErrInvalidAmount)
	}
	if t.allowances[from][spender] < amount {
		return fmt.Errorf("transferFrom %d %s by %s (allowance %d): %w",
			amount, t.Symbol, spender.Hex(), t.allowances[from][spender], ErrInsufficientAllowance)
	}
	if t.balances[from] < amount {
		return fmt.Errorf("transferFrom %d %s from %s (balance %d): %w",
			amount, t.Symbol, from.Hex(), t.balances[from], ErrInsufficientFunds)
	}
	t.allowances[from][spender] -= amount
	t.balances[from] -= amount
	t.balances[to] += amount
	return nil
}
