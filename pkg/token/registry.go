// Package token is the trusted ledger of fungible assets the exchange
// moves value through. It carries ERC-20 transfer semantics: direct
// transfer, allowance-gated delegated transfer, and balance queries,
// keyed by opaque token addresses.
package token

import (
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
	"golang.org/x/crypto/sha3"
)

// Transferable is the capability the exchange core consumes. Every call
// either completes fully or fails with no side effects.
type Transferable interface {
	Transfer(token, from, to common.Address, amount int64) error
	TransferFrom(token, spender, from, to common.Address, amount int64) error
	BalanceOf(token, account common.Address) int64
	Allowance(token, owner, spender common.Address) int64
}

// Registry holds all deployed tokens behind a single lock so each ledger
// operation is atomic with respect to every other.
type Registry struct {
	mu     sync.RWMutex
	tokens map[common.Address]*Token
	log    *zap.SugaredLogger
}

func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		tokens: make(map[common.Address]*Token),
		log:    logger.Sugar(),
	}
}

// Deploy creates a token, mints the full supply to the deployer and
// returns the token's derived address.
func (r *Registry) Deploy(deployer common.Address, name, symbol string, supply int64) (common.Address, error) {
	if supply < 0 {
		return common.Address{}, fmt.Errorf("supply %d: %w", supply, ErrInvalidAmount)
	}

	addr := DeriveAddress(deployer, name, symbol)

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tokens[addr]; exists {
		return common.Address{}, fmt.Errorf("%s (%s): %w", name, addr.Hex(), ErrTokenExists)
	}
	r.tokens[addr] = newToken(addr, name, symbol, supply, deployer)

	r.log.Infow("token_deployed", "token", addr.Hex(), "symbol", symbol, "supply", supply)
	return addr, nil
}

// Get returns a token's static descriptor (address, name, symbol,
// decimals, supply). The live balance maps are not exposed.
func (r *Registry) Get(addr common.Address) (Token, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[addr]
	if !ok {
		return Token{}, fmt.Errorf("%s: %w", addr.Hex(), ErrUnknownToken)
	}
	return Token{Address: t.Address, Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals, TotalSupply: t.TotalSupply}, nil
}

// List returns descriptors for all deployed tokens.
func (r *Registry) List() []Token {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Token, 0, len(r.tokens))
	for _, t := range r.tokens {
		out = append(out, Token{Address: t.Address, Name: t.Name, Symbol: t.Symbol, Decimals: t.Decimals, TotalSupply: t.TotalSupply})
	}
	return out
}

func (r *Registry) Transfer(tok, from, to common.Address, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tok]
	if !ok {
		return fmt.Errorf("%s: %w", tok.Hex(), ErrUnknownToken)
	}
	return t.transfer(from, to, amount)
}

func (r *Registry) Approve(tok, owner, spender common.Address, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tok]
	if !ok {
		return fmt.Errorf("%s: %w", tok.Hex(), ErrUnknownToken)
	}
	return t.approve(owner, spender, amount)
}

func (r *Registry) TransferFrom(tok, spender, from, to common.Address, amount int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.tokens[tok]
	if !ok {
		return fmt.Errorf("%s: %w", tok.Hex(), ErrUnknownToken)
	}
	return t.transferFrom(spender, from, to, amount)
}

func (r *Registry) BalanceOf(tok, account common.Address) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[tok]
	if !ok {
		return 0
	}
	return t.balanceOf(account)
}

func (r *Registry) Allowance(tok, owner, spender common.Address) int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tokens[tok]
	if !ok {
		return 0
	}
	return t.allowance(owner, spender)
}

// DeriveAddress computes a token's address deterministically:
// keccak256(deployer || name || symbol), last 20 bytes. Same inputs
// always land on the same address, so redeploys are detectable.
func DeriveAddress(deployer common.Address, name, symbol string) common.Address {
	h := sha3.NewLegacyKeccak256()
	h.Write(deployer.Bytes())
	h.Write([]byte(name))
	h.Write([]byte(symbol))
	sum := h.Sum(nil)
	return common.BytesToAddress(sum[12:])
}
