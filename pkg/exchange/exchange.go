// Package exchange implements the custodial core: a per-(token, account)
// balance ledger backed by an external token ledger, an append-only order
// table with an open → cancelled|filled lifecycle, a fixed fee policy and
// an ordered audit event feed. Every mutating operation is serialized and
// all-or-nothing.
package exchange

import (
	"fmt"
	"math"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/uhyunpark/custodex/pkg/token"
	"github.com/uhyunpark/custodex/pkg/util"
)

// BalanceKey identifies one custodial balance entry.
type BalanceKey struct {
	Token common.Address
	User  common.Address
}

// BalanceEntry is one (token, user) balance value, as journaled.
type BalanceEntry struct {
	Token  common.Address
	User   common.Address
	Amount int64
}

// Mutation is the full durable effect of one successful operation:
// the balance entries it touched (final values), the order it created or
// finalized, the counter after the operation and the emitted event.
// A Journal must commit all of it atomically.
type Mutation struct {
	Balances   []BalanceEntry
	Order      *Order
	OrderCount int64
	Event      *Event
}

// Journal persists mutations. The pebble store implements it; tests run
// without one.
type Journal interface {
	Commit(m Mutation) error
}

// Snapshot is the persisted state replayed into a fresh exchange on
// startup.
type Snapshot struct {
	Balances   map[BalanceKey]int64
	Orders     map[int64]*Order
	OrderCount int64
	Events     []Event
}

// Options configures an exchange instance. FeeAccount and FeePercent are
// fixed for the lifetime of the instance.
type Options struct {
	Address    common.Address     // the exchange's own custody account on the token ledger
	FeeAccount common.Address
	FeePercent int64              // integer percent of AmountGet, charged to the filler
	Ledger     token.Transferable
	Clock      util.Clock         // defaults to RealClock
	Logger     *zap.Logger        // defaults to no-op
	Journal    Journal            // optional durability
}

// Exchange owns the balance map and order table exclusively. A single
// mutex serializes all mutating operations so no intermediate state is
// ever observable.
type Exchange struct {
	mu sync.RWMutex

	addr       common.Address
	feeAccount common.Address
	feePercent int64

	ledger  token.Transferable
	clock   util.Clock
	journal Journal
	log     *zap.SugaredLogger

	balances   map[BalanceKey]int64
	orders     map[int64]*Order
	orderCount int64

	feed *Feed
}

func New(opts Options) (*Exchange, error) {
	if opts.Ledger == nil {
		return nil, fmt.Errorf("exchange: token ledger is required")
	}
	if opts.FeePercent < 0 || opts.FeePercent > 100 {
		return nil, fmt.Errorf("exchange: fee percent %d out of range", opts.FeePercent)
	}
	if opts.Clock == nil {
		opts.Clock = util.RealClock{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Exchange{
		addr:       opts.Address,
		feeAccount: opts.FeeAccount,
		feePercent: opts.FeePercent,
		ledger:     opts.Ledger,
		clock:      opts.Clock,
		journal:    opts.Journal,
		log:        opts.Logger.Sugar(),
		balances:   make(map[BalanceKey]int64),
		orders:     make(map[int64]*Order),
		feed:       NewFeed(),
	}, nil
}

// Restore loads a journal snapshot. Must be called before the exchange
// starts serving operations.
func (ex *Exchange) Restore(snap Snapshot) {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	for k, v := range snap.Balances {
		ex.balances[k] = v
	}
	for id, o := range snap.Orders {
		c := *o
		ex.orders[id] = &c
	}
	ex.orderCount = snap.OrderCount
	ex.feed.restore(snap.Events)
}

// Address returns the exchange's custody account on the token ledger.
func (ex *Exchange) Address() common.Address { return ex.addr }

// FeeAccount returns the fixed fee recipient.
func (ex *Exchange) FeeAccount() common.Address { return ex.feeAccount }

// FeePercent returns the fixed fee percentage.
func (ex *Exchange) FeePercent() int64 { return ex.feePercent }

// Feed exposes the audit event log.
func (ex *Exchange) Feed() *Feed { return ex.feed }

// BalanceOf returns the custodial balance for (token, user), 0 for
// unknown pairs. Reading never creates an entry.
func (ex *Exchange) BalanceOf(tok, user common.Address) int64 {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.balances[BalanceKey{tok, user}]
}

// DepositToken pulls amount of tok from user via delegated transfer
// (user must have approved the exchange on the token ledger first) and
// credits the internal balance. Fails with ErrTransferFailed if the pull
// fails, in which case nothing changes.
func (ex *Exchange) DepositToken(user, tok common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("deposit %d: %w", amount, ErrInvalidAmount)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.balances[BalanceKey{tok, user}] > math.MaxInt64-amount {
		return fmt.Errorf("deposit %d would overflow balance: %w", amount, ErrInvalidAmount)
	}

	// Pull custody first: credit only what the ledger actually moved.
	if err := ex.ledger.TransferFrom(tok, ex.addr, user, ex.addr, amount); err != nil {
		return fmt.Errorf("deposit pull: %v: %w", err, ErrTransferFailed)
	}

	newBalance := ex.balances[BalanceKey{tok, user}] + amount
	ev := Event{
		Kind:    EventDeposit,
		Token:   tok,
		User:    user,
		Amount:  amount,
		Balance: newBalance,
		Seq:     int64(ex.feed.Len()) + 1,
	}
	mut := Mutation{
		Balances:   []BalanceEntry{{tok, user, newBalance}},
		OrderCount: ex.orderCount,
		Event:      &ev,
	}
	if err := ex.commit(mut); err != nil {
		// Return custody so internal and external state stay consistent.
		if rbErr := ex.ledger.Transfer(tok, ex.addr, user, amount); rbErr != nil {
			ex.log.Errorw("deposit_rollback_failed", "token", tok.Hex(), "user", user.Hex(), "err", rbErr)
		}
		return err
	}

	ex.balances[BalanceKey{tok, user}] = newBalance
	ex.feed.append(ev)
	ex.log.Infow("deposit", "token", tok.Hex(), "user", user.Hex(), "amount", amount, "balance", newBalance)
	return nil
}

// WithdrawToken debits the internal balance and pushes amount of tok
// back to user on the token ledger. The debit and the push form one
// atomic unit: a push failure rolls the debit back and returns
// ErrTransferFailed.
func (ex *Exchange) WithdrawToken(user, tok common.Address, amount int64) error {
	if amount <= 0 {
		return fmt.Errorf("withdraw %d: %w", amount, ErrInvalidAmount)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()

	key := BalanceKey{tok, user}
	if ex.balances[key] < amount {
		return fmt.Errorf("withdraw %d (balance %d): %w", amount, ex.balances[key], ErrInsufficientBalance)
	}

	if err := ex.ledger.Transfer(tok, ex.addr, user, amount); err != nil {
		return fmt.Errorf("withdraw push: %v: %w", err, ErrTransferFailed)
	}

	newBalance := ex.balances[key] - amount
	ev := Event{
		Kind:    EventWithdraw,
		Token:   tok,
		User:    user,
		Amount:  amount,
		Balance: newBalance,
		Seq:     int64(ex.feed.Len()) + 1,
	}
	mut := Mutation{
		Balances:   []BalanceEntry{{tok, user, newBalance}},
		OrderCount: ex.orderCount,
		Event:      &ev,
	}
	if err := ex.commit(mut); err != nil {
		return err
	}

	ex.balances[key] = newBalance
	ex.feed.append(ev)
	ex.log.Infow("withdraw", "token", tok.Hex(), "user", user.Hex(), "amount", amount, "balance", newBalance)
	return nil
}

// MakeOrder records a new open order. The creator must currently hold
// AmountGive of TokenGive in custody, but the balance is not escrowed:
// a later withdrawal can make the order unfillable, and a fill against
// it then fails cleanly. Zero amounts are accepted (a no-op trade).
func (ex *Exchange) MakeOrder(user, tokenGet common.Address, amountGet int64, tokenGive common.Address, amountGive int64) (*Order, error) {
	if amountGet < 0 || amountGive < 0 {
		return nil, fmt.Errorf("order amounts %d/%d: %w", amountGet, amountGive, ErrInvalidAmount)
	}
	// An order whose fill could never be settled without the fee
	// arithmetic overflowing is rejected up front.
	if _, ok := ex.feeOn(amountGet); !ok {
		return nil, fmt.Errorf("order get %d overflows fee arithmetic: %w", amountGet, ErrInvalidAmount)
	}

	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.balances[BalanceKey{tokenGive, user}] < amountGive {
		return nil, fmt.Errorf("make order: give %d (balance %d): %w",
			amountGive, ex.balances[BalanceKey{tokenGive, user}], ErrInsufficientBalance)
	}

	o := &Order{
		ID:         ex.orderCount + 1,
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
		Timestamp:  ex.clock.Now().Unix(),
	}
	ev := Event{
		Kind:       EventOrder,
		ID:         o.ID,
		User:       user,
		TokenGet:   tokenGet,
		AmountGet:  amountGet,
		TokenGive:  tokenGive,
		AmountGive: amountGive,
		Timestamp:  o.Timestamp,
		Seq:        int64(ex.feed.Len()) + 1,
	}
	mut := Mutation{
		Order:      o,
		OrderCount: o.ID,
		Event:      &ev,
	}
	if err := ex.commit(mut); err != nil {
		return nil, err
	}

	ex.orderCount = o.ID
	ex.orders[o.ID] = o
	ex.feed.append(ev)
	ex.log.Infow("order_created", "id", o.ID, "user", user.Hex(),
		"tokenGet", tokenGet.Hex(), "amountGet", amountGet,
		"tokenGive", tokenGive.Hex(), "amountGive", amountGive)
	out := *o
	return &out, nil
}

// CancelOrder finalizes an open order. Only the creator may cancel, and
// only once; cancellation is irreversible.
func (ex *Exchange) CancelOrder(caller common.Address, id int64) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	o, ok := ex.orders[id]
	if !ok {
		return fmt.Errorf("cancel order %d: %w", id, ErrNotFound)
	}
	if o.User != caller {
		return fmt.Errorf("cancel order %d by %s: %w", id, caller.Hex(), ErrUnauthorized)
	}
	if o.Finalized() {
		return fmt.Errorf("cancel order %d (%s): %w", id, o.Status(), ErrAlreadyFinalized)
	}

	cancelled := *o
	cancelled.Cancelled = true
	ev := Event{
		Kind:       EventCancel,
		ID:         o.ID,
		User:       o.User,
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Timestamp:  ex.clock.Now().Unix(),
		Seq:        int64(ex.feed.Len()) + 1,
	}
	mut := Mutation{
		Order:      &cancelled,
		OrderCount: ex.orderCount,
		Event:      &ev,
	}
	if err := ex.commit(mut); err != nil {
		return err
	}

	o.Cancelled = true
	ex.feed.append(ev)
	ex.log.Infow("order_cancelled", "id", id, "user", caller.Hex())
	return nil
}

// FillOrder settles an open order between its creator and the caller.
// The caller pays AmountGet plus the fee in TokenGet and receives
// AmountGive of TokenGive; the creator receives the full AmountGet; the
// fee recipient receives the fee. Self-fills are permitted. Settlement
// is all-or-nothing: on any insufficient balance the order stays open
// and no balance changes.
func (ex *Exchange) FillOrder(caller common.Address, id int64) error {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	o, ok := ex.orders[id]
	if !ok {
		return fmt.Errorf("fill order %d: %w", id, ErrNotFound)
	}
	if o.Finalized() {
		return fmt.Errorf("fill order %d (%s): %w", id, o.Status(), ErrAlreadyFinalized)
	}

	// Fee is charged to the filler, in the token the filler acquires the
	// right to receive payment in. Integer division truncates. Orders
	// restored from an older journal may predate the MakeOrder guard,
	// so the overflow check repeats here.
	fee, ok := ex.feeOn(o.AmountGet)
	if !ok {
		return fmt.Errorf("fill order %d: get %d overflows fee arithmetic: %w", id, o.AmountGet, ErrInvalidAmount)
	}

	// Settlement runs against an overlay so aliasing (self-fill, same
	// token on both legs) resolves exactly as sequential application
	// would, and a late failure discards everything.
	st := ex.stage()
	if !st.debit(o.TokenGet, caller, o.AmountGet+fee) {
		return fmt.Errorf("fill order %d: filler owes %d (balance %d): %w",
			id, o.AmountGet+fee, st.get(o.TokenGet, caller), ErrInsufficientBalance)
	}
	if !st.credit(o.TokenGet, o.User, o.AmountGet) ||
		!st.credit(o.TokenGet, ex.feeAccount, fee) {
		return fmt.Errorf("fill order %d: credit of %d overflows a balance: %w", id, o.AmountGet, ErrInvalidAmount)
	}
	if !st.debit(o.TokenGive, o.User, o.AmountGive) {
		// Creator withdrew the backing balance after listing. The order
		// stays open so it can be retried once the creator tops up.
		return fmt.Errorf("fill order %d: creator owes %d (balance %d): %w",
			id, o.AmountGive, st.get(o.TokenGive, o.User), ErrInsufficientBalance)
	}
	if !st.credit(o.TokenGive, caller, o.AmountGive) {
		return fmt.Errorf("fill order %d: credit of %d overflows a balance: %w", id, o.AmountGive, ErrInvalidAmount)
	}

	filled := *o
	filled.Filled = true
	ev := Event{
		Kind:       EventTrade,
		ID:         o.ID,
		User:       caller, // filler
		TokenGet:   o.TokenGet,
		AmountGet:  o.AmountGet,
		TokenGive:  o.TokenGive,
		AmountGive: o.AmountGive,
		Creator:    o.User,
		Timestamp:  ex.clock.Now().Unix(),
		Seq:        int64(ex.feed.Len()) + 1,
	}
	mut := Mutation{
		Balances:   st.entries(),
		Order:      &filled,
		OrderCount: ex.orderCount,
		Event:      &ev,
	}
	if err := ex.commit(mut); err != nil {
		return err
	}

	st.apply()
	o.Filled = true
	ex.feed.append(ev)
	ex.log.Infow("order_filled", "id", id, "filler", caller.Hex(), "creator", o.User.Hex(), "fee", fee)
	return nil
}

// Order returns a copy of the order with the given id.
func (ex *Exchange) Order(id int64) (Order, error) {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	o, ok := ex.orders[id]
	if !ok {
		return Order{}, fmt.Errorf("order %d: %w", id, ErrNotFound)
	}
	return *o, nil
}

// Orders returns a copy of every order ever created, ascending by id.
func (ex *Exchange) Orders() []Order {
	ex.mu.RLock()
	defer ex.mu.RUnlock()

	out := make([]Order, 0, len(ex.orders))
	for id := int64(1); id <= ex.orderCount; id++ {
		if o, ok := ex.orders[id]; ok {
			out = append(out, *o)
		}
	}
	return out
}

// OrderCount returns the number of orders ever created.
func (ex *Exchange) OrderCount() int64 {
	ex.mu.RLock()
	defer ex.mu.RUnlock()
	return ex.orderCount
}

// feeOn computes the fill fee on amount. ok is false when the
// multiplication, or the filler's amount+fee debit, would exceed int64
// range.
func (ex *Exchange) feeOn(amount int64) (fee int64, ok bool) {
	if ex.feePercent == 0 {
		return 0, true
	}
	if amount > math.MaxInt64/ex.feePercent {
		return 0, false
	}
	fee = amount * ex.feePercent / 100
	if amount > math.MaxInt64-fee {
		return 0, false
	}
	return fee, true
}

func (ex *Exchange) commit(mut Mutation) error {
	if ex.journal == nil {
		return nil
	}
	if err := ex.journal.Commit(mut); err != nil {
		return fmt.Errorf("journal commit: %w", err)
	}
	return nil
}

// staged is a copy-on-write overlay over the live balance map. Debits
// check the staged value, so a sequence of debits and credits sees its
// own prior effects.
type staged struct {
	ex   *Exchange
	vals map[BalanceKey]int64
}

func (ex *Exchange) stage() *staged {
	return &staged{ex: ex, vals: make(map[BalanceKey]int64)}
}

func (s *staged) get(tok, user common.Address) int64 {
	k := BalanceKey{tok, user}
	if v, ok := s.vals[k]; ok {
		return v
	}
	return s.ex.balances[k]
}

// credit reports false if the balance would wrap past MaxInt64.
func (s *staged) credit(tok, user common.Address, amount int64) bool {
	cur := s.get(tok, user)
	if cur > math.MaxInt64-amount {
		return false
	}
	s.vals[BalanceKey{tok, user}] = cur + amount
	return true
}

func (s *staged) debit(tok, user common.Address, amount int64) bool {
	cur := s.get(tok, user)
	if cur < amount {
		return false
	}
	s.vals[BalanceKey{tok, user}] = cur - amount
	return true
}

func (s *staged) entries() []BalanceEntry {
	out := make([]BalanceEntry, 0, len(s.vals))
	for k, v := range s.vals {
		out = append(out, BalanceEntry{k.Token, k.User, v})
	}
	return out
}

func (s *staged) apply() {
	for k, v := range s.vals {
		s.ex.balances[k] = v
	}
}
