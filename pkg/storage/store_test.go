package storage_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/uhyunpark/custodex/pkg/exchange"
	"github.com/uhyunpark/custodex/pkg/storage"
	"github.com/uhyunpark/custodex/pkg/token"
	"github.com/uhyunpark/custodex/pkg/util"
)

var (
	deployer   = common.HexToAddress("0xDD00000000000000000000000000000000000001")
	feeAccount = common.HexToAddress("0xFE00000000000000000000000000000000000001")
	alice      = common.HexToAddress("0xAA00000000000000000000000000000000000001")
	bob        = common.HexToAddress("0xBB00000000000000000000000000000000000001")
	exAddr     = common.HexToAddress("0xE800000000000000000000000000000000000001")
)

func TestLoadEmptyDatabase(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "exchange.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(snap.Balances) != 0 || len(snap.Orders) != 0 || snap.OrderCount != 0 || len(snap.Events) != 0 {
		t.Errorf("fresh snapshot not empty: %+v", snap)
	}
}

func TestCommitAndReload(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "exchange.db")
	store, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}

	tokA := common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokB := common.HexToAddress("0x1000000000000000000000000000000000000002")

	order := &exchange.Order{
		ID: 1, User: alice,
		TokenGet: tokB, AmountGet: 100,
		TokenGive: tokA, AmountGive: 100,
		Timestamp: 1700000000,
	}
	muts := []exchange.Mutation{
		{
			Balances:   []exchange.BalanceEntry{{Token: tokA, User: alice, Amount: 500}},
			OrderCount: 0,
			Event:      &exchange.Event{Seq: 1, Kind: exchange.EventDeposit, Token: tokA, User: alice, Amount: 500, Balance: 500},
		},
		{
			Order:      order,
			OrderCount: 1,
			Event:      &exchange.Event{Seq: 2, Kind: exchange.EventOrder, ID: 1, User: alice, TokenGet: tokB, AmountGet: 100, TokenGive: tokA, AmountGive: 100, Timestamp: 1700000000},
		},
		{
			Balances:   []exchange.BalanceEntry{{Token: tokA, User: alice, Amount: 400}},
			OrderCount: 1,
			Event:      &exchange.Event{Seq: 3, Kind: exchange.EventWithdraw, Token: tokA, User: alice, Amount: 100, Balance: 400},
		},
	}
	for i, m := range muts {
		if err := store.Commit(m); err != nil {
			t.Fatalf("commit %d: %v", i, err)
		}
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { reopened.Close() })

	snap, err := reopened.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got := snap.Balances[exchange.BalanceKey{Token: tokA, User: alice}]; got != 400 {
		t.Errorf("balance = %d, want 400", got)
	}
	if snap.OrderCount != 1 {
		t.Errorf("order count = %d, want 1", snap.OrderCount)
	}
	o, ok := snap.Orders[1]
	if !ok {
		t.Fatal("order 1 missing from snapshot")
	}
	if *o != *order {
		t.Errorf("order = %+v, want %+v", o, order)
	}
	if len(snap.Events) != 3 {
		t.Fatalf("events = %d, want 3", len(snap.Events))
	}
	for i, ev := range snap.Events {
		if ev.Seq != int64(i)+1 {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
	}
}

// CommitOverwritesOrderState: finalizing an order rewrites the same key.
func TestCommitOverwritesOrderState(t *testing.T) {
	store, err := storage.Open(filepath.Join(t.TempDir(), "exchange.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	open := &exchange.Order{ID: 1, User: alice, AmountGet: 10, AmountGive: 10, Timestamp: 1}
	if err := store.Commit(exchange.Mutation{Order: open, OrderCount: 1}); err != nil {
		t.Fatalf("commit open: %v", err)
	}
	cancelled := *open
	cancelled.Cancelled = true
	if err := store.Commit(exchange.Mutation{Order: &cancelled, OrderCount: 1}); err != nil {
		t.Fatalf("commit cancelled: %v", err)
	}

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !snap.Orders[1].Cancelled {
		t.Error("reloaded order lost the cancelled flag")
	}
}

// End to end: a journaled exchange survives a restart with balances,
// orders, counter and the audit log intact.
func TestExchangeRestartRecovery(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "exchange.db")
	clock := util.FixedClock{T: time.Unix(1700000000, 0)}

	reg := token.NewRegistry(nil)
	tokA, err := reg.Deploy(deployer, "Token A", "TKA", 1_000_000)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	tokB, err := reg.Deploy(deployer, "Token B", "TKB", 1_000_000)
	if err != nil {
		t.Fatalf("deploy: %v", err)
	}
	reg.Transfer(tokA, deployer, alice, 1_000)
	reg.Transfer(tokB, deployer, bob, 1_000)

	newJournaled := func(store *storage.Store) *exchange.Exchange {
		ex, err := exchange.New(exchange.Options{
			Address:    exAddr,
			FeeAccount: feeAccount,
			FeePercent: 10,
			Ledger:     reg,
			Clock:      clock,
			Journal:    store,
		})
		if err != nil {
			t.Fatalf("new exchange: %v", err)
		}
		return ex
	}

	store, err := storage.Open(dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	ex := newJournaled(store)

	reg.Approve(tokA, alice, exAddr, 500)
	if err := ex.DepositToken(alice, tokA, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	reg.Approve(tokB, bob, exAddr, 500)
	if err := ex.DepositToken(bob, tokB, 500); err != nil {
		t.Fatalf("deposit: %v", err)
	}
	o, err := ex.MakeOrder(alice, tokB, 100, tokA, 100)
	if err != nil {
		t.Fatalf("make order: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Restart: reload the snapshot into a fresh core and fill the order.
	store, err = storage.Open(dbPath)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	snap, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	ex = newJournaled(store)
	ex.Restore(snap)

	if got := ex.BalanceOf(tokA, alice); got != 500 {
		t.Errorf("restored alice A = %d, want 500", got)
	}
	if got := ex.OrderCount(); got != 1 {
		t.Errorf("restored order count = %d, want 1", got)
	}
	if got := ex.Feed().Len(); got != 3 {
		t.Errorf("restored events = %d, want 3", got)
	}

	if err := ex.FillOrder(bob, o.ID); err != nil {
		t.Fatalf("fill after restart: %v", err)
	}
	if got := ex.BalanceOf(tokB, alice); got != 100 {
		t.Errorf("alice B after fill = %d, want 100", got)
	}
	if got := ex.BalanceOf(tokB, feeAccount); got != 10 {
		t.Errorf("fee B after fill = %d, want 10", got)
	}
}
