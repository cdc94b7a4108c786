package exchange_test

import (
	"testing"

	"github.com/uhyunpark/custodex/pkg/exchange"
)

func TestEventSequenceIsGapless(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, f.tokenA, 1_000)
	f.deposit(t, bob, f.tokenB, 1_000)

	o, _ := f.ex.MakeOrder(alice, f.tokenB, 100, f.tokenA, 100)
	f.ex.FillOrder(bob, o.ID)
	f.ex.WithdrawToken(bob, f.tokenA, 50)

	events := f.ex.Feed().Events()
	wantKinds := []exchange.EventKind{
		exchange.EventDeposit,
		exchange.EventDeposit,
		exchange.EventOrder,
		exchange.EventTrade,
		exchange.EventWithdraw,
	}
	if len(events) != len(wantKinds) {
		t.Fatalf("events = %d, want %d", len(events), len(wantKinds))
	}
	for i, ev := range events {
		if ev.Seq != int64(i)+1 {
			t.Errorf("events[%d].Seq = %d, want %d", i, ev.Seq, i+1)
		}
		if ev.Kind != wantKinds[i] {
			t.Errorf("events[%d].Kind = %s, want %s", i, ev.Kind, wantKinds[i])
		}
	}
}

func TestEventsSince(t *testing.T) {
	f := newFixture(t)
	f.deposit(t, alice, f.tokenA, 100)
	f.deposit(t, alice, f.tokenB, 100)
	f.deposit(t, bob, f.tokenA, 100)

	tail := f.ex.Feed().EventsSince(2)
	if len(tail) != 1 {
		t.Fatalf("tail = %d events, want 1", len(tail))
	}
	if tail[0].Seq != 3 {
		t.Errorf("tail seq = %d, want 3", tail[0].Seq)
	}

	if got := f.ex.Feed().EventsSince(3); got != nil {
		t.Errorf("caught-up tail = %v, want nil", got)
	}
	if got := f.ex.Feed().EventsSince(0); len(got) != 3 {
		t.Errorf("full tail = %d events, want 3", len(got))
	}
}

func TestSubscribeReceivesLiveEvents(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.ex.Feed().Subscribe()
	defer cancel()

	f.deposit(t, alice, f.tokenA, 100)

	select {
	case ev := <-ch:
		if ev.Kind != exchange.EventDeposit || ev.Seq != 1 {
			t.Errorf("subscribed event = %+v", ev)
		}
	default:
		t.Fatal("no event delivered to subscriber")
	}
}

func TestSubscribeCancelCloses(t *testing.T) {
	f := newFixture(t)

	ch, cancel := f.ex.Feed().Subscribe()
	cancel()
	if _, ok := <-ch; ok {
		t.Error("channel still open after cancel")
	}

	// Appending after cancel must not panic on the closed channel.
	f.deposit(t, alice, f.tokenA, 100)
}
