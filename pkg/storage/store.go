// Package storage persists the exchange's balances, order table and
// audit events in pebble. Each exchange operation commits as a single
// synced batch, so on-disk state always reflects a prefix of the
// operation sequence and never an intermediate step.
package storage

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/cockroachdb/pebble"

	"github.com/uhyunpark/custodex/pkg/exchange"
)

type Store struct {
	db *pebble.DB
}

// Open opens (or creates) the pebble database at path.
func Open(path string) (*Store, error) {
	opts := &pebble.Options{
		Cache:                 pebble.NewCache(64 << 20), // 64MB cache
		MemTableSize:          32 << 20,                  // 32MB memtable
		L0CompactionThreshold: 2,
		MaxOpenFiles:          1000,
		BytesPerSync:          512 << 10, // 512KB
	}

	db, err := pebble.Open(path, opts)
	if err != nil {
		return nil, fmt.Errorf("open pebble db at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Commit writes one exchange mutation atomically: every balance entry it
// touched, the order record, the order counter and the event journal
// entry land together or not at all.
func (s *Store) Commit(m exchange.Mutation) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, b := range m.Balances {
		if err := batch.Set(balanceKey(b.Token, b.User), []byte(strconv.FormatInt(b.Amount, 10)), nil); err != nil {
			return fmt.Errorf("batch balance: %w", err)
		}
	}
	if m.Order != nil {
		data, err := json.Marshal(m.Order)
		if err != nil {
			return fmt.Errorf("marshal order %d: %w", m.Order.ID, err)
		}
		if err := batch.Set(orderKey(m.Order.ID), data, nil); err != nil {
			return fmt.Errorf("batch order: %w", err)
		}
	}
	if m.Event != nil {
		data, err := json.Marshal(m.Event)
		if err != nil {
			return fmt.Errorf("marshal event %d: %w", m.Event.Seq, err)
		}
		if err := batch.Set(eventKey(m.Event.Seq), data, nil); err != nil {
			return fmt.Errorf("batch event: %w", err)
		}
	}
	if err := batch.Set([]byte(keyOrderCount), []byte(strconv.FormatInt(m.OrderCount, 10)), nil); err != nil {
		return fmt.Errorf("batch order count: %w", err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

// Load rebuilds the exchange snapshot from disk. An empty database
// yields an empty snapshot.
func (s *Store) Load() (exchange.Snapshot, error) {
	snap := exchange.Snapshot{
		Balances: make(map[exchange.BalanceKey]int64),
		Orders:   make(map[int64]*exchange.Order),
	}

	if err := s.scan([]byte(prefixBalance), func(key, value []byte) error {
		token, user, err := parseBalanceKey(key)
		if err != nil {
			return err
		}
		amount, err := strconv.ParseInt(string(value), 10, 64)
		if err != nil {
			return fmt.Errorf("parse balance %q: %w", key, err)
		}
		snap.Balances[exchange.BalanceKey{Token: token, User: user}] = amount
		return nil
	}); err != nil {
		return exchange.Snapshot{}, err
	}

	if err := s.scan([]byte(prefixOrder), func(key, value []byte) error {
		var o exchange.Order
		if err := json.Unmarshal(value, &o); err != nil {
			return fmt.Errorf("unmarshal order %q: %w", key, err)
		}
		snap.Orders[o.ID] = &o
		return nil
	}); err != nil {
		return exchange.Snapshot{}, err
	}

	if err := s.scan([]byte(prefixEvent), func(key, value []byte) error {
		var ev exchange.Event
		if err := json.Unmarshal(value, &ev); err != nil {
			return fmt.Errorf("unmarshal event %q: %w", key, err)
		}
		snap.Events = append(snap.Events, ev)
		return nil
	}); err != nil {
		return exchange.Snapshot{}, err
	}

	data, closer, err := s.db.Get([]byte(keyOrderCount))
	switch err {
	case nil:
		n, perr := strconv.ParseInt(string(data), 10, 64)
		closer.Close()
		if perr != nil {
			return exchange.Snapshot{}, fmt.Errorf("parse order count: %w", perr)
		}
		snap.OrderCount = n
	case pebble.ErrNotFound:
		// Fresh database.
	default:
		return exchange.Snapshot{}, fmt.Errorf("get order count: %w", err)
	}

	return snap, nil
}

// scan iterates every key under prefix in lexicographic order.
func (s *Store) scan(prefix []byte, fn func(key, value []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: keyUpperBound(prefix),
	})
	if err != nil {
		return fmt.Errorf("iterator for %q: %w", prefix, err)
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		if err := fn(iter.Key(), iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}
