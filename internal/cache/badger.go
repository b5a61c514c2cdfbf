package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/roach88/velora/internal/ir"
)

const badgerPrefix = "velora:gen:"

// BadgerTier keeps records in an embedded Badger database so that later
// runs on the same machine hit without a network round trip.
type BadgerTier struct {
	db    *badger.DB
	owned bool
}

// OpenBadger opens (or creates) a Badger database in dir.
// An empty dir opens an in-memory database.
func OpenBadger(dir string) (*BadgerTier, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger cache: %w", err)
	}
	return &BadgerTier{db: db, owned: true}, nil
}

// NewBadgerTier wraps an already-open database. Close leaves db open.
func NewBadgerTier(db *badger.DB) *BadgerTier {
	return &BadgerTier{db: db}
}

// Close closes the database if OpenBadger opened it.
func (b *BadgerTier) Close() error {
	if !b.owned {
		return nil
	}
	return b.db.Close()
}

// Name implements Tier.
func (b *BadgerTier) Name() string {
	return "badger"
}

// Get implements Tier. Badger hides entries past their TTL.
func (b *BadgerTier) Get(ctx context.Context, key string) (ir.CacheRecord, bool, error) {
	if err := ctx.Err(); err != nil {
		return ir.CacheRecord{}, false, err
	}
	var rec ir.CacheRecord
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(badgerPrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ir.CacheRecord{}, false, nil
	}
	if err != nil {
		return ir.CacheRecord{}, false, fmt.Errorf("badger get %s: %w", key, err)
	}
	return rec, true, nil
}

// Put implements Tier. A live entry for the same key is left untouched.
func (b *BadgerTier) Put(ctx context.Context, rec ir.CacheRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal cache record: %w", err)
	}
	k := []byte(badgerPrefix + rec.Key)
	err = b.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(k); err == nil {
			return nil
		} else if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		e := badger.NewEntry(k, val)
		if rec.TTL > 0 {
			e = e.WithTTL(rec.TTL)
		}
		return txn.SetEntry(e)
	})
	if err != nil {
		return fmt.Errorf("badger put %s: %w", rec.Key, err)
	}
	return nil
}
