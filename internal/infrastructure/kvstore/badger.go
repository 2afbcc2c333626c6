package kvstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/avatarctic/satcrack-offline/internal/core/ports"
	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// BadgerConfig configures the on-device store.
type BadgerConfig struct {
	// Dir is the data directory; ignored when InMemory is set.
	Dir      string
	InMemory bool
	// MaxValueBytes rejects larger values with ErrQuotaExceeded (0 = badger's own limit).
	MaxValueBytes  int
	KeyPrefix      string
	GCInterval     time.Duration
	GCDiscardRatio float64
}

// BadgerBackend is a KVBackend persisted in a local BadgerDB directory.
type BadgerBackend struct {
	db            *badger.DB
	prefix        string
	maxValueBytes int
	logger        *logrus.Logger

	gcStop chan struct{}
	gcWg   sync.WaitGroup
}

func NewBadgerBackend(cfg BadgerConfig, logger *logrus.Logger) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(cfg.Dir).WithLogger(nil)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger store: %w", err)
	}
	b := &BadgerBackend{
		db:            db,
		prefix:        cfg.KeyPrefix,
		maxValueBytes: cfg.MaxValueBytes,
		logger:        logger,
		gcStop:        make(chan struct{}),
	}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		ratio := cfg.GCDiscardRatio
		if ratio <= 0 {
			ratio = 0.5
		}
		b.startGC(cfg.GCInterval, ratio)
	}
	return b, nil
}

func (b *BadgerBackend) startGC(interval time.Duration, ratio float64) {
	b.gcWg.Add(1)
	go func() {
		defer b.gcWg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-b.gcStop:
				return
			case <-ticker.C:
				for b.db.RunValueLogGC(ratio) == nil {
				}
			}
		}
	}()
}

func (b *BadgerBackend) key(k string) []byte { return []byte(b.prefix + k) }

func (b *BadgerBackend) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	var value []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(b.key(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get %q: %w", key, errors.Join(ports.ErrStorageUnavailable, err))
	}
	return value, true, nil
}

func (b *BadgerBackend) Set(ctx context.Context, key string, value []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if b.maxValueBytes > 0 && len(value) > b.maxValueBytes {
		return fmt.Errorf("set %q (%d bytes): %w", key, len(value), ports.ErrQuotaExceeded)
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(b.key(key), value))
	})
	if errors.Is(err, badger.ErrTxnTooBig) {
		return fmt.Errorf("set %q: %w", key, errors.Join(ports.ErrQuotaExceeded, err))
	}
	if err != nil {
		return fmt.Errorf("set %q: %w", key, errors.Join(ports.ErrStorageUnavailable, err))
	}
	return nil
}

func (b *BadgerBackend) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(b.key(key))
	})
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, errors.Join(ports.ErrStorageUnavailable, err))
	}
	return nil
}

// Ping verifies the store is open and readable.
func (b *BadgerBackend) Ping(ctx context.Context) error {
	_, _, err := b.Get(ctx, "__ping__")
	return err
}

func (b *BadgerBackend) Close() error {
	close(b.gcStop)
	b.gcWg.Wait()
	if err := b.db.Close(); err != nil {
		if b.logger != nil {
			b.logger.WithError(err).Error("badger store: close failed")
		}
		return err
	}
	return nil
}
