package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/rushteam/cfkit/core"
)

const (
	badgerKeyPrefix  = "k:"
	badgerHashPrefix = "h:"
	badgerHashSep    = "\x00"
)

// BadgerStore 是基于 Badger 的 KeyValueStore，适合单机持久化偏好数据。
// Hash 字段被展开为独立 key：h:{key}\x00{field}，HGetAll 通过前缀迭代实现。
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore 打开（或创建）path 下的 Badger 数据库；path 为空时使用纯内存模式。
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

func (b *BadgerStore) Name() string { return "badger" }

func (b *BadgerStore) Get(ctx context.Context, key string) ([]byte, error) {
	return b.get([]byte(badgerKeyPrefix + key))
}

func (b *BadgerStore) Set(ctx context.Context, key string, value []byte, ttl ...int) error {
	return b.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(badgerKeyPrefix+key), value)
		if len(ttl) > 0 && ttl[0] > 0 {
			e = e.WithTTL(time.Duration(ttl[0]) * time.Second)
		}
		return txn.SetEntry(e)
	})
}

func (b *BadgerStore) Delete(ctx context.Context, key string) error {
	prefix := []byte(badgerHashPrefix + key + badgerHashSep)
	return b.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(badgerKeyPrefix + key)); err != nil {
			return err
		}
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys [][]byte
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		for _, k := range keys {
			if err := txn.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
}

func (b *BadgerStore) HGet(ctx context.Context, key, field string) ([]byte, error) {
	return b.get(hashKey(key, field))
}

func (b *BadgerStore) HSet(ctx context.Context, key, field string, value []byte) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(hashKey(key, field), value)
	})
}

func (b *BadgerStore) HDel(ctx context.Context, key, field string) error {
	return b.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(hashKey(key, field))
	})
}

func (b *BadgerStore) HGetAll(ctx context.Context, key string) (map[string][]byte, error) {
	prefix := []byte(badgerHashPrefix + key + badgerHashSep)
	result := make(map[string][]byte)
	err := b.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			val, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			field := string(item.Key()[len(prefix):])
			result[field] = val
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (b *BadgerStore) Close() error {
	return b.db.Close()
}

func (b *BadgerStore) get(key []byte) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, core.ErrStoreNotFound
	}
	return val, err
}

func hashKey(key, field string) []byte {
	return []byte(badgerHashPrefix + key + badgerHashSep + field)
}

var _ core.KeyValueStore = (*BadgerStore)(nil)
