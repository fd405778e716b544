package storage

import (
	"sync"

	"go.etcd.io/bbolt"

	coreerrors "github.com/veritas-site/veritas-client/core/errors"
)

var clientBucket = []byte("veritas_client")

// BoltStore 基于 BBolt 的持久化键值存储，客户端重启后数据仍然可用。
type BoltStore struct {
	mu     sync.Mutex
	db     *bbolt.DB
	closed bool
}

// OpenBolt 打开（或创建）指定路径的 BBolt 数据库并初始化存储桶。
func OpenBolt(path string) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "storage: 打开数据库失败", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(clientBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "storage: 初始化存储桶失败", err)
	}
	return &BoltStore{db: db}, nil
}

// NewBoltStore 复用外部已打开的 BBolt 数据库。
func NewBoltStore(db *bbolt.DB) (*BoltStore, error) {
	if db == nil {
		return nil, coreerrors.New(coreerrors.ErrCodeInvalidConfig, "storage: 数据库未提供")
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(clientBucket)
		return err
	})
	if err != nil {
		return nil, coreerrors.Wrap(coreerrors.ErrCodeInvalidConfig, "storage: 初始化存储桶失败", err)
	}
	return &BoltStore{db: db}, nil
}

// Close 关闭底层数据库。
func (b *BoltStore) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

// Get 读取键值。
func (b *BoltStore) Get(key string) (string, bool) {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return "", false
	}
	var value string
	var found bool
	_ = b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(clientBucket).Get([]byte(key))
		if raw != nil {
			value = string(raw)
			found = true
		}
		return nil
	})
	return value, found
}

// Set 写入键值。
func (b *BoltStore) Set(key, value string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(clientBucket).Put([]byte(key), []byte(value))
	})
}

// Delete 删除键。
func (b *BoltStore) Delete(key string) error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(clientBucket).Delete([]byte(key))
	})
}

// Clear 清空存储桶内全部键值。
func (b *BoltStore) Clear() error {
	if err := b.ensureOpen(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(clientBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucket(clientBucket)
		return err
	})
}

// Keys 返回当前全部键的快照。
func (b *BoltStore) Keys() []string {
	if err := b.ensureOpen(); err != nil {
		return nil
	}
	var keys []string
	_ = b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(clientBucket).ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	return keys
}

func (b *BoltStore) ensureOpen() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ErrStoreClosed
	}
	return nil
}
