package kvstore

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var bucketKV = []byte("kv")

// BoltConfig configures the durable store.
type BoltConfig struct {
	// Path is the database file location.
	Path string

	// Timeout is the file-lock timeout when opening the database.
	Timeout time.Duration
}

// BoltStore is the durable Store, backed by a bbolt database file. It
// survives process restarts and is used when the operator chose
// "remember me" at login.
type BoltStore struct {
	db     *bolt.DB
	logger zerolog.Logger
}

var _ Store = (*BoltStore)(nil)

// NewBoltStore opens (creating if necessary) the database at cfg.Path.
func NewBoltStore(cfg BoltConfig, logger zerolog.Logger) (*BoltStore, error) {
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.Path == "" {
		cfg.Path = filepath.Join(".", "data", "session.db")
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o700); err != nil {
		return nil, fmt.Errorf("[NewBoltStore] failed to create data folder: %w", err)
	}

	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: cfg.Timeout})
	if err != nil {
		return nil, fmt.Errorf("[NewBoltStore] failed to open database: %w", err)
	}

	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketKV)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("[NewBoltStore] failed to create bucket: %w", err)
	}

	logger.Debug().Str("path", cfg.Path).Msg("durable store opened")

	return &BoltStore{db: db, logger: logger}, nil
}

func (s *BoltStore) Get(key string) (string, bool, error) {
	var value string
	var found bool
	err := s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketKV).Get([]byte(key)); v != nil {
			value = string(v)
			found = true
		}
		return nil
	})
	if err != nil {
		return "", false, fmt.Errorf("[BoltStore Get] %w", err)
	}
	return value, found, nil
}

func (s *BoltStore) Set(key, value string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("[BoltStore Set] %w", err)
	}
	return nil
}

func (s *BoltStore) Remove(key string) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKV).Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("[BoltStore Remove] %w", err)
	}
	return nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
