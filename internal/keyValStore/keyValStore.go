// Package keyValStore wraps BadgerDB behind the small key-value surface the
// version-control core needs: plain reads and writes for content-addressed
// payloads, and transactional put-if-absent / compare-and-swap for the ref
// table, the only mutable state in the repository.
package keyValStore

import (
	"bytes"
	"encoding/hex"
	"errors"
	"fmt"
	"runtime"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

var log *logrus.Logger

var (
	// ErrKeyNotFound is returned by Read when the key is absent.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyExists is returned by PutIfAbsent when the key is taken.
	ErrKeyExists = errors.New("key already exists")
	// ErrCASMismatch is returned by CompareAndSwap when the stored value no
	// longer equals the expected one, i.e. another writer got there first.
	ErrCASMismatch = errors.New("compare-and-swap mismatch")
)

type StoreConfig struct {
	Paths          []string // at the moment only the first path is used
	MinimumFreeGB  int
	Logger         *logrus.Logger
	SkipSpaceCheck bool // for tests on small tmpfs mounts
}

type KeyValStore struct {
	config   StoreConfig
	badgerDB *badger.DB
}

func NewKeyValStore(config StoreConfig) (*KeyValStore, error) {
	if config.Logger == nil {
		config.Logger = logrus.New()
	}

	log = config.Logger

	err := config.checkConfig()
	if err != nil {
		return nil, fmt.Errorf("error checking config for KeyValStore: %w", err)
	}

	opts := badger.DefaultOptions(config.Paths[0])
	opts.Logger = nil
	opts.ValueLogFileSize = 1024 * 1024 * 100 // Set max size of each value log file to 100MB
	opts.SyncWrites = false

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("error opening badger at %s: %w", config.Paths[0], err)
	}

	return &KeyValStore{
		config:   config,
		badgerDB: db,
	}, nil
}

func (k *KeyValStore) Write(key []byte, content []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

func (k *KeyValStore) Read(key []byte) ([]byte, error) {
	var value []byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("key %s: %w", hex.EncodeToString(key), ErrKeyNotFound)
		}
		return nil, fmt.Errorf("error reading key %s: %w", hex.EncodeToString(key), err)
	}
	return value, nil
}

// Has checks key existence without fetching the value.
func (k *KeyValStore) Has(key []byte) (bool, error) {
	var found bool
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			found = true
			return nil
		}
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return false, fmt.Errorf("error checking key %s: %w", hex.EncodeToString(key), err)
	}
	return found, nil
}

// WriteIfAbsent stores content under key unless the key already holds a
// value, in which case the existing value is left untouched and no error is
// returned. Content-addressed payloads are identical by definition when the
// key collides, so skipping the write is the deduplication.
func (k *KeyValStore) WriteIfAbsent(key []byte, content []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return nil
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, content)
	})
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// PutIfAbsent stores content under key, failing with ErrKeyExists when the
// key is taken. Used for branch and tag creation.
func (k *KeyValStore) PutIfAbsent(key []byte, content []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(key)
		if err == nil {
			return ErrKeyExists
		}
		if !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return txn.Set(key, content)
	})
	if errors.Is(err, ErrKeyExists) {
		return ErrKeyExists
	}
	if errors.Is(err, badger.ErrConflict) {
		// A racing creator committed first; from this caller's view the key
		// exists now.
		return ErrKeyExists
	}
	if err != nil {
		return fmt.Errorf("error writing key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// CompareAndSwap replaces the value under key only if it currently equals
// expected. Badger transactions are serializable, so the read-compare-set
// sequence is atomic; a racing writer surfaces as badger.ErrConflict and is
// reported as ErrCASMismatch just like a stale expected value.
func (k *KeyValStore) CompareAndSwap(key []byte, expected []byte, replacement []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrKeyNotFound
			}
			return err
		}
		current, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if !bytes.Equal(current, expected) {
			return ErrCASMismatch
		}
		return txn.Set(key, replacement)
	})
	if errors.Is(err, ErrCASMismatch) || errors.Is(err, badger.ErrConflict) {
		return ErrCASMismatch
	}
	if errors.Is(err, ErrKeyNotFound) {
		return fmt.Errorf("key %s: %w", hex.EncodeToString(key), ErrKeyNotFound)
	}
	if err != nil {
		return fmt.Errorf("error swapping key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (k *KeyValStore) Delete(key []byte) error {
	err := k.badgerDB.Update(func(txn *badger.Txn) error {
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("error deleting key %s: %w", hex.EncodeToString(key), err)
	}
	return nil
}

// GetKeysWithPrefix returns all keys carrying the given prefix, without
// fetching values.
func (k *KeyValStore) GetKeysWithPrefix(prefix []byte) ([][]byte, error) {
	var keys [][]byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning prefix %s: %w", string(prefix), err)
	}
	return keys, nil
}

// GetItemsWithPrefix returns all keys and values carrying the given prefix.
func (k *KeyValStore) GetItemsWithPrefix(prefix []byte) ([][][]byte, error) {
	var keysAndValues [][][]byte
	err := k.badgerDB.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := item.KeyCopy(nil)
			value, err := item.ValueCopy(nil)
			if err != nil {
				return err
			}
			keysAndValues = append(keysAndValues, [][]byte{key, value})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("error scanning prefix %s: %w", string(prefix), err)
	}
	return keysAndValues, nil
}

func (k *KeyValStore) Close() error {
	if err := k.Clean(); err != nil {
		log.WithError(err).Warn("cleanup before close failed")
	}
	return k.badgerDB.Close()
}

func (k *KeyValStore) Clean() error {
	err := k.badgerDB.Sync()
	if err != nil {
		return fmt.Errorf("error syncing db: %w", err)
	}

	// flatten the db
	err = k.badgerDB.Flatten(runtime.NumCPU())
	if err != nil {
		return fmt.Errorf("error flattening db: %w", err)
	}

	err = k.badgerDB.RunValueLogGC(0.1)
	if err != nil && err != badger.ErrNoRewrite {
		return fmt.Errorf("error cleaning db: %w", err)
	}

	return nil
}
