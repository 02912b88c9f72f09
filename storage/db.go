package storage

import (
	"errors"
	"sort"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// ErrNotFound is returned by Get regardless of which backend is in use, so
// callers can match it with errors.Is rather than reaching into a specific
// backend's error type.
var ErrNotFound = errors.New("storage: key not found")

// Database is a generic key-value store interface. This allows the ledger,
// approver, validator, and distribution components to each hold an
// independent handle into any backend (in-memory or persistent); the store
// itself is the only resource genuinely shared across actors on a node.
type Database interface {
	Put(key []byte, value []byte) error
	Get(key []byte) ([]byte, error)
	Delete(key []byte) error
	// Iterator walks every key with the given prefix in lexicographic order.
	Iterator(prefix []byte) Iterator
	NewBatch() Batch
	Close() // A way to gracefully shut down the database connection.
}

// Iterator walks a key range. Callers must call Release when done.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

// Batch groups writes so the Ledger can apply an event atomically: either
// every key an apply touches persists, or none do.
type Batch interface {
	Put(key, value []byte)
	Delete(key []byte)
	Write() error
}

// --- In-Memory DB (for testing) ---

type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemDB() *MemDB {
	return &MemDB{
		data: make(map[string][]byte),
	}
}

func (db *MemDB) Put(key []byte, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.data[string(key)] = append([]byte(nil), value...)
	return nil
}

func (db *MemDB) Get(key []byte) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	value, ok := db.data[string(key)]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), value...), nil
}

func (db *MemDB) Delete(key []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.data, string(key))
	return nil
}

func (db *MemDB) Iterator(prefix []byte) Iterator {
	db.mu.RLock()
	defer db.mu.RUnlock()

	p := string(prefix)
	keys := make([]string, 0, len(db.data))
	for k := range db.data {
		if len(k) >= len(p) && k[:len(p)] == p {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	values := make([][]byte, len(keys))
	for i, k := range keys {
		values[i] = append([]byte(nil), db.data[k]...)
	}

	return &memIterator{keys: keys, values: values, pos: -1}
}

type memIterator struct {
	keys   []string
	values [][]byte
	pos    int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte   { return []byte(it.keys[it.pos]) }
func (it *memIterator) Value() []byte { return it.values[it.pos] }
func (it *memIterator) Release()      {}
func (it *memIterator) Error() error  { return nil }

type memBatch struct {
	db      *MemDB
	puts    map[string][]byte
	deletes map[string]struct{}
}

func (db *MemDB) NewBatch() Batch {
	return &memBatch{db: db, puts: map[string][]byte{}, deletes: map[string]struct{}{}}
}

func (b *memBatch) Put(key, value []byte) {
	b.puts[string(key)] = append([]byte(nil), value...)
	delete(b.deletes, string(key))
}

func (b *memBatch) Delete(key []byte) {
	b.deletes[string(key)] = struct{}{}
	delete(b.puts, string(key))
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for k, v := range b.puts {
		b.db.data[k] = v
	}
	for k := range b.deletes {
		delete(b.db.data, k)
	}
	return nil
}

// Close satisfies the Database interface for MemDB.
func (db *MemDB) Close() {
	// Nothing to close for an in-memory database.
}

// --- Persistent DB (for mainnet) ---

// LevelDB is a persistent key-value store using LevelDB.
type LevelDB struct {
	db *leveldb.DB
}

// NewLevelDB creates or opens a LevelDB database at the specified path.
func NewLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, err
	}
	return &LevelDB{db: db}, nil
}

// Put inserts or updates a key-value pair.
func (ldb *LevelDB) Put(key []byte, value []byte) error {
	return ldb.db.Put(key, value, nil)
}

// Get retrieves a value for a given key.
func (ldb *LevelDB) Get(key []byte) ([]byte, error) {
	value, err := ldb.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	return value, err
}

// Delete removes a key-value pair.
func (ldb *LevelDB) Delete(key []byte) error {
	return ldb.db.Delete(key, nil)
}

func (ldb *LevelDB) Iterator(prefix []byte) Iterator {
	return &levelIterator{it: ldb.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

type levelIterator struct {
	it iterator.Iterator
}

func (it *levelIterator) Next() bool    { return it.it.Next() }
func (it *levelIterator) Key() []byte   { return append([]byte(nil), it.it.Key()...) }
func (it *levelIterator) Value() []byte { return append([]byte(nil), it.it.Value()...) }
func (it *levelIterator) Release()      { it.it.Release() }
func (it *levelIterator) Error() error  { return it.it.Error() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (ldb *LevelDB) NewBatch() Batch {
	return &levelBatch{db: ldb.db, batch: new(leveldb.Batch)}
}

func (b *levelBatch) Put(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Write() error          { return b.db.Write(b.batch, nil) }

// Close closes the database connection.
func (ldb *LevelDB) Close() {
	ldb.db.Close()
}
