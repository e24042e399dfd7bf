package database

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/errors"
	"github.com/syndtr/goleveldb/leveldb/filter"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"

	"autoseal-node/logger"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = leveldb.ErrNotFound

// Database is a thin wrapper around a LevelDB instance. It is the only
// persistence layer of the node; blocks, state records and head markers
// all live in a single keyspace.
type Database struct {
	db *leveldb.DB
}

// Batch collects writes that are applied atomically by Write.
type Batch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

// NewDatabase opens (or creates) a LevelDB database at the given path.
func NewDatabase(path string, cacheMB int, handles int) (*Database, error) {
	if cacheMB < 16 {
		cacheMB = 16
	}
	if handles < 16 {
		handles = 16
	}
	opts := &opt.Options{
		OpenFilesCacheCapacity: handles,
		BlockCacheCapacity:     cacheMB / 2 * opt.MiB,
		WriteBuffer:            cacheMB / 4 * opt.MiB,
		Filter:                 filter.NewBloomFilter(10),
	}
	db, err := leveldb.OpenFile(path, opts)
	if _, corrupted := err.(*errors.ErrCorrupted); corrupted {
		logger.Warningf("Database at %s corrupted, attempting recovery", path)
		db, err = leveldb.RecoverFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open database at %s: %w", path, err)
	}
	return &Database{db: db}, nil
}

// NewMemoryDatabase returns an in-memory database for tests.
func NewMemoryDatabase() *Database {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		panic(err)
	}
	return &Database{db: db}
}

func (d *Database) Get(key []byte) ([]byte, error) {
	return d.db.Get(key, nil)
}

func (d *Database) Has(key []byte) (bool, error) {
	return d.db.Has(key, nil)
}

func (d *Database) Put(key, value []byte) error {
	return d.db.Put(key, value, nil)
}

func (d *Database) Delete(key []byte) error {
	return d.db.Delete(key, nil)
}

func (d *Database) Close() error {
	return d.db.Close()
}

// NewBatch returns an empty write batch bound to this database.
func (d *Database) NewBatch() *Batch {
	return &Batch{db: d.db, batch: new(leveldb.Batch)}
}

func (b *Batch) Put(key, value []byte) {
	b.batch.Put(key, value)
}

func (b *Batch) Delete(key []byte) {
	b.batch.Delete(key)
}

// Write applies all batched operations atomically.
func (b *Batch) Write() error {
	return b.db.Write(b.batch, nil)
}

func (b *Batch) Reset() {
	b.batch.Reset()
}
