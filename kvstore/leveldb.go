package kvstore

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
)

// LevelDB is a durable Store backed by goleveldb.
type LevelDB struct {
	db   *leveldb.DB
	sync bool
}

// OpenLevelDB opens (or creates) a database in dir. Batches are fsynced.
func OpenLevelDB(dir string) (*LevelDB, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("leveldb data dir is required")
	}

	db, err := leveldb.OpenFile(filepath.Clean(dir), &opt.Options{
		ErrorIfMissing: false,
	})
	if err != nil {
		return nil, fmt.Errorf("open leveldb: %w", err)
	}
	return &LevelDB{db: db, sync: true}, nil
}

// OpenMemLevelDB opens a database on memory storage.
func OpenMemLevelDB() (*LevelDB, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("open memory leveldb: %w", err)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("leveldb get: %w", err)
	}
	return v, nil
}

func (l *LevelDB) Has(key []byte) (bool, error) {
	ok, err := l.db.Has(key, nil)
	if err != nil {
		return false, fmt.Errorf("leveldb has: %w", err)
	}
	return ok, nil
}

// Write commits the batch as one leveldb batch.
func (l *LevelDB) Write(b *Batch) error {
	lb := new(leveldb.Batch)
	b.Replay(lb)
	if err := l.db.Write(lb, &opt.WriteOptions{Sync: l.sync}); err != nil {
		return fmt.Errorf("leveldb write: %w", err)
	}
	return nil
}

// Close releases the database.
func (l *LevelDB) Close() error {
	if l == nil || l.db == nil {
		return nil
	}
	return l.db.Close()
}
