package persist

import (
	"errors"
	"fmt"
	"time"

	memdb "github.com/hashicorp/go-memdb"
)

// ErrNotFound is returned when no snapshot is stored under a key.
var ErrNotFound = errors.New("snapshot not found")

// Storage keeps encoded snapshots by key.
type Storage interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(key string) error
}

const (
	snapshotTable = "snapshot"
	snapshotIndex = "id"
)

// Snapshot is the row stored for each key.
type Snapshot struct {
	Key     string
	Data    []byte
	Version uint64
	SavedAt time.Time
}

func snapshotSchema() *memdb.DBSchema {
	return &memdb.DBSchema{
		Tables: map[string]*memdb.TableSchema{
			snapshotTable: {
				Name: snapshotTable,
				Indexes: map[string]*memdb.IndexSchema{
					snapshotIndex: {
						Name:    snapshotIndex,
						Unique:  true,
						Indexer: &memdb.StringFieldIndex{Field: "Key"},
					},
				},
			},
		},
	}
}

// MemDBStorage is an in-process Storage backed by go-memdb. Every save
// bumps the snapshot's version.
type MemDBStorage struct {
	db  *memdb.MemDB
	now func() time.Time
}

func NewMemDBStorage() (*MemDBStorage, error) {
	db, err := memdb.NewMemDB(snapshotSchema())
	if err != nil {
		return nil, fmt.Errorf("create memdb: %w", err)
	}
	return &MemDBStorage{db: db, now: time.Now}, nil
}

func (m *MemDBStorage) Load(key string) ([]byte, error) {
	snap, err := m.Snapshot(key)
	if err != nil {
		return nil, err
	}
	return snap.Data, nil
}

// Snapshot returns the full row stored under key.
func (m *MemDBStorage) Snapshot(key string) (Snapshot, error) {
	txn := m.db.Txn(false)
	defer txn.Abort()

	raw, err := txn.First(snapshotTable, snapshotIndex, key)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load %q: %w", key, err)
	}
	if raw == nil {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	return *raw.(*Snapshot), nil
}

func (m *MemDBStorage) Save(key string, data []byte) error {
	txn := m.db.Txn(true)
	defer txn.Abort()

	var version uint64
	old, err := txn.First(snapshotTable, snapshotIndex, key)
	if err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	} else if old != nil {
		version = old.(*Snapshot).Version
	}

	row := &Snapshot{
		Key:     key,
		Data:    append([]byte(nil), data...),
		Version: version + 1,
		SavedAt: m.now(),
	}
	if err := txn.Insert(snapshotTable, row); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	txn.Commit()
	return nil
}

// CompareAndSwap saves data only if the stored version equals version.
// Version 0 means the key must not exist yet.
func (m *MemDBStorage) CompareAndSwap(key string, version uint64, data []byte) (swapped bool, err error) {
	txn := m.db.Txn(true)
	defer txn.Abort()

	var current uint64
	actual, err := txn.First(snapshotTable, snapshotIndex, key)
	if err != nil {
		return false, fmt.Errorf("compare and swap %q: %w", key, err)
	} else if actual != nil {
		current = actual.(*Snapshot).Version
	}
	if current != version {
		return false, nil
	}

	row := &Snapshot{
		Key:     key,
		Data:    append([]byte(nil), data...),
		Version: version + 1,
		SavedAt: m.now(),
	}
	if err := txn.Insert(snapshotTable, row); err != nil {
		return false, fmt.Errorf("compare and swap %q: %w", key, err)
	}
	txn.Commit()
	return true, nil
}

func (m *MemDBStorage) Delete(key string) error {
	txn := m.db.Txn(true)
	defer txn.Abort()

	actual, err := txn.First(snapshotTable, snapshotIndex, key)
	if err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	} else if actual == nil {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err := txn.Delete(snapshotTable, actual); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	txn.Commit()
	return nil
}
