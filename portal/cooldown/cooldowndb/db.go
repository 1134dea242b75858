// Package cooldowndb implements a cooldown.Provider storing cooldowns in a LevelDB database, so that player
// cooldowns survive a restart of the host.
package cooldowndb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/df-mc/goleveldb/leveldb"
	"github.com/df-mc/goleveldb/leveldb/opt"
	"github.com/df-mc/goleveldb/leveldb/util"
	"github.com/df-mc/portalguard/portal/cooldown"
	"github.com/google/uuid"
)

var keyPrefix = []byte("cooldown/")

// DB is a cooldown.Provider backed by LevelDB. Each cooldown is stored under its subject ID with its expiry
// as a unix millisecond timestamp.
type DB struct {
	conf Config
	ldb  *leveldb.DB
}

// Compile time check to make sure DB implements cooldown.Provider.
var _ cooldown.Provider = (*DB)(nil)

// Config holds the optional parameters of a DB.
type Config struct {
	// Log is the Logger used to report skipped records. If nil, slog.Default() is used.
	Log *slog.Logger
	// ReadOnly opens the database without allowing writes. Save returns an error if set.
	ReadOnly bool
}

// Open creates a new DB reading and writing from/to the directory passed. The directory is created if it
// does not yet exist.
func Open(dir string) (*DB, error) {
	var conf Config
	return conf.Open(dir)
}

// Open creates a new DB reading and writing from/to the directory passed, using the settings of the Config.
func (conf Config) Open(dir string) (*DB, error) {
	if conf.Log == nil {
		conf.Log = slog.Default()
	}
	conf.Log = conf.Log.With("provider", "leveldb", "dir", dir)
	ldb, err := leveldb.OpenFile(dir, &opt.Options{ReadOnly: conf.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("open cooldown db: %w", err)
	}
	return &DB{conf: conf, ldb: ldb}, nil
}

// Load returns every cooldown stored in the database. Records that cannot be decoded are skipped.
func (db *DB) Load() ([]cooldown.Entry, error) {
	iter := db.ldb.NewIterator(util.BytesPrefix(keyPrefix), nil)
	defer iter.Release()

	var entries []cooldown.Entry
	for iter.Next() {
		e, err := decode(iter.Key(), iter.Value())
		if err != nil {
			db.conf.Log.Warn("Skipping cooldown record.", "err", err)
			continue
		}
		entries = append(entries, e)
	}
	if err := iter.Error(); err != nil {
		return entries, fmt.Errorf("iterate cooldown db: %w", err)
	}
	return entries, nil
}

// Save replaces every stored cooldown with the entries passed. The replacement is written atomically.
func (db *DB) Save(entries []cooldown.Entry) error {
	if db.conf.ReadOnly {
		return errors.New("save cooldowns: database opened read only")
	}
	batch := new(leveldb.Batch)
	iter := db.ldb.NewIterator(util.BytesPrefix(keyPrefix), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("iterate cooldown db: %w", err)
	}
	for _, e := range entries {
		batch.Put(key(e.ID), value(e.Expires))
	}
	if err := db.ldb.Write(batch, nil); err != nil {
		return fmt.Errorf("write cooldowns: %w", err)
	}
	return nil
}

// Close closes the underlying database.
func (db *DB) Close() error {
	return db.ldb.Close()
}

func key(id uuid.UUID) []byte {
	return append(append(make([]byte, 0, len(keyPrefix)+16), keyPrefix...), id[:]...)
}

func value(expires time.Time) []byte {
	return binary.BigEndian.AppendUint64(nil, uint64(expires.UnixMilli()))
}

func decode(k, v []byte) (cooldown.Entry, error) {
	raw := k[len(keyPrefix):]
	id, err := uuid.FromBytes(raw)
	if err != nil {
		return cooldown.Entry{}, fmt.Errorf("decode cooldown key: %w", err)
	}
	if len(v) != 8 {
		return cooldown.Entry{}, fmt.Errorf("decode cooldown %v: expected 8 bytes, got %d", id, len(v))
	}
	return cooldown.Entry{ID: id, Expires: time.UnixMilli(int64(binary.BigEndian.Uint64(v)))}, nil
}
