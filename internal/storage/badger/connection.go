package badger

import (
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/vigil/internal/common"
	"github.com/timshannon/badgerhold/v4"
)

const txnConflictRetries = 3

// BadgerDB wraps the badgerhold store behind the per-entity storages.
type BadgerDB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.BadgerConfig
}

// NewBadgerDB opens (or creates) the database at config.Path. With
// reset_on_startup the existing directory is wiped first, which is only
// meant for local development.
func NewBadgerDB(logger arbor.ILogger, config *common.BadgerConfig) (*BadgerDB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("reset_on_startup: removing existing database")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("Could not remove database directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil // arbor does the logging

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", config.Path, err)
	}
	logger.Debug().Str("path", config.Path).Msg("Badger database opened")

	return &BadgerDB{store: store, logger: logger, config: config}, nil
}

// Store returns the badgerhold store for typed queries.
func (b *BadgerDB) Store() *badgerhold.Store {
	return b.store
}

// Badger exposes the raw database for transactions and value-log GC.
func (b *BadgerDB) Badger() *badgerdb.DB {
	return b.store.Badger()
}

// Update runs fn in a read-write transaction, retrying badger conflicts
// up to three times with a short jittered backoff. Anything other than a
// conflict fails immediately.
func (b *BadgerDB) Update(fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt <= txnConflictRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(time.Duration(rand.Intn(20)+5) * time.Millisecond)
			b.logger.Debug().Int("attempt", attempt).Msg("Retrying transaction after conflict")
		}
		err = b.store.Badger().Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return err
}

func (b *BadgerDB) Close() error {
	if b.store == nil {
		return nil
	}
	return b.store.Close()
}
