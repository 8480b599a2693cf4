package storage

import (
	"path/filepath"
	"sync"

	"github.com/MixinNetwork/tcpipc/logger"
	"github.com/dgraph-io/badger/v3"
	"github.com/dgraph-io/badger/v3/options"
)

type BadgerStore struct {
	mutex    sync.Mutex
	journal  *badger.DB
	sequence uint64
	closing  bool
}

func NewBadgerStore(dir string) (*BadgerStore, error) {
	db, err := openDB(filepath.Join(dir, "journal"), true)
	if err != nil {
		return nil, err
	}
	seq, err := readLastSequence(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	logger.Verbosef("Badger journal %s sequence %d\n", dir, seq)
	return &BadgerStore{
		journal:  db,
		sequence: seq,
	}, nil
}

func (s *BadgerStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closing {
		return nil
	}
	s.closing = true
	return s.journal.Close()
}

func openDB(dir string, sync bool) (*badger.DB, error) {
	opts := badger.DefaultOptions(dir)
	opts = opts.WithSyncWrites(sync)
	opts = opts.WithCompression(options.None)
	opts = opts.WithBlockCacheSize(0)
	opts = opts.WithIndexCacheSize(0)
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithNumVersionsToKeep(1)
	return badger.Open(opts)
}
