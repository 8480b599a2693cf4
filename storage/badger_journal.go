package storage

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v3"
)

const (
	journalPrefixMessage = "JOURNAL:MESSAGE:"
)

var ErrStoreClosed = errors.New("journal closed")

// WriteMessage appends rec under the next sequence, sequences start at 1 and
// never repeat within one journal directory.
func (s *BadgerStore) WriteMessage(rec *Record) (uint64, error) {
	if rec.Direction != DirectionIn && rec.Direction != DirectionOut {
		return 0, fmt.Errorf("invalid journal direction %s", rec.Direction)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closing {
		return 0, ErrStoreClosed
	}
	seq := s.sequence + 1
	if rec.Timestamp == 0 {
		rec.Timestamp = uint64(time.Now().UnixNano())
	}
	rec.Sequence = seq

	err := s.journal.Update(func(txn *badger.Txn) error {
		return txn.Set(journalMessageKey(seq), msgpackMarshalPanic(rec))
	})
	if err != nil {
		return 0, err
	}
	s.sequence = seq
	return seq, nil
}

// ReadMessages returns at most limit records with a sequence not below
// offset, in arrival order.
func (s *BadgerStore) ReadMessages(offset uint64, limit int) ([]*Record, error) {
	if limit <= 0 {
		return nil, nil
	}
	txn := s.journal.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = limit
	it := txn.NewIterator(opts)
	defer it.Close()

	var records []*Record
	prefix := []byte(journalPrefixMessage)
	for it.Seek(journalMessageKey(offset)); it.ValidForPrefix(prefix); it.Next() {
		v, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		var rec Record
		err = msgpackUnmarshal(v, &rec)
		if err != nil {
			return nil, err
		}
		records = append(records, &rec)
		if len(records) == limit {
			break
		}
	}
	return records, nil
}

func (s *BadgerStore) LastSequence() uint64 {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.sequence
}

func readLastSequence(db *badger.DB) (uint64, error) {
	txn := db.NewTransaction(false)
	defer txn.Discard()

	opts := badger.DefaultIteratorOptions
	opts.Reverse = true
	opts.PrefetchValues = false
	it := txn.NewIterator(opts)
	defer it.Close()

	prefix := []byte(journalPrefixMessage)
	it.Seek(journalMessageKey(^uint64(0)))
	if !it.ValidForPrefix(prefix) {
		return 0, nil
	}
	k := it.Item().Key()
	return binary.BigEndian.Uint64(k[len(prefix):]), nil
}

func journalMessageKey(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return append([]byte(journalPrefixMessage), buf...)
}
