package queue

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var seqKey = []byte("!queue!seq")

// BadgerStore keeps each list as a run of keys "<key>\x00<seq>", where seq is
// a zero-padded value from a persistent Badger sequence. Prefix iteration
// therefore yields insertion order.
type BadgerStore struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens a Badger database at path. An empty path opens an
// in-memory instance.
func OpenBadger(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log.With().Str("component", "badger").Logger()})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence(seqKey, 128)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq}, nil
}

func itemPrefix(key string) []byte { return []byte(key + "\x00") }

func (s *BadgerStore) Push(_ context.Context, key string, item []byte) error {
	n, err := s.seq.Next()
	if err != nil {
		return err
	}
	k := fmt.Appendf(itemPrefix(key), "%020d", n)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(k, item)
	})
}

func (s *BadgerStore) Range(_ context.Context, key string) ([][]byte, error) {
	prefix := itemPrefix(key)
	var out [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			out = append(out, val)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) DeleteAll(_ context.Context, key string) error {
	prefix := itemPrefix(key)
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil || len(keys) == 0 {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}
	return wb.Flush()
}

func (s *BadgerStore) Ping(context.Context) error {
	if s.db.IsClosed() {
		return errors.New("badger: closed")
	}
	return nil
}

func (s *BadgerStore) Close() error {
	if s.db.IsClosed() {
		return nil
	}
	if err := s.seq.Release(); err != nil {
		log.Warn().Err(err).Msg("badger sequence release")
	}
	return s.db.Close()
}

// badgerLogger routes Badger's internal logging through zerolog.
type badgerLogger struct{ l zerolog.Logger }

func (b badgerLogger) Errorf(f string, args ...any)   { b.l.Error().Msgf(f, args...) }
func (b badgerLogger) Warningf(f string, args ...any) { b.l.Warn().Msgf(f, args...) }
func (b badgerLogger) Infof(f string, args ...any)    { b.l.Debug().Msgf(f, args...) }
func (b badgerLogger) Debugf(f string, args ...any)   { b.l.Trace().Msgf(f, args...) }
