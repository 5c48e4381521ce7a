// Package badgerstore implements the store contracts on an embedded
// BadgerDB. Documents are stored as JSON under typed key prefixes; the code
// and recency indexes are plain keys maintained inside the same transaction
// as the documents they point at.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"

	"github.com/huddlekit/huddle-server/internal/v1/logging"
	"github.com/huddlekit/huddle-server/internal/v1/store"
)

// Config holds configuration for the embedded store.
type Config struct {
	// Path is the directory for database files. Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence). Used by tests
	// and development setups.
	InMemory bool

	// SyncWrites enables synchronous writes for durability.
	SyncWrites bool

	// GCInterval is how often to run value log garbage collection.
	// Zero disables GC (always disabled in memory mode).
	GCInterval time.Duration

	// GCDiscardRatio is the minimum ratio of discardable data before GC.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults for a persistent store at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:           path,
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests: no disk, no GC.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// Store implements store.Store on BadgerDB.
type Store struct {
	db *badger.DB

	chatRooms    *chatRooms
	messages     *messages
	users        *users
	videoRooms   *videoRooms
	participants *videoParticipants

	gcStop chan struct{}
	gcDone chan struct{}
}

// Open opens the database and starts the GC loop when configured.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("badgerstore: path is required for persistent mode")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("badgerstore: create directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites)
	opts = opts.WithLogger(badgerLogger{})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}

	s := &Store{db: db}
	s.chatRooms = &chatRooms{db: db}
	s.messages = &messages{db: db}
	s.users = &users{db: db}
	s.videoRooms = &videoRooms{db: db}
	s.participants = &videoParticipants{db: db}

	if !cfg.InMemory && cfg.GCInterval > 0 {
		s.gcStop = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}

	return s, nil
}

func (s *Store) ChatRooms() store.ChatRooms                 { return s.chatRooms }
func (s *Store) Messages() store.Messages                   { return s.messages }
func (s *Store) Users() store.Users                         { return s.users }
func (s *Store) VideoRooms() store.VideoRooms               { return s.videoRooms }
func (s *Store) VideoParticipants() store.VideoParticipants { return s.participants }

// Ping verifies the database still accepts transactions.
func (s *Store) Ping(_ context.Context) error {
	if s.db.IsClosed() {
		return store.ErrUnavailable
	}
	return mapErr(s.db.View(func(*badger.Txn) error { return nil }))
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.gcStop != nil {
		close(s.gcStop)
		<-s.gcDone
		s.gcStop = nil
	}
	return s.db.Close()
}

// runGC periodically rewrites the value log. ErrNoRewrite just means there
// was nothing worth collecting.
func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.gcStop:
			return
		case <-ticker.C:
			err := s.db.RunValueLogGC(ratio)
			switch {
			case err == nil:
				logging.Debug(context.Background(), "badger value log GC completed")
			case errors.Is(err, badger.ErrNoRewrite):
				// nothing to collect
			default:
				logging.Warn(context.Background(), "badger value log GC error", zap.Error(err))
			}
		}
	}
}

// badgerLogger routes BadgerDB's internal logging into zap at debug level;
// the store's own operations are logged by callers.
type badgerLogger struct{}

func (badgerLogger) Errorf(format string, args ...interface{}) {
	logging.GetLogger().Error(fmt.Sprintf("badger: "+format, args...))
}

func (badgerLogger) Warningf(format string, args ...interface{}) {
	logging.GetLogger().Warn(fmt.Sprintf("badger: "+format, args...))
}

func (badgerLogger) Infof(format string, args ...interface{}) {
	logging.GetLogger().Debug(fmt.Sprintf("badger: "+format, args...))
}

func (badgerLogger) Debugf(format string, args ...interface{}) {
	logging.GetLogger().Debug(fmt.Sprintf("badger: "+format, args...))
}

// mapErr translates BadgerDB errors onto the store sentinels.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, badger.ErrKeyNotFound):
		return store.ErrNotFound
	case errors.Is(err, badger.ErrConflict):
		return store.ErrConflict
	case errors.Is(err, badger.ErrDBClosed), errors.Is(err, badger.ErrBlockedWrites):
		return fmt.Errorf("%w: %v", store.ErrUnavailable, err)
	default:
		return err
	}
}
