// Package store owns the process-wide outfit state and its persistence.
package store

import (
	"context"
	"database/sql"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/hpungsan/wardrobe/internal/db"
	"github.com/hpungsan/wardrobe/internal/outfit"
)

// Store serializes every mutation of the state and writes it through to
// sqlite. The zero value is not usable; call New.
type Store struct {
	db              *sql.DB
	logger          *zap.Logger
	defaultTemplate string

	mu    sync.Mutex
	state *outfit.State
}

// New returns a store over an initialized database. defaultTemplate fills a
// blank prompt template on load.
func New(database *sql.DB, defaultTemplate string, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: database, logger: logger, defaultTemplate: defaultTemplate}
}

// DefaultTemplate returns the template used when none is configured.
func (s *Store) DefaultTemplate() string {
	return s.defaultTemplate
}

// Load returns the process-wide state, reading it on the first call. A missing
// record yields defaults. Later calls return the same instance.
//
// Callers must not mutate the returned state; use Update.
func (s *Store) Load(ctx context.Context) (*outfit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loadLocked(ctx)
}

func (s *Store) loadLocked(ctx context.Context) (*outfit.State, error) {
	if s.state != nil {
		return s.state, nil
	}

	st, err := db.LoadState(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if st == nil {
		s.logger.Info("no saved state, using defaults")
		st = outfit.NewState(s.defaultTemplate)
	}
	if strings.TrimSpace(st.PromptTemplate) == "" {
		st.PromptTemplate = s.defaultTemplate
	}
	if st.EnsureSchemaKeys() {
		s.logger.Debug("backfilled schema keys on load")
	}

	s.state = st
	return s.state, nil
}

// Snapshot returns a deep copy of the state for readers.
func (s *Store) Snapshot(ctx context.Context) (*outfit.State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, err := s.loadLocked(ctx)
	if err != nil {
		return nil, err
	}
	return st.Clone(), nil
}

// Update runs fn against the state under the store lock, re-establishes the
// schema invariant and persists. If fn or the write fails the state is
// restored to what it was before the call and the error is returned.
func (s *Store) Update(ctx context.Context, fn func(*outfit.State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}

	backup := st.Clone()
	if err := fn(st); err != nil {
		*st = *backup
		return err
	}
	st.EnsureSchemaKeys()

	if err := db.SaveState(ctx, s.db, st); err != nil {
		*st = *backup
		s.logger.Error("persist failed, state rolled back", zap.Error(err))
		return err
	}
	return nil
}

// Persist writes the current state as is.
func (s *Store) Persist(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	return db.SaveState(ctx, s.db, st)
}
