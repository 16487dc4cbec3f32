package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/xaenox/voice-intent-bot/internal/models"
	"go.uber.org/zap"
)

type callLog struct {
	entries    []models.LogEntry
	lastActive time.Time
}

// MemoryStorage keeps sessions and logs in process memory and writes
// flushed logs to a TranscriptSink.
type MemoryStorage struct {
	mu       sync.RWMutex
	sessions map[string]models.Session
	logs     map[string]*callLog
	sink     TranscriptSink
	logger   *zap.Logger
	now      func() time.Time
}

func NewMemoryStorage(sink TranscriptSink, logger *zap.Logger) *MemoryStorage {
	return &MemoryStorage{
		sessions: make(map[string]models.Session),
		logs:     make(map[string]*callLog),
		sink:     sink,
		logger:   logger,
		now:      time.Now,
	}
}

// Session methods
func (s *MemoryStorage) GetSession(ctx context.Context, callID string) (*models.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, exists := s.sessions[callID]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return &sess, nil
}

func (s *MemoryStorage) SaveSession(ctx context.Context, session *models.Session) error {
	if session.CallID == "" {
		return errors.New("session without call id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session.UpdatedAt = s.now()
	s.sessions[session.CallID] = *session
	return nil
}

func (s *MemoryStorage) DeleteSession(ctx context.Context, callID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, callID)
	return nil
}

// Log methods
func (s *MemoryStorage) Append(ctx context.Context, callID string, entry models.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log, exists := s.logs[callID]
	if !exists {
		log = &callLog{}
		s.logs[callID] = log
	}
	if entry.At.IsZero() {
		entry.At = s.now()
	}
	log.entries = append(log.entries, entry)
	log.lastActive = s.now()
	return nil
}

func (s *MemoryStorage) Entries(ctx context.Context, callID string) ([]models.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	log, exists := s.logs[callID]
	if !exists {
		return []models.LogEntry{}, nil
	}
	out := make([]models.LogEntry, len(log.entries))
	copy(out, log.entries)
	return out, nil
}

func (s *MemoryStorage) Flush(ctx context.Context, callID string) error {
	s.mu.Lock()
	log, exists := s.logs[callID]
	delete(s.logs, callID)
	s.mu.Unlock()

	if !exists || len(log.entries) == 0 {
		return nil
	}
	return s.write(ctx, callID, log.entries)
}

func (s *MemoryStorage) write(ctx context.Context, callID string, entries []models.LogEntry) error {
	if s.sink == nil {
		return nil
	}
	if err := s.sink.WriteTranscript(ctx, callID, entries); err != nil {
		return fmt.Errorf("writing transcript for %s: %w", callID, err)
	}
	return nil
}

// Expire drops sessions and logs idle for longer than ttl. Expired logs are
// flushed like logs of calls that ended normally. It returns the number of
// calls that were expired.
func (s *MemoryStorage) Expire(ctx context.Context, ttl time.Duration) (int, error) {
	cutoff := s.now().Add(-ttl)
	expired := make(map[string]struct{})
	stale := make(map[string][]models.LogEntry)

	s.mu.Lock()
	for id, sess := range s.sessions {
		if sess.UpdatedAt.Before(cutoff) {
			delete(s.sessions, id)
			expired[id] = struct{}{}
		}
	}
	for id, log := range s.logs {
		if log.lastActive.Before(cutoff) {
			delete(s.logs, id)
			expired[id] = struct{}{}
			stale[id] = log.entries
		}
	}
	s.mu.Unlock()

	var errs []error
	for id, entries := range stale {
		if err := s.write(ctx, id, entries); err != nil {
			errs = append(errs, err)
		}
	}
	return len(expired), errors.Join(errs...)
}

// Close flushes every pending log and closes the sink.
func (s *MemoryStorage) Close() error {
	s.mu.Lock()
	pending := s.logs
	s.logs = make(map[string]*callLog)
	s.mu.Unlock()

	var errs []error
	for id, log := range pending {
		if err := s.write(context.Background(), id, log.entries); err != nil {
			errs = append(errs, err)
		}
	}
	if s.sink != nil {
		errs = append(errs, s.sink.Close())
	}
	return errors.Join(errs...)
}
