package storage

import (
	"context"
	"errors"
	"time"

	"github.com/xaenox/voice-intent-bot/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

// SessionStore keeps the dialogue state of active calls.
type SessionStore interface {
	GetSession(ctx context.Context, callID string) (*models.Session, error)
	SaveSession(ctx context.Context, session *models.Session) error
	DeleteSession(ctx context.Context, callID string) error
}

// LogStore accumulates call transcripts until the call ends.
type LogStore interface {
	Append(ctx context.Context, callID string, entry models.LogEntry) error
	Entries(ctx context.Context, callID string) ([]models.LogEntry, error)
	// Flush hands the log to durable storage and forgets it. Entries
	// appended afterwards start a new log.
	Flush(ctx context.Context, callID string) error
}

type Storage interface {
	SessionStore
	LogStore
	Expire(ctx context.Context, ttl time.Duration) (int, error)
	Close() error
}

// TranscriptSink persists finished call logs.
type TranscriptSink interface {
	WriteTranscript(ctx context.Context, callID string, entries []models.LogEntry) error
	Close() error
}
