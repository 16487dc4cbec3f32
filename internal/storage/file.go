package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/xaenox/voice-intent-bot/internal/models"
)

// FileSink writes one plain-text transcript per call. Existing transcripts
// are never overwritten: a second log for the same call gets a numbered name.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating transcript dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// FormatTranscript renders entries as "timestamp SPEAKER: text" lines.
func FormatTranscript(entries []models.LogEntry) string {
	var b strings.Builder
	for _, e := range entries {
		fmt.Fprintf(&b, "%s %s: %s\n", e.At.Format(time.RFC3339), e.Speaker, e.Text)
	}
	return b.String()
}

// SafeName strips path elements from a caller supplied identifier.
func SafeName(id string) string {
	name := filepath.Base(filepath.Clean("/" + id))
	if name == "/" || name == "." {
		return "unknown"
	}
	return name
}

func (f *FileSink) WriteTranscript(ctx context.Context, callID string, entries []models.LogEntry) error {
	tmp := filepath.Join(f.dir, ".tmp-"+uuid.New().String())
	defer os.Remove(tmp)
	if err := os.WriteFile(tmp, []byte(FormatTranscript(entries)), 0o644); err != nil {
		return fmt.Errorf("writing transcript: %w", err)
	}

	name, err := f.reserve(SafeName(callID))
	if err != nil {
		return err
	}
	if err := os.Rename(tmp, name); err != nil {
		os.Remove(name)
		return fmt.Errorf("publishing transcript: %w", err)
	}
	return nil
}

// reserve creates an empty placeholder under the first free name, so an
// earlier transcript of the same call is never replaced.
func (f *FileSink) reserve(base string) (string, error) {
	for n := 1; ; n++ {
		name := base + ".txt"
		if n > 1 {
			name = fmt.Sprintf("%s-%d.txt", base, n)
		}
		path := filepath.Join(f.dir, name)
		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
		if err == nil {
			return path, file.Close()
		}
		if !os.IsExist(err) {
			return "", fmt.Errorf("reserving transcript name: %w", err)
		}
	}
}

// Path returns the location of the first transcript written for callID.
func (f *FileSink) Path(callID string) string {
	return filepath.Join(f.dir, SafeName(callID)+".txt")
}

func (f *FileSink) Close() error {
	return nil
}
