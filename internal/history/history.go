package history

import (
	"fmt"
	"os"
	"slices"
	"sync"

	json "github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-desk/internal/observability"
)

// MaxEntries is the number of cities kept in the history file.
const MaxEntries = 10

// Store keeps recently searched city names, most recent first, in a single JSON file.
// The whole list is rewritten on every mutation.
type Store struct {
	mu      sync.Mutex
	path    string
	entries []string
	logger  *zap.Logger
}

// Load reads the history file at path. A missing or unparsable file yields an empty store;
// the parse failure is not returned.
func Load(path string, logger *zap.Logger) *Store {
	s := &Store{path: path, logger: logger}
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) && logger != nil {
			logger.Debug("history file unreadable", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	var entries []string
	if err := json.Unmarshal(data, &entries); err != nil {
		if logger != nil {
			logger.Debug("history file unparsable", zap.String("path", path), zap.Error(err))
		}
		return s
	}
	if len(entries) > MaxEntries {
		entries = entries[:MaxEntries]
	}
	s.entries = entries
	return s
}

// Add inserts city at the front unless it is already present, in which case the
// existing position is kept and nothing is written.
func (s *Store) Add(city string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if slices.Contains(s.entries, city) {
		return nil
	}
	s.entries = append([]string{city}, s.entries...)
	if len(s.entries) > MaxEntries {
		s.entries = s.entries[:MaxEntries]
	}
	return s.persistLocked()
}

// Persist overwrites the backing file with the current list.
func (s *Store) Persist() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.persistLocked()
}

func (s *Store) persistLocked() error {
	entries := s.entries
	if entries == nil {
		entries = []string{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		observability.HistoryWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("encode history: %w", err)
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		observability.HistoryWritesTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("write history %s: %w", s.path, err)
	}
	observability.HistoryWritesTotal.WithLabelValues("success").Inc()
	return nil
}

// Entries returns a copy of the list, most recent first.
func (s *Store) Entries() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.entries)
}

// Suggestions returns at most n entries from the front of the list.
func (s *Store) Suggestions(n int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n <= 0 || n > len(s.entries) {
		n = len(s.entries)
	}
	return slices.Clone(s.entries[:n])
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}
