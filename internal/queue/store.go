// Package queue holds the pending files of the workspace and the history of
// files whose extraction succeeded.
package queue

import (
	"errors"
	"sync"
	"time"

	"github.com/certscan/backend/internal/models"
)

var (
	// ErrLocked is returned by mutations attempted while a run is processing.
	ErrLocked = errors.New("queue is locked while a run is processing")
	// ErrIndexOutOfRange is returned by RemoveAt for a bad position.
	ErrIndexOutOfRange = errors.New("queue index out of range")
	// ErrNotQueued is returned when an entry ID is not pending.
	ErrNotQueued = errors.New("entry not in queue")
)

// Store is the ordered list of pending files plus the append-only history.
// Insertion order is preserved and duplicates are allowed.
type Store struct {
	mu      sync.RWMutex
	pending []models.FileRef
	history []models.HistoryEntry
	locked  bool
	now     func() time.Time
}

// NewStore creates an empty queue.
func NewStore() *Store {
	return &Store{now: time.Now}
}

// Enqueue appends entry to the tail.
func (s *Store) Enqueue(entry models.FileRef) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return ErrLocked
	}
	s.pending = append(s.pending, entry)
	return nil
}

// Head returns the oldest pending entry without removing it.
func (s *Store) Head() (models.FileRef, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.pending) == 0 {
		return models.FileRef{}, false
	}
	return s.pending[0], true
}

// DequeueHead removes and returns index 0. Only the run controller calls it,
// so it ignores the lock.
func (s *Store) DequeueHead() (models.FileRef, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.pending) == 0 {
		return models.FileRef{}, false
	}
	head := s.pending[0]
	s.pending = append(s.pending[:0:0], s.pending[1:]...)
	return head, true
}

// RemoveAt deletes the entry at index and returns it.
func (s *Store) RemoveAt(index int) (models.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return models.FileRef{}, ErrLocked
	}
	if index < 0 || index >= len(s.pending) {
		return models.FileRef{}, ErrIndexOutOfRange
	}
	removed := s.pending[index]
	s.pending = append(s.pending[:index:index], s.pending[index+1:]...)
	return removed, nil
}

// Remove deletes the first pending entry with the given ID.
func (s *Store) Remove(id string) (models.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return models.FileRef{}, ErrLocked
	}
	for i, entry := range s.pending {
		if entry.ID == id {
			s.pending = append(s.pending[:i:i], s.pending[i+1:]...)
			return entry, nil
		}
	}
	return models.FileRef{}, ErrNotQueued
}

// Clear drops every pending entry and returns what was removed.
func (s *Store) Clear() ([]models.FileRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return nil, ErrLocked
	}
	removed := s.pending
	s.pending = nil
	return removed, nil
}

// List returns a snapshot of the pending entries in order.
func (s *Store) List() []models.FileRef {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.FileRef, len(s.pending))
	copy(out, s.pending)
	return out
}

// Len returns the number of pending entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pending)
}

// AppendHistory records entry as successfully processed.
func (s *Store) AppendHistory(entry models.FileRef) models.HistoryEntry {
	s.mu.Lock()
	defer s.mu.Unlock()

	h := models.HistoryEntry{File: entry, ProcessedAt: s.now()}
	s.history = append(s.history, h)
	return h
}

// History returns a snapshot of the processed files in completion order.
func (s *Store) History() []models.HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.HistoryEntry, len(s.history))
	copy(out, s.history)
	return out
}

// Lock rejects user mutations until Unlock. It reports false when the queue
// was already locked.
func (s *Store) Lock() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.locked {
		return false
	}
	s.locked = true
	return true
}

// Unlock re-enables user mutations.
func (s *Store) Unlock() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locked = false
}

// Locked reports whether a run holds the queue.
func (s *Store) Locked() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.locked
}
