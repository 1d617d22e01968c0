package storage

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/certscan/backend/internal/models"
	"github.com/google/uuid"
)

// ErrNotFound is returned for unknown file IDs.
var ErrNotFound = errors.New("file not found")

// Store defines the interface for queued file content.
type Store interface {
	SaveBytes(name, mimeType string, data []byte) (*models.FileRef, error)
	Get(id string) (*models.FileRef, error)
	Content(id string) ([]byte, error)
	List(limit int) ([]*models.FileRef, error)
	Delete(id string) error
}

type blob struct {
	ref  *models.FileRef
	data []byte
}

// MemoryStore implements Store in process memory. Content is lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	files map[string]*blob
	now   func() time.Time
}

// NewMemoryStore creates a new MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		files: make(map[string]*blob),
		now:   time.Now,
	}
}

// SaveBytes stores data under a fresh ID.
func (s *MemoryStore) SaveBytes(name, mimeType string, data []byte) (*models.FileRef, error) {
	ref := &models.FileRef{
		ID:       uuid.New().String(),
		Name:     name,
		MIMEType: mimeType,
		Size:     int64(len(data)),
		AddedAt:  s.now(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[ref.ID] = &blob{ref: ref, data: data}

	return ref, nil
}

// Get retrieves file metadata by ID.
func (s *MemoryStore) Get(id string) (*models.FileRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	ref := *b.ref
	return &ref, nil
}

// Content returns the stored bytes. Callers must not modify the slice.
func (s *MemoryStore) Content(id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return b.data, nil
}

// List returns the most recent files first. A limit of zero or less returns
// every file.
func (s *MemoryStore) List(limit int) ([]*models.FileRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	list := make([]*models.FileRef, 0, len(s.files))
	for _, b := range s.files {
		ref := *b.ref
		list = append(list, &ref)
	}

	// Sort by AddedAt desc
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].AddedAt.Equal(list[j].AddedAt) {
			return list[i].Name < list[j].Name
		}
		return list[i].AddedAt.After(list[j].AddedAt)
	})

	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}

	return list, nil
}

// Delete removes a file from storage.
func (s *MemoryStore) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.files[id]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(s.files, id)
	return nil
}
