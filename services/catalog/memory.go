package catalog

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

// MemoryStore keeps articles in process memory. Used in demo mode and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	byID    map[int64]*Article
	byUUID  map[string]int64
	maxID   int64
	nowFunc func() time.Time
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byID:    make(map[int64]*Article),
		byUUID:  make(map[string]int64),
		nowFunc: time.Now,
	}
}

func (m *MemoryStore) List(_ context.Context) ([]Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Article, 0, len(m.byID))
	for _, a := range m.byID {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NumericID < out[j].NumericID })
	return out, nil
}

func (m *MemoryStore) GetByStorageID(_ context.Context, storageID string) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byUUID[storageID]
	if !ok {
		return nil, errors.NotFound("article", storageID)
	}
	cp := *m.byID[id]
	return &cp, nil
}

func (m *MemoryStore) GetByNumericID(_ context.Context, id int64) (*Article, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.byID[id]
	if !ok {
		return nil, errors.NotFound("article", strconv.FormatInt(id, 10))
	}
	cp := *a
	return &cp, nil
}

func (m *MemoryStore) Create(_ context.Context, a *Article) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.byUUID[a.StorageID]; exists {
		return errors.Conflict("storage id already exists")
	}
	m.maxID++
	a.NumericID = m.maxID
	a.CreatedAt = m.nowFunc().UTC()
	cp := *a
	m.byID[a.NumericID] = &cp
	m.byUUID[a.StorageID] = a.NumericID
	return nil
}

func (m *MemoryStore) SwapSealed(_ context.Context, id int64, prevCiphertext, ciphertext, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.byID[id]
	if !ok {
		return errors.NotFound("article", strconv.FormatInt(id, 10))
	}
	if a.Ciphertext != prevCiphertext {
		return errors.Conflict("article content changed concurrently")
	}
	a.Ciphertext, a.Key = ciphertext, key
	return nil
}
