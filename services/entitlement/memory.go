package entitlement

import (
	"context"
	"sort"
	"sync"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

type pairKey struct {
	articleID int64
	buyer     string
}

type memoryRecord struct {
	Purchase
	seq int64
}

// MemoryStore is an in-process Store with the same uniqueness rules as the SQL schema.
type MemoryStore struct {
	mu     sync.RWMutex
	byPair map[pairKey]*memoryRecord
	byTx   map[string]struct{}
	seq    int64
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		byPair: make(map[pairKey]*memoryRecord),
		byTx:   make(map[string]struct{}),
	}
}

func (m *MemoryStore) Insert(_ context.Context, p *Purchase) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := pairKey{p.ArticleID, p.BuyerAddress}
	if _, ok := m.byPair[key]; ok {
		return errors.DuplicatePurchase("article already purchased by this address").WithDetails("constraint", "article_buyer")
	}
	if _, ok := m.byTx[p.TxRef]; ok {
		return errors.DuplicatePurchase("transaction reference already recorded").WithDetails("constraint", "transaction_reference")
	}
	m.seq++
	m.byPair[key] = &memoryRecord{Purchase: *p, seq: m.seq}
	m.byTx[p.TxRef] = struct{}{}
	return nil
}

func (m *MemoryStore) Exists(_ context.Context, articleID int64, buyer string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byPair[pairKey{articleID, buyer}]
	return ok, nil
}

func (m *MemoryStore) ListByBuyer(_ context.Context, buyer string) ([]Purchase, error) {
	m.mu.RLock()
	var recs []*memoryRecord
	for k, r := range m.byPair {
		if k.buyer == buyer {
			recs = append(recs, r)
		}
	}
	m.mu.RUnlock()

	sort.Slice(recs, func(i, j int) bool {
		a, b := recs[i], recs[j]
		if !a.PurchasedAt.Equal(b.PurchasedAt) {
			return a.PurchasedAt.After(b.PurchasedAt)
		}
		return a.seq > b.seq
	})
	out := make([]Purchase, 0, len(recs))
	for _, r := range recs {
		out = append(out, r.Purchase)
	}
	return out, nil
}

func (m *MemoryStore) DeleteAll(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := int64(len(m.byPair))
	m.byPair = make(map[pairKey]*memoryRecord)
	m.byTx = make(map[string]struct{})
	return n, nil
}
