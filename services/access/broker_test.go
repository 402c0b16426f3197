package access

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoJanow/ArticlePulse/internal/crypto"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
	"github.com/HugoJanow/ArticlePulse/services/catalog"
	"github.com/HugoJanow/ArticlePulse/services/entitlement"
	"github.com/HugoJanow/ArticlePulse/services/ledger"
)

const (
	reader    = "0x1234567890abcdef1234567890abcdef12345678"
	plaintext = "The full premium text."
	price     = "100000000000000000"
)

// fakeLedger is an in-memory ledger. down makes every call fail as unreachable.
type fakeLedger struct {
	mu       sync.Mutex
	owned    map[string]bool
	down     bool
	buyErr   error
	checks   int
	payments int
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{owned: map[string]bool{}}
}

func pair(articleID int64, buyer string) string {
	return fmt.Sprintf("%d/%s", articleID, buyer)
}

func (f *fakeLedger) setDown(v bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = v
}

func (f *fakeLedger) HasAccess(_ context.Context, buyer string, articleID int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.checks++
	if f.down {
		return false, errors.LedgerUnavailable(stderrors.New("connection refused"))
	}
	return f.owned[pair(articleID, buyer)], nil
}

func (f *fakeLedger) RecordPurchaseOnLedger(_ context.Context, buyer string, articleID int64, _ string) (*ledger.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return nil, errors.LedgerUnavailable(stderrors.New("connection refused"))
	}
	if f.buyErr != nil {
		return nil, f.buyErr
	}
	f.payments++
	f.owned[pair(articleID, buyer)] = true
	return &ledger.Receipt{
		ApprovalReference:    fmt.Sprintf("0xapprove%d", f.payments),
		TransactionReference: fmt.Sprintf("0xbuy%d", f.payments),
	}, nil
}

type memoryCache struct {
	mu     sync.Mutex
	grants map[string]bool
}

func newMemoryCache() *memoryCache {
	return &memoryCache{grants: map[string]bool{}}
}

func (c *memoryCache) Has(_ context.Context, articleID int64, buyer string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.grants[pair(articleID, buyer)], nil
}

func (c *memoryCache) Put(_ context.Context, articleID int64, buyer string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants[pair(articleID, buyer)] = true
	return nil
}

func (c *memoryCache) Clear(context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.grants = map[string]bool{}
	return nil
}

type failingEntitlements struct{}

func (failingEntitlements) VerifyPurchase(context.Context, int64, string) (bool, error) {
	return false, errors.Internal("failed to verify purchase", stderrors.New("db down"))
}

type fixture struct {
	catalog      *catalog.Service
	articleStore *catalog.MemoryStore
	entitlements *entitlement.Service
	ledger       *fakeLedger
	broker       *Broker
	purchaser    *Purchaser
}

func newFixture(t *testing.T, cache GrantCache) *fixture {
	t.Helper()
	logger := logging.NewDiscard()
	codec := crypto.New()

	f := &fixture{articleStore: catalog.NewMemoryStore(), ledger: newFakeLedger()}
	var err error
	f.catalog, err = catalog.New(catalog.Config{Store: f.articleStore, Codec: codec, Logger: logger})
	require.NoError(t, err)
	f.entitlements, err = entitlement.New(entitlement.Config{Store: entitlement.NewMemoryStore(), Logger: logger})
	require.NoError(t, err)
	f.broker, err = NewBroker(Config{
		Articles:     f.catalog,
		Ledger:       f.ledger,
		Entitlements: f.entitlements,
		Codec:        codec,
		Cache:        cache,
		Logger:       logger,
	})
	require.NoError(t, err)
	f.purchaser, err = NewPurchaser(PurchaserConfig{Broker: f.broker, Ledger: f.ledger, Records: f.entitlements, Logger: logger})
	require.NoError(t, err)
	return f
}

func (f *fixture) publish(t *testing.T, content string) catalog.PublicArticle {
	t.Helper()
	a, err := f.catalog.CreateArticle(context.Background(), catalog.NewArticle{
		Title:       "On Ledgers",
		Description: "A long enough description of ledgers.",
		Author:      "Ada",
		Price:       price,
		Content:     content,
	})
	require.NoError(t, err)
	return a
}

func TestContentRequiresAddress(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)

	_, _, err := f.broker.Content(context.Background(), "1", "")
	assert.True(t, errors.Is(err, errors.CodeAuthenticationRequired), "got %v", err)

	_, _, err = f.broker.Content(context.Background(), "1", "0xnothex")
	assert.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
}

func TestContentDeniedBeforePurchase(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)

	_, d, err := f.broker.Content(context.Background(), "1", reader)
	assert.True(t, errors.Is(err, errors.CodePurchaseRequired), "got %v", err)
	assert.Equal(t, Denied, d.Outcome)
}

func TestContentUnknownArticle(t *testing.T) {
	f := newFixture(t, nil)
	_, _, err := f.broker.Content(context.Background(), "7", reader)
	assert.True(t, errors.Is(err, errors.CodeNotFound), "got %v", err)
}

func TestLedgerGrantWins(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	f.ledger.owned[pair(1, reader)] = true

	c, d, err := f.broker.Content(context.Background(), "1", reader)
	require.NoError(t, err)
	assert.Equal(t, Decision{Outcome: Granted, Source: SourceLedger}, d)
	assert.Equal(t, plaintext, c.Content)
	assert.Equal(t, int64(1), c.ID)
}

func TestStoreFallbackWhenLedgerDown(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	f.ledger.setDown(true)
	ctx := context.Background()

	_, d, err := f.broker.Content(ctx, "1", reader)
	assert.True(t, errors.Is(err, errors.CodePurchaseRequired), "unreachable ledger without a record is a denial, got %v", err)
	assert.Equal(t, Denied, d.Outcome)

	_, err = f.entitlements.RecordPurchase(ctx, 1, reader, "0xaa", price)
	require.NoError(t, err)

	c, d, err := f.broker.Content(ctx, "1", reader)
	require.NoError(t, err)
	assert.Equal(t, SourceStore, d.Source)
	assert.Equal(t, plaintext, c.Content)
}

func TestStoreFallbackWhenLedgerSaysNo(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	ctx := context.Background()
	_, err := f.entitlements.RecordPurchase(ctx, 1, reader, "0xaa", price)
	require.NoError(t, err)

	_, d, err := f.broker.Content(ctx, "1", reader)
	require.NoError(t, err)
	assert.Equal(t, Decision{Outcome: Granted, Source: SourceStore}, d)
}

func TestStoreFailureIsNeverADenial(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	f.ledger.setDown(true)
	f.broker.entitlements = failingEntitlements{}

	_, d, err := f.broker.Content(context.Background(), "1", reader)
	assert.True(t, errors.Is(err, errors.CodeInternal), "got %v", err)
	assert.Equal(t, Indeterminate, d.Outcome)
}

func TestGrantedWithoutContent(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, "")
	f.ledger.owned[pair(1, reader)] = true

	_, _, err := f.broker.Content(context.Background(), "1", reader)
	assert.True(t, errors.Is(err, errors.CodeNoContent), "got %v", err)
}

func TestCorruptedContent(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	f.ledger.owned[pair(1, reader)] = true
	ctx := context.Background()
	stored, err := f.articleStore.GetByNumericID(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, f.articleStore.SwapSealed(ctx, 1, stored.Ciphertext, stored.Ciphertext, "another-key"))

	_, _, err = f.broker.Content(ctx, "1", reader)
	assert.True(t, errors.Is(err, errors.CodeContentCorrupted), "got %v", err)
}

func TestAccessIsMonotonic(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	ctx := context.Background()

	_, err := f.purchaser.Record(ctx, 1, reader, "0xaa", price)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		f.ledger.setDown(i%2 == 0)
		d := f.broker.Decide(ctx, 1, reader)
		assert.Equal(t, Granted, d.Outcome, "check %d", i)
	}
}

func TestGrantCacheShortCircuits(t *testing.T) {
	cache := newMemoryCache()
	f := newFixture(t, cache)
	f.publish(t, plaintext)
	f.ledger.owned[pair(1, reader)] = true
	ctx := context.Background()

	assert.Equal(t, SourceLedger, f.broker.Decide(ctx, 1, reader).Source)
	assert.Equal(t, SourceCache, f.broker.Decide(ctx, 1, reader).Source)
	assert.Equal(t, 1, f.ledger.checks)

	// denials are never cached
	other := "0xabcdefabcdefabcdefabcdefabcdefabcdefabcd"
	f.broker.Decide(ctx, 1, other)
	f.broker.Decide(ctx, 1, other)
	assert.Equal(t, 3, f.ledger.checks)
}

func TestNewBrokerRequiresDependencies(t *testing.T) {
	_, err := NewBroker(Config{})
	assert.Error(t, err)
}
