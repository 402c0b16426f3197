package access

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/services/entitlement"
)

func TestPurchaseEndToEnd(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	article := f.publish(t, plaintext)
	require.Equal(t, int64(1), article.ID)

	_, _, err := f.broker.Content(ctx, "1", reader)
	require.True(t, errors.Is(err, errors.CodePurchaseRequired))

	res, err := f.purchaser.Purchase(ctx, "1", reader)
	require.NoError(t, err)
	assert.True(t, res.Mirrored)
	assert.Equal(t, price, res.Price)
	assert.Equal(t, "0xbuy1", res.TransactionReference)
	assert.Equal(t, "0xapprove1", res.ApprovalReference)

	ok, err := f.entitlements.VerifyPurchase(ctx, 1, reader)
	require.NoError(t, err)
	assert.True(t, ok)

	c, _, err := f.broker.Content(ctx, article.StorageID, reader)
	require.NoError(t, err)
	assert.Equal(t, plaintext, c.Content)
}

func TestPurchaseTwiceIsDuplicate(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	ctx := context.Background()

	_, err := f.purchaser.Purchase(ctx, "1", reader)
	require.NoError(t, err)
	_, err = f.purchaser.Purchase(ctx, "1", reader)
	assert.True(t, errors.Is(err, errors.CodeDuplicatePurchase), "got %v", err)
	assert.Equal(t, 1, f.ledger.payments)
}

func TestPurchasePropagatesLedgerErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	f.ledger.buyErr = errors.InsufficientBalance("0", "0.1")

	_, err := f.purchaser.Purchase(context.Background(), "1", reader)
	assert.True(t, errors.Is(err, errors.CodeInsufficientBalance), "got %v", err)

	ok, err := f.entitlements.VerifyPurchase(context.Background(), 1, reader)
	require.NoError(t, err)
	assert.False(t, ok)
}

type brokenRecords struct{}

func (brokenRecords) RecordPurchase(context.Context, int64, string, string, string) (*entitlement.Purchase, error) {
	return nil, errors.Internal("failed to record purchase", stderrors.New("db down"))
}

func (brokenRecords) Reset(context.Context) (int64, error) {
	return 0, nil
}

func TestPurchaseMirrorFailureStillSucceeds(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	f.purchaser.records = brokenRecords{}
	ctx := context.Background()

	res, err := f.purchaser.Purchase(ctx, "1", reader)
	require.NoError(t, err)
	assert.False(t, res.Mirrored)

	// the ledger still grants access
	c, d, err := f.broker.Content(ctx, "1", reader)
	require.NoError(t, err)
	assert.Equal(t, SourceLedger, d.Source)
	assert.Equal(t, plaintext, c.Content)
}

func TestRecordMirrorsClientPurchase(t *testing.T) {
	f := newFixture(t, nil)
	f.publish(t, plaintext)
	ctx := context.Background()

	p, err := f.purchaser.Record(ctx, 1, "0x1234567890ABCDEF1234567890ABCDEF12345678", "0xaa", price)
	require.NoError(t, err)
	assert.Equal(t, reader, p.BuyerAddress)

	_, err = f.purchaser.Record(ctx, 1, reader, "0xbb", price)
	assert.True(t, errors.Is(err, errors.CodeDuplicatePurchase))
}

func TestResetClearsRecordsAndCache(t *testing.T) {
	cache := newMemoryCache()
	f := newFixture(t, cache)
	f.publish(t, plaintext)
	ctx := context.Background()

	_, err := f.purchaser.Record(ctx, 1, reader, "0xaa", price)
	require.NoError(t, err)
	ok, _ := cache.Has(ctx, 1, reader)
	require.True(t, ok)

	n, err := f.purchaser.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	ok, _ = cache.Has(ctx, 1, reader)
	assert.False(t, ok)
	assert.Equal(t, Denied, f.broker.Decide(ctx, 1, reader).Outcome)
}
