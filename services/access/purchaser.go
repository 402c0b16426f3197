package access

import (
	"context"
	"fmt"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
	"github.com/HugoJanow/ArticlePulse/internal/metrics"
	"github.com/HugoJanow/ArticlePulse/services/entitlement"
	"github.com/HugoJanow/ArticlePulse/services/ledger"
)

// PurchaseLedger is the write side of the entitlement ledger.
type PurchaseLedger interface {
	RecordPurchaseOnLedger(ctx context.Context, buyer string, articleID int64, priceAtomic string) (*ledger.Receipt, error)
}

// PurchaseRecords is the write side of the purchase mirror.
type PurchaseRecords interface {
	RecordPurchase(ctx context.Context, articleID int64, buyer, txRef, price string) (*entitlement.Purchase, error)
	Reset(ctx context.Context) (int64, error)
}

// PurchaseResult reports a ledger purchase and whether it reached the mirror.
type PurchaseResult struct {
	ledger.Receipt
	ArticleID int64  `json:"articleId"`
	Price     string `json:"price"`
	Mirrored  bool   `json:"mirrored"`
}

// PurchaserConfig configures the Purchaser.
type PurchaserConfig struct {
	Broker  *Broker
	Ledger  PurchaseLedger
	Records PurchaseRecords
	Logger  *logging.Logger
}

// Purchaser pays for articles on the ledger and mirrors confirmed purchases.
type Purchaser struct {
	broker  *Broker
	ledger  PurchaseLedger
	records PurchaseRecords
	logger  *logging.Logger
}

// NewPurchaser creates a Purchaser.
func NewPurchaser(cfg PurchaserConfig) (*Purchaser, error) {
	switch {
	case cfg.Broker == nil:
		return nil, fmt.Errorf("access: broker required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("access: purchase ledger required")
	case cfg.Records == nil:
		return nil, fmt.Errorf("access: purchase records required")
	}
	p := &Purchaser{broker: cfg.Broker, ledger: cfg.Ledger, records: cfg.Records, logger: cfg.Logger}
	if p.logger == nil {
		p.logger = logging.Default()
	}
	return p, nil
}

// Purchase buys ref for buyer at the catalog price. A buyer already entitled gets
// DUPLICATE_PURCHASE before any transaction is sent. A mirror failure after a successful ledger
// purchase is logged and reported with Mirrored false; reads still succeed through the ledger.
func (p *Purchaser) Purchase(ctx context.Context, ref, buyer string) (*PurchaseResult, error) {
	buyer, err := NormalizeRequester(buyer)
	if err != nil {
		return nil, err
	}
	article, err := p.broker.articles.Sealed(ctx, ref)
	if err != nil {
		return nil, err
	}

	switch d := p.broker.Decide(ctx, article.NumericID, buyer); d.Outcome {
	case Granted:
		return nil, errors.DuplicatePurchase("article already purchased by this address")
	case Indeterminate:
		return nil, errors.Internal("could not verify existing purchase", d.Err)
	}

	receipt, err := p.ledger.RecordPurchaseOnLedger(ctx, buyer, article.NumericID, article.Price)
	if err != nil {
		metrics.RecordPurchase(string(errors.CodeOf(err)))
		return nil, err
	}

	result := &PurchaseResult{Receipt: *receipt, ArticleID: article.NumericID, Price: article.Price}
	_, err = p.records.RecordPurchase(ctx, article.NumericID, buyer, receipt.TransactionReference, article.Price)
	switch {
	case err == nil, errors.Is(err, errors.CodeDuplicatePurchase):
		result.Mirrored = true
		p.broker.remember(ctx, article.NumericID, buyer)
		metrics.RecordPurchase("mirrored")
	default:
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"article_id": article.NumericID,
			"buyer":      buyer,
			"tx_ref":     receipt.TransactionReference,
		}).Error("Ledger purchase succeeded but could not be mirrored")
		metrics.RecordPurchase("unmirrored")
	}
	return result, nil
}

// Record mirrors a purchase the buyer paid for from their own wallet.
func (p *Purchaser) Record(ctx context.Context, articleID int64, buyer, txRef, price string) (*entitlement.Purchase, error) {
	purchase, err := p.records.RecordPurchase(ctx, articleID, buyer, txRef, price)
	if err != nil {
		metrics.RecordPurchase(string(errors.CodeOf(err)))
		return nil, err
	}
	metrics.RecordPurchase("mirrored")
	p.broker.remember(ctx, purchase.ArticleID, purchase.BuyerAddress)
	return purchase, nil
}

// Reset deletes every mirrored purchase and drops cached grants.
func (p *Purchaser) Reset(ctx context.Context) (int64, error) {
	n, err := p.records.Reset(ctx)
	if err != nil {
		return 0, err
	}
	if err := p.broker.cache.Clear(ctx); err != nil {
		p.logger.WithContext(ctx).WithError(err).Warn("Grant cache clear failed")
	}
	return n, nil
}
