// Package entitlement keeps the off-ledger record of confirmed purchases.
package entitlement

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

// Purchase is one mirrored purchase. Records are never mutated.
type Purchase struct {
	ArticleID    int64     `json:"articleId" db:"article_id"`
	BuyerAddress string    `json:"userAddress" db:"user_address"`
	TxRef        string    `json:"transactionReference" db:"transaction_hash"`
	Price        string    `json:"price" db:"price"`
	PurchasedAt  time.Time `json:"purchasedAt" db:"purchased_at"`
}

// Store captures the persistence surface of the entitlement mirror.
type Store interface {
	// Insert fails with DUPLICATE_PURCHASE when the (article, buyer) pair or the tx reference exists.
	Insert(ctx context.Context, p *Purchase) error
	Exists(ctx context.Context, articleID int64, buyer string) (bool, error)
	// ListByBuyer returns the buyer's purchases, most recent first.
	ListByBuyer(ctx context.Context, buyer string) ([]Purchase, error)
	DeleteAll(ctx context.Context) (int64, error)
}

// Config configures the entitlement service.
type Config struct {
	Store  Store
	Logger *logging.Logger
	Now    func() time.Time
}

// Service validates and normalizes input before it reaches the store.
type Service struct {
	store  Store
	logger *logging.Logger
	now    func() time.Time
}

// New creates an entitlement service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("entitlement: store required")
	}
	s := &Service{store: cfg.Store, logger: cfg.Logger, now: cfg.Now}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// amountRe matches the purchases.price NUMERIC(78,0) column.
var amountRe = regexp.MustCompile(`^0*[0-9]{1,78}$`)

// NormalizeBuyer validates a buyer address and returns its canonical lowercase form.
func NormalizeBuyer(address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", errors.Validation("userAddress", "user address is required")
	}
	norm, err := chain.NormalizeAddress(address)
	if err != nil {
		return "", errors.Validation("userAddress", "invalid address format")
	}
	return norm, nil
}

// ParseArticleID validates a numeric article id.
func ParseArticleID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.Validation("articleId", "article id must be a positive integer")
	}
	return id, nil
}

func normalizeTxRef(ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", errors.Validation("transactionReference", "transaction reference is required")
	}
	if len(ref) > 128 {
		return "", errors.Validation("transactionReference", "transaction reference too long")
	}
	if strings.HasPrefix(ref, "0x") || strings.HasPrefix(ref, "0X") {
		ref = strings.ToLower(ref)
	}
	return ref, nil
}

// RecordPurchase mirrors a ledger-confirmed purchase. A repeated (article, buyer) pair or a
// repeated transaction reference fails with DUPLICATE_PURCHASE and leaves state unchanged.
func (s *Service) RecordPurchase(ctx context.Context, articleID int64, buyer, txRef, price string) (*Purchase, error) {
	if articleID <= 0 {
		return nil, errors.Validation("articleId", "article id must be a positive integer")
	}
	buyer, err := NormalizeBuyer(buyer)
	if err != nil {
		return nil, err
	}
	txRef, err = normalizeTxRef(txRef)
	if err != nil {
		return nil, err
	}
	price = strings.TrimSpace(price)
	if !amountRe.MatchString(price) {
		return nil, errors.Validation("price", "price must be a non-negative integer in atomic units of at most 78 digits")
	}

	p := &Purchase{
		ArticleID:    articleID,
		BuyerAddress: buyer,
		TxRef:        txRef,
		Price:        price,
		PurchasedAt:  s.now().UTC(),
	}
	if err := s.store.Insert(ctx, p); err != nil {
		if errors.Is(err, errors.CodeDuplicatePurchase) {
			s.logger.WithContext(ctx).WithFields(map[string]interface{}{
				"article_id": articleID,
				"buyer":      buyer,
				"tx_ref":     txRef,
			}).Info("Duplicate purchase ignored")
			return nil, err
		}
		return nil, errors.Internal("failed to record purchase", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"article_id": articleID,
		"buyer":      buyer,
		"tx_ref":     txRef,
	}).Info("Purchase recorded")
	return p, nil
}

// VerifyPurchase reports whether buyer has a mirrored purchase of articleID.
func (s *Service) VerifyPurchase(ctx context.Context, articleID int64, buyer string) (bool, error) {
	buyer, err := NormalizeBuyer(buyer)
	if err != nil {
		return false, err
	}
	ok, err := s.store.Exists(ctx, articleID, buyer)
	if err != nil {
		return false, errors.Internal("failed to verify purchase", err)
	}
	return ok, nil
}

// ListPurchases returns buyer's purchases, most recent first.
func (s *Service) ListPurchases(ctx context.Context, buyer string) ([]Purchase, error) {
	buyer, err := NormalizeBuyer(buyer)
	if err != nil {
		return nil, err
	}
	purchases, err := s.store.ListByBuyer(ctx, buyer)
	if err != nil {
		return nil, errors.Internal("failed to list purchases", err)
	}
	return purchases, nil
}

// ListPurchasedArticleIDs returns the article ids bought by buyer, most recent first.
func (s *Service) ListPurchasedArticleIDs(ctx context.Context, buyer string) ([]int64, error) {
	purchases, err := s.ListPurchases(ctx, buyer)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(purchases))
	for _, p := range purchases {
		ids = append(ids, p.ArticleID)
	}
	return ids, nil
}

// Reset deletes every purchase record. Administrative only.
func (s *Service) Reset(ctx context.Context) (int64, error) {
	n, err := s.store.DeleteAll(ctx)
	if err != nil {
		return 0, errors.Internal("failed to reset purchases", err)
	}
	s.logger.LogSecurityEvent(ctx, "purchases_reset", map[string]interface{}{"deleted": n})
	return n, nil
}
