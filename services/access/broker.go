// Package access decides who may read an article and hands out decrypted content.
package access

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
	"github.com/HugoJanow/ArticlePulse/internal/metrics"
	"github.com/HugoJanow/ArticlePulse/services/catalog"
)

// Outcome is the result class of an access decision.
type Outcome string

const (
	Granted       Outcome = "granted"
	Denied        Outcome = "denied"
	Indeterminate Outcome = "indeterminate"
)

// Source names the authority that settled a decision.
type Source string

const (
	SourceCache  Source = "cache"
	SourceLedger Source = "ledger"
	SourceStore  Source = "store"
)

// Decision is a tagged access result. Err is set for Indeterminate.
type Decision struct {
	Outcome Outcome
	Source  Source
	Err     error
}

// Articles resolves sealed articles.
type Articles interface {
	Sealed(ctx context.Context, ref string) (*catalog.Article, error)
}

// Ledger is the read side of the entitlement ledger.
type Ledger interface {
	HasAccess(ctx context.Context, buyer string, articleID int64) (bool, error)
}

// Entitlements is the read side of the purchase mirror.
type Entitlements interface {
	VerifyPurchase(ctx context.Context, articleID int64, buyer string) (bool, error)
}

// Decrypter opens article ciphertext.
type Decrypter interface {
	Decrypt(ciphertext, key string) (string, error)
}

// Content is a decrypted article body handed to an entitled reader.
type Content struct {
	ID         int64     `json:"id"`
	Title      string    `json:"title"`
	Author     string    `json:"author"`
	Content    string    `json:"content"`
	AccessedAt time.Time `json:"accessedAt"`
}

// Config configures the broker. Cache is optional.
type Config struct {
	Articles     Articles
	Ledger       Ledger
	Entitlements Entitlements
	Codec        Decrypter
	Cache        GrantCache
	Logger       *logging.Logger
}

// Broker consults the ledger first and the purchase mirror second. Checks never write.
type Broker struct {
	articles     Articles
	ledger       Ledger
	entitlements Entitlements
	codec        Decrypter
	cache        GrantCache
	logger       *logging.Logger
}

// NewBroker creates an access broker.
func NewBroker(cfg Config) (*Broker, error) {
	switch {
	case cfg.Articles == nil:
		return nil, fmt.Errorf("access: articles required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("access: ledger required")
	case cfg.Entitlements == nil:
		return nil, fmt.Errorf("access: entitlements required")
	case cfg.Codec == nil:
		return nil, fmt.Errorf("access: codec required")
	}
	b := &Broker{
		articles:     cfg.Articles,
		ledger:       cfg.Ledger,
		entitlements: cfg.Entitlements,
		codec:        cfg.Codec,
		cache:        cfg.Cache,
		logger:       cfg.Logger,
	}
	if b.cache == nil {
		b.cache = NoCache{}
	}
	if b.logger == nil {
		b.logger = logging.Default()
	}
	return b, nil
}

// NormalizeRequester validates the requester address. Empty is AUTHENTICATION_REQUIRED.
func NormalizeRequester(address string) (string, error) {
	if strings.TrimSpace(address) == "" {
		return "", errors.AuthenticationRequired("")
	}
	norm, err := chain.NormalizeAddress(address)
	if err != nil {
		return "", errors.Validation("userAddress", "invalid address format")
	}
	return norm, nil
}

// Decide runs the entitlement chain for a normalized buyer: cache, ledger, then mirror.
func (b *Broker) Decide(ctx context.Context, articleID int64, buyer string) Decision {
	log := b.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"article_id": articleID,
		"buyer":      buyer,
	})

	if ok, err := b.cache.Has(ctx, articleID, buyer); err != nil {
		log.WithError(err).Warn("Grant cache lookup failed")
	} else if ok {
		return b.record(Decision{Outcome: Granted, Source: SourceCache})
	}

	ok, err := b.ledger.HasAccess(ctx, buyer, articleID)
	switch {
	case err != nil:
		log.WithError(err).Warn("Ledger access check failed, falling back to purchase records")
	case ok:
		b.remember(ctx, articleID, buyer)
		return b.record(Decision{Outcome: Granted, Source: SourceLedger})
	}

	ok, err = b.entitlements.VerifyPurchase(ctx, articleID, buyer)
	if err != nil {
		log.WithError(err).Error("Purchase record check failed")
		return b.record(Decision{Outcome: Indeterminate, Source: SourceStore, Err: err})
	}
	if ok {
		b.remember(ctx, articleID, buyer)
		return b.record(Decision{Outcome: Granted, Source: SourceStore})
	}
	return b.record(Decision{Outcome: Denied, Source: SourceStore})
}

func (b *Broker) record(d Decision) Decision {
	metrics.RecordAccessDecision(string(d.Outcome), string(d.Source))
	return d
}

func (b *Broker) remember(ctx context.Context, articleID int64, buyer string) {
	if err := b.cache.Put(ctx, articleID, buyer); err != nil {
		b.logger.WithContext(ctx).WithError(err).Warn("Grant cache write failed")
	}
}

// Content returns the decrypted body of ref for requester.
func (b *Broker) Content(ctx context.Context, ref, requester string) (*Content, Decision, error) {
	buyer, err := NormalizeRequester(requester)
	if err != nil {
		return nil, Decision{}, err
	}
	article, err := b.articles.Sealed(ctx, ref)
	if err != nil {
		return nil, Decision{}, err
	}

	d := b.Decide(ctx, article.NumericID, buyer)
	switch d.Outcome {
	case Denied:
		return nil, d, errors.PurchaseRequired(strconv.FormatInt(article.NumericID, 10))
	case Indeterminate:
		return nil, d, errors.Internal("could not verify purchase", d.Err)
	}

	if !article.HasContent() {
		return nil, d, errors.NoContent(strconv.FormatInt(article.NumericID, 10))
	}
	plain, err := b.codec.Decrypt(article.Ciphertext, article.Key)
	if err != nil {
		b.logger.WithContext(ctx).WithError(err).WithFields(map[string]interface{}{
			"article_id": article.NumericID,
			"storage_id": article.StorageID,
			"buyer":      buyer,
			"source":     string(d.Source),
		}).Error("Stored content could not be decrypted")
		return nil, d, errors.ContentCorrupted(err)
	}

	b.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"article_id": article.NumericID,
		"buyer":      buyer,
		"source":     string(d.Source),
	}).Info("Content accessed")

	return &Content{
		ID:         article.NumericID,
		Title:      article.Title,
		Author:     article.Author,
		Content:    plain,
		AccessedAt: time.Now().UTC(),
	}, d, nil
}
