// Package catalog owns article metadata and encrypted bodies.
package catalog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

// Store captures the persistence surface needed by the catalog.
type Store interface {
	List(ctx context.Context) ([]Article, error)
	GetByStorageID(ctx context.Context, storageID string) (*Article, error)
	GetByNumericID(ctx context.Context, id int64) (*Article, error)
	// Create assigns NumericID (max + 1, starting at 1) and CreatedAt.
	Create(ctx context.Context, a *Article) error
	// SwapSealed replaces ciphertext and key only if the stored ciphertext still equals prevCiphertext.
	// A lost race returns CONFLICT.
	SwapSealed(ctx context.Context, id int64, prevCiphertext, ciphertext, key string) error
}

// Codec encrypts article bodies.
type Codec interface {
	GenerateKey() (string, error)
	Encrypt(plaintext, key string) (string, error)
	Decrypt(ciphertext, key string) (string, error)
}

// Config configures the catalog service.
type Config struct {
	Store  Store
	Codec  Codec
	Logger *logging.Logger
}

// Service implements article publishing and lookup.
type Service struct {
	store  Store
	codec  Codec
	logger *logging.Logger
}

// New creates a catalog service.
func New(cfg Config) (*Service, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("catalog: store required")
	}
	if cfg.Codec == nil {
		return nil, fmt.Errorf("catalog: codec required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{store: cfg.Store, codec: cfg.Codec, logger: logger}, nil
}

// ListArticles returns every article, secrets stripped, in numeric id order.
func (s *Service) ListArticles(ctx context.Context) ([]PublicArticle, error) {
	articles, err := s.store.List(ctx)
	if err != nil {
		return nil, errors.Internal("failed to list articles", err)
	}
	out := make([]PublicArticle, 0, len(articles))
	for i := range articles {
		out = append(out, articles[i].Public())
	}
	return out, nil
}

// GetArticle resolves ref as a storage id or a numeric id.
func (s *Service) GetArticle(ctx context.Context, ref string) (PublicArticle, error) {
	a, err := s.Sealed(ctx, ref)
	if err != nil {
		return PublicArticle{}, err
	}
	return a.Public(), nil
}

// Sealed returns the full record including ciphertext and key.
func (s *Service) Sealed(ctx context.Context, ref string) (*Article, error) {
	ref = strings.TrimSpace(ref)
	if id, err := uuid.Parse(ref); err == nil {
		return s.wrapLookup(s.store.GetByStorageID(ctx, id.String()))
	}
	if n, err := strconv.ParseInt(ref, 10, 64); err == nil && n > 0 {
		return s.wrapLookup(s.store.GetByNumericID(ctx, n))
	}
	return nil, errors.NotFound("article", ref)
}

func (s *Service) wrapLookup(a *Article, err error) (*Article, error) {
	if err == nil {
		return a, nil
	}
	if errors.Is(err, errors.CodeNotFound) {
		return nil, err
	}
	return nil, errors.Internal("failed to load article", err)
}

// CreateArticle validates, encrypts and stores a new article.
func (s *Service) CreateArticle(ctx context.Context, in NewArticle) (PublicArticle, error) {
	if err := in.Normalize(); err != nil {
		return PublicArticle{}, err
	}

	key, err := s.codec.GenerateKey()
	if err != nil {
		return PublicArticle{}, errors.Internal("failed to generate key", err)
	}

	a := &Article{
		StorageID:   uuid.NewString(),
		Title:       in.Title,
		Description: in.Description,
		Author:      in.Author,
		Price:       in.Price,
		Key:         key,
	}
	if in.Content != "" {
		a.Ciphertext, err = s.codec.Encrypt(in.Content, key)
		if err != nil {
			return PublicArticle{}, errors.Internal("failed to encrypt content", err)
		}
	}

	if err := s.store.Create(ctx, a); err != nil {
		return PublicArticle{}, errors.Internal("failed to create article", err)
	}

	s.logger.WithContext(ctx).WithFields(map[string]interface{}{
		"article_id":  a.NumericID,
		"has_content": a.HasContent(),
	}).Info("Article created")
	return a.Public(), nil
}

// AttachContent encrypts and stores a body for an article published without one.
func (s *Service) AttachContent(ctx context.Context, ref, plaintext string) (PublicArticle, error) {
	if strings.TrimSpace(plaintext) == "" {
		return PublicArticle{}, errors.Validation("content", "content is required")
	}
	a, err := s.Sealed(ctx, ref)
	if err != nil {
		return PublicArticle{}, err
	}
	if a.HasContent() {
		return PublicArticle{}, errors.Conflict("article already has content")
	}

	key := a.Key
	if key == "" {
		if key, err = s.codec.GenerateKey(); err != nil {
			return PublicArticle{}, errors.Internal("failed to generate key", err)
		}
	}
	ciphertext, err := s.codec.Encrypt(plaintext, key)
	if err != nil {
		return PublicArticle{}, errors.Internal("failed to encrypt content", err)
	}
	if err := s.store.SwapSealed(ctx, a.NumericID, "", ciphertext, key); err != nil {
		return PublicArticle{}, storeWriteError(err)
	}

	a.Ciphertext, a.Key = ciphertext, key
	s.logger.WithContext(ctx).WithField("article_id", a.NumericID).Info("Article content attached")
	return a.Public(), nil
}

// RotateKey re-encrypts the body under a fresh key with the current scheme.
func (s *Service) RotateKey(ctx context.Context, ref string) (PublicArticle, error) {
	a, err := s.Sealed(ctx, ref)
	if err != nil {
		return PublicArticle{}, err
	}

	key, err := s.codec.GenerateKey()
	if err != nil {
		return PublicArticle{}, errors.Internal("failed to generate key", err)
	}

	var ciphertext string
	if a.HasContent() {
		plaintext, err := s.codec.Decrypt(a.Ciphertext, a.Key)
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithField("article_id", a.NumericID).Error("Stored content could not be decrypted during key rotation")
			return PublicArticle{}, errors.ContentCorrupted(err)
		}
		if ciphertext, err = s.codec.Encrypt(plaintext, key); err != nil {
			return PublicArticle{}, errors.Internal("failed to encrypt content", err)
		}
	}

	if err := s.store.SwapSealed(ctx, a.NumericID, a.Ciphertext, ciphertext, key); err != nil {
		return PublicArticle{}, storeWriteError(err)
	}

	s.logger.LogSecurityEvent(ctx, "article_key_rotated", map[string]interface{}{"article_id": a.NumericID})
	a.Ciphertext, a.Key = ciphertext, key
	return a.Public(), nil
}

func storeWriteError(err error) error {
	if errors.Is(err, errors.CodeConflict) || errors.Is(err, errors.CodeNotFound) {
		return err
	}
	return errors.Internal("failed to update article", err)
}
