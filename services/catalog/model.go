package catalog

import (
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

// Article is the full persisted record. Ciphertext and Key never leave the service boundary
// except through Sealed.
type Article struct {
	StorageID   string
	NumericID   int64
	Title       string
	Description string
	Author      string
	Price       string
	Ciphertext  string
	Key         string
	CreatedAt   time.Time
}

// HasContent reports whether an encrypted body is stored.
func (a *Article) HasContent() bool {
	return a.Ciphertext != ""
}

// PublicArticle is the secret-free projection served to clients.
type PublicArticle struct {
	ID          int64     `json:"id"`
	StorageID   string    `json:"storageId"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Author      string    `json:"author"`
	Price       string    `json:"price"`
	HasContent  bool      `json:"hasContent"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Public strips secrets from a.
func (a *Article) Public() PublicArticle {
	return PublicArticle{
		ID:          a.NumericID,
		StorageID:   a.StorageID,
		Title:       a.Title,
		Description: a.Description,
		Author:      a.Author,
		Price:       a.Price,
		HasContent:  a.HasContent(),
		CreatedAt:   a.CreatedAt,
	}
}

// NewArticle is the publish request.
type NewArticle struct {
	Title       string
	Description string
	Author      string
	Price       string
	Content     string
}

// priceRe matches the articles.price NUMERIC(78,0) column.
var priceRe = regexp.MustCompile(`^0*[0-9]{1,78}$`)

// IsAtomicAmount reports whether s is a non-negative integer in smallest units of at most
// 78 significant digits.
func IsAtomicAmount(s string) bool {
	return priceRe.MatchString(s)
}

type lengthRule struct {
	field    string
	min, max int
}

var (
	titleRule       = lengthRule{"title", 3, 200}
	descriptionRule = lengthRule{"description", 10, 1000}
	authorRule      = lengthRule{"author", 2, 100}
)

func (r lengthRule) check(v string) error {
	n := utf8.RuneCountInString(v)
	if n == 0 {
		return errors.Validation(r.field, r.field+" is required")
	}
	if n < r.min || n > r.max {
		return errors.Validation(r.field, r.field+" length out of range").
			WithDetails("min", r.min).
			WithDetails("max", r.max)
	}
	return nil
}

// Normalize trims fields and validates them.
func (n *NewArticle) Normalize() error {
	n.Title = strings.TrimSpace(n.Title)
	n.Description = strings.TrimSpace(n.Description)
	n.Author = strings.TrimSpace(n.Author)
	n.Price = strings.TrimSpace(n.Price)

	if err := titleRule.check(n.Title); err != nil {
		return err
	}
	if err := descriptionRule.check(n.Description); err != nil {
		return err
	}
	if err := authorRule.check(n.Author); err != nil {
		return err
	}
	if n.Price == "" {
		return errors.Validation("price", "price is required")
	}
	if !IsAtomicAmount(n.Price) {
		return errors.Validation("price", "price must be a non-negative integer in atomic units of at most 78 digits")
	}
	n.Price = trimLeadingZeros(n.Price)
	return nil
}

func trimLeadingZeros(s string) string {
	t := strings.TrimLeft(s, "0")
	if t == "" {
		return "0"
	}
	return t
}
