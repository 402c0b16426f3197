package entitlement

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/HugoJanow/ArticlePulse/internal/database"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

// PostgresStore persists purchases in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Insert(ctx context.Context, p *Purchase) error {
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO purchases (article_id, user_address, transaction_hash, price, purchased_at)
		VALUES (:article_id, :user_address, :transaction_hash, :price, :purchased_at)`, p)
	if err == nil {
		return nil
	}
	if constraint, ok := database.UniqueViolation(err); ok {
		switch constraint {
		case "purchases_transaction_hash_key":
			return errors.DuplicatePurchase("transaction reference already recorded").WithDetails("constraint", "transaction_reference")
		default:
			return errors.DuplicatePurchase("article already purchased by this address").WithDetails("constraint", "article_buyer")
		}
	}
	return fmt.Errorf("insert purchase: %w", err)
}

func (s *PostgresStore) Exists(ctx context.Context, articleID int64, buyer string) (bool, error) {
	var exists bool
	err := s.db.GetContext(ctx, &exists,
		`SELECT EXISTS (SELECT 1 FROM purchases WHERE article_id = $1 AND user_address = $2)`, articleID, buyer)
	if err != nil {
		return false, fmt.Errorf("check purchase: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListByBuyer(ctx context.Context, buyer string) ([]Purchase, error) {
	var out []Purchase
	err := s.db.SelectContext(ctx, &out, `
		SELECT article_id, user_address, transaction_hash, price::text AS price, purchased_at
		FROM purchases
		WHERE user_address = $1
		ORDER BY purchased_at DESC, id DESC`, buyer)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) DeleteAll(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM purchases`)
	if err != nil {
		return 0, fmt.Errorf("delete purchases: %w", err)
	}
	return res.RowsAffected()
}
