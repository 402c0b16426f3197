package catalog

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/HugoJanow/ArticlePulse/internal/database"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
)

const (
	articleColumns = `storage_id, numeric_id, title, description, author, price::text AS price,
		encrypted_content, encryption_key, created_at`

	// createAttempts bounds retries when two publishers race for the same numeric id.
	createAttempts = 3
)

type articleRow struct {
	StorageID   string         `db:"storage_id"`
	NumericID   int64          `db:"numeric_id"`
	Title       string         `db:"title"`
	Description string         `db:"description"`
	Author      string         `db:"author"`
	Price       string         `db:"price"`
	Ciphertext  sql.NullString `db:"encrypted_content"`
	Key         string         `db:"encryption_key"`
	CreatedAt   time.Time      `db:"created_at"`
}

func (r articleRow) article() Article {
	return Article{
		StorageID:   r.StorageID,
		NumericID:   r.NumericID,
		Title:       r.Title,
		Description: r.Description,
		Author:      r.Author,
		Price:       r.Price,
		Ciphertext:  r.Ciphertext.String,
		Key:         r.Key,
		CreatedAt:   r.CreatedAt,
	}
}

// PostgresStore persists articles in PostgreSQL.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps db.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) List(ctx context.Context) ([]Article, error) {
	var rows []articleRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT `+articleColumns+` FROM articles ORDER BY numeric_id`); err != nil {
		return nil, fmt.Errorf("list articles: %w", err)
	}
	out := make([]Article, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.article())
	}
	return out, nil
}

func (s *PostgresStore) GetByStorageID(ctx context.Context, storageID string) (*Article, error) {
	return s.get(ctx, storageID, `SELECT `+articleColumns+` FROM articles WHERE storage_id = $1`, storageID)
}

func (s *PostgresStore) GetByNumericID(ctx context.Context, id int64) (*Article, error) {
	return s.get(ctx, strconv.FormatInt(id, 10), `SELECT `+articleColumns+` FROM articles WHERE numeric_id = $1`, id)
}

func (s *PostgresStore) get(ctx context.Context, ref, query string, arg interface{}) (*Article, error) {
	var row articleRow
	if err := s.db.GetContext(ctx, &row, query, arg); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, errors.NotFound("article", ref)
		}
		return nil, fmt.Errorf("get article: %w", err)
	}
	a := row.article()
	return &a, nil
}

func (s *PostgresStore) Create(ctx context.Context, a *Article) error {
	const query = `
		INSERT INTO articles (storage_id, numeric_id, title, description, author, price, encrypted_content, encryption_key)
		VALUES ($1, (SELECT COALESCE(MAX(numeric_id), 0) + 1 FROM articles), $2, $3, $4, $5, $6, $7)
		RETURNING numeric_id, created_at`

	var ciphertext sql.NullString
	if a.Ciphertext != "" {
		ciphertext = sql.NullString{String: a.Ciphertext, Valid: true}
	}

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = s.db.QueryRowxContext(ctx, query,
			a.StorageID, a.Title, a.Description, a.Author, a.Price, ciphertext, a.Key,
		).Scan(&a.NumericID, &a.CreatedAt)
		if err == nil {
			return nil
		}
		if constraint, ok := database.UniqueViolation(err); !ok || constraint != "articles_numeric_id_key" {
			break
		}
	}
	return fmt.Errorf("create article: %w", err)
}

func (s *PostgresStore) SwapSealed(ctx context.Context, id int64, prevCiphertext, ciphertext, key string) error {
	const query = `
		UPDATE articles SET encrypted_content = NULLIF($2, ''), encryption_key = $3
		WHERE numeric_id = $1 AND COALESCE(encrypted_content, '') = $4`

	res, err := s.db.ExecContext(ctx, query, id, ciphertext, key, prevCiphertext)
	if err != nil {
		return fmt.Errorf("update article content: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update article content: %w", err)
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := s.db.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM articles WHERE numeric_id = $1)`, id); err != nil {
		return fmt.Errorf("check article: %w", err)
	}
	if !exists {
		return errors.NotFound("article", strconv.FormatInt(id, 10))
	}
	return errors.Conflict("article content changed concurrently")
}
