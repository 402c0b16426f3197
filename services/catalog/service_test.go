package catalog

import (
	"context"
	stderrors "errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/HugoJanow/ArticlePulse/internal/crypto"
	"github.com/HugoJanow/ArticlePulse/internal/errors"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

func newTestService(t *testing.T) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	svc, err := New(Config{Store: store, Codec: crypto.New(), Logger: logging.NewDiscard()})
	require.NoError(t, err)
	return svc, store
}

func validArticle() NewArticle {
	return NewArticle{
		Title:       "On Ledgers",
		Description: "A long enough description of ledgers.",
		Author:      "Ada",
		Price:       "100000000000000000",
		Content:     "The full premium text.",
	}
}

func TestCreateArticleAssignsSequentialIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.CreateArticle(ctx, validArticle())
	require.NoError(t, err)
	second, err := svc.CreateArticle(ctx, validArticle())
	require.NoError(t, err)

	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, int64(2), second.ID)
	assert.NotEqual(t, first.StorageID, second.StorageID)
	assert.True(t, first.HasContent)
}

func TestCreateArticleEncryptsAndStripsSecrets(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	pub, err := svc.CreateArticle(ctx, validArticle())
	require.NoError(t, err)

	stored, err := store.GetByNumericID(ctx, pub.ID)
	require.NoError(t, err)
	assert.NotContains(t, stored.Ciphertext, "premium")
	assert.True(t, strings.HasPrefix(stored.Ciphertext, crypto.CurrentPrefix))
	assert.Len(t, stored.Key, 64)

	plain, err := crypto.New().Decrypt(stored.Ciphertext, stored.Key)
	require.NoError(t, err)
	assert.Equal(t, "The full premium text.", plain)

	list, err := svc.ListArticles(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, pub, list[0])
}

func TestCreateArticleWithoutContent(t *testing.T) {
	svc, store := newTestService(t)
	in := validArticle()
	in.Content = ""

	pub, err := svc.CreateArticle(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, pub.HasContent)

	stored, err := store.GetByNumericID(context.Background(), pub.ID)
	require.NoError(t, err)
	assert.NotEmpty(t, stored.Key, "a key is generated even without content")
}

func TestCreateArticleValidation(t *testing.T) {
	svc, _ := newTestService(t)
	cases := map[string]func(*NewArticle){
		"missing title":       func(a *NewArticle) { a.Title = "  " },
		"short title":         func(a *NewArticle) { a.Title = "ab" },
		"long title":          func(a *NewArticle) { a.Title = strings.Repeat("x", 201) },
		"short description":   func(a *NewArticle) { a.Description = "too short" },
		"long description":    func(a *NewArticle) { a.Description = strings.Repeat("d", 1001) },
		"short author":        func(a *NewArticle) { a.Author = "A" },
		"long author":         func(a *NewArticle) { a.Author = strings.Repeat("a", 101) },
		"missing price":       func(a *NewArticle) { a.Price = "" },
		"negative price":      func(a *NewArticle) { a.Price = "-1" },
		"fractional price":    func(a *NewArticle) { a.Price = "0.1" },
		"non numeric price":   func(a *NewArticle) { a.Price = "ten" },
		"scientific notation": func(a *NewArticle) { a.Price = "1e18" },
		"79 digit price":      func(a *NewArticle) { a.Price = "1" + strings.Repeat("0", 78) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := validArticle()
			mutate(&in)
			_, err := svc.CreateArticle(context.Background(), in)
			assert.True(t, errors.Is(err, errors.CodeValidation), "got %v", err)
		})
	}
}

func TestCreateArticleAcceptsWidestPrice(t *testing.T) {
	svc, _ := newTestService(t)
	in := validArticle()
	in.Price = "000" + strings.Repeat("9", 78)
	got, err := svc.CreateArticle(context.Background(), in)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("9", 78), got.Price)
}

func TestValidationCountsCharactersNotBytes(t *testing.T) {
	in := validArticle()
	in.Title = strings.Repeat("é", 200)
	require.NoError(t, in.Normalize())

	in = validArticle()
	in.Price = "007"
	require.NoError(t, in.Normalize())
	assert.Equal(t, "7", in.Price)
}

func TestGetArticleDualLookup(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	pub, err := svc.CreateArticle(ctx, validArticle())
	require.NoError(t, err)

	byNumeric, err := svc.GetArticle(ctx, "1")
	require.NoError(t, err)
	byUUID, err := svc.GetArticle(ctx, pub.StorageID)
	require.NoError(t, err)
	assert.Equal(t, byNumeric, byUUID)

	for _, ref := range []string{"2", "0", "-1", "abc", "6f1c2b0e-9b7a-4c1e-8d2f-1a2b3c4d5e6f"} {
		_, err := svc.GetArticle(ctx, ref)
		assert.True(t, errors.Is(err, errors.CodeNotFound), "%s: got %v", ref, err)
	}
}

func TestAttachContent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	in := validArticle()
	in.Content = ""
	pub, err := svc.CreateArticle(ctx, in)
	require.NoError(t, err)

	_, err = svc.AttachContent(ctx, "1", "  ")
	assert.True(t, errors.Is(err, errors.CodeValidation))

	updated, err := svc.AttachContent(ctx, "1", "late body")
	require.NoError(t, err)
	assert.True(t, updated.HasContent)

	stored, err := store.GetByNumericID(ctx, pub.ID)
	require.NoError(t, err)
	plain, err := crypto.New().Decrypt(stored.Ciphertext, stored.Key)
	require.NoError(t, err)
	assert.Equal(t, "late body", plain)

	_, err = svc.AttachContent(ctx, "1", "again")
	assert.True(t, errors.Is(err, errors.CodeConflict), "got %v", err)
}

func TestRotateKeyReencrypts(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateArticle(ctx, validArticle())
	require.NoError(t, err)
	before, err := store.GetByNumericID(ctx, 1)
	require.NoError(t, err)

	_, err = svc.RotateKey(ctx, "1")
	require.NoError(t, err)

	after, err := store.GetByNumericID(ctx, 1)
	require.NoError(t, err)
	assert.NotEqual(t, before.Key, after.Key)
	assert.NotEqual(t, before.Ciphertext, after.Ciphertext)

	plain, err := crypto.New().Decrypt(after.Ciphertext, after.Key)
	require.NoError(t, err)
	assert.Equal(t, "The full premium text.", plain)
}

func TestRotateKeyMigratesLegacyCiphertext(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	in := validArticle()
	in.Content = ""
	_, err := svc.CreateArticle(ctx, in)
	require.NoError(t, err)

	// openssl enc -aes-256-cbc -md md5 -nosalt -pass pass:demo-key-1 of "Contenu premium de demonstration"
	legacy := "6fc4f58a593edbf2d90e066dbef92614f7022071962815030cb7e8ff78d0095e837d790ced1c3f89ffaf385fa545ce92"
	require.NoError(t, store.SwapSealed(ctx, 1, "", legacy, "demo-key-1"))

	_, err = svc.RotateKey(ctx, "1")
	require.NoError(t, err)

	after, err := store.GetByNumericID(ctx, 1)
	require.NoError(t, err)
	assert.False(t, crypto.IsLegacy(after.Ciphertext))
	plain, err := crypto.New().Decrypt(after.Ciphertext, after.Key)
	require.NoError(t, err)
	assert.Equal(t, "Contenu premium de demonstration", plain)
}

func TestRotateKeyCorruptedContent(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateArticle(ctx, validArticle())
	require.NoError(t, err)
	stored, err := store.GetByNumericID(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, store.SwapSealed(ctx, 1, stored.Ciphertext, stored.Ciphertext, "wrong-key"))

	_, err = svc.RotateKey(ctx, "1")
	assert.True(t, errors.Is(err, errors.CodeContentCorrupted), "got %v", err)
}

type failingStore struct{ *MemoryStore }

func (failingStore) List(context.Context) ([]Article, error) {
	return nil, stderrors.New("connection reset")
}

func TestListArticlesStoreFailure(t *testing.T) {
	svc, err := New(Config{Store: failingStore{NewMemoryStore()}, Codec: crypto.New(), Logger: logging.NewDiscard()})
	require.NoError(t, err)
	_, err = svc.ListArticles(context.Background())
	assert.True(t, errors.Is(err, errors.CodeInternal), "got %v", err)
}

func TestNewRequiresDependencies(t *testing.T) {
	_, err := New(Config{Codec: crypto.New()})
	assert.Error(t, err)
	_, err = New(Config{Store: NewMemoryStore()})
	assert.Error(t, err)
}
