package app

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"

	"github.com/go-redis/redis/v8"
	"github.com/jmoiron/sqlx"

	"github.com/HugoJanow/ArticlePulse/internal/chain"
	"github.com/HugoJanow/ArticlePulse/internal/config"
	"github.com/HugoJanow/ArticlePulse/internal/crypto"
	"github.com/HugoJanow/ArticlePulse/internal/database"
	"github.com/HugoJanow/ArticlePulse/internal/httpapi"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
	"github.com/HugoJanow/ArticlePulse/internal/middleware"
	"github.com/HugoJanow/ArticlePulse/internal/platform/migrations"
	"github.com/HugoJanow/ArticlePulse/services/access"
	"github.com/HugoJanow/ArticlePulse/services/catalog"
	"github.com/HugoJanow/ArticlePulse/services/entitlement"
	"github.com/HugoJanow/ArticlePulse/services/ledger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Articles  catalog.Store
	Purchases entitlement.Store
}

// Options overrides pieces of the default wiring.
type Options struct {
	Stores Stores
	// Ledger replaces the adapter built from configuration.
	Ledger ledger.Adapter
	// Cache replaces the grant cache built from configuration.
	Cache access.GrantCache
}

// Application ties the domain services together and owns their connections.
type Application struct {
	cfg *config.Config
	log *logging.Logger

	db    *sqlx.DB
	redis *redis.Client

	Catalog      *catalog.Service
	Entitlements *entitlement.Service
	Ledger       ledger.Adapter
	// Neo is the live ledger adapter, nil when the ledger is disabled or replaced.
	Neo         *ledger.Neo
	Broker      *access.Broker
	Purchaser   *access.Purchaser
	RateLimiter *middleware.RateLimiter
	API         *httpapi.Server
}

// New builds a fully initialised application from cfg.
func New(ctx context.Context, cfg *config.Config, log *logging.Logger, opts Options) (*Application, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: config required")
	}
	if log == nil {
		log = logging.Default()
	}
	a := &Application{cfg: cfg, log: log}
	if err := a.wire(ctx, opts); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *Application) wire(ctx context.Context, opts Options) (err error) {
	cfg, log := a.cfg, a.log

	stores := opts.Stores
	if stores.Articles == nil || stores.Purchases == nil {
		if err := a.openStores(ctx, &stores); err != nil {
			return err
		}
	}

	codec := crypto.New()
	if a.Catalog, err = catalog.New(catalog.Config{Store: stores.Articles, Codec: codec, Logger: log}); err != nil {
		return err
	}
	if a.Entitlements, err = entitlement.New(entitlement.Config{Store: stores.Purchases, Logger: log}); err != nil {
		return err
	}

	a.Ledger = opts.Ledger
	if a.Ledger == nil {
		if a.Ledger, err = a.buildLedger(); err != nil {
			return err
		}
	}

	cache := opts.Cache
	if cache == nil {
		if cache, err = a.buildCache(ctx); err != nil {
			return err
		}
	}

	a.Broker, err = access.NewBroker(access.Config{
		Articles:     a.Catalog,
		Ledger:       a.Ledger,
		Entitlements: a.Entitlements,
		Codec:        codec,
		Cache:        cache,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	a.Purchaser, err = access.NewPurchaser(access.PurchaserConfig{
		Broker:  a.Broker,
		Ledger:  a.Ledger,
		Records: a.Entitlements,
		Logger:  log,
	})
	if err != nil {
		return err
	}

	if cfg.RateLimit.RequestsPerSecond > 0 {
		a.RateLimiter = middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.Burst, log)
	}
	if cfg.Auth.AdminJWTSecret == "" {
		log.Warn("ADMIN_JWT_SECRET not set; administrative routes are unauthenticated")
	}
	a.API, err = httpapi.New(httpapi.Config{
		Catalog:        a.Catalog,
		Entitlements:   a.Entitlements,
		Broker:         a.Broker,
		Purchaser:      a.Purchaser,
		Ledger:         a.Ledger,
		AdminAuth:      middleware.NewAdminAuth(cfg.Auth.AdminJWTSecret, cfg.Auth.AdminRole, log),
		Logger:         log,
		Environment:    cfg.Environment,
		BasePath:       cfg.Server.BasePath,
		AllowedOrigins: cfg.AllowedOrigins(),
		RateLimiter:    a.RateLimiter,
	})
	if err != nil {
		return err
	}
	return nil
}

func (a *Application) openStores(ctx context.Context, stores *Stores) error {
	if a.cfg.Database.URL == "" {
		a.log.Warn("DATABASE_URL not set; using in-memory stores")
		if stores.Articles == nil {
			stores.Articles = catalog.NewMemoryStore()
		}
		if stores.Purchases == nil {
			stores.Purchases = entitlement.NewMemoryStore()
		}
		return nil
	}

	db, err := database.Open(ctx, database.Config{
		URL:             a.cfg.Database.URL,
		MaxOpenConns:    a.cfg.Database.MaxOpenConns,
		MaxIdleConns:    a.cfg.Database.MaxIdleConns,
		ConnMaxLifetime: a.cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		return err
	}
	a.db = db
	if a.cfg.Database.AutoMigrate {
		if err := migrations.Apply(ctx, db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
	}
	if stores.Articles == nil {
		stores.Articles = catalog.NewPostgresStore(db)
	}
	if stores.Purchases == nil {
		stores.Purchases = entitlement.NewPostgresStore(db)
	}
	return nil
}

// LoadAddresses resolves the deployed contract addresses from the contracts file and the
// configured overrides. A missing file is not an error.
func LoadAddresses(cfg config.LedgerConfig) (chain.ContractAddresses, error) {
	var addrs chain.ContractAddresses
	if cfg.ContractsFile != "" {
		loaded, err := chain.LoadAddressesFile(cfg.ContractsFile)
		switch {
		case err == nil:
			addrs = loaded
		case !stderrors.Is(err, os.ErrNotExist):
			return addrs, err
		}
	}
	addrs.Override(cfg.TokenAddress, cfg.PurchaseAddress)
	return addrs, nil
}

func (a *Application) buildLedger() (ledger.Adapter, error) {
	if !a.cfg.LedgerEnabled() {
		a.log.Warn("NEO_RPC_URL not set; ledger disabled, access falls back to recorded purchases")
		return ledger.Disabled{}, nil
	}
	addrs, err := LoadAddresses(a.cfg.Ledger)
	if err != nil {
		return nil, err
	}
	if !addrs.Configured() {
		a.log.Warn("contract addresses not configured; ledger disabled")
		return ledger.Disabled{}, nil
	}

	client, err := chain.NewClient(chain.Config{
		RPCURL:        a.cfg.Ledger.RPCURL,
		NetworkID:     a.cfg.Ledger.NetworkID,
		Timeout:       a.cfg.Ledger.Timeout,
		TxWaitTimeout: a.cfg.Ledger.TxWait,
		PollInterval:  a.cfg.Ledger.PollInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("chain client: %w", err)
	}
	neo, err := ledger.NewNeo(ledger.Config{
		Client:          client,
		Addresses:       addrs,
		CustodialKeys:   a.cfg.Ledger.CustodialKeyList(),
		OperatorKey:     a.cfg.Ledger.OperatorKey,
		Timeout:         a.cfg.Ledger.Timeout,
		DefaultDecimals: int32(a.cfg.Ledger.TokenDecimals),
		Logger:          a.log,
	})
	if err != nil {
		return nil, err
	}
	a.Neo = neo
	a.log.WithFields(map[string]interface{}{
		"rpc_url":   a.cfg.Ledger.RPCURL,
		"token":     neo.Addresses().TokenAddress,
		"purchase":  neo.Addresses().PurchaseAddress,
		"custodial": len(neo.CustodialAddresses()),
	}).Info("Ledger configured")
	return neo, nil
}

func (a *Application) buildCache(ctx context.Context) (access.GrantCache, error) {
	if a.cfg.Redis.Addr == "" {
		return access.NoCache{}, nil
	}
	client, err := access.DialRedis(ctx, a.cfg.Redis.Addr, a.cfg.Redis.Password, a.cfg.Redis.DB)
	if err != nil {
		return nil, err
	}
	a.redis = client
	return access.NewRedisGrantCache(client, a.cfg.Redis.GrantTTL), nil
}

// Handler returns the HTTP handler.
func (a *Application) Handler() http.Handler {
	return a.API.Handler()
}

// Close releases the database and cache connections.
func (a *Application) Close() error {
	var errs []error
	if a.redis != nil {
		errs = append(errs, a.redis.Close())
		a.redis = nil
	}
	if a.db != nil {
		errs = append(errs, a.db.Close())
		a.db = nil
	}
	return stderrors.Join(errs...)
}
