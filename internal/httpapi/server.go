// Package httpapi exposes the ArticlePulse JSON API.
package httpapi

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/HugoJanow/ArticlePulse/internal/logging"
	"github.com/HugoJanow/ArticlePulse/internal/metrics"
	"github.com/HugoJanow/ArticlePulse/internal/middleware"
	"github.com/HugoJanow/ArticlePulse/services/access"
	"github.com/HugoJanow/ArticlePulse/services/catalog"
	"github.com/HugoJanow/ArticlePulse/services/entitlement"
	"github.com/HugoJanow/ArticlePulse/services/ledger"
)

// Config wires the API to its services.
type Config struct {
	Catalog      *catalog.Service
	Entitlements *entitlement.Service
	Broker       *access.Broker
	Purchaser    *access.Purchaser
	Ledger       ledger.Adapter
	AdminAuth    *middleware.AdminAuth
	Logger       *logging.Logger

	Environment    string
	BasePath       string
	AllowedOrigins []string
	RateLimiter    *middleware.RateLimiter
}

// Server holds the handlers.
type Server struct {
	catalog      *catalog.Service
	entitlements *entitlement.Service
	broker       *access.Broker
	purchaser    *access.Purchaser
	ledger       ledger.Adapter
	adminAuth    *middleware.AdminAuth
	logger       *logging.Logger

	environment    string
	basePath       string
	allowedOrigins []string
	rateLimiter    *middleware.RateLimiter
}

// New validates cfg and creates a Server.
func New(cfg Config) (*Server, error) {
	switch {
	case cfg.Catalog == nil:
		return nil, fmt.Errorf("httpapi: catalog required")
	case cfg.Entitlements == nil:
		return nil, fmt.Errorf("httpapi: entitlements required")
	case cfg.Broker == nil:
		return nil, fmt.Errorf("httpapi: broker required")
	case cfg.Purchaser == nil:
		return nil, fmt.Errorf("httpapi: purchaser required")
	case cfg.Ledger == nil:
		return nil, fmt.Errorf("httpapi: ledger required")
	}
	s := &Server{
		catalog:        cfg.Catalog,
		entitlements:   cfg.Entitlements,
		broker:         cfg.Broker,
		purchaser:      cfg.Purchaser,
		ledger:         cfg.Ledger,
		adminAuth:      cfg.AdminAuth,
		logger:         cfg.Logger,
		environment:    cfg.Environment,
		basePath:       strings.TrimRight(cfg.BasePath, "/"),
		allowedOrigins: cfg.AllowedOrigins,
		rateLimiter:    cfg.RateLimiter,
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.adminAuth == nil {
		s.adminAuth = middleware.NewAdminAuth("", "", s.logger)
	}
	return s, nil
}

// Handler builds the router with the middleware chain. Tracing, recovery and CORS wrap the
// router so they also see preflight and unmatched requests.
func (s *Server) Handler() http.Handler {
	root := mux.NewRouter()
	root.Use(middleware.MetricsMiddleware())

	root.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	root.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := root.PathPrefix(s.basePath).Subrouter()
	if s.rateLimiter != nil {
		api.Use(s.rateLimiter.Handler)
	}

	api.HandleFunc("/articles", s.handleListArticles).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id}", s.handleGetArticle).Methods(http.MethodGet)
	api.HandleFunc("/articles/{id}/content", s.handleContent).Methods(http.MethodPost)
	api.HandleFunc("/articles/{id}/purchase", s.handlePurchaseArticle).Methods(http.MethodPost)
	api.HandleFunc("/content/{id}/{userAddress}", s.handleContentByPath).Methods(http.MethodGet)
	api.HandleFunc("/contracts", s.handleContracts).Methods(http.MethodGet)
	api.HandleFunc("/purchases", s.handleRecordPurchase).Methods(http.MethodPost)
	api.HandleFunc("/purchases/verify", s.handleVerifyPurchase).Methods(http.MethodPost)
	api.HandleFunc("/purchases/{userAddress}", s.handleListPurchases).Methods(http.MethodGet)
	api.HandleFunc("/purchases/{userAddress}/history", s.handlePurchaseHistory).Methods(http.MethodGet)
	api.HandleFunc("/balance/{address}", s.handleBalance).Methods(http.MethodGet)

	admin := api.NewRoute().Subrouter()
	admin.Use(s.adminAuth.Handler)
	admin.HandleFunc("/articles", s.handleCreateArticle).Methods(http.MethodPost)
	admin.HandleFunc("/articles/{id}/content", s.handleAttachContent).Methods(http.MethodPut)
	admin.HandleFunc("/articles/{id}/rotate-key", s.handleRotateKey).Methods(http.MethodPost)
	admin.HandleFunc("/purchases", s.handleResetPurchases).Methods(http.MethodDelete)

	root.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	root.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	api.NotFoundHandler = root.NotFoundHandler
	api.MethodNotAllowedHandler = root.MethodNotAllowedHandler

	var h http.Handler = root
	h = middleware.NewCORSMiddleware(s.allowedOrigins).Handler(h)
	h = middleware.Recovery(s.logger)(h)
	h = middleware.NewTracingMiddleware(s.logger).Handler(h)
	return h
}
