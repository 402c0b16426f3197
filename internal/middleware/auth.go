// Package middleware provides HTTP middleware for the ArticlePulse API
package middleware

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/HugoJanow/ArticlePulse/internal/errors"
	internalhttputil "github.com/HugoJanow/ArticlePulse/internal/httputil"
	"github.com/HugoJanow/ArticlePulse/internal/logging"
)

// Claims represents admin JWT claims
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// AdminAuth guards administrative routes with HS256 bearer tokens carrying the admin role.
type AdminAuth struct {
	secret []byte
	role   string
	logger *logging.Logger
}

// NewAdminAuth creates the admin guard. An empty secret leaves admin routes open, which
// configuration only allows outside production.
func NewAdminAuth(secret, role string, logger *logging.Logger) *AdminAuth {
	if role == "" {
		role = "admin"
	}
	if logger == nil {
		logger = logging.Default()
	}
	if secret == "" {
		logger.WithFields(map[string]interface{}{"role": role}).Warn("ADMIN_JWT_SECRET not set, admin routes are unauthenticated")
	}
	return &AdminAuth{secret: []byte(secret), role: role, logger: logger}
}

// Handler returns the middleware handler
func (m *AdminAuth) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(m.secret) == 0 {
			next.ServeHTTP(w, r)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			m.respondError(w, r, errors.Unauthorized("Missing Authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			m.respondError(w, r, errors.Unauthorized("Invalid Authorization header format"))
			return
		}

		claims, err := m.validateToken(parts[1])
		if err != nil {
			m.respondError(w, r, err)
			return
		}
		if claims.Role != m.role {
			m.logger.LogSecurityEvent(r.Context(), "admin_role_denied", map[string]interface{}{
				"subject": claims.Subject,
				"role":    claims.Role,
				"path":    r.URL.Path,
			})
			m.respondError(w, r, errors.Forbidden("admin role required"))
			return
		}

		ctx := logging.WithUserID(r.Context(), claims.Subject)
		ctx = context.WithValue(ctx, logging.RoleKey, claims.Role)

		m.logger.WithContext(ctx).WithField("path", r.URL.Path).Debug("Admin authentication successful")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AdminAuth) validateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, errors.InvalidToken(err)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, errors.InvalidToken(nil).WithDetails("reason", "invalid claims")
	}
	return claims, nil
}

func (m *AdminAuth) respondError(w http.ResponseWriter, r *http.Request, err error) {
	internalhttputil.WriteError(w, r, err)

	m.logger.WithContext(r.Context()).WithError(err).WithFields(map[string]interface{}{
		"path":   r.URL.Path,
		"method": r.Method,
	}).Warn("Admin authentication failed")
}

// IssueAdminToken signs an HS256 token for subject with role, valid for ttl.
func IssueAdminToken(secret, subject, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// GetUserRole extracts the caller role from context
func GetUserRole(ctx context.Context) string {
	return logging.GetRole(ctx)
}
