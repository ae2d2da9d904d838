package middleware

import (
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"unimem/pkg/auth"
	pkgerrors "unimem/pkg/errors"
)

// Headers set by the Lambda entry point once API Gateway's JWT authorizer has accepted the
// caller. They are stripped from every incoming request before the authorizer claims are copied in.
const (
	HeaderGatewayAuthorized = "X-API-Gateway-Authorized"
	HeaderUserID            = "X-User-ID"
	HeaderUserEmail         = "X-User-Email"
	HeaderUserRoles         = "X-User-Roles"
)

// AuthConfig configures Authenticate.
type AuthConfig struct {
	Validator   *auth.JWTValidator
	IPLimiter   auth.RateLimiter
	UserLimiter auth.RateLimiter
	IPLimit     int // requests per minute, reported in 429 responses
	UserLimit   int
	Errors      *pkgerrors.ErrorHandler
	Logger      *zap.Logger

	// TrustGateway accepts the X-User-* headers when X-API-Gateway-Authorized is set.
	// Only the Lambda entry point enables it.
	TrustGateway bool
}

// withinLimit applies one limiter and writes the rejection when the request may not proceed.
// A limiter that fails open reports its error with allowed=true; the request goes through.
func (cfg AuthConfig) withinLimit(w http.ResponseWriter, r *http.Request, limiter auth.RateLimiter, key string, limit int) bool {
	allowed, err := limiter.Allow(r.Context(), key)
	switch {
	case err != nil && allowed:
		cfg.Logger.Warn("Rate limiter degraded, allowing request", zap.String("key", key), zap.Error(err))
		return true
	case err != nil:
		cfg.Logger.Error("Rate limiter error", zap.String("key", key), zap.Error(err))
		cfg.Errors.Handle(w, r, pkgerrors.NewInternalError("rate limiter unavailable").WithCause(err))
		return false
	case !allowed:
		cfg.Errors.Handle(w, r, pkgerrors.NewRateLimitError(limit, "minute"))
		return false
	}
	return true
}

// Authenticate validates the bearer token, applies per-IP and per-owner rate limits and
// stores the caller in the request context. The owner id of every operation is the token's subject.
func Authenticate(cfg AuthConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientIP := getClientIP(r)

			if !cfg.withinLimit(w, r, cfg.IPLimiter, clientIP, cfg.IPLimit) {
				return
			}

			user, err := cfg.authenticate(r)
			if err != nil {
				cfg.Logger.Debug("Authentication failed",
					zap.Error(err),
					zap.String("ip", clientIP),
					zap.String("path", r.URL.Path),
				)
				cfg.Errors.Handle(w, r, err)
				return
			}

			if !cfg.withinLimit(w, r, cfg.UserLimiter, user.UserID, cfg.UserLimit) {
				return
			}

			ctx := auth.SetUserInContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func (cfg AuthConfig) authenticate(r *http.Request) (*auth.UserContext, error) {
	if cfg.TrustGateway && r.Header.Get(HeaderGatewayAuthorized) == "true" {
		userID := r.Header.Get(HeaderUserID)
		if userID == "" {
			return nil, pkgerrors.NewUnauthorizedError("missing user context from API Gateway")
		}
		roles := []string{"authenticated"}
		if raw := r.Header.Get(HeaderUserRoles); raw != "" {
			roles = strings.Split(raw, ",")
		}
		return &auth.UserContext{
			UserID: userID,
			Email:  r.Header.Get(HeaderUserEmail),
			Roles:  roles,
		}, nil
	}

	token := extractToken(r)
	if token == "" {
		return nil, pkgerrors.NewUnauthorizedError("missing authentication token")
	}

	claims, err := cfg.Validator.ValidateToken(token)
	if err != nil {
		switch {
		case errors.Is(err, auth.ErrExpiredToken):
			return nil, pkgerrors.NewUnauthorizedError("token has expired")
		case errors.Is(err, auth.ErrInvalidSignature):
			return nil, pkgerrors.NewUnauthorizedError("invalid token signature")
		default:
			return nil, pkgerrors.NewUnauthorizedError("invalid token")
		}
	}

	return &auth.UserContext{
		UserID: claims.UserID,
		Email:  claims.Email,
		Roles:  claims.Roles,
	}, nil
}

// extractToken reads a bearer token from the Authorization header
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// getClientIP extracts the client IP address
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return strings.TrimSpace(parts[0])
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	addr := r.RemoteAddr
	if idx := strings.LastIndex(addr, ":"); idx != -1 {
		return addr[:idx]
	}
	return addr
}
