package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"unimem/pkg/auth"
	pkgerrors "unimem/pkg/errors"
)

const secret = "middleware-test-secret"

type stubLimiter struct {
	allow bool
	err   error
	keys  []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, error) {
	s.keys = append(s.keys, key)
	return s.allow, s.err
}

func (s *stubLimiter) Reset(context.Context, string) error { return nil }

func sign(t *testing.T, sub string, expires time.Time) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &auth.Claims{
		UserID: sub,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthConfig(t *testing.T, ip, user *stubLimiter, trust bool) AuthConfig {
	t.Helper()
	validator, err := auth.NewJWTValidator(auth.JWTConfig{SigningMethod: "HS256", SecretKey: secret})
	require.NoError(t, err)
	return AuthConfig{
		Validator:    validator,
		IPLimiter:    ip,
		UserLimiter:  user,
		IPLimit:      100,
		UserLimit:    200,
		Errors:       pkgerrors.NewErrorHandler(zap.NewNop(), false),
		Logger:       zap.NewNop(),
		TrustGateway: trust,
	}
}

// ownerEcho writes the authenticated owner id.
var ownerEcho = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusTeapot)
		return
	}
	_, _ = w.Write([]byte(user.UserID))
})

func TestAuthenticate(t *testing.T) {
	tests := []struct {
		name       string
		header     func(t *testing.T, r *http.Request)
		trust      bool
		ipAllow    bool
		userAllow  bool
		wantStatus int
		wantOwner  string
	}{
		{
			name:       "valid bearer token",
			header:     func(t *testing.T, r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(t, "alice", time.Now().Add(time.Hour))) },
			ipAllow:    true,
			userAllow:  true,
			wantStatus: http.StatusOK,
			wantOwner:  "alice",
		},
		{
			name:       "lowercase scheme",
			header:     func(t *testing.T, r *http.Request) { r.Header.Set("Authorization", "bearer "+sign(t, "alice", time.Now().Add(time.Hour))) },
			ipAllow:    true,
			userAllow:  true,
			wantStatus: http.StatusOK,
			wantOwner:  "alice",
		},
		{
			name:       "missing header",
			header:     func(*testing.T, *http.Request) {},
			ipAllow:    true,
			userAllow:  true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "expired token",
			header:     func(t *testing.T, r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(t, "alice", time.Now().Add(-time.Hour))) },
			ipAllow:    true,
			userAllow:  true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "ip limit exceeded",
			header:     func(t *testing.T, r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(t, "alice", time.Now().Add(time.Hour))) },
			ipAllow:    false,
			userAllow:  true,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name:       "owner limit exceeded",
			header:     func(t *testing.T, r *http.Request) { r.Header.Set("Authorization", "Bearer "+sign(t, "alice", time.Now().Add(time.Hour))) },
			ipAllow:    true,
			userAllow:  false,
			wantStatus: http.StatusTooManyRequests,
		},
		{
			name: "gateway headers ignored when not trusted",
			header: func(_ *testing.T, r *http.Request) {
				r.Header.Set(HeaderGatewayAuthorized, "true")
				r.Header.Set(HeaderUserID, "mallory")
			},
			ipAllow:    true,
			userAllow:  true,
			wantStatus: http.StatusUnauthorized,
		},
		{
			name: "gateway headers accepted when trusted",
			header: func(_ *testing.T, r *http.Request) {
				r.Header.Set(HeaderGatewayAuthorized, "true")
				r.Header.Set(HeaderUserID, "carol")
			},
			trust:      true,
			ipAllow:    true,
			userAllow:  true,
			wantStatus: http.StatusOK,
			wantOwner:  "carol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Arrange
			ip := &stubLimiter{allow: tt.ipAllow}
			user := &stubLimiter{allow: tt.userAllow}
			h := Authenticate(newAuthConfig(t, ip, user, tt.trust))(ownerEcho)
			req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
			req.RemoteAddr = "203.0.113.9:4411"
			tt.header(t, req)
			rec := httptest.NewRecorder()

			// Act
			h.ServeHTTP(rec, req)

			// Assert
			assert.Equal(t, tt.wantStatus, rec.Code, rec.Body.String())
			if tt.wantOwner != "" {
				assert.Equal(t, tt.wantOwner, rec.Body.String())
				assert.Equal(t, []string{tt.wantOwner}, user.keys)
			}
			assert.Equal(t, []string{"203.0.113.9"}, ip.keys)
		})
	}
}

func TestAuthenticate_LimiterError(t *testing.T) {
	ip := &stubLimiter{err: errors.New("table throttled")}
	h := Authenticate(newAuthConfig(t, ip, &stubLimiter{allow: true}, false))(ownerEcho)
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestAuthenticate_LimiterFailsOpen(t *testing.T) {
	ip := &stubLimiter{allow: true, err: errors.New("table throttled (failing open)")}
	h := Authenticate(newAuthConfig(t, ip, &stubLimiter{allow: true}, false))(ownerEcho)
	req := httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, "alice", time.Now().Add(time.Hour)))
	rec := httptest.NewRecorder()

	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "198.51.100.4, 10.0.0.1"}, remote: "10.0.0.2:80", want: "198.51.100.4"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "198.51.100.5"}, remote: "10.0.0.2:80", want: "198.51.100.5"},
		{name: "remote addr", remote: "192.0.2.7:5555", want: "192.0.2.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}

			assert.Equal(t, tt.want, getClientIP(r))
		})
	}
}

func TestApplyAuthorizerClaims(t *testing.T) {
	t.Run("spoofed headers are removed", func(t *testing.T) {
		req := &events.APIGatewayV2HTTPRequest{Headers: map[string]string{
			"x-api-gateway-authorized": "true",
			"x-user-id":                "mallory",
			"content-type":             "application/json",
		}}

		ApplyAuthorizerClaims(req)

		assert.Equal(t, map[string]string{"content-type": "application/json"}, req.Headers)
	})

	t.Run("authorizer claims become headers", func(t *testing.T) {
		req := &events.APIGatewayV2HTTPRequest{
			Headers: map[string]string{"x-user-id": "mallory"},
			RequestContext: events.APIGatewayV2HTTPRequestContext{
				Authorizer: &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
					JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
						Claims: map[string]string{"sub": "alice", "email": "alice@example.com"},
					},
				},
			},
		}

		ApplyAuthorizerClaims(req)

		assert.Equal(t, "true", req.Headers[HeaderGatewayAuthorized])
		assert.Equal(t, "alice", req.Headers[HeaderUserID])
		assert.Equal(t, "alice@example.com", req.Headers[HeaderUserEmail])
		assert.NotContains(t, req.Headers, "x-user-id")
	})
}
