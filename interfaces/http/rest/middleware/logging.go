package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"unimem/pkg/auth"
)

// Logger logs one line per request. Server errors log at Error, client errors at Warn.
func Logger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			// Authenticate runs inside this middleware, so the caller is recorded on a shared holder.
			holder := &ownerHolder{}
			next.ServeHTTP(ww, r.WithContext(withOwnerHolder(r.Context(), holder)))

			level := zapcore.InfoLevel
			switch {
			case ww.Status() >= 500:
				level = zapcore.ErrorLevel
			case ww.Status() >= 400:
				level = zapcore.WarnLevel
			}

			logger.Log(level, "HTTP Request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("requestID", middleware.GetReqID(r.Context())),
				zap.String("ownerID", holder.ownerID),
				zap.String("remoteAddr", r.RemoteAddr),
				zap.String("userAgent", r.UserAgent()),
			)
		})
	}
}

// RecordOwner copies the authenticated owner id onto the logging holder.
func RecordOwner(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if holder, ok := r.Context().Value(ownerHolderKey{}).(*ownerHolder); ok {
			if user, err := auth.GetUserFromContext(r.Context()); err == nil {
				holder.ownerID = user.UserID
			}
		}
		next.ServeHTTP(w, r)
	})
}

type ownerHolder struct {
	ownerID string
}

type ownerHolderKey struct{}

func withOwnerHolder(ctx context.Context, h *ownerHolder) context.Context {
	return context.WithValue(ctx, ownerHolderKey{}, h)
}
