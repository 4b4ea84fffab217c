package server

import (
	"context"
	"net/http"

	"github.com/gofrs/uuid"

	"github.com/conneroisu/shadowstream/internal/logging"
)

// RequestIDHeader carries the request id in requests and responses.
const RequestIDHeader = "X-Request-ID"

type loggerKey struct{}

// RequestID tags each request with an id, taken from the incoming header
// when present, and attaches a logger carrying it to the request context.
func RequestID(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(RequestIDHeader)
			if id == "" {
				generated, err := uuid.NewV4()
				if err != nil {
					logger.Warn(r.Context(), err, "Cannot generate request id")
				} else {
					id = generated.String()
				}
			}
			w.Header().Set(RequestIDHeader, id)

			ctx := context.WithValue(r.Context(), loggerKey{}, logging.WithRequestID(logger, id))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func loggerFrom(ctx context.Context, fallback logging.Logger) logging.Logger {
	if l, ok := ctx.Value(loggerKey{}).(logging.Logger); ok {
		return l
	}
	return fallback
}
