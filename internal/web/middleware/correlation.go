package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/JonMunkholm/policyhub/internal/logging"
)

const maxCorrelationIDLen = 128

// CorrelationID propagates the X-Correlation-Id request header into the
// request context and echoes it on the response. A missing or oversized
// header is replaced with a fresh UUID.
func CorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(logging.CorrelationHeader))
		if id == "" || len(id) > maxCorrelationIDLen {
			id = uuid.NewString()
		}

		w.Header().Set(logging.CorrelationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}
