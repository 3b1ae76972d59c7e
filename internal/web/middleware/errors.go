package middleware

import (
	"encoding/json"
	"net/http"

	"github.com/JonMunkholm/policyhub/internal/logging"
)

// writeJSONError renders a middleware rejection in the API error shape.
func writeJSONError(w http.ResponseWriter, r *http.Request, status int, message, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"message":        message,
		"code":           code,
		"correlation_id": logging.CorrelationID(r.Context()),
	})
}
