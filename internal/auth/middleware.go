package auth

import (
	"encoding/json"
	"net/http"
	"strings"
)

// Metrics is an optional interface for counting rejected admin requests.
type Metrics interface {
	IncAuthFailure()
}

// AdminMiddleware returns middleware that authenticates requests using a
// bearer key in the Authorization header, compared against the configured
// admin key. On success a Principal is injected into the request context.
func AdminMiddleware(adminKey string, metrics Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := extractBearerToken(r)
			if token == "" {
				if metrics != nil {
					metrics.IncAuthFailure()
				}
				writeUnauthorized(w, "missing or malformed authorization header")
				return
			}

			if !VerifyAdminKey(adminKey, token) {
				if metrics != nil {
					metrics.IncAuthFailure()
				}
				writeUnauthorized(w, "invalid admin key")
				return
			}

			ctx := ContextWithPrincipal(r.Context(), &Principal{Name: "admin"})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if auth == "" {
		return ""
	}
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: errorBody{
			Code:    "unauthorized",
			Message: message,
		},
	})
}
