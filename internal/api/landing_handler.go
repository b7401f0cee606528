package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alecgard/gabelle/internal/directory"
	"github.com/alecgard/gabelle/internal/resolver"
)

// tokenResolver is the purchase-token resolution dependency.
type tokenResolver interface {
	Resolve(ctx context.Context, sessionKey, token string) (*resolver.Resolution, error)
	Describe(ctx context.Context, token string) (*resolver.Details, error)
}

// userDirectory looks up the visiting user's directory profile. Optional.
type userDirectory interface {
	CurrentUser(ctx context.Context, bearer string) (*directory.User, error)
}

// landingHandler serves the post-purchase landing flow: the marketplace
// redirects the buyer here with a purchase token in the query string.
type landingHandler struct {
	resolver  tokenResolver
	directory userDirectory
}

func newLandingHandler(res tokenResolver, dir userDirectory) *landingHandler {
	return &landingHandler{resolver: res, directory: dir}
}

// landingResponse is the payload the landing page renders.
type landingResponse struct {
	Resolution *resolver.Resolution `json:"resolution"`
	User       *directory.User      `json:"user,omitempty"`
}

// Landing handles GET /api/v1/landing?token=... It redeems the purchase
// token, binds the resulting billing context to the caller's session, and
// returns the subscription details for display.
func (h *landingHandler) Landing(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	sessionKey := SessionKeyFromContext(r.Context())

	res, err := h.resolver.Resolve(r.Context(), sessionKey, token)
	if err != nil {
		if errors.Is(err, resolver.ErrEmptyToken) {
			writeError(w, http.StatusBadRequest, "missing_token", "purchase token is required")
			return
		}
		slog.Error("token resolution failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusBadGateway, "resolution_failed", "could not resolve purchase token with the marketplace")
		return
	}

	resp := landingResponse{Resolution: res}

	// The directory lookup is cosmetic (greeting on the landing page); its
	// failure never blocks the purchase flow.
	if h.directory != nil {
		if bearer := extractBearer(r); bearer != "" {
			user, dirErr := h.directory.CurrentUser(r.Context(), bearer)
			if dirErr != nil {
				slog.Warn("directory lookup failed", "error", dirErr)
			} else {
				resp.User = user
			}
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Details handles GET /api/v1/landing/details?token=... It returns the
// resolved subscription together with every available plan, without touching
// the session.
func (h *landingHandler) Details(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")

	details, err := h.resolver.Describe(r.Context(), token)
	if err != nil {
		if errors.Is(err, resolver.ErrEmptyToken) {
			writeError(w, http.StatusBadRequest, "missing_token", "purchase token is required")
			return
		}
		slog.Error("token describe failed", "error", err, "request_id", RequestIDFromContext(r.Context()))
		writeError(w, http.StatusBadGateway, "resolution_failed", "could not resolve purchase token with the marketplace")
		return
	}

	writeJSON(w, http.StatusOK, details)
}

func extractBearer(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	parts := strings.SplitN(auth, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
