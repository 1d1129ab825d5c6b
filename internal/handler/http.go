package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/steam-achievements/internal/domain"
	"github.com/steam-achievements/internal/session"
	"github.com/steam-achievements/internal/token"
	"github.com/steam-achievements/internal/websocket"
)

// AchievementProvider serves the merged achievement view
type AchievementProvider interface {
	GameAchievements(ctx context.Context, steamID string, appID uint32) (*domain.GameAchievements, error)
}

// MintSubmitter runs the mint pipeline
type MintSubmitter interface {
	Mint(ctx context.Context, req domain.MintRequest) (*domain.MintResult, error)
}

// MintLister reads reconciled mint records
type MintLister interface {
	ListByOwner(ctx context.Context, owner string) ([]domain.MintRecord, error)
}

// Handler provides HTTP handlers for the achievements API
type Handler struct {
	achievements AchievementProvider
	mints        MintSubmitter
	records      MintLister
	session      session.Resolver
	hub          *websocket.Hub
	logger       *slog.Logger
}

// NewHandler creates a new HTTP handler
func NewHandler(
	achievements AchievementProvider,
	mints MintSubmitter,
	records MintLister,
	sess session.Resolver,
	hub *websocket.Hub,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		achievements: achievements,
		mints:        mints,
		records:      records,
		session:      sess,
		hub:          hub,
		logger:       logger,
	}
}

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Router creates and configures the HTTP router
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(corsMiddleware)

	// Health check
	r.Get("/health", h.HealthCheck)
	r.Get("/ready", h.ReadyCheck)

	// WebSocket endpoint (live mint feed)
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/achievements", h.GetAchievements)

		r.Route("/mints", func(r chi.Router) {
			r.Post("/", h.SubmitMint)
			r.Get("/", h.ListMints)
		})

		r.Get("/tokens/{appID}/{achievementID}", h.GetTokenID)

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID, X-Steam-ID")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeSuccess writes a successful JSON response
func (h *Handler) writeSuccess(w http.ResponseWriter, data interface{}) {
	h.writeJSON(w, http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

// writeError writes an error JSON response
func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics, optionally
// scoped to one game's mint feed via ?appId=
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	stats := map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	}

	if raw := r.URL.Query().Get("appId"); raw != "" {
		appID, ok := parseAppID(raw)
		if !ok {
			h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
			return
		}
		stats["app_id"] = appID
		stats["subscribers"] = h.hub.GetSubscriberCount(strconv.FormatUint(uint64(appID), 10))
	}

	h.writeSuccess(w, stats)
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// GetAchievements returns the merged, rarity-sorted achievement view for the
// authenticated user and the requested game
func (h *Handler) GetAchievements(w http.ResponseWriter, r *http.Request) {
	steamID := h.session.SteamID(r)
	if steamID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrUnauthenticated)
		return
	}

	appID, ok := parseAppID(r.URL.Query().Get("appId"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	view, err := h.achievements.GameAchievements(r.Context(), steamID, appID)
	if err != nil {
		if domain.IsNotFoundError(err) {
			h.writeError(w, http.StatusNotFound, err)
			return
		}
		if errors.Is(err, domain.ErrUpstreamUnavailable) {
			h.logger.Error("steam upstream unavailable", "app_id", appID, "error", err)
			h.writeError(w, http.StatusBadGateway, domain.ErrUpstreamUnavailable)
			return
		}
		h.logger.Error("failed to aggregate achievements", "app_id", appID, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, view)
}

// SubmitMint runs the mint pipeline for an unlocked achievement
func (h *Handler) SubmitMint(w http.ResponseWriter, r *http.Request) {
	var req domain.MintRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	// The request identity wins over any steam_id in the body
	if steamID := h.session.SteamID(r); steamID != "" {
		req.SteamID = steamID
	}

	result, err := h.mints.Mint(r.Context(), req)
	if err != nil {
		status := h.mintErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("mint pipeline failed", "stage", result.Stage, "error", err)
		}
		h.writeJSON(w, status, APIResponse{Success: false, Data: result, Error: result.Error})
		return
	}

	h.writeSuccess(w, result)
}

// mintErrorStatus maps a mint pipeline error to an HTTP status
func (h *Handler) mintErrorStatus(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusBadRequest
	case domain.IsNotFoundError(err):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrAchievementLocked):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrMintRejected):
		return http.StatusConflict
	case errors.Is(err, domain.ErrUpstreamUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// ListMints returns reconciled mint records for an owner address
func (h *Handler) ListMints(w http.ResponseWriter, r *http.Request) {
	owner := r.URL.Query().Get("owner")
	if owner == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	records, err := h.records.ListByOwner(r.Context(), owner)
	if err != nil {
		h.logger.Error("failed to list mints", "owner", owner, "error", err)
		h.writeError(w, http.StatusInternalServerError, domain.ErrInternalError)
		return
	}

	h.writeSuccess(w, records)
}

// GetTokenID returns the deterministic token id for an achievement without
// minting, for client-side preview
func (h *Handler) GetTokenID(w http.ResponseWriter, r *http.Request) {
	appID, ok := parseAppID(chi.URLParam(r, "appID"))
	if !ok {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}
	achievementID := chi.URLParam(r, "achievementID")
	if achievementID == "" {
		h.writeError(w, http.StatusBadRequest, domain.ErrInvalidRequest)
		return
	}

	h.writeSuccess(w, map[string]interface{}{
		"app_id":         appID,
		"achievement_id": achievementID,
		"token_id":       token.DeriveHex(appID, achievementID),
	})
}

func parseAppID(raw string) (uint32, bool) {
	if raw == "" {
		return 0, false
	}
	appID, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || appID == 0 {
		return 0, false
	}
	return uint32(appID), true
}
