package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/wordday/internal/domain"
	"github.com/wordday/internal/service"
	"github.com/wordday/internal/websocket"
)

// Handler provides HTTP handlers for the daily puzzle API
type Handler struct {
	game         *service.GameService
	leaderboard  *service.LeaderboardService
	streaks      *service.StreakService
	themes       *service.ThemeService
	hub          *websocket.Hub
	logger       *slog.Logger
	defaultLimit int
	maxLimit     int
}

// NewHandler creates a new HTTP handler
func NewHandler(game *service.GameService, leaderboard *service.LeaderboardService, streaks *service.StreakService, themes *service.ThemeService, hub *websocket.Hub, defaultLimit, maxLimit int, logger *slog.Logger) *Handler {
	return &Handler{
		game:         game,
		leaderboard:  leaderboard,
		streaks:      streaks,
		themes:       themes,
		hub:          hub,
		logger:       logger,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
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

	// WebSocket endpoint
	r.Get("/ws", h.HandleWebSocket)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Attempt lifecycle
		r.Route("/attempts", func(r chi.Router) {
			r.Post("/", h.StartAttempt)
			r.Route("/{attemptID}", func(r chi.Router) {
				r.Get("/", h.GetAttempt)
				r.Post("/guess", h.SubmitGuess)
			})
		})

		// External result ingestion (backfills, bulk imports)
		r.Post("/results", h.SubmitResult)

		// Leaderboard reads
		r.Route("/puzzles/{puzzleID}/leaderboard", func(r chi.Router) {
			r.Get("/", h.GetLeaderboard)
			r.Get("/player/{playerID}", h.GetPlayerEntry)
		})

		// Streaks
		r.Route("/players/{playerID}/streak", func(r chi.Router) {
			r.Get("/", h.GetStreak)
			r.Post("/recalculate", h.RecalculateStreak)
		})

		// Weekly theme
		r.Route("/themes", func(r chi.Router) {
			r.Get("/current", h.GetCurrentTheme)
			r.Get("/leaderboard", h.GetThemeLeaderboard)
			r.Route("/{tag}", func(r chi.Router) {
				r.Post("/guess", h.SubmitThemeGuess)
				r.Get("/status", h.GetThemeStatus)
			})
		})

		// Finalization
		r.Route("/admin", func(r chi.Router) {
			r.Post("/finalize", h.Finalize)
			r.Post("/finalize/sweep", h.FinalizeSweep)
		})

		// WebSocket info endpoint
		r.Get("/ws/stats", h.GetWebSocketStats)
	})

	return r
}

// corsMiddleware adds CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Authorization, Content-Type, X-Request-ID")

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

// writeError maps a domain error onto its HTTP status and writes it.
// Anything outside the taxonomy is a 500 with the detail kept server-side.
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case domain.IsValidation(err):
		status = http.StatusBadRequest
	case domain.IsNotFound(err):
		status = http.StatusNotFound
	case domain.IsConflict(err):
		status = http.StatusConflict
	case domain.IsAuthorization(err):
		status = http.StatusForbidden
	case domain.IsDependency(err):
		status = http.StatusBadGateway
	default:
		h.logger.Error("unhandled error", "error", err)
		err = domain.ErrInternalError
	}
	h.writeJSON(w, status, APIResponse{
		Success: false,
		Error:   err.Error(),
	})
}

// pageLimit reads the limit query parameter. Absent or invalid values
// fall back to the configured page size, and nothing may exceed the
// cap, so a read never returns an unbounded partition.
func (h *Handler) pageLimit(r *http.Request) int {
	limit := h.defaultLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}
	if h.maxLimit > 0 && limit > h.maxLimit {
		limit = h.maxLimit
	}
	return limit
}

// parseDate reads a YYYY-MM-DD query parameter, defaulting to today.
func parseDate(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		return domain.Day(time.Now()), nil
	}
	d, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, domain.ErrInvalidRequest
	}
	return domain.Day(d), nil
}

// HandleWebSocket handles WebSocket upgrade requests
func (h *Handler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	websocket.ServeWs(h.hub, h.logger, w, r)
}

// GetWebSocketStats returns WebSocket connection statistics
func (h *Handler) GetWebSocketStats(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]interface{}{
		"total_connections": h.hub.GetTotalConnections(),
	})
}

// HealthCheck returns service health status
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "healthy"})
}

// ReadyCheck returns service readiness status
func (h *Handler) ReadyCheck(w http.ResponseWriter, r *http.Request) {
	h.writeSuccess(w, map[string]string{"status": "ready"})
}

// StartAttempt fetches or creates the player's attempt for a date's puzzle
func (h *Handler) StartAttempt(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PlayerID string `json:"player_id"`
		Date     string `json:"date,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	date := domain.Day(time.Now())
	if req.Date != "" {
		d, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			h.writeError(w, domain.ErrInvalidRequest)
			return
		}
		date = domain.Day(d)
	}

	view, err := h.game.StartAttempt(r.Context(), req.PlayerID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, view)
}

// GetAttempt returns the current state of an attempt
func (h *Handler) GetAttempt(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	playerID := r.URL.Query().Get("player_id")
	if attemptID == "" || playerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	view, err := h.game.Attempt(r.Context(), playerID, attemptID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, view)
}

// SubmitGuess processes one guess against an attempt
func (h *Handler) SubmitGuess(w http.ResponseWriter, r *http.Request) {
	attemptID := chi.URLParam(r, "attemptID")
	var req struct {
		PlayerID string `json:"player_id"`
		Guess    string `json:"guess"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	outcome, err := h.game.SubmitGuess(r.Context(), req.PlayerID, attemptID, req.Guess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, outcome)
}

// SubmitResult records an externally produced result on its partition
func (h *Handler) SubmitResult(w http.ResponseWriter, r *http.Request) {
	var result domain.GameResult
	if err := json.NewDecoder(r.Body).Decode(&result); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	if result.PlayerID == "" || result.PuzzleID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	entry, err := h.leaderboard.RecordResult(r.Context(), result)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if entry == nil {
		h.writeSuccess(w, map[string]string{"status": "ignored"})
		return
	}
	h.writeSuccess(w, entry)
}

// GetLeaderboard returns a partition, live or finalized
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	puzzleID := chi.URLParam(r, "puzzleID")
	if puzzleID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	date, err := parseDate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	lb, err := h.leaderboard.GetLeaderboard(r.Context(), puzzleID, date, h.pageLimit(r), r.URL.Query().Get("player_id"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, lb)
}

// GetPlayerEntry returns one player's entry in a partition
func (h *Handler) GetPlayerEntry(w http.ResponseWriter, r *http.Request) {
	puzzleID := chi.URLParam(r, "puzzleID")
	playerID := chi.URLParam(r, "playerID")
	if puzzleID == "" || playerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	date, err := parseDate(r)
	if err != nil {
		h.writeError(w, err)
		return
	}

	entry, err := h.leaderboard.PlayerEntry(r.Context(), puzzleID, date, playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, entry)
}

// GetStreak returns a player's streak state
func (h *Handler) GetStreak(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	state, err := h.streaks.Get(r.Context(), playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, state)
}

// RecalculateStreak replays a player's history into a fresh streak
func (h *Handler) RecalculateStreak(w http.ResponseWriter, r *http.Request) {
	playerID := chi.URLParam(r, "playerID")
	if playerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	state, err := h.streaks.Recalculate(r.Context(), playerID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, state)
}

// GetCurrentTheme returns the theme active this week
func (h *Handler) GetCurrentTheme(w http.ResponseWriter, r *http.Request) {
	theme, err := h.themes.CurrentTheme(r.Context(), time.Now())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, theme)
}

// SubmitThemeGuess evaluates one weekly-theme guess
func (h *Handler) SubmitThemeGuess(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	var req struct {
		PlayerID string `json:"player_id"`
		Guess    string `json:"guess"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	eval, err := h.themes.EvaluateGuess(r.Context(), req.PlayerID, tag, req.Guess)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, eval)
}

// GetThemeStatus returns a player's progress against one theme
func (h *Handler) GetThemeStatus(w http.ResponseWriter, r *http.Request) {
	tag := chi.URLParam(r, "tag")
	playerID := r.URL.Query().Get("player_id")
	if tag == "" || playerID == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	status, err := h.themes.Status(r.Context(), playerID, tag)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, status)
}

// GetThemeLeaderboard returns the all-time theme standings
func (h *Handler) GetThemeLeaderboard(w http.ResponseWriter, r *http.Request) {
	standings, err := h.themes.Leaderboard(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, standings)
}

// Finalize freezes one partition
func (h *Handler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PuzzleID string `json:"puzzle_id"`
		Date     string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	if req.PuzzleID == "" || req.Date == "" {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		h.writeError(w, domain.ErrInvalidRequest)
		return
	}

	outcome, err := h.leaderboard.Finalize(r.Context(), req.PuzzleID, date)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, outcome)
}

// FinalizeSweep freezes every overdue partition
func (h *Handler) FinalizeSweep(w http.ResponseWriter, r *http.Request) {
	before := domain.Day(time.Now())
	var req struct {
		Before string `json:"before,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err == nil && req.Before != "" {
		d, err := time.Parse("2006-01-02", req.Before)
		if err != nil {
			h.writeError(w, domain.ErrInvalidRequest)
			return
		}
		before = domain.Day(d)
	}

	outcome, err := h.leaderboard.AutoFinalize(r.Context(), before)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeSuccess(w, outcome)
}
