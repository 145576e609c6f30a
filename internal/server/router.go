package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Iam-samyog/EduCircle/internal/analysis"
	"github.com/Iam-samyog/EduCircle/internal/apperr"
	"github.com/Iam-samyog/EduCircle/internal/auth"
	"github.com/Iam-samyog/EduCircle/internal/chat"
	"github.com/Iam-samyog/EduCircle/internal/decks"
	"github.com/Iam-samyog/EduCircle/internal/goals"
	"github.com/Iam-samyog/EduCircle/internal/notes"
	"github.com/Iam-samyog/EduCircle/internal/realtime"
	"github.com/Iam-samyog/EduCircle/internal/rooms"
	"github.com/Iam-samyog/EduCircle/internal/users"
)

const (
	actorContextKey          = "educircle_actor"
	defaultHeartbeatInterval = 25 * time.Second
)

var (
	errMissingSessionValidator = errors.New("session validator dependency required")
	errMissingUsersService     = errors.New("users service dependency required")
	errMissingAnalysisService  = errors.New("analysis service dependency required")
	errMissingRoomsService     = errors.New("rooms service dependency required")
	errMissingContentServices  = errors.New("notes, decks, chat and goals services required")
	errMissingDispatcher       = errors.New("realtime dispatcher dependency required")
)

// SessionValidator authenticates incoming requests.
type SessionValidator interface {
	ValidateRequest(r *http.Request) (auth.SessionClaims, error)
}

// ProfileResolver maps session claims onto stored profiles.
type ProfileResolver interface {
	ResolveProfile(ctx context.Context, claims auth.SessionClaims) (users.Profile, error)
	GetProfile(ctx context.Context, userID string) (users.Profile, error)
	UpdateDisplayName(ctx context.Context, userID, displayName string) (users.Profile, error)
}

// Analyzer runs the document pipeline.
type Analyzer interface {
	Analyze(ctx context.Context, request analysis.Request) (analysis.Response, error)
	ExtractText(ctx context.Context, request analysis.Request) (string, error)
	Ready() bool
	MaxUploadBytes() int64
}

// Dependencies wires the HTTP layer to the domain services.
type Dependencies struct {
	SessionValidator  SessionValidator
	Users             ProfileResolver
	Analysis          Analyzer
	Rooms             *rooms.Service
	Notes             *notes.Service
	Decks             *decks.Service
	Chat              *chat.Service
	Goals             *goals.Service
	Dispatcher        *realtime.Dispatcher
	AllowedOrigins    []string
	HeartbeatInterval time.Duration
	Clock             func() time.Time
	Logger            *zap.Logger
}

// NewHTTPHandler builds the gin engine serving the public and room APIs.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.SessionValidator == nil {
		return nil, errMissingSessionValidator
	}
	if deps.Users == nil {
		return nil, errMissingUsersService
	}
	if deps.Analysis == nil {
		return nil, errMissingAnalysisService
	}
	if deps.Rooms == nil {
		return nil, errMissingRoomsService
	}
	if deps.Notes == nil || deps.Decks == nil || deps.Chat == nil || deps.Goals == nil {
		return nil, errMissingContentServices
	}
	if deps.Dispatcher == nil {
		return nil, errMissingDispatcher
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	heartbeat := deps.HeartbeatInterval
	if heartbeat <= 0 {
		heartbeat = defaultHeartbeatInterval
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware(deps.AllowedOrigins))

	handler := &httpHandler{
		sessions:   deps.SessionValidator,
		users:      deps.Users,
		analysis:   deps.Analysis,
		rooms:      deps.Rooms,
		notes:      deps.Notes,
		decks:      deps.Decks,
		chat:       deps.Chat,
		goals:      deps.Goals,
		dispatcher: deps.Dispatcher,
		heartbeat:  heartbeat,
		clock:      clock,
		logger:     logger,
	}

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)
	api.POST("/analyze", handler.handleAnalyze)
	api.POST("/ai/analyze", handler.handleAnalyze)
	api.POST("/generate-flashcards", handler.handleGenerateFlashcards)
	api.POST("/summarize", handler.handleSummarize)

	protected := api.Group("/")
	protected.Use(handler.authorizeRequest)
	handler.registerRoomRoutes(protected)
	handler.registerContentRoutes(protected)
	handler.registerStreamRoutes(protected)

	return router, nil
}

type httpHandler struct {
	sessions   SessionValidator
	users      ProfileResolver
	analysis   Analyzer
	rooms      *rooms.Service
	notes      *notes.Service
	decks      *decks.Service
	chat       *chat.Service
	goals      *goals.Service
	dispatcher *realtime.Dispatcher
	heartbeat  time.Duration
	clock      func() time.Time
	logger     *zap.Logger
}

func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	config := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Accept", "Cache-Control"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	origins := make([]string, 0, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		if trimmed := strings.TrimSpace(origin); trimmed != "" {
			origins = append(origins, trimmed)
		}
	}
	if len(origins) == 0 || (len(origins) == 1 && origins[0] == "*") {
		// Credentialed requests cannot use "*", so echo the caller's origin.
		config.AllowOriginFunc = func(string) bool { return true }
	} else {
		config.AllowOrigins = origins
	}
	return cors.New(config)
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	claims, err := h.sessions.ValidateRequest(c.Request)
	if err != nil {
		if errors.Is(err, auth.ErrExpiredSessionToken) || errors.Is(err, auth.ErrMissingSessionToken) {
			h.logger.Info("session validation failed", zap.Error(err))
		} else {
			h.logger.Warn("session validation failed", zap.Error(err))
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	profile, err := h.users.ResolveProfile(c.Request.Context(), claims)
	if err != nil {
		h.logger.Error("failed to resolve user profile", zap.String("user_id", claims.UserID), zap.Error(err))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "profile_unavailable"})
		return
	}
	c.Set(actorContextKey, rooms.Actor{UserID: profile.UserID, Name: profile.Name()})
	c.Next()
}

func actorFrom(c *gin.Context) rooms.Actor {
	value, ok := c.Get(actorContextKey)
	if !ok {
		return rooms.Actor{}
	}
	actor, _ := value.(rooms.Actor)
	return actor
}

// respondError maps an error onto its status and a {error, code, message} body.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	body := gin.H{
		"error":   errorLabel(status),
		"message": apperr.UserMessage(err),
	}
	if code := apperr.CodeOf(err); code != "" {
		body["code"] = code
	}
	fields := []zap.Field{
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", status),
		zap.Error(err),
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", fields...)
	} else {
		h.logger.Warn("request rejected", fields...)
	}
	c.JSON(status, body)
}

func (h *httpHandler) respondBadRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": reason})
}

func errorLabel(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusForbidden:
		return "permission_denied"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusRequestEntityTooLarge:
		return "file_too_large"
	case http.StatusUnprocessableEntity:
		return "content_rejected"
	default:
		return "internal_error"
	}
}
