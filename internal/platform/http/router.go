package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/caniparkhere/caniparkhere/apps/api/internal/business/chat"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/business/search"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/backend"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/logging"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/platform/metrics"
	"github.com/caniparkhere/caniparkhere/apps/api/internal/repository"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/model"
	"github.com/caniparkhere/caniparkhere/apps/api/pkg/util"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// UserHeader carries the acting identity-provider user id.
const UserHeader = "X-User-ID"

// ClientHeader carries an opaque per-browser id used for local preferences.
const ClientHeader = "X-Client-ID"

// HistoryStore is the parking history persistence the router needs.
type HistoryStore interface {
	AddParkingEntry(ctx context.Context, userID string, in model.ParkingEntryInput) (model.ParkingEntry, error)
	GetLastParked(ctx context.Context, userID string, resolveHistory bool) (*model.LastParked, error)
	GetParkingHistory(ctx context.Context, userID string, limit int, cursor string) (repository.HistoryPage, error)
	UpdateParkingNote(ctx context.Context, userID, entryID string, note *string, refreshPointer bool) error
	ClearLastParked(ctx context.Context, userID string) error
	DeleteParkingEntry(ctx context.Context, userID, entryID string) error
}

// UserStore is the profile persistence the router needs.
type UserStore interface {
	SyncUserProfile(ctx context.Context, u model.IdentityUser) (model.UserProfile, string, error)
	GetUserProfile(ctx context.Context, userID string) (model.UserProfile, error)
	IncrementUserStat(ctx context.Context, userID string, stat model.StatName) error
	UpdateUserPreferences(ctx context.Context, userID string, patch model.PreferencesPatch) (model.Preferences, error)
}

// TicketStore is the ticket persistence the router needs.
type TicketStore interface {
	AddTicket(ctx context.Context, t model.ParkingTicket) (model.ParkingTicket, error)
	GetTicket(ctx context.Context, ticketID string) (model.ParkingTicket, error)
	ListUserTickets(ctx context.Context, userID string) ([]model.ParkingTicket, error)
	UpdateTicket(ctx context.Context, ticketID string, upd model.TicketUpdate) error
	DeleteTicket(ctx context.Context, ticketID string) error
}

// PinStore is the community pin persistence the router needs.
type PinStore interface {
	SavePin(ctx context.Context, p model.ParkingPin) (model.ParkingPin, error)
	PinsInArea(ctx context.Context, lat, lng, radiusKm float64) ([]model.ParkingPin, error)
}

// HealthChecker reports the parking backend's health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) (model.HealthStatus, error)
}

// ClientConfig is handed to browsers so they can initialize their own SDKs.
type ClientConfig struct {
	AnalyticsKey  string `json:"analyticsKey,omitempty"`
	AnalyticsHost string `json:"analyticsHost,omitempty"`
	Locality      string `json:"locality"`
}

// Deps are the collaborators wired into the router. Nil stores disable their routes.
type Deps struct {
	Chat           *chat.Service
	Maps           *search.Service
	History        HistoryStore
	Users          UserStore
	Tickets        TicketStore
	Pins           PinStore
	Backend        HealthChecker
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
	AllowedOrigins string
	Client         ClientConfig
}

// Router wires HTTP handlers.
type Router struct {
	chat    *chat.Service
	maps    *search.Service
	history HistoryStore
	users   UserStore
	tickets TicketStore
	pins    PinStore
	backend HealthChecker
	metrics *metrics.Metrics
	log     zerolog.Logger
	origins string
	client  ClientConfig
}

func NewRouter(d Deps) *gin.Engine {
	r := &Router{
		chat:    d.Chat,
		maps:    d.Maps,
		history: d.History,
		users:   d.Users,
		tickets: d.Tickets,
		pins:    d.Pins,
		backend: d.Backend,
		metrics: d.Metrics,
		log:     d.Logger,
		origins: d.AllowedOrigins,
		client:  d.Client,
	}

	router := gin.New()
	router.Use(logging.GinMiddleware(d.Logger), gin.Recovery(), r.corsMiddleware(), r.metricsMiddleware())

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	{
		api.GET("/health", r.backendHealth)
		api.GET("/client-config", r.clientConfig)

		if r.chat != nil {
			api.POST("/chat/sessions", r.createChat)
			api.GET("/chat/sessions/:id", r.getChat)
			api.POST("/chat/sessions/:id/photo", r.submitPhoto)
			api.POST("/chat/sessions/:id/location", r.requestLocation)
			api.POST("/chat/sessions/:id/followup", r.askFollowUp)
		}

		if r.maps != nil {
			api.GET("/map/presets", r.listPresets)
			api.GET("/map/markers.css", r.markerStylesheet)
			api.POST("/map/views", r.createView)
			api.GET("/map/views/:id", r.getView)
			api.POST("/map/views/:id/search", r.searchAt)
			api.POST("/map/views/:id/limit", r.setLimit)
			api.POST("/map/views/:id/visibility", r.setVisibility)
			api.POST("/map/views/:id/autocomplete", r.autocomplete)
			api.POST("/map/views/:id/select", r.selectPrediction)
			api.GET("/map/views/:id/markers/:markerId/popup", r.openPopup)
			api.POST("/map/views/:id/markers/:markerId/find-parking", r.findParkingHere)
			api.GET("/map/views/:id/places/:placeId/popup", r.openPlacePopup)
			api.POST("/map/views/:id/places/:placeId/find-parking", r.findParkingAtPlace)
		}

		if r.users != nil {
			api.POST("/users/sync", r.syncUser)
		}
		user := api.Group("/users/:uid", r.requireUser())
		{
			if r.users != nil {
				user.GET("", r.getUser)
				user.POST("/stats/:stat", r.incrementStat)
				user.PATCH("/preferences", r.updatePreferences)
			}
			if r.history != nil {
				user.POST("/parking", r.addParking)
				user.GET("/parking", r.listParking)
				user.GET("/parking/last", r.getLastParked)
				user.DELETE("/parking/last", r.clearLastParked)
				user.PATCH("/parking/:entryId/note", r.updateNote)
				user.DELETE("/parking/:entryId", r.deleteParking)
			}
			if r.tickets != nil {
				user.POST("/tickets", r.addTicket)
				user.GET("/tickets", r.listTickets)
			}
			if r.pins != nil {
				user.POST("/pins", r.savePin)
			}
		}

		if r.tickets != nil {
			api.PATCH("/tickets/:id", r.updateTicket)
			api.DELETE("/tickets/:id", r.deleteTicket)
		}
		if r.pins != nil {
			api.GET("/pins", r.pinsInArea)
		}
	}

	return router
}

func (r *Router) corsMiddleware() gin.HandlerFunc {
	origins := strings.Split(r.origins, ",")
	trimmed := make([]string, 0, len(origins))
	for _, o := range origins {
		if t := strings.TrimSpace(o); t != "" {
			trimmed = append(trimmed, t)
		}
	}
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		allowed := "*"
		for _, o := range trimmed {
			if o == "*" || o == origin {
				allowed = origin
				break
			}
		}
		c.Header("Access-Control-Allow-Origin", allowed)
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization, "+UserHeader+", "+ClientHeader)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		if c.Request.Method == http.MethodOptions {
			c.Status(http.StatusNoContent)
			c.Abort()
			return
		}
		c.Next()
	}
}

func (r *Router) metricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if r.metrics == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		r.metrics.HTTPRequests.WithLabelValues(route, strconv.Itoa(c.Writer.Status()/100)+"xx").Inc()
	}
}

// requireUser rejects requests whose acting user does not match the :uid path segment.
func (r *Router) requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		acting := strings.TrimSpace(c.GetHeader(UserHeader))
		if acting == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": UserHeader + " header is required"})
			return
		}
		if acting != c.Param("uid") {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "cannot act for another user"})
			return
		}
		c.Next()
	}
}

func actingUser(c *gin.Context) string {
	return strings.TrimSpace(c.GetHeader(UserHeader))
}

// writeError maps domain errors onto HTTP status codes.
func (r *Router) writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repository.ErrNotFound),
		errors.Is(err, chat.ErrSessionNotFound),
		errors.Is(err, search.ErrViewNotFound),
		errors.Is(err, search.ErrUnknownMarker),
		errors.Is(err, search.ErrUnknownPlace):
		status = http.StatusNotFound
	case errors.Is(err, model.ErrInvalidCoordinates),
		errors.Is(err, repository.ErrUnknownStat),
		errors.Is(err, repository.ErrUserRequired),
		errors.Is(err, util.ErrInvalidCursor),
		errors.Is(err, search.ErrUnknownPreset),
		errors.Is(err, search.ErrUnknownClass):
		status = http.StatusBadRequest
	case errors.Is(err, search.ErrPlatformNotReady):
		status = http.StatusServiceUnavailable
	}
	if status == http.StatusInternalServerError {
		r.log.Error().Err(err).Str("route", c.FullPath()).Msg("request failed")
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg})
}

func (r *Router) backendHealth(c *gin.Context) {
	if r.backend == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unconfigured"})
		return
	}
	status, err := r.backend.HealthCheck(c.Request.Context())
	if err != nil {
		msg := backend.FormatAPIError(err)
		c.JSON(http.StatusBadGateway, model.HealthStatus{Status: "unhealthy", Error: &msg})
		return
	}
	c.JSON(http.StatusOK, status)
}

func (r *Router) clientConfig(c *gin.Context) {
	c.JSON(http.StatusOK, r.client)
}
