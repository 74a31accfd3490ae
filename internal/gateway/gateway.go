package gateway

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/polewatch/control-plane/internal/config"
	"github.com/polewatch/control-plane/internal/monitor"
	"github.com/polewatch/control-plane/pkg/cache"
	"github.com/polewatch/control-plane/pkg/database"
	"github.com/polewatch/control-plane/pkg/events"
	"github.com/polewatch/control-plane/pkg/models"
	"go.uber.org/zap"
)

// NodeDirectory is the node persistence surface the HTTP layer needs.
// Implemented by store.NodeStore.
type NodeDirectory interface {
	ListNodes(ctx context.Context) ([]models.Node, error)
	RecordHeartbeat(ctx context.Context, id int64, latitude, longitude *float64, now time.Time) (models.Node, error)
	Stats(ctx context.Context) (models.Stats, error)
}

// DeviceRegistry registers mobile devices. Implemented by store.DeviceStore.
type DeviceRegistry interface {
	RegisterDevice(ctx context.Context, pushToken string, role models.DeviceRole) (models.Device, error)
}

// FaultLog persists reported incidents. Implemented by store.FaultStore.
type FaultLog interface {
	CreateFault(ctx context.Context, nodeID int64, description string, confidence float64, imageURL string) (models.Fault, error)
	ListFaults(ctx context.Context) ([]models.Fault, error)
}

// Gateway handles API requests
type Gateway struct {
	nodes   NodeDirectory
	devices DeviceRegistry
	faults  FaultLog
	applier *monitor.TransitionApplier
	db      *database.Database
	cache   *cache.Cache
	bus     *events.Bus
	logger  *zap.Logger
	router  *chi.Mux

	apiKey      string
	corsOrigins []string
	uploads     config.UploadConfig
	limiter     *RateLimiter
	now         func() time.Time
}

// NewGateway creates a new API gateway
func NewGateway(
	nodes NodeDirectory,
	devices DeviceRegistry,
	faults FaultLog,
	applier *monitor.TransitionApplier,
	db *database.Database,
	cache *cache.Cache,
	bus *events.Bus,
	logger *zap.Logger,
	cfg *config.Config,
) *Gateway {
	g := &Gateway{
		nodes:       nodes,
		devices:     devices,
		faults:      faults,
		applier:     applier,
		db:          db,
		cache:       cache,
		bus:         bus,
		logger:      logger,
		router:      chi.NewRouter(),
		apiKey:      cfg.Security.APIKey,
		corsOrigins: cfg.Server.CORSOrigins,
		uploads:     cfg.Uploads,
		limiter:     NewRateLimiter(cache, cfg.Security.RateLimitPerMinute, logger),
		now:         time.Now,
	}

	g.setupRoutes()
	return g
}

// setupRoutes configures the HTTP routes
func (g *Gateway) setupRoutes() {
	// Middleware
	g.router.Use(middleware.RequestID)
	g.router.Use(middleware.RealIP)
	g.router.Use(g.loggerMiddleware)
	g.router.Use(g.metricsMiddleware)
	g.router.Use(middleware.Recoverer)
	g.router.Use(middleware.Timeout(60 * time.Second))
	g.router.Use(securityHeadersMiddleware)

	// CORS
	g.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   g.corsOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Metrics endpoint
	g.registerMetrics()

	// Health checks and uploaded images (no auth required)
	g.router.Get("/", g.handleRoot)
	g.router.Get("/health", g.handleHealth)
	g.router.Get("/ready", g.handleReady)
	g.router.Handle("/uploads/*", http.StripPrefix("/uploads/", http.FileServer(http.Dir(g.uploads.Dir))))

	// API surface
	g.router.Route("/api/v1", func(r chi.Router) {
		r.Use(g.rateLimitMiddleware)
		r.Use(g.apiKeyMiddleware)
		r.Use(maxBodyMiddleware(g.uploads.MaxSizeBytes))

		r.Post("/devices/register", g.handleRegisterDevice)

		r.Get("/nodes", g.handleListNodes)
		r.Post("/nodes/update", g.handleUpdateNode)

		r.Post("/faults/report", g.handleReportFault)
		r.Get("/faults", g.handleListFaults)

		r.Get("/stats", g.handleStats)

		r.Post("/upload", g.handleUpload)
	})
}

// ServeHTTP implements http.Handler
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.router.ServeHTTP(w, r)
}

// Middleware implementations

func (g *Gateway) loggerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		g.logger.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("remote_addr", r.RemoteAddr),
		)
	})
}

// apiKeyMiddleware gates the API behind the X-API-Key header. When no key is
// configured the gate is open, matching deployments that sit behind their own
// perimeter.
func (g *Gateway) apiKeyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if g.apiKey == "" {
			next.ServeHTTP(w, r)
			return
		}

		provided := r.Header.Get("X-API-Key")
		if provided == "" || subtle.ConstantTimeCompare([]byte(provided), []byte(g.apiKey)) != 1 {
			g.logger.Warn("invalid or missing API key",
				zap.String("remote_addr", r.RemoteAddr),
				zap.String("path", r.URL.Path),
			)
			g.writeError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// Handler implementations

func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, apiResponse{
		Status:  "ok",
		Message: "Pole Fault Monitoring API is running",
	})
}

func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	g.writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   g.now().UTC().Format(time.RFC3339),
	})
}

func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := map[string]string{}
	ready := true

	if g.db != nil {
		if err := g.db.Health(ctx); err != nil {
			checks["postgres"] = "down"
			ready = false
		} else {
			checks["postgres"] = "up"
		}
	}

	if g.cache != nil {
		if err := g.cache.Health(ctx); err != nil {
			checks["redis"] = "down"
			ready = false
		} else {
			checks["redis"] = "up"
		}
	}

	status := http.StatusOK
	if !ready {
		status = http.StatusServiceUnavailable
	}

	g.writeJSON(w, status, map[string]interface{}{
		"ready":  ready,
		"checks": checks,
	})
}

// apiResponse is the envelope every business endpoint replies with.
type apiResponse struct {
	Status  string      `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (g *Gateway) writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(data)
}

func (g *Gateway) writeError(w http.ResponseWriter, statusCode int, message string) {
	g.writeJSON(w, statusCode, apiResponse{
		Status:  "error",
		Message: message,
	})
}
