package rest

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"unimem/application/commands/bus"
	querybus "unimem/application/queries/bus"
	"unimem/infrastructure/di"
	"unimem/interfaces/http/rest/handlers"
	"unimem/interfaces/http/rest/middleware"
	pkgerrors "unimem/pkg/errors"
)

// Options tune the router per entry point.
type Options struct {
	EnableCORS     bool
	AllowedOrigins []string
	Auth           middleware.AuthConfig
}

// Router creates and configures the HTTP router
type Router struct {
	commandBus *bus.CommandBus
	queryBus   *querybus.QueryBus
	errors     *pkgerrors.ErrorHandler
	options    Options
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	commandBus *bus.CommandBus,
	queryBus *querybus.QueryBus,
	errorHandler *pkgerrors.ErrorHandler,
	options Options,
	logger *zap.Logger,
) *Router {
	return &Router{
		commandBus: commandBus,
		queryBus:   queryBus,
		errors:     errorHandler,
		options:    options,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() *chi.Mux {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(middleware.Logger(rt.logger))
	router.Use(rt.errors.Middleware)

	if rt.options.EnableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   rt.options.AllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	search := handlers.NewSearchHandler(rt.queryBus, rt.errors, rt.logger)
	memories := handlers.NewMemoryHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)
	conversations := handlers.NewConversationHandler(rt.commandBus, rt.queryBus, rt.errors, rt.logger)

	router.Get("/health", search.Health)
	router.Get("/ready", rt.readinessCheck)

	router.Route("/api/v1", func(r chi.Router) {
		auth := rt.options.Auth
		auth.Errors = rt.errors
		auth.Logger = rt.logger
		r.Use(middleware.Authenticate(auth))
		r.Use(middleware.RecordOwner)

		r.Route("/memories", func(r chi.Router) {
			r.Post("/", memories.CreateMemory)
			r.Get("/", memories.ListMemories)
			r.Get("/{memoryID}", memories.GetMemory)
			r.Delete("/{memoryID}", memories.DeleteMemory)
			r.Get("/{memoryID}/related", memories.GetRelated)
		})

		r.Post("/parse-text", memories.ParseText)
		r.Post("/search", search.Search)
		r.Get("/stats", search.Stats)
		r.Post("/embed", search.Embed)
		r.Post("/embed/batch", search.EmbedBatch)

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", conversations.List)
			r.Delete("/", conversations.ClearHistory)
			r.Post("/turns", conversations.RecordTurn)
			r.Post("/context", conversations.Context)
			r.Get("/{conversationID}/history", conversations.History)
			r.Delete("/{conversationID}/history", conversations.ClearHistory)
		})
	})

	return router
}

// readinessCheck reports that the process is serving. Dependency state is under /health.
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ready"}`))
}

// NewRouterFromContainer builds the router from the wired dependencies. trustGateway is set
// only by the Lambda entry point, where API Gateway has already validated the token.
func NewRouterFromContainer(c *di.Container, trustGateway bool) *Router {
	return NewRouter(c.CommandBus, c.QueryBus, c.ErrorHandler, Options{
		EnableCORS:     c.Config.EnableCORS,
		AllowedOrigins: c.Config.CORSAllowedOrigins,
		Auth: middleware.AuthConfig{
			Validator:    c.JWTValidator,
			IPLimiter:    c.RateLimiters.IP,
			UserLimiter:  c.RateLimiters.User,
			IPLimit:      c.Config.IPRateLimit,
			UserLimit:    c.Config.UserRateLimit,
			TrustGateway: trustGateway,
		},
	}, c.Logger)
}
