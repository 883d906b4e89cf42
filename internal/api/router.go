package api

import (
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// NewRouter 创建路由并注册所有 handler
func NewRouter(todoHandler *TodoHandler, authHandler *AuthHandler, authMiddleware func(http.Handler) http.Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check endpoints (public, no auth); /api/health for the ingress
	r.HandleFunc("/health", HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/api/health", HealthCheckHandler).Methods(http.MethodGet)
	r.HandleFunc("/", RootHandler).Methods(http.MethodGet)

	// Public auth routes
	authHandler.RegisterRoutes(r.PathPrefix("/api/auth").Subrouter())

	// Protected API routes
	todoRouter := r.PathPrefix("/api/todos").Subrouter()
	todoRouter.Use(authMiddleware)
	todoHandler.RegisterRoutes(todoRouter)

	return r
}

// Wrap 外层中间件：panic 恢复、反向代理头、带凭证的 CORS
func Wrap(router http.Handler, frontendOrigin string) http.Handler {
	cors := handlers.CORS(
		handlers.AllowedOrigins([]string{frontendOrigin}),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization"}),
		handlers.AllowCredentials(),
	)
	return handlers.RecoveryHandler()(handlers.ProxyHeaders(cors(router)))
}
