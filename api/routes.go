package api

import (
	"github.com/garnizeh/experts/internal/config"
	"github.com/garnizeh/experts/pkg/repository"
	"github.com/gorilla/mux"
)

func SetupRoutes(cfg *config.Config, version, buildTime string, clients repository.ClientRepo, finder Finder) *mux.Router {
	r := mux.NewRouter()

	// Middleware chain
	r.Use(LoggingMiddleware)
	r.Use(CORSMiddleware)
	r.Use(RecoveryMiddleware)

	// Create handlers
	systemHandler := &SystemHandler{}
	authHandler := NewAuthHandler(clients, cfg.JWTSecret, cfg.TokenDuration)
	expertsHandler := NewExpertsHandler(finder, cfg.Finder.CostCeilingBytes, cfg.Finder.Timeout)

	// Open endpoints
	r.HandleFunc("/version", systemHandler.VersionHandler(version, buildTime)).Methods("GET")
	r.HandleFunc("/health", systemHandler.HealthHandler).Methods("GET")
	r.HandleFunc("/v1/auth/token", authHandler.Token).Methods("POST")

	// API v1 Protected routes
	apiV1 := r.PathPrefix("/v1").Subrouter()
	apiV1.Use(JWTAuthMiddlewareWithSecret(cfg.JWTSecret))

	apiV1.HandleFunc("/experts", expertsHandler.FindExperts).Methods("GET")

	return r
}
