package api

import (
	"net/http"
	"time"
)

const (
	serviceName    = "todo-api"
	serviceVersion = "1.0.0"
)

type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Service   string `json:"service"`
	Version   string `json:"version"`
}

func HealthCheckHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   serviceName,
		Version:   serviceVersion,
	})
}

// RootHandler describes the API.
func RootHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "To-do List Backend",
		"version": serviceVersion,
		"endpoints": map[string]string{
			"health": "/health",
			"auth":   "/api/auth",
			"todos":  "/api/todos",
		},
	})
}
