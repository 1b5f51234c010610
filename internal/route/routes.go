package route

import (
	"net/http"

	"github.com/benbjohnson/clock"
	"github.com/gorilla/mux"

	"github.com/lawinko/vision-detector/internal/config"
	"github.com/lawinko/vision-detector/internal/handler"
	"github.com/lawinko/vision-detector/internal/logger"
	"github.com/lawinko/vision-detector/internal/middleware"
	"github.com/lawinko/vision-detector/internal/service"
	"github.com/lawinko/vision-detector/internal/service/websocket"
)

// SetupRoutes registers camera ingestion, viewer and API endpoints,
// and wraps the router with the authentication middleware.
func SetupRoutes(manager *service.Manager, hub *websocket.HubService, render handler.RenderFunc,
	cfg *config.Config, logger *logger.Logger, clk clock.Clock) http.Handler {
	router := mux.NewRouter()

	// Camera ingestion
	router.HandleFunc("/camera", handler.CameraWebsocketHandler(manager, cfg, logger, clk)).Methods(http.MethodGet)
	router.HandleFunc("/camera/upload", handler.UploadHandler(manager, cfg, logger, clk)).Methods(http.MethodPost)

	// API endpoints
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/view", handler.ViewWebsocketHandler(hub, logger)).Methods(http.MethodGet)
	api.HandleFunc("/detections", handler.DetectionsHandler(manager)).Methods(http.MethodGet)
	api.HandleFunc("/threshold", handler.ThresholdHandler(manager, logger)).Methods(http.MethodGet, http.MethodPost)
	api.HandleFunc("/stats", handler.StatsHandler(manager)).Methods(http.MethodGet)
	api.HandleFunc("/snapshot", handler.SnapshotHandler(manager, render, logger)).Methods(http.MethodGet)

	// Log endpoints
	router.HandleFunc("/logs/{level:info|warning|error}", handler.ShowLogsHandler(logger)).Methods(http.MethodGet)
	router.HandleFunc("/logs/{level:info|warning|error}/clear", handler.ClearLogsHandler(logger)).Methods(http.MethodPost)

	// Auth endpoints
	router.HandleFunc("/auth/login", handler.LoginHandler(cfg, logger)).Methods(http.MethodPost)
	router.HandleFunc("/auth/logout", handler.LogoutHandler).Methods(http.MethodGet)

	// Apply middleware
	return middleware.AuthMiddleware(router)
}
