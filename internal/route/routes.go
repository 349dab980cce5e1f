package route

import (
	"net/http"
	"os"
	"path"
	"path/filepath"

	"detectserver/internal/config"
	"detectserver/internal/handler"
	"detectserver/internal/logger"
	"detectserver/internal/middleware"
	"detectserver/internal/repository"
	hub "detectserver/internal/service/websocket"
)

var logFiles = map[string]string{
	"info":    logger.InfoFile,
	"warning": logger.WarningFile,
	"error":   logger.ErrorFile,
}

// staticHandler serves / as index.html and any other path from the static
// directory if the file exists; otherwise 404.
func staticHandler(dir string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := path.Clean("/" + r.URL.Path)
		if name == "/" {
			name = "/index.html"
		}

		filePath := filepath.Join(dir, filepath.FromSlash(name))
		info, err := os.Stat(filePath)
		if err != nil || info.IsDir() {
			http.NotFound(w, r)
			return
		}

		http.ServeFile(w, r, filePath)
	}
}

// SetupRoutes registers the detection endpoints, history and log APIs, the
// websocket endpoints and static files, wrapped with CORS and request logging.
// history may be nil when history is disabled.
func SetupRoutes(detector handler.Detector, events *hub.HubService, history repository.DetectionRepository,
	cfg *config.Config, logger *logger.Logger) http.Handler {
	mux := http.NewServeMux()

	// Detection endpoints
	mux.HandleFunc("/detect", handler.DetectHandler(detector, cfg, logger))
	mux.HandleFunc("/detect/annotated", handler.AnnotatedHandler(detector, cfg, logger))
	mux.HandleFunc("/health", handler.HealthHandler(detector))
	mux.HandleFunc("/ws", handler.StreamHandler(detector, cfg, logger))

	// API endpoints
	mux.HandleFunc("/api/events", handler.ViewWebsocketHandler(events, logger))
	mux.HandleFunc("/api/history", handler.HistoryHandler(history, logger))
	mux.HandleFunc("/api/history/labels", handler.HistoryLabelsHandler(history, logger))
	mux.HandleFunc("/api/history/", handler.HistoryRecordHandler(history, logger))

	// Log endpoints
	for name, file := range logFiles {
		mux.HandleFunc("/logs/"+name, handler.ShowLogsHandler(logger, file))
		mux.HandleFunc("/logs/"+name+"/clear", handler.ClearLogsHandler(logger, file))
	}

	mux.HandleFunc("/", staticHandler(cfg.StaticDir))

	// Apply middleware
	return middleware.LoggingMiddleware(logger)(middleware.CORSMiddleware(mux))
}
