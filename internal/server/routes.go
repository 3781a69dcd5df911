package server

import (
	"net/http"

	"github.com/Vogeltak/reading-addiction/internal/models"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// UI pages
	mux.HandleFunc("/{$}", s.app.PageHandler.ListPage(models.ReadStatusUnread, "Unread"))
	mux.HandleFunc("/archive", s.app.PageHandler.ListPage(models.ReadStatusArchive, "Archive"))
	mux.HandleFunc("/article/{id}", s.app.PageHandler.ArticlePage)

	// API routes
	mux.HandleFunc("/api/status", s.app.StatusHandler.GetStatusHandler)
	mux.HandleFunc("/api/histogram", s.app.StatusHandler.GetHistogramHandler)

	return mux
}
