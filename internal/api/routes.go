package api

import (
	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes
func SetupRoutes(handler *Handler) *mux.Router {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", handler.HealthCheck).Methods("GET")

	api := r.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/watchlist", handler.GetWatchlist).Methods("GET")
	api.HandleFunc("/notices", handler.GetNotices).Methods("GET")
	api.HandleFunc("/compare", handler.Compare).Methods("GET")
	api.HandleFunc("/exports/csv", handler.ExportCSV).Methods("POST")

	// Quote routes
	api.HandleFunc("/quotes/{symbol}/latest", handler.GetLatest).Methods("GET")
	api.HandleFunc("/quotes/{symbol}/history", handler.GetHistory).Methods("GET")
	api.HandleFunc("/quotes/{symbol}/stored", handler.GetStored).Methods("GET")
	api.HandleFunc("/quotes/{symbol}/history/documents", handler.SaveDocuments).Methods("POST")
	api.HandleFunc("/quotes/{symbol}/history/sql", handler.SaveSQL).Methods("POST")

	return r
}
