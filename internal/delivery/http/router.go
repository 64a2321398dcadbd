package http

import (
	"io/fs"
	"net/http"

	"patient-registration/internal/delivery/http/handler"
	"patient-registration/internal/delivery/http/middleware"

	"github.com/gorilla/mux"
	"github.com/spf13/afero"
)

type Router struct {
	router            *mux.Router
	patientHandler    *handler.PatientHandler
	rulesHandler      *handler.RulesHandler
	requestMiddleware *middleware.RequestMiddleware
	corsMiddleware    *middleware.CORSMiddleware
	metricsHandler    http.Handler
	documents         afero.Fs
	storagePrefix     string
	ui                fs.FS
}

func NewRouter(
	patientHandler *handler.PatientHandler,
	rulesHandler *handler.RulesHandler,
	requestMiddleware *middleware.RequestMiddleware,
	corsMiddleware *middleware.CORSMiddleware,
	metricsHandler http.Handler,
	documents afero.Fs,
	storagePrefix string,
	ui fs.FS,
) *Router {
	return &Router{
		router:            mux.NewRouter(),
		patientHandler:    patientHandler,
		rulesHandler:      rulesHandler,
		requestMiddleware: requestMiddleware,
		corsMiddleware:    corsMiddleware,
		metricsHandler:    metricsHandler,
		documents:         documents,
		storagePrefix:     storagePrefix,
		ui:                ui,
	}
}

// Setup registers all routes. CORS and request ids wrap the router itself so
// preflight requests are answered before route matching.
func (r *Router) Setup() http.Handler {
	r.router.Use(r.requestMiddleware.Recovery, r.requestMiddleware.Logger)

	// API versioning
	api := r.router.PathPrefix("/api/v1").Subrouter()

	// Health check
	api.HandleFunc("/health", r.healthCheck).Methods(http.MethodGet)

	// Patient routes; /rules must precede /{id}
	patients := api.PathPrefix("/patients").Subrouter()
	patients.HandleFunc("", r.patientHandler.GetAllPatients).Methods(http.MethodGet)
	patients.HandleFunc("", r.patientHandler.CreatePatient).Methods(http.MethodPost)
	patients.HandleFunc("/rules", r.rulesHandler.GetRules).Methods(http.MethodGet)
	patients.HandleFunc("/{id}", r.patientHandler.GetPatient).Methods(http.MethodGet)
	patients.HandleFunc("/{id}", r.patientHandler.DeletePatient).Methods(http.MethodDelete)

	// Stored documents, read only
	files := http.StripPrefix(r.storagePrefix, http.FileServer(afero.NewHttpFs(r.documents).Dir("/")))
	r.router.PathPrefix(r.storagePrefix).Handler(files).Methods(http.MethodGet, http.MethodHead)

	r.router.Handle("/metrics", r.metricsHandler).Methods(http.MethodGet)

	// Web UI
	r.router.PathPrefix("/").Handler(http.FileServer(http.FS(r.ui))).Methods(http.MethodGet, http.MethodHead)

	return r.corsMiddleware.Handle(middleware.RequestID(r.router))
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status": "ok"}`))
}
