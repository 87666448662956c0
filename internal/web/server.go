// Package web implements the dashboard's REST and WebSocket surface: JSON
// handlers backed by the store, form registry, and value service, plus the
// telemetry WebSocket endpoint backed by the hub.
package web

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fsae-team/daqserver/internal/auth"
	"github.com/fsae-team/daqserver/internal/config"
	"github.com/fsae-team/daqserver/internal/formregistry"
	"github.com/fsae-team/daqserver/internal/ldxwatcher"
	"github.com/fsae-team/daqserver/internal/store"
	"github.com/fsae-team/daqserver/internal/telemetry/hub"
	"github.com/fsae-team/daqserver/internal/telemetry/source"
	"github.com/fsae-team/daqserver/internal/valueservice"
)

// Server is the HTTP/WebSocket server for the dashboard.
type Server struct {
	cfg       *config.Config
	store     *store.Store
	issuer    *auth.Issuer
	registry  *formregistry.Registry
	values    *valueservice.Service
	watcher   *ldxwatcher.Watcher
	hub       *hub.Hub
	serial    *source.SerialSource
	simulator *source.Simulator
	selector  *source.Selector

	mux    *http.ServeMux
	server *http.Server
}

// Deps bundles the long-lived components a Server dispatches into.
type Deps struct {
	Store     *store.Store
	Issuer    *auth.Issuer
	Registry  *formregistry.Registry
	Values    *valueservice.Service
	Watcher   *ldxwatcher.Watcher
	Hub       *hub.Hub
	Serial    *source.SerialSource
	Simulator *source.Simulator
	Selector  *source.Selector
}

// New builds a Server and registers every route. It does not start
// listening; call Start for that.
func New(cfg *config.Config, d Deps) *Server {
	s := &Server{
		cfg:       cfg,
		store:     d.Store,
		issuer:    d.Issuer,
		registry:  d.Registry,
		values:    d.Values,
		watcher:   d.Watcher,
		hub:       d.Hub,
		serial:    d.Serial,
		simulator: d.Simulator,
		selector:  d.Selector,
		mux:       http.NewServeMux(),
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      s.withCORS(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // the WebSocket endpoint needs no write deadline
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Hub returns the telemetry Hub, for the supervisor that runs the
// producer and watcher tasks alongside the HTTP server.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Serial returns the serial telemetry producer.
func (s *Server) Serial() *source.SerialSource { return s.serial }

// Simulator returns the simulated telemetry producer.
func (s *Server) Simulator() *source.Simulator { return s.simulator }

// Selector returns the task that arbitrates between the two producers.
func (s *Server) Selector() *source.Selector { return s.selector }

// Watcher returns the LDX file watcher.
func (s *Server) Watcher() *ldxwatcher.Watcher { return s.watcher }

// Start begins serving HTTP requests. It blocks until the server is shut
// down.
func (s *Server) Start() error {
	log.Printf("http server listening on %s", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server, closing the Hub so every
// WebSocket subscriber receives a going-away close frame.
func (s *Server) Shutdown(ctx context.Context) error {
	err := s.server.Shutdown(ctx)
	s.hub.Close()
	return err
}

func (s *Server) withCORS(next http.Handler) http.Handler {
	allowed := make(map[string]bool, len(s.cfg.AllowedOrigins))
	for _, o := range s.cfg.AllowedOrigins {
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowed["*"] || allowed[origin]) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Credentials", "true")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requireAuth wraps h with the authentication middleware, injecting a
// Principal into the request context.
func (s *Server) requireAuth(h http.HandlerFunc) http.Handler {
	return auth.NewMiddleware(s.issuer, s.store)(h)
}

// requireAdmin wraps h with both authentication and the admin-only check.
func (s *Server) requireAdmin(h http.HandlerFunc) http.Handler {
	return auth.NewMiddleware(s.issuer, s.store)(auth.RequireAdminMiddleware(h))
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)

	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.Handle("GET /auth/me", s.requireAuth(s.handleMe))
	s.mux.Handle("GET /roles", s.requireAuth(s.handleRoles))

	s.mux.Handle("GET /forms", s.requireAuth(s.handleFormsList))
	s.mux.Handle("GET /forms/{role}/values", s.requireAuth(s.handleFormValues))
	s.mux.Handle("POST /forms/{role}/submit", s.requireAuth(s.handleFormSubmit))
	s.mux.Handle("POST /admin/forms/reload", s.requireAdmin(s.handleFormsReload))

	s.mux.Handle("GET /admin/users", s.requireAdmin(s.handleAdminUsersList))
	s.mux.Handle("POST /admin/users", s.requireAdmin(s.handleAdminUsersCreate))
	s.mux.Handle("DELETE /admin/users/{id}", s.requireAdmin(s.handleAdminUsersDelete))
	s.mux.Handle("PUT /admin/users/{id}/password", s.requireAdmin(s.handleAdminUsersSetPassword))
	s.mux.Handle("PUT /admin/users/{id}/roles", s.requireAdmin(s.handleAdminUsersSetRoles))

	s.mux.Handle("GET /admin/audit", s.requireAdmin(s.handleAdminAudit))

	s.mux.Handle("GET /admin/watch-directory", s.requireAdmin(s.handleWatchDirGet))
	s.mux.Handle("PUT /admin/watch-directory", s.requireAdmin(s.handleWatchDirPut))

	s.mux.Handle("GET /admin/ldx-files", s.requireAdmin(s.handleLdxFilesList))
	s.mux.Handle("GET /admin/ldx-files/{name}", s.requireAdmin(s.handleLdxFileGet))
	s.mux.Handle("GET /admin/ldx-files/{name}/injections", s.requireAdmin(s.handleLdxInjections))
	s.mux.Handle("GET /admin/ldx-stats", s.requireAdmin(s.handleLdxStats))

	s.mux.Handle("POST /admin/export-db", s.requireAdmin(s.handleExportDB))
	s.mux.Handle("POST /admin/clear-data", s.requireAdmin(s.handleClearData))

	s.mux.Handle("GET /admin/sensors", s.requireAdmin(s.handleSensorsList))
	s.mux.Handle("POST /admin/sensors", s.requireAdmin(s.handleSensorsCreate))
	s.mux.Handle("PUT /admin/sensors/{id}", s.requireAdmin(s.handleSensorsUpdate))
	s.mux.Handle("DELETE /admin/sensors/{id}", s.requireAdmin(s.handleSensorsDelete))

	s.mux.Handle("GET /admin/serial/config", s.requireAdmin(s.handleSerialConfigGet))
	s.mux.Handle("PUT /admin/serial/config", s.requireAdmin(s.handleSerialConfigPut))
	s.mux.Handle("PUT /admin/serial/source", s.requireAdmin(s.handleSerialSourcePut))
	s.mux.Handle("POST /admin/serial/restart", s.requireAdmin(s.handleSerialRestart))

	s.mux.Handle("GET /telemetry/channels", s.requireAuth(s.handleTelemetryChannels))
	s.mux.Handle("GET /telemetry/source", s.requireAuth(s.handleTelemetrySource))
	s.mux.Handle("GET /telemetry/preferences", s.requireAuth(s.handlePreferencesGet))
	s.mux.Handle("PUT /telemetry/preferences", s.requireAuth(s.handlePreferencesPut))

	s.mux.HandleFunc("GET /ws/telemetry", s.handleWSTelemetry)
}
