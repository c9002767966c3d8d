// Package http renders the ledger as htmx partials and streams live
// snapshot updates over SSE. It holds no ledger state of its own: every
// read goes through the session snapshots, every write through the
// ledger service.
package http

import (
	"context"
	"html/template"
	"io/fs"
	"net/http"
	"sync"
	"time"

	"tally/internal/identity"
	"tally/internal/log"
	"tally/internal/services"
	"tally/internal/store"
	appweb "tally/web"
)

type Server struct {
	http.Server

	templates   *template.Template
	session     *identity.Session
	ledger      *services.LedgerService
	st          store.Store
	rateLimiter *rateLimiter
	logger      *log.Logger

	shutdownOnce sync.Once
}

// NewServer configures routes and templates, returning a ready-to-run
// http.Server.
func NewServer(addr string, session *identity.Session, ledger *services.LedgerService, st store.Store, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	mux := http.NewServeMux()

	s := &Server{
		Server: http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
		session:     session,
		ledger:      ledger,
		st:          st,
		rateLimiter: newRateLimiter(),
		logger:      logger.WithComponent(log.ComponentHTTP),
	}

	t, err := template.ParseFS(appweb.TemplatesFS, "templates/*.html")
	if err != nil {
		s.logger.Error("Failed parsing templates", log.FieldError, err)
	}
	s.templates = t

	if sub, err := fs.Sub(appweb.StaticFS, "static"); err == nil {
		static := http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
		mux.Handle("/static/", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Cache-Control", "public, max-age=3600, immutable")
			static.ServeHTTP(w, r)
		}))
	} else {
		s.logger.Error("Failed to mount embedded static FS", log.FieldError, err)
	}

	mux.HandleFunc("/healthz", handleHealth)
	mux.HandleFunc("/readyz", handleReady)

	mux.HandleFunc("/", s.withMiddleware(s.handleIndex))
	mux.HandleFunc("/events", s.withMiddleware(s.handleEvents))

	// UI partials
	mux.HandleFunc("/ui/dashboard", s.withMiddleware(s.handleDashboard))
	mux.HandleFunc("/ui/project", s.withMiddleware(s.handleProjectView))

	// Session
	mux.HandleFunc("/signin", s.withMiddleware(s.handleSignIn))
	mux.HandleFunc("/signout", s.withMiddleware(s.handleSignOut))
	mux.HandleFunc("/profile/name", s.withMiddleware(s.handleDisplayName))
	mux.HandleFunc("/reload", s.withMiddleware(s.handleReload))

	// Mutations
	mux.HandleFunc("/projects", s.withMiddleware(s.handleCreateProject))
	mux.HandleFunc("/projects/rename", s.withMiddleware(s.handleRenameProject))
	mux.HandleFunc("/projects/delete", s.withMiddleware(s.handleDeleteProject))
	mux.HandleFunc("/expenses", s.withMiddleware(s.handleCreateExpense))
	mux.HandleFunc("/expenses/update", s.withMiddleware(s.handleUpdateExpense))
	mux.HandleFunc("/expenses/delete", s.withMiddleware(s.handleDeleteExpense))

	return s
}

// Shutdown stops the rate limiter cleanup goroutine before shutting
// down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func handleReady(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
