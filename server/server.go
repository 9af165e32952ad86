package server

import (
	"log"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/urfave/negroni"

	"github.com/talentsift/talentsift/handlers"
)

// Deps bundles the wired handlers for route setup.
type Deps struct {
	Upload     *handlers.UploadHandler
	Search     *handlers.SearchHandler
	Resume     *handlers.ResumeHandler
	DeadLetter *handlers.DeadLetterHandler
	Health     *handlers.HealthHandler
	Auth       *Authenticator
	Logger     *slog.Logger
}

func SetupRoutes(d Deps) *mux.Router {
	r := mux.NewRouter()

	// Health stays outside auth so load balancers can probe it.
	r.Handle("/healthz", d.Health).Methods("GET")

	api := r.PathPrefix("/v1").Subrouter()
	api.Use(d.Auth.Middleware)

	api.Handle("/resumes", d.Upload).Methods("POST")
	api.Handle("/resumes/search", d.Search).Methods("POST")
	api.HandleFunc("/resumes/{id}", d.Resume.Get).Methods("GET")
	api.HandleFunc("/resumes/{id}", d.Resume.UpdateMetadata).Methods("PATCH")
	api.HandleFunc("/resumes/{id}/document", d.Resume.ReplaceDocument).Methods("PUT")
	api.HandleFunc("/resumes/{id}/status", d.Resume.Status).Methods("GET")
	api.Handle("/resumes/{id}", d.Auth.RequireRole("admin", http.HandlerFunc(d.Resume.Delete))).Methods("DELETE")

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(d.Auth.Middleware)
	admin.Handle("/dlq", d.Auth.RequireRole("admin", http.HandlerFunc(d.DeadLetter.List))).Methods("GET")
	admin.Handle("/dlq/{id}/replay", d.Auth.RequireRole("admin", http.HandlerFunc(d.DeadLetter.Replay))).Methods("POST")

	return r
}

// SetupNegroni wraps the router with recovery and request logging.
func SetupNegroni(r *mux.Router) *negroni.Negroni {
	n := negroni.New()
	n.Use(negroni.NewRecovery())
	n.Use(negroni.NewLogger())
	n.UseHandler(r)
	return n
}

// NewServer builds the HTTP server with the timeouts we run everywhere.
func NewServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		IdleTimeout:  time.Minute,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// ServeDevelopment starts the server and exits the process on failure.
func ServeDevelopment(s *http.Server) {
	log.Fatal(s.ListenAndServe())
}
