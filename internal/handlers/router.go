package handlers

import (
	"net/http"

	"gatekeep/internal/session"

	"github.com/gorilla/mux"
)

// NewRouter wires every application route. Each request is logged and
// carries its session; /dashboard requires a login and everything under
// /admin passes through AdminGate.
func NewRouter(h *Handlers, sessions *session.Manager) *mux.Router {
	r := mux.NewRouter()
	r.Use(RequestLogger(h.log), sessions.Middleware)

	r.HandleFunc("/", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/home", h.Home).Methods(http.MethodGet)
	r.HandleFunc("/healthz", h.Healthz).Methods(http.MethodGet)

	r.HandleFunc("/login", h.LoginForm).Methods(http.MethodGet)
	r.HandleFunc("/login", h.Login).Methods(http.MethodPost)
	r.HandleFunc("/register", h.RegisterForm).Methods(http.MethodGet)
	r.HandleFunc("/register", h.Register).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.Logout).Methods(http.MethodGet)
	r.Handle("/dashboard", h.RequireLogin(http.HandlerFunc(h.Dashboard))).Methods(http.MethodGet)

	admin := r.PathPrefix("/admin").Subrouter()
	admin.Use(h.AdminGate)
	admin.HandleFunc("", h.AdminIndex).Methods(http.MethodGet)
	admin.HandleFunc("/", h.AdminIndex).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}/edit", h.AdminEditForm).Methods(http.MethodGet)
	admin.HandleFunc("/users/{id:[0-9]+}/edit", h.AdminUpdate).Methods(http.MethodPost)
	admin.HandleFunc("/users/{id:[0-9]+}/delete", h.AdminDelete).Methods(http.MethodPost)
	// Matches any method and path left over, so the gate also runs for them.
	admin.NewRoute().HandlerFunc(http.NotFound)

	return r
}
