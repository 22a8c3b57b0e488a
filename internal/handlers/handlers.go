package handlers

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"

	"gatekeep/internal/auth"
	"gatekeep/internal/models"
	"gatekeep/internal/session"

	"github.com/sirupsen/logrus"
)

var usernameTooLongMessage = fmt.Sprintf("Username must be at most %d characters.", auth.MaxUsernameLength)

// Flash categories.
const (
	FlashInfo    = "info"
	FlashError   = "error"
	FlashWarning = "warning"
)

// UserAdmin is the part of the credential store used by the admin panel.
type UserAdmin interface {
	ListUsers(ctx context.Context) ([]models.User, error)
	GetUserByID(ctx context.Context, id int64) (*models.User, error)
	UpdateUser(ctx context.Context, id int64, username string, admin bool) error
	DeleteUser(ctx context.Context, id int64) error
}

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	auth      *auth.Service
	users     UserAdmin
	templates fs.FS
	log       logrus.FieldLogger
}

// NewHandlers creates a new Handlers instance. templates must contain a
// templates/ directory with base.html and the page views.
func NewHandlers(authSvc *auth.Service, users UserAdmin, templates fs.FS, log logrus.FieldLogger) *Handlers {
	return &Handlers{auth: authSvc, users: users, templates: templates, log: log}
}

// Home renders the landing page.
func (h *Handlers) Home(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "home.html", nil)
}

// LoginViewModel holds data for the login page.
type LoginViewModel struct {
	Username string
}

// LoginForm renders the login page.
func (h *Handlers) LoginForm(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if sess.Authenticated() {
		sess.AddFlash(FlashInfo, "Already Logged in!!")
		http.Redirect(w, r, "/dashboard", http.StatusFound)
		return
	}
	h.render(w, r, "login.html", LoginViewModel{})
}

// Login handles the login form submission.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		sess.AddFlash(FlashError, "Invalid form submission")
		h.render(w, r, "login.html", LoginViewModel{})
		return
	}

	username := r.PostFormValue("username")
	_, err := h.auth.Login(r.Context(), sess, username, r.PostFormValue("password"))
	switch {
	case err == nil:
		sess.AddFlash(FlashInfo, "Login Successful!!")
		http.Redirect(w, r, "/dashboard", http.StatusFound)
	case errors.Is(err, auth.ErrInvalidCredentials):
		sess.AddFlash(FlashError, "Invalid username or password.")
		if sess.Authenticated() {
			sess.AddFlash(FlashInfo, "Already Logged in!!")
			http.Redirect(w, r, "/dashboard", http.StatusFound)
			return
		}
		h.render(w, r, "login.html", LoginViewModel{Username: username})
	default:
		h.serverError(w, r, err)
	}
}

// RegisterForm renders the registration page.
func (h *Handlers) RegisterForm(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, "register.html", nil)
}

// Register handles the registration form submission.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if err := r.ParseForm(); err != nil {
		sess.AddFlash(FlashError, "Invalid form submission")
		http.Redirect(w, r, "/register", http.StatusFound)
		return
	}

	_, err := h.auth.Register(r.Context(), r.PostFormValue("username"), r.PostFormValue("password"))
	switch {
	case err == nil:
		sess.AddFlash(FlashInfo, "Registration Successful! Please log in.")
		http.Redirect(w, r, "/login", http.StatusFound)
	case errors.Is(err, auth.ErrDuplicateUsername):
		sess.AddFlash(FlashError, "Username already exists, please choose a different one.")
		http.Redirect(w, r, "/register", http.StatusFound)
	case errors.Is(err, auth.ErrUsernameTooLong):
		sess.AddFlash(FlashError, usernameTooLongMessage)
		http.Redirect(w, r, "/register", http.StatusFound)
	case errors.Is(err, auth.ErrMissingCredentials):
		sess.AddFlash(FlashError, "Username and password are required.")
		http.Redirect(w, r, "/register", http.StatusFound)
	default:
		h.serverError(w, r, err)
	}
}

// DashboardViewModel holds data for the dashboard page.
type DashboardViewModel struct {
	Username string
}

// Dashboard renders the placeholder dashboard for the logged-in user.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	h.render(w, r, "dashboard.html", DashboardViewModel{Username: sess.Username})
}

// Logout clears the session identity.
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	if h.auth.Logout(sess) {
		sess.AddFlash(FlashInfo, "Logged out!!")
	} else {
		sess.AddFlash(FlashInfo, "Already logged out!!")
	}
	http.Redirect(w, r, "/login", http.StatusFound)
}

// Healthz is a liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

type pageData struct {
	Username string
	Admin    bool
	Flashes  []session.Flash
	Data     any
}

func (h *Handlers) render(w http.ResponseWriter, r *http.Request, viewName string, data any) {
	tmpl, err := template.ParseFS(h.templates, "templates/base.html", "templates/"+viewName)
	if err != nil {
		h.logger(r).WithError(err).Error("template error")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}

	page := pageData{Data: data}
	if sess := session.FromContext(r.Context()); sess != nil {
		page.Username = sess.Username
		page.Admin = sess.Admin
		page.Flashes = sess.PopFlashes()
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", page); err != nil {
		h.logger(r).WithError(err).Error("template execution error")
	}
}

func (h *Handlers) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.logger(r).WithError(err).Error("request failed")
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}
