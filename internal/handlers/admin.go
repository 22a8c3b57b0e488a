package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"gatekeep/internal/auth"
	"gatekeep/internal/models"
	"gatekeep/internal/session"
	"gatekeep/internal/storage"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// AdminUser is the admin panel's view of a user. The password hash is not
// part of it, so templates cannot render it.
type AdminUser struct {
	ID        int64
	Username  string
	Admin     bool
	CreatedAt string
}

func newAdminUser(u models.User) AdminUser {
	return AdminUser{
		ID:        u.ID,
		Username:  u.Username,
		Admin:     u.Admin,
		CreatedAt: u.CreatedAt.Format("2006-01-02 15:04"),
	}
}

// AdminListViewModel is the data passed to the user list.
type AdminListViewModel struct {
	Users []AdminUser
}

// AdminEditViewModel is the data passed to the edit form.
type AdminEditViewModel struct {
	User AdminUser
}

// AdminIndex lists all users.
func (h *Handlers) AdminIndex(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		h.serverError(w, r, err)
		return
	}

	rows := make([]AdminUser, 0, len(users))
	for _, u := range users {
		rows = append(rows, newAdminUser(u))
	}
	h.render(w, r, "admin_users.html", AdminListViewModel{Users: rows})
}

// AdminEditForm renders the edit form for one user.
func (h *Handlers) AdminEditForm(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	user, err := h.users.GetUserByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			http.NotFound(w, r)
			return
		}
		h.serverError(w, r, err)
		return
	}
	h.render(w, r, "admin_edit.html", AdminEditViewModel{User: newAdminUser(*user)})
}

// AdminUpdate saves the edit form. Only username and admin are read from the
// form; a submitted password field is ignored.
func (h *Handlers) AdminUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sess := session.FromContext(r.Context())
	form := AdminUser{
		ID:       id,
		Username: strings.TrimSpace(r.PostFormValue("username")),
		Admin:    parseCheckbox(r.PostFormValue("admin")),
	}
	username, err := auth.NormalizeUsername(form.Username)
	switch {
	case errors.Is(err, auth.ErrMissingCredentials):
		sess.AddFlash(FlashError, "Username is required.")
		h.render(w, r, "admin_edit.html", AdminEditViewModel{User: form})
		return
	case errors.Is(err, auth.ErrUsernameTooLong):
		sess.AddFlash(FlashError, usernameTooLongMessage)
		h.render(w, r, "admin_edit.html", AdminEditViewModel{User: form})
		return
	}
	form.Username = username

	err = h.users.UpdateUser(r.Context(), id, form.Username, form.Admin)
	switch {
	case err == nil:
		h.logger(r).WithFields(logrus.Fields{
			"by":       sess.Username,
			"user_id":  id,
			"username": form.Username,
			"admin":    form.Admin,
		}).Info("user updated")
		sess.AddFlash(FlashInfo, "User updated.")
		http.Redirect(w, r, "/admin", http.StatusFound)
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	case errors.Is(err, storage.ErrDuplicateUsername):
		sess.AddFlash(FlashError, "Username already exists, please choose a different one.")
		h.render(w, r, "admin_edit.html", AdminEditViewModel{User: form})
	default:
		h.serverError(w, r, err)
	}
}

// AdminDelete removes a user.
func (h *Handlers) AdminDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := userID(r)
	if !ok {
		http.NotFound(w, r)
		return
	}

	err := h.users.DeleteUser(r.Context(), id)
	switch {
	case err == nil:
		sess := session.FromContext(r.Context())
		h.logger(r).WithFields(logrus.Fields{"by": sess.Username, "user_id": id}).Info("user deleted")
		sess.AddFlash(FlashInfo, "User deleted.")
		http.Redirect(w, r, "/admin", http.StatusFound)
	case errors.Is(err, storage.ErrNotFound):
		http.NotFound(w, r)
	default:
		h.serverError(w, r, err)
	}
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)["id"], 10, 64)
	return id, err == nil
}

func parseCheckbox(v string) bool {
	switch strings.ToLower(v) {
	case "on", "true", "1", "yes":
		return true
	}
	return false
}
