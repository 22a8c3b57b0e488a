package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"gatekeep/internal/auth"
	"gatekeep/internal/handlers"
	"gatekeep/internal/session"
	"gatekeep/internal/storage"
	"gatekeep/web"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRouter(t *testing.T) {
	// Setup dependencies
	db, err := storage.Open(context.Background(), storage.DriverSQLite, ":memory:")
	require.NoError(t, err, "failed to create database")
	defer db.Close()

	logger, _ := test.NewNullLogger()
	h := handlers.NewHandlers(auth.NewService(db, logger), db, web.Templates, logger)
	sessions := session.NewManager([]byte("test-secret"))

	// Create router - this triggers the panic if routing conflict exists
	mux := setupRouter(h, sessions, web.Static)

	// Verify routes
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantLoc    string
	}{
		{
			name:       "Root renders home",
			method:     "GET",
			path:       "/",
			wantStatus: http.StatusOK,
		},
		{
			name:       "Static file access",
			method:     "GET",
			path:       "/static/style.css",
			wantStatus: http.StatusOK,
		},
		{
			name:       "Login form",
			method:     "GET",
			path:       "/login",
			wantStatus: http.StatusOK,
		},
		{
			name:       "Dashboard requires auth",
			method:     "GET",
			path:       "/dashboard",
			wantStatus: http.StatusFound,
			wantLoc:    "/login",
		},
		{
			name:       "Admin requires admin session",
			method:     "GET",
			path:       "/admin",
			wantStatus: http.StatusFound,
			wantLoc:    "/login",
		},
		{
			name:       "Logout without session",
			method:     "GET",
			path:       "/logout",
			wantStatus: http.StatusFound,
			wantLoc:    "/login",
		},
		{
			name:       "Dashboard rejects POST",
			method:     "POST",
			path:       "/dashboard",
			wantStatus: http.StatusMethodNotAllowed,
		},
		{
			name:       "Unknown route",
			method:     "GET",
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			w := httptest.NewRecorder()

			mux.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code,
				"%s %s returned unexpected status", tt.method, tt.path)
			if tt.wantLoc != "" {
				assert.Equal(t, tt.wantLoc, w.Header().Get("Location"))
			}
		})
	}
}
