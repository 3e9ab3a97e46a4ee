// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Protec Rescue Contributors

// Package httpapi exposes the credential core over a small JSON API. It is
// deliberately thin: routing, encoding and status mapping only, no
// credential logic.
package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/protecrescue/rescueauth/internal/auth"
)

const maxBodyBytes = 64 * 1024

type credentialsRequest struct {
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
}

type strengthRequest struct {
	Password string `json:"password"`
}

// Handler serves the credential API.
type Handler struct {
	service *auth.Service
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates the API handler.
func NewHandler(service *auth.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		service: service,
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.mux.HandleFunc("POST /api/register", h.handleRegister)
	h.mux.HandleFunc("POST /api/login", h.handleLogin)
	h.mux.HandleFunc("POST /api/logout", h.handleLogout)
	h.mux.HandleFunc("POST /api/strength", h.handleStrength)
	h.mux.HandleFunc("GET /api/session", h.handleSession)

	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.service.Register(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !h.decode(w, r, &req) {
		return
	}

	token, err := h.service.Login(r.Context(), req.Identifier, req.Password)
	if err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"token": token})
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing bearer token"})
		return
	}

	if err := h.service.Logout(r.Context(), token); err != nil {
		h.writeAuthError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (h *Handler) handleStrength(w http.ResponseWriter, r *http.Request) {
	var req strengthRequest
	if !h.decode(w, r, &req) {
		return
	}

	strength := h.service.CheckStrength(req.Password)
	h.writeJSON(w, http.StatusOK, map[string]any{
		"level":    strength.Level,
		"label":    strength.Label,
		"accepted": strength.Level >= auth.MinAcceptedLevel,
	})
}

func (h *Handler) handleSession(w http.ResponseWriter, r *http.Request) {
	token, ok := bearerToken(r)
	if !ok {
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing bearer token"})
		return
	}

	identifier, err := h.service.Identity(r.Context(), token)
	if err != nil {
		if errors.Is(err, auth.ErrNotFound) {
			h.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid session"})
			return
		}
		h.writeAuthError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"identifier": identifier})
}

// writeAuthError maps core outcomes onto HTTP statuses. The invalid-
// credentials body is identical for unknown identifiers and wrong passwords.
func (h *Handler) writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	var weak *auth.WeakPasswordError
	if errors.As(err, &weak) {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{
			"error": "password too weak",
			"level": weak.Strength.Level,
			"label": weak.Strength.Label,
		})
		return
	}

	var locked *auth.AccountLockedError
	if errors.As(err, &locked) {
		h.writeJSON(w, http.StatusLocked, map[string]any{
			"error":               "account locked",
			"retry_after_seconds": locked.Seconds(),
		})
		return
	}

	switch {
	case errors.Is(err, auth.ErrDuplicateIdentifier):
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "identifier already registered"})
	case errors.Is(err, auth.ErrInvalidCredentials):
		h.writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "invalid credentials"})
	default:
		h.logger.ErrorContext(r.Context(), "request failed",
			"path", r.URL.Path,
			"error", err)
		h.writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "internal error"})
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid request body"})
		return false
	}
	return true
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.logger.Error("response encode failed", "error", err)
	}
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, found := strings.CutPrefix(header, "Bearer ")
	if !found || token == "" {
		return "", false
	}
	return token, true
}
