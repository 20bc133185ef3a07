// (c) 2024-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
)

const bearerPrefix = "Bearer "

// requireAdminToken gates the /admin subrouter on a static bearer
// token (§6). An empty s.adminToken is treated as "admin disabled"
// rather than "any token accepted" — an unset token is an operator
// misconfiguration, not an open door.
func (s *Server) requireAdminToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.adminToken == "" {
			writeError(w, http.StatusServiceUnavailable, errors.New("admin endpoints disabled: no admin token configured"))
			return
		}
		auth := r.Header.Get("Authorization")
		if !strings.HasPrefix(auth, bearerPrefix) || strings.TrimPrefix(auth, bearerPrefix) != s.adminToken {
			writeError(w, http.StatusUnauthorized, errors.New("missing or invalid bearer token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

type adminActionResponse struct {
	Name   string `json:"name"`
	Status string `json:"status"`
}

// handleAdminStart serves POST /admin/indexers/{name}/start (§4.9, §6).
func (s *Server) handleAdminStart(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.scheduler.StartIndexer(r.Context(), name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.log.Info("admin: indexer started", "name", name)
	writeJSON(w, http.StatusOK, adminActionResponse{Name: name, Status: "started"})
}

// handleAdminStop serves POST /admin/indexers/{name}/stop (§4.9, §6).
func (s *Server) handleAdminStop(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.scheduler.StopIndexer(name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.log.Info("admin: indexer stopped", "name", name)
	writeJSON(w, http.StatusOK, adminActionResponse{Name: name, Status: "stopped"})
}

// handleAdminReset serves POST /admin/indexers/{name}/reset (§4.9, §6):
// waits for the current task to fully exit before restarting it, so
// the caller's response reflects the new run actually being underway.
func (s *Server) handleAdminReset(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.scheduler.ResetIndexer(r.Context(), name); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	s.log.Info("admin: indexer reset", "name", name)
	writeJSON(w, http.StatusOK, adminActionResponse{Name: name, Status: "reset"})
}
