package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vberkoz/kvgate/pkg/async"
	"github.com/vberkoz/kvgate/pkg/httputil"
	"github.com/vberkoz/kvgate/pkg/middleware"
)

const storageMeterTimeout = 5 * time.Second

type putValueRequest struct {
	Value json.RawMessage `json:"value"`
}

func (s *Server) putKey(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	vars := mux.Vars(r)

	var req putValueRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	rec, sizeDelta, err := s.namespaces.PutRecord(r.Context(), identity.TenantID, vars["namespace"], vars["key"], req.Value)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	s.meterStorage(r, identity.TenantID, sizeDelta)
	httputil.WriteJSON(w, http.StatusCreated, map[string]any{
		"namespace": rec.Namespace,
		"key":       rec.Key,
		"sizeBytes": rec.SizeBytes,
		"createdAt": rec.CreatedAt,
		"updatedAt": rec.UpdatedAt,
	})
}

func (s *Server) getKey(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	vars := mux.Vars(r)

	rec, err := s.namespaces.GetRecord(r.Context(), identity.TenantID, vars["namespace"], vars["key"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"value": rec.Value})
}

func (s *Server) deleteKey(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	vars := mux.Vars(r)

	freed, err := s.namespaces.DeleteRecord(r.Context(), identity.TenantID, vars["namespace"], vars["key"])
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	s.meterStorage(r, identity.TenantID, -freed)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listKeys(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	vars := mux.Vars(r)
	prefix := r.URL.Query().Get("prefix")

	keys, err := s.namespaces.ListRecords(r.Context(), identity.TenantID, vars["namespace"], prefix)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"namespace": vars["namespace"],
		"keys":      keys,
	})
}

// meterStorage adjusts the tenant's stored-bytes counter off the request
// path; a lost adjustment is tolerable.
func (s *Server) meterStorage(r *http.Request, tenantID string, delta int64) {
	if delta == 0 {
		return
	}
	async.SafeGoDetached(r.Context(), storageMeterTimeout, "storage-meter", func(ctx context.Context) error {
		return s.meter.AddStorageBytes(ctx, tenantID, delta)
	})
}
