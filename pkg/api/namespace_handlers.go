package api

import (
	"net/http"

	"github.com/vberkoz/kvgate/pkg/httputil"
	"github.com/vberkoz/kvgate/pkg/middleware"
)

type createNamespaceRequest struct {
	Name string `json:"name"`
}

func (s *Server) createNamespace(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var req createNamespaceRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	ns, err := s.namespaces.Create(r.Context(), identity.TenantID, req.Name)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, ns)
}

func (s *Server) listNamespaces(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	list, err := s.namespaces.List(r.Context(), identity.TenantID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"namespaces": list})
}

func (s *Server) getUsage(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	snap, err := s.meter.Snapshot(r.Context(), identity.TenantID, identity.Plan)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"plan":  identity.Plan,
		"month": snap.Month,
		"usage": map[string]any{
			"requests":    snap.RequestCount,
			"storage":     snap.StorageBytes,
			"percentUsed": snap.PercentUsed,
		},
		"limits": map[string]any{
			"requestsPerMonth":  snap.RequestLimit,
			"storageBytes":      snap.StorageLimit,
			"requestsPerSecond": snap.RequestsPerSec,
			"burstPerSecond":    snap.BurstPerSec,
		},
	})
}
