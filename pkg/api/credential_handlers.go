package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/vberkoz/kvgate/pkg/apierr"
	"github.com/vberkoz/kvgate/pkg/credentials"
	"github.com/vberkoz/kvgate/pkg/httputil"
	"github.com/vberkoz/kvgate/pkg/middleware"
)

type issueCredentialRequest struct {
	Name        string   `json:"name"`
	Permissions []string `json:"permissions,omitempty"`
	ExpiresAt   string   `json:"expiresAt,omitempty"`
}

type credentialResponse struct {
	// APIKey is present only on issue and rotate responses.
	APIKey       string     `json:"apiKey,omitempty"`
	CredentialID string     `json:"credentialId"`
	Name         string     `json:"name"`
	KeyPrefix    string     `json:"keyPrefix"`
	Permissions  []string   `json:"permissions"`
	CreatedAt    time.Time  `json:"createdAt"`
	ExpiresAt    *time.Time `json:"expiresAt,omitempty"`
	LastUsedAt   *time.Time `json:"lastUsedAt,omitempty"`
}

func credentialToResponse(c *credentials.Credential, secret string) credentialResponse {
	perms := make([]string, len(c.Permissions))
	for i, p := range c.Permissions {
		perms[i] = string(p)
	}
	return credentialResponse{
		APIKey:       secret,
		CredentialID: c.ID,
		Name:         c.Name,
		KeyPrefix:    c.KeyPrefix,
		Permissions:  perms,
		CreatedAt:    c.CreatedAt,
		ExpiresAt:    c.ExpiresAt,
		LastUsedAt:   c.LastUsedAt,
	}
}

func (s *Server) issueCredential(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	var req issueCredentialRequest
	if err := httputil.ParseJSON(r, &req); err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	perms := make([]credentials.Permission, 0, len(req.Permissions))
	for _, p := range req.Permissions {
		perms = append(perms, credentials.Permission(p))
	}

	var expiresAt *time.Time
	if req.ExpiresAt != "" {
		ts, err := time.Parse(time.RFC3339, req.ExpiresAt)
		if err != nil {
			httputil.WriteError(w, r, apierr.Validation("expiresAt must be an RFC 3339 timestamp"))
			return
		}
		expiresAt = &ts
	}

	result, err := s.credentials.Issue(r.Context(), identity.TenantID, req.Name, identity.Plan, perms, expiresAt)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, credentialToResponse(result.Credential, result.Secret))
}

func (s *Server) listCredentials(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)

	creds, err := s.credentials.List(r.Context(), identity.TenantID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}

	out := make([]credentialResponse, 0, len(creds))
	for _, c := range creds {
		out = append(out, credentialToResponse(c, ""))
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]any{"credentials": out})
}

func (s *Server) revokeCredential(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	credID := mux.Vars(r)["id"]

	if err := s.credentials.Revoke(r.Context(), identity.TenantID, credID); err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked", "credentialId": credID})
}

func (s *Server) rotateCredential(w http.ResponseWriter, r *http.Request) {
	identity := middleware.GetIdentity(r)
	credID := mux.Vars(r)["id"]

	result, err := s.credentials.Rotate(r.Context(), identity.TenantID, credID)
	if err != nil {
		httputil.WriteError(w, r, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, credentialToResponse(result.Credential, result.Secret))
}
