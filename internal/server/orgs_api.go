package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

// handleGetOrg serves GET /api/orgs/{id}. The route policy is declared with
// RequireOrg:false so a freshly provisioned admin without a membership can
// still inspect organizations.
func handleGetOrg(w http.ResponseWriter, r *http.Request, _ Identity, db *Stores) {
	orgID := strings.TrimSpace(routing.PathParam(r, "id"))
	if orgID == "" {
		writeAPIError(w, r, httperr.NewBadRequest("org id is required"))
		return
	}
	org, found, err := db.Orgs.GetOrg(r.Context(), orgID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("get org: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Organization not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, org)
}

// handleUserOrgID serves GET /api/user-org-id?user_id=... and reports the
// organization a user belongs to, or null when the user has no membership.
func handleUserOrgID(w http.ResponseWriter, r *http.Request, _ Identity, db *Stores) {
	userID := strings.TrimSpace(r.URL.Query().Get("user_id"))
	if userID == "" {
		writeAPIError(w, r, httperr.NewBadRequest("user_id is required"))
		return
	}
	orgID, found, err := db.Orgs.OrgIDForUser(r.Context(), userID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("org for user: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("User not found"))
		return
	}
	var payload struct {
		UserID string  `json:"user_id"`
		OrgID  *string `json:"org_id"`
	}
	payload.UserID = userID
	if orgID != "" {
		payload.OrgID = &orgID
	}
	routing.WriteJSON(w, http.StatusOK, payload)
}
