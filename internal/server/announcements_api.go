package server

import (
	"fmt"
	"net/http"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type createAnnouncementRequest struct {
	Title string `json:"title" validate:"required,max=200"`
	Body  string `json:"body" validate:"required,max=20000"`
}

func handleCreateAnnouncement(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req createAnnouncementRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	a, err := db.Announcements.Create(r.Context(), Announcement{
		OrgID:    id.OrgID,
		AuthorID: id.UserID,
		Title:    req.Title,
		Body:     req.Body,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("create announcement: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, a)
}

func handleListAnnouncements(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	announcements, err := db.Announcements.List(r.Context(), id.OrgID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list announcements: %w", err))
		return
	}
	if announcements == nil {
		announcements = []Announcement{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"announcements": announcements})
}

func handleGetAnnouncement(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	a, found, err := db.Announcements.Get(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("get announcement: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Announcement not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, a)
}

func handleDeleteAnnouncement(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	found, err := db.Announcements.Delete(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("delete announcement: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Announcement not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
