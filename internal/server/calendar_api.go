package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/internal/schema"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type upsertCalendarEventRequest struct {
	Title       string `json:"title" validate:"required,max=200"`
	Description string `json:"description" validate:"omitempty,max=5000"`
	StartsOn    string `json:"starts_on" validate:"required,isodate"`
	EndsOn      string `json:"ends_on" validate:"required,isodate"`
}

func (req upsertCalendarEventRequest) checkRange() error {
	if req.EndsOn < req.StartsOn {
		return httperr.NewBadRequest("ends_on must not precede starts_on")
	}
	return nil
}

func handleCreateCalendarEvent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req upsertCalendarEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := req.checkRange(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	e, err := db.Events.Create(r.Context(), CalendarEvent{
		OrgID:       id.OrgID,
		Title:       req.Title,
		Description: req.Description,
		StartsOn:    req.StartsOn,
		EndsOn:      req.EndsOn,
		CreatedBy:   id.UserID,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("create event: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, e)
}

func handleGetCalendarEvent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	e, found, err := db.Events.Get(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("get event: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Event not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, e)
}

func handleListCalendarEvents(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	from := strings.TrimSpace(r.URL.Query().Get("from"))
	to := strings.TrimSpace(r.URL.Query().Get("to"))
	for name, v := range map[string]string{"from": from, "to": to} {
		if v == "" {
			continue
		}
		if _, err := schema.ParseISODate(v); err != nil {
			writeAPIError(w, r, httperr.NewBadRequest(name+" must be a date in YYYY-MM-DD format"))
			return
		}
	}
	events, err := db.Events.ListRange(r.Context(), id.OrgID, from, to)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list events: %w", err))
		return
	}
	if events == nil {
		events = []CalendarEvent{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"events": events})
}

func handleUpdateCalendarEvent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req upsertCalendarEventRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if err := req.checkRange(); err != nil {
		writeAPIError(w, r, err)
		return
	}
	e, found, err := db.Events.Update(r.Context(), CalendarEvent{
		ID:          routing.PathParam(r, "id"),
		OrgID:       id.OrgID,
		Title:       req.Title,
		Description: req.Description,
		StartsOn:    req.StartsOn,
		EndsOn:      req.EndsOn,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("update event: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Event not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, e)
}

func handleDeleteCalendarEvent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	found, err := db.Events.Delete(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("delete event: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Event not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
