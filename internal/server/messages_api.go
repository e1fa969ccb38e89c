package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type sendMessageRequest struct {
	RecipientID string `json:"recipient_id" validate:"required,ident"`
	Subject     string `json:"subject" validate:"required,max=200"`
	Body        string `json:"body" validate:"required,max=10000"`
}

func handleSendMessage(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if req.RecipientID == id.UserID {
		writeAPIError(w, r, httperr.NewBadRequest("recipient_id must be another user"))
		return
	}
	m, err := db.Messages.Send(r.Context(), Message{
		OrgID:       id.OrgID,
		SenderID:    id.UserID,
		RecipientID: req.RecipientID,
		Subject:     req.Subject,
		Body:        req.Body,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("send message: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, m)
}

// handleListMessages serves the caller's inbox, or the thread with one
// counterpart when with_user is given. Callers only ever read their own
// messages.
func handleListMessages(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	withUser := strings.TrimSpace(r.URL.Query().Get("with_user"))
	var (
		messages []Message
		err      error
	)
	if withUser != "" {
		messages, err = db.Messages.Thread(r.Context(), id.OrgID, id.UserID, withUser)
	} else {
		messages, err = db.Messages.Inbox(r.Context(), id.OrgID, id.UserID)
	}
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list messages: %w", err))
		return
	}
	if messages == nil {
		messages = []Message{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

func handleMarkMessageRead(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	m, found, err := db.Messages.MarkRead(r.Context(), id.OrgID, id.UserID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("mark message read: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Message not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, m)
}
