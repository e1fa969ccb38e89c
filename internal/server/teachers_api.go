package server

import (
	"fmt"
	"net/http"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type upsertTeacherRequest struct {
	FirstName string `json:"first_name" validate:"required,max=120"`
	LastName  string `json:"last_name" validate:"required,max=120"`
	Email     string `json:"email" validate:"required,email"`
	Title     string `json:"title" validate:"omitempty,max=120"`
	Subject   string `json:"subject" validate:"omitempty,max=120"`
}

func handleCreateTeacher(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req upsertTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	t, err := db.Teachers.Create(r.Context(), Teacher{
		OrgID:     id.OrgID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Title:     req.Title,
		Subject:   req.Subject,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("create teacher: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, t)
}

func handleGetTeacher(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	t, found, err := db.Teachers.Get(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("get teacher: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Teacher not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, t)
}

func handleListTeachers(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	teachers, err := db.Teachers.List(r.Context(), id.OrgID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list teachers: %w", err))
		return
	}
	if teachers == nil {
		teachers = []Teacher{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"teachers": teachers})
}

func handleUpdateTeacher(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req upsertTeacherRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	t, found, err := db.Teachers.Update(r.Context(), Teacher{
		ID:        routing.PathParam(r, "id"),
		OrgID:     id.OrgID,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Email:     req.Email,
		Title:     req.Title,
		Subject:   req.Subject,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("update teacher: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Teacher not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, t)
}

func handleDeleteTeacher(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	found, err := db.Teachers.Delete(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("delete teacher: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Teacher not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
