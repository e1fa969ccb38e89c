package server

import (
	"fmt"
	"net/http"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/pkg/authz"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type createStudentRequest struct {
	FirstName   string `json:"first_name" validate:"required,max=120"`
	LastName    string `json:"last_name" validate:"required,max=120"`
	DateOfBirth string `json:"date_of_birth" validate:"required,isodate"`
	Grade       string `json:"grade" validate:"required,max=32"`
}

type linkGuardianRequest struct {
	GuardianID   string `json:"guardian_id" validate:"required,ident"`
	Relationship string `json:"relationship" validate:"required,oneof=mother father guardian other"`
}

func handleCreateStudent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	st, err := db.Students.Create(r.Context(), Student{
		OrgID:       id.OrgID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Grade:       req.Grade,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("create student: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, st)
}

func handleGetStudent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	studentID := routing.PathParam(r, "id")
	st, found, err := db.Students.Get(r.Context(), id.OrgID, studentID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("get student: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Student not found"))
		return
	}
	// Parents see a student only through a guardian link.
	if id.Role == authz.RoleParent {
		linked, err := guardianLinked(r, db, id, studentID)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		if !linked {
			writeAPIError(w, r, httperr.NewNotFound("Student not found"))
			return
		}
	}
	routing.WriteJSON(w, http.StatusOK, st)
}

func handleListStudents(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var (
		students []Student
		err      error
	)
	if id.Role == authz.RoleParent {
		students, err = db.Students.StudentsForGuardian(r.Context(), id.OrgID, id.UserID)
	} else {
		students, err = db.Students.List(r.Context(), id.OrgID)
	}
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list students: %w", err))
		return
	}
	if students == nil {
		students = []Student{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"students": students})
}

func handleUpdateStudent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req createStudentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	st, found, err := db.Students.Update(r.Context(), Student{
		ID:          routing.PathParam(r, "id"),
		OrgID:       id.OrgID,
		FirstName:   req.FirstName,
		LastName:    req.LastName,
		DateOfBirth: req.DateOfBirth,
		Grade:       req.Grade,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("update student: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Student not found"))
		return
	}
	routing.WriteJSON(w, http.StatusOK, st)
}

func handleDeleteStudent(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	found, err := db.Students.Delete(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("delete student: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Student not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleLinkGuardian(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req linkGuardianRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	studentID := routing.PathParam(r, "id")
	if _, found, err := db.Students.Get(r.Context(), id.OrgID, studentID); err != nil {
		writeAPIError(w, r, fmt.Errorf("get student: %w", err))
		return
	} else if !found {
		writeAPIError(w, r, httperr.NewNotFound("Student not found"))
		return
	}
	link := GuardianLink{
		StudentID:    studentID,
		GuardianID:   req.GuardianID,
		Relationship: req.Relationship,
	}
	if err := db.Students.LinkGuardian(r.Context(), id.OrgID, link); err != nil {
		writeAPIError(w, r, fmt.Errorf("link guardian: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, link)
}

func handleListGuardians(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	studentID := routing.PathParam(r, "id")
	links, err := db.Students.Guardians(r.Context(), id.OrgID, studentID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list guardians: %w", err))
		return
	}
	if links == nil {
		links = []GuardianLink{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"guardians": links})
}

func guardianLinked(r *http.Request, db *Stores, id Identity, studentID string) (bool, error) {
	links, err := db.Students.Guardians(r.Context(), id.OrgID, studentID)
	if err != nil {
		return false, fmt.Errorf("list guardians: %w", err)
	}
	for _, l := range links {
		if l.GuardianID == id.UserID {
			return true, nil
		}
	}
	return false, nil
}
