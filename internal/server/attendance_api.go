package server

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/karibu-labs/darasa/internal/routing"
	"github.com/karibu-labs/darasa/internal/schema"
	"github.com/karibu-labs/darasa/pkg/authz"
	"github.com/karibu-labs/darasa/pkg/httperr"
)

type recordAttendanceRequest struct {
	StudentID string `json:"student_id" validate:"required,ident"`
	Date      string `json:"date" validate:"required,isodate"`
	Status    string `json:"status" validate:"required,oneof=present absent late excused"`
	Note      string `json:"note" validate:"omitempty,max=500"`
}

type createAttendanceRuleRequest struct {
	Name            string `json:"name" validate:"required,max=120"`
	Priority        int    `json:"priority" validate:"min=0,max=1000"`
	EffectiveDate   string `json:"effective_date" validate:"required,isodate"`
	EndDate         string `json:"end_date" validate:"omitempty,isodate"`
	EligibilityExpr string `json:"eligibility_expr" validate:"required"`
	DecisionExpr    string `json:"decision_expr" validate:"required"`
	ReasonCode      string `json:"reason_code" validate:"omitempty,max=64"`
}

type evaluateAttendanceRulesRequest struct {
	StudentID string `json:"student_id" validate:"required,ident"`
	Date      string `json:"date" validate:"required,isodate"`
	Status    string `json:"status" validate:"required,oneof=present absent late excused"`
}

type attendanceRulesEvaluateResponse struct {
	Decision           string          `json:"decision"`
	ReasonCode         string          `json:"reason_code"`
	SelectedRuleID     string          `json:"selected_rule_id,omitempty"`
	SelectedRule       *AttendanceRule `json:"selected_rule,omitempty"`
	CandidateCount     int             `json:"candidates_evaluated"`
	EligibilityMatched int             `json:"eligibility_matched"`
}

// handleRecordAttendance writes a day's attendance entry after the org's
// effective rules allow it.
func handleRecordAttendance(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req recordAttendanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if _, found, err := db.Students.Get(r.Context(), id.OrgID, req.StudentID); err != nil {
		writeAPIError(w, r, fmt.Errorf("get student: %w", err))
		return
	} else if !found {
		writeAPIError(w, r, httperr.NewNotFound("Student not found"))
		return
	}

	outcome, err := runAttendanceRules(r, db, id, req.StudentID, req.Date, req.Status)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	if outcome.Decision == ruleDecisionDeny {
		writeAPIError(w, r, httperr.NewForbidden("attendance write denied by rule "+outcome.ReasonCode))
		return
	}

	rec, err := db.Attendance.Record(r.Context(), AttendanceRecord{
		OrgID:      id.OrgID,
		StudentID:  req.StudentID,
		Date:       req.Date,
		Status:     req.Status,
		Note:       req.Note,
		RecordedBy: id.UserID,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("record attendance: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, rec)
}

func handleListAttendance(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	q := AttendanceQuery{
		StudentID: strings.TrimSpace(r.URL.Query().Get("student_id")),
		From:      strings.TrimSpace(r.URL.Query().Get("from")),
		To:        strings.TrimSpace(r.URL.Query().Get("to")),
	}
	for name, v := range map[string]string{"from": q.From, "to": q.To} {
		if v == "" {
			continue
		}
		if _, err := schema.ParseISODate(v); err != nil {
			writeAPIError(w, r, httperr.NewBadRequest(name+" must be a date in YYYY-MM-DD format"))
			return
		}
	}
	if id.Role == authz.RoleParent {
		if q.StudentID == "" {
			writeAPIError(w, r, httperr.NewBadRequest("student_id is required"))
			return
		}
		linked, err := guardianLinked(r, db, id, q.StudentID)
		if err != nil {
			writeAPIError(w, r, err)
			return
		}
		if !linked {
			writeAPIError(w, r, httperr.NewNotFound("Student not found"))
			return
		}
	}
	records, err := db.Attendance.List(r.Context(), id.OrgID, q)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list attendance: %w", err))
		return
	}
	if records == nil {
		records = []AttendanceRecord{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"attendance": records})
}

func handleCreateAttendanceRule(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req createAttendanceRuleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	if req.EndDate != "" && req.EndDate < req.EffectiveDate {
		writeAPIError(w, r, httperr.NewBadRequest("end_date must not precede effective_date"))
		return
	}
	rule, err := db.AttendanceRules.Create(r.Context(), AttendanceRule{
		OrgID:           id.OrgID,
		Name:            req.Name,
		Priority:        req.Priority,
		EffectiveDate:   req.EffectiveDate,
		EndDate:         req.EndDate,
		EligibilityExpr: req.EligibilityExpr,
		DecisionExpr:    req.DecisionExpr,
		ReasonCode:      req.ReasonCode,
	})
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("create attendance rule: %w", err))
		return
	}
	routing.WriteJSON(w, http.StatusCreated, rule)
}

func handleListAttendanceRules(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	rules, err := db.AttendanceRules.List(r.Context(), id.OrgID)
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("list attendance rules: %w", err))
		return
	}
	if rules == nil {
		rules = []AttendanceRule{}
	}
	routing.WriteJSON(w, http.StatusOK, map[string]any{"rules": rules})
}

func handleDeleteAttendanceRule(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	found, err := db.AttendanceRules.Delete(r.Context(), id.OrgID, routing.PathParam(r, "id"))
	if err != nil {
		writeAPIError(w, r, fmt.Errorf("delete attendance rule: %w", err))
		return
	}
	if !found {
		writeAPIError(w, r, httperr.NewNotFound("Rule not found"))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleEvaluateAttendanceRules is a dry run: it answers what an attendance
// write would do without performing it.
func handleEvaluateAttendanceRules(w http.ResponseWriter, r *http.Request, id Identity, db *Stores) {
	var req evaluateAttendanceRulesRequest
	if err := decodeJSON(r, &req); err != nil {
		writeAPIError(w, r, err)
		return
	}
	outcome, err := runAttendanceRules(r, db, id, req.StudentID, req.Date, req.Status)
	if err != nil {
		writeAPIError(w, r, err)
		return
	}
	resp := attendanceRulesEvaluateResponse{
		Decision:           outcome.Decision,
		ReasonCode:         outcome.ReasonCode,
		CandidateCount:     outcome.CandidateCount,
		EligibilityMatched: outcome.EligibilityMatched,
	}
	if outcome.Selected != nil {
		resp.SelectedRuleID = outcome.Selected.ID
		resp.SelectedRule = outcome.Selected
	}
	routing.WriteJSON(w, http.StatusOK, resp)
}

func runAttendanceRules(r *http.Request, db *Stores, id Identity, studentID, date, status string) (ruleOutcome, error) {
	rules, err := db.AttendanceRules.ListEffective(r.Context(), id.OrgID, date)
	if err != nil {
		return ruleOutcome{}, fmt.Errorf("list effective rules: %w", err)
	}
	outcome, err := evaluateAttendanceRules(ruleEvaluation{
		OrgID:     id.OrgID,
		ActorID:   id.UserID,
		ActorRole: string(id.Role),
		StudentID: studentID,
		Status:    status,
		Date:      date,
	}, rules)
	if err != nil {
		return ruleOutcome{}, fmt.Errorf("evaluate rules: %w", err)
	}
	return outcome, nil
}
