package schema

import (
	"errors"
	"testing"

	"github.com/karibu-labs/darasa/pkg/httperr"
)

type recordAttendanceProbe struct {
	StudentID   string `json:"student_id" validate:"required,ident"`
	Date        string `json:"date" validate:"required,isodate"`
	Status      string `json:"status" validate:"required,oneof=present absent late excused"`
	MinutesLate int    `json:"minutes_late" validate:"omitempty,min=1,max=600"`
}

func TestValidate_OK(t *testing.T) {
	req := recordAttendanceProbe{
		StudentID: "018f3a2b-7c11-7e7a-9b1a-2f6d4a8e9c01",
		Date:      "2026-03-02",
		Status:    "late",
	}
	if err := Validate(req); err != nil {
		t.Fatalf("err=%v", err)
	}
}

func TestValidate_AggregatesAllFieldFailures(t *testing.T) {
	req := recordAttendanceProbe{
		StudentID: "nope",
		Date:      "02/03/2026",
		Status:    "tardy",
	}
	err := Validate(req)
	if err == nil {
		t.Fatal("expected error")
	}
	var verr *httperr.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("err type %T", err)
	}
	if len(verr.Fields) != 3 {
		t.Fatalf("fields=%v", verr.Fields)
	}
	byField := map[string]string{}
	for _, f := range verr.Fields {
		byField[f.Field] = f.Reason
	}
	if byField["student_id"] != "must be a valid identifier" {
		t.Fatalf("student_id reason=%q", byField["student_id"])
	}
	if byField["date"] != "must be a date in YYYY-MM-DD format" {
		t.Fatalf("date reason=%q", byField["date"])
	}
	if byField["status"] != "must be one of present, absent, late, excused" {
		t.Fatalf("status reason=%q", byField["status"])
	}
}

func TestValidate_RequiredUsesJSONName(t *testing.T) {
	type probe struct {
		UserID string `json:"user_id" validate:"required"`
	}
	err := Validate(probe{})
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "user_id is required" {
		t.Fatalf("message=%q", err.Error())
	}
}

func TestValidate_Idempotent(t *testing.T) {
	bad := recordAttendanceProbe{Status: "tardy"}
	first := Validate(bad)
	second := Validate(bad)
	if first == nil || second == nil {
		t.Fatal("expected errors")
	}
	if first.Error() != second.Error() {
		t.Fatalf("messages differ: %q vs %q", first.Error(), second.Error())
	}

	good := recordAttendanceProbe{
		StudentID: "018f3a2b-7c11-7e7a-9b1a-2f6d4a8e9c01",
		Date:      "2026-03-02",
		Status:    "present",
	}
	if Validate(good) != nil || Validate(good) != nil {
		t.Fatal("well-formed input rejected on repeat")
	}
}

func TestValidate_RangeReasons(t *testing.T) {
	req := recordAttendanceProbe{
		StudentID:   "018f3a2b-7c11-7e7a-9b1a-2f6d4a8e9c01",
		Date:        "2026-03-02",
		Status:      "late",
		MinutesLate: 1000,
	}
	err := Validate(req)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "minutes_late must be at most 600" {
		t.Fatalf("message=%q", err.Error())
	}
}

func TestParseISODate(t *testing.T) {
	d, err := ParseISODate("2026-03-02")
	if err != nil {
		t.Fatal(err)
	}
	if d.Year() != 2026 || d.Month() != 3 || d.Day() != 2 {
		t.Fatalf("d=%v", d)
	}
	if _, err := ParseISODate("03/02/2026"); err == nil {
		t.Fatal("expected error")
	}
}
