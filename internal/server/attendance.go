package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/karibu-labs/darasa/pkg/httperr"
	"github.com/karibu-labs/darasa/pkg/uuidv7"
)

const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
	AttendanceLate    = "late"
	AttendanceExcused = "excused"
)

type AttendanceRecord struct {
	ID         string    `json:"id"`
	OrgID      string    `json:"org_id"`
	StudentID  string    `json:"student_id"`
	Date       string    `json:"date"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	RecordedBy string    `json:"recorded_by"`
	CreatedAt  time.Time `json:"created_at"`
}

type AttendanceQuery struct {
	StudentID string
	From      string
	To        string
}

type AttendanceStore interface {
	// Record upserts the day's entry for a student; a second write for the
	// same student and date replaces the first.
	Record(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error)
	List(ctx context.Context, orgID string, q AttendanceQuery) ([]AttendanceRecord, error)
}

type attendancePGStore struct {
	pool pgBeginner
}

func newAttendancePGStore(pool pgBeginner) AttendanceStore {
	return &attendancePGStore{pool: pool}
}

func (s *attendancePGStore) Record(ctx context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return AttendanceRecord{}, err
	}

	tx, err := beginOrgTx(ctx, s.pool, rec.OrgID)
	if err != nil {
		return AttendanceRecord{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
INSERT INTO school.attendance_records (id, org_id, student_id, day, status, note, recorded_by)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::date, $5, $6, $7::uuid)
ON CONFLICT (student_id, day) DO UPDATE
SET status = EXCLUDED.status, note = EXCLUDED.note, recorded_by = EXCLUDED.recorded_by
RETURNING id::text, created_at
`, id, rec.OrgID, rec.StudentID, rec.Date, rec.Status, rec.Note, rec.RecordedBy).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isPgInvalidInput(err) {
			return AttendanceRecord{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return AttendanceRecord{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return AttendanceRecord{}, err
	}
	rec.CreatedAt = rec.CreatedAt.UTC()
	return rec, nil
}

func (s *attendancePGStore) List(ctx context.Context, orgID string, q AttendanceQuery) ([]AttendanceRecord, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, org_id::text, student_id::text, day::text, status, note, recorded_by::text, created_at
FROM school.attendance_records
WHERE org_id = $1::uuid
  AND ($2 = '' OR student_id = $2::uuid)
  AND ($3 = '' OR day >= $3::date)
  AND ($4 = '' OR day <= $4::date)
ORDER BY day DESC, student_id, id
`, orgID, q.StudentID, q.From, q.To)
	if err != nil {
		if isPgInvalidInput(err) {
			return nil, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return nil, err
	}
	defer rows.Close()

	var out []AttendanceRecord
	for rows.Next() {
		var rec AttendanceRecord
		if err := rows.Scan(&rec.ID, &rec.OrgID, &rec.StudentID, &rec.Date, &rec.Status, &rec.Note, &rec.RecordedBy, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.CreatedAt = rec.CreatedAt.UTC()
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

var errUnknownAttendanceStatus = errors.New("unknown attendance status")

func validAttendanceStatus(s string) bool {
	switch s {
	case AttendancePresent, AttendanceAbsent, AttendanceLate, AttendanceExcused:
		return true
	}
	return false
}

type memoryAttendanceStore struct {
	mu      sync.Mutex
	records map[string]AttendanceRecord // student id + "/" + day
}

func newMemoryAttendanceStore() *memoryAttendanceStore {
	return &memoryAttendanceStore{records: map[string]AttendanceRecord{}}
}

func (s *memoryAttendanceStore) Record(_ context.Context, rec AttendanceRecord) (AttendanceRecord, error) {
	if !validAttendanceStatus(rec.Status) {
		return AttendanceRecord{}, errUnknownAttendanceStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	key := rec.StudentID + "/" + rec.Date
	if cur, ok := s.records[key]; ok {
		rec.ID = cur.ID
		rec.CreatedAt = cur.CreatedAt
	} else {
		id, err := uuidv7.NewString()
		if err != nil {
			return AttendanceRecord{}, err
		}
		rec.ID = id
		rec.CreatedAt = time.Now().UTC()
	}
	s.records[key] = rec
	return rec, nil
}

func (s *memoryAttendanceStore) List(_ context.Context, orgID string, q AttendanceQuery) ([]AttendanceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AttendanceRecord
	for _, rec := range s.records {
		if rec.OrgID != orgID {
			continue
		}
		if q.StudentID != "" && rec.StudentID != q.StudentID {
			continue
		}
		if q.From != "" && rec.Date < q.From {
			continue
		}
		if q.To != "" && rec.Date > q.To {
			continue
		}
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Date != b.Date {
			return a.Date > b.Date
		}
		if a.StudentID != b.StudentID {
			return a.StudentID < b.StudentID
		}
		return a.ID < b.ID
	})
	return out, nil
}
