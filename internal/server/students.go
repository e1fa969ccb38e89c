package server

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/karibu-labs/darasa/pkg/httperr"
	"github.com/karibu-labs/darasa/pkg/uuidv7"
)

type Student struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	FirstName   string    `json:"first_name"`
	LastName    string    `json:"last_name"`
	DateOfBirth string    `json:"date_of_birth"`
	Grade       string    `json:"grade"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// GuardianLink ties a guardian principal to a student inside one org.
type GuardianLink struct {
	StudentID    string `json:"student_id"`
	GuardianID   string `json:"guardian_id"`
	Relationship string `json:"relationship"`
}

type StudentStore interface {
	Create(ctx context.Context, s Student) (Student, error)
	Get(ctx context.Context, orgID string, id string) (Student, bool, error)
	List(ctx context.Context, orgID string) ([]Student, error)
	Update(ctx context.Context, s Student) (Student, bool, error)
	Delete(ctx context.Context, orgID string, id string) (bool, error)
	LinkGuardian(ctx context.Context, orgID string, link GuardianLink) error
	Guardians(ctx context.Context, orgID string, studentID string) ([]GuardianLink, error)
	// StudentsForGuardian lists the students a guardian is linked to; parents
	// only ever see their own children through this path.
	StudentsForGuardian(ctx context.Context, orgID string, guardianID string) ([]Student, error)
}

type studentPGStore struct {
	pool pgBeginner
}

func newStudentPGStore(pool pgBeginner) StudentStore {
	return &studentPGStore{pool: pool}
}

// beginOrgTx opens a transaction scoped to one org. Row-level security
// policies on the school schema read app.current_org, so every statement in
// the transaction only sees that org's rows.
func beginOrgTx(ctx context.Context, pool pgBeginner, orgID string) (pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	if _, err := tx.Exec(ctx, `SELECT set_config('app.current_org', $1, true)`, orgID); err != nil {
		_ = tx.Rollback(context.Background())
		return nil, err
	}
	return tx, nil
}

func (s *studentPGStore) Create(ctx context.Context, st Student) (Student, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Student{}, err
	}
	st.ID = id

	tx, err := beginOrgTx(ctx, s.pool, st.OrgID)
	if err != nil {
		return Student{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
INSERT INTO school.students (id, org_id, first_name, last_name, date_of_birth, grade)
VALUES ($1::uuid, $2::uuid, $3, $4, $5::date, $6)
RETURNING created_at, updated_at
`, st.ID, st.OrgID, st.FirstName, st.LastName, st.DateOfBirth, st.Grade).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if isPgInvalidInput(err) {
			return Student{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return Student{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Student{}, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func (s *studentPGStore) Get(ctx context.Context, orgID string, id string) (Student, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return Student{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	st, err := scanStudent(tx.QueryRow(ctx, `
SELECT id::text, org_id::text, first_name, last_name, date_of_birth::text, grade, created_at, updated_at
FROM school.students
WHERE org_id = $1::uuid AND id = $2::uuid
`, orgID, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return Student{}, false, nil
		}
		return Student{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Student{}, false, err
	}
	return st, true, nil
}

func (s *studentPGStore) List(ctx context.Context, orgID string) ([]Student, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, org_id::text, first_name, last_name, date_of_birth::text, grade, created_at, updated_at
FROM school.students
WHERE org_id = $1::uuid
ORDER BY last_name, first_name, id
`, orgID)
	if err != nil {
		return nil, err
	}
	out, err := collectStudents(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *studentPGStore) Update(ctx context.Context, st Student) (Student, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, st.OrgID)
	if err != nil {
		return Student{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
UPDATE school.students
SET first_name = $3, last_name = $4, date_of_birth = $5::date, grade = $6, updated_at = now()
WHERE org_id = $1::uuid AND id = $2::uuid
RETURNING created_at, updated_at
`, st.OrgID, st.ID, st.FirstName, st.LastName, st.DateOfBirth, st.Grade).Scan(&st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return Student{}, false, nil
		}
		return Student{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Student{}, false, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, true, nil
}

func (s *studentPGStore) Delete(ctx context.Context, orgID string, id string) (bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM school.students WHERE org_id = $1::uuid AND id = $2::uuid
`, orgID, id)
	if err != nil {
		if isPgInvalidInput(err) {
			return false, nil
		}
		return false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *studentPGStore) LinkGuardian(ctx context.Context, orgID string, link GuardianLink) error {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	_, err = tx.Exec(ctx, `
INSERT INTO school.guardian_links (org_id, student_id, guardian_id, relationship)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4)
ON CONFLICT (student_id, guardian_id) DO UPDATE SET relationship = EXCLUDED.relationship
`, orgID, link.StudentID, link.GuardianID, link.Relationship)
	if err != nil {
		if isPgInvalidInput(err) {
			return httperr.NewBadRequest(pgErrorMessage(err))
		}
		return err
	}
	return tx.Commit(ctx)
}

func (s *studentPGStore) Guardians(ctx context.Context, orgID string, studentID string) ([]GuardianLink, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT student_id::text, guardian_id::text, relationship
FROM school.guardian_links
WHERE org_id = $1::uuid AND student_id = $2::uuid
ORDER BY guardian_id
`, orgID, studentID)
	if err != nil {
		if isPgInvalidInput(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []GuardianLink
	for rows.Next() {
		var l GuardianLink
		if err := rows.Scan(&l.StudentID, &l.GuardianID, &l.Relationship); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *studentPGStore) StudentsForGuardian(ctx context.Context, orgID string, guardianID string) ([]Student, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT s.id::text, s.org_id::text, s.first_name, s.last_name, s.date_of_birth::text, s.grade, s.created_at, s.updated_at
FROM school.students s
JOIN school.guardian_links l ON l.student_id = s.id
WHERE s.org_id = $1::uuid AND l.guardian_id = $2::uuid
ORDER BY s.last_name, s.first_name, s.id
`, orgID, guardianID)
	if err != nil {
		if isPgInvalidInput(err) {
			return nil, nil
		}
		return nil, err
	}
	out, err := collectStudents(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanStudent(row rowScanner) (Student, error) {
	var st Student
	err := row.Scan(&st.ID, &st.OrgID, &st.FirstName, &st.LastName, &st.DateOfBirth, &st.Grade, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return Student{}, err
	}
	st.CreatedAt = st.CreatedAt.UTC()
	st.UpdatedAt = st.UpdatedAt.UTC()
	return st, nil
}

func collectStudents(rows pgx.Rows) ([]Student, error) {
	defer rows.Close()
	var out []Student
	for rows.Next() {
		st, err := scanStudent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

type memoryStudentStore struct {
	mu       sync.Mutex
	students map[string]Student      // id -> student
	links    map[string]GuardianLink // student id + "/" + guardian id
}

func newMemoryStudentStore() *memoryStudentStore {
	return &memoryStudentStore{
		students: map[string]Student{},
		links:    map[string]GuardianLink{},
	}
}

func (s *memoryStudentStore) Create(_ context.Context, st Student) (Student, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Student{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	st.ID = id
	now := time.Now().UTC()
	st.CreatedAt = now
	st.UpdatedAt = now
	s.students[st.ID] = st
	return st, nil
}

func (s *memoryStudentStore) Get(_ context.Context, orgID string, id string) (Student, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok || st.OrgID != orgID {
		return Student{}, false, nil
	}
	return st, true, nil
}

func (s *memoryStudentStore) List(_ context.Context, orgID string) ([]Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Student
	for _, st := range s.students {
		if st.OrgID == orgID {
			out = append(out, st)
		}
	}
	sortStudents(out)
	return out, nil
}

func (s *memoryStudentStore) Update(_ context.Context, st Student) (Student, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.students[st.ID]
	if !ok || cur.OrgID != st.OrgID {
		return Student{}, false, nil
	}
	st.CreatedAt = cur.CreatedAt
	st.UpdatedAt = time.Now().UTC()
	s.students[st.ID] = st
	return st, true, nil
}

func (s *memoryStudentStore) Delete(_ context.Context, orgID string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[id]
	if !ok || st.OrgID != orgID {
		return false, nil
	}
	delete(s.students, id)
	return true, nil
}

func (s *memoryStudentStore) LinkGuardian(_ context.Context, orgID string, link GuardianLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.students[link.StudentID]
	if !ok || st.OrgID != orgID {
		return httperr.NewBadRequest("student does not exist")
	}
	s.links[link.StudentID+"/"+link.GuardianID] = link
	return nil
}

func (s *memoryStudentStore) Guardians(_ context.Context, orgID string, studentID string) ([]GuardianLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []GuardianLink
	for _, l := range s.links {
		if l.StudentID != studentID {
			continue
		}
		if st, ok := s.students[l.StudentID]; !ok || st.OrgID != orgID {
			continue
		}
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GuardianID < out[j].GuardianID })
	return out, nil
}

func (s *memoryStudentStore) StudentsForGuardian(_ context.Context, orgID string, guardianID string) ([]Student, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Student
	for _, l := range s.links {
		if l.GuardianID != guardianID {
			continue
		}
		if st, ok := s.students[l.StudentID]; ok && st.OrgID == orgID {
			out = append(out, st)
		}
	}
	sortStudents(out)
	return out, nil
}

func sortStudents(students []Student) {
	sort.Slice(students, func(i, j int) bool {
		a, b := students[i], students[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
}
