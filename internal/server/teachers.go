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

type Teacher struct {
	ID        string    `json:"id"`
	OrgID     string    `json:"org_id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Title     string    `json:"title"`
	Subject   string    `json:"subject"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type TeacherStore interface {
	Create(ctx context.Context, t Teacher) (Teacher, error)
	Get(ctx context.Context, orgID string, id string) (Teacher, bool, error)
	List(ctx context.Context, orgID string) ([]Teacher, error)
	Update(ctx context.Context, t Teacher) (Teacher, bool, error)
	Delete(ctx context.Context, orgID string, id string) (bool, error)
}

type teacherPGStore struct {
	pool pgBeginner
}

func newTeacherPGStore(pool pgBeginner) TeacherStore {
	return &teacherPGStore{pool: pool}
}

func (s *teacherPGStore) Create(ctx context.Context, t Teacher) (Teacher, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Teacher{}, err
	}
	t.ID = id

	tx, err := beginOrgTx(ctx, s.pool, t.OrgID)
	if err != nil {
		return Teacher{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
INSERT INTO school.staff (id, org_id, first_name, last_name, email, title, subject)
VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7)
RETURNING created_at, updated_at
`, t.ID, t.OrgID, t.FirstName, t.LastName, t.Email, t.Title, t.Subject).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return Teacher{}, httperr.NewBadRequest("a staff member with this email already exists")
		}
		if isPgInvalidInput(err) {
			return Teacher{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return Teacher{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Teacher{}, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, nil
}

func (s *teacherPGStore) Get(ctx context.Context, orgID string, id string) (Teacher, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return Teacher{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var t Teacher
	err = tx.QueryRow(ctx, `
SELECT id::text, org_id::text, first_name, last_name, email, title, subject, created_at, updated_at
FROM school.staff
WHERE org_id = $1::uuid AND id = $2::uuid
`, orgID, id).Scan(&t.ID, &t.OrgID, &t.FirstName, &t.LastName, &t.Email, &t.Title, &t.Subject, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return Teacher{}, false, nil
		}
		return Teacher{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Teacher{}, false, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, true, nil
}

func (s *teacherPGStore) List(ctx context.Context, orgID string) ([]Teacher, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, org_id::text, first_name, last_name, email, title, subject, created_at, updated_at
FROM school.staff
WHERE org_id = $1::uuid
ORDER BY last_name, first_name, id
`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Teacher
	for rows.Next() {
		var t Teacher
		if err := rows.Scan(&t.ID, &t.OrgID, &t.FirstName, &t.LastName, &t.Email, &t.Title, &t.Subject, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, err
		}
		t.CreatedAt = t.CreatedAt.UTC()
		t.UpdatedAt = t.UpdatedAt.UTC()
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *teacherPGStore) Update(ctx context.Context, t Teacher) (Teacher, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, t.OrgID)
	if err != nil {
		return Teacher{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
UPDATE school.staff
SET first_name = $3, last_name = $4, email = $5, title = $6, subject = $7, updated_at = now()
WHERE org_id = $1::uuid AND id = $2::uuid
RETURNING created_at, updated_at
`, t.OrgID, t.ID, t.FirstName, t.LastName, t.Email, t.Title, t.Subject).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return Teacher{}, false, nil
		}
		if isPgUniqueViolation(err) {
			return Teacher{}, false, httperr.NewBadRequest("a staff member with this email already exists")
		}
		return Teacher{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Teacher{}, false, err
	}
	t.CreatedAt = t.CreatedAt.UTC()
	t.UpdatedAt = t.UpdatedAt.UTC()
	return t, true, nil
}

func (s *teacherPGStore) Delete(ctx context.Context, orgID string, id string) (bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM school.staff WHERE org_id = $1::uuid AND id = $2::uuid
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

type memoryTeacherStore struct {
	mu       sync.Mutex
	teachers map[string]Teacher
}

func newMemoryTeacherStore() *memoryTeacherStore {
	return &memoryTeacherStore{teachers: map[string]Teacher{}}
}

func (s *memoryTeacherStore) Create(_ context.Context, t Teacher) (Teacher, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Teacher{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.teachers {
		if cur.OrgID == t.OrgID && cur.Email == t.Email {
			return Teacher{}, httperr.NewBadRequest("a staff member with this email already exists")
		}
	}
	t.ID = id
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	s.teachers[t.ID] = t
	return t, nil
}

func (s *memoryTeacherStore) Get(_ context.Context, orgID string, id string) (Teacher, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok || t.OrgID != orgID {
		return Teacher{}, false, nil
	}
	return t, true, nil
}

func (s *memoryTeacherStore) List(_ context.Context, orgID string) ([]Teacher, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Teacher
	for _, t := range s.teachers {
		if t.OrgID == orgID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.ID < b.ID
	})
	return out, nil
}

func (s *memoryTeacherStore) Update(_ context.Context, t Teacher) (Teacher, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.teachers[t.ID]
	if !ok || cur.OrgID != t.OrgID {
		return Teacher{}, false, nil
	}
	t.CreatedAt = cur.CreatedAt
	t.UpdatedAt = time.Now().UTC()
	s.teachers[t.ID] = t
	return t, true, nil
}

func (s *memoryTeacherStore) Delete(_ context.Context, orgID string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.teachers[id]
	if !ok || t.OrgID != orgID {
		return false, nil
	}
	delete(s.teachers, id)
	return true, nil
}
