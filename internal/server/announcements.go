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

type Announcement struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	AuthorID    string    `json:"author_id"`
	Title       string    `json:"title"`
	Body        string    `json:"body"`
	PublishedAt time.Time `json:"published_at"`
}

type AnnouncementStore interface {
	Create(ctx context.Context, a Announcement) (Announcement, error)
	List(ctx context.Context, orgID string) ([]Announcement, error)
	Get(ctx context.Context, orgID string, id string) (Announcement, bool, error)
	Delete(ctx context.Context, orgID string, id string) (bool, error)
}

type announcementPGStore struct {
	pool pgBeginner
}

func newAnnouncementPGStore(pool pgBeginner) AnnouncementStore {
	return &announcementPGStore{pool: pool}
}

func (s *announcementPGStore) Create(ctx context.Context, a Announcement) (Announcement, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Announcement{}, err
	}
	a.ID = id

	tx, err := beginOrgTx(ctx, s.pool, a.OrgID)
	if err != nil {
		return Announcement{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
INSERT INTO school.announcements (id, org_id, author_id, title, body)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4, $5)
RETURNING published_at
`, a.ID, a.OrgID, a.AuthorID, a.Title, a.Body).Scan(&a.PublishedAt)
	if err != nil {
		if isPgInvalidInput(err) {
			return Announcement{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return Announcement{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Announcement{}, err
	}
	a.PublishedAt = a.PublishedAt.UTC()
	return a, nil
}

func (s *announcementPGStore) List(ctx context.Context, orgID string) ([]Announcement, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, org_id::text, author_id::text, title, body, published_at
FROM school.announcements
WHERE org_id = $1::uuid
ORDER BY published_at DESC, id
`, orgID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.OrgID, &a.AuthorID, &a.Title, &a.Body, &a.PublishedAt); err != nil {
			return nil, err
		}
		a.PublishedAt = a.PublishedAt.UTC()
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *announcementPGStore) Get(ctx context.Context, orgID string, id string) (Announcement, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return Announcement{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var a Announcement
	err = tx.QueryRow(ctx, `
SELECT id::text, org_id::text, author_id::text, title, body, published_at
FROM school.announcements
WHERE org_id = $1::uuid AND id = $2::uuid
`, orgID, id).Scan(&a.ID, &a.OrgID, &a.AuthorID, &a.Title, &a.Body, &a.PublishedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return Announcement{}, false, nil
		}
		return Announcement{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Announcement{}, false, err
	}
	a.PublishedAt = a.PublishedAt.UTC()
	return a, true, nil
}

func (s *announcementPGStore) Delete(ctx context.Context, orgID string, id string) (bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM school.announcements WHERE org_id = $1::uuid AND id = $2::uuid
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

type memoryAnnouncementStore struct {
	mu            sync.Mutex
	announcements map[string]Announcement
}

func newMemoryAnnouncementStore() *memoryAnnouncementStore {
	return &memoryAnnouncementStore{announcements: map[string]Announcement{}}
}

func (s *memoryAnnouncementStore) Create(_ context.Context, a Announcement) (Announcement, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Announcement{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a.ID = id
	a.PublishedAt = time.Now().UTC()
	s.announcements[a.ID] = a
	return a, nil
}

func (s *memoryAnnouncementStore) List(_ context.Context, orgID string) ([]Announcement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Announcement
	for _, a := range s.announcements {
		if a.OrgID == orgID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].PublishedAt.Equal(out[j].PublishedAt) {
			return out[i].PublishedAt.After(out[j].PublishedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryAnnouncementStore) Get(_ context.Context, orgID string, id string) (Announcement, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok || a.OrgID != orgID {
		return Announcement{}, false, nil
	}
	return a, true, nil
}

func (s *memoryAnnouncementStore) Delete(_ context.Context, orgID string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.announcements[id]
	if !ok || a.OrgID != orgID {
		return false, nil
	}
	delete(s.announcements, id)
	return true, nil
}
