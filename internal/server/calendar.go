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

type CalendarEvent struct {
	ID          string    `json:"id"`
	OrgID       string    `json:"org_id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	StartsOn    string    `json:"starts_on"`
	EndsOn      string    `json:"ends_on"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
}

type CalendarEventStore interface {
	Create(ctx context.Context, e CalendarEvent) (CalendarEvent, error)
	Get(ctx context.Context, orgID string, id string) (CalendarEvent, bool, error)
	// ListRange returns events overlapping [from, to]; empty bounds are open.
	ListRange(ctx context.Context, orgID string, from string, to string) ([]CalendarEvent, error)
	Update(ctx context.Context, e CalendarEvent) (CalendarEvent, bool, error)
	Delete(ctx context.Context, orgID string, id string) (bool, error)
}

type calendarEventPGStore struct {
	pool pgBeginner
}

func newCalendarEventPGStore(pool pgBeginner) CalendarEventStore {
	return &calendarEventPGStore{pool: pool}
}

func (s *calendarEventPGStore) Create(ctx context.Context, e CalendarEvent) (CalendarEvent, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return CalendarEvent{}, err
	}
	e.ID = id

	tx, err := beginOrgTx(ctx, s.pool, e.OrgID)
	if err != nil {
		return CalendarEvent{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
INSERT INTO school.calendar_events (id, org_id, title, description, starts_on, ends_on, created_by)
VALUES ($1::uuid, $2::uuid, $3, $4, $5::date, $6::date, $7::uuid)
RETURNING created_at
`, e.ID, e.OrgID, e.Title, e.Description, e.StartsOn, e.EndsOn, e.CreatedBy).Scan(&e.CreatedAt)
	if err != nil {
		if isPgInvalidInput(err) {
			return CalendarEvent{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return CalendarEvent{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CalendarEvent{}, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, nil
}

func (s *calendarEventPGStore) Get(ctx context.Context, orgID string, id string) (CalendarEvent, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return CalendarEvent{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var e CalendarEvent
	err = tx.QueryRow(ctx, `
SELECT id::text, org_id::text, title, description, starts_on::text, ends_on::text, created_by::text, created_at
FROM school.calendar_events
WHERE org_id = $1::uuid AND id = $2::uuid
`, orgID, id).Scan(&e.ID, &e.OrgID, &e.Title, &e.Description, &e.StartsOn, &e.EndsOn, &e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return CalendarEvent{}, false, nil
		}
		return CalendarEvent{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CalendarEvent{}, false, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, true, nil
}

func (s *calendarEventPGStore) ListRange(ctx context.Context, orgID string, from string, to string) ([]CalendarEvent, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, `
SELECT id::text, org_id::text, title, description, starts_on::text, ends_on::text, created_by::text, created_at
FROM school.calendar_events
WHERE org_id = $1::uuid
  AND ($2 = '' OR ends_on >= $2::date)
  AND ($3 = '' OR starts_on <= $3::date)
ORDER BY starts_on, id
`, orgID, from, to)
	if err != nil {
		if isPgInvalidInput(err) {
			return nil, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return nil, err
	}
	defer rows.Close()

	var out []CalendarEvent
	for rows.Next() {
		var e CalendarEvent
		if err := rows.Scan(&e.ID, &e.OrgID, &e.Title, &e.Description, &e.StartsOn, &e.EndsOn, &e.CreatedBy, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.CreatedAt = e.CreatedAt.UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *calendarEventPGStore) Update(ctx context.Context, e CalendarEvent) (CalendarEvent, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, e.OrgID)
	if err != nil {
		return CalendarEvent{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
UPDATE school.calendar_events
SET title = $3, description = $4, starts_on = $5::date, ends_on = $6::date
WHERE org_id = $1::uuid AND id = $2::uuid
RETURNING created_by::text, created_at
`, e.OrgID, e.ID, e.Title, e.Description, e.StartsOn, e.EndsOn).Scan(&e.CreatedBy, &e.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return CalendarEvent{}, false, nil
		}
		return CalendarEvent{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return CalendarEvent{}, false, err
	}
	e.CreatedAt = e.CreatedAt.UTC()
	return e, true, nil
}

func (s *calendarEventPGStore) Delete(ctx context.Context, orgID string, id string) (bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	tag, err := tx.Exec(ctx, `
DELETE FROM school.calendar_events WHERE org_id = $1::uuid AND id = $2::uuid
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

type memoryCalendarEventStore struct {
	mu     sync.Mutex
	events map[string]CalendarEvent
}

func newMemoryCalendarEventStore() *memoryCalendarEventStore {
	return &memoryCalendarEventStore{events: map[string]CalendarEvent{}}
}

func (s *memoryCalendarEventStore) Create(_ context.Context, e CalendarEvent) (CalendarEvent, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return CalendarEvent{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	e.ID = id
	e.CreatedAt = time.Now().UTC()
	s.events[e.ID] = e
	return e, nil
}

func (s *memoryCalendarEventStore) Get(_ context.Context, orgID string, id string) (CalendarEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.OrgID != orgID {
		return CalendarEvent{}, false, nil
	}
	return e, true, nil
}

func (s *memoryCalendarEventStore) ListRange(_ context.Context, orgID string, from string, to string) ([]CalendarEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []CalendarEvent
	for _, e := range s.events {
		if e.OrgID != orgID {
			continue
		}
		if from != "" && e.EndsOn < from {
			continue
		}
		if to != "" && e.StartsOn > to {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartsOn != out[j].StartsOn {
			return out[i].StartsOn < out[j].StartsOn
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryCalendarEventStore) Update(_ context.Context, e CalendarEvent) (CalendarEvent, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.events[e.ID]
	if !ok || cur.OrgID != e.OrgID {
		return CalendarEvent{}, false, nil
	}
	e.CreatedBy = cur.CreatedBy
	e.CreatedAt = cur.CreatedAt
	s.events[e.ID] = e
	return e, true, nil
}

func (s *memoryCalendarEventStore) Delete(_ context.Context, orgID string, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.OrgID != orgID {
		return false, nil
	}
	delete(s.events, id)
	return true, nil
}
