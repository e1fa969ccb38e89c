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

type Message struct {
	ID          string     `json:"id"`
	OrgID       string     `json:"org_id"`
	SenderID    string     `json:"sender_id"`
	RecipientID string     `json:"recipient_id"`
	Subject     string     `json:"subject"`
	Body        string     `json:"body"`
	SentAt      time.Time  `json:"sent_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
}

type MessageStore interface {
	Send(ctx context.Context, m Message) (Message, error)
	// Inbox lists messages addressed to a user, newest first.
	Inbox(ctx context.Context, orgID string, recipientID string) ([]Message, error)
	// Thread lists the two-way exchange between two users, oldest first.
	Thread(ctx context.Context, orgID string, a string, b string) ([]Message, error)
	// MarkRead stamps read_at once; later calls keep the first timestamp.
	MarkRead(ctx context.Context, orgID string, recipientID string, messageID string) (Message, bool, error)
}

type messagePGStore struct {
	pool pgBeginner
}

func newMessagePGStore(pool pgBeginner) MessageStore {
	return &messagePGStore{pool: pool}
}

func (s *messagePGStore) Send(ctx context.Context, m Message) (Message, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Message{}, err
	}
	m.ID = id

	tx, err := beginOrgTx(ctx, s.pool, m.OrgID)
	if err != nil {
		return Message{}, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	err = tx.QueryRow(ctx, `
INSERT INTO school.messages (id, org_id, sender_id, recipient_id, subject, body)
VALUES ($1::uuid, $2::uuid, $3::uuid, $4::uuid, $5, $6)
RETURNING sent_at
`, m.ID, m.OrgID, m.SenderID, m.RecipientID, m.Subject, m.Body).Scan(&m.SentAt)
	if err != nil {
		if isPgInvalidInput(err) {
			return Message{}, httperr.NewBadRequest(pgErrorMessage(err))
		}
		return Message{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, err
	}
	m.SentAt = m.SentAt.UTC()
	return m, nil
}

func (s *messagePGStore) Inbox(ctx context.Context, orgID string, recipientID string) ([]Message, error) {
	return s.query(ctx, orgID, `
SELECT id::text, org_id::text, sender_id::text, recipient_id::text, subject, body, sent_at, read_at
FROM school.messages
WHERE org_id = $1::uuid AND recipient_id = $2::uuid
ORDER BY sent_at DESC, id
`, orgID, recipientID)
}

func (s *messagePGStore) Thread(ctx context.Context, orgID string, a string, b string) ([]Message, error) {
	return s.query(ctx, orgID, `
SELECT id::text, org_id::text, sender_id::text, recipient_id::text, subject, body, sent_at, read_at
FROM school.messages
WHERE org_id = $1::uuid
  AND ((sender_id = $2::uuid AND recipient_id = $3::uuid) OR (sender_id = $3::uuid AND recipient_id = $2::uuid))
ORDER BY sent_at, id
`, orgID, a, b)
}

func (s *messagePGStore) query(ctx context.Context, orgID string, sql string, args ...any) ([]Message, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		if isPgInvalidInput(err) {
			return nil, nil
		}
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.OrgID, &m.SenderID, &m.RecipientID, &m.Subject, &m.Body, &m.SentAt, &m.ReadAt); err != nil {
			return nil, err
		}
		m.SentAt = m.SentAt.UTC()
		if m.ReadAt != nil {
			t := m.ReadAt.UTC()
			m.ReadAt = &t
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *messagePGStore) MarkRead(ctx context.Context, orgID string, recipientID string, messageID string) (Message, bool, error) {
	tx, err := beginOrgTx(ctx, s.pool, orgID)
	if err != nil {
		return Message{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var m Message
	err = tx.QueryRow(ctx, `
UPDATE school.messages
SET read_at = COALESCE(read_at, now())
WHERE org_id = $1::uuid AND recipient_id = $2::uuid AND id = $3::uuid
RETURNING id::text, org_id::text, sender_id::text, recipient_id::text, subject, body, sent_at, read_at
`, orgID, recipientID, messageID).Scan(&m.ID, &m.OrgID, &m.SenderID, &m.RecipientID, &m.Subject, &m.Body, &m.SentAt, &m.ReadAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return Message{}, false, nil
		}
		return Message{}, false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return Message{}, false, err
	}
	m.SentAt = m.SentAt.UTC()
	if m.ReadAt != nil {
		t := m.ReadAt.UTC()
		m.ReadAt = &t
	}
	return m, true, nil
}

type memoryMessageStore struct {
	mu       sync.Mutex
	messages map[string]Message
}

func newMemoryMessageStore() *memoryMessageStore {
	return &memoryMessageStore{messages: map[string]Message{}}
}

func (s *memoryMessageStore) Send(_ context.Context, m Message) (Message, error) {
	id, err := uuidv7.NewString()
	if err != nil {
		return Message{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	m.ID = id
	m.SentAt = time.Now().UTC()
	s.messages[m.ID] = m
	return m, nil
}

func (s *memoryMessageStore) Inbox(_ context.Context, orgID string, recipientID string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.OrgID == orgID && m.RecipientID == recipientID {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.After(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryMessageStore) Thread(_ context.Context, orgID string, a string, b string) ([]Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.messages {
		if m.OrgID != orgID {
			continue
		}
		if (m.SenderID == a && m.RecipientID == b) || (m.SenderID == b && m.RecipientID == a) {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].SentAt.Equal(out[j].SentAt) {
			return out[i].SentAt.Before(out[j].SentAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (s *memoryMessageStore) MarkRead(_ context.Context, orgID string, recipientID string, messageID string) (Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.messages[messageID]
	if !ok || m.OrgID != orgID || m.RecipientID != recipientID {
		return Message{}, false, nil
	}
	if m.ReadAt == nil {
		now := time.Now().UTC()
		m.ReadAt = &now
		s.messages[messageID] = m
	}
	return m, true, nil
}
