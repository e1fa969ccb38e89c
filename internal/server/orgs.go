package server

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
)

// OrgRecord is the durable view of an organization, as opposed to the
// per-request Org context resolved from the hostname.
type OrgRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Hostname  string    `json:"hostname"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

type OrgStore interface {
	GetOrg(ctx context.Context, orgID string) (OrgRecord, bool, error)
	// OrgIDForUser resolves a user's organization membership. The second
	// return is false when no such user exists at all; a user without a
	// membership yields an empty org id with found=true.
	OrgIDForUser(ctx context.Context, userID string) (orgID string, found bool, err error)
}

type orgPGStore struct {
	pool pgBeginner
}

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

func newOrgPGStore(pool pgBeginner) OrgStore {
	return &orgPGStore{pool: pool}
}

func (s *orgPGStore) GetOrg(ctx context.Context, orgID string) (OrgRecord, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return OrgRecord{}, false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var o OrgRecord
	var hostname *string
	err = tx.QueryRow(ctx, `
SELECT o.id::text, o.name, d.hostname, o.is_active, o.created_at
FROM iam.orgs o
LEFT JOIN iam.org_domains d ON d.org_id = o.id
WHERE o.id = $1::uuid
LIMIT 1
`, orgID).Scan(&o.ID, &o.Name, &hostname, &o.IsActive, &o.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return OrgRecord{}, false, nil
		}
		return OrgRecord{}, false, err
	}
	if hostname != nil {
		o.Hostname = *hostname
	}
	o.CreatedAt = o.CreatedAt.UTC()

	if err := tx.Commit(ctx); err != nil {
		return OrgRecord{}, false, err
	}
	return o, true, nil
}

func (s *orgPGStore) OrgIDForUser(ctx context.Context, userID string) (string, bool, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return "", false, err
	}
	defer func() { _ = tx.Rollback(context.Background()) }()

	var orgID *string
	err = tx.QueryRow(ctx, `
SELECT org_id::text
FROM iam.principals
WHERE user_id = $1::uuid
LIMIT 1
`, userID).Scan(&orgID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isPgInvalidInput(err) {
			return "", false, nil
		}
		return "", false, err
	}
	if err := tx.Commit(ctx); err != nil {
		return "", false, err
	}
	if orgID == nil {
		return "", true, nil
	}
	return *orgID, true, nil
}

type memoryOrgStore struct {
	mu      sync.Mutex
	orgs    map[string]OrgRecord
	members map[string]string // user id -> org id ("" = member without org)
}

func newMemoryOrgStore() *memoryOrgStore {
	return &memoryOrgStore{
		orgs:    map[string]OrgRecord{},
		members: map[string]string{},
	}
}

func (s *memoryOrgStore) GetOrg(_ context.Context, orgID string) (OrgRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[strings.TrimSpace(orgID)]
	return o, ok, nil
}

func (s *memoryOrgStore) OrgIDForUser(_ context.Context, userID string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	orgID, ok := s.members[strings.TrimSpace(userID)]
	return orgID, ok, nil
}

func (s *memoryOrgStore) putOrg(o OrgRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orgs[o.ID] = o
}

func (s *memoryOrgStore) putMember(userID string, orgID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[userID] = orgID
}
