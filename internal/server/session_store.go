package server

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/karibu-labs/darasa/pkg/authz"
	"github.com/karibu-labs/darasa/pkg/uuidv7"
)

const sidCookieName = "sid"

var sidRandReader io.Reader = rand.Reader

// Principal is the directory row behind an auth-service account: org
// membership, role and status. OrgID is empty for platform-level accounts.
type Principal struct {
	ID     string
	UserID string
	OrgID  string
	Role   authz.Role
	Email  string
	Status string
}

type Session struct {
	PrincipalID string
	ExpiresAt   time.Time
	RevokedAt   *time.Time
}

type sessionStore interface {
	Create(ctx context.Context, principalID string, expiresAt time.Time, ip string, userAgent string) (sid string, err error)
	Lookup(ctx context.Context, sid string) (Session, bool, error)
	Revoke(ctx context.Context, sid string) error
}

type principalStore interface {
	UpsertFromAuth(ctx context.Context, userID string, email string, role authz.Role) (Principal, error)
	GetByID(ctx context.Context, principalID string) (Principal, bool, error)
}

func newSID() (sid string, tokenSha256 []byte, err error) {
	var b [32]byte
	if _, err := sidRandReader.Read(b[:]); err != nil {
		return "", nil, err
	}
	sid = base64.RawURLEncoding.EncodeToString(b[:])
	sum := sha256.Sum256([]byte(sid))
	return sid, sum[:], nil
}

func hashSID(sid string) []byte {
	sum := sha256.Sum256([]byte(sid))
	return sum[:]
}

// readSID accepts the session token from the sid cookie or, for
// non-browser API callers, from an Authorization: Bearer header.
func readSID(r *http.Request) (string, bool) {
	if c, err := r.Cookie(sidCookieName); err == nil && c.Value != "" {
		return c.Value, true
	}
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	if token, ok := strings.CutPrefix(h, "Bearer "); ok {
		token = strings.TrimSpace(token)
		if token != "" {
			return token, true
		}
	}
	return "", false
}

func setSIDCookie(w http.ResponseWriter, sid string) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSIDCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     sidCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

type sessionPGStore struct {
	pool *pgxpool.Pool
}

func newSessionPGStore(pool *pgxpool.Pool) sessionStore {
	return &sessionPGStore{pool: pool}
}

func (s *sessionPGStore) Create(ctx context.Context, principalID string, expiresAt time.Time, ip string, userAgent string) (string, error) {
	sid, sum, err := newSID()
	if err != nil {
		return "", err
	}
	_, err = s.pool.Exec(ctx, `
INSERT INTO iam.sessions (token_sha256, principal_id, expires_at, ip, user_agent)
VALUES ($1, $2::uuid, $3, $4, $5)
`, sum, principalID, expiresAt.UTC(), ip, userAgent)
	if err != nil {
		return "", err
	}
	return sid, nil
}

func (s *sessionPGStore) Lookup(ctx context.Context, sid string) (Session, bool, error) {
	var sess Session
	err := s.pool.QueryRow(ctx, `
SELECT principal_id::text, expires_at, revoked_at
FROM iam.sessions
WHERE token_sha256 = $1
LIMIT 1
`, hashSID(sid)).Scan(&sess.PrincipalID, &sess.ExpiresAt, &sess.RevokedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, err
	}
	if sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *sessionPGStore) Revoke(ctx context.Context, sid string) error {
	_, err := s.pool.Exec(ctx, `
UPDATE iam.sessions
SET revoked_at = now()
WHERE token_sha256 = $1
  AND revoked_at IS NULL
`, hashSID(sid))
	return err
}

type principalPGStore struct {
	pool *pgxpool.Pool
}

func newPrincipalPGStore(pool *pgxpool.Pool) principalStore {
	return &principalPGStore{pool: pool}
}

func (s *principalPGStore) UpsertFromAuth(ctx context.Context, userID string, email string, role authz.Role) (Principal, error) {
	var p Principal
	var orgID *string
	err := s.pool.QueryRow(ctx, `
INSERT INTO iam.principals (id, user_id, email, role, status)
VALUES (gen_random_uuid(), $1::uuid, $2, $3, 'active')
ON CONFLICT (user_id) DO UPDATE
SET email = EXCLUDED.email
RETURNING id::text, user_id::text, org_id::text, role, email, status
`, userID, email, string(role)).Scan(&p.ID, &p.UserID, &orgID, &p.Role, &p.Email, &p.Status)
	if err != nil {
		return Principal{}, err
	}
	if orgID != nil {
		p.OrgID = *orgID
	}
	if p.Status != "active" {
		return Principal{}, errors.New("server: principal is not active")
	}
	return p, nil
}

func (s *principalPGStore) GetByID(ctx context.Context, principalID string) (Principal, bool, error) {
	var p Principal
	var orgID *string
	err := s.pool.QueryRow(ctx, `
SELECT id::text, user_id::text, org_id::text, role, email, status
FROM iam.principals
WHERE id = $1::uuid
LIMIT 1
`, principalID).Scan(&p.ID, &p.UserID, &orgID, &p.Role, &p.Email, &p.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Principal{}, false, nil
		}
		return Principal{}, false, err
	}
	if orgID != nil {
		p.OrgID = *orgID
	}
	return p, true, nil
}

type memorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]Session // keyed by sha256(sid), hex-free raw string
}

func newMemorySessionStore() *memorySessionStore {
	return &memorySessionStore{sessions: map[string]Session{}}
}

func (s *memorySessionStore) Create(_ context.Context, principalID string, expiresAt time.Time, _ string, _ string) (string, error) {
	sid, sum, err := newSID()
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[string(sum)] = Session{PrincipalID: principalID, ExpiresAt: expiresAt}
	return sid, nil
}

func (s *memorySessionStore) Lookup(_ context.Context, sid string) (Session, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[string(hashSID(sid))]
	if !ok || sess.RevokedAt != nil || time.Now().After(sess.ExpiresAt) {
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *memorySessionStore) Revoke(_ context.Context, sid string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(hashSID(sid))
	if sess, ok := s.sessions[key]; ok && sess.RevokedAt == nil {
		now := time.Now()
		sess.RevokedAt = &now
		s.sessions[key] = sess
	}
	return nil
}

type memoryPrincipalStore struct {
	mu       sync.Mutex
	byUserID map[string]Principal
	byID     map[string]Principal
}

func newMemoryPrincipalStore() *memoryPrincipalStore {
	return &memoryPrincipalStore{
		byUserID: map[string]Principal{},
		byID:     map[string]Principal{},
	}
}

func (s *memoryPrincipalStore) UpsertFromAuth(_ context.Context, userID string, email string, role authz.Role) (Principal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.byUserID[userID]; ok {
		if p.Status != "active" {
			return Principal{}, errors.New("server: principal is not active")
		}
		p.Email = email
		s.byUserID[userID] = p
		s.byID[p.ID] = p
		return p, nil
	}

	id, err := uuidv7.NewString()
	if err != nil {
		return Principal{}, err
	}
	p := Principal{ID: id, UserID: userID, Role: role, Email: email, Status: "active"}
	s.byUserID[userID] = p
	s.byID[id] = p
	return p, nil
}

func (s *memoryPrincipalStore) GetByID(_ context.Context, principalID string) (Principal, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[principalID]
	return p, ok, nil
}

// put is a test seam: memory stores back the handler tests, which need
// principals with specific org memberships.
func (s *memoryPrincipalStore) put(p Principal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUserID[p.UserID] = p
	s.byID[p.ID] = p
}
