package server

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestMemorySessionStore_Lifecycle(t *testing.T) {
	store := newMemorySessionStore()
	ctx := context.Background()

	sid, err := store.Create(ctx, "principal-1", time.Now().Add(time.Hour), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if sid == "" {
		t.Fatal("empty sid")
	}

	sess, ok, err := store.Lookup(ctx, sid)
	if err != nil || !ok {
		t.Fatalf("lookup = %v, %v", ok, err)
	}
	if sess.PrincipalID != "principal-1" {
		t.Fatalf("principal = %q", sess.PrincipalID)
	}

	if _, ok, _ := store.Lookup(ctx, "no-such-token"); ok {
		t.Fatal("lookup of unknown sid succeeded")
	}

	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, sid); ok {
		t.Fatal("revoked session still resolves")
	}
	// Revoking again is a no-op, not an error.
	if err := store.Revoke(ctx, sid); err != nil {
		t.Fatalf("second revoke: %v", err)
	}
}

func TestMemorySessionStore_Expiry(t *testing.T) {
	store := newMemorySessionStore()
	ctx := context.Background()

	sid, err := store.Create(ctx, "principal-1", time.Now().Add(-time.Minute), "", "")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, ok, _ := store.Lookup(ctx, sid); ok {
		t.Fatal("expired session still resolves")
	}
}

func TestNewSID_HashMatches(t *testing.T) {
	sid, sum, err := newSID()
	if err != nil {
		t.Fatalf("newSID: %v", err)
	}
	if !bytes.Equal(sum, hashSID(sid)) {
		t.Fatal("stored hash does not match hashSID of the token")
	}

	sid2, _, err := newSID()
	if err != nil {
		t.Fatalf("newSID: %v", err)
	}
	if sid == sid2 {
		t.Fatal("two tokens collided")
	}
}

func TestReadSID(t *testing.T) {
	tests := []struct {
		name    string
		prepare func(r *http.Request)
		want    string
		wantOK  bool
	}{
		{
			name:    "cookie",
			prepare: func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "sid", Value: "tok-cookie"}) },
			want:    "tok-cookie",
			wantOK:  true,
		},
		{
			name:    "bearer",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer tok-bearer") },
			want:    "tok-bearer",
			wantOK:  true,
		},
		{
			name: "cookie wins over bearer",
			prepare: func(r *http.Request) {
				r.AddCookie(&http.Cookie{Name: "sid", Value: "tok-cookie"})
				r.Header.Set("Authorization", "Bearer tok-bearer")
			},
			want:   "tok-cookie",
			wantOK: true,
		},
		{
			name:    "empty bearer",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Bearer   ") },
			wantOK:  false,
		},
		{
			name:    "basic auth ignored",
			prepare: func(r *http.Request) { r.Header.Set("Authorization", "Basic dXNlcjpwYXNz") },
			wantOK:  false,
		},
		{
			name:    "no credentials",
			prepare: func(r *http.Request) {},
			wantOK:  false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			tt.prepare(r)
			got, ok := readSID(r)
			if ok != tt.wantOK || got != tt.want {
				t.Fatalf("readSID = %q, %v; want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestMemoryPrincipalStore_UpsertFromAuth(t *testing.T) {
	store := newMemoryPrincipalStore()
	ctx := context.Background()

	p, err := store.UpsertFromAuth(ctx, "user-1", "first@darasa.test", "teacher")
	if err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if p.ID == "" || p.Status != "active" {
		t.Fatalf("principal = %+v", p)
	}

	// Re-auth updates the email but keeps the principal id.
	again, err := store.UpsertFromAuth(ctx, "user-1", "renamed@darasa.test", "teacher")
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if again.ID != p.ID {
		t.Fatalf("principal id changed: %q then %q", p.ID, again.ID)
	}
	if again.Email != "renamed@darasa.test" {
		t.Fatalf("email = %q", again.Email)
	}

	got, ok, err := store.GetByID(ctx, p.ID)
	if err != nil || !ok {
		t.Fatalf("get = %v, %v", ok, err)
	}
	if got.Email != "renamed@darasa.test" {
		t.Fatalf("get email = %q", got.Email)
	}
}

func TestMemoryPrincipalStore_SuspendedRejected(t *testing.T) {
	store := newMemoryPrincipalStore()
	store.put(Principal{ID: "p1", UserID: "user-1", Role: "teacher", Email: "t@darasa.test", Status: "suspended"})

	if _, err := store.UpsertFromAuth(context.Background(), "user-1", "t@darasa.test", "teacher"); err == nil {
		t.Fatal("suspended principal authenticated")
	}
}
