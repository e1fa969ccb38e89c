package server

import (
	"net/http"
	"testing"

	"github.com/karibu-labs/darasa/pkg/authz"
)

func TestMessages_SendInboxThread(t *testing.T) {
	env := newTestEnv(t)
	teacherSID, teacher := env.seedSession(t, authz.RoleTeacher, env.orgID)
	parentSID, parent := env.seedSession(t, authz.RoleParent, env.orgID)

	send := func(sid, recipient, subject string) {
		t.Helper()
		rec := env.request(t, http.MethodPost, "/api/messages", map[string]any{
			"recipient_id": recipient,
			"subject":      subject,
			"body":         "see subject",
		}, sid)
		if rec.Code != http.StatusCreated {
			t.Fatalf("send %q = %d (body %s)", subject, rec.Code, rec.Body.String())
		}
	}
	send(teacherSID, parent.UserID, "homework missing")
	send(parentSID, teacher.UserID, "re: homework missing")
	send(teacherSID, parent.UserID, "field trip forms")

	rec := env.request(t, http.MethodGet, "/api/messages", nil, parentSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("inbox = %d", rec.Code)
	}
	inbox, _ := decodeBody(t, rec)["messages"].([]any)
	if len(inbox) != 2 {
		t.Fatalf("parent inbox has %d messages, want 2", len(inbox))
	}
	newest, _ := inbox[0].(map[string]any)
	if newest["subject"] != "field trip forms" {
		t.Fatalf("inbox[0].subject = %v, want newest first", newest["subject"])
	}

	rec = env.request(t, http.MethodGet, "/api/messages?with_user="+teacher.UserID, nil, parentSID)
	thread, _ := decodeBody(t, rec)["messages"].([]any)
	if len(thread) != 3 {
		t.Fatalf("thread has %d messages, want 3", len(thread))
	}
	oldest, _ := thread[0].(map[string]any)
	if oldest["subject"] != "homework missing" {
		t.Fatalf("thread[0].subject = %v, want oldest first", oldest["subject"])
	}
}

func TestMessages_InboxScopedToCaller(t *testing.T) {
	env := newTestEnv(t)
	teacherSID, _ := env.seedSession(t, authz.RoleTeacher, env.orgID)
	parentSID, parent := env.seedSession(t, authz.RoleParent, env.orgID)
	otherSID, _ := env.seedSession(t, authz.RoleParent, env.orgID)

	rec := env.request(t, http.MethodPost, "/api/messages", map[string]any{
		"recipient_id": parent.UserID,
		"subject":      "private",
		"body":         "for one parent only",
	}, teacherSID)
	if rec.Code != http.StatusCreated {
		t.Fatalf("send = %d", rec.Code)
	}

	rec = env.request(t, http.MethodGet, "/api/messages", nil, otherSID)
	other, _ := decodeBody(t, rec)["messages"].([]any)
	if len(other) != 0 {
		t.Fatalf("other parent sees %d messages, want 0", len(other))
	}

	rec = env.request(t, http.MethodGet, "/api/messages", nil, parentSID)
	own, _ := decodeBody(t, rec)["messages"].([]any)
	if len(own) != 1 {
		t.Fatalf("recipient sees %d messages, want 1", len(own))
	}
}

func TestMessages_MarkReadIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	teacherSID, _ := env.seedSession(t, authz.RoleTeacher, env.orgID)
	parentSID, parent := env.seedSession(t, authz.RoleParent, env.orgID)

	rec := env.request(t, http.MethodPost, "/api/messages", map[string]any{
		"recipient_id": parent.UserID,
		"subject":      "reminder",
		"body":         "parent meeting friday",
	}, teacherSID)
	msgID, _ := decodeBody(t, rec)["id"].(string)

	rec = env.request(t, http.MethodPost, "/api/messages/"+msgID+"/read", nil, parentSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark read = %d (body %s)", rec.Code, rec.Body.String())
	}
	firstRead, _ := decodeBody(t, rec)["read_at"].(string)
	if firstRead == "" {
		t.Fatal("read_at not set after mark read")
	}

	rec = env.request(t, http.MethodPost, "/api/messages/"+msgID+"/read", nil, parentSID)
	if rec.Code != http.StatusOK {
		t.Fatalf("second mark read = %d", rec.Code)
	}
	secondRead, _ := decodeBody(t, rec)["read_at"].(string)
	if secondRead != firstRead {
		t.Fatalf("read_at changed on repeat: %q then %q", firstRead, secondRead)
	}

	// Only the recipient may mark a message read.
	rec = env.request(t, http.MethodPost, "/api/messages/"+msgID+"/read", nil, teacherSID)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("sender mark read = %d, want 404", rec.Code)
	}
}

func TestMessages_SelfSendRejected(t *testing.T) {
	env := newTestEnv(t)
	sid, p := env.seedSession(t, authz.RoleTeacher, env.orgID)

	rec := env.request(t, http.MethodPost, "/api/messages", map[string]any{
		"recipient_id": p.UserID,
		"subject":      "note to self",
		"body":         "buy chalk",
	}, sid)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("self send = %d, want 400", rec.Code)
	}
}
