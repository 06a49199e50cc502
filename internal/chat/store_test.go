package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loom/internal/api"
	"loom/internal/identity"
	"loom/internal/realtime"
	"loom/internal/token"
)

func newTestAPI(t *testing.T, handler http.Handler) *api.Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	c, err := api.New(srv.URL, token.NewMemoryStore())
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	return c
}

func TestStore_SelectAppendMessages(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	if _, ok := s.Selected(); ok {
		t.Fatalf("expected no selection")
	}
	// Appends without a selection are dropped, not queued.
	s.Append(realtime.Message{ID: 1, Text: "orphan"})
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("messages=%v want empty", got)
	}

	peer := identity.Identity{ID: 7, Username: "bob"}
	s.Select(peer)

	if id, ok := s.SelectedPeerID(); !ok || id != 7 {
		t.Fatalf("SelectedPeerID()=%d,%v want 7,true", id, ok)
	}

	s.Append(realtime.Message{ID: 1, SenderID: 7, Text: "hi"})
	s.Append(realtime.Message{ID: 2, SenderID: 7, Text: "there"})
	if got := s.Messages(); len(got) != 2 || got[1].Text != "there" {
		t.Fatalf("messages=%v", got)
	}

	s.Deselect()
	if _, ok := s.SelectedPeerID(); ok {
		t.Fatalf("expected cleared selection")
	}
	if got := s.Messages(); len(got) != 0 {
		t.Fatalf("deselect must clear messages, got %v", got)
	}
}

func TestStore_SendPostsAndAppends(t *testing.T) {
	t.Parallel()

	var gotPath string
	var gotReq sendRequest
	client := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(realtime.Message{ID: 10, SenderID: 1, ReceiverID: 7, Text: gotReq.Text})
	}))

	s := NewStore(client)
	s.Select(identity.Identity{ID: 7, Username: "bob"})

	msg, err := s.Send(context.Background(), "hello bob")
	if err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/api/v1/messages/send/7" {
		t.Fatalf("path=%q", gotPath)
	}
	if gotReq.Text != "hello bob" || gotReq.ClientMsgID == "" {
		t.Fatalf("request=%+v want text and a client_msg_id", gotReq)
	}
	if msg.ID != 10 {
		t.Fatalf("msg=%+v", msg)
	}
	if got := s.Messages(); len(got) != 1 || got[0].ID != 10 {
		t.Fatalf("messages=%v want the accepted record appended", got)
	}
}

func TestStore_SendWithoutSelectionFails(t *testing.T) {
	t.Parallel()

	s := NewStore(nil)
	if _, err := s.Send(context.Background(), "nope"); err == nil {
		t.Fatalf("expected error without a selected peer")
	}
}

func TestStore_LoadContacts(t *testing.T) {
	t.Parallel()

	client := newTestAPI(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/users" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(`[{"id":1,"username":"alice"},{"id":2,"username":"bob"}]`))
	}))

	s := NewStore(client)
	contacts, err := s.LoadContacts(context.Background())
	if err != nil {
		t.Fatalf("LoadContacts: %v", err)
	}
	if len(contacts) != 2 || contacts[0].Username != "alice" {
		t.Fatalf("contacts=%v", contacts)
	}
	if got := s.Contacts(); len(got) != 2 {
		t.Fatalf("cached contacts=%v", got)
	}
}

func TestNewClientMsgID(t *testing.T) {
	t.Parallel()

	a, err := NewClientMsgID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewClientMsgID: %v", err)
	}
	b, err := NewClientMsgID(time.Now().UTC())
	if err != nil {
		t.Fatalf("NewClientMsgID: %v", err)
	}
	if len(a) != 26 || len(b) != 26 {
		t.Fatalf("ulid length: %q %q", a, b)
	}
	if a == b {
		t.Fatalf("ids must be unique: %q", a)
	}
}
