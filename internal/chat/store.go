// Package chat is the conversation store: the currently selected peer, the
// open conversation's message list, and the contact list. The session core
// never imports it directly — it reaches in through a narrow accessor
// interface so the dependency edge stays one-way.
package chat

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"loom/internal/api"
	"loom/internal/identity"
	"loom/internal/realtime"
)

// Store holds one open conversation plus the contact list.
type Store struct {
	log   *slog.Logger
	api   *api.Client
	cache *Cache

	mu       sync.Mutex
	selected *identity.Identity
	messages []realtime.Message
	contacts []identity.Identity
}

// StoreOption configures optional Store dependencies.
type StoreOption func(*Store)

// WithCache attaches the local message cache.
func WithCache(cache *Cache) StoreOption {
	return func(s *Store) { s.cache = cache }
}

// WithLogger sets the store logger.
func WithLogger(log *slog.Logger) StoreOption {
	return func(s *Store) {
		if log != nil {
			s.log = log
		}
	}
}

// NewStore constructs a conversation store on top of the API client.
func NewStore(client *api.Client, opts ...StoreOption) *Store {
	s := &Store{
		log: slog.Default(),
		api: client,
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(s)
	}
	return s
}

// Select opens a conversation with peer, seeding the message list from the
// local cache when one is available.
func (s *Store) Select(peer identity.Identity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.selected = &peer
	s.messages = nil

	if cached, ok, err := s.cache.Get(peer.ID); err != nil {
		s.log.Warn("chat.cache.read.fail", "peer", peer.ID, "err", err)
	} else if ok {
		s.messages = cached
	}
}

// Deselect closes the open conversation.
func (s *Store) Deselect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.messages = nil
}

// Selected returns the open conversation's peer.
func (s *Store) Selected() (identity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.selected == nil {
		return identity.Identity{}, false
	}
	return *s.selected, true
}

// SelectedPeerID implements the session core's conversation accessor.
func (s *Store) SelectedPeerID() (int64, bool) {
	peer, ok := s.Selected()
	return peer.ID, ok
}

// Append adds one message to the open conversation and writes the snapshot
// behind to the local cache. It implements the session core's accessor.
func (s *Store) Append(m realtime.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.selected == nil {
		return
	}
	s.messages = append(s.messages, m)

	if err := s.cache.Put(s.selected.ID, s.messages); err != nil {
		s.log.Warn("chat.cache.write.fail", "peer", s.selected.ID, "err", err)
	}
}

// Messages returns a copy of the open conversation's message list.
func (s *Store) Messages() []realtime.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]realtime.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// LoadContacts fetches the user directory for the sidebar.
func (s *Store) LoadContacts(ctx context.Context) ([]identity.Identity, error) {
	var contacts []identity.Identity
	if err := s.api.Get(ctx, "/users", &contacts); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.contacts = contacts
	s.mu.Unlock()
	return contacts, nil
}

// Contacts returns the last fetched contact list.
func (s *Store) Contacts() []identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]identity.Identity, len(s.contacts))
	copy(out, s.contacts)
	return out
}

type sendRequest struct {
	Text        string `json:"text"`
	ClientMsgID string `json:"client_msg_id"`
}

// Send posts text to the open conversation's peer and appends the accepted
// message record.
func (s *Store) Send(ctx context.Context, text string) (realtime.Message, error) {
	peer, ok := s.Selected()
	if !ok {
		return realtime.Message{}, fmt.Errorf("chat: no conversation selected")
	}

	clientMsgID, err := NewClientMsgID(time.Now().UTC())
	if err != nil {
		return realtime.Message{}, err
	}

	var msg realtime.Message
	path := fmt.Sprintf("/messages/send/%d", peer.ID)
	if err := s.api.Post(ctx, path, sendRequest{Text: text, ClientMsgID: clientMsgID}, &msg); err != nil {
		return realtime.Message{}, err
	}

	s.Append(msg)
	return msg, nil
}
