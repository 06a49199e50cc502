// Package session drives the authentication lifecycle: sign-up, sign-in,
// sign-out, profile updates, and ownership of the realtime channel.
//
// State machine (identity x connection):
//
//	unauthenticated(no conn) --login/signup/checkAuth ok--> authenticated(conn open)
//	authenticated(conn open) --logout | forced logout | refresh failure--> unauthenticated(no conn)
//
// A checkAuth failure while unauthenticated is a self-loop. No state ever
// holds more than one open connection.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"loom/internal/api"
	"loom/internal/app"
	"loom/internal/identity"
	"loom/internal/realtime"
	"loom/internal/token"
)

// Connection is the capability set the store needs from a realtime channel.
// *realtime.Channel satisfies it; tests inject fakes.
type Connection interface {
	On(event string, h realtime.Handler)
	Off(event string)
	Connected() bool
	UserID() int64
	Close()
}

// Dialer opens a new Connection for userID.
type Dialer func(ctx context.Context, userID int64) (Connection, error)

// Conversations is the narrow accessor into the conversation store. It is
// injected (never imported) so the dependency edge stays one-way: this core
// writes messages in, and reads only the selected peer.
type Conversations interface {
	SelectedPeerID() (int64, bool)
	Append(m realtime.Message)
}

// Flags are the busy indicators the UI renders spinners from.
type Flags struct {
	SigningUp       bool
	LoggingIn       bool
	UpdatingProfile bool
	CheckingAuth    bool
}

// Config wires a Store.
type Config struct {
	// BaseURL is the backend root origin.
	BaseURL string
	// APIPrefix overrides the REST path prefix (default /api/v1).
	APIPrefix string
	// HTTPTimeout bounds each outbound HTTP call (zero keeps the client
	// default).
	HTTPTimeout time.Duration
	// DialTimeout bounds the realtime handshake (zero keeps the dialer
	// default).
	DialTimeout time.Duration
	// Tokens is the persisted credential slot.
	Tokens token.Store
	// Notify receives user-visible notifications. Defaults to NopNotifier.
	Notify Notifier
	// Conversations is the conversation store accessor (may be nil).
	Conversations Conversations
	// Dial overrides the realtime dialer (tests). Defaults to realtime.Dial.
	Dial Dialer

	Logger  *slog.Logger
	Metrics *app.Metrics
}

// Store holds the authenticated identity and owns the realtime connection.
type Store struct {
	log     *slog.Logger
	metrics *app.Metrics

	api    *api.Client
	tokens token.Store
	notify Notifier
	conv   Conversations
	dial   Dialer

	mu       sync.Mutex
	identity *identity.Identity
	online   map[int64]struct{}
	conn     Connection
	dialing  bool
	flags    Flags

	presenceSeen chan struct{}
	presenceOnce bool
}

// New constructs a Store and its underlying API client. The client's
// auth-expired hook points back at the store, so an irrecoverable refresh
// failure forces the unauthenticated state without a server round-trip.
func New(cfg Config) (*Store, error) {
	if cfg.Tokens == nil {
		return nil, errors.New("session: nil token store")
	}

	s := &Store{
		log:          cfg.Logger,
		metrics:      cfg.Metrics,
		tokens:       cfg.Tokens,
		notify:       cfg.Notify,
		conv:         cfg.Conversations,
		dial:         cfg.Dial,
		online:       make(map[int64]struct{}),
		presenceSeen: make(chan struct{}),
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	if s.notify == nil {
		s.notify = NopNotifier{}
	}
	if s.dial == nil {
		base := cfg.BaseURL
		dialTimeout := cfg.DialTimeout
		s.dial = func(ctx context.Context, userID int64) (Connection, error) {
			return realtime.Dial(ctx, base, userID,
				realtime.WithLogger(s.log),
				realtime.WithMetrics(s.metrics),
				realtime.WithDialTimeout(dialTimeout),
			)
		}
	}

	client, err := api.New(cfg.BaseURL, cfg.Tokens,
		api.WithLogger(s.log),
		api.WithMetrics(cfg.Metrics),
		api.WithPrefix(cfg.APIPrefix),
		api.WithTimeout(cfg.HTTPTimeout),
		api.WithAuthExpiredHook(s.DisconnectUser),
	)
	if err != nil {
		return nil, err
	}
	s.api = client
	return s, nil
}

// API exposes the shared HTTP client for collaborators (conversation store,
// upload helpers).
func (s *Store) API() *api.Client { return s.api }

// Identity returns the current authenticated identity.
func (s *Store) Identity() (identity.Identity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.identity == nil {
		return identity.Identity{}, false
	}
	return *s.identity, true
}

// Flags returns a snapshot of the busy flags.
func (s *Store) Flags() Flags {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.flags
}

// OnlineUsers returns the last presence snapshot, sorted.
func (s *Store) OnlineUsers() []int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int64, 0, len(s.online))
	for id := range s.online {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// IsOnline reports presence for one user id.
func (s *Store) IsOnline(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.online[id]
	return ok
}

// PresenceSeen returns a channel closed once the first presence snapshot of
// the current session has arrived, so callers can wait for it instead of
// sleeping. The channel is replaced when the session is cleared.
func (s *Store) PresenceSeen() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.presenceSeen
}

type authResponse struct {
	identity.Identity
	AccessToken string `json:"access_token"`
}

// SignupData is the sign-up form payload.
type SignupData struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginData is the sign-in form payload.
type LoginData struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// ProfileUpdate is the profile PATCH payload.
type ProfileUpdate struct {
	Username string `json:"username,omitempty"`
	Name     string `json:"name,omitempty"`
}

// CheckAuth queries the current-identity endpoint. Success adopts the
// identity and opens the realtime connection; any failure leaves the store
// unauthenticated. The checking flag is cleared on every path.
func (s *Store) CheckAuth(ctx context.Context) error {
	s.setFlag(func(f *Flags) { f.CheckingAuth = true })
	defer s.setFlag(func(f *Flags) { f.CheckingAuth = false })

	var ident identity.Identity
	if err := s.api.Get(ctx, "/auth/check", &ident); err != nil {
		s.mu.Lock()
		s.identity = nil
		s.mu.Unlock()
		s.log.Debug("session.check.fail", "err", err)
		return err
	}

	s.mu.Lock()
	s.identity = &ident
	s.mu.Unlock()

	s.ConnectSocket(ctx)
	return nil
}

// Signup creates an account. On success the identity and credential are
// adopted and the realtime connection opens.
func (s *Store) Signup(ctx context.Context, data SignupData) error {
	s.setFlag(func(f *Flags) { f.SigningUp = true })
	defer s.setFlag(func(f *Flags) { f.SigningUp = false })

	if err := identity.ValidateUsername(data.Username); err != nil {
		s.notify.Error("Invalid username")
		return err
	}
	data.Username = identity.NormalizeUsername(data.Username)

	if err := s.authenticate(ctx, "/auth/signup", data); err != nil {
		return err
	}
	s.notify.Success("Account created successfully")
	return nil
}

// Login signs an existing user in.
func (s *Store) Login(ctx context.Context, data LoginData) error {
	s.setFlag(func(f *Flags) { f.LoggingIn = true })
	defer s.setFlag(func(f *Flags) { f.LoggingIn = false })

	if err := s.authenticate(ctx, "/auth/signin", data); err != nil {
		return err
	}
	s.notify.Success("Logged in successfully")
	return nil
}

func (s *Store) authenticate(ctx context.Context, path string, payload any) error {
	var resp authResponse
	if err := s.api.Post(ctx, path, payload, &resp); err != nil {
		s.notify.Error(api.UserMessage(err))
		return err
	}

	s.mu.Lock()
	ident := resp.Identity
	s.identity = &ident
	s.mu.Unlock()

	if resp.AccessToken != "" {
		if err := s.tokens.Set(resp.AccessToken); err != nil {
			s.log.Warn("session.token.persist.fail", "err", err)
		}
	}

	s.ConnectSocket(ctx)
	return nil
}

// Logout notifies the server best-effort, then unconditionally clears the
// identity, the credential, and the connection.
func (s *Store) Logout(ctx context.Context) {
	if err := s.api.Post(ctx, "/auth/logout", nil, nil); err != nil {
		// Best effort: the local session dies either way.
		s.log.Debug("session.logout.server.fail", "err", err)
	}

	s.clearSession()
	s.notify.Success("Logged out successfully")
}

// DisconnectUser is the forced logout path, invoked by the HTTP client when
// a credential refresh fails irrecoverably. It never calls the server.
func (s *Store) DisconnectUser() {
	s.clearSession()
	s.notify.Error("Session expired, please sign in again")
}

func (s *Store) clearSession() {
	s.mu.Lock()
	s.identity = nil
	s.online = make(map[int64]struct{})
	conn := s.conn
	s.conn = nil
	s.presenceSeen = make(chan struct{})
	s.presenceOnce = false
	s.mu.Unlock()

	if err := s.tokens.Remove(); err != nil {
		s.log.Warn("session.token.remove.fail", "err", err)
	}
	if conn != nil {
		conn.Close()
	}
	if s.metrics != nil {
		s.metrics.OnlineUsers.Set(0)
	}
}

// UpdateProfile PATCHes profile fields and adopts the updated identity.
func (s *Store) UpdateProfile(ctx context.Context, data ProfileUpdate) error {
	s.setFlag(func(f *Flags) { f.UpdatingProfile = true })
	defer s.setFlag(func(f *Flags) { f.UpdatingProfile = false })

	if data.Username != "" {
		if err := identity.ValidateUsername(data.Username); err != nil {
			s.notify.Error("Invalid username")
			return err
		}
		data.Username = identity.NormalizeUsername(data.Username)
	}

	var ident identity.Identity
	if err := s.api.Patch(ctx, "/users/profile/update", data, &ident); err != nil {
		s.notify.Error(api.UserMessage(err))
		return err
	}

	s.mu.Lock()
	s.identity = &ident
	s.mu.Unlock()

	s.notify.Success("Profile updated successfully")
	return nil
}

// UpdateProfilePicture uploads a new avatar and returns its URL. The
// identity is deliberately not mutated; the caller applies the URL by a
// follow-up UpdateProfile or re-check.
func (s *Store) UpdateProfilePicture(ctx context.Context, filename string, image io.Reader) (string, error) {
	s.setFlag(func(f *Flags) { f.UpdatingProfile = true })
	defer s.setFlag(func(f *Flags) { f.UpdatingProfile = false })

	var resp struct {
		ImageURL string `json:"imageUrl"`
	}
	if err := s.api.PostMultipart(ctx, "/upload/profile-pic", "image", filename, image, &resp); err != nil {
		s.notify.Error(api.UserMessage(err))
		return "", err
	}

	s.notify.Success("Profile image updated successfully")
	return resp.ImageURL, nil
}

// ConnectSocket opens the realtime connection for the current identity.
// It is a no-op without an identity, while a connection bound to that
// identity is already live, or while another dial is in flight; at most one
// connection exists per session.
func (s *Store) ConnectSocket(ctx context.Context) {
	s.mu.Lock()
	if s.identity == nil || s.dialing {
		s.mu.Unlock()
		return
	}
	userID := s.identity.ID
	if s.conn != nil && s.conn.Connected() && s.conn.UserID() == userID {
		s.mu.Unlock()
		return
	}
	s.dialing = true
	stale := s.conn
	s.conn = nil
	s.mu.Unlock()

	if stale != nil {
		stale.Close()
	}

	conn, err := s.dial(ctx, userID)
	if err != nil {
		s.mu.Lock()
		s.dialing = false
		s.mu.Unlock()
		s.log.Warn("session.socket.dial.fail", "user", userID, "err", err)
		return
	}

	conn.On(realtime.EventOnlineUsers, s.handlePresence)

	s.mu.Lock()
	s.dialing = false
	// The session may have been cleared while the dial was in flight.
	if s.identity == nil || s.identity.ID != userID {
		s.mu.Unlock()
		conn.Close()
		return
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Debug("session.socket.open", "user", userID)
}

// SubscribeToMessages (re-)binds the inbound message handler, replacing any
// prior binding so messages never double-fire.
func (s *Store) SubscribeToMessages() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	conn.Off(realtime.EventNewMessage)
	conn.On(realtime.EventNewMessage, s.handleMessage)
}

// DisconnectSocket closes the realtime connection if one is open.
func (s *Store) DisconnectSocket() {
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()

	if conn != nil && conn.Connected() {
		conn.Close()
	}
}

// handlePresence replaces the online set wholesale with the snapshot.
func (s *Store) handlePresence(payload json.RawMessage) {
	var ids realtime.OnlineUsersPayload
	if err := json.Unmarshal(payload, &ids); err != nil {
		s.log.Warn("session.presence.malformed", "err", err)
		return
	}

	next := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		next[id] = struct{}{}
	}

	s.mu.Lock()
	s.online = next
	if !s.presenceOnce {
		s.presenceOnce = true
		close(s.presenceSeen)
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.OnlineUsers.Set(float64(len(next)))
	}
}

// handleMessage routes an inbound message: append when it belongs to the
// open conversation, otherwise raise a non-blocking notification.
func (s *Store) handleMessage(payload json.RawMessage) {
	var msg realtime.Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		s.log.Warn("session.message.malformed", "err", err)
		return
	}

	if s.conv != nil {
		if peerID, ok := s.conv.SelectedPeerID(); ok && peerID == msg.SenderID {
			s.conv.Append(msg)
			return
		}
	}
	s.notify.Info(fmt.Sprintf("New message from @%s", msg.Sender.Username))
}

func (s *Store) setFlag(mutate func(*Flags)) {
	s.mu.Lock()
	mutate(&s.flags)
	s.mu.Unlock()
}
