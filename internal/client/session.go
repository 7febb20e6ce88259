package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNotAuthenticated is returned by guarded calls when nobody is logged in.
	ErrNotAuthenticated = errors.New("not logged in")
	// ErrSessionExpired is returned by guarded calls after the server rejected
	// a previously accepted token.
	ErrSessionExpired = errors.New("session expired")
)

// Status is the authentication state of a Session.
type Status int

const (
	StatusLoading Status = iota
	StatusAnonymous
	StatusAuthenticated
	StatusExpired
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusAnonymous:
		return "anonymous"
	case StatusAuthenticated:
		return "authenticated"
	case StatusExpired:
		return "expired"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Snapshot is an immutable view of a Session at one point in time.
type Snapshot struct {
	Status Status
	Token  string
	User   User
	// Verified is false for a token restored from storage that the server
	// has not yet accepted.
	Verified bool
}

// Session owns the client's authentication state and tells subscribers
// about every change.
type Session struct {
	api   *API
	store Store

	mu     sync.Mutex
	state  Snapshot
	subs   map[int]func(Snapshot)
	nextID int
}

// NewSession returns a session in the Loading state. Call Start to restore
// any saved credentials.
func NewSession(api *API, store Store) *Session {
	return &Session{
		api:   api,
		store: store,
		state: Snapshot{Status: StatusLoading},
		subs:  make(map[int]func(Snapshot)),
	}
}

// Snapshot returns the current state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers fn for state changes and immediately delivers the
// current state. The returned function removes the subscription.
func (s *Session) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	current := s.state
	s.mu.Unlock()

	fn(current)

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Start restores saved credentials. A saved token makes the session
// Authenticated but unverified until a guarded call succeeds.
func (s *Session) Start(ctx context.Context) error {
	creds, ok, err := s.store.Load()
	if err != nil {
		s.set(Snapshot{Status: StatusAnonymous})
		return fmt.Errorf("restore session: %w", err)
	}
	if !ok {
		s.set(Snapshot{Status: StatusAnonymous})
		return nil
	}
	s.set(Snapshot{Status: StatusAuthenticated, Token: creds.Token, User: creds.User})
	return nil
}

// Register creates an account. The session state does not change; the new
// user still has to log in.
func (s *Session) Register(ctx context.Context, email, password string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()
	return s.api.Register(ctx, email, password)
}

// Login authenticates against the API, persists the token, and moves the
// session to Authenticated.
func (s *Session) Login(ctx context.Context, email, password string) (User, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	resp, err := s.api.Login(ctx, email, password)
	if err != nil {
		return User{}, err
	}
	if err := s.store.Save(Credentials{Token: resp.Token, User: resp.User}); err != nil {
		return User{}, fmt.Errorf("save session: %w", err)
	}
	s.set(Snapshot{Status: StatusAuthenticated, Token: resp.Token, User: resp.User, Verified: true})
	return resp.User, nil
}

// Logout forgets the session locally. Tokens are stateless, so the server
// is not contacted.
func (s *Session) Logout() error {
	err := s.store.Clear()
	s.set(Snapshot{Status: StatusAnonymous})
	if err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

// Expire records that the server rejected the current token. Only an
// authenticated session becomes Expired, so "expired" is never reported
// for someone who was not logged in.
func (s *Session) Expire() {
	s.expire("")
}

// Confirm marks the current token as accepted by the server.
func (s *Session) Confirm() {
	s.confirm("")
}

// Do runs a call that needs the current token. A 401 expires the session
// and a success verifies a restored token. Calls are bounded by the request
// timeout.
func (s *Session) Do(ctx context.Context, call func(ctx context.Context, token string) error) error {
	snap := s.Snapshot()
	switch snap.Status {
	case StatusAuthenticated:
	case StatusExpired:
		return ErrSessionExpired
	default:
		return ErrNotAuthenticated
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	err := call(ctx, snap.Token)
	switch {
	case IsUnauthorized(err):
		s.expire(snap.Token)
		return fmt.Errorf("%w: %w", ErrSessionExpired, err)
	case err == nil && !snap.Verified:
		s.confirm(snap.Token)
	}
	return err
}

// expire and confirm act only while token is still current, so a late
// response from an earlier session cannot affect a newer one. An empty
// token matches any current token.
func (s *Session) expire(token string) {
	s.mu.Lock()
	if s.state.Status != StatusAuthenticated || (token != "" && s.state.Token != token) {
		s.mu.Unlock()
		return
	}
	s.state = Snapshot{Status: StatusExpired, User: s.state.User}
	snap, subs := s.state, s.subscribers()
	s.mu.Unlock()

	if err := s.store.Clear(); err != nil {
		slog.Warn("clear expired session", "error", err)
	}
	publish(snap, subs)
}

func (s *Session) confirm(token string) {
	s.mu.Lock()
	if s.state.Status != StatusAuthenticated || s.state.Verified || (token != "" && s.state.Token != token) {
		s.mu.Unlock()
		return
	}
	s.state.Verified = true
	snap, subs := s.state, s.subscribers()
	s.mu.Unlock()

	publish(snap, subs)
}

func (s *Session) set(snap Snapshot) {
	s.mu.Lock()
	s.state = snap
	subs := s.subscribers()
	s.mu.Unlock()

	publish(snap, subs)
}

// subscribers copies the subscriber list. Callers hold s.mu.
func (s *Session) subscribers() []func(Snapshot) {
	subs := make([]func(Snapshot), 0, len(s.subs))
	for _, fn := range s.subs {
		subs = append(subs, fn)
	}
	return subs
}

func publish[T any](v T, subs []func(T)) {
	for _, fn := range subs {
		fn(v)
	}
}
