package session

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sync"

	"github.com/rpggio/hubwatch/internal/credential"
)

// TokenPath is the password-grant endpoint.
const TokenPath = "/token"

// Service owns the authenticated flag. The flag is derived from the
// credential store at construction (trust on presence) and afterwards only
// changes through Login, Logout and Expire.
type Service struct {
	store  credential.Store
	poster FormPoster
	logger *slog.Logger

	// opMu serializes every store mutation with its state change and the
	// delivery of that transition to watchers.
	opMu sync.Mutex

	mu       sync.Mutex
	state    State
	reason   Reason
	watchers []func(Transition)
}

// NewService creates a session service whose initial state reflects whether
// the store already holds a token. No remote call is made.
func NewService(ctx context.Context, store credential.Store, poster FormPoster, logger *slog.Logger) (*Service, error) {
	if logger == nil {
		logger = slog.Default()
	}
	_, ok, err := store.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading credential: %w", err)
	}

	state := StateAnonymous
	if ok {
		state = StateAuthenticated
	}
	return &Service{
		store:  store,
		poster: poster,
		logger: logger,
		state:  state,
	}, nil
}

// State returns the current state.
func (s *Service) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Authenticated reports whether the state is AUTHENTICATED.
func (s *Service) Authenticated() bool {
	return s.State() == StateAuthenticated
}

// Reason returns why the session last became anonymous.
func (s *Service) Reason() Reason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Watch registers fn to run after every transition, in registration order.
// Transitions are delivered one at a time in the order they happen; fn must
// not call Login, Logout or Expire.
func (s *Service) Watch(fn func(Transition)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

// Login exchanges username and password for a token. Any failure leaves the
// service ANONYMOUS with no stored token and returns ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, username, password string) error {
	if username == "" || password == "" {
		return ErrInvalidCredentials
	}

	form := url.Values{}
	form.Set("username", username)
	form.Set("password", password)

	var resp TokenResponse
	if err := s.poster.PostForm(ctx, TokenPath, form, &resp); err != nil {
		s.logger.Warn("login failed", "username", username, "error", err)
		return fmt.Errorf("%w: %w", ErrInvalidCredentials, err)
	}
	if resp.AccessToken == "" {
		s.logger.Warn("login returned no token", "username", username)
		return ErrInvalidCredentials
	}

	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.store.Set(ctx, resp.AccessToken); err != nil {
		return fmt.Errorf("storing credential: %w", err)
	}

	s.transition(StateAuthenticated, ReasonNone)
	s.logger.Info("logged in", "username", username)
	return nil
}

// Logout clears the stored token and moves to ANONYMOUS. It makes no remote
// call and is idempotent; store failures are logged.
func (s *Service) Logout(ctx context.Context) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("clearing credential", "error", err)
	}
	s.transition(StateAnonymous, ReasonLogout)
}

// Expire is an implicit logout after the server refused rejectedToken. It
// does nothing when the session is already anonymous or a newer token has
// been stored since.
func (s *Service) Expire(ctx context.Context, rejectedToken string) {
	s.opMu.Lock()
	defer s.opMu.Unlock()

	token, ok, err := s.store.Get(ctx)
	if err != nil {
		s.logger.Error("reading credential", "error", err)
		return
	}
	if !ok || token != rejectedToken {
		return
	}
	if err := s.store.Clear(ctx); err != nil {
		s.logger.Error("clearing credential", "error", err)
	}
	s.logger.Warn("session expired, token rejected by server")
	s.transition(StateAnonymous, ReasonExpired)
}

// transition must be called with opMu held.
func (s *Service) transition(to State, reason Reason) {
	s.mu.Lock()
	from := s.state
	s.state = to
	if to == StateAnonymous {
		s.reason = reason
	} else {
		s.reason = ReasonNone
	}
	watchers := append([]func(Transition){}, s.watchers...)
	s.mu.Unlock()

	if from == to {
		return
	}
	t := Transition{From: from, To: to, Reason: reason}
	for _, fn := range watchers {
		fn(t)
	}
}
