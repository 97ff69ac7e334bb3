package client

import (
	"encoding/json"
	"fmt"

	"golang.org/x/oauth2"

	"github.com/sakif/tasklist/internal/model"
)

// Storage keys.
const (
	KeyAuthToken   = "authToken"
	KeyCurrentUser = "currentUser"
	KeyTasks       = "tasks"
)

// Session is the client's view of who is signed in, backed by Storage.
//
// It never inspects the token: an expired token still counts as
// authenticated until the server answers 401.
type Session struct {
	store Storage
}

func NewSession(store Storage) *Session {
	return &Session{store: store}
}

// Token returns the stored bearer token, or "".
func (s *Session) Token() string {
	t, _ := s.store.Get(KeyAuthToken)
	return t
}

// IsAuthenticated is true iff a non-empty token is stored.
func (s *Session) IsAuthenticated() bool {
	return s.Token() != ""
}

// Begin stores the token and identity returned by login or register.
func (s *Session) Begin(token string, user model.User) error {
	data, err := json.Marshal(user)
	if err != nil {
		return fmt.Errorf("client: encoding user: %w", err)
	}
	if err := s.store.Set(KeyAuthToken, token); err != nil {
		return err
	}
	return s.store.Set(KeyCurrentUser, string(data))
}

// User returns the stored identity, if any.
func (s *Session) User() (model.User, bool) {
	raw, ok := s.store.Get(KeyCurrentUser)
	if !ok || raw == "" {
		return model.User{}, false
	}
	var u model.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		return model.User{}, false
	}
	return u, true
}

// Tasks returns the last task snapshot.
func (s *Session) Tasks() []model.Task {
	raw, ok := s.store.Get(KeyTasks)
	if !ok || raw == "" {
		return []model.Task{}
	}
	var tasks []model.Task
	if err := json.Unmarshal([]byte(raw), &tasks); err != nil {
		return []model.Task{}
	}
	return tasks
}

// SetTasks replaces the snapshot.
func (s *Session) SetTasks(tasks []model.Task) error {
	if tasks == nil {
		tasks = []model.Task{}
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("client: encoding tasks: %w", err)
	}
	return s.store.Set(KeyTasks, string(data))
}

// ClearTasks drops the snapshot.
func (s *Session) ClearTasks() error {
	return s.store.Delete(KeyTasks)
}

// Clear removes the token and identity.
func (s *Session) Clear() error {
	if err := s.store.Delete(KeyAuthToken); err != nil {
		return err
	}
	return s.store.Delete(KeyCurrentUser)
}

// sessionTokenSource reads the token from the session on every request, so
// a login or logout takes effect on the next call without rebuilding the
// HTTP client.
type sessionTokenSource struct {
	session *Session
}

func (ts sessionTokenSource) Token() (*oauth2.Token, error) {
	tok := ts.session.Token()
	if tok == "" {
		return nil, ErrNotAuthenticated
	}
	return &oauth2.Token{AccessToken: tok, TokenType: "Bearer"}, nil
}
