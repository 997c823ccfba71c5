// Package session tracks who is signed in and which school they are working
// in. It hydrates the profile from the users collection whenever the
// identity changes.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
	"github.com/sekolahku/docgate/school"
)

var ErrProfileNotFound = errors.New("User data not found")

type Identity struct {
	UID   string
	Email string
}

// AuthProvider is the identity service. OnAuthChange calls fn with the
// current identity, nil when signed out, and again on every change.
type AuthProvider interface {
	OnAuthChange(fn func(*Identity)) (unsubscribe func())
	Login(ctx context.Context, email, password string) (*Identity, error)
	Logout(ctx context.Context) error
}

type Store interface {
	Get(ctx context.Context, collection, key string) (api.Record, bool)
	Query(ctx context.Context, collection string, filters []api.Filter, opts ...gateway.QueryOption) []api.Record
}

type Session struct {
	auth  AuthProvider
	store Store
	log   *slog.Logger

	m         sync.RWMutex
	identity  *Identity
	profile   api.Record
	err       error
	listeners map[int]func()
	nextID    int

	unsubscribe func()
}

func New(auth AuthProvider, store Store, log *slog.Logger) *Session {
	s := &Session{
		auth:      auth,
		store:     store,
		log:       log,
		listeners: make(map[int]func()),
	}
	s.unsubscribe = auth.OnAuthChange(s.identityChanged)
	return s
}

func (s *Session) identityChanged(id *Identity) {
	var profile api.Record
	var err error

	if id != nil {
		var ok bool
		profile, ok = s.store.Get(context.Background(), school.Users, id.UID)
		if !ok {
			s.log.Error("user document not found", "uid", id.UID)
			profile = nil
			err = ErrProfileNotFound
		}
	}

	s.m.Lock()
	s.identity = id
	s.profile = profile
	s.err = err
	listeners := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		listeners = append(listeners, fn)
	}
	s.m.Unlock()

	for _, fn := range listeners {
		fn()
	}
}

// OnChange registers fn to run after every identity change.
func (s *Session) OnChange(fn func()) (unsubscribe func()) {
	s.m.Lock()
	defer s.m.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = fn
	return func() {
		s.m.Lock()
		defer s.m.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) Login(ctx context.Context, email, password string) error {
	if _, err := s.auth.Login(ctx, email, password); err != nil {
		s.m.Lock()
		s.err = err
		s.m.Unlock()
		return err
	}
	return nil
}

func (s *Session) Logout(ctx context.Context) error {
	if err := s.auth.Logout(ctx); err != nil {
		s.m.Lock()
		s.err = err
		s.m.Unlock()
		return err
	}
	s.m.Lock()
	s.identity = nil
	s.profile = nil
	s.err = nil
	s.m.Unlock()
	return nil
}

// Close stops following the auth provider.
func (s *Session) Close() {
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
}

func (s *Session) Identity() *Identity {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.identity
}

// Profile is the signed in user's record from the users collection.
func (s *Session) Profile() api.Record {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.profile
}

func (s *Session) Err() error {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.err
}

func (s *Session) Authenticated() bool {
	return s.Identity() != nil
}

func (s *Session) Role() school.Role {
	role, _ := s.Profile()[school.FieldRole].(string)
	return school.Role(role)
}

func (s *Session) IsSuperAdmin() bool  { return s.Role() == school.RoleSuperAdmin }
func (s *Session) IsSchoolAdmin() bool { return s.Role() == school.RoleSchoolAdmin }
func (s *Session) IsTeacher() bool     { return s.Role() == school.RoleTeacher }
func (s *Session) IsStudent() bool     { return s.Role() == school.RoleStudent }
func (s *Session) IsParent() bool      { return s.Role() == school.RoleParent }
