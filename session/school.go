package session

import (
	"context"
	"sync"

	"github.com/sekolahku/docgate/api"
	"github.com/sekolahku/docgate/gateway"
	"github.com/sekolahku/docgate/school"
)

// SchoolContext is the school the signed in user is working in. Super admins
// see every school and can switch, everyone else is pinned to the school of
// their profile.
type SchoolContext struct {
	session *Session
	store   Store

	m       sync.RWMutex
	schools []api.Record
	current api.Record

	unsubscribe func()
}

// NewSchoolContext loads the schools now and again on every identity change.
func NewSchoolContext(ctx context.Context, s *Session, store Store) *SchoolContext {
	c := &SchoolContext{session: s, store: store}
	c.Load(ctx)
	c.unsubscribe = s.OnChange(func() { c.Load(context.Background()) })
	return c
}

func (c *SchoolContext) Load(ctx context.Context) {
	profile := c.session.Profile()

	if profile == nil {
		c.m.Lock()
		c.schools = nil
		c.current = nil
		c.m.Unlock()
		return
	}

	if c.session.IsSuperAdmin() {
		schools := c.store.Query(ctx, school.Schools, nil, gateway.OrderBy(school.FieldName, api.Asc))

		c.m.Lock()
		defer c.m.Unlock()
		c.schools = schools
		if c.current == nil && len(schools) > 0 {
			c.current = schools[0]
		}
		return
	}

	schoolID, _ := profile[school.FieldSchoolID].(string)
	if schoolID == "" {
		return
	}
	rec, ok := c.store.Get(ctx, school.Schools, schoolID)
	if !ok {
		return
	}

	c.m.Lock()
	defer c.m.Unlock()
	c.schools = []api.Record{rec}
	c.current = rec
}

// SwitchSchool makes id the current school if it exists.
func (c *SchoolContext) SwitchSchool(ctx context.Context, id string) bool {
	rec, ok := c.store.Get(ctx, school.Schools, id)
	if !ok {
		return false
	}
	c.m.Lock()
	c.current = rec
	c.m.Unlock()
	return true
}

func (c *SchoolContext) Current() api.Record {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.current
}

func (c *SchoolContext) Schools() []api.Record {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.schools
}

// MultiSchool reports whether the user may switch schools.
func (c *SchoolContext) MultiSchool() bool {
	return c.session.IsSuperAdmin()
}

func (c *SchoolContext) Close() {
	if c.unsubscribe != nil {
		c.unsubscribe()
	}
}
