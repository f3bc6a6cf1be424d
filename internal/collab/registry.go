package collab

import (
	"sort"
	"sync"
	"time"
)

// Member is one connected identity within a project session.
type Member struct {
	ProjectID    string
	Identity     Identity
	Conn         Conn
	ConnectedAt  time.Time
	LastActivity time.Time
}

// Registry maps project id to its connected members. A project exists only
// while at least one member is registered under it.
type Registry struct {
	mu       sync.RWMutex
	projects map[string]map[string]*Member
	now      func() time.Time
}

func NewRegistry() *Registry {
	return &Registry{
		projects: make(map[string]map[string]*Member),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Register inserts or replaces the member's slot. When a different
// connection already held the slot it is returned so the caller can close it.
func (r *Registry) Register(projectID string, identity Identity, conn Conn) (time.Time, Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.projects[projectID]
	if !ok {
		members = make(map[string]*Member)
		r.projects[projectID] = members
	}

	var superseded Conn
	if prev, ok := members[identity.ID]; ok && prev.Conn != conn {
		superseded = prev.Conn
	}

	now := r.now()
	members[identity.ID] = &Member{
		ProjectID:    projectID,
		Identity:     identity,
		Conn:         conn,
		ConnectedAt:  now,
		LastActivity: now,
	}
	return now, superseded
}

// Deregister removes the member regardless of which connection holds the
// slot. The second call for the same member reports false.
func (r *Registry) Deregister(projectID, memberID string) (Identity, bool) {
	return r.deregister(projectID, memberID, nil)
}

// DeregisterConn removes the member only while the slot still belongs to
// conn, so a superseded connection cannot evict its replacement.
func (r *Registry) DeregisterConn(projectID, memberID string, conn Conn) (Identity, bool) {
	if conn == nil {
		return Identity{}, false
	}
	return r.deregister(projectID, memberID, conn)
}

func (r *Registry) deregister(projectID, memberID string, conn Conn) (Identity, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	members, ok := r.projects[projectID]
	if !ok {
		return Identity{}, false
	}
	member, ok := members[memberID]
	if !ok || (conn != nil && member.Conn != conn) {
		return Identity{}, false
	}
	delete(members, memberID)
	if len(members) == 0 {
		delete(r.projects, projectID)
	}
	return member.Identity, true
}

func (r *Registry) Touch(projectID, memberID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if member, ok := r.projects[projectID][memberID]; ok {
		member.LastActivity = r.now()
	}
}

// Members returns a point-in-time copy of a project's members ordered by
// connect time, leaving out exclude when it is non-empty.
func (r *Registry) Members(projectID, exclude string) []Member {
	r.mu.RLock()
	members := r.projects[projectID]
	out := make([]Member, 0, len(members))
	for id, member := range members {
		if exclude != "" && id == exclude {
			continue
		}
		out = append(out, *member)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ConnectedAt.Before(out[j].ConnectedAt)
		}
		return out[i].Identity.ID < out[j].Identity.ID
	})
	return out
}

func (r *Registry) MemberConn(projectID, memberID string) (Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	member, ok := r.projects[projectID][memberID]
	if !ok {
		return nil, false
	}
	return member.Conn, true
}

func (r *Registry) MemberCount(projectID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects[projectID])
}

func (r *Registry) ProjectCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.projects)
}

// Close sends going-away to every live connection. Each gateway then runs
// its own deregistration as its read loop ends.
func (r *Registry) Close() {
	r.mu.RLock()
	conns := make([]Conn, 0)
	for _, members := range r.projects {
		for _, member := range members {
			conns = append(conns, member.Conn)
		}
	}
	r.mu.RUnlock()

	for _, conn := range conns {
		_ = conn.Close(CloseGoingAway, "server shutting down")
	}
}
