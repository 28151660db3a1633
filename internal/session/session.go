// Package session holds per-connection state and the local half of the
// room lattice (which sids on *this* instance belong to which room).
// Cross-instance delivery is the KV store's pub/sub's job; this store only
// ever answers "who is connected to me".
package session

import (
	"sync"

	"github.com/classroomlive/classroomd/internal/authclient"
	"github.com/classroomlive/classroomd/internal/rooms"
)

// Session is one connection's state.
type Session struct {
	SID           string
	Principal     authclient.Principal
	IsAdmin       bool // X-API-KEY monitor connections: no participant identity
	CourseID      int64
	LessonID      int64
	ParticipantID int64
	Nickname      string
	InLesson      bool
	TimeDiffMs    int64 // estimated clock offset, set by the TIME_SYNC exchange

	mu sync.RWMutex
	// rooms[t] is join-ordered (oldest first) so enforceSessionRoomLimit
	// can evict the true oldest membership rather than an arbitrary one;
	// a map would lose that order.
	rooms map[rooms.Type][]string
}

func newSession(sid string, principal authclient.Principal) *Session {
	return &Session{
		SID:       sid,
		Principal: principal,
		rooms:     make(map[rooms.Type][]string),
	}
}

// Rooms returns the join-ordered room names of type t this session
// currently belongs to.
func (s *Session) Rooms(t rooms.Type) []string {
	return s.roomNames(t)
}

func (s *Session) roomNames(t rooms.Type) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.rooms[t]))
	copy(out, s.rooms[t])
	return out
}

func (s *Session) addRoom(t rooms.Type, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.rooms[t] {
		if n == name {
			return
		}
	}
	s.rooms[t] = append(s.rooms[t], name)
}

func (s *Session) removeRoom(t rooms.Type, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := s.rooms[t]
	for i, n := range names {
		if n == name {
			s.rooms[t] = append(names[:i], names[i+1:]...)
			return
		}
	}
}

// Store is the process-wide registry of local sessions and their room
// memberships.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	// membership[roomType][roomName] is an ordered set of sids, used for
	// enterRoom's capacity-based eviction (oldest first) and for
	// GetAnySID's "any one sid" lookup.
	membership map[rooms.Type]map[string][]string
}

// New builds an empty session store.
func New() *Store {
	return &Store{
		sessions:   make(map[string]*Session),
		membership: make(map[rooms.Type]map[string][]string),
	}
}

// Create registers a new session for sid.
func (st *Store) Create(sid string, principal authclient.Principal) *Session {
	s := newSession(sid, principal)
	st.mu.Lock()
	st.sessions[sid] = s
	st.mu.Unlock()
	return s
}

// Get returns the session for sid, or nil if it is not (or no longer)
// connected to this instance.
func (st *Store) Get(sid string) *Session {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.sessions[sid]
}

// Remove deregisters sid and evicts it from every room it had joined,
// called on disconnect.
func (st *Store) Remove(sid string) *Session {
	st.mu.Lock()
	s := st.sessions[sid]
	delete(st.sessions, sid)
	st.mu.Unlock()
	if s == nil {
		return nil
	}
	for t, names := range snapshotRooms(s) {
		for _, name := range names {
			st.ExitRoom(sid, t, name)
		}
	}
	return s
}

func snapshotRooms(s *Session) map[rooms.Type][]string {
	out := make(map[rooms.Type][]string)
	for _, t := range []rooms.Type{rooms.Lesson, rooms.PersonalPtc, rooms.SubsPtc, rooms.WSMonitor} {
		if names := s.roomNames(t); len(names) > 0 {
			out[t] = names
		}
	}
	return out
}

// EnterRoom adds sid to (type,name). If limit > 0 and this sid already
// holds limit rooms of that type, its oldest memberships of the type are
// evicted first. Idempotent. Returns the names of any rooms evicted as a
// side effect, so a caller tracking live subscriptions (internal/
// dispatcher) can tear them down.
func (st *Store) EnterRoom(sid string, t rooms.Type, name string, limit int) (evicted []string) {
	s := st.Get(sid)
	if s == nil {
		return nil
	}

	st.mu.Lock()
	roomsOfType, ok := st.membership[t]
	if !ok {
		roomsOfType = make(map[string][]string)
		st.membership[t] = roomsOfType
	}
	members := roomsOfType[name]
	for _, m := range members {
		if m == sid {
			st.mu.Unlock()
			return nil
		}
	}
	roomsOfType[name] = append(members, sid)
	st.mu.Unlock()

	s.addRoom(t, name)

	if limit > 0 {
		return st.enforceSessionRoomLimit(sid, t, limit)
	}
	return nil
}

// enforceSessionRoomLimit evicts sid's oldest memberships of type t beyond
// limit, oldest-joined first, and returns the evicted room names.
func (st *Store) enforceSessionRoomLimit(sid string, t rooms.Type, limit int) (evicted []string) {
	s := st.Get(sid)
	if s == nil {
		return nil
	}
	names := s.roomNames(t)

	for len(names) > limit {
		oldest := names[0]
		names = names[1:]
		st.ExitRoom(sid, t, oldest)
		evicted = append(evicted, oldest)
	}
	return evicted
}

// ExitRoom removes sid from (type,name). Idempotent.
func (st *Store) ExitRoom(sid string, t rooms.Type, name string) {
	s := st.Get(sid)
	if s != nil {
		s.removeRoom(t, name)
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	roomsOfType, ok := st.membership[t]
	if !ok {
		return
	}
	members := roomsOfType[name]
	for i, m := range members {
		if m == sid {
			roomsOfType[name] = append(members[:i], members[i+1:]...)
			break
		}
	}
	if len(roomsOfType[name]) == 0 {
		delete(roomsOfType, name)
	}
}

// Members returns every sid currently in (type,name) on this instance.
func (st *Store) Members(t rooms.Type, name string) []string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	members := st.membership[t][name]
	out := make([]string, len(members))
	copy(out, members)
	return out
}

// GetAnySID returns one sid in (type,name), or "" if nobody on this
// instance is a member; absence means offline from this instance's point
// of view; the participant may still be connected elsewhere.
func (st *Store) GetAnySID(t rooms.Type, name string) string {
	st.mu.RLock()
	defer st.mu.RUnlock()
	members := st.membership[t][name]
	if len(members) == 0 {
		return ""
	}
	return members[0]
}

// InRoom reports whether sid is currently a member of (type,name).
func (st *Store) InRoom(sid string, t rooms.Type, name string) bool {
	s := st.Get(sid)
	if s == nil {
		return false
	}
	for _, n := range s.roomNames(t) {
		if n == name {
			return true
		}
	}
	return false
}
