package core

import (
	"context"
	"errors"
	"log"
	"strings"
	"sync"
)

// Durable slot names.
const (
	SlotName  = "name"
	SlotEmail = "email"
	SlotToken = "token"
)

// ErrIncompleteSession is returned when a login payload misses its name, email or token.
var ErrIncompleteSession = errors.New("login payload is missing name, email or token")

// Session is the authentication state of one browser (or one terminal profile).
// The zero value is the anonymous session.
type Session struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Token string `json:"-"`
}

// Authenticated reports whether all three fields are set.
func (s Session) Authenticated() bool {
	return s.Name != "" && s.Email != "" && s.Token != ""
}

// Initial returns the upper-cased first letter of the name, used for the avatar.
func (s Session) Initial() string {
	name := strings.TrimSpace(s.Name)
	if name == "" {
		return ""
	}
	r := []rune(name)
	return strings.ToUpper(string(r[0]))
}

// TransitionKind enumerates session state changes.
type TransitionKind int

const (
	LoginStart TransitionKind = iota + 1
	LoginSuccess
	Logout
)

func (k TransitionKind) String() string {
	switch k {
	case LoginStart:
		return "LOGIN_START"
	case LoginSuccess:
		return "LOGIN_SUCCESS"
	case Logout:
		return "LOGOUT"
	default:
		return "UNKNOWN"
	}
}

// Transition is a request to change the session. Payload is only read by LoginSuccess.
type Transition struct {
	Kind    TransitionKind
	Payload Session
}

// SlotStore is the durable mirror: independent string slots keyed by name.
// Get reports ok=false for an absent slot.
type SlotStore interface {
	Get(ctx context.Context, key string) (value string, ok bool, err error)
	Set(ctx context.Context, key, value string) error
	Delete(ctx context.Context, key string) error
}

// SlotFlusher is implemented by slot stores that buffer writes (the cookie
// store emits one Set-Cookie per flush rather than one per slot).
type SlotFlusher interface {
	Flush(ctx context.Context) error
}

// SessionStore owns the in-memory session and writes every transition through
// to its SlotStore. It serializes access but does not queue transitions: the
// last Apply wins.
type SessionStore struct {
	mu      sync.RWMutex
	current Session
	slots   SlotStore
}

// NewSessionStore reconstructs the session from slots. If any of the three
// slots is absent or unreadable, the store starts anonymous.
func NewSessionStore(ctx context.Context, slots SlotStore) *SessionStore {
	s := &SessionStore{slots: slots}
	s.current = loadSession(ctx, slots)
	return s
}

func loadSession(ctx context.Context, slots SlotStore) Session {
	if slots == nil {
		return Session{}
	}
	var values [3]string
	for i, key := range []string{SlotName, SlotEmail, SlotToken} {
		v, ok, err := slots.Get(ctx, key)
		if err != nil {
			log.Printf("session load: slot=%s err=%v", key, err)
			return Session{}
		}
		if !ok || v == "" {
			return Session{}
		}
		values[i] = v
	}
	return Session{Name: values[0], Email: values[1], Token: values[2]}
}

// Current returns a copy of the live session.
func (s *SessionStore) Current() Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Token returns the bearer token of the live session, empty when anonymous.
func (s *SessionStore) Token() string {
	return s.Current().Token
}

// Apply performs a transition and returns the resulting session. The only
// error is ErrIncompleteSession, in which case the store is left anonymous.
func (s *SessionStore) Apply(ctx context.Context, t Transition) (Session, error) {
	var next Session
	var err error

	switch t.Kind {
	case LoginStart, Logout:
	case LoginSuccess:
		if t.Payload.Authenticated() {
			next = t.Payload
		} else {
			err = ErrIncompleteSession
		}
	default:
		return s.Current(), nil
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	s.mirror(ctx, t.Kind, next)
	return next, err
}

// mirror writes all three slots. Failures are logged and otherwise ignored:
// the in-memory session stays authoritative.
func (s *SessionStore) mirror(ctx context.Context, kind TransitionKind, sess Session) {
	if s.slots == nil {
		return
	}
	fields := [][2]string{{SlotName, sess.Name}, {SlotEmail, sess.Email}, {SlotToken, sess.Token}}
	for _, f := range fields {
		var err error
		if f[1] == "" {
			err = s.slots.Delete(ctx, f[0])
		} else {
			err = s.slots.Set(ctx, f[0], f[1])
		}
		if err != nil {
			log.Printf("session mirror write failed: transition=%s slot=%s err=%v", kind, f[0], err)
		}
	}
	if f, ok := s.slots.(SlotFlusher); ok {
		if err := f.Flush(ctx); err != nil {
			log.Printf("session mirror flush failed: transition=%s err=%v", kind, err)
		}
	}
}

// MemorySlots is a process-local SlotStore.
type MemorySlots struct {
	mu     sync.Mutex
	values map[string]string
}

func NewMemorySlots() *MemorySlots {
	return &MemorySlots{values: map[string]string{}}
}

func (m *MemorySlots) Get(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemorySlots) Set(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemorySlots) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}
