package chat

import (
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
)

// DefaultSessionTTL is how long an idle session survives before the next sweep removes it.
const DefaultSessionTTL = 30 * time.Minute

// ErrSessionNotFound is returned when an explicit session key is unknown or expired.
var ErrSessionNotFound = errors.New("session not found")

// Clock returns the current time.
type Clock func() time.Time

// Factory builds the conversation for a new session.
type Factory func() (Conversation, error)

// SessionEntry is one live session.
type SessionEntry struct {
	Key          string
	CreatedAt    time.Time
	LastAccess   time.Time
	Owner        string // empty when anonymous
	Conversation Conversation
}

// SessionStore is a keyed, TTL-bounded registry of live conversations.
//
// Eviction is lazy: expired entries are only removed when a new session is
// created. State is process-local.
type SessionStore struct {
	mu      sync.Mutex
	entries map[string]*SessionEntry
	ttl     time.Duration
	now     Clock
	newID   func() string
}

// NewSessionStore creates an empty store. A non-positive ttl selects
// DefaultSessionTTL and a nil clock selects time.Now.
func NewSessionStore(ttl time.Duration, clock Clock) *SessionStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &SessionStore{
		entries: make(map[string]*SessionEntry),
		ttl:     ttl,
		now:     clock,
		newID:   uuid.NewString,
	}
}

// CreateOrGet returns the conversation for key. With an empty key it sweeps
// expired sessions, mints a new "<category>-<id>" key and stores the
// conversation built by factory. With a non-empty key it refreshes and
// returns the stored conversation, or ErrSessionNotFound.
func (s *SessionStore) CreateOrGet(category, key, owner string, factory Factory) (string, Conversation, error) {
	if key != "" {
		s.mu.Lock()
		defer s.mu.Unlock()
		entry, ok := s.entries[key]
		if !ok {
			return "", nil, fmt.Errorf("%w: %s", ErrSessionNotFound, key)
		}
		entry.LastAccess = s.now()
		return entry.Key, entry.Conversation, nil
	}

	conv, err := factory()
	if err != nil {
		return "", nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.sweepLocked(now)

	newKey := fmt.Sprintf("%s-%s", category, s.newID())
	for {
		if _, taken := s.entries[newKey]; !taken {
			break
		}
		newKey = fmt.Sprintf("%s-%s", category, s.newID())
	}

	s.entries[newKey] = &SessionEntry{
		Key:          newKey,
		CreatedAt:    now,
		LastAccess:   now,
		Owner:        owner,
		Conversation: conv,
	}
	log.Printf("[SessionStore] Created session %s (live sessions: %d)", newKey, len(s.entries))
	return newKey, conv, nil
}

// sweepLocked removes entries idle for longer than the TTL. Must be called with mu held.
func (s *SessionStore) sweepLocked(now time.Time) {
	for key, entry := range s.entries {
		if now.Sub(entry.LastAccess) > s.ttl {
			delete(s.entries, key)
			log.Printf("[SessionStore] Evicted expired session %s", key)
		}
	}
}

// Delete removes a session. Deleting an unknown key is a no-op.
func (s *SessionStore) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// DumpText returns the session history as text when requestingOwner owns it.
// Otherwise it returns a "not found for this user" notice instead of failing.
func (s *SessionStore) DumpText(key, requestingOwner string) string {
	s.mu.Lock()
	entry, ok := s.entries[key]
	s.mu.Unlock()

	if !ok || entry.Owner != requestingOwner {
		return fmt.Sprintf("Session %s not found for this user", key)
	}
	return entry.Conversation.DumpText()
}

// Lookup returns a copy of the entry for key without refreshing it.
func (s *SessionStore) Lookup(key string) (SessionEntry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.entries[key]
	if !ok {
		return SessionEntry{}, false
	}
	return *entry, true
}

// Len returns the number of live entries, expired ones included until the next sweep.
func (s *SessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// TTL returns the configured idle timeout.
func (s *SessionStore) TTL() time.Duration {
	return s.ttl
}
