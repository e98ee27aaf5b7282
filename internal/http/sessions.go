package http

import (
	"container/list"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maverick250/aml-interactive-dashboard/internal/ingest"
)

// session is one analyst's loaded dataset. The dataset itself is
// immutable after upload; window changes only produce new summaries.
type session struct {
	ID        string
	Filename  string
	Dataset   *ingest.Dataset
	MinDate   time.Time
	MaxDate   time.Time
	CreatedAt time.Time

	// currentSnapshot identifies the window state most recently
	// rendered for this session; narrative results generated for an
	// older snapshot are discarded as stale.
	mu              sync.Mutex
	currentSnapshot string
}

// SetSnapshot records the snapshot the dashboard currently displays.
func (s *session) SetSnapshot(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.currentSnapshot = id
}

// Snapshot returns the currently displayed snapshot ID.
func (s *session) Snapshot() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentSnapshot
}

// sessionStore holds sessions in memory with TTL and LRU eviction, so
// an abandoned upload eventually disappears along with its data.
type sessionStore struct {
	mu      sync.Mutex
	maxSize int
	ttl     time.Duration
	items   map[string]*list.Element
	lru     *list.List
}

type sessionEntry struct {
	key       string
	sess      *session
	expiresAt time.Time
}

func newSessionStore(maxSize int, ttl time.Duration) *sessionStore {
	return &sessionStore{
		maxSize: maxSize,
		ttl:     ttl,
		items:   make(map[string]*list.Element),
		lru:     list.New(),
	}
}

// Add registers a new session for the dataset and returns it.
func (s *sessionStore) Add(filename string, ds *ingest.Dataset) *session {
	sess := &session{
		ID:        uuid.NewString(),
		Filename:  filename,
		Dataset:   ds,
		CreatedAt: time.Now(),
	}
	for _, tx := range ds.Rows {
		if sess.MinDate.IsZero() || tx.Timestamp.Before(sess.MinDate) {
			sess.MinDate = tx.Timestamp
		}
		if tx.Timestamp.After(sess.MaxDate) {
			sess.MaxDate = tx.Timestamp
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	elem := s.lru.PushFront(&sessionEntry{
		key:       sess.ID,
		sess:      sess,
		expiresAt: time.Now().Add(s.ttl),
	})
	s.items[sess.ID] = elem

	if s.lru.Len() > s.maxSize {
		if oldest := s.lru.Back(); oldest != nil {
			s.removeElement(oldest)
		}
	}
	return sess
}

// Get returns the session and refreshes its TTL and LRU position.
func (s *sessionStore) Get(id string) (*session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	elem, exists := s.items[id]
	if !exists {
		return nil, false
	}

	entry := elem.Value.(*sessionEntry)
	if time.Now().After(entry.expiresAt) {
		s.removeElement(elem)
		return nil, false
	}

	entry.expiresAt = time.Now().Add(s.ttl)
	s.lru.MoveToFront(elem)
	return entry.sess, true
}

func (s *sessionStore) Delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if elem, exists := s.items[id]; exists {
		s.removeElement(elem)
	}
}

func (s *sessionStore) removeElement(elem *list.Element) {
	entry := elem.Value.(*sessionEntry)
	delete(s.items, entry.key)
	s.lru.Remove(elem)
}

// CleanExpired removes all expired sessions, returning how many.
func (s *sessionStore) CleanExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	var toRemove []*list.Element
	for elem := s.lru.Front(); elem != nil; elem = elem.Next() {
		if now.After(elem.Value.(*sessionEntry).expiresAt) {
			toRemove = append(toRemove, elem)
		}
	}
	for _, elem := range toRemove {
		s.removeElement(elem)
	}
	return len(toRemove)
}

func (s *sessionStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}
