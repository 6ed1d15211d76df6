package sessions

import (
	"sync"
	"time"

	"github.com/nextlevelbuilder/clawbox/internal/providers"
)

// Session stores in-memory conversation state for one conversation id.
// History does not survive process restarts.
type Session struct {
	ID       string              `json:"id"`
	Messages []providers.Message `json:"messages"`
	Created  time.Time           `json:"created"`
	Updated  time.Time           `json:"updated"`

	// ContainerID is a weak reference to the sandbox container last seen
	// serving this conversation. The sandbox manager owns the lifecycle;
	// this is display/log metadata only and may be stale or empty.
	ContainerID string `json:"container_id,omitempty"`
}

// Manager handles session lifecycle and lookup. All methods are safe for
// concurrent use; per-conversation request serialisation is the caller's
// job via Lock.
type Manager struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[string]*Session),
		locks:    make(map[string]*sync.Mutex),
	}
}

// Lock returns the mutex serialising requests for one conversation id,
// creating it on first use. Lookup-or-insert runs under a meta-mutex so two
// concurrent first requests cannot mint distinct mutexes for the same id.
// The returned mutex must not be acquired recursively.
func (m *Manager) Lock(conversationID string) *sync.Mutex {
	m.lockMu.Lock()
	defer m.lockMu.Unlock()
	l, ok := m.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		m.locks[conversationID] = l
	}
	return l
}

// GetOrCreate returns an existing session or creates an empty one.
func (m *Manager) GetOrCreate(conversationID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[conversationID]; ok {
		return s
	}
	s := &Session{
		ID:       conversationID,
		Messages: []providers.Message{},
		Created:  time.Now(),
		Updated:  time.Now(),
	}
	m.sessions[conversationID] = s
	return s
}

// AppendMessages appends messages to a session, creating it if needed.
func (m *Manager) AppendMessages(conversationID string, msgs ...providers.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[conversationID]
	if !ok {
		s = &Session{
			ID:       conversationID,
			Messages: []providers.Message{},
			Created:  time.Now(),
		}
		m.sessions[conversationID] = s
	}
	s.Messages = append(s.Messages, msgs...)
	s.Updated = time.Now()
}

// History returns a copy of the message history, nil for unknown ids.
func (m *Manager) History(conversationID string) []providers.Message {
	m.mu.RLock()
	defer m.mu.RUnlock()

	s, ok := m.sessions[conversationID]
	if !ok {
		return nil
	}
	msgs := make([]providers.Message, len(s.Messages))
	copy(msgs, s.Messages)
	return msgs
}

// SetContainerID records the container currently serving a conversation.
func (m *Manager) SetContainerID(conversationID, containerID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[conversationID]; ok {
		s.ContainerID = containerID
	}
}

// Delete drops a session entirely. Deleting an unknown id is a no-op.
func (m *Manager) Delete(conversationID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, conversationID)
}

// Info is a lightweight session descriptor for listing.
type Info struct {
	ID           string    `json:"id"`
	MessageCount int       `json:"message_count"`
	ContainerID  string    `json:"container_id,omitempty"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
}

// List returns descriptors for all live sessions.
func (m *Manager) List() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Info, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, Info{
			ID:           s.ID,
			MessageCount: len(s.Messages),
			ContainerID:  s.ContainerID,
			Created:      s.Created,
			Updated:      s.Updated,
		})
	}
	return out
}
