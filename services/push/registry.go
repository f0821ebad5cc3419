package pushsvc

import (
	"sync"

	"github.com/trezcool/shule/core"
)

// Conn is the slice of a duplex connection the registry needs. It keeps the
// registry independent of the websocket library.
type Conn interface {
	WriteJSON(v interface{}) error
	Close() error
}

// event is the frame pushed to an open connection.
type event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// session pairs a registered connection with its write lock. The websocket
// library allows at most one writer per connection and Dispatch runs on
// arbitrary request goroutines, so every write and close goes through the
// lock.
type session struct {
	mu   sync.Mutex
	conn Conn
}

func (s *session) writeJSON(v interface{}) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteJSON(v)
}

func (s *session) close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.Close()
}

// Registry maps a user id to their open connection and pushes best-effort
// notifications to it. It is process-local: a restart loses all presence,
// durable state stays in the stores. A second connection for the same user
// replaces the first (last session wins).
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*session
	logger core.Logger
}

var _ core.PushService = (*Registry)(nil)

func NewRegistry(logger core.Logger) *Registry {
	return &Registry{
		conns:  make(map[string]*session),
		logger: logger,
	}
}

// Connect registers conn as userID's connection, replacing and closing any
// previous one.
func (r *Registry) Connect(userID string, conn Conn) {
	r.mu.Lock()
	prev := r.conns[userID]
	r.conns[userID] = &session{conn: conn}
	r.mu.Unlock()

	if prev != nil && prev.conn != conn {
		_ = prev.close()
	}
}

// Disconnect removes conn if it is still userID's registered connection.
// Matching on the connection identity keeps the close of a stale session from
// evicting a newer one.
func (r *Registry) Disconnect(userID string, conn Conn) {
	r.mu.Lock()
	if sess := r.conns[userID]; sess != nil && sess.conn == conn {
		delete(r.conns, userID)
	}
	r.mu.Unlock()
}

// Dispatch pushes {type, data} to userID's connection if one is open.
// Fire-and-forget: an absent or failing connection is a silent no-op, the
// durable record remains retrievable by polling.
func (r *Registry) Dispatch(userID, eventType string, data interface{}) {
	r.mu.RLock()
	sess, ok := r.conns[userID]
	r.mu.RUnlock()
	if !ok {
		return
	}
	if err := sess.writeJSON(event{Type: eventType, Data: data}); err != nil {
		r.logger.Debug("push: dropping dead connection", map[string]interface{}{"user": userID})
		r.Disconnect(userID, sess.conn)
		_ = sess.close()
	}
}

func (r *Registry) IsConnected(userID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.conns[userID]
	return ok
}

// Shutdown closes every open connection and empties the registry.
func (r *Registry) Shutdown() {
	r.mu.Lock()
	for id, sess := range r.conns {
		_ = sess.close()
		delete(r.conns, id)
	}
	r.mu.Unlock()
}
