package session

import "sync"

// Store is the broker-wide session registry, keyed by client-id
// (spec §4.5, C5). Generalizes the teacher's *Server.activeConn map
// (keyed by live connection, discarded on disconnect) into one that
// can retain a session across a clean_session=false reconnect.
type Store struct {
	mu       sync.Mutex
	sessions map[string]*Session
}

func NewStore() *Store {
	return &Store{sessions: make(map[string]*Session)}
}

// GetOrCreate returns the session for clientID. If clean requests a
// fresh session, any existing one is discarded first; otherwise an
// existing session is resumed and sessionPresent reports true (spec
// §4.8 WaitConnect).
func (st *Store) GetOrCreate(clientID string, clean bool) (sess *Session, sessionPresent bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if existing, ok := st.sessions[clientID]; ok {
		if clean {
			delete(st.sessions, clientID)
		} else {
			return existing, true
		}
	}
	sess = newSession(clientID, clean)
	st.sessions[clientID] = sess
	return sess, false
}

// Take removes and returns the session for clientID, used when a
// clean_session=true connection closes (spec §4.8 Closing).
func (st *Store) Take(clientID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[clientID]
	if ok {
		delete(st.sessions, clientID)
	}
	return sess, ok
}

// Retain keeps sess in the registry for later resumption
// (clean_session=false).
func (st *Store) Retain(sess *Session) {
	st.mu.Lock()
	defer st.mu.Unlock()
	st.sessions[sess.ClientID] = sess
}

func (st *Store) Get(clientID string) (*Session, bool) {
	st.mu.Lock()
	defer st.mu.Unlock()
	sess, ok := st.sessions[clientID]
	return sess, ok
}

func (st *Store) AddSubscription(clientID string, sub Subscription) {
	sess, ok := st.Get(clientID)
	if !ok {
		return
	}
	sess.mu.Lock()
	sess.subs[sub.Filter] = sub
	sess.mu.Unlock()
}

func (st *Store) RemoveSubscription(clientID, filter string) {
	sess, ok := st.Get(clientID)
	if !ok {
		return
	}
	sess.mu.Lock()
	delete(sess.subs, filter)
	sess.mu.Unlock()
}

// Enqueue delivers item to clientID's outbound queue, reporting false
// if the session no longer exists.
func (st *Store) Enqueue(clientID string, item OutboundItem) bool {
	sess, ok := st.Get(clientID)
	if !ok {
		return false
	}
	sess.Enqueue(item)
	return true
}

func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return len(st.sessions)
}

// Range iterates a snapshot of all sessions. fn returning false stops
// iteration early.
func (st *Store) Range(fn func(*Session) bool) {
	st.mu.Lock()
	sessions := make([]*Session, 0, len(st.sessions))
	for _, s := range st.sessions {
		sessions = append(sessions, s)
	}
	st.mu.Unlock()
	for _, s := range sessions {
		if !fn(s) {
			return
		}
	}
}
