package memcore

import (
	"sync"

	"github.com/google/uuid"

	"github.com/wippyai/corebind/capi"
)

type appState struct {
	users map[string]string
	id    string
}

type userState struct {
	app      *appState
	identity string
	provider string
}

type sessionState struct {
	realm      *realm
	listeners  map[uint64]capi.ConnectionStateCallback
	nextID     uint64
	state      capi.ConnectionState
	mu         sync.Mutex
	connecting bool
}

func (e *Engine) AppGet(id string) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	app, ok := e.apps[id]
	if !ok {
		return 0, nativeErr(CategoryAuth, CodeNoSuchApp, "no app "+id)
	}
	return e.put(app), nil
}

// AppLogIn authenticates on an engine goroutine and reports through cb.
func (e *Engine) AppLogIn(p capi.Ptr, creds capi.Credentials, cb capi.UserCallback) error {
	e.mu.Lock()
	app, err := resolve[*appState](e, p)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	go func() {
		var identity string
		switch creds.Provider {
		case "anonymous":
			identity = uuid.NewString()
		case "email":
			want, ok := app.users[creds.Email]
			if !ok || want != creds.Password {
				cb(0, nativeErr(CategoryAuth, CodeBadCredentials, "invalid username/password"))
				return
			}
			identity = uuid.NewSHA1(uuid.NameSpaceURL, []byte(app.id+"/"+creds.Email)).String()
		default:
			cb(0, nativeErr(CategoryAuth, CodeBadCredentials, "unsupported provider "+creds.Provider))
			return
		}

		e.mu.Lock()
		user := e.put(&userState{app: app, identity: identity, provider: creds.Provider})
		e.mu.Unlock()
		cb(user, nil)
	}()
	return nil
}

func (e *Engine) UserIdentity(p capi.Ptr) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	u, err := resolve[*userState](e, p)
	if err != nil {
		return "", err
	}
	return u.identity, nil
}

// SyncSession returns the session of a realm opened with a sync user.
func (e *Engine) SyncSession(p capi.Ptr) (capi.Ptr, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return 0, false, err
	}
	if r.user == nil {
		return 0, false, nil
	}
	if r.session == nil {
		r.session = &sessionState{
			realm:     r,
			listeners: make(map[uint64]capi.ConnectionStateCallback),
		}
	}
	return e.put(r.session), true, nil
}

// SessionWaitForUpload reports on an engine goroutine once local changes
// are uploaded.
func (e *Engine) SessionWaitForUpload(p capi.Ptr, cb capi.ErrorCallback) error {
	e.mu.Lock()
	s, err := resolve[*sessionState](e, p)
	e.mu.Unlock()
	if err != nil {
		return err
	}

	go func() {
		e.mu.Lock()
		closed := s.realm.closed
		e.mu.Unlock()
		if closed {
			cb(nativeErr(CategorySession, CodeClosed, "session realm is closed"))
			return
		}
		cb(nil)
	}()
	return nil
}

// SessionRegisterConnectionState registers cb. The first registration on a
// disconnected session starts connecting.
func (e *Engine) SessionRegisterConnectionState(p capi.Ptr, cb capi.ConnectionStateCallback) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	s, err := resolve[*sessionState](e, p)
	if err != nil {
		return 0, err
	}

	s.mu.Lock()
	s.nextID++
	id := s.nextID
	s.listeners[id] = cb
	start := s.state == capi.ConnectionDisconnected && !s.connecting
	s.connecting = s.connecting || start
	s.mu.Unlock()

	if start {
		go s.connect()
	}
	return e.put(&token{remove: func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}}), nil
}

func (s *sessionState) connect() {
	for _, next := range []capi.ConnectionState{capi.ConnectionConnecting, capi.ConnectionConnected} {
		s.mu.Lock()
		old := s.state
		s.state = next
		cbs := make([]capi.ConnectionStateCallback, 0, len(s.listeners))
		for id := uint64(1); id <= s.nextID; id++ {
			if cb, ok := s.listeners[id]; ok {
				cbs = append(cbs, cb)
			}
		}
		s.mu.Unlock()

		for _, cb := range cbs {
			cb(old, next)
		}
	}
	s.mu.Lock()
	s.connecting = false
	s.mu.Unlock()
}
