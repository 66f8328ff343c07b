package app

import (
	"context"

	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/handle"
)

// Engine is the native surface this package consumes.
type Engine interface {
	capi.Lifecycle
	capi.Apps
}

// Anonymous returns credentials for an anonymous login.
func Anonymous() capi.Credentials {
	return capi.Credentials{Provider: "anonymous"}
}

// EmailPassword returns email/password credentials.
func EmailPassword(email, password string) capi.Credentials {
	return capi.Credentials{Provider: "email", Email: email, Password: password}
}

// App is a handle to one configured app.
type App struct {
	eng     Engine
	h       *handle.Handle
	tracker *handle.Tracker
	id      string
}

// Option configures the handles created by this package.
type Option func(*App)

// WithTracker registers app, user and session handles in t.
func WithTracker(t *handle.Tracker) Option {
	return func(a *App) { a.tracker = t }
}

// Get looks up an app by id.
func Get(eng Engine, id string, opts ...Option) (*App, error) {
	a := &App{eng: eng, id: id}
	for _, opt := range opts {
		opt(a)
	}
	ptr, err := eng.AppGet(id)
	if err != nil {
		return nil, err
	}
	h, err := handle.New(eng, handle.KindApp, ptr, a.handleOpts()...)
	if err != nil {
		return nil, err
	}
	a.h = h
	return a, nil
}

func (a *App) handleOpts() []handle.Option {
	if a.tracker == nil {
		return nil
	}
	return []handle.Option{handle.WithTracker(a.tracker)}
}

func (a *App) ID() string { return a.id }

// LogIn authenticates and returns the user. If ctx ends first the login is
// abandoned; a user that arrives afterwards is released.
func (a *App) LogIn(ctx context.Context, creds capi.Credentials) (*User, error) {
	ptr, err := a.h.Ptr()
	if err != nil {
		return nil, err
	}

	done := bridge.NewCompletion[capi.Ptr]()
	done.OnDiscard(func(user capi.Ptr) {
		if user != 0 {
			a.eng.Release(user)
		}
	})
	if err := a.eng.AppLogIn(ptr, creds, func(user capi.Ptr, err error) {
		done.Complete(user, err)
	}); err != nil {
		return nil, err
	}

	user, err := done.Wait(ctx)
	if errors.KindOf(err) == errors.KindCancelled && !done.Cancel() {
		// settled between the timeout and the cancel
		user, err = done.Wait(context.Background())
	}
	if err != nil {
		return nil, err
	}
	h, err := handle.New(a.eng, handle.KindUser, user, a.handleOpts()...)
	if err != nil {
		return nil, err
	}
	return &User{eng: a.eng, h: h, app: a.id, provider: creds.Provider}, nil
}

// Close releases the app handle.
func (a *App) Close() error {
	return a.h.Release()
}

// User is a logged-in app user.
type User struct {
	eng      Engine
	h        *handle.Handle
	app      string
	provider string
}

// Identity returns the user's stable identity.
func (u *User) Identity() (string, error) {
	ptr, err := u.h.Ptr()
	if err != nil {
		return "", err
	}
	return u.eng.UserIdentity(ptr)
}

// Provider returns the login provider.
func (u *User) Provider() string { return u.provider }

// App returns the id of the app the user logged in to.
func (u *User) App() string { return u.app }

// Ptr returns the native user pointer, for opening synced storage.
func (u *User) Ptr() (capi.Ptr, error) { return u.h.Ptr() }

// Close releases the user handle.
func (u *User) Close() error {
	return u.h.Release()
}
