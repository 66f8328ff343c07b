package store

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/app"
	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/config"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/handle"
)

// Env is the conversion and ownership context stores are opened in.
type Env struct {
	eng         capi.Engine
	reg         *convert.Registry
	tracker     *handle.Tracker
	log         *zap.Logger
	consistency func(error)
	generation  atomic.Uint64
}

// Option configures an Env.
type Option func(*Env)

// WithLogger sets the logger. Handle lifecycle events are logged at debug
// level.
func WithLogger(l *zap.Logger) Option {
	return func(e *Env) { e.log = l }
}

// WithRegistry replaces the default converter registry.
func WithRegistry(r *convert.Registry) Option {
	return func(e *Env) { e.reg = r }
}

// WithConsistencyHandler sets what happens when a change set fails
// validation in a notification. The default logs and panics.
func WithConsistencyHandler(fn func(error)) Option {
	return func(e *Env) { e.consistency = fn }
}

// NewEnv creates an environment over eng.
func NewEnv(eng capi.Engine, opts ...Option) *Env {
	e := &Env{eng: eng, tracker: handle.NewTracker()}
	for _, opt := range opts {
		opt(e)
	}
	if e.reg == nil {
		e.reg = convert.NewRegistry()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	if e.consistency == nil {
		e.consistency = func(err error) {
			e.log.Error("change set consistency violation", zap.Error(err))
			panic(err)
		}
	}
	e.tracker.Subscribe(handle.ObserverFunc(func(ev handle.Event) {
		e.log.Debug("handle "+ev.Type.String(),
			zap.Stringer("kind", ev.Kind),
			zap.Uint32("slot", uint32(ev.Slot)),
			zap.String("path", ev.Path))
	}))
	return e
}

func (e *Env) Registry() *convert.Registry { return e.reg }
func (e *Env) Tracker() *handle.Tracker    { return e.tracker }
func (e *Env) Logger() *zap.Logger         { return e.log }

// OpenOption configures a single open.
type OpenOption func(*openOptions)

type openOptions struct {
	user *app.User
}

// WithUser opens synced storage as user. The caller keeps ownership.
func WithUser(u *app.User) OpenOption {
	return func(o *openOptions) { o.user = u }
}

// Open opens storage synchronously on the calling goroutine. Opening may
// be slow: the engine loads the file before returning. When cfg has sync
// settings and no user is given, Open logs in first and the store owns
// that user.
func (e *Env) Open(ctx context.Context, cfg *config.Config, opts ...OpenOption) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.PhaseOpen, errors.KindCancelled, err, "open "+cfg.Path)
	}
	var o openOptions
	for _, opt := range opts {
		opt(&o)
	}

	s := e.newStore(cfg)
	native := cfg.Native(s.sched)
	if err := s.attachUser(ctx, native, o.user); err != nil {
		s.abort()
		return nil, err
	}

	ptr, err := e.eng.Open(native)
	if err != nil {
		s.abort()
		return nil, err
	}
	if err := s.adoptRealm(ptr); err != nil {
		s.abort()
		return nil, err
	}
	e.log.Info("storage opened",
		zap.String("path", cfg.Path),
		zap.Uint64("generation", s.generation))
	return s, nil
}

// DeleteFiles removes the storage files at path. It is refused while any
// handle on the path is still live.
func (e *Env) DeleteFiles(path string) (bool, error) {
	if n := e.tracker.InUse(path); n > 0 {
		return false, errors.ResourceInUse(path, n)
	}
	existed, err := e.eng.DeleteFiles(path)
	if err != nil {
		return false, err
	}
	e.log.Debug("storage files deleted", zap.String("path", path), zap.Bool("existed", existed))
	return existed, nil
}

// App returns the app with the given id.
func (e *Env) App(id string) (*app.App, error) {
	return app.Get(e.eng, id, app.WithTracker(e.tracker))
}

func (e *Env) newStore(cfg *config.Config) *Store {
	looper := bridge.NewLooper("store " + cfg.Path)
	looper.Start(context.Background())

	s := &Store{
		env:        e,
		cfg:        cfg,
		looper:     looper,
		generation: e.generation.Add(1),
		classes:    make(map[string]*class),
	}
	s.sched = bridge.NewScheduler(looper, e.eng)
	return s
}
