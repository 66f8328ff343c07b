package store

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/app"
	"github.com/wippyai/corebind/arena"
	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/config"
	"github.com/wippyai/corebind/convert"
	"github.com/wippyai/corebind/errors"
	"github.com/wippyai/corebind/handle"
	"github.com/wippyai/corebind/value"
)

// Store is one open storage instance. Every Store is its own generation:
// objects obtained from it can only be written into it, and must be
// resolved to be used with another Store.
type Store struct {
	env        *Env
	cfg        *config.Config
	realm      *handle.Handle
	looper     *bridge.Looper
	sched      *bridge.Scheduler
	user       *app.User
	classes    map[string]*class
	generation uint64
	mu         sync.Mutex
	closed     bool
}

type class struct {
	props map[string]capi.PropertyInfo
	names map[capi.PropKey]string
	info  capi.ClassInfo
	order []string
}

func (c *class) prop(name string) (capi.PropertyInfo, error) {
	p, ok := c.props[name]
	if !ok {
		return capi.PropertyInfo{}, errors.FieldUnknown(errors.PhaseConvert, []string{c.info.Name}, name)
	}
	return p, nil
}

func (s *Store) attachUser(ctx context.Context, native *capi.Config, user *app.User) error {
	if user == nil && s.cfg.Sync != nil {
		a, err := s.env.App(s.cfg.Sync.AppID)
		if err != nil {
			return err
		}
		defer a.Close()

		creds := capi.Credentials{
			Provider: s.cfg.Sync.Provider,
			Email:    s.cfg.Sync.Email,
			Password: s.cfg.Sync.Password,
		}
		if user, err = a.LogIn(ctx, creds); err != nil {
			return err
		}
		s.user = user
	}
	if user == nil {
		return nil
	}
	ptr, err := user.Ptr()
	if err != nil {
		return err
	}
	native.SyncUser = ptr
	return nil
}

func (s *Store) adoptRealm(ptr capi.Ptr) error {
	h, err := handle.New(s.env.eng, handle.KindRealm, ptr, s.handleOpts()...)
	if err != nil {
		return err
	}
	s.realm = h
	return nil
}

// abort undoes a partially opened store.
func (s *Store) abort() {
	s.looper.Stop()
	if s.user != nil {
		_ = s.user.Close()
	}
}

func (s *Store) handleOpts() []handle.Option {
	return []handle.Option{handle.WithTracker(s.env.tracker), handle.WithPath(s.cfg.Path)}
}

func (s *Store) wrap(kind handle.Kind, ptr capi.Ptr) (*handle.Handle, error) {
	return handle.New(s.env.eng, kind, ptr, s.handleOpts()...)
}

// Generation identifies this store for managed object checks.
func (s *Store) Generation() uint64 { return s.generation }

// Path returns the storage path.
func (s *Store) Path() string { return s.cfg.Path }

// Env returns the environment the store was opened in.
func (s *Store) Env() *Env { return s.env }

func (s *Store) ptr() (capi.Ptr, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return 0, errors.Closed(errors.PhaseOpen, "store "+s.cfg.Path)
	}
	return s.realm.Ptr()
}

// class returns the schema of a class, loading it on first use.
func (s *Store) class(name string) (*class, error) {
	s.mu.Lock()
	c, ok := s.classes[name]
	s.mu.Unlock()
	if ok {
		return c, nil
	}

	realm, err := s.ptr()
	if err != nil {
		return nil, err
	}
	info, found, err := s.env.eng.FindClass(realm, name)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound(errors.PhaseConvert, "class", name)
	}
	props, err := s.env.eng.ClassProperties(realm, info.Key)
	if err != nil {
		return nil, err
	}
	c = &class{
		info:  info,
		props: make(map[string]capi.PropertyInfo, len(props)),
		names: make(map[capi.PropKey]string, len(props)),
		order: make([]string, 0, len(props)),
	}
	for _, p := range props {
		c.props[p.Name] = p
		c.names[p.Key] = p.Name
		c.order = append(c.order, p.Name)
	}

	s.mu.Lock()
	s.classes[name] = c
	s.mu.Unlock()
	return c, nil
}

func (s *Store) classByKey(key capi.ClassKey) (*class, error) {
	s.mu.Lock()
	for _, c := range s.classes {
		if c.info.Key == key {
			s.mu.Unlock()
			return c, nil
		}
	}
	s.mu.Unlock()

	for _, cl := range s.cfg.Schema {
		c, err := s.class(cl.Name)
		if err != nil {
			return nil, err
		}
		if c.info.Key == key {
			return c, nil
		}
	}
	return nil, errors.NotFound(errors.PhaseConvert, "class", value.Link{Class: key}.String())
}

// Write runs fn in a write transaction. The transaction commits when fn
// returns nil and is rolled back when fn fails or panics.
func (s *Store) Write(ctx context.Context, fn func(*Txn) error) (err error) {
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.PhaseOpen, errors.KindCancelled, err, "write")
	}
	realm, err := s.ptr()
	if err != nil {
		return err
	}
	if err := s.env.eng.BeginWrite(realm); err != nil {
		return err
	}

	tx := &Txn{store: s, realm: realm}
	committed := false
	defer func() {
		cerr := tx.scope.Close()
		if !committed {
			if rerr := s.env.eng.CancelWrite(realm); rerr != nil {
				s.env.log.Warn("cancel write", zap.String("path", s.cfg.Path), zap.Error(rerr))
			}
		}
		if err == nil {
			err = cerr
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(errors.PhaseOpen, errors.KindCancelled, err, "write")
	}
	if err := s.env.eng.Commit(realm); err != nil {
		return err
	}
	committed = true
	return nil
}

// Find looks up an object by primary key.
func (s *Store) Find(className string, pk any) (*Object, bool, error) {
	realm, err := s.ptr()
	if err != nil {
		return nil, false, err
	}
	c, err := s.class(className)
	if err != nil {
		return nil, false, err
	}
	pkv, err := s.env.reg.ToValue(pk)
	if err != nil {
		return nil, false, err
	}

	var ptr capi.Ptr
	var found bool
	err = arena.WithScope(s.env.eng.Memory(), s.env.eng.Allocator(), func(a *arena.Arena) error {
		addr, err := a.NewValue(pkv)
		if err != nil {
			return err
		}
		ptr, found, err = s.env.eng.ObjectFind(realm, c.info.Key, addr)
		return err
	})
	if err != nil || !found {
		return nil, false, err
	}
	o, err := s.object(c, ptr)
	if err != nil {
		return nil, false, err
	}
	return o, true, nil
}

// Query evaluates a predicate over a class. Arguments are referenced as
// $0, $1, ... and may be scalars, slices (for IN) or objects of this store.
func (s *Store) Query(className, query string, args ...any) (*Results, error) {
	realm, err := s.ptr()
	if err != nil {
		return nil, err
	}
	c, err := s.class(className)
	if err != nil {
		return nil, err
	}
	qargs, err := convert.QueryArgs(convert.NewObjectConverter(s.env.reg, s.generation), args...)
	if err != nil {
		return nil, err
	}

	var ptr capi.Ptr
	err = arena.WithScope(s.env.eng.Memory(), s.env.eng.Allocator(), func(a *arena.Arena) error {
		addr, err := a.NewQueryArgs(qargs)
		if err != nil {
			return err
		}
		ptr, err = s.env.eng.Query(realm, c.info.Key, query, addr, len(qargs))
		return err
	})
	if err != nil {
		return nil, err
	}
	h, err := s.wrap(handle.KindResults, ptr)
	if err != nil {
		return nil, err
	}
	return &Results{store: s, h: h, class: c}, nil
}

// Resolve returns obj as an object of this store. It fails with NotFound
// when the object does not exist here.
func (s *Store) Resolve(obj *Object) (*Object, error) {
	realm, err := s.ptr()
	if err != nil {
		return nil, err
	}
	src, err := obj.h.Ptr()
	if err != nil {
		return nil, err
	}
	ptr, found, err := s.env.eng.ObjectResolveIn(src, realm)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, errors.NotFound(errors.PhaseHandle, "object", obj.Link().String())
	}
	c, err := s.class(obj.class.info.Name)
	if err != nil {
		s.env.eng.Release(ptr)
		return nil, err
	}
	return s.object(c, ptr)
}

// SyncSession returns the store's sync session. It reports false for
// local storage.
func (s *Store) SyncSession() (*app.Session, bool, error) {
	realm, err := s.ptr()
	if err != nil {
		return nil, false, err
	}
	ptr, ok, err := s.env.eng.SyncSession(realm)
	if err != nil || !ok {
		return nil, false, err
	}
	h, err := s.wrap(handle.KindSession, ptr)
	if err != nil {
		return nil, false, err
	}
	return app.NewSession(s.env.eng, h), true, nil
}

// Looper returns the execution context notifications run on.
func (s *Store) Looper() *bridge.Looper { return s.looper }

// Close closes the store. Objects and results obtained from it become
// invalid. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	err := s.realm.Release()
	s.looper.Stop()
	if s.user != nil {
		if uerr := s.user.Close(); err == nil {
			err = uerr
		}
	}
	s.env.log.Info("storage closed", zap.String("path", s.cfg.Path))
	return err
}

// decodeFailed handles a change set that could not be decoded inside a
// notification. Consistency violations go to the env's handler.
func (s *Store) decodeFailed(err error) {
	if errors.KindOf(err) == errors.KindConsistency {
		s.env.consistency(err)
		return
	}
	s.env.log.Error("decode change set", zap.String("path", s.cfg.Path), zap.Error(err))
}

func (s *Store) object(c *class, ptr capi.Ptr) (*Object, error) {
	_, key, err := s.env.eng.ObjectInfo(ptr)
	if err != nil {
		s.env.eng.Release(ptr)
		return nil, err
	}
	h, err := s.wrap(handle.KindObject, ptr)
	if err != nil {
		return nil, err
	}
	return &Object{store: s, h: h, class: c, key: key}, nil
}

// objectAt opens the object a link points to.
func (s *Store) objectAt(link value.Link) (*Object, error) {
	realm, err := s.ptr()
	if err != nil {
		return nil, err
	}
	c, err := s.classByKey(link.Class)
	if err != nil {
		return nil, err
	}
	ptr, err := s.env.eng.ObjectGet(realm, link.Class, link.Object)
	if err != nil {
		return nil, err
	}
	return s.object(c, ptr)
}
