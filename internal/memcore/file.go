package memcore

import (
	"os"
	"sort"

	"go.uber.org/zap"

	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/value"
)

type classDef struct {
	info  capi.ClassInfo
	props []capi.PropertyInfo
}

func (c *classDef) prop(key capi.PropKey) (capi.PropertyInfo, bool) {
	for _, p := range c.props {
		if p.Key == key {
			return p, true
		}
	}
	return capi.PropertyInfo{}, false
}

func (c *classDef) propNamed(name string) (capi.PropertyInfo, bool) {
	for _, p := range c.props {
		if p.Name == name {
			return p, true
		}
	}
	return capi.PropertyInfo{}, false
}

type row map[capi.PropKey]value.Value

type table struct {
	rows    map[capi.ObjKey]row
	nextKey capi.ObjKey
}

func newTable() *table {
	return &table{rows: make(map[capi.ObjKey]row)}
}

func (t *table) clone() *table {
	out := &table{rows: make(map[capi.ObjKey]row, len(t.rows)), nextKey: t.nextKey}
	for k, r := range t.rows {
		cp := make(row, len(r))
		for p, v := range r {
			cp[p] = v
		}
		out.rows[k] = cp
	}
	return out
}

// keys returns object keys in ascending order.
func (t *table) keys() []capi.ObjKey {
	out := make([]capi.ObjKey, 0, len(t.rows))
	for k := range t.rows {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// file is the shared state of one storage path. Every realm opened on the
// path sees the same file.
type file struct {
	store     *sqlStore
	classes   []*classDef
	tables    map[capi.ClassKey]*table
	listeners map[uint64]*listener
	path      string
	version   uint64
	nextID    uint64
	realms    int
	inMemory  bool
	writer    *realm
}

func newFile(path string) *file {
	return &file{
		path:      path,
		tables:    make(map[capi.ClassKey]*table),
		listeners: make(map[uint64]*listener),
	}
}

func (f *file) class(key capi.ClassKey) (*classDef, bool) {
	for _, c := range f.classes {
		if c.info.Key == key {
			return c, true
		}
	}
	return nil, false
}

func (f *file) classNamed(name string) (*classDef, bool) {
	for _, c := range f.classes {
		if c.info.Name == name {
			return c, true
		}
	}
	return nil, false
}

// applySchema merges the declared schema into the file. New classes and
// properties are added; a property redeclared with another type is a
// schema mismatch.
func (f *file) applySchema(schema []capi.ClassSchema, version uint64) ([]*classDef, error) {
	var added []*classDef
	for _, cs := range schema {
		existing, ok := f.classNamed(cs.Class.Name)
		if !ok {
			def := &classDef{info: cs.Class}
			def.info.Key = capi.ClassKey(len(f.classes) + 1)
			f.classes = append(f.classes, def)
			f.tables[def.info.Key] = newTable()
			existing = def
			added = append(added, def)
		} else if existing.info.PrimaryKey != cs.Class.PrimaryKey {
			return nil, nativeErr(CategorySchema, CodeSchemaMismatch,
				"primary key of "+cs.Class.Name+" changed")
		}
		for _, p := range cs.Properties {
			if cur, ok := existing.propNamed(p.Name); ok {
				if cur.Type != p.Type || cur.LinkTarget != p.LinkTarget {
					return nil, nativeErr(CategorySchema, CodeSchemaMismatch,
						"property "+cs.Class.Name+"."+p.Name+" changed type")
				}
				continue
			}
			p.Key = capi.PropKey(int64(existing.info.Key)<<32 | int64(len(existing.props)+1))
			existing.props = append(existing.props, p)
			if !containsDef(added, existing) {
				added = append(added, existing)
			}
		}
		existing.info.NumProperties = len(existing.props)
	}
	for _, c := range f.classes {
		for _, p := range c.props {
			if p.Type == capi.PropertyObject {
				if _, ok := f.classNamed(p.LinkTarget); !ok {
					return nil, nativeErr(CategorySchema, CodeSchemaMismatch,
						"link target "+p.LinkTarget+" of "+c.info.Name+"."+p.Name+" is not declared")
				}
			}
		}
	}
	if version > f.version {
		f.version = version
	}
	return added, nil
}

func containsDef(defs []*classDef, d *classDef) bool {
	for _, x := range defs {
		if x == d {
			return true
		}
	}
	return false
}

func (f *file) snapshot() map[capi.ClassKey]*table {
	out := make(map[capi.ClassKey]*table, len(f.tables))
	for k, t := range f.tables {
		out[k] = t.clone()
	}
	return out
}

func (f *file) closeStore() error {
	if f.store == nil {
		return nil
	}
	err := f.store.close()
	f.store = nil
	return err
}

// realm is one open instance of a file.
type realm struct {
	file    *file
	sched   capi.Scheduler
	txn     *txn
	user    *userState
	session *sessionState
	cfg     capi.Config
	pending []delivery
	closed  bool
}

type objID struct {
	class capi.ClassKey
	key   capi.ObjKey
}

// txn records what a write transaction touched, plus the state to restore
// on cancel.
type txn struct {
	before   map[capi.ClassKey]*table
	modified map[objID]map[capi.PropKey]bool
	created  map[objID]bool
	deleted  map[objID]bool
}

func newTxn(before map[capi.ClassKey]*table) *txn {
	return &txn{
		before:   before,
		modified: make(map[objID]map[capi.PropKey]bool),
		created:  make(map[objID]bool),
		deleted:  make(map[objID]bool),
	}
}

func (t *txn) touch(id objID, prop capi.PropKey) {
	props, ok := t.modified[id]
	if !ok {
		props = make(map[capi.PropKey]bool)
		t.modified[id] = props
	}
	props[prop] = true
}

// Open opens a realm on cfg.Path, creating the file on first use. This is
// the one synchronous call that may be slow: sqlite files are loaded here.
func (e *Engine) Open(cfg *capi.Config) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.openRealm(cfg)
	if err != nil {
		return 0, err
	}
	return e.put(r), nil
}

// openRealm requires mu.
func (e *Engine) openRealm(cfg *capi.Config) (*realm, error) {
	f, err := e.loadFile(cfg)
	if err != nil {
		return nil, err
	}
	r := &realm{file: f, sched: cfg.Scheduler, cfg: *cfg}
	if cfg.SyncUser != 0 {
		u, err := resolve[*userState](e, cfg.SyncUser)
		if err != nil {
			return nil, err
		}
		r.user = u
	}
	f.realms++
	return r, nil
}

// loadFile returns the file for cfg.Path, loading or creating it. mu must
// be held.
func (e *Engine) loadFile(cfg *capi.Config) (*file, error) {
	f, ok := e.files[cfg.Path]
	if !ok {
		f = newFile(cfg.Path)
		f.inMemory = cfg.InMemory
		if cfg.Persistence == "sqlite" && !cfg.InMemory {
			st, err := openSQLStore(cfg.Path)
			if err != nil {
				return nil, err
			}
			if err := st.load(f); err != nil {
				_ = st.close()
				return nil, err
			}
			f.store = st
		}
		e.files[cfg.Path] = f
		e.log.Debug("file loaded", zap.String("path", cfg.Path))
	}

	added, err := f.applySchema(cfg.Schema, cfg.SchemaVersion)
	if err != nil {
		return nil, err
	}
	if f.store != nil && len(added) > 0 {
		if err := f.store.saveSchema(f, added); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// closeRealm requires mu.
func (e *Engine) closeRealm(r *realm) {
	if r.closed {
		return
	}
	if r.txn != nil {
		r.file.tables = r.txn.before
		r.txn = nil
		r.file.writer = nil
	}
	r.closed = true
	r.pending = nil
	for id, l := range r.file.listeners {
		if l.realm == r {
			delete(r.file.listeners, id)
		}
	}
	r.file.realms--
	if r.file.realms == 0 && (r.file.inMemory || r.file.store != nil) {
		if err := r.file.closeStore(); err != nil {
			e.log.Warn("close file", zap.String("path", r.file.path), zap.Error(err))
		}
		delete(e.files, r.file.path)
		e.log.Debug("file unloaded", zap.String("path", r.file.path))
	}
}

func (e *Engine) Close(p capi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := resolve[*realm](e, p)
	if err != nil {
		return err
	}
	e.closeRealm(r)
	return nil
}

func (e *Engine) IsClosed(p capi.Ptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := resolve[*realm](e, p)
	return err != nil || r.closed
}

// DeleteFiles removes a file that no realm has open. It reports whether
// anything existed.
func (e *Engine) DeleteFiles(path string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	existed := false
	if f, ok := e.files[path]; ok {
		if f.realms > 0 {
			return false, nativeErr(CategoryFile, CodeFileInUse, "file "+path+" is open")
		}
		if err := f.closeStore(); err != nil {
			return false, err
		}
		delete(e.files, path)
		existed = true
	}
	for _, p := range []string{path, path + "-wal", path + "-shm"} {
		err := os.Remove(p)
		if err == nil {
			existed = true
			continue
		}
		if !os.IsNotExist(err) {
			return existed, nativeErr(CategoryFile, CodeIO, err.Error())
		}
	}
	return existed, nil
}

// liveRealm resolves p to an open realm. mu must be held.
func (e *Engine) liveRealm(p capi.Ptr) (*realm, error) {
	r, err := resolve[*realm](e, p)
	if err != nil {
		return nil, err
	}
	if r.closed {
		return nil, nativeErr(CategoryLogic, CodeClosed, "realm is closed")
	}
	return r, nil
}

func (e *Engine) BeginWrite(p capi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return err
	}
	if r.file.writer != nil {
		return nativeErr(CategoryLogic, CodeAlreadyInWrite, "a write transaction is already active on "+r.file.path)
	}
	r.txn = newTxn(r.file.snapshot())
	r.file.writer = r
	return nil
}

func (e *Engine) CancelWrite(p capi.Ptr) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.writing(p)
	if err != nil {
		return err
	}
	r.file.tables = r.txn.before
	r.txn = nil
	r.file.writer = nil
	return nil
}

func (e *Engine) IsWriting(p capi.Ptr) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := resolve[*realm](e, p)
	return err == nil && r.txn != nil
}

// writing resolves p to a realm inside a write transaction. mu must be held.
func (e *Engine) writing(p capi.Ptr) (*realm, error) {
	r, err := e.liveRealm(p)
	if err != nil {
		return nil, err
	}
	if r.txn == nil {
		return nil, nativeErr(CategoryLogic, CodeNotInWrite, "not in a write transaction")
	}
	return r, nil
}

// Commit persists the transaction and schedules change notifications.
func (e *Engine) Commit(p capi.Ptr) error {
	e.mu.Lock()
	r, err := e.writing(p)
	if err != nil {
		e.mu.Unlock()
		return err
	}
	tx := r.txn
	if r.file.store != nil {
		if err := r.file.store.commit(r.file, tx); err != nil {
			e.mu.Unlock()
			return err
		}
	}
	r.txn = nil
	r.file.writer = nil
	wake := e.collectNotifications(r.file, tx)
	e.mu.Unlock()

	for _, fn := range wake {
		e.post(fn)
	}
	return nil
}

func (e *Engine) FindClass(p capi.Ptr, name string) (capi.ClassInfo, bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return capi.ClassInfo{}, false, err
	}
	c, ok := r.file.classNamed(name)
	if !ok {
		return capi.ClassInfo{}, false, nil
	}
	return c.info, true, nil
}

func (e *Engine) ClassProperties(p capi.Ptr, class capi.ClassKey) ([]capi.PropertyInfo, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, err := e.liveRealm(p)
	if err != nil {
		return nil, err
	}
	c, ok := r.file.class(class)
	if !ok {
		return nil, nativeErr(CategorySchema, CodeNoSuchClass, "no such class")
	}
	return append([]capi.PropertyInfo(nil), c.props...), nil
}
