package memcore

import (
	"sort"

	"github.com/wippyai/corebind/capi"
)

type listener struct {
	realm   *realm
	cb      capi.ChangeCallback
	obj     *objID
	res     *results
	last    []capi.ObjKey
	id      uint64
	removed bool
}

type token struct {
	remove func()
}

type collectionChange struct {
	deletions          []int
	insertions         []int
	modifications      []int
	modificationsAfter []int
	moves              []capi.Move
	cleared            bool
}

type objectChange struct {
	modified []capi.PropKey
	deleted  bool
}

// changeSet is the resource behind a change pointer handed to callbacks.
type changeSet struct {
	coll *collectionChange
	obj  *objectChange
}

type delivery struct {
	l       *listener
	changes *changeSet
}

// work is the token passed to a realm's scheduler.
type work struct {
	realm *realm
}

func (e *Engine) register(f *file, l *listener) capi.Ptr {
	f.nextID++
	l.id = f.nextID
	f.listeners[l.id] = l
	return e.put(&token{remove: func() {
		l.removed = true
		delete(f.listeners, l.id)
	}})
}

func (e *Engine) ObjectAddNotificationCallback(p capi.Ptr, cb capi.ChangeCallback) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	o, _, _, err := e.liveObject(p)
	if err != nil {
		return 0, err
	}
	id := o.id()
	return e.register(o.realm.file, &listener{realm: o.realm, cb: cb, obj: &id}), nil
}

func (e *Engine) ResultsAddNotificationCallback(p capi.Ptr, cb capi.ChangeCallback) (capi.Ptr, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.liveResults(p)
	if err != nil {
		return 0, err
	}
	watch := &results{realm: res.realm, class: res.class, pred: res.pred}
	return e.register(res.realm.file, &listener{
		realm: res.realm,
		cb:    cb,
		res:   watch,
		last:  watch.keys(),
	}), nil
}

// collectNotifications computes change sets for every listener on f and
// returns the wake-ups to issue once mu is released. mu must be held.
func (e *Engine) collectNotifications(f *file, tx *txn) []func() {
	ids := make([]uint64, 0, len(f.listeners))
	for id := range f.listeners {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	var touched []*realm
	for _, id := range ids {
		l := f.listeners[id]
		if l.realm.closed {
			continue
		}
		var cs *changeSet
		if l.obj != nil {
			cs = objectChanges(l, tx)
		} else {
			cs = collectionChanges(l, tx)
		}
		if cs == nil {
			continue
		}
		if len(l.realm.pending) == 0 {
			touched = append(touched, l.realm)
		}
		l.realm.pending = append(l.realm.pending, delivery{l: l, changes: cs})
	}

	wake := make([]func(), 0, len(touched))
	for _, r := range touched {
		r := r
		if r.sched != nil {
			sched, ptr := r.sched, e.put(&work{realm: r})
			wake = append(wake, func() { sched.Notify(ptr) })
			continue
		}
		wake = append(wake, func() { e.drain(r) })
	}
	return wake
}

func objectChanges(l *listener, tx *txn) *changeSet {
	id := *l.obj
	if tx.deleted[id] {
		delete(l.realm.file.listeners, l.id)
		return &changeSet{obj: &objectChange{deleted: true}}
	}
	props := tx.modified[id]
	if len(props) == 0 {
		return nil
	}
	mod := make([]capi.PropKey, 0, len(props))
	for p := range props {
		mod = append(mod, p)
	}
	sort.Slice(mod, func(i, j int) bool { return mod[i] < mod[j] })
	return &changeSet{obj: &objectChange{modified: mod}}
}

func collectionChanges(l *listener, tx *txn) *changeSet {
	old, cur := l.last, l.res.keys()
	l.last = cur

	newIdx := make(map[capi.ObjKey]int, len(cur))
	for i, k := range cur {
		newIdx[k] = i
	}
	oldIdx := make(map[capi.ObjKey]int, len(old))
	for i, k := range old {
		oldIdx[k] = i
	}

	c := &collectionChange{}
	for i, k := range old {
		j, ok := newIdx[k]
		if !ok {
			c.deletions = append(c.deletions, i)
			continue
		}
		if len(tx.modified[objID{class: l.res.class, key: k}]) > 0 {
			c.modifications = append(c.modifications, i)
			c.modificationsAfter = append(c.modificationsAfter, j)
		}
	}
	for j, k := range cur {
		if _, ok := oldIdx[k]; !ok {
			c.insertions = append(c.insertions, j)
		}
	}
	c.cleared = len(old) > 0 && len(cur) == 0 && len(c.modifications) == 0

	if len(c.deletions) == 0 && len(c.insertions) == 0 && len(c.modifications) == 0 {
		return nil
	}
	return &changeSet{coll: c}
}

// PerformWork runs the notifications pending for the realm a work token
// was issued for. It is called by the realm's scheduler on its own
// execution context.
func (e *Engine) PerformWork(p capi.Ptr) {
	e.mu.Lock()
	w, err := resolve[*work](e, p)
	if err != nil {
		e.mu.Unlock()
		return
	}
	delete(e.nodes, p)
	e.mu.Unlock()

	e.drain(w.realm)
}

// drain invokes the realm's pending callbacks. Each change pointer is valid
// only for the duration of its callback.
func (e *Engine) drain(r *realm) {
	type call struct {
		cb  capi.ChangeCallback
		ptr capi.Ptr
	}

	e.mu.Lock()
	batch := r.pending
	r.pending = nil
	calls := make([]call, 0, len(batch))
	for _, d := range batch {
		if d.l.removed || r.closed {
			continue
		}
		calls = append(calls, call{cb: d.l.cb, ptr: e.put(d.changes)})
	}
	e.mu.Unlock()

	for _, c := range calls {
		c.cb(c.ptr)
		e.Release(c.ptr)
	}
}

func (e *Engine) collection(p capi.Ptr) (*collectionChange, error) {
	cs, err := resolve[*changeSet](e, p)
	if err != nil {
		return nil, err
	}
	if cs.coll == nil {
		return nil, nativeErr(CategoryLogic, CodeInvalidPointer, "not a collection change set")
	}
	return cs.coll, nil
}

func (e *Engine) objectChange(p capi.Ptr) (*objectChange, error) {
	cs, err := resolve[*changeSet](e, p)
	if err != nil {
		return nil, err
	}
	if cs.obj == nil {
		return nil, nativeErr(CategoryLogic, CodeInvalidPointer, "not an object change set")
	}
	return cs.obj, nil
}

func (c *collectionChange) counts() capi.ChangeCounts {
	return capi.ChangeCounts{
		Deletions:          len(c.deletions),
		Insertions:         len(c.insertions),
		Modifications:      len(c.modifications),
		ModificationsAfter: len(c.modificationsAfter),
		Moves:              len(c.moves),
		Cleared:            c.cleared,
	}
}

func (e *Engine) CollectionChangeCounts(p capi.Ptr) (capi.ChangeCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.collection(p)
	if err != nil {
		return capi.ChangeCounts{}, err
	}
	return c.counts(), nil
}

// CollectionChanges fills the caller's buffers and returns the full counts.
func (e *Engine) CollectionChanges(p capi.Ptr, out capi.IndexBuffers) (capi.ChangeCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.collection(p)
	if err != nil {
		return capi.ChangeCounts{}, err
	}
	copy(out.Deletions, c.deletions)
	copy(out.Insertions, c.insertions)
	copy(out.Modifications, c.modifications)
	copy(out.ModificationsAfter, c.modificationsAfter)
	copy(out.Moves, c.moves)
	return c.counts(), nil
}

// toRanges compresses ascending indices into half-open runs.
func toRanges(indices []int) []capi.Range {
	var out []capi.Range
	for _, i := range indices {
		if n := len(out); n > 0 && out[n-1].To == i {
			out[n-1].To = i + 1
			continue
		}
		out = append(out, capi.Range{From: i, To: i + 1})
	}
	return out
}

type rangeSet struct {
	deletions, insertions, modifications, modificationsAfter []capi.Range
}

func (c *collectionChange) ranges() rangeSet {
	return rangeSet{
		deletions:          toRanges(c.deletions),
		insertions:         toRanges(c.insertions),
		modifications:      toRanges(c.modifications),
		modificationsAfter: toRanges(c.modificationsAfter),
	}
}

func (c *collectionChange) rangeCounts(rs rangeSet) capi.ChangeCounts {
	return capi.ChangeCounts{
		Deletions:          len(rs.deletions),
		Insertions:         len(rs.insertions),
		Modifications:      len(rs.modifications),
		ModificationsAfter: len(rs.modificationsAfter),
		Moves:              len(c.moves),
		Cleared:            c.cleared,
	}
}

func (e *Engine) CollectionRangeCounts(p capi.Ptr) (capi.ChangeCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.collection(p)
	if err != nil {
		return capi.ChangeCounts{}, err
	}
	return c.rangeCounts(c.ranges()), nil
}

func (e *Engine) CollectionRanges(p capi.Ptr, out capi.RangeBuffers) (capi.ChangeCounts, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.collection(p)
	if err != nil {
		return capi.ChangeCounts{}, err
	}
	rs := c.ranges()
	copy(out.Deletions, rs.deletions)
	copy(out.Insertions, rs.insertions)
	copy(out.Modifications, rs.modifications)
	copy(out.ModificationsAfter, rs.modificationsAfter)
	copy(out.Moves, c.moves)
	return c.rangeCounts(rs), nil
}

func (e *Engine) ObjectChangesIsDeleted(p capi.Ptr) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.objectChange(p)
	if err != nil {
		return false, err
	}
	return c.deleted, nil
}

func (e *Engine) ObjectChangesModifiedCount(p capi.Ptr) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.objectChange(p)
	if err != nil {
		return 0, err
	}
	return len(c.modified), nil
}

func (e *Engine) ObjectChangesModified(p capi.Ptr, out []capi.PropKey) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	c, err := e.objectChange(p)
	if err != nil {
		return 0, err
	}
	copy(out, c.modified)
	return len(c.modified), nil
}
