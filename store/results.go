package store

import (
	"github.com/wippyai/corebind/bridge"
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/changeset"
	"github.com/wippyai/corebind/handle"
)

// Results is a live query. Len and Get re-evaluate against the current
// state of the store.
type Results struct {
	store *Store
	h     *handle.Handle
	class *class
}

func (r *Results) Len() (int, error) {
	ptr, err := r.h.Ptr()
	if err != nil {
		return 0, err
	}
	return r.store.env.eng.ResultsCount(ptr)
}

// Get returns the object at index i. The caller owns it.
func (r *Results) Get(i int) (*Object, error) {
	ptr, err := r.h.Ptr()
	if err != nil {
		return nil, err
	}
	obj, err := r.store.env.eng.ResultsGet(ptr, i)
	if err != nil {
		return nil, err
	}
	return r.store.object(r.class, obj)
}

// Observe calls fn on the store's looper with the flat-index diff of every
// commit that changes the results.
func (r *Results) Observe(fn func(changeset.Collection)) (*bridge.Subscription, error) {
	return r.observe(func(dec *changeset.Decoder, changes capi.Ptr) error {
		c, err := dec.Collection(changes)
		if err == nil {
			fn(c)
		}
		return err
	})
}

// ObserveRanges is Observe with range-compressed diffs.
func (r *Results) ObserveRanges(fn func(changeset.Ranges)) (*bridge.Subscription, error) {
	return r.observe(func(dec *changeset.Decoder, changes capi.Ptr) error {
		c, err := dec.Ranges(changes)
		if err == nil {
			fn(c)
		}
		return err
	})
}

func (r *Results) observe(deliver func(*changeset.Decoder, capi.Ptr) error) (*bridge.Subscription, error) {
	ptr, err := r.h.Ptr()
	if err != nil {
		return nil, err
	}
	eng := r.store.env.eng
	dec := changeset.NewDecoder(eng)
	register := func(cb capi.ChangeCallback) (capi.Ptr, error) {
		return eng.ResultsAddNotificationCallback(ptr, cb)
	}
	return bridge.Observe(eng, r.store.looper, register, func(changes capi.Ptr) {
		if err := deliver(dec, changes); err != nil {
			r.store.decodeFailed(err)
		}
	}, r.store.handleOpts()...)
}

// Close releases the results handle.
func (r *Results) Close() error {
	return r.h.Release()
}
