// Package changeset decodes native change-set pointers into Go structures.
//
// Decoding is two-phase: the engine first reports per-category counts, then
// fills buffers of exactly that size and reports how many entries it wrote.
// Any disagreement between the two is a consistency violation: the binding
// and the engine no longer agree on the protocol, and callers must treat it
// as fatal.
package changeset

import (
	"github.com/wippyai/corebind/capi"
	"github.com/wippyai/corebind/errors"
)

type (
	Move  = capi.Move
	Range = capi.Range
)

// Collection is a flat-index collection diff. Deletions and
// Modifications index the old collection; Insertions and
// ModificationsAfter index the new one.
type Collection struct {
	Deletions          []int
	Insertions         []int
	Modifications      []int
	ModificationsAfter []int
	Moves              []Move
	Cleared            bool
}

// Empty reports whether nothing changed.
func (c Collection) Empty() bool {
	return !c.Cleared && len(c.Deletions) == 0 && len(c.Insertions) == 0 &&
		len(c.Modifications) == 0 && len(c.Moves) == 0
}

// Ranges is the range-compressed form of a collection diff.
type Ranges struct {
	Deletions          []Range
	Insertions         []Range
	Modifications      []Range
	ModificationsAfter []Range
	Moves              []Move
}

// Object describes changes to a single object.
type Object struct {
	Modified []capi.PropKey
	Deleted  bool
}

// Decoder reads change-set pointers through the engine. Pointers are only
// valid while the callback that delivered them runs, unless cloned.
type Decoder struct {
	eng capi.Changes
}

// NewDecoder creates a decoder over eng.
func NewDecoder(eng capi.Changes) *Decoder {
	return &Decoder{eng: eng}
}

// Collection decodes the flat-index form.
func (d *Decoder) Collection(changes capi.Ptr) (Collection, error) {
	want, err := d.eng.CollectionChangeCounts(changes)
	if err != nil {
		return Collection{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "collection change counts")
	}
	if err := checkReported("collection", want); err != nil {
		return Collection{}, err
	}
	out := capi.IndexBuffers{
		Deletions:          make([]int, want.Deletions),
		Insertions:         make([]int, want.Insertions),
		Modifications:      make([]int, want.Modifications),
		ModificationsAfter: make([]int, want.ModificationsAfter),
		Moves:              make([]Move, want.Moves),
	}
	got, err := d.eng.CollectionChanges(changes, out)
	if err != nil {
		return Collection{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "collection changes")
	}
	if err := checkCounts("collection", want, got); err != nil {
		return Collection{}, err
	}
	return Collection{
		Deletions:          out.Deletions,
		Insertions:         out.Insertions,
		Modifications:      out.Modifications,
		ModificationsAfter: out.ModificationsAfter,
		Moves:              out.Moves,
		Cleared:            got.Cleared,
	}, nil
}

// Ranges decodes the range-compressed form.
func (d *Decoder) Ranges(changes capi.Ptr) (Ranges, error) {
	want, err := d.eng.CollectionRangeCounts(changes)
	if err != nil {
		return Ranges{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "collection range counts")
	}
	if err := checkReported("ranges", want); err != nil {
		return Ranges{}, err
	}
	out := capi.RangeBuffers{
		Deletions:          make([]Range, want.Deletions),
		Insertions:         make([]Range, want.Insertions),
		Modifications:      make([]Range, want.Modifications),
		ModificationsAfter: make([]Range, want.ModificationsAfter),
		Moves:              make([]Move, want.Moves),
	}
	got, err := d.eng.CollectionRanges(changes, out)
	if err != nil {
		return Ranges{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "collection ranges")
	}
	if err := checkCounts("ranges", want, got); err != nil {
		return Ranges{}, err
	}
	return Ranges{
		Deletions:          out.Deletions,
		Insertions:         out.Insertions,
		Modifications:      out.Modifications,
		ModificationsAfter: out.ModificationsAfter,
		Moves:              out.Moves,
	}, nil
}

// Object decodes an object change-set.
func (d *Decoder) Object(changes capi.Ptr) (Object, error) {
	deleted, err := d.eng.ObjectChangesIsDeleted(changes)
	if err != nil {
		return Object{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "object deleted flag")
	}
	want, err := d.eng.ObjectChangesModifiedCount(changes)
	if err != nil {
		return Object{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "object modified count")
	}
	if want < 0 {
		return Object{}, errors.Consistency([]string{"object", "modified"},
			"engine reported %d properties", want)
	}
	out := make([]capi.PropKey, want)
	got, err := d.eng.ObjectChangesModified(changes, out)
	if err != nil {
		return Object{}, errors.Wrap(errors.PhaseChangeset, errors.KindNative, err, "object modified properties")
	}
	if got != want {
		return Object{}, errors.Consistency([]string{"object", "modified"},
			"engine reported %d properties, wrote %d", want, got)
	}
	return Object{Deleted: deleted, Modified: out}, nil
}

type countPair struct {
	name      string
	want, got int
}

func pairs(want, got capi.ChangeCounts) []countPair {
	return []countPair{
		{"deletions", want.Deletions, got.Deletions},
		{"insertions", want.Insertions, got.Insertions},
		{"modifications", want.Modifications, got.Modifications},
		{"modifications_after", want.ModificationsAfter, got.ModificationsAfter},
		{"moves", want.Moves, got.Moves},
	}
}

// checkReported rejects counts no buffer can be sized for.
func checkReported(form string, want capi.ChangeCounts) error {
	for _, c := range pairs(want, want) {
		if c.want < 0 {
			return errors.Consistency([]string{form, c.name},
				"engine reported %d entries", c.want)
		}
	}
	return nil
}

func checkCounts(form string, want, got capi.ChangeCounts) error {
	for _, c := range pairs(want, got) {
		if c.want != c.got {
			return errors.Consistency([]string{form, c.name},
				"engine reported %d entries, wrote %d", c.want, c.got)
		}
	}
	return nil
}
