// Package engine implements the reconciliation engine: ordered projections
// of remote collections maintained from change feeds, the per-viewer
// soft-delete overlay, read receipts, and the chat-list / open-chat
// sessions the delivery layer subscribes to.
package engine

import (
	"sort"

	"chatsync/internal/feed"
)

// Entity is anything the reconciler can track by id.
type Entity interface {
	EntityID() string
}

// Op classifies a reconciler diff.
type Op int

const (
	// OpReset replaces the whole list (initial population).
	OpReset Op = iota
	OpInsert
	OpUpdate
	OpRemove
)

// Change is one targeted notification about the reconciled list.
// Index/OldIndex refer to positions in the list after/before the change;
// unused positions are -1. For OpReset, Items carries the full new list
// and the other fields are zero.
type Change[E Entity] struct {
	Op       Op
	ID       string
	Index    int
	OldIndex int
	Item     E
	Items    []E
}

// entry pairs a tracked entity with the event id it was delivered under.
// The id comes from the event, never from the document itself, so a
// document whose id field disagrees with its event id (an empty lookup,
// a malformed echo) cannot shadow another entry in the index.
type entry[E Entity] struct {
	id  string
	doc E
}

// Reconciler maintains a sorted, de-duplicated sequence of entities keyed
// by event id. It is a single-writer structure: the owning session
// serializes Apply calls, and readers only ever see copies via Snapshot.
type Reconciler[E Entity] struct {
	less  func(a, b E) bool
	items []entry[E]
	index map[string]int
}

// NewReconciler builds a reconciler ordered by the strict less function.
// Entities comparing equal keep their relative insertion order.
func NewReconciler[E Entity](less func(a, b E) bool) *Reconciler[E] {
	return &Reconciler[E]{
		less:  less,
		index: make(map[string]int),
	}
}

func (r *Reconciler[E]) Len() int {
	return len(r.items)
}

// Get returns the tracked entity with the given id.
func (r *Reconciler[E]) Get(id string) (E, bool) {
	if i, ok := r.index[id]; ok {
		return r.items[i].doc, true
	}
	var zero E
	return zero, false
}

// Snapshot returns a copy of the current list, safe to hand out.
func (r *Reconciler[E]) Snapshot() []E {
	out := make([]E, len(r.items))
	for i, it := range r.items {
		out[i] = it.doc
	}
	return out
}

// ApplyBatch applies a batch of events. An initial batch replaces the
// whole list with one stable sort and yields a single OpReset, so the
// consumer repaints once instead of once per item; live batches yield one
// targeted change per event.
func (r *Reconciler[E]) ApplyBatch(b feed.Batch[E]) []Change[E] {
	if b.Initial {
		return r.reset(b.Events)
	}

	var changes []Change[E]
	for _, ev := range b.Events {
		changes = append(changes, r.Apply(ev)...)
	}
	return changes
}

// Apply applies one event and returns the resulting targeted changes.
//
// Added for an id already present replaces the entity in place, which
// makes duplicate delivery harmless. Modified relocates the entity to the
// position its new sort key dictates (an absent id falls back to an
// insert). Removed is a no-op for unknown ids.
func (r *Reconciler[E]) Apply(ev feed.Event[E]) []Change[E] {
	switch ev.Kind {
	case feed.Added:
		if i, ok := r.index[ev.ID]; ok {
			r.items[i].doc = ev.Doc
			return []Change[E]{{Op: OpUpdate, ID: ev.ID, Index: i, OldIndex: i, Item: ev.Doc}}
		}
		i := r.insert(ev.ID, ev.Doc)
		return []Change[E]{{Op: OpInsert, ID: ev.ID, Index: i, OldIndex: -1, Item: ev.Doc}}

	case feed.Modified:
		old, ok := r.index[ev.ID]
		if !ok {
			i := r.insert(ev.ID, ev.Doc)
			return []Change[E]{{Op: OpInsert, ID: ev.ID, Index: i, OldIndex: -1, Item: ev.Doc}}
		}
		r.remove(old)
		i := r.insert(ev.ID, ev.Doc)
		return []Change[E]{{Op: OpUpdate, ID: ev.ID, Index: i, OldIndex: old, Item: ev.Doc}}

	case feed.Removed:
		i, ok := r.index[ev.ID]
		if !ok {
			return nil
		}
		r.remove(i)
		return []Change[E]{{Op: OpRemove, ID: ev.ID, Index: -1, OldIndex: i}}
	}
	return nil
}

func (r *Reconciler[E]) reset(events []feed.Event[E]) []Change[E] {
	// De-duplicate keeping the last occurrence, preserving first-seen order
	// so the stable sort keeps delivery order between equal keys.
	seen := make(map[string]int, len(events))
	items := make([]entry[E], 0, len(events))
	for _, ev := range events {
		if ev.Kind == feed.Removed {
			continue
		}
		if i, ok := seen[ev.ID]; ok {
			items[i].doc = ev.Doc
			continue
		}
		seen[ev.ID] = len(items)
		items = append(items, entry[E]{id: ev.ID, doc: ev.Doc})
	}

	sort.SliceStable(items, func(i, j int) bool { return r.less(items[i].doc, items[j].doc) })

	r.items = items
	r.index = make(map[string]int, len(items))
	for i, it := range items {
		r.index[it.id] = i
	}

	return []Change[E]{{Op: OpReset, Index: -1, OldIndex: -1, Items: r.Snapshot()}}
}

// insert places doc before the first entity it orders strictly before,
// so equal keys land after existing ones (stable).
func (r *Reconciler[E]) insert(id string, doc E) int {
	pos := len(r.items)
	for i, it := range r.items {
		if r.less(doc, it.doc) {
			pos = i
			break
		}
	}

	it := entry[E]{id: id, doc: doc}
	r.items = append(r.items, it)
	copy(r.items[pos+1:], r.items[pos:])
	r.items[pos] = it

	for i := pos; i < len(r.items); i++ {
		r.index[r.items[i].id] = i
	}
	return pos
}

func (r *Reconciler[E]) remove(i int) {
	delete(r.index, r.items[i].id)
	r.items = append(r.items[:i], r.items[i+1:]...)
	for j := i; j < len(r.items); j++ {
		r.index[r.items[j].id] = j
	}
}
