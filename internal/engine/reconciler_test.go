package engine

import (
	"testing"

	"chatsync/internal/entity"
	"chatsync/internal/feed"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func msg(id string, ts int64) entity.Message {
	return entity.Message{Id: id, ChatId: "c1", SenderId: "u1", Text: "text-" + id, Timestamp: ts, Status: entity.StatusSent}
}

func newMessageReconciler() *Reconciler[entity.Message] {
	return NewReconciler[entity.Message](entity.Message.Before)
}

func ids(items []entity.Message) []string {
	out := make([]string, 0, len(items))
	for _, m := range items {
		out = append(out, m.Id)
	}
	return out
}

func TestInitialBatchSortsAndResets(t *testing.T) {
	r := newMessageReconciler()

	changes := r.ApplyBatch(feed.Batch[entity.Message]{
		Initial: true,
		Events: []feed.Event[entity.Message]{
			{Kind: feed.Added, ID: "m3", Doc: msg("m3", 30)},
			{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)},
			{Kind: feed.Added, ID: "m2", Doc: msg("m2", 20)},
		},
	})

	require.Len(t, changes, 1)
	assert.Equal(t, OpReset, changes[0].Op)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(changes[0].Items))
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(r.Snapshot()))
}

func TestInitialBatchDeduplicatesKeepingLast(t *testing.T) {
	r := newMessageReconciler()

	first := msg("m1", 10)
	second := msg("m1", 10)
	second.Text = "edited"

	changes := r.ApplyBatch(feed.Batch[entity.Message]{
		Initial: true,
		Events: []feed.Event[entity.Message]{
			{Kind: feed.Added, ID: "m1", Doc: first},
			{Kind: feed.Added, ID: "m1", Doc: second},
		},
	})

	require.Len(t, changes, 1)
	require.Equal(t, 1, r.Len())
	got, ok := r.Get("m1")
	require.True(t, ok)
	assert.Equal(t, "edited", got.Text)
}

func TestAddedInsertsAtSortPosition(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)})
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m3", Doc: msg("m3", 30)})

	changes := r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m2", Doc: msg("m2", 20)})

	require.Len(t, changes, 1)
	assert.Equal(t, OpInsert, changes[0].Op)
	assert.Equal(t, 1, changes[0].Index)
	assert.Equal(t, -1, changes[0].OldIndex)
	assert.Equal(t, []string{"m1", "m2", "m3"}, ids(r.Snapshot()))
}

func TestAddedForKnownIdReplacesInPlace(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)})
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m2", Doc: msg("m2", 20)})

	edited := msg("m1", 10)
	edited.Text = "edited"
	changes := r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: edited})

	require.Len(t, changes, 1)
	assert.Equal(t, OpUpdate, changes[0].Op)
	assert.Equal(t, 0, changes[0].Index)
	assert.Equal(t, 0, changes[0].OldIndex)
	assert.Equal(t, 2, r.Len())

	got, _ := r.Get("m1")
	assert.Equal(t, "edited", got.Text)
}

func TestModifiedRepositionsBySortKey(t *testing.T) {
	r := newMessageReconciler()
	r.ApplyBatch(feed.Batch[entity.Message]{
		Initial: true,
		Events: []feed.Event[entity.Message]{
			{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)},
			{Kind: feed.Added, ID: "m2", Doc: msg("m2", 20)},
			{Kind: feed.Added, ID: "m3", Doc: msg("m3", 30)},
		},
	})

	moved := msg("m1", 40)
	changes := r.Apply(feed.Event[entity.Message]{Kind: feed.Modified, ID: "m1", Doc: moved})

	require.Len(t, changes, 1)
	assert.Equal(t, OpUpdate, changes[0].Op)
	assert.Equal(t, 0, changes[0].OldIndex)
	assert.Equal(t, 2, changes[0].Index)
	assert.Equal(t, []string{"m2", "m3", "m1"}, ids(r.Snapshot()))
}

func TestModifiedForUnknownIdInserts(t *testing.T) {
	r := newMessageReconciler()

	changes := r.Apply(feed.Event[entity.Message]{Kind: feed.Modified, ID: "m1", Doc: msg("m1", 10)})

	require.Len(t, changes, 1)
	assert.Equal(t, OpInsert, changes[0].Op)
	assert.Equal(t, 1, r.Len())
}

func TestModifiedWithZeroValueDocKeepsEventId(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)})

	// An update whose document came back empty must not strand the entry
	// under the empty id; the later removal has to find it.
	r.Apply(feed.Event[entity.Message]{Kind: feed.Modified, ID: "m1"})

	changes := r.Apply(feed.Event[entity.Message]{Kind: feed.Removed, ID: "m1"})
	require.Len(t, changes, 1)
	assert.Equal(t, OpRemove, changes[0].Op)
	assert.Equal(t, 0, r.Len())
}

func TestRemovedIsIdempotent(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)})

	changes := r.Apply(feed.Event[entity.Message]{Kind: feed.Removed, ID: "m1"})
	require.Len(t, changes, 1)
	assert.Equal(t, OpRemove, changes[0].Op)
	assert.Equal(t, 0, changes[0].OldIndex)

	// Second removal of the same id changes nothing.
	changes = r.Apply(feed.Event[entity.Message]{Kind: feed.Removed, ID: "m1"})
	assert.Empty(t, changes)
	assert.Equal(t, 0, r.Len())
}

func TestEqualKeysKeepInsertionOrder(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "a", Doc: msg("a", 10)})
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "b", Doc: msg("b", 10)})
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "c", Doc: msg("c", 10)})

	assert.Equal(t, []string{"a", "b", "c"}, ids(r.Snapshot()))
}

func TestZeroTimestampSortsLast(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "pending", Doc: msg("pending", 0)})
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)})

	assert.Equal(t, []string{"m1", "pending"}, ids(r.Snapshot()))
}

func TestSnapshotIsACopy(t *testing.T) {
	r := newMessageReconciler()
	r.Apply(feed.Event[entity.Message]{Kind: feed.Added, ID: "m1", Doc: msg("m1", 10)})

	snap := r.Snapshot()
	snap[0].Text = "mutated"

	got, _ := r.Get("m1")
	assert.Equal(t, "text-m1", got.Text)
}
