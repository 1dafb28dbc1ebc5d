package engine

import (
	"testing"

	"chatsync/internal/entity"
	"chatsync/internal/feed"

	"github.com/stretchr/testify/assert"
)

func marker(messageId, userId string) entity.DeletionMarker {
	return entity.DeletionMarker{
		Id:        entity.MarkerID(messageId, userId),
		ChatId:    "c1",
		MessageId: messageId,
		UserId:    userId,
	}
}

func TestMarkerSetHidesPerViewer(t *testing.T) {
	s := NewMarkerSet()
	s.Apply(feed.Event[entity.DeletionMarker]{Kind: feed.Added, ID: "m1:u1", Doc: marker("m1", "u1")})

	assert.True(t, s.Hidden("m1", "u1"))
	assert.False(t, s.Hidden("m1", "u2"))
	assert.False(t, s.Hidden("m2", "u1"))

	m := entity.Message{Id: "m1"}
	assert.False(t, s.Visible(m, "u1"))
	assert.True(t, s.Visible(m, "u2"))
}

func TestMarkerSetApplyIsIdempotent(t *testing.T) {
	s := NewMarkerSet()
	ev := feed.Event[entity.DeletionMarker]{Kind: feed.Added, ID: "m1:u1", Doc: marker("m1", "u1")}
	s.Apply(ev)
	s.Apply(ev)

	assert.True(t, s.Hidden("m1", "u1"))
}

func TestMarkerSetRemovedSplitsCompositeId(t *testing.T) {
	s := NewMarkerSet()
	s.Apply(feed.Event[entity.DeletionMarker]{Kind: feed.Added, ID: "m1:u1", Doc: marker("m1", "u1")})

	s.Apply(feed.Event[entity.DeletionMarker]{Kind: feed.Removed, ID: "m1:u1"})
	assert.False(t, s.Hidden("m1", "u1"))

	// Unknown or malformed ids are ignored.
	s.Apply(feed.Event[entity.DeletionMarker]{Kind: feed.Removed, ID: "no-colon"})
	s.Apply(feed.Event[entity.DeletionMarker]{Kind: feed.Removed, ID: "m9:u9"})
}

func TestMarkerSetBatch(t *testing.T) {
	s := NewMarkerSet()
	s.ApplyBatch(feed.Batch[entity.DeletionMarker]{
		Initial: true,
		Events: []feed.Event[entity.DeletionMarker]{
			{Kind: feed.Added, ID: "m1:u1", Doc: marker("m1", "u1")},
			{Kind: feed.Added, ID: "m2:u1", Doc: marker("m2", "u1")},
		},
	})

	assert.True(t, s.Hidden("m1", "u1"))
	assert.True(t, s.Hidden("m2", "u1"))
}
