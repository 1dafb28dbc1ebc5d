package engine

import (
	"chatsync/internal/entity"
	"chatsync/internal/feed"
)

// MarkerSet is the locally synchronized view of deletion markers, kept
// current by the marker change feed. Overlay checks against it are
// synchronous, which is what removes the original per-message remote
// lookup and its out-of-order application window.
type MarkerSet struct {
	byMessage map[string]map[string]struct{}
}

func NewMarkerSet() *MarkerSet {
	return &MarkerSet{
		byMessage: make(map[string]map[string]struct{}),
	}
}

// Apply folds one marker event into the set. Markers are never deleted in
// practice, but Removed is honoured for symmetry with the feed contract.
func (s *MarkerSet) Apply(ev feed.Event[entity.DeletionMarker]) {
	switch ev.Kind {
	case feed.Added, feed.Modified:
		users, ok := s.byMessage[ev.Doc.MessageId]
		if !ok {
			users = make(map[string]struct{})
			s.byMessage[ev.Doc.MessageId] = users
		}
		users[ev.Doc.UserId] = struct{}{}
	case feed.Removed:
		// Removed events carry only the composite id.
		messageId, userId, ok := splitMarkerID(ev.ID)
		if !ok {
			return
		}
		if users, exists := s.byMessage[messageId]; exists {
			delete(users, userId)
			if len(users) == 0 {
				delete(s.byMessage, messageId)
			}
		}
	}
}

func (s *MarkerSet) ApplyBatch(b feed.Batch[entity.DeletionMarker]) {
	for _, ev := range b.Events {
		s.Apply(ev)
	}
}

// Hidden reports whether messageId carries a deletion marker for userId.
func (s *MarkerSet) Hidden(messageId, userId string) bool {
	users, ok := s.byMessage[messageId]
	if !ok {
		return false
	}
	_, hidden := users[userId]
	return hidden
}

// Visible is the overlay predicate: a message is visible to a viewer iff
// no deletion marker exists for that (message, viewer) pair.
func (s *MarkerSet) Visible(m entity.Message, viewerId string) bool {
	return !s.Hidden(m.Id, viewerId)
}

func splitMarkerID(id string) (messageId, userId string, ok bool) {
	for i := len(id) - 1; i >= 0; i-- {
		if id[i] == ':' {
			return id[:i], id[i+1:], true
		}
	}
	return "", "", false
}
