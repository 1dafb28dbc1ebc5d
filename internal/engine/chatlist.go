package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/entity"
	"chatsync/internal/feed"
	"chatsync/pkg/metrics"
)

// NameResolver resolves a user id to a display name (backed by the user
// repository plus a cache; direct-chat search and ChatView naming depend
// on it).
type NameResolver interface {
	DisplayName(ctx context.Context, userId string) (string, error)
}

// TailReader finds the newest message of a chat still visible to a viewer.
// ok is false when every message is hidden or the chat is empty.
type TailReader interface {
	LatestVisible(ctx context.Context, chatId, userId string) (msg entity.Message, ok bool, err error)
}

// summaryOverride is a per-viewer summary computed after a "delete for me".
// base is the stored lastMessageTime it was computed against: once the
// stored summary advances past it a newer, not-yet-deleted message exists
// and the override is stale. base < 0 means the chat document has not been
// seen yet; it binds on first sight.
type summaryOverride struct {
	summary entity.Summary
	base    int64
}

// ChatListSession owns the reconciled, per-viewer chat list. It applies
// the chats feed and the viewer's deletion-marker feed strictly in
// delivery order on a single goroutine; consumers receive snapshot copies
// or diff notifications, never the internal list.
type ChatListSession struct {
	viewerId string
	chats    feed.Feed[entity.Chat]
	markers  feed.Feed[entity.DeletionMarker]
	names    NameResolver
	tail     TailReader
	listener func([]Change[entity.ChatView])
	onError  func(error)
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	rec       *Reconciler[entity.ChatView]
	overrides map[string]summaryOverride
	err       error

	done      chan struct{}
	closeOnce sync.Once
}

// NewChatListSession wires a session; Run must be started by the caller.
// listener and onError may be nil.
func NewChatListSession(
	viewerId string,
	chats feed.Feed[entity.Chat],
	markers feed.Feed[entity.DeletionMarker],
	names NameResolver,
	tail TailReader,
	listener func([]Change[entity.ChatView]),
	onError func(error),
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *ChatListSession {
	return &ChatListSession{
		viewerId:  viewerId,
		chats:     chats,
		markers:   markers,
		names:     names,
		tail:      tail,
		listener:  listener,
		onError:   onError,
		log:       log,
		metrics:   m,
		rec:       NewReconciler[entity.ChatView](chatViewLess),
		overrides: make(map[string]summaryOverride),
		done:      make(chan struct{}),
	}
}

// chatViewLess orders the chat list by stored last-message time,
// descending. Per-viewer overrides change what a summary says, not where
// the chat sorts; ordering stays shared so all participants agree on it.
func chatViewLess(a, b entity.ChatView) bool {
	return a.Chat.LastMessageTime > b.Chat.LastMessageTime
}

// Run applies feed batches until a feed terminates, the context is
// cancelled, or Close is called. Events from one feed are applied strictly
// in delivery order; the two feeds interleave but serialize here before
// touching shared state.
func (s *ChatListSession) Run(ctx context.Context) {
	defer s.chats.Close()
	defer s.markers.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case b, ok := <-s.chats.Events():
			if !ok {
				s.fail("chats", s.chats.Err())
				return
			}
			s.applyChats(ctx, b)
		case b, ok := <-s.markers.Events():
			if !ok {
				s.fail("markers", s.markers.Err())
				return
			}
			s.applyMarkers(ctx, b)
		}
	}
}

func (s *ChatListSession) applyChats(ctx context.Context, b feed.Batch[entity.Chat]) {
	views := feed.Batch[entity.ChatView]{Initial: b.Initial, Events: make([]feed.Event[entity.ChatView], 0, len(b.Events))}
	for _, ev := range b.Events {
		s.metrics.FeedEvent("chats", ev.Kind.String())
		views.Events = append(views.Events, feed.Event[entity.ChatView]{
			Kind:     ev.Kind,
			ID:       ev.ID,
			Doc:      s.project(ctx, ev.Doc),
			OldIndex: ev.OldIndex,
			NewIndex: ev.NewIndex,
		})
	}

	s.mu.Lock()
	changes := s.rec.ApplyBatch(views)
	s.mu.Unlock()

	s.emit(changes)
}

// project builds the per-viewer ChatView for a chat document.
func (s *ChatListSession) project(ctx context.Context, chat entity.Chat) entity.ChatView {
	view := entity.ChatView{
		Chat:      chat,
		Unread:    chat.UnreadFor(s.viewerId),
		Favourite: chat.IsFavouriteFor(s.viewerId),
		Summary:   entity.Summary{Text: chat.LastMessageText, Time: chat.LastMessageTime},
	}

	if chat.IsGroup {
		view.DisplayName = chat.GroupName
	} else if other := chat.Counterpart(s.viewerId); other != "" {
		name, err := s.names.DisplayName(ctx, other)
		if err != nil || name == "" {
			name = "?"
		}
		view.DisplayName = name
	}

	s.mu.Lock()
	if ov, ok := s.overrides[chat.Id]; ok {
		if ov.base < 0 {
			ov.base = chat.LastMessageTime
			s.overrides[chat.Id] = ov
		}
		if chat.LastMessageTime > ov.base {
			// A newer message arrived since the override was computed; it
			// cannot be hidden yet, so the stored summary wins again.
			delete(s.overrides, chat.Id)
		} else {
			view.Summary = ov.summary
		}
	}
	s.mu.Unlock()

	return view
}

// applyMarkers reacts to the viewer's own deletion markers. The event
// arriving at all means the marker write is durable, so the tail recompute
// it triggers can never observe a store without it.
func (s *ChatListSession) applyMarkers(ctx context.Context, b feed.Batch[entity.DeletionMarker]) {
	chatIds := make(map[string]struct{})
	for _, ev := range b.Events {
		s.metrics.FeedEvent("user_markers", ev.Kind.String())
		if ev.Kind == feed.Removed || ev.Doc.UserId != s.viewerId {
			continue
		}
		chatIds[ev.Doc.ChatId] = struct{}{}
	}

	for chatId := range chatIds {
		s.recomputeSummary(ctx, chatId)
	}
}

func (s *ChatListSession) recomputeSummary(ctx context.Context, chatId string) {
	msg, visible, err := s.tail.LatestVisible(ctx, chatId, s.viewerId)
	if err != nil {
		// Keep the previous summary; the next marker event retries.
		s.log.Warnw("tail recompute failed", "chatId", chatId, "error", err)
		return
	}

	var summary entity.Summary
	if visible {
		summary = entity.Summary{Text: msg.Text, Time: msg.Timestamp}
	}

	s.mu.Lock()
	ov := summaryOverride{summary: summary, base: -1}
	var changes []Change[entity.ChatView]
	if view, ok := s.rec.Get(chatId); ok {
		ov.base = view.Chat.LastMessageTime
		view.Summary = summary
		// Replace in place: stored ordering is untouched by a "for me"
		// deletion, so this is a pure content update.
		changes = s.rec.Apply(feed.Event[entity.ChatView]{Kind: feed.Added, ID: chatId, Doc: view})
	}
	s.overrides[chatId] = ov
	s.mu.Unlock()

	s.emit(changes)
}

func (s *ChatListSession) emit(changes []Change[entity.ChatView]) {
	if len(changes) == 0 || s.listener == nil {
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	s.listener(changes)
}

func (s *ChatListSession) fail(name string, cause error) {
	if cause == nil {
		return // deliberate close
	}
	err := &feed.Error{Feed: name, Err: cause}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.metrics.FeedError(name)
	s.log.Errorw("chat list feed terminated", "viewerId", s.viewerId, "feed", name, "error", cause)
	if s.onError != nil {
		s.onError(err)
	}
}

// Err reports the terminal feed error, if any. A session that errored must
// be discarded and reopened.
func (s *ChatListSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Snapshot returns a copy of the reconciled, per-viewer chat list.
func (s *ChatListSession) Snapshot() []entity.ChatView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rec.Snapshot()
}

// Filtered returns the tab- and search-scoped projection of the list.
func (s *ChatListSession) Filtered(tab Tab, query string) []entity.ChatView {
	return FilterChats(s.Snapshot(), tab, query, s.viewerId)
}

// Close stops the session. No notification is delivered after Close
// returns observable effect: the run loop exits and feeds are closed.
func (s *ChatListSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.chats.Close()
		s.markers.Close()
	})
}
