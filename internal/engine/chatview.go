package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/entity"
	"chatsync/internal/feed"
	"chatsync/pkg/metrics"
)

// ChatSession owns the reconciled message timeline of one open chat for
// one viewer. It keeps two reconciled lists: the full timeline (the
// authoritative local cache, including messages hidden for the viewer)
// and the visible projection with soft-deleted messages elided entirely.
// Diffs are emitted against the visible list, which is what the
// presentation layer renders.
//
// The deletion-marker feed populates a local MarkerSet before any message
// batch is applied, so overlay checks are synchronous and can never apply
// out of order relative to list mutations.
type ChatSession struct {
	viewerId string
	chatId   string
	msgs     feed.Feed[entity.Message]
	markers  feed.Feed[entity.DeletionMarker]
	receipts *ReceiptMachine
	listener func([]Change[entity.Message])
	onError  func(error)
	log      *zap.SugaredLogger
	metrics  *metrics.Metrics

	mu        sync.RWMutex
	all       *Reconciler[entity.Message]
	visible   *Reconciler[entity.Message]
	markerSet *MarkerSet
	err       error

	// life bounds the receipt writes spawned off renders; it is cancelled
	// with the session so no read commits for a closed view.
	life context.Context
	stop context.CancelFunc

	done      chan struct{}
	closeOnce sync.Once
}

func NewChatSession(
	viewerId, chatId string,
	msgs feed.Feed[entity.Message],
	markers feed.Feed[entity.DeletionMarker],
	receipts *ReceiptMachine,
	listener func([]Change[entity.Message]),
	onError func(error),
	log *zap.SugaredLogger,
	m *metrics.Metrics,
) *ChatSession {
	less := entity.Message.Before
	life, stop := context.WithCancel(context.Background())
	return &ChatSession{
		viewerId:  viewerId,
		chatId:    chatId,
		msgs:      msgs,
		markers:   markers,
		receipts:  receipts,
		listener:  listener,
		onError:   onError,
		log:       log,
		metrics:   m,
		all:       NewReconciler[entity.Message](less),
		visible:   NewReconciler[entity.Message](less),
		markerSet: NewMarkerSet(),
		life:      life,
		stop:      stop,
		done:      make(chan struct{}),
	}
}

// Run drives the session until a feed terminates, the context is
// cancelled, or Close is called. The marker feed's initial population is
// consumed before any message batch so that visibility decisions for the
// initial timeline are already local.
func (s *ChatSession) Run(ctx context.Context) {
	defer s.stop()
	defer s.msgs.Close()
	defer s.markers.Close()

	select {
	case <-ctx.Done():
		return
	case <-s.done:
		return
	case b, ok := <-s.markers.Events():
		if !ok {
			s.fail("markers", s.markers.Err())
			return
		}
		s.applyMarkers(b)
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.done:
			return
		case b, ok := <-s.msgs.Events():
			if !ok {
				s.fail("messages", s.msgs.Err())
				return
			}
			s.applyMessages(b)
		case b, ok := <-s.markers.Events():
			if !ok {
				s.fail("markers", s.markers.Err())
				return
			}
			s.applyMarkers(b)
		}
	}
}

func (s *ChatSession) applyMessages(b feed.Batch[entity.Message]) {
	var changes []Change[entity.Message]
	var rendered []entity.Message

	s.mu.Lock()
	if b.Initial {
		vis := feed.Batch[entity.Message]{Initial: true}
		for _, ev := range b.Events {
			s.metrics.FeedEvent("messages", ev.Kind.String())
			if ev.Kind == feed.Removed {
				continue
			}
			if s.markerSet.Visible(ev.Doc, s.viewerId) {
				vis.Events = append(vis.Events, ev)
			}
		}
		s.all.ApplyBatch(b)
		changes = s.visible.ApplyBatch(vis)
		rendered = s.visible.Snapshot()
	} else {
		for _, ev := range b.Events {
			s.metrics.FeedEvent("messages", ev.Kind.String())
			ev = s.guardStatus(ev)
			s.all.Apply(ev)

			switch ev.Kind {
			case feed.Added, feed.Modified:
				if s.markerSet.Visible(ev.Doc, s.viewerId) {
					changes = append(changes, s.visible.Apply(ev)...)
					rendered = append(rendered, ev.Doc)
				} else {
					// Hidden for this viewer: elide, removing it if an
					// earlier event had made it visible.
					changes = append(changes, s.visible.Apply(feed.Event[entity.Message]{Kind: feed.Removed, ID: ev.ID})...)
				}
			case feed.Removed:
				changes = append(changes, s.visible.Apply(ev)...)
			}
		}
	}
	s.mu.Unlock()

	s.emit(changes)

	// Delivering a visible message to the open view is its render; the
	// receipt machine filters own and already-read messages itself.
	for _, msg := range rendered {
		s.receipts.OnRender(s.life, msg)
	}
}

// guardStatus keeps a message's status monotonic: if the local cache has
// already seen a further-progressed status, a stale echo must not regress
// it.
func (s *ChatSession) guardStatus(ev feed.Event[entity.Message]) feed.Event[entity.Message] {
	if ev.Kind != feed.Modified && ev.Kind != feed.Added {
		return ev
	}
	if local, ok := s.all.Get(ev.ID); ok {
		if entity.StatusRank(local.Status) > entity.StatusRank(ev.Doc.Status) {
			ev.Doc.Status = local.Status
		}
	}
	return ev
}

func (s *ChatSession) applyMarkers(b feed.Batch[entity.DeletionMarker]) {
	var changes []Change[entity.Message]

	s.mu.Lock()
	s.markerSet.ApplyBatch(b)
	if !b.Initial {
		for _, ev := range b.Events {
			s.metrics.FeedEvent("chat_markers", ev.Kind.String())
			if ev.Kind == feed.Removed || ev.Doc.UserId != s.viewerId {
				continue
			}
			changes = append(changes, s.visible.Apply(feed.Event[entity.Message]{Kind: feed.Removed, ID: ev.Doc.MessageId})...)
		}
	}
	s.mu.Unlock()

	s.emit(changes)
}

func (s *ChatSession) emit(changes []Change[entity.Message]) {
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

func (s *ChatSession) fail(name string, cause error) {
	if cause == nil {
		return
	}
	err := &feed.Error{Feed: name, Err: cause}

	s.mu.Lock()
	s.err = err
	s.mu.Unlock()

	s.metrics.FeedError(name)
	s.log.Errorw("chat feed terminated", "viewerId", s.viewerId, "chatId", s.chatId, "feed", name, "error", cause)
	if s.onError != nil {
		s.onError(err)
	}
}

// Err reports the terminal feed error, if any.
func (s *ChatSession) Err() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.err
}

// Snapshot returns a copy of the viewer-visible, ascending timeline.
func (s *ChatSession) Snapshot() []entity.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visible.Snapshot()
}

// Close unsubscribes both feeds and cancels any in-flight receipt write;
// no state mutation or notification happens for a closed session.
func (s *ChatSession) Close() {
	s.closeOnce.Do(func() {
		close(s.done)
		s.stop()
		s.msgs.Close()
		s.markers.Close()
	})
}
