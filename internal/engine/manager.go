package engine

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"chatsync/internal/entity"
	"chatsync/internal/feed"
	"chatsync/pkg/metrics"
)

// FeedFactory opens change-feed subscriptions against the store. Each
// call is a fresh subscription; errors here mean the setup round trip
// failed.
type FeedFactory interface {
	Chats(ctx context.Context, userId string) (feed.Feed[entity.Chat], error)
	Messages(ctx context.Context, chatId string) (feed.Feed[entity.Message], error)
	ChatMarkers(ctx context.Context, chatId, userId string) (feed.Feed[entity.DeletionMarker], error)
	UserMarkers(ctx context.Context, userId string) (feed.Feed[entity.DeletionMarker], error)
}

// Notifier carries engine notifications to a connected presentation
// client.
type Notifier interface {
	Notify(userId string, n Notification)
}

// Notification is the wire envelope for everything the engine pushes.
type Notification struct {
	Type   string `json:"type"`
	ChatId string `json:"chatId,omitempty"`
	Diffs  []Diff `json:"diffs,omitempty"`
	Error  string `json:"error,omitempty"`
}

const (
	NotifyChatList  = "chat_list"
	NotifyMessages  = "messages"
	NotifyFeedError = "feed_error"
)

// Diff is the JSON form of a reconciler change.
type Diff struct {
	Op       string `json:"op"`
	ID       string `json:"id,omitempty"`
	Index    int    `json:"index"`
	OldIndex int    `json:"oldIndex"`
	Item     any    `json:"item,omitempty"`
	Items    any    `json:"items,omitempty"`
}

func (o Op) String() string {
	switch o {
	case OpReset:
		return "reset"
	case OpInsert:
		return "insert"
	case OpUpdate:
		return "update"
	case OpRemove:
		return "remove"
	}
	return "unknown"
}

func wireDiffs[E Entity](changes []Change[E]) []Diff {
	diffs := make([]Diff, 0, len(changes))
	for _, c := range changes {
		d := Diff{Op: c.Op.String(), ID: c.ID, Index: c.Index, OldIndex: c.OldIndex}
		if c.Op == OpReset {
			d.Items = c.Items
		} else if c.Op != OpRemove {
			d.Item = c.Item
		}
		diffs = append(diffs, d)
	}
	return diffs
}

// Manager owns the live sessions: one chat-list session per connected
// viewer, one chat session per (viewer, chat). It bridges session diffs
// to the notifier and tears sessions down on disconnect.
type Manager struct {
	feeds   FeedFactory
	names   NameResolver
	tail    TailReader
	status  StatusWriter
	notify  Notifier
	log     *zap.SugaredLogger
	metrics *metrics.Metrics

	mu    sync.Mutex
	lists map[string]*ChatListSession
	chats map[string]*ChatSession
}

func NewManager(feeds FeedFactory, names NameResolver, tail TailReader, status StatusWriter, notify Notifier, log *zap.SugaredLogger, m *metrics.Metrics) *Manager {
	return &Manager{
		feeds:   feeds,
		names:   names,
		tail:    tail,
		status:  status,
		notify:  notify,
		log:     log,
		metrics: m,
		lists:   make(map[string]*ChatListSession),
		chats:   make(map[string]*ChatSession),
	}
}

func chatKey(userId, chatId string) string {
	return userId + "/" + chatId
}

// OpenList starts (or keeps) the viewer's chat-list session.
func (m *Manager) OpenList(ctx context.Context, userId string) error {
	m.mu.Lock()
	if _, ok := m.lists[userId]; ok {
		m.mu.Unlock()
		return nil
	}
	m.mu.Unlock()

	chats, err := m.feeds.Chats(ctx, userId)
	if err != nil {
		return err
	}
	markers, err := m.feeds.UserMarkers(ctx, userId)
	if err != nil {
		chats.Close()
		return err
	}

	session := NewChatListSession(
		userId, chats, markers, m.names, m.tail,
		func(changes []Change[entity.ChatView]) {
			m.notify.Notify(userId, Notification{Type: NotifyChatList, Diffs: wireDiffs(changes)})
		},
		func(err error) {
			m.notify.Notify(userId, Notification{Type: NotifyFeedError, Error: err.Error()})
			m.CloseList(userId)
		},
		m.log, m.metrics,
	)

	m.mu.Lock()
	if _, ok := m.lists[userId]; ok {
		// Lost the race with a concurrent open; keep the winner.
		m.mu.Unlock()
		session.Close()
		return nil
	}
	m.lists[userId] = session
	m.mu.Unlock()

	go session.Run(ctx)
	return nil
}

// OpenChat starts the viewer's session for one chat, replacing a previous
// one for the same chat.
func (m *Manager) OpenChat(ctx context.Context, userId, chatId string) error {
	msgs, err := m.feeds.Messages(ctx, chatId)
	if err != nil {
		return err
	}
	markers, err := m.feeds.ChatMarkers(ctx, chatId, userId)
	if err != nil {
		msgs.Close()
		return err
	}

	receipts := NewReceiptMachine(userId, m.status, m.log, m.metrics)
	session := NewChatSession(
		userId, chatId, msgs, markers, receipts,
		func(changes []Change[entity.Message]) {
			m.notify.Notify(userId, Notification{Type: NotifyMessages, ChatId: chatId, Diffs: wireDiffs(changes)})
		},
		func(err error) {
			m.notify.Notify(userId, Notification{Type: NotifyFeedError, ChatId: chatId, Error: err.Error()})
			m.CloseChat(userId, chatId)
		},
		m.log, m.metrics,
	)

	key := chatKey(userId, chatId)
	m.mu.Lock()
	if prev, ok := m.chats[key]; ok {
		prev.Close()
	}
	m.chats[key] = session
	m.mu.Unlock()

	go session.Run(ctx)
	return nil
}

// CloseChat unsubscribes the viewer's session for one chat; navigating
// away must stop all mutation for that view.
func (m *Manager) CloseChat(userId, chatId string) {
	key := chatKey(userId, chatId)
	m.mu.Lock()
	session, ok := m.chats[key]
	delete(m.chats, key)
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// CloseList stops the viewer's chat-list session.
func (m *Manager) CloseList(userId string) {
	m.mu.Lock()
	session, ok := m.lists[userId]
	delete(m.lists, userId)
	m.mu.Unlock()

	if ok {
		session.Close()
	}
}

// CloseUser tears down everything the viewer had open (disconnect).
func (m *Manager) CloseUser(userId string) {
	m.mu.Lock()
	list := m.lists[userId]
	delete(m.lists, userId)

	var sessions []*ChatSession
	for key, s := range m.chats {
		if s.viewerId == userId {
			sessions = append(sessions, s)
			delete(m.chats, key)
		}
	}
	m.mu.Unlock()

	if list != nil {
		list.Close()
	}
	for _, s := range sessions {
		s.Close()
	}
}

// ListSnapshot returns the viewer's filtered chat list, if a session is
// open.
func (m *Manager) ListSnapshot(userId string, tab Tab, query string) ([]entity.ChatView, bool) {
	m.mu.Lock()
	session, ok := m.lists[userId]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return session.Filtered(tab, query), true
}

// ChatSnapshot returns the viewer-visible timeline of an open chat.
func (m *Manager) ChatSnapshot(userId, chatId string) ([]entity.Message, bool) {
	m.mu.Lock()
	session, ok := m.chats[chatKey(userId, chatId)]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return session.Snapshot(), true
}
