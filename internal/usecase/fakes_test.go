package usecase

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"chatsync/internal/entity"
	"chatsync/internal/repository"
)

// In-memory fakes mirroring the mongo repositories' contracts, with an
// operation log so tests can assert write ordering.

type fakeChatRepo struct {
	mu    sync.Mutex
	chats map[string]entity.Chat
	ops   *opLog
}

type fakeMessageRepo struct {
	mu       sync.Mutex
	messages map[string]entity.Message
	markers  *fakeMarkerRepo
	nextId   int
	ops      *opLog
}

type fakeMarkerRepo struct {
	mu      sync.Mutex
	markers map[string]entity.DeletionMarker
	ops     *opLog
}

type fakeUserUc struct {
	users map[string]entity.User
}

type opLog struct {
	mu  sync.Mutex
	ops []string
}

func (l *opLog) add(op string) {
	l.mu.Lock()
	l.ops = append(l.ops, op)
	l.mu.Unlock()
}

func (l *opLog) snapshot() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.ops))
	copy(out, l.ops)
	return out
}

type fixture struct {
	chats    *fakeChatRepo
	messages *fakeMessageRepo
	markers  *fakeMarkerRepo
	users    *fakeUserUc
	ops      *opLog
}

func newFixture() *fixture {
	ops := &opLog{}
	markers := &fakeMarkerRepo{markers: make(map[string]entity.DeletionMarker), ops: ops}
	return &fixture{
		chats:    &fakeChatRepo{chats: make(map[string]entity.Chat), ops: ops},
		messages: &fakeMessageRepo{messages: make(map[string]entity.Message), markers: markers, ops: ops},
		markers:  markers,
		users:    &fakeUserUc{users: make(map[string]entity.User)},
		ops:      ops,
	}
}

// fakeChatRepo

func (r *fakeChatRepo) Index(ctx context.Context, userId string) ([]entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Chat
	for _, c := range r.chats {
		if c.HasParticipant(userId) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastMessageTime > out[j].LastMessageTime })
	return out, nil
}

func (r *fakeChatRepo) Get(ctx context.Context, chatId string) (entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatId]
	if !ok {
		return entity.Chat{}, repository.ErrChatNotFound
	}
	return c, nil
}

func (r *fakeChatRepo) GetOrCreateDirect(ctx context.Context, userId, otherUserId string) (entity.Chat, bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.chats {
		if !c.IsGroup && c.HasParticipant(userId) && c.HasParticipant(otherUserId) && len(c.Participants) == 2 {
			return c, false, nil
		}
	}
	chat := entity.Chat{
		Id:           "direct-" + userId + "-" + otherUserId,
		Participants: []string{userId, otherUserId},
		UnreadCounts: map[string]int64{},
	}
	r.chats[chat.Id] = chat
	return chat, true, nil
}

func (r *fakeChatRepo) CreateGroup(ctx context.Context, groupName string, participants []string) (entity.Chat, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	chat := entity.Chat{
		Id:           fmt.Sprintf("group-%d", len(r.chats)+1),
		Participants: participants,
		IsGroup:      true,
		GroupName:    groupName,
		UnreadCounts: map[string]int64{},
	}
	r.chats[chat.Id] = chat
	return chat, nil
}

func (r *fakeChatRepo) UpdateSummary(ctx context.Context, chatId string, summary entity.Summary) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatId]
	if !ok {
		return repository.ErrChatNotFound
	}
	c.LastMessageText = summary.Text
	c.LastMessageTime = summary.Time
	r.chats[chatId] = c
	r.ops.add("summary:" + chatId)
	return nil
}

func (r *fakeChatRepo) SetFavourite(ctx context.Context, chatId, userId string, favourite bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatId]
	if !ok {
		return repository.ErrChatNotFound
	}
	kept := c.Favourite[:0]
	for _, f := range c.Favourite {
		if f != userId {
			kept = append(kept, f)
		}
	}
	c.Favourite = kept
	if favourite {
		c.Favourite = append(c.Favourite, userId)
	}
	r.chats[chatId] = c
	return nil
}

func (r *fakeChatRepo) IncrementUnread(ctx context.Context, chatId, senderId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatId]
	if !ok {
		return repository.ErrChatNotFound
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int64{}
	}
	for _, p := range c.Participants {
		if p != senderId {
			c.UnreadCounts[p]++
		}
	}
	r.chats[chatId] = c
	r.ops.add("increment:" + chatId)
	return nil
}

func (r *fakeChatRepo) ResetUnread(ctx context.Context, chatId, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.chats[chatId]
	if !ok {
		return repository.ErrChatNotFound
	}
	if c.UnreadCounts == nil {
		c.UnreadCounts = map[string]int64{}
	}
	c.UnreadCounts[userId] = 0
	r.chats[chatId] = c
	r.ops.add("reset_unread:" + chatId)
	return nil
}

// fakeMessageRepo

func (r *fakeMessageRepo) Index(ctx context.Context, chatId string) ([]entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Message
	for _, m := range r.messages {
		if m.ChatId == chatId {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	return out, nil
}

func (r *fakeMessageRepo) Get(ctx context.Context, messageId string) (entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageId]
	if !ok {
		return entity.Message{}, repository.ErrMessageNotFound
	}
	return m, nil
}

func (r *fakeMessageRepo) Create(ctx context.Context, message entity.Message) (entity.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextId++
	message.Id = fmt.Sprintf("m%d", r.nextId)
	message.Status = entity.StatusSent
	r.messages[message.Id] = message
	r.ops.add("create:" + message.Id)
	return message, nil
}

func (r *fakeMessageRepo) Delete(ctx context.Context, messageId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.messages[messageId]; !ok {
		return repository.ErrMessageNotFound
	}
	delete(r.messages, messageId)
	r.ops.add("delete:" + messageId)
	return nil
}

func (r *fakeMessageRepo) UpdateStatus(ctx context.Context, messageId, status string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.messages[messageId]
	if !ok {
		return nil
	}
	if entity.StatusRank(status) > entity.StatusRank(m.Status) {
		m.Status = status
		r.messages[messageId] = m
	}
	return nil
}

func (r *fakeMessageRepo) MarkChatRead(ctx context.Context, chatId, readerId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, m := range r.messages {
		if m.ChatId == chatId && m.SenderId != readerId {
			m.Status = entity.StatusRead
			r.messages[id] = m
		}
	}
	r.ops.add("mark_read:" + chatId)
	return nil
}

func (r *fakeMessageRepo) Latest(ctx context.Context, chatId string) (entity.Message, error) {
	msgs, _ := r.Index(ctx, chatId)
	if len(msgs) == 0 {
		return entity.Message{}, repository.ErrNoVisibleMessage
	}
	return msgs[len(msgs)-1], nil
}

func (r *fakeMessageRepo) LatestVisible(ctx context.Context, chatId, userId string) (entity.Message, error) {
	msgs, _ := r.Index(ctx, chatId)
	for i := len(msgs) - 1; i >= 0; i-- {
		if !r.markers.hidden(msgs[i].Id, userId) {
			return msgs[i], nil
		}
	}
	return entity.Message{}, repository.ErrNoVisibleMessage
}

// fakeMarkerRepo

func (r *fakeMarkerRepo) Create(ctx context.Context, chatId, messageId, userId string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := entity.MarkerID(messageId, userId)
	r.markers[id] = entity.DeletionMarker{Id: id, ChatId: chatId, MessageId: messageId, UserId: userId}
	r.ops.add("marker:" + id)
	return nil
}

func (r *fakeMarkerRepo) MessageIds(ctx context.Context, chatId, userId string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.markers {
		if m.ChatId == chatId && m.UserId == userId {
			out = append(out, m.MessageId)
		}
	}
	return out, nil
}

func (r *fakeMarkerRepo) hidden(messageId, userId string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.markers[entity.MarkerID(messageId, userId)]
	return ok
}

// fakeUserUc

func (u *fakeUserUc) Get(ctx context.Context, userId string) (entity.User, error) {
	user, ok := u.users[userId]
	if !ok {
		return entity.User{}, repository.ErrUserNotFound
	}
	return user, nil
}

func (u *fakeUserUc) Index(ctx context.Context, filter entity.UserIndexFilter) ([]entity.User, error) {
	var out []entity.User
	for _, id := range filter.Ids {
		if user, ok := u.users[id]; ok {
			out = append(out, user)
		}
	}
	return out, nil
}

func (u *fakeUserUc) DisplayName(ctx context.Context, userId string) (string, error) {
	user, ok := u.users[userId]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	return user.Name, nil
}

func (u *fakeUserUc) SetOnline(ctx context.Context, userId string, online bool) error {
	return nil
}
