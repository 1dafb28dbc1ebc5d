package usecase

import (
	"context"
	"testing"

	"chatsync/internal/entity"
	"chatsync/internal/repository"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedChat(f *fixture, id string, participants ...string) entity.Chat {
	chat := entity.Chat{Id: id, Participants: participants, UnreadCounts: map[string]int64{}}
	f.chats.chats[id] = chat
	return chat
}

func seedMessage(f *fixture, id, chatId, senderId string, ts int64) entity.Message {
	m := entity.Message{Id: id, ChatId: chatId, SenderId: senderId, Text: "text-" + id, Timestamp: ts, Status: entity.StatusSent}
	f.messages.messages[id] = m
	return m
}

func TestSendWritesSummaryMessageAndCounters(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	sent, err := uc.Send(context.Background(), "c1", "alice", "  hello  ")
	require.NoError(t, err)
	assert.Equal(t, "hello", sent.Text)
	assert.Equal(t, entity.StatusSent, sent.Status)
	assert.NotZero(t, sent.Timestamp)

	chat, _ := f.chats.Get(context.Background(), "c1")
	assert.Equal(t, "hello", chat.LastMessageText)
	assert.Equal(t, sent.Timestamp, chat.LastMessageTime)
	assert.Equal(t, int64(1), chat.UnreadFor("bob"))
	assert.Equal(t, int64(0), chat.UnreadFor("alice"))

	// Summary first, then the message, then the counters.
	assert.Equal(t, []string{"summary:c1", "create:" + sent.Id, "increment:c1"}, f.ops.snapshot())
}

func TestSendRejectsEmptyText(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	_, err := uc.Send(context.Background(), "c1", "alice", "   ")
	assert.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, f.ops.snapshot())
}

func TestSendRejectsNonParticipant(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	_, err := uc.Send(context.Background(), "c1", "mallory", "hi")
	assert.ErrorIs(t, err, repository.ErrNotParticipant)
}

func TestDeleteForMeWritesMarker(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "bob", 10)
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForMe(context.Background(), "c1", "m1", "alice")
	require.NoError(t, err)
	assert.True(t, f.markers.hidden("m1", "alice"))
	assert.False(t, f.markers.hidden("m1", "bob"))

	// Any participant may hide any message, not just their own.
	require.NoError(t, uc.DeleteForMe(context.Background(), "c1", "m1", "bob"))

	// Repeating is a no-op, not an error.
	require.NoError(t, uc.DeleteForMe(context.Background(), "c1", "m1", "alice"))
}

func TestDeleteForMeMissingMessageStillMarks(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForMe(context.Background(), "c1", "gone", "alice")
	require.NoError(t, err)
	assert.True(t, f.markers.hidden("gone", "alice"))
}

func TestDeleteForMeWrongChat(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	seedChat(f, "c2", "alice", "carol")
	seedMessage(f, "m1", "c2", "carol", 10)
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForMe(context.Background(), "c1", "m1", "alice")
	assert.ErrorIs(t, err, ErrWrongChat)
}

func TestDeleteForEveryoneOnlySender(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "bob", 10)
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForEveryone(context.Background(), "c1", "m1", "alice")
	assert.ErrorIs(t, err, ErrNotSender)

	_, err = f.messages.Get(context.Background(), "m1")
	assert.NoError(t, err)
}

func TestDeleteForEveryoneRecomputesTailSummary(t *testing.T) {
	f := newFixture()
	chat := seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "alice", 10)
	seedMessage(f, "m2", "c1", "alice", 20)
	chat.LastMessageText = "text-m2"
	chat.LastMessageTime = 20
	f.chats.chats["c1"] = chat
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForEveryone(context.Background(), "c1", "m2", "alice")
	require.NoError(t, err)

	_, err = f.messages.Get(context.Background(), "m2")
	assert.ErrorIs(t, err, repository.ErrMessageNotFound)

	got, _ := f.chats.Get(context.Background(), "c1")
	assert.Equal(t, "text-m1", got.LastMessageText)
	assert.Equal(t, int64(10), got.LastMessageTime)
}

func TestDeleteForEveryoneNonTailKeepsSummary(t *testing.T) {
	f := newFixture()
	chat := seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "alice", 10)
	seedMessage(f, "m2", "c1", "alice", 20)
	chat.LastMessageText = "text-m2"
	chat.LastMessageTime = 20
	f.chats.chats["c1"] = chat
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForEveryone(context.Background(), "c1", "m1", "alice")
	require.NoError(t, err)

	got, _ := f.chats.Get(context.Background(), "c1")
	assert.Equal(t, "text-m2", got.LastMessageText)
	assert.Equal(t, int64(20), got.LastMessageTime)
}

func TestDeleteForEveryoneLastMessageClearsSummary(t *testing.T) {
	f := newFixture()
	chat := seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "alice", 10)
	chat.LastMessageText = "text-m1"
	chat.LastMessageTime = 10
	f.chats.chats["c1"] = chat
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	err := uc.DeleteForEveryone(context.Background(), "c1", "m1", "alice")
	require.NoError(t, err)

	got, _ := f.chats.Get(context.Background(), "c1")
	assert.Equal(t, "", got.LastMessageText)
	assert.Equal(t, int64(0), got.LastMessageTime)
}

func TestDeleteForEveryoneMissingMessageIsNoOp(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	assert.NoError(t, uc.DeleteForEveryone(context.Background(), "c1", "gone", "alice"))
}

func TestVisibleExcludesHiddenMessages(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "bob", 10)
	seedMessage(f, "m2", "c1", "bob", 20)
	seedMessage(f, "m3", "c1", "alice", 30)
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	require.NoError(t, uc.DeleteForMe(context.Background(), "c1", "m2", "alice"))

	visible, err := uc.Visible(context.Background(), "c1", "alice")
	require.NoError(t, err)
	require.Len(t, visible, 2)
	assert.Equal(t, "m1", visible[0].Id)
	assert.Equal(t, "m3", visible[1].Id)

	// The other participant still sees everything.
	all, err := uc.Visible(context.Background(), "c1", "bob")
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestLatestVisibleSkipsHiddenTail(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "bob", 10)
	seedMessage(f, "m2", "c1", "bob", 20)
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	require.NoError(t, uc.DeleteForMe(context.Background(), "c1", "m2", "alice"))

	tail, ok, err := uc.LatestVisible(context.Background(), "c1", "alice")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "m1", tail.Id)

	require.NoError(t, uc.DeleteForMe(context.Background(), "c1", "m1", "alice"))
	_, ok, err = uc.LatestVisible(context.Background(), "c1", "alice")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMarkReadIsMonotonic(t *testing.T) {
	f := newFixture()
	seedChat(f, "c1", "alice", "bob")
	seedMessage(f, "m1", "c1", "bob", 10)
	uc := NewMessageUsecase(f.messages, f.markers, f.chats)

	require.NoError(t, uc.MarkRead(context.Background(), "m1"))
	got, _ := f.messages.Get(context.Background(), "m1")
	assert.Equal(t, entity.StatusRead, got.Status)

	// A later delivered write must not regress the status.
	require.NoError(t, uc.UpdateStatus(context.Background(), "c1", "m1", entity.StatusDelivered))
	got, _ = f.messages.Get(context.Background(), "m1")
	assert.Equal(t, entity.StatusRead, got.Status)
}
