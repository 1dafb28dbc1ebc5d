package usecase

import (
	"context"
	"errors"
	"strings"
	"time"

	"chatsync/internal/entity"
	"chatsync/internal/repository"
)

var (
	ErrEmptyMessage = errors.New("message text is empty")
	ErrNotSender    = errors.New("only the sender can delete for everyone")
	ErrWrongChat    = errors.New("message does not belong to chat")
)

type MessageUsecase interface {
	Send(ctx context.Context, chatId, senderId, text string) (entity.Message, error)
	DeleteForMe(ctx context.Context, chatId, messageId, userId string) error
	DeleteForEveryone(ctx context.Context, chatId, messageId, userId string) error
	MarkRead(ctx context.Context, messageId string) error
	Visible(ctx context.Context, chatId, userId string) ([]entity.Message, error)

	// UpdateStatus and LatestVisible feed the engine's receipt machine and
	// summary overlay.
	UpdateStatus(ctx context.Context, chatId, messageId, status string) error
	LatestVisible(ctx context.Context, chatId, userId string) (entity.Message, bool, error)
}

type messageUsecase struct {
	messageRepo repository.MessageRepository
	markerRepo  repository.MarkerRepository
	chatRepo    repository.ChatRepository
}

func NewMessageUsecase(messageRepository repository.MessageRepository, markerRepository repository.MarkerRepository, chatRepository repository.ChatRepository) MessageUsecase {
	return &messageUsecase{
		messageRepo: messageRepository,
		markerRepo:  markerRepository,
		chatRepo:    chatRepository,
	}
}

// Send writes a message into the chat. The chat summary is written before
// the message document so a reader that sees the message also sees the
// matching preview; unread counters are bumped last.
func (u *messageUsecase) Send(ctx context.Context, chatId, senderId, text string) (entity.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return entity.Message{}, ErrEmptyMessage
	}

	chat, err := u.chatRepo.Get(ctx, chatId)
	if err != nil {
		return entity.Message{}, err
	}
	if !chat.HasParticipant(senderId) {
		return entity.Message{}, repository.ErrNotParticipant
	}

	now := time.Now().UnixMilli()

	err = u.chatRepo.UpdateSummary(ctx, chatId, entity.Summary{Text: text, Time: now})
	if err != nil {
		return entity.Message{}, err
	}

	message, err := u.messageRepo.Create(ctx, entity.Message{
		ChatId:    chatId,
		SenderId:  senderId,
		Text:      text,
		Timestamp: now,
	})
	if err != nil {
		return entity.Message{}, err
	}

	if err := u.chatRepo.IncrementUnread(ctx, chatId, senderId); err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

// DeleteForMe hides the message for userId only. A missing message is a
// benign no-op: the marker still gets written and simply never matches.
func (u *messageUsecase) DeleteForMe(ctx context.Context, chatId, messageId, userId string) error {
	chat, err := u.chatRepo.Get(ctx, chatId)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userId) {
		return repository.ErrNotParticipant
	}

	message, err := u.messageRepo.Get(ctx, messageId)
	if err == nil && message.ChatId != chatId {
		return ErrWrongChat
	}
	if err != nil && err != repository.ErrMessageNotFound {
		return err
	}

	return u.markerRepo.Create(ctx, chatId, messageId, userId)
}

// DeleteForEveryone removes the message for all participants. Only the
// sender may do this. When the deleted message was the chat's tail, the
// shared summary is recomputed from whatever message is newest now.
func (u *messageUsecase) DeleteForEveryone(ctx context.Context, chatId, messageId, userId string) error {
	message, err := u.messageRepo.Get(ctx, messageId)
	if err != nil {
		if err == repository.ErrMessageNotFound {
			return nil
		}
		return err
	}
	if message.ChatId != chatId {
		return ErrWrongChat
	}
	if message.SenderId != userId {
		return ErrNotSender
	}

	if err := u.messageRepo.Delete(ctx, messageId); err != nil {
		return err
	}

	chat, err := u.chatRepo.Get(ctx, chatId)
	if err != nil {
		return err
	}
	if message.Timestamp < chat.LastMessageTime {
		return nil
	}

	summary := entity.Summary{}
	tail, err := u.messageRepo.Latest(ctx, chatId)
	if err == nil {
		summary = entity.Summary{Text: tail.Text, Time: tail.Timestamp}
	} else if err != repository.ErrNoVisibleMessage {
		return err
	}

	return u.chatRepo.UpdateSummary(ctx, chatId, summary)
}

// MarkRead advances one message to read.
func (u *messageUsecase) MarkRead(ctx context.Context, messageId string) error {
	return u.messageRepo.UpdateStatus(ctx, messageId, entity.StatusRead)
}

// Visible returns the chat timeline minus the messages userId has hidden.
func (u *messageUsecase) Visible(ctx context.Context, chatId, userId string) ([]entity.Message, error) {
	messages, err := u.messageRepo.Index(ctx, chatId)
	if err != nil {
		return nil, err
	}

	hiddenIds, err := u.markerRepo.MessageIds(ctx, chatId, userId)
	if err != nil {
		return nil, err
	}
	if len(hiddenIds) == 0 {
		return messages, nil
	}

	hidden := make(map[string]struct{}, len(hiddenIds))
	for _, id := range hiddenIds {
		hidden[id] = struct{}{}
	}

	visible := make([]entity.Message, 0, len(messages))
	for _, message := range messages {
		if _, ok := hidden[message.Id]; ok {
			continue
		}
		visible = append(visible, message)
	}

	return visible, nil
}

func (u *messageUsecase) UpdateStatus(ctx context.Context, chatId, messageId, status string) error {
	return u.messageRepo.UpdateStatus(ctx, messageId, status)
}

func (u *messageUsecase) LatestVisible(ctx context.Context, chatId, userId string) (entity.Message, bool, error) {
	message, err := u.messageRepo.LatestVisible(ctx, chatId, userId)
	if err != nil {
		if err == repository.ErrNoVisibleMessage {
			return entity.Message{}, false, nil
		}
		return entity.Message{}, false, err
	}
	return message, true, nil
}
