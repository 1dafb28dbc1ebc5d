package usecase

import (
	"context"
	"errors"
	"strings"

	"chatsync/internal/entity"
	"chatsync/internal/repository"
)

var (
	ErrSelfChat       = errors.New("cannot open a chat with yourself")
	ErrEmptyGroupName = errors.New("group name is empty")
	ErrTooFewMembers  = errors.New("a group needs at least one other member")
	ErrUnknownMember  = errors.New("participant does not exist")
)

type ChatUsecase interface {
	Index(ctx context.Context, userId string) ([]entity.ChatView, error)
	Open(ctx context.Context, chatId, userId string) (entity.Chat, error)
	ToggleFavourite(ctx context.Context, chatId, userId string, favourite bool) error
	CreateDirect(ctx context.Context, userId, otherUserId string) (entity.Chat, error)
	CreateGroup(ctx context.Context, creatorId, groupName string, members []string) (entity.Chat, error)
}

type chatUsecase struct {
	chatRepo    repository.ChatRepository
	messageRepo repository.MessageRepository
	userUC      UserUsecase
}

func NewChatUsecase(chatRepository repository.ChatRepository, messageRepository repository.MessageRepository, userUsecase UserUsecase) ChatUsecase {
	return &chatUsecase{
		chatRepo:    chatRepository,
		messageRepo: messageRepository,
		userUC:      userUsecase,
	}
}

// Index returns the user's chat list as per-viewer projections: display
// name resolved, favourite and unread relative to the viewer, and the
// summary replaced when the viewer has hidden the chat's tail.
func (u *chatUsecase) Index(ctx context.Context, userId string) ([]entity.ChatView, error) {
	chats, err := u.chatRepo.Index(ctx, userId)
	if err != nil {
		return nil, err
	}

	views := make([]entity.ChatView, 0, len(chats))
	for _, chat := range chats {
		view := entity.ChatView{
			Chat:      chat,
			Summary:   entity.Summary{Text: chat.LastMessageText, Time: chat.LastMessageTime},
			Unread:    chat.UnreadFor(userId),
			Favourite: chat.IsFavouriteFor(userId),
		}

		if chat.IsGroup {
			view.DisplayName = chat.GroupName
		} else if other := chat.Counterpart(userId); other != "" {
			name, err := u.userUC.DisplayName(ctx, other)
			if err != nil || name == "" {
				name = "?"
			}
			view.DisplayName = name
		}

		if chat.LastMessageTime > 0 {
			tail, err := u.messageRepo.LatestVisible(ctx, chat.Id, userId)
			if err == repository.ErrNoVisibleMessage {
				view.Summary = entity.Summary{}
			} else if err == nil && tail.Timestamp != chat.LastMessageTime {
				view.Summary = entity.Summary{Text: tail.Text, Time: tail.Timestamp}
			}
		}

		views = append(views, view)
	}

	return views, nil
}

// Open marks the chat as caught up for the user: the unread counter resets
// and every message from others becomes read.
func (u *chatUsecase) Open(ctx context.Context, chatId, userId string) (entity.Chat, error) {
	chat, err := u.chatRepo.Get(ctx, chatId)
	if err != nil {
		return entity.Chat{}, err
	}
	if !chat.HasParticipant(userId) {
		return entity.Chat{}, repository.ErrNotParticipant
	}

	if err := u.chatRepo.ResetUnread(ctx, chatId, userId); err != nil {
		return entity.Chat{}, err
	}
	if err := u.messageRepo.MarkChatRead(ctx, chatId, userId); err != nil {
		return entity.Chat{}, err
	}

	return chat, nil
}

func (u *chatUsecase) ToggleFavourite(ctx context.Context, chatId, userId string, favourite bool) error {
	chat, err := u.chatRepo.Get(ctx, chatId)
	if err != nil {
		return err
	}
	if !chat.HasParticipant(userId) {
		return repository.ErrNotParticipant
	}

	return u.chatRepo.SetFavourite(ctx, chatId, userId, favourite)
}

// CreateDirect opens the one-to-one chat with another user, creating it on
// first contact.
func (u *chatUsecase) CreateDirect(ctx context.Context, userId, otherUserId string) (entity.Chat, error) {
	if userId == otherUserId {
		return entity.Chat{}, ErrSelfChat
	}
	if _, err := u.userUC.Get(ctx, otherUserId); err != nil {
		if err == repository.ErrUserNotFound {
			return entity.Chat{}, ErrUnknownMember
		}
		return entity.Chat{}, err
	}

	chat, _, err := u.chatRepo.GetOrCreateDirect(ctx, userId, otherUserId)
	return chat, err
}

// CreateGroup creates a group chat. The creator always ends up in the
// participant list exactly once.
func (u *chatUsecase) CreateGroup(ctx context.Context, creatorId, groupName string, members []string) (entity.Chat, error) {
	groupName = strings.TrimSpace(groupName)
	if groupName == "" {
		return entity.Chat{}, ErrEmptyGroupName
	}

	participants := []string{creatorId}
	seen := map[string]struct{}{creatorId: {}}
	for _, member := range members {
		if _, ok := seen[member]; ok {
			continue
		}
		seen[member] = struct{}{}
		participants = append(participants, member)
	}
	if len(participants) < 2 {
		return entity.Chat{}, ErrTooFewMembers
	}

	users, err := u.userUC.Index(ctx, entity.UserIndexFilter{Ids: participants})
	if err != nil {
		return entity.Chat{}, err
	}
	if len(users) != len(participants) {
		return entity.Chat{}, ErrUnknownMember
	}

	return u.chatRepo.CreateGroup(ctx, groupName, participants)
}
