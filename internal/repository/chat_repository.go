package repository

import (
	"context"
	"errors"

	"chatsync/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrChatNotFound   = errors.New("chat not found")
	ErrNotParticipant = errors.New("user is not a participant")
)

type ChatRepository interface {
	Index(ctx context.Context, userId string) ([]entity.Chat, error)
	Get(ctx context.Context, chatId string) (entity.Chat, error)
	GetOrCreateDirect(ctx context.Context, userId, otherUserId string) (entity.Chat, bool, error)
	CreateGroup(ctx context.Context, groupName string, participants []string) (entity.Chat, error)
	UpdateSummary(ctx context.Context, chatId string, summary entity.Summary) error
	SetFavourite(ctx context.Context, chatId, userId string, favourite bool) error
	IncrementUnread(ctx context.Context, chatId, senderId string) error
	ResetUnread(ctx context.Context, chatId, userId string) error
}

type chatRepository struct {
	db *mongo.Database
}

func NewChatRepository(db *mongo.Database) ChatRepository {
	return &chatRepository{
		db: db,
	}
}

// Index returns all chats the user participates in, newest activity first.
func (r *chatRepository) Index(ctx context.Context, userId string) ([]entity.Chat, error) {
	collection := r.db.Collection("chats")
	filter := bson.M{"participants": userId}
	opts := options.Find().SetSort(bson.D{{Key: "lastMessageTime", Value: -1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var chats []entity.Chat
	err = cursor.All(ctx, &chats)
	if err != nil {
		return nil, err
	}

	return chats, nil
}

// Get returns a chat by ID
func (r *chatRepository) Get(ctx context.Context, chatId string) (entity.Chat, error) {
	collection := r.db.Collection("chats")
	filter := bson.M{"_id": chatId}

	var chat entity.Chat
	err := collection.FindOne(ctx, filter).Decode(&chat)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Chat{}, ErrChatNotFound
		}
		return entity.Chat{}, err
	}

	return chat, nil
}

// GetOrCreateDirect finds the one-to-one chat between two users, creating it
// when it does not exist yet. The second return value reports whether a new
// chat was created.
func (r *chatRepository) GetOrCreateDirect(ctx context.Context, userId, otherUserId string) (entity.Chat, bool, error) {
	collection := r.db.Collection("chats")
	filter := bson.M{
		"isGroup":      false,
		"participants": bson.M{"$all": bson.A{userId, otherUserId}, "$size": 2},
	}

	var chat entity.Chat
	err := collection.FindOne(ctx, filter).Decode(&chat)
	if err == nil {
		return chat, false, nil
	}
	if err != mongo.ErrNoDocuments {
		return entity.Chat{}, false, err
	}

	chat = entity.Chat{
		Id:           uuid.New().String(),
		Participants: []string{userId, otherUserId},
		IsGroup:      false,
		UnreadCounts: map[string]int64{},
	}

	_, err = collection.InsertOne(ctx, chat)
	if err != nil {
		return entity.Chat{}, false, err
	}

	return chat, true, nil
}

// CreateGroup creates a new group chat
func (r *chatRepository) CreateGroup(ctx context.Context, groupName string, participants []string) (entity.Chat, error) {
	collection := r.db.Collection("chats")

	chat := entity.Chat{
		Id:           uuid.New().String(),
		Participants: participants,
		IsGroup:      true,
		GroupName:    groupName,
		UnreadCounts: map[string]int64{},
	}

	_, err := collection.InsertOne(ctx, chat)
	if err != nil {
		return entity.Chat{}, err
	}

	return chat, nil
}

// UpdateSummary sets the chat's last message preview and activity time.
func (r *chatRepository) UpdateSummary(ctx context.Context, chatId string, summary entity.Summary) error {
	collection := r.db.Collection("chats")
	filter := bson.M{"_id": chatId}

	update := bson.M{
		"$set": bson.M{
			"lastMessageText": summary.Text,
			"lastMessageTime": summary.Time,
		},
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrChatNotFound
	}

	return nil
}

// SetFavourite adds or removes the user from the chat's favourite list.
func (r *chatRepository) SetFavourite(ctx context.Context, chatId, userId string, favourite bool) error {
	collection := r.db.Collection("chats")
	filter := bson.M{"_id": chatId}

	var update bson.M
	if favourite {
		update = bson.M{"$addToSet": bson.M{"favourite": userId}}
	} else {
		update = bson.M{"$pull": bson.M{"favourite": userId}}
	}

	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrChatNotFound
	}

	return nil
}

// IncrementUnread bumps the unread counter of every participant except the
// sender.
func (r *chatRepository) IncrementUnread(ctx context.Context, chatId, senderId string) error {
	chat, err := r.Get(ctx, chatId)
	if err != nil {
		return err
	}

	inc := bson.M{}
	for _, participant := range chat.Participants {
		if participant == senderId {
			continue
		}
		inc["unreadCounts."+participant] = 1
	}
	if len(inc) == 0 {
		return nil
	}

	collection := r.db.Collection("chats")
	_, err = collection.UpdateOne(ctx, bson.M{"_id": chatId}, bson.M{"$inc": inc})
	return err
}

// ResetUnread zeroes the user's unread counter for the chat.
func (r *chatRepository) ResetUnread(ctx context.Context, chatId, userId string) error {
	collection := r.db.Collection("chats")
	filter := bson.M{"_id": chatId}

	update := bson.M{
		"$set": bson.M{
			"unreadCounts." + userId: 0,
		},
	}

	_, err := collection.UpdateOne(ctx, filter, update)
	return err
}
