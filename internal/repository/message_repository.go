package repository

import (
	"context"
	"errors"
	"time"

	"chatsync/internal/entity"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrNoVisibleMessage = errors.New("no visible message")
)

type MessageRepository interface {
	Index(ctx context.Context, chatId string) ([]entity.Message, error)
	Get(ctx context.Context, messageId string) (entity.Message, error)
	Create(ctx context.Context, message entity.Message) (entity.Message, error)
	Delete(ctx context.Context, messageId string) error
	UpdateStatus(ctx context.Context, messageId, status string) error
	MarkChatRead(ctx context.Context, chatId, readerId string) error
	Latest(ctx context.Context, chatId string) (entity.Message, error)
	LatestVisible(ctx context.Context, chatId, userId string) (entity.Message, error)
}

type messageRepository struct {
	db *mongo.Database
}

func NewMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		db: db,
	}
}

// Index returns all messages of a chat in ascending timeline order.
func (r *messageRepository) Index(ctx context.Context, chatId string) ([]entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"chatId": chatId}
	opts := options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}})

	cursor, err := collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}

	var messages []entity.Message
	err = cursor.All(ctx, &messages)
	if err != nil {
		return nil, err
	}

	return messages, nil
}

// Get returns a message by ID
func (r *messageRepository) Get(ctx context.Context, messageId string) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}

	var message entity.Message
	err := collection.FindOne(ctx, filter).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrMessageNotFound
		}
		return entity.Message{}, err
	}

	return message, nil
}

// Create inserts a new message, stamping id, timestamp and initial status.
func (r *messageRepository) Create(ctx context.Context, message entity.Message) (entity.Message, error) {
	collection := r.db.Collection("messages")
	message.Id = uuid.New().String()
	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	message.Status = entity.StatusSent

	_, err := collection.InsertOne(ctx, message)
	if err != nil {
		return entity.Message{}, err
	}

	return message, nil
}

// Delete removes a message for everyone.
func (r *messageRepository) Delete(ctx context.Context, messageId string) error {
	collection := r.db.Collection("messages")
	filter := bson.M{"_id": messageId}

	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrMessageNotFound
	}

	return nil
}

// UpdateStatus advances a message's delivery status. The filter keeps the
// progression monotonic: a write that would move the status backwards
// matches nothing and is a no-op.
func (r *messageRepository) UpdateStatus(ctx context.Context, messageId, status string) error {
	collection := r.db.Collection("messages")

	var behind []string
	switch status {
	case entity.StatusDelivered:
		behind = []string{entity.StatusSent}
	case entity.StatusRead:
		behind = []string{entity.StatusSent, entity.StatusDelivered}
	default:
		return nil
	}

	filter := bson.M{
		"_id":    messageId,
		"status": bson.M{"$in": behind},
	}
	update := bson.M{"$set": bson.M{"status": status}}

	_, err := collection.UpdateMany(ctx, filter, update)
	return err
}

// MarkChatRead marks every message in the chat not sent by readerId as read.
func (r *messageRepository) MarkChatRead(ctx context.Context, chatId, readerId string) error {
	collection := r.db.Collection("messages")
	filter := bson.M{
		"chatId":   chatId,
		"senderId": bson.M{"$ne": readerId},
		"status":   bson.M{"$in": bson.A{entity.StatusSent, entity.StatusDelivered}},
	}
	update := bson.M{"$set": bson.M{"status": entity.StatusRead}}

	_, err := collection.UpdateMany(ctx, filter, update)
	return err
}

// Latest returns the chat's newest message regardless of any viewer's
// deletion markers.
func (r *messageRepository) Latest(ctx context.Context, chatId string) (entity.Message, error) {
	collection := r.db.Collection("messages")
	filter := bson.M{"chatId": chatId}
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var message entity.Message
	err := collection.FindOne(ctx, filter, opts).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrNoVisibleMessage
		}
		return entity.Message{}, err
	}

	return message, nil
}

// LatestVisible returns the newest message of the chat that userId has not
// hidden with a deletion marker.
func (r *messageRepository) LatestVisible(ctx context.Context, chatId, userId string) (entity.Message, error) {
	markers := r.db.Collection("message_markers")
	cursor, err := markers.Find(ctx, bson.M{"chatId": chatId, "userId": userId})
	if err != nil {
		return entity.Message{}, err
	}

	var hidden []entity.DeletionMarker
	if err := cursor.All(ctx, &hidden); err != nil {
		return entity.Message{}, err
	}

	hiddenIds := make(bson.A, 0, len(hidden))
	for _, marker := range hidden {
		hiddenIds = append(hiddenIds, marker.MessageId)
	}

	collection := r.db.Collection("messages")
	filter := bson.M{"chatId": chatId}
	if len(hiddenIds) > 0 {
		filter["_id"] = bson.M{"$nin": hiddenIds}
	}
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var message entity.Message
	err = collection.FindOne(ctx, filter, opts).Decode(&message)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return entity.Message{}, ErrNoVisibleMessage
		}
		return entity.Message{}, err
	}

	return message, nil
}
