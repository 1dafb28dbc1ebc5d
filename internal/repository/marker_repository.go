package repository

import (
	"context"

	"chatsync/internal/entity"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type MarkerRepository interface {
	Create(ctx context.Context, chatId, messageId, userId string) error
	MessageIds(ctx context.Context, chatId, userId string) ([]string, error)
}

type markerRepository struct {
	db *mongo.Database
}

func NewMarkerRepository(db *mongo.Database) MarkerRepository {
	return &markerRepository{
		db: db,
	}
}

// Create writes a deletion marker hiding messageId for userId. The composite
// id plus upsert makes repeat calls idempotent.
func (r *markerRepository) Create(ctx context.Context, chatId, messageId, userId string) error {
	collection := r.db.Collection("message_markers")

	marker := entity.DeletionMarker{
		Id:        entity.MarkerID(messageId, userId),
		ChatId:    chatId,
		MessageId: messageId,
		UserId:    userId,
	}

	filter := bson.M{"_id": marker.Id}
	update := bson.M{"$setOnInsert": marker}
	opts := options.Update().SetUpsert(true)

	_, err := collection.UpdateOne(ctx, filter, update, opts)
	return err
}

// MessageIds returns the ids of every message userId has hidden in the chat.
func (r *markerRepository) MessageIds(ctx context.Context, chatId, userId string) ([]string, error) {
	collection := r.db.Collection("message_markers")
	filter := bson.M{"chatId": chatId, "userId": userId}

	cursor, err := collection.Find(ctx, filter)
	if err != nil {
		return nil, err
	}

	var markers []entity.DeletionMarker
	err = cursor.All(ctx, &markers)
	if err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(markers))
	for _, marker := range markers {
		ids = append(ids, marker.MessageId)
	}

	return ids, nil
}
