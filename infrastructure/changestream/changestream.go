// Package changestream implements the change-feed contract on MongoDB
// change streams: each subscription emits the current query result as one
// initial batch, then live Added/Modified/Removed events until the stream
// breaks or the feed is closed.
package changestream

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"chatsync/internal/entity"
	"chatsync/internal/feed"
)

const (
	collChats    = "chats"
	collMessages = "messages"
	collMarkers  = "message_markers"
)

// Factory opens feeds against one database.
type Factory struct {
	db  *mongo.Database
	log *zap.SugaredLogger
}

func NewFactory(db *mongo.Database, log *zap.SugaredLogger) *Factory {
	return &Factory{db: db, log: log}
}

// Chats subscribes to the chats containing userId, ordered by
// last-message time descending.
func (f *Factory) Chats(ctx context.Context, userId string) (feed.Feed[entity.Chat], error) {
	return open[entity.Chat](ctx, f, "chats",
		f.db.Collection(collChats),
		bson.M{"participants": userId},
		bson.D{{Key: "lastMessageTime", Value: -1}},
		matchOrDelete(bson.D{{Key: "fullDocument.participants", Value: userId}}),
	)
}

// Messages subscribes to one chat's messages, ascending by timestamp.
func (f *Factory) Messages(ctx context.Context, chatId string) (feed.Feed[entity.Message], error) {
	return open[entity.Message](ctx, f, "messages",
		f.db.Collection(collMessages),
		bson.M{"chatId": chatId},
		bson.D{{Key: "timestamp", Value: 1}},
		matchOrDelete(bson.D{{Key: "fullDocument.chatId", Value: chatId}}),
	)
}

// ChatMarkers subscribes to userId's deletion markers within one chat.
func (f *Factory) ChatMarkers(ctx context.Context, chatId, userId string) (feed.Feed[entity.DeletionMarker], error) {
	return open[entity.DeletionMarker](ctx, f, "chat_markers",
		f.db.Collection(collMarkers),
		bson.M{"chatId": chatId, "userId": userId},
		bson.D{{Key: "_id", Value: 1}},
		matchOrDelete(bson.D{
			{Key: "fullDocument.chatId", Value: chatId},
			{Key: "fullDocument.userId", Value: userId},
		}),
	)
}

// UserMarkers subscribes to all of userId's deletion markers.
func (f *Factory) UserMarkers(ctx context.Context, userId string) (feed.Feed[entity.DeletionMarker], error) {
	return open[entity.DeletionMarker](ctx, f, "user_markers",
		f.db.Collection(collMarkers),
		bson.M{"userId": userId},
		bson.D{{Key: "_id", Value: 1}},
		matchOrDelete(bson.D{{Key: "fullDocument.userId", Value: userId}}),
	)
}

// matchOrDelete scopes the stream to matching full documents while still
// letting delete events through: deletes carry no full document, so they
// cannot be filtered server-side. Foreign deletes reach the reconciler as
// removals of unknown ids, which it treats as no-ops.
func matchOrDelete(match bson.D) bson.D {
	return bson.D{{Key: "$or", Value: bson.A{
		bson.D{{Key: "operationType", Value: "delete"}},
		match,
	}}}
}

type document interface {
	EntityID() string
}

type stream[T document] struct {
	name   string
	events chan feed.Batch[T]
	cancel context.CancelFunc
	log    *zap.SugaredLogger

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

// open starts the change stream before running the initial query, so no
// write landing between the two is ever missed; the reconciler absorbs
// the resulting duplicates.
func open[T document](ctx context.Context, f *Factory, name string, coll *mongo.Collection, filter bson.M, sort bson.D, match bson.D) (feed.Feed[T], error) {
	ctx, cancel := context.WithCancel(ctx)

	pipeline := mongo.Pipeline{bson.D{{Key: "$match", Value: match}}}
	cs, err := coll.Watch(ctx, pipeline, options.ChangeStream().SetFullDocument(options.UpdateLookup))
	if err != nil {
		cancel()
		return nil, err
	}

	s := &stream[T]{
		name:   name,
		events: make(chan feed.Batch[T], 16),
		cancel: cancel,
		log:    f.log,
	}
	go s.run(ctx, coll, cs, filter, sort)
	return s, nil
}

func (s *stream[T]) run(ctx context.Context, coll *mongo.Collection, cs *mongo.ChangeStream, filter bson.M, sort bson.D) {
	defer close(s.events)
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = cs.Close(closeCtx)
	}()

	initial, err := s.initialBatch(ctx, coll, filter, sort)
	if err != nil {
		s.terminate(err)
		return
	}
	select {
	case s.events <- initial:
	case <-ctx.Done():
		return
	}

	for cs.Next(ctx) {
		var change changeDoc[T]
		if err := cs.Decode(&change); err != nil {
			s.terminate(err)
			return
		}
		ev, ok := change.toEvent()
		if !ok {
			continue
		}
		select {
		case s.events <- feed.Batch[T]{Events: []feed.Event[T]{ev}}:
		case <-ctx.Done():
			return
		}
	}
	if err := cs.Err(); err != nil && !errors.Is(err, context.Canceled) {
		s.terminate(err)
	}
}

func (s *stream[T]) initialBatch(ctx context.Context, coll *mongo.Collection, filter bson.M, sort bson.D) (feed.Batch[T], error) {
	cur, err := coll.Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return feed.Batch[T]{}, err
	}
	var docs []T
	if err := cur.All(ctx, &docs); err != nil {
		return feed.Batch[T]{}, err
	}

	batch := feed.Batch[T]{Initial: true, Events: make([]feed.Event[T], 0, len(docs))}
	for i, doc := range docs {
		batch.Events = append(batch.Events, feed.Event[T]{
			Kind:     feed.Added,
			ID:       doc.EntityID(),
			Doc:      doc,
			OldIndex: -1,
			NewIndex: i,
		})
	}
	return batch, nil
}

func (s *stream[T]) terminate(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	s.log.Errorw("change stream terminated", "feed", s.name, "error", err)
}

func (s *stream[T]) Events() <-chan feed.Batch[T] {
	return s.events
}

// Err returns the terminal failure, nil after a deliberate Close.
func (s *stream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream[T]) Close() {
	s.closeOnce.Do(s.cancel)
}

type changeDoc[T document] struct {
	OperationType string `bson:"operationType"`
	DocumentKey   struct {
		ID string `bson:"_id"`
	} `bson:"documentKey"`
	FullDocument T `bson:"fullDocument"`
}

func (c changeDoc[T]) toEvent() (feed.Event[T], bool) {
	ev := feed.Event[T]{ID: c.DocumentKey.ID, OldIndex: -1, NewIndex: -1}
	switch c.OperationType {
	case "insert":
		ev.Kind = feed.Added
		ev.Doc = c.FullDocument
	case "update", "replace":
		// With UpdateLookup the looked-up document is null when it was
		// deleted before the lookup ran. The document is gone either way,
		// so surface the removal instead of a zero-value document.
		if c.FullDocument.EntityID() == "" {
			ev.Kind = feed.Removed
			return ev, true
		}
		ev.Kind = feed.Modified
		ev.Doc = c.FullDocument
	case "delete":
		ev.Kind = feed.Removed
	default:
		return ev, false
	}
	return ev, true
}
