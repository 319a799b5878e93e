package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	appLog "evsched/internal/log"
	"evsched/internal/model"
	"evsched/internal/store"
)

const (
	collectionName = "events"
	defaultTimeout = 5 * time.Second
)

// Store persists events in a MongoDB collection keyed by event ID.
type Store struct {
	client  *mongo.Client
	coll    *mongo.Collection
	timeout time.Duration
}

var _ store.Store = (*Store)(nil)

// Open connects to uri, verifies the connection with a ping and returns a
// Store backed by database.events. timeout bounds every single operation;
// zero selects a 5s default.
func Open(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo: uri is empty")
	}
	if database == "" {
		return nil, errors.New("mongo: database is empty")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, 2*timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}

	coll := client.Database(database).Collection(collectionName)
	index := mongo.IndexModel{Keys: bson.D{{Key: "created_at", Value: -1}}}
	if _, err := coll.Indexes().CreateOne(connectCtx, index); err != nil {
		appLog.Error("mongo: create index failed", err, "collection", collectionName)
	}

	appLog.Info("mongo connected", "database", database, "collection", collectionName)
	return &Store{client: client, coll: coll, timeout: timeout}, nil
}

func (s *Store) Create(ctx context.Context, ev *model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	if _, err := s.coll.InsertOne(ctx, ev); err != nil {
		return fmt.Errorf("error inserting event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var ev model.Event
	if err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&ev); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("error fetching event %s: %w", id, err)
	}
	normalizeTimes(&ev)
	return &ev, nil
}

func (s *Store) List(ctx context.Context) ([]*model.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("error listing events: %w", err)
	}
	defer cursor.Close(ctx)

	events := make([]*model.Event, 0)
	for cursor.Next(ctx) {
		var ev model.Event
		if err := cursor.Decode(&ev); err != nil {
			return nil, fmt.Errorf("error decoding event: %w", err)
		}
		normalizeTimes(&ev)
		events = append(events, &ev)
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor error: %w", err)
	}
	return events, nil
}

func (s *Store) Update(ctx context.Context, ev *model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.ReplaceOne(ctx, bson.M{"_id": ev.ID}, ev)
	if err != nil {
		return fmt.Errorf("error updating event %s: %w", ev.ID, err)
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Upsert(ctx context.Context, ev *model.Event) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": ev.ID}, ev, opts); err != nil {
		return fmt.Errorf("error upserting event %s: %w", ev.ID, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return fmt.Errorf("error deleting event %s: %w", id, err)
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// normalizeTimes converts decoded BSON datetimes to UTC. The driver decodes
// into time.Local by default and BSON keeps millisecond precision only.
func normalizeTimes(ev *model.Event) {
	ev.StartDate = ev.StartDate.UTC()
	ev.CreatedAt = ev.CreatedAt.UTC()
	ev.UpdatedAt = ev.UpdatedAt.UTC()
	if ev.Recurrence != nil && ev.Recurrence.EndDate != nil {
		end := ev.Recurrence.EndDate.UTC()
		ev.Recurrence.EndDate = &end
	}
}
