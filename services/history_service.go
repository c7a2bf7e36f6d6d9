package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/schemas"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	DefaultDatabase = "cncclone"

	gameRoomsCollection   = "gameRooms"
	playersCollection     = "players"
	gameHistoryCollection = "gameHistory"

	connectTimeout = 5 * time.Second
)

// DependencyUnavailable marks an optional collaborator that could not be
// reached. The server keeps running without it.
var DependencyUnavailable = errors.New("dependency unavailable")

type roomPlayerDocument struct {
	Id       string `bson:"id"`
	Username string `bson:"username"`
	Faction  string `bson:"faction"`
}

type gameHistoryDocument struct {
	Id           bson.ObjectID        `bson:"_id"`
	RoomId       string               `bson:"roomId"`
	RoomName     string               `bson:"roomName"`
	Players      []string             `bson:"players"`
	Participants []roomPlayerDocument `bson:"participants"`
	Ticks        uint64               `bson:"ticks"`
	Reason       string               `bson:"reason"`
	CreatedAt    time.Time            `bson:"createdAt"`
	EndedAt      time.Time            `bson:"endedAt"`
}

// HistoryService records rooms, players and finished matches in MongoDB.
type HistoryService struct {
	client   *mongo.Client
	database *mongo.Database
	roster   roster
}

// NewHistoryService connects and creates indexes. Any failure, including an
// empty uri, is reported as DependencyUnavailable.
func NewHistoryService(ctx context.Context, uri, databaseName string) (*HistoryService, error) {
	if uri == "" {
		return nil, fmt.Errorf("%w: no MongoDB URI configured", DependencyUnavailable)
	}

	if databaseName == "" {
		databaseName = DefaultDatabase
	}

	client, err := mongo.Connect(
		options.Client().
			ApplyURI(uri).
			SetServerSelectionTimeout(connectTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: mongodb: %w", DependencyUnavailable, err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongodb: %w", DependencyUnavailable, err)
	}

	history := &HistoryService{
		client:   client,
		database: client.Database(databaseName),
	}

	if err := history.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: mongodb indexes: %w", DependencyUnavailable, err)
	}

	return history, nil
}

func (history *HistoryService) EnsureIndexes(ctx context.Context) error {
	indexes := map[string][]mongo.IndexModel{
		gameRoomsCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "status", Value: 1}}},
			{Keys: bson.D{{Key: "players.id", Value: 1}}},
		},
		playersCollection: {
			{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
			{Keys: bson.D{{Key: "lastActive", Value: 1}}},
		},
		gameHistoryCollection: {
			{Keys: bson.D{{Key: "roomId", Value: 1}}},
			{Keys: bson.D{{Key: "players", Value: 1}}},
			{Keys: bson.D{{Key: "createdAt", Value: 1}}},
		},
	}

	for collection, models := range indexes {
		if _, err := history.database.Collection(collection).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("%s: %w", collection, err)
		}
	}

	return nil
}

func (history *HistoryService) OnLifecycle(ctx context.Context, event entities.LifecycleEvent) error {
	if history == nil {
		return nil
	}

	rooms := history.database.Collection(gameRoomsCollection)
	byRoom := bson.D{{Key: "roomId", Value: event.RoomId}}

	switch event.Type {
	case schemas.EventRoomCreated:
		_, err := rooms.UpdateOne(ctx, byRoom, bson.D{
			{Key: "$setOnInsert", Value: bson.D{
				{Key: "roomId", Value: event.RoomId},
				{Key: "createdAt", Value: event.CreatedAt},
			}},
			{Key: "$set", Value: bson.D{
				{Key: "name", Value: event.RoomName},
				{Key: "status", Value: "open"},
				{Key: "players", Value: bson.A{}},
				{Key: "updatedAt", Value: event.At},
			}},
		}, options.UpdateOne().SetUpsert(true))
		return err

	case schemas.EventPlayerJoined:
		history.roster.join(event.RoomId, roomPlayer(event.Player))

		_, err := rooms.UpdateOne(ctx, byRoom, bson.D{
			{Key: "$push", Value: bson.D{{Key: "players", Value: roomPlayer(event.Player)}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: event.At}}},
		})
		if err != nil {
			return err
		}

		_, err = history.database.Collection(playersCollection).UpdateOne(ctx,
			bson.D{{Key: "username", Value: event.Player.Username}},
			bson.D{
				{Key: "$setOnInsert", Value: bson.D{{Key: "createdAt", Value: event.At}}},
				{Key: "$set", Value: bson.D{
					{Key: "lastActive", Value: event.At},
					{Key: "faction", Value: event.Player.Faction},
				}},
			},
			options.UpdateOne().SetUpsert(true),
		)
		return err

	case schemas.EventPlayerLeft:
		_, err := rooms.UpdateOne(ctx, byRoom, bson.D{
			{Key: "$pull", Value: bson.D{{Key: "players", Value: bson.D{{Key: "id", Value: event.Player.Id}}}}},
			{Key: "$set", Value: bson.D{{Key: "updatedAt", Value: event.At}}},
		})
		return err

	case schemas.EventRoomClosed:
		participants := history.roster.take(event.RoomId)

		_, err := rooms.UpdateOne(ctx, byRoom, bson.D{
			{Key: "$set", Value: bson.D{
				{Key: "status", Value: "closed"},
				{Key: "players", Value: bson.A{}},
				{Key: "reason", Value: event.Reason},
				{Key: "tick", Value: int64(event.Tick)},
				{Key: "updatedAt", Value: event.At},
			}},
		})
		if err != nil {
			return err
		}

		_, err = history.database.Collection(gameHistoryCollection).InsertOne(ctx, historyRecord(event, participants))
		return err
	}

	return nil
}

func (history *HistoryService) Close(ctx context.Context) error {
	if history == nil {
		return nil
	}

	return history.client.Disconnect(ctx)
}

func roomPlayer(player schemas.PlayerJoinedPayload) roomPlayerDocument {
	return roomPlayerDocument{
		Id:       player.Id,
		Username: player.Username,
		Faction:  player.Faction,
	}
}

// historyRecord builds the gameHistory document of a closed room. players
// holds distinct usernames in join order.
func historyRecord(event entities.LifecycleEvent, participants []roomPlayerDocument) gameHistoryDocument {
	record := gameHistoryDocument{
		Id:           bson.NewObjectID(),
		RoomId:       event.RoomId,
		RoomName:     event.RoomName,
		Players:      []string{},
		Participants: participants,
		Ticks:        event.Tick,
		Reason:       event.Reason,
		CreatedAt:    event.CreatedAt,
		EndedAt:      event.At,
	}

	if record.Participants == nil {
		record.Participants = []roomPlayerDocument{}
	}

	seen := make(map[string]bool, len(participants))
	for _, participant := range participants {
		if !seen[participant.Username] {
			seen[participant.Username] = true
			record.Players = append(record.Players, participant.Username)
		}
	}

	return record
}

// roster keeps everyone who joined a room until the room closes, for the
// match history record. The room itself forgets players on eviction.
type roster struct {
	mutex sync.Mutex
	rooms map[string][]roomPlayerDocument
}

func (roster *roster) join(roomId string, player roomPlayerDocument) {
	roster.mutex.Lock()
	defer roster.mutex.Unlock()

	if roster.rooms == nil {
		roster.rooms = make(map[string][]roomPlayerDocument)
	}
	roster.rooms[roomId] = append(roster.rooms[roomId], player)
}

// take returns and forgets the participants of a room.
func (roster *roster) take(roomId string) []roomPlayerDocument {
	roster.mutex.Lock()
	defer roster.mutex.Unlock()

	participants := roster.rooms[roomId]
	delete(roster.rooms, roomId)
	return participants
}
