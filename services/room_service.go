package services

import (
	"context"
	"errors"
	"regexp"
	"sort"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/schemas"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type RoomService struct {
	hub *entities.Hub
}

func NewRoomService(hub *entities.Hub) RoomService {
	return RoomService{hub: hub}
}

var (
	RoomNotFound    = errors.New("room not found")
	InvalidRoomName = errors.New("room name must be 1-64 letters, digits, '-' or '_'")
)

var roomNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,64}$`)

func ValidateRoomName(name string) error {
	if !roomNamePattern.MatchString(name) {
		return InvalidRoomName
	}
	return nil
}

// Join admits the connection into the named room, creating the room if
// needed. The returned reader blocks until the session ends.
func (roomService RoomService) Join(
	ctx context.Context,
	roomName string,
	options schemas.JoinOptions,
	connection *websocket.Conn,
) (func(), error) {
	if err := ValidateRoomName(roomName); err != nil {
		return nil, err
	}

	codec, err := schemas.CodecFor(options.Encoding)
	if err != nil {
		return nil, err
	}

	candidate := entities.Candidate{
		Username:   options.Username,
		Faction:    options.Faction,
		Codec:      codec,
		Connection: connection,
	}

	// A room can be reaped between lookup and admission; the second lookup
	// then creates a fresh one.
	for attempt := 0; attempt < 2; attempt++ {
		room := roomService.hub.GetOrCreate(roomName)

		session, err := room.Admit(ctx, candidate)

		if errors.Is(err, entities.RoomClosed) {
			continue
		}

		if err != nil {
			logx.Logger.Infow(
				err.Error(),
				zap.String("desc", "could not admit session"),
				zap.String("roomName", roomName),
			)
			return nil, err
		}

		go session.Write()

		return func() {
			entities.Read(session, room)
		}, nil
	}

	return nil, entities.RoomClosed
}

func (roomService RoomService) Create(name string) (*schemas.RoomSummary, error) {
	if err := ValidateRoomName(name); err != nil {
		return nil, err
	}

	summary := roomService.hub.GetOrCreate(name).Summary()

	return &summary, nil
}

func (roomService RoomService) List() []schemas.RoomSummary {
	rooms := roomService.hub.List()

	summaries := make([]schemas.RoomSummary, 0, len(rooms))
	for _, room := range rooms {
		summaries = append(summaries, room.Summary())
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Name < summaries[j].Name
	})

	return summaries
}

func (roomService RoomService) Find(name string) (*schemas.RoomDetails, error) {
	room := roomService.hub.FindRoom(name)

	if room == nil {
		return nil, RoomNotFound
	}

	return &schemas.RoomDetails{
		RoomSummary: room.Summary(),
		Metrics:     room.Metrics(),
	}, nil
}

func (roomService RoomService) State(ctx context.Context, name string) (*schemas.StateSnapshot, error) {
	room := roomService.hub.FindRoom(name)

	if room == nil {
		return nil, RoomNotFound
	}

	snapshot, err := room.Snapshot(ctx)

	if errors.Is(err, entities.RoomClosed) {
		return nil, RoomNotFound
	}

	if err != nil {
		return nil, err
	}

	return &snapshot, nil
}

func (roomService RoomService) Close(name string) error {
	if !roomService.hub.RemoveRoom(name) {
		return RoomNotFound
	}

	return nil
}
