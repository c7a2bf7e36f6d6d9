package schemas

import (
	"encoding/json"
)

// Lifecycle event types published to the broker and recorded in history.
const (
	EventRoomCreated  = "RoomCreated"
	EventPlayerJoined = "PlayerJoined"
	EventPlayerLeft   = "PlayerLeft"
	EventRoomClosed   = "RoomClosed"
)

type PublisherEvent struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

func RoomCreatedEvent(roomId, roomName string) (string, error) {
	type RoomCreatedContent struct {
		RoomId   string `json:"roomId"`
		RoomName string `json:"roomName"`
	}

	content := RoomCreatedContent{
		RoomId:   roomId,
		RoomName: roomName,
	}

	return encode(EventRoomCreated, content)
}

func PlayerJoinedEvent(roomId string, player PlayerJoinedPayload) (string, error) {
	type PlayerJoinedContent struct {
		RoomId   string `json:"roomId"`
		PlayerId string `json:"playerId"`
		Username string `json:"username"`
		Faction  string `json:"faction"`
	}

	content := PlayerJoinedContent{
		RoomId:   roomId,
		PlayerId: player.Id,
		Username: player.Username,
		Faction:  player.Faction,
	}

	return encode(EventPlayerJoined, content)
}

func PlayerLeftEvent(roomId, playerId string) (string, error) {
	type PlayerLeftContent struct {
		RoomId   string `json:"roomId"`
		PlayerId string `json:"playerId"`
	}

	content := PlayerLeftContent{
		RoomId:   roomId,
		PlayerId: playerId,
	}

	return encode(EventPlayerLeft, content)
}

func RoomClosedEvent(roomId, roomName, reason string, tick uint64) (string, error) {
	type RoomClosedContent struct {
		RoomId   string `json:"roomId"`
		RoomName string `json:"roomName"`
		Reason   string `json:"reason"`
		Tick     uint64 `json:"tick"`
	}

	content := RoomClosedContent{
		RoomId:   roomId,
		RoomName: roomName,
		Reason:   reason,
		Tick:     tick,
	}

	return encode(EventRoomClosed, content)
}

func encode(eventType string, content any) (string, error) {
	message, err := json.Marshal(content)
	if err != nil {
		return "", err
	}

	event := PublisherEvent{
		Type:    eventType,
		Content: string(message),
	}

	e, err := json.Marshal(event)
	if err != nil {
		return "", err
	}

	return string(e), nil
}
