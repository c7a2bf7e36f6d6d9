package entities

import "errors"

var (
	// RoomIsFull is returned by Admit when every seat is taken. Room state is
	// left untouched.
	RoomIsFull       = errors.New("room is full")
	UnknownMessage   = errors.New("unknown message type")
	TransportFailure = errors.New("could not deliver message to session")
	RoomClosed       = errors.New("room is closed")
)
