package entities

import (
	"fmt"

	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/schemas"

	"go.uber.org/zap"
)

// MessageHandler runs on the room goroutine as soon as the message is routed.
type MessageHandler func(room *Room, session *Session, message schemas.InboundMessage) error

// CommandFunc is a gameplay command. It is queued by the router and applied at
// the start of the next tick, before the tick counter advances.
type CommandFunc func(state *State, sessionId string, message schemas.InboundMessage)

// Router must be fully configured before the room using it starts.
type Router struct {
	handlers map[string]MessageHandler
	commands map[string]CommandFunc
}

func NewRouter() *Router {
	router := &Router{
		handlers: make(map[string]MessageHandler),
		commands: make(map[string]CommandFunc),
	}

	router.Handle(schemas.TypeJoin, handleJoin)
	router.Handle(schemas.TypeLeave, handleLeave)
	router.Handle(schemas.TypePing, handlePing)
	router.Handle(schemas.TypePong, handlePong)

	return router
}

func (router *Router) Handle(messageType string, handler MessageHandler) {
	delete(router.commands, messageType)
	router.handlers[messageType] = handler
}

func (router *Router) Defer(messageType string, command CommandFunc) {
	delete(router.handlers, messageType)
	router.commands[messageType] = command
}

func (router *Router) route(room *Room, session *Session, message schemas.InboundMessage) error {
	if handler, ok := router.handlers[message.Type]; ok {
		return handler(room, session, message)
	}

	if command, ok := router.commands[message.Type]; ok {
		room.pending = append(room.pending, pendingCommand{
			sessionId: session.Id,
			message:   message,
			apply:     command,
		})
		return nil
	}

	return fmt.Errorf("%w: %q", UnknownMessage, message.Type)
}

// join and leave are reserved for future gameplay commands (build, move,
// attack); admission and eviction happen on connect and disconnect.
func handleJoin(room *Room, session *Session, message schemas.InboundMessage) error {
	logx.Logger.Infow(
		"join message received",
		zap.String("roomId", room.Id),
		zap.String("sessionId", session.Id),
		zap.String("username", message.Payload.Username),
		zap.String("faction", message.Payload.Faction),
	)
	return nil
}

func handleLeave(room *Room, session *Session, _ schemas.InboundMessage) error {
	logx.Logger.Infow(
		"leave message received",
		zap.String("roomId", room.Id),
		zap.String("sessionId", session.Id),
	)
	return nil
}

func handlePing(room *Room, session *Session, message schemas.InboundMessage) error {
	return room.send(session, schemas.OutboundMessage{
		Type:    schemas.TypePong,
		Payload: schemas.ProbePayload{Seq: message.Payload.Seq},
	})
}

func handlePong(room *Room, session *Session, message schemas.InboundMessage) error {
	room.completeProbe(session, message.Payload.Seq)
	return nil
}
