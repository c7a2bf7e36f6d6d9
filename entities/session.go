package entities

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/schemas"
	"github.com/gorilla/websocket"

	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Session is one client connection inside a room. The room's run goroutine
// owns Player and probe; the mutex only guards the send channel.
type Session struct {
	Id     string
	RoomId string
	Player *Player
	// To keep track of closed channel
	IsClosed   bool
	Connection *websocket.Conn
	Message    chan []byte

	codec          schemas.Codec
	probe          Probe
	connectionOpen bool
	mutex          sync.Mutex
}

func newSession(id, roomId string, player *Player, connection *websocket.Conn, codec schemas.Codec, bufferSize int) *Session {
	if codec == nil {
		codec = schemas.JSONCodec{}
	}
	return &Session{
		Id:             id,
		RoomId:         roomId,
		Player:         player,
		Connection:     connection,
		Message:        make(chan []byte, bufferSize),
		codec:          codec,
		connectionOpen: connection != nil,
	}
}

func (session *Session) Codec() schemas.Codec {
	return session.codec
}

// Send queues a frame without blocking. A closed session or a full buffer is
// a TransportFailure; the caller evicts the session.
func (session *Session) Send(message []byte) error {
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.IsClosed {
		return fmt.Errorf("%w: session %s is closed", TransportFailure, session.Id)
	}

	select {
	case session.Message <- message:
		return nil
	default:
		return fmt.Errorf("%w: send buffer of session %s is full", TransportFailure, session.Id)
	}
}

// release stops accepting messages. Frames already queued are still flushed
// by Write, which then closes the connection.
func (session *Session) release() {
	// We are using mutex to make sure IsClosed value is evaluated correctly
	// when reading its value at the same time.
	// https://go101.org/article/channel-closing.html
	session.mutex.Lock()
	defer session.mutex.Unlock()

	if !session.IsClosed {
		close(session.Message)
		session.IsClosed = true
	}
}

// Kick releases the session and drops the connection immediately.
func (session *Session) Kick() {
	session.release()

	session.mutex.Lock()
	defer session.mutex.Unlock()

	// Sessions admitted in tests or rejected early have no connection.
	if session.Connection == nil || !session.connectionOpen {
		return
	}
	session.connectionOpen = false

	if err := session.Connection.Close(); err != nil {
		logx.Logger.Errorw(
			err.Error(),
			zap.String("desc", "could not close session connection"),
			zap.String("sessionId", session.Id),
		)
	}
}

func (session *Session) Write() {
	ticker := time.NewTicker(pingPeriod)

	defer func() {
		ticker.Stop()
		session.Kick()
	}()

	for {
		select {
		case message, ok := <-session.Message:
			_ = session.Connection.SetWriteDeadline(time.Now().Add(writeWait))

			if !ok {
				logx.Logger.Debugw(
					"session channel is closed!",
					zap.String("sessionId", session.Id),
				)
				_ = session.Connection.WriteMessage(
					websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				)
				return
			}

			if err := session.Connection.WriteMessage(session.codec.FrameType(), message); err != nil {
				logx.Logger.Warnw(
					err.Error(),
					zap.String("desc", "could not write session message"),
					zap.String("sessionId", session.Id),
				)
				return
			}
		case <-ticker.C:
			_ = session.Connection.SetWriteDeadline(time.Now().Add(writeWait))
			if err := session.Connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// Read pumps inbound frames into the room until the connection drops, then
// evicts the session.
func Read(session *Session, room *Room) {
	defer func() {
		session.Kick()
		room.Evict(session.Id)
	}()

	connection := session.Connection
	connection.SetReadLimit(maxMessageSize)
	_ = connection.SetReadDeadline(time.Now().Add(pongWait))
	connection.SetPongHandler(func(string) error {
		return connection.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		frameType, data, err := connection.ReadMessage()

		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				logx.Logger.Warnw(
					err.Error(),
					zap.String("desc", "could not read session message"),
					zap.String("sessionId", session.Id),
				)
			}
			break
		}

		_ = connection.SetReadDeadline(time.Now().Add(pongWait))

		var message schemas.InboundMessage
		if err := schemas.CodecForFrame(frameType).Unmarshal(data, &message); err != nil {
			logx.Logger.Infow(
				err.Error(),
				zap.String("desc", "discarding malformed message"),
				zap.String("sessionId", session.Id),
			)
			continue
		}

		if err := room.Dispatch(session.Id, message); errors.Is(err, RoomClosed) {
			break
		}
	}
}
