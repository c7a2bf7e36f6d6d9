package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/schemas"
	"github.com/amirrezam75/cncrelay/services"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"go.uber.org/zap"
)

const closeWait = time.Second

type RoomService interface {
	Join(ctx context.Context, roomName string, options schemas.JoinOptions, connection *websocket.Conn) (func(), error)
	Create(name string) (*schemas.RoomSummary, error)
	List() []schemas.RoomSummary
	Find(name string) (*schemas.RoomDetails, error)
	State(ctx context.Context, name string) (*schemas.StateSnapshot, error)
	Close(name string) error
}

type RoomHandler struct {
	roomService RoomService
	upgrader    websocket.Upgrader
}

func NewRoomHandler(router chi.Router, roomService RoomService, allowedOrigins []string) {
	roomHandler := RoomHandler{
		roomService: roomService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(allowedOrigins),
		},
	}

	router.Get("/healthz", roomHandler.health)
	router.Get("/rooms", roomHandler.list)
	router.Post("/rooms", roomHandler.create)
	router.Get("/rooms/{name}", roomHandler.find)
	router.Get("/rooms/{name}/state", roomHandler.state)
	router.Delete("/rooms/{name}", roomHandler.close)
	router.Get("/rooms/{name}/join", roomHandler.join)
}

// checkOrigin accepts requests without an Origin header (non-browser
// clients) and any origin when "*" is configured.
func checkOrigin(allowedOrigins []string) func(r *http.Request) bool {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		allowed[origin] = true
	}

	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		return origin == "" || allowed["*"] || allowed[origin]
	}
}

func (roomHandler RoomHandler) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (roomHandler RoomHandler) list(w http.ResponseWriter, _ *http.Request) {
	respond(w, http.StatusOK, roomHandler.roomService.List())
}

func (roomHandler RoomHandler) create(w http.ResponseWriter, r *http.Request) {
	var payload schemas.CreateRoomRequest

	err := decode(&payload, r)
	if err != nil {
		logx.Logger.Infow(err.Error(), zap.String("desc", "could not decode payload"))
		respond(w, http.StatusUnprocessableEntity, schemas.ErrorResponse{Message: "Invalid payload."})
		return
	}

	summary, err := roomHandler.roomService.Create(payload.Name)
	if err != nil {
		respond(w, http.StatusUnprocessableEntity, schemas.ErrorResponse{Message: err.Error()})
		return
	}

	respond(w, http.StatusCreated, summary)
}

func (roomHandler RoomHandler) find(w http.ResponseWriter, r *http.Request) {
	details, err := roomHandler.roomService.Find(chi.URLParam(r, "name"))
	if err != nil {
		roomHandler.fail(w, err)
		return
	}

	respond(w, http.StatusOK, details)
}

func (roomHandler RoomHandler) state(w http.ResponseWriter, r *http.Request) {
	snapshot, err := roomHandler.roomService.State(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		roomHandler.fail(w, err)
		return
	}

	respond(w, http.StatusOK, snapshot)
}

func (roomHandler RoomHandler) close(w http.ResponseWriter, r *http.Request) {
	err := roomHandler.roomService.Close(chi.URLParam(r, "name"))
	if err != nil {
		roomHandler.fail(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (roomHandler RoomHandler) join(w http.ResponseWriter, r *http.Request) {
	roomName := chi.URLParam(r, "name")

	if err := services.ValidateRoomName(roomName); err != nil {
		respond(w, http.StatusUnprocessableEntity, schemas.ErrorResponse{Message: err.Error()})
		return
	}

	query := r.URL.Query()

	options := schemas.JoinOptions{
		Username: query.Get("username"),
		Faction:  query.Get("faction"),
		Encoding: query.Get("encoding"),
	}

	codec, err := schemas.CodecFor(options.Encoding)
	if err != nil {
		respond(w, http.StatusUnprocessableEntity, schemas.ErrorResponse{Message: err.Error()})
		return
	}

	connection, err := roomHandler.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client.
		logx.Logger.Infow(
			err.Error(),
			zap.String("desc", "could not upgrade http request"),
		)
		return
	}

	reader, err := roomHandler.roomService.Join(r.Context(), roomName, options, connection)
	if err != nil {
		rejectConnection(connection, codec, err)
		return
	}

	reader()
}

func (roomHandler RoomHandler) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, services.RoomNotFound) {
		respond(w, http.StatusNotFound, schemas.ErrorResponse{Message: "Room not found."})
		return
	}

	logx.Logger.Errorw(err.Error(), zap.String("desc", "room request failed"))
	respond(w, http.StatusInternalServerError, schemas.ErrorResponse{Message: "Something goes wrong!"})
}

// rejectConnection tells the client why admission failed and closes the
// socket. A full room closes with 1013 so clients know to retry later.
func rejectConnection(connection *websocket.Conn, codec schemas.Codec, cause error) {
	defer connection.Close()

	payload := schemas.ErrorPayload{Code: schemas.ErrorCodeTransport, Message: cause.Error()}
	closeCode := websocket.CloseInternalServerErr

	switch {
	case errors.Is(cause, entities.RoomIsFull):
		payload.Code = schemas.ErrorCodeCapacity
		closeCode = websocket.CloseTryAgainLater
	case errors.Is(cause, entities.RoomClosed):
		payload.Code = schemas.ErrorCodeClosed
		closeCode = websocket.CloseGoingAway
	}

	frame, err := codec.Marshal(schemas.OutboundMessage{Type: schemas.TypeError, Payload: payload})
	if err != nil {
		logx.Logger.Errorw(err.Error(), zap.String("desc", "could not marshal message"))
		return
	}

	_ = connection.SetWriteDeadline(time.Now().Add(closeWait))

	if err := connection.WriteMessage(codec.FrameType(), frame); err != nil {
		logx.Logger.Infow(err.Error(), zap.String("desc", "could not write message"))
		return
	}

	_ = connection.WriteMessage(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(closeCode, payload.Code),
	)
}
