package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/schemas"
	"github.com/amirrezam75/cncrelay/services"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *entities.Hub) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	hub := entities.NewHub(ctx, entities.HubConfig{})

	router := chi.NewRouter()
	NewRoomHandler(router, services.NewRoomService(hub), []string{"*"})

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	t.Cleanup(cancel)

	return server, hub
}

func websocketURL(server *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + path
}

func dial(t *testing.T, server *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	connection, _, err := websocket.DefaultDialer.Dial(websocketURL(server, path), nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { _ = connection.Close() })
	return connection
}

// readUntil skips deltas and probes until a frame of the given type arrives.
func readUntil(t *testing.T, connection *websocket.Conn, messageType string) frame {
	t.Helper()
	_ = connection.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		_, data, err := connection.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", messageType, err)
		}
		var decoded frame
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("decode %s: %v", data, err)
		}
		if decoded.Type == messageType {
			return decoded
		}
	}
}

func joinAs(t *testing.T, server *httptest.Server, room, username, faction string) (*websocket.Conn, schemas.PlayerJoinedPayload) {
	t.Helper()
	connection := dial(t, server, "/rooms/"+room+"/join?username="+username+"&faction="+faction)

	readUntil(t, connection, schemas.TypeState)

	var joined schemas.PlayerJoinedPayload
	if err := json.Unmarshal(readUntil(t, connection, schemas.TypePlayerJoined).Payload, &joined); err != nil {
		t.Fatalf("decode player-joined: %v", err)
	}
	return connection, joined
}

func TestJoinAnnouncesPlayer(t *testing.T) {
	server, _ := newTestServer(t)

	_, joined := joinAs(t, server, "alpha", "Alice", "GDI")

	if joined.Username != "Alice" || joined.Faction != "GDI" || joined.Id == "" {
		t.Fatalf("unexpected player-joined payload %+v", joined)
	}
}

func TestFifthJoinIsRejected(t *testing.T) {
	server, hub := newTestServer(t)

	for _, username := range []string{"p1", "p2", "p3", "p4"} {
		joinAs(t, server, "alpha", username, "NOD")
	}

	connection := dial(t, server, "/rooms/alpha/join?username=late")

	rejection := readUntil(t, connection, schemas.TypeError)
	var payload schemas.ErrorPayload
	if err := json.Unmarshal(rejection.Payload, &payload); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if payload.Code != schemas.ErrorCodeCapacity {
		t.Fatalf("expected capacity error, got %+v", payload)
	}

	_, _, err := connection.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseTryAgainLater) {
		t.Fatalf("expected close code 1013, got %v", err)
	}

	if clients := hub.FindRoom("alpha").Clients(); clients != entities.MaxClients {
		t.Fatalf("expected %d clients, got %d", entities.MaxClients, clients)
	}
}

func TestDisconnectEmitsPlayerLeft(t *testing.T) {
	server, _ := newTestServer(t)

	alice, _ := joinAs(t, server, "alpha", "Alice", "GDI")
	bob, bobJoined := joinAs(t, server, "alpha", "Bob", "NOD")

	readUntil(t, alice, schemas.TypePlayerJoined)
	_ = bob.WriteMessage(websocket.TextMessage, []byte(`{"type":"leave","payload":{}}`))
	_ = bob.Close()

	var left schemas.PlayerLeftPayload
	if err := json.Unmarshal(readUntil(t, alice, schemas.TypePlayerLeft).Payload, &left); err != nil {
		t.Fatalf("decode player-left: %v", err)
	}
	if left.Id != bobJoined.Id {
		t.Fatalf("expected player-left for %s, got %s", bobJoined.Id, left.Id)
	}
}

func TestMsgpackSession(t *testing.T) {
	server, _ := newTestServer(t)
	codec := schemas.MsgpackCodec{}

	connection := dial(t, server, "/rooms/alpha/join?username=Alice&encoding=msgpack")

	ping, err := codec.Marshal(schemas.InboundMessage{Type: schemas.TypePing, Payload: schemas.InboundPayload{Seq: 9}})
	if err != nil {
		t.Fatalf("encode ping: %v", err)
	}
	if err := connection.WriteMessage(websocket.BinaryMessage, ping); err != nil {
		t.Fatalf("write ping: %v", err)
	}

	_ = connection.SetReadDeadline(time.Now().Add(3 * time.Second))
	for {
		frameType, data, err := connection.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for pong: %v", err)
		}
		if frameType != websocket.BinaryMessage {
			t.Fatalf("expected binary frames on a msgpack session")
		}

		var message struct {
			Type    string               `json:"type"`
			Payload schemas.ProbePayload `json:"payload"`
		}
		if err := codec.Unmarshal(data, &message); err != nil {
			continue
		}
		if message.Type == schemas.TypePong {
			if message.Payload.Seq != 9 {
				t.Fatalf("expected pong seq 9, got %d", message.Payload.Seq)
			}
			return
		}
	}
}

func TestJoinRejectsUnknownEncoding(t *testing.T) {
	server, _ := newTestServer(t)

	response, err := server.Client().Get(server.URL + "/rooms/alpha/join?encoding=xml")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d", response.StatusCode)
	}
}

func TestRoomEndpoints(t *testing.T) {
	server, _ := newTestServer(t)
	client := server.Client()

	request := func(method, path, body string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(method, server.URL+path, strings.NewReader(body))
		if err != nil {
			t.Fatalf("request: %v", err)
		}
		response, err := client.Do(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		t.Cleanup(func() { _ = response.Body.Close() })
		return response
	}

	if response := request(http.MethodGet, "/healthz", ""); response.StatusCode != http.StatusOK {
		t.Fatalf("expected healthz 200, got %d", response.StatusCode)
	}

	response := request(http.MethodGet, "/rooms", "")
	var rooms []schemas.RoomSummary
	if err := json.NewDecoder(response.Body).Decode(&rooms); err != nil {
		t.Fatalf("decode rooms: %v", err)
	}
	if len(rooms) != 1 || rooms[0].Name != entities.DefaultRoomName {
		t.Fatalf("expected only the default room, got %+v", rooms)
	}

	if response := request(http.MethodPost, "/rooms", `{"name":"beta"}`); response.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", response.StatusCode)
	}
	if response := request(http.MethodPost, "/rooms", `{"name":"bad name"}`); response.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an invalid name, got %d", response.StatusCode)
	}

	response = request(http.MethodGet, "/rooms/beta", "")
	var details schemas.RoomDetails
	if err := json.NewDecoder(response.Body).Decode(&details); err != nil {
		t.Fatalf("decode details: %v", err)
	}
	if details.Name != "beta" || details.Capacity != entities.MaxClients {
		t.Fatalf("unexpected details %+v", details)
	}

	if response := request(http.MethodGet, "/rooms/beta/state", ""); response.StatusCode != http.StatusOK {
		t.Fatalf("expected state 200, got %d", response.StatusCode)
	}
	if response := request(http.MethodDelete, "/rooms/beta", ""); response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", response.StatusCode)
	}
	if response := request(http.MethodGet, "/rooms/beta", ""); response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", response.StatusCode)
	}
	if response := request(http.MethodDelete, "/rooms/missing", ""); response.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", response.StatusCode)
	}

	if response := request(http.MethodDelete, "/rooms/"+entities.DefaultRoomName, ""); response.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204 for the default room, got %d", response.StatusCode)
	}
	if response := request(http.MethodGet, "/rooms/"+entities.DefaultRoomName+"/state", ""); response.StatusCode != http.StatusOK {
		t.Fatalf("expected the default room to be reopened, got %d", response.StatusCode)
	}
}

func TestCheckOrigin(t *testing.T) {
	check := checkOrigin([]string{"https://play.example.com"})

	request := httptest.NewRequest(http.MethodGet, "/rooms/alpha/join", nil)
	if !check(request) {
		t.Fatalf("expected requests without an origin to pass")
	}

	request.Header.Set("Origin", "https://evil.example.com")
	if check(request) {
		t.Fatalf("expected unknown origin to be rejected")
	}

	request.Header.Set("Origin", "https://play.example.com")
	if !check(request) {
		t.Fatalf("expected configured origin to pass")
	}
}
