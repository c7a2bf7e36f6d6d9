package entities

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/schemas"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"go.uber.org/zap"
)

const (
	// MaxClients is 2v2.
	MaxClients      = 4
	DefaultTickRate = 20

	defaultSendBufferSize = 64
	defaultInboxSize      = 256
	defaultLifecycleSize  = 64

	reasonShutdown   = "server shutting down"
	reasonSimulation = "simulation failure"
)

type RoomConfig struct {
	// TickRate is simulation steps per second.
	TickRate       int
	ProbeInterval  time.Duration
	SendBufferSize int
	InboxSize      int
	Router         *Router
	Observer       LifecycleObserver
}

func (config RoomConfig) withDefaults() RoomConfig {
	if config.TickRate <= 0 {
		config.TickRate = DefaultTickRate
	}
	if config.ProbeInterval <= 0 {
		config.ProbeInterval = ProbeInterval
	}
	if config.SendBufferSize <= 0 {
		config.SendBufferSize = defaultSendBufferSize
	}
	if config.InboxSize <= 0 {
		config.InboxSize = defaultInboxSize
	}
	if config.Router == nil {
		config.Router = NewRouter()
	}
	return config
}

// Candidate is a connection asking for a seat.
type Candidate struct {
	Username   string
	Faction    string
	Codec      schemas.Codec
	Connection *websocket.Conn
}

type commandKind int

const (
	commandAdmit commandKind = iota
	commandEvict
	commandDispatch
	commandSnapshot
)

type command struct {
	kind      commandKind
	sessionId string
	candidate Candidate
	message   schemas.InboundMessage
	admitted  chan admitResult
	snapshot  chan schemas.StateSnapshot
}

type admitResult struct {
	session *Session
	err     error
}

type pendingCommand struct {
	sessionId string
	message   schemas.InboundMessage
	apply     CommandFunc
}

// Room is one authoritative match. Every mutation of its state, sessions and
// probes runs on a single goroutine fed by the inbox and the clock, so readers
// never observe a half-applied change.
type Room struct {
	Id        string
	Name      string
	CreatedAt time.Time
	// Pinned rooms are never reaped while empty.
	Pinned bool

	config       RoomConfig
	tickInterval time.Duration
	router       *Router

	// Owned by the run goroutine.
	state         *State
	sessions      map[string]*Session
	pending       []pendingCommand
	lastSync      schemas.StateSnapshot
	randomFaction func() Faction

	inbox     chan command
	lifecycle chan LifecycleEvent

	ctx           context.Context
	cancel        context.CancelFunc
	done          chan struct{}
	lifecycleDone chan struct{}
	started       atomic.Bool
	closeOnce     sync.Once
	reasonMutex   sync.Mutex
	reason        string

	// Mirrors for readers outside the run goroutine.
	tick       atomic.Uint64
	clients    atomic.Int32
	emptySince atomic.Int64

	metrics RoomMetrics
}

func NewRoom(ctx context.Context, id, name string, config RoomConfig) *Room {
	config = config.withDefaults()
	ctx, cancel := context.WithCancel(ctx)

	room := &Room{
		Id:            id,
		Name:          name,
		CreatedAt:     time.Now(),
		config:        config,
		tickInterval:  time.Second / time.Duration(config.TickRate),
		router:        config.Router,
		state:         NewState(),
		sessions:      make(map[string]*Session),
		randomFaction: RandomFaction,
		inbox:         make(chan command, config.InboxSize),
		lifecycle:     make(chan LifecycleEvent, defaultLifecycleSize),
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		lifecycleDone: make(chan struct{}),
	}
	room.lastSync = room.state.Snapshot()
	room.emptySince.Store(room.CreatedAt.UnixNano())

	return room
}

// Start launches the simulation loop. It is a no-op after the first call.
func (room *Room) Start() {
	if !room.started.CompareAndSwap(false, true) {
		return
	}

	room.emit(LifecycleEvent{Type: schemas.EventRoomCreated})

	logx.Logger.Infow(
		"room created",
		zap.String("roomId", room.Id),
		zap.String("roomName", room.Name),
		zap.Duration("tickInterval", room.tickInterval),
	)

	go room.forwardLifecycle()
	go room.run()
}

// Close tears the room down: a room-closed event is broadcast, every session
// is released and the clock stops. Only the first reason is kept.
func (room *Room) Close(reason string) {
	room.closeOnce.Do(func() {
		room.reasonMutex.Lock()
		room.reason = reason
		room.reasonMutex.Unlock()
		room.cancel()
	})
}

func (room *Room) closeReason() string {
	room.reasonMutex.Lock()
	defer room.reasonMutex.Unlock()

	if room.reason == "" {
		return reasonShutdown
	}
	return room.reason
}

// Done is closed once the run goroutine has released every session.
func (room *Room) Done() <-chan struct{} {
	return room.done
}

func (room *Room) Closed() bool {
	select {
	case <-room.done:
		return true
	default:
		return room.ctx.Err() != nil
	}
}

// Wait blocks until the loop and the lifecycle forwarder have exited.
func (room *Room) Wait() {
	if !room.started.Load() {
		return
	}
	<-room.done
	<-room.lifecycleDone
}

// Admit asks the room for a seat. It waits for the run goroutine and fails with
// RoomIsFull when every seat is taken.
func (room *Room) Admit(ctx context.Context, candidate Candidate) (*Session, error) {
	reply := make(chan admitResult, 1)

	err := room.submit(ctx, command{kind: commandAdmit, candidate: candidate, admitted: reply})
	if err != nil {
		return nil, err
	}

	select {
	case result := <-reply:
		return result.session, result.err
	case <-room.done:
		return nil, RoomClosed
	case <-ctx.Done():
		// The room may still admit the candidate; give the seat back.
		go func() {
			select {
			case result := <-reply:
				if result.session != nil {
					room.Evict(result.session.Id)
				}
			case <-room.done:
			}
		}()
		return nil, ctx.Err()
	}
}

// Evict removes a session. Unknown or already evicted ids are ignored.
func (room *Room) Evict(sessionId string) {
	_ = room.submit(context.Background(), command{kind: commandEvict, sessionId: sessionId})
}

// Dispatch queues a client message. Messages of one session are handled in
// the order they were dispatched.
func (room *Room) Dispatch(sessionId string, message schemas.InboundMessage) error {
	return room.submit(context.Background(), command{kind: commandDispatch, sessionId: sessionId, message: message})
}

// Snapshot returns the full state as of the last applied command or tick.
func (room *Room) Snapshot(ctx context.Context) (schemas.StateSnapshot, error) {
	reply := make(chan schemas.StateSnapshot, 1)

	if err := room.submit(ctx, command{kind: commandSnapshot, snapshot: reply}); err != nil {
		return schemas.StateSnapshot{}, err
	}

	select {
	case snapshot := <-reply:
		return snapshot, nil
	case <-room.done:
		return schemas.StateSnapshot{}, RoomClosed
	case <-ctx.Done():
		return schemas.StateSnapshot{}, ctx.Err()
	}
}

func (room *Room) submit(ctx context.Context, cmd command) error {
	if room.Closed() {
		return RoomClosed
	}

	select {
	case room.inbox <- cmd:
		return nil
	case <-room.done:
		return RoomClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (room *Room) Tick() uint64 {
	return room.tick.Load()
}

func (room *Room) Clients() int {
	return int(room.clients.Load())
}

// IdleFor reports how long the room has had no sessions; zero while occupied.
func (room *Room) IdleFor(now time.Time) time.Duration {
	since := room.emptySince.Load()
	if since == 0 {
		return 0
	}
	return now.Sub(time.Unix(0, since))
}

func (room *Room) Metrics() schemas.RoomMetrics {
	return room.metrics.Snapshot()
}

func (room *Room) Summary() schemas.RoomSummary {
	return schemas.RoomSummary{
		Id:       room.Id,
		Name:     room.Name,
		Clients:  room.Clients(),
		Capacity: MaxClients,
		Tick:     room.Tick(),
		Pinned:   room.Pinned,
	}
}

func (room *Room) execute(cmd command) {
	switch cmd.kind {
	case commandAdmit:
		session, err := room.admit(cmd.candidate)
		cmd.admitted <- admitResult{session: session, err: err}
	case commandEvict:
		room.evict(cmd.sessionId)
	case commandDispatch:
		room.dispatch(cmd.sessionId, cmd.message)
	case commandSnapshot:
		cmd.snapshot <- room.state.Snapshot()
	}
}

func (room *Room) admit(candidate Candidate) (*Session, error) {
	if len(room.sessions) >= MaxClients {
		room.metrics.IncAdmissionRejected()
		logx.Logger.Infow(
			"admission rejected",
			zap.String("roomId", room.Id),
			zap.String("username", candidate.Username),
			zap.Int("clients", len(room.sessions)),
		)
		return nil, RoomIsFull
	}

	faction, ok := ParseFaction(candidate.Faction)
	if !ok {
		if candidate.Faction != "" {
			logx.Logger.Debugw(
				"unknown faction requested, assigning one",
				zap.String("roomId", room.Id),
				zap.String("faction", candidate.Faction),
			)
		}
		faction = room.randomFaction()
	}

	username := strings.TrimSpace(candidate.Username)
	if username == "" {
		username = defaultUsername(len(room.sessions) + 1)
	}

	id := uuid.NewString()
	player := NewPlayer(id, username, faction)
	session := newSession(id, room.Id, player, candidate.Connection, candidate.Codec, room.config.SendBufferSize)

	// The newcomer gets the full state before any event referring to it. The
	// frame is queued before the seat is taken.
	snapshot := room.state.Snapshot()
	snapshot.Players[id] = player.State()

	frame, err := session.codec.Marshal(schemas.OutboundMessage{Type: schemas.TypeState, Payload: snapshot})
	if err == nil {
		err = session.Send(frame)
	}
	if err != nil {
		session.release()
		room.metrics.IncAdmissionRejected()
		logx.Logger.Errorw(
			err.Error(),
			zap.String("desc", "could not send admission state"),
			zap.String("roomId", room.Id),
			zap.String("username", username),
		)
		return nil, err
	}

	room.sessions[id] = session
	room.state.Players[id] = player
	room.clients.Store(int32(len(room.sessions)))
	room.emptySince.Store(0)
	room.metrics.IncAdmission()

	logx.Logger.Infow(
		"player joined",
		zap.String("roomId", room.Id),
		zap.String("sessionId", id),
		zap.String("username", username),
		zap.String("faction", string(faction)),
	)

	room.broadcast(schemas.TypePlayerJoined, player.Public())
	room.emit(LifecycleEvent{Type: schemas.EventPlayerJoined, Player: player.Public()})

	return session, nil
}

func (room *Room) evict(sessionId string) bool {
	session, ok := room.sessions[sessionId]
	if !ok {
		return false
	}

	// Sessions admitted since the last step hold this player in their
	// snapshot; keep it in lastSync so the next delta lists it as removed.
	if _, synced := room.lastSync.Players[sessionId]; !synced {
		room.lastSync.Players[sessionId] = session.Player.State()
	}

	delete(room.sessions, sessionId)
	delete(room.state.Players, sessionId)
	room.clients.Store(int32(len(room.sessions)))
	if len(room.sessions) == 0 {
		room.emptySince.Store(time.Now().UnixNano())
	}
	room.metrics.IncEviction()

	session.release()

	logx.Logger.Infow(
		"player left",
		zap.String("roomId", room.Id),
		zap.String("sessionId", sessionId),
	)

	room.broadcast(schemas.TypePlayerLeft, schemas.PlayerLeftPayload{Id: sessionId})
	room.emit(LifecycleEvent{Type: schemas.EventPlayerLeft, Player: schemas.PlayerJoinedPayload{Id: sessionId}})

	return true
}

func (room *Room) dispatch(sessionId string, message schemas.InboundMessage) {
	session, ok := room.sessions[sessionId]
	if !ok {
		// Evicted sessions lose whatever they still had in flight.
		return
	}

	room.metrics.IncRouted()

	err := room.router.route(room, session, message)
	if err == nil {
		return
	}

	if errors.Is(err, UnknownMessage) {
		room.metrics.IncUnknown()
		logx.Logger.Warnw(
			err.Error(),
			zap.String("desc", "dropping message"),
			zap.String("roomId", room.Id),
			zap.String("sessionId", sessionId),
		)
		return
	}

	logx.Logger.Errorw(
		err.Error(),
		zap.String("desc", "could not handle incoming message"),
		zap.String("roomId", room.Id),
		zap.String("sessionId", sessionId),
		zap.String("type", message.Type),
	)
}

// step is one simulation tick: queued gameplay commands first, then exactly
// one increment of the tick counter, then the state delta.
func (room *Room) step() {
	commands := room.pending
	room.pending = nil
	for _, pending := range commands {
		if _, live := room.sessions[pending.sessionId]; !live {
			continue
		}
		pending.apply(room.state, pending.sessionId, pending.message)
		room.metrics.IncCommandApplied()
	}

	room.state.Tick++
	room.tick.Store(room.state.Tick)

	snapshot := room.state.Snapshot()
	delta := schemas.Diff(room.lastSync, snapshot)
	room.lastSync = snapshot

	room.broadcast(schemas.TypeStateDelta, delta)
}

func (room *Room) probe(now time.Time) {
	for _, session := range room.sessions {
		seq, abandoned := session.probe.Next(now)
		if abandoned {
			room.metrics.IncProbeAbandoned()
			logx.Logger.Debugw(
				"probe abandoned",
				zap.String("roomId", room.Id),
				zap.String("sessionId", session.Id),
			)
		}

		_ = room.send(session, schemas.OutboundMessage{
			Type:    schemas.TypePing,
			Payload: schemas.ProbePayload{Seq: seq, SentAt: now.UnixMilli()},
		})
	}
}

func (room *Room) completeProbe(session *Session, seq uint64) {
	rtt, ok := session.probe.Complete(seq, time.Now())
	if !ok {
		return
	}

	if rtt > HighLatencyThreshold {
		room.metrics.IncHighLatency()
		logx.Logger.Warnw(
			"high latency detected",
			zap.String("roomId", room.Id),
			zap.String("sessionId", session.Id),
			zap.Duration("rtt", rtt),
		)
		return
	}

	logx.Logger.Debugw(
		"latency measured",
		zap.String("sessionId", session.Id),
		zap.Duration("rtt", rtt),
	)
}

// send delivers to one session; on failure the session is evicted.
func (room *Room) send(session *Session, message schemas.OutboundMessage) error {
	frame, err := session.codec.Marshal(message)
	if err != nil {
		logx.Logger.Errorw(
			err.Error(),
			zap.String("desc", "could not encode message"),
			zap.String("type", message.Type),
		)
		return err
	}

	if err := session.Send(frame); err != nil {
		room.dropSession(session.Id, err)
		return err
	}

	return nil
}

// broadcast encodes the message once per codec and queues it for every
// session. Delivery is best effort; sessions that cannot take it are evicted.
func (room *Room) broadcast(messageType string, payload any) {
	message := schemas.OutboundMessage{Type: messageType, Payload: payload}
	frames := make(map[string][]byte, 2)
	failed := make(map[string]error)

	for id, session := range room.sessions {
		codec := session.codec
		frame, ok := frames[codec.Name()]
		if !ok {
			encoded, err := codec.Marshal(message)
			if err != nil {
				logx.Logger.Errorw(
					err.Error(),
					zap.String("desc", "could not encode broadcast"),
					zap.String("type", messageType),
				)
				return
			}
			frames[codec.Name()] = encoded
			frame = encoded
		}

		if err := session.Send(frame); err != nil {
			failed[id] = err
		}
	}

	for id, err := range failed {
		room.dropSession(id, err)
	}
}

func (room *Room) dropSession(sessionId string, cause error) {
	if _, ok := room.sessions[sessionId]; !ok {
		return
	}

	room.metrics.IncTransportFailure()
	logx.Logger.Warnw(
		cause.Error(),
		zap.String("desc", "evicting session after transport failure"),
		zap.String("roomId", room.Id),
		zap.String("sessionId", sessionId),
	)

	room.evict(sessionId)
}

// shutdown runs last on the run goroutine.
func (room *Room) shutdown(reason string) {
	room.broadcast(schemas.TypeRoomClosed, schemas.RoomClosedPayload{Reason: reason})

	for id, session := range room.sessions {
		session.release()
		delete(room.sessions, id)
		delete(room.state.Players, id)
	}
	room.clients.Store(0)

	room.emit(LifecycleEvent{
		Type:   schemas.EventRoomClosed,
		Reason: reason,
		Tick:   room.state.Tick,
	})
	close(room.lifecycle)

	logx.Logger.Infow(
		"room closed",
		zap.String("roomId", room.Id),
		zap.String("roomName", room.Name),
		zap.String("reason", reason),
		zap.Uint64("tick", room.state.Tick),
	)
}

func (room *Room) emit(event LifecycleEvent) {
	if room.config.Observer == nil {
		return
	}

	event.RoomId = room.Id
	event.RoomName = room.Name
	event.CreatedAt = room.CreatedAt
	event.At = time.Now()

	select {
	case room.lifecycle <- event:
	default:
		room.metrics.IncLifecycleDropped()
		logx.Logger.Warnw(
			"lifecycle queue is full, dropping event",
			zap.String("roomId", room.Id),
			zap.String("type", event.Type),
		)
	}
}

func (room *Room) forwardLifecycle() {
	defer close(room.lifecycleDone)

	for event := range room.lifecycle {
		ctx, cancel := context.WithTimeout(context.Background(), lifecycleTimeout)
		err := room.config.Observer.OnLifecycle(ctx, event)
		cancel()

		if err != nil {
			logx.Logger.Warnw(
				err.Error(),
				zap.String("desc", "lifecycle observer failed"),
				zap.String("roomId", room.Id),
				zap.String("type", event.Type),
			)
		}
	}
}
