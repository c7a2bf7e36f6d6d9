package gameserver

import (
	"context"
	"errors"
	"time"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/handlers"
	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"go.uber.org/zap"
)

const dependencyTimeout = 5 * time.Second

// GameServer encapsulates all game server functionality
type GameServer struct {
	router    *chi.Mux
	hub       *entities.Hub
	history   *services.HistoryService
	publisher services.PublisherService
	cancel    context.CancelFunc
}

// NewGameServer creates a new game server with the provided configuration.
// MongoDB and Redis are optional: when either is unreachable the server
// logs a warning and runs without it.
func NewGameServer(config Config) (*GameServer, error) {
	if config.Context == nil {
		config.Context = context.Background()
	}

	if err := logx.NewLogger(config.Log); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(config.Context)

	history := connectHistory(ctx, config.History)

	publisherService := services.NewPublisherService(
		config.Publisher.Redis.Host,
		config.Publisher.Redis.Port,
		config.Publisher.Redis.Password,
		config.Publisher.Channel,
	)

	pingCtx, pingCancel := context.WithTimeout(ctx, dependencyTimeout)
	if err := publisherService.Ping(pingCtx); err != nil {
		logx.Logger.Warnw(
			err.Error(),
			zap.String("desc", "redis is unreachable, lifecycle events may be lost"),
		)
	}
	pingCancel()

	observers := entities.Observers{}
	if history != nil {
		observers = append(observers, history)
	}
	if publisherService.Enabled() {
		observers = append(observers, publisherService)
	}

	var observer entities.LifecycleObserver
	if len(observers) > 0 {
		observer = observers
	}

	hub := entities.NewHub(ctx, entities.HubConfig{
		DefaultRoom:   config.DefaultRoom,
		IdleTimeout:   config.RoomIdleTimeout,
		StatsInterval: config.StatsInterval,
		Room: entities.RoomConfig{
			TickRate:  config.UpdateRate,
			InboxSize: config.DispatchBufferSize,
			Observer:  observer,
		},
	})

	roomService := services.NewRoomService(hub)

	router := chi.NewRouter()
	router.Use(middleware.RealIP)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   config.Router.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	handlers.NewRoomHandler(router, roomService, config.Router.AllowedOrigins)

	gameServer := &GameServer{
		router:    router,
		hub:       hub,
		history:   history,
		publisher: publisherService,
		cancel:    cancel,
	}

	go hub.Run()

	return gameServer, nil
}

func connectHistory(ctx context.Context, config HistoryConfig) *services.HistoryService {
	connectCtx, cancel := context.WithTimeout(ctx, dependencyTimeout)
	defer cancel()

	history, err := services.NewHistoryService(connectCtx, config.URI, config.Database)
	if err != nil {
		logx.Logger.Warnw(
			err.Error(),
			zap.String("desc", "continuing without match history"),
		)
		return nil
	}

	logx.Logger.Infow("connected to MongoDB", zap.String("database", config.Database))

	return history
}

// GetRouter returns the configured router
func (gameServer *GameServer) GetRouter() *chi.Mux {
	return gameServer.router
}

// GetHub returns the hub instance
func (gameServer *GameServer) GetHub() *entities.Hub {
	return gameServer.hub
}

// Shutdown closes every room, waits for them to broadcast room-closed and
// then releases MongoDB and Redis.
func (gameServer *GameServer) Shutdown(ctx context.Context) error {
	gameServer.cancel()

	select {
	case <-gameServer.hub.Done():
	case <-ctx.Done():
		return ctx.Err()
	}

	return errors.Join(
		gameServer.history.Close(ctx),
		gameServer.publisher.Close(),
	)
}
