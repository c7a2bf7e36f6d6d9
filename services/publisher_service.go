package services

import (
	"context"
	"fmt"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/schemas"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const DefaultChannel = "rts-rooms"

// PublisherService pushes room lifecycle events to a Redis channel. Without a
// host it is disabled and every call is a no-op.
type PublisherService struct {
	broker  *redis.Client
	channel string
}

func NewPublisherService(host, port, password, channel string) PublisherService {
	if host == "" {
		return PublisherService{}
	}

	if channel == "" {
		channel = DefaultChannel
	}

	broker := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", host, port),
		Password: password,
		DB:       0,
	})

	return PublisherService{broker: broker, channel: channel}
}

func (publisherService PublisherService) Enabled() bool {
	return publisherService.broker != nil
}

func (publisherService PublisherService) Ping(ctx context.Context) error {
	if !publisherService.Enabled() {
		return nil
	}

	if err := publisherService.broker.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis: %w", DependencyUnavailable, err)
	}

	return nil
}

func (publisherService PublisherService) Publish(ctx context.Context, message string) error {
	if message == "" || !publisherService.Enabled() {
		return nil
	}

	err := publisherService.broker.Publish(ctx, publisherService.channel, message).Err()

	if err != nil {
		logx.Logger.Errorw(
			err.Error(),
			zap.String("desc", "could not publish message"),
			zap.String("message", message),
		)

		return err
	}

	return nil
}

func (publisherService PublisherService) OnLifecycle(ctx context.Context, event entities.LifecycleEvent) error {
	message, err := lifecycleMessage(event)

	if err != nil {
		return err
	}

	return publisherService.Publish(ctx, message)
}

func (publisherService PublisherService) Close() error {
	if !publisherService.Enabled() {
		return nil
	}

	return publisherService.broker.Close()
}

func lifecycleMessage(event entities.LifecycleEvent) (string, error) {
	switch event.Type {
	case schemas.EventRoomCreated:
		return schemas.RoomCreatedEvent(event.RoomId, event.RoomName)
	case schemas.EventPlayerJoined:
		return schemas.PlayerJoinedEvent(event.RoomId, event.Player)
	case schemas.EventPlayerLeft:
		return schemas.PlayerLeftEvent(event.RoomId, event.Player.Id)
	case schemas.EventRoomClosed:
		return schemas.RoomClosedEvent(event.RoomId, event.RoomName, event.Reason, event.Tick)
	default:
		return "", fmt.Errorf("unknown lifecycle event %q", event.Type)
	}
}
