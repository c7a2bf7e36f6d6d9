package gameserver

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/amirrezam75/cncrelay/entities"
	"github.com/amirrezam75/cncrelay/pkg/logx"
	"github.com/amirrezam75/cncrelay/services"

	"github.com/joho/godotenv"
)

const (
	DefaultPort            = "3000"
	DefaultRoomIdleTimeout = 10 * time.Minute
	DefaultStatsInterval   = 60 * time.Second
)

// Config contains all configuration options for the game server
type Config struct {
	// LIFECYCLE MANAGEMENT: Context for controlling server shutdown
	// When cancelled, the hub closes every room and the server releases
	// its MongoDB and Redis clients.
	Context context.Context

	Port string

	// UpdateRate is the simulation frequency in ticks per second.
	UpdateRate int

	// DefaultRoom is the pinned room clients join without creating one.
	DefaultRoom string

	// RoomIdleTimeout reaps empty rooms other than DefaultRoom. Zero disables reaping.
	RoomIdleTimeout time.Duration

	// StatsInterval logs active rooms and connected clients. Zero disables it.
	StatsInterval time.Duration

	// PERFORMANCE TUNING: Size of each room's command inbox
	// Higher values absorb bursts of inbound messages at the cost of memory
	DispatchBufferSize int

	Log       logx.Config
	History   HistoryConfig
	Publisher PublisherConfig
	Router    RouterConfig
}

// HistoryConfig contains MongoDB configuration. An empty URI runs without history.
type HistoryConfig struct {
	URI      string
	Database string
}

// PublisherConfig contains configuration for the publisher service
type PublisherConfig struct {
	Redis   RedisConfig
	Channel string
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

// RouterConfig contains router configuration
type RouterConfig struct {
	AllowedOrigins []string
}

// LoadConfig reads the environment, after loading .env when one exists.
func LoadConfig() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("could not load .env: %w", err)
	}

	config := Config{
		Context:     context.Background(),
		Port:        env("PORT", DefaultPort),
		DefaultRoom: env("DEFAULT_ROOM", entities.DefaultRoomName),
		Log: logx.Config{
			Level: env("LOG_LEVEL", "info"),
			File:  os.Getenv("LOG_FILE"),
		},
		History: HistoryConfig{
			URI:      os.Getenv("MONGODB_URI"),
			Database: env("MONGODB_DATABASE", services.DefaultDatabase),
		},
		Publisher: PublisherConfig{
			Redis: RedisConfig{
				Host:     os.Getenv("REDIS_HOST"),
				Port:     env("REDIS_PORT", "6379"),
				Password: os.Getenv("REDIS_PASSWORD"),
			},
			Channel: env("REDIS_CHANNEL", services.DefaultChannel),
		},
		Router: RouterConfig{
			AllowedOrigins: splitList(env("ALLOWED_ORIGINS", "*")),
		},
	}

	var err error

	if config.UpdateRate, err = envInt("UPDATE_RATE", entities.DefaultTickRate); err != nil {
		return Config{}, err
	}

	if config.UpdateRate <= 0 {
		return Config{}, fmt.Errorf("UPDATE_RATE must be positive, got %d", config.UpdateRate)
	}

	if config.DispatchBufferSize, err = envInt("DISPATCH_BUFFER_SIZE", 0); err != nil {
		return Config{}, err
	}

	if config.RoomIdleTimeout, err = envDuration("ROOM_IDLE_TIMEOUT", DefaultRoomIdleTimeout); err != nil {
		return Config{}, err
	}

	if config.StatsInterval, err = envDuration("STATS_INTERVAL", DefaultStatsInterval); err != nil {
		return Config{}, err
	}

	return config, nil
}

func env(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	number, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return number, nil
}

// envDuration accepts Go durations ("90s", "10m") or a bare number of seconds.
func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return fallback, nil
	}

	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}

	return duration, nil
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
