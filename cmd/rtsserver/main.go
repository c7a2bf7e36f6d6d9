package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirrezam75/cncrelay/gameserver"
	"github.com/amirrezam75/cncrelay/pkg/logx"

	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

func main() {
	config, err := gameserver.LoadConfig()
	if err != nil {
		log.Fatalf("could not start server: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	config.Context = ctx

	gameServer, err := gameserver.NewGameServer(config)
	if err != nil {
		log.Fatalf("could not start server: %v", err)
	}
	defer logx.Sync()

	server := &http.Server{
		Addr:              ":" + config.Port,
		Handler:           gameServer.GetRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logx.Logger.Infow(
			"server listening",
			zap.String("port", config.Port),
			zap.Int("updateRate", config.UpdateRate),
			zap.String("defaultRoom", config.DefaultRoom),
		)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logx.Logger.Errorw(err.Error(), zap.String("desc", "could not serve http"))
			stop()
		}
	}()

	<-ctx.Done()

	logx.Logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	// Rooms go first so clients receive room-closed before the listener stops.
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logx.Logger.Errorw(err.Error(), zap.String("desc", "could not shut down game server"))
	}

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Logger.Errorw(err.Error(), zap.String("desc", "could not shut down http server"))
		os.Exit(1)
	}
}
