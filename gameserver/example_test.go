package gameserver_test

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirrezam75/cncrelay/gameserver"
)

// Example wires a server from the environment and shuts it down on SIGINT.
func Example() {
	config, err := gameserver.LoadConfig()
	if err != nil {
		panic(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT)
	defer stop()

	config.Context = ctx

	gameServer, err := gameserver.NewGameServer(config)
	if err != nil {
		panic(err)
	}

	server := &http.Server{Addr: ":" + config.Port, Handler: gameServer.GetRouter()}
	go server.ListenAndServe()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_ = gameServer.Shutdown(shutdownCtx)
	_ = server.Shutdown(shutdownCtx)
}
