// Command searcher is the query server executable spec §6 describes: it
// loads ./config.ini (or an optional path argument), opens the shared
// IndexStore, and serves search requests on server_port until signaled
// to stop.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/codepr/gosearch/internal/config"
	"github.com/codepr/gosearch/internal/queryengine"
	"github.com/codepr/gosearch/internal/queryserver"
	"github.com/codepr/gosearch/internal/store"
)

func main() {
	logger := log.New(os.Stderr, "searcher: ", log.LstdFlags)

	path := "./config.ini"
	if len(os.Args) > 1 {
		path = os.Args[1]
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Fatalf("config: %v", err)
	}

	idx, err := store.NewPostgresStore(store.DSN(cfg.DBHost, cfg.DBPort, cfg.DBName, cfg.DBUser, cfg.DBPassword))
	if err != nil {
		logger.Fatalf("store: %v", err)
	}
	defer idx.Close()

	ctx, cancel := context.WithCancel(context.Background())
	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-signalCh
		logger.Println("shutdown signal received")
		cancel()
	}()

	engine := queryengine.New(idx)
	srv := queryserver.New(engine)

	logger.Printf("listening on port %s", cfg.ServerPort)
	if err := srv.ListenAndServe(ctx, cfg.ServerPort); err != nil {
		logger.Fatalf("server: %v", err)
	}
	logger.Println("server stopped")
}
