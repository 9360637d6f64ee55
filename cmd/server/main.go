// Command server runs the realtime collaboration hub: websocket
// upgrade, debounced whiteboard persistence, pairing, signaling
// relay, and chat, all behind one HTTP listener.
package main

import (
	"fmt"
	"net/http"
	"os"

	"go.uber.org/zap"

	"realtimehub/internal/config"
	"realtimehub/internal/httpapi"
	"realtimehub/internal/logging"
	"realtimehub/internal/pairing"
	"realtimehub/internal/persistence"
	"realtimehub/internal/room"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}

	if err := logging.Initialize(cfg.Development); err != nil {
		fmt.Fprintln(os.Stderr, "logging:", err)
		os.Exit(1)
	}
	defer logging.Sync()
	log := logging.L()

	store, err := persistence.NewStore(cfg.DataDir)
	if err != nil {
		log.Fatal("init persistence store", zap.Error(err))
	}

	tokens := pairing.NewTable()
	stopReaper := make(chan struct{})
	defer close(stopReaper)
	go tokens.RunReaper(stopReaper)

	registry := room.NewRegistry(store, tokens)

	srv := &httpapi.Server{
		Registry:  registry,
		DebugLogs: cfg.DebugLogs,
		LogDir:    cfg.DataDir,
	}

	addr := fmt.Sprintf(":%d", cfg.Port)
	log.Info("starting server",
		zap.String("addr", addr),
		zap.String("dataDir", cfg.DataDir),
		zap.Bool("debugLogs", cfg.DebugLogs),
		zap.Bool("development", cfg.Development),
	)

	if err := http.ListenAndServe(addr, srv.NewMux()); err != nil {
		log.Fatal("server exited", zap.Error(err))
	}
}
