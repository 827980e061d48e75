package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"darkpool-backend/internal/app"
	"darkpool-backend/internal/config"
	"darkpool-backend/internal/db"
	"darkpool-backend/internal/handlers"
	"darkpool-backend/internal/router"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	if err := config.LoadConfig(*configPath); err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db.InitDB()

	container, err := app.InitializeContainer()
	if err != nil {
		log.Fatalf("Failed to initialize services: %v", err)
	}

	go container.PushService.Run()
	container.MatchingEngine.Start()

	h := &router.Handlers{
		Auth:      handlers.NewAuthHandler(),
		Orders:    handlers.NewOrderHandler(container.MatchingEngine),
		Channels:  handlers.NewChannelHandler(container.ChannelLedger),
		Admin:     handlers.NewAdminHandler(container.MatchingEngine, container.PairRegistry, container.BalanceBook),
		Stats:     handlers.NewStatsHandler(container.OrderRepo, container.MatchRepo, container.ChannelLedger, container.BalanceBook),
		WebSocket: handlers.NewWebSocketHandler(container.PushService),
	}
	r := router.SetupRouter(container.DB, container.MatchingEngine, h)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Printf("🚀 Darkpool backend listening on %s", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("⚠️ Server shutdown error: %v", err)
	}
	container.Shutdown()
	log.Println("✅ Shutdown complete")
}
