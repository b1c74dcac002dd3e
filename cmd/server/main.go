package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/Timi0217/mixtapelive-sub000/internal/broadcast"
	"github.com/Timi0217/mixtapelive-sub000/internal/chat"
	"github.com/Timi0217/mixtapelive-sub000/internal/clock"
	"github.com/Timi0217/mixtapelive-sub000/internal/config"
	database "github.com/Timi0217/mixtapelive-sub000/internal/db"
	"github.com/Timi0217/mixtapelive-sub000/internal/gateway"
	"github.com/Timi0217/mixtapelive-sub000/internal/platform"
	"github.com/Timi0217/mixtapelive-sub000/internal/presence"
	"github.com/Timi0217/mixtapelive-sub000/internal/store"

	// Use an alias to prevent naming collisions with the 'server' variable
	apiserver "github.com/Timi0217/mixtapelive-sub000/internal/api/server"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("Starting Live Broadcast Server...")

	// 1. Setup Configuration
	cfg := config.Load()

	// 2. Initialize Infrastructure
	db := database.New(cfg)

	// 3. Run Database Migrations
	db.AutoMigrate()

	// 4. Redis (presence cache + platform tokens)
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Redis Connected")

	// 5. Wire the Domain
	clk := clock.RealClock{}
	cache := presence.NewRedisCache(rdb)
	stores := store.NewGormStores(db.DB)
	hub := gateway.NewHub()

	svc := broadcast.NewService(cache, stores.Sessions, stores.Memberships, hub, clk, cfg.TrackTTL())
	pipe := chat.NewPipeline(cache, stores.Sessions, stores.Chat, hub, clk, cfg.ChatCooldown())

	adapter := platform.NewSpotifyAdapter(
		cfg.Platform.BaseURL,
		cfg.PlatformTimeout(),
		platform.NewRedisTokenSource(rdb),
	)

	// 6. Background Workers
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	monitor := broadcast.NewMonitor(svc, cfg.WarningAfter(), cfg.AutoEndAfter(), cfg.SweepInterval())
	monitor.Start(ctx)

	poller := broadcast.NewPoller(svc, adapter, cfg.PollInterval())
	poller.Start(ctx)

	// 7. Setup Metrics
	gateway.RegisterMetrics()
	broadcast.RegisterMetrics()
	go func() {
		http.Handle("/_metrics", promhttp.Handler())
		log.Printf("📊 Metrics exposed at http://localhost%s/_metrics", cfg.Server.MetricsPort)
		if err := http.ListenAndServe(cfg.Server.MetricsPort, nil); err != nil {
			log.Printf("⚠️ Metrics server error: %v", err)
		}
	}()

	// 8. Start Server
	srv := apiserver.New(cfg, hub, svc, pipe)

	go func() {
		log.Printf("🚀 API Server starting on %s", cfg.Server.Port)
		if err := srv.Start(cfg.Server.Port); err != nil {
			log.Fatalf("❌ Server failed to start: %v", err)
		}
	}()

	// 9. Wait for Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down...")
	cancel()
	poller.Stop()
	monitor.Stop()
	log.Println("✅ Workers stopped")
}
