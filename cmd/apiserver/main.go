// Package main is the entry point for the background-task connector's API
// server. It reads configuration from environment variables, connects to
// PostgreSQL (or falls back to an in-memory store), and serves the HTTP
// control surface plus a real-time WebSocket feed using Gin.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	pgdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/taskengine/backgroundtask/connector"
	"github.com/taskengine/backgroundtask/internal/api"
	ws "github.com/taskengine/backgroundtask/internal/api/websocket"
	"github.com/taskengine/backgroundtask/internal/config"
	"github.com/taskengine/backgroundtask/observability/logging"
	"github.com/taskengine/backgroundtask/observability/metrics"
	"github.com/taskengine/backgroundtask/periodic"
	"github.com/taskengine/backgroundtask/registry"
	"github.com/taskengine/backgroundtask/store"
	"github.com/taskengine/backgroundtask/store/memstore"
	"github.com/taskengine/backgroundtask/store/pg"
	"github.com/taskengine/backgroundtask/task"
	"github.com/taskengine/backgroundtask/workerrt/pool"
)

func main() {
	cfg := config.Load()
	collector := metrics.New()

	var entityStore store.EntityStore
	if cfg.DatabaseURL != "" {
		db, err := gorm.Open(pgdriver.Open(cfg.DatabaseURL), &gorm.Config{})
		if err != nil {
			log.Fatalf("failed to connect to postgres: %v", err)
		}
		pgStore := pg.New(db)
		if err := pgStore.AutoMigrate(); err != nil {
			log.Fatalf("failed to migrate background_tasks table: %v", err)
		}
		entityStore = pgStore
		log.Println("using postgres entity store")
	} else {
		entityStore = memstore.New()
		log.Println("DATABASE_URL not set — using in-memory entity store")
	}

	reg := registry.New(nil)
	runtime := pool.New(0)
	registerDemoHandlers(runtime, reg)

	hub := ws.NewHub()
	conn := connector.New(entityStore, reg, runtime, cfg.Connector,
		connector.WithMetrics(collector),
		connector.WithLogger(logging.Logger),
		connector.WithNotifier(func(v *task.View) {
			hub.Broadcast(context.Background(), ws.Event{Type: ws.EventTaskStatus, Payload: v})
		}),
	)

	sched := periodic.New(periodic.WithMetrics(collector), periodic.WithLogger(logging.Logger))
	if err := sched.AddCronTask("retention-log", "0 * * * *", func(id string) error {
		logging.WithSchedule(logging.Logger, id).Info().Msg("hourly retention reminder tick")
		return nil
	}); err != nil {
		log.Fatalf("failed to register periodic cron task: %v", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := conn.Start(ctx); err != nil {
		log.Fatalf("connector start error: %v", err)
	}
	defer conn.Stop(context.Background())

	r := api.NewRouter(conn, hub)
	log.Printf("API server listening on :%s", cfg.Port)
	go func() {
		if err := r.Run(":" + cfg.Port); err != nil {
			log.Printf("server error: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("API server shutting down")
}
