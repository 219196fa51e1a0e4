package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/clinicdesk/clinic-queueing/internal/api"
	"github.com/clinicdesk/clinic-queueing/internal/config"
	"github.com/clinicdesk/clinic-queueing/internal/db"
	"github.com/clinicdesk/clinic-queueing/internal/notify"
	"github.com/clinicdesk/clinic-queueing/internal/queue"
	redisclient "github.com/clinicdesk/clinic-queueing/internal/redis"
	"github.com/clinicdesk/clinic-queueing/internal/schedule"
	"github.com/clinicdesk/clinic-queueing/internal/ws"
)

const version = "0.3.0"

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("api-server starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	log.Printf("running in env=%s http_port=%s queue_tz=%s slot_width=%dm avg_consult=%dm",
		cfg.Env, cfg.HTTPPort, cfg.QueueTimezone, cfg.SlotWidthMin, cfg.AvgConsultMin)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pgCtx, cancelPg := context.WithTimeout(rootCtx, 10*time.Second)
	pgPool, err := db.ConnectPostgres(pgCtx, cfg.PostgresDSN)
	cancelPg()
	if err != nil {
		log.Fatalf("postgres connection error: %v", err)
	}
	defer pgPool.Close()
	log.Println("connected to Postgres")

	rdb, err := redisclient.NewRedisClient(cfg.RedisAddr, cfg.RedisUsername, cfg.RedisPassword)
	if err != nil {
		log.Fatalf("redis connection error: %v", err)
	}
	defer func() {
		if err := rdb.Close(); err != nil {
			log.Printf("error closing redis: %v", err)
		}
	}()
	log.Println("connected to Redis")

	channels := []notify.Channel{notify.NewRealtimeChannel(rdb)}
	if cfg.PushGatewayURL != "" {
		channels = append(channels, notify.NewWebhookChannel("push", cfg.PushGatewayURL))
	}
	if cfg.SMSGatewayURL != "" {
		channels = append(channels, notify.NewWebhookChannel("sms", cfg.SMSGatewayURL))
	}
	dispatcher := notify.NewDispatcher(cfg.NotifyTimeout, channels...)

	repo := queue.NewPgRepository(pgPool)
	archiver := queue.NewPgArchiver(pgPool)
	locker := redisclient.NewRedisQueueLocker(rdb, cfg.LockTTL, cfg.LockWait)
	queueSvc := queue.NewService(repo, archiver, locker, dispatcher, cfg.QueueTimezone, cfg.AvgConsultMin)

	availability := schedule.NewPgStore(pgPool)
	scheduleSvc := schedule.NewService(availability, availability, cfg.SlotWidthMin)

	hub := ws.NewHub()
	go hub.Run(rootCtx)
	go hub.RunRedisFeed(rootCtx, rdb)

	router := api.NewRouter(api.RouterConfig{
		Queue:    queueSvc,
		Schedule: scheduleSvc,
		Hub:      hub,
		PgPool:   pgPool,
		Redis:    rdb,
		Env:      cfg.Env,
		Version:  version,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("listening on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("http server error: %v", err)
		}
	}()

	<-rootCtx.Done()

	log.Println("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
