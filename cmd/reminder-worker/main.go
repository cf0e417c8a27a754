package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/clinicore/cabinet-scheduling/internal/access"
	"github.com/clinicore/cabinet-scheduling/internal/appointment"
	"github.com/clinicore/cabinet-scheduling/internal/audit"
	"github.com/clinicore/cabinet-scheduling/internal/config"
	"github.com/clinicore/cabinet-scheduling/internal/db"
	"github.com/clinicore/cabinet-scheduling/internal/notify"
	"github.com/clinicore/cabinet-scheduling/internal/observability/metrics"
	redisclient "github.com/clinicore/cabinet-scheduling/internal/redis"
	"github.com/clinicore/cabinet-scheduling/internal/reminder"
	"github.com/clinicore/cabinet-scheduling/pkg/logging"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("reminder-worker starting up")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger := logging.New(cfg.LogLevel)
	log.Printf("running reminder worker in env=%s interval=%s thresholds=%v", cfg.Env, cfg.SweepInterval, cfg.ReminderThresholds)

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Connect Postgres
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

	m := metrics.NewSchedulingMetrics(prometheus.DefaultRegisterer)
	repo := appointment.NewPgRepository(pgPool)
	guard := access.NewGuard(audit.NewPgSink(pgPool), logger)
	locker := redisclient.NewRedisLocker(rdb, cfg.LockTTL)
	dispatcher := notify.NewRedisDispatcher(rdb)
	svc := appointment.NewService(repo, locker, guard, dispatcher, cfg, m, logger)

	// The sweep lock must outlive a full cabinet batch, unlike the short
	// booking lock.
	sweepLocker := redisclient.NewRedisLocker(rdb, cfg.SweepInterval)
	scheduler := reminder.NewScheduler(repo, svc, sweepLocker, reminder.NewRedisDedup(rdb), dispatcher, cfg, m, logger)

	// Run once at startup
	runOnce(rootCtx, scheduler)

	ticker := time.NewTicker(cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			log.Println("shutdown signal received, stopping reminder worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, scheduler)
		}
	}
}

func runOnce(ctx context.Context, scheduler *reminder.Scheduler) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	if err := scheduler.Sweep(runCtx); err != nil {
		log.Printf("sweep error: %v", err)
		return
	}
	log.Printf("sweep complete in %s", time.Since(start))
}
