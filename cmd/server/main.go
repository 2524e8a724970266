package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"    // loads .env files in development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/jehyuk/seatgate/internal/booking"
	"github.com/jehyuk/seatgate/internal/config"
	"github.com/jehyuk/seatgate/internal/database"
	"github.com/jehyuk/seatgate/internal/handler"
	"github.com/jehyuk/seatgate/internal/realtime"
	"github.com/jehyuk/seatgate/internal/repository"
	"github.com/jehyuk/seatgate/internal/router"
	"github.com/jehyuk/seatgate/internal/seat"
	"github.com/jehyuk/seatgate/internal/store"
	"github.com/jehyuk/seatgate/internal/waitroom"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments use the environment
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Fatalf("redis: %v", err)
	}
	defer rdb.Close()

	db, err := database.Open(database.Config{
		User:            cfg.DBUser,
		Pass:            cfg.DBPass,
		Host:            cfg.DBHost,
		Port:            cfg.DBPort,
		Name:            cfg.DBName,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
	})
	if err != nil {
		log.Fatalf("mysql: %v", err)
	}
	defer db.Close()

	// Storage primitives shared by every component.
	sets := store.NewRedisSets(rdb)
	counters := store.NewRedisCounters(rdb)
	values := store.NewRedisValues(rdb)
	pubsub := store.NewRedisPubSub(rdb)
	locker := store.NewRedisLocker(rdb)

	// Waiting room.
	queue := waitroom.NewWaitQueue(sets, waitroom.NewScoreGenerator())
	sessions := waitroom.NewActiveSessions(sets, counters)
	grants := waitroom.NewGrantStore(values, sessions, cfg.GrantTTL, cfg.GrantExtension, cfg.SessionCeiling)
	bus := realtime.NewBus(pubsub)
	gateway := realtime.NewGateway()
	scheduler := waitroom.NewScheduler(queue, sessions, grants, bus, locker, int64(cfg.MaxActiveUsers), cfg.AdmissionInterval)
	cleaner := waitroom.NewCleaner(queue, sessions, bus, int64(cfg.RankTopK), cfg.CleanupInterval)
	waitRec := waitroom.NewReconciler(queue, sessions, locker, cfg.ReconcileInterval)

	// Seat cache.
	catalog := repository.NewCatalogRepo(db)
	bookings := repository.NewBookingRepo(db)
	seats := seat.NewRedisStateStore(rdb)
	warmer := seat.NewWarmer(seats, catalog, bookings, values, locker, cfg.WarmupLead, cfg.WarmupInterval)
	seatRec := seat.NewReconciler(seats, catalog, bookings, locker, cfg.SeatSyncInterval)
	watcher := seat.NewExpirationWatcher(pubsub, seats)
	consumer := booking.NewConsumer(cfg.AMQPURL, seats, seatRec)

	// Background jobs.  Each runs until the signal context is cancelled.
	go scheduler.Run(ctx)
	go cleaner.Run(ctx)
	go waitRec.Run(ctx)
	go warmer.Run(ctx)
	go seatRec.Run(ctx)
	go func() {
		if err := watcher.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[main] expiration watcher stopped: %v", err)
		}
	}()
	go func() {
		if err := gateway.Run(ctx, bus); err != nil && ctx.Err() == nil {
			log.Printf("[main] realtime gateway stopped: %v", err)
		}
	}()
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			log.Printf("[main] booking consumer stopped: %v", err)
		}
	}()

	e := echo.New()
	e.HideBanner = true

	router.RegisterHealth(e, rdb, db)
	admission := handler.NewAdmissionHandler(queue, grants)
	rt := handler.NewRealtimeHandler(gateway)
	router.RegisterAdmission(e, admission, rt, cfg, rdb)
	router.RegisterSeats(e, handler.NewSeatHandler(seats, grants, catalog, cfg.SeatHoldTTL), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("[main] server shutdown: %v", err)
	}
}
