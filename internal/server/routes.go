package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/julienschmidt/httprouter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"guessduel/internal/analytics"
	"guessduel/internal/broadcast"
	"guessduel/internal/config"
	"guessduel/internal/db"
	"guessduel/internal/events"
	"guessduel/internal/gateway"
	"guessduel/internal/images"
	"guessduel/internal/matchmaking"
	"guessduel/internal/metrics"
	"guessduel/internal/rooms"
	"guessduel/internal/wshub"
)

const (
	sweepInterval   = time.Minute
	shutdownTimeout = 5 * time.Second
	readTimeout     = 10 * time.Second
)

// Run wires every component, serves until ctx is cancelled, then shuts down.
func Run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	var (
		database *db.DB
		provider images.Provider
		recorder *analytics.Recorder
	)

	// Optional database connection
	if cfg.DatabaseURL != "" {
		d, err := db.Connect(ctx, cfg.DatabaseURL, logger.Named("db"))
		if err != nil {
			logger.Error("failed to connect, running without database", zap.Error(err))
		} else {
			if err := d.Migrate(ctx); err != nil {
				logger.Error("migration failed", zap.Error(err))
			}
			database = d
			provider = images.NewStore(d)
			recorder = analytics.NewRecorder(d, logger.Named("recorder"))
		}
	} else {
		logger.Info("database url not set, running without database")
	}

	if provider == nil {
		catalog := images.NewCatalog()
		if cfg.ImagesFile != "" {
			c, err := images.LoadCatalog(cfg.ImagesFile)
			if err != nil {
				return err
			}
			catalog = c
		}
		n, _ := catalog.CountApproved(ctx)
		if n == 0 {
			logger.Warn("no approved images available, matches cannot start")
		}
		logger.Info("using image catalogue", zap.String("file", cfg.ImagesFile), zap.Int("approved", n))
		provider = catalog
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	hub := wshub.NewHub(logger.Named("wshub"))
	roomStore := rooms.NewStore(logger.Named("rooms"))
	bus := events.NewBus()

	gwCfg := gateway.Config{
		Hub:              hub,
		Queue:            matchmaking.NewQueue(),
		Rooms:            roomStore,
		Images:           provider,
		Bus:              bus,
		Metrics:          m,
		Logger:           logger.Named("gateway"),
		RevealDelay:      cfg.RevealDelay,
		RoomCloseTimeout: cfg.RoomCloseTimeout,
		TimeBonus:        cfg.TimeBonus,
	}
	if recorder != nil {
		gwCfg.Recorder = recorder
	}
	gw := gateway.New(ctx, gwCfg)
	stats := broadcast.NewBroadcaster(ctx, bus, gw.Snapshot, hub, logger.Named("stats"))

	sched, err := gocron.NewScheduler()
	if err != nil {
		return fmt.Errorf("creating scheduler: %w", err)
	}
	if err := stats.Schedule(sched, cfg.StatsInterval); err != nil {
		return err
	}
	if cfg.StaleRoomTTL > 0 {
		if _, err := sched.NewJob(
			gocron.DurationJob(sweepInterval),
			gocron.NewTask(func() { roomStore.SweepStale(cfg.StaleRoomTTL) }),
		); err != nil {
			return fmt.Errorf("scheduling stale sweep: %w", err)
		}
	}
	sched.Start()

	recCtx, stopRecorder := context.WithCancel(context.Background())
	if recorder != nil {
		go recorder.Run(recCtx)
	}

	srv := &Server{
		Gateway:   gw,
		Hub:       hub,
		Rooms:     roomStore,
		Stats:     stats,
		DB:        database,
		Log:       logger.Named("http"),
		PublicURL: cfg.PublicURL,
		Origins:   cfg.Origins,
		Started:   time.Now(),
	}

	httpSrv := &http.Server{
		Addr:              net.JoinHostPort(cfg.Bind, strconv.Itoa(cfg.Port)),
		Handler:           newRouter(srv, reg),
		IdleTimeout:       10 * time.Minute,
		ReadHeaderTimeout: readTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errs := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", httpSrv.Addr))
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs <- err
		}
		close(errs)
	}()

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errs:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	_ = httpSrv.Shutdown(shutdownCtx)

	if err := sched.Shutdown(); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
	gw.Close()
	stopRecorder()
	if recorder != nil {
		recorder.Wait()
	}
	if database != nil {
		_ = database.Close()
	}
	logger.Info("server stopped")
	return serveErr
}

func newRouter(s *Server, reg *prometheus.Registry) *httprouter.Router {
	mux := httprouter.New()
	mux.PanicHandler = func(w http.ResponseWriter, r *http.Request, i any) {
		s.Log.Error("http handler panic", zap.String("path", r.URL.Path), zap.Any("panic", i))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}

	mux.GET("/health", s.handleHealth)
	mux.GET("/ws", s.handleWS)
	mux.GET("/api/matches", s.handleMatches)
	mux.GET("/api/matches/:session/qr", s.handleMatchQR)
	mux.GET("/api/stats", s.handleStats)
	mux.Handler(http.MethodGet, "/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return mux
}
