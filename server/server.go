package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/sekolahku/docgate/bus"
	"github.com/sekolahku/docgate/gateway"
	"github.com/sekolahku/docgate/kv"
	"github.com/sekolahku/docgate/schema"
)

type server struct {
	gw      *gateway.Gateway
	schemas *schema.Registry
	log     *slog.Logger
}

func newServer(gw *gateway.Gateway, schemas *schema.Registry, log *slog.Logger) *server {
	return &server{
		gw:      gw,
		schemas: schemas,
		log:     log,
	}
}

func (s *server) routes(e *echo.Echo) {
	e.Binder = &Binder{
		defaultBinder: &echo.DefaultBinder{},
	}

	v1 := e.Group("/v1")

	v1.POST("/_batch", s.BatchCommit)
	v1.POST("/_batch/simple", s.SimpleBatchCommit)

	v1.PUT("/_schemas/:collection", s.PutSchema)
	v1.GET("/_schemas/:collection", s.GetSchema)

	v1.POST("/:collection/_query", s.QueryDocuments)
	v1.GET("/:collection/_watch", s.WatchDocuments)

	v1.POST("/:collection", s.CreateDocument)
	v1.POST("/:collection/:id", s.CreateDocument)
	v1.GET("/:collection/:id", s.GetDocument)
	v1.PUT("/:collection/:id", s.PutDocument)
	v1.PATCH("/:collection/:id", s.UpdateDocument)
	v1.DELETE("/:collection/:id", s.DeleteDocument)
}

// Handler serves the v1 API without the tracing and metrics middleware.
func Handler(gw *gateway.Gateway, schemas *schema.Registry, log *slog.Logger) http.Handler {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	newServer(gw, schemas, log).routes(e)
	return e
}

func openStore(cfg *Config) (kv.KV, error) {
	switch cfg.Store {
	case "memory":
		return kv.NewMemPebble()
	case "tikv":
		return kv.NewTikv(cfg.PDEndpoints...)
	default:
		return kv.NewPebble(cfg.PebblePath)
	}
}

// openBus returns the bus and a function that releases it.
func openBus(cfg *Config) (bus.Bus, func(), error) {
	switch cfg.Bus {
	case "nats":
		b, err := bus.ConnectNats(cfg.NatsURL)
		if err != nil {
			return nil, nil, err
		}
		return b, func() { b.Close() }, nil
	case "embedded":
		srv, err := bus.NewEmbeddedNats("127.0.0.1", cfg.NatsPort)
		if err != nil {
			return nil, nil, err
		}
		b, err := bus.ConnectNats(srv.ClientURL())
		if err != nil {
			srv.Shutdown()
			return nil, nil, err
		}
		return b, func() {
			b.Close()
			srv.Shutdown()
		}, nil
	default:
		b := bus.NewSolo()
		return b, func() { b.Close() }, nil
	}
}

func Main(cfg *Config) error {
	log := cfg.Logger()
	slog.SetDefault(log)
	kv.SetLogger(log)

	shutdownTracer, err := InitTracer(context.Background(), cfg.OtelEndpoint)
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}
	defer shutdownTracer(context.Background())

	store, err := openStore(cfg)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer store.Close()

	bs, closeBus, err := openBus(cfg)
	if err != nil {
		return fmt.Errorf("bus: %w", err)
	}
	defer closeBus()

	gw := gateway.New(store, gateway.WithBus(bs), gateway.WithLogger(log))

	schemas, err := schema.NewRegistry(gw, cfg.SchemaTTL)
	if err != nil {
		return fmt.Errorf("schemas: %w", err)
	}

	s := newServer(gw, schemas, log)

	reg := newRegistry()
	reg.MustRegister(gw.Collectors()...)
	go s.statsd(cfg.StatsListen, reg)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	e.Use(TracingMiddleware)
	e.Use(PrometheusMiddleware(reg))
	s.routes(e)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := e.Shutdown(sctx); err != nil {
			log.Error("shutdown", "err", err)
		}
	}()

	log.Info("listening", "addr", cfg.Listen, "store", cfg.Store, "bus", cfg.Bus)
	if err := e.Start(cfg.Listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// newRegistry is the prometheus registry served on /metrics.
func newRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	registerDefaults(reg)
	return reg
}
