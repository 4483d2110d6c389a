package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"turnero/internal/config"
	"turnero/internal/httpapi"
	"turnero/internal/hub"
	"turnero/internal/print"
	"turnero/internal/relay"
	"turnero/internal/store"
	"turnero/internal/store/memory"
	"turnero/internal/store/postgres"
	"turnero/internal/telemetry"
)

func main() {
	cfg := config.Load()
	logger := newLogger(cfg.LogLevel)

	shutdownTelemetry := telemetry.Setup("turnero")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var turnoStore store.TurnoStore
	if cfg.DatabaseURL == "" {
		// Kiosk/demo mode without Postgres.
		mem := memory.NewStore()
		sectores := mem.Seed()
		logger.Info().Int("sectores", len(sectores)).Msg("using in-memory store with seed data")
		turnoStore = mem
	} else {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db connect")
		}
		defer pool.Close()
		turnoStore = postgres.NewStore(pool)
	}

	h := hub.New(logger)
	sinks := []relay.Sink{relay.HubSink{Hub: h}}
	if cfg.WebhookURL != "" {
		sinks = append(sinks, relay.WebhookSink{
			URL:    cfg.WebhookURL,
			Token:  cfg.WebhookToken,
			Client: &http.Client{Timeout: cfg.RelayTimeout},
		})
	}
	notificador := relay.New(logger, relay.Options{
		Buffer:  cfg.RelayBuffer,
		Timeout: cfg.RelayTimeout,
	}, sinks...)
	defer notificador.Stop()

	impresora := print.NewPipeline(print.Options{
		Device:     cfg.PrinterDevice,
		Spooler:    cfg.PrinterSpooler,
		CaptureDir: cfg.CaptureDir,
		TempTTL:    cfg.PrintTempTTL,
	}, logger)

	handler := httpapi.NewHandler(turnoStore, httpapi.Options{
		Notificador: notificador,
		Impresora:   impresora,
		Logger:      logger,
	})
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		IPPerMinute: cfg.RateLimitPerMinute,
		IPBurst:     cfg.RateLimitBurst,
	})

	mux := http.NewServeMux()
	mux.Handle("/", handler.Routes())
	mux.Handle("/realtime/", newRealtimeHandler(h))

	chain := httpapi.LoggingMiddleware(logger)(limiter.Middleware(mux))
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(chain, "turnero"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", server.Addr).Msg("turnero listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}

// newRealtimeHandler serves the waiting room displays. Clients optionally send
// a subscribe message to narrow broadcasts to their sectors.
func newRealtimeHandler(h *hub.Hub) http.Handler {
	return sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		h.Register(client)
		defer h.Unregister(client)

		go func() {
			for msg := range client.Send {
				_ = session.Send(string(msg))
			}
		}()

		for {
			msg, err := session.Recv()
			if err != nil {
				return
			}
			parsed, ok := hub.ParseSubscribe([]byte(msg))
			if !ok {
				continue
			}
			if parsed.Action == "unsubscribe" {
				h.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			h.UpdateSubscription(client, hub.Subscription{SectorIDs: parsed.SectorIDs})
		}
	})
}

func newLogger(level string) zerolog.Logger {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || logLevel == zerolog.NoLevel {
		logLevel = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(logLevel).With().Timestamp().Logger()
}
