package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/albertogalvez-dev/queue/internal/config"
	"github.com/albertogalvez-dev/queue/internal/httpapi"
	"github.com/albertogalvez-dev/queue/internal/hub"
	"github.com/albertogalvez-dev/queue/internal/store"
	"github.com/albertogalvez-dev/queue/internal/store/memory"
	"github.com/albertogalvez-dev/queue/internal/store/postgres"
	"github.com/albertogalvez-dev/queue/internal/telemetry"
	"github.com/albertogalvez-dev/queue/internal/worker"

	"github.com/google/uuid"
	"github.com/igm/sockjs-go/sockjs"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	cfg := config.Load()
	shutdownTelemetry := telemetry.Setup("queue-service")
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTelemetry(ctx)
	}()

	var ticketStore store.TicketStore
	if cfg.DatabaseURL != "" {
		pool, err := pgxpool.New(context.Background(), cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer pool.Close()
		ticketStore = postgres.NewStore(pool)
		log.Printf("using postgres store")
	} else {
		memStore := memory.NewStore(memory.Options{EventBufferSize: cfg.EventBufferSize})
		if cfg.SeedDemoData {
			memStore.SeedDemoData()
		}
		ticketStore = memStore
		log.Printf("using in-memory store")
	}

	handler := httpapi.NewHandler(ticketStore)
	limiter := httpapi.NewRateLimiter(httpapi.RateLimitConfig{
		PerMinute: cfg.RateLimitPerMinute,
		Burst:     cfg.RateLimitBurst,
	})
	auth := httpapi.AuthConfig{
		OperatorToken: cfg.OperatorToken,
		AdminToken:    cfg.AdminToken,
	}

	eventHub := hub.New()

	mux := http.NewServeMux()
	mux.Handle("/", httpapi.AuthMiddleware(auth,
		httpapi.TimeoutMiddleware(cfg.RequestTimeout, handler.Routes())))
	mux.Handle("/realtime/", sockjs.NewHandler("/realtime", sockjs.DefaultOptions, func(session sockjs.Session) {
		client := &hub.Client{ID: uuid.NewString(), Send: make(chan []byte, 16)}
		eventHub.Register(client)
		defer eventHub.Unregister(client)

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
				eventHub.UpdateSubscription(client, hub.Subscription{})
				continue
			}
			eventHub.UpdateSubscription(client, hub.Subscription{ServiceID: parsed.ServiceID})
		}
	}))

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      otelhttp.NewHandler(httpapi.LoggingMiddleware(limiter.Middleware(mux)), "queue-service"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	rootCtx, stopWorkers := context.WithCancel(context.Background())
	defer stopWorkers()

	sweeper := &worker.NoShowSweeper{
		Store:     ticketStore,
		Grace:     cfg.NoShowGrace,
		Interval:  cfg.NoShowInterval,
		BatchSize: cfg.NoShowBatchSize,
	}
	go sweeper.Run(rootCtx)

	go pumpEvents(rootCtx, ticketStore, eventHub)

	go func() {
		log.Printf("queue-service listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	stopWorkers()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Printf("shutdown error: %v", err)
	}
}

// pumpEvents tails the event feed and fans new entries out through the hub.
func pumpEvents(ctx context.Context, st store.TicketStore, eventHub *hub.Hub) {
	var since uint64
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		pollCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		events, err := st.ListEvents(pollCtx, since, 256)
		cancel()
		if err != nil {
			log.Printf("event poll error: %v", err)
			continue
		}
		for _, event := range events {
			since = event.Seq
			payload, err := json.Marshal(event)
			if err != nil {
				continue
			}
			eventHub.Broadcast(payload, hub.Subscription{ServiceID: event.ServiceID})
		}
	}
}
