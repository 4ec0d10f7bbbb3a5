package main

import (
	"context"
	"log"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	gfshutdown "github.com/gelmium/graceful-shutdown"
	"github.com/go-monolith/mono"

	"github.com/example/pubsub-relay-demo/modules/broadcast"
	"github.com/example/pubsub-relay-demo/modules/broker"
	"github.com/example/pubsub-relay-demo/modules/gateway"
	"github.com/example/pubsub-relay-demo/modules/history"
)

const shutdownTimeout = 30 * time.Second

type config struct {
	Port        string        `env:"PORT" envDefault:"8080"`
	RedisAddr   string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	HistoryTTL  time.Duration `env:"HISTORY_TTL" envDefault:"24h"`
	NatsURL     string        `env:"NATS_URL"`
	CORSOrigins string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000"`
}

func main() {
	log.Println("=== Pub/Sub Message Relay - Fiber + EventBus + Redis ===")

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("Failed to parse configuration: %v", err)
	}

	// Create mono application
	app, err := mono.NewMonoApplication(
		mono.WithShutdownTimeout(shutdownTimeout),
		mono.WithLogLevel(mono.LogLevelInfo),
		mono.WithLogFormat(mono.LogFormatText),
	)
	if err != nil {
		log.Fatalf("Failed to create application: %v", err)
	}

	// Create modules
	historyModule := history.NewModule(cfg.RedisAddr, cfg.HistoryTTL)
	brokerModule := broker.NewModule(historyModule)
	broadcastModule := broadcast.NewModule()
	gatewayModule := gateway.NewModule(cfg.Port, cfg.CORSOrigins, brokerModule)

	// Inject broadcast hub into the gateway module
	// (done manually because the hub is not exposed via ServiceContainer)
	gatewayModule.SetHub(broadcastModule.GetHub())

	// Register modules with the framework.
	// Order: adapters first, then the broker, then the driving boundary
	app.Register(historyModule)   // Redis history store
	app.Register(brokerModule)    // Session/room broker + event emitter
	app.Register(broadcastModule) // WebSocket hub + event consumer
	app.Register(gatewayModule)   // HTTP/WebSocket ingress

	// Start application
	if err := app.Start(context.Background()); err != nil {
		log.Fatalf("Failed to start application: %v", err)
	}

	printStartupInfo(cfg)

	// Graceful shutdown
	wait := gfshutdown.GracefulShutdown(
		context.Background(),
		shutdownTimeout,
		map[string]gfshutdown.Operation{
			"mono-app": func(ctx context.Context) error {
				log.Println("Graceful shutdown initiated...")
				return app.Stop(ctx)
			},
		},
	)

	exitCode := <-wait
	log.Printf("Application exited with code: %d", exitCode)
	os.Exit(exitCode)
}

func printStartupInfo(cfg config) {
	natsURL := cfg.NatsURL
	if natsURL == "" {
		natsURL = "embedded (single instance)"
	}

	log.Println("")
	log.Println("Application started successfully!")
	log.Println("")
	log.Println("Architecture:")
	log.Println("  - HTTP Framework: Fiber with WebSocket support")
	log.Println("  - Event Bus: NATS JetStream (cross-instance fan-out)")
	log.Printf("  - NATS: %s", natsURL)
	log.Printf("  - History: Redis at %s (bounded per-room log)", cfg.RedisAddr)
	log.Println("")
	log.Printf("HTTP Endpoints (http://localhost:%s):", cfg.Port)
	log.Println("  GET    /        - Liveness banner")
	log.Println("  POST   /        - Pub/Sub push ingress")
	log.Println("  GET    /health  - Health check")
	log.Println("")
	log.Printf("WebSocket Endpoint (ws://localhost:%s/ws):", cfg.Port)
	log.Println("  Inbound frame types:  sendMessage, signin")
	log.Println("  Outbound frame types: messageHistory, message, notification, pubsubMessage, ack, welcome")
	log.Println("")
	log.Println("Press Ctrl+C to shutdown gracefully")
}
