// Command platibus assembles a single Platibus bus instance: durable
// queue engine, subscription registry, message journal and the HTTP
// transport, wired from environment configuration the way the teacher's
// services read theirs.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nickmkk/Platibus/pkg/cache"
	cachemem "github.com/nickmkk/Platibus/pkg/cache/adapters/memory"
	cacheredis "github.com/nickmkk/Platibus/pkg/cache/adapters/redis"
	"github.com/nickmkk/Platibus/pkg/config"
	"github.com/nickmkk/Platibus/pkg/database"
	"github.com/nickmkk/Platibus/pkg/database/sql"
	"github.com/nickmkk/Platibus/pkg/database/sql/adapters/postgres"
	"github.com/nickmkk/Platibus/pkg/database/sql/adapters/sqlite"
	"github.com/nickmkk/Platibus/pkg/diagnostics"
	journalgorm "github.com/nickmkk/Platibus/pkg/journal/adapters/gorm"
	"github.com/nickmkk/Platibus/pkg/logger"
	"github.com/nickmkk/Platibus/pkg/message"
	"github.com/nickmkk/Platibus/pkg/queue"
	queuegorm "github.com/nickmkk/Platibus/pkg/queue/adapters/gorm"
	"github.com/nickmkk/Platibus/pkg/security"
	"github.com/nickmkk/Platibus/pkg/security/adapters/jwt"
	"github.com/nickmkk/Platibus/pkg/subscription"
	subscriptiongorm "github.com/nickmkk/Platibus/pkg/subscription/adapters/gorm"
	"github.com/nickmkk/Platibus/pkg/telemetry"
	"github.com/nickmkk/Platibus/pkg/transport"
)

// appConfig is the process's full environment-driven configuration: every
// concern (storage, cache, logging, tracing, security, the bus itself) is
// gathered in one struct and loaded in one pass by config.Load. The
// database settings reuse sql.Config; the other settings are declared
// here as fields.
type appConfig struct {
	LogLevel  string `env:"LOG_LEVEL" env-default:"INFO"`
	LogFormat string `env:"LOG_FORMAT" env-default:"JSON"`

	DB sql.Config `env-prefix:""`

	CacheDriver   string `env:"CACHE_DRIVER" env-default:"memory"`
	CacheHost     string `env:"CACHE_HOST" env-default:"localhost"`
	CachePort     string `env:"CACHE_PORT" env-default:"6379"`
	CachePassword string `env:"CACHE_PASSWORD"`
	CacheDB       int    `env:"CACHE_DB" env-default:"0"`

	JWTSecret string `env:"JWT_SECRET" validate:"required"`
	JWTIssuer string `env:"JWT_ISSUER" env-default:"platibus"`

	SelfBaseURI string `env:"SELF_BASE_URI" validate:"required"`
	BypassLocal bool   `env:"BYPASS_LOCAL" env-default:"true"`
	ListenAddr  string `env:"LISTEN_ADDR" env-default:":8080"`

	OTELServiceName string `env:"OTEL_SERVICE_NAME" env-default:"platibus"`
	OTELEndpoint    string `env:"OTEL_EXPORTER_OTLP_ENDPOINT" env-default:"localhost:4317"`
}

func main() {
	var cfg appConfig
	if err := config.Load(&cfg); err != nil {
		panic(err)
	}

	logger.Init(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	log := logger.L()

	shutdownTelemetry, err := telemetry.Init(telemetry.Config{
		ServiceName: cfg.OTELServiceName,
		Endpoint:    cfg.OTELEndpoint,
	})
	if err != nil {
		log.Error("telemetry init failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	db, err := openDatabase(cfg.DB)
	if err != nil {
		log.Error("database connect failed", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	c, err := openCache(cfg)
	if err != nil {
		log.Error("cache connect failed", "error", err)
		os.Exit(1)
	}
	defer c.Close()

	tokens := jwt.New(jwt.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer})

	ctx := context.Background()

	queueStore := queuegorm.New(db)
	if err := queueStore.Migrate(ctx); err != nil {
		log.Error("queue migration failed", "error", err)
		os.Exit(1)
	}

	subStore := subscriptiongorm.New(db)
	if err := subStore.Migrate(ctx); err != nil {
		log.Error("subscription migration failed", "error", err)
		os.Exit(1)
	}

	j := journalgorm.New(db)
	if err := j.Migrate(ctx); err != nil {
		log.Error("journal migration failed", "error", err)
		os.Exit(1)
	}

	sink := diagnostics.MultiSink{diagnostics.NewLogSink(ctx)}

	registry, err := subscription.NewCacheRegistry(ctx, subStore, c)
	if err != nil {
		log.Error("subscription registry init failed", "error", err)
		os.Exit(1)
	}

	engine := queue.NewEngine(queueStore, tokens, sink)
	bus := transport.New(transport.Config{
		SelfBaseURI: cfg.SelfBaseURI,
		BypassLocal: cfg.BypassLocal,
	}, engine, registry, tokens, j, sink)

	err = bus.Init(ctx, applicationHandler, queue.Options{
		ConcurrencyLimit: 4,
		MaxAttempts:      10,
		RetryDelay:       time.Second,
	})
	if err != nil {
		log.Error("bus init failed", "error", err)
		os.Exit(1)
	}
	defer bus.Close()

	messageResource := transport.NewMessageResource(bus, tokens)
	subscriberResource := transport.NewSubscriberResource(registry)
	server := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: transport.Mux(messageResource, subscriberResource),
	}

	go func() {
		log.Info("listening", "addr", cfg.ListenAddr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
		}
	}()

	waitForShutdown(ctx, server, log)
}

// applicationHandler is the placeholder application-level handler: a real
// deployment supplies its own via bus.Init before routing traffic to it.
func applicationHandler(ctx context.Context, msg message.Message, principal security.Principal) error {
	logger.L().InfoContext(ctx, "message handled", "message_id", msg.MessageId(), "subject", principal.Subject)
	return nil
}

func openDatabase(cfg sql.Config) (database.DB, error) {
	switch cfg.Driver {
	case database.DriverSQLite:
		return sqlite.New(cfg)
	default:
		return postgres.New(cfg)
	}
}

func openCache(cfg appConfig) (cache.Cache, error) {
	if cfg.CacheDriver == "redis" {
		return cacheredis.New(cache.Config{
			Host:     cfg.CacheHost,
			Port:     cfg.CachePort,
			Password: cfg.CachePassword,
			DB:       cfg.CacheDB,
		})
	}
	return cachemem.New(), nil
}

func waitForShutdown(ctx context.Context, server *http.Server, log interface {
	Info(string, ...any)
}) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
}
