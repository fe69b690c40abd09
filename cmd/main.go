package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	// OpenTelemetry
	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"

	// Infrastructure
	"github.com/exaring/otelpgx"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nats-io/nats.go"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"

	// Interne
	"github.com/jupiterclapton/cenackle/services/social-service/config"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/primary/events"
	httpadapter "github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/primary/http"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/primary/realtime"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/eventbroker"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/repository"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/adapters/secondary/security"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/ports"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/core/services"
	"github.com/jupiterclapton/cenackle/services/social-service/internal/metrics"
)

func main() {
	// 1. Charger la Config
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 2. Initialiser le Logger (slog JSON pour la prod, Text pour le dev)
	initLogger(cfg)
	slog.Info("🚀 Starting Social Service", "env", cfg.Env, "http_port", cfg.HTTPPort, "store", cfg.StoreDriver)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 3. Initialiser le Tracing (OpenTelemetry)
	tp, err := initTracer(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init tracer", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				slog.Error("Error shutting down tracer", "error", err)
			}
		}()
	}

	// 4. Métriques (registre dédié, exposé sur /metrics)
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	// 5. Infrastructure : stockage
	st, err := openStores(ctx, cfg)
	if err != nil {
		slog.Error("Failed to init storage", "error", err)
		os.Exit(1)
	}
	defer st.close()

	// 6. Hub de notifications + transport des événements
	hub := realtime.NewHub(realtime.Options{
		EventBuffer:    cfg.EventBuffer,
		ClientBuffer:   cfg.ClientBuffer,
		AllowedOrigins: cfg.CORSAllowedOrigins,
	}, m)

	var publisher ports.EventPublisher = hub
	var nc *nats.Conn
	if cfg.NatsUrl != "" {
		nc, err = nats.Connect(cfg.NatsUrl,
			nats.Name(cfg.ServiceName),
			nats.MaxReconnects(-1),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				slog.Warn("NATS disconnected", "error", err)
			}),
			nats.ReconnectHandler(func(c *nats.Conn) {
				slog.Info("NATS reconnected", "url", c.ConnectedUrl())
			}),
		)
		if err != nil {
			slog.Error("Failed to connect to NATS", "error", err)
			os.Exit(1)
		}
		defer nc.Close()

		if _, err := events.NewBridge(hub, m).Subscribe(nc); err != nil {
			slog.Error("Failed to subscribe to change events", "error", err)
			os.Exit(1)
		}
		publisher = eventbroker.NewNatsPublisher(nc)
		slog.Info("✅ NATS connected, cross-instance fan-out enabled", "subject", eventbroker.SubjectAll)
	} else {
		slog.Info("ℹ️  NATS_URL empty, fan-out stays in-process")
	}

	// 7. Sécurité (Clés RSA & Argon2)
	jwtProvider, err := initTokens(cfg)
	if err != nil {
		slog.Error("Failed to init JWT provider", "error", err)
		os.Exit(1)
	}
	hasher := security.NewArgon2Hasher(nil) // Params par défaut

	// 8. Wiring (Injection de dépendances) - Adapters -> Services
	identityService := services.NewIdentityService(st.accounts, st.graph, hasher, jwtProvider)
	graphService := services.NewGraphService(st.graph, st.accounts, publisher, services.DefaultRetryPolicy, m)
	engagementService := services.NewEngagementService(st.content, st.likes, publisher, m)

	handler := httpadapter.NewHandler(identityService, graphService, engagementService, hub)
	router := httpadapter.NewRouter(handler, identityService, httpadapter.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AuthRateLimit:  cfg.AuthRateLimit,
		Gatherer:       reg,
		Health:         st.health(nc),
	})

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// 9. Serveur gRPC : health check (K8s) + reflection en dev
	lis, err := net.Listen("tcp", ":"+cfg.GRPCPort)
	if err != nil {
		slog.Error("Failed to listen", "port", cfg.GRPCPort, "error", err)
		os.Exit(1)
	}
	grpcServer := grpc.NewServer(grpc.StatsHandler(otelgrpc.NewServerHandler()))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(cfg.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	if !cfg.IsProd() {
		reflection.Register(grpcServer)
		slog.Info("🔍 gRPC Reflection enabled")
	}

	// 10. Démarrage (Goroutines)
	hubCtx, stopHub := context.WithCancel(ctx)
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		_ = hub.Run(hubCtx)
	}()

	go func() {
		slog.Info("🚀 gRPC Server listening", "address", lis.Addr())
		if err := grpcServer.Serve(lis); err != nil {
			slog.Error("Failed to serve gRPC", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		slog.Info("🚀 HTTP Server listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Failed to serve HTTP", "error", err)
			os.Exit(1)
		}
	}()

	// 11. Graceful Shutdown (Attente des signaux OS)
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	sig := <-quit // Bloquant
	slog.Info("⚠️  Signal received, shutting down...", "signal", sig)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	// Plus de nouvelles requêtes ; les mutations en cours vont au bout
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("HTTP shutdown incomplete", "error", err)
	}

	// Les connexions WebSocket sont hijackées : c'est le hub qui les ferme
	stopHub()
	<-hubDone

	if nc != nil {
		if err := nc.Drain(); err != nil {
			slog.Warn("NATS drain failed", "error", err)
		}
	}

	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()

	select {
	case <-done:
		slog.Info("✅ Servers stopped gracefully")
	case <-shutdownCtx.Done():
		slog.Warn("⏳ Timeout reached, forcing server stop")
		grpcServer.Stop()
	}

	slog.Info("👋 Service stopped")
}

// --- STOCKAGE ---

type stores struct {
	accounts ports.AccountRepository
	graph    ports.GraphRepository
	content  ports.ContentRepository
	likes    ports.LikeRepository

	pool    *pgxpool.Pool
	neo     neo4j.DriverWithContext
	rdb     *redis.Client
	closers []func()
}

func (s *stores) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

func (s *stores) health(nc *nats.Conn) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		if s.pool != nil {
			if err := s.pool.Ping(ctx); err != nil {
				return fmt.Errorf("postgres: %w", err)
			}
		}
		if s.rdb != nil {
			if err := s.rdb.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis: %w", err)
			}
		}
		if s.neo != nil {
			if err := s.neo.VerifyConnectivity(ctx); err != nil {
				return fmt.Errorf("neo4j: %w", err)
			}
		}
		if nc != nil && !nc.IsConnected() {
			return errors.New("nats: not connected")
		}
		return nil
	}
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	st := &stores{}

	switch cfg.StoreDriver {
	case config.StorePostgres:
		pool, err := openPostgres(ctx, cfg.DBUrl)
		if err != nil {
			return nil, err
		}
		st.pool = pool
		st.closers = append(st.closers, pool.Close)

		pg := repository.NewPostgresStore(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			st.close()
			return nil, err
		}
		st.accounts, st.graph, st.content, st.likes = pg, pg, pg, pg
	default:
		slog.Warn("⚠️  In-memory store: data is lost on restart")
		mem := repository.NewMemoryStore()
		st.accounts, st.graph, st.content, st.likes = mem, mem, mem, mem
	}

	if cfg.GraphDriver == config.GraphNeo4j {
		driver, err := neo4j.NewDriverWithContext(cfg.Neo4jURI, neo4j.BasicAuth(cfg.Neo4jUser, cfg.Neo4jPassword, ""))
		if err != nil {
			st.close()
			return nil, fmt.Errorf("neo4j driver: %w", err)
		}
		st.neo = driver
		st.closers = append(st.closers, func() { _ = driver.Close(context.Background()) })
		if err := driver.VerifyConnectivity(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("neo4j connectivity: %w", err)
		}

		graph := repository.NewNeo4jGraph(driver, st.accounts)
		if err := graph.EnsureSchema(ctx); err != nil {
			st.close()
			return nil, fmt.Errorf("neo4j schema: %w", err)
		}
		st.graph = graph
		slog.Info("✅ Neo4j connected (graph store)")
	}

	if cfg.EngagementDriver == config.EngagementRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		if err := redisotel.InstrumentTracing(rdb); err != nil {
			slog.Warn("Failed to instrument redis tracing", "error", err)
		}
		st.rdb = rdb
		st.closers = append(st.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			st.close()
			return nil, fmt.Errorf("redis ping: %w", err)
		}
		st.likes = repository.NewRedisLikes(rdb, st.content)
		slog.Info("✅ Redis connected (like store)")
	}

	return st, nil
}

// openPostgres retente le ping : la base démarre souvent après le service (docker compose).
func openPostgres(ctx context.Context, url string) (*pgxpool.Pool, error) {
	dbConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("parse DB config: %w", err)
	}
	// Tracing de chaque requête SQL
	dbConfig.ConnConfig.Tracer = otelpgx.NewTracer()

	pool, err := pgxpool.NewWithConfig(ctx, dbConfig)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		return struct{}{}, pool.Ping(ctx)
	},
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxElapsedTime(30*time.Second),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.Warn("Database not ready, retrying", "error", err, "backoff", next)
		}),
	)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping: %w", err)
	}
	slog.Info("✅ Database connected")
	return pool, nil
}

// --- HELPERS ---

func initLogger(cfg *config.Config) {
	var handler slog.Handler
	if cfg.Env == "local" {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	} else {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo})
	}
	slog.SetDefault(slog.New(handler))
}

func initTracer(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, error) {
	exporter, err := otlptracegrpc.New(ctx,
		otlptracegrpc.WithEndpoint(cfg.OtelEndpoint),
		otlptracegrpc.WithInsecure(), // En prod, gérez le TLS
	)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String("1.0.0"),
			semconv.DeploymentEnvironmentKey.String(cfg.Env),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	// Propagateur global : le trace-id suit la requête HTTP jusqu'aux messages NATS
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	return tp, nil
}

// initTokens charge les clés RSA. En local, des fichiers absents donnent une paire éphémère.
func initTokens(cfg *config.Config) (*security.JWTProvider, error) {
	opts := []security.Option{security.WithTTL(cfg.TokenTTL), security.WithIssuer(cfg.TokenIssuer)}

	privKey, pubKey, err := loadKeys(cfg.RSAPrivateKeyPath, cfg.RSAPublicKeyPath)
	if err != nil {
		if cfg.Env == "local" && errors.Is(err, os.ErrNotExist) {
			slog.Warn("⚠️  RSA keys not found, using an ephemeral key pair (tokens die with the process)", "error", err)
			return security.NewEphemeralJWTProvider(opts...)
		}
		return nil, err
	}
	return security.NewJWTProvider(privKey, pubKey, opts...)
}

func loadKeys(privPath, pubPath string) ([]byte, []byte, error) {
	priv, err := os.ReadFile(privPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading private key: %w", err)
	}
	pub, err := os.ReadFile(pubPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading public key: %w", err)
	}
	return priv, pub, nil
}
