// Server runs the brokerage onboarding gateway: the HTTP API on HTTP_ADDR and the gRPC health endpoint
// on GRPC_ADDR. Without DATABASE_URL flows and session values are kept in memory.
package main

import (
	"context"
	"crypto"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"brokerage-gateway/internal/brokerapi"
	"brokerage-gateway/internal/config"
	"brokerage-gateway/internal/db"
	"brokerage-gateway/internal/health"
	"brokerage-gateway/internal/httpapi"
	"brokerage-gateway/internal/ipo"
	"brokerage-gateway/internal/kyc"
	"brokerage-gateway/internal/logging"
	flowrepo "brokerage-gateway/internal/onboarding/repository"
	"brokerage-gateway/internal/onboarding/service"
	"brokerage-gateway/internal/security"
	"brokerage-gateway/internal/server"
	"brokerage-gateway/internal/session"
	sessionrepo "brokerage-gateway/internal/session/repository"
	"brokerage-gateway/internal/telemetry"
	telemetryotel "brokerage-gateway/internal/telemetry/otel"
	"brokerage-gateway/internal/telemetry/producer"
	eventrepo "brokerage-gateway/internal/telemetry/repository"
	"brokerage-gateway/internal/tradereport"
)

const (
	serviceName     = "brokerage-gateway"
	shutdownTimeout = 15 * time.Second
	janitorInterval = 5 * time.Minute
)

type sessionStore interface {
	session.Store
	server.ExpiredDeleter
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	providers, err := telemetryotel.NewProviders(ctx, telemetryotel.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: serviceName,
		Environment: cfg.Env,
		Insecure:    cfg.OTLPInsecure,
	})
	if err != nil {
		return err
	}
	providers.SetGlobal()
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := providers.Shutdown(sctx); err != nil {
			logger.Warn("otel shutdown", zap.Error(err))
		}
	}()
	metrics, err := telemetryotel.NewInstruments(providers.MeterProvider)
	if err != nil {
		return err
	}

	var (
		conn     *sql.DB
		flows    flowrepo.Repository
		sessions sessionStore
		events   httpapi.EventLister
	)
	emitters := telemetry.Multi{telemetryotel.NewEventEmitter(providers.LoggerProvider)}
	if cfg.DatabaseURL != "" {
		conn, err = db.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer conn.Close()
		flows = flowrepo.NewPostgresRepository(conn)
		sessions = sessionrepo.NewPostgresStore(conn, cfg.SessionLifetime())
		eventStore := eventrepo.NewPostgresRepository(conn)
		events = eventStore
		emitters = append(emitters, eventStore)
		logger.Info("storage: postgres")
	} else {
		flows = flowrepo.NewMemoryRepository()
		sessions = sessionrepo.NewMemoryStore(cfg.SessionLifetime())
		logger.Info("storage: memory")
	}
	if brokers := cfg.TelemetryKafkaBrokersList(); len(brokers) > 0 {
		kp := producer.NewKafkaProducer(brokers, cfg.TelemetryKafkaTopic)
		defer func() { _ = kp.Close() }()
		emitters = append(emitters, kp)
		logger.Info("telemetry: kafka sink enabled", zap.Strings("brokers", brokers), zap.String("topic", cfg.TelemetryKafkaTopic))
	}

	tokens, err := newTokenProvider(cfg, logger)
	if err != nil {
		return err
	}
	policy, err := ipo.NewPolicy(ctx)
	if err != nil {
		return err
	}

	backend := brokerapi.NewClient(cfg.BrokerAPIBaseURL, cfg.BrokerBranchCode, cfg.APITimeout())
	flowService := service.NewFlowService(backend, flows, sessions, tokens, emitters, metrics, logger, service.Options{
		Cooldown:         cfg.ResendCooldown(),
		IdentityDebounce: cfg.IdentityDebounce(),
		IdentityTimeout:  cfg.APITimeout(),
	})
	defer flowService.Close()

	var pinger health.Pinger
	if conn != nil {
		pinger = conn
	}
	checker := health.NewChecker(pinger, policy)

	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Flows:     flowService,
		IPO:       ipo.NewService(backend, policy, cfg.IPORetailCap, emitters, metrics, logger),
		Banks:     kyc.NewBankService(backend, sessions, emitters, metrics, logger),
		Reports:   tradereport.NewService(backend, emitters, metrics, logger),
		Sessions:  sessions,
		Tokens:    tokens,
		Validator: backend,
		Events:    events,
		Health:    checker,
		Logger:    logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	janitor := &server.Janitor{
		Flows:    flowService,
		Sessions: sessions,
		MaxIdle:  cfg.SessionLifetime(),
		Interval: janitorInterval,
		Logger:   logger,
	}
	go janitor.Run(ctx)

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var grpcServer *grpc.Server
	if cfg.GRPCAddr != "" {
		lis, err := net.Listen("tcp", cfg.GRPCAddr)
		if err != nil {
			return err
		}
		grpcServer = server.NewGRPCServer(server.Deps{Health: checker}, logger)
		go func() {
			logger.Info("grpc server listening", zap.String("addr", cfg.GRPCAddr))
			if err := grpcServer.Serve(lis); err != nil {
				errCh <- err
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-errCh:
		logger.Error("server failed", zap.Error(err))
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(sctx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	// Let in-flight best-effort events reach their sinks before the producers close.
	time.Sleep(drainDelay(sctx))
	logger.Info("server stopped")
	return nil
}

// newTokenProvider loads the configured key pair, or generates an ephemeral key outside production.
func newTokenProvider(cfg *config.Config, logger *zap.Logger) (*security.TokenProvider, error) {
	var (
		signer crypto.Signer
		pub    crypto.PublicKey
		err    error
	)
	if cfg.JWTPrivateKey != "" {
		signer, pub, err = security.LoadKeyPair(cfg.JWTPrivateKey, cfg.JWTPublicKey)
		if err != nil {
			return nil, err
		}
	} else {
		if cfg.Env == "production" {
			return nil, errors.New("JWT_PRIVATE_KEY and JWT_PUBLIC_KEY are required in production")
		}
		signer, err = security.GenerateEphemeralKey()
		if err != nil {
			return nil, err
		}
		pub = signer.Public()
		logger.Warn("using an ephemeral token key; access tokens will not survive a restart")
	}
	return security.NewTokenProvider(signer, pub, cfg.JWTIssuer, cfg.JWTAudience, cfg.AccessTTL()), nil
}

func drainDelay(ctx context.Context) time.Duration {
	d := telemetry.ShutdownDrainDuration
	if deadline, ok := ctx.Deadline(); ok {
		if left := time.Until(deadline); left < d {
			d = left
		}
	}
	if d < 0 {
		return 0
	}
	return d
}
