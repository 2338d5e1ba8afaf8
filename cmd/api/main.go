package main

import (
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/nimasrn/payment-gateway/internal/config"
	gateway "github.com/nimasrn/payment-gateway/internal/gateways"
	"github.com/nimasrn/payment-gateway/internal/handlers"
	"github.com/nimasrn/payment-gateway/internal/locker"
	"github.com/nimasrn/payment-gateway/internal/notifier"
	"github.com/nimasrn/payment-gateway/internal/repository"
	"github.com/nimasrn/payment-gateway/internal/services"
	"github.com/nimasrn/payment-gateway/internal/signature"
	xhttp "github.com/nimasrn/payment-gateway/pkg/http"
	"github.com/nimasrn/payment-gateway/pkg/logger"
	"github.com/nimasrn/payment-gateway/pkg/pg"
	"github.com/nimasrn/payment-gateway/pkg/prom"
	"github.com/nimasrn/payment-gateway/pkg/redis"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {

	err := config.Load(argContainsEnvPath())
	if err != nil {
		logger.Error("failed to load config", "error", err)
		return
	}

	var hostname string
	hostname, err = os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	err = prom.Create(hostname, config.Get().AppEnv, config.Get().PromNamespace)
	if err != nil {
		logger.Error("failed to create prometheus metrics", "error", err)
		return
	}
	if config.Get().AppDebugMetricsAddr != "" {
		go prom.ListenAndServer(config.Get().AppDebugMetricsAddr, config.Get().AppDebugMetricsURI)
	}

	// transport (tcp for now)
	s := xhttp.NewServer(xhttp.DefaultServerOption)
	s.Server.ReadBufferSize = 1024 * 16
	s.Server.WriteBufferSize = 1024 * 16
	s.Use(xhttp.CompressMiddleware(6))
	s.Use(xhttp.TimeoutMiddleware(time.Second * 15))
	s.Use(xhttp.RequestLoggerMiddleware)
	s.Use(xhttp.RecoverMiddleware)
	s.Router = xhttp.CreateDefaultRouter()

	readConf := pg.Config{
		User:     config.Get().PostgresReadUser,
		Host:     config.Get().PostgresReadHost,
		Port:     config.Get().PostgresReadPort,
		Password: config.Get().PostgresReadPassword,
		Database: config.Get().PostgresReadDatabase,
	}
	writeConf := pg.Config{
		User:     config.Get().PostgresWriteUser,
		Host:     config.Get().PostgresWriteHost,
		Port:     config.Get().PostgresWritePort,
		Password: config.Get().PostgresWritePassword,
		Database: config.Get().PostgresWriteDatabase,
	}

	pgDebug := false
	if config.Get().AppEnv == "dev" {
		pgDebug = true
	}
	db, err := pg.CreateReadWrite(readConf, writeConf, pgDebug)
	if err != nil {
		logger.Error("failed connecting to pg", "error", err)
		return
	}

	gatewayClient, err := gateway.NewClient(&gateway.Config{
		BaseURL:   config.Get().RazorpayBaseURL,
		KeyID:     config.Get().RazorpayKeyID,
		KeySecret: config.Get().RazorpayKeySecret,
	})
	if err != nil {
		logger.Error("failed creating gateway client", "error", err)
		return
	}

	verifier, err := signature.NewVerifier([]byte(config.Get().RazorpayKeySecret))
	if err != nil {
		logger.Error("failed creating signature verifier", "error", err)
		return
	}

	// The redis lock is defense in depth for concurrent verifies; the
	// API still works without it.
	var verifyLocker services.VerificationLocker
	if config.Get().RedisAddr != "" {
		redisAdap, err := redis.NewRedisAdapter("default", config.Get().RedisUniversalKeyPrefix, &redis.Options{
			Addrs:      []string{config.Get().RedisAddr},
			ClientName: "default",
			DB:         config.Get().RedisDatabase,
			Username:   config.Get().RedisUsername,
			Password:   config.Get().RedisPassword,
		})
		if err != nil {
			logger.Warn("failed connecting to redis, verification locking disabled", "error", err)
		} else {
			verifyLocker = locker.NewLocker(redisAdap, locker.Config{
				LockTTL: config.Get().VerifyLockTTL,
			})
		}
	}

	var dispatcher *notifier.Dispatcher
	var notifierSvc services.Notifier
	if config.Get().AdminPortalURL != "" {
		notifierClient, err := notifier.NewClient(&notifier.Config{
			PortalURL: config.Get().AdminPortalURL,
			APIKey:    config.Get().AdminPortalAPIKey,
			Timeout:   config.Get().AdminPortalTimeout,
		})
		if err != nil {
			logger.Error("failed creating admin notifier", "error", err)
			return
		}
		dispatcher = notifier.NewDispatcher(notifierClient, 1024, 4)
		go dispatcher.Start()
		notifierSvc = dispatcher
	} else {
		logger.Warn("admin portal url not set, notifications disabled")
	}

	transactionRepo := repository.NewTransactionRepository(db)
	userRepo := repository.NewUserRepository(db)

	// services
	paymentService := services.NewPaymentService(
		gatewayClient,
		transactionRepo,
		verifier,
		notifierSvc,
		verifyLocker,
		config.Get().DefaultCurrency,
	)
	authService := services.NewAuthService(userRepo)

	// handlers
	paymentHandler := handlers.NewPaymentHandler(paymentService)
	authHandler := handlers.NewAuthHandler(authService)
	healthHandler := handlers.NewHealthHandler()

	g := s.Router.Group("/api")
	handlers.RegisterPaymentRoutes(g, paymentHandler)
	handlers.RegisterAuthRoutes(g, authHandler)
	handlers.RegisterHealthRoutes(g, healthHandler)

	c := make(chan os.Signal, 1)
	signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		var err = s.ListenAndServe(config.Get().HttpListenAddr)
		if err != nil {
			logger.Error("error in running http-server", "error", err)
		}
	}()

	logger.Info("payment gateway started",
		"addr", config.Get().HttpListenAddr,
		"version", version,
		"commit", commit,
		"built", date)

	<-c
	if dispatcher != nil {
		dispatcher.Stop()
	}
	s.Shutdown()
}

func argContainsEnvPath() string {
	for _, v := range os.Args {
		if strings.Contains(v, "--env=") {
			s := strings.Split(v, "=")
			if _, err := os.Open(s[1]); err != nil {
				logger.Error("failed to open the passed env file, got error" + err.Error())
				return ""
			}
			return s[1]
		}
	}
	return ""
}
