package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"blinkgate.backend/internal/config"
	"blinkgate.backend/internal/infrastructure/blockchain"
	"blinkgate.backend/internal/infrastructure/cache"
	"blinkgate.backend/internal/infrastructure/dispatch"
	"blinkgate.backend/internal/infrastructure/facilitator"
	"blinkgate.backend/internal/infrastructure/jobs"
	"blinkgate.backend/internal/infrastructure/repositories"
	"blinkgate.backend/internal/infrastructure/ssrf"
	"blinkgate.backend/internal/interfaces/http/handlers"
	"blinkgate.backend/internal/interfaces/http/middleware"
	"blinkgate.backend/internal/usecases"
	pkgjwt "blinkgate.backend/pkg/jwt"
	"blinkgate.backend/pkg/logger"
	"blinkgate.backend/pkg/redis"
)

var (
	loadDotenv = godotenv.Load
	loadCfg    = config.Load
	initLog    = logger.Init
	initRedis  = redis.Init
	openDB     = func(dsn string) (*gorm.DB, error) {
		return gorm.Open(postgres.New(postgres.Config{
			DSN:                  dsn,
			PreferSimpleProtocol: true,
		}), &gorm.Config{
			PrepareStmt: false,
		})
	}
	runServer = func(r *gin.Engine, port string) error { return r.Run(":" + port) }
	getStdDB  = func(db *gorm.DB) (*sql.DB, error) { return db.DB() }
)

func main() {
	if err := runMainProcess(); err != nil {
		log.Fatal(err)
	}
}

func runMainProcess() error {
	if err := loadDotenv(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	cfg := loadCfg()

	initLog(cfg.Server.Env)
	logger.Info(context.Background(), "Logger initialized", zap.String("env", cfg.Server.Env))

	if err := initRedis(cfg.Redis.URL, cfg.Redis.PASSWORD); err != nil {
		logger.Error(context.Background(), "Failed to initialize Redis", zap.Error(err))
		return fmt.Errorf("failed to initialize redis: %w", err)
	}
	logger.Info(context.Background(), "Redis initialized")

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	dsn := cfg.Database.URL()
	db, err := openDB(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := getStdDB(db)
	if err != nil {
		return fmt.Errorf("failed to get generic database object: %w", err)
	}
	defer sqlDB.Close()

	if err := sqlDB.Ping(); err != nil {
		log.Printf("database not available: %v (endpoints will return errors)", err)
	} else {
		log.Println("connected to PostgreSQL via GORM")
	}

	// Repositories
	offerRepo := repositories.NewOfferRepository(db)
	runRepo := repositories.NewRunRepository(db)
	refundRepo := repositories.NewRefundRepository(db)
	debtRepo := repositories.NewDebtRepository(db)
	claimRepo := repositories.NewClaimRepository(db)
	unitOfWork := repositories.NewUnitOfWork(db)

	// cache components
	offerCache := cache.NewOfferCache()
	mutexService := cache.NewMutexService()
	idempotencyCache := cache.NewIdempotencyCache()
	rateLimitCounter := cache.NewRateLimitCounter()
	challengeStore := cache.NewChallengeStore()

	// Blockchain clients and chain-facing services
	clientFactory := blockchain.NewClientFactory()
	facilitatorClient := facilitator.NewClient(cfg.Payment.FacilitatorBaseURL, cfg.Upstream.Timeout)
	verifier := usecases.NewVerifier(facilitatorClient, clientFactory, cfg.Blockchain.EVMRPC, cfg.Blockchain.SolanaRPC)

	solanaClient, err := clientFactory.GetSolanaClient(cfg.Blockchain.SolanaRPC)
	if err != nil {
		logger.Warn(context.Background(), "solana client unavailable at startup", zap.Error(err))
	}
	evmDisburser := usecases.NewEVMDisburser(cfg.Blockchain.EVMRPC)
	solanaDisburser := usecases.NewSolanaDisburser(solanaClient)
	refundDisburser := usecases.Disburser(solanaDisburser)
	refundConfirmer := usecases.TransactionConfirmer(usecases.NewSolanaConfirmer(solanaClient))
	if cfg.Payment.Network != "solana" && cfg.Payment.Network != "solana-devnet" && cfg.Payment.Network != "solana-mainnet" {
		refundDisburser = evmDisburser
		evmClient, evmErr := clientFactory.GetEVMClient(cfg.Blockchain.EVMRPC)
		if evmErr != nil {
			logger.Warn(context.Background(), "evm client unavailable at startup", zap.Error(evmErr))
		}
		refundConfirmer = usecases.NewEVMConfirmer(evmClient)
	}

	// SSRF guard and bounded dispatcher
	ssrfGuard := ssrf.NewGuard(cfg.Upstream.BaseURL)
	dispatcher := dispatch.NewDispatcher(cfg.Upstream.Timeout, cfg.Upstream.MaxResponseMiB<<20)

	// Reward-claim receipt signer
	claimSigner := pkgjwt.NewClaimSigner(cfg.ClaimSigner.Secret, cfg.ClaimSigner.Expiry)

	// Usecases
	rateLimiter := usecases.NewRateLimiter(rateLimitCounter, cfg.RateLimit.ChargeWindow, cfg.RateLimit.ChargeMaxRequests, cfg.RateLimit.RewardWindow, cfg.RateLimit.RewardMaxRequests)
	rewardService := usecases.NewRewardService(challengeStore, claimRepo, refundDisburser, cfg.Payment.FundedWalletSecret, claimSigner)
	refundService := usecases.NewRefundService(refundRepo, debtRepo, refundDisburser, refundConfirmer, cfg.Payment.RefundWalletSecret)
	offerService := usecases.NewOfferService(offerRepo, offerCache)
	proxyOrchestrator := usecases.NewProxyOrchestrator(
		offerRepo, offerCache, runRepo, mutexService, idempotencyCache,
		rateLimiter, verifier, ssrfGuard, dispatcher,
		rewardService, refundService, unitOfWork, cfg.Payment.TreasuryAddress, cfg.Payment.Network,
	)

	// Handlers
	proxyHandler := handlers.NewProxyHandler(proxyOrchestrator)
	challengeHandler := handlers.NewChallengeHandler(offerService, rewardService)
	offerHandler := handlers.NewOfferHandler(offerService)
	adminHandler := handlers.NewAdminHandler(debtRepo)

	// Background jobs
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	expiryJob := jobs.NewRunExpiryJob(runRepo)
	go expiryJob.Start(ctx)

	// Router
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestIDMiddleware())
	r.Use(middleware.LoggerMiddleware())

	applyCORSMiddleware(r)
	registerHealthRoute(r)
	registerAPIV1Routes(r, routeDeps{
		proxyHandler:      proxyHandler,
		challengeHandler:  challengeHandler,
		offerHandler:      offerHandler,
		adminHandler:      adminHandler,
		requireAdminToken: middleware.RequireAdminToken(cfg.Admin.AuthSecret),
	})

	log.Println("registered routes:")
	for _, route := range r.Routes() {
		log.Printf("   %s %s", route.Method, route.Path)
	}

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		log.Println("shutting down server")
		expiryJob.Stop()
		cancel()
	}()

	log.Printf("blinkgate backend starting on port %s", cfg.Server.Port)
	log.Printf("api: http://localhost:%s/api/v1", cfg.Server.Port)
	log.Printf("health: http://localhost:%s/health", cfg.Server.Port)

	if err := runServer(r, cfg.Server.Port); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}
