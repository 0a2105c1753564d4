package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/db/memory"
	myPostgresRepo "github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/db/postgres"
	myRedisRepo "github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/db/redis"
	httptransport "github.com/Miraines/MoonyAndStarry/blog-auth/internal/adapters/transport/http"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/credentials"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/jwt"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/oauth"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/password"
	appsvc "github.com/Miraines/MoonyAndStarry/blog-auth/internal/app/auth/service"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/domain/auth/repo"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/config"
	lg "github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/log"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/migrate"
	"github.com/Miraines/MoonyAndStarry/blog-auth/internal/infra/server"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func main() {
	zapLog := lg.Must(os.Getenv("LOG_LEVEL"))
	defer zapLog.Sync()

	cfg, err := config.Load()
	if err != nil {
		zapLog.Fatal("failed to load config", zap.Error(err))
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]httptransport.HealthCheck{}

	var userRepo repo.UserRepo
	switch cfg.StorageDriver {
	case config.StorageDriverMemory:
		zapLog.Warn("using in-memory user storage; data is lost on restart")
		userRepo = memory.NewUserRepo()
	default:
		db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), &gorm.Config{
			TranslateError: true,
			Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			zapLog.Fatal("failed to connect to database", zap.Error(err))
		}
		sqlDB, err := db.DB()
		if err != nil {
			zapLog.Fatal("db handle", zap.Error(err))
		}
		defer sqlDB.Close()
		if err := migrate.Up(sqlDB); err != nil {
			zapLog.Fatal("run migrations", zap.Error(err))
		}
		userRepo = myPostgresRepo.NewPostgresUserRepo(db)
		checks["postgres"] = sqlDB.PingContext
	}

	var stateRepo repo.StateRepo
	if cfg.RedisAddress != "" {
		redisCli := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisCli.Close()
		redisRepo := myRedisRepo.NewRedisStateRepo(redisCli)
		stateRepo = redisRepo
		checks["redis"] = redisRepo.Ping
	} else {
		zapLog.Info("REDIS_ADDRESS not set, keeping OAuth state in memory")
		stateRepo = memory.NewStateRepo()
	}

	jwtUtil, err := jwt.NewJWTUtil(cfg)
	if err != nil {
		zapLog.Fatal("failed to init JWT util", zap.Error(err))
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	validate := validator.New()
	creds := credentials.New(userRepo, password.NewFromConfig(cfg), validate, zapLog)
	tokens := appsvc.NewTokenService(jwtUtil, creds, cfg, zapLog, reg)
	svc := appsvc.New(
		creds,
		tokens,
		appsvc.NewAuthenticator(jwtUtil, creds),
		oauth.NewGoogle(cfg),
		stateRepo,
		oauth.NewState,
		zapLog,
	)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}

	g, ctx := errgroup.WithContext(rootCtx)
	router := httptransport.NewRouter(ctx, httptransport.Deps{
		Config:   cfg,
		Service:  svc,
		Validate: validate,
		Logger:   zapLog,
		Registry: reg,
		Checks:   checks,
	})

	g.Go(func() error {
		return server.StartHTTPServer(ctx, cfg.HTTPAddress, router, zapLog)
	})

	<-ctx.Done()
	zapLog.Info("shutdown signal received")
	if err := g.Wait(); err != nil {
		zapLog.Error("server terminated", zap.Error(err))
	}
}
