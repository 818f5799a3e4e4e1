package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"github.com/heptiolabs/healthcheck"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/wanzdb/wanzdb/handlers"
	"github.com/wanzdb/wanzdb/internal/config"
	"github.com/wanzdb/wanzdb/internal/database"
	"github.com/wanzdb/wanzdb/internal/document/service"
	"github.com/wanzdb/wanzdb/internal/oidc"
	"github.com/wanzdb/wanzdb/internal/registry"
	"github.com/wanzdb/wanzdb/internal/schema"
	"github.com/wanzdb/wanzdb/internal/store"
	"github.com/wanzdb/wanzdb/internal/tokens"
	"github.com/wanzdb/wanzdb/pkg/logger"
	"github.com/wanzdb/wanzdb/pkg/metrics"
	"github.com/wanzdb/wanzdb/pkg/middleware"
	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

const shutdownTimeout = 15 * time.Second

func main() {
	// LOG_LEVEL: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))
	zap.ReplaceGlobals(logger.L())
	defer logger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Init(cfg.LogLevel)
	logger.Infof("config loaded: mongo=%v redis=%v oidc=%v jwt_secret_set=%v", cfg.MongoDB.URI != "", cfg.Redis.Host != "", cfg.Auth.OIDCIssuer != "", cfg.Auth.JWTSecret != "")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	health := healthcheck.NewHandler()
	health.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(10000))

	// Backing store: MongoDB when configured, process memory otherwise.
	var (
		st         store.Store
		registries registry.Repository
		schemas    schema.Repository
	)
	if cfg.MongoDB.URI != "" {
		client, err := database.ConnectWithRetry(ctx, cfg.MongoDB.URI, cfg.MongoDB.Timeout, cfg.MongoDB.ConnectAttempts, time.Second)
		if err != nil {
			logger.Fatalf("%v", err)
		}
		defer disconnect(client)
		db := client.Database(cfg.MongoDB.Database)
		st = store.NewMongoStore(db)
		registries = registry.NewMongoRepository(db)
		schemas = schema.NewMongoRepository(db)
		logger.Infof("using MongoDB database %q", cfg.MongoDB.Database)
	} else {
		logger.Warn("MONGODB_URI not set: documents are kept in memory and lost on restart")
		st = store.NewMemoryStore()
		registries = registry.NewMemoryRepository()
		schemas = schema.NewMemoryRepository()
	}
	health.AddReadinessCheck("store", func() error {
		pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return st.Ping(pingCtx)
	})

	verifier, err := newVerifier(ctx, cfg.Auth)
	if err != nil {
		logger.Fatalf("failed to initialize token verification: %v", err)
	}

	gin.SetMode(gin.ReleaseMode)
	if cfg.Server.Environment == "development" {
		gin.SetMode(gin.DebugMode)
	}
	r := gin.New()
	r.Use(ginzap.Ginzap(zap.L(), time.RFC3339, true))
	r.Use(ginzap.RecoveryWithZap(zap.L(), true))
	r.Use(gzip.Gzip(gzip.DefaultCompression))
	r.Use(cors())

	var limiters []gin.HandlerFunc
	if cfg.RateLimit.Enabled {
		limiters = append(limiters, newRateLimiter(cfg, health))
	}

	handlers.RegisterAPI(r, handlers.API{
		Verifier:   verifier,
		Registry:   registry.NewService(registries, st),
		Documents:  service.New(st),
		Schemas:    schema.NewService(schemas),
		Middleware: limiters,
	})
	handlers.RegisterSwagger(r)

	r.GET("/health", gin.WrapF(health.LiveEndpoint))
	r.GET("/ready", gin.WrapF(health.ReadyEndpoint))

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	go func() {
		logger.Infof("listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Infof("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("graceful shutdown failed: %v", err)
	}
}

// newVerifier prefers OIDC, then HS256 with the shared secret. Unsigned tokens
// are only accepted when explicitly allowed.
func newVerifier(ctx context.Context, cfg config.AuthConfig) (middleware.Verifier, error) {
	switch {
	case cfg.OIDCIssuer != "":
		logger.Infof("verifying tokens against OIDC issuer %s", cfg.OIDCIssuer)
		return oidc.NewVerifier(ctx, cfg.OIDCIssuer, cfg.OIDCClientID)
	case cfg.JWTSecret != "":
		return tokens.NewVerifier(cfg.JWTSecret)
	case cfg.AllowInsecure:
		logger.Warn("AUTH_ALLOW_INSECURE is set: token signatures are NOT verified")
		return oidc.NewInsecureVerifier(), nil
	}
	return nil, errors.New("no token verifier configured")
}

// newRateLimiter uses Redis when asked to and reachable, else the in-process limiter.
func newRateLimiter(cfg *config.Config, health healthcheck.Handler) gin.HandlerFunc {
	if !cfg.RateLimit.UseRedis {
		return middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr(), Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	pingCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		logger.Warnf("redis %s unreachable, falling back to in-process rate limiting: %v", cfg.RedisAddr(), err)
		_ = client.Close()
		return middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst)
	}
	logger.Infof("rate limiting through redis %s", cfg.RedisAddr())
	health.AddReadinessCheck("redis", func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return client.Ping(ctx).Err()
	})
	window := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
	return middleware.RedisRateLimitMiddleware(client, cfg.RateLimit.RPS, cfg.RateLimit.Burst, window)
}

// cors is a permissive policy for browser clients of the data API.
func cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, x-auth-token")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func disconnect(client *mongo.Client) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Disconnect(ctx); err != nil {
		logger.Warnf("mongo disconnect: %v", err)
	}
}
