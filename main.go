package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/printloom/go-services/internal/artifacts"
	"github.com/printloom/go-services/internal/config"
	"github.com/printloom/go-services/internal/design"
	"github.com/printloom/go-services/internal/design/handler"
	"github.com/printloom/go-services/internal/design/publish"
	"github.com/printloom/go-services/internal/gateway/printify"
	"github.com/printloom/go-services/internal/gateway/shopify"
	"github.com/printloom/go-services/internal/locks"
	"github.com/printloom/go-services/internal/store"
	"github.com/printloom/go-services/pkg/logger"
	"github.com/printloom/go-services/pkg/metrics"
	"github.com/printloom/go-services/pkg/middleware"
)

var startTime = time.Now()

func main() {
	// logging level controlled with LOG_LEVEL env: debug|info|warn|error|fatal
	logger.Init(os.Getenv("LOG_LEVEL"))

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("failed to load config: %v", err)
	}
	logger.Infof("config loaded: printify=%v shopify=%v redis=%v data_dir=%s",
		cfg.Printify.Token != "", cfg.Shopify.AdminToken != "", cfg.Redis.Host != "", cfg.Store.DataDir)

	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())

	// Lightweight CORS middleware for dev/test: set common headers and respond to OPTIONS.
	// (Keep this intentionally simple; production should use a stricter policy.)
	r.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Length, Retry-After")
		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(200)
			return
		}
		c.Next()
	})

	// Connect to Redis early so the rate limiter and slug locker can use it
	var redisClient *redis.Client
	if cfg.Redis.Host != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Host + ":" + cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(context.Background()).Err(); err != nil {
			logger.Warnf("failed to connect to Redis (%s:%s): %v", cfg.Redis.Host, cfg.Redis.Port, err)
			redisClient = nil
		} else {
			logger.Infof("connected to Redis at %s:%s", cfg.Redis.Host, cfg.Redis.Port)
		}
	}

	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.UseRedis && redisClient != nil {
			win := time.Duration(cfg.RateLimit.WindowSeconds) * time.Second
			r.Use(middleware.RedisRateLimitMiddleware(redisClient, cfg.RateLimit.RPS, cfg.RateLimit.Burst, win))
		} else {
			r.Use(middleware.RateLimitMiddleware(cfg.RateLimit.RPS, cfg.RateLimit.Burst))
		}
	}

	// document store: one JSON file per collection under the data dir
	designs, err := store.Open(cfg.Store.DataDir, "designs")
	if err != nil {
		logger.Fatalf("failed to open designs collection: %v", err)
	}
	svc := design.NewService(designs)

	// per-slug single-flight: Redis advisory lock when available, in-process otherwise
	var locker locks.SlugLocker = locks.NewMemoryLocker()
	if redisClient != nil {
		locker = locks.NewRedisLocker(redisClient, "publish-lock:", cfg.Publish.LockTTL)
	}

	printifyClient := printify.NewClient(printify.Config{
		BaseURL: cfg.Printify.BaseURL,
		Token:   cfg.Printify.Token,
		ShopID:  cfg.Printify.ShopID,
		Timeout: cfg.Printify.Timeout,
	})
	shopifyClient := shopify.NewClient(shopify.Config{
		StoreDomain: cfg.Shopify.StoreDomain,
		AdminToken:  cfg.Shopify.AdminToken,
		APIVersion:  cfg.Shopify.APIVersion,
		Timeout:     cfg.Shopify.Timeout,
	})

	orch := publish.NewOrchestrator(designs, locker, printifyClient, shopifyClient, publish.Options{
		MaxAttempts: cfg.Publish.MaxAttempts,
		Backoff:     publish.Backoff{Base: cfg.Publish.BackoffBase, Cap: cfg.Publish.BackoffCap},
	})

	h := handler.New(svc, orch).WithArtUploader(printifyClient).WithStorefront(shopifyClient)

	// mockup artifact store is optional; routes report 503 without it
	if mcfg := artifacts.LoadConfig(); mcfg.Endpoint != "" {
		ms, err := artifacts.NewMockupStore(mcfg)
		if err != nil {
			logger.Warnf("mockup store unavailable: %v", err)
		} else {
			h = h.WithMockupStore(ms)
		}
	}
	h.Register(r)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "healthy")
	})

	// readiness: the store must be usable; gateways are reported but a missing
	// token only degrades the publish endpoints
	r.GET("/ready", func(c *gin.Context) {
		deps := map[string]bool{
			"store":    true,
			"printify": cfg.Printify.Token != "" && cfg.Printify.ShopID != "",
			"shopify":  cfg.Shopify.AdminToken != "" && cfg.Shopify.StoreDomain != "",
			"redis":    cfg.Redis.Host == "" || redisClient != nil,
		}
		if _, err := designs.List(); err != nil {
			deps["store"] = false
		}
		if !deps["store"] || !deps["redis"] {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "not_ready", "deps": deps, "uptime": time.Since(startTime).String()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready", "deps": deps, "uptime": time.Since(startTime).String()})
	})

	metrics.RegisterCollectors(prometheus.DefaultRegisterer)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	logger.Infof("starting design publish service on %s", addr)
	if err := r.Run(addr); err != nil {
		logger.Fatalf("server failed: %v", err)
	}
}
