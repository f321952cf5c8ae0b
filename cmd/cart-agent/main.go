package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/mshop/cart-agent/internal/auth"
	"github.com/mshop/cart-agent/internal/checkout"
	"github.com/mshop/cart-agent/internal/engine"
	"github.com/mshop/cart-agent/internal/httpapi"
	"github.com/mshop/cart-agent/internal/remote"
	"github.com/mshop/cart-agent/internal/store"
	"github.com/mshop/cart-agent/internal/watcher"
)

type Config struct {
	HTTPPort     string
	APIBaseURL   string
	AccountID    int64
	CartOwner    string
	StoreBackend string // redis or mongo
	RedisAddr    string
	RedisPass    string
	MongoURI     string
	MongoDBName  string
	KafkaBrokers []string
	KafkaTopic   string
	SyncInterval time.Duration
}

func loadConfig() *Config {
	accountID, _ := strconv.ParseInt(getEnv("ACCOUNT_ID", "0"), 10, 64)
	syncInterval, err := time.ParseDuration(getEnv("SYNC_INTERVAL", "30s"))
	if err != nil {
		syncInterval = 30 * time.Second
	}

	var brokers []string
	if raw := os.Getenv("KAFKA_BROKERS"); raw != "" {
		brokers = strings.Split(raw, ",")
	}

	return &Config{
		HTTPPort:     getEnv("HTTP_PORT", "8090"),
		APIBaseURL:   getEnv("MARKETPLACE_API_URL", "http://localhost:8080"),
		AccountID:    accountID,
		CartOwner:    getEnv("CART_OWNER", "default"),
		StoreBackend: getEnv("STORE_BACKEND", "redis"),
		RedisAddr:    getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPass:    getEnv("REDIS_PASSWORD", ""),
		MongoURI:     getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDBName:  getEnv("MONGO_DB_NAME", "cartdb"),
		KafkaBrokers: brokers,
		KafkaTopic:   getEnv("KAFKA_TOPIC", "order-events"),
		SyncInterval: syncInterval,
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	cfg := loadConfig()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Origin id distinguishes this process's store writes from other
	// contexts sharing the same snapshot.
	origin := uuid.NewString()

	tokens := auth.NewMemoryProvider()
	provider := auth.NewRefreshingProvider(tokens, cfg.APIBaseURL, nil)
	client := remote.NewHTTPClient(cfg.APIBaseURL, provider)

	var (
		cartStore   store.Store
		redisClient *redis.Client
	)
	switch cfg.StoreBackend {
	case "mongo":
		db, err := store.ConnectMongo(ctx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		cartStore = store.NewMongoStore(db, cfg.CartOwner)
		log.Printf("Using mongo snapshot store at %s", cfg.MongoURI)
	default:
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPass,
			DB:       0,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Redis connection failed: %v", err)
		}
		cartStore = store.NewRedisStore(redisClient, cfg.CartOwner, origin)
		log.Printf("Using redis snapshot store at %s", cfg.RedisAddr)
	}

	cart := engine.New(cartStore, client, provider, engine.Config{})
	defer cart.Close()
	if err := cart.Load(ctx); err != nil {
		log.Fatalf("Failed to load cart snapshot: %v", err)
	}

	// Cross-context mirroring only works on the redis store; mongo has no
	// change channel.
	if rs, ok := cartStore.(*store.RedisStore); ok {
		w := watcher.New(redisClient, rs.Channel(), origin, cart)
		go w.Run(ctx)
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.AccountID != 0 {
		listener := checkout.NewListener(cart, cfg.AccountID, cfg.KafkaTopic, cfg.KafkaBrokers...)
		defer listener.Close()
		go listener.Run(ctx)
	}

	// Periodic reconciliation; user actions and the retry scheduler cover
	// the rest.
	if cfg.AccountID != 0 {
		go func() {
			ticker := time.NewTicker(cfg.SyncInterval)
			defer ticker.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-ticker.C:
					if err := cart.Sync(ctx, cfg.AccountID); err != nil {
						log.Printf("periodic cart sync failed: %v", err)
					}
				}
			}
		}()
	}

	handler := httpapi.NewCartHandler(cart, tokens, cfg.AccountID)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})
	r.Route("/api/v1", handler.Routes)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      otelhttp.NewHandler(r, "cart-agent"),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("Cart agent listening on port %s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to serve: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down cart agent...")
	cancel()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("HTTP shutdown error: %v", err)
	}
	log.Println("Cart agent stopped")
}
