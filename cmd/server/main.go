package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"chatsync/infrastructure/cache"
	"chatsync/infrastructure/changestream"
	"chatsync/infrastructure/db"
	"chatsync/infrastructure/ws"
	httpHandler "chatsync/internal/delivery/http"
	"chatsync/internal/delivery/websocket"
	"chatsync/internal/engine"
	"chatsync/internal/repository"
	"chatsync/internal/usecase"
	"chatsync/pkg/jwt"
	"chatsync/pkg/logger"
	"chatsync/pkg/metrics"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		fmt.Println("godotenv: error loading .env file")
	}

	log, err := logger.New(os.Getenv("ENV") != "production")
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx := context.Background()

	mongoDbHost := os.Getenv("MONGODB_URI")
	mongoDbName := os.Getenv("MONGODB_DATABASE")
	if mongoDbName == "" {
		mongoDbName = "chatsync"
	}
	mongoDb, err := db.NewMongoStore(ctx, mongoDbHost, mongoDbName)
	if err != nil {
		log.Fatalw("mongo connect failed", "error", err)
	}
	defer mongoDb.Close(ctx)

	if err := mongoDb.EnsureIndexes(ctx); err != nil {
		log.Warnw("index bootstrap failed", "error", err)
	}

	log.Infow("connected to mongodb", "database", mongoDbName)

	registry := prometheus.NewRegistry()
	m := metrics.New(registry)

	// Initialize repositories
	userRepo := repository.NewUserRepository(mongoDb.DB)
	chatRepo := repository.NewChatRepository(mongoDb.DB)
	messageRepo := repository.NewMessageRepository(mongoDb.DB)
	markerRepo := repository.NewMarkerRepository(mongoDb.DB)

	// Initialize JWT manager
	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		jwtSecret = "your-secret-key-change-this-in-production" // Default for development
		log.Warnw("using default jwt secret, set JWT_SECRET in .env for production")
	}
	jwtManager := jwt.NewJWTManager(jwtSecret, 24*time.Hour)

	// Initialize use cases
	nameCache := cache.NewMemCache(time.Minute)
	defer nameCache.Close()
	userUc := usecase.NewUserUsecase(userRepo, nameCache)
	messageUc := usecase.NewMessageUsecase(messageRepo, markerRepo, chatRepo)
	chatUc := usecase.NewChatUsecase(chatRepo, messageRepo, userUc)

	// Check if Redis is enabled
	redisAddr := os.Getenv("REDIS_ADDR")

	var hub ws.IHub
	if redisAddr != "" {
		serverID := os.Getenv("SERVER_ID")
		if serverID == "" {
			serverID = "server-1" // Default
		}
		log.Infow("using redis hub", "addr", redisAddr, "serverId", serverID)
		hub = ws.NewRedisHub(redisAddr, serverID, log)
	} else {
		log.Infow("using in-memory hub (single server)")
		hub = ws.NewHub(log)
	}

	// Live sync engine
	feeds := changestream.NewFactory(mongoDb.DB, log)
	notifier := websocket.NewHubNotifier(hub, log)
	manager := engine.NewManager(feeds, userUc, messageUc, messageUc, notifier, log, m)

	websocketH := websocket.NewWebsocketHandler(hub, manager, userUc, messageUc, chatUc, jwtManager, log)
	hub.SetOnClientUnregister(websocketH.HandleUnregisterClient)

	go hub.Run()

	router := chi.NewRouter()
	router.Use(middleware.Logger)
	router.Use(middleware.Recoverer)

	httpH := httpHandler.NewHttpHandler(chatUc, messageUc, userUc, log)
	authMiddleware := httpHandler.NewAuthMiddleware(jwtManager)

	httpHandler.MapHttpRoutes(router, httpH, websocketH, authMiddleware, registry)

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	log.Infow("http server running", "port", port)

	if err := http.ListenAndServe(":"+port, router); err != nil {
		log.Fatalw("http server stopped", "error", err)
	}
}
