package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"marketplace-chat/internal/chat"
	"marketplace-chat/internal/db"
	"marketplace-chat/internal/message"
	"marketplace-chat/internal/middleware"
	"marketplace-chat/internal/notify"
	"marketplace-chat/internal/provider"
)

func main() {
	// 1. Config & Flags
	addr := flag.String("addr", ":8080", "http service address")
	flag.Parse()

	// Local dev convenience; in containers the env is already set.
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		log.Fatal("❌ JWT_SECRET is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	// 2. Connect to Database (Platform Layer)
	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	if err := database.AutoMigrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}
	log.Println("✅ Database Schema Initialized")

	// 3. Connect to Redis (Platform Layer)
	redisClient := redis.NewClient(&redis.Options{
		Addr: redisAddr,
	})
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		log.Fatalf("❌ Failed to connect to Redis: %v", err)
	}
	log.Println("✅ Connected to Redis")

	// 4. Messaging Core
	feed := message.NewRedisFeed(redisClient)
	store := message.NewStore(database.Conn, feed)
	directory := provider.NewRepository(database.Conn)

	notifier := notify.NewQueueNotifier(redisAddr)
	defer notifier.Close()

	pipeline := chat.NewPipeline(store, directory, notifier)
	tracker := chat.NewTracker(store)
	chatHandler := chat.NewHandler(store, pipeline, tracker, feed)

	authMiddleware := middleware.NewAuthMiddleware(jwtSecret)

	// 5. Define Routes
	r := chi.NewRouter()
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)

	// Everything requires an identity issued by the auth service.
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware.Handle)

		// Live surfaces (websocket)
		r.Get("/ws/inbox", chatHandler.ServeInbox)
		r.Get("/ws/conversations/{providerID}", chatHandler.ServeConversation)

		// REST
		r.Post("/api/messages", chatHandler.SendMessage)
		r.Get("/api/conversations", chatHandler.ListConversations)
		r.Get("/api/conversations/{providerID}/messages", chatHandler.GetHistory)
		r.Post("/api/conversations/{providerID}/read", chatHandler.MarkRead)
		r.Get("/api/unread", chatHandler.Unread)
	})

	log.Printf("🚀 Server starting on %s", *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(err)
	}
}
