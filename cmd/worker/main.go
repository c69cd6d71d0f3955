package main

import (
	"log"
	"os"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"marketplace-chat/internal/db"
	"marketplace-chat/internal/notify"
)

func main() {
	_ = godotenv.Load()

	dsn := os.Getenv("DB_DSN")
	if dsn == "" {
		log.Fatal("❌ DB_DSN is not set")
	}

	redisAddr := os.Getenv("REDIS_ADDR")
	if redisAddr == "" {
		redisAddr = "localhost:6379"
	}

	database, err := db.NewDatabase(dsn)
	if err != nil {
		log.Fatalf("❌ Failed to connect to DB: %v", err)
	}
	log.Println("✅ Connected to PostgreSQL")

	srv := asynq.NewServer(
		asynq.RedisClientOpt{Addr: redisAddr},
		asynq.Config{
			Concurrency: 10,
			Queues: map[string]int{
				notify.Queue: 1,
			},
		},
	)

	mux := asynq.NewServeMux()
	handler := notify.NewHandler(database.Conn)
	mux.HandleFunc(notify.TaskDeliver, handler.HandleDeliver)

	log.Println("🚀 Notification worker starting")
	if err := srv.Run(mux); err != nil {
		log.Fatalf("❌ Worker stopped: %v", err)
	}
}
