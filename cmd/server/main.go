package main

import (
	"context"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/NaraSky/mesh-talk-platform/internal/broker"
	"github.com/NaraSky/mesh-talk-platform/internal/config"
	"github.com/NaraSky/mesh-talk-platform/internal/database"
	"github.com/NaraSky/mesh-talk-platform/internal/handlers"
	"github.com/NaraSky/mesh-talk-platform/internal/middleware"
	"github.com/NaraSky/mesh-talk-platform/internal/routes"
	"github.com/NaraSky/mesh-talk-platform/internal/services"
	"github.com/NaraSky/mesh-talk-platform/pkg/snowflake"
)

func main() {
	// Load env
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	}
	// Load configuration
	cfg := config.Load()

	// Connect to PostgreSQL
	log.Printf("Connecting to PostgreSQL...")
	if err := database.ConnectPostgres(cfg.PostgresURI); err != nil {
		log.Fatal("Failed to connect to PostgreSQL:", err)
	}
	defer database.DisconnectPostgres()

	// Connect to Redis
	log.Printf("Connecting to Redis...")
	if err := database.ConnectRedis(cfg.RedisURI); err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.DisconnectRedis()

	// Message id generator
	ids, err := snowflake.New(cfg.SnowflakeNodeID)
	if err != nil {
		log.Fatal("Failed to initialize id generator:", err)
	}
	log.Printf("✅ Snowflake id generator ready (node %d)", cfg.SnowflakeNodeID)

	// Persistence
	privateStore := services.NewPostgresPrivateMessageStore(database.PostgresDB)
	groupStore := services.NewPostgresGroupMessageStore(database.PostgresDB)
	friends := services.NewPostgresFriendshipService(database.PostgresDB)
	groups := services.NewPostgresGroupService(database.PostgresDB)
	positions := services.NewRedisReadPositionStore(database.RedisClient)

	// Transactional broker: the coordinator persists the pending row in
	// the local transaction; the producer publishes on commit and runs
	// the check-back reaper for undecided half-messages.
	coordinator := services.NewTxCoordinator(privateStore, groupStore)
	producer := broker.NewRedisProducer(database.RedisClient, coordinator, broker.RedisProducerOptions{
		CheckInterval:    cfg.TxCheckInterval,
		MaxCheckAttempts: cfg.TxCheckMaxAttempts,
	})
	defer producer.Close()

	// Live delivery
	hub := services.NewHub()
	pool := services.NewWorkerPool(cfg.WorkerCount, cfg.WorkerQueueSize)
	defer pool.Shutdown()

	opts := services.MessageOptions{
		PrivateDestination: cfg.PrivateDestination,
		GroupDestination:   cfg.GroupDestination,
		RecallWindow:       cfg.RecallWindow,
		LoadWindowDays:     cfg.LoadWindowDays,
		LoadLimit:          cfg.LoadLimit,
		DefaultPageSize:    cfg.DefaultPageSize,
	}
	privateMessages := services.NewPrivateMessageService(privateStore, friends, hub, producer, ids, pool, opts)
	groupMessages := services.NewGroupMessageService(groupStore, groups, hub, producer, positions, ids, pool, opts)

	// Consume committed events and fan them out to live sessions
	consumer := broker.NewRedisConsumer(database.RedisClient, cfg.ConsumerGroup)
	events := services.NewMessageEventConsumer(hub, positions, opts)
	events.Register(consumer)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := consumer.Start(ctx); err != nil {
		log.Fatal("Failed to start message consumer:", err)
	}
	defer consumer.Close()
	log.Println("✅ Message event consumer started")

	// Attachments (optional: text messages never need Cloudinary)
	var attachmentHandler *handlers.AttachmentHandler
	if cfg.CloudinaryName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		attachments, err := services.NewAttachmentService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			log.Printf("Warning: Failed to initialize Cloudinary: %v", err)
			log.Println("File uploads will not be available")
		} else {
			attachmentHandler = handlers.NewAttachmentHandler(attachments)
			log.Println("✅ Cloudinary service initialized")
		}
	} else {
		log.Println("Warning: Cloudinary credentials not found. File uploads will not be available")
	}

	// Setup router
	r := chi.NewRouter()

	// Custom CORS: set headers and respond to OPTIONS with 200 so preflight never gets 403
	r.Use(middleware.CORS(cfg.AllowedOrigins))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("OK"))
	})

	messageHandlers := handlers.NewMessageHandlers(privateMessages, groupMessages)
	wsHandler := handlers.NewWSHandler(hub, positions)
	routes.SetupRoutes(r, messageHandlers, wsHandler, attachmentHandler)

	log.Printf("🚀 Mesh Talk message platform running on :%s", cfg.Port)
	if err := http.ListenAndServe(":"+cfg.Port, r); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
