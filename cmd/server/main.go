package main

import (
	"log"
	"strings"
	"time"

	"turf/pkg/broker"
	"turf/pkg/cache"
	"turf/pkg/config"
	"turf/pkg/database"
	"turf/pkg/handlers"
	"turf/pkg/hub"
	"turf/pkg/middleware"
	"turf/pkg/repository"
	"turf/pkg/server"
	"turf/pkg/services"
	"turf/pkg/stream"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/joho/godotenv"
)

func main() {
	godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[TURF] config: %v", err)
	}

	db, err := database.Connect(cfg.DB.URL)
	if err != nil {
		log.Fatalf("[TURF] database: %v", err)
	}
	defer db.Close()

	// Serverless PG: keep pool small, connections short-lived
	db.SetMaxOpenConns(cfg.DB.MaxOpenConns)
	db.SetMaxIdleConns(cfg.DB.MaxIdleConns)
	db.SetConnMaxLifetime(3 * time.Minute)
	db.SetConnMaxIdleTime(30 * time.Second)

	if err := database.Migrate(db); err != nil {
		log.Fatalf("[TURF] migrate: %v", err)
	}

	log.Println("[TURF] Connecting to Redis...")
	redis, err := cache.New(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("[TURF] redis cache: %v", err)
	}
	defer redis.Close()

	bk, err := broker.New(cfg.Redis.URL)
	if err != nil {
		log.Fatalf("[TURF] redis broker: %v", err)
	}
	defer bk.Close()
	log.Println("[TURF] Redis connected")

	transport := stream.BrokerTransport{Broker: bk}
	pub := stream.NewPublisher(transport)
	sub := stream.NewSubscriber(transport)

	users := repository.NewUserRepository(db)
	topics := repository.NewTopicRepository(db)
	messages := repository.NewMessageRepository(db)
	notifications := repository.NewNotificationRepository(db)
	reports := repository.NewReportRepository(db)

	notifier := services.NewNotifier(notifications, users, pub)

	wsHub := hub.New()
	live := handlers.NewLive(wsHub, messages, topics, notifications, users, sub, pub, notifier)
	live.RegisterActions()

	topicTTL := time.Duration(cfg.Turf.TopicTTLHours) * time.Hour
	topicH := handlers.NewTopic(topics, messages, redis, topicTTL)
	notifH := handlers.NewNotification(notifications)
	modH := handlers.NewModeration(reports, messages, pub, notifier)
	profileH := handlers.NewProfile(users, messages, redis)

	app := server.NewApp("turf", cfg.Turf.CORSOrigins)

	auth := middleware.Auth(cfg.Auth.JWTSecret)
	optAuth := middleware.OptionalAuth(cfg.Auth.JWTSecret)
	admin := middleware.Admin(cfg.Auth.AdminKey)

	writeLimiter := limiter.New(limiter.Config{
		Max:        10,
		Expiration: 1 * time.Minute,
		KeyGenerator: func(c *fiber.Ctx) string {
			return c.IP()
		},
	})

	topicGroup := app.Group("/topics")
	topicGroup.Get("/", topicH.List)
	topicGroup.Get("/:id", topicH.Get)
	topicGroup.Get("/:id/messages", optAuth, topicH.Messages)
	topicGroup.Post("/", writeLimiter, auth, topicH.Create)

	notifGroup := app.Group("/notifications", auth)
	notifGroup.Get("/", notifH.List)
	notifGroup.Post("/:id/read", notifH.MarkRead)
	notifGroup.Post("/read-all", notifH.MarkAllRead)

	app.Post("/reports", writeLimiter, auth, modH.CreateReport)
	adminGroup := app.Group("/admin", admin)
	adminGroup.Get("/reports", modH.ListReports)
	adminGroup.Post("/reports/:id", modH.Resolve)

	app.Get("/users/:username/messages", optAuth, profileH.Messages)

	app.Get("/hub/status", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"clients":       wsHub.ClientCount(),
			"authenticated": wsHub.AuthenticatedCount(),
		})
	})

	app.Use("/ws", parseWSToken(cfg.Auth.JWTSecret))
	app.Get("/ws", websocket.New(func(c *websocket.Conn) {
		userID, _ := c.Locals("user_id").(string)
		username, _ := c.Locals("username").(string)
		wsHub.HandleClientConn(c, userID, username)
	}))

	addr := cfg.Server.Addr()
	log.Printf("[TURF] WebSocket: wss://<domain>/ws")
	log.Printf("[TURF] Server starting on %s", addr)

	if err := app.Listen(addr); err != nil {
		log.Fatalf("[TURF] Failed to start: %v", err)
	}
}

// parseWSToken resolves identity before the websocket upgrade. Anonymous
// connections are allowed; they can watch topics but every mutation is
// rejected at the action layer.
func parseWSToken(secret string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}

		tokenStr := c.Query("token")
		if tokenStr == "" {
			authHeader := c.Get("Authorization")
			if strings.HasPrefix(authHeader, "Bearer ") {
				tokenStr = authHeader[7:]
			}
		}

		userID, username := "", ""
		if tokenStr != "" {
			if id, name, ok := middleware.ParseToken(tokenStr, secret); ok {
				userID, username = id, name
			}
		}

		c.Locals("user_id", userID)
		c.Locals("username", username)
		return c.Next()
	}
}
