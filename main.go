package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"community-notify-system/handlers"
	"community-notify-system/middleware"
	"community-notify-system/models"
	"community-notify-system/services"
	"community-notify-system/utils"
	"community-notify-system/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}

	app := fiber.New(fiber.Config{
		BodyLimit: 25 * 1024 * 1024, // screenshots arrive base64-inflated
	})

	// 🔐❗ GLOBAL: Only Gateway requests allowed — no exceptions
	app.Use(middleware.GatewayAuthMiddleware())

	allowedOriginsEnv := os.Getenv("ALLOWED_ORIGINS")
	if allowedOriginsEnv == "" {
		log.Println("⚠️  ALLOWED_ORIGINS environment variable not set, using default: *")
		allowedOriginsEnv = "*"
	}
	allowedOriginsList := strings.Split(allowedOriginsEnv, ",")
	for i, origin := range allowedOriginsList {
		allowedOriginsList[i] = strings.TrimSpace(origin)
	}
	allowedOriginsString := strings.Join(allowedOriginsList, ",")

	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowedOriginsString,
		AllowMethods:  "GET,POST,PUT,DELETE,OPTIONS,PATCH,HEAD",
		AllowHeaders:  "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, User-Agent, Cache-Control, X-Service-Token, X-User-ID, X-User-Roles",
		ExposeHeaders: "Content-Length, Content-Type, Authorization, X-Request-ID",
		MaxAge:        86400, // 24 hours
	}))

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}

	// 📦 Screenshot archive bucket (R2)
	if err := utils.InitR2(); err != nil {
		log.Fatal("failed to initialize R2 client:", err)
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatal("failed to connect to database:", err)
	}

	if err := db.AutoMigrate(
		&models.PushSubscription{},
		&models.Notification{},
		&models.MirroredUser{},
	); err != nil {
		log.Fatal("failed to migrate database:", err)
	}

	sender, err := services.NewWebPushSenderFromEnv()
	if err != nil {
		log.Fatal("failed to configure web push sender:", err)
	}
	dispatcher := services.NewPushDispatcher(sender, 8)

	notificationService := services.NewNotificationService(db, dispatcher)
	pushService := services.NewPushService(db)

	extractionService, err := services.NewExtractionService(db)
	if err != nil {
		log.Fatal("failed to configure extraction service:", err)
	}

	// --- Profile mirror worker (for extraction name reconciliation) ---
	syncServiceURL := os.Getenv("SYNC_SERVICE_URL")
	if syncServiceURL == "" {
		log.Fatal("SYNC_SERVICE_URL environment variable not set")
	}
	serviceToken := os.Getenv("NOTIFY_SERVICE_TOKEN")
	if serviceToken == "" {
		log.Fatal("NOTIFY_SERVICE_TOKEN environment variable not set")
	}

	mirrorWorker := workers.NewUserMirrorWorker(db, syncServiceURL, "/api/v1/public/profiles", serviceToken)

	authServiceURL := os.Getenv("AUTH_SERVICE_URL")
	if authServiceURL == "" {
		log.Fatal("AUTH_SERVICE_URL environment variable not set")
	}
	authClient := services.NewAuthServiceClient(authServiceURL, serviceToken)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mirrorWorker.Start(ctx)
	notificationService.StartPruneScheduler()

	handlers.SetupNotificationRoutes(app, notificationService, pushService, authClient)
	handlers.SetupExtractionRoutes(app, extractionService)

	// Service worker + push client agent assets
	app.Static("/", "./static")

	go func() {
		if err := app.Listen(":5300"); err != nil {
			log.Printf("Server error: %v", err)
		}
	}()

	log.Println("✅ Server running on http://localhost:5300")
	log.Println("✅ User Mirror Worker running")
	log.Println("✅ Subscription prune sweep running (hourly)")
	log.Println("✅ GatewayAuthMiddleware enforced globally — all requests must come from Gateway")
	log.Printf("✅ CORS configured for origins: %s", allowedOriginsString)

	<-ctx.Done()
	log.Println("Shutting down server...")
}
