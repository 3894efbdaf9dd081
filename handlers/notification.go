package handlers

import (
	"community-notify-system/middleware"
	"community-notify-system/services"

	"github.com/gofiber/fiber/v2"
)

func SetupNotificationRoutes(app *fiber.App, notificationService *services.NotificationService, pushService *services.PushService, authClient *services.AuthServiceClient) {
	// 🔓 Public routes — the browser agent needs the key before any auth
	app.Get("/push/vapid-public-key", pushService.GetVAPIDPublicKey)

	// SSE stream authenticates via query params (EventSource cannot set headers)
	app.Get("/user/notifications/stream", middleware.SSEAuthMiddleware(authClient), notificationService.StreamUserNotificationsSSE)

	// 🔐 Authenticated routes
	secured := app.Group("/s", middleware.UserContextMiddleware())

	// Push subscription lifecycle (own subscription only)
	secured.Post("/push/subscriptions", pushService.Subscribe)
	secured.Delete("/push/subscriptions", pushService.Unsubscribe)

	// In-app notification list
	secured.Get("/users/me/notifications", notificationService.GetMyNotifications)
	secured.Patch("/users/me/notifications/:id/read", notificationService.MarkNotificationRead)

	// 🔒 Admin-only routes
	admin := secured.Group("/admin")
	admin.Post("/notifications/broadcast", notificationService.BroadcastNotification)
	admin.Get("/notifications", notificationService.GetBroadcastHistory)
	admin.Post("/notifications", notificationService.CreateUserNotification)
	admin.Delete("/notifications/:id", notificationService.DeleteNotification)
	admin.Get("/users/search", notificationService.SearchUsers)
}

func SetupExtractionRoutes(app *fiber.App, extractionService *services.ExtractionService) {
	secured := app.Group("/s", middleware.UserContextMiddleware())

	admin := secured.Group("/admin")
	admin.Post("/leaderboard/extract", extractionService.ExtractLeaderboard)
}
