// services/push_service.go
package services

import (
	"encoding/json"
	"log"
	"os"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"community-notify-system/models"
)

type PushService struct {
	DB *gorm.DB
}

func NewPushService(db *gorm.DB) *PushService {
	return &PushService{DB: db}
}

type subscribeRequest struct {
	// The browser serializes its PushSubscription to exactly this shape.
	Endpoint string                  `json:"endpoint"`
	Keys     models.SubscriptionKeys `json:"keys"`
}

// Subscribe upserts the caller's push subscription, keyed on user — a second
// subscribe for the same user overwrites, never duplicates. The descriptor is
// validated here at the write boundary; dispatch still re-parses defensively.
func (s *PushService) Subscribe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	var req subscribeRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "details": err.Error()})
	}
	if req.Endpoint == "" {
		return c.Status(400).JSON(fiber.Map{"error": "subscription endpoint is required"})
	}

	descriptor, err := json.Marshal(models.SubscriptionDescriptor{
		Endpoint: req.Endpoint,
		Keys:     req.Keys,
	})
	if err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid subscription descriptor", "details": err.Error()})
	}

	sub := models.PushSubscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		Descriptor: string(descriptor),
	}

	// Re-subscribing also revives a previously disabled row with a clean slate.
	if err := s.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"descriptor":     string(descriptor),
			"failure_streak": 0,
			"disabled_at":    nil,
		}),
	}).Create(&sub).Error; err != nil {
		log.Printf("[PUSH] ❌ Failed to upsert subscription for user %s: %v", userID, err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to save subscription", "details": err.Error()})
	}

	log.Printf("[PUSH] ✅ Subscription saved for user %s", userID)
	return c.Status(200).JSON(fiber.Map{"message": "subscription saved"})
}

// Unsubscribe removes the caller's subscription row, if any.
func (s *PushService) Unsubscribe(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	if err := s.DB.Delete(&models.PushSubscription{}, "user_id = ?", userID).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to remove subscription", "details": err.Error()})
	}
	return c.Status(200).JSON(fiber.Map{"message": "subscription removed"})
}

// GetVAPIDPublicKey hands the application public key to the browser agent.
// Public — the key is not a secret, the browser needs it before any auth.
func (s *PushService) GetVAPIDPublicKey(c *fiber.Ctx) error {
	key := os.Getenv("VAPID_PUBLIC_KEY")
	if key == "" {
		return c.Status(500).JSON(fiber.Map{"error": "push notifications not configured"})
	}
	return c.Status(200).JSON(fiber.Map{"public_key": key})
}
