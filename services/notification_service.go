// services/notification_service.go
package services

import (
	"log"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"

	"community-notify-system/models"
)

// DefaultPruneThreshold is the failure streak after which a subscription is
// disabled instead of being retried forever.
const DefaultPruneThreshold = 5

type NotificationService struct {
	DB             *gorm.DB
	Dispatcher     *PushDispatcher
	PruneThreshold int
}

func NewNotificationService(db *gorm.DB, dispatcher *PushDispatcher) *NotificationService {
	return &NotificationService{
		DB:             db,
		Dispatcher:     dispatcher,
		PruneThreshold: DefaultPruneThreshold,
	}
}

type broadcastRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}

// BroadcastNotification fans one message out to every active subscription.
// Validation happens before any I/O; individual gateway failures are absorbed
// into sent_count; a store read failure fails the whole call with nothing
// written. Exactly one audit row is appended per dispatch that reached the
// fan-out stage — the zero-subscription case returns early without one.
func (s *NotificationService) BroadcastNotification(c *fiber.Ctx) error {
	var req broadcastRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "details": err.Error()})
	}

	req.Title = strings.TrimSpace(req.Title)
	req.Message = strings.TrimSpace(req.Message)
	if req.Title == "" || req.Message == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title and message are required"})
	}

	var subs []models.PushSubscription
	if err := s.DB.Where("disabled_at IS NULL").Find(&subs).Error; err != nil {
		log.Printf("[PUSH] ❌ Failed to load subscriptions: %v", err)
		return c.Status(500).JSON(fiber.Map{"error": "failed to load subscriptions", "details": err.Error()})
	}

	if len(subs) == 0 {
		return c.Status(200).JSON(fiber.Map{
			"message":             "no subscriptions to notify",
			"sent_count":          0,
			"total_subscriptions": 0,
		})
	}

	payload := BroadcastPayload{Title: req.Title, Message: req.Message}
	result := s.Dispatcher.Dispatch(c.Context(), subs, payload)

	s.applyOutcomes(result.Outcomes)

	audit := &models.Notification{
		ID:      uuid.NewString(),
		Title:   req.Title,
		Message: req.Message,
		Type:    models.NotificationTypeBroadcast,
		UserID:  nil,
		Slug:    slug.Make(req.Title),
	}
	if err := s.DB.Create(audit).Error; err != nil {
		// The pushes are already out; the caller still gets the counts.
		log.Printf("[PUSH] ⚠️ Broadcast sent but audit row write failed: %v", err)
	}

	log.Printf("[PUSH] ✅ Broadcast %q: %d/%d sent (%d malformed rows skipped)",
		req.Title, result.Sent, result.Total, result.Skipped)

	return c.Status(200).JSON(fiber.Map{
		"message":             "broadcast dispatched",
		"sent_count":          result.Sent,
		"total_subscriptions": result.Total,
	})
}

// applyOutcomes updates delivery-health bookkeeping after a fan-out: success
// resets the failure streak, failure increments it, and a gone endpoint or a
// streak past the threshold disables the row. Bookkeeping errors are logged
// and never fail the broadcast.
func (s *NotificationService) applyOutcomes(outcomes []SendOutcome) {
	now := time.Now()
	for _, o := range outcomes {
		var err error
		switch {
		case o.Malformed:
			// Legacy unparseable row: take it out of future scans.
			err = s.DB.Model(&models.PushSubscription{}).
				Where("id = ?", o.SubscriptionID).
				Update("disabled_at", now).Error
		case o.Gone:
			err = s.DB.Model(&models.PushSubscription{}).
				Where("id = ?", o.SubscriptionID).
				Updates(map[string]interface{}{
					"failure_streak": gorm.Expr("failure_streak + 1"),
					"disabled_at":    now,
				}).Error
		case o.Delivered:
			err = s.DB.Model(&models.PushSubscription{}).
				Where("id = ?", o.SubscriptionID).
				Update("failure_streak", 0).Error
		default:
			err = s.DB.Model(&models.PushSubscription{}).
				Where("id = ?", o.SubscriptionID).
				Update("failure_streak", gorm.Expr("failure_streak + 1")).Error
			if err == nil {
				err = s.DB.Model(&models.PushSubscription{}).
					Where("id = ? AND failure_streak >= ?", o.SubscriptionID, s.PruneThreshold).
					Update("disabled_at", now).Error
			}
		}
		if err != nil {
			log.Printf("[PUSH] ⚠️ Failed to update subscription %s health: %v", o.SubscriptionID, err)
		}
	}
}

// GetBroadcastHistory lists broadcast audit rows, newest first.
func (s *NotificationService) GetBroadcastHistory(c *fiber.Ctx) error {
	var notifications []models.Notification
	if err := s.DB.
		Where("type = ?", models.NotificationTypeBroadcast).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load notifications", "details": err.Error()})
	}
	return c.Status(200).JSON(fiber.Map{"notifications": notifications, "total": len(notifications)})
}

type createNotificationRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	UserID  string `json:"user_id"`
}

// CreateUserNotification appends a targeted (per-user) notification row.
// No push is sent here — targeted rows feed the in-app notification list.
func (s *NotificationService) CreateUserNotification(c *fiber.Ctx) error {
	var req createNotificationRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(400).JSON(fiber.Map{"error": "invalid request body", "details": err.Error()})
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Message) == "" || req.UserID == "" {
		return c.Status(400).JSON(fiber.Map{"error": "title, message and user_id are required"})
	}

	notification := &models.Notification{
		ID:      uuid.NewString(),
		Title:   req.Title,
		Message: req.Message,
		Type:    models.NotificationTypePersonal,
		UserID:  &req.UserID,
		Slug:    slug.Make(req.Title),
	}
	if err := s.DB.Create(notification).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to create notification", "details": err.Error()})
	}
	return c.Status(201).JSON(notification)
}

// GetMyNotifications returns the caller's targeted rows plus all broadcasts.
func (s *NotificationService) GetMyNotifications(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	if userID == "" {
		return c.Status(401).JSON(fiber.Map{"error": "missing user context"})
	}

	var notifications []models.Notification
	if err := s.DB.
		Where("user_id = ? OR user_id IS NULL", userID).
		Order("created_at DESC").
		Find(&notifications).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to load notifications", "details": err.Error()})
	}
	return c.Status(200).JSON(fiber.Map{"notifications": notifications, "total": len(notifications)})
}

// MarkNotificationRead flags one of the caller's targeted rows as read.
// Broadcast rows carry no per-user read state, so they are not addressable here.
func (s *NotificationService) MarkNotificationRead(c *fiber.Ctx) error {
	userID, _ := c.Locals("user_id").(string)
	id := c.Params("id")

	res := s.DB.Model(&models.Notification{}).
		Where("id = ? AND user_id = ?", id, userID).
		Update("read", true)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to update notification", "details": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "notification not found"})
	}
	return c.Status(200).JSON(fiber.Map{"message": "notification marked as read"})
}

// DeleteNotification soft-deletes a notification row (admin history cleanup).
func (s *NotificationService) DeleteNotification(c *fiber.Ctx) error {
	id := c.Params("id")

	res := s.DB.Delete(&models.Notification{}, "id = ?", id)
	if res.Error != nil {
		return c.Status(500).JSON(fiber.Map{"error": "failed to delete notification", "details": res.Error.Error()})
	}
	if res.RowsAffected == 0 {
		return c.Status(404).JSON(fiber.Map{"error": "notification not found"})
	}
	return c.Status(200).JSON(fiber.Map{"message": "notification deleted"})
}
