// services/users.go
package services

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"community-notify-system/models"
)

// SearchUsers searches the local mirrored user table. The admin panel uses it
// to pick a target for a personal notification and to resolve extraction
// matches manually.
func (s *NotificationService) SearchUsers(c *fiber.Ctx) error {
	query := c.Query("q", "")
	limitStr := c.Query("limit", "50")
	limit, err := strconv.Atoi(limitStr)
	if err != nil || limit <= 0 || limit > 100 {
		limit = 50
	}

	var users []models.MirroredUser
	db := s.DB.Model(&models.MirroredUser{}).Limit(limit)

	if query != "" {
		searchTerm := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"
		db = db.Where(
			"LOWER(username) LIKE ? OR LOWER(email) LIKE ?",
			searchTerm, searchTerm,
		)
	}

	if err := db.Find(&users).Error; err != nil {
		return c.Status(500).JSON(fiber.Map{"error": "search failed", "details": err.Error()})
	}

	// Minimal response shape — the external user ID is the identifier the
	// rest of the platform understands.
	type UserSummary struct {
		ID             string `json:"id"`
		ExternalUserID string `json:"external_user_id"`
		Username       string `json:"username"`
		Email          string `json:"email"`
	}

	res := make([]UserSummary, len(users))
	for i, u := range users {
		res[i] = UserSummary{
			ID:             u.ID,
			ExternalUserID: u.ExternalUserID,
			Username:       u.Username,
			Email:          u.Email,
		}
	}

	return c.JSON(res)
}
