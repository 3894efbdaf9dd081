// services/scheduler.go
package services

import (
	"log"
	"time"

	"github.com/go-co-op/gocron/v2"

	"community-notify-system/models"
)

// DisabledRetention is how long a disabled subscription row is kept around
// before the sweep removes it, giving the owner a window to re-subscribe.
const DisabledRetention = 30 * 24 * time.Hour

// StartPruneScheduler runs the hourly subscription sweep: rows whose failure
// streak crossed the threshold are disabled, and rows disabled longer than the
// retention window are removed for good.
func (s *NotificationService) StartPruneScheduler() {
	sched, _ := gocron.NewScheduler()
	sched.Start()

	_, _ = sched.NewJob(
		gocron.DurationJob(1*time.Hour),
		gocron.NewTask(func() {
			now := time.Now()

			res := s.DB.Model(&models.PushSubscription{}).
				Where("disabled_at IS NULL AND failure_streak >= ?", s.PruneThreshold).
				Update("disabled_at", now)
			if res.Error != nil {
				log.Printf("[PRUNE] ❌ DB error disabling stale subscriptions: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("[PRUNE] 🧹 Disabled %d subscriptions past failure threshold", res.RowsAffected)
			}

			cutoff := now.Add(-DisabledRetention)
			res = s.DB.Where("disabled_at IS NOT NULL AND disabled_at < ?", cutoff).
				Delete(&models.PushSubscription{})
			if res.Error != nil {
				log.Printf("[PRUNE] ❌ DB error deleting disabled subscriptions: %v", res.Error)
			} else if res.RowsAffected > 0 {
				log.Printf("[PRUNE] 🗑 Deleted %d subscriptions disabled before %s", res.RowsAffected, cutoff.Format(time.RFC3339))
			}
		}),
	)
}
