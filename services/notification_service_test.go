package services

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"community-notify-system/models"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.PushSubscription{},
		&models.Notification{},
		&models.MirroredUser{},
	))
	return db
}

func newBroadcastApp(t *testing.T, db *gorm.DB, sender PushSender) (*fiber.App, *NotificationService) {
	t.Helper()
	svc := NewNotificationService(db, NewPushDispatcher(sender, 4))
	app := fiber.New()
	app.Post("/broadcast", svc.BroadcastNotification)
	return app, svc
}

func postBroadcast(t *testing.T, app *fiber.App, payload interface{}) *http.Response {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest("POST", "/broadcast", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func TestBroadcastValidation(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	app, _ := newBroadcastApp(t, db, sender)

	for _, payload := range []map[string]string{
		{},
		{"title": "hello"},
		{"message": "world"},
		{"title": "  ", "message": "world"},
	} {
		resp := postBroadcast(t, app, payload)
		assert.Equal(t, 400, resp.StatusCode)
	}

	// Rejected before any I/O: no gateway calls, no audit rows.
	assert.Empty(t, sender.sent)
	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Zero(t, count)
}

func TestBroadcastZeroSubscriptionsShortCircuits(t *testing.T) {
	db := openTestDB(t)
	app, _ := newBroadcastApp(t, db, &fakeSender{})

	resp := postBroadcast(t, app, map[string]string{"title": "t", "message": "m"})
	assert.Equal(t, 200, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.EqualValues(t, 0, out["sent_count"])
	assert.EqualValues(t, 0, out["total_subscriptions"])

	// The zero-subscription path returns before the audit write.
	var count int64
	db.Model(&models.Notification{}).Count(&count)
	assert.Zero(t, count)
}

func TestBroadcastThreeSubscriptionsOneMalformed(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	app, _ := newBroadcastApp(t, db, sender)

	require.NoError(t, db.Create([]models.PushSubscription{
		makeSubscription(t, "u1", "https://push.example.com/1"),
		{ID: "bad-row", UserID: "u2", Descriptor: "][corrupted"},
		makeSubscription(t, "u3", "https://push.example.com/3"),
	}).Error)

	resp := postBroadcast(t, app, map[string]string{"title": "Patch Day", "message": "1.2 is live"})
	assert.Equal(t, 200, resp.StatusCode)

	out := decodeBody(t, resp)
	assert.EqualValues(t, 3, out["total_subscriptions"])
	assert.EqualValues(t, 2, out["sent_count"])

	// Exactly one broadcast audit row, userID null, regardless of per-row outcomes.
	var audits []models.Notification
	require.NoError(t, db.Find(&audits).Error)
	require.Len(t, audits, 1)
	assert.Nil(t, audits[0].UserID)
	assert.Equal(t, models.NotificationTypeBroadcast, audits[0].Type)
	assert.Equal(t, "Patch Day", audits[0].Title)
	assert.Equal(t, "patch-day", audits[0].Slug)

	// The malformed row was disabled so future scans skip it.
	var bad models.PushSubscription
	require.NoError(t, db.First(&bad, "id = ?", "bad-row").Error)
	assert.NotNil(t, bad.DisabledAt)
}

func TestBroadcastSecondRunExcludesDisabledRows(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	app, _ := newBroadcastApp(t, db, sender)

	require.NoError(t, db.Create([]models.PushSubscription{
		makeSubscription(t, "u1", "https://push.example.com/1"),
		{ID: "bad-row", UserID: "u2", Descriptor: "nope"},
	}).Error)

	resp := postBroadcast(t, app, map[string]string{"title": "a", "message": "b"})
	assert.Equal(t, 200, resp.StatusCode)

	resp = postBroadcast(t, app, map[string]string{"title": "a", "message": "b"})
	out := decodeBody(t, resp)
	assert.EqualValues(t, 1, out["total_subscriptions"])
	assert.EqualValues(t, 1, out["sent_count"])
}

func TestBroadcastGoneEndpointDisablesSubscription(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{statuses: map[string]int{
		"https://push.example.com/gone": http.StatusGone,
	}}
	app, _ := newBroadcastApp(t, db, sender)

	sub := makeSubscription(t, "u1", "https://push.example.com/gone")
	require.NoError(t, db.Create(&sub).Error)

	resp := postBroadcast(t, app, map[string]string{"title": "t", "message": "m"})
	assert.Equal(t, 200, resp.StatusCode)

	var updated models.PushSubscription
	require.NoError(t, db.First(&updated, "id = ?", sub.ID).Error)
	assert.NotNil(t, updated.DisabledAt)
	assert.Equal(t, 1, updated.FailureStreak)
}

func TestBroadcastFailureStreakDisablesAtThreshold(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{statuses: map[string]int{
		"https://push.example.com/flaky": http.StatusBadGateway,
	}}
	app, svc := newBroadcastApp(t, db, sender)
	svc.PruneThreshold = 2

	sub := makeSubscription(t, "u1", "https://push.example.com/flaky")
	require.NoError(t, db.Create(&sub).Error)

	postBroadcast(t, app, map[string]string{"title": "t", "message": "m"})
	var updated models.PushSubscription
	require.NoError(t, db.First(&updated, "id = ?", sub.ID).Error)
	assert.Equal(t, 1, updated.FailureStreak)
	assert.Nil(t, updated.DisabledAt)

	postBroadcast(t, app, map[string]string{"title": "t", "message": "m"})
	require.NoError(t, db.First(&updated, "id = ?", sub.ID).Error)
	assert.Equal(t, 2, updated.FailureStreak)
	assert.NotNil(t, updated.DisabledAt)
}

func TestBroadcastSuccessResetsFailureStreak(t *testing.T) {
	db := openTestDB(t)
	sender := &fakeSender{}
	app, _ := newBroadcastApp(t, db, sender)

	sub := makeSubscription(t, "u1", "https://push.example.com/1")
	sub.FailureStreak = 3
	require.NoError(t, db.Create(&sub).Error)

	postBroadcast(t, app, map[string]string{"title": "t", "message": "m"})

	var updated models.PushSubscription
	require.NoError(t, db.First(&updated, "id = ?", sub.ID).Error)
	assert.Equal(t, 0, updated.FailureStreak)
}

func TestNotificationHistoryAndSoftDelete(t *testing.T) {
	db := openTestDB(t)
	svc := NewNotificationService(db, NewPushDispatcher(&fakeSender{}, 2))

	app := fiber.New()
	app.Get("/admin/notifications", svc.GetBroadcastHistory)
	app.Delete("/admin/notifications/:id", svc.DeleteNotification)

	userID := "user-1"
	require.NoError(t, db.Create([]models.Notification{
		{ID: "n1", Title: "Broadcast A", Message: "m", Type: models.NotificationTypeBroadcast},
		{ID: "n2", Title: "Personal", Message: "m", Type: models.NotificationTypePersonal, UserID: &userID},
	}).Error)

	req := httptest.NewRequest("GET", "/admin/notifications", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	out := decodeBody(t, resp)
	assert.EqualValues(t, 1, out["total"]) // personal rows are not broadcast history

	req = httptest.NewRequest("DELETE", "/admin/notifications/n1", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	// Soft deleted: gone from default scope, still present unscoped.
	var count int64
	db.Model(&models.Notification{}).Where("id = ?", "n1").Count(&count)
	assert.Zero(t, count)
	db.Unscoped().Model(&models.Notification{}).Where("id = ?", "n1").Count(&count)
	assert.EqualValues(t, 1, count)

	req = httptest.NewRequest("DELETE", "/admin/notifications/does-not-exist", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestMarkNotificationRead(t *testing.T) {
	db := openTestDB(t)
	svc := NewNotificationService(db, NewPushDispatcher(&fakeSender{}, 2))

	app := fiber.New()
	app.Use(func(c *fiber.Ctx) error {
		c.Locals("user_id", "user-1")
		return c.Next()
	})
	app.Get("/me/notifications", svc.GetMyNotifications)
	app.Patch("/me/notifications/:id/read", svc.MarkNotificationRead)

	owner := "user-1"
	other := "user-2"
	require.NoError(t, db.Create([]models.Notification{
		{ID: "mine", Title: "t", Message: "m", Type: models.NotificationTypePersonal, UserID: &owner},
		{ID: "theirs", Title: "t", Message: "m", Type: models.NotificationTypePersonal, UserID: &other},
		{ID: "bcast", Title: "t", Message: "m", Type: models.NotificationTypeBroadcast},
	}).Error)

	// Own list: personal row plus broadcasts, not other users' rows.
	req := httptest.NewRequest("GET", "/me/notifications", nil)
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	out := decodeBody(t, resp)
	assert.EqualValues(t, 2, out["total"])

	req = httptest.NewRequest("PATCH", "/me/notifications/mine/read", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	var n models.Notification
	require.NoError(t, db.First(&n, "id = ?", "mine").Error)
	assert.True(t, n.Read)

	// Cannot mark someone else's row.
	req = httptest.NewRequest("PATCH", "/me/notifications/theirs/read", nil)
	resp, err = app.Test(req, -1)
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}
