// services/push_dispatcher.go
package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"os"
	"sync"

	webpush "github.com/SherClockHolmes/webpush-go"

	"community-notify-system/models"
	"community-notify-system/utils"
)

// BroadcastPayload is the JSON carried inside each push message. The service
// worker on the other end falls back to a canned title/body if it is absent
// or unparseable.
type BroadcastPayload struct {
	Title   string `json:"title"`
	Message string `json:"message"`
	URL     string `json:"url,omitempty"`
}

// PushSender delivers one encrypted payload to one subscription endpoint and
// reports the gateway's HTTP status. Split out so the dispatcher can be
// exercised without a live push gateway.
type PushSender interface {
	Send(ctx context.Context, sub *models.SubscriptionDescriptor, payload []byte) (int, error)
}

var errMissingVAPIDKeys = errors.New("VAPID_PUBLIC_KEY and VAPID_PRIVATE_KEY must be set")

// WebPushSender signs and sends through the browser push gateway using VAPID keys.
type WebPushSender struct {
	Subscriber      string // contact address the gateway may use
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	TTL             int
}

func NewWebPushSenderFromEnv() (*WebPushSender, error) {
	pub := os.Getenv("VAPID_PUBLIC_KEY")
	priv := os.Getenv("VAPID_PRIVATE_KEY")
	if pub == "" || priv == "" {
		return nil, errMissingVAPIDKeys
	}
	subscriber := os.Getenv("VAPID_SUBSCRIBER")
	if subscriber == "" {
		subscriber = "admin@community.gg"
	}
	return &WebPushSender{
		Subscriber:      subscriber,
		VAPIDPublicKey:  pub,
		VAPIDPrivateKey: priv,
		TTL:             60 * 60 * 24, // 24 hours
	}, nil
}

func (w *WebPushSender) Send(ctx context.Context, sub *models.SubscriptionDescriptor, payload []byte) (int, error) {
	s := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.Keys.P256dh,
			Auth:   sub.Keys.Auth,
		},
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, s, &webpush.Options{
		HTTPClient:      utils.HTTPClient,
		Subscriber:      w.Subscriber,
		VAPIDPublicKey:  w.VAPIDPublicKey,
		VAPIDPrivateKey: w.VAPIDPrivateKey,
		TTL:             w.TTL,
	})
	if err != nil {
		return 0, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	return resp.StatusCode, nil
}

// SendOutcome is the per-subscription result of one fan-out.
type SendOutcome struct {
	SubscriptionID string
	Delivered      bool
	Gone           bool // gateway reported the endpoint as permanently gone
	Malformed      bool // stored descriptor failed to parse, row skipped
}

// DispatchResult summarizes one broadcast fan-out.
type DispatchResult struct {
	Total    int
	Sent     int
	Skipped  int // malformed descriptors
	Outcomes []SendOutcome
}

// PushDispatcher fans one payload out to every subscription through a bounded
// worker pool. All sends are issued independently and joined with a settle-all
// barrier; individual failures are absorbed into the counts, never propagated.
type PushDispatcher struct {
	Sender  PushSender
	Workers int
}

func NewPushDispatcher(sender PushSender, workers int) *PushDispatcher {
	if workers <= 0 {
		workers = 8
	}
	return &PushDispatcher{Sender: sender, Workers: workers}
}

// Dispatch sends payload to every row in subs. Rows whose descriptor no longer
// parses are skipped and the batch keeps going — one bad row must never abort
// a broadcast.
func (d *PushDispatcher) Dispatch(ctx context.Context, subs []models.PushSubscription, payload BroadcastPayload) DispatchResult {
	result := DispatchResult{Total: len(subs)}
	if len(subs) == 0 {
		return result
	}

	body, err := json.Marshal(payload)
	if err != nil {
		log.Printf("[PUSH] ❌ Failed to marshal broadcast payload: %v", err)
		return result
	}

	workers := d.Workers
	if workers > len(subs) {
		workers = len(subs)
	}

	jobs := make(chan models.PushSubscription)
	outcomes := make([]SendOutcome, 0, len(subs))

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for sub := range jobs {
				outcome := d.sendOne(ctx, sub, body)
				mu.Lock()
				outcomes = append(outcomes, outcome)
				mu.Unlock()
			}
		}()
	}

	for _, sub := range subs {
		jobs <- sub
	}
	close(jobs)
	wg.Wait()

	for _, o := range outcomes {
		if o.Delivered {
			result.Sent++
		}
		if o.Malformed {
			result.Skipped++
		}
	}
	result.Outcomes = outcomes
	return result
}

func (d *PushDispatcher) sendOne(ctx context.Context, sub models.PushSubscription, body []byte) SendOutcome {
	outcome := SendOutcome{SubscriptionID: sub.ID}

	descriptor, err := sub.Parse()
	if err != nil {
		log.Printf("[PUSH] ⚠️ Skipping subscription %s (user %s): %v", sub.ID, sub.UserID, err)
		outcome.Malformed = true
		return outcome
	}

	status, err := d.Sender.Send(ctx, descriptor, body)
	if err != nil {
		log.Printf("[PUSH] ❌ Send to subscription %s failed: %v", sub.ID, err)
		return outcome
	}

	switch {
	case status == http.StatusGone || status == http.StatusNotFound:
		log.Printf("[PUSH] 🗑 Gateway reports subscription %s gone (status %d)", sub.ID, status)
		outcome.Gone = true
	case status >= 200 && status < 300:
		outcome.Delivered = true
	default:
		log.Printf("[PUSH] ⚠️ Unexpected gateway status %d for subscription %s", status, sub.ID)
	}
	return outcome
}
