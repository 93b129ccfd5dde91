package notification

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"attendance-backend/internal/model"
)

// Notifier delivers a best-effort message to a user. Failures are logged, never returned.
type Notifier interface {
	Notify(recipient, subject, body string)
}

// Message is one queued notification.
type Message struct {
	Recipient string `json:"-"`
	Subject   string `json:"title"`
	Body      string `json:"body"`
}

// SubscriptionStore is what the pool needs to find and prune push subscriptions.
type SubscriptionStore interface {
	SubscriptionsForUser(ctx context.Context, userID string) ([]model.PushSubscription, error)
	DeleteSubscription(ctx context.Context, endpoint, userID string) error
}

// NotificationSender defines the interface for sending a web push notification.
type NotificationSender interface {
	Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error)
}

// WebPushSender is a real implementation of NotificationSender using the webpush library.
type WebPushSender struct{}

// Send sends a notification using the webpush library.
func (s *WebPushSender) Send(payload []byte, sub *webpush.Subscription, options *webpush.Options) (*http.Response, error) {
	return webpush.SendNotification(payload, sub, options)
}

// WorkerPool manages a pool of workers for sending notifications.
type WorkerPool struct {
	size    int
	jobs    chan Message
	subs    SubscriptionStore
	webpush *webpush.Options
	sender  NotificationSender
}

// NewWorkerPool creates a new worker pool with a queue of queueSize messages.
func NewWorkerPool(size, queueSize int, subs SubscriptionStore, webpushOptions *webpush.Options) *WorkerPool {
	if queueSize < size {
		queueSize = size
	}
	return &WorkerPool{
		size:    size,
		jobs:    make(chan Message, queueSize),
		subs:    subs,
		webpush: webpushOptions,
		sender:  &WebPushSender{},
	}
}

// Start launches the worker goroutines.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	log.Printf("Notification worker %d started", id)
	for {
		select {
		case msg := <-wp.jobs:
			wp.deliver(ctx, msg)
		case <-ctx.Done():
			log.Printf("Notification worker %d shutting down", id)
			return
		}
	}
}

// Notify queues a message without blocking. When the queue is full the message is dropped.
func (wp *WorkerPool) Notify(recipient, subject, body string) {
	if recipient == "" {
		return
	}
	select {
	case wp.jobs <- Message{Recipient: recipient, Subject: subject, Body: body}:
	default:
		log.Printf("Notification queue full, dropping %q for %s", subject, recipient)
	}
}

// Jobs returns the jobs channel for testing.
func (wp *WorkerPool) Jobs() chan Message {
	return wp.jobs
}

// deliver pushes msg to every subscription of its recipient.
func (wp *WorkerPool) deliver(ctx context.Context, msg Message) {
	subscriptions, err := wp.subs.SubscriptionsForUser(ctx, msg.Recipient)
	if err != nil {
		log.Printf("Error fetching subscriptions for user %s: %v", msg.Recipient, err)
		return
	}
	if len(subscriptions) == 0 {
		log.Printf("No push subscription for user %s, dropping %q", msg.Recipient, msg.Subject)
		return
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		log.Printf("Error encoding notification %q: %v", msg.Subject, err)
		return
	}
	for _, sub := range subscriptions {
		wp.sendNotification(ctx, sub, payload)
	}
}

// sendNotification sends a single web push notification.
func (wp *WorkerPool) sendNotification(ctx context.Context, sub model.PushSubscription, payload []byte) {
	wpSub := &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			P256dh: sub.P256DH,
			Auth:   sub.Auth,
		},
	}

	resp, err := wp.sender.Send(payload, wpSub, wp.webpush)
	if err != nil {
		log.Printf("Error sending notification to %s: %v", sub.Endpoint, err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		log.Printf("Subscription for endpoint %s is expired. Deleting.", sub.Endpoint)
		if err := wp.subs.DeleteSubscription(ctx, sub.Endpoint, ""); err != nil {
			log.Printf("Failed to delete expired subscription %s: %v", sub.Endpoint, err)
		}
	} else if resp.StatusCode >= 400 {
		log.Printf("Push service rejected notification to %s with status %d", sub.Endpoint, resp.StatusCode)
	}
}
