package workflows

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/asierbarrena/oficios/internal/core/ports"
)

// AcceptanceActivities holds the activity implementations for the
// acceptance notification workflow.
type AcceptanceActivities struct {
	Requests ports.RequestRepository
	Apps     ports.ApplicationRepository
	Notifier ports.NotificationService
	Cache    ports.CacheService
}

// GetRequestSummary returns a short human-readable line for a request,
// used in notification bodies.
func (a *AcceptanceActivities) GetRequestSummary(ctx context.Context, requestID string) (string, error) {
	req, err := a.Requests.GetByID(ctx, requestID)
	if err != nil {
		return "", fmt.Errorf("get request %s: %w", requestID, err)
	}
	summary := req.Description
	if len(summary) > 80 {
		summary = summary[:77] + "..."
	}
	return summary, nil
}

// NotifyAccepted tells the winning provider their application was accepted.
func (a *AcceptanceActivities) NotifyAccepted(ctx context.Context, providerID, summary string) error {
	return a.sendPush(ctx, providerID,
		"Application accepted",
		fmt.Sprintf("You got the job: %s", summary))
}

// NotifyRequester confirms the acceptance to the request owner.
func (a *AcceptanceActivities) NotifyRequester(ctx context.Context, requesterID, summary string) error {
	return a.sendPush(ctx, requesterID,
		"Provider confirmed",
		fmt.Sprintf("Your request is now assigned: %s", summary))
}

// NotifyDiscarded tells a losing provider their application was discarded.
func (a *AcceptanceActivities) NotifyDiscarded(ctx context.Context, providerID, summary string) error {
	return a.sendPush(ctx, providerID,
		"Request no longer available",
		fmt.Sprintf("Another provider was chosen for: %s", summary))
}

// RecordUndelivered parks a failed notification in the cache so a later
// sweep can redeliver it. Saga fallback when pushes keep failing.
func (a *AcceptanceActivities) RecordUndelivered(ctx context.Context, userID, applicationID string) error {
	if a.Cache == nil {
		log.Printf("undelivered notification (no cache) user=%s application=%s", userID, applicationID)
		return nil
	}
	key := "notify:undelivered:" + userID + ":" + applicationID
	ttl := int((72 * time.Hour).Seconds())
	return a.Cache.Set(ctx, key, []byte(applicationID), ttl)
}

func (a *AcceptanceActivities) sendPush(ctx context.Context, userID, title, body string) error {
	if a.Notifier == nil {
		log.Printf("PUSH (no notifier) → user=%s title=%q", userID, title)
		return nil
	}
	return a.Notifier.SendPush(ctx, userID, title, body)
}
