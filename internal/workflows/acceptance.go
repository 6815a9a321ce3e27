package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// AcceptanceInput is the input for the acceptance notification workflow.
type AcceptanceInput struct {
	RequestID           string
	RequesterID         string
	AcceptedAppID       string
	AcceptedProviderID  string
	DiscardedProviderID []string
}

// AcceptanceWorkflow fans out notifications after an application wins a
// request: the accepted provider first, then the requester, then every
// discarded provider. Discard notices are best-effort; a provider push
// that keeps failing is parked for redelivery instead of failing the run.
func AcceptanceWorkflow(ctx workflow.Context, input AcceptanceInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting acceptance workflow",
		"request", input.RequestID, "accepted", input.AcceptedProviderID)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 30 * time.Second,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Fetch a summary line for the notification bodies
	var summary string
	err := workflow.ExecuteActivity(ctx, "GetRequestSummary", input.RequestID).Get(ctx, &summary)
	if err != nil {
		return err
	}

	// Step 2: Notify the winner; park the notice if delivery keeps failing
	err = workflow.ExecuteActivity(ctx, "NotifyAccepted", input.AcceptedProviderID, summary).Get(ctx, nil)
	if err != nil {
		logger.Warn("accepted-provider push failed, parking for redelivery", "error", err)
		_ = workflow.ExecuteActivity(ctx, "RecordUndelivered",
			input.AcceptedProviderID, input.AcceptedAppID).Get(ctx, nil)
	}

	// Step 3: Confirm to the requester
	err = workflow.ExecuteActivity(ctx, "NotifyRequester", input.RequesterID, summary).Get(ctx, nil)
	if err != nil {
		logger.Warn("requester push failed, parking for redelivery", "error", err)
		_ = workflow.ExecuteActivity(ctx, "RecordUndelivered",
			input.RequesterID, input.AcceptedAppID).Get(ctx, nil)
	}

	// Step 4: Tell the losers, best-effort
	for _, providerID := range input.DiscardedProviderID {
		if err := workflow.ExecuteActivity(ctx, "NotifyDiscarded", providerID, summary).Get(ctx, nil); err != nil {
			logger.Warn("discard push failed", "provider", providerID, "error", err)
		}
	}

	logger.Info("Acceptance notifications sent", "request", input.RequestID)
	return nil
}
