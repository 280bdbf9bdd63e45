package devkit

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

func ValidateTransportAdapterConformance(
	ctx context.Context,
	adapter core.TransportAdapter,
	request core.TransportRequest,
) error {
	if adapter == nil {
		return fmt.Errorf("devkit: transport adapter is required")
	}
	if strings.TrimSpace(adapter.Kind()) == "" {
		return fmt.Errorf("devkit: transport adapter kind is required")
	}
	_, err := adapter.Do(ctx, request)
	return err
}

// ValidateProviderConformance sends request once and checks the provider
// reports a stable lowercase name and a non-empty message id.
func ValidateProviderConformance(
	ctx context.Context,
	provider core.Provider,
	request core.SendRequest,
) error {
	if provider == nil {
		return fmt.Errorf("devkit: provider is required")
	}
	name := provider.Name()
	if strings.TrimSpace(name) == "" || name != strings.ToLower(strings.TrimSpace(name)) {
		return fmt.Errorf("devkit: provider name %q must be lowercase and non-empty", name)
	}
	if channels, ok := provider.(core.ChannelProvider); ok {
		served := false
		for _, channel := range channels.Channels() {
			if channel == request.Channel {
				served = true
				break
			}
		}
		if !served {
			return fmt.Errorf("devkit: provider %q does not serve channel %q", name, request.Channel)
		}
	}
	receipt, err := provider.Send(ctx, request)
	if err != nil {
		return fmt.Errorf("devkit: provider %q send: %w", name, err)
	}
	if strings.TrimSpace(receipt.MessageID) == "" {
		return fmt.Errorf("devkit: provider %q returned an empty message id", name)
	}
	if receipt.StatusCode >= 400 {
		return fmt.Errorf("devkit: provider %q reported success with status %d", name, receipt.StatusCode)
	}
	return nil
}

func ValidateIdempotencyClaimStoreConformance(
	ctx context.Context,
	store core.IdempotencyClaimStore,
	key string,
) error {
	if store == nil {
		return fmt.Errorf("devkit: idempotency store is required")
	}
	claimID, accepted, err := store.Claim(ctx, key, time.Minute)
	if err != nil {
		return err
	}
	if !accepted || strings.TrimSpace(claimID) == "" {
		return fmt.Errorf("devkit: first claim should be accepted")
	}
	if _, accepted, err := store.Claim(ctx, key, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: second claim should not be accepted")
	}
	if err := store.Fail(ctx, claimID, fmt.Errorf("devkit: transient"), time.Time{}); err != nil {
		return err
	}
	retryID, accepted, err := store.Claim(ctx, key, time.Minute)
	if err != nil {
		return err
	}
	if !accepted {
		return fmt.Errorf("devkit: failed claim should be reclaimable")
	}
	if err := store.Complete(ctx, retryID); err != nil {
		return err
	}
	if _, accepted, err := store.Claim(ctx, key, time.Minute); err != nil {
		return err
	} else if accepted {
		return fmt.Errorf("devkit: completed claim should not be reclaimed")
	}
	return nil
}
