package core

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const (
	JobIDRateLimitCleanup = "messaging.ratelimit.cleanup"
	JobIDAllowlistReload  = "messaging.allowlist.reload"
	JobIDProviderHealth   = "messaging.providers.health"
)

const defaultMaintenanceRetryDelay = 30 * time.Second

// RunMaintenance drops expired rate windows, reloads allowlist mirrors and
// health checks every registered provider.
func (s *Service) RunMaintenance(ctx context.Context) (report MaintenanceReport, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{}
	defer func() {
		fields["expired_windows"] = report.ExpiredWindows
		s.observeOperation(ctx, startedAt, "maintenance", err, fields)
	}()

	report.ExpiredWindows = s.CleanupRateWindows()
	report.AllowlistEntries, err = s.ReloadAllowlists(ctx)
	if err != nil {
		return report, err
	}
	report.ProviderHealth = s.ProviderHealth(ctx)
	unhealthy := 0
	for _, providers := range report.ProviderHealth {
		for _, healthErr := range providers {
			if healthErr != nil {
				unhealthy++
			}
		}
	}
	fields["unhealthy_providers"] = unhealthy
	report.CompletedAt = s.now()
	return report, nil
}

func (s *Service) CleanupRateWindows() int {
	if s == nil || s.rateLimiter == nil {
		return 0
	}
	return s.rateLimiter.Cleanup()
}

func (s *Service) ReloadAllowlists(ctx context.Context) (map[AllowlistScope]int, error) {
	counts := map[AllowlistScope]int{}
	if s == nil {
		return counts, nil
	}
	for _, scope := range []AllowlistScope{AllowlistScopeEmail, AllowlistScopeSMS} {
		list, ok := s.allowlists[scope]
		if !ok {
			continue
		}
		if err := list.Initialize(ctx); err != nil {
			return counts, s.mapError(err)
		}
		counts[scope] = len(list.List())
	}
	return counts, nil
}

// EnqueueMaintenance schedules every maintenance job on enqueuer.
func (s *Service) EnqueueMaintenance(ctx context.Context, enqueuer JobEnqueuer) error {
	if enqueuer == nil {
		return s.mapError(fmt.Errorf("core: job enqueuer is required"))
	}
	stamp := s.now().Truncate(time.Minute).Format(time.RFC3339)
	for _, jobID := range []string{JobIDRateLimitCleanup, JobIDAllowlistReload, JobIDProviderHealth} {
		msg := &JobExecutionMessage{
			JobID:          jobID,
			IdempotencyKey: jobID + ":" + stamp,
			DedupPolicy:    "drop",
		}
		if err := enqueuer.Enqueue(ctx, msg); err != nil {
			return s.mapError(fmt.Errorf("core: enqueue %s: %w", jobID, err))
		}
	}
	return nil
}

// ProcessMaintenanceJob pulls one delivery and runs the job it names. The
// delivery is acked on success and nacked with a delay on failure.
func (s *Service) ProcessMaintenanceJob(ctx context.Context, dequeuer JobDequeuer) error {
	if dequeuer == nil {
		return s.mapError(fmt.Errorf("core: job dequeuer is required"))
	}
	delivery, err := dequeuer.Dequeue(ctx)
	if err != nil {
		return err
	}
	if delivery == nil {
		return nil
	}
	msg := delivery.Message()
	if msg == nil {
		return delivery.Nack(ctx, JobNackOptions{DeadLetter: true, Reason: "missing execution message"})
	}

	runErr := s.runMaintenanceJob(ctx, strings.TrimSpace(msg.JobID))
	if runErr != nil {
		nackErr := delivery.Nack(ctx, JobNackOptions{
			Delay:   defaultMaintenanceRetryDelay,
			Requeue: true,
			Reason:  runErr.Error(),
		})
		return joinErrors(runErr, nackErr)
	}
	return delivery.Ack(ctx)
}

func (s *Service) runMaintenanceJob(ctx context.Context, jobID string) error {
	switch jobID {
	case JobIDRateLimitCleanup:
		removed := s.CleanupRateWindows()
		s.logInfo(ctx, "rate windows cleaned", map[string]any{"removed": removed})
		return nil
	case JobIDAllowlistReload:
		_, err := s.ReloadAllowlists(ctx)
		return err
	case JobIDProviderHealth:
		for channel, providers := range s.ProviderHealth(ctx) {
			for name, healthErr := range providers {
				if healthErr == nil {
					continue
				}
				s.logWarn(ctx, "provider unhealthy", map[string]any{
					"channel":  string(channel),
					"provider": name,
					"error":    healthErr.Error(),
				})
			}
		}
		return nil
	default:
		return fmt.Errorf("core: unsupported maintenance job %q", jobID)
	}
}

func joinErrors(existing error, next error) error {
	if existing == nil {
		return next
	}
	if next == nil {
		return existing
	}
	return fmt.Errorf("%w; %v", existing, next)
}
