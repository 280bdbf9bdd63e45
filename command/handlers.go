package command

import (
	"context"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-messaging/core"
)

type MutatingService interface {
	Ingest(ctx context.Context, channel core.Channel, carrier string, raw core.RawPayload) (core.IngestResult, error)
	Send(ctx context.Context, req core.SendRequest, forcedProvider string) (core.SendResult, error)
	AddAllowlistEntry(ctx context.Context, scope core.AllowlistScope, identifier string, addedBy string) (core.AllowlistEntry, error)
	RemoveAllowlistEntry(ctx context.Context, scope core.AllowlistScope, identifier string) error
	ClearAllowlist(ctx context.Context, scope core.AllowlistScope) error
	ConfigureRateLimit(limit int, window time.Duration) error
}

type MaintenanceService interface {
	RunMaintenance(ctx context.Context) (core.MaintenanceReport, error)
}

type IngestCommand struct {
	service MutatingService
}

func NewIngestCommand(service MutatingService) *IngestCommand {
	return &IngestCommand{service: service}
}

func (c *IngestCommand) Execute(ctx context.Context, msg IngestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: ingest service is required")
	}
	out, err := c.service.Ingest(ctx, msg.Channel, msg.Carrier, msg.Payload)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type SendCommand struct {
	service MutatingService
}

func NewSendCommand(service MutatingService) *SendCommand {
	return &SendCommand{service: service}
}

// Execute stores the send result even when the send failed so callers can
// inspect the attempt count and provider.
func (c *SendCommand) Execute(ctx context.Context, msg SendMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: send service is required")
	}
	out, err := c.service.Send(ctx, msg.Request, msg.ForcedProvider)
	storeResult(ctx, out)
	return err
}

type AddAllowlistEntryCommand struct {
	service MutatingService
}

func NewAddAllowlistEntryCommand(service MutatingService) *AddAllowlistEntryCommand {
	return &AddAllowlistEntryCommand{service: service}
}

func (c *AddAllowlistEntryCommand) Execute(ctx context.Context, msg AddAllowlistEntryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: allowlist service is required")
	}
	out, err := c.service.AddAllowlistEntry(ctx, msg.Scope, msg.Identifier, msg.AddedBy)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RemoveAllowlistEntryCommand struct {
	service MutatingService
}

func NewRemoveAllowlistEntryCommand(service MutatingService) *RemoveAllowlistEntryCommand {
	return &RemoveAllowlistEntryCommand{service: service}
}

func (c *RemoveAllowlistEntryCommand) Execute(ctx context.Context, msg RemoveAllowlistEntryMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: allowlist service is required")
	}
	return c.service.RemoveAllowlistEntry(ctx, msg.Scope, msg.Identifier)
}

type ClearAllowlistCommand struct {
	service MutatingService
}

func NewClearAllowlistCommand(service MutatingService) *ClearAllowlistCommand {
	return &ClearAllowlistCommand{service: service}
}

func (c *ClearAllowlistCommand) Execute(ctx context.Context, msg ClearAllowlistMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: allowlist service is required")
	}
	return c.service.ClearAllowlist(ctx, msg.Scope)
}

type ConfigureRateLimitCommand struct {
	service MutatingService
}

func NewConfigureRateLimitCommand(service MutatingService) *ConfigureRateLimitCommand {
	return &ConfigureRateLimitCommand{service: service}
}

func (c *ConfigureRateLimitCommand) Execute(_ context.Context, msg ConfigureRateLimitMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: rate limit service is required")
	}
	return c.service.ConfigureRateLimit(msg.Limit, msg.Window)
}

type RunMaintenanceCommand struct {
	service MaintenanceService
}

func NewRunMaintenanceCommand(service MaintenanceService) *RunMaintenanceCommand {
	return &RunMaintenanceCommand{service: service}
}

func (c *RunMaintenanceCommand) Execute(ctx context.Context, _ RunMaintenanceMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: maintenance service is required")
	}
	out, err := c.service.RunMaintenance(ctx)
	storeResult(ctx, out)
	return err
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
