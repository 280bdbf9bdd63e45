package command

import (
	"strings"
	"time"

	"github.com/goliatone/go-messaging/core"
)

const (
	TypeIngestMessage        = "messaging.command.message.ingest"
	TypeSendMessage          = "messaging.command.message.send"
	TypeAddAllowlistEntry    = "messaging.command.allowlist.add"
	TypeRemoveAllowlistEntry = "messaging.command.allowlist.remove"
	TypeClearAllowlist       = "messaging.command.allowlist.clear"
	TypeConfigureRateLimit   = "messaging.command.rate_limit.configure"
	TypeRunMaintenance       = "messaging.command.maintenance.run"
)

type IngestMessage struct {
	Channel core.Channel
	Carrier string
	Payload core.RawPayload
}

func (IngestMessage) Type() string { return TypeIngestMessage }

func (m IngestMessage) Validate() error {
	if !m.Channel.Valid() {
		return commandValidationError("channel", "channel must be sms, voice or email")
	}
	if strings.TrimSpace(m.Carrier) == "" {
		return commandValidationError("carrier", "carrier is required")
	}
	return nil
}

type SendMessage struct {
	Request        core.SendRequest
	ForcedProvider string
}

func (SendMessage) Type() string { return TypeSendMessage }

func (m SendMessage) Validate() error {
	if !m.Request.Channel.Valid() {
		return commandValidationError("channel", "channel must be sms, voice or email")
	}
	if len(m.Request.To) == 0 {
		return commandValidationError("to", "at least one recipient is required")
	}
	if strings.TrimSpace(m.Request.Body) == "" && strings.TrimSpace(m.Request.HTMLBody) == "" && len(m.Request.MediaURLs) == 0 {
		return commandValidationError("body", "body, html body or media is required")
	}
	return nil
}

type AddAllowlistEntryMessage struct {
	Scope      core.AllowlistScope
	Identifier string
	AddedBy    string
}

func (AddAllowlistEntryMessage) Type() string { return TypeAddAllowlistEntry }

func (m AddAllowlistEntryMessage) Validate() error {
	if err := validateScope(m.Scope); err != nil {
		return err
	}
	if strings.TrimSpace(m.Identifier) == "" {
		return commandValidationError("identifier", "identifier is required")
	}
	return nil
}

type RemoveAllowlistEntryMessage struct {
	Scope      core.AllowlistScope
	Identifier string
}

func (RemoveAllowlistEntryMessage) Type() string { return TypeRemoveAllowlistEntry }

func (m RemoveAllowlistEntryMessage) Validate() error {
	if err := validateScope(m.Scope); err != nil {
		return err
	}
	if strings.TrimSpace(m.Identifier) == "" {
		return commandValidationError("identifier", "identifier is required")
	}
	return nil
}

type ClearAllowlistMessage struct {
	Scope core.AllowlistScope
}

func (ClearAllowlistMessage) Type() string { return TypeClearAllowlist }

func (m ClearAllowlistMessage) Validate() error {
	return validateScope(m.Scope)
}

type ConfigureRateLimitMessage struct {
	Limit  int
	Window time.Duration
}

func (ConfigureRateLimitMessage) Type() string { return TypeConfigureRateLimit }

func (m ConfigureRateLimitMessage) Validate() error {
	if m.Limit <= 0 {
		return commandValidationError("limit", "limit must be > 0")
	}
	if m.Window <= 0 {
		return commandValidationError("window", "window must be > 0")
	}
	return nil
}

type RunMaintenanceMessage struct{}

func (RunMaintenanceMessage) Type() string { return TypeRunMaintenance }

func (RunMaintenanceMessage) Validate() error { return nil }

func validateScope(scope core.AllowlistScope) error {
	if !scope.Valid() {
		return commandValidationError("scope", "scope must be email or sms")
	}
	return nil
}
