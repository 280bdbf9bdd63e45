package command

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	gocmd "github.com/goliatone/go-command"

	"github.com/goliatone/go-messaging/core"
)

func TestIngestCommand_ExecuteDelegatesAndStoresResult(t *testing.T) {
	expected := core.IngestResult{ConversationID: "conv-1", MessageID: "msg-1", AutoReplied: true, Reason: core.IngestReasonReplied}
	called := false
	svc := stubMutatingService{
		ingestFn: func(_ context.Context, channel core.Channel, carrier string, raw core.RawPayload) (core.IngestResult, error) {
			called = true
			if channel != core.ChannelSMS || carrier != "twilio" {
				t.Fatalf("unexpected ingest target %s/%s", channel, carrier)
			}
			if raw.Field("Body") != "hi" {
				t.Fatalf("expected payload to be forwarded, got %+v", raw)
			}
			return expected, nil
		},
	}

	collector := gocmd.NewResult[core.IngestResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewIngestCommand(svc).Execute(ctx, IngestMessage{
		Channel: core.ChannelSMS,
		Carrier: "twilio",
		Payload: core.RawPayload{Fields: map[string][]string{"Body": {"hi"}}},
	})
	if err != nil {
		t.Fatalf("execute ingest: %v", err)
	}
	if !called {
		t.Fatalf("expected ingest service invocation")
	}
	result, ok := collector.Load()
	if !ok {
		t.Fatalf("expected result to be stored")
	}
	if result != expected {
		t.Fatalf("unexpected result: %#v", result)
	}
}

func TestSendCommand_StoresResultOnFailure(t *testing.T) {
	sendErr := errors.New("all providers failed")
	svc := stubMutatingService{
		sendFn: func(_ context.Context, req core.SendRequest, forced string) (core.SendResult, error) {
			if forced != "mailgun" {
				t.Fatalf("expected forced provider mailgun, got %q", forced)
			}
			return core.SendResult{Provider: "mailgun", Attempts: 1, Err: sendErr}, sendErr
		},
	}
	collector := gocmd.NewResult[core.SendResult]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	err := NewSendCommand(svc).Execute(ctx, SendMessage{
		Request:        core.SendRequest{Channel: core.ChannelEmail, To: []string{"a@example.com"}, Body: "x"},
		ForcedProvider: "mailgun",
	})
	if !errors.Is(err, sendErr) {
		t.Fatalf("expected send error, got %v", err)
	}
	result, ok := collector.Load()
	if !ok || result.Provider != "mailgun" || result.Attempts != 1 {
		t.Fatalf("expected failed send result stored, got %#v ok=%v", result, ok)
	}
}

func TestAllowlistCommands_DelegateToService(t *testing.T) {
	t.Run("add", func(t *testing.T) {
		svc := stubMutatingService{
			addAllowlistFn: func(_ context.Context, scope core.AllowlistScope, identifier string, addedBy string) (core.AllowlistEntry, error) {
				return core.AllowlistEntry{Scope: scope, Identifier: identifier, AddedBy: addedBy}, nil
			},
		}
		collector := gocmd.NewResult[core.AllowlistEntry]()
		ctx := gocmd.ContextWithResult(context.Background(), collector)
		if err := NewAddAllowlistEntryCommand(svc).Execute(ctx, AddAllowlistEntryMessage{
			Scope:      core.AllowlistScopeSMS,
			Identifier: "+15550001111",
			AddedBy:    "ops",
		}); err != nil {
			t.Fatalf("add: %v", err)
		}
		entry, ok := collector.Load()
		if !ok || entry.Identifier != "+15550001111" || entry.AddedBy != "ops" {
			t.Fatalf("unexpected stored entry %#v", entry)
		}
	})

	t.Run("remove", func(t *testing.T) {
		called := false
		svc := stubMutatingService{
			removeAllowlistFn: func(_ context.Context, scope core.AllowlistScope, identifier string) error {
				called = true
				if scope != core.AllowlistScopeEmail || identifier != "a@example.com" {
					t.Fatalf("unexpected remove payload %s %s", scope, identifier)
				}
				return nil
			},
		}
		if err := NewRemoveAllowlistEntryCommand(svc).Execute(context.Background(), RemoveAllowlistEntryMessage{
			Scope:      core.AllowlistScopeEmail,
			Identifier: "a@example.com",
		}); err != nil {
			t.Fatalf("remove: %v", err)
		}
		if !called {
			t.Fatalf("expected remove invocation")
		}
	})

	t.Run("clear", func(t *testing.T) {
		var cleared core.AllowlistScope
		svc := stubMutatingService{
			clearAllowlistFn: func(_ context.Context, scope core.AllowlistScope) error {
				cleared = scope
				return nil
			},
		}
		if err := NewClearAllowlistCommand(svc).Execute(context.Background(), ClearAllowlistMessage{Scope: core.AllowlistScopeSMS}); err != nil {
			t.Fatalf("clear: %v", err)
		}
		if cleared != core.AllowlistScopeSMS {
			t.Fatalf("expected sms scope cleared, got %q", cleared)
		}
	})
}

func TestConfigureRateLimitCommand_Delegates(t *testing.T) {
	var gotLimit int
	var gotWindow time.Duration
	svc := stubMutatingService{
		configureRateLimitFn: func(limit int, window time.Duration) error {
			gotLimit, gotWindow = limit, window
			return nil
		},
	}
	if err := NewConfigureRateLimitCommand(svc).Execute(context.Background(), ConfigureRateLimitMessage{Limit: 5, Window: time.Minute}); err != nil {
		t.Fatalf("configure: %v", err)
	}
	if gotLimit != 5 || gotWindow != time.Minute {
		t.Fatalf("unexpected configure args %d %s", gotLimit, gotWindow)
	}
}

func TestRunMaintenanceCommand_StoresReport(t *testing.T) {
	svc := stubMaintenanceService{report: core.MaintenanceReport{ExpiredWindows: 3}}
	collector := gocmd.NewResult[core.MaintenanceReport]()
	ctx := gocmd.ContextWithResult(context.Background(), collector)
	if err := NewRunMaintenanceCommand(svc).Execute(ctx, RunMaintenanceMessage{}); err != nil {
		t.Fatalf("run maintenance: %v", err)
	}
	report, ok := collector.Load()
	if !ok || report.ExpiredWindows != 3 {
		t.Fatalf("expected report stored, got %#v", report)
	}
}

func TestMessages_Validate(t *testing.T) {
	cases := []struct {
		name  string
		msg   interface{ Validate() error }
		valid bool
	}{
		{name: "ingest ok", msg: IngestMessage{Channel: core.ChannelSMS, Carrier: "twilio"}, valid: true},
		{name: "ingest bad channel", msg: IngestMessage{Channel: "fax", Carrier: "twilio"}},
		{name: "ingest no carrier", msg: IngestMessage{Channel: core.ChannelEmail}},
		{name: "send ok", msg: SendMessage{Request: core.SendRequest{Channel: core.ChannelSMS, To: []string{"+1"}, Body: "hi"}}, valid: true},
		{name: "send media only", msg: SendMessage{Request: core.SendRequest{Channel: core.ChannelSMS, To: []string{"+1"}, MediaURLs: []string{"https://m"}}}, valid: true},
		{name: "send no recipient", msg: SendMessage{Request: core.SendRequest{Channel: core.ChannelSMS, Body: "hi"}}},
		{name: "send empty body", msg: SendMessage{Request: core.SendRequest{Channel: core.ChannelSMS, To: []string{"+1"}}}},
		{name: "add ok", msg: AddAllowlistEntryMessage{Scope: core.AllowlistScopeSMS, Identifier: "+1"}, valid: true},
		{name: "add bad scope", msg: AddAllowlistEntryMessage{Scope: "voice", Identifier: "+1"}},
		{name: "remove no identifier", msg: RemoveAllowlistEntryMessage{Scope: core.AllowlistScopeSMS}},
		{name: "clear bad scope", msg: ClearAllowlistMessage{}},
		{name: "rate limit zero", msg: ConfigureRateLimitMessage{Window: time.Second}},
		{name: "rate limit no window", msg: ConfigureRateLimitMessage{Limit: 1}},
		{name: "maintenance", msg: RunMaintenanceMessage{}, valid: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.valid && err != nil {
				t.Fatalf("expected valid message, got %v", err)
			}
			if !tc.valid && err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestMessageTypes_AreNamespaced(t *testing.T) {
	types := []string{
		IngestMessage{}.Type(),
		SendMessage{}.Type(),
		AddAllowlistEntryMessage{}.Type(),
		RemoveAllowlistEntryMessage{}.Type(),
		ClearAllowlistMessage{}.Type(),
		ConfigureRateLimitMessage{}.Type(),
		RunMaintenanceMessage{}.Type(),
	}
	seen := map[string]bool{}
	for _, value := range types {
		if seen[value] {
			t.Fatalf("duplicate message type %q", value)
		}
		seen[value] = true
	}
}

type stubMutatingService struct {
	ingestFn             func(ctx context.Context, channel core.Channel, carrier string, raw core.RawPayload) (core.IngestResult, error)
	sendFn               func(ctx context.Context, req core.SendRequest, forced string) (core.SendResult, error)
	addAllowlistFn       func(ctx context.Context, scope core.AllowlistScope, identifier string, addedBy string) (core.AllowlistEntry, error)
	removeAllowlistFn    func(ctx context.Context, scope core.AllowlistScope, identifier string) error
	clearAllowlistFn     func(ctx context.Context, scope core.AllowlistScope) error
	configureRateLimitFn func(limit int, window time.Duration) error
}

func (s stubMutatingService) Ingest(ctx context.Context, channel core.Channel, carrier string, raw core.RawPayload) (core.IngestResult, error) {
	if s.ingestFn == nil {
		return core.IngestResult{}, fmt.Errorf("ingest not configured")
	}
	return s.ingestFn(ctx, channel, carrier, raw)
}

func (s stubMutatingService) Send(ctx context.Context, req core.SendRequest, forced string) (core.SendResult, error) {
	if s.sendFn == nil {
		return core.SendResult{}, fmt.Errorf("send not configured")
	}
	return s.sendFn(ctx, req, forced)
}

func (s stubMutatingService) AddAllowlistEntry(ctx context.Context, scope core.AllowlistScope, identifier string, addedBy string) (core.AllowlistEntry, error) {
	if s.addAllowlistFn == nil {
		return core.AllowlistEntry{}, fmt.Errorf("add allowlist not configured")
	}
	return s.addAllowlistFn(ctx, scope, identifier, addedBy)
}

func (s stubMutatingService) RemoveAllowlistEntry(ctx context.Context, scope core.AllowlistScope, identifier string) error {
	if s.removeAllowlistFn == nil {
		return fmt.Errorf("remove allowlist not configured")
	}
	return s.removeAllowlistFn(ctx, scope, identifier)
}

func (s stubMutatingService) ClearAllowlist(ctx context.Context, scope core.AllowlistScope) error {
	if s.clearAllowlistFn == nil {
		return fmt.Errorf("clear allowlist not configured")
	}
	return s.clearAllowlistFn(ctx, scope)
}

func (s stubMutatingService) ConfigureRateLimit(limit int, window time.Duration) error {
	if s.configureRateLimitFn == nil {
		return fmt.Errorf("configure rate limit not configured")
	}
	return s.configureRateLimitFn(limit, window)
}

type stubMaintenanceService struct {
	report core.MaintenanceReport
	err    error
}

func (s stubMaintenanceService) RunMaintenance(context.Context) (core.MaintenanceReport, error) {
	return s.report, s.err
}
