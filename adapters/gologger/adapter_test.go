package gologger

import (
	"bytes"
	"context"
	"strings"
	"testing"

	glog "github.com/goliatone/go-logger/glog"
)

func TestResolveDeterministicFallback(t *testing.T) {
	loggerOnly := &capturingLogger{id: "logger"}
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	var resolvedProvider glog.LoggerProvider
	_, resolved := Resolve("messaging", provider, loggerOnly)
	got := resolved.(*capturingLogger)
	if got.id != "provider" {
		t.Fatalf("expected provider logger precedence, got %q", got.id)
	}

	resolvedProvider, resolved = Resolve("messaging", nil, loggerOnly)
	got = resolved.(*capturingLogger)
	if got.id != "logger" {
		t.Fatalf("expected direct logger when provider is nil, got %q", got.id)
	}
	if resolvedProvider == nil {
		t.Fatalf("expected provider wrapper from logger")
	}

	_, resolved = Resolve("messaging", nil, nil)
	if resolved == nil {
		t.Fatalf("expected nop logger fallback")
	}
}

func TestGoJobBridgeCompatibility(t *testing.T) {
	providerLogger := &capturingLogger{id: "provider"}
	provider := &capturingProvider{logger: providerLogger}

	_, _, jobProvider, jobLogger := ResolveForJob("messaging", provider, nil)
	if jobProvider == nil {
		t.Fatalf("expected go-job provider bridge")
	}
	if jobLogger == nil {
		t.Fatalf("expected go-job logger bridge")
	}

	bridged := jobProvider.GetLogger("messaging")
	bridged.Info("hello", "k", "v")

	captured := providerLogger.lastInfo
	if captured.msg != "hello" {
		t.Fatalf("expected bridged message, got %q", captured.msg)
	}
	if captured.args[0] != "k" || captured.args[1] != "v" {
		t.Fatalf("expected bridged args, got %#v", captured.args)
	}
}

func TestCharmLogger_JSONFieldsAndPrefix(t *testing.T) {
	var buf bytes.Buffer
	root := NewCharmLogger(CharmOptions{Level: "debug", Format: FormatJSON, Writer: &buf})
	provider := NewCharmProvider(root)

	logger := provider.GetLogger("messaging")
	fields, ok := logger.(glog.FieldsLogger)
	if !ok {
		t.Fatalf("expected fields logger, got %T", logger)
	}
	fields.WithFields(map[string]any{"channel": "sms"}).Info("ingest completed", "carrier", "twilio")

	out := buf.String()
	for _, want := range []string{`"msg":"ingest completed"`, `"channel":"sms"`, `"carrier":"twilio"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("expected %s in %s", want, out)
		}
	}
}

func TestCharmLogger_LevelFiltersAndTraceMapsToDebug(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCharmLogger(CharmOptions{Level: "info", Writer: &buf})
	logger.Trace("hidden trace")
	logger.Debug("hidden debug")
	if buf.Len() != 0 {
		t.Fatalf("expected debug output to be filtered, got %q", buf.String())
	}

	buf.Reset()
	verbose := NewCharmLogger(CharmOptions{Level: "debug", Writer: &buf})
	verbose.Trace("visible trace")
	if !strings.Contains(buf.String(), "visible trace") {
		t.Fatalf("expected trace at debug level, got %q", buf.String())
	}
}

func TestCharmLogger_UnknownLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := NewCharmLogger(CharmOptions{Level: "chatty", Writer: &buf})
	logger.Debug("hidden")
	logger.Info("shown")
	if strings.Contains(buf.String(), "hidden") || !strings.Contains(buf.String(), "shown") {
		t.Fatalf("expected info level fallback, got %q", buf.String())
	}
}

var (
	_ glog.Logger         = (*capturingLogger)(nil)
	_ glog.LoggerProvider = (*capturingProvider)(nil)
)

type capturingProvider struct {
	logger *capturingLogger
}

func (p *capturingProvider) GetLogger(string) glog.Logger {
	if p == nil || p.logger == nil {
		return glog.Nop()
	}
	return p.logger
}

type infoCall struct {
	msg  string
	args []any
}

type capturingLogger struct {
	id       string
	lastInfo infoCall
}

func (l *capturingLogger) Trace(string, ...any) {}
func (l *capturingLogger) Debug(string, ...any) {}
func (l *capturingLogger) Warn(string, ...any)  {}
func (l *capturingLogger) Error(string, ...any) {}
func (l *capturingLogger) Fatal(string, ...any) {}

func (l *capturingLogger) Info(msg string, args ...any) {
	l.lastInfo = infoCall{
		msg:  msg,
		args: append([]any(nil), args...),
	}
}

func (l *capturingLogger) WithContext(context.Context) glog.Logger {
	return l
}
