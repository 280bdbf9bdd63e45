package gologger

import (
	"context"
	"io"
	"os"
	"sort"
	"strings"

	charmlog "github.com/charmbracelet/log"
	glog "github.com/goliatone/go-logger/glog"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

type CharmOptions struct {
	Level     string
	Format    string
	Timestamp bool
	Writer    io.Writer
}

// CharmLogger writes messaging logs through charmbracelet/log. Trace is
// reported at debug level.
type CharmLogger struct {
	logger *charmlog.Logger
}

func NewCharmLogger(opts CharmOptions) *CharmLogger {
	writer := opts.Writer
	if writer == nil {
		writer = os.Stderr
	}
	level, err := charmlog.ParseLevel(strings.TrimSpace(strings.ToLower(opts.Level)))
	if err != nil {
		level = charmlog.InfoLevel
	}
	logger := charmlog.NewWithOptions(writer, charmlog.Options{
		Level:           level,
		ReportTimestamp: opts.Timestamp,
	})
	if strings.EqualFold(strings.TrimSpace(opts.Format), FormatJSON) {
		logger.SetFormatter(charmlog.JSONFormatter)
	}
	return &CharmLogger{logger: logger}
}

func (l *CharmLogger) Trace(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *CharmLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }
func (l *CharmLogger) Info(msg string, args ...any)  { l.logger.Info(msg, args...) }
func (l *CharmLogger) Warn(msg string, args ...any)  { l.logger.Warn(msg, args...) }
func (l *CharmLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }
func (l *CharmLogger) Fatal(msg string, args ...any) { l.logger.Fatal(msg, args...) }

func (l *CharmLogger) WithContext(context.Context) glog.Logger {
	return l
}

// WithFields returns a child logger carrying fields in key order.
func (l *CharmLogger) WithFields(fields map[string]any) glog.Logger {
	if len(fields) == 0 {
		return l
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	keyvals := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		keyvals = append(keyvals, key, fields[key])
	}
	return &CharmLogger{logger: l.logger.With(keyvals...)}
}

// CharmProvider hands out loggers prefixed with the requested name.
type CharmProvider struct {
	root *CharmLogger
}

func NewCharmProvider(root *CharmLogger) *CharmProvider {
	return &CharmProvider{root: root}
}

func (p *CharmProvider) GetLogger(name string) glog.Logger {
	if p == nil || p.root == nil {
		return glog.Nop()
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return p.root
	}
	return &CharmLogger{logger: p.root.logger.WithPrefix(name)}
}

var (
	_ glog.Logger         = (*CharmLogger)(nil)
	_ glog.FieldsLogger   = (*CharmLogger)(nil)
	_ glog.LoggerProvider = (*CharmProvider)(nil)
)
