package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

// Operation outcomes. Rejected covers errors caused by the caller or the
// carrier payload rather than by messaging itself.
const (
	statusSuccess  = "success"
	statusRejected = "rejected"
	statusFailure  = "failure"
)

// metricTagKeys are the operation fields promoted to metric tags. Every
// messaging counter can be split by channel and carrier.
var metricTagKeys = []string{"channel", "carrier", "provider", "reason", "scope"}

// participantKeys hold phone numbers or email addresses and are masked
// before they reach a log sink.
var participantKeys = map[string]bool{
	"from":       true,
	"to":         true,
	"identifier": true,
}

func (s *Service) observeOperation(
	ctx context.Context,
	startedAt time.Time,
	operation string,
	err error,
	fields map[string]any,
) {
	if s == nil {
		return
	}
	operation = normalizeOperation(operation)
	if operation == "" {
		operation = "unknown"
	}
	duration := time.Since(startedAt).Milliseconds()
	status, code := classifyOutcome(err)

	logFields := maskParticipants(fields)
	logFields["event_type"] = operation
	logFields["status"] = status
	logFields["duration_ms"] = duration
	if err != nil {
		logFields["error"] = err.Error()
		logFields["error_code"] = code
	}

	tags := map[string]string{
		"operation": operation,
		"status":    status,
	}
	for _, key := range metricTagKeys {
		if value, ok := fields[key]; ok && value != nil {
			if text := strings.TrimSpace(fmt.Sprint(value)); text != "" {
				tags[key] = text
			}
		}
	}
	if code != "" {
		tags["error_code"] = code
	}

	s.recordCounter(ctx, "messaging."+operation+".total", 1, tags)
	s.recordHistogram(ctx, "messaging."+operation+".duration_ms", float64(duration), tags)

	switch status {
	case statusFailure:
		s.logError(ctx, operation+" failed", logFields)
	case statusRejected:
		s.logWarn(ctx, operation+" rejected", logFields)
	default:
		s.logInfo(ctx, operation+" succeeded", logFields)
	}
}

// classifyOutcome maps an operation error to a status and its messaging
// error code.
func classifyOutcome(err error) (string, string) {
	if err == nil {
		return statusSuccess, ""
	}
	var rich *goerrors.Error
	if !goerrors.As(err, &rich) {
		rich = serviceErrorMapper(err)
	}
	if rich == nil {
		return statusFailure, ServiceErrorInternal
	}
	switch rich.Category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation, goerrors.CategoryNotFound,
		goerrors.CategoryAuth, goerrors.CategoryAuthz, goerrors.CategoryConflict:
		return statusRejected, rich.TextCode
	default:
		return statusFailure, rich.TextCode
	}
}

// MaskParticipant keeps enough of a phone number or address to correlate
// log lines without recording the full identifier.
func MaskParticipant(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return ""
	}
	if at := strings.LastIndex(value, "@"); at > 0 {
		return value[:1] + "***" + value[at:]
	}
	if len(value) <= 4 {
		return strings.Repeat("*", len(value))
	}
	return strings.Repeat("*", len(value)-4) + value[len(value)-4:]
}

func maskParticipants(fields map[string]any) map[string]any {
	masked := cloneFields(fields)
	for key, value := range masked {
		if !participantKeys[key] {
			continue
		}
		if text, ok := value.(string); ok {
			masked[key] = MaskParticipant(text)
		}
	}
	return masked
}

func (s *Service) logInfo(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "info", message, fields)
}

func (s *Service) logWarn(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "warn", message, fields)
}

func (s *Service) logError(ctx context.Context, message string, fields map[string]any) {
	s.logWithLevel(ctx, "error", message, fields)
}

func (s *Service) logWithLevel(ctx context.Context, level string, message string, fields map[string]any) {
	if s == nil || s.logger == nil {
		return
	}
	logger := s.logger
	if ctx != nil {
		logger = logger.WithContext(ctx)
	}
	if fieldsLogger, ok := logger.(FieldsLogger); ok {
		logger = fieldsLogger.WithFields(cloneFields(fields))
	}
	args := flattenFields(fields)
	switch level {
	case "error":
		logger.Error(message, args...)
	case "warn":
		logger.Warn(message, args...)
	default:
		logger.Info(message, args...)
	}
}

func (s *Service) recordCounter(ctx context.Context, name string, value int64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.IncCounter(ctx, name, value, cloneTags(tags))
}

func (s *Service) recordHistogram(ctx context.Context, name string, value float64, tags map[string]string) {
	if s == nil || s.metricsRecorder == nil {
		return
	}
	s.metricsRecorder.ObserveHistogram(ctx, name, value, cloneTags(tags))
}

func cloneFields(fields map[string]any) map[string]any {
	copied := make(map[string]any, len(fields))
	for key, value := range fields {
		copied[key] = value
	}
	return copied
}

func flattenFields(fields map[string]any) []any {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	args := make([]any, 0, len(keys)*2)
	for _, key := range keys {
		args = append(args, key, fields[key])
	}
	return args
}

func normalizeOperation(operation string) string {
	operation = strings.TrimSpace(strings.ToLower(operation))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(operation)
}
