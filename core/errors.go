package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	ServiceErrorBadInput           = "MESSAGING_BAD_INPUT"
	ServiceErrorMalformedPayload   = "MESSAGING_MALFORMED_PAYLOAD"
	ServiceErrorNotFound           = "MESSAGING_NOT_FOUND"
	ServiceErrorConflict           = "MESSAGING_CONFLICT"
	ServiceErrorUnauthorized       = "MESSAGING_UNAUTHORIZED"
	ServiceErrorNoProvider         = "MESSAGING_NO_PROVIDER"
	ServiceErrorProviderSendFailed = "MESSAGING_PROVIDER_SEND_FAILED"
	ServiceErrorRateLimited        = "MESSAGING_RATE_LIMITED"
	ServiceErrorNotAllowlisted     = "MESSAGING_NOT_ALLOWLISTED"
	ServiceErrorOperationFailed    = "MESSAGING_OPERATION_FAILED"
	ServiceErrorExternalFailure    = "MESSAGING_EXTERNAL_FAILURE"
	ServiceErrorInternal           = "MESSAGING_INTERNAL_ERROR"
)

var (
	ErrNotFound             = errors.New("core: not found")
	ErrNoProviderConfigured = errors.New("core: no provider configured")
)

// MalformedPayloadError reports a carrier payload missing a required field.
type MalformedPayloadError struct {
	Carrier string
	Channel Channel
	Field   string
}

func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf(
		"core: malformed %s payload from %q: missing field %q",
		e.Channel,
		strings.TrimSpace(e.Carrier),
		strings.TrimSpace(e.Field),
	)
}

func (e *MalformedPayloadError) ToServiceError() *goerrors.Error {
	return goerrors.New(e.Error(), goerrors.CategoryBadInput).
		WithCode(http.StatusBadRequest).
		WithTextCode(ServiceErrorMalformedPayload).
		WithMetadata(map[string]any{
			"carrier": strings.TrimSpace(e.Carrier),
			"channel": string(e.Channel),
			"field":   strings.TrimSpace(e.Field),
		})
}

func NewMalformedPayloadError(carrier string, channel Channel, field string) error {
	return &MalformedPayloadError{Carrier: carrier, Channel: channel, Field: field}
}

// ProviderSendError is the capability level failure of one provider.
// ProviderSendError reports a failed carrier call. RetryAfter is set when
// the carrier throttled the request and said when to try again.
type ProviderSendError struct {
	Provider   string
	StatusCode int
	Headers    map[string]string
	RetryAfter time.Duration
	Cause      error
}

func (e *ProviderSendError) Error() string {
	message := fmt.Sprintf("core: provider %q send failed", strings.TrimSpace(e.Provider))
	if e.StatusCode > 0 {
		message += fmt.Sprintf(" with status %d", e.StatusCode)
	}
	if e.Cause != nil {
		message += ": " + e.Cause.Error()
	}
	return message
}

func (e *ProviderSendError) Unwrap() error {
	return e.Cause
}

func (e *ProviderSendError) ToServiceError() *goerrors.Error {
	metadata := map[string]any{"provider": strings.TrimSpace(e.Provider)}
	if e.StatusCode > 0 {
		metadata["status_code"] = e.StatusCode
	}
	if e.RetryAfter > 0 {
		metadata["retry_after_ms"] = e.RetryAfter.Milliseconds()
	}
	return goerrors.New(e.Error(), goerrors.CategoryExternal).
		WithCode(http.StatusBadGateway).
		WithTextCode(ServiceErrorProviderSendFailed).
		WithMetadata(metadata)
}

func NoProviderConfiguredError(channel Channel) *goerrors.Error {
	return goerrors.Wrap(ErrNoProviderConfigured, goerrors.CategoryOperation, "core: no provider configured").
		WithCode(http.StatusServiceUnavailable).
		WithTextCode(ServiceErrorNoProvider).
		WithMetadata(map[string]any{"channel": string(channel)})
}

type serviceErrorConverter interface {
	ToServiceError() *goerrors.Error
}

func serviceErrorMapper(err error) *goerrors.Error {
	if err == nil {
		return nil
	}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		return ensureServiceErrorEnvelope(richErr)
	}
	var converter serviceErrorConverter
	if errors.As(err, &converter) {
		return ensureServiceErrorEnvelope(converter.ToServiceError())
	}
	if errors.Is(err, ErrNotFound) {
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	}

	msg := strings.ToLower(strings.TrimSpace(err.Error()))
	switch {
	case strings.Contains(msg, "no provider"):
		return newServiceError(err.Error(), goerrors.CategoryOperation, ServiceErrorNoProvider)
	case strings.Contains(msg, "throttl"), strings.Contains(msg, "rate limit"):
		return newServiceError(err.Error(), goerrors.CategoryRateLimit, ServiceErrorRateLimited)
	case strings.Contains(msg, "not found"):
		return newServiceError(err.Error(), goerrors.CategoryNotFound, ServiceErrorNotFound)
	case strings.Contains(msg, "required"), strings.Contains(msg, "invalid"), strings.Contains(msg, "unsupported"):
		return newServiceError(err.Error(), goerrors.CategoryBadInput, ServiceErrorBadInput)
	}

	mapped := goerrors.MapToError(err, goerrors.DefaultErrorMappers())
	return ensureServiceErrorEnvelope(mapped)
}

func newServiceError(message string, category goerrors.Category, textCode string) *goerrors.Error {
	return ensureServiceErrorEnvelope(
		goerrors.New(message, category).
			WithTextCode(textCode),
	)
}

func ensureServiceErrorEnvelope(err *goerrors.Error) *goerrors.Error {
	if err == nil {
		return nil
	}
	if err.Code == 0 {
		err.Code = serviceHTTPStatus(err.Category)
	}
	if strings.TrimSpace(err.TextCode) == "" {
		err.TextCode = defaultServiceTextCode(err.Category)
	}
	if err.Category == goerrors.CategoryInternal && strings.TrimSpace(err.Message) == "" {
		err.Message = "An unexpected error occurred"
	}
	return err
}

func defaultServiceTextCode(category goerrors.Category) string {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return ServiceErrorBadInput
	case goerrors.CategoryNotFound:
		return ServiceErrorNotFound
	case goerrors.CategoryAuth, goerrors.CategoryAuthz:
		return ServiceErrorUnauthorized
	case goerrors.CategoryConflict:
		return ServiceErrorConflict
	case goerrors.CategoryRateLimit:
		return ServiceErrorRateLimited
	case goerrors.CategoryOperation:
		return ServiceErrorOperationFailed
	case goerrors.CategoryExternal:
		return ServiceErrorExternalFailure
	default:
		return ServiceErrorInternal
	}
}

func serviceHTTPStatus(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryBadInput, goerrors.CategoryValidation:
		return http.StatusBadRequest
	case goerrors.CategoryNotFound:
		return http.StatusNotFound
	case goerrors.CategoryAuth:
		return http.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return http.StatusForbidden
	case goerrors.CategoryConflict:
		return http.StatusConflict
	case goerrors.CategoryRateLimit:
		return http.StatusTooManyRequests
	case goerrors.CategoryExternal:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// MapError converts any error into the messaging error envelope.
func MapError(err error) *goerrors.Error {
	return serviceErrorMapper(err)
}
