package transport

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-messaging/core"
)

// FormRequest builds a POST with an urlencoded body.
func FormRequest(endpoint string, values url.Values, headers map[string]string) core.TransportRequest {
	merged := cloneHeaders(headers)
	merged["Content-Type"] = "application/x-www-form-urlencoded"
	return core.TransportRequest{
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: merged,
		Body:    []byte(values.Encode()),
	}
}

// JSONRequest builds a POST with payload encoded as JSON.
func JSONRequest(endpoint string, payload any, headers map[string]string) (core.TransportRequest, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return core.TransportRequest{}, transportWrapError(
			err,
			goerrors.CategoryBadInput,
			"transport: encode json body",
			http.StatusBadRequest,
			map[string]any{"url": endpoint},
		)
	}
	merged := cloneHeaders(headers)
	merged["Content-Type"] = "application/json"
	merged["Accept"] = "application/json"
	return core.TransportRequest{
		Method:  http.MethodPost,
		URL:     endpoint,
		Headers: merged,
		Body:    body,
	}, nil
}

func BasicAuth(username, password string) map[string]string {
	token := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
	return map[string]string{"Authorization": "Basic " + token}
}

func BearerAuth(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + strings.TrimSpace(token)}
}

// Header looks up a flattened response header case-insensitively.
func Header(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return strings.TrimSpace(value)
	}
	for existing, value := range headers {
		if strings.EqualFold(existing, key) {
			return strings.TrimSpace(value)
		}
	}
	return ""
}

func Successful(statusCode int) bool {
	return statusCode >= 200 && statusCode < 300
}

func JoinURL(base string, parts ...string) string {
	out := strings.TrimRight(strings.TrimSpace(base), "/")
	for _, part := range parts {
		part = strings.Trim(strings.TrimSpace(part), "/")
		if part == "" {
			continue
		}
		out += "/" + part
	}
	return out
}

func cloneHeaders(headers map[string]string) map[string]string {
	out := make(map[string]string, len(headers)+2)
	for key, value := range headers {
		out[key] = value
	}
	return out
}
