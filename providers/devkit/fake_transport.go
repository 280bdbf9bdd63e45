package devkit

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/transport"
)

type TransportScript struct {
	Response core.TransportResponse
	Err      error
}

// Accepted scripts a successful carrier API response with a JSON body.
func Accepted(status int, body string) TransportScript {
	return TransportScript{Response: core.TransportResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       []byte(body),
	}}
}

// Throttled scripts a 429 with the Retry-After hint the REST adapter would
// surface for it.
func Throttled(retryAfter time.Duration) TransportScript {
	return TransportScript{Response: core.TransportResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": strconv.Itoa(int(retryAfter / time.Second))},
		Body:       []byte(`{"message":"Too Many Requests"}`),
		Metadata:   map[string]any{transport.MetadataRetryAfter: retryAfter},
	}}
}

// FakeTransportAdapter stands in for carrier HTTP APIs. Scripts replay in
// order per carrier, repeating the last one once they run out. Calls whose
// carrier has no scripts fall back to the shared scripts, then to a 200.
type FakeTransportAdapter struct {
	mu        sync.Mutex
	kind      string
	scripts   []TransportScript
	byCarrier map[string][]TransportScript
	calls     map[string]int
	requests  []core.TransportRequest
}

func NewFakeTransportAdapter(kind string, scripts ...TransportScript) *FakeTransportAdapter {
	return &FakeTransportAdapter{
		kind:      strings.TrimSpace(strings.ToLower(kind)),
		scripts:   append([]TransportScript(nil), scripts...),
		byCarrier: map[string][]TransportScript{},
		calls:     map[string]int{},
	}
}

// ScriptCarrier queues scripts for calls tagged with carrier.
func (a *FakeTransportAdapter) ScriptCarrier(carrier string, scripts ...TransportScript) *FakeTransportAdapter {
	a.mu.Lock()
	defer a.mu.Unlock()
	carrier = strings.ToLower(strings.TrimSpace(carrier))
	a.byCarrier[carrier] = append(a.byCarrier[carrier], scripts...)
	return a
}

func (a *FakeTransportAdapter) Kind() string {
	if a == nil {
		return ""
	}
	return a.kind
}

func (a *FakeTransportAdapter) Do(_ context.Context, req core.TransportRequest) (core.TransportResponse, error) {
	if a == nil {
		return core.TransportResponse{}, fmt.Errorf("devkit: fake transport adapter is nil")
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	a.requests = append(a.requests, cloneTransportRequest(req))
	carrier := requestCarrier(req)
	scripts, ok := a.byCarrier[carrier]
	if !ok || len(scripts) == 0 {
		carrier, scripts = "", a.scripts
	}
	index := a.calls[carrier]
	a.calls[carrier]++
	if len(scripts) == 0 {
		return core.TransportResponse{
			StatusCode: http.StatusOK,
			Headers:    map[string]string{},
			Body:       []byte(`{}`),
			Metadata:   map[string]any{"kind": a.kind},
		}, nil
	}
	script := scripts[min(index, len(scripts)-1)]
	return cloneTransportResponse(script.Response), script.Err
}

// LastRequest returns the most recent request, if any.
func (a *FakeTransportAdapter) LastRequest() (core.TransportRequest, bool) {
	if a == nil {
		return core.TransportRequest{}, false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.requests) == 0 {
		return core.TransportRequest{}, false
	}
	return cloneTransportRequest(a.requests[len(a.requests)-1]), true
}

func (a *FakeTransportAdapter) Requests() []core.TransportRequest {
	return a.RequestsFor("")
}

// RequestsFor returns the recorded calls tagged with carrier. An empty
// carrier returns every call.
func (a *FakeTransportAdapter) RequestsFor(carrier string) []core.TransportRequest {
	if a == nil {
		return nil
	}
	carrier = strings.ToLower(strings.TrimSpace(carrier))
	a.mu.Lock()
	defer a.mu.Unlock()

	var out []core.TransportRequest
	for _, item := range a.requests {
		if carrier == "" || requestCarrier(item) == carrier {
			out = append(out, cloneTransportRequest(item))
		}
	}
	return out
}

// FormBody decodes the urlencoded body Twilio and Mailgun calls carry.
func FormBody(req core.TransportRequest) (url.Values, error) {
	return url.ParseQuery(string(req.Body))
}

func requestCarrier(req core.TransportRequest) string {
	carrier, _ := req.Metadata[transport.MetadataCarrier].(string)
	return strings.ToLower(strings.TrimSpace(carrier))
}

func cloneTransportRequest(in core.TransportRequest) core.TransportRequest {
	out := in
	out.Headers = cloneStrings(in.Headers)
	out.Query = cloneStrings(in.Query)
	out.Body = append([]byte(nil), in.Body...)
	out.Metadata = cloneAny(in.Metadata)
	return out
}

func cloneTransportResponse(in core.TransportResponse) core.TransportResponse {
	out := in
	out.Headers = cloneStrings(in.Headers)
	out.Body = append([]byte(nil), in.Body...)
	out.Metadata = cloneAny(in.Metadata)
	return out
}

func cloneStrings(in map[string]string) map[string]string {
	if in == nil {
		return map[string]string{}
	}
	return maps.Clone(in)
}

func cloneAny(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	return maps.Clone(in)
}

var _ core.TransportAdapter = (*FakeTransportAdapter)(nil)
