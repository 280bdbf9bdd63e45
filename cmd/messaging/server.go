package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	goerrors "github.com/goliatone/go-errors"

	"github.com/goliatone/go-messaging/core"
	"github.com/goliatone/go-messaging/inbound"
	"github.com/goliatone/go-messaging/webhooks"
)

type healthChecker interface {
	ProviderHealth(ctx context.Context) map[core.Channel]map[string]error
}

// webhookServer accepts carrier callbacks on /webhooks/{channel}/{carrier}
// and hands them to the inbound dispatcher.
type webhookServer struct {
	dispatcher *inbound.Dispatcher
	health     healthChecker
	publicURL  string
	maxBody    int64
	logger     core.Logger
}

type webhookResponse struct {
	ConversationID string `json:"conversation_id,omitempty"`
	MessageID      string `json:"message_id,omitempty"`
	AutoReplied    bool   `json:"auto_replied"`
	Reason         string `json:"reason,omitempty"`
	Deduped        bool   `json:"deduped,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func (s *webhookServer) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /webhooks/{channel}/{carrier}", s.handleWebhook)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	return mux
}

func (s *webhookServer) handleWebhook(w http.ResponseWriter, r *http.Request) {
	req, err := s.inboundRequest(w, r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: core.ServiceErrorBadInput})
		return
	}

	result, err := s.dispatcher.Dispatch(r.Context(), req)
	if err != nil {
		status, body := errorStatus(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("webhook dispatch failed", "channel", string(req.Channel), "carrier", req.Carrier, "error", err.Error())
		} else {
			s.logger.Warn("webhook rejected", "channel", string(req.Channel), "carrier", req.Carrier, "error", err.Error())
		}
		writeJSON(w, status, body)
		return
	}

	status := result.StatusCode
	if status == 0 {
		status = http.StatusOK
	}
	deduped, _ := result.Metadata["deduped"].(bool)
	writeJSON(w, status, webhookResponse{
		ConversationID: result.Ingest.ConversationID,
		MessageID:      result.Ingest.MessageID,
		AutoReplied:    result.Ingest.AutoReplied,
		Reason:         result.Ingest.Reason,
		Deduped:        deduped,
	})
}

func (s *webhookServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	report := map[string]map[string]string{}
	healthy := true
	if s.health != nil {
		for channel, providers := range s.health.ProviderHealth(r.Context()) {
			entries := map[string]string{}
			for name, err := range providers {
				if err != nil {
					healthy = false
					entries[name] = err.Error()
					continue
				}
				entries[name] = "ok"
			}
			report[string(channel)] = entries
		}
	}
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"healthy": healthy, "providers": report})
}

// inboundRequest converts the HTTP request into the carrier neutral shape.
// Form, multipart and JSON bodies are supported.
func (s *webhookServer) inboundRequest(w http.ResponseWriter, r *http.Request) (core.InboundRequest, error) {
	maxBody := s.maxBody
	if maxBody <= 0 {
		maxBody = 10 << 20
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)

	headers := make(map[string]string, len(r.Header))
	for key, values := range r.Header {
		if len(values) > 0 {
			headers[key] = values[0]
		}
	}
	raw := core.RawPayload{Headers: headers}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch {
	case mediaType == "multipart/form-data":
		if err := r.ParseMultipartForm(maxBody); err != nil {
			return core.InboundRequest{}, fmt.Errorf("parse multipart body: %w", err)
		}
		raw.Fields = map[string][]string(r.MultipartForm.Value)
		if len(r.MultipartForm.File) > 0 {
			raw.Files = map[string]core.RawFile{}
			for field, files := range r.MultipartForm.File {
				if len(files) == 0 {
					continue
				}
				raw.Files[field] = core.RawFile{
					Filename:    files[0].Filename,
					ContentType: files[0].Header.Get("Content-Type"),
					Size:        files[0].Size,
				}
			}
		}
	case mediaType == "application/x-www-form-urlencoded":
		if err := r.ParseForm(); err != nil {
			return core.InboundRequest{}, fmt.Errorf("parse form body: %w", err)
		}
		raw.Fields = map[string][]string(r.PostForm)
	default:
		body, err := io.ReadAll(r.Body)
		if err != nil {
			return core.InboundRequest{}, fmt.Errorf("read body: %w", err)
		}
		raw.JSON = body
	}

	return core.InboundRequest{
		Carrier:  r.PathValue("carrier"),
		Channel:  core.Channel(r.PathValue("channel")),
		Headers:  headers,
		Payload:  raw,
		Metadata: map[string]any{webhooks.MetadataRequestURL: s.requestURL(r)},
	}, nil
}

func (s *webhookServer) requestURL(r *http.Request) string {
	if base := strings.TrimRight(strings.TrimSpace(s.publicURL), "/"); base != "" {
		return base + r.URL.RequestURI()
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if forwarded := r.Header.Get("X-Forwarded-Proto"); forwarded != "" {
		scheme = forwarded
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func errorStatus(err error) (int, errorResponse) {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) && rich.Code > 0 {
		return rich.Code, errorResponse{Error: rich.Message, Code: rich.TextCode}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, errorResponse{Error: err.Error()}
	}
	return http.StatusInternalServerError, errorResponse{Error: err.Error(), Code: core.ServiceErrorInternal}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
