package devkit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/goliatone/go-messaging/core"
)

type SendScript struct {
	Receipt core.SendReceipt
	Err     error
}

// FakeProvider is a scripted core.Provider. Without scripts every send
// succeeds with a generated message id.
type FakeProvider struct {
	HealthErr error

	mu       sync.Mutex
	name     string
	channels []core.Channel
	scripts  []SendScript
	requests []core.SendRequest
}

func NewFakeProvider(name string, channels []core.Channel, scripts ...SendScript) *FakeProvider {
	if len(channels) == 0 {
		channels = []core.Channel{core.ChannelSMS, core.ChannelEmail}
	}
	return &FakeProvider{
		name:     strings.TrimSpace(strings.ToLower(name)),
		channels: append([]core.Channel(nil), channels...),
		scripts:  append([]SendScript(nil), scripts...),
	}
}

// FailingProvider always fails with a provider send error of the given status.
func FailingProvider(name string, statusCode int) *FakeProvider {
	return NewFakeProvider(name, nil, SendScript{Err: &core.ProviderSendError{
		Provider:   strings.TrimSpace(strings.ToLower(name)),
		StatusCode: statusCode,
		Cause:      fmt.Errorf("devkit: scripted failure"),
	}})
}

func (p *FakeProvider) Name() string {
	return p.name
}

func (p *FakeProvider) Channels() []core.Channel {
	return append([]core.Channel(nil), p.channels...)
}

func (p *FakeProvider) Send(ctx context.Context, req core.SendRequest) (core.SendReceipt, error) {
	if err := ctx.Err(); err != nil {
		return core.SendReceipt{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	p.requests = append(p.requests, req)
	index := len(p.requests) - 1
	switch {
	case index < len(p.scripts):
		return p.scripts[index].Receipt, p.scripts[index].Err
	case len(p.scripts) > 0:
		last := p.scripts[len(p.scripts)-1]
		return last.Receipt, last.Err
	}
	return core.SendReceipt{
		MessageID:  fmt.Sprintf("%s-%d", p.name, len(p.requests)),
		StatusCode: 200,
	}, nil
}

func (p *FakeProvider) HealthCheck(context.Context) error {
	return p.HealthErr
}

func (p *FakeProvider) Requests() []core.SendRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.SendRequest(nil), p.requests...)
}

func (p *FakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.requests)
}

var _ core.ChannelProvider = (*FakeProvider)(nil)
