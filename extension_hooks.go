package messaging

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/goliatone/go-messaging/core"
)

// ProviderPack groups carrier entries that are registered together on one
// channel.
type ProviderPack struct {
	Name    string
	Channel core.Channel
	Entries []core.ProviderEntry
}

type ProviderRegistrar interface {
	RegisterProvider(channel core.Channel, entry core.ProviderEntry) error
}

type CommandQueryBundleFactory func(service CommandQueryService) (any, error)

type ExtensionHooks struct {
	mu sync.RWMutex

	providerPacks map[string]ProviderPack
	bundles       map[string]CommandQueryBundleFactory
}

func NewExtensionHooks() *ExtensionHooks {
	return &ExtensionHooks{
		providerPacks: map[string]ProviderPack{},
		bundles:       map[string]CommandQueryBundleFactory{},
	}
}

func (h *ExtensionHooks) RegisterProviderPack(pack ProviderPack) error {
	if h == nil {
		return fmt.Errorf("messaging: extension hooks are nil")
	}
	name := strings.TrimSpace(pack.Name)
	if name == "" {
		return fmt.Errorf("messaging: provider pack name is required")
	}
	if !pack.Channel.Valid() {
		return fmt.Errorf("messaging: provider pack %q has unsupported channel %q", name, pack.Channel)
	}
	if len(pack.Entries) == 0 {
		return fmt.Errorf("messaging: provider pack %q has no providers", name)
	}

	normalized := ProviderPack{
		Name:    name,
		Channel: pack.Channel,
		Entries: append([]core.ProviderEntry(nil), pack.Entries...),
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.providerPacks[name]; exists {
		return fmt.Errorf("messaging: provider pack %q already registered", name)
	}
	h.providerPacks[name] = normalized
	return nil
}

func (h *ExtensionHooks) RegisterCommandQueryBundle(
	name string,
	factory CommandQueryBundleFactory,
) error {
	if h == nil {
		return fmt.Errorf("messaging: extension hooks are nil")
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("messaging: command/query bundle name is required")
	}
	if factory == nil {
		return fmt.Errorf("messaging: command/query bundle %q factory is required", name)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.bundles[name]; exists {
		return fmt.Errorf("messaging: command/query bundle %q already registered", name)
	}
	h.bundles[name] = factory
	return nil
}

// ApplyProviderPacks registers every pack entry in pack name order and stops
// at the first rejected entry.
func (h *ExtensionHooks) ApplyProviderPacks(registrar ProviderRegistrar) error {
	if h == nil {
		return nil
	}
	if registrar == nil {
		return fmt.Errorf("messaging: provider registrar is required")
	}

	for _, pack := range h.ProviderPacks() {
		for _, entry := range pack.Entries {
			if entry.Provider == nil {
				return fmt.Errorf("messaging: provider pack %q contains nil provider", pack.Name)
			}
			if err := registrar.RegisterProvider(pack.Channel, entry); err != nil {
				return fmt.Errorf("messaging: provider pack %q: %w", pack.Name, err)
			}
		}
	}
	return nil
}

func (h *ExtensionHooks) BuildCommandQueryBundles(
	service CommandQueryService,
) (map[string]any, error) {
	if h == nil {
		return map[string]any{}, nil
	}
	if service == nil {
		return nil, fmt.Errorf("messaging: command/query service is required")
	}

	h.mu.RLock()
	factories := make(map[string]CommandQueryBundleFactory, len(h.bundles))
	for name, factory := range h.bundles {
		factories[name] = factory
	}
	h.mu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make(map[string]any, len(names))
	for _, name := range names {
		bundle, err := factories[name](service)
		if err != nil {
			return nil, err
		}
		result[name] = bundle
	}
	return result, nil
}

func (h *ExtensionHooks) ProviderPacks() []ProviderPack {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()

	names := make([]string, 0, len(h.providerPacks))
	for name := range h.providerPacks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]ProviderPack, 0, len(names))
	for _, name := range names {
		pack := h.providerPacks[name]
		out = append(out, ProviderPack{
			Name:    pack.Name,
			Channel: pack.Channel,
			Entries: append([]core.ProviderEntry(nil), pack.Entries...),
		})
	}
	return out
}

func (h *ExtensionHooks) BundleNames() []string {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	names := make([]string, 0, len(h.bundles))
	for name := range h.bundles {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

var _ ProviderRegistrar = (*core.Service)(nil)
