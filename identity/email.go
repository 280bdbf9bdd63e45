package identity

import (
	"net/mail"
	"strings"

	"github.com/goliatone/go-messaging/core"
)

// NormalizeEmail strips any display name and lower-cases the address.
// Values that do not parse as an address are trimmed and lower-cased as is.
func NormalizeEmail(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	if addr, err := mail.ParseAddress(raw); err == nil {
		return strings.ToLower(strings.TrimSpace(addr.Address))
	}
	raw = strings.TrimSuffix(strings.TrimPrefix(raw, "<"), ">")
	return strings.ToLower(strings.TrimSpace(raw))
}

// NormalizeEmailList splits a header style address list and normalizes each
// entry, dropping empties and duplicates.
func NormalizeEmailList(raw string) []string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	var candidates []string
	if list, err := mail.ParseAddressList(raw); err == nil {
		for _, addr := range list {
			candidates = append(candidates, addr.Address)
		}
	} else {
		candidates = strings.Split(raw, ",")
	}
	out := make([]string, 0, len(candidates))
	seen := map[string]struct{}{}
	for _, candidate := range candidates {
		normalized := NormalizeEmail(candidate)
		if normalized == "" {
			continue
		}
		if _, ok := seen[normalized]; ok {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	return out
}

func EmailDomain(addr string) string {
	addr = NormalizeEmail(addr)
	at := strings.LastIndex(addr, "@")
	if at < 0 || at == len(addr)-1 {
		return ""
	}
	return addr[at+1:]
}

// NormalizeIdentifier picks phone or email normalization from the channel.
func NormalizeIdentifier(channel core.Channel, raw string) string {
	if channel == core.ChannelEmail {
		return NormalizeEmail(raw)
	}
	return NormalizePhone(raw)
}

// NormalizeForScope is NormalizeIdentifier keyed by allowlist scope.
func NormalizeForScope(scope core.AllowlistScope, raw string) string {
	if scope == core.AllowlistScopeEmail {
		return NormalizeEmail(raw)
	}
	return NormalizePhone(raw)
}
