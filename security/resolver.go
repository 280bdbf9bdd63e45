package security

import (
	"context"
	"fmt"
	"sort"
)

// Resolve opens value when it is sealed and returns it unchanged otherwise.
func Resolve(ctx context.Context, provider SecretProvider, value string) (string, error) {
	if !IsSealed(value) {
		return value, nil
	}
	if provider == nil {
		return "", fmt.Errorf("security: sealed value found but no app key is configured")
	}
	return provider.Open(ctx, value)
}

// ResolveAll opens every sealed entry in values in place. Failures name the
// offending key, never the value.
func ResolveAll(ctx context.Context, provider SecretProvider, values map[string]string) error {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		opened, err := Resolve(ctx, provider, values[key])
		if err != nil {
			return fmt.Errorf("security: resolve %s: %w", key, err)
		}
		values[key] = opened
	}
	return nil
}
