package backendbridge

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
)

// ErrBackendNotConfigured is wrapped by selector errors for missing or invalid addresses.
var ErrBackendNotConfigured = errors.New("backend address not configured")

// ConfigSelector switches between the real backend and a substitute one
// (a local mock server during development and tests). Addresses are validated
// once at construction; Resolve only reads an atomic flag.
type ConfigSelector struct {
	primary    target
	substitute target

	useSubstitute atomic.Bool
}

type target struct {
	base string
	err  error
}

func NewConfigSelector(primary, substitute string, useSubstitute bool) *ConfigSelector {
	s := &ConfigSelector{
		primary:    newTarget("primary", primary),
		substitute: newTarget("substitute", substitute),
	}
	s.useSubstitute.Store(useSubstitute)
	return s
}

func newTarget(name, raw string) target {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return target{err: fmt.Errorf("%w: %s backend url is empty", ErrBackendNotConfigured, name)}
	}
	u, err := url.Parse(raw)
	if err != nil {
		return target{err: fmt.Errorf("%w: %s backend url: %v", ErrBackendNotConfigured, name, err)}
	}
	if u.Scheme == "" || u.Host == "" {
		return target{err: fmt.Errorf("%w: %s backend url %q needs scheme and host", ErrBackendNotConfigured, name, raw)}
	}
	return target{base: strings.TrimRight(raw, "/")}
}

// Resolve returns the base URL traffic should go to right now.
func (s *ConfigSelector) Resolve() (string, error) {
	t := s.primary
	if s.useSubstitute.Load() {
		t = s.substitute
	}
	return t.base, t.err
}

// SetUseSubstitute redirects all subsequent calls.
func (s *ConfigSelector) SetUseSubstitute(v bool) { s.useSubstitute.Store(v) }

func (s *ConfigSelector) UsingSubstitute() bool { return s.useSubstitute.Load() }
