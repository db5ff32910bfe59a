// Package credentials resolves provider API keys. The environment is checked
// first, in the order of the accepted variable names; the OS keyring is the
// fallback, keyed by the same names under the "agentwire" service.
package credentials

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/zalando/go-keyring"
)

// ServiceName is the keyring service secrets are stored under.
const ServiceName = "agentwire"

// ErrNotFound indicates that no accepted variable yielded a secret.
var ErrNotFound = errors.New("secret not found")

// Options configure a Resolver.
type Options struct {
	// LookupEnv reads the environment; os.LookupEnv by default.
	LookupEnv func(key string) (string, bool)
	// DisableKeyring skips the keyring fallback.
	DisableKeyring bool
	Service        string
}

// Resolver looks up credentials keyed by provider id.
type Resolver struct {
	opts Options
}

// NewResolver creates a Resolver.
func NewResolver(optFns ...func(o *Options)) *Resolver {
	opts := Options{LookupEnv: os.LookupEnv, Service: ServiceName}
	for _, fn := range optFns {
		fn(&opts)
	}
	return &Resolver{opts: opts}
}

// Resolve returns the first non-empty secret among names for provider.
// Failures carry the provider id and the names that were tried.
func (r *Resolver) Resolve(provider string, names []string) (string, error) {
	for _, name := range names {
		if v, ok := r.opts.LookupEnv(name); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v), nil
		}
	}

	if !r.opts.DisableKeyring {
		for _, name := range names {
			secret, err := keyring.Get(r.opts.Service, name)
			if err == nil && secret != "" {
				return secret, nil
			}
			if err != nil && !errors.Is(err, keyring.ErrNotFound) {
				return "", fmt.Errorf("read secret %q for %s: %w", name, provider, err)
			}
		}
	}

	return "", fmt.Errorf("%w: %s (tried %s)", ErrNotFound, provider, strings.Join(names, ", "))
}

// SetSecret stores value under name in the keyring.
func (r *Resolver) SetSecret(name, value string) error {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fmt.Errorf("secret %q cannot be empty", name)
	}
	if err := keyring.Set(r.opts.Service, name, trimmed); err != nil {
		return fmt.Errorf("store secret %q: %w", name, err)
	}
	return nil
}

// DeleteSecret removes name from the keyring.
func (r *Resolver) DeleteSecret(name string) error {
	if err := keyring.Delete(r.opts.Service, name); err != nil {
		if errors.Is(err, keyring.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete secret %q: %w", name, err)
	}
	return nil
}
