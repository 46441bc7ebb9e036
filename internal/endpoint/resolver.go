package endpoint

import (
	"errors"
	"net"
	"os"
	"strings"

	"degen-dashboard-go/internal/settings"

	"go.uber.org/zap"
)

// EnvBackendURL is the environment variable consulted when no override is pinned.
const EnvBackendURL = "DEGEN_BACKEND_URL"

// Resolver computes the backend base URL from three sources, in strict
// priority order: pinned override, environment variable, host-name heuristic.
// When all three are empty it falls back to the address from the config file.
// Resolution performs no network I/O and always yields a usable endpoint.
type Resolver struct {
	store    settings.Store
	fallback string
	hostFn   func() (string, error)
	logger   *zap.Logger
}

// NewResolver creates a resolver backed by the given settings store.
// fallback is the configured last-resort address.
func NewResolver(store settings.Store, fallback string, logger *zap.Logger) *Resolver {
	return &Resolver{
		store:    store,
		fallback: fallback,
		hostFn:   os.Hostname,
		logger:   logger,
	}
}

// Resolve returns the normalized backend base URL.
// Calling it twice without an intervening Override yields the same result.
func (r *Resolver) Resolve() string {
	if r.store != nil {
		override, err := r.store.LoadEndpointOverride()
		if err != nil {
			// A broken settings store must not leave the dashboard without
			// a target, so we continue down the chain.
			r.logger.Warn("failed to load endpoint override", zap.Error(err))
		} else if normalized := normalize(override); normalized != "" {
			return normalized
		}
	}

	if fromEnv := normalize(os.Getenv(EnvBackendURL)); fromEnv != "" {
		return fromEnv
	}

	if r.hostFn != nil {
		if host, err := r.hostFn(); err == nil {
			if candidate := normalize(hostCandidate(host)); candidate != "" {
				return candidate
			}
		}
	}

	return normalize(r.fallback)
}

// Override pins rawURL so it outranks every other source on the next
// resolution, including across restarts. The value is normalized before
// it is persisted.
func (r *Resolver) Override(rawURL string) error {
	normalized := normalize(rawURL)
	if normalized == "" {
		return errors.New("endpoint override cannot be empty")
	}
	return r.store.SaveEndpointOverride(normalized)
}

// ClearOverride removes the pinned address so resolution falls back to the
// environment variable or the host heuristic.
func (r *Resolver) ClearOverride() error {
	return r.store.ClearEndpointOverride()
}

// normalize enforces a scheme and strips a single trailing slash.
// An empty or whitespace-only input stays empty.
func normalize(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	if !strings.Contains(s, "://") {
		s = "https://" + s
	}
	return strings.TrimSuffix(s, "/")
}

// hostCandidate derives a backend host from the machine's own host name.
// Deployments name the dashboard host dash.X, dashboard.X or www.X next to
// an api.X backend, so those prefixes are swapped. A bare domain gets an
// api. prefix. Undotted names and raw IPs carry no such convention and
// yield no candidate.
func hostCandidate(host string) string {
	host = strings.TrimSpace(host)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	if host == "" || !strings.Contains(host, ".") {
		return ""
	}
	if net.ParseIP(host) != nil {
		return ""
	}

	labels := strings.SplitN(host, ".", 2)
	switch labels[0] {
	case "api":
		return host
	case "dash", "dashboard", "www":
		return "api." + labels[1]
	default:
		return "api." + host
	}
}
