// Package transport sends encoded poses to downstream consumers. Delivery is
// best effort: a failed send is reported to the caller and never retried.
package transport

import (
	"net/url"
	"sort"
	"sync"

	pkgerrors "github.com/pkg/errors"
)

// Transport is an open best-effort channel.
type Transport interface {
	// Send delivers one message.
	Send(payload []byte) error
	Close() error
	// String describes the destination for logs.
	String() string
}

// OpenFunc opens a transport for a parsed URL.
type OpenFunc func(u *url.URL) (Transport, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]OpenFunc{
		"udp":  openUDP,
		"ws":   openWebSocket,
		"mqtt": openMQTT,
	}
)

// Register makes a transport available under a URL scheme. Packages with
// native dependencies register themselves from init.
func Register(scheme string, open OpenFunc) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[scheme] = open
}

// Schemes lists the registered URL schemes.
func Schemes() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	out := make([]string, 0, len(registry))
	for s := range registry {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// Open parses rawURL and opens the transport registered for its scheme.
func Open(rawURL string) (Transport, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "invalid transport url %q", rawURL)
	}
	registryMu.RLock()
	open, ok := registry[u.Scheme]
	registryMu.RUnlock()
	if !ok {
		return nil, pkgerrors.Errorf("unsupported transport scheme %q (supported: %v)", u.Scheme, Schemes())
	}
	t, err := open(u)
	if err != nil {
		return nil, pkgerrors.Wrapf(err, "failed to open transport %s", rawURL)
	}
	return t, nil
}
