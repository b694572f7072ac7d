package transport

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"sync"

	"github.com/charmbracelet/log"
)

// Dialer opens a transport for an address of its scheme.
type Dialer func(ctx context.Context, address string, logger *log.Logger) (Transport, error)

var (
	dialers = make(map[string]Dialer)
	mu      sync.RWMutex
)

func init() {
	ws := func(ctx context.Context, address string, logger *log.Logger) (Transport, error) {
		return DialWebSocket(ctx, address, WithLogger(logger))
	}
	Register("ws", ws)
	Register("wss", ws)
}

// Register adds a dialer for a URL scheme.
// Panics if the scheme is already registered.
func Register(scheme string, d Dialer) {
	mu.Lock()
	defer mu.Unlock()

	if _, exists := dialers[scheme]; exists {
		panic(fmt.Sprintf("transport: scheme %q already registered", scheme))
	}
	dialers[scheme] = d
}

// Schemes returns every registered scheme, sorted.
func Schemes() []string {
	mu.RLock()
	defer mu.RUnlock()

	result := make([]string, 0, len(dialers))
	for s := range dialers {
		result = append(result, s)
	}
	sort.Strings(result)
	return result
}

// Dial opens a transport for address using the dialer registered for its scheme.
func Dial(ctx context.Context, address string, logger *log.Logger) (Transport, error) {
	u, err := url.Parse(address)
	if err != nil {
		return nil, fmt.Errorf("transport: parse address %q: %w", address, err)
	}

	mu.RLock()
	d, ok := dialers[u.Scheme]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("transport: unknown scheme %q", u.Scheme)
	}
	return d(ctx, address, logger)
}
