// Package pool holds the shared, mutable forwarding state: the descriptor
// list discovered at startup and the set of live Tunnels opened on demand.
// It is the single lock boundary shared between request handlers and the
// periodic maintenance task.
package pool

import (
	"context"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/datawire/dlib/dlog"

	"github.com/nais/devproxy/pkg/client/discovery"
	"github.com/nais/devproxy/pkg/client/errkind"
	"github.com/nais/devproxy/pkg/client/ingress"
	"github.com/nais/devproxy/pkg/client/tunnel"
)

// nextUpdateInterval is the cadence at which nextUpdate is advanced. It is
// currently unused beyond bookkeeping: re-discovery is not implemented in
// this revision.
const nextUpdateInterval = 120 * time.Second

var hostPattern = regexp.MustCompile(`https?://(.[^/]+)(:?/.*)?`)

// State is the pool of descriptors and active tunnels. The zero value is
// not usable; build one with New.
type State struct {
	mu sync.Mutex

	hosts      []discovery.Descriptor
	tunnels    []*tunnel.Tunnel
	nextUpdate time.Time
}

// New builds a State by discovering descriptors over the cross product of
// contexts and namespaces. The tunnel set starts
// empty.
func New(ctx context.Context, contexts, namespaces []string) (*State, error) {
	descriptors, err := discovery.FetchAll(ctx, contexts, namespaces)
	if err != nil {
		return nil, err
	}
	return &State{
		hosts:      descriptors,
		tunnels:    nil,
		nextUpdate: time.Now().Add(nextUpdateInterval),
	}, nil
}

// Hostnames returns the sorted, de-duplicated set of hostnames extracted
// from every descriptor's ingresses. Callers use this to
// mirror hosts into the hosts file at startup.
func (s *State) Hostnames() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]struct{})
	for _, descriptor := range s.hosts {
		for _, ingress := range descriptor.Ingresses {
			m := hostPattern.FindStringSubmatch(ingress)
			if m == nil {
				continue
			}
			seen[m[1]] = struct{}{}
		}
	}

	hosts := make([]string, 0, len(seen))
	for h := range seen {
		hosts = append(hosts, h)
	}
	sort.Strings(hosts)
	return hosts
}

// FetchAddress resolves (host, path) to a tunnel endpoint, spawning a new
// Tunnel if none of the active ones already serve the winning ingress.
// It returns (zero, false, nil) when nothing matches.
func (s *State) FetchAddress(ctx context.Context, host, path string) (tunnel.Portforward, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	match, ok := ingress.Resolve(s.hosts, host, path)
	if !ok {
		return tunnel.Portforward{}, false, nil
	}

	for _, t := range s.tunnels {
		if t.ContainsIngress(match.Ingress) {
			t.RefreshTTL()
			return t.Portforward(), true, nil
		}
	}

	t, err := tunnel.Open(ctx, match.Descriptor)
	if err != nil {
		return tunnel.Portforward{}, false, errkind.TunnelOpenFailed.New(err)
	}
	s.tunnels = append(s.tunnels, t)
	return t.Portforward(), true, nil
}

// Tick probes every active tunnel and evicts the dead or expired ones.
// It also advances nextUpdate when it has fallen into
// the past; nothing currently reacts to that beyond the bookkeeping itself,
// which is reserved for future periodic re-discovery.
func (s *State) Tick(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.nextUpdate.Before(time.Now()) {
		s.nextUpdate = time.Now().Add(nextUpdateInterval)
	}

	kept := make([]*tunnel.Tunnel, 0, len(s.tunnels))
	for i := len(s.tunnels) - 1; i >= 0; i-- {
		t := s.tunnels[i]
		if t.Tick(ctx) {
			kept = append(kept, t)
			continue
		}
		if err := t.Close(ctx); err != nil {
			dlog.Errorf(ctx, "error closing evicted tunnel: %v", err)
		}
	}
	s.tunnels = kept
}

// Len reports how many tunnels are currently active. Exposed for tests and
// for the pool size gauge exported over /metrics.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tunnels)
}
