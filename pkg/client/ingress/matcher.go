// Package ingress implements longest-prefix-match resolution of a request's
// host and path against a set of discovered application ingresses.
package ingress

import (
	"net/url"
	"strings"

	"github.com/nais/devproxy/pkg/client/discovery"
)

// BestIngress returns the ingress string of descriptor that best matches
// (host, path), or "" if none match. Ingresses that fail to parse as a URI
// are skipped. A match requires an exact (case-sensitive) host match; among
// matches, the one whose URI path is the longest prefix of path wins. An
// empty URI path matches every path.
func BestIngress(descriptor discovery.Descriptor, host, path string) string {
	best := ""
	bestLen := -1
	for _, ingress := range descriptor.Ingresses {
		u, err := url.Parse(ingress)
		if err != nil {
			continue
		}
		if u.Hostname() != host {
			continue
		}
		if !strings.HasPrefix(path, u.Path) {
			continue
		}
		if len(u.Path) > bestLen {
			best = ingress
			bestLen = len(u.Path)
		}
	}
	return best
}

// Match pairs a winning ingress with the descriptor it came from.
type Match struct {
	Ingress    string
	Descriptor discovery.Descriptor
}

// Resolve finds, across all descriptors, the (ingress, descriptor) pair
// that best matches (host, path). Per descriptor, the longest URI-path
// prefix wins (BestIngress); across descriptors, the longest ingress
// string (by byte length) wins, as a coarse tie-break between apps that
// declare overlapping hosts. Returns false if nothing
// matches.
func Resolve(descriptors []discovery.Descriptor, host, path string) (Match, bool) {
	best := Match{}
	bestLen := -1
	found := false
	for _, descriptor := range descriptors {
		ingress := BestIngress(descriptor, host, path)
		if ingress == "" {
			continue
		}
		if len(ingress) > bestLen {
			best = Match{Ingress: ingress, Descriptor: descriptor}
			bestLen = len(ingress)
			found = true
		}
	}
	return best, found
}
