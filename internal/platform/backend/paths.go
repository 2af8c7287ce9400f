package backend

import (
	"fmt"
	"sort"
	"strings"
)

// Endpoint names one backend operation.
type Endpoint string

const (
	EndpointCheckImage    Endpoint = "check_parking_image"
	EndpointCheckLocation Endpoint = "check_parking_location"
	EndpointSearch        Endpoint = "search_parking"
	EndpointFollowUp      Endpoint = "followup"
	EndpointHealth        Endpoint = "health"
	EndpointFirebaseToken Endpoint = "firebase_token"
)

// AllEndpoints lists every endpoint the client calls.
var AllEndpoints = []Endpoint{
	EndpointCheckImage,
	EndpointCheckLocation,
	EndpointSearch,
	EndpointFollowUp,
	EndpointHealth,
	EndpointFirebaseToken,
}

// prefixed reports whether the endpoint lives under the API prefix.
func (e Endpoint) prefixed() bool {
	return e != EndpointFirebaseToken
}

// canonical suffixes appended to the API prefix. The token exchange is mounted at the root.
var canonical = map[Endpoint]string{
	EndpointCheckImage:    "/check-parking-image",
	EndpointCheckLocation: "/check-parking-location",
	EndpointSearch:        "/search-parking",
	EndpointFollowUp:      "/followup",
	EndpointHealth:        "/health",
	EndpointFirebaseToken: "/get-firebase-token",
}

// Paths is the resolved path set, one path per endpoint.
type Paths struct {
	prefix string
	paths  map[Endpoint]string
}

// DefaultPaths returns the canonical path set under "/api".
func DefaultPaths() Paths {
	p, _ := NewPaths("/api", nil)
	return p
}

// NewPaths builds the canonical path set under prefix, applies overrides keyed by
// endpoint name, and validates the result.
func NewPaths(prefix string, overrides map[string]string) (Paths, error) {
	prefix = "/" + strings.Trim(strings.TrimSpace(prefix), "/")
	if prefix == "/" {
		prefix = ""
	}
	p := Paths{prefix: prefix, paths: make(map[Endpoint]string, len(canonical))}
	for ep, suffix := range canonical {
		if ep.prefixed() {
			p.paths[ep] = prefix + suffix
		} else {
			p.paths[ep] = suffix
		}
	}
	for name, path := range overrides {
		ep := Endpoint(name)
		if _, ok := canonical[ep]; !ok {
			return Paths{}, fmt.Errorf("unknown backend endpoint override %q", name)
		}
		p.paths[ep] = path
	}
	if err := p.Validate(); err != nil {
		return Paths{}, err
	}
	return p, nil
}

// Path returns the path for an endpoint.
func (p Paths) Path(ep Endpoint) string {
	return p.paths[ep]
}

// Validate rejects missing, unrooted or duplicate paths, and parking endpoints that
// drifted outside the API prefix.
func (p Paths) Validate() error {
	seen := make(map[string]Endpoint, len(p.paths))
	for _, ep := range AllEndpoints {
		path, ok := p.paths[ep]
		if !ok || path == "" {
			return fmt.Errorf("backend path for %s is empty", ep)
		}
		if !strings.HasPrefix(path, "/") {
			return fmt.Errorf("backend path for %s must start with '/': %q", ep, path)
		}
		if other, dup := seen[path]; dup {
			return fmt.Errorf("backend path %q used by both %s and %s", path, other, ep)
		}
		seen[path] = ep
		if ep.prefixed() && p.prefix != "" && !strings.HasPrefix(path, p.prefix+"/") {
			return fmt.Errorf("backend path for %s (%q) is outside API prefix %q", ep, path, p.prefix)
		}
	}
	return nil
}

// Describe lists endpoint=path pairs in a stable order.
func (p Paths) Describe() []string {
	out := make([]string, 0, len(p.paths))
	for ep, path := range p.paths {
		out = append(out, string(ep)+"="+path)
	}
	sort.Strings(out)
	return out
}
