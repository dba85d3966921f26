// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package policy

import (
	"fmt"
	"net"
	"net/netip"
	"sort"
)

// ============================================================================
// REGION RESOLUTION
// ============================================================================

// RegionResolver maps a network address to a region code. An empty string
// means the region could not be determined.
//
// Implementations must be safe for concurrent use. A GeoIP-database-backed
// resolver satisfies this interface the same way the static one does.
type RegionResolver interface {
	Resolve(networkAddr string) string
}

// ResolverFunc adapts a function to the RegionResolver interface.
type ResolverFunc func(networkAddr string) string

func (f ResolverFunc) Resolve(networkAddr string) string { return f(networkAddr) }

// StaticResolver resolves addresses against a fixed table of exact IPs and
// CIDR prefixes. Exact matches win over prefix matches; among prefixes the
// longest one wins.
type StaticResolver struct {
	exact    map[string]string
	prefixes []prefixRegion
}

type prefixRegion struct {
	prefix netip.Prefix
	region string
}

// Compile-time interface checks
var (
	_ RegionResolver = (*StaticResolver)(nil)
	_ RegionResolver = (ResolverFunc)(nil)
)

// NewStaticResolver builds a resolver from a map of "IP or CIDR" -> region.
func NewStaticResolver(table map[string]string) (*StaticResolver, error) {
	r := &StaticResolver{exact: make(map[string]string)}
	for key, region := range table {
		if prefix, err := netip.ParsePrefix(key); err == nil {
			r.prefixes = append(r.prefixes, prefixRegion{prefix: prefix, region: region})
			continue
		}
		addr, err := netip.ParseAddr(key)
		if err != nil {
			return nil, fmt.Errorf("invalid address or CIDR %q: %w", key, err)
		}
		r.exact[addr.String()] = region
	}
	// Longest prefix first so the first hit is the most specific.
	sort.Slice(r.prefixes, func(i, j int) bool {
		return r.prefixes[i].prefix.Bits() > r.prefixes[j].prefix.Bits()
	})
	return r, nil
}

// Resolve maps a network address (optionally host:port) to a region code.
func (r *StaticResolver) Resolve(networkAddr string) string {
	if networkAddr == "" {
		return ""
	}
	host := networkAddr
	if h, _, err := net.SplitHostPort(networkAddr); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if region, ok := r.exact[addr.String()]; ok {
		return region
	}
	for _, pr := range r.prefixes {
		if pr.prefix.Contains(addr) {
			return pr.region
		}
	}
	return ""
}

// ============================================================================
// GEOGRAPHIC TIERS
// ============================================================================

// GeoTier caps how much capacity a region may consume. WindowMs of zero
// keeps the base window.
type GeoTier struct {
	Name        string
	MaxRequests int64
	WindowMs    int64
}

// GeoPolicy merges a region tier into a base limit. The merge is
// conservative: whichever of the base capacity and the tier ceiling is
// smaller wins.
type GeoPolicy struct {
	resolver    RegionResolver
	tiers       map[string]GeoTier
	fallback    GeoTier
	restrictive GeoTier
}

// NewGeoPolicy creates a geographic policy layer. Tiers are keyed by region
// code; fallbackTier names the tier applied to unknown regions.
func NewGeoPolicy(resolver RegionResolver, tiers map[string]GeoTier, fallbackTier string) (*GeoPolicy, error) {
	if resolver == nil {
		return nil, fmt.Errorf("region resolver is required")
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("at least one tier is required")
	}

	named := make(map[string]GeoTier, len(tiers))
	for region, tier := range tiers {
		if tier.MaxRequests <= 0 {
			return nil, fmt.Errorf("tier %q: max_requests must be positive", region)
		}
		tier.Name = region
		named[region] = tier
	}

	fallback, ok := named[fallbackTier]
	if !ok {
		return nil, fmt.Errorf("fallback tier %q is not a configured tier", fallbackTier)
	}

	return &GeoPolicy{
		resolver:    resolver,
		tiers:       named,
		fallback:    fallback,
		restrictive: mostRestrictive(named),
	}, nil
}

// TierFor resolves the address and returns the matching tier. Unknown or
// unresolvable regions get the fallback tier, never the unrestricted base.
func (g *GeoPolicy) TierFor(networkAddr string) GeoTier {
	region := g.resolver.Resolve(networkAddr)
	if tier, ok := g.tiers[region]; ok {
		return tier
	}
	return g.fallback
}

// MostRestrictive returns the tier with the smallest ceiling. Applied when
// the caller cannot attribute the request to an identity or address.
func (g *GeoPolicy) MostRestrictive() GeoTier {
	return g.restrictive
}

func mostRestrictive(tiers map[string]GeoTier) GeoTier {
	var out GeoTier
	for _, tier := range tiers {
		if out.Name == "" || tier.MaxRequests < out.MaxRequests ||
			(tier.MaxRequests == out.MaxRequests && tier.Name < out.Name) {
			out = tier
		}
	}
	return out
}
