package ssdp

import "strings"

// MatchAll is the wildcard filter value: the header key must be present but
// may hold any value.
const MatchAll = "*"

// Headers is a case-insensitive header map. Keys are stored lower-cased;
// lookups fold the key before access. SSDP headers are case-insensitive per
// the UPnP device architecture, and device firmware is wildly inconsistent
// about casing in practice.
type Headers map[string]string

// NewHeaders builds a Headers map from a plain map, folding all keys.
func NewHeaders(m map[string]string) Headers {
	h := make(Headers, len(m))
	for k, v := range m {
		h[strings.ToLower(k)] = v
	}
	return h
}

// Get returns the value for key, or "" when absent.
func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

// Has reports whether key is present.
func (h Headers) Has(key string) bool {
	_, ok := h[strings.ToLower(key)]
	return ok
}

// Set stores value under the folded key.
func (h Headers) Set(key, value string) {
	h[strings.ToLower(key)] = value
}

// Clone returns an independent copy.
func (h Headers) Clone() Headers {
	out := make(Headers, len(h))
	for k, v := range h {
		out[k] = v
	}
	return out
}

// Merge copies all entries from other into h, overwriting duplicates.
func (h Headers) Merge(other Headers) {
	for k, v := range other {
		h[k] = v
	}
}

// Matches reports whether h satisfies the filter. Filter keys are folded;
// a filter value of MatchAll requires only that the key be present. An empty
// filter matches everything.
func (h Headers) Matches(filter map[string]string) bool {
	for key, want := range filter {
		if want == MatchAll {
			if !h.Has(key) {
				return false
			}
		} else if h.Get(key) != want {
			return false
		}
	}
	return true
}
