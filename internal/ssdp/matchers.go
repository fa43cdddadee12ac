package ssdp

// primaryMatchKeys are the attribute keys the matcher index is built on.
// Every matcher must contain at least one of these for indexed lookup;
// matchers without any primary key are never considered (mirrors the
// behaviour of manifest-driven discovery, where the manifest schema
// guarantees at least one primary key).
var primaryMatchKeys = []string{"manufacturer", "st", "deviceType", "nt"}

// Matcher is one integration match dictionary: every key/value pair must be
// present and equal in the observed attribute set for the matcher to fire.
type Matcher map[string]string

// IntegrationMatchers is a precomputed index from (primary key, value) to the
// (domain, matcher) candidates registered under that value. It is built once
// at startup and never mutated afterwards, so lookups need no locking.
type IntegrationMatchers struct {
	// matchByKey[primaryKey][value] -> candidates
	matchByKey map[string]map[string][]matcherCandidate
}

type matcherCandidate struct {
	domain  string
	matcher Matcher
}

// NewIntegrationMatchers builds the index from a map of integration domain to
// its matcher list.
func NewIntegrationMatchers(integrationMatchers map[string][]Matcher) *IntegrationMatchers {
	m := &IntegrationMatchers{
		matchByKey: make(map[string]map[string][]matcherCandidate, len(primaryMatchKeys)),
	}
	for _, key := range primaryMatchKeys {
		byValue := make(map[string][]matcherCandidate)
		m.matchByKey[key] = byValue
		for domain, matchers := range integrationMatchers {
			for _, matcher := range matchers {
				if value := matcher[key]; value != "" {
					byValue[value] = append(byValue[value], matcherCandidate{
						domain:  domain,
						matcher: matcher,
					})
				}
			}
		}
	}
	return m
}

// MatchingDomains returns the set of integration domains whose matcher is
// fully satisfied by the observed attributes. Only candidates indexed under
// primary keys actually present in the attributes are evaluated, and each
// domain is reported at most once.
//
// Attribute lookups are case-insensitive on the key side: attrs is expected
// to be a Headers map (folded keys) merged with description values stored
// under folded keys as well.
func (m *IntegrationMatchers) MatchingDomains(attrs Headers) []string {
	var domains []string
	seen := make(map[string]struct{})
	for key, byValue := range m.matchByKey {
		value := attrs.Get(key)
		if value == "" {
			continue
		}
		for _, cand := range byValue[value] {
			if _, ok := seen[cand.domain]; ok {
				continue
			}
			if matcherSatisfied(cand.matcher, attrs) {
				seen[cand.domain] = struct{}{}
				domains = append(domains, cand.domain)
			}
		}
	}
	return domains
}

// matcherSatisfied reports whether every key/value pair of the matcher is
// present and equal in attrs.
func matcherSatisfied(matcher Matcher, attrs Headers) bool {
	for k, v := range matcher {
		if attrs.Get(k) != v {
			return false
		}
	}
	return true
}
