package ssdp

import (
	"sort"
	"testing"
)

func testMatchers() *IntegrationMatchers {
	return NewIntegrationMatchers(map[string][]Matcher{
		"dlna_dms": {
			{"deviceType": "urn:schemas-upnp-org:device:MediaServer:1"},
		},
		"acme_hub": {
			{"manufacturer": "Acme", "st": "urn:Y"},
		},
		"acme_light": {
			{"manufacturer": "Acme"},
			{"manufacturer": "Acme Ltd"},
		},
	})
}

func TestMatchingDomains(t *testing.T) {
	m := testMatchers()

	tests := []struct {
		name  string
		attrs map[string]string
		want  []string
	}{
		{
			name:  "full matcher satisfied",
			attrs: map[string]string{"manufacturer": "Acme", "st": "urn:Y"},
			want:  []string{"acme_hub", "acme_light"},
		},
		{
			name:  "partial matcher not satisfied",
			attrs: map[string]string{"manufacturer": "Acme"},
			want:  []string{"acme_light"},
		},
		{
			name:  "alternate matcher for same domain",
			attrs: map[string]string{"manufacturer": "Acme Ltd"},
			want:  []string{"acme_light"},
		},
		{
			name:  "device type lookup is key-case-insensitive",
			attrs: map[string]string{"devicetype": "urn:schemas-upnp-org:device:MediaServer:1"},
			want:  []string{"dlna_dms"},
		},
		{
			name:  "no primary key present",
			attrs: map[string]string{"server": "something"},
			want:  nil,
		},
		{
			name:  "value mismatch",
			attrs: map[string]string{"manufacturer": "Other"},
			want:  nil,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := m.MatchingDomains(NewHeaders(tt.attrs))
			sort.Strings(got)
			if len(got) != len(tt.want) {
				t.Fatalf("MatchingDomains() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Fatalf("MatchingDomains() = %v, want %v", got, tt.want)
				}
			}
		})
	}
}

func TestMatchingDomainsDedup(t *testing.T) {
	// A domain indexed under several primary keys must be reported once.
	m := NewIntegrationMatchers(map[string][]Matcher{
		"multi": {
			{"manufacturer": "Acme", "st": "urn:Y"},
		},
	})

	got := m.MatchingDomains(NewHeaders(map[string]string{
		"manufacturer": "Acme",
		"st":           "urn:Y",
	}))
	if len(got) != 1 || got[0] != "multi" {
		t.Errorf("MatchingDomains() = %v, want exactly [multi]", got)
	}
}

func TestMatchingDomainsEmptyIndex(t *testing.T) {
	m := NewIntegrationMatchers(nil)

	if got := m.MatchingDomains(NewHeaders(map[string]string{"st": "urn:Y"})); got != nil {
		t.Errorf("MatchingDomains() = %v, want nil", got)
	}
}
