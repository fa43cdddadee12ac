package ssdp

import "strings"

// Change classifies a device or service transition.
type Change int

const (
	// ChangeAlive is an alive advertisement or a search response.
	ChangeAlive Change = iota
	// ChangeByeBye is a byebye advertisement; the device is leaving.
	ChangeByeBye
	// ChangeUpdate is an update advertisement (changed location or bootid).
	ChangeUpdate
)

// String returns the wire-friendly name of the change kind.
func (c Change) String() string {
	switch c {
	case ChangeAlive:
		return "alive"
	case ChangeByeBye:
		return "byebye"
	case ChangeUpdate:
		return "update"
	default:
		return "unknown"
	}
}

// ServiceInfo is an immutable snapshot of a discovered service: the SSDP
// identity headers plus the (possibly empty) UPnP description fetched from
// the device's location URL.
//
// ST is always non-empty after construction; when a NOTIFY carried only NT,
// the NT value is used.
type ServiceInfo struct {
	// USN is the unique service name, e.g. "uuid:abc::urn:schemas-upnp-org:device:MediaServer:1".
	USN string `json:"usn"`
	// ST is the search target (falls back to NT for advertisements).
	ST string `json:"st"`
	// NT is the notification type, if the message was an advertisement.
	NT string `json:"nt,omitempty"`
	// EXT is the extension acknowledgement header.
	EXT string `json:"ext,omitempty"`
	// Server is the device's SERVER header.
	Server string `json:"server,omitempty"`
	// Location is the device-description URL, if announced.
	Location string `json:"location,omitempty"`
	// UDN is the unique device name derived from the headers.
	UDN string `json:"udn,omitempty"`
	// Headers is the combined raw header set (case-insensitive keys).
	Headers Headers `json:"headers"`
	// Description is the flattened device description, keyed by the UPnP
	// attribute names (friendlyName, manufacturer, deviceType, UDN, ...).
	// Empty when the fetch failed or no location was announced.
	Description map[string]string `json:"description"`
	// MatchingDomains lists the integration domains whose matcher was
	// satisfied by this event. Empty for search-triggered events.
	MatchingDomains []string `json:"matching_domains,omitempty"`
}

// UDNFromUSN extracts the UDN portion of a USN. A USN of the form
// "uuid:ABC::urn:foo" yields "uuid:ABC"; a USN not starting with "uuid:"
// yields "".
func UDNFromUSN(usn string) string {
	if !strings.HasPrefix(usn, "uuid:") {
		return ""
	}
	udn, _, _ := strings.Cut(usn, "::")
	return udn
}

// descriptionUDNKey is the UPnP attribute name for the device UDN.
const descriptionUDNKey = "UDN"

// infoFromHeadersAndDescription combines a device's headers with its parsed
// description into a ServiceInfo. The description's UDN is populated from the
// USN when the device description omits it.
func infoFromHeadersAndDescription(headers Headers, description map[string]string) ServiceInfo {
	desc := make(map[string]string, len(description)+1)
	for k, v := range description {
		desc[k] = v
	}

	// Either ST (search response) or NT (advertisement) is mandatory;
	// normalise on ST so consumers have a single lookup key.
	st := headers.Get("st")
	if st == "" {
		st = headers.Get("nt")
	}

	usn := headers.Get("usn")
	if _, ok := desc[descriptionUDNKey]; !ok {
		if udn := UDNFromUSN(usn); udn != "" {
			desc[descriptionUDNKey] = udn
		}
	}

	return ServiceInfo{
		USN:         usn,
		ST:          st,
		NT:          headers.Get("nt"),
		EXT:         headers.Get("ext"),
		Server:      headers.Get("server"),
		Location:    headers.Get("location"),
		UDN:         headers.Get("_udn"),
		Headers:     headers.Clone(),
		Description: desc,
	}
}
