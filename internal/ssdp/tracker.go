package ssdp

import (
	"strconv"
	"strings"
	"sync"
	"time"
)

// defaultMaxAge is the advertisement lifetime assumed when a device sends no
// CACHE-CONTROL header. UPnP 2.0 mandates max-age >= 1800 but cheap firmware
// often omits the header entirely.
const defaultMaxAge = 1800 * time.Second

// Source classifies how a device change was observed.
type Source int

const (
	// SourceSearchAlive is a search response repeating known headers.
	SourceSearchAlive Source = iota
	// SourceSearchChanged is a search response with changed headers.
	SourceSearchChanged
	// SourceAdvertisementAlive is an ssdp:alive NOTIFY.
	SourceAdvertisementAlive
	// SourceAdvertisementByeBye is an ssdp:byebye NOTIFY.
	SourceAdvertisementByeBye
	// SourceAdvertisementUpdate is an ssdp:update NOTIFY.
	SourceAdvertisementUpdate
)

// Change maps the observation source onto the three externally visible change
// kinds.
func (s Source) Change() Change {
	switch s {
	case SourceAdvertisementByeBye:
		return ChangeByeBye
	case SourceAdvertisementUpdate:
		return ChangeUpdate
	default:
		return ChangeAlive
	}
}

// IsSearch reports whether the observation came from an M-SEARCH response
// rather than an unsolicited advertisement.
func (s Source) IsSearch() bool {
	return s == SourceSearchAlive || s == SourceSearchChanged
}

// Device is one tracked UPnP device, keyed by UDN. A device advertises
// several service types (ST for search responses, NT for advertisements);
// the tracker keeps the latest header set per type.
type Device struct {
	// UDN is the unique device name ("uuid:...").
	UDN string
	// Location is the most recently announced description URL.
	Location string
	// LastSeen is the time of the last observation of any type.
	LastSeen time.Time
	// BootID is the last parsed BOOTID.UPNP.ORG value, or -1 when the
	// device never sent one.
	BootID int

	validTo       time.Time
	searchHeaders map[string]Headers // by ST
	advertHeaders map[string]Headers // by NT
}

func newDevice(udn string) *Device {
	return &Device{
		UDN:           udn,
		BootID:        -1,
		searchHeaders: make(map[string]Headers),
		advertHeaders: make(map[string]Headers),
	}
}

// CombinedHeaders returns the merged header set for one service type. Search
// headers take precedence over advertisement headers for the same key, since
// search responses are the fresher unicast observation. The device UDN is
// injected under the synthetic "_udn" key.
func (d *Device) CombinedHeaders(serviceType string) Headers {
	combined := make(Headers)
	if h, ok := d.advertHeaders[serviceType]; ok {
		combined.Merge(h)
	}
	if h, ok := d.searchHeaders[serviceType]; ok {
		combined.Merge(h)
	}
	combined.Set("_udn", d.UDN)
	return combined
}

// AllCombinedHeaders returns the combined header set for every service type
// the device has been seen under.
func (d *Device) AllCombinedHeaders() map[string]Headers {
	types := make(map[string]struct{}, len(d.searchHeaders)+len(d.advertHeaders))
	for st := range d.searchHeaders {
		types[st] = struct{}{}
	}
	for nt := range d.advertHeaders {
		types[nt] = struct{}{}
	}
	out := make(map[string]Headers, len(types))
	for t := range types {
		out[t] = d.CombinedHeaders(t)
	}
	return out
}

// serviceTypeCount is the number of service types the device is known under.
func (d *Device) serviceTypeCount() int {
	count := len(d.advertHeaders)
	for st := range d.searchHeaders {
		if _, ok := d.advertHeaders[st]; !ok {
			count++
		}
	}
	return count
}

// observe refreshes the shared bookkeeping from a new header set. fallback
// is the advertisement lifetime assumed when CACHE-CONTROL is absent.
func (d *Device) observe(headers Headers, now time.Time, fallback time.Duration) {
	d.LastSeen = now
	d.validTo = now.Add(maxAgeFrom(headers, fallback))
	if location := headers.Get("location"); location != "" {
		d.Location = location
	}
	if raw := headers.Get("BOOTID.UPNP.ORG"); raw != "" {
		// Malformed bootid headers are ignored; discovery is best-effort.
		if bootID, err := strconv.Atoi(raw); err == nil {
			d.BootID = bootID
		}
	}
}

// maxAgeFrom parses CACHE-CONTROL "max-age=N"; falls back to fallback.
func maxAgeFrom(headers Headers, fallback time.Duration) time.Duration {
	cc := headers.Get("cache-control")
	for _, part := range strings.Split(cc, ",") {
		part = strings.TrimSpace(strings.ToLower(part))
		if value, ok := strings.CutPrefix(part, "max-age="); ok {
			if secs, err := strconv.Atoi(strings.TrimSpace(value)); err == nil && secs > 0 {
				return time.Duration(secs) * time.Second
			}
		}
	}
	return fallback
}

// DeviceTracker is the device table shared by all listeners. All methods are
// safe for concurrent use.
type DeviceTracker struct {
	mu      sync.Mutex
	devices map[string]*Device
	maxAge  time.Duration // fallback lifetime when CACHE-CONTROL is absent

	now func() time.Time // test hook
}

// NewDeviceTracker creates an empty tracker.
func NewDeviceTracker() *DeviceTracker {
	return &DeviceTracker{
		devices: make(map[string]*Device),
		maxAge:  defaultMaxAge,
		now:     time.Now,
	}
}

// Devices returns a snapshot of all currently tracked devices.
func (t *DeviceTracker) Devices() []*Device {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]*Device, 0, len(t.devices))
	for _, d := range t.devices {
		out = append(out, d)
	}
	return out
}

// SeeSearch records an M-SEARCH response. Returns the device, the service
// type (ST) the response was for, and whether the headers changed since the
// last observation of that type. ok is false when the message lacks a usable
// USN.
func (t *DeviceTracker) SeeSearch(headers Headers) (device *Device, serviceType string, source Source, ok bool) {
	usn := headers.Get("usn")
	udn := UDNFromUSN(usn)
	st := headers.Get("st")
	if udn == "" || st == "" {
		return nil, "", 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked()

	device = t.deviceLocked(udn)
	source = SourceSearchAlive
	if prev, seen := device.searchHeaders[st]; !seen || headersDiffer(prev, headers) {
		source = SourceSearchChanged
	}
	device.searchHeaders[st] = headers.Clone()
	device.observe(headers, t.now(), t.maxAge)
	return device, st, source, true
}

// SeeAdvertisement records a NOTIFY. The NTS header selects the transition:
// ssdp:alive refreshes the device, ssdp:update refreshes it and reports an
// update, ssdp:byebye removes the service type (and the whole device once no
// types remain). ok is false for messages without usable identity headers or
// with an unknown NTS value.
func (t *DeviceTracker) SeeAdvertisement(headers Headers) (device *Device, serviceType string, source Source, ok bool) {
	usn := headers.Get("usn")
	udn := UDNFromUSN(usn)
	nt := headers.Get("nt")
	nts := headers.Get("nts")
	if udn == "" || nt == "" || nts == "" {
		return nil, "", 0, false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.purgeLocked()

	switch nts {
	case "ssdp:alive":
		source = SourceAdvertisementAlive
	case "ssdp:update":
		source = SourceAdvertisementUpdate
	case "ssdp:byebye":
		return t.seeByeByeLocked(udn, nt, headers)
	default:
		return nil, "", 0, false
	}

	device = t.deviceLocked(udn)
	device.advertHeaders[nt] = headers.Clone()
	device.observe(headers, t.now(), t.maxAge)
	return device, nt, source, true
}

// seeByeByeLocked handles ssdp:byebye: drop the service type from the
// tracked record, prune the device when nothing remains, and return a
// detached snapshot carrying the byebye headers so consumers can observe the
// departure. A byebye for an unknown device is still reported.
func (t *DeviceTracker) seeByeByeLocked(udn, nt string, headers Headers) (*Device, string, Source, bool) {
	snapshot := newDevice(udn)
	snapshot.advertHeaders[nt] = headers.Clone()
	snapshot.observe(headers, t.now(), t.maxAge)

	if device, exists := t.devices[udn]; exists {
		if snapshot.Location == "" {
			snapshot.Location = device.Location
		}
		if snapshot.BootID < 0 {
			snapshot.BootID = device.BootID
		}
		delete(device.advertHeaders, nt)
		delete(device.searchHeaders, nt)
		if device.serviceTypeCount() == 0 {
			delete(t.devices, udn)
		}
	}
	return snapshot, nt, SourceAdvertisementByeBye, true
}

// deviceLocked returns the device for udn, creating it when unknown.
func (t *DeviceTracker) deviceLocked(udn string) *Device {
	device, ok := t.devices[udn]
	if !ok {
		device = newDevice(udn)
		t.devices[udn] = device
	}
	return device
}

// purgeLocked drops devices whose advertisements have expired.
func (t *DeviceTracker) purgeLocked() {
	now := t.now()
	for udn, device := range t.devices {
		if !device.validTo.IsZero() && now.After(device.validTo) {
			delete(t.devices, udn)
		}
	}
}

// headersDiffer compares the headers that matter for change detection,
// skipping the ones that vary on every message (DATE, various caching and
// keepalive noise).
func headersDiffer(prev, next Headers) bool {
	ignored := map[string]struct{}{
		"date":          {},
		"cache-control": {},
		"host":          {},
	}
	for key, value := range next {
		if _, skip := ignored[key]; skip {
			continue
		}
		if prev[key] != value {
			return true
		}
	}
	for key := range prev {
		if _, skip := ignored[key]; skip {
			continue
		}
		if _, ok := next[key]; !ok {
			return true
		}
	}
	return false
}
