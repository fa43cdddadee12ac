package ssdp

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"time"
)

// Logger defines the logging interface used by this package.
// This allows different logging implementations to be used.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Callback receives a discovery event. Callbacks are invoked sequentially
// per event; a returned error is logged and does not affect other callbacks.
type Callback func(info ServiceInfo, change Change) error

// FlowCreator starts a discovery flow for an integration domain. Creation
// must be idempotent per (domain, USN); duplicate events are expected.
type FlowCreator interface {
	CreateFlow(ctx context.Context, domain string, info ServiceInfo) error
}

// Config carries the scanner's tunables.
type Config struct {
	// ScanInterval is the period between M-SEARCH sweeps.
	ScanInterval time.Duration
	// SearchMX is the MX value (response delay bound, 1-5 seconds) sent in
	// M-SEARCH queries.
	SearchMX int
	// MaxAge is the advertisement lifetime assumed when a device omits the
	// CACHE-CONTROL header. Zero uses the UPnP-mandated 1800s minimum.
	MaxAge time.Duration
	// DescriptionTimeout bounds each description-document fetch.
	DescriptionTimeout time.Duration
	// HTTPClient fetches description documents; nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Scanner manages SSDP searching and advertisement handling. It owns one
// listener per usable local source address, a shared device tracker, the
// description cache, the registered callbacks, and the integration matcher
// index. All spawned goroutines are tied to the context handed to Start and
// are cancelled as a unit by Stop.
type Scanner struct {
	cfg      Config
	matchers *IntegrationMatchers
	flows    FlowCreator
	logger   Logger
	onScan   func(duration time.Duration, devices int)

	tracker      *DeviceTracker
	descriptions *DescriptionCache

	mu        sync.Mutex // guards listeners, callbacks, started, cancel
	listeners []*Listener
	callbacks []*callbackEntry
	started   bool
	cancel    context.CancelFunc
	ctx       context.Context
	wg        sync.WaitGroup

	// dispatchMu serialises event dispatch so callbacks observe events in
	// order and never run concurrently with each other.
	dispatchMu sync.Mutex
}

type callbackEntry struct {
	callback Callback
	filter   map[string]string // folded keys
}

// NewScanner creates a scanner. matchers may be nil when no integration
// matching is wanted; flows may be nil when matched domains should only be
// logged.
func NewScanner(cfg Config, matchers *IntegrationMatchers, flows FlowCreator) *Scanner {
	if cfg.ScanInterval <= 0 {
		cfg.ScanInterval = 60 * time.Second
	}
	if matchers == nil {
		matchers = NewIntegrationMatchers(nil)
	}
	tracker := NewDeviceTracker()
	if cfg.MaxAge > 0 {
		tracker.maxAge = cfg.MaxAge
	}
	return &Scanner{
		cfg:          cfg,
		matchers:     matchers,
		flows:        flows,
		logger:       noopLogger{},
		tracker:      tracker,
		descriptions: NewDescriptionCache(cfg.HTTPClient, cfg.DescriptionTimeout),
	}
}

// SetLogger sets the logger for the scanner and its listeners.
func (s *Scanner) SetLogger(logger Logger) {
	s.logger = logger
}

// SetScanObserver registers a hook reporting each completed search sweep:
// how long the sweep took and how many devices are tracked afterwards.
// Set before Start.
func (s *Scanner) SetScanObserver(fn func(duration time.Duration, devices int)) {
	s.onScan = fn
}

// Start binds one listener per usable source address, begins the periodic
// scan, and triggers an immediate initial scan. Individual listener failures
// are logged and tolerated; Start fails only when no listener could be
// started at all.
func (s *Scanner) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.started = true
	s.mu.Unlock()

	sources, err := SourceAddresses()
	if err != nil {
		s.teardown()
		return err
	}

	var listeners []*Listener
	for _, source := range sources {
		listener := newListener(source, s.tracker, s.onDeviceChange, s.cfg.SearchMX, s.logger)
		if err := listener.start(s.ctx); err != nil {
			// A single source failing to bind is not fatal; drop it.
			s.logger.Debug("ssdp listener failed to start", "source", source.String(), "error", err)
			continue
		}
		listeners = append(listeners, listener)
	}
	if len(listeners) == 0 {
		s.teardown()
		return ErrNoListeners
	}
	s.mu.Lock()
	s.listeners = listeners
	s.mu.Unlock()

	s.wg.Add(1)
	go s.scanLoop()

	s.logger.Info("ssdp scanner started",
		"listeners", len(listeners),
		"scan_interval", s.cfg.ScanInterval.String(),
	)
	s.Scan()
	return nil
}

// Stop cancels all scanner goroutines and closes the listeners. Safe to call
// once after a successful Start.
func (s *Scanner) Stop() {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	s.teardown()
	s.logger.Info("ssdp scanner stopped")
}

func (s *Scanner) teardown() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.started = false
	listeners := s.listeners
	s.listeners = nil
	s.mu.Unlock()

	s.wg.Wait()
	for _, listener := range listeners {
		listener.stop()
	}
}

// scanLoop triggers a search sweep every ScanInterval until cancelled.
func (s *Scanner) scanLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Scan()
		}
	}
}

// Scan sends an M-SEARCH sweep: multicast from every listener, then IPv4
// broadcast (some devices only answer the broadcast address).
func (s *Scanner) Scan() {
	start := time.Now()
	s.ScanMulticast()
	s.ScanBroadcast()
	if s.onScan != nil {
		s.onScan(time.Since(start), s.DeviceCount())
	}
}

// ScanMulticast sends the multicast search from every listener.
func (s *Scanner) ScanMulticast() {
	for _, listener := range s.activeListeners() {
		if err := listener.Search(nil); err != nil {
			s.logger.Debug("multicast search failed", "source", listener.Source().String(), "error", err)
		}
	}
}

// ScanBroadcast sends the broadcast search from every IPv4 listener.
func (s *Scanner) ScanBroadcast() {
	for _, listener := range s.activeListeners() {
		if !listener.IsIPv4() {
			continue
		}
		if err := listener.Search(BroadcastAddrV4); err != nil {
			s.logger.Debug("broadcast search failed", "source", listener.Source().String(), "error", err)
		}
	}
}

// activeListeners snapshots the listener set under the lock. Searches
// iterate the snapshot, so a teardown racing an in-flight scan only makes
// the remaining searches fail with ErrNotStarted.
func (s *Scanner) activeListeners() []*Listener {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*Listener(nil), s.listeners...)
}

// RegisterCallback registers a discovery callback with a header match
// filter. Filter keys are folded; a value of MatchAll only requires key
// presence; a nil filter matches every event. Before registration returns,
// the callback is replayed an ALIVE event for every currently known device
// whose headers match, so a late subscriber misses nothing.
//
// The returned function unregisters the callback.
func (s *Scanner) RegisterCallback(callback Callback, filter map[string]string) func() {
	folded := make(map[string]string, len(filter))
	for k, v := range filter {
		folded[strings.ToLower(k)] = v
	}
	entry := &callbackEntry{callback: callback, filter: folded}

	// Dispatch holds dispatchMu for the whole of an event, so holding it
	// across the replay and the append leaves no window where an event is
	// delivered by neither path: anything entering the tracker before the
	// snapshot is replayed, anything after is dispatched live once the
	// append is visible. A duplicate alive on the boundary is fine;
	// consumers already tolerate repeats.
	s.dispatchMu.Lock()
	ctx := s.lifecycleContext()
	for _, headers := range s.allCombinedHeaders() {
		if headers.Matches(folded) {
			info := s.headersToInfo(ctx, headers)
			s.invokeCallback(callback, info, ChangeAlive)
		}
	}
	s.mu.Lock()
	s.callbacks = append(s.callbacks, entry)
	s.mu.Unlock()
	s.dispatchMu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, e := range s.callbacks {
			if e == entry {
				s.callbacks = append(s.callbacks[:i], s.callbacks[i+1:]...)
				return
			}
		}
	}
}

// DiscoveryInfoByUDNST returns the discovery info for one (UDN, ST) pair, or
// false when unknown.
func (s *Scanner) DiscoveryInfoByUDNST(ctx context.Context, udn, st string) (ServiceInfo, bool) {
	for _, device := range s.tracker.Devices() {
		if device.UDN != udn {
			continue
		}
		for serviceType, headers := range device.AllCombinedHeaders() {
			if serviceType == st {
				return s.headersToInfo(ctx, headers), true
			}
		}
	}
	return ServiceInfo{}, false
}

// DiscoveryInfoByST returns discovery info for every known device seen under
// the given service type.
func (s *Scanner) DiscoveryInfoByST(ctx context.Context, st string) []ServiceInfo {
	var infos []ServiceInfo
	for _, device := range s.tracker.Devices() {
		for serviceType, headers := range device.AllCombinedHeaders() {
			if serviceType == st {
				infos = append(infos, s.headersToInfo(ctx, headers))
			}
		}
	}
	return infos
}

// DiscoveryInfoByUDN returns discovery info for every service type of one
// device.
func (s *Scanner) DiscoveryInfoByUDN(ctx context.Context, udn string) []ServiceInfo {
	var infos []ServiceInfo
	for _, device := range s.tracker.Devices() {
		if device.UDN != udn {
			continue
		}
		for _, headers := range device.AllCombinedHeaders() {
			infos = append(infos, s.headersToInfo(ctx, headers))
		}
	}
	return infos
}

// AllDiscoveryInfo returns discovery info for every known (device, service
// type) pair.
func (s *Scanner) AllDiscoveryInfo(ctx context.Context) []ServiceInfo {
	var infos []ServiceInfo
	for _, headers := range s.allCombinedHeaders() {
		infos = append(infos, s.headersToInfo(ctx, headers))
	}
	return infos
}

// onDeviceChange is the listener callback: classify, match, and dispatch one
// device change. Dispatch is serialised so callbacks never run concurrently.
func (s *Scanner) onDeviceChange(device *Device, serviceType string, source Source) {
	s.dispatchMu.Lock()
	defer s.dispatchMu.Unlock()

	ctx := s.lifecycleContext()
	combined := device.CombinedHeaders(serviceType)
	callbacks := s.matchingCallbacks(combined)

	// Search responses with unchanged headers never trigger flows; they
	// fire on every sweep and the matched state cannot have changed.
	var matchingDomains []string
	var description map[string]string
	if source != SourceSearchAlive {
		description = s.descriptions.Description(ctx, device.Location)
		attrs := combined.Clone()
		for k, v := range description {
			attrs.Set(k, v)
		}
		matchingDomains = s.matchers.MatchingDomains(attrs)
	}

	if len(callbacks) == 0 && len(matchingDomains) == 0 {
		return
	}

	if description == nil {
		description = s.descriptions.Description(ctx, device.Location)
	}
	info := infoFromHeadersAndDescription(combined, description)
	info.MatchingDomains = matchingDomains

	change := source.Change()
	for _, callback := range callbacks {
		s.invokeCallback(callback, info, change)
	}

	// Flows are only created for devices that are present.
	if change == ChangeByeBye {
		return
	}
	for _, domain := range matchingDomains {
		s.logger.Debug("integration matched", "domain", domain, "location", device.Location)
		if s.flows == nil {
			continue
		}
		if err := s.flows.CreateFlow(ctx, domain, info); err != nil {
			s.logger.Warn("creating discovery flow failed", "domain", domain, "usn", info.USN, "error", err)
		}
	}
}

// matchingCallbacks returns the callbacks whose filter matches the headers.
func (s *Scanner) matchingCallbacks(headers Headers) []Callback {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []Callback
	for _, entry := range s.callbacks {
		if headers.Matches(entry.filter) {
			matched = append(matched, entry.callback)
		}
	}
	return matched
}

// invokeCallback runs one callback with panic and error isolation.
func (s *Scanner) invokeCallback(callback Callback, info ServiceInfo, change Change) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("discovery callback panicked", "usn", info.USN, "panic", r)
		}
	}()
	if err := callback(info, change); err != nil {
		s.logger.Warn("discovery callback failed", "usn", info.USN, "error", err)
	}
}

// allCombinedHeaders snapshots the combined headers of every known
// (device, service type) pair.
func (s *Scanner) allCombinedHeaders() []Headers {
	var all []Headers
	for _, device := range s.tracker.Devices() {
		for _, headers := range device.AllCombinedHeaders() {
			all = append(all, headers)
		}
	}
	return all
}

// headersToInfo builds a ServiceInfo from stored headers, fetching the
// description on demand.
func (s *Scanner) headersToInfo(ctx context.Context, headers Headers) ServiceInfo {
	description := s.descriptions.Description(ctx, headers.Get("location"))
	return infoFromHeadersAndDescription(headers, description)
}

// lifecycleContext returns the scanner's context, or a background context
// before Start.
func (s *Scanner) lifecycleContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return s.ctx
	}
	return context.Background()
}

// Listeners reports how many listeners are active, for health reporting.
func (s *Scanner) Listeners() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.listeners)
}

// DeviceCount reports how many devices are currently tracked.
func (s *Scanner) DeviceCount() int {
	return len(s.tracker.Devices())
}

// HealthCheck verifies the scanner is running with at least one listener.
func (s *Scanner) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return ErrNotStarted
	}
	if len(s.listeners) == 0 {
		return ErrNoListeners
	}
	return nil
}
