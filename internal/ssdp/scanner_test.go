package ssdp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// fakeFlowStore records created flows and de-duplicates by (domain, USN),
// mirroring the idempotency contract of the real store.
type fakeFlowStore struct {
	mu    sync.Mutex
	flows map[string]ServiceInfo
	calls int
}

func newFakeFlowStore() *fakeFlowStore {
	return &fakeFlowStore{flows: make(map[string]ServiceInfo)}
}

func (f *fakeFlowStore) CreateFlow(_ context.Context, domain string, info ServiceInfo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	key := domain + "|" + info.USN
	if _, ok := f.flows[key]; ok {
		return nil
	}
	f.flows[key] = info
	return nil
}

func (f *fakeFlowStore) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.flows)
}

// descriptionServer serves a minimal device description with the given
// manufacturer.
func descriptionServer(t *testing.T, manufacturer string) *httptest.Server {
	t.Helper()
	body := fmt.Sprintf(`<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <manufacturer>%s</manufacturer>
    <friendlyName>Test Device</friendlyName>
  </device>
</root>`, manufacturer)
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(body))
	}))
}

// emitAlive feeds one alive advertisement through the tracker into the
// scanner's dispatch path, the same way a listener would.
func emitAlive(t *testing.T, s *Scanner, headers Headers) {
	t.Helper()
	device, serviceType, source, ok := s.tracker.SeeAdvertisement(headers)
	if !ok {
		t.Fatalf("advertisement not accepted: %v", headers)
	}
	s.onDeviceChange(device, serviceType, source)
}

func testAliveHeaders(location string) Headers {
	return NewHeaders(map[string]string{
		"USN":      "uuid:X::urn:Y",
		"ST":       "urn:Y",
		"NT":       "urn:Y",
		"NTS":      "ssdp:alive",
		"LOCATION": location,
	})
}

func TestScannerCreatesFlowOnce(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	matchers := NewIntegrationMatchers(map[string][]Matcher{
		"acme_hub": {{"manufacturer": "Acme", "st": "urn:Y"}},
	})
	flows := newFakeFlowStore()
	s := NewScanner(Config{HTTPClient: server.Client()}, matchers, flows)

	emitAlive(t, s, testAliveHeaders(server.URL))
	if flows.count() != 1 {
		t.Fatalf("flows = %d after first alive, want 1", flows.count())
	}

	// Duplicate alive: matcher fires again, store de-duplicates.
	emitAlive(t, s, testAliveHeaders(server.URL))
	if flows.count() != 1 {
		t.Errorf("flows = %d after duplicate alive, want 1", flows.count())
	}
}

func TestScannerNoFlowOnMismatch(t *testing.T) {
	server := descriptionServer(t, "OtherCorp")
	defer server.Close()

	matchers := NewIntegrationMatchers(map[string][]Matcher{
		"acme_hub": {{"manufacturer": "Acme", "st": "urn:Y"}},
	})
	flows := newFakeFlowStore()
	s := NewScanner(Config{HTTPClient: server.Client()}, matchers, flows)

	emitAlive(t, s, testAliveHeaders(server.URL))
	if flows.count() != 0 {
		t.Errorf("flows = %d, want 0 for mismatched manufacturer", flows.count())
	}
}

func TestScannerNoFlowOnByeBye(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	matchers := NewIntegrationMatchers(map[string][]Matcher{
		"acme_hub": {{"manufacturer": "Acme", "st": "urn:Y"}},
	})
	flows := newFakeFlowStore()
	s := NewScanner(Config{HTTPClient: server.Client()}, matchers, flows)

	bye := NewHeaders(map[string]string{
		"USN":      "uuid:X::urn:Y",
		"NT":       "urn:Y",
		"NTS":      "ssdp:byebye",
		"LOCATION": server.URL,
	})
	device, serviceType, source, ok := s.tracker.SeeAdvertisement(bye)
	if !ok {
		t.Fatal("byebye not accepted")
	}
	s.onDeviceChange(device, serviceType, source)

	if flows.count() != 0 {
		t.Errorf("flows = %d, byebye must never create flows", flows.count())
	}
}

func TestScannerCallbackDispatch(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)

	var mu sync.Mutex
	var events []Change
	s.RegisterCallback(func(info ServiceInfo, change Change) error {
		mu.Lock()
		events = append(events, change)
		mu.Unlock()
		return nil
	}, map[string]string{"st": "urn:Y"})

	emitAlive(t, s, testAliveHeaders(server.URL))

	mu.Lock()
	defer mu.Unlock()
	if len(events) != 1 || events[0] != ChangeAlive {
		t.Errorf("events = %v, want [alive]", events)
	}
}

func TestScannerCallbackWildcard(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)

	var mu sync.Mutex
	fired := 0
	s.RegisterCallback(func(ServiceInfo, Change) error {
		mu.Lock()
		fired++
		mu.Unlock()
		return nil
	}, map[string]string{"location": MatchAll})

	// Has LOCATION: fires.
	emitAlive(t, s, testAliveHeaders(server.URL))

	// No LOCATION header: must not fire.
	noLocation := NewHeaders(map[string]string{
		"USN": "uuid:Z::urn:Z",
		"NT":  "urn:Z",
		"NTS": "ssdp:alive",
	})
	emitAlive(t, s, noLocation)

	mu.Lock()
	defer mu.Unlock()
	if fired != 1 {
		t.Errorf("fired = %d, want 1 (wildcard requires key presence)", fired)
	}
}

func TestScannerCallbackReplay(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)

	// Device known before registration.
	emitAlive(t, s, testAliveHeaders(server.URL))

	var mu sync.Mutex
	var replayed []ServiceInfo
	s.RegisterCallback(func(info ServiceInfo, change Change) error {
		if change != ChangeAlive {
			t.Errorf("replay change = %v, want alive", change)
		}
		mu.Lock()
		replayed = append(replayed, info)
		mu.Unlock()
		return nil
	}, map[string]string{"st": "urn:Y"})

	mu.Lock()
	defer mu.Unlock()
	if len(replayed) != 1 {
		t.Fatalf("replayed = %d events, want exactly 1", len(replayed))
	}
	if replayed[0].USN != "uuid:X::urn:Y" {
		t.Errorf("replayed USN = %q", replayed[0].USN)
	}
}

func TestScannerCallbackReplayNoMatch(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)
	emitAlive(t, s, testAliveHeaders(server.URL))

	called := false
	s.RegisterCallback(func(ServiceInfo, Change) error {
		called = true
		return nil
	}, map[string]string{"st": "urn:other"})

	if called {
		t.Error("non-matching callback replayed")
	}
}

func TestScannerCallbackIsolation(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)

	s.RegisterCallback(func(ServiceInfo, Change) error {
		panic("broken consumer")
	}, nil)
	s.RegisterCallback(func(ServiceInfo, Change) error {
		return errors.New("failing consumer")
	}, nil)

	var mu sync.Mutex
	delivered := false
	s.RegisterCallback(func(ServiceInfo, Change) error {
		mu.Lock()
		delivered = true
		mu.Unlock()
		return nil
	}, nil)

	emitAlive(t, s, testAliveHeaders(server.URL))

	mu.Lock()
	defer mu.Unlock()
	if !delivered {
		t.Error("panicking/failing callbacks blocked delivery to later callbacks")
	}
}

func TestScannerUnregisterCallback(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)

	fired := 0
	unregister := s.RegisterCallback(func(ServiceInfo, Change) error {
		fired++
		return nil
	}, nil)
	unregister()

	emitAlive(t, s, testAliveHeaders(server.URL))
	if fired != 0 {
		t.Errorf("fired = %d after unregister, want 0", fired)
	}
}

func TestScannerSearchAliveSkipsMatchers(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	matchers := NewIntegrationMatchers(map[string][]Matcher{
		"acme_hub": {{"manufacturer": "Acme", "st": "urn:Y"}},
	})
	flows := newFakeFlowStore()
	s := NewScanner(Config{HTTPClient: server.Client()}, matchers, flows)

	search := NewHeaders(map[string]string{
		"USN":      "uuid:X::urn:Y",
		"ST":       "urn:Y",
		"LOCATION": server.URL,
	})

	// First search response is a change: flow created.
	device, serviceType, source, _ := s.tracker.SeeSearch(search)
	s.onDeviceChange(device, serviceType, source)
	if flows.count() != 1 {
		t.Fatalf("flows = %d after first search response, want 1", flows.count())
	}
	callsAfterFirst := flows.calls

	// Unchanged repeat: SEARCH_ALIVE, matcher evaluation skipped entirely.
	device, serviceType, source, _ = s.tracker.SeeSearch(search)
	if source != SourceSearchAlive {
		t.Fatalf("source = %v, want SourceSearchAlive", source)
	}
	s.onDeviceChange(device, serviceType, source)
	if flows.calls != callsAfterFirst {
		t.Errorf("CreateFlow called for unchanged search response")
	}
}

func TestScannerLookups(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)
	emitAlive(t, s, testAliveHeaders(server.URL))

	ctx := context.Background()

	info, ok := s.DiscoveryInfoByUDNST(ctx, "uuid:X", "urn:Y")
	if !ok {
		t.Fatal("DiscoveryInfoByUDNST() not found")
	}
	if info.USN != "uuid:X::urn:Y" {
		t.Errorf("USN = %q", info.USN)
	}
	if info.Description["manufacturer"] != "Acme" {
		t.Errorf("manufacturer = %q", info.Description["manufacturer"])
	}

	if _, ok := s.DiscoveryInfoByUDNST(ctx, "uuid:X", "urn:other"); ok {
		t.Error("DiscoveryInfoByUDNST() found for wrong st")
	}

	if got := s.DiscoveryInfoByST(ctx, "urn:Y"); len(got) != 1 {
		t.Errorf("DiscoveryInfoByST() = %d infos, want 1", len(got))
	}
	if got := s.DiscoveryInfoByUDN(ctx, "uuid:X"); len(got) != 1 {
		t.Errorf("DiscoveryInfoByUDN() = %d infos, want 1", len(got))
	}
	if got := s.AllDiscoveryInfo(ctx); len(got) != 1 {
		t.Errorf("AllDiscoveryInfo() = %d infos, want 1", len(got))
	}
}

func TestScannerRegisterWaitsForInFlightDispatch(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)

	entered := make(chan struct{})
	release := make(chan struct{})
	s.RegisterCallback(func(ServiceInfo, Change) error {
		close(entered)
		<-release
		return nil
	}, nil)

	device, serviceType, source, ok := s.tracker.SeeAdvertisement(testAliveHeaders(server.URL))
	if !ok {
		t.Fatal("advertisement not accepted")
	}
	dispatched := make(chan struct{})
	go func() {
		s.onDeviceChange(device, serviceType, source)
		close(dispatched)
	}()
	<-entered

	// A registration arriving mid-dispatch must wait the event out, then
	// replay the device that event just delivered.
	var mu sync.Mutex
	var replayed []Change
	registered := make(chan struct{})
	go func() {
		s.RegisterCallback(func(_ ServiceInfo, change Change) error {
			mu.Lock()
			replayed = append(replayed, change)
			mu.Unlock()
			return nil
		}, map[string]string{"st": "urn:Y"})
		close(registered)
	}()

	select {
	case <-registered:
		t.Fatal("RegisterCallback returned while a dispatch was in flight")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-dispatched
	<-registered

	mu.Lock()
	defer mu.Unlock()
	if len(replayed) != 1 || replayed[0] != ChangeAlive {
		t.Errorf("replayed = %v, want exactly one alive", replayed)
	}
}

func TestScannerStopConcurrentWithScan(t *testing.T) {
	s := NewScanner(Config{}, nil, nil)

	// Hand-start the scanner with unstartable listeners; their searches
	// fail with ErrNotStarted, which the scan path logs and tolerates.
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.ctx = ctx
	s.cancel = cancel
	s.started = true
	for i := 0; i < 4; i++ {
		source := net.IPv4(192, 168, 1, byte(i+1))
		s.listeners = append(s.listeners, newListener(source, s.tracker, s.onDeviceChange, 4, s.logger))
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Scan()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			s.Listeners()
			_ = s.HealthCheck(context.Background())
		}
	}()
	go func() {
		defer wg.Done()
		s.Stop()
	}()
	wg.Wait()

	if n := s.Listeners(); n != 0 {
		t.Errorf("Listeners() = %d after Stop, want 0", n)
	}
}

func TestScannerScanObserver(t *testing.T) {
	server := descriptionServer(t, "Acme")
	defer server.Close()

	s := NewScanner(Config{HTTPClient: server.Client()}, nil, nil)
	emitAlive(t, s, testAliveHeaders(server.URL))

	var sweeps int
	var devices int
	s.SetScanObserver(func(_ time.Duration, seen int) {
		sweeps++
		devices = seen
	})

	s.Scan()
	s.Scan()

	if sweeps != 2 {
		t.Errorf("observer saw %d sweeps, want 2", sweeps)
	}
	if devices != 1 {
		t.Errorf("observer saw %d devices, want 1", devices)
	}
}

func TestListenerStopBeforeStart(t *testing.T) {
	l := newListener(net.IPv4(192, 168, 1, 1), NewDeviceTracker(), nil, 4, noopLogger{})

	// Neither unstarted stop nor a repeated stop may touch the sockets.
	l.stop()
	l.stop()

	if err := l.Search(nil); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Search() = %v, want ErrNotStarted", err)
	}
}

func TestScannerHealthCheckNotStarted(t *testing.T) {
	s := NewScanner(Config{}, nil, nil)

	if err := s.HealthCheck(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("HealthCheck() = %v, want ErrNotStarted", err)
	}
}
