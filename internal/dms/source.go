package dms

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/nerrad567/gray-logic-discovery/internal/ssdp"
	"github.com/nerrad567/gray-logic-discovery/internal/upnp"
)

// Logger is the minimal logging interface used by this package.
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

// DefaultSortCriteria orders browse results by class, track number, then
// title, matching how most control points present server content.
const DefaultSortCriteria = "+upnp:class,+upnp:originalTrackNumber,+dc:title"

// Metadata filters per request kind. Browsing needs the display fields;
// path walking only needs IDs and titles; resolving wants everything.
const (
	browseFilter  = "id,upnp:class,dc:title,res,@childCount,upnp:albumArtURI"
	pathFilter    = "id,dc:title"
	resolveFilter = "*"
)

// bootIDUnknown marks a source that has not yet seen a BOOTID header.
const bootIDUnknown = -1

// SourceConfig describes one media server to manage.
type SourceConfig struct {
	// EntryID is the stable internal identifier (survives renames).
	EntryID string
	// Name is the human-facing title; the registry derives the source ID
	// from it.
	Name string
	// UDN and USN identify the server on the SSDP bus.
	UDN string
	USN string
	// Location is the device-description URL, when already known. A source
	// without a location waits for its first alive message.
	Location string
	// SortCriteria overrides DefaultSortCriteria when non-empty.
	SortCriteria string
	// HTTPClient is used for description fetches and SOAP exchanges.
	// Nil uses http.DefaultClient.
	HTTPClient *http.Client
}

// Source is one managed DLNA media server.
type Source struct {
	entryID      string
	udn          string
	usn          string
	sortCriteria string
	httpClient   *http.Client
	logger       Logger

	mu                sync.Mutex
	sourceID          string
	name              string
	location          string
	device            *upnp.Device
	cd                *upnp.ContentDirectory
	bootID            int
	ssdpConnectFailed bool
}

// NewSource creates an unconnected source.
func NewSource(cfg SourceConfig) *Source {
	sortCriteria := cfg.SortCriteria
	if sortCriteria == "" {
		sortCriteria = DefaultSortCriteria
	}
	return &Source{
		entryID:      cfg.EntryID,
		udn:          cfg.UDN,
		usn:          cfg.USN,
		sortCriteria: sortCriteria,
		httpClient:   cfg.HTTPClient,
		logger:       noopLogger{},
		name:         cfg.Name,
		location:     cfg.Location,
		bootID:       bootIDUnknown,
	}
}

// SetLogger sets the logger for the source.
func (s *Source) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// EntryID returns the stable internal identifier.
func (s *Source) EntryID() string { return s.entryID }

// UDN returns the server's unique device name.
func (s *Source) UDN() string { return s.udn }

// USN returns the server's unique service name.
func (s *Source) USN() string { return s.usn }

// ID returns the human-facing source ID assigned by the registry, or ""
// for an unregistered source.
func (s *Source) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sourceID
}

// Name returns the source's display name.
func (s *Source) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Location returns the last known device-description URL.
func (s *Source) Location() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.location
}

// Available reports whether the source is connected.
func (s *Source) Available() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cd != nil
}

func (s *Source) setIdentity(sourceID, name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sourceID = sourceID
	if name != "" {
		s.name = name
	}
}

// Connect fetches the device description and binds a ContentDirectory
// client. Connecting an already-connected source is a no-op.
func (s *Source) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connectLocked(ctx)
}

func (s *Source) connectLocked(ctx context.Context) error {
	if s.cd != nil {
		return nil
	}
	if s.location == "" {
		return fmt.Errorf("%w: location unknown", ErrDeviceConnection)
	}

	device, err := upnp.FetchDevice(ctx, s.httpClient, s.location)
	if err != nil {
		return fmt.Errorf("%w: fetch description: %v", ErrDeviceConnection, err)
	}
	cd, err := upnp.NewContentDirectory(device, s.httpClient)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeviceConnection, err)
	}

	s.device = device
	s.cd = cd
	if s.name == "" {
		s.name = device.FriendlyName
	}
	s.logger.Info("media server connected", "source_id", s.sourceID, "udn", s.udn, "location", s.location)
	return nil
}

// Disconnect drops the connection. Disconnecting an already-disconnected
// source is a no-op.
func (s *Source) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnectLocked()
}

func (s *Source) disconnectLocked() {
	if s.cd == nil {
		return
	}
	s.device = nil
	s.cd = nil
	s.logger.Info("media server disconnected", "source_id", s.sourceID, "udn", s.udn)
}

// HandleSSDP drives the connection state machine from a discovery event
// for this server.
func (s *Source) HandleSSDP(ctx context.Context, info ssdp.ServiceInfo, change ssdp.Change) error {
	bootID, hasBootID := parseSSDPInt(info.Headers.Get("BOOTID.UPNP.ORG"))

	s.mu.Lock()
	defer s.mu.Unlock()

	if change == ssdp.ChangeUpdate {
		// An UPDATE carrying the current bootid announces the next one; adopt
		// it so the following alive is not mistaken for a reboot.
		next, hasNext := parseSSDPInt(info.Headers.Get("NEXTBOOTID.UPNP.ORG"))
		if hasBootID && bootID == s.bootID && hasNext {
			s.bootID = next
		}
		return nil
	}

	if hasBootID && bootID != s.bootID {
		// Reboot: previous connection (and any previous connect failure)
		// is stale.
		s.ssdpConnectFailed = false
		s.disconnectLocked()
		s.bootID = bootID
	}

	if change == ssdp.ChangeByeBye {
		s.ssdpConnectFailed = false
		s.disconnectLocked()
		return nil
	}

	if info.Location != "" {
		s.location = info.Location
	}
	if s.cd != nil || s.ssdpConnectFailed {
		return nil
	}
	if err := s.connectLocked(ctx); err != nil {
		// Do not retry until the next lifecycle change announces the server
		// anew.
		s.ssdpConnectFailed = true
		return err
	}
	return nil
}

func parseSSDPInt(value string) (int, bool) {
	if value == "" {
		return 0, false
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, false
	}
	return n, true
}

// contentDirectory returns the bound client or ErrDeviceConnection when
// the source is not connected.
func (s *Source) contentDirectory() (*upnp.ContentDirectory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cd == nil {
		return nil, fmt.Errorf("%w: not connected", ErrDeviceConnection)
	}
	return s.cd, nil
}

func (s *Source) absoluteURL(ref string) string {
	s.mu.Lock()
	device := s.device
	s.mu.Unlock()
	if device == nil {
		return ref
	}
	return device.AbsoluteURL(ref)
}

// translateErr maps a upnp-layer failure into the package error taxonomy.
// Transport failures additionally disconnect the source so the next alive
// reconnects from scratch.
func (s *Source) translateErr(err error) error {
	var actionErr *upnp.ActionError
	if errors.As(err, &actionErr) {
		switch actionErr.Code {
		case upnp.CodeNoSuchObject, upnp.CodeInvalidSearchCriteria:
			return fmt.Errorf("%w: %s", ErrAction, actionErr.Description)
		}
		return fmt.Errorf("%w: %v", ErrDeviceConnection, actionErr)
	}
	if errors.Is(err, upnp.ErrConnection) {
		s.Disconnect()
		return fmt.Errorf("%w: server disconnected: %v", ErrDeviceConnection, err)
	}
	return fmt.Errorf("%w: %v", ErrDeviceConnection, err)
}
