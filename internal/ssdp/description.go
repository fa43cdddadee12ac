package ssdp

import (
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sync"
	"time"
)

// maxDescriptionBytes caps how much of a description document we will read.
// Real documents are a few KB; anything larger is a misbehaving device.
const maxDescriptionBytes = 1 << 20

// DescriptionCache fetches and memoizes UPnP device-description documents by
// location URL. A fetch or parse failure is cached as an empty map so callers
// always receive a usable (possibly empty) result and a broken device is not
// re-fetched on every advertisement. A device announcing a new location uses
// a new cache key, which is the implicit invalidation path.
//
// All methods are safe for concurrent use.
type DescriptionCache struct {
	client  *http.Client
	timeout time.Duration

	mu    sync.Mutex
	cache map[string]map[string]string
}

// NewDescriptionCache creates a cache using the given HTTP client. A nil
// client uses http.DefaultClient. timeout bounds each fetch; zero means
// 10 seconds.
func NewDescriptionCache(client *http.Client, timeout time.Duration) *DescriptionCache {
	if client == nil {
		client = http.DefaultClient
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &DescriptionCache{
		client:  client,
		timeout: timeout,
		cache:   make(map[string]map[string]string),
	}
}

// Description returns the flattened description for location. An empty
// location yields an empty map immediately. The returned map must be treated
// as read-only; it is shared between callers.
func (c *DescriptionCache) Description(ctx context.Context, location string) map[string]string {
	if location == "" {
		return map[string]string{}
	}

	c.mu.Lock()
	if desc, ok := c.cache[location]; ok {
		c.mu.Unlock()
		return desc
	}
	c.mu.Unlock()

	desc := c.fetch(ctx, location)

	c.mu.Lock()
	c.cache[location] = desc
	c.mu.Unlock()
	return desc
}

// fetch retrieves and parses the description; failures yield an empty map.
func (c *DescriptionCache) fetch(ctx context.Context, location string) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return map[string]string{}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return map[string]string{}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return map[string]string{}
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionBytes))
	if err != nil {
		return map[string]string{}
	}
	return parseDescription(body)
}

// descriptionDocument is the root of a UPnP device-description document.
type descriptionDocument struct {
	Device descriptionDevice `xml:"device"`
}

type descriptionDevice struct {
	DeviceType       string `xml:"deviceType"`
	FriendlyName     string `xml:"friendlyName"`
	Manufacturer     string `xml:"manufacturer"`
	ManufacturerURL  string `xml:"manufacturerURL"`
	ModelDescription string `xml:"modelDescription"`
	ModelName        string `xml:"modelName"`
	ModelNumber      string `xml:"modelNumber"`
	ModelURL         string `xml:"modelURL"`
	SerialNumber     string `xml:"serialNumber"`
	UDN              string `xml:"UDN"`
	UPC              string `xml:"UPC"`
	PresentationURL  string `xml:"presentationURL"`
}

// parseDescription flattens the root device element into the UPnP attribute
// map used for matcher evaluation and ServiceInfo. Unparseable documents
// yield an empty map.
func parseDescription(body []byte) map[string]string {
	var doc descriptionDocument
	if err := xml.Unmarshal(body, &doc); err != nil {
		return map[string]string{}
	}

	desc := make(map[string]string)
	put := func(key, value string) {
		if value != "" {
			desc[key] = value
		}
	}
	put("deviceType", doc.Device.DeviceType)
	put("friendlyName", doc.Device.FriendlyName)
	put("manufacturer", doc.Device.Manufacturer)
	put("manufacturerURL", doc.Device.ManufacturerURL)
	put("modelDescription", doc.Device.ModelDescription)
	put("modelName", doc.Device.ModelName)
	put("modelNumber", doc.Device.ModelNumber)
	put("modelURL", doc.Device.ModelURL)
	put("serialNumber", doc.Device.SerialNumber)
	put("UDN", doc.Device.UDN)
	put("UPC", doc.Device.UPC)
	put("presentationURL", doc.Device.PresentationURL)
	return desc
}
