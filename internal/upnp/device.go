package upnp

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Service is one entry from a device description's serviceList. URLs are
// kept as written in the description; resolve them against the device
// location with Device.AbsoluteURL.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
	SCPDURL     string `xml:"SCPDURL"`
}

// Icon is one entry from a device description's iconList.
type Icon struct {
	MimeType string `xml:"mimetype"`
	Width    int    `xml:"width"`
	Height   int    `xml:"height"`
	URL      string `xml:"url"`
}

// Device is a parsed UPnP device description.
type Device struct {
	Location *url.URL

	DeviceType       string
	FriendlyName     string
	Manufacturer     string
	ModelName        string
	ModelDescription string
	SerialNumber     string
	UDN              string
	PresentationURL  string
	Icons            []Icon
	Services         []Service
}

type deviceDescription struct {
	URLBase string `xml:"URLBase"`
	Device  struct {
		DeviceType       string    `xml:"deviceType"`
		FriendlyName     string    `xml:"friendlyName"`
		Manufacturer     string    `xml:"manufacturer"`
		ModelName        string    `xml:"modelName"`
		ModelDescription string    `xml:"modelDescription"`
		SerialNumber     string    `xml:"serialNumber"`
		UDN              string    `xml:"UDN"`
		PresentationURL  string    `xml:"presentationURL"`
		Icons            []Icon    `xml:"iconList>icon"`
		Services         []Service `xml:"serviceList>service"`
	} `xml:"device"`
}

// FetchDevice retrieves and parses the device description at location.
// A nil client uses http.DefaultClient.
func FetchDevice(ctx context.Context, client *http.Client, location string) (*Device, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, fmt.Errorf("upnp: build request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrConnection, resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	return parseDevice(location, data)
}

func parseDevice(location string, data []byte) (*Device, error) {
	var desc deviceDescription
	if err := xml.Unmarshal(data, &desc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	// Older descriptions carry a URLBase element that overrides the
	// description URL as the base for relative references.
	base := location
	if desc.URLBase != "" {
		base = desc.URLBase
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("%w: base url: %v", ErrInvalidResponse, err)
	}

	return &Device{
		Location:         baseURL,
		DeviceType:       desc.Device.DeviceType,
		FriendlyName:     desc.Device.FriendlyName,
		Manufacturer:     desc.Device.Manufacturer,
		ModelName:        desc.Device.ModelName,
		ModelDescription: desc.Device.ModelDescription,
		SerialNumber:     desc.Device.SerialNumber,
		UDN:              desc.Device.UDN,
		PresentationURL:  desc.Device.PresentationURL,
		Icons:            desc.Device.Icons,
		Services:         desc.Device.Services,
	}, nil
}

// AbsoluteURL resolves ref against the device location. Already-absolute
// references and unparseable references are returned unchanged.
func (d *Device) AbsoluteURL(ref string) string {
	if ref == "" {
		return ""
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	if d.Location == nil {
		return ref
	}
	return d.Location.ResolveReference(parsed).String()
}

// ServiceByType returns the first service whose type matches serviceType
// up to but excluding the version suffix, so a ContentDirectory:1 lookup
// matches a ContentDirectory:4 device.
func (d *Device) ServiceByType(serviceType string) (Service, bool) {
	want := trimServiceVersion(serviceType)
	for _, svc := range d.Services {
		if trimServiceVersion(svc.ServiceType) == want {
			return svc, true
		}
	}
	return Service{}, false
}

func trimServiceVersion(serviceType string) string {
	if i := strings.LastIndex(serviceType, ":"); i > 0 {
		return serviceType[:i]
	}
	return serviceType
}
