package upnp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// ServiceTypeContentDirectory is the lowest ContentDirectory version;
// ServiceByType matches any version of the same service.
const ServiceTypeContentDirectory = "urn:schemas-upnp-org:service:ContentDirectory:1"

// Browse flags per the ContentDirectory specification.
const (
	BrowseMetadata       = "BrowseMetadata"
	BrowseDirectChildren = "BrowseDirectChildren"
)

// BrowseResult is the parsed outcome of a Browse or Search action.
type BrowseResult struct {
	Objects        []Object
	NumberReturned int
	TotalMatches   int
	UpdateID       string
}

// ContentDirectory invokes ContentDirectory actions on one device.
type ContentDirectory struct {
	soap        *SOAPClient
	device      *Device
	serviceType string
	controlURL  string
}

// NewContentDirectory locates the ContentDirectory service in device and
// binds a client to its control URL. Returns ErrServiceNotFound when the
// device does not offer the service.
func NewContentDirectory(device *Device, client *http.Client) (*ContentDirectory, error) {
	svc, ok := device.ServiceByType(ServiceTypeContentDirectory)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrServiceNotFound, ServiceTypeContentDirectory)
	}
	return &ContentDirectory{
		soap:        NewSOAPClient(client),
		device:      device,
		serviceType: svc.ServiceType,
		controlURL:  device.AbsoluteURL(svc.ControlURL),
	}, nil
}

// Device returns the device this client is bound to.
func (cd *ContentDirectory) Device() *Device { return cd.device }

// Browse invokes the Browse action. flag is BrowseMetadata or
// BrowseDirectChildren; sortCriteria may be empty when the server should
// use its native order.
func (cd *ContentDirectory) Browse(ctx context.Context, objectID, flag, filter string, startingIndex, requestedCount int, sortCriteria string) (*BrowseResult, error) {
	out, err := cd.soap.Call(ctx, cd.controlURL, cd.serviceType, "Browse", []Arg{
		{Name: "ObjectID", Value: objectID},
		{Name: "BrowseFlag", Value: flag},
		{Name: "Filter", Value: filter},
		{Name: "StartingIndex", Value: strconv.Itoa(startingIndex)},
		{Name: "RequestedCount", Value: strconv.Itoa(requestedCount)},
		{Name: "SortCriteria", Value: sortCriteria},
	})
	if err != nil {
		return nil, err
	}
	return parseBrowseResult(out)
}

// BrowseMetadataObject browses a single object's metadata and returns it.
func (cd *ContentDirectory) BrowseMetadataObject(ctx context.Context, objectID, filter string) (*Object, error) {
	result, err := cd.Browse(ctx, objectID, BrowseMetadata, filter, 0, 1, "")
	if err != nil {
		return nil, err
	}
	if len(result.Objects) == 0 {
		return nil, fmt.Errorf("%w: empty metadata result for %q", ErrInvalidResponse, objectID)
	}
	return &result.Objects[0], nil
}

// Search invokes the Search action against containerID with the given
// ContentDirectory search criteria expression.
func (cd *ContentDirectory) Search(ctx context.Context, containerID, criteria, filter string, startingIndex, requestedCount int, sortCriteria string) (*BrowseResult, error) {
	out, err := cd.soap.Call(ctx, cd.controlURL, cd.serviceType, "Search", []Arg{
		{Name: "ContainerID", Value: containerID},
		{Name: "SearchCriteria", Value: criteria},
		{Name: "Filter", Value: filter},
		{Name: "StartingIndex", Value: strconv.Itoa(startingIndex)},
		{Name: "RequestedCount", Value: strconv.Itoa(requestedCount)},
		{Name: "SortCriteria", Value: sortCriteria},
	})
	if err != nil {
		return nil, err
	}
	return parseBrowseResult(out)
}

func parseBrowseResult(out map[string]string) (*BrowseResult, error) {
	objects, err := ParseDIDL(out["Result"])
	if err != nil {
		return nil, err
	}
	// NumberReturned and TotalMatches are required outputs but some servers
	// omit or garble them; fall back to what was actually parsed.
	returned, err := strconv.Atoi(out["NumberReturned"])
	if err != nil {
		returned = len(objects)
	}
	total, err := strconv.Atoi(out["TotalMatches"])
	if err != nil {
		total = returned
	}
	return &BrowseResult{
		Objects:        objects,
		NumberReturned: returned,
		TotalMatches:   total,
		UpdateID:       out["UpdateID"],
	}, nil
}
