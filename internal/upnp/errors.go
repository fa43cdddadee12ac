package upnp

import (
	"errors"
	"fmt"
)

// Sentinel errors for transport-level and protocol-level failures.
var (
	// ErrConnection indicates the device could not be reached or the HTTP
	// exchange failed before a SOAP response was obtained.
	ErrConnection = errors.New("upnp: connection failed")

	// ErrInvalidResponse indicates the device replied with something that
	// is not a well-formed SOAP envelope or device description.
	ErrInvalidResponse = errors.New("upnp: invalid response")

	// ErrServiceNotFound indicates the device description does not list
	// the requested service type.
	ErrServiceNotFound = errors.New("upnp: service not found")
)

// ErrorCode is a UPnP action error code as returned in a SOAP fault.
// Codes 700-799 are defined per-service; the constants below are the
// ContentDirectory codes callers dispatch on.
type ErrorCode int

const (
	CodeNoSuchObject          ErrorCode = 701
	CodeInvalidSearchCriteria ErrorCode = 708
	CodeNoSuchContainer       ErrorCode = 710
)

// ActionError is a SOAP fault returned by the device in response to an
// action invocation. The device answered, so the connection itself is fine.
type ActionError struct {
	Action      string
	Code        ErrorCode
	Description string
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("upnp: action %s failed: %d %s", e.Action, e.Code, e.Description)
}
