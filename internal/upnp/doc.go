// Package upnp is a minimal UPnP control-point client: device-description
// fetching, SOAP action invocation, and a ContentDirectory service profile
// with DIDL-Lite result parsing.
//
// It implements just enough of the UPnP Device Architecture for browsing
// DLNA media servers; eventing and service description (SCPD) parsing are
// not needed and not implemented.
//
// # Error Handling
//
// Failures split into two kinds, distinguished at the call site:
//
//   - *ActionError: the device answered with a SOAP fault carrying a UPnP
//     error code (see ErrorCode for the ContentDirectory codes callers
//     dispatch on). Retrieved with errors.As.
//   - ErrConnection: the device could not be reached or the exchange failed
//     at the transport level. Checked with errors.Is.
//
// Anything else (unparseable responses from misbehaving devices) wraps
// ErrInvalidResponse.
package upnp
