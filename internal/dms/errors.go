package dms

import "errors"

// The three failure kinds callers dispatch on. All of them represent a
// failed browse or resolve; IsBrowseError answers for the whole family.
var (
	// ErrDeviceConnection indicates the server is not connected or stopped
	// responding mid-request. The source disconnects itself when a request
	// fails at the transport level, so the next alive reconnects cleanly.
	ErrDeviceConnection = errors.New("dms: server connection failure")

	// ErrAction indicates the server rejected the request itself: no such
	// object, or invalid search criteria.
	ErrAction = errors.New("dms: request rejected by server")

	// ErrUnresolvable indicates a media identifier or path that cannot be
	// mapped to an object on the server.
	ErrUnresolvable = errors.New("dms: unresolvable media identifier")

	// ErrUnknownSource indicates a source ID no registered server answers to.
	ErrUnknownSource = errors.New("dms: unknown source")
)

// IsBrowseError reports whether err belongs to the browse failure family.
func IsBrowseError(err error) bool {
	return errors.Is(err, ErrDeviceConnection) ||
		errors.Is(err, ErrAction) ||
		errors.Is(err, ErrUnresolvable)
}
