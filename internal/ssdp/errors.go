package ssdp

import "errors"

// Domain errors for the ssdp package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, ssdp.ErrNoListeners) {
//	    // no usable network sources
//	}
var (
	// ErrAlreadyStarted is returned when Start is called on a running scanner.
	ErrAlreadyStarted = errors.New("ssdp: scanner already started")

	// ErrNotStarted is returned when an operation requires a running scanner.
	ErrNotStarted = errors.New("ssdp: scanner not started")

	// ErrNoListeners is returned when no listener could be started on any
	// local source address.
	ErrNoListeners = errors.New("ssdp: no listeners available")

	// ErrMalformedMessage is returned when a datagram cannot be parsed as an
	// SSDP message.
	ErrMalformedMessage = errors.New("ssdp: malformed message")

	// ErrMissingHeader is returned when a message lacks a required header
	// (USN for all messages, NT/NTS for advertisements).
	ErrMissingHeader = errors.New("ssdp: required header missing")
)
