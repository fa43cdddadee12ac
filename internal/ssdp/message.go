package ssdp

import (
	"bufio"
	"bytes"
	"fmt"
	"net/textproto"
	"strings"
)

// messageKind distinguishes the three datagram shapes seen on the SSDP
// multicast group and the unicast search socket.
type messageKind int

const (
	// kindAdvertisement is a NOTIFY * HTTP/1.1 multicast advertisement.
	kindAdvertisement messageKind = iota
	// kindSearchResponse is an HTTP/1.1 200 OK reply to our M-SEARCH.
	kindSearchResponse
	// kindSearchRequest is another agent's M-SEARCH; ignored.
	kindSearchRequest
)

// parseMessage parses a raw SSDP datagram into its kind and a folded header
// map. Returns ErrMalformedMessage for anything that does not look like an
// SSDP start line or whose headers cannot be parsed.
func parseMessage(data []byte) (messageKind, Headers, error) {
	reader := bufio.NewReader(bytes.NewReader(data))

	startLine, err := reader.ReadString('\n')
	if err != nil {
		return 0, nil, fmt.Errorf("%w: missing start line", ErrMalformedMessage)
	}
	startLine = strings.TrimRight(startLine, "\r\n")

	var kind messageKind
	switch {
	case strings.HasPrefix(startLine, "NOTIFY "):
		kind = kindAdvertisement
	case strings.HasPrefix(startLine, "HTTP/1.1 200"), strings.HasPrefix(startLine, "HTTP/1.0 200"):
		kind = kindSearchResponse
	case strings.HasPrefix(startLine, "M-SEARCH "):
		kind = kindSearchRequest
	default:
		return 0, nil, fmt.Errorf("%w: unexpected start line %q", ErrMalformedMessage, startLine)
	}

	tp := textproto.NewReader(reader)
	mimeHeaders, err := tp.ReadMIMEHeader()
	// Datagrams routinely end without a trailing blank line; tolerate EOF
	// as long as something was parsed.
	if err != nil && len(mimeHeaders) == 0 {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}

	headers := make(Headers, len(mimeHeaders))
	for key, values := range mimeHeaders {
		if len(values) > 0 {
			headers.Set(key, values[0])
		}
	}
	return kind, headers, nil
}
