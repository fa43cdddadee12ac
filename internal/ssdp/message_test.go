package ssdp

import (
	"errors"
	"testing"
)

func TestParseMessageNotify(t *testing.T) {
	data := []byte("NOTIFY * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"NT: urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"NTS: ssdp:alive\r\n" +
		"USN: uuid:abc::urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"LOCATION: http://10.0.0.5:8200/rootDesc.xml\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"\r\n")

	kind, headers, err := parseMessage(data)
	if err != nil {
		t.Fatalf("parseMessage() error = %v", err)
	}
	if kind != kindAdvertisement {
		t.Errorf("kind = %d, want kindAdvertisement", kind)
	}
	if got := headers.Get("nts"); got != "ssdp:alive" {
		t.Errorf("NTS = %q", got)
	}
	if got := headers.Get("location"); got != "http://10.0.0.5:8200/rootDesc.xml" {
		t.Errorf("LOCATION = %q", got)
	}
}

func TestParseMessageSearchResponse(t *testing.T) {
	data := []byte("HTTP/1.1 200 OK\r\n" +
		"CACHE-CONTROL: max-age=1800\r\n" +
		"ST: urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"USN: uuid:abc::urn:schemas-upnp-org:device:MediaServer:1\r\n" +
		"LOCATION: http://10.0.0.5:8200/rootDesc.xml\r\n" +
		"\r\n")

	kind, headers, err := parseMessage(data)
	if err != nil {
		t.Fatalf("parseMessage() error = %v", err)
	}
	if kind != kindSearchResponse {
		t.Errorf("kind = %d, want kindSearchResponse", kind)
	}
	if got := headers.Get("st"); got != "urn:schemas-upnp-org:device:MediaServer:1" {
		t.Errorf("ST = %q", got)
	}
}

func TestParseMessageSearchRequest(t *testing.T) {
	data := []byte("M-SEARCH * HTTP/1.1\r\n" +
		"HOST: 239.255.255.250:1900\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		"MX: 2\r\n" +
		"ST: ssdp:all\r\n" +
		"\r\n")

	kind, _, err := parseMessage(data)
	if err != nil {
		t.Fatalf("parseMessage() error = %v", err)
	}
	if kind != kindSearchRequest {
		t.Errorf("kind = %d, want kindSearchRequest", kind)
	}
}

func TestParseMessageMissingTrailingBlankLine(t *testing.T) {
	// Devices routinely omit the final CRLF CRLF.
	data := []byte("NOTIFY * HTTP/1.1\r\n" +
		"NT: urn:foo\r\n" +
		"NTS: ssdp:byebye\r\n" +
		"USN: uuid:abc::urn:foo\r\n")

	kind, headers, err := parseMessage(data)
	if err != nil {
		t.Fatalf("parseMessage() error = %v", err)
	}
	if kind != kindAdvertisement {
		t.Errorf("kind = %d, want kindAdvertisement", kind)
	}
	if got := headers.Get("nts"); got != "ssdp:byebye" {
		t.Errorf("NTS = %q", got)
	}
}

func TestParseMessageGarbage(t *testing.T) {
	for _, data := range [][]byte{
		[]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"),
		[]byte("not even http"),
		{},
	} {
		_, _, err := parseMessage(data)
		if !errors.Is(err, ErrMalformedMessage) {
			t.Errorf("parseMessage(%q) error = %v, want ErrMalformedMessage", data, err)
		}
	}
}
