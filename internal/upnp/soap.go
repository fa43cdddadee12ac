package upnp

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	soapEnvelopeNS = "http://schemas.xmlsoap.org/soap/envelope/"
	soapEncoding   = "http://schemas.xmlsoap.org/soap/encoding/"

	// Device descriptions and SOAP responses from well-behaved servers are
	// a few kilobytes; the cap guards against a misbehaving endpoint.
	maxResponseBytes = 4 << 20
)

// Arg is a single action input argument. Arguments are sent in the order
// given, which some devices require.
type Arg struct {
	Name  string
	Value string
}

// SOAPClient invokes UPnP actions against a control URL.
type SOAPClient struct {
	http *http.Client
}

// NewSOAPClient wraps client for SOAP exchanges. A nil client uses
// http.DefaultClient.
func NewSOAPClient(client *http.Client) *SOAPClient {
	if client == nil {
		client = http.DefaultClient
	}
	return &SOAPClient{http: client}
}

// Call invokes action on the service at endpoint and returns the response
// output arguments keyed by name. A SOAP fault carrying a UPnP error code
// is returned as *ActionError; transport failures wrap ErrConnection.
func (c *SOAPClient) Call(ctx context.Context, endpoint, serviceType, action string, args []Arg) (map[string]string, error) {
	body, err := buildEnvelope(serviceType, action, args)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("upnp: build request: %w", err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPACTION", fmt.Sprintf("%q", serviceType+"#"+action))

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConnection, err)
	}

	// UPnP faults arrive as HTTP 500 with a fault envelope; parse the body
	// before judging the status code.
	out, soapErr := parseEnvelope(data, action)
	if soapErr != nil {
		return nil, soapErr
	}
	if out == nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("%w: status %d", ErrConnection, resp.StatusCode)
		}
		return nil, fmt.Errorf("%w: no %sResponse element", ErrInvalidResponse, action)
	}
	return out, nil
}

func buildEnvelope(serviceType, action string, args []Arg) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	fmt.Fprintf(&buf, `<s:Envelope xmlns:s="%s" s:encodingStyle="%s"><s:Body>`, soapEnvelopeNS, soapEncoding)
	fmt.Fprintf(&buf, `<u:%s xmlns:u="%s">`, action, serviceType)
	for _, a := range args {
		fmt.Fprintf(&buf, "<%s>", a.Name)
		if err := xml.EscapeText(&buf, []byte(a.Value)); err != nil {
			return nil, fmt.Errorf("upnp: encode argument %s: %w", a.Name, err)
		}
		fmt.Fprintf(&buf, "</%s>", a.Name)
	}
	fmt.Fprintf(&buf, `</u:%s></s:Body></s:Envelope>`, action)
	return buf.Bytes(), nil
}

// parseEnvelope walks the response envelope looking for either the action
// response element or a fault. It returns (outputs, nil) on success,
// (nil, error) on a fault or malformed body, and (nil, nil) when neither
// element is present.
func parseEnvelope(data []byte, action string) (map[string]string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return nil, nil
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok {
			continue
		}
		switch {
		case start.Name.Local == action+"Response":
			return collectChildren(dec, start)
		case start.Name.Local == "Fault":
			return nil, parseFault(dec, start, action)
		}
	}
}

// collectChildren reads the immediate child elements of start into a
// name -> character-data map.
func collectChildren(dec *xml.Decoder, start xml.StartElement) (map[string]string, error) {
	out := make(map[string]string)
	depth := 0
	var current string
	var text strings.Builder
	for {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			depth++
			if depth == 1 {
				current = t.Name.Local
				text.Reset()
			}
		case xml.CharData:
			if depth == 1 {
				text.Write(t)
			}
		case xml.EndElement:
			if depth == 0 {
				return out, nil
			}
			if depth == 1 {
				out[current] = text.String()
			}
			depth--
		}
	}
}

type soapFault struct {
	FaultCode   string `xml:"faultcode"`
	FaultString string `xml:"faultstring"`
	Detail      struct {
		UPnPError struct {
			Code        int    `xml:"errorCode"`
			Description string `xml:"errorDescription"`
		} `xml:"UPnPError"`
	} `xml:"detail"`
}

func parseFault(dec *xml.Decoder, start xml.StartElement, action string) error {
	var fault soapFault
	if err := dec.DecodeElement(&fault, &start); err != nil {
		return fmt.Errorf("%w: fault: %v", ErrInvalidResponse, err)
	}
	desc := fault.Detail.UPnPError.Description
	if desc == "" {
		desc = fault.FaultString
	}
	return &ActionError{
		Action:      action,
		Code:        ErrorCode(fault.Detail.UPnPError.Code),
		Description: desc,
	}
}
