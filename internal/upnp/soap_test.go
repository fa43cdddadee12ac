package upnp

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const browseResponseEnvelope = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
 <s:Body>
  <u:BrowseResponse xmlns:u="urn:schemas-upnp-org:service:ContentDirectory:1">
   <Result>&lt;DIDL-Lite/&gt;</Result>
   <NumberReturned>2</NumberReturned>
   <TotalMatches>10</TotalMatches>
   <UpdateID>7</UpdateID>
  </u:BrowseResponse>
 </s:Body>
</s:Envelope>`

const faultEnvelope = `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
 <s:Body>
  <s:Fault>
   <faultcode>s:Client</faultcode>
   <faultstring>UPnPError</faultstring>
   <detail>
    <UPnPError xmlns="urn:schemas-upnp-org:control-1-0">
     <errorCode>701</errorCode>
     <errorDescription>No such object</errorDescription>
    </UPnPError>
   </detail>
  </s:Fault>
 </s:Body>
</s:Envelope>`

func TestSOAPCall(t *testing.T) {
	var gotAction, gotContentType string
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAction = r.Header.Get("SOAPACTION")
		gotContentType = r.Header.Get("Content-Type")
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(browseResponseEnvelope))
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.Client())
	out, err := client.Call(context.Background(), srv.URL, ServiceTypeContentDirectory, "Browse", []Arg{
		{Name: "ObjectID", Value: "0"},
		{Name: "BrowseFlag", Value: BrowseDirectChildren},
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}

	want := `"urn:schemas-upnp-org:service:ContentDirectory:1#Browse"`
	if gotAction != want {
		t.Errorf("SOAPACTION = %q, want %q", gotAction, want)
	}
	if !strings.Contains(gotContentType, "text/xml") {
		t.Errorf("Content-Type = %q", gotContentType)
	}
	if !strings.Contains(gotBody, "<ObjectID>0</ObjectID>") {
		t.Errorf("request body missing ObjectID: %s", gotBody)
	}
	if !strings.Contains(gotBody, "<BrowseFlag>BrowseDirectChildren</BrowseFlag>") {
		t.Errorf("request body missing BrowseFlag: %s", gotBody)
	}
	if out["Result"] != "<DIDL-Lite/>" {
		t.Errorf("Result = %q", out["Result"])
	}
	if out["TotalMatches"] != "10" {
		t.Errorf("TotalMatches = %q", out["TotalMatches"])
	}
}

func TestSOAPCallEscapesArguments(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.Write([]byte(browseResponseEnvelope))
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.Client())
	_, err := client.Call(context.Background(), srv.URL, ServiceTypeContentDirectory, "Browse", []Arg{
		{Name: "SearchCriteria", Value: `dc:title = "a<b&c"`},
	})
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !strings.Contains(gotBody, "a&lt;b&amp;c") {
		t.Errorf("argument not escaped: %s", gotBody)
	}
	if strings.Contains(gotBody, "a<b") {
		t.Errorf("raw markup leaked into envelope: %s", gotBody)
	}
}

func TestSOAPCallFault(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(faultEnvelope))
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.Client())
	_, err := client.Call(context.Background(), srv.URL, ServiceTypeContentDirectory, "Browse", nil)

	var actionErr *ActionError
	if !errors.As(err, &actionErr) {
		t.Fatalf("Call() error = %v, want *ActionError", err)
	}
	if actionErr.Code != CodeNoSuchObject {
		t.Errorf("Code = %d, want %d", actionErr.Code, CodeNoSuchObject)
	}
	if actionErr.Description != "No such object" {
		t.Errorf("Description = %q", actionErr.Description)
	}
	if actionErr.Action != "Browse" {
		t.Errorf("Action = %q", actionErr.Action)
	}
}

func TestSOAPCallConnectionrefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	client := NewSOAPClient(nil)
	_, err := client.Call(context.Background(), srv.URL, ServiceTypeContentDirectory, "Browse", nil)
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Call() error = %v, want ErrConnection", err)
	}
}

func TestSOAPCallServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.Client())
	_, err := client.Call(context.Background(), srv.URL, ServiceTypeContentDirectory, "Browse", nil)
	if !errors.Is(err, ErrConnection) {
		t.Errorf("Call() error = %v, want ErrConnection", err)
	}
}

func TestSOAPCallMissingResponseElement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<?xml version="1.0"?><s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/"><s:Body/></s:Envelope>`))
	}))
	defer srv.Close()

	client := NewSOAPClient(srv.Client())
	_, err := client.Call(context.Background(), srv.URL, ServiceTypeContentDirectory, "Browse", nil)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("Call() error = %v, want ErrInvalidResponse", err)
	}
}
