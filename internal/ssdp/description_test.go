package ssdp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
)

const testDescriptionXML = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
  <device>
    <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
    <friendlyName>Living Room NAS</friendlyName>
    <manufacturer>Acme</manufacturer>
    <modelName>NAS-4000</modelName>
    <UDN>uuid:abc</UDN>
  </device>
</root>`

func TestDescriptionFetchAndParse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(testDescriptionXML))
	}))
	defer server.Close()

	cache := NewDescriptionCache(server.Client(), 0)
	desc := cache.Description(context.Background(), server.URL)

	if desc["friendlyName"] != "Living Room NAS" {
		t.Errorf("friendlyName = %q", desc["friendlyName"])
	}
	if desc["manufacturer"] != "Acme" {
		t.Errorf("manufacturer = %q", desc["manufacturer"])
	}
	if desc["deviceType"] != "urn:schemas-upnp-org:device:MediaServer:1" {
		t.Errorf("deviceType = %q", desc["deviceType"])
	}
	if desc["UDN"] != "uuid:abc" {
		t.Errorf("UDN = %q", desc["UDN"])
	}
}

func TestDescriptionMemoized(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.Write([]byte(testDescriptionXML))
	}))
	defer server.Close()

	cache := NewDescriptionCache(server.Client(), 0)
	cache.Description(context.Background(), server.URL)
	cache.Description(context.Background(), server.URL)
	cache.Description(context.Background(), server.URL)

	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDescriptionFailureMemoizedAsEmpty(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cache := NewDescriptionCache(server.Client(), 0)

	desc := cache.Description(context.Background(), server.URL)
	if desc == nil || len(desc) != 0 {
		t.Errorf("Description() = %v, want empty map", desc)
	}

	// The failure itself is cached; the broken device is not re-fetched.
	cache.Description(context.Background(), server.URL)
	if got := hits.Load(); got != 1 {
		t.Errorf("server hits = %d, want 1", got)
	}
}

func TestDescriptionEmptyLocation(t *testing.T) {
	cache := NewDescriptionCache(nil, 0)

	desc := cache.Description(context.Background(), "")
	if desc == nil || len(desc) != 0 {
		t.Errorf("Description(\"\") = %v, want empty map", desc)
	}
}

func TestDescriptionUnparseableBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte("this is not xml"))
	}))
	defer server.Close()

	cache := NewDescriptionCache(server.Client(), 0)
	desc := cache.Description(context.Background(), server.URL)
	if len(desc) != 0 {
		t.Errorf("Description() = %v, want empty map", desc)
	}
}

func TestDescriptionNewLocationNewEntry(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/new.xml" {
			w.Write([]byte(testDescriptionXML))
			return
		}
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	cache := NewDescriptionCache(server.Client(), 0)

	old := cache.Description(context.Background(), server.URL+"/old.xml")
	if len(old) != 0 {
		t.Fatalf("old location should fail: %v", old)
	}

	// A device announcing a new location gets a fresh fetch.
	fresh := cache.Description(context.Background(), server.URL+"/new.xml")
	if fresh["friendlyName"] != "Living Room NAS" {
		t.Errorf("friendlyName = %q after location change", fresh["friendlyName"])
	}
}
