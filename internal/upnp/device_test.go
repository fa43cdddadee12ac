package upnp

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

const testDescription = `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
 <device>
  <deviceType>urn:schemas-upnp-org:device:MediaServer:1</deviceType>
  <friendlyName>Test Media Server</friendlyName>
  <manufacturer>Acme</manufacturer>
  <modelName>Streamer 3000</modelName>
  <UDN>uuid:abc-123</UDN>
  <iconList>
   <icon>
    <mimetype>image/png</mimetype>
    <width>48</width>
    <height>48</height>
    <url>/icons/sm.png</url>
   </icon>
  </iconList>
  <serviceList>
   <service>
    <serviceType>urn:schemas-upnp-org:service:ContentDirectory:4</serviceType>
    <serviceId>urn:upnp-org:serviceId:ContentDirectory</serviceId>
    <controlURL>/ctl/ContentDir</controlURL>
    <eventSubURL>/evt/ContentDir</eventSubURL>
    <SCPDURL>/ContentDir.xml</SCPDURL>
   </service>
   <service>
    <serviceType>urn:schemas-upnp-org:service:ConnectionManager:1</serviceType>
    <serviceId>urn:upnp-org:serviceId:ConnectionManager</serviceId>
    <controlURL>/ctl/ConnMgr</controlURL>
    <eventSubURL>/evt/ConnMgr</eventSubURL>
    <SCPDURL>/ConnMgr.xml</SCPDURL>
   </service>
  </serviceList>
 </device>
</root>`

func TestFetchDevice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/xml")
		w.Write([]byte(testDescription))
	}))
	defer srv.Close()

	device, err := FetchDevice(context.Background(), srv.Client(), srv.URL+"/rootDesc.xml")
	if err != nil {
		t.Fatalf("FetchDevice() error = %v", err)
	}
	if device.FriendlyName != "Test Media Server" {
		t.Errorf("FriendlyName = %q", device.FriendlyName)
	}
	if device.UDN != "uuid:abc-123" {
		t.Errorf("UDN = %q", device.UDN)
	}
	if len(device.Services) != 2 {
		t.Fatalf("len(Services) = %d, want 2", len(device.Services))
	}
	if len(device.Icons) != 1 || device.Icons[0].Width != 48 {
		t.Errorf("Icons = %+v", device.Icons)
	}
}

func TestFetchDeviceNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := FetchDevice(context.Background(), srv.Client(), srv.URL)
	if !errors.Is(err, ErrConnection) {
		t.Errorf("FetchDevice() error = %v, want ErrConnection", err)
	}
}

func TestFetchDeviceMalformed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not xml at all <<<"))
	}))
	defer srv.Close()

	_, err := FetchDevice(context.Background(), srv.Client(), srv.URL)
	if !errors.Is(err, ErrInvalidResponse) {
		t.Errorf("FetchDevice() error = %v, want ErrInvalidResponse", err)
	}
}

func TestServiceByTypeIgnoresVersion(t *testing.T) {
	device, err := parseDevice("http://10.0.0.5:8200/rootDesc.xml", []byte(testDescription))
	if err != nil {
		t.Fatalf("parseDevice() error = %v", err)
	}

	// The description advertises ContentDirectory:4; a :1 lookup matches.
	svc, ok := device.ServiceByType(ServiceTypeContentDirectory)
	if !ok {
		t.Fatal("ServiceByType() did not find ContentDirectory")
	}
	if svc.ControlURL != "/ctl/ContentDir" {
		t.Errorf("ControlURL = %q", svc.ControlURL)
	}

	if _, ok := device.ServiceByType("urn:schemas-upnp-org:service:AVTransport:1"); ok {
		t.Error("ServiceByType() found a service the device does not offer")
	}
}

func TestAbsoluteURL(t *testing.T) {
	device, err := parseDevice("http://10.0.0.5:8200/rootDesc.xml", []byte(testDescription))
	if err != nil {
		t.Fatalf("parseDevice() error = %v", err)
	}

	tests := []struct {
		ref  string
		want string
	}{
		{"/ctl/ContentDir", "http://10.0.0.5:8200/ctl/ContentDir"},
		{"icons/sm.png", "http://10.0.0.5:8200/icons/sm.png"},
		{"http://other.example/art.jpg", "http://other.example/art.jpg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := device.AbsoluteURL(tt.ref); got != tt.want {
			t.Errorf("AbsoluteURL(%q) = %q, want %q", tt.ref, got, tt.want)
		}
	}
}

func TestParseDeviceURLBase(t *testing.T) {
	description := `<?xml version="1.0"?>
<root xmlns="urn:schemas-upnp-org:device-1-0">
 <URLBase>http://10.0.0.9:9000/</URLBase>
 <device>
  <friendlyName>Legacy Server</friendlyName>
  <UDN>uuid:legacy</UDN>
 </device>
</root>`
	device, err := parseDevice("http://10.0.0.5:8200/rootDesc.xml", []byte(description))
	if err != nil {
		t.Fatalf("parseDevice() error = %v", err)
	}
	if got := device.AbsoluteURL("/ctl"); got != "http://10.0.0.9:9000/ctl" {
		t.Errorf("AbsoluteURL() = %q, want URLBase-relative", got)
	}
}
