package upnp

import (
	"encoding/xml"
	"fmt"
	"strconv"
	"strings"
)

// Resource is a <res> element: one rendition of an object, addressed by
// URI and described by a DLNA protocolInfo string.
type Resource struct {
	URI          string `xml:",chardata"`
	ProtocolInfo string `xml:"protocolInfo,attr"`
	Size         string `xml:"size,attr"`
	Duration     string `xml:"duration,attr"`
}

// MimeType extracts the content-format field from the resource's
// protocolInfo (third of four colon-separated fields). It returns ""
// when the protocolInfo is absent or truncated.
func (r Resource) MimeType() string {
	fields := strings.SplitN(r.ProtocolInfo, ":", 4)
	if len(fields) < 4 {
		return ""
	}
	return fields[2]
}

// Protocol returns the first field of the resource's protocolInfo, e.g.
// "http-get". Empty when protocolInfo is absent.
func (r Resource) Protocol() string {
	proto, _, _ := strings.Cut(r.ProtocolInfo, ":")
	return proto
}

// Object is a DIDL-Lite container or item.
type Object struct {
	ID          string
	ParentID    string
	Restricted  string
	childCount  string // container childCount attribute, raw
	Title       string
	Class       string
	AlbumArtURI string
	Artist      string
	Album       string
	Resources   []Resource

	// Container reports whether the object arrived as a <container>
	// element rather than an <item>.
	Container bool
}

// ChildCount returns the container's declared child count, or -1 when the
// attribute is absent or malformed.
func (o Object) ChildCount() int {
	n, err := strconv.Atoi(o.childCount)
	if err != nil {
		return -1
	}
	return n
}

// didlObject mirrors Object for decoding; the unexported childCount field
// on Object is not reachable by the xml package.
type didlObject struct {
	ID          string     `xml:"id,attr"`
	ParentID    string     `xml:"parentID,attr"`
	Restricted  string     `xml:"restricted,attr"`
	ChildCount  string     `xml:"childCount,attr"`
	Title       string     `xml:"title"`
	Class       string     `xml:"class"`
	AlbumArtURI string     `xml:"albumArtURI"`
	Artist      string     `xml:"artist"`
	Album       string     `xml:"album"`
	Resources   []Resource `xml:"res"`
}

type didlDocument struct {
	Containers []didlObject `xml:"container"`
	Items      []didlObject `xml:"item"`
}

// ParseDIDL parses a DIDL-Lite document as returned in a Browse or Search
// Result argument. Containers precede items in the returned slice.
func ParseDIDL(document string) ([]Object, error) {
	if document == "" {
		return nil, nil
	}
	var doc didlDocument
	if err := xml.Unmarshal([]byte(document), &doc); err != nil {
		return nil, fmt.Errorf("%w: didl: %v", ErrInvalidResponse, err)
	}
	objects := make([]Object, 0, len(doc.Containers)+len(doc.Items))
	for _, c := range doc.Containers {
		objects = append(objects, toObject(c, true))
	}
	for _, i := range doc.Items {
		objects = append(objects, toObject(i, false))
	}
	return objects, nil
}

func toObject(raw didlObject, container bool) Object {
	return Object{
		ID:          raw.ID,
		ParentID:    raw.ParentID,
		Restricted:  raw.Restricted,
		childCount:  raw.ChildCount,
		Title:       raw.Title,
		Class:       raw.Class,
		AlbumArtURI: raw.AlbumArtURI,
		Artist:      raw.Artist,
		Album:       raw.Album,
		Resources:   raw.Resources,
		Container:   container,
	}
}
