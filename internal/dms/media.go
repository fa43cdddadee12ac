package dms

import (
	"strings"

	"github.com/nerrad567/gray-logic-discovery/internal/upnp"
)

// Protocols a resource can be fetched over directly. Resources without a
// protocolInfo are assumed streamable rather than silently dropped.
var streamableProtocols = map[string]bool{
	"http-get":     true,
	"rtsp-rtp-udp": true,
	"internal":     true,
}

// MediaItem is one browseable or playable entry from a media server.
type MediaItem struct {
	Identifier string      `json:"identifier"`
	SourceID   string      `json:"source_id"`
	Title      string      `json:"title"`
	Class      string      `json:"upnp_class,omitempty"`
	MimeType   string      `json:"mime_type,omitempty"`
	URL        string      `json:"url,omitempty"`
	Thumbnail  string      `json:"thumbnail,omitempty"`
	CanPlay    bool        `json:"can_play"`
	CanExpand  bool        `json:"can_expand"`
	Children   []MediaItem `json:"children,omitempty"`
}

func resourceIsStreamable(r upnp.Resource) bool {
	if r.ProtocolInfo == "" {
		return true
	}
	return streamableProtocols[r.Protocol()]
}

// mediaItem converts a DIDL object into the media model. resolved requests
// the playable URL; browsing leaves URL empty.
func (s *Source) mediaItem(object upnp.Object, resolved bool) MediaItem {
	item := MediaItem{
		Identifier: s.ID() + pathSep + objectFlag + object.ID,
		SourceID:   s.ID(),
		Title:      object.Title,
		Class:      object.Class,
		CanExpand:  object.Container || object.ChildCount() > 0,
	}
	if object.ID == RootObjectID && item.Title == "" {
		item.Title = s.Name()
	}

	for _, res := range object.Resources {
		if !resourceIsStreamable(res) {
			continue
		}
		item.CanPlay = true
		item.MimeType = res.MimeType()
		if resolved {
			item.URL = s.absoluteURL(res.URI)
		}
		break
	}

	item.Thumbnail = s.thumbnailURL(object)
	return item
}

func (s *Source) thumbnailURL(object upnp.Object) string {
	if object.AlbumArtURI != "" {
		return s.absoluteURL(object.AlbumArtURI)
	}
	for _, res := range object.Resources {
		if res.Protocol() == "http-get" && strings.HasPrefix(res.MimeType(), "image/") {
			return s.absoluteURL(res.URI)
		}
	}
	return ""
}
