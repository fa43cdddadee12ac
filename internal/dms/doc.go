// Package dms manages DLNA media-server sources: connection state driven
// by SSDP lifecycle events, media browsing and resolving over the server's
// ContentDirectory service, and a registry mapping stable entry IDs to
// human-facing source IDs.
//
// # Connection State
//
// A Source is disconnected until its first successful Connect, which
// fetches the device description and binds a ContentDirectory client.
// HandleSSDP drives the state machine from discovery events: alive
// messages connect an unconnected source (once, until the next lifecycle
// change, so an unreachable server is not hammered), byebye disconnects,
// and a BOOTID change signals a reboot and forces a reconnect. An UPDATE
// carrying the current BOOTID adopts NEXTBOOTID so the following alive is
// not mistaken for a reboot.
//
// # Identifiers
//
// Media is addressed as {source_id}/{flag}{payload}. The flag selects the
// mode: ":" is a ContentDirectory object ID, "/" a title path walked one
// segment at a time, "?" a search query. A bare payload is treated as a
// path; an empty identifier browses the server root.
package dms
