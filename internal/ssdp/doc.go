// Package ssdp implements SSDP (Simple Service Discovery Protocol) device
// discovery for Gray Logic Discovery.
//
// The package listens for UPnP advertisements on the SSDP multicast group,
// sends periodic M-SEARCH queries from every usable local source address,
// tracks the devices it sees (including bootid-based reboot detection), and
// fans every device change out to two consumers:
//
//   - callbacks registered with a case-insensitive header match filter
//     (wildcard value MatchAll means "header present, any value")
//   - a static matcher index that creates discovery flows for matching
//     integration domains
//
// # Components
//
//   - Scanner: orchestrates listeners, the periodic scan, callback dispatch,
//     and matcher evaluation. Owns all goroutines; Stop cancels them as a unit.
//   - Listener: one per local source address; receives multicast NOTIFY
//     advertisements and unicast M-SEARCH responses.
//   - DeviceTracker / Device: shared device table keyed by UDN, with
//     per-service-type header sets and last-seen bookkeeping.
//   - DescriptionCache: memoizes device-description fetches per location URL.
//     Failures are cached as empty maps so discovery never blocks on a broken
//     device.
//   - IntegrationMatchers: precomputed subset-match index over integration
//     matcher dictionaries.
//
// # Error Handling
//
// Discovery is best-effort. Malformed datagrams, bad bootid headers, and
// description fetch failures are logged at debug level and swallowed. A
// callback that panics or returns an error is logged and never affects other
// callbacks or the discovery flow.
package ssdp
