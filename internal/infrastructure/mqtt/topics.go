package mqtt

import "fmt"

// Topic prefixes per Gray Logic MQTT specification.
// See docs/protocols/mqtt.md for complete topic hierarchy.
//
// Discovery topics use the flat scheme: graylogic/discovery/{category}/{id}
// matching the conventions used by the rest of the platform.
const (
	// TopicPrefixDiscovery is the base for all discovery topics.
	TopicPrefixDiscovery = "graylogic/discovery"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graylogic/system"
)

// Topics provides builders for Gray Logic MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	eventTopic := topics.DiscoveryEvent("alive")
//	// Returns: "graylogic/discovery/event/alive"
type Topics struct{}

// =============================================================================
// Discovery Topics
// =============================================================================

// DiscoveryEvent returns the topic for device change events.
// Change is one of "alive", "byebye", or "update".
//
// Example: graylogic/discovery/event/alive
func (Topics) DiscoveryEvent(change string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefixDiscovery, change)
}

// DiscoveryDevice returns the topic for a device's current description.
// Published retained so late subscribers see the known device set.
//
// Example: graylogic/discovery/device/uuid:abc-123
func (Topics) DiscoveryDevice(udn string) string {
	return fmt.Sprintf("%s/device/%s", TopicPrefixDiscovery, udn)
}

// DiscoveryFlow returns the topic for integration flow creation events.
//
// Example: graylogic/discovery/flow/dlna_dms
func (Topics) DiscoveryFlow(domain string) string {
	return fmt.Sprintf("%s/flow/%s", TopicPrefixDiscovery, domain)
}

// DiscoverySource returns the topic for media source availability changes.
//
// Example: graylogic/discovery/source/living-room-nas
func (Topics) DiscoverySource(sourceID string) string {
	return fmt.Sprintf("%s/source/%s", TopicPrefixDiscovery, sourceID)
}

// =============================================================================
// System Topics
// =============================================================================

// SystemStatus returns the system status topic.
// Online/offline payloads and the LWT are published here.
//
// Example: graylogic/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// SystemShutdown returns the shutdown signal topic.
//
// Example: graylogic/system/shutdown
func (Topics) SystemShutdown() string {
	return fmt.Sprintf("%s/shutdown", TopicPrefixSystem)
}

// =============================================================================
// Wildcard Patterns for Subscriptions
// =============================================================================

// AllDiscoveryEvents returns a pattern matching all device change events.
//
// Pattern: graylogic/discovery/event/+
func (Topics) AllDiscoveryEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefixDiscovery)
}

// AllDiscoveryDevices returns a pattern matching all device descriptions.
//
// Pattern: graylogic/discovery/device/+
func (Topics) AllDiscoveryDevices() string {
	return fmt.Sprintf("%s/device/+", TopicPrefixDiscovery)
}

// AllDiscoveryFlows returns a pattern matching all flow creation events.
//
// Pattern: graylogic/discovery/flow/+
func (Topics) AllDiscoveryFlows() string {
	return fmt.Sprintf("%s/flow/+", TopicPrefixDiscovery)
}

// AllDiscoverySources returns a pattern matching all source availability topics.
//
// Pattern: graylogic/discovery/source/+
func (Topics) AllDiscoverySources() string {
	return fmt.Sprintf("%s/source/+", TopicPrefixDiscovery)
}

// AllTopics returns a pattern matching all Gray Logic topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: graylogic/#
func (Topics) AllTopics() string {
	return "graylogic/#"
}
