// Package mqtt connects the discovery service to the Gray Logic message
// bus. Device lifecycle events, flow notifications and source state land on
// graylogic/discovery/* topics so the core and panel layers can react
// without speaking SSDP themselves.
//
// The client auto-reconnects with exponential backoff, re-subscribes after
// a reconnect, and registers a Last Will so subscribers can tell a crash
// from a graceful shutdown. Production brokers should require TLS and
// credentials; anonymous plaintext is for local development only.
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil { ... }
//	defer client.Close()
//
//	client.Subscribe(mqtt.Topics{}.AllDiscoveryEvents(), 1,
//	    func(topic string, payload []byte) error {
//	        ...
//	        return nil
//	    })
//
//	client.Publish(mqtt.Topics{}.DiscoveryEvent("alive"), payload, 1, false)
package mqtt
