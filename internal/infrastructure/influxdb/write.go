package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteDiscoveryEvent records one device lifecycle change (alive, byebye or
// update) tagged by service type. Non-blocking; points are batched.
func (c *Client) WriteDiscoveryEvent(change string, st string, udn string) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"discovery_events",
		map[string]string{"change": change, "st": st},
		map[string]interface{}{"udn": udn},
		time.Now(),
	))
}

// WriteScanMetric records the duration of one periodic SSDP scan cycle and
// the number of devices known afterwards.
func (c *Client) WriteScanMetric(durationMs float64, devicesSeen int) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"ssdp_scans",
		nil,
		map[string]interface{}{
			"duration_ms":  durationMs,
			"devices_seen": devicesSeen,
		},
		time.Now(),
	))
}

// WriteBrowseMetric records one ContentDirectory request (browse, search or
// resolve) per media source, for tracking server responsiveness.
func (c *Client) WriteBrowseMetric(sourceID string, action string, durationMs float64, itemCount int) {
	if !c.IsConnected() {
		return
	}

	c.writeAPI.WritePoint(write.NewPoint(
		"dlna_requests",
		map[string]string{"source_id": sourceID, "action": action},
		map[string]interface{}{
			"duration_ms": durationMs,
			"item_count":  itemCount,
		},
		time.Now(),
	))
}

// WritePoint records a custom measurement. Keep tags low-cardinality; put
// the data in fields.
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	c.WritePointWithTime(measurement, tags, fields, time.Now())
}

// WritePointWithTime is WritePoint with an explicit timestamp for data that
// arrives late.
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}
	c.writeAPI.WritePoint(write.NewPoint(measurement, tags, fields, timestamp))
}
