package tsdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteTransition records one applied transition or rebuild.
//
// The write is non-blocking; points are batched and sent asynchronously.
//
// Parameters:
//   - instance: Group name (e.g., "lounge-scenes")
//   - kind: Command kind that fired ("activate", "deactivate", "push", "rebuild")
//   - rule: Transition rule that resolved the command
//   - button: Button the transition landed on (empty for rebuilds)
//   - position: 1-based position for pushes, 0 otherwise
//
// Example:
//
//	client.WriteTransition("lounge-scenes", "activate", "activated", "Evening", 0)
func (c *Client) WriteTransition(instance, kind, rule, button string, position int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pbsg_transition",
		map[string]string{
			"instance": instance,
			"kind":     kind,
			"rule":     rule,
			"button":   button,
		},
		map[string]interface{}{
			"position": position,
			"changed":  true,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteActiveState records the group's current active button as a gauge.
//
// Written whenever the active attribute changes, so the series always
// reflects which button holds the group.
//
// Parameters:
//   - instance: Group name
//   - active: Active button name, empty when the group is dark
func (c *Client) WriteActiveState(instance, active string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pbsg_state",
		map[string]string{
			"instance": instance,
		},
		map[string]interface{}{
			"active": active,
			"lit":    active != "",
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteButtonCount records the group's configured button count.
//
// Written after structural rebuilds; the series tracks configuration
// growth over time.
func (c *Client) WriteButtonCount(instance string, count int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"pbsg_state",
		map[string]string{
			"instance": instance,
		},
		map[string]interface{}{
			"button_count": count,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WritePoint writes a custom point with full control over tags and fields.
//
// Use this for custom measurements that don't fit the helper methods.
//
// Parameters:
//   - measurement: The measurement name (table)
//   - tags: Key-value pairs for indexing (low cardinality)
//   - fields: Key-value pairs for the actual data
//
// Example:
//
//	client.WritePoint("system_stats",
//	    map[string]string{"host": "core-01"},
//	    map[string]interface{}{"cpu_percent": 45.2, "memory_mb": 512})
func (c *Client) WritePoint(measurement string, tags map[string]string, fields map[string]interface{}) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePointWithTime writes a custom point with a specific timestamp.
//
// Use this when the timestamp is not "now" (e.g., delayed data).
//
// Parameters:
//   - measurement: The measurement name
//   - tags: Key-value pairs for indexing
//   - fields: Key-value pairs for the data
//   - timestamp: The exact time for this data point
func (c *Client) WritePointWithTime(measurement string, tags map[string]string, fields map[string]interface{}, timestamp time.Time) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(measurement, tags, fields, timestamp)
	c.writeAPI.WritePoint(point)
}
