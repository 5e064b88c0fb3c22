package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Measurement is the InfluxDB measurement characteristic changes are written to.
const Measurement = "accessory_characteristic"

// WriteCharacteristic records one characteristic value change.
//
// The write never blocks: the point is queued, batched and sent
// asynchronously, or dropped when the queue is full.
// Booleans are stored as 1/0 so they can be graphed and aggregated.
//
// Example:
//
//	client.WriteCharacteristic("Desk Lamp", "on", "device", true, time.Now())
func (c *Client) WriteCharacteristic(accessory, characteristic, origin string, value bool, at time.Time) {
	numeric := 0
	if value {
		numeric = 1
	}

	point := write.NewPoint(
		Measurement,
		map[string]string{
			"accessory":      accessory,
			"characteristic": characteristic,
			"origin":         origin,
		},
		map[string]interface{}{
			"value": numeric,
		},
		at,
	)

	c.enqueue(point)
}
