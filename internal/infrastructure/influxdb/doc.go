// Package influxdb records accessory characteristic changes in InfluxDB.
//
// Every value pushed to the framework (switch on/off, outlet in use, status
// active) can be written as a point so switch history can be graphed:
//
//	accessory_characteristic,accessory=Desk\ Lamp,characteristic=on,origin=device value=1i
//
// Nothing is read back; the bridge keeps no state across restarts.
//
// # Usage
//
//	client, err := influxdb.Connect(ctx, cfg.InfluxDB)
//	if errors.Is(err, influxdb.ErrDisabled) {
//	    // telemetry off
//	}
//	defer client.Close()
//
//	client.SetOnError(func(err error) { logger.Warn("influxdb write failed", "error", err) })
//	client.WriteCharacteristic("Desk Lamp", "on", "user", true, time.Now())
//
// # Thread Safety
//
// All methods are safe for concurrent use from multiple goroutines.
// Writes are batched according to batch_size and flush_interval.
package influxdb
