// Package mqtt provides the broker session used by each switchbridge accessory.
//
// This package manages:
//   - One paho.mqtt.golang connection per accessory with a random client id
//   - MQTT 3.1.1, clean session, 10s keep-alive, 30s connect timeout
//   - Fixed 1s reconnect interval, including for the very first connect
//   - A static last will (WillMsg), QoS 0, not retained
//   - Subscription tracking so topics survive reconnects
//   - Fire-and-forget publishing
//
// # Failure Semantics
//
// Open fails only on unusable options. Connection failures and drops are
// logged and retried by the transport; they never terminate the process.
// Handler errors and panics are logged per message.
//
// # Usage
//
//	session, err := mqtt.Open(mqtt.Options{
//	    URL:       "mqtt://10.0.0.2",
//	    OnConnect: func() { /* re-send startup command */ },
//	    Logger:    logger,
//	})
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	err = session.Subscribe("stat/sonoff/RESULT", 0,
//	    func(topic string, payload []byte) error {
//	        return reconcile(payload)
//	    })
package mqtt
