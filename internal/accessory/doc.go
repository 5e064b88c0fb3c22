// Package accessory bridges MQTT smart switches (Sonoff/Tasmota style) to a
// home-automation accessory model.
//
// Each Accessory owns:
//   - a Profile resolved once from its config entry
//   - one broker session (Transport)
//   - a HandlerTable mapping report topics to handlers
//   - a cached device state (switch on, status active)
//
// # Message Flow
//
//	device report ──▶ Transport ──▶ HandleMessage ──▶ receiveStatus/State/Activity
//	                                                     │
//	                                                     ▼
//	                                   ApplyFromDevice ──▶ Notifier (origin=device)
//
//	framework set ──▶ SetOn ──▶ Transport.Publish(statusSet, onValue|offValue)
//	                     └────▶ Notifier (origin=user)
//
// Device reports never publish. Only SetOn does.
//
// # Payloads
//
// Status and state topics carry JSON objects such as {"POWER":"ON"}. The
// field name is the last segment of topics.statusSet, so multi-relay devices
// reporting POWER1 and POWER2 on a shared topic can be split across
// accessories. Reports without the field are ignored. The activity topic
// carries a raw string compared verbatim with activityParameter.
//
// # Usage
//
//	acc, err := accessory.New(accessory.Options{
//	    Config:   cfg.Accessories[0],
//	    Notifier: hub,
//	    Logger:   logger.ForAccessory(cfg.Accessories[0].Name),
//	})
//	if err != nil {
//	    return err // configuration defect
//	}
//	if err := acc.Start(ctx); err != nil {
//	    return err
//	}
//	defer acc.Close()
//
//	_ = acc.SetOn(true)
package accessory
