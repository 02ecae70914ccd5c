// Package mqtt provides MQTT client connectivity for PBSG Core.
//
// This package manages:
//   - Connection to Mosquitto broker with auto-reconnect
//   - Message publishing with QoS guarantees
//   - Topic subscriptions with wildcard support
//   - Last Will and Testament (LWT) for offline detection
//   - Connection health monitoring
//
// # Architecture
//
// PBSG Core uses MQTT as its external message bus. Group attributes
// are published retained so dashboards and automations always see
// current state; command topics let external publishers drive groups;
// switch topics mirror the per-button companion switches.
//
//	PBSG Core ↔ MQTT Broker ↔ Dashboards / Automations
//
// # Security Considerations
//
//   - TLS is required for production deployments (cfg.Broker.TLS=true)
//   - Credentials are validated against broker ACL
//   - Anonymous access is only for local development
//   - Message payloads are not encrypted beyond TLS transport
//
// # Performance Characteristics
//
//   - Connection: <1 second to local broker
//   - Publish latency: <10ms for QoS 1 to local broker
//   - Reconnect: Exponential backoff 1s-60s with jitter
//   - Message throughput: Broker-limited (typically 10K+ msg/sec)
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	// Subscribe to every group's command intake
//	err = client.Subscribe(mqtt.Topics{}.AllGroupCommands(), 1,
//	    func(topic string, payload []byte) error {
//	        log.Printf("Received: %s = %s", topic, payload)
//	        return nil
//	    })
//
//	// Publish a retained attribute
//	topic := mqtt.Topics{}.GroupAttribute("lounge-scenes", "active")
//	client.Publish(topic, []byte(`"Evening"`), 1, true)
package mqtt
