// Package paths defines the MQTT topic contract between the gateway
// hardware and this server. Changing these values breaks deployed devices.
package paths

// Upstream: Device -> Server
const (
	// Heartbeat is the gateway liveness report topic.
	// Payload: { "device_id": "...", "firmware": "...", "status": 1 }
	Heartbeat = "gateway/heartbeat"

	// Control is the pump command topic. The server both subscribes to it
	// (commands may originate from other producers) and publishes to it on
	// behalf of HTTP callers.
	// Payload: { "pump_id": 1, "state": 1 }
	Control = "pump/control"

	// Feedback is the hardware status report topic.
	// Payload: { "pump_id": 1, "status": 0-3, "busy": 0-2, "alarm": 0|1 }
	Feedback = "pump/feedback"
)

// Downstream: Server -> Consumers
const (
	// Status is the retained periodic full-state publication.
	Status = "pump/status"
)
