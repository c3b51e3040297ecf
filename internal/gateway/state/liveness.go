package state

import "time"

const (
	// OnlineTimeout is how long after the last heartbeat the gateway is
	// still considered online.
	OnlineTimeout = 30 * time.Second

	maxDeviceIDLen = 64
	maxFirmwareLen = 32
)

// gatewayLiveness is the Store's record of the field gateway itself, fed
// exclusively by heartbeat messages.
type gatewayLiveness struct {
	reportedStatus int
	lastSeenAt     time.Time
	deviceID       string
	firmware       string
}

// onlineAt reports whether the gateway counts as online at the given
// instant. A gateway that has never been heard from is offline.
func (g gatewayLiveness) onlineAt(now time.Time) bool {
	return !g.lastSeenAt.IsZero() && now.Sub(g.lastSeenAt) < OnlineTimeout
}

// GatewayStatus is the derived, read-only view of gateway liveness served
// over the HTTP API.
type GatewayStatus struct {
	Status               int
	IsOnline             bool
	DeviceID             string
	FirmwareVersion      string
	LastSeen             int64
	SecondsSinceLastSeen int64
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
