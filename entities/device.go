package entities

import "time"

// DeviceStatus is the liveness view of a device. Online is derived from
// LastSeen at read time and never stored.
type DeviceStatus struct {
	DeviceID  string                 `json:"device_id"`
	Online    bool                   `json:"online"`
	LastSeen  time.Time              `json:"last_seen"`
	Auxiliary map[string]interface{} `json:"auxiliary"`
}

const (
	AuxCamera = "camera"
	AuxDoor   = "door"

	DoorUnknown = "UNKNOWN"
)

// RelayStatus is what operators on the channel see: the status of the
// device holding the active device connection.
type RelayStatus struct {
	DeviceID  string                 `json:"device_id"`
	Connected bool                   `json:"connected"`
	Online    bool                   `json:"online"`
	Camera    bool                   `json:"camera"`
	Door      string                 `json:"door"`
	Auxiliary map[string]interface{} `json:"auxiliary"`
	LastSeen  *time.Time             `json:"last_seen,omitempty"`
}

// NewRelayStatus folds a tracked DeviceStatus and the connection flag. An
// active connection counts as online whatever lastSeen says.
func NewRelayStatus(deviceID string, connected bool, st *DeviceStatus) RelayStatus {
	rs := RelayStatus{
		DeviceID:  deviceID,
		Connected: connected,
		Online:    connected,
		Door:      DoorUnknown,
		Auxiliary: map[string]interface{}{},
	}
	if st == nil {
		return rs
	}
	rs.Online = connected || st.Online
	seen := st.LastSeen
	rs.LastSeen = &seen
	for k, v := range st.Auxiliary {
		rs.Auxiliary[k] = v
	}
	if cam, ok := st.Auxiliary[AuxCamera].(bool); ok {
		rs.Camera = cam
	}
	if door, ok := st.Auxiliary[AuxDoor].(string); ok && door != "" {
		rs.Door = door
	}
	return rs
}
