package entities

import "encoding/json"

// Channel message types.
const (
	MsgStatus     = "status"
	MsgLog        = "log"
	MsgResult     = "result"
	MsgCommand    = "command"
	MsgReport     = "report"
	MsgDoorStatus = "door_status"
	MsgAuxiliary  = "auxiliary"
	MsgHeartbeat  = "heartbeat"
	MsgError      = "error"
)

// Envelope frames every realtime channel message.
type Envelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Encode marshals a typed payload into an envelope.
func Encode(msgType string, data interface{}) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Data: raw})
}

// ReportPayload is a device log report.
type ReportPayload struct {
	Type  string `json:"type"`
	Msg   string `json:"msg"`
	Image string `json:"image,omitempty"`
}

// CommandPayload is a command on the channel, in either direction.
type CommandPayload struct {
	Cmd       string                 `json:"cmd"`
	CommandID string                 `json:"command_id,omitempty"`
	Params    map[string]interface{} `json:"params,omitempty"`
}

// ResultPayload is a device-reported command outcome.
type ResultPayload struct {
	CommandID string                 `json:"command_id"`
	Success   bool                   `json:"success"`
	Payload   map[string]interface{} `json:"payload"`
}
