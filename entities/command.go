package entities

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// ParsePriority maps an empty value to normal and rejects unknown values.
func ParsePriority(s string) (Priority, error) {
	switch Priority(s) {
	case "":
		return PriorityNormal, nil
	case PriorityLow, PriorityNormal, PriorityHigh:
		return Priority(s), nil
	}
	return "", fmt.Errorf("unknown priority %q", s)
}

// Command is an operator instruction waiting for a device. It is immutable
// once created and leaves its queue exactly once: by dequeue or by expiry.
type Command struct {
	ID           string                 `json:"command_id"`
	TargetDevice string                 `json:"device_id"`
	Verb         string                 `json:"command"`
	Params       map[string]interface{} `json:"params"`
	Priority     Priority               `json:"priority"`
	CreatedAt    time.Time              `json:"created_at"`
	ExpiresAt    time.Time              `json:"expires_at"`
}

// NewCommand stamps a fresh id and the expiry deadline.
func NewCommand(deviceID, verb string, params map[string]interface{}, priority Priority, now time.Time, ttl time.Duration) *Command {
	if params == nil {
		params = map[string]interface{}{}
	}
	if priority == "" {
		priority = PriorityNormal
	}
	return &Command{
		ID:           "cmd_" + uuid.New().String(),
		TargetDevice: deviceID,
		Verb:         verb,
		Params:       params,
		Priority:     priority,
		CreatedAt:    now,
		ExpiresAt:    now.Add(ttl),
	}
}

const (
	ReasonTimeout     = "timeout"
	ReasonUndelivered = "undelivered"
)

// CommandResult is the outcome of a command, reported by the device or
// synthesized when the command expired undelivered.
type CommandResult struct {
	CommandID  string                 `json:"command_id"`
	DeviceID   string                 `json:"device_id,omitempty"`
	Success    bool                   `json:"success"`
	Payload    map[string]interface{} `json:"payload"`
	RecordedAt time.Time              `json:"recorded_at"`
}

// TimeoutResult builds the synthetic failed result for an expired command.
func TimeoutResult(cmd *Command, now time.Time) CommandResult {
	return CommandResult{
		CommandID: cmd.ID,
		DeviceID:  cmd.TargetDevice,
		Success:   false,
		Payload: map[string]interface{}{
			"reason":  ReasonTimeout,
			"command": cmd.Verb,
		},
		RecordedAt: now,
	}
}

// UndeliveredResult records a command that was dequeued for push delivery
// but could not be handed to the device connection.
func UndeliveredResult(cmd *Command, now time.Time) CommandResult {
	return CommandResult{
		CommandID: cmd.ID,
		DeviceID:  cmd.TargetDevice,
		Success:   false,
		Payload: map[string]interface{}{
			"reason":  ReasonUndelivered,
			"command": cmd.Verb,
		},
		RecordedAt: now,
	}
}

// IsTimeout reports whether the result was produced by expiry.
func (r CommandResult) IsTimeout() bool {
	reason, _ := r.Payload["reason"].(string)
	return !r.Success && reason == ReasonTimeout
}
