package usecases

import (
	"sync"
	"time"

	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/metrics"
	"smartdoor-relay/repositories"
	"smartdoor-relay/services"
)

// CommandPusher delivers commands over a live device connection.
type CommandPusher interface {
	DeviceConnected(deviceID string) bool
	PushCommand(cmd *entities.Command) bool
}

type CommandsUseCase struct {
	queue   repositories.CommandQueue
	results repositories.ResultStore
	devices repositories.DeviceTracker
	clock   clock.Clock
	ttl     time.Duration
	log     *zap.Logger

	pusher  CommandPusher
	flushMu sync.Mutex
}

func NewCommandsUseCase(queue repositories.CommandQueue, results repositories.ResultStore, devices repositories.DeviceTracker,
	clk clock.Clock, ttl time.Duration, log *zap.Logger) *CommandsUseCase {
	return &CommandsUseCase{
		queue:   queue,
		results: results,
		devices: devices,
		clock:   clk,
		ttl:     ttl,
		log:     log,
	}
}

// SetPusher enables push delivery to connected devices.
func (uc *CommandsUseCase) SetPusher(p CommandPusher) {
	uc.pusher = p
}

// Submit queues a command for deviceID. It never fails for capacity: a full
// queue loses its oldest command.
func (uc *CommandsUseCase) Submit(deviceID, verb string, params map[string]interface{}, priority string) (*entities.Command, error) {
	if deviceID == "" || verb == "" {
		return nil, validationError("device_id and command are required")
	}
	prio, err := entities.ParsePriority(priority)
	if err != nil {
		return nil, validationError(err.Error())
	}

	cmd := entities.NewCommand(deviceID, verb, params, prio, uc.clock.Now(), uc.ttl)
	evicted := uc.queue.Enqueue(cmd)
	metrics.CommandEnqueued(evicted != nil)
	if evicted != nil {
		uc.log.Debug("queue full, dropped oldest command",
			zap.String("device_id", deviceID), zap.String("command_id", evicted.ID))
	}

	if uc.pusher != nil && uc.pusher.DeviceConnected(deviceID) {
		uc.Flush(deviceID)
	}
	return cmd, nil
}

// Poll hands the next live command to a polling device, or nil when there
// is none. Expired commands found on the way get timeout results.
func (uc *CommandsUseCase) Poll(deviceID string) (*entities.Command, error) {
	if deviceID == "" {
		return nil, validationError("device_id required")
	}
	uc.devices.Touch(deviceID)
	now := uc.clock.Now()
	cmd, expired := uc.queue.DequeueNext(deviceID, now)
	services.RecordTimeouts(uc.results, expired, now)
	return cmd, nil
}

// Flush pushes every pending command for deviceID over its connection in
// FIFO order and returns how many were delivered.
func (uc *CommandsUseCase) Flush(deviceID string) int {
	if uc.pusher == nil {
		return 0
	}
	uc.flushMu.Lock()
	defer uc.flushMu.Unlock()

	delivered := 0
	for uc.pusher.DeviceConnected(deviceID) {
		now := uc.clock.Now()
		cmd, expired := uc.queue.DequeueNext(deviceID, now)
		services.RecordTimeouts(uc.results, expired, now)
		if cmd == nil {
			break
		}
		if !uc.pusher.PushCommand(cmd) {
			if accepted, evicted := uc.results.Record(entities.UndeliveredResult(cmd, now)); accepted {
				metrics.ResultRecorded(metrics.ResultFailed, evicted)
			}
			uc.log.Warn("push failed, command dropped",
				zap.String("device_id", deviceID), zap.String("command_id", cmd.ID))
			break
		}
		metrics.CommandPushed()
		delivered++
	}
	return delivered
}

// ReportResult records a device-reported outcome. accepted is false when
// the command already has a result.
func (uc *CommandsUseCase) ReportResult(deviceID string, p entities.ResultPayload) (bool, error) {
	if p.CommandID == "" {
		return false, validationError("command_id required")
	}
	if deviceID != "" {
		uc.devices.Touch(deviceID)
	}
	payload := p.Payload
	if payload == nil {
		payload = map[string]interface{}{}
	}
	accepted, evicted := uc.results.Record(entities.CommandResult{
		CommandID:  p.CommandID,
		DeviceID:   deviceID,
		Success:    p.Success,
		Payload:    payload,
		RecordedAt: uc.clock.Now(),
	})
	if !accepted {
		uc.log.Debug("duplicate result ignored", zap.String("command_id", p.CommandID))
		return false, nil
	}
	status := metrics.ResultAcked
	if !p.Success {
		status = metrics.ResultFailed
	}
	metrics.ResultRecorded(status, evicted)
	return true, nil
}

func (uc *CommandsUseCase) DrainResults() []entities.CommandResult {
	out := uc.results.DrainPending()
	if out == nil {
		out = []entities.CommandResult{}
	}
	return out
}

func (uc *CommandsUseCase) Pending(deviceID string) ([]entities.Command, error) {
	if deviceID == "" {
		return nil, validationError("device_id required")
	}
	out := uc.queue.Pending(deviceID)
	if out == nil {
		out = []entities.Command{}
	}
	return out, nil
}
