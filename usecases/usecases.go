package usecases

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"smartdoor-relay/clock"
	"smartdoor-relay/entities"
	"smartdoor-relay/metrics"
	"smartdoor-relay/repositories"
	"smartdoor-relay/services"
	"smartdoor-relay/storage"
)

var (
	ErrValidation = errors.New("validation failed")
	ErrNotFound   = errors.New("not found")
)

func validationError(msg string) error {
	return fmt.Errorf("%w: %s", ErrValidation, msg)
}

// Broadcaster fans relay events out to connected operators.
type Broadcaster interface {
	BroadcastLog(entry entities.LogEntry, view entities.LogView)
	BroadcastStatus()
}

// DeviceUseCase covers device contact, the event log and media.
type DeviceUseCase struct {
	devices   repositories.DeviceTracker
	logs      repositories.LogStore
	offload   *services.OffloadPipeline
	store     storage.ObjectStore
	broadcast Broadcaster
	clock     clock.Clock
	urlTTL    time.Duration
	log       *zap.Logger

	// append and fan-out happen together so operators see log ids in order
	publishMu sync.Mutex
}

func NewDeviceUseCase(devices repositories.DeviceTracker, logs repositories.LogStore, offload *services.OffloadPipeline,
	store storage.ObjectStore, broadcast Broadcaster, clk clock.Clock, urlTTL time.Duration, log *zap.Logger) *DeviceUseCase {
	return &DeviceUseCase{
		devices:   devices,
		logs:      logs,
		offload:   offload,
		store:     store,
		broadcast: broadcast,
		clock:     clk,
		urlTTL:    urlTTL,
		log:       log,
	}
}

// Heartbeat refreshes liveness and returns the server time.
func (uc *DeviceUseCase) Heartbeat(deviceID string) (time.Time, error) {
	if deviceID == "" {
		return time.Time{}, validationError("device_id required")
	}
	uc.devices.Touch(deviceID)
	return uc.clock.Now(), nil
}

// ReportEvent records a device event in the log and broadcasts it.
func (uc *DeviceUseCase) ReportEvent(deviceID, kind, message, image string, extra map[string]interface{}) (entities.LogEntry, error) {
	if deviceID == "" {
		return entities.LogEntry{}, validationError("device_id required")
	}
	if kind == "" {
		return entities.LogEntry{}, validationError("type required")
	}
	uc.devices.Touch(deviceID)
	return uc.Publish(entities.LogEntry{
		Kind:     kind,
		Message:  message,
		DeviceID: deviceID,
		Extra:    extra,
		Media:    entities.Media{Inline: entities.NormalizeImage(image)},
	}), nil
}

// SystemEvent logs an operator-triggered action.
func (uc *DeviceUseCase) SystemEvent(message string) entities.LogEntry {
	return uc.Publish(entities.LogEntry{Kind: entities.KindSystem, Message: message})
}

// Publish stores entry, broadcasts it with its inline media and hands the
// media to the offload pipeline.
func (uc *DeviceUseCase) Publish(entry entities.LogEntry) entities.LogEntry {
	if entry.Time.IsZero() {
		entry.Time = uc.clock.Now()
	}

	uc.publishMu.Lock()
	stored, evicted := uc.logs.Append(entry)
	if uc.broadcast != nil {
		uc.broadcast.BroadcastLog(stored, stored.View(""))
	}
	uc.publishMu.Unlock()

	if evicted {
		metrics.LogEvicted()
	}
	if uc.offload != nil {
		uc.offload.Offload(stored)
	}
	return stored
}

// MergeAuxiliary folds aux into the device's auxiliary state and
// broadcasts the new status.
func (uc *DeviceUseCase) MergeAuxiliary(deviceID string, aux map[string]interface{}) error {
	if deviceID == "" {
		return validationError("device_id required")
	}
	if len(aux) == 0 {
		uc.devices.Touch(deviceID)
		return nil
	}
	uc.devices.MergeAuxiliary(deviceID, aux)
	if uc.broadcast != nil {
		uc.broadcast.BroadcastStatus()
	}
	return nil
}

func (uc *DeviceUseCase) SetDoor(deviceID, state string) error {
	if state == "" {
		return validationError("door state required")
	}
	return uc.MergeAuxiliary(deviceID, map[string]interface{}{entities.AuxDoor: state})
}

func (uc *DeviceUseCase) Statuses() []entities.DeviceStatus {
	return uc.devices.Snapshot()
}

// History renders the whole log buffer oldest first, signing storage keys.
func (uc *DeviceUseCase) History(ctx context.Context) []entities.LogView {
	return uc.render(ctx, uc.logs.History())
}

// Since renders entries newer than lastID and returns the newest id seen.
func (uc *DeviceUseCase) Since(ctx context.Context, lastID int64) ([]entities.LogView, int64) {
	entries := uc.logs.Since(lastID)
	latest := lastID
	if n := len(entries); n > 0 {
		latest = entries[n-1].ID
	}
	return uc.render(ctx, entries), latest
}

func (uc *DeviceUseCase) render(ctx context.Context, entries []entities.LogEntry) []entities.LogView {
	out := make([]entities.LogView, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.View(uc.sign(ctx, e)))
	}
	return out
}

func (uc *DeviceUseCase) sign(ctx context.Context, e entities.LogEntry) string {
	if e.Media.StorageKey == "" || uc.store == nil {
		return ""
	}
	url, err := uc.store.SignedURL(ctx, e.Media.StorageKey, uc.urlTTL)
	if err != nil {
		uc.log.Warn("sign url failed", zap.Int64("log_id", e.ID), zap.String("key", e.Media.StorageKey), zap.Error(err))
		return ""
	}
	return url
}

// Upload stores a device-captured file directly and returns its key and a
// signed link.
func (uc *DeviceUseCase) Upload(ctx context.Context, kind string, data []byte, contentType string) (string, string, error) {
	if kind != "granted" && kind != "denied" {
		return "", "", validationError("kind must be granted or denied")
	}
	if len(data) == 0 {
		return "", "", validationError("empty file")
	}
	if uc.store == nil {
		return "", "", errors.New("storage not configured")
	}
	key, err := uc.store.Put(ctx, data, contentType)
	if err != nil {
		return "", "", fmt.Errorf("store upload: %w", err)
	}
	url, err := uc.store.SignedURL(ctx, key, uc.urlTTL)
	if err != nil {
		return "", "", fmt.Errorf("sign upload: %w", err)
	}
	return key, url, nil
}
