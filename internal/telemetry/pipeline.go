package telemetry

import (
	"context"
	"log/slog"
	"strings"

	"smartcoop/server/internal/alert"
	"smartcoop/server/internal/model"
)

// ReadingStore persists canonical readings.
type ReadingStore interface {
	SaveReading(ctx context.Context, reading *model.Reading) error
}

// DeviceRegistry resolves device configuration and device owners. Lookup
// misses are returned as nil / empty values, not errors.
type DeviceRegistry interface {
	DeviceByID(ctx context.Context, deviceID string) (*model.Device, error)
	ContactForUser(ctx context.Context, userID int64) (string, error)
}

// Dispatcher sends a text message to a contact address. Delivery failures
// are handled inside the dispatcher and never surfaced here.
type Dispatcher interface {
	Send(ctx context.Context, to, body string)
}

// Pipeline processes inbound telemetry messages: normalize, persist,
// evaluate thresholds, and notify the device owner on a breach.
type Pipeline struct {
	store    ReadingStore
	registry DeviceRegistry
	notifier Dispatcher
	logger   *slog.Logger
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(store ReadingStore, registry DeviceRegistry, notifier Dispatcher, logger *slog.Logger) *Pipeline {
	return &Pipeline{store: store, registry: registry, notifier: notifier, logger: logger}
}

// DeviceIDFromTopic extracts the device identifier from a telemetry topic
// of the shape devices/{id}/data. Malformed topics yield an empty
// identifier; the registry lookup will simply miss.
func DeviceIDFromTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// HandleMessage runs the full ingestion flow for one pub/sub message.
// Every failure is logged and swallowed; nothing is reported back to the
// transport and nothing is retried.
func (p *Pipeline) HandleMessage(ctx context.Context, topic string, payload []byte) {
	deviceID := DeviceIDFromTopic(topic)

	reading, err := ParsePayload(payload)
	if err != nil {
		p.logger.Warn("telemetry payload rejected", "topic", topic, "error", err)
		return
	}
	reading.DeviceID = deviceID

	p.logger.Info("telemetry received",
		"device", deviceID, "temperature", reading.Temperature, "gas_ppm", reading.GasPPM)

	if err := p.store.SaveReading(ctx, &reading); err != nil {
		p.logger.Error("failed to persist reading", "device", deviceID, "error", err)
		return
	}

	device, err := p.registry.DeviceByID(ctx, deviceID)
	if err != nil {
		p.logger.Error("device lookup failed", "device", deviceID, "error", err)
		return
	}
	if device == nil {
		// Telemetry from unregistered devices is kept for the record but
		// never alerted on.
		return
	}

	result := alert.Evaluate(reading, *device)
	if !result.Alert() {
		return
	}

	contact, err := p.registry.ContactForUser(ctx, device.UserID)
	if err != nil {
		p.logger.Error("owner lookup failed", "device", deviceID, "user", device.UserID, "error", err)
		return
	}
	if contact == "" {
		return
	}

	p.notifier.Send(ctx, contact, result.Message)
}
