// Package command interprets inbound chat messages from device owners.
package command

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"smartcoop/server/internal/model"
)

// Intent classifies an inbound message. Only one command is recognized
// today; the tagged form leaves room for more without restructuring.
type Intent int

const (
	IntentUnknown Intent = iota
	IntentCheckStatus
)

// ClassifyIntent normalizes a message body and maps it to an intent.
func ClassifyIntent(body string) Intent {
	switch strings.ToLower(strings.TrimSpace(body)) {
	case "cek", "check":
		return IntentCheckStatus
	default:
		return IntentUnknown
	}
}

// whatsappPrefix is the channel marker Twilio puts on sender addresses.
const whatsappPrefix = "whatsapp:"

// Registry resolves a contact address to its registered device.
type Registry interface {
	DeviceIDByContact(ctx context.Context, contact string) (string, error)
}

// ReadingSource answers the latest-reading query. A nil reading with a nil
// error means no data has been recorded yet.
type ReadingSource interface {
	LatestReading(ctx context.Context, deviceID string) (*model.Reading, error)
}

// Dispatcher sends the reply. Delivery failures are handled inside the
// dispatcher.
type Dispatcher interface {
	Send(ctx context.Context, to, body string)
}

// Interpreter handles inbound chat messages and replies with device status.
type Interpreter struct {
	registry Registry
	readings ReadingSource
	replier  Dispatcher
	location *time.Location
	logger   *slog.Logger
}

// NewInterpreter wires the command interpreter. Reading timestamps in
// replies are rendered in loc.
func NewInterpreter(registry Registry, readings ReadingSource, replier Dispatcher, loc *time.Location, logger *slog.Logger) *Interpreter {
	if loc == nil {
		loc = time.Local
	}
	return &Interpreter{registry: registry, readings: readings, replier: replier, location: loc, logger: logger}
}

// HandleIncoming processes one inbound message. A recognized command always
// produces exactly one reply, falling back to a generic server-error reply
// on internal failure. Unrecognized text produces no reply at all.
func (i *Interpreter) HandleIncoming(ctx context.Context, from, body string) {
	if ClassifyIntent(body) != IntentCheckStatus {
		i.logger.Debug("ignoring unrecognized message", "from", from)
		return
	}

	if err := i.replyWithStatus(ctx, from); err != nil {
		i.logger.Error("status command failed", "from", from, "error", err)
		i.replier.Send(ctx, from, "Sorry, a server error occurred.")
	}
}

func (i *Interpreter) replyWithStatus(ctx context.Context, from string) error {
	contact := strings.TrimPrefix(from, whatsappPrefix)

	deviceID, err := i.registry.DeviceIDByContact(ctx, contact)
	if err != nil {
		return fmt.Errorf("resolve device for contact: %w", err)
	}
	if deviceID == "" {
		i.replier.Send(ctx, from, "Your number is not registered to any device.")
		return nil
	}

	reading, err := i.readings.LatestReading(ctx, deviceID)
	if err != nil {
		return fmt.Errorf("latest reading for %s: %w", deviceID, err)
	}
	if reading == nil {
		i.replier.Send(ctx, from, "No sensor data has been recorded yet.")
		return nil
	}

	i.replier.Send(ctx, from, i.formatStatus(deviceID, reading))
	return nil
}

func (i *Interpreter) formatStatus(deviceID string, reading *model.Reading) string {
	humidity := "-"
	if reading.Humidity != nil {
		humidity = fmt.Sprintf("%g%%", *reading.Humidity)
	}

	return fmt.Sprintf("Latest update (%s):\n\nTemperature: %g°C\nHumidity: %s\nGas: %g PPM\nTime: %s",
		deviceID,
		reading.Temperature,
		humidity,
		reading.GasPPM,
		reading.Timestamp.In(i.location).Format("15:04:05"),
	)
}
