package app

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
)

// ScheduleStore persists feeding schedules.
type ScheduleStore interface {
	UpsertSchedule(ctx context.Context, deviceID string, times []string) error
	ScheduleTimes(ctx context.Context, deviceID string) ([]string, error)
}

// Publisher sends a message on the pub/sub control channel.
type Publisher interface {
	Publish(topic string, payload []byte) error
}

type schedulePayload struct {
	Times []string `json:"times"`
}

// ScheduleSynchronizer persists a device's feeding schedule and pushes it
// to the device over its control topic.
type ScheduleSynchronizer struct {
	store     ScheduleStore
	publisher Publisher
	logger    *slog.Logger
}

// NewScheduleSynchronizer wires the schedule push flow.
func NewScheduleSynchronizer(store ScheduleStore, publisher Publisher, logger *slog.Logger) *ScheduleSynchronizer {
	return &ScheduleSynchronizer{store: store, publisher: publisher, logger: logger}
}

// Push upserts the schedule row and then publishes the full schedule on
// devices/{id}/commands/set_schedule. The publish is fire-and-forget: a
// failed publish is logged but does not roll back the persisted schedule.
func (s *ScheduleSynchronizer) Push(ctx context.Context, deviceID string, times []string) error {
	if times == nil {
		times = []string{}
	}

	if err := s.store.UpsertSchedule(ctx, deviceID, times); err != nil {
		return err
	}

	payload, err := json.Marshal(schedulePayload{Times: times})
	if err != nil {
		return err
	}

	topic := fmt.Sprintf("devices/%s/commands/set_schedule", deviceID)
	if err := s.publisher.Publish(topic, payload); err != nil {
		s.logger.Error("schedule publish failed", "topic", topic, "error", err)
		return nil
	}

	s.logger.Info("schedule pushed", "topic", topic, "times", len(times))
	return nil
}

// Times returns the stored schedule, empty when none exists.
func (s *ScheduleSynchronizer) Times(ctx context.Context, deviceID string) ([]string, error) {
	return s.store.ScheduleTimes(ctx, deviceID)
}
