// Package store persists readings and schedules in Postgres and resolves
// devices and users. The latest reading per device is additionally kept in
// a Redis hot cache so status queries skip the relational store.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"smartcoop/server/internal/model"
)

// latestReadingTTL bounds how long a cached latest reading survives so
// dead devices age out of Redis.
const latestReadingTTL = 24 * time.Hour

// Store wraps the shared Postgres pool and Redis client.
type Store struct {
	db     *pgxpool.Pool
	cache  *redis.Client
	logger *slog.Logger
}

// Open connects the pool and the cache and verifies both are reachable.
func Open(ctx context.Context, databaseURL, redisAddr string, logger *slog.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("configure postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	cache := redis.NewClient(&redis.Options{Addr: redisAddr})
	if err := cache.Ping(ctx).Err(); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Store{db: pool, cache: cache, logger: logger}, nil
}

// Close releases both connections.
func (s *Store) Close() error {
	s.db.Close()
	return s.cache.Close()
}

func latestKey(deviceID string) string {
	return "reading:last:" + deviceID
}

// SaveReading appends a reading and fills in its server-assigned timestamp.
// The Redis cache is updated best-effort after the insert; a cache failure
// is logged but does not fail the persisted write.
func (s *Store) SaveReading(ctx context.Context, reading *model.Reading) error {
	row := s.db.QueryRow(ctx,
		`INSERT INTO sensor_data (device_id, temperature, humidity, gas_ppm)
		 VALUES ($1, $2, $3, $4)
		 RETURNING timestamp`,
		reading.DeviceID, reading.Temperature, reading.Humidity, reading.GasPPM)
	if err := row.Scan(&reading.Timestamp); err != nil {
		return fmt.Errorf("insert reading: %w", err)
	}

	if encoded, err := json.Marshal(reading); err == nil {
		if err := s.cache.Set(ctx, latestKey(reading.DeviceID), encoded, latestReadingTTL).Err(); err != nil {
			s.logger.Warn("latest-reading cache update failed", "device", reading.DeviceID, "error", err)
		}
	}

	return nil
}

// LatestReading returns the most recent reading for a device, or nil when
// none has been recorded. The cache is consulted first; any cache problem
// falls through to SQL.
func (s *Store) LatestReading(ctx context.Context, deviceID string) (*model.Reading, error) {
	if encoded, err := s.cache.Get(ctx, latestKey(deviceID)).Bytes(); err == nil {
		var reading model.Reading
		if err := json.Unmarshal(encoded, &reading); err == nil {
			return &reading, nil
		}
		s.logger.Warn("discarding undecodable cached reading", "device", deviceID)
	} else if !errors.Is(err, redis.Nil) {
		s.logger.Warn("latest-reading cache lookup failed", "device", deviceID, "error", err)
	}

	row := s.db.QueryRow(ctx,
		`SELECT device_id, temperature, humidity, gas_ppm, timestamp
		 FROM sensor_data
		 WHERE device_id = $1
		 ORDER BY timestamp DESC
		 LIMIT 1`, deviceID)

	var reading model.Reading
	err := row.Scan(&reading.DeviceID, &reading.Temperature, &reading.Humidity, &reading.GasPPM, &reading.Timestamp)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest reading: %w", err)
	}
	return &reading, nil
}

// RecentReadings returns up to limit readings for a device, newest first.
// The slice is empty, not nil-with-error, when the device has no data.
func (s *Store) RecentReadings(ctx context.Context, deviceID string, limit int) ([]model.Reading, error) {
	rows, err := s.db.Query(ctx,
		`SELECT device_id, temperature, humidity, gas_ppm, timestamp
		 FROM sensor_data
		 WHERE device_id = $1
		 ORDER BY timestamp DESC
		 LIMIT $2`, deviceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent readings: %w", err)
	}
	defer rows.Close()

	readings := make([]model.Reading, 0, limit)
	for rows.Next() {
		var reading model.Reading
		if err := rows.Scan(&reading.DeviceID, &reading.Temperature, &reading.Humidity, &reading.GasPPM, &reading.Timestamp); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

// DeviceByID resolves a device identifier, returning nil when the device
// is not registered.
func (s *Store) DeviceByID(ctx context.Context, deviceID string) (*model.Device, error) {
	row := s.db.QueryRow(ctx,
		`SELECT device_id, COALESCE(device_name, ''), threshold_temp, threshold_gas, user_id
		 FROM devices
		 WHERE device_id = $1`, deviceID)

	var device model.Device
	err := row.Scan(&device.ID, &device.Name, &device.TempThreshold, &device.GasThreshold, &device.UserID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query device: %w", err)
	}
	return &device, nil
}

// ContactForUser returns a user's WhatsApp number, or "" when the user is
// unknown.
func (s *Store) ContactForUser(ctx context.Context, userID int64) (string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT whatsapp_number FROM users WHERE user_id = $1`, userID)

	var number string
	err := row.Scan(&number)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query user contact: %w", err)
	}
	return number, nil
}

// DeviceIDByContact resolves a bare WhatsApp number to its registered
// device via the user join, or "" when the number is not registered.
func (s *Store) DeviceIDByContact(ctx context.Context, contact string) (string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT d.device_id
		 FROM devices d
		 JOIN users u ON d.user_id = u.user_id
		 WHERE u.whatsapp_number = $1`, contact)

	var deviceID string
	err := row.Scan(&deviceID)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query device by contact: %w", err)
	}
	return deviceID, nil
}

// UpsertSchedule replaces a device's schedule in a single atomic statement.
func (s *Store) UpsertSchedule(ctx context.Context, deviceID string, times []string) error {
	encoded, err := json.Marshal(times)
	if err != nil {
		return fmt.Errorf("encode schedule times: %w", err)
	}

	_, err = s.db.Exec(ctx,
		`INSERT INTO schedules (device_id, times) VALUES ($1, $2)
		 ON CONFLICT (device_id) DO UPDATE SET times = EXCLUDED.times, updated_at = now()`,
		deviceID, encoded)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

// ScheduleTimes returns the stored schedule for a device. A device without
// a schedule yields an empty sequence, never a not-found error.
func (s *Store) ScheduleTimes(ctx context.Context, deviceID string) ([]string, error) {
	row := s.db.QueryRow(ctx,
		`SELECT times FROM schedules WHERE device_id = $1`, deviceID)

	var encoded []byte
	err := row.Scan(&encoded)
	if errors.Is(err, pgx.ErrNoRows) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}

	var times []string
	if err := json.Unmarshal(encoded, &times); err != nil {
		return nil, fmt.Errorf("decode schedule times: %w", err)
	}
	return times, nil
}
