package model

import "time"

// Device describes a registered enclosure monitor. Devices are provisioned
// out-of-band and are read-only to the server.
type Device struct {
	ID            string  `json:"device_id"`
	Name          string  `json:"device_name,omitempty"`
	TempThreshold float64 `json:"-"`
	GasThreshold  float64 `json:"-"`
	UserID        int64   `json:"-"`
}

// DisplayName returns the configured name, falling back to the identifier.
func (d Device) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}

// User owns a device and receives alerts on a WhatsApp number. Numbers are
// stored bare, without the channel prefix.
type User struct {
	ID             int64  `json:"user_id"`
	WhatsAppNumber string `json:"whatsapp_number"`
}

// Reading is the canonical form of one telemetry sample. GasPPM holds the
// normalized gas concentration regardless of which field spelling the
// device used. Timestamp is assigned by the store at persistence time.
type Reading struct {
	DeviceID    string    `json:"device_id,omitempty"`
	Temperature float64   `json:"temperature"`
	Humidity    *float64  `json:"humidity"`
	GasPPM      float64   `json:"gas_ppm"`
	Timestamp   time.Time `json:"timestamp"`
}

// Schedule holds the feeding times for a single device. At most one row
// exists per device; a new submission fully replaces the previous times.
type Schedule struct {
	DeviceID  string    `json:"device_id"`
	Times     []string  `json:"times"`
	UpdatedAt time.Time `json:"updated_at"`
}
