// Package alert decides whether a reading breaches its device's configured
// thresholds.
package alert

import (
	"fmt"

	"smartcoop/server/internal/model"
)

// Result reports the outcome of a threshold evaluation. Both breach flags
// are populated even though at most one message is produced, so callers
// and tests can see a gas breach that was shadowed by the temperature
// tie-break.
type Result struct {
	TempExceeded bool
	GasExceeded  bool

	// Message is the alert text to dispatch, empty when no alert fired.
	// Temperature takes priority: when both thresholds are breached only
	// the temperature message is produced.
	Message string
}

// Alert reports whether an alert message should be dispatched.
func (r Result) Alert() bool {
	return r.Message != ""
}

// Evaluate compares a reading against the device thresholds.
func Evaluate(reading model.Reading, device model.Device) Result {
	result := Result{
		TempExceeded: reading.Temperature > device.TempThreshold,
		GasExceeded:  reading.GasPPM > device.GasThreshold,
	}

	name := device.DisplayName()
	switch {
	case result.TempExceeded:
		result.Message = fmt.Sprintf("WARNING! Temperature at %s reached %g°C.", name, reading.Temperature)
	case result.GasExceeded:
		result.Message = fmt.Sprintf("WARNING! Gas level at %s reached %g PPM.", name, reading.GasPPM)
	}

	return result
}
