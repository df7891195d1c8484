package telemetry

import (
	"encoding/json"
	"errors"
	"fmt"

	"smartcoop/server/internal/model"
)

// ErrMalformedPayload marks a telemetry payload that failed decoding or
// normalization. Such messages are logged and discarded, never retried.
var ErrMalformedPayload = errors.New("malformed payload")

// rawReading mirrors the wire format. Devices disagree on the gas field
// name: newer firmware sends "gas_ppm", older firmware sends "amonia".
type rawReading struct {
	Temperature *float64 `json:"temperature"`
	Humidity    *float64 `json:"humidity"`
	GasPPM      *float64 `json:"gas_ppm"`
	Amonia      *float64 `json:"amonia"`
}

// ParsePayload turns a raw telemetry body into a canonical reading.
//
// The body may be a single JSON object or a non-empty array of objects, in
// which case only the first element is used. A reading is accepted only if
// it carries a temperature and at least one of the two gas field spellings;
// the primary "gas_ppm" wins when both are present. Humidity is optional
// and passed through as-is.
func ParsePayload(payload []byte) (model.Reading, error) {
	var probe json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return model.Reading{}, fmt.Errorf("%w: decode: %v", ErrMalformedPayload, err)
	}

	body := []byte(probe)
	if len(body) > 0 && body[0] == '[' {
		var elems []json.RawMessage
		if err := json.Unmarshal(body, &elems); err != nil {
			return model.Reading{}, fmt.Errorf("%w: decode array: %v", ErrMalformedPayload, err)
		}
		if len(elems) == 0 {
			return model.Reading{}, fmt.Errorf("%w: empty array", ErrMalformedPayload)
		}
		body = elems[0]
	}

	if len(body) == 0 || body[0] != '{' {
		return model.Reading{}, fmt.Errorf("%w: payload is not an object", ErrMalformedPayload)
	}

	var raw rawReading
	if err := json.Unmarshal(body, &raw); err != nil {
		return model.Reading{}, fmt.Errorf("%w: decode object: %v", ErrMalformedPayload, err)
	}

	if raw.Temperature == nil {
		return model.Reading{}, fmt.Errorf("%w: missing temperature", ErrMalformedPayload)
	}

	var gas float64
	switch {
	case raw.GasPPM != nil:
		gas = *raw.GasPPM
	case raw.Amonia != nil:
		gas = *raw.Amonia
	default:
		return model.Reading{}, fmt.Errorf("%w: missing gas concentration", ErrMalformedPayload)
	}

	return model.Reading{
		Temperature: *raw.Temperature,
		Humidity:    raw.Humidity,
		GasPPM:      gas,
	}, nil
}
