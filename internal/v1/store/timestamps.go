package store

import (
	"encoding/json"
	"time"
)

// Timestamp is the store's wire timestamp. Documents written by earlier
// backends carry timestamps in several shapes; every shape is funneled
// through NormalizeTime exactly once, at JSON decode.
type Timestamp struct {
	time.Time
}

// Now returns the current instant as a store timestamp, truncated to
// millisecond precision to match the wire form.
func Now() Timestamp {
	return Timestamp{time.Now().UTC().Truncate(time.Millisecond)}
}

// At wraps a time.Time as a store timestamp.
func At(t time.Time) Timestamp {
	return Timestamp{t}
}

// MarshalJSON writes the canonical wire form: RFC 3339 with millisecond
// precision, UTC. Zero timestamps serialize as null.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(t.UTC().Format("2006-01-02T15:04:05.000Z07:00"))
}

// UnmarshalJSON accepts every historical timestamp shape via NormalizeTime.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Time = NormalizeTime(raw)
	return nil
}

// epochMillisCutoff separates second-precision epoch values from
// millisecond-precision ones. Anything at or above it is milliseconds
// (1e12 seconds is the year 33658; 1e12 ms is 2001).
const epochMillisCutoff = 1e12

// NormalizeTime is the single timestamp normalization point for data read
// from the store. Behavior by input shape:
//
//   - time.Time: returned as-is.
//   - string: parsed as RFC 3339 (with or without sub-second precision);
//     unparseable strings normalize to the zero time.
//   - float64 / json.Number: epoch seconds when < 1e12, epoch milliseconds
//     otherwise; fractional seconds are preserved.
//   - map with "seconds"/"nanos" or "_seconds"/"_nanoseconds" keys (the
//     structured form some document stores emit): combined into one instant.
//   - nil or anything else: the zero time.
//
// All results are UTC.
func NormalizeTime(v any) time.Time {
	switch val := v.(type) {
	case time.Time:
		return val.UTC()
	case string:
		// RFC3339Nano accepts both whole-second and fractional forms.
		if ts, err := time.Parse(time.RFC3339Nano, val); err == nil {
			return ts.UTC()
		}
		return time.Time{}
	case float64:
		return fromEpoch(val)
	case json.Number:
		if f, err := val.Float64(); err == nil {
			return fromEpoch(f)
		}
		return time.Time{}
	case map[string]any:
		if ts, ok := fromStructured(val, "seconds", "nanos"); ok {
			return ts
		}
		if ts, ok := fromStructured(val, "_seconds", "_nanoseconds"); ok {
			return ts
		}
		return time.Time{}
	default:
		return time.Time{}
	}
}

func fromEpoch(v float64) time.Time {
	if v == 0 {
		return time.Time{}
	}
	millis := v * 1000
	if v >= epochMillisCutoff {
		millis = v
	}
	return time.UnixMilli(int64(millis)).UTC()
}

func fromStructured(m map[string]any, secKey, nanoKey string) (time.Time, bool) {
	rawSec, ok := m[secKey]
	if !ok {
		return time.Time{}, false
	}
	sec, ok := rawSec.(float64)
	if !ok {
		return time.Time{}, false
	}
	var nanos float64
	if rawNanos, ok := m[nanoKey].(float64); ok {
		nanos = rawNanos
	}
	return time.Unix(int64(sec), int64(nanos)).UTC(), true
}
