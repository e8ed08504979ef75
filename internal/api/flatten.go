// Package api provides HTTP API server implementation for the logtier service.
package api

import (
	"encoding/json"
	"time"
)

// viewTimeLayout is the timestamp format the read surfaces present.
const viewTimeLayout = "2006-01-02T15:04:05Z"

// viewTimestampLayouts are the formats accepted from stored values, tried in
// order. Staged records carry RFC 3339 text; cold rows carry the seconds
// layout or native time values.
var viewTimestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// flattenEntry projects a stored log entry into the single-level shape the
// read surfaces return.
//
// The source_info and message_info sections are hoisted one level up, so
// message, description, source and diagnostics become top-level keys. Any
// remaining map or array value (nested sections, the stamped source object)
// is stringified as JSON text, which keeps every cell scalar for CSV export.
// The timestamp is rewritten into the view layout.
func flattenEntry(entry map[string]any) map[string]any {
	flat := make(map[string]any, len(entry))

	for key, value := range entry {
		switch key {
		case "source_info", "message_info":
			section, ok := value.(map[string]any)
			if !ok {
				flat[key] = flattenValue(value)

				continue
			}

			for sectionKey, sectionValue := range section {
				flat[sectionKey] = flattenValue(sectionValue)
			}
		case "timestamp":
			flat[key] = viewTimestamp(value)
		default:
			flat[key] = flattenValue(value)
		}
	}

	return flat
}

// flattenValue stringifies composite values as JSON text and passes scalars
// through untouched.
func flattenValue(v any) any {
	switch v.(type) {
	case map[string]any, []any:
		encoded, err := json.Marshal(v)
		if err != nil {
			return v
		}

		return string(encoded)
	default:
		return v
	}
}

// viewTimestamp rewrites a stored timestamp into viewTimeLayout in UTC.
// Unparseable values pass through unchanged.
func viewTimestamp(v any) any {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC().Format(viewTimeLayout)
	case string:
		for _, layout := range viewTimestampLayouts {
			if parsed, err := time.Parse(layout, ts); err == nil {
				return parsed.UTC().Format(viewTimeLayout)
			}
		}

		return ts
	default:
		return v
	}
}

// entryObject coerces a staged value into the record object shape. Values
// arrive as maps when the staging adapter decodes JSON on read, or as raw
// JSON text when decoding is disabled.
func entryObject(value any) (map[string]any, bool) {
	switch v := value.(type) {
	case map[string]any:
		return v, true
	case string:
		var decoded map[string]any
		if err := json.Unmarshal([]byte(v), &decoded); err != nil {
			return nil, false
		}

		return decoded, true
	default:
		return nil, false
	}
}
