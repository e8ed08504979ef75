package ingestion

import "time"

// coldTimeLayout is the seconds-precision timestamp format the logs table
// accepts.
const coldTimeLayout = "2006-01-02 15:04:05"

// timestampLayouts are the formats accepted from staged records, tried in
// order.
var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	coldTimeLayout,
}

// ColdRow is the flattened projection of a staged record onto the columns
// of the logs table. Only columns present in the source record carry keys;
// the cold store fills missing columns with NULL.
type ColdRow map[string]any

// FlattenRecord projects a staged record (the JSON object shape produced by
// LogRecord.AsMap) onto the logs table columns.
//
// Pass-through columns: event_type, event_name, event_category. Nested
// sections contribute their scalar fields (server_info.hostname and friends),
// while diagnostics and source stay as objects for the literal encoder to
// serialize. The tenant's app_id, stamped under source.tenant, is copied
// into the row's app_id column explicitly.
//
// version, request_info.request_type and extra have no columns in the logs
// schema and are not projected; they remain visible in the staged tier.
func FlattenRecord(staged map[string]any) ColdRow {
	row := make(ColdRow)

	if ts, ok := staged["timestamp"]; ok {
		row["timestamp"] = normalizeTimestamp(ts)
	}

	copyFields(row, staged, "event_type", "event_name", "event_category")

	if server, ok := nestedMap(staged, "server_info"); ok {
		copyFields(row, server, "hostname", "portnumber", "api_key")
	}

	if request, ok := nestedMap(staged, "request_info"); ok {
		copyFields(row, request, "severity_level", "status_code", "session_id", "request_id", "success_flag")
	}

	if message, ok := nestedMap(staged, "message_info"); ok {
		copyFields(row, message, "message", "description")
	}

	if sourceInfo, ok := nestedMap(staged, "source_info"); ok {
		if diagnostics, ok := sourceInfo["diagnostics"]; ok {
			row["diagnostics"] = diagnostics
		}

		if source, ok := sourceInfo["source"]; ok {
			row["source"] = source

			if appID, ok := tenantAppID(source); ok {
				row["app_id"] = appID
			}
		}
	}

	return row
}

// copyFields copies the named keys from a record section into the row when
// present. Section keys and column names coincide by schema design.
func copyFields(row ColdRow, section map[string]any, keys ...string) {
	for _, key := range keys {
		if v, ok := section[key]; ok {
			row[key] = v
		}
	}
}

func nestedMap(staged map[string]any, key string) (map[string]any, bool) {
	section, ok := staged[key].(map[string]any)

	return section, ok
}

// tenantAppID extracts source.tenant.app_id from a stamped source value.
func tenantAppID(source any) (string, bool) {
	m, ok := source.(map[string]any)
	if !ok {
		return "", false
	}

	tenant, ok := m["tenant"].(map[string]any)
	if !ok {
		return "", false
	}

	appID, ok := tenant["app_id"].(string)

	return appID, ok && appID != ""
}

// normalizeTimestamp rewrites a staged timestamp into coldTimeLayout in UTC.
// Unparseable values pass through unchanged and take their chances with the
// cold store's own coercion.
func normalizeTimestamp(v any) any {
	switch ts := v.(type) {
	case time.Time:
		return ts.UTC().Format(coldTimeLayout)
	case string:
		for _, layout := range timestampLayouts {
			if parsed, err := time.Parse(layout, ts); err == nil {
				return parsed.UTC().Format(coldTimeLayout)
			}
		}

		return ts
	default:
		return v
	}
}
