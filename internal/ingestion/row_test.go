package ingestion

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenRecord(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Run("full record projects every column", func(t *testing.T) {
		ok := true
		record := &LogRecord{
			Timestamp:     time.Date(2026, 3, 14, 9, 30, 15, 0, time.UTC),
			EventType:     "http",
			EventName:     "request_served",
			EventCategory: "access",
			ServerInfo:    &ServerInfo{Hostname: "web-01", PortNumber: 8443, APIKey: "masked"},
			RequestInfo: &RequestInfo{
				SeverityLevel: "info",
				StatusCode:    200,
				SessionID:     "sess-1",
				RequestID:     "req-42",
				RequestType:   "GET",
				SuccessFlag:   &ok,
			},
			MessageInfo: &MessageInfo{Message: "served", Description: "in 12ms"},
		}
		record.Stamp("b158dac7-eb5a-4823-81fa-a2c1143eceab", "srv-a")

		staged, err := record.AsMap()
		require.NoError(t, err)

		row := FlattenRecord(staged)

		assert.Equal(t, "2026-03-14 09:30:15", row["timestamp"])
		assert.Equal(t, "http", row["event_type"])
		assert.Equal(t, "request_served", row["event_name"])
		assert.Equal(t, "access", row["event_category"])
		assert.Equal(t, "web-01", row["hostname"])
		assert.Equal(t, float64(8443), row["portnumber"])
		assert.Equal(t, "masked", row["api_key"])
		assert.Equal(t, "info", row["severity_level"])
		assert.Equal(t, float64(200), row["status_code"])
		assert.Equal(t, "sess-1", row["session_id"])
		assert.Equal(t, "req-42", row["request_id"])
		assert.Equal(t, true, row["success_flag"])
		assert.Equal(t, "served", row["message"])
		assert.Equal(t, "in 12ms", row["description"])
		assert.Equal(t, "b158dac7-eb5a-4823-81fa-a2c1143eceab", row["app_id"])

		source, ok2 := row["source"].(map[string]any)
		require.True(t, ok2, "source column is not an object")
		assert.NotNil(t, source["tenant"])

		if _, present := row["diagnostics"]; !present {
			t.Error("diagnostics column missing")
		}
	})

	t.Run("missing sections leave columns absent", func(t *testing.T) {
		row := FlattenRecord(map[string]any{
			"timestamp":  "2026-03-14T09:30:15Z",
			"event_type": "http",
		})

		assert.Equal(t, "2026-03-14 09:30:15", row["timestamp"])
		assert.Equal(t, "http", row["event_type"])

		for _, absent := range []string{"hostname", "portnumber", "severity_level", "message", "source", "app_id"} {
			if _, ok := row[absent]; ok {
				t.Errorf("FlattenRecord() invented column %q", absent)
			}
		}
	})

	t.Run("unprojected fields stay out of the row", func(t *testing.T) {
		row := FlattenRecord(map[string]any{
			"timestamp": "2026-03-14T09:30:15Z",
			"version":   "1.2.3",
			"request_info": map[string]any{
				"request_id":   "req-42",
				"request_type": "GET",
			},
			"extra": map[string]any{"feature": "beta"},
		})

		for _, absent := range []string{"version", "request_type", "extra"} {
			if _, ok := row[absent]; ok {
				t.Errorf("FlattenRecord() projected %q, which has no column", absent)
			}
		}

		assert.Equal(t, "req-42", row["request_id"])
	})

	t.Run("app id requires a stamped tenant", func(t *testing.T) {
		row := FlattenRecord(map[string]any{
			"source_info": map[string]any{
				"source": map[string]any{"region": "eu-central-1"},
			},
		})

		if _, ok := row["app_id"]; ok {
			t.Error("FlattenRecord() set app_id without a tenant stamp")
		}
	})
}

func TestNormalizeTimestamp(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name string
		in   any
		want any
	}{
		{
			name: "rfc3339",
			in:   "2026-03-14T09:30:15Z",
			want: "2026-03-14 09:30:15",
		},
		{
			name: "rfc3339 nano with offset",
			in:   "2026-03-14T10:30:15.123456789+01:00",
			want: "2026-03-14 09:30:15",
		},
		{
			name: "already cold layout",
			in:   "2026-03-14 09:30:15",
			want: "2026-03-14 09:30:15",
		},
		{
			name: "time value",
			in:   time.Date(2026, 3, 14, 9, 30, 15, 999, time.UTC),
			want: "2026-03-14 09:30:15",
		},
		{
			name: "unparseable passes through",
			in:   "yesterday",
			want: "yesterday",
		},
		{
			name: "non string passes through",
			in:   float64(1764583815),
			want: float64(1764583815),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeTimestamp(tt.in); got != tt.want {
				t.Errorf("normalizeTimestamp(%v) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}
